package connection

import (
	"errors"
	"net/http"
	"time"
)

// Errors
var (
	ErrStaleConnection = errors.New("connection stale (no pong)")
	ErrNoEndpoint      = errors.New("no subscription endpoint")
)

// Handler receives channel callbacks. Callbacks for one channel are never
// concurrent. Close must not be called from inside a callback.
type Handler interface {
	// OnOpen is called once the handshake completed.
	OnOpen()

	// OnMessage is called for every inbound frame, in arrival order.
	OnMessage(data []byte)

	// OnClose is called at most once, when the channel closed without
	// Close being called.
	OnClose(err error)
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are skipped.
type HandlerFuncs struct {
	Open    func()
	Message func(data []byte)
	Closed  func(err error)
}

func (h HandlerFuncs) OnOpen() {
	if h.Open != nil {
		h.Open()
	}
}

func (h HandlerFuncs) OnMessage(data []byte) {
	if h.Message != nil {
		h.Message(data)
	}
}

func (h HandlerFuncs) OnClose(err error) {
	if h.Closed != nil {
		h.Closed(err)
	}
}

// ClientConfig configures the websocket transport.
type ClientConfig struct {
	Header           http.Header   // Extra handshake headers (Authorization)
	HandshakeTimeout time.Duration // Max time for the opening handshake
	PingInterval     time.Duration // How often we ping the server
	PongTimeout      time.Duration // Max time without pong/ping before the channel is stale
	WriteTimeout     time.Duration // Deadline for control frames
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		PongTimeout:      60 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}

// PolicyConfig configures reconnection.
type PolicyConfig struct {
	Endpoint  string        // Initial endpoint; empty means stay idle
	BaseDelay time.Duration // Delay before the first reconnect
	MaxDelay  time.Duration // Upper bound for any reconnect delay
}

// DefaultPolicyConfig returns sensible defaults.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		BaseDelay: 2 * time.Second,
		MaxDelay:  60 * time.Second,
	}
}
