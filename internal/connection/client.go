package connection

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport opens channels to a subscription endpoint.
type Transport interface {
	// Open dials url and, on success, starts delivering callbacks to h.
	Open(ctx context.Context, url string, h Handler) (Channel, error)
}

// Channel is one open connection.
type Channel interface {
	// Close closes the connection. It is idempotent, and once it returns no
	// further callbacks are delivered. OnClose is not called for it.
	Close() error
}

// WebSocketTransport is a Transport backed by gorilla/websocket.
type WebSocketTransport struct {
	cfg    ClientConfig
	logger *slog.Logger
}

// NewWebSocketTransport creates a websocket transport.
func NewWebSocketTransport(cfg ClientConfig, logger *slog.Logger) *WebSocketTransport {
	if logger == nil {
		logger = slog.Default()
	}

	def := DefaultClientConfig()
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = def.PongTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}

	return &WebSocketTransport{cfg: cfg, logger: logger}
}

// Open implements Transport.
func (t *WebSocketTransport) Open(ctx context.Context, url string, h Handler) (Channel, error) {
	if url == "" {
		return nil, ErrNoEndpoint
	}

	header := http.Header{}
	for k, v := range t.cfg.Header {
		header[k] = append([]string(nil), v...)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: t.cfg.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &wsChannel{
		cfg:      t.cfg,
		conn:     conn,
		handler:  h,
		logger:   t.logger,
		lastSeen: time.Now(),
		done:     make(chan struct{}),
	}

	// Server ping: answer and count it as liveness.
	conn.SetPingHandler(func(data string) error {
		c.touch()
		err := conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(t.cfg.WriteTimeout),
		)
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	// Pong for our heartbeat ping.
	conn.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	h.OnOpen()

	c.wg.Add(2)
	go c.readLoop()
	go c.heartbeatLoop()

	t.logger.Debug("websocket connected", "url", url)

	return c, nil
}

// wsChannel implements Channel.
type wsChannel struct {
	cfg     ClientConfig
	conn    *websocket.Conn
	handler Handler
	logger  *slog.Logger

	done chan struct{}
	wg   sync.WaitGroup

	mu       sync.Mutex
	lastSeen time.Time
	closing  bool
	failErr  error
}

func (c *wsChannel) touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

// Close implements Channel.
func (c *wsChannel) Close() error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		c.wg.Wait()
		return nil
	}
	c.closing = true
	c.mu.Unlock()

	close(c.done)

	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	err := c.conn.Close()

	c.wg.Wait()
	return err
}

// fail records why the channel is being torn down and unblocks the read loop.
func (c *wsChannel) fail(err error) {
	c.mu.Lock()
	if c.failErr == nil {
		c.failErr = err
	}
	c.mu.Unlock()
	c.conn.Close()
}

// readLoop delivers frames to the handler until the connection ends.
func (c *wsChannel) readLoop() {
	defer c.wg.Done()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closing := c.closing
			if c.failErr != nil {
				err = c.failErr
			}
			c.mu.Unlock()

			// Explicit Close: no callback.
			if closing {
				return
			}

			c.logger.Debug("websocket closed", "error", err)
			c.handler.OnClose(err)
			return
		}

		c.touch()

		select {
		case <-c.done:
			return
		default:
		}

		c.handler.OnMessage(data)
	}
}

// heartbeatLoop pings the server and fails the channel when it goes quiet.
func (c *wsChannel) heartbeatLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}

			c.mu.Lock()
			lastSeen := c.lastSeen
			c.mu.Unlock()

			if time.Since(lastSeen) > c.cfg.PongTimeout {
				c.logger.Warn("no pong received, connection stale",
					"last_seen", lastSeen,
					"timeout", c.cfg.PongTimeout,
				)
				c.fail(ErrStaleConnection)
				return
			}
		}
	}
}
