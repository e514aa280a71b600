package feed

import (
	"fmt"
	"time"

	"github.com/tacoza/seller-live/internal/model"
)

// Config holds feed configuration.
type Config struct {
	QueueSize int // Initial frame queue capacity. Default: 64
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{QueueSize: 64}
}

// Frame is one raw inbound frame.
type Frame struct {
	Data       []byte
	ReceivedAt time.Time
}

// Stats contains runtime statistics.
type Stats struct {
	Received     int64      `json:"received"`
	Ingested     int64      `json:"ingested"`
	Duplicates   int64      `json:"duplicates"`
	DecodeErrors int64      `json:"decode_errors"`
	Queue        QueueStats `json:"queue"`
}

// DecodeError reports a frame that could not be turned into an order.
type DecodeError struct {
	Payload []byte
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode frame: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// frameWire is the wire format of a stream frame.
type frameWire struct {
	Message *model.Order `json:"message"`
}
