package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tacoza/seller-live/internal/board"
	"github.com/tacoza/seller-live/internal/metrics"
	"github.com/tacoza/seller-live/internal/model"
	"github.com/tacoza/seller-live/internal/notify"
)

var (
	errNoMessage = errors.New("frame has no message")
	errNoOrderID = errors.New("order has no order_id")
)

// Ingester accepts decoded orders. *board.Store implements it.
type Ingester interface {
	Ingest(order model.Order) error
}

// Feed is the subscription handler: it queues frames from the socket and
// ingests them in order on its own goroutine.
type Feed struct {
	cfg     Config
	board   Ingester
	sink    notify.Sink
	metrics *metrics.Metrics
	logger  *slog.Logger

	queue *Queue[Frame]
	now   func() time.Time

	wg sync.WaitGroup

	mu           sync.RWMutex
	received     int64
	ingested     int64
	duplicates   int64
	decodeErrors int64
}

// New creates a feed. A nil sink discards notifications.
func New(cfg Config, b Ingester, sink notify.Sink, m *metrics.Metrics, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = notify.Discard
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}

	return &Feed{
		cfg:     cfg,
		board:   b,
		sink:    sink,
		metrics: m,
		logger:  logger.With("component", "feed"),
		queue:   NewQueue[Frame](cfg.QueueSize),
		now:     time.Now,
	}
}

// Start begins processing queued frames.
func (f *Feed) Start(ctx context.Context) {
	f.wg.Add(1)
	go f.processLoop(ctx)

	f.logger.Info("feed started", "queue_size", f.cfg.QueueSize)
}

// Stop closes the queue and waits for queued frames to be processed, or for
// ctx to be done.
func (f *Feed) Stop(ctx context.Context) error {
	f.queue.Close()

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		f.logger.Info("feed stopped")
		return nil
	case <-ctx.Done():
		f.logger.Warn("feed stop timed out", "pending", f.queue.Len())
		return ctx.Err()
	}
}

// OnOpen implements connection.Handler.
func (f *Feed) OnOpen() {
	f.logger.Debug("subscription open")
}

// OnMessage implements connection.Handler.
func (f *Feed) OnMessage(data []byte) {
	f.mu.Lock()
	f.received++
	f.mu.Unlock()
	f.metrics.RecordFrame()

	if !f.queue.Push(Frame{Data: data, ReceivedAt: f.now()}) {
		f.logger.Debug("feed stopped, frame dropped")
	}
}

// OnClose implements connection.Handler.
func (f *Feed) OnClose(err error) {
	f.logger.Debug("subscription closed", "error", err, "pending", f.queue.Len())
}

// Stats returns current statistics.
func (f *Feed) Stats() Stats {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return Stats{
		Received:     f.received,
		Ingested:     f.ingested,
		Duplicates:   f.duplicates,
		DecodeErrors: f.decodeErrors,
		Queue:        f.queue.Stats(),
	}
}

func (f *Feed) processLoop(ctx context.Context) {
	defer f.wg.Done()

	for {
		frame, err := f.queue.Pop(ctx)
		if err != nil {
			return
		}
		f.Process(ctx, frame)
	}
}

// Process decodes one frame and ingests the order. Decode failures and
// duplicates are recorded and swallowed.
func (f *Feed) Process(ctx context.Context, frame Frame) {
	order, err := Decode(frame.Data)
	if err != nil {
		f.mu.Lock()
		f.decodeErrors++
		f.mu.Unlock()
		f.metrics.RecordDecodeError()

		f.logger.Warn("failed to parse subscription frame",
			"error", err,
			"bytes", len(frame.Data),
		)
		return
	}

	if err := f.board.Ingest(order); err != nil {
		if errors.Is(err, board.ErrDuplicateOrder) {
			f.mu.Lock()
			f.duplicates++
			f.mu.Unlock()
			f.metrics.RecordDuplicate()
			return
		}
		f.logger.Warn("failed to ingest order", "order_id", order.OrderID, "error", err)
		return
	}

	f.mu.Lock()
	f.ingested++
	f.mu.Unlock()
	f.metrics.RecordIngested()

	f.logger.Info("order received",
		"order_id", order.OrderID,
		"latency", f.now().Sub(frame.ReceivedAt),
	)

	// A failed notification never undoes the ingest.
	if err := f.sink.Notify(ctx, notify.NewOrderArrived{Order: order, At: frame.ReceivedAt}); err != nil {
		f.logger.Debug("new order notification incomplete", "order_id", order.OrderID, "error", err)
	}
}

// Decode parses a {"message": Order} frame.
func Decode(data []byte) (model.Order, error) {
	var w frameWire
	if err := json.Unmarshal(data, &w); err != nil {
		return model.Order{}, &DecodeError{Payload: data, Err: err}
	}
	if w.Message == nil {
		return model.Order{}, &DecodeError{Payload: data, Err: errNoMessage}
	}
	if w.Message.OrderID == "" {
		return model.Order{}, &DecodeError{Payload: data, Err: errNoOrderID}
	}
	return *w.Message, nil
}
