package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tacoza/seller-live/internal/metrics"
)

// Sink receives events from the core.
type Sink interface {
	Notify(ctx context.Context, ev Event) error
}

// SinkFunc is a function adapter for Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Notify(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Discard is a Sink that drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })

// NamedSink pairs a sink with the label used in logs and metrics.
type NamedSink struct {
	Name string
	Sink Sink
}

// Multi delivers each event to every sink. Failures are logged and counted
// per sink; Notify returns them joined but delivery to the remaining sinks
// always continues.
type Multi struct {
	sinks   []NamedSink
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewMulti creates a fan-out sink.
func NewMulti(m *metrics.Metrics, logger *slog.Logger, sinks ...NamedSink) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multi{sinks: sinks, metrics: m, logger: logger}
}

// Add appends a sink.
func (m *Multi) Add(name string, s Sink) {
	m.sinks = append(m.sinks, NamedSink{Name: name, Sink: s})
}

// Notify implements Sink.
func (m *Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Sink.Notify(ctx, ev); err != nil {
			m.metrics.RecordNotifyFailure(s.Name)
			m.logger.Warn("notification not delivered",
				"sink", s.Name,
				"event", ev.Kind(),
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// LogSink writes events to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Notify implements Sink.
func (s *LogSink) Notify(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case NewOrderArrived:
		s.logger.InfoContext(ctx, "new order",
			"order_id", e.Order.OrderID,
			"table", e.Order.Table,
			"order_type", e.Order.OrderType,
			"customer", e.Order.User.DisplayName(),
			"items", len(e.Order.Items),
			"total", e.Order.Total,
			"payment_status", e.Order.PaymentStatus,
		)
	case TransitionFailed:
		s.logger.WarnContext(ctx, "failed to update order status",
			"order_id", e.OrderID,
			"from", e.From,
			"to", e.To,
			"error", e.Cause,
		)
	default:
		s.logger.InfoContext(ctx, "notification", "event", ev.Kind())
	}
	return nil
}
