// Package transition moves orders between board lanes and confirms each
// move with the shop API, reverting the move when the API rejects it.
package transition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tacoza/seller-live/internal/api"
	"github.com/tacoza/seller-live/internal/board"
	"github.com/tacoza/seller-live/internal/metrics"
	"github.com/tacoza/seller-live/internal/model"
	"github.com/tacoza/seller-live/internal/notify"
)

// DefaultTimeout bounds a single status-update call.
const DefaultTimeout = 10 * time.Second

// StatusUpdater sends an order status to the shop API. *api.Client implements it.
type StatusUpdater interface {
	UpdateOrderStatus(ctx context.Context, orderID string, status model.RemoteStatus) error
}

// Board is the subset of *board.Store the coordinator mutates.
type Board interface {
	MoveOptimistic(orderID string, from, to model.Lane) error
	Reverse(orderID string, from, to model.Lane) error
}

// RemoteCallError reports a status update the API did not confirm.
type RemoteCallError struct {
	OrderID string
	Status  model.RemoteStatus
	Err     error
}

func (e *RemoteCallError) Error() string {
	return fmt.Sprintf("update order %s to %s: %v", e.OrderID, e.Status, e.Err)
}

func (e *RemoteCallError) Unwrap() error {
	return e.Err
}

// Config holds coordinator configuration.
type Config struct {
	Timeout time.Duration // Per-call deadline for the status update
}

// Coordinator applies lane transitions.
type Coordinator struct {
	cfg     Config
	board   Board
	remote  StatusUpdater
	sink    notify.Sink
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewCoordinator creates a coordinator. A nil sink discards notifications.
func NewCoordinator(cfg Config, b Board, remote StatusUpdater, sink notify.Sink, m *metrics.Metrics, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = notify.Discard
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Coordinator{
		cfg:     cfg,
		board:   b,
		remote:  remote,
		sink:    sink,
		metrics: m,
		logger:  logger.With("component", "transition"),
		now:     time.Now,
	}
}

// Transition moves an order from one lane to another.
//
// The board is updated before the API call so the move is visible at once.
// If the call fails the move is reverted, a TransitionFailed event is
// emitted and a *RemoteCallError is returned. The revert runs even when ctx
// has been cancelled. Failures are not retried.
func (c *Coordinator) Transition(ctx context.Context, orderID string, from, to model.Lane) error {
	if !from.Valid() {
		return fmt.Errorf("transition %s: %w: %q", orderID, board.ErrUnknownLane, from)
	}
	if !to.Valid() {
		return fmt.Errorf("transition %s: %w: %q", orderID, board.ErrUnknownLane, to)
	}
	if from == to {
		return nil
	}

	if err := c.board.MoveOptimistic(orderID, from, to); err != nil {
		if errors.Is(err, board.ErrNotFound) {
			c.metrics.RecordTransition(string(to), metrics.OutcomeNotFound)
		}
		return err
	}

	status := to.RemoteStatus()
	requestID := uuid.NewString()
	logger := c.logger.With(
		"order_id", orderID,
		"from", from,
		"to", to,
		"request_id", requestID,
	)

	callCtx, cancel := context.WithTimeout(api.WithRequestID(ctx, requestID), c.cfg.Timeout)
	start := time.Now()
	err := c.remote.UpdateOrderStatus(callCtx, orderID, status)
	cancel()
	c.metrics.RecordRemoteCall(time.Since(start))

	if err == nil {
		c.metrics.RecordTransition(string(to), metrics.OutcomeConfirmed)
		logger.Info("order status updated", "status", status)
		return nil
	}

	callErr := &RemoteCallError{OrderID: orderID, Status: status, Err: err}
	c.rollback(context.WithoutCancel(ctx), logger, orderID, from, to, callErr)
	return callErr
}

func (c *Coordinator) rollback(ctx context.Context, logger *slog.Logger, orderID string, from, to model.Lane, cause error) {
	if err := c.board.Reverse(orderID, from, to); err != nil {
		// The order left the target lane while the call was in flight.
		c.metrics.RecordTransition(string(to), metrics.OutcomeRollbackFailed)
		logger.Warn("rollback skipped", "error", err, "cause", cause)
	} else {
		c.metrics.RecordTransition(string(to), metrics.OutcomeRolledBack)
		logger.Warn("failed to update order status, move reverted", "error", cause)
	}

	ev := notify.TransitionFailed{
		OrderID: orderID,
		From:    from,
		To:      to,
		Cause:   cause,
		At:      c.now(),
	}
	if err := c.sink.Notify(ctx, ev); err != nil {
		logger.Debug("transition failure notification incomplete", "error", err)
	}
}
