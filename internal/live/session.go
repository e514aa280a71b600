package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tacoza/seller-live/internal/api"
	"github.com/tacoza/seller-live/internal/board"
	"github.com/tacoza/seller-live/internal/config"
	"github.com/tacoza/seller-live/internal/connection"
	"github.com/tacoza/seller-live/internal/feed"
	"github.com/tacoza/seller-live/internal/menu"
	"github.com/tacoza/seller-live/internal/metrics"
	"github.com/tacoza/seller-live/internal/model"
	"github.com/tacoza/seller-live/internal/notify"
	"github.com/tacoza/seller-live/internal/reconcile"
	"github.com/tacoza/seller-live/internal/transition"
)

// ShopAPI is the part of the shop API the session uses. *api.Client implements it.
type ShopAPI interface {
	GetSubscriptionURL(ctx context.Context) (string, error)
	transition.StatusUpdater
	reconcile.OrderSource
	menu.Updater
}

var _ ShopAPI = (*api.Client)(nil)

// Status summarizes the session for the dashboard.
type Status struct {
	Outlet     string            `json:"outlet,omitempty"`
	Connection connection.Status `json:"connection"`
	Feed       feed.Stats        `json:"feed"`
	Reconcile  reconcile.Result  `json:"reconcile"`
	Orders     int               `json:"orders"`
	Listeners  int               `json:"listeners"`
	LastError  string            `json:"last_error,omitempty"`
}

// Session is one outlet's live-order session.
type Session struct {
	cfg     config.DashboardConfig
	api     ShopAPI
	metrics *metrics.Metrics
	logger  *slog.Logger

	board       *board.Store
	feed        *feed.Feed
	policy      *connection.Policy
	coordinator *transition.Coordinator
	reconciler  *reconcile.Reconciler
	menu        *menu.Toggler
	events      *notify.Broadcaster
	sink        *notify.Multi

	connectedOnce atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.RWMutex
	lastError string
}

// New builds a session. extra sinks (for example an AMQP publisher) receive
// every notification alongside the in-process subscribers.
func New(cfg config.DashboardConfig, shop ShopAPI, transport connection.Transport, m *metrics.Metrics, logger *slog.Logger, extra ...notify.NamedSink) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Outlet.ID != "" {
		logger = logger.With("outlet", cfg.Outlet.ID)
	}

	s := &Session{
		cfg:     cfg,
		api:     shop,
		metrics: m,
		logger:  logger,
		events:  notify.NewBroadcaster(),
	}

	s.sink = notify.NewMulti(m, logger, notify.NamedSink{Name: "ui", Sink: s.events})
	if config.Enabled(cfg.Notify.LogEvents, true) {
		s.sink.Add("log", notify.NewLogSink(logger))
	}
	for _, ns := range extra {
		s.sink.Add(ns.Name, ns.Sink)
	}

	s.board = board.NewStore(m, logger)
	s.feed = feed.New(feed.DefaultConfig(), s.board, s.sink, m, logger)
	s.coordinator = transition.NewCoordinator(
		transition.Config{Timeout: cfg.Transitions.Timeout},
		s.board, shop, s.sink, m, logger,
	)
	s.reconciler = reconcile.New(
		reconcile.Config{Interval: cfg.Board.ReconcileInterval, Timeout: cfg.API.Timeout},
		shop, s.board, m, logger,
	)
	s.menu = menu.NewToggler(cfg.Menu.ToggleDebounce, shop, logger)
	s.menu.OnResult(func(r menu.Result) {
		if r.Err != nil {
			s.setError(r.Err)
		}
	})

	s.policy = connection.NewPolicy(connection.PolicyConfig{
		BaseDelay: cfg.Connection.ReconnectBaseDelay,
		MaxDelay:  cfg.Connection.ReconnectMaxDelay,
	}, transport, s.feed, m, logger)
	s.policy.OnStateChange(s.onStateChange)

	return s
}

// Start seeds the board, resolves the subscription endpoint and starts the
// background components. If the endpoint cannot be resolved the socket stays
// idle while the lookup is retried with the reconnect backoff.
func (s *Session) Start(ctx context.Context) error {
	s.feed.Start(ctx)

	if config.Enabled(s.cfg.Board.SeedOnStart, true) {
		if _, err := s.reconciler.RunOnce(ctx); err != nil {
			s.setError(err)
			s.logger.Warn("initial board seed failed", "error", err)
		}
	}

	if err := s.reconciler.Start(ctx); err != nil {
		return fmt.Errorf("start reconciler: %w", err)
	}

	s.policy.Start(ctx)

	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn("subscription not started, retrying", "error", err)
		var resolveCtx context.Context
		resolveCtx, s.cancel = context.WithCancel(ctx)
		s.wg.Add(1)
		go s.resolveLoop(resolveCtx)
	}

	s.logger.Info("session started", "orders", s.board.Len())
	return nil
}

// Refresh resolves the subscription endpoint again and points the socket at
// it. An unchanged endpoint keeps the current connection.
func (s *Session) Refresh(ctx context.Context) error {
	path, err := s.api.GetSubscriptionURL(ctx)
	if err != nil {
		s.setError(err)
		var httpErr *api.HTTPError
		if errors.As(err, &httpErr) && httpErr.IsUnauthorized() {
			s.logger.Error("session unauthorized, check the access token")
		}
		return fmt.Errorf("resolve subscription: %w", err)
	}

	endpoint := SocketEndpoint(s.cfg.API.SocketURL, path)
	s.policy.SetEndpoint(endpoint)
	s.setError(nil)
	return nil
}

// resolveLoop retries the subscription lookup until it succeeds or ctx is done.
func (s *Session) resolveLoop(ctx context.Context) {
	defer s.wg.Done()

	backoff := connection.Backoff{
		Base: s.cfg.Connection.ReconnectBaseDelay,
		Max:  s.cfg.Connection.ReconnectMaxDelay,
	}
	for attempt := 0; ; attempt++ {
		delay := backoff.Delay(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		err := s.Refresh(ctx)
		if err == nil {
			s.logger.Info("subscription resolved", "attempts", attempt+1)
			return
		}
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("subscription lookup failed", "error", err, "attempt", attempt+1, "delay", delay)
	}
}

// Stop tears the session down. Pending menu toggles are sent first.
func (s *Session) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.policy.Stop()
	s.menu.Stop()

	var errs []error
	if err := s.reconciler.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop reconciler: %w", err))
	}
	if err := s.feed.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop feed: %w", err))
	}

	s.logger.Info("session stopped")
	return errors.Join(errs...)
}

// Snapshot returns a copy of the board.
func (s *Session) Snapshot() board.Snapshot {
	return s.board.Snapshot()
}

// Transition moves an order between lanes and confirms it with the API.
func (s *Session) Transition(ctx context.Context, orderID string, from, to model.Lane) error {
	return s.coordinator.Transition(ctx, orderID, from, to)
}

// ToggleMenuItem schedules a debounced stock or featured toggle.
func (s *Session) ToggleMenuItem(ctx context.Context, item menu.Item, field menu.Field) error {
	return s.menu.Toggle(ctx, item, field)
}

// Subscribe returns a stream of notifications for a UI client.
func (s *Session) Subscribe(buffer int) (<-chan notify.Event, func()) {
	return s.events.Subscribe(buffer)
}

// Status returns a summary of the session.
func (s *Session) Status() Status {
	s.mu.RLock()
	lastError := s.lastError
	s.mu.RUnlock()

	return Status{
		Outlet:     s.cfg.Outlet.Name,
		Connection: s.policy.Status(),
		Feed:       s.feed.Stats(),
		Reconcile:  s.reconciler.Last(),
		Orders:     s.board.Len(),
		Listeners:  s.events.Subscribers(),
		LastError:  lastError,
	}
}

// onStateChange runs on the policy goroutine and must not block.
func (s *Session) onStateChange(c connection.StateChange) {
	if c.To != connection.StateConnected {
		return
	}
	// The first connection follows the startup seed; later ones may have
	// missed orders while the socket was down.
	if s.connectedOnce.Swap(true) && config.Enabled(s.cfg.Board.ReconcileOnReconnect, true) {
		s.reconciler.Trigger()
	}
}

// setError records err as the last error; nil clears it.
func (s *Session) setError(err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.mu.Lock()
	s.lastError = msg
	s.mu.Unlock()
}

// SocketEndpoint joins the socket base URL and the subscription path the
// API returned. An empty path yields an empty endpoint. A path that is
// already a websocket URL is used as is. The result always ends in "/".
func SocketEndpoint(base, path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}

	var u string
	if strings.HasPrefix(path, "ws://") || strings.HasPrefix(path, "wss://") {
		u = path
	} else {
		u = strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
	}

	if !strings.HasSuffix(u, "/") {
		u += "/"
	}
	return u
}
