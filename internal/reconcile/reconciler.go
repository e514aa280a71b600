package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tacoza/seller-live/internal/metrics"
	"github.com/tacoza/seller-live/internal/model"
)

// OrderSource lists orders for a day. *api.Client implements it.
type OrderSource interface {
	GetOrdersByDate(ctx context.Context, date time.Time) ([]model.Order, error)
}

// Seeder adds missing orders to the board. *board.Store implements it.
type Seeder interface {
	Seed(orders []model.Order) int
}

// Config holds reconciler configuration.
type Config struct {
	Interval time.Duration  // Periodic run interval; 0 disables the ticker
	Timeout  time.Duration  // Per-run request timeout (default: 10s)
	Location *time.Location // Zone used to decide "today" (default: local)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 5 * time.Minute,
		Timeout:  10 * time.Second,
		Location: time.Local,
	}
}

// Result describes the last run.
type Result struct {
	At      time.Time `json:"at"`
	Fetched int       `json:"fetched"`
	Added   int       `json:"added"`
	Err     string    `json:"error,omitempty"`
}

// Reconciler periodically seeds the board from the orders-by-date endpoint.
type Reconciler struct {
	cfg     Config
	source  OrderSource
	board   Seeder
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	trigger chan struct{}

	runMu sync.Mutex // Serializes runs

	mu   sync.RWMutex
	last Result

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Reconciler.
func New(cfg Config, source OrderSource, b Seeder, m *metrics.Metrics, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}

	return &Reconciler{
		cfg:     cfg,
		source:  source,
		board:   b,
		metrics: m,
		logger:  logger.With("component", "reconcile"),
		now:     time.Now,
		trigger: make(chan struct{}, 1),
	}
}

// Start begins the background loop.
func (r *Reconciler) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.run()

	r.logger.Info("reconciler started", "interval", r.cfg.Interval)
	return nil
}

// Stop gracefully shuts down the reconciler.
func (r *Reconciler) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("reconciler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger requests a run as soon as possible. Requests made while one is
// already pending are coalesced. It never blocks.
func (r *Reconciler) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Last returns the result of the most recent run.
func (r *Reconciler) Last() Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

func (r *Reconciler) run() {
	defer r.wg.Done()

	var tick <-chan time.Time
	if r.cfg.Interval > 0 {
		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-tick:
		case <-r.trigger:
		}

		if _, err := r.RunOnce(r.ctx); err != nil && r.ctx.Err() == nil {
			r.logger.Warn("reconcile failed", "error", err)
		}
	}
}

// RunOnce fetches today's orders and seeds the board with the missing ones.
// Returns the number of orders added.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	start := r.now()
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	orders, err := r.source.GetOrdersByDate(ctx, start.In(r.cfg.Location))
	if err != nil {
		r.setLast(Result{At: start, Err: err.Error()})
		return 0, fmt.Errorf("fetch orders: %w", err)
	}

	added := r.board.Seed(orders)
	r.metrics.RecordSeeded(added)
	r.setLast(Result{At: start, Fetched: len(orders), Added: added})

	r.logger.Info("reconcile complete",
		"fetched", len(orders),
		"added", added,
		"duration", r.now().Sub(start),
	)
	return added, nil
}

func (r *Reconciler) setLast(res Result) {
	r.mu.Lock()
	r.last = res
	r.mu.Unlock()
}
