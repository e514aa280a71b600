package connection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tacoza/seller-live/internal/metrics"
)

// State is the reconnection state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateBackoff
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackoff:
		return "backoff"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a point-in-time view of the policy.
type Status struct {
	State     State         `json:"state"`
	Endpoint  string        `json:"endpoint,omitempty"`
	Attempt   int           `json:"attempt"`
	NextDelay time.Duration `json:"next_delay,omitempty"`
	LastError string        `json:"last_error,omitempty"`
	Since     time.Time     `json:"since"`
}

// StateChange is passed to the state observer.
type StateChange struct {
	From    State
	To      State
	Attempt int
	Delay   time.Duration // Set when entering StateBackoff
	Err     error         // Closure or dial error that caused the change
}

// Policy keeps one channel open to the current endpoint, reconnecting with
// exponential backoff after unexpected closures and failed dials.
type Policy struct {
	transport Transport
	handler   Handler
	backoff   Backoff
	metrics   *metrics.Metrics
	logger    *slog.Logger

	observer func(StateChange)

	events chan event
	done   chan struct{}

	stopOnce sync.Once
	started  bool
	stopped  bool

	mu     sync.RWMutex
	status Status
}

// NewPolicy creates a policy. handler receives frames from whichever channel
// is current, plus OnOpen/OnClose as channels come and go.
func NewPolicy(cfg PolicyConfig, transport Transport, handler Handler, m *metrics.Metrics, logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.Default()
	}
	if handler == nil {
		handler = HandlerFuncs{}
	}

	def := DefaultPolicyConfig()
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = max(def.MaxDelay, cfg.BaseDelay)
	}

	p := &Policy{
		transport: transport,
		handler:   handler,
		backoff:   Backoff{Base: cfg.BaseDelay, Max: cfg.MaxDelay},
		metrics:   m,
		logger:    logger.With("component", "policy"),
		events:    make(chan event, 16),
		done:      make(chan struct{}),
		status:    Status{State: StateIdle, Since: time.Now()},
	}

	if cfg.Endpoint != "" {
		p.events <- setEndpointEvent{url: cfg.Endpoint}
	}
	return p
}

// OnStateChange registers an observer. It must be set before Start and must
// not block; it runs on the policy goroutine.
func (p *Policy) OnStateChange(fn func(StateChange)) {
	p.observer = fn
}

// Start runs the policy until Stop is called or ctx is done.
func (p *Policy) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	go p.run(ctx)
}

// Stop tears the policy down: the backoff timer is cancelled, the channel
// closed and no reconnect is scheduled. It waits for the policy goroutine.
func (p *Policy) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		started := p.started
		p.stopped = true
		if !started {
			p.status.State = StateStopped
		}
		p.mu.Unlock()

		if !started {
			close(p.done)
			return
		}

		select {
		case p.events <- stopEvent{}:
		case <-p.done:
		}
	})
	<-p.done
}

// Done is closed once the policy has stopped.
func (p *Policy) Done() <-chan struct{} {
	return p.done
}

// SetEndpoint switches to url. The current channel is torn down without a
// retry and url is dialed with the attempt counter reset. An empty url leaves
// the policy idle. Setting the current endpoint again is a no-op.
func (p *Policy) SetEndpoint(url string) {
	select {
	case p.events <- setEndpointEvent{url: url}:
	case <-p.done:
	}
}

// Status returns the current status.
func (p *Policy) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Events processed by the policy goroutine.
type event interface{ isEvent() }

type (
	setEndpointEvent struct{ url string }
	stopEvent        struct{}
	openedEvent      struct {
		gen uint64
		ch  Channel
	}
	dialFailedEvent struct {
		gen uint64
		err error
	}
	closedEvent struct {
		gen uint64
		err error
	}
)

func (setEndpointEvent) isEvent() {}
func (stopEvent) isEvent()        {}
func (openedEvent) isEvent()      {}
func (dialFailedEvent) isEvent()  {}
func (closedEvent) isEvent()      {}

// loop is the state owned by the policy goroutine.
type loop struct {
	p   *Policy
	ctx context.Context

	state    State
	attempt  int
	endpoint string

	gen        uint64
	quit       chan struct{} // Closed when the current generation ends
	ch         Channel
	dialCancel context.CancelFunc
	dialDone   chan struct{}

	timer  *time.Timer
	timerC <-chan time.Time
}

func (p *Policy) run(ctx context.Context) {
	l := &loop{p: p, ctx: ctx, state: StateIdle}
	p.metrics.SetConnectionState(int(StateIdle))

	defer close(p.done)

	for {
		select {
		case <-ctx.Done():
			l.stop()
			return

		case ev := <-p.events:
			switch e := ev.(type) {
			case stopEvent:
				l.stop()
				return
			case setEndpointEvent:
				l.setEndpoint(e.url)
			case openedEvent:
				l.opened(e)
			case dialFailedEvent:
				l.dialFailed(e)
			case closedEvent:
				l.closed(e)
			}

		case <-l.timerC:
			l.timer, l.timerC = nil, nil
			l.attempt++
			l.connect()
		}
	}
}

func (l *loop) setEndpoint(url string) {
	if url == l.endpoint && l.state != StateIdle {
		return
	}

	l.release()
	l.endpoint = url
	l.attempt = 0

	if url == "" {
		l.p.logger.Info("no subscription endpoint, staying idle")
		l.transition(StateIdle, 0, nil)
		return
	}
	l.connect()
}

// connect starts a dial for a new generation.
func (l *loop) connect() {
	l.gen++
	gen := l.gen
	quit := make(chan struct{})
	dialDone := make(chan struct{})
	dctx, cancel := context.WithCancel(l.ctx)

	l.quit = quit
	l.dialCancel = cancel
	l.dialDone = dialDone
	l.transition(StateConnecting, 0, nil)

	p := l.p
	endpoint := l.endpoint
	h := &genHandler{p: p, gen: gen, quit: quit}

	go func() {
		defer close(dialDone)

		ch, err := p.transport.Open(dctx, endpoint, h)
		if err != nil {
			p.post(dialFailedEvent{gen: gen, err: err}, quit)
			return
		}
		if !p.post(openedEvent{gen: gen, ch: ch}, quit) {
			// Generation ended while dialing.
			ch.Close()
		}
	}()
}

func (l *loop) opened(e openedEvent) {
	if e.gen != l.gen || l.state != StateConnecting {
		e.ch.Close()
		return
	}

	l.ch = e.ch
	l.attempt = 0
	l.transition(StateConnected, 0, nil)
	l.p.logger.Info("subscription connected", "endpoint", l.endpoint)
	l.p.handler.OnOpen()
}

func (l *loop) dialFailed(e dialFailedEvent) {
	if e.gen != l.gen || l.state != StateConnecting {
		return
	}

	l.p.logger.Warn("subscription dial failed",
		"endpoint", l.endpoint,
		"attempt", l.attempt,
		"error", e.err,
	)
	l.release()
	l.scheduleRetry(e.err)
}

func (l *loop) closed(e closedEvent) {
	if e.gen != l.gen {
		return
	}
	if l.state != StateConnected && l.state != StateConnecting {
		return
	}

	l.p.logger.Warn("subscription disconnected",
		"endpoint", l.endpoint,
		"error", e.err,
	)
	wasConnected := l.state == StateConnected
	l.release()
	if wasConnected {
		l.p.handler.OnClose(e.err)
	}
	l.scheduleRetry(e.err)
}

func (l *loop) scheduleRetry(cause error) {
	delay := l.p.backoff.Delay(l.attempt)
	l.timer = time.NewTimer(delay)
	l.timerC = l.timer.C

	l.p.metrics.RecordReconnect(delay)
	l.p.logger.Info("reconnect scheduled",
		"attempt", l.attempt,
		"delay", delay,
	)
	l.transition(StateBackoff, delay, cause)
}

func (l *loop) stop() {
	l.release()
	l.transition(StateStopped, 0, nil)
	l.p.logger.Info("subscription stopped")
}

// release ends the current generation: pending callbacks are dropped, an
// in-flight dial is cancelled and waited for, the channel is closed and the
// backoff timer stopped.
func (l *loop) release() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer, l.timerC = nil, nil
	}
	if l.quit != nil {
		close(l.quit)
		l.quit = nil
	}
	if l.dialCancel != nil {
		l.dialCancel()
		l.dialCancel = nil
	}
	if l.dialDone != nil {
		<-l.dialDone
		l.dialDone = nil
	}
	if l.ch != nil {
		if err := l.ch.Close(); err != nil {
			l.p.logger.Debug("close channel", "error", err)
		}
		l.ch = nil
	}
}

func (l *loop) transition(to State, delay time.Duration, cause error) {
	from := l.state
	l.state = to

	l.p.setStatus(func(s *Status) {
		if s.State != to {
			s.Since = time.Now()
		}
		s.State = to
		s.Endpoint = l.endpoint
		s.Attempt = l.attempt
		s.NextDelay = delay
		if cause != nil {
			s.LastError = cause.Error()
		}
	})
	l.p.metrics.SetConnectionState(int(to))

	if l.p.observer != nil && (from != to || to == StateBackoff) {
		l.p.observer(StateChange{
			From:    from,
			To:      to,
			Attempt: l.attempt,
			Delay:   delay,
			Err:     cause,
		})
	}
}

func (p *Policy) setStatus(fn func(*Status)) {
	p.mu.Lock()
	fn(&p.status)
	p.mu.Unlock()
}

// post delivers ev to the policy goroutine unless the generation ended or
// the policy stopped.
func (p *Policy) post(ev event, quit <-chan struct{}) bool {
	select {
	case <-quit:
		return false
	default:
	}

	select {
	case p.events <- ev:
		return true
	case <-quit:
		return false
	case <-p.done:
		return false
	}
}

// genHandler routes callbacks of one channel generation.
type genHandler struct {
	p    *Policy
	gen  uint64
	quit <-chan struct{}
}

func (h *genHandler) OnOpen() {}

func (h *genHandler) OnMessage(data []byte) {
	select {
	case <-h.quit:
		return
	default:
	}
	h.p.handler.OnMessage(data)
}

func (h *genHandler) OnClose(err error) {
	h.p.post(closedEvent{gen: h.gen, err: err}, h.quit)
}
