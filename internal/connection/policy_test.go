package connection

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var errDial = errors.New("dial refused")

// fakeTransport hands out fakeChannels and tracks how many are open at once.
type fakeTransport struct {
	mu        sync.Mutex
	dials     []string
	failFirst int // Fail this many dials before succeeding
	failAll   bool
	channels  []*fakeChannel
	open      int
	maxOpen   int
}

func (f *fakeTransport) Open(ctx context.Context, url string, h Handler) (Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.dials = append(f.dials, url)
	if f.failAll || len(f.dials) <= f.failFirst {
		return nil, errDial
	}

	c := &fakeChannel{t: f, url: url, h: h}
	f.channels = append(f.channels, c)
	f.open++
	if f.open > f.maxOpen {
		f.maxOpen = f.open
	}
	h.OnOpen()
	return c, nil
}

func (f *fakeTransport) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dials)
}

func (f *fakeTransport) last() *fakeChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.channels) == 0 {
		return nil
	}
	return f.channels[len(f.channels)-1]
}

func (f *fakeTransport) stats() (open, maxOpen int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open, f.maxOpen
}

type fakeChannel struct {
	t      *fakeTransport
	url    string
	h      Handler
	mu     sync.Mutex
	closed bool
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.t.mu.Lock()
	c.t.open--
	c.t.mu.Unlock()
	return nil
}

// drop simulates the server closing the connection.
func (c *fakeChannel) drop(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.t.mu.Lock()
	c.t.open--
	c.t.mu.Unlock()

	c.h.OnClose(err)
}

func (c *fakeChannel) send(data string) {
	c.h.OnMessage([]byte(data))
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// changeLog collects state changes from the observer.
type changeLog struct {
	ch chan StateChange
}

func newChangeLog() *changeLog {
	return &changeLog{ch: make(chan StateChange, 1024)}
}

func (l *changeLog) observe(c StateChange) {
	select {
	case l.ch <- c:
	default:
	}
}

// waitFor returns the next change into state to, failing after timeout.
func (l *changeLog) waitFor(t *testing.T, to State) StateChange {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case c := <-l.ch:
			if c.To == to {
				return c
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", to)
		}
	}
}

func newTestPolicy(tr Transport, h Handler, base, maxDelay time.Duration) (*Policy, *changeLog) {
	p := NewPolicy(PolicyConfig{BaseDelay: base, MaxDelay: maxDelay}, tr, h, nil, nil)
	log := newChangeLog()
	p.OnStateChange(log.observe)
	return p, log
}

func TestPolicy_ConnectsAndDelivers(t *testing.T) {
	tr := &fakeTransport{}
	rec := newRecorder()
	p, log := newTestPolicy(tr, rec, time.Millisecond, 10*time.Millisecond)

	p.SetEndpoint("ws://shop/sub/abc/")
	p.Start(context.Background())
	defer p.Stop()

	log.waitFor(t, StateConnected)

	st := p.Status()
	if st.State != StateConnected || st.Endpoint != "ws://shop/sub/abc/" || st.Attempt != 0 {
		t.Errorf("status = %+v", st)
	}

	tr.last().send("one")
	tr.last().send("two")
	if got := <-rec.msgCh; got != "one" {
		t.Errorf("first message = %q", got)
	}
	if got := <-rec.msgCh; got != "two" {
		t.Errorf("second message = %q", got)
	}

	rec.mu.Lock()
	opened := rec.opened
	rec.mu.Unlock()
	if opened != 1 {
		t.Errorf("handler OnOpen called %d times, want 1", opened)
	}
}

func TestPolicy_EmptyEndpointNeverConnects(t *testing.T) {
	tr := &fakeTransport{}
	p, _ := newTestPolicy(tr, nil, time.Millisecond, 10*time.Millisecond)

	p.SetEndpoint("")
	p.Start(context.Background())
	time.Sleep(30 * time.Millisecond)

	if n := tr.dialCount(); n != 0 {
		t.Errorf("dialed %d times with empty endpoint", n)
	}
	if st := p.Status(); st.State != StateIdle {
		t.Errorf("state = %s, want idle", st.State)
	}

	p.Stop()
	if st := p.Status(); st.State != StateStopped {
		t.Errorf("state after Stop = %s, want stopped", st.State)
	}
}

func TestPolicy_BackoffSequence(t *testing.T) {
	tr := &fakeTransport{failAll: true}
	p, log := newTestPolicy(tr, nil, time.Millisecond, 8*time.Millisecond)

	p.SetEndpoint("ws://shop/sub/")
	p.Start(context.Background())
	defer p.Stop()

	want := []time.Duration{
		1 * time.Millisecond,
		2 * time.Millisecond,
		4 * time.Millisecond,
		8 * time.Millisecond,
		8 * time.Millisecond,
		8 * time.Millisecond,
	}
	for i, w := range want {
		c := log.waitFor(t, StateBackoff)
		if c.Delay != w {
			t.Errorf("backoff %d: delay = %v, want %v", i, c.Delay, w)
		}
		if c.Attempt != i {
			t.Errorf("backoff %d: attempt = %d, want %d", i, c.Attempt, i)
		}
		if !errors.Is(c.Err, errDial) {
			t.Errorf("backoff %d: cause = %v, want errDial", i, c.Err)
		}
	}
}

func TestPolicy_OpenResetsAttempt(t *testing.T) {
	tr := &fakeTransport{failFirst: 3}
	rec := newRecorder()
	p, log := newTestPolicy(tr, rec, time.Millisecond, 50*time.Millisecond)

	p.SetEndpoint("ws://shop/sub/")
	p.Start(context.Background())
	defer p.Stop()

	for i := 0; i < 3; i++ {
		log.waitFor(t, StateBackoff)
	}
	c := log.waitFor(t, StateConnected)
	if c.Attempt != 0 {
		t.Errorf("attempt after open = %d, want 0", c.Attempt)
	}

	// An unexpected close after a successful open starts again at the base delay.
	tr.last().drop(errors.New("server went away"))

	c = log.waitFor(t, StateBackoff)
	if c.Delay != time.Millisecond {
		t.Errorf("delay after reset = %v, want 1ms", c.Delay)
	}
	if c.From != StateConnected {
		t.Errorf("backoff entered from %s, want connected", c.From)
	}

	select {
	case err := <-rec.closeCh:
		if err == nil || err.Error() != "server went away" {
			t.Errorf("handler OnClose err = %v", err)
		}
	case <-time.After(time.Second):
		t.Error("handler OnClose not called")
	}

	log.waitFor(t, StateConnected)
}

func TestPolicy_StopTearsDownWithoutRetry(t *testing.T) {
	tr := &fakeTransport{}
	rec := newRecorder()
	p, log := newTestPolicy(tr, rec, time.Millisecond, 10*time.Millisecond)

	p.SetEndpoint("ws://shop/sub/")
	p.Start(context.Background())
	log.waitFor(t, StateConnected)

	ch := tr.last()
	p.Stop()

	if !ch.isClosed() {
		t.Error("channel not closed by Stop")
	}
	if st := p.Status(); st.State != StateStopped {
		t.Errorf("state = %s, want stopped", st.State)
	}

	dials := tr.dialCount()
	time.Sleep(30 * time.Millisecond)
	if n := tr.dialCount(); n != dials {
		t.Errorf("dialed %d more times after Stop", n-dials)
	}
	if n := rec.closes(); n != 0 {
		t.Errorf("handler OnClose called %d times for teardown", n)
	}

	// Stop is idempotent and SetEndpoint after Stop does not block.
	p.Stop()
	p.SetEndpoint("ws://other/")
}

func TestPolicy_StopCancelsBackoffTimer(t *testing.T) {
	tr := &fakeTransport{failAll: true}
	p, log := newTestPolicy(tr, nil, time.Hour, time.Hour)

	p.SetEndpoint("ws://shop/sub/")
	p.Start(context.Background())
	log.waitFor(t, StateBackoff)

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on the backoff timer")
	}
	if n := tr.dialCount(); n != 1 {
		t.Errorf("dials = %d, want 1", n)
	}
}

func TestPolicy_ContextCancelStops(t *testing.T) {
	tr := &fakeTransport{}
	p, log := newTestPolicy(tr, nil, time.Millisecond, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	p.SetEndpoint("ws://shop/sub/")
	p.Start(ctx)
	log.waitFor(t, StateConnected)

	cancel()

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("policy did not stop on context cancel")
	}
	if !tr.last().isClosed() {
		t.Error("channel left open")
	}
}

func TestPolicy_SetEndpointSwitches(t *testing.T) {
	tr := &fakeTransport{}
	p, log := newTestPolicy(tr, nil, time.Millisecond, 10*time.Millisecond)

	p.SetEndpoint("ws://shop/sub/a/")
	p.Start(context.Background())
	defer p.Stop()
	log.waitFor(t, StateConnected)
	first := tr.last()

	p.SetEndpoint("ws://shop/sub/b/")
	log.waitFor(t, StateConnected)
	second := tr.last()

	if !first.isClosed() {
		t.Error("old channel not closed")
	}
	if second.url != "ws://shop/sub/b/" {
		t.Errorf("new channel url = %s", second.url)
	}

	// A late close from the old channel must be ignored.
	first.h.OnClose(errors.New("late"))
	time.Sleep(20 * time.Millisecond)
	if st := p.Status(); st.State != StateConnected {
		t.Errorf("state = %s after stale close, want connected", st.State)
	}

	// Same endpoint again is a no-op.
	dials := tr.dialCount()
	p.SetEndpoint("ws://shop/sub/b/")
	time.Sleep(20 * time.Millisecond)
	if n := tr.dialCount(); n != dials {
		t.Errorf("re-setting the same endpoint dialed again")
	}

	// Clearing the endpoint closes the channel and goes idle.
	p.SetEndpoint("")
	log.waitFor(t, StateIdle)
	if !second.isClosed() {
		t.Error("channel not closed when endpoint cleared")
	}
}

func TestPolicy_StaleMessagesDropped(t *testing.T) {
	tr := &fakeTransport{}
	rec := newRecorder()
	p, log := newTestPolicy(tr, rec, time.Millisecond, 10*time.Millisecond)

	p.SetEndpoint("ws://a/")
	p.Start(context.Background())
	defer p.Stop()
	log.waitFor(t, StateConnected)
	old := tr.last()

	p.SetEndpoint("ws://b/")
	log.waitFor(t, StateConnected)

	old.send("from old channel")
	tr.last().send("from new channel")

	if got := <-rec.msgCh; got != "from new channel" {
		t.Errorf("got %q, want only the current channel's message", got)
	}
}

func TestPolicy_AtMostOneChannel(t *testing.T) {
	tr := &fakeTransport{}
	p, log := newTestPolicy(tr, nil, time.Millisecond, 2*time.Millisecond)

	p.SetEndpoint("ws://a/")
	p.Start(context.Background())

	for i := 0; i < 20; i++ {
		log.waitFor(t, StateConnected)
		if i%3 == 0 {
			p.SetEndpoint([]string{"ws://a/", "ws://b/"}[i%2])
			if i%2 == 0 {
				// Same endpoint: force a reconnect through a drop instead.
				tr.last().drop(errors.New("drop"))
			}
			continue
		}
		tr.last().drop(errors.New("drop"))
	}

	p.Stop()

	open, maxOpen := tr.stats()
	if maxOpen != 1 {
		t.Errorf("max simultaneously open channels = %d, want 1", maxOpen)
	}
	if open != 0 {
		t.Errorf("%d channels left open after Stop", open)
	}
}

func TestPolicy_WebSocketReconnect(t *testing.T) {
	var mu sync.Mutex
	connections := 0

	server := mockWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		mu.Lock()
		connections++
		n := connections
		mu.Unlock()

		if n == 1 {
			// First connection: send one frame then drop.
			conn.WriteMessage(websocket.TextMessage, []byte("first"))
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte("second"))
		drain(conn, r)
	})
	defer server.Close()

	rec := newRecorder()
	tr := NewWebSocketTransport(testClientConfig(), nil)
	p, log := newTestPolicy(tr, rec, 5*time.Millisecond, 20*time.Millisecond)

	p.SetEndpoint(wsURL(server))
	p.Start(context.Background())
	defer p.Stop()

	var got []string
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case m := <-rec.msgCh:
			got = append(got, m)
		case <-timeout:
			t.Fatalf("timeout, messages so far: %v", got)
		}
	}
	if got[0] != "first" || got[1] != "second" {
		t.Errorf("messages = %v, want [first second]", got)
	}

	c := log.waitFor(t, StateBackoff)
	if c.Delay != 5*time.Millisecond {
		t.Errorf("first reconnect delay = %v, want 5ms", c.Delay)
	}

	mu.Lock()
	n := connections
	mu.Unlock()
	if n != 2 {
		t.Errorf("server saw %d connections, want 2", n)
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateIdle:       "idle",
		StateConnecting: "connecting",
		StateConnected:  "connected",
		StateBackoff:    "backoff",
		StateStopped:    "stopped",
		State(42):       "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
