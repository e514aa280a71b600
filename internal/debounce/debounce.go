// Package debounce provides a per-key trailing-edge debouncer.
package debounce

import (
	"sync"
	"time"
)

// Keyed runs the last function triggered for a key once the key has been
// quiet for the configured delay. Keys are independent.
type Keyed struct {
	delay time.Duration

	mu      sync.Mutex
	pending map[string]*entry
	seq     uint64
	stopped bool

	running sync.WaitGroup
}

type entry struct {
	timer *time.Timer
	fn    func()
	seq   uint64
}

// New creates a debouncer with the given quiet period.
func New(delay time.Duration) *Keyed {
	return &Keyed{
		delay:   delay,
		pending: make(map[string]*entry),
	}
}

// Trigger schedules fn for key, replacing and restarting any pending call
// for the same key. It is a no-op after Stop.
func (k *Keyed) Trigger(key string, fn func()) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.stopped {
		return
	}
	if e, ok := k.pending[key]; ok {
		e.timer.Stop()
	}

	k.seq++
	seq := k.seq
	e := &entry{fn: fn, seq: seq}
	e.timer = time.AfterFunc(k.delay, func() { k.fire(key, seq) })
	k.pending[key] = e
}

// Cancel drops the pending call for key. Returns true if one was pending.
func (k *Keyed) Cancel(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.pending[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(k.pending, key)
	return true
}

// Pending returns the number of keys with a scheduled call.
func (k *Keyed) Pending() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.pending)
}

// Flush runs every pending call now, on the calling goroutine.
func (k *Keyed) Flush() {
	k.mu.Lock()
	fns := make([]func(), 0, len(k.pending))
	for key, e := range k.pending {
		e.timer.Stop()
		delete(k.pending, key)
		fns = append(fns, e.fn)
	}
	k.running.Add(len(fns))
	k.mu.Unlock()

	for _, fn := range fns {
		k.run(fn)
	}
}

// Stop drops pending calls, rejects new ones and waits for calls already
// running.
func (k *Keyed) Stop() {
	k.mu.Lock()
	k.stopped = true
	for key, e := range k.pending {
		e.timer.Stop()
		delete(k.pending, key)
	}
	k.mu.Unlock()

	k.running.Wait()
}

func (k *Keyed) fire(key string, seq uint64) {
	k.mu.Lock()
	e, ok := k.pending[key]
	if !ok || e.seq != seq {
		// Replaced or cancelled after the timer fired.
		k.mu.Unlock()
		return
	}
	delete(k.pending, key)
	k.running.Add(1)
	k.mu.Unlock()

	k.run(e.fn)
}

func (k *Keyed) run(fn func()) {
	defer k.running.Done()
	fn()
}
