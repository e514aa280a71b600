package feed

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Pop once the queue is closed and empty.
var ErrQueueClosed = errors.New("queue closed")

// Queue is an unbounded FIFO ring. Push never blocks, so the socket read loop
// is never held up by board or notification work. The ring doubles when full
// and halves again once a burst has drained, never below its initial size.
type Queue[T any] struct {
	mu      sync.Mutex
	ring    []T
	head    int
	count   int
	minSize int

	ready  chan struct{} // one pending wake-up for a waiting Pop
	closed chan struct{}
	done   bool

	pushed int64
	popped int64
	peak   int
	grows  int
	shrink int
}

// QueueStats is a point-in-time view of a Queue.
type QueueStats struct {
	Count       int   `json:"count"`
	Capacity    int   `json:"capacity"`
	Peak        int   `json:"peak"`
	TotalPushed int64 `json:"total_pushed"`
	TotalPopped int64 `json:"total_popped"`
	Grows       int   `json:"grows"`
	Shrinks     int   `json:"shrinks"`
}

// NewQueue creates a queue whose ring starts at size and never shrinks below it.
func NewQueue[T any](size int) *Queue[T] {
	size = max(size, 1)
	return &Queue[T]{
		ring:    make([]T, size),
		minSize: size,
		ready:   make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
}

// Push appends an item. Returns false if the queue is closed.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	if q.done {
		q.mu.Unlock()
		return false
	}
	if q.count == len(q.ring) {
		q.resize(len(q.ring) * 2)
		q.grows++
	}
	q.ring[(q.head+q.count)%len(q.ring)] = item
	q.count++
	q.pushed++
	q.peak = max(q.peak, q.count)
	q.mu.Unlock()

	q.wake()
	return true
}

// Pop removes the oldest item, waiting until one is available. Items queued
// before Close are still returned; after that Pop returns ErrQueueClosed.
// It returns ctx.Err() if ctx is done first.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if q.count > 0 {
			item := q.popLocked()
			more := q.count > 0
			q.mu.Unlock()
			if more {
				q.wake()
			}
			return item, nil
		}
		done := q.done
		q.mu.Unlock()

		var zero T
		if done {
			return zero, ErrQueueClosed
		}

		select {
		case <-q.ready:
		case <-q.closed:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// TryPop removes the oldest item without waiting.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.popLocked(), true
}

// Close stops accepting items and releases waiting readers. It is safe to
// call more than once.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.done {
		q.done = true
		close(q.closed)
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Stats returns queue statistics.
func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Count:       q.count,
		Capacity:    len(q.ring),
		Peak:        q.peak,
		TotalPushed: q.pushed,
		TotalPopped: q.popped,
		Grows:       q.grows,
		Shrinks:     q.shrink,
	}
}

func (q *Queue[T]) wake() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *Queue[T]) popLocked() T {
	var zero T
	item := q.ring[q.head]
	q.ring[q.head] = zero
	q.head = (q.head + 1) % len(q.ring)
	q.count--
	q.popped++

	if half := len(q.ring) / 2; half >= q.minSize && q.count <= half/2 {
		q.resize(half)
		q.shrink++
	}
	return item
}

// resize moves the queued items to the front of a ring of the given size.
func (q *Queue[T]) resize(size int) {
	ring := make([]T, size)
	for i := 0; i < q.count; i++ {
		ring[i] = q.ring[(q.head+i)%len(q.ring)]
	}
	q.ring = ring
	q.head = 0
}
