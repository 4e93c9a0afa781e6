package pipeline

import (
	"sync"
	"time"
)

// Queue is a FIFO handoff between stages. A capacity of zero means unbounded.
// Every item taken with Get or TryGet must be acknowledged with Done so that
// Join can report when the consumer has caught up.
type Queue[T any] struct {
	mu         sync.Mutex
	idle       *sync.Cond
	items      []T
	capacity   int
	unfinished int
	avail      chan struct{}
	space      chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue[T any](capacity int) *Queue[T] {
	q := &Queue[T]{
		capacity: capacity,
		avail:    make(chan struct{}, 1),
		space:    make(chan struct{}, 1),
	}
	q.idle = sync.NewCond(&q.mu)
	return q
}

// Put appends v, blocking while the queue is full. It returns false if quit
// closes before there is room.
func (q *Queue[T]) Put(v T, quit <-chan struct{}) bool {
	for {
		q.mu.Lock()
		if q.capacity <= 0 || len(q.items) < q.capacity {
			q.items = append(q.items, v)
			q.unfinished++
			q.mu.Unlock()
			signal(q.avail)
			return true
		}
		q.mu.Unlock()

		select {
		case <-q.space:
		case <-quit:
			return false
		}
	}
}

// TryGet removes the head without blocking.
func (q *Queue[T]) TryGet() (T, bool) {
	var zero T
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	remaining := len(q.items)
	q.mu.Unlock()

	signal(q.space)
	if remaining > 0 {
		signal(q.avail)
	}
	return v, true
}

// Get removes the head, waiting up to timeout for one to arrive.
func (q *Queue[T]) Get(timeout time.Duration) (T, bool) {
	if v, ok := q.TryGet(); ok {
		return v, true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-q.avail:
			if v, ok := q.TryGet(); ok {
				return v, true
			}
		case <-timer.C:
			return q.TryGet()
		}
	}
}

// Done marks one previously taken item as processed.
func (q *Queue[T]) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.unfinished > 0 {
		q.unfinished--
	}
	if q.unfinished == 0 {
		q.idle.Broadcast()
	}
}

// Join blocks until every item put so far has been marked done.
func (q *Queue[T]) Join() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.unfinished > 0 {
		q.idle.Wait()
	}
}

// Len reports the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Reset drops queued items and forgets unfinished work.
func (q *Queue[T]) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	q.unfinished = 0
	q.idle.Broadcast()
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
