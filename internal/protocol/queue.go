package protocol

import "sync"

// Queue is an unbounded FIFO mailbox. Push never blocks; a pump goroutine
// feeds Out in push order.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool

	signal  chan struct{}
	out     chan T
	done    chan struct{}
	discard sync.Once
}

// NewQueue returns a running queue.
func NewQueue[T any]() *Queue[T] {
	q := &Queue[T]{
		signal: make(chan struct{}, 1),
		out:    make(chan T),
		done:   make(chan struct{}),
	}
	go q.pump()
	return q
}

// Push appends v. It reports false if the queue is closed.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.notify()
	return true
}

// Out returns the receive side. It is closed once the queue is closed and
// drained, or discarded.
func (q *Queue[T]) Out() <-chan T { return q.out }

// Len returns the number of items not yet handed to Out.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting items. Items already pushed are still delivered
// before Out is closed.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.notify()
}

// Discard stops accepting items and drops the ones not yet delivered. Out
// is closed promptly even if nobody is reading it.
func (q *Queue[T]) Discard() {
	q.mu.Lock()
	q.closed = true
	q.items = nil
	q.mu.Unlock()
	q.discard.Do(func() { close(q.done) })
}

func (q *Queue[T]) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *Queue[T]) pump() {
	defer close(q.out)
	for {
		q.mu.Lock()
		for len(q.items) == 0 {
			if q.closed {
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
			select {
			case <-q.signal:
			case <-q.done:
				return
			}
			q.mu.Lock()
		}
		v := q.items[0]
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
		q.mu.Unlock()

		select {
		case q.out <- v:
		case <-q.done:
			return
		}
	}
}
