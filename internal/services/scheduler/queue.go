package scheduler

import "sync"

// queue is an unbounded FIFO whose push never blocks, so it is safe to call
// while holding the command lock. wake has one slot and is signalled on
// every push; consumers drain the whole queue per wake-up.
type queue[T any] struct {
	mu    sync.Mutex
	items []T
	wake  chan struct{}
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{wake: make(chan struct{}, 1)}
}

func (q *queue[T]) push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.signal()
}

// replace drops queued items matching drop and appends item.
func (q *queue[T]) replace(item T, drop func(T) bool) {
	q.mu.Lock()
	kept := q.items[:0]
	for _, it := range q.items {
		if !drop(it) {
			kept = append(kept, it)
		}
	}
	var zero T
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = zero
	}
	q.items = append(kept, item)
	q.mu.Unlock()
	q.signal()
}

func (q *queue[T]) pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true
}

func (q *queue[T]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *queue[T]) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
