package core

import (
	"sync"

	"golang.org/x/exp/maps"
)

// CancelFunc stops delivery to a subscriber. It is safe to call more
// than once.
type CancelFunc func()

// Feed fans a value out to a set of subscribers. Every publish delivers
// the full value to each subscriber; nothing is queued, so a subscriber
// always observes the freshest published state.
type Feed[T any] struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(T)
}

func NewFeed[T any]() *Feed[T] {
	return &Feed[T]{subs: make(map[int]func(T))}
}

// Subscribe registers fn and returns an idempotent cancellation handle.
// After the handle returns fn receives no further deliveries, though a
// delivery already in flight may still complete.
func (f *Feed[T]) Subscribe(fn func(T)) CancelFunc {
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = fn
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

// Publish delivers v to every current subscriber. Callbacks run on the
// caller's goroutine outside the feed lock.
func (f *Feed[T]) Publish(v T) {
	f.mu.RLock()
	fns := maps.Values(f.subs)
	f.mu.RUnlock()
	for _, fn := range fns {
		fn(v)
	}
}

// Len reports the number of live subscribers.
func (f *Feed[T]) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
