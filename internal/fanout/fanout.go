// Package fanout delivers published values to multiple subscribers
// asynchronously while preserving publication order per subscriber.
package fanout

import (
	"sync"
)

// Bus fans out values of type T to all subscribers. Each subscriber owns a
// dispatch goroutine draining an unbounded pending queue, so publishers never
// block and per-subscriber ordering matches publication order.
type Bus[T any] struct {
	mu     sync.Mutex
	subs   []*subscriber[T]
	closed bool
}

type subscriber[T any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []T
	closed  bool
	done    chan struct{}
}

// NewBus returns an empty bus.
func NewBus[T any]() *Bus[T] {
	return &Bus[T]{}
}

// Subscribe registers a callback invoked for every subsequently published
// value, in publication order, on the subscriber's own goroutine.
func (b *Bus[T]) Subscribe(fn func(T)) {
	s := &subscriber[T]{done: make(chan struct{})}
	s.cond = sync.NewCond(&s.mu)

	go s.run(fn)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		s.close()
		return
	}

	b.subs = append(b.subs, s)
}

// Publish delivers v to every subscriber.
func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	subs := b.subs
	b.mu.Unlock()

	for _, s := range subs {
		s.enqueue(v)
	}
}

// Close stops delivery after draining pending values and waits for all
// subscriber goroutines to finish.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.closed = true
	b.mu.Unlock()

	for _, s := range subs {
		s.close()
		<-s.done
	}
}

func (s *subscriber[T]) enqueue(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.pending = append(s.pending, v)
	s.cond.Signal()
}

func (s *subscriber[T]) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		s.cond.Signal()
	}
}

func (s *subscriber[T]) run(fn func(T)) {
	defer close(s.done)

	for {
		s.mu.Lock()

		for len(s.pending) == 0 && !s.closed {
			s.cond.Wait()
		}

		if len(s.pending) == 0 && s.closed {
			s.mu.Unlock()
			return
		}

		batch := s.pending
		s.pending = nil
		s.mu.Unlock()

		for _, v := range batch {
			fn(v)
		}
	}
}
