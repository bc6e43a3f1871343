package storage

import "sync"

// Subscription delivers values from a change feed. Delivery is latest-wins:
// a slow reader sees the most recent value rather than every intermediate one.
// C is closed once the subscription ends.
type Subscription[T any] struct {
	C <-chan T

	mu     sync.Mutex
	ch     chan T
	closed bool
	done   chan struct{}
	stop   func()
}

// NewSubscription creates a subscription; stop is called once on Close
func NewSubscription[T any](stop func()) *Subscription[T] {
	ch := make(chan T, 1)
	return &Subscription[T]{
		C:    ch,
		ch:   ch,
		done: make(chan struct{}),
		stop: stop,
	}
}

// Publish offers v to the reader, replacing any value it has not consumed yet
func (s *Subscription[T]) Publish(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- v:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- v
}

// Done is closed when the subscription ends
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Close ends the subscription. Safe to call more than once.
func (s *Subscription[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.ch)
	close(s.done)
	s.mu.Unlock()

	if s.stop != nil {
		s.stop()
	}
}
