// Package event is a minimal typed publish/subscribe primitive.
package event

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/agentuity/go-terminals/logger"
)

// Subscription is returned by Subscribe. Close removes the subscriber.
type Subscription interface {
	Close() error
}

type subscription[T any] struct {
	id     uint64
	signal *Signal[T]
}

func (s *subscription[T]) Close() error {
	s.signal.unsubscribe(s.id)
	return nil
}

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

// Signal delivers values of type T to its subscribers. The zero value is
// ready to use.
//
// Publish calls subscribers synchronously, in subscription order, without
// holding the internal lock, so a subscriber may publish, subscribe or
// unsubscribe from inside its callback. A panicking subscriber is logged
// and does not prevent delivery to the others.
type Signal[T any] struct {
	mu     sync.Mutex
	subs   []subscriber[T]
	nextID uint64
	closed bool
	logger logger.Logger
}

// New returns a Signal that logs recovered subscriber panics to log.
func New[T any](log logger.Logger) *Signal[T] {
	return &Signal[T]{logger: log}
}

// Subscribe registers fn. Subscribing to a closed signal returns a
// subscription that never fires.
func (s *Signal[T]) Subscribe(fn func(T)) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	sub := &subscription[T]{id: s.nextID, signal: s}
	if !s.closed {
		s.subs = append(s.subs, subscriber[T]{id: s.nextID, fn: fn})
	}
	return sub
}

// Unsubscribe is equivalent to sub.Close().
func (s *Signal[T]) Unsubscribe(sub Subscription) {
	if sub != nil {
		sub.Close()
	}
}

func (s *Signal[T]) unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers v to every current subscriber.
func (s *Signal[T]) Publish(v T) {
	s.mu.Lock()
	if s.closed || len(s.subs) == 0 {
		s.mu.Unlock()
		return
	}
	subs := make([]subscriber[T], len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		s.deliver(sub, v)
	}
}

func (s *Signal[T]) deliver(sub subscriber[T], v T) {
	defer func() {
		if r := recover(); r != nil && s.logger != nil {
			s.logger.Error("subscriber %d panicked: %s\n%s", sub.id, fmt.Sprint(r), debug.Stack())
		}
	}()
	sub.fn(v)
}

// Len returns the number of subscribers.
func (s *Signal[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Close drops all subscribers; later publishes are no-ops.
func (s *Signal[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.subs = nil
}

// IsClosed reports whether Close was called.
func (s *Signal[T]) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
