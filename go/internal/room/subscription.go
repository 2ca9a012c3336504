package room

import (
	"context"
	"sync"
)

// Subscription is a stream of values from a room. C is closed when the
// subscription ends: on Close, when the subscribing context is done, or when
// the room shuts down.
type Subscription[T any] struct {
	C <-chan T

	id     uint64
	actor  *Actor
	once   sync.Once
	closed chan struct{}
}

// Close ends the subscription. It is safe to call more than once.
func (s *Subscription[T]) Close() {
	s.once.Do(func() {
		close(s.closed)
	})
}

// watch unsubscribes once the subscriber goes away.
func (s *Subscription[T]) watch(ctx context.Context, remove func(id uint64)) {
	select {
	case <-ctx.Done():
		s.Close()
	case <-s.closed:
	case <-s.actor.done:
		return
	}
	_ = s.actor.do(context.Background(), func() error {
		remove(s.id)
		return nil
	})
}

// subscriber is the actor-side half of a subscription.
type subscriber[T any] struct {
	ch      chan T
	dropped uint64
}

func newSubscriber[T any](buffer int) *subscriber[T] {
	return &subscriber[T]{ch: make(chan T, buffer)}
}

// deliver never blocks. When the buffer is full the oldest value is dropped;
// for snapshots the newest one supersedes it anyway.
func (s *subscriber[T]) deliver(v T) {
	select {
	case s.ch <- v:
		return
	default:
	}
	select {
	case <-s.ch:
		s.dropped++
	default:
	}
	select {
	case s.ch <- v:
	default:
		s.dropped++
	}
}
