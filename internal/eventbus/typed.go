// Package eventbus fans scheduler events out to independent consumers such as
// the metrics collector and the history recorder.
package eventbus

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 8

type subscriber[T any] struct {
	name    string
	ch      chan T
	dropped atomic.Uint64
}

// Stats describes one subscription.
type Stats struct {
	Name    string
	Pending int
	Dropped uint64
}

// TypedBus delivers values of type T to named subscribers. A slow subscriber
// loses events instead of blocking the publisher.
type TypedBus[T any] struct {
	mu     sync.RWMutex
	subs   []*subscriber[T]
	closed bool
	buffer int
}

// Option configures a TypedBus.
type Option func(*busOptions)

type busOptions struct{ buffer int }

// WithBuffer sets the per-subscriber channel capacity.
func WithBuffer(n int) Option {
	return func(o *busOptions) {
		if n > 0 {
			o.buffer = n
		}
	}
}

// NewTyped creates a new TypedBus.
func NewTyped[T any](opts ...Option) *TypedBus[T] {
	o := busOptions{buffer: DefaultBuffer}
	for _, fn := range opts {
		fn(&o)
	}
	return &TypedBus[T]{buffer: o.buffer}
}

// Publish offers e to every subscriber without blocking.
func (b *TypedBus[T]) Publish(e T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, s := range b.subs {
		select {
		case s.ch <- e:
		default:
			s.dropped.Add(1)
		}
	}
}

// Dropped returns the deliveries skipped across all subscribers.
func (b *TypedBus[T]) Dropped() uint64 {
	var n uint64
	for _, s := range b.Stats() {
		n += s.Dropped
	}
	return n
}

// Stats reports every live subscription in subscription order.
func (b *TypedBus[T]) Stats() []Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Stats, 0, len(b.subs))
	for _, s := range b.subs {
		out = append(out, Stats{Name: s.name, Pending: len(s.ch), Dropped: s.dropped.Load()})
	}
	return out
}

// Subscribers returns the number of live subscriptions.
func (b *TypedBus[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Subscribe registers a subscriber under name and returns its channel. On a
// closed bus the channel is returned closed.
func (b *TypedBus[T]) Subscribe(name string) <-chan T {
	s := &subscriber[T]{name: name, ch: make(chan T, b.buffer)}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		return s.ch
	}
	b.subs = append(b.subs, s)
	return s.ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *TypedBus[T]) Unsubscribe(sub <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.ch == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(s.ch)
			return
		}
	}
}

// Close closes the bus and all subscriber channels.
func (b *TypedBus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, s := range b.subs {
		close(s.ch)
	}
	b.subs = nil
}
