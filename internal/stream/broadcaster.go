package stream

import (
	"context"
	"sync"
)

// Broadcaster fans out values from one source to N listeners. It carries
// both PCM frames and sync events.
type Broadcaster[T any] struct {
	buffer int

	mu        sync.RWMutex
	listeners map[*Listener[T]]struct{}
}

// Listener receives values from the broadcaster.
type Listener[T any] struct {
	C    chan T
	done chan struct{}
}

// Done is closed when the listener is unsubscribed.
func (l *Listener[T]) Done() <-chan struct{} {
	return l.done
}

// NewBroadcaster creates a broadcaster whose listeners buffer up to buffer
// values before dropping.
func NewBroadcaster[T any](buffer int) *Broadcaster[T] {
	return &Broadcaster[T]{
		buffer:    buffer,
		listeners: make(map[*Listener[T]]struct{}),
	}
}

// Subscribe registers a new listener.
func (b *Broadcaster[T]) Subscribe() *Listener[T] {
	l := &Listener[T]{
		C:    make(chan T, b.buffer),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()
	return l
}

// Unsubscribe removes a listener and signals it to stop. Repeated calls are
// ignored.
func (b *Broadcaster[T]) Unsubscribe(l *Listener[T]) {
	b.mu.Lock()
	_, ok := b.listeners[l]
	delete(b.listeners, l)
	b.mu.Unlock()
	if ok {
		close(l.done)
	}
}

// ListenerCount returns the number of active listeners.
func (b *Broadcaster[T]) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Publish delivers v to every listener. Slow listeners get v dropped rather
// than blocking the publisher.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for l := range b.listeners {
		select {
		case l.C <- v:
		default:
			// listener too slow, drop to keep broadcast moving
		}
	}
}

// Run publishes everything read from source until ctx is cancelled or
// source is closed.
func (b *Broadcaster[T]) Run(ctx context.Context, source <-chan T) {
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-source:
			if !ok {
				return
			}
			b.Publish(v)
		}
	}
}
