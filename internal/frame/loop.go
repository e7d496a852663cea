package frame

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStopped is returned by Do once the loop has exited.
var ErrStopped = errors.New("frame loop stopped")

// Loop is a cooperative event loop. Frame callbacks and posted tasks all run
// on the goroutine executing Run, one at a time, so state touched only from
// that goroutine needs no locking.
type Loop struct {
	interval time.Duration

	mu sync.Mutex
	q  queue

	tasks   chan func()
	stopped chan struct{}
}

// NewLoop creates a loop that refreshes rate times per second.
func NewLoop(rate int) *Loop {
	if rate <= 0 {
		rate = 60
	}
	return &Loop{
		interval: time.Second / time.Duration(rate),
		tasks:    make(chan func(), 16),
		stopped:  make(chan struct{}),
	}
}

// Interval returns the nominal time between refreshes.
func (l *Loop) Interval() time.Duration {
	return l.interval
}

// Schedule queues cb for the next refresh tick.
func (l *Loop) Schedule(cb func()) Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.q.add(cb)
}

// Cancel withdraws a pending callback. Called from the loop goroutine it
// guarantees cb will not run, even if its tick is already being processed.
func (l *Loop) Cancel(h Handle) {
	l.mu.Lock()
	l.q.remove(h)
	l.mu.Unlock()
}

// Pending returns the number of callbacks waiting for a tick.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.q.pending()
}

// Do runs fn on the loop goroutine and waits for it to return. ctx bounds
// only the wait for a free task slot. It must not be called from the loop
// goroutine itself.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	task := func() {
		defer close(done)
		fn()
	}
	select {
	case l.tasks <- task:
	case <-l.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	// Once queued, fn either runs to completion or never runs because the
	// loop exited, so results captured by fn are safe to read on return.
	select {
	case <-done:
		return nil
	case <-l.stopped:
		return ErrStopped
	}
}

// Run processes ticks and tasks. Blocks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.stopped)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case task := <-l.tasks:
			task()
		case <-ticker.C:
			l.tick()
		}
	}
}

func (l *Loop) tick() {
	l.mu.Lock()
	batch := l.q.take()
	l.mu.Unlock()

	for _, h := range batch {
		l.mu.Lock()
		cb, ok := l.q.claim(h)
		l.mu.Unlock()
		if ok {
			cb()
		}
	}
}
