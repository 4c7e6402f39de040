// Package irq delivers the RTC alarm interrupt to the supervisor loop. The
// hardware line is edge-triggered and transient; the latch holds the event
// until the loop is ready to act on it.
package irq

import (
	"context"
	"sync"
)

// Latch records that the alarm line fired. Trigger may be called from an
// interrupt event handler; Consume reads-and-clears from the supervisor.
// A second edge before Consume coalesces into the same pending event.
type Latch struct {
	mu    sync.Mutex
	fired bool
	ch    chan struct{}
}

func NewLatch() *Latch {
	return &Latch{ch: make(chan struct{}, 1)}
}

func (l *Latch) Trigger() {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.fired = true
	l.mu.Unlock()
	select {
	case l.ch <- struct{}{}:
	default:
	}
}

func (l *Latch) Fired() bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fired
}

// Consume clears the latch and reports whether it was set.
func (l *Latch) Consume() bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	was := l.fired
	l.fired = false
	l.mu.Unlock()
	select {
	case <-l.ch:
	default:
	}
	return was
}

// Wait blocks until the latch fires or ctx is done. It does not clear the
// latch; callers Consume after waking.
func (l *Latch) Wait(ctx context.Context) error {
	if l.Fired() {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.ch:
		// Put the token back so Fired/Consume stay coherent.
		l.mu.Lock()
		l.fired = true
		l.mu.Unlock()
		return nil
	}
}
