package worker

import (
	"context"
	"sync/atomic"
	"time"
)

// Waiter implements the idle backoff between polls. A wait ends early when
// Trigger is called; the first such interrupted wait raises the base
// interval to the post-trigger value for the rest of the process lifetime.
type Waiter struct {
	trigger     chan struct{}
	base        atomic.Int64
	postTrigger time.Duration
	raised      atomic.Bool
}

// NewWaiter returns a waiter with base interval idle.
func NewWaiter(idle, postTrigger time.Duration) *Waiter {
	w := &Waiter{trigger: make(chan struct{}, 1), postTrigger: postTrigger}
	w.base.Store(int64(idle))
	return w
}

// Trigger signals a waiting or future Wait to return early. It never blocks.
func (w *Waiter) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Pending reports whether a trigger is waiting to be consumed.
func (w *Waiter) Pending() bool { return len(w.trigger) > 0 }

// Interval is the current base interval.
func (w *Waiter) Interval() time.Duration { return time.Duration(w.base.Load()) }

// Raised reports whether a trigger has raised the base interval.
func (w *Waiter) Raised() bool { return w.raised.Load() }

// Wait blocks for override, or the base interval when override is zero.
// It returns true when a trigger ended the wait. The pending trigger is
// always cleared before Wait returns.
func (w *Waiter) Wait(ctx context.Context, override time.Duration) bool {
	d := override
	if d <= 0 {
		d = w.Interval()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	triggered := false
	select {
	case <-w.trigger:
		triggered = true
	case <-timer.C:
	case <-ctx.Done():
	}
	if triggered && w.postTrigger > 0 {
		w.base.Store(int64(w.postTrigger))
		w.raised.Store(true)
	}
	select {
	case <-w.trigger:
	default:
	}
	return triggered
}
