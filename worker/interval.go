// Package worker implements the cooperative interval-scheduling base every
// long-lived source and destination worker is built on (spec.md §4.5).
package worker

import (
	"context"
	"sync"
	"time"
)

// Terminate is a one-shot, broadcastable stop signal shared between a
// worker and the launcher (the "external" flag) or owned by a single
// worker (the "internal" flag). Safe for concurrent use.
type Terminate struct {
	once sync.Once
	ch   chan struct{}
}

// NewTerminate creates an unset Terminate flag.
func NewTerminate() *Terminate {
	return &Terminate{ch: make(chan struct{})}
}

// Set trips the flag. Idempotent.
func (t *Terminate) Set() {
	t.once.Do(func() { close(t.ch) })
}

// Done returns a channel that closes when Set is called.
func (t *Terminate) Done() <-chan struct{} {
	return t.ch
}

// IsSet reports whether Set has been called.
func (t *Terminate) IsSet() bool {
	select {
	case <-t.ch:
		return true
	default:
		return false
	}
}

// IntervalThread is the cooperative worker base: a per-worker internal
// terminate flag plus a shared external one injected at construction.
// IsTerminated() is the logical OR of both; Wait() sleeps in 1-second
// slices, checking IsTerminated() each slice, so cancellation is observed
// within at most one second (spec.md §5).
type IntervalThread struct {
	Name     string
	External *Terminate
	internal *Terminate
}

// New creates an IntervalThread sharing the given external terminate flag.
func New(name string, external *Terminate) *IntervalThread {
	return &IntervalThread{Name: name, External: external, internal: NewTerminate()}
}

// Stop sets only this worker's internal flag; it does not affect siblings.
func (w *IntervalThread) Stop() { w.internal.Set() }

// IsTerminated reports whether either the internal or the external flag is set.
func (w *IntervalThread) IsTerminated() bool {
	return w.internal.IsSet() || w.External.IsSet()
}

// Wait sleeps up to d, in 1-second slices, returning early if the worker is
// terminated or ctx is canceled.
func (w *IntervalThread) Wait(ctx context.Context, d time.Duration) {
	const slice = time.Second
	deadline := time.Now().Add(d)
	for {
		if w.IsTerminated() {
			return
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		next := slice
		if remaining < next {
			next = remaining
		}
		select {
		case <-ctx.Done():
			return
		case <-w.External.Done():
			return
		case <-w.internal.Done():
			return
		case <-time.After(next):
		}
	}
}

// RunLoop executes cycle once per interval until the worker is terminated.
//
//  1. record start time
//  2. run cycle
//  3. on error: log is the caller's job (cycle itself should log); back off
//     one full interval and retry, unless oneshot — in which case RunLoop
//     returns immediately with that error.
//  4. on success in oneshot mode: RunLoop returns nil after one cycle.
//  5. otherwise: sleep max(interval-elapsed, 0); if elapsed >= interval,
//     the sleep is skipped entirely (the cycle "took longer than interval").
func (w *IntervalThread) RunLoop(ctx context.Context, interval time.Duration, oneshot bool, cycle func(ctx context.Context) error) error {
	for !w.IsTerminated() {
		start := time.Now()
		err := cycle(ctx)
		if oneshot {
			return err
		}
		if err != nil {
			w.Wait(ctx, interval)
			continue
		}
		elapsed := time.Since(start)
		if elapsed >= interval {
			continue
		}
		w.Wait(ctx, interval-elapsed)
	}
	return nil
}
