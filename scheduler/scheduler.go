// Package scheduler provides the single cancellable ticker used by every
// polling loop in the engine: the expiry tick, the self-transfer poll, and
// the balance refresh. Intervals are jittered so loops that watch the same
// collaborator do not fire in lockstep.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jpillora/backoff"
)

// Job runs once per tick. Returning false stops the ticker.
type Job func(ctx context.Context) bool

// Ticker fires a job at a (optionally jittered) interval. The cancellation
// flag is checked immediately before each tick is scheduled, so stopping a
// ticker never leaks a pending timer.
type Ticker struct {
	interval time.Duration
	delay    *backoff.Backoff

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewTicker builds a ticker. With jitter enabled the gap between ticks
// varies between the interval and 125% of it.
func NewTicker(interval time.Duration, jitter bool) *Ticker {
	t := &Ticker{
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if jitter {
		t.delay = &backoff.Backoff{
			Min:    interval,
			Max:    interval + interval/4,
			Factor: 1.25,
			Jitter: true,
		}
	}
	return t
}

func (t *Ticker) next() time.Duration {
	if t.delay == nil {
		return t.interval
	}
	return t.delay.Duration()
}

// Run executes the job immediately and then once per interval until the job
// returns false, the context is done, or Stop is called. It blocks; use Go
// for a background loop.
func (t *Ticker) Run(ctx context.Context, job Job) {
	defer close(t.done)

	for {
		if !job(ctx) {
			return
		}

		// liveness check before scheduling the next tick
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-time.After(t.next()):
		}
	}
}

// Go runs the loop in a goroutine.
func (t *Ticker) Go(ctx context.Context, job Job) {
	go t.Run(ctx, job)
}

// Stop cancels the loop. Safe to call more than once.
func (t *Ticker) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// Done is closed when the loop has fully exited.
func (t *Ticker) Done() <-chan struct{} {
	return t.done
}
