package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunExecutesImmediatelyThenPerInterval(t *testing.T) {
	var ticks atomic.Int32
	tk := NewTicker(5*time.Millisecond, false)

	start := time.Now()
	tk.Run(context.Background(), func(context.Context) bool {
		return ticks.Add(1) < 3
	})

	assert.Equal(t, int32(3), ticks.Load())
	// first tick is immediate, so three ticks take two intervals
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var ticks atomic.Int32
	tk := NewTicker(5*time.Millisecond, false)

	tk.Go(ctx, func(context.Context) bool {
		ticks.Add(1)
		return true
	})

	require.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	<-tk.Done()

	final := ticks.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, final, ticks.Load(), "no ticks after cancellation")
}

func TestStopIsIdempotent(t *testing.T) {
	tk := NewTicker(time.Millisecond, false)
	tk.Go(context.Background(), func(context.Context) bool { return true })

	tk.Stop()
	tk.Stop()
	<-tk.Done()
}

func TestJitterStaysWithinQuarterInterval(t *testing.T) {
	interval := 20 * time.Millisecond
	tk := NewTicker(interval, true)

	var stamps []time.Time
	tk.Run(context.Background(), func(context.Context) bool {
		stamps = append(stamps, time.Now())
		return len(stamps) < 4
	})

	require.Len(t, stamps, 4)
	for i := 1; i < len(stamps); i++ {
		gap := stamps[i].Sub(stamps[i-1])
		assert.GreaterOrEqual(t, gap, interval)
		assert.Less(t, gap, 2*interval, "jitter must stay near a quarter interval")
	}
}
