package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestAcquireBurstThenBlocks(t *testing.T) {
	// capacity 20, refill 10/s; 25 instantaneous acquires: first 20 grant
	// immediately, the last 5 only after replenishment, none erroring.
	g := New(Config{RefillPerSec: 10, Burst: 20, FloorPerSec: 1, FloorBurst: 1, RecoveryStep: 1})

	start := time.Now()
	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, g.Acquire(context.Background(), 1))
			granted.Add(1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(25), granted.Load())
	// 5 extra tokens at 10/s means at least ~400ms of waiting overall.
	assert.GreaterOrEqual(t, time.Since(start), 350*time.Millisecond)
}

func TestAcquireRespectsContext(t *testing.T) {
	g := New(Config{RefillPerSec: 0.1, Burst: 1, FloorPerSec: 0.1, FloorBurst: 1})
	require.NoError(t, g.Acquire(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := g.Acquire(ctx, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNoOverIssuance(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	g := New(Config{RefillPerSec: 10, Burst: 20, FloorPerSec: 1, FloorBurst: 1}, WithClock(clock))

	// Over a 2s window the bucket can grant at most capacity + rate*T.
	budget := 20 + 10*2
	granted := 0
	for i := 0; i < budget+10; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
		if g.Acquire(ctx, 1) == nil {
			granted++
		}
		cancel()
		if i == budget/2 {
			clock.advance(2 * time.Second)
		}
	}
	assert.LessOrEqual(t, granted, budget)
}

func TestThrottleShrinksMonotonically(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	g := New(Config{RefillPerSec: 16, Burst: 32, FloorPerSec: 1, FloorBurst: 2, RecoveryStep: 2}, WithClock(clock))

	prev := g.Snapshot().RefillPerSec
	for i := 1; i <= 10; i++ {
		g.ReportOutcome(true)
		s := g.Snapshot()
		assert.LessOrEqual(t, s.RefillPerSec, prev, "rate must never grow on throttle")
		assert.GreaterOrEqual(t, s.RefillPerSec, 1.0, "rate must not fall below floor")
		assert.Equal(t, i, s.ConsecutiveThrottles)
		prev = s.RefillPerSec
	}
	assert.InDelta(t, 1.0, g.Snapshot().RefillPerSec, 1e-9)
	assert.Equal(t, 2, g.Snapshot().BurstCeiling)
}

func TestRecoveryIsLinearAndGated(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	g := New(Config{RefillPerSec: 16, Burst: 32, FloorPerSec: 1, FloorBurst: 2, RecoveryStep: 2, RecoveryAfter: 3}, WithClock(clock))

	g.ReportOutcome(true)
	g.ReportOutcome(true)
	shrunk := g.Snapshot().RefillPerSec
	assert.InDelta(t, 4.0, shrunk, 1e-9)

	// Two successes are not enough to start recovery.
	g.ReportOutcome(false)
	g.ReportOutcome(false)
	assert.InDelta(t, shrunk, g.Snapshot().RefillPerSec, 1e-9)
	assert.Equal(t, 2, g.Snapshot().ConsecutiveThrottles)

	// Third success clears the throttle count and begins linear recovery.
	g.ReportOutcome(false)
	s := g.Snapshot()
	assert.Equal(t, 0, s.ConsecutiveThrottles)
	assert.InDelta(t, 6.0, s.RefillPerSec, 1e-9)

	// Further successes keep stepping toward the configured maximum.
	for i := 0; i < 20; i++ {
		g.ReportOutcome(false)
	}
	assert.InDelta(t, 16.0, g.Snapshot().RefillPerSec, 1e-9)
}
