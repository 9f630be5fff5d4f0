package ratelimit

import (
	"context"
	"sync"
	"time"

	drepo "FlowScan/internal/domain/repository"
)

// QuotaState is a point-in-time snapshot of the governor's bucket.
type QuotaState struct {
	Tokens               float64
	RefillPerSec         float64
	MaxRefillPerSec      float64
	BurstCeiling         int
	ConsecutiveThrottles int
}

// Config holds the governor's limits. Rates are tokens per second.
type Config struct {
	RefillPerSec  float64
	Burst         int
	FloorPerSec   float64
	FloorBurst    int
	RecoveryStep  float64 // tokens/sec regained per clean outcome once recovering
	RecoveryAfter int     // consecutive successes before throttle state clears
}

// Governor is a blocking token-bucket limiter shared by every provider
// caller. Acquire never rejects; it delays until tokens exist. Provider
// throttle reports shrink the bucket fast, recovery is deliberately slow.
type Governor struct {
	mu sync.Mutex

	tokens    float64
	rate      float64
	burst     float64
	last      time.Time
	maxRate   float64
	maxBurst  float64
	floorRate float64
	floorBurs float64

	throttles     int
	successStreak int
	recoveryStep  float64
	recoveryAfter int

	clock   drepo.Clock
	metrics drepo.Metrics
}

// Option configures a Governor.
type Option func(*Governor)

// WithClock injects a clock, used by tests.
func WithClock(c drepo.Clock) Option {
	return func(g *Governor) { g.clock = c }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m drepo.Metrics) Option {
	return func(g *Governor) { g.metrics = m }
}

// New creates a Governor starting with a full bucket.
func New(cfg Config, opts ...Option) *Governor {
	if cfg.RecoveryAfter <= 0 {
		cfg.RecoveryAfter = 3
	}
	if cfg.FloorPerSec <= 0 {
		cfg.FloorPerSec = cfg.RefillPerSec / 10
	}
	if cfg.FloorBurst <= 0 {
		cfg.FloorBurst = 1
	}
	g := &Governor{
		tokens:        float64(cfg.Burst),
		rate:          cfg.RefillPerSec,
		burst:         float64(cfg.Burst),
		maxRate:       cfg.RefillPerSec,
		maxBurst:      float64(cfg.Burst),
		floorRate:     cfg.FloorPerSec,
		floorBurs:     float64(cfg.FloorBurst),
		recoveryStep:  cfg.RecoveryStep,
		recoveryAfter: cfg.RecoveryAfter,
		clock:         drepo.SystemClock{},
	}
	for _, opt := range opts {
		opt(g)
	}
	g.last = g.clock.Now()
	return g
}

// Acquire blocks until cost tokens are available or ctx is done. It never
// drops a caller, only delays it.
func (g *Governor) Acquire(ctx context.Context, cost int) error {
	if cost <= 0 {
		cost = 1
	}
	for {
		g.mu.Lock()
		g.refill()
		if g.tokens >= float64(cost) {
			g.tokens -= float64(cost)
			g.mu.Unlock()
			return nil
		}
		needed := float64(cost) - g.tokens
		wait := time.Duration(needed / g.rate * float64(time.Second))
		g.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// ReportOutcome feeds the provider's verdict back into the bucket.
// A throttled outcome halves both refill rate and burst ceiling down to
// their floors; after recoveryAfter clean outcomes the rate climbs back
// linearly toward its configured maximum.
func (g *Governor) ReportOutcome(throttled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if throttled {
		g.throttles++
		g.successStreak = 0
		g.rate = maxf(g.rate/2, g.floorRate)
		g.burst = maxf(g.burst/2, g.floorBurs)
		if g.tokens > g.burst {
			g.tokens = g.burst
		}
		if g.metrics != nil {
			g.metrics.RecordThrottle()
			g.metrics.RecordRefillRate(g.rate)
		}
		return
	}

	g.successStreak++
	if g.successStreak < g.recoveryAfter {
		return
	}
	g.throttles = 0
	if g.rate < g.maxRate {
		g.rate = minf(g.rate+g.recoveryStep, g.maxRate)
	}
	if g.burst < g.maxBurst {
		g.burst = minf(g.burst+g.recoveryStep, g.maxBurst)
	}
	if g.metrics != nil {
		g.metrics.RecordRefillRate(g.rate)
	}
}

// Snapshot returns the current quota state.
func (g *Governor) Snapshot() QuotaState {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refill()
	return QuotaState{
		Tokens:               g.tokens,
		RefillPerSec:         g.rate,
		MaxRefillPerSec:      g.maxRate,
		BurstCeiling:         int(g.burst),
		ConsecutiveThrottles: g.throttles,
	}
}

// refill advances the bucket; callers must hold g.mu.
func (g *Governor) refill() {
	now := g.clock.Now()
	elapsed := now.Sub(g.last).Seconds()
	if elapsed <= 0 {
		return
	}
	g.tokens += elapsed * g.rate
	if g.tokens > g.burst {
		g.tokens = g.burst
	}
	g.last = now
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
