package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FlowScan/internal/domain/models"
	drepo "FlowScan/internal/domain/repository"
	"FlowScan/pkg/logger"
)

type scriptedMode struct {
	id       string
	interval time.Duration
	mu       sync.Mutex
	runs     int
	scan     func(run int) ([]models.CompositeScore, error)
	delay    time.Duration
}

func (m *scriptedMode) ID() string              { return m.id }
func (m *scriptedMode) Interval() time.Duration { return m.interval }

func (m *scriptedMode) Scan(ctx context.Context) ([]models.CompositeScore, error) {
	m.mu.Lock()
	m.runs++
	run := m.runs
	m.mu.Unlock()
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.scan(run)
}

func (m *scriptedMode) runCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs
}

type cycleRecorder struct {
	mu     sync.Mutex
	cycles []models.CycleState
}

func (r *cycleRecorder) StoreCycle(_ context.Context, s *models.CycleState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles = append(r.cycles, *s)
	return nil
}

func (r *cycleRecorder) last() (models.CycleState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.cycles) == 0 {
		return models.CycleState{}, false
	}
	return r.cycles[len(r.cycles)-1], true
}

func testLog(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	return log
}

func composite(ticker string, value float64) models.CompositeScore {
	return models.CompositeScore{
		Ticker:     ticker,
		SignalType: "flow",
		PriceLevel: 500,
		Value:      value,
		Strength:   models.StrengthStrong,
		Direction:  models.DirectionBullish,
		Confidence: models.ConfidenceHigh,
		Priority:   8,
	}
}

func TestOrchestratorEmitsAboveThreshold(t *testing.T) {
	mode := &scriptedMode{id: "intraday", interval: 50 * time.Millisecond,
		scan: func(int) ([]models.CompositeScore, error) {
			return []models.CompositeScore{composite("SPY", 8.2), composite("QQQ", 4.0)}, nil
		}}
	rec := &cycleRecorder{}
	o := NewOrchestrator(testLog(t), drepo.NopMetrics{}, rec)
	o.Register(mode, ModeParams{AlertThreshold: 6.5})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)

	select {
	case em := <-o.Emissions():
		assert.Equal(t, "intraday", em.Mode)
		assert.Equal(t, "SPY", em.Score.Ticker)
	case <-time.After(2 * time.Second):
		t.Fatal("no emission")
	}

	// QQQ at 4.0 never qualifies; the next emission is SPY again.
	select {
	case em := <-o.Emissions():
		assert.Equal(t, "SPY", em.Score.Ticker)
	case <-time.After(2 * time.Second):
		t.Fatal("no second emission")
	}
}

func TestOrchestratorSkipAheadNoBacklog(t *testing.T) {
	// Scan takes 3x the interval; after an overrun the next cycle starts
	// immediately instead of queueing missed runs.
	mode := &scriptedMode{id: "intraday", interval: 30 * time.Millisecond, delay: 90 * time.Millisecond,
		scan: func(int) ([]models.CompositeScore, error) { return nil, nil }}
	o := NewOrchestrator(testLog(t), drepo.NopMetrics{}, nil)
	o.Register(mode, ModeParams{AlertThreshold: 5})

	ctx, cancel := context.WithCancel(context.Background())
	o.Start(ctx)
	time.Sleep(400 * time.Millisecond)
	cancel()

	// ~400ms / ~90ms per cycle: at most ~5 back-to-back runs. A catch-up
	// scheduler would have tried ~13.
	runs := mode.runCount()
	assert.GreaterOrEqual(t, runs, 3)
	assert.LessOrEqual(t, runs, 6)
}

func TestOrchestratorDegradesAfterConsecutiveFailures(t *testing.T) {
	var fail = errors.New("provider down")
	mode := &scriptedMode{id: "swing", interval: 20 * time.Millisecond,
		scan: func(int) ([]models.CompositeScore, error) { return nil, fail }}
	rec := &cycleRecorder{}
	o := NewOrchestrator(testLog(t), drepo.NopMetrics{}, rec)
	o.Register(mode, ModeParams{AlertThreshold: 5, DegradedAfter: 2, MaxDegradedScale: 4})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)

	assert.Eventually(t, func() bool {
		st, ok := rec.last()
		return ok && st.Degraded && st.Interval == 80*time.Millisecond
	}, 3*time.Second, 10*time.Millisecond)

	st, _ := rec.last()
	assert.Equal(t, "provider down", st.LastError)
	assert.GreaterOrEqual(t, st.ConsecutiveFailures, 2)
}

func TestOrchestratorRecoversAfterSuccess(t *testing.T) {
	mode := &scriptedMode{id: "swing", interval: 20 * time.Millisecond,
		scan: func(run int) ([]models.CompositeScore, error) {
			if run <= 3 {
				return nil, errors.New("flaky")
			}
			return nil, nil
		}}
	rec := &cycleRecorder{}
	o := NewOrchestrator(testLog(t), drepo.NopMetrics{}, rec)
	o.Register(mode, ModeParams{AlertThreshold: 5, DegradedAfter: 2, MaxDegradedScale: 8})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)

	assert.Eventually(t, func() bool {
		st, ok := rec.last()
		return ok && !st.Degraded && st.ConsecutiveFailures == 0 &&
			st.Interval == 20*time.Millisecond && st.RunCount >= 4
	}, 3*time.Second, 10*time.Millisecond)
}

func TestOrchestratorStatesSnapshot(t *testing.T) {
	mode := &scriptedMode{id: "longterm", interval: time.Hour,
		scan: func(int) ([]models.CompositeScore, error) { return nil, nil }}
	o := NewOrchestrator(testLog(t), drepo.NopMetrics{}, nil)
	o.Register(mode, ModeParams{})

	states := o.States()
	require.Len(t, states, 1)
	assert.Equal(t, "longterm", states[0].ModeID)
	assert.Equal(t, time.Hour, states[0].Interval)
}
