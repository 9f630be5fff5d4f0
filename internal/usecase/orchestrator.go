package usecase

import (
	"context"
	"sync"
	"time"

	"FlowScan/internal/domain/models"
	drepo "FlowScan/internal/domain/repository"
	"FlowScan/pkg/logger"
)

// Mode is one scan strategy driven by the orchestrator.
type Mode interface {
	ID() string
	Interval() time.Duration
	Scan(ctx context.Context) ([]models.CompositeScore, error)
}

// ModeParams are the orchestration knobs that live in config, not in the
// mode itself.
type ModeParams struct {
	// AlertThreshold is the minimum composite value forwarded to the gate.
	AlertThreshold float64
	// DegradedAfter is how many consecutive failed cycles before the
	// interval starts widening.
	DegradedAfter int
	// MaxDegradedScale caps the widened interval at base*scale.
	MaxDegradedScale int
}

// Emission is one qualifying composite handed to the alert gate.
type Emission struct {
	Mode  string
	Score models.CompositeScore
}

type modeEntry struct {
	mode   Mode
	params ModeParams
}

// Orchestrator runs one goroutine per registered mode. Cycles never
// overlap per mode and never build a backlog: if a cycle overruns its
// interval, the next one starts immediately and the missed slots are
// skipped. Consecutive failures widen the interval (doubling, capped)
// until a cycle succeeds again.
type Orchestrator struct {
	log     *logger.Logger
	metrics drepo.Metrics
	cycles  drepo.CycleStateStore

	entries []modeEntry
	out     chan Emission

	mu     sync.Mutex
	states map[string]*models.CycleState
	wg     sync.WaitGroup
}

func NewOrchestrator(log *logger.Logger, m drepo.Metrics, cycles drepo.CycleStateStore) *Orchestrator {
	return &Orchestrator{
		log:     log,
		metrics: m,
		cycles:  cycles,
		out:     make(chan Emission, 256),
		states:  make(map[string]*models.CycleState),
	}
}

// Register adds a mode. Must be called before Start.
func (o *Orchestrator) Register(mode Mode, params ModeParams) {
	if params.DegradedAfter <= 0 {
		params.DegradedAfter = 3
	}
	if params.MaxDegradedScale <= 0 {
		params.MaxDegradedScale = 8
	}
	o.entries = append(o.entries, modeEntry{mode: mode, params: params})
	o.mu.Lock()
	o.states[mode.ID()] = &models.CycleState{ModeID: mode.ID(), Interval: mode.Interval()}
	o.mu.Unlock()
}

// Emissions is the gate's input. Closed after Stop once all loops exit.
func (o *Orchestrator) Emissions() <-chan Emission { return o.out }

// Start launches every registered mode loop.
func (o *Orchestrator) Start(ctx context.Context) {
	for _, e := range o.entries {
		o.wg.Add(1)
		go func(e modeEntry) {
			defer o.wg.Done()
			o.runLoop(ctx, e)
		}(e)
	}
	go func() {
		o.wg.Wait()
		close(o.out)
	}()
}

// States snapshots every mode's cycle state for the status API.
func (o *Orchestrator) States() []models.CycleState {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]models.CycleState, 0, len(o.states))
	for _, s := range o.states {
		out = append(out, *s)
	}
	return out
}

func (o *Orchestrator) runLoop(ctx context.Context, e modeEntry) {
	base := e.mode.Interval()
	interval := base

	for {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		scores, err := e.mode.Scan(ctx)
		dur := time.Since(start)
		o.metrics.RecordScanDuration(e.mode.ID(), dur.Seconds())

		if err != nil {
			interval = o.cycleFailed(ctx, e, base, start, dur, err)
		} else {
			interval = base
			o.cycleSucceeded(ctx, e, start, dur)
			o.emit(ctx, e, scores)
		}

		// Skip-ahead scheduling: aim for start+interval, run immediately
		// if we are already past it. No catch-up backlog.
		wait := time.Until(start.Add(interval))
		if wait <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (o *Orchestrator) emit(ctx context.Context, e modeEntry, scores []models.CompositeScore) {
	for _, s := range scores {
		if s.Value < e.params.AlertThreshold {
			continue
		}
		select {
		case o.out <- Emission{Mode: e.mode.ID(), Score: s}:
		case <-ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) cycleSucceeded(ctx context.Context, e modeEntry, start time.Time, dur time.Duration) {
	o.mu.Lock()
	st := o.states[e.mode.ID()]
	st.LastRunAt = start
	st.RunCount++
	st.LastDuration = dur
	st.ConsecutiveFailures = 0
	st.Degraded = false
	st.Interval = e.mode.Interval()
	st.LastError = ""
	snapshot := *st
	o.mu.Unlock()

	o.persist(ctx, &snapshot)
}

// cycleFailed updates state and returns the interval for the next cycle.
func (o *Orchestrator) cycleFailed(ctx context.Context, e modeEntry, base time.Duration, start time.Time, dur time.Duration, err error) time.Duration {
	o.mu.Lock()
	st := o.states[e.mode.ID()]
	st.LastRunAt = start
	st.RunCount++
	st.LastDuration = dur
	st.ConsecutiveFailures++
	st.LastError = err.Error()

	interval := base
	if st.ConsecutiveFailures >= e.params.DegradedAfter {
		st.Degraded = true
		scale := 1
		for i := e.params.DegradedAfter; i <= st.ConsecutiveFailures; i++ {
			if scale < e.params.MaxDegradedScale {
				scale *= 2
			}
		}
		if scale > e.params.MaxDegradedScale {
			scale = e.params.MaxDegradedScale
		}
		interval = base * time.Duration(scale)
	}
	st.Interval = interval
	snapshot := *st
	o.mu.Unlock()

	o.log.Error("scan cycle failed",
		logger.String("mode", e.mode.ID()),
		logger.Int("consecutive_failures", snapshot.ConsecutiveFailures),
		logger.Duration("next_interval", interval),
		logger.Error(err))
	o.metrics.RecordError("scan_cycle_" + e.mode.ID())

	o.persist(ctx, &snapshot)
	return interval
}

func (o *Orchestrator) persist(ctx context.Context, st *models.CycleState) {
	if o.cycles == nil {
		return
	}
	if err := o.cycles.StoreCycle(ctx, st); err != nil {
		o.log.Warn("cycle state persist failed",
			logger.String("mode", st.ModeID), logger.Error(err))
	}
}
