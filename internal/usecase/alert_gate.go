package usecase

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"FlowScan/internal/domain/models"
	drepo "FlowScan/internal/domain/repository"
	"FlowScan/pkg/logger"
)

// AlertGate deduplicates qualifying composites and fans novel alerts out
// to the store and every configured dispatcher. A fingerprint covers
// mode, ticker, signal type, and the $0.50-bucketed price level; repeats
// inside the cooldown window are suppressed.
type AlertGate struct {
	log         *logger.Logger
	metrics     drepo.Metrics
	store       drepo.AlertStore
	dispatchers []drepo.Dispatcher
	clock       drepo.Clock
	cooldowns   map[string]time.Duration

	mu   sync.Mutex
	seen map[uint64]time.Time // fingerprint -> suppression expiry
	done chan struct{}
}

// DefaultCooldown applies to modes without a configured window.
const DefaultCooldown = 5 * time.Minute

func NewAlertGate(log *logger.Logger, m drepo.Metrics, store drepo.AlertStore,
	dispatchers []drepo.Dispatcher, cooldowns map[string]time.Duration, clock drepo.Clock) *AlertGate {
	if clock == nil {
		clock = drepo.SystemClock{}
	}
	return &AlertGate{
		log:         log,
		metrics:     m,
		store:       store,
		dispatchers: dispatchers,
		clock:       clock,
		cooldowns:   cooldowns,
		seen:        make(map[uint64]time.Time),
		done:        make(chan struct{}),
	}
}

// Run consumes emissions until the channel closes or ctx ends.
func (g *AlertGate) Run(ctx context.Context, in <-chan Emission) {
	defer close(g.done)
	for {
		select {
		case <-ctx.Done():
			return
		case em, ok := <-in:
			if !ok {
				return
			}
			g.Submit(ctx, em.Mode, em.Score)
		}
	}
}

// Done reports when Run has drained.
func (g *AlertGate) Done() <-chan struct{} { return g.done }

// Submit gates one composite. Returns the emitted record, or nil with
// emitted=false when the alert was suppressed.
func (g *AlertGate) Submit(ctx context.Context, mode string, score models.CompositeScore) (*models.AlertRecord, bool) {
	now := g.clock.Now()
	fp := Fingerprint(mode, score.Ticker, score.SignalType, score.PriceLevel)
	ttl := g.cooldownFor(mode)

	g.mu.Lock()
	g.pruneLocked(now)
	if expiry, dup := g.seen[fp]; dup && now.Before(expiry) {
		g.mu.Unlock()
		g.metrics.RecordAlert(mode, false)
		g.log.Debug("alert suppressed",
			logger.String("mode", mode), logger.String("ticker", score.Ticker),
			logger.Uint64("fingerprint", fp))
		return nil, false
	}
	g.seen[fp] = now.Add(ttl)
	g.mu.Unlock()

	rec := &models.AlertRecord{
		ID:          uuid.NewString(),
		Mode:        mode,
		Ticker:      score.Ticker,
		SignalType:  score.SignalType,
		PriceLevel:  score.PriceLevel,
		Fingerprint: fp,
		Score:       score,
		Title:       title(mode, score),
		Description: description(score),
		EmittedAt:   now,
		CooldownTTL: ttl,
	}

	if g.store != nil {
		if err := g.store.StoreAlert(ctx, rec); err != nil {
			g.log.Error("alert persist failed",
				logger.String("alert_id", rec.ID), logger.Error(err))
			g.metrics.RecordError("alert_store")
		}
	}
	for _, d := range g.dispatchers {
		if err := d.Dispatch(ctx, rec); err != nil {
			g.log.Error("alert dispatch failed",
				logger.String("dispatcher", d.Name()),
				logger.String("alert_id", rec.ID), logger.Error(err))
			g.metrics.RecordError("dispatch_" + d.Name())
		}
	}

	g.metrics.RecordAlert(mode, true)
	g.log.Info("alert emitted",
		logger.String("mode", mode), logger.String("ticker", score.Ticker),
		logger.String("signal", score.SignalType), logger.Any("value", score.Value))
	return rec, true
}

func (g *AlertGate) cooldownFor(mode string) time.Duration {
	if ttl, ok := g.cooldowns[mode]; ok && ttl > 0 {
		return ttl
	}
	return DefaultCooldown
}

// pruneLocked lazily drops expired suppressions. Called with g.mu held.
func (g *AlertGate) pruneLocked(now time.Time) {
	for fp, expiry := range g.seen {
		if !now.Before(expiry) {
			delete(g.seen, fp)
		}
	}
}

// Fingerprint hashes the identity of an alert. Price levels are bucketed
// to $0.50 so jitter around a level does not defeat the cooldown.
func Fingerprint(mode, ticker, signalType string, priceLevel float64) uint64 {
	bucket := math.Round(priceLevel*2) / 2
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%.2f", mode, ticker, signalType, bucket)
	return h.Sum64()
}

func title(mode string, s models.CompositeScore) string {
	return fmt.Sprintf("[%s] %s %s %s @ %.2f", mode, s.Ticker, s.Strength, s.SignalType, s.PriceLevel)
}

func description(s models.CompositeScore) string {
	return fmt.Sprintf("%s composite %.1f (%s, %s confidence, priority %d) across %d components",
		s.Direction, s.Value, s.Strength, s.Confidence, s.Priority, len(s.Components))
}
