package marketstate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"FlowScan/internal/domain/models"
	drepo "FlowScan/internal/domain/repository"
)

// Book holds the rolling live view built from stream events: recent flow
// prints, recent dark pool prints, and last prices per ticker. Scan modes
// merge it with REST snapshots so a slow REST cycle still sees what the
// socket delivered in between.
type Book struct {
	mu     sync.RWMutex
	window time.Duration
	clock  drepo.Clock

	flows  map[string][]timedFlow
	darks  map[string][]timedDark
	prices map[string]float64
}

type timedFlow struct {
	at time.Time
	f  models.FlowAlert
}

type timedDark struct {
	at time.Time
	d  models.DarkPoolTrade
}

func NewBook(window time.Duration, clock drepo.Clock) *Book {
	if window <= 0 {
		window = 15 * time.Minute
	}
	if clock == nil {
		clock = drepo.SystemClock{}
	}
	return &Book{
		window: window,
		clock:  clock,
		flows:  make(map[string][]timedFlow),
		darks:  make(map[string][]timedDark),
		prices: make(map[string]float64),
	}
}

// Process ingests one validated stream event. Channel naming follows the
// provider: "flow-alerts", "price:<ticker>", "lit_trades", "off_lit_trades".
func (b *Book) Process(_ context.Context, e models.StreamEvent) error {
	switch {
	case e.Channel == "flow-alerts":
		var f models.FlowAlert
		if err := json.Unmarshal(e.Payload, &f); err != nil || f.Ticker == "" {
			return fmt.Errorf("flow frame: %w", err)
		}
		b.addFlow(f)

	case strings.HasPrefix(e.Channel, "price:"):
		var p struct {
			Price float64 `json:"price"`
		}
		if err := json.Unmarshal(e.Payload, &p); err != nil || p.Price <= 0 {
			return fmt.Errorf("price frame: %w", err)
		}
		ticker := strings.TrimPrefix(e.Channel, "price:")
		b.mu.Lock()
		b.prices[ticker] = p.Price
		b.mu.Unlock()

	case e.Channel == "lit_trades" || e.Channel == "off_lit_trades":
		var d models.DarkPoolTrade
		if err := json.Unmarshal(e.Payload, &d); err != nil || d.Ticker == "" {
			return fmt.Errorf("trade frame: %w", err)
		}
		b.addDark(d)
	}
	// Channels without a live-state use (gex:*) are simply ignored.
	return nil
}

func (b *Book) addFlow(f models.FlowAlert) {
	now := b.clock.Now()
	b.mu.Lock()
	b.flows[f.Ticker] = appendPruned(b.flows[f.Ticker], timedFlow{at: now, f: f}, now, b.window)
	b.mu.Unlock()
}

func (b *Book) addDark(d models.DarkPoolTrade) {
	now := b.clock.Now()
	b.mu.Lock()
	b.darks[d.Ticker] = appendPruned(b.darks[d.Ticker], timedDark{at: now, d: d}, now, b.window)
	b.mu.Unlock()
}

// Flows returns flow prints seen on the socket within the window.
func (b *Book) Flows(ticker string) []models.FlowAlert {
	now := b.clock.Now()
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []models.FlowAlert
	for _, tf := range b.flows[ticker] {
		if now.Sub(tf.at) <= b.window {
			out = append(out, tf.f)
		}
	}
	return out
}

// DarkPool returns dark pool prints seen on the socket within the window.
func (b *Book) DarkPool(ticker string) []models.DarkPoolTrade {
	now := b.clock.Now()
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []models.DarkPoolTrade
	for _, td := range b.darks[ticker] {
		if now.Sub(td.at) <= b.window {
			out = append(out, td.d)
		}
	}
	return out
}

// Price returns the last streamed price for a ticker.
func (b *Book) Price(ticker string) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.prices[ticker]
	return p, ok
}

type timed interface{ when() time.Time }

func (t timedFlow) when() time.Time { return t.at }
func (t timedDark) when() time.Time { return t.at }

func appendPruned[T timed](list []T, item T, now time.Time, window time.Duration) []T {
	kept := list[:0]
	for _, v := range list {
		if now.Sub(v.when()) <= window {
			kept = append(kept, v)
		}
	}
	return append(kept, item)
}
