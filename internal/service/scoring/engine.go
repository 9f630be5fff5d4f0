package scoring

import (
	"fmt"
	"math"
	"sort"

	"FlowScan/internal/domain/models"
)

// Band maps a half-open score interval [Min, Max) to a strength label.
// The top band is closed at 10.
type Band struct {
	Min      float64
	Max      float64
	Strength models.Strength
}

// DefaultBands partitions [0,10] into the strength labels.
var DefaultBands = []Band{
	{9, 10, models.StrengthExtreme},
	{7.5, 9, models.StrengthVeryStrong},
	{6, 7.5, models.StrengthStrong},
	{4, 6, models.StrengthModerate},
	{0, 4, models.StrengthWeak},
}

const weightTolerance = 1e-9

// Engine fuses named sub-signals into one composite score using a fixed
// weight table. It is pure: no I/O, no shared state, safe for concurrent use.
type Engine struct {
	weights        map[string]float64
	bands          []Band
	mixedThreshold float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithBands overrides the strength label partition.
func WithBands(bands []Band) Option {
	return func(e *Engine) { e.bands = bands }
}

// WithMixedThreshold sets the directional margin (on the 0-10 scale) below
// which the composite direction is reported as mixed.
func WithMixedThreshold(t float64) Option {
	return func(e *Engine) { e.mixedThreshold = t }
}

// NewEngine builds an engine for one weight table. It fails fast when the
// weights do not sum to 1.0.
func NewEngine(weights map[string]float64, opts ...Option) (*Engine, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("scoring: empty weight table")
	}
	var sum float64
	for name, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("scoring: negative weight for %q", name)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return nil, fmt.Errorf("scoring: weights sum to %v, want 1.0", sum)
	}

	e := &Engine{
		weights:        weights,
		bands:          DefaultBands,
		mixedThreshold: 1.0,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Score fuses the present components into a composite. Components named in
// the weight table but absent from the input have their weight redistributed
// pro rata across the present ones; absence never counts as a zero score.
// Component names outside the weight table are ignored.
func (e *Engine) Score(components map[string]models.SubSignal) (models.CompositeScore, error) {
	present := make([]string, 0, len(e.weights))
	var presentWeight float64
	for name, w := range e.weights {
		if _, ok := components[name]; ok {
			present = append(present, name)
			presentWeight += w
		}
	}
	if len(present) == 0 {
		return models.CompositeScore{}, fmt.Errorf("scoring: no scored components present")
	}

	var value float64
	breakdown := make([]models.Component, 0, len(present))
	var bullish, bearish float64
	scores := make([]float64, 0, len(present))

	for _, name := range present {
		sig := components[name]
		adjusted := e.weights[name] / presentWeight
		value += sig.Score * adjusted
		scores = append(scores, sig.Score)
		breakdown = append(breakdown, models.Component{Name: name, Score: sig.Score, Weight: adjusted})

		switch sig.Direction {
		case models.DirectionBullish:
			bullish += adjusted * sig.Score
		case models.DirectionBearish:
			bearish += adjusted * sig.Score
		}
	}

	value = clamp(value, 0, 10)

	sort.Slice(breakdown, func(i, j int) bool {
		if breakdown[i].Weight != breakdown[j].Weight {
			return breakdown[i].Weight > breakdown[j].Weight
		}
		return breakdown[i].Name < breakdown[j].Name
	})

	return models.CompositeScore{
		Value:      value,
		Strength:   e.strength(value),
		Direction:  e.direction(bullish, bearish),
		Confidence: confidence(scores),
		Priority:   priority(value),
		Components: breakdown,
	}, nil
}

// Weights returns the configured (unadjusted) weight table.
func (e *Engine) Weights() map[string]float64 {
	out := make(map[string]float64, len(e.weights))
	for k, v := range e.weights {
		out[k] = v
	}
	return out
}

func (e *Engine) strength(v float64) models.Strength {
	for _, b := range e.bands {
		if v >= b.Min && (v < b.Max || b.Max >= 10 && v == 10) {
			return b.Strength
		}
	}
	return models.StrengthWeak
}

func (e *Engine) direction(bullish, bearish float64) models.Direction {
	diff := bullish - bearish
	if math.Abs(diff) < e.mixedThreshold {
		if bullish == 0 && bearish == 0 {
			return models.DirectionNeutral
		}
		return models.DirectionMixed
	}
	if diff > 0 {
		return models.DirectionBullish
	}
	return models.DirectionBearish
}

// confidence is driven by agreement between components: low variance means
// the sub-signals corroborate each other, independent of the absolute value.
func confidence(scores []float64) models.Confidence {
	if len(scores) < 2 {
		return models.ConfidenceLow
	}
	var mean float64
	for _, s := range scores {
		mean += s
	}
	mean /= float64(len(scores))

	var variance float64
	for _, s := range scores {
		d := s - mean
		variance += d * d
	}
	variance /= float64(len(scores))

	switch {
	case variance <= 1.0:
		return models.ConfidenceVeryHigh
	case variance <= 2.5:
		return models.ConfidenceHigh
	case variance <= 5.0:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

func priority(v float64) int {
	p := int(math.Round(v))
	if p < 1 {
		p = 1
	}
	if p > 10 {
		p = 10
	}
	return p
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
