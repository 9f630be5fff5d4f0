package models

// Direction is the directional bias carried by a sub-signal or composite.
type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
	DirectionNeutral Direction = "neutral"
	DirectionMixed   Direction = "mixed"
)

// Strength buckets a composite score value.
type Strength string

const (
	StrengthExtreme    Strength = "extreme"
	StrengthVeryStrong Strength = "very_strong"
	StrengthStrong     Strength = "strong"
	StrengthModerate   Strength = "moderate"
	StrengthWeak       Strength = "weak"
)

// Confidence reflects how much the sub-signals agree with each other.
type Confidence string

const (
	ConfidenceLow      Confidence = "low"
	ConfidenceMedium   Confidence = "medium"
	ConfidenceHigh     Confidence = "high"
	ConfidenceVeryHigh Confidence = "very_high"
)

// SubSignal is a single normalized input to the scoring engine. Raw holds
// the analyzer's unscaled value; Score is always on the [0,10] scale.
type SubSignal struct {
	Name      string
	Raw       float64
	Score     float64
	Direction Direction
	Metadata  map[string]float64
}

// Component records one sub-signal's contribution in a composite breakdown.
// Weight is the adjusted weight actually applied, after redistribution of
// weight from absent components.
type Component struct {
	Name   string
	Score  float64
	Weight float64
}

// CompositeScore is the fused, ranked output of the scoring engine.
type CompositeScore struct {
	Ticker     string
	SignalType string
	PriceLevel float64
	Value      float64
	Strength   Strength
	Direction  Direction
	Confidence Confidence
	Priority   int
	Components []Component
}
