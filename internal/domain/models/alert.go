package models

import "time"

// AlertRecord is an emitted (or candidate) alert. Fingerprint identifies
// repeats: two records with the same fingerprint are never dispatched
// within CooldownTTL of each other.
type AlertRecord struct {
	ID          string
	Mode        string
	Ticker      string
	SignalType  string
	PriceLevel  float64
	Fingerprint uint64
	Score       CompositeScore
	Title       string
	Description string
	EmittedAt   time.Time
	CooldownTTL time.Duration
}

// AlertMessage is the wire form of an alert on the Kafka topic. The
// producer flattens the composite; the audit consumer reads the same shape.
type AlertMessage struct {
	ID          string  `json:"id"`
	Mode        string  `json:"mode"`
	Ticker      string  `json:"ticker"`
	SignalType  string  `json:"signal_type"`
	PriceLevel  float64 `json:"price_level"`
	Fingerprint uint64  `json:"fingerprint"`
	Value       float64 `json:"value"`
	Strength    string  `json:"strength"`
	Direction   string  `json:"direction"`
	Confidence  string  `json:"confidence"`
	Priority    int     `json:"priority"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	EmittedAt   int64   `json:"emitted_at"` // unix ms
}

// ToMessage flattens an AlertRecord for the bus.
func (a *AlertRecord) ToMessage() AlertMessage {
	return AlertMessage{
		ID:          a.ID,
		Mode:        a.Mode,
		Ticker:      a.Ticker,
		SignalType:  a.SignalType,
		PriceLevel:  a.PriceLevel,
		Fingerprint: a.Fingerprint,
		Value:       a.Score.Value,
		Strength:    string(a.Score.Strength),
		Direction:   string(a.Score.Direction),
		Confidence:  string(a.Score.Confidence),
		Priority:    a.Score.Priority,
		Title:       a.Title,
		Description: a.Description,
		EmittedAt:   a.EmittedAt.UnixMilli(),
	}
}

// CycleState tracks the health of one scan mode's loop. Updated at the end
// of every cycle, success or failure.
type CycleState struct {
	ModeID              string
	Interval            time.Duration
	LastRunAt           time.Time
	RunCount            int64
	LastDuration        time.Duration
	ConsecutiveFailures int
	Degraded            bool
	LastError           string
}
