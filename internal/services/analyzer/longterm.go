package analyzer

import (
	"math"

	"FlowScan/internal/domain/models"
)

const (
	SignalInstitutional = "institutional"
	SignalShorts        = "shorts"
	SignalSentiment     = "sentiment"
)

// Institutional reads recent 13F position changes. Strong one-sided
// accumulation or distribution across the latest filings is the signal.
func Institutional(filings []models.InstitutionFiling) (models.SubSignal, bool) {
	if len(filings) == 0 {
		return models.SubSignal{}, false
	}

	recent := filings
	if len(recent) > 5 {
		recent = recent[:5]
	}
	var buying, selling int
	for _, f := range recent {
		if f.ChangePct > 0 {
			buying++
		} else if f.ChangePct < 0 {
			selling++
		}
	}

	s := models.SubSignal{
		Name:      SignalInstitutional,
		Raw:       float64(buying - selling),
		Score:     5,
		Direction: models.DirectionNeutral,
		Metadata: map[string]float64{
			"buying":  float64(buying),
			"selling": float64(selling),
		},
	}
	if buying > selling*2 {
		s.Score = 8
		s.Direction = models.DirectionBullish
	} else if selling > buying*2 {
		s.Score = 7.5
		s.Direction = models.DirectionBearish
	}
	return s, true
}

// ShortSqueeze scores squeeze potential from short interest and days to
// cover. High float short plus slow cover is the prime setup.
func ShortSqueeze(d models.ShortsData) (models.SubSignal, bool) {
	if d.ShortInterest == 0 && d.FloatPct == 0 {
		return models.SubSignal{}, false
	}

	score := 5.0
	switch {
	case d.FloatPct > 0.20 && d.DaysToCover > 5:
		score = 9
	case d.FloatPct > 0.15 && d.DaysToCover > 3:
		score = 7.5
	case d.FloatPct > 0.10:
		score = 6
	}

	dir := models.DirectionNeutral
	if score > 6 {
		dir = models.DirectionBullish
	}
	return models.SubSignal{
		Name:      SignalShorts,
		Raw:       d.FloatPct,
		Score:     score,
		Direction: dir,
		Metadata: map[string]float64{
			"float_pct":     d.FloatPct,
			"days_to_cover": d.DaysToCover,
		},
	}, true
}

// Sentiment averages provider headline scores (-1..1) into a 0..10 signal
// centered at 5.
func Sentiment(headlines []models.NewsHeadline) (models.SubSignal, bool) {
	if len(headlines) == 0 {
		return models.SubSignal{}, false
	}

	var sum float64
	for _, h := range headlines {
		sum += h.Sentiment
	}
	avg := sum / float64(len(headlines))

	dir := models.DirectionNeutral
	if avg > 0.2 {
		dir = models.DirectionBullish
	} else if avg < -0.2 {
		dir = models.DirectionBearish
	}
	return models.SubSignal{
		Name:      SignalSentiment,
		Raw:       avg,
		Score:     math.Min(10, math.Max(0, 5+avg*5)),
		Direction: dir,
		Metadata:  map[string]float64{"headlines": float64(len(headlines))},
	}, true
}
