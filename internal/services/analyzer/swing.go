package analyzer

import (
	"math"

	"FlowScan/internal/domain/models"
)

const (
	SignalVolatility = "volatility"
	SignalOI         = "oi_concentration"
	SignalGamma      = "gamma"
)

// Volatility scores implied-volatility extremes. Both high IV (premium
// selling) and depressed IV (premium buying) are tradeable; the middle of
// the range is not.
func Volatility(g models.Greeks) (models.SubSignal, bool) {
	if g.IV <= 0 {
		return models.SubSignal{}, false
	}

	score := 5.0
	switch {
	case g.IV > 0.7:
		score = math.Min(10, 8+(g.IV-0.7)*6.67)
	case g.IV < 0.3:
		score = math.Min(10, 8+(0.3-g.IV)*6.67)
	}

	dir := models.DirectionNeutral
	if g.Delta > 0.1 {
		dir = models.DirectionBullish
	} else if g.Delta < -0.1 {
		dir = models.DirectionBearish
	}
	return models.SubSignal{
		Name:      SignalVolatility,
		Raw:       g.IV,
		Score:     score,
		Direction: dir,
		Metadata:  map[string]float64{"iv": g.IV, "delta": g.Delta},
	}, true
}

// OIConcentration measures open-interest build-up at the dominant strike.
// Heavy call-side positioning reads bullish, put-side bearish. When the
// per-expiry breakdown is available, concentration in the front expiry
// amplifies the score: the same strike build-up matters more when it all
// burns off within weeks.
func OIConcentration(strikes []models.OIStrike, expiries []models.OIExpiry) (models.SubSignal, bool) {
	if len(strikes) == 0 {
		return models.SubSignal{}, false
	}

	var totalOI, maxOI int64
	var maxStrike float64
	var callOI, putOI int64
	for _, st := range strikes {
		oi := st.CallOI + st.PutOI
		totalOI += oi
		callOI += st.CallOI
		putOI += st.PutOI
		if oi > maxOI {
			maxOI, maxStrike = oi, st.Strike
		}
	}
	if totalOI == 0 {
		return models.SubSignal{}, false
	}

	share := float64(maxOI) / float64(totalOI)
	frontShare := frontExpiryShare(expiries)
	score := math.Min(10, share*20*(0.75+0.5*frontShare))

	dir := models.DirectionNeutral
	if callOI > putOI*2 {
		dir = models.DirectionBullish
	} else if putOI > callOI*2 {
		dir = models.DirectionBearish
	}
	return models.SubSignal{
		Name:      SignalOI,
		Raw:       share,
		Score:     score,
		Direction: dir,
		Metadata: map[string]float64{
			"strike":      maxStrike,
			"call_oi":     float64(callOI),
			"put_oi":      float64(putOI),
			"max_share":   share,
			"front_share": frontShare,
		},
	}, true
}

// frontExpiryShare returns the fraction of open interest sitting in the
// nearest expiry. Expiry strings are YYYY-MM-DD so lexical order is date
// order. Returns 0.5 (neutral multiplier) when no breakdown is available.
func frontExpiryShare(expiries []models.OIExpiry) float64 {
	if len(expiries) == 0 {
		return 0.5
	}
	front := expiries[0]
	var total int64
	for _, e := range expiries {
		total += e.CallOI + e.PutOI
		if e.Expiry < front.Expiry {
			front = e
		}
	}
	if total == 0 {
		return 0.5
	}
	return float64(front.CallOI+front.PutOI) / float64(total)
}

// GammaPressure scores aggregate gamma against spot exposure. Large gamma
// near spot means dealers hedge aggressively and moves get pinned or
// amplified depending on sign.
func GammaPressure(g models.Greeks, spot models.SpotExposure) (models.SubSignal, bool) {
	if g.Gamma == 0 && spot.Gex == 0 {
		return models.SubSignal{}, false
	}

	// Normalize GEX to a 0..10 scale against a $1B reference magnitude.
	norm := math.Abs(spot.Gex) / 1e9
	dir := models.DirectionNeutral
	if spot.Gex < 0 {
		// Negative gamma: dealers chase the move.
		if spot.DeltaExp >= 0 {
			dir = models.DirectionBullish
		} else {
			dir = models.DirectionBearish
		}
	}
	return models.SubSignal{
		Name:      SignalGamma,
		Raw:       spot.Gex,
		Score:     math.Min(10, norm*5),
		Direction: dir,
		Metadata:  map[string]float64{"gex": spot.Gex, "gamma": g.Gamma},
	}, true
}
