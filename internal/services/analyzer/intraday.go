package analyzer

import (
	"math"
	"time"

	"FlowScan/internal/domain/models"
)

// Sub-signal names shared with the per-mode weight tables.
const (
	SignalFlow     = "flow"
	SignalGex      = "gex"
	SignalDarkPool = "darkpool"
	SignalZeroDTE  = "zerodte"
)

// Flow aggregates options flow prints into a call/put pressure signal.
// Returns ok=false when there is no premium to read. Net premium ticks,
// when present, confirm or dampen the read: prints show where size went,
// the tick series shows whether it persisted.
func Flow(alerts []models.FlowAlert, ticks []models.NetPremTick) (models.SubSignal, bool) {
	var callPrem, putPrem float64
	for _, a := range alerts {
		if a.OptionType == "CALL" {
			callPrem += a.Premium
		} else {
			putPrem += a.Premium
		}
	}
	total := callPrem + putPrem
	if total == 0 {
		return models.SubSignal{}, false
	}

	ratio := 999.0
	if putPrem > 0 {
		ratio = callPrem / putPrem
	}

	s := models.SubSignal{
		Name:      SignalFlow,
		Raw:       ratio,
		Direction: models.DirectionNeutral,
		Score:     5,
		Metadata: map[string]float64{
			"call_premium": callPrem,
			"put_premium":  putPrem,
			"prints":       float64(len(alerts)),
		},
	}
	switch {
	case ratio > 3:
		s.Direction = models.DirectionBullish
		s.Score = math.Min(10, ratio/2)
	case ratio < 1.0/3 && ratio > 0:
		s.Direction = models.DirectionBearish
		s.Score = math.Min(10, (1/ratio)/2)
	case ratio == 0:
		s.Direction = models.DirectionBearish
		s.Score = 10
	}

	if len(ticks) > 0 {
		var net float64
		for _, tk := range ticks {
			net += tk.NetCallPremium - tk.NetPutPremium
		}
		s.Metadata["net_premium"] = net
		switch {
		case s.Direction == models.DirectionBullish && net > 0,
			s.Direction == models.DirectionBearish && net < 0:
			s.Score = math.Min(10, s.Score+1)
		case s.Direction == models.DirectionBullish && net < 0,
			s.Direction == models.DirectionBearish && net > 0:
			s.Score = math.Max(0, s.Score-1)
		}
	}
	return s, true
}

// GexWall scans per-strike gamma exposure for the dominant wall near spot.
// Positive walls within 2% act as a ceiling; negative zones within 3%
// amplify moves. Score is wall magnitude relative to the threshold.
func GexWall(strikes []models.GexStrike, spot, threshold float64) (models.SubSignal, bool) {
	if len(strikes) == 0 || spot <= 0 || threshold <= 0 {
		return models.SubSignal{}, false
	}

	var best *models.GexStrike
	for i := range strikes {
		st := &strikes[i]
		distPct := (st.Strike - spot) / spot * 100
		switch {
		case st.TotalGex > threshold && math.Abs(distPct) < 2:
		case st.TotalGex < -threshold && math.Abs(distPct) < 3:
		default:
			continue
		}
		if best == nil || math.Abs(st.TotalGex) > math.Abs(best.TotalGex) {
			best = st
		}
	}
	if best == nil {
		return models.SubSignal{}, false
	}

	dir := models.DirectionNeutral
	if best.TotalGex > 0 {
		// Dealers sell into strength at a positive wall: ceiling above
		// spot, floor below.
		if best.Strike >= spot {
			dir = models.DirectionBearish
		} else {
			dir = models.DirectionBullish
		}
	}
	return models.SubSignal{
		Name:      SignalGex,
		Raw:       best.TotalGex,
		Score:     math.Min(10, math.Abs(best.TotalGex)/threshold),
		Direction: dir,
		Metadata: map[string]float64{
			"strike":       best.Strike,
			"distance_pct": (best.Strike - spot) / spot * 100,
		},
	}, true
}

type dpLevel struct {
	trades int
	volume int64
	value  float64
}

// DarkPool clusters off-exchange prints into $0.50 price buckets and
// surfaces the strongest institutional level within 2% of spot. A level
// qualifies with at least 5 prints and $1M notional.
func DarkPool(trades []models.DarkPoolTrade, spot float64) (models.SubSignal, bool) {
	if len(trades) == 0 || spot <= 0 {
		return models.SubSignal{}, false
	}

	levels := make(map[float64]*dpLevel)
	for _, t := range trades {
		bucket := math.Round(t.Price*2) / 2
		lv := levels[bucket]
		if lv == nil {
			lv = &dpLevel{}
			levels[bucket] = lv
		}
		lv.trades++
		lv.volume += t.Size
		lv.value += t.Price * float64(t.Size)
	}

	var bestPrice float64
	var best *dpLevel
	for price, lv := range levels {
		if lv.trades < 5 || lv.value <= 1_000_000 {
			continue
		}
		if math.Abs((price-spot)/spot*100) >= 2 {
			continue
		}
		if best == nil || lv.value > best.value {
			best, bestPrice = lv, price
		}
	}
	if best == nil {
		return models.SubSignal{}, false
	}

	dir := models.DirectionBullish // level below spot reads as support
	if bestPrice > spot {
		dir = models.DirectionBearish
	}
	return models.SubSignal{
		Name:      SignalDarkPool,
		Raw:       bestPrice,
		Score:     math.Min(10, float64(best.trades)),
		Direction: dir,
		Metadata: map[string]float64{
			"price_level": bestPrice,
			"trades":      float64(best.trades),
			"volume":      float64(best.volume),
			"value":       best.value,
		},
	}, true
}

// ZeroDTE looks for same-day-expiry volume concentration at a single
// strike, the classic gamma squeeze setup.
func ZeroDTE(alerts []models.FlowAlert, spot float64, now time.Time) (models.SubSignal, bool) {
	today := now.Format("2006-01-02")

	type sv struct {
		callVol int
		putVol  int
		premium float64
	}
	byStrike := make(map[float64]*sv)
	for _, a := range alerts {
		if a.Expiry != today {
			continue
		}
		v := byStrike[a.Strike]
		if v == nil {
			v = &sv{}
			byStrike[a.Strike] = v
		}
		if a.OptionType == "CALL" {
			v.callVol += a.Volume
		} else {
			v.putVol += a.Volume
		}
		v.premium += a.Premium
	}

	var bestStrike float64
	var best *sv
	for strike, v := range byStrike {
		total := v.callVol + v.putVol
		if total <= 1000 {
			continue
		}
		if best == nil || total > best.callVol+best.putVol {
			best, bestStrike = v, strike
		}
	}
	if best == nil {
		return models.SubSignal{}, false
	}

	dir := models.DirectionNeutral
	if best.callVol > best.putVol*2 {
		dir = models.DirectionBullish
	} else if best.putVol > best.callVol*2 {
		dir = models.DirectionBearish
	}
	total := best.callVol + best.putVol
	return models.SubSignal{
		Name:      SignalZeroDTE,
		Raw:       float64(total),
		Score:     math.Min(10, float64(total)/200),
		Direction: dir,
		Metadata: map[string]float64{
			"strike":      bestStrike,
			"call_volume": float64(best.callVol),
			"put_volume":  float64(best.putVol),
			"premium":     best.premium,
		},
	}, true
}

// PriceLevel extracts the price level a sub-signal points at, falling back
// to spot for signals without one.
func PriceLevel(s models.SubSignal, spot float64) float64 {
	for _, key := range []string{"price_level", "strike"} {
		if v, ok := s.Metadata[key]; ok {
			return v
		}
	}
	return spot
}
