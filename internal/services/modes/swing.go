package modes

import (
	"context"
	"fmt"
	"time"

	"FlowScan/internal/domain/models"
	"FlowScan/internal/service/scoring"
	"FlowScan/internal/services/analyzer"
	"FlowScan/pkg/logger"
)

// Swing scans a watchlist on a slower cadence for 30-45 DTE setups:
// volatility extremes, open-interest build-up, and gamma positioning.
type Swing struct {
	tickers  []string
	interval time.Duration
	fetcher  Fetcher
	engine   *scoring.Engine
	log      *logger.Logger
}

type SwingConfig struct {
	Tickers  []string
	Interval time.Duration
}

func NewSwing(cfg SwingConfig, f Fetcher, engine *scoring.Engine, log *logger.Logger) *Swing {
	return &Swing{
		tickers:  cfg.Tickers,
		interval: cfg.Interval,
		fetcher:  f,
		engine:   engine,
		log:      log,
	}
}

func (m *Swing) ID() string { return "swing" }

func (m *Swing) Interval() time.Duration { return m.interval }

func (m *Swing) Scan(ctx context.Context) ([]models.CompositeScore, error) {
	var out []models.CompositeScore
	var failed int
	for _, ticker := range m.tickers {
		score, err := m.scanTicker(ctx, ticker)
		if err != nil {
			failed++
			m.log.Warn("swing ticker scan failed",
				logger.String("ticker", ticker), logger.Error(err))
			continue
		}
		if score != nil {
			out = append(out, *score)
		}
	}
	if failed == len(m.tickers) {
		return nil, fmt.Errorf("swing: all %d tickers failed", failed)
	}
	return rank(out), nil
}

func (m *Swing) scanTicker(ctx context.Context, ticker string) (*models.CompositeScore, error) {
	state, err := m.fetcher.StockState(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("stock state: %w", err)
	}
	if state.Price <= 0 {
		return nil, fmt.Errorf("no usable spot price")
	}

	greeks, err := m.fetcher.Greeks(ctx, ticker)
	if err != nil {
		m.log.Debug("greeks fetch degraded", logger.String("ticker", ticker), logger.Error(err))
	}
	oi, err := m.fetcher.OIPerStrike(ctx, ticker)
	if err != nil {
		m.log.Debug("oi fetch degraded", logger.String("ticker", ticker), logger.Error(err))
	}
	expiries, err := m.fetcher.OIPerExpiry(ctx, ticker)
	if err != nil {
		m.log.Debug("oi expiry fetch degraded", logger.String("ticker", ticker), logger.Error(err))
	}
	spot, err := m.fetcher.SpotExposures(ctx, ticker)
	if err != nil {
		m.log.Debug("spot exposure fetch degraded", logger.String("ticker", ticker), logger.Error(err))
	}

	components := make(map[string]models.SubSignal)
	if s, ok := analyzer.Volatility(greeks); ok {
		components[s.Name] = s
	}
	if s, ok := analyzer.OIConcentration(oi, expiries); ok {
		components[s.Name] = s
	}
	if s, ok := analyzer.GammaPressure(greeks, spot); ok {
		components[s.Name] = s
	}
	if len(components) == 0 {
		return nil, nil
	}

	score, err := m.engine.Score(components)
	if err != nil {
		return nil, err
	}
	score.Ticker = ticker
	score.SignalType = dominant(score.Components)
	score.PriceLevel = analyzer.PriceLevel(components[score.SignalType], state.Price)
	return &score, nil
}
