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

// Longterm runs the slowest cadence, hunting conviction setups from
// institutional filings, short interest, and news sentiment.
type Longterm struct {
	tickers  []string
	interval time.Duration
	fetcher  Fetcher
	engine   *scoring.Engine
	log      *logger.Logger
}

type LongtermConfig struct {
	Tickers  []string
	Interval time.Duration
}

func NewLongterm(cfg LongtermConfig, f Fetcher, engine *scoring.Engine, log *logger.Logger) *Longterm {
	return &Longterm{
		tickers:  cfg.Tickers,
		interval: cfg.Interval,
		fetcher:  f,
		engine:   engine,
		log:      log,
	}
}

func (m *Longterm) ID() string { return "longterm" }

func (m *Longterm) Interval() time.Duration { return m.interval }

func (m *Longterm) Scan(ctx context.Context) ([]models.CompositeScore, error) {
	var out []models.CompositeScore
	var failed int
	for _, ticker := range m.tickers {
		score, err := m.scanTicker(ctx, ticker)
		if err != nil {
			failed++
			m.log.Warn("longterm ticker scan failed",
				logger.String("ticker", ticker), logger.Error(err))
			continue
		}
		if score != nil {
			out = append(out, *score)
		}
	}
	if failed == len(m.tickers) {
		return nil, fmt.Errorf("longterm: all %d tickers failed", failed)
	}
	return rank(out), nil
}

func (m *Longterm) scanTicker(ctx context.Context, ticker string) (*models.CompositeScore, error) {
	state, err := m.fetcher.StockState(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("stock state: %w", err)
	}
	if state.Price <= 0 {
		return nil, fmt.Errorf("no usable spot price")
	}

	filings, err := m.fetcher.LatestFilings(ctx, ticker)
	if err != nil {
		m.log.Debug("filings fetch degraded", logger.String("ticker", ticker), logger.Error(err))
	}
	if len(filings) == 0 {
		// 13F deltas lag; fall back to the ownership snapshot.
		if own, oerr := m.fetcher.InstitutionOwnership(ctx, ticker); oerr == nil {
			filings = own
		}
	}
	shorts, err := m.fetcher.ShortsData(ctx, ticker)
	if err != nil {
		m.log.Debug("shorts fetch degraded", logger.String("ticker", ticker), logger.Error(err))
		if alt, aerr := m.fetcher.ShortInterestFloat(ctx, ticker); aerr == nil {
			shorts = alt
		}
	}
	news, err := m.fetcher.NewsHeadlines(ctx, ticker, 25)
	if err != nil {
		m.log.Debug("news fetch degraded", logger.String("ticker", ticker), logger.Error(err))
	}

	components := make(map[string]models.SubSignal)
	if s, ok := analyzer.Institutional(filings); ok {
		components[s.Name] = s
	}
	if s, ok := analyzer.ShortSqueeze(shorts); ok {
		components[s.Name] = s
	}
	if s, ok := analyzer.Sentiment(news); ok {
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
	score.PriceLevel = state.Price
	return &score, nil
}
