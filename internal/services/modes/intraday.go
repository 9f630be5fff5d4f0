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

// Intraday scans fast tickers (SPY-class) for short-dated setups: flow
// pressure, gamma walls, dark pool levels, and 0DTE volume concentration.
// Streamed prints are merged with the REST snapshot so bursts between
// cycles are not lost.
type Intraday struct {
	tickers      []string
	interval     time.Duration
	gexThreshold float64
	fetcher      Fetcher
	book         LiveBook
	engine       *scoring.Engine
	log          *logger.Logger
}

type IntradayConfig struct {
	Tickers      []string
	Interval     time.Duration
	GexThreshold float64
}

func NewIntraday(cfg IntradayConfig, f Fetcher, book LiveBook, engine *scoring.Engine, log *logger.Logger) *Intraday {
	if cfg.GexThreshold <= 0 {
		cfg.GexThreshold = 1e9
	}
	return &Intraday{
		tickers:      cfg.Tickers,
		interval:     cfg.Interval,
		gexThreshold: cfg.GexThreshold,
		fetcher:      f,
		book:         book,
		engine:       engine,
		log:          log,
	}
}

func (m *Intraday) ID() string { return "intraday" }

func (m *Intraday) Interval() time.Duration { return m.interval }

func (m *Intraday) Scan(ctx context.Context) ([]models.CompositeScore, error) {
	var out []models.CompositeScore
	var failed int
	for _, ticker := range m.tickers {
		score, err := m.scanTicker(ctx, ticker)
		if err != nil {
			failed++
			m.log.Warn("intraday ticker scan failed",
				logger.String("ticker", ticker), logger.Error(err))
			continue
		}
		if score != nil {
			out = append(out, *score)
		}
	}
	if failed == len(m.tickers) {
		return nil, fmt.Errorf("intraday: all %d tickers failed", failed)
	}
	return rank(out), nil
}

func (m *Intraday) scanTicker(ctx context.Context, ticker string) (*models.CompositeScore, error) {
	state, err := m.fetcher.StockState(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("stock state: %w", err)
	}
	spot := state.Price
	if p, ok := m.book.Price(ticker); ok {
		spot = p
	}
	if spot <= 0 {
		return nil, fmt.Errorf("no usable spot price")
	}

	// Degraded inputs become missing components, not cycle failures.
	flows, err := m.fetcher.FlowAlerts(ctx, ticker, 100)
	if err != nil {
		m.log.Debug("flow fetch degraded", logger.String("ticker", ticker), logger.Error(err))
	}
	flows = append(flows, m.book.Flows(ticker)...)

	ticks, err := m.fetcher.NetPremTicks(ctx, ticker)
	if err != nil {
		m.log.Debug("net premium fetch degraded", logger.String("ticker", ticker), logger.Error(err))
	}

	strikes, err := m.fetcher.SpotExposuresByStrike(ctx, ticker)
	if err != nil {
		m.log.Debug("gex fetch degraded", logger.String("ticker", ticker), logger.Error(err))
	}

	darks, err := m.fetcher.DarkPoolTrades(ctx, ticker, 100)
	if err != nil {
		m.log.Debug("darkpool fetch degraded", logger.String("ticker", ticker), logger.Error(err))
	}
	darks = append(darks, m.book.DarkPool(ticker)...)

	components := make(map[string]models.SubSignal)
	if s, ok := analyzer.Flow(flows, ticks); ok {
		components[s.Name] = s
	}
	if s, ok := analyzer.GexWall(strikes, spot, m.gexThreshold); ok {
		components[s.Name] = s
	}
	if s, ok := analyzer.DarkPool(darks, spot); ok {
		components[s.Name] = s
	}
	if s, ok := analyzer.ZeroDTE(flows, spot, nowFunc()); ok {
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
	score.PriceLevel = analyzer.PriceLevel(components[score.SignalType], spot)
	return &score, nil
}
