package modes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FlowScan/internal/domain/models"
	"FlowScan/internal/service/scoring"
	"FlowScan/pkg/logger"
)

type fakeFetcher struct {
	states     map[string]models.StockState
	flows      map[string][]models.FlowAlert
	ticks      map[string][]models.NetPremTick
	strikes    map[string][]models.GexStrike
	darks      map[string][]models.DarkPoolTrade
	greeks     map[string]models.Greeks
	oi         map[string][]models.OIStrike
	oiExpiry   map[string][]models.OIExpiry
	filings    map[string][]models.InstitutionFiling
	ownership  map[string][]models.InstitutionFiling
	shorts     map[string]models.ShortsData
	shortFloat map[string]models.ShortsData
	news       map[string][]models.NewsHeadline
	errs       map[string]error
}

var errFetch = errors.New("fetch failed")

func (f *fakeFetcher) fail(key string) error { return f.errs[key] }

func (f *fakeFetcher) StockState(_ context.Context, t string) (models.StockState, error) {
	if err := f.fail("state:" + t); err != nil {
		return models.StockState{}, err
	}
	return f.states[t], nil
}

func (f *fakeFetcher) FlowAlerts(_ context.Context, t string, _ int) ([]models.FlowAlert, error) {
	return f.flows[t], f.fail("flow:" + t)
}

func (f *fakeFetcher) NetPremTicks(_ context.Context, t string) ([]models.NetPremTick, error) {
	return f.ticks[t], f.fail("ticks:" + t)
}

func (f *fakeFetcher) SpotExposuresByStrike(_ context.Context, t string) ([]models.GexStrike, error) {
	return f.strikes[t], f.fail("gex:" + t)
}

func (f *fakeFetcher) SpotExposures(_ context.Context, t string) (models.SpotExposure, error) {
	return models.SpotExposure{}, f.fail("spot:" + t)
}

func (f *fakeFetcher) DarkPoolTrades(_ context.Context, t string, _ int) ([]models.DarkPoolTrade, error) {
	return f.darks[t], f.fail("dark:" + t)
}

func (f *fakeFetcher) Greeks(_ context.Context, t string) (models.Greeks, error) {
	return f.greeks[t], f.fail("greeks:" + t)
}

func (f *fakeFetcher) OIPerStrike(_ context.Context, t string) ([]models.OIStrike, error) {
	return f.oi[t], f.fail("oi:" + t)
}

func (f *fakeFetcher) OIPerExpiry(_ context.Context, t string) ([]models.OIExpiry, error) {
	return f.oiExpiry[t], f.fail("oiexp:" + t)
}

func (f *fakeFetcher) LatestFilings(_ context.Context, t string) ([]models.InstitutionFiling, error) {
	return f.filings[t], f.fail("filings:" + t)
}

func (f *fakeFetcher) InstitutionOwnership(_ context.Context, t string) ([]models.InstitutionFiling, error) {
	return f.ownership[t], f.fail("ownership:" + t)
}

func (f *fakeFetcher) ShortsData(_ context.Context, t string) (models.ShortsData, error) {
	return f.shorts[t], f.fail("shorts:" + t)
}

func (f *fakeFetcher) ShortInterestFloat(_ context.Context, t string) (models.ShortsData, error) {
	return f.shortFloat[t], f.fail("shortfloat:" + t)
}

func (f *fakeFetcher) NewsHeadlines(_ context.Context, t string, _ int) ([]models.NewsHeadline, error) {
	return f.news[t], f.fail("news:" + t)
}

type emptyBook struct{}

func (emptyBook) Flows(string) []models.FlowAlert        { return nil }
func (emptyBook) DarkPool(string) []models.DarkPoolTrade { return nil }
func (emptyBook) Price(string) (float64, bool)           { return 0, false }

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	return log
}

func intradayEngine(t *testing.T) *scoring.Engine {
	t.Helper()
	e, err := scoring.NewEngine(map[string]float64{
		"flow": 0.35, "gex": 0.30, "darkpool": 0.20, "zerodte": 0.15,
	})
	require.NoError(t, err)
	return e
}

func bullishFixture() *fakeFetcher {
	return &fakeFetcher{
		states: map[string]models.StockState{"SPY": {Ticker: "SPY", Price: 500}},
		flows: map[string][]models.FlowAlert{"SPY": {
			{Ticker: "SPY", OptionType: "CALL", Premium: 900_000, Volume: 800, Strike: 505, Expiry: "2030-01-01"},
			{Ticker: "SPY", OptionType: "PUT", Premium: 100_000, Volume: 100, Strike: 495, Expiry: "2030-01-01"},
		}},
		strikes: map[string][]models.GexStrike{"SPY": {
			{Strike: 495, TotalGex: 4e9},
		}},
		darks: map[string][]models.DarkPoolTrade{"SPY": {
			{Ticker: "SPY", Price: 498, Size: 3000}, {Ticker: "SPY", Price: 498, Size: 3000},
			{Ticker: "SPY", Price: 498, Size: 3000}, {Ticker: "SPY", Price: 498, Size: 3000},
			{Ticker: "SPY", Price: 498, Size: 3000}, {Ticker: "SPY", Price: 498, Size: 3000},
		}},
		errs: map[string]error{},
	}
}

func TestIntradayScanProducesRankedComposites(t *testing.T) {
	f := bullishFixture()
	m := NewIntraday(IntradayConfig{
		Tickers: []string{"SPY"}, Interval: time.Minute, GexThreshold: 1e9,
	}, f, emptyBook{}, intradayEngine(t), testLogger(t))

	scores, err := m.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, scores, 1)

	s := scores[0]
	assert.Equal(t, "SPY", s.Ticker)
	assert.Equal(t, models.DirectionBullish, s.Direction)
	assert.Equal(t, "flow", s.SignalType) // highest weight present
	assert.NotEmpty(t, s.Components)
	assert.Greater(t, s.Value, 0.0)
}

func TestIntradayMissingFeedBecomesMissingComponent(t *testing.T) {
	f := bullishFixture()
	f.errs["gex:SPY"] = errFetch
	f.errs["dark:SPY"] = errFetch

	m := NewIntraday(IntradayConfig{
		Tickers: []string{"SPY"}, Interval: time.Minute,
	}, f, emptyBook{}, intradayEngine(t), testLogger(t))

	scores, err := m.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, scores, 1)

	names := map[string]bool{}
	for _, c := range scores[0].Components {
		names[c.Name] = true
	}
	assert.True(t, names["flow"])
	assert.False(t, names["gex"])
	assert.False(t, names["darkpool"])
}

func TestIntradayAllTickersFailedIsCycleError(t *testing.T) {
	f := bullishFixture()
	f.errs["state:SPY"] = errFetch

	m := NewIntraday(IntradayConfig{
		Tickers: []string{"SPY"}, Interval: time.Minute,
	}, f, emptyBook{}, intradayEngine(t), testLogger(t))

	_, err := m.Scan(context.Background())
	assert.Error(t, err)
}

func TestIntradayRankingIsScoreDescending(t *testing.T) {
	f := bullishFixture()
	f.states["QQQ"] = models.StockState{Ticker: "QQQ", Price: 430}
	f.flows["QQQ"] = []models.FlowAlert{
		{Ticker: "QQQ", OptionType: "CALL", Premium: 400_000},
		{Ticker: "QQQ", OptionType: "PUT", Premium: 100_000},
	}

	m := NewIntraday(IntradayConfig{
		Tickers: []string{"QQQ", "SPY"}, Interval: time.Minute,
	}, f, emptyBook{}, intradayEngine(t), testLogger(t))

	scores, err := m.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.GreaterOrEqual(t, scores[0].Value, scores[1].Value)
}

type priceBook struct{ price float64 }

func (b priceBook) Flows(string) []models.FlowAlert        { return nil }
func (b priceBook) DarkPool(string) []models.DarkPoolTrade { return nil }
func (b priceBook) Price(string) (float64, bool)           { return b.price, true }

func TestIntradayPrefersStreamedPrice(t *testing.T) {
	f := bullishFixture()
	// Streamed price far from the dark pool level pushes it out of range.
	m := NewIntraday(IntradayConfig{
		Tickers: []string{"SPY"}, Interval: time.Minute,
	}, f, priceBook{price: 560}, intradayEngine(t), testLogger(t))

	scores, err := m.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, scores, 1)
	for _, c := range scores[0].Components {
		assert.NotEqual(t, "darkpool", c.Name)
	}
}

func TestSwingScan(t *testing.T) {
	f := &fakeFetcher{
		states: map[string]models.StockState{"AAPL": {Ticker: "AAPL", Price: 210}},
		greeks: map[string]models.Greeks{"AAPL": {Ticker: "AAPL", IV: 0.85, Delta: 0.4}},
		oi: map[string][]models.OIStrike{"AAPL": {
			{Strike: 220, CallOI: 50_000, PutOI: 5_000},
			{Strike: 200, CallOI: 10_000, PutOI: 5_000},
		}},
		errs: map[string]error{"spot:AAPL": errFetch},
	}
	e, err := scoring.NewEngine(map[string]float64{
		"volatility": 0.40, "oi_concentration": 0.35, "gamma": 0.25,
	})
	require.NoError(t, err)

	m := NewSwing(SwingConfig{Tickers: []string{"AAPL"}, Interval: time.Hour}, f, e, testLogger(t))
	scores, err := m.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, "swing", m.ID())
	assert.Equal(t, models.DirectionBullish, scores[0].Direction)
}

func TestLongtermScan(t *testing.T) {
	f := &fakeFetcher{
		states: map[string]models.StockState{"GME": {Ticker: "GME", Price: 28}},
		filings: map[string][]models.InstitutionFiling{"GME": {
			{ChangePct: 10}, {ChangePct: 4}, {ChangePct: 7},
		}},
		shorts: map[string]models.ShortsData{"GME": {
			Ticker: "GME", ShortInterest: 60_000_000, FloatPct: 0.24, DaysToCover: 6,
		}},
		news: map[string][]models.NewsHeadline{"GME": {
			{Sentiment: 0.5}, {Sentiment: 0.3},
		}},
		errs: map[string]error{},
	}
	e, err := scoring.NewEngine(map[string]float64{
		"institutional": 0.40, "shorts": 0.35, "sentiment": 0.25,
	})
	require.NoError(t, err)

	m := NewLongterm(LongtermConfig{Tickers: []string{"GME"}, Interval: 24 * time.Hour}, f, e, testLogger(t))
	scores, err := m.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, models.DirectionBullish, scores[0].Direction)
	assert.Equal(t, 28.0, scores[0].PriceLevel)
}
