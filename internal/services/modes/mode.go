package modes

import (
	"context"
	"sort"
	"time"

	"FlowScan/internal/domain/models"
)

// Fetcher is the slice of the REST client the scan modes consume.
type Fetcher interface {
	FlowAlerts(ctx context.Context, ticker string, limit int) ([]models.FlowAlert, error)
	NetPremTicks(ctx context.Context, ticker string) ([]models.NetPremTick, error)
	SpotExposures(ctx context.Context, ticker string) (models.SpotExposure, error)
	SpotExposuresByStrike(ctx context.Context, ticker string) ([]models.GexStrike, error)
	DarkPoolTrades(ctx context.Context, ticker string, limit int) ([]models.DarkPoolTrade, error)
	StockState(ctx context.Context, ticker string) (models.StockState, error)
	Greeks(ctx context.Context, ticker string) (models.Greeks, error)
	OIPerStrike(ctx context.Context, ticker string) ([]models.OIStrike, error)
	OIPerExpiry(ctx context.Context, ticker string) ([]models.OIExpiry, error)
	LatestFilings(ctx context.Context, ticker string) ([]models.InstitutionFiling, error)
	InstitutionOwnership(ctx context.Context, ticker string) ([]models.InstitutionFiling, error)
	ShortsData(ctx context.Context, ticker string) (models.ShortsData, error)
	ShortInterestFloat(ctx context.Context, ticker string) (models.ShortsData, error)
	NewsHeadlines(ctx context.Context, ticker string, limit int) ([]models.NewsHeadline, error)
}

// LiveBook is the slice of the streamed market state modes read.
type LiveBook interface {
	Flows(ticker string) []models.FlowAlert
	DarkPool(ticker string) []models.DarkPoolTrade
	Price(ticker string) (float64, bool)
}

// rank orders composites score-descending, ties broken by ticker for a
// stable order.
func rank(scores []models.CompositeScore) []models.CompositeScore {
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Value != scores[j].Value {
			return scores[i].Value > scores[j].Value
		}
		return scores[i].Ticker < scores[j].Ticker
	})
	return scores
}

// dominant returns the name of the highest-weighted component present,
// which becomes the composite's signal type.
func dominant(components []models.Component) string {
	if len(components) == 0 {
		return "composite"
	}
	// Components are already ordered weight-descending by the engine.
	return components[0].Name
}

// nowFunc is swapped in tests that need a fixed trading day.
var nowFunc = time.Now
