package uw

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"FlowScan/internal/domain/models"
)

// The provider wraps every payload in a {"data": ...} envelope.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

func decode[T any](c *Client, ctx context.Context, endpoint string, params url.Values, ttl time.Duration) (T, error) {
	var out T
	body, err := c.Get(ctx, endpoint, params, ttl)
	if err != nil {
		return out, err
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Data == nil {
		return out, &RequestError{Endpoint: endpoint, Class: ErrMalformed, Err: err}
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, &RequestError{Endpoint: endpoint, Class: ErrMalformed, Err: err}
	}
	return out, nil
}

func (c *Client) FlowAlerts(ctx context.Context, ticker string, limit int) ([]models.FlowAlert, error) {
	params := url.Values{"ticker_symbol": {ticker}, "limit": {strconv.Itoa(limit)}}
	return decode[[]models.FlowAlert](c, ctx, "/api/option-trades/flow-alerts", params, 0)
}

func (c *Client) SpotExposures(ctx context.Context, ticker string) (models.SpotExposure, error) {
	return decode[models.SpotExposure](c, ctx, "/api/stock/"+ticker+"/spot-exposures", nil, 0)
}

func (c *Client) SpotExposuresByStrike(ctx context.Context, ticker string) ([]models.GexStrike, error) {
	return decode[[]models.GexStrike](c, ctx, "/api/stock/"+ticker+"/spot-exposures/strike", nil, 0)
}

func (c *Client) NetPremTicks(ctx context.Context, ticker string) ([]models.NetPremTick, error) {
	return decode[[]models.NetPremTick](c, ctx, "/api/stock/"+ticker+"/net-prem-ticks", nil, 0)
}

func (c *Client) DarkPoolTrades(ctx context.Context, ticker string, limit int) ([]models.DarkPoolTrade, error) {
	params := url.Values{"limit": {strconv.Itoa(limit)}}
	return decode[[]models.DarkPoolTrade](c, ctx, "/api/darkpool/"+ticker, params, 0)
}

func (c *Client) StockState(ctx context.Context, ticker string) (models.StockState, error) {
	return decode[models.StockState](c, ctx, "/api/stock/"+ticker+"/stock-state", nil, 0)
}

func (c *Client) Greeks(ctx context.Context, ticker string) (models.Greeks, error) {
	return decode[models.Greeks](c, ctx, "/api/stock/"+ticker+"/greeks", nil, 15*time.Minute)
}

func (c *Client) OIPerStrike(ctx context.Context, ticker string) ([]models.OIStrike, error) {
	return decode[[]models.OIStrike](c, ctx, "/api/stock/"+ticker+"/oi-per-strike", nil, 15*time.Minute)
}

func (c *Client) OIPerExpiry(ctx context.Context, ticker string) ([]models.OIExpiry, error) {
	return decode[[]models.OIExpiry](c, ctx, "/api/stock/"+ticker+"/oi-per-expiry", nil, 15*time.Minute)
}

func (c *Client) InstitutionOwnership(ctx context.Context, ticker string) ([]models.InstitutionFiling, error) {
	return decode[[]models.InstitutionFiling](c, ctx, "/api/institution/"+ticker+"/ownership", nil, time.Hour)
}

func (c *Client) LatestFilings(ctx context.Context, ticker string) ([]models.InstitutionFiling, error) {
	params := url.Values{"ticker": {ticker}}
	return decode[[]models.InstitutionFiling](c, ctx, "/api/institutions/latest_filings", params, time.Hour)
}

func (c *Client) ShortsData(ctx context.Context, ticker string) (models.ShortsData, error) {
	return decode[models.ShortsData](c, ctx, "/api/shorts/"+ticker+"/data", nil, time.Hour)
}

func (c *Client) ShortInterestFloat(ctx context.Context, ticker string) (models.ShortsData, error) {
	return decode[models.ShortsData](c, ctx, "/api/shorts/"+ticker+"/interest-float", nil, time.Hour)
}

func (c *Client) NewsHeadlines(ctx context.Context, ticker string, limit int) ([]models.NewsHeadline, error) {
	params := url.Values{"ticker": {ticker}, "limit": {strconv.Itoa(limit)}}
	return decode[[]models.NewsHeadline](c, ctx, "/api/news/headlines", params, 10*time.Minute)
}
