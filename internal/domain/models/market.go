package models

import "time"

// FlowAlert is a single options flow print from the provider.
type FlowAlert struct {
	Ticker     string  `json:"ticker"`
	OptionType string  `json:"option_type"` // "CALL" or "PUT"
	Strike     float64 `json:"strike"`
	Expiry     string  `json:"expiry"` // YYYY-MM-DD
	Premium    float64 `json:"premium"`
	Volume     int     `json:"volume"`
	Side       string  `json:"side"`
	ExecutedAt int64   `json:"executed_at"` // unix ms
}

// GexStrike is gamma exposure aggregated at a single strike.
type GexStrike struct {
	Strike   float64 `json:"strike"`
	CallGex  float64 `json:"call_gex"`
	PutGex   float64 `json:"put_gex"`
	TotalGex float64 `json:"total_gex"`
}

// SpotExposure is the ticker-level gamma exposure summary.
type SpotExposure struct {
	Ticker   string  `json:"ticker"`
	Gex      float64 `json:"gex"`
	DeltaExp float64 `json:"delta_exposure"`
	Date     string  `json:"date"`
}

// DarkPoolTrade is an off-exchange print.
type DarkPoolTrade struct {
	Ticker     string  `json:"ticker"`
	Price      float64 `json:"price"`
	Size       int64   `json:"size"`
	ExecutedAt int64   `json:"executed_at"` // unix ms
}

// NetPremTick is one interval of net call/put premium.
type NetPremTick struct {
	Timestamp      int64   `json:"timestamp"`
	NetCallPremium float64 `json:"net_call_premium"`
	NetPutPremium  float64 `json:"net_put_premium"`
}

// StockState is the current quote snapshot for a ticker.
type StockState struct {
	Ticker string  `json:"ticker"`
	Price  float64 `json:"price"`
	Volume int64   `json:"volume"`
}

// Greeks holds ticker-level aggregate greeks.
type Greeks struct {
	Ticker string  `json:"ticker"`
	Delta  float64 `json:"delta"`
	Gamma  float64 `json:"gamma"`
	Vega   float64 `json:"vega"`
	Theta  float64 `json:"theta"`
	IV     float64 `json:"implied_volatility"`
}

// OIStrike is open interest at a single strike.
type OIStrike struct {
	Strike float64 `json:"strike"`
	CallOI int64   `json:"call_oi"`
	PutOI  int64   `json:"put_oi"`
}

// OIExpiry is open interest aggregated per expiry date.
type OIExpiry struct {
	Expiry string `json:"expiry"`
	CallOI int64  `json:"call_oi"`
	PutOI  int64  `json:"put_oi"`
}

// InstitutionFiling is one 13F position change.
type InstitutionFiling struct {
	Institution string  `json:"institution"`
	Ticker      string  `json:"ticker"`
	Value       float64 `json:"value"`
	ChangePct   float64 `json:"change_pct"`
	FiledAt     string  `json:"filed_at"`
}

// ShortsData is the short interest snapshot for a ticker.
type ShortsData struct {
	Ticker        string  `json:"ticker"`
	ShortInterest int64   `json:"short_interest"`
	FloatPct      float64 `json:"float_pct"`
	DaysToCover   float64 `json:"days_to_cover"`
}

// NewsHeadline is a scored provider headline.
type NewsHeadline struct {
	Ticker    string  `json:"ticker"`
	Headline  string  `json:"headline"`
	Sentiment float64 `json:"sentiment"` // -1..1
	CreatedAt string  `json:"created_at"`
}

// StreamEvent is a raw message delivered on a websocket channel.
type StreamEvent struct {
	Channel    string
	Payload    []byte
	ReceivedAt time.Time
}
