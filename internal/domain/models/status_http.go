package models

// Requests for the status HTTP endpoints. Defined in domain for consistency and reuse.

type RecentAlertsRequest struct {
	Mode  string `query:"mode" json:"mode" validate:"omitempty,oneof=intraday swing longterm"`
	Limit int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
}
