package api

import (
	"time"

	models "FlowScan/internal/domain/models"
	drepo "FlowScan/internal/domain/repository"
	"FlowScan/internal/service/ratelimit"
	"FlowScan/internal/usecase"
	xhttp "FlowScan/pkg/http"
	xlogger "FlowScan/pkg/logger"

	"github.com/labstack/echo/v4"
)

// StatusHandler exposes scanner health and recent alerts over HTTP.
type StatusHandler struct {
	logger   *xlogger.Logger
	orch     *usecase.Orchestrator
	governor *ratelimit.Governor
	stream   drepo.MarketStream
	alerts   drepo.AlertStore
}

func NewStatusHandler(
	logger *xlogger.Logger,
	orch *usecase.Orchestrator,
	governor *ratelimit.Governor,
	stream drepo.MarketStream,
	alerts drepo.AlertStore,
) *StatusHandler {
	return &StatusHandler{
		logger:   logger,
		orch:     orch,
		governor: governor,
		stream:   stream,
		alerts:   alerts,
	}
}

func (h *StatusHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Healthz)
	g := e.Group("/api")
	g.GET("/status", h.Status)
	g.GET("/alerts/recent", h.RecentAlerts)
}

type modeStatus struct {
	Mode                string `json:"mode"`
	IntervalMs          int64  `json:"interval_ms"`
	LastRunAt           string `json:"last_run_at"`
	RunCount            int64  `json:"run_count"`
	LastDurationMs      int64  `json:"last_duration_ms"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	Degraded            bool   `json:"degraded"`
	LastError           string `json:"last_error,omitempty"`
}

type quotaStatus struct {
	Tokens               float64 `json:"tokens"`
	RefillPerSec         float64 `json:"refill_per_sec"`
	MaxRefillPerSec      float64 `json:"max_refill_per_sec"`
	BurstCeiling         int     `json:"burst_ceiling"`
	ConsecutiveThrottles int     `json:"consecutive_throttles"`
}

type statusResponse struct {
	Modes           []modeStatus `json:"modes"`
	Quota           quotaStatus  `json:"quota"`
	StreamConnected bool         `json:"stream_connected"`
}

func (h *StatusHandler) Status(c echo.Context) error {
	states := h.orch.States()
	ms := make([]modeStatus, 0, len(states))
	for _, s := range states {
		ms = append(ms, modeStatus{
			Mode:                s.ModeID,
			IntervalMs:          s.Interval.Milliseconds(),
			LastRunAt:           s.LastRunAt.UTC().Format(time.RFC3339),
			RunCount:            s.RunCount,
			LastDurationMs:      s.LastDuration.Milliseconds(),
			ConsecutiveFailures: s.ConsecutiveFailures,
			Degraded:            s.Degraded,
			LastError:           s.LastError,
		})
	}

	q := h.governor.Snapshot()
	return xhttp.SuccessResponse(c, &statusResponse{
		Modes: ms,
		Quota: quotaStatus{
			Tokens:               q.Tokens,
			RefillPerSec:         q.RefillPerSec,
			MaxRefillPerSec:      q.MaxRefillPerSec,
			BurstCeiling:         q.BurstCeiling,
			ConsecutiveThrottles: q.ConsecutiveThrottles,
		},
		StreamConnected: h.stream != nil && h.stream.IsConnected(),
	})
}

func (h *StatusHandler) RecentAlerts(c echo.Context) error {
	req := &models.RecentAlertsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	// since accepts RFC3339 or unix seconds/ms; absent means no lower bound.
	since := xhttp.ParseTimeDefault(c.QueryParam("since"), time.Time{})

	rows, err := h.alerts.RecentAlerts(c.Request().Context(), req.Mode, since, req.Limit)
	if err != nil {
		h.logger.Error("recent alerts query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	out := make([]models.AlertMessage, 0, len(rows))
	for _, a := range rows {
		out = append(out, a.ToMessage())
	}
	return xhttp.ListResponse(c, out, int64(len(out)))
}

func (h *StatusHandler) Healthz(c echo.Context) error {
	if h.alerts != nil {
		if err := h.alerts.Health(c.Request().Context()); err != nil {
			h.logger.Warn("health check degraded", xlogger.Error(err))
			return xhttp.AppErrorResponse(c, err)
		}
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}
