package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FlowScan/internal/domain/models"
	drepo "FlowScan/internal/domain/repository"
	"FlowScan/internal/service/ratelimit"
	"FlowScan/internal/usecase"
	"FlowScan/pkg/logger"
)

type fakeStream struct{ connected bool }

func (f *fakeStream) Start(context.Context) error { return nil }
func (f *fakeStream) Subscribe(context.Context, string, func(models.StreamEvent)) error {
	return nil
}
func (f *fakeStream) Unsubscribe(context.Context, string) error { return nil }
func (f *fakeStream) Close() error                              { return nil }
func (f *fakeStream) IsConnected() bool                         { return f.connected }

type fakeAlertStore struct {
	rows      []*models.AlertRecord
	healthErr error
	gotMode   string
	gotSince  time.Time
	gotLimit  int
}

func (f *fakeAlertStore) Init(context.Context) error { return nil }
func (f *fakeAlertStore) StoreAlert(context.Context, *models.AlertRecord) error {
	return nil
}
func (f *fakeAlertStore) RecentAlerts(_ context.Context, mode string, since time.Time, limit int) ([]*models.AlertRecord, error) {
	f.gotMode = mode
	f.gotSince = since
	f.gotLimit = limit
	return f.rows, nil
}
func (f *fakeAlertStore) Health(context.Context) error { return f.healthErr }
func (f *fakeAlertStore) Close() error                 { return nil }

func newTestHandler(t *testing.T, store *fakeAlertStore, connected bool) (*StatusHandler, *echo.Echo) {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)

	orch := usecase.NewOrchestrator(log, drepo.NopMetrics{}, nil)
	gov := ratelimit.New(ratelimit.Config{RefillPerSec: 2, Burst: 4, FloorPerSec: 0.5})
	h := NewStatusHandler(log, orch, gov, &fakeStream{connected: connected}, store)

	e := echo.New()
	h.RegisterRoutes(e)
	return h, e
}

func TestStatusReportsQuotaAndStream(t *testing.T) {
	_, e := newTestHandler(t, &fakeAlertStore{}, true)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status int `json:"status"`
		Data   struct {
			Modes           []map[string]interface{} `json:"modes"`
			Quota           map[string]interface{}   `json:"quota"`
			StreamConnected bool                     `json:"stream_connected"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusOK, body.Status)
	assert.True(t, body.Data.StreamConnected)
	assert.Equal(t, float64(2), body.Data.Quota["refill_per_sec"])
	assert.Empty(t, body.Data.Modes)
}

func TestRecentAlertsAppliesDefaultsAndBounds(t *testing.T) {
	store := &fakeAlertStore{rows: []*models.AlertRecord{{
		ID: "a-1", Mode: "intraday", Ticker: "SPY", SignalType: "flow",
		PriceLevel: 500, EmittedAt: time.Now(),
	}}}
	_, e := newTestHandler(t, store, false)

	req := httptest.NewRequest(http.MethodGet, "/api/alerts/recent", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 50, store.gotLimit) // default limit
	assert.Equal(t, "", store.gotMode)
	assert.True(t, store.gotSince.IsZero())

	var body struct {
		Data struct {
			Rows  []models.AlertMessage `json:"rows"`
			Total int64                 `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data.Rows, 1)
	assert.Equal(t, "a-1", body.Data.Rows[0].ID)
}

func TestRecentAlertsParsesSince(t *testing.T) {
	store := &fakeAlertStore{}
	_, e := newTestHandler(t, store, false)

	req := httptest.NewRequest(http.MethodGet,
		"/api/alerts/recent?since=2026-08-28T00:00:00Z", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	want := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	assert.True(t, store.gotSince.Equal(want), "got %v", store.gotSince)

	// garbage falls back to no lower bound rather than erroring
	req = httptest.NewRequest(http.MethodGet, "/api/alerts/recent?since=yesterday", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, store.gotSince.IsZero())
}

func TestRecentAlertsRejectsBadMode(t *testing.T) {
	_, e := newTestHandler(t, &fakeAlertStore{}, false)

	req := httptest.NewRequest(http.MethodGet, "/api/alerts/recent?mode=hourly", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var body struct {
		Status int `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusBadRequest, body.Status)
}

func TestHealthzReflectsStoreHealth(t *testing.T) {
	_, e := newTestHandler(t, &fakeAlertStore{}, false)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	_, bad := newTestHandler(t, &fakeAlertStore{healthErr: errors.New("down")}, false)
	rec = httptest.NewRecorder()
	bad.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var body struct {
		Status int `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusInternalServerError, body.Status)
}
