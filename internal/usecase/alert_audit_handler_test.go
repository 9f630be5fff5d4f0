package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FlowScan/internal/domain/models"
	drepo "FlowScan/internal/domain/repository"
)

type memAuditStore struct {
	mu   sync.Mutex
	rows []*models.AlertMessage
}

func (s *memAuditStore) StoreAudit(_ context.Context, m *models.AlertMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, m)
	return nil
}

func TestAuditHandlerReplaysAlert(t *testing.T) {
	store := &memAuditStore{}
	h := NewAlertAuditHandler("flowscan.alerts", store, drepo.NopMetrics{})
	assert.Equal(t, "flowscan.alerts", h.Topic())

	rec := &models.AlertRecord{
		ID:         "a-1",
		Mode:       "intraday",
		Ticker:     "SPY",
		SignalType: "flow",
		PriceLevel: 500,
		Score: models.CompositeScore{
			Value: 8.2, Strength: models.StrengthVeryStrong,
			Direction: models.DirectionBullish, Confidence: models.ConfidenceHigh, Priority: 8,
		},
		EmittedAt: time.Now(),
	}
	b, err := json.Marshal(rec.ToMessage())
	require.NoError(t, err)

	require.NoError(t, h.Handle(context.Background(), b))
	require.Len(t, store.rows, 1)
	assert.Equal(t, "a-1", store.rows[0].ID)
	assert.Equal(t, 8.2, store.rows[0].Value)
	assert.Equal(t, "bullish", store.rows[0].Direction)
}

func TestAuditHandlerRejectsGarbage(t *testing.T) {
	store := &memAuditStore{}
	h := NewAlertAuditHandler("flowscan.alerts", store, drepo.NopMetrics{})

	assert.Error(t, h.Handle(context.Background(), []byte("not json")))
	assert.Error(t, h.Handle(context.Background(), []byte(`{"ticker":"SPY"}`)))
	assert.Empty(t, store.rows)
}
