package repository

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FlowScan/internal/domain/models"
	xhttp "FlowScan/pkg/http"
)

func sampleAlert() *models.AlertRecord {
	return &models.AlertRecord{
		ID:         "a-1",
		Mode:       "intraday",
		Ticker:     "SPY",
		SignalType: "gex",
		PriceLevel: 500.5,
		Title:      "SPY gex wall",
		Description: "Positive gamma wall at $500.50",
		Score: models.CompositeScore{
			Value: 7.4, Strength: models.StrengthStrong,
			Direction: models.DirectionBullish, Confidence: models.ConfidenceHigh, Priority: 7,
		},
		EmittedAt: time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC),
	}
}

func TestDiscordDispatcherPostsEmbed(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordDispatcher(xhttp.NewClient(), srv.URL)
	require.NoError(t, d.Dispatch(context.Background(), sampleAlert()))

	embeds, ok := got["embeds"].([]interface{})
	require.True(t, ok)
	require.Len(t, embeds, 1)
	embed := embeds[0].(map[string]interface{})
	assert.Equal(t, "SPY gex wall", embed["title"])
	assert.Equal(t, float64(0x2ecc71), embed["color"])
}

func TestDiscordDispatcherRejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d := NewDiscordDispatcher(xhttp.NewClient(), srv.URL)
	err := d.Dispatch(context.Background(), sampleAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestTelegramDispatcherSendsMessage(t *testing.T) {
	var path string
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	d := &TelegramDispatcher{
		client:  xhttp.NewClient(),
		token:   "tok123",
		chatID:  "-100",
		apiBase: srv.URL,
	}
	require.NoError(t, d.Dispatch(context.Background(), sampleAlert()))

	assert.Equal(t, "/bottok123/sendMessage", path)
	assert.Equal(t, "-100", got["chat_id"])
	assert.Contains(t, got["text"], "SPY gex wall")
	assert.Contains(t, got["text"], "7.4/10")
}
