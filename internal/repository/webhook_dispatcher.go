package repository

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"FlowScan/internal/domain/models"
	"FlowScan/internal/domain/repository"
	xhttp "FlowScan/pkg/http"
)

// DiscordDispatcher posts emitted alerts to a Discord webhook as embeds.
type DiscordDispatcher struct {
	client     *xhttp.Client
	webhookURL string
}

// NewDiscordDispatcher creates a Discord webhook dispatcher.
func NewDiscordDispatcher(client *xhttp.Client, webhookURL string) repository.Dispatcher {
	return &DiscordDispatcher{client: client, webhookURL: webhookURL}
}

func (d *DiscordDispatcher) Name() string { return "discord" }

func (d *DiscordDispatcher) Dispatch(ctx context.Context, a *models.AlertRecord) error {
	embed := map[string]interface{}{
		"title":       a.Title,
		"description": a.Description,
		"color":       embedColor(a.Score.Direction),
		"fields": []map[string]interface{}{
			{"name": "Score", "value": fmt.Sprintf("%.1f / 10", a.Score.Value), "inline": true},
			{"name": "Strength", "value": string(a.Score.Strength), "inline": true},
			{"name": "Confidence", "value": string(a.Score.Confidence), "inline": true},
			{"name": "Level", "value": fmt.Sprintf("$%.2f", a.PriceLevel), "inline": true},
		},
		"timestamp": a.EmittedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	body := map[string]interface{}{
		"embeds": []map[string]interface{}{embed},
	}

	resp, err := d.client.SendRequest(ctx, &xhttp.RequestOptions{
		Method: http.MethodPost,
		URL:    d.webhookURL,
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook: status %d", resp.StatusCode)
	}
	return nil
}

func embedColor(dir models.Direction) int {
	switch dir {
	case models.DirectionBullish:
		return 0x2ecc71
	case models.DirectionBearish:
		return 0xe74c3c
	default:
		return 0x95a5a6
	}
}

// TelegramDispatcher sends emitted alerts through the Telegram Bot API.
type TelegramDispatcher struct {
	client  *xhttp.Client
	token   string
	chatID  string
	apiBase string
}

// NewTelegramDispatcher creates a Telegram dispatcher.
func NewTelegramDispatcher(client *xhttp.Client, token, chatID string) repository.Dispatcher {
	return &TelegramDispatcher{
		client:  client,
		token:   token,
		chatID:  chatID,
		apiBase: "https://api.telegram.org",
	}
}

func (t *TelegramDispatcher) Name() string { return "telegram" }

func (t *TelegramDispatcher) Dispatch(ctx context.Context, a *models.AlertRecord) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*%s*\n", a.Title)
	fmt.Fprintf(&sb, "%s\n", a.Description)
	fmt.Fprintf(&sb, "Score %.1f/10 (%s, %s confidence) at $%.2f",
		a.Score.Value, a.Score.Strength, a.Score.Confidence, a.PriceLevel)

	resp, err := t.client.SendRequest(ctx, &xhttp.RequestOptions{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token),
		Body: map[string]interface{}{
			"chat_id":    t.chatID,
			"text":       sb.String(),
			"parse_mode": "Markdown",
		},
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("telegram send: status %d", resp.StatusCode)
	}
	return nil
}
