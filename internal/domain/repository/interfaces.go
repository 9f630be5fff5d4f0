package repository

import (
	"context"
	"time"

	"FlowScan/internal/domain/models"
)

// MarketStream is the long-lived subscribe channel to the provider.
type MarketStream interface {
	Start(ctx context.Context) error
	Subscribe(ctx context.Context, channel string, h func(models.StreamEvent)) error
	Unsubscribe(ctx context.Context, channel string) error
	Close() error
	IsConnected() bool
}

// Dispatcher delivers an emitted alert to one outbound channel. Failures
// are the dispatcher's to retry; the core only logs them.
type Dispatcher interface {
	Dispatch(ctx context.Context, a *models.AlertRecord) error
	Name() string
}

// AlertStore persists emitted alerts.
type AlertStore interface {
	Init(ctx context.Context) error
	StoreAlert(ctx context.Context, a *models.AlertRecord) error
	RecentAlerts(ctx context.Context, mode string, since time.Time, limit int) ([]*models.AlertRecord, error)
	Health(ctx context.Context) error
	Close() error
}

// AlertAuditStore records alerts replayed off the bus into the audit
// trail.
type AlertAuditStore interface {
	StoreAudit(ctx context.Context, m *models.AlertMessage) error
}

// CycleStateStore persists per-mode scan cycle state.
type CycleStateStore interface {
	StoreCycle(ctx context.Context, s *models.CycleState) error
}

// Metrics is the observability sink shared by all subsystems.
type Metrics interface {
	RecordRequest(endpoint, outcome string)
	RecordCache(endpoint string, hit bool)
	RecordThrottle()
	RecordRefillRate(tokensPerSec float64)
	RecordScanDuration(mode string, seconds float64)
	RecordAlert(mode string, emitted bool)
	RecordStreamEvent(channel string)
	RecordError(kind string)
}

// NopMetrics discards all observations.
type NopMetrics struct{}

func (NopMetrics) RecordRequest(string, string)      {}
func (NopMetrics) RecordCache(string, bool)          {}
func (NopMetrics) RecordThrottle()                   {}
func (NopMetrics) RecordRefillRate(float64)          {}
func (NopMetrics) RecordScanDuration(string, float64) {}
func (NopMetrics) RecordAlert(string, bool)          {}
func (NopMetrics) RecordStreamEvent(string)          {}
func (NopMetrics) RecordError(string)                {}

// Clock abstracts time for the governor and the dedup gate so cooldown and
// refill behavior is testable without real sleeps.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
