package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"FlowScan/internal/domain/models"
	"FlowScan/internal/domain/repository"
	"FlowScan/pkg/clickhouse"
)

// ClickHouseAlertStore persists emitted alerts and scan cycle state.
type ClickHouseAlertStore struct {
	ch       *clickhouse.Client
	db       *sql.DB
	database string
}

// NewClickHouseAlertStore creates ClickHouse-backed alert storage.
func NewClickHouseAlertStore(ch *clickhouse.Client, database string) *ClickHouseAlertStore {
	if database == "" {
		database = "flowscan"
	}
	return &ClickHouseAlertStore{ch: ch, db: ch.DB(), database: database}
}

var _ repository.AlertStore = (*ClickHouseAlertStore)(nil)
var _ repository.CycleStateStore = (*ClickHouseAlertStore)(nil)
var _ repository.AlertAuditStore = (*ClickHouseAlertStore)(nil)

func (s *ClickHouseAlertStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, s.schema())
}

func (s *ClickHouseAlertStore) schema() []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", s.database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.alerts (
			id String,
			mode LowCardinality(String),
			ticker LowCardinality(String),
			signal_type LowCardinality(String),
			price_level Float64,
			fingerprint UInt64,
			value Float64,
			strength LowCardinality(String),
			direction LowCardinality(String),
			confidence LowCardinality(String),
			priority Int32,
			title String,
			description String,
			emitted_at DateTime64(3)
		) ENGINE=MergeTree ORDER BY (mode, ticker, emitted_at)`, s.database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.scan_cycles (
			mode LowCardinality(String),
			interval_ms Int64,
			last_run_at DateTime64(3),
			run_count Int64,
			last_duration_ms Int64,
			consecutive_failures Int32,
			degraded UInt8,
			last_error String
		) ENGINE=MergeTree ORDER BY (mode, last_run_at)`, s.database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.alerts_audit (
			id String,
			mode LowCardinality(String),
			ticker LowCardinality(String),
			signal_type LowCardinality(String),
			price_level Float64,
			fingerprint UInt64,
			value Float64,
			direction LowCardinality(String),
			emitted_at DateTime64(3),
			received_at DateTime64(3)
		) ENGINE=MergeTree ORDER BY (mode, ticker, emitted_at)`, s.database),
	}
}

func (s *ClickHouseAlertStore) StoreAlert(ctx context.Context, a *models.AlertRecord) error {
	q := fmt.Sprintf(`INSERT INTO %s.alerts
		(id, mode, ticker, signal_type, price_level, fingerprint, value, strength, direction, confidence, priority, title, description, emitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.database)
	_, err := s.db.ExecContext(ctx, q,
		a.ID,
		a.Mode,
		a.Ticker,
		a.SignalType,
		a.PriceLevel,
		a.Fingerprint,
		a.Score.Value,
		string(a.Score.Strength),
		string(a.Score.Direction),
		string(a.Score.Confidence),
		int32(a.Score.Priority),
		a.Title,
		a.Description,
		a.EmittedAt,
	)
	return err
}

func (s *ClickHouseAlertStore) RecentAlerts(ctx context.Context, mode string, since time.Time, limit int) ([]*models.AlertRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	q := fmt.Sprintf(`SELECT id, mode, ticker, signal_type, price_level, fingerprint, value, strength, direction, confidence, priority, title, description, emitted_at
		FROM %s.alerts WHERE 1 = 1`, s.database)
	args := []interface{}{}
	if mode != "" {
		q += " AND mode = ?"
		args = append(args, mode)
	}
	if !since.IsZero() {
		q += " AND emitted_at >= ?"
		args = append(args, since)
	}
	q += " ORDER BY emitted_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.AlertRecord
	for rows.Next() {
		var (
			a        models.AlertRecord
			strength string
			dir      string
			conf     string
			priority int32
			emitted  time.Time
		)
		if err := rows.Scan(
			&a.ID, &a.Mode, &a.Ticker, &a.SignalType, &a.PriceLevel, &a.Fingerprint,
			&a.Score.Value, &strength, &dir, &conf, &priority,
			&a.Title, &a.Description, &emitted,
		); err != nil {
			return nil, err
		}
		a.Score.Ticker = a.Ticker
		a.Score.SignalType = a.SignalType
		a.Score.PriceLevel = a.PriceLevel
		a.Score.Strength = models.Strength(strength)
		a.Score.Direction = models.Direction(dir)
		a.Score.Confidence = models.Confidence(conf)
		a.Score.Priority = int(priority)
		a.EmittedAt = emitted
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *ClickHouseAlertStore) StoreCycle(ctx context.Context, c *models.CycleState) error {
	q := fmt.Sprintf(`INSERT INTO %s.scan_cycles
		(mode, interval_ms, last_run_at, run_count, last_duration_ms, consecutive_failures, degraded, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, s.database)
	degraded := uint8(0)
	if c.Degraded {
		degraded = 1
	}
	_, err := s.db.ExecContext(ctx, q,
		c.ModeID,
		c.Interval.Milliseconds(),
		c.LastRunAt,
		c.RunCount,
		c.LastDuration.Milliseconds(),
		int32(c.ConsecutiveFailures),
		degraded,
		c.LastError,
	)
	return err
}

func (s *ClickHouseAlertStore) StoreAudit(ctx context.Context, m *models.AlertMessage) error {
	q := fmt.Sprintf(`INSERT INTO %s.alerts_audit
		(id, mode, ticker, signal_type, price_level, fingerprint, value, direction, emitted_at, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.database)
	_, err := s.db.ExecContext(ctx, q,
		m.ID,
		m.Mode,
		m.Ticker,
		m.SignalType,
		m.PriceLevel,
		m.Fingerprint,
		m.Value,
		m.Direction,
		time.UnixMilli(m.EmittedAt),
		time.Now(),
	)
	return err
}

func (s *ClickHouseAlertStore) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

func (s *ClickHouseAlertStore) Close() error {
	return nil // pool owned by pkg/clickhouse
}
