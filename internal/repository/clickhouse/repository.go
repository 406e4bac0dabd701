package clickhouse

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shopspring/decimal"

	"github.com/pennywise-app/nudge-engine/internal/domain"
)

// Repository implements repository.SnapshotRepository for ClickHouse.
//
// Snapshots live in a ReplacingMergeTree keyed on (user_id, date): re-running
// aggregation for a day inserts a higher-versioned row that replaces the old
// one at merge time, so reruns are idempotent. The table TTL enforces the
// 90-day retention window.
type Repository struct {
	client *Client
	log    *zap.Logger
}

// NewRepository creates a new ClickHouse snapshot repository
func NewRepository(client *Client, log *zap.Logger) *Repository {
	return &Repository{
		client: client,
		log:    log,
	}
}

// InitSchema initializes the ClickHouse schema with ReplacingMergeTree engine
func (r *Repository) InitSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS signal_snapshots (
		user_id String,
		date Date,
		metrics String,
		computed_at DateTime64(3) DEFAULT now64(3),
		version UInt64
	) ENGINE = ReplacingMergeTree(version)
	PRIMARY KEY (user_id, date)
	ORDER BY (user_id, date)
	PARTITION BY toYYYYMM(date)
	TTL date + INTERVAL 90 DAY
	SETTINGS index_granularity = 8192
	`

	if err := r.client.Conn().Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create signal_snapshots table: %w", err)
	}

	r.log.Info("ClickHouse schema initialized successfully")
	return nil
}

// InsertSnapshot writes one snapshot row. The version stamp makes the latest
// write win when rows for the same (user, date) collapse.
func (r *Repository) InsertSnapshot(ctx context.Context, snapshot *domain.SignalSnapshot) error {
	if snapshot.Version == 0 {
		snapshot.Version = uint64(time.Now().UnixNano())
	}

	metricsJSON, err := json.Marshal(snapshot.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot metrics: %w", err)
	}

	query := `INSERT INTO signal_snapshots (user_id, date, metrics, computed_at, version) VALUES (?, ?, ?, ?, ?)`
	if err := r.client.Conn().Exec(ctx, query,
		snapshot.UserID,
		snapshot.Date,
		string(metricsJSON),
		snapshot.ComputedAt,
		snapshot.Version,
	); err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	return nil
}

// GetSnapshot returns the latest visible snapshot for (user, date).
func (r *Repository) GetSnapshot(ctx context.Context, userID string, date time.Time) (*domain.SignalSnapshot, error) {
	query := `
		SELECT user_id, date, metrics, computed_at, version
		FROM signal_snapshots FINAL
		WHERE user_id = ? AND date = ?
	`

	var (
		gotUserID   string
		gotDate     time.Time
		metricsJSON string
		computedAt  time.Time
		version     uint64
	)

	row := r.client.Conn().QueryRow(ctx, query, userID, date)
	if err := row.Scan(&gotUserID, &gotDate, &metricsJSON, &computedAt, &version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}

	metrics := make(map[string]decimal.Decimal)
	if err := json.Unmarshal([]byte(metricsJSON), &metrics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot metrics: %w", err)
	}

	return &domain.SignalSnapshot{
		UserID:     gotUserID,
		Date:       domain.DateOf(gotDate),
		Metrics:    metrics,
		ComputedAt: computedAt,
		Version:    version,
	}, nil
}

// Ping checks if the ClickHouse connection is alive
func (r *Repository) Ping(ctx context.Context) error {
	return r.client.Conn().Ping(ctx)
}

// Close closes the ClickHouse connection
func (r *Repository) Close() error {
	return r.client.Close()
}
