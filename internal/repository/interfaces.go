package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pennywise-app/nudge-engine/internal/domain"
	"github.com/pennywise-app/nudge-engine/internal/rules"
)

// SnapshotRepository defines the signal store: immutable per-(user, date)
// daily snapshots with idempotent overwrite and a 90-day retention window.
type SnapshotRepository interface {
	// InsertSnapshot writes a snapshot; re-inserting for the same (user, date)
	// replaces the previous row rather than duplicating it.
	InsertSnapshot(ctx context.Context, snapshot *domain.SignalSnapshot) error

	// GetSnapshot returns the snapshot for (user, date), or domain.ErrNotFound.
	GetSnapshot(ctx context.Context, userID string, date time.Time) (*domain.SignalSnapshot, error)

	// InitSchema initializes the database schema (creates tables if they don't exist)
	InitSchema(ctx context.Context) error

	// Ping checks if the database connection is alive
	Ping(ctx context.Context) error

	// Close closes the repository and releases resources
	Close() error
}

// NudgeStore defines the transactional engine state: rule catalog, user
// preferences, deliveries, suppression records, interactions, and the
// derived responsiveness signal.
type NudgeStore interface {
	rules.CatalogSource

	// AppendRule inserts a new rule version. The catalog is append-only;
	// existing versions are never mutated.
	AppendRule(ctx context.Context, record rules.RuleRecord) error

	// ListUserIDs returns the known user population for batch runs.
	ListUserIDs(ctx context.Context) ([]string, error)

	// GetPrefs returns a user's mute and trait state, or domain.ErrNotFound.
	GetPrefs(ctx context.Context, userID string) (domain.UserPrefs, error)

	// PutPrefs upserts a user's full preference record. Trait mutation is owned
	// by user-settings flows; the engine itself only reads traits.
	PutPrefs(ctx context.Context, prefs domain.UserPrefs) error

	// UpdateMutedCategories replaces a user's muted category set.
	UpdateMutedCategories(ctx context.Context, userID string, categories []string) error

	// GetSuppression returns the record for (user, scope), or domain.ErrNotFound.
	GetSuppression(ctx context.Context, userID, scope string) (domain.SuppressionRecord, error)

	// CreateDelivery inserts the delivery and advances the user's global and
	// rule-scope suppression records in a single transaction.
	CreateDelivery(ctx context.Context, delivery *domain.Delivery) error

	// GetDelivery returns one delivery by ID, or domain.ErrNotFound.
	GetDelivery(ctx context.Context, deliveryID string) (domain.Delivery, error)

	// ListDeliveries returns a user's deliveries, delivered_at descending.
	ListDeliveries(ctx context.Context, userID string, limit int) ([]domain.Delivery, error)

	// InsertInteraction appends one engagement record.
	InsertInteraction(ctx context.Context, interaction *domain.Interaction) error

	// GetResponsiveness returns the score state for (user, category); a pair
	// with no history returns domain.ErrNotFound.
	GetResponsiveness(ctx context.Context, userID, category string) (ResponsivenessRecord, error)

	// PutResponsiveness upserts the score state for (user, category).
	PutResponsiveness(ctx context.Context, record ResponsivenessRecord) error

	// Responsiveness returns all category scores for a user.
	Responsiveness(ctx context.Context, userID string) (map[string]decimal.Decimal, error)

	// InitSchema initializes the database schema (creates tables if they don't exist)
	InitSchema(ctx context.Context) error

	// Ping checks if the database connection is alive
	Ping(ctx context.Context) error

	// Close closes the store and releases resources
	Close() error
}

// ResponsivenessRecord is the stored engagement score for (user, category).
type ResponsivenessRecord struct {
	UserID       string
	Category     string
	Score        decimal.Decimal
	Observations int64
	UpdatedAt    time.Time
}
