// Package sqlite implements the transactional nudge store: rule catalog,
// user preferences, deliveries, suppression records, interactions, and
// responsiveness scores.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/pennywise-app/nudge-engine/internal/domain"
	"github.com/pennywise-app/nudge-engine/internal/repository"
	"github.com/pennywise-app/nudge-engine/internal/rules"
)

// Store provides SQLite-backed persistence for engine state.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens (or creates) the nudge store at the given path. WAL mode keeps
// the api and consumer processes from blocking each other.
func Open(path string, log *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	// modernc.org/sqlite applies pragmas via _pragma query parameters.
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}

	log.Info("SQLite store opened", zap.String("path", path))

	return &Store{db: db, log: log}, nil
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// InitSchema creates the engine tables if they don't exist.
func (s *Store) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS rules (
			rule_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			name TEXT NOT NULL,
			category TEXT NOT NULL,
			priority INTEGER NOT NULL,
			condition_json TEXT NOT NULL,
			cooldown_days INTEGER NOT NULL,
			trait_filter_json TEXT NOT NULL DEFAULT '',
			title_template TEXT NOT NULL,
			body_template TEXT NOT NULL,
			cta TEXT NOT NULL DEFAULT '',
			active INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (rule_id, version)
		)`,
		`CREATE TABLE IF NOT EXISTS user_prefs (
			user_id TEXT PRIMARY KEY,
			muted_categories_json TEXT NOT NULL DEFAULT '[]',
			traits_json TEXT NOT NULL DEFAULT '{}',
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS deliveries (
			delivery_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			rule_id TEXT NOT NULL,
			category TEXT NOT NULL,
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			cta TEXT NOT NULL DEFAULT '',
			delivered_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_user_time
			ON deliveries (user_id, delivered_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_user_rule_time
			ON deliveries (user_id, rule_id, delivered_at DESC)`,
		`CREATE TABLE IF NOT EXISTS suppression_records (
			user_id TEXT NOT NULL,
			scope TEXT NOT NULL,
			last_fired_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, scope)
		)`,
		`CREATE TABLE IF NOT EXISTS interactions (
			interaction_id TEXT PRIMARY KEY,
			delivery_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			action TEXT NOT NULL,
			occurred_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_delivery
			ON interactions (delivery_id, occurred_at)`,
		`CREATE TABLE IF NOT EXISTS responsiveness (
			user_id TEXT NOT NULL,
			category TEXT NOT NULL,
			score TEXT NOT NULL,
			observations INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, category)
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize sqlite schema: %w", err)
		}
	}

	s.log.Info("SQLite schema initialized successfully")
	return nil
}

// AppendRule inserts a new rule version. Versions are never updated in place.
func (s *Store) AppendRule(ctx context.Context, record rules.RuleRecord) error {
	active := 0
	if record.Active {
		active = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rules (rule_id, version, name, category, priority, condition_json,
			cooldown_days, trait_filter_json, title_template, body_template, cta, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.RuleID, record.Version, record.Name, record.Category, record.Priority,
		record.ConditionJSON, record.CooldownDays, record.TraitFilterJSON,
		record.TitleTemplate, record.BodyTemplate, record.CTA, active, toMillis(record.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append rule %s v%d: %w", record.RuleID, record.Version, err)
	}
	return nil
}

// ListActiveRules returns the highest version of every rule whose latest
// version is active.
func (s *Store) ListActiveRules(ctx context.Context) ([]rules.RuleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.rule_id, r.version, r.name, r.category, r.priority, r.condition_json,
			r.cooldown_days, r.trait_filter_json, r.title_template, r.body_template, r.cta,
			r.active, r.created_at
		FROM rules r
		JOIN (
			SELECT rule_id, MAX(version) AS version FROM rules GROUP BY rule_id
		) latest ON r.rule_id = latest.rule_id AND r.version = latest.version
		WHERE r.active = 1
		ORDER BY r.rule_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active rules: %w", err)
	}
	defer rows.Close()

	var records []rules.RuleRecord
	for rows.Next() {
		var (
			record    rules.RuleRecord
			active    int
			createdAt int64
		)
		if err := rows.Scan(&record.RuleID, &record.Version, &record.Name, &record.Category,
			&record.Priority, &record.ConditionJSON, &record.CooldownDays, &record.TraitFilterJSON,
			&record.TitleTemplate, &record.BodyTemplate, &record.CTA, &active, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan rule row: %w", err)
		}
		record.Active = active == 1
		record.CreatedAt = fromMillis(createdAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule rows: %w", err)
	}

	return records, nil
}

// ListUserIDs returns every user known to the preference store.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM user_prefs ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query user ids: %w", err)
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		userIDs = append(userIDs, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user id rows: %w", err)
	}

	return userIDs, nil
}

// GetPrefs returns a user's mute and trait state.
func (s *Store) GetPrefs(ctx context.Context, userID string) (domain.UserPrefs, error) {
	var (
		mutedJSON  string
		traitsJSON string
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT muted_categories_json, traits_json FROM user_prefs WHERE user_id = ?`, userID)
	if err := row.Scan(&mutedJSON, &traitsJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.UserPrefs{}, domain.ErrNotFound
		}
		return domain.UserPrefs{}, fmt.Errorf("failed to query prefs for %s: %w", userID, err)
	}

	prefs := domain.UserPrefs{UserID: userID}
	if err := json.Unmarshal([]byte(mutedJSON), &prefs.MutedCategories); err != nil {
		return domain.UserPrefs{}, fmt.Errorf("failed to unmarshal muted categories for %s: %w", userID, err)
	}
	if err := json.Unmarshal([]byte(traitsJSON), &prefs.Traits); err != nil {
		return domain.UserPrefs{}, fmt.Errorf("failed to unmarshal traits for %s: %w", userID, err)
	}

	return prefs, nil
}

// PutPrefs upserts a user's full preference record.
func (s *Store) PutPrefs(ctx context.Context, prefs domain.UserPrefs) error {
	muted := prefs.MutedCategories
	if muted == nil {
		muted = []string{}
	}
	traits := prefs.Traits
	if traits == nil {
		traits = map[string]string{}
	}

	mutedJSON, err := json.Marshal(muted)
	if err != nil {
		return fmt.Errorf("failed to marshal muted categories: %w", err)
	}
	traitsJSON, err := json.Marshal(traits)
	if err != nil {
		return fmt.Errorf("failed to marshal traits: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_prefs (user_id, muted_categories_json, traits_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			muted_categories_json = excluded.muted_categories_json,
			traits_json = excluded.traits_json,
			updated_at = excluded.updated_at`,
		prefs.UserID, string(mutedJSON), string(traitsJSON), toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert prefs for %s: %w", prefs.UserID, err)
	}
	return nil
}

// UpdateMutedCategories replaces a user's muted category set, preserving
// traits.
func (s *Store) UpdateMutedCategories(ctx context.Context, userID string, categories []string) error {
	if categories == nil {
		categories = []string{}
	}
	mutedJSON, err := json.Marshal(categories)
	if err != nil {
		return fmt.Errorf("failed to marshal muted categories: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_prefs (user_id, muted_categories_json, traits_json, updated_at)
		VALUES (?, ?, '{}', ?)
		ON CONFLICT (user_id) DO UPDATE SET
			muted_categories_json = excluded.muted_categories_json,
			updated_at = excluded.updated_at`,
		userID, string(mutedJSON), toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to update muted categories for %s: %w", userID, err)
	}
	return nil
}

// GetSuppression returns the suppression record for (user, scope).
func (s *Store) GetSuppression(ctx context.Context, userID, scope string) (domain.SuppressionRecord, error) {
	var lastFiredAt int64
	row := s.db.QueryRowContext(ctx,
		`SELECT last_fired_at FROM suppression_records WHERE user_id = ? AND scope = ?`, userID, scope)
	if err := row.Scan(&lastFiredAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SuppressionRecord{}, domain.ErrNotFound
		}
		return domain.SuppressionRecord{}, fmt.Errorf("failed to query suppression record: %w", err)
	}

	return domain.SuppressionRecord{
		UserID:      userID,
		Scope:       scope,
		LastFiredAt: fromMillis(lastFiredAt),
	}, nil
}

// CreateDelivery inserts the delivery and advances the global and rule-scope
// suppression records in one transaction. The delivery record is the
// durability source of truth for the throttle windows.
func (s *Store) CreateDelivery(ctx context.Context, delivery *domain.Delivery) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delivery transaction: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback delivery write: %v", cause, rollbackErr)
		}
		return cause
	}

	firedAt := toMillis(delivery.DeliveredAt)

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO deliveries (delivery_id, user_id, rule_id, category, title, body, cta, delivered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		delivery.DeliveryID, delivery.UserID, delivery.RuleID, delivery.Category,
		delivery.Title, delivery.Body, delivery.CTA, firedAt,
	); err != nil {
		return rollbackWith(fmt.Errorf("failed to insert delivery: %w", err))
	}

	for _, scope := range []string{domain.ScopeGlobal, delivery.RuleID} {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO suppression_records (user_id, scope, last_fired_at)
			VALUES (?, ?, ?)
			ON CONFLICT (user_id, scope) DO UPDATE SET last_fired_at = excluded.last_fired_at`,
			delivery.UserID, scope, firedAt,
		); err != nil {
			return rollbackWith(fmt.Errorf("failed to upsert %s suppression record: %w", scope, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delivery write: %w", err)
	}
	return nil
}

// GetDelivery returns one delivery by ID.
func (s *Store) GetDelivery(ctx context.Context, deliveryID string) (domain.Delivery, error) {
	var (
		delivery    domain.Delivery
		deliveredAt int64
	)
	row := s.db.QueryRowContext(ctx, `
		SELECT delivery_id, user_id, rule_id, category, title, body, cta, delivered_at
		FROM deliveries WHERE delivery_id = ?`, deliveryID)
	if err := row.Scan(&delivery.DeliveryID, &delivery.UserID, &delivery.RuleID, &delivery.Category,
		&delivery.Title, &delivery.Body, &delivery.CTA, &deliveredAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Delivery{}, domain.ErrNotFound
		}
		return domain.Delivery{}, fmt.Errorf("failed to query delivery %s: %w", deliveryID, err)
	}
	delivery.DeliveredAt = fromMillis(deliveredAt)

	return delivery, nil
}

// ListDeliveries returns a user's deliveries, newest first.
func (s *Store) ListDeliveries(ctx context.Context, userID string, limit int) ([]domain.Delivery, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT delivery_id, user_id, rule_id, category, title, body, cta, delivered_at
		FROM deliveries WHERE user_id = ?
		ORDER BY delivered_at DESC, delivery_id
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries for %s: %w", userID, err)
	}
	defer rows.Close()

	var deliveries []domain.Delivery
	for rows.Next() {
		var (
			delivery    domain.Delivery
			deliveredAt int64
		)
		if err := rows.Scan(&delivery.DeliveryID, &delivery.UserID, &delivery.RuleID, &delivery.Category,
			&delivery.Title, &delivery.Body, &delivery.CTA, &deliveredAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery row: %w", err)
		}
		delivery.DeliveredAt = fromMillis(deliveredAt)
		deliveries = append(deliveries, delivery)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating delivery rows: %w", err)
	}

	return deliveries, nil
}

// InsertInteraction appends one engagement record.
func (s *Store) InsertInteraction(ctx context.Context, interaction *domain.Interaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interactions (interaction_id, delivery_id, user_id, action, occurred_at)
		VALUES (?, ?, ?, ?, ?)`,
		interaction.InteractionID, interaction.DeliveryID, interaction.UserID,
		string(interaction.Action), toMillis(interaction.OccurredAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert interaction: %w", err)
	}
	return nil
}

// GetResponsiveness returns the score state for (user, category).
func (s *Store) GetResponsiveness(ctx context.Context, userID, category string) (repository.ResponsivenessRecord, error) {
	var (
		scoreText    string
		observations int64
		updatedAt    int64
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT score, observations, updated_at FROM responsiveness WHERE user_id = ? AND category = ?`,
		userID, category)
	if err := row.Scan(&scoreText, &observations, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.ResponsivenessRecord{}, domain.ErrNotFound
		}
		return repository.ResponsivenessRecord{}, fmt.Errorf("failed to query responsiveness: %w", err)
	}

	score, err := decimal.NewFromString(scoreText)
	if err != nil {
		return repository.ResponsivenessRecord{}, fmt.Errorf("failed to parse responsiveness score %q: %w", scoreText, err)
	}

	return repository.ResponsivenessRecord{
		UserID:       userID,
		Category:     category,
		Score:        score,
		Observations: observations,
		UpdatedAt:    fromMillis(updatedAt),
	}, nil
}

// PutResponsiveness upserts the score state for (user, category).
func (s *Store) PutResponsiveness(ctx context.Context, record repository.ResponsivenessRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO responsiveness (user_id, category, score, observations, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, category) DO UPDATE SET
			score = excluded.score,
			observations = excluded.observations,
			updated_at = excluded.updated_at`,
		record.UserID, record.Category, record.Score.String(), record.Observations, toMillis(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert responsiveness for %s/%s: %w", record.UserID, record.Category, err)
	}
	return nil
}

// Responsiveness returns all category scores for a user.
func (s *Store) Responsiveness(ctx context.Context, userID string) (map[string]decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, score FROM responsiveness WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query responsiveness for %s: %w", userID, err)
	}
	defer rows.Close()

	scores := make(map[string]decimal.Decimal)
	for rows.Next() {
		var (
			category  string
			scoreText string
		)
		if err := rows.Scan(&category, &scoreText); err != nil {
			return nil, fmt.Errorf("failed to scan responsiveness row: %w", err)
		}
		score, err := decimal.NewFromString(scoreText)
		if err != nil {
			return nil, fmt.Errorf("failed to parse responsiveness score %q: %w", scoreText, err)
		}
		scores[category] = score
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating responsiveness rows: %w", err)
	}

	return scores, nil
}

// Ping checks if the database connection is alive
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
