// Package signal computes per-user daily behavioral snapshots from upstream
// spend/budget/goal feeds.
package signal

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shopspring/decimal"

	"github.com/pennywise-app/nudge-engine/internal/domain"
	"github.com/pennywise-app/nudge-engine/internal/repository"
)

// Provider is one upstream metric feed: a read-only query returning a user's
// metric values for a date. Currency values are fixed-point decimals, ratios
// are fractions, counts are non-negative integers.
type Provider interface {
	Name() string
	Metrics(ctx context.Context, userID string, date time.Time) (map[string]decimal.Decimal, error)
}

// Aggregator merges provider feeds into one immutable snapshot per
// (user, date). Users are independent, so aggregation parallelizes per user.
type Aggregator struct {
	providers []Provider
	store     repository.SnapshotRepository
	log       *zap.Logger
	now       func() time.Time
}

// NewAggregator creates an aggregator over the given feeds.
func NewAggregator(providers []Provider, store repository.SnapshotRepository, log *zap.Logger) *Aggregator {
	return &Aggregator{
		providers: providers,
		store:     store,
		log:       log,
		now:       time.Now,
	}
}

// ComputeDailySignals computes and persists the snapshot for (user, date).
// Idempotent: a re-run writes an identical metric set and the store replaces
// the previous row. Any feed failure skips the user without writing a
// partial snapshot.
func (a *Aggregator) ComputeDailySignals(ctx context.Context, userID string, date time.Time) (*domain.SignalSnapshot, error) {
	date = domain.DateOf(date)
	metrics := make(map[string]decimal.Decimal)

	for _, provider := range a.providers {
		values, err := provider.Metrics(ctx, userID, date)
		if err != nil {
			return nil, fmt.Errorf("%w: feed %s for user %s: %v",
				domain.ErrDataUnavailable, provider.Name(), userID, err)
		}
		for name, value := range values {
			if _, exists := metrics[name]; exists {
				a.log.Warn("Duplicate metric across feeds",
					zap.String("metric", name),
					zap.String("feed", provider.Name()),
					zap.String("user_id", userID))
			}
			metrics[name] = value
		}
	}

	snapshot := &domain.SignalSnapshot{
		UserID:     userID,
		Date:       date,
		Metrics:    metrics,
		ComputedAt: a.now().UTC(),
	}

	if err := a.store.InsertSnapshot(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("failed to store snapshot for user %s: %w", userID, err)
	}

	return snapshot, nil
}
