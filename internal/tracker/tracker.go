// Package tracker records client engagement on delivered nudges and derives
// the per-user responsiveness signal the evaluator reads.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shopspring/decimal"

	"github.com/pennywise-app/nudge-engine/internal/domain"
	"github.com/pennywise-app/nudge-engine/internal/metrics"
	"github.com/pennywise-app/nudge-engine/internal/repository"
)

// ewmaAlpha weights the newest observation in the engagement score.
var ewmaAlpha = decimal.NewFromFloat(0.3)

var engagementValues = map[domain.Action]decimal.Decimal{
	domain.ActionClicked:   decimal.NewFromInt(1),
	domain.ActionViewed:    decimal.NewFromFloat(0.6),
	domain.ActionDismissed: decimal.Zero,
}

// Tracker appends interactions and maintains responsiveness scores. It never
// calls back into evaluation; the score is a read-only derived signal.
type Tracker struct {
	store repository.NudgeStore
	log   *zap.Logger
	now   func() time.Time
}

// NewTracker creates a tracker over the nudge store.
func NewTracker(store repository.NudgeStore, log *zap.Logger) *Tracker {
	return &Tracker{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// Record appends an interaction for a delivered nudge and folds it into the
// user's per-category responsiveness score. A future occurred_at is clamped
// to receipt time; feedback arrives via queue and must not dead-letter on a
// skewed client clock.
func (t *Tracker) Record(ctx context.Context, deliveryID string, action domain.Action, occurredAt time.Time) (*domain.Interaction, error) {
	delivery, err := t.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load delivery %s: %w", deliveryID, err)
	}

	now := t.now().UTC()
	occurredAt = occurredAt.UTC()
	if occurredAt.After(now) {
		occurredAt = now
	}

	interaction := &domain.Interaction{
		InteractionID: uuid.NewString(),
		DeliveryID:    delivery.DeliveryID,
		UserID:        delivery.UserID,
		Action:        action,
		OccurredAt:    occurredAt,
	}

	if err := t.store.InsertInteraction(ctx, interaction); err != nil {
		return nil, fmt.Errorf("failed to append interaction: %w", err)
	}

	if err := t.updateResponsiveness(ctx, delivery.UserID, delivery.Category, action, now); err != nil {
		// The interaction is already appended; the score catches up on the
		// next observation.
		t.log.Error("Failed to update responsiveness score",
			zap.String("user_id", delivery.UserID),
			zap.String("category", delivery.Category),
			zap.Error(err))
	}

	metrics.InteractionsRecorded.WithLabelValues(string(action)).Inc()
	t.log.Info("Interaction recorded",
		zap.String("interaction_id", interaction.InteractionID),
		zap.String("delivery_id", delivery.DeliveryID),
		zap.String("user_id", delivery.UserID),
		zap.String("action", string(action)))

	return interaction, nil
}

// updateResponsiveness folds one engagement observation into the EWMA score:
// score' = alpha*value + (1-alpha)*score.
func (t *Tracker) updateResponsiveness(ctx context.Context, userID, category string, action domain.Action, now time.Time) error {
	value, ok := engagementValues[action]
	if !ok {
		return fmt.Errorf("no engagement value for action %q", action)
	}

	record, err := t.store.GetResponsiveness(ctx, userID, category)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		record = repository.ResponsivenessRecord{
			UserID:   userID,
			Category: category,
			Score:    value,
		}
	} else {
		retained := decimal.NewFromInt(1).Sub(ewmaAlpha)
		record.Score = ewmaAlpha.Mul(value).Add(retained.Mul(record.Score))
	}

	record.Observations++
	record.UpdatedAt = now

	return t.store.PutResponsiveness(ctx, record)
}

// Responsiveness returns the user's per-category engagement scores.
func (t *Tracker) Responsiveness(ctx context.Context, userID string) (map[string]decimal.Decimal, error) {
	return t.store.Responsiveness(ctx, userID)
}
