// Package dispatch persists admitted nudges and publishes the live event.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pennywise-app/nudge-engine/internal/broker"
	"github.com/pennywise-app/nudge-engine/internal/domain"
	"github.com/pennywise-app/nudge-engine/internal/metrics"
	"github.com/pennywise-app/nudge-engine/internal/render"
	"github.com/pennywise-app/nudge-engine/internal/repository"
	"github.com/pennywise-app/nudge-engine/internal/rules"
	"github.com/pennywise-app/nudge-engine/internal/suppression"
)

// Publisher pushes a live event to a user's subscribed sessions. The
// transport behind it is external; publish is fire-and-forget.
type Publisher interface {
	Publish(userID string, event broker.Event) int
}

// Outcome reports what happened to a candidate at delivery time.
type Outcome struct {
	Delivery *domain.Delivery
	Decision suppression.Decision
}

// Dispatcher runs the admission check and the delivery write under the
// user's suppression lock, then best-effort publishes the live event.
type Dispatcher struct {
	ledger    *suppression.Ledger
	store     repository.NudgeStore
	publisher Publisher
	log       *zap.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(ledger *suppression.Ledger, store repository.NudgeStore, publisher Publisher, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		ledger:    ledger,
		store:     store,
		publisher: publisher,
		log:       log,
	}
}

// Deliver admits and, if admitted, persists the nudge. The admission check
// and the delivery write happen under the per-user lock, so concurrent
// workers racing on one user resolve to a single delivery; the loser is
// reported as suppressed with no same-cycle retry.
func (d *Dispatcher) Deliver(ctx context.Context, candidate domain.Candidate, rule rules.Rule,
	rendered render.Rendered, now time.Time) (Outcome, error) {

	unlock := d.ledger.Lock(candidate.UserID)
	defer unlock()

	decision, err := d.ledger.Admit(ctx, candidate.UserID, rule.RuleID, rule.Category, rule.CooldownDays, now)
	if err != nil {
		return Outcome{}, fmt.Errorf("admission check failed: %w", err)
	}
	if !decision.Admitted {
		metrics.SuppressionsTotal.WithLabelValues(decision.Reason).Inc()
		d.log.Info("Candidate suppressed",
			zap.String("user_id", candidate.UserID),
			zap.String("rule_id", rule.RuleID),
			zap.String("reason", decision.Reason))
		return Outcome{Decision: decision}, nil
	}

	delivery := &domain.Delivery{
		DeliveryID:  uuid.NewString(),
		UserID:      candidate.UserID,
		RuleID:      rule.RuleID,
		Category:    rule.Category,
		Title:       rendered.Title,
		Body:        rendered.Body,
		CTA:         rendered.CTA,
		DeliveredAt: now.UTC(),
	}

	if err := d.store.CreateDelivery(ctx, delivery); err != nil {
		return Outcome{}, fmt.Errorf("failed to persist delivery: %w", err)
	}

	metrics.DeliveriesTotal.Inc()
	d.log.Info("Nudge delivered",
		zap.String("delivery_id", delivery.DeliveryID),
		zap.String("user_id", delivery.UserID),
		zap.String("rule_id", delivery.RuleID))

	// Live push is at-most-once; the persisted Delivery is the source of
	// truth regardless of publish outcome.
	d.publisher.Publish(delivery.UserID, broker.Event{
		Type:      "nudge",
		Title:     delivery.Title,
		Body:      delivery.Body,
		CTA:       delivery.CTA,
		Category:  delivery.Category,
		CreatedAt: delivery.DeliveredAt,
	})

	return Outcome{Delivery: delivery, Decision: suppression.Admitted}, nil
}
