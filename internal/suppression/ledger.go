// Package suppression gates matched candidates before delivery. It is kept
// separate from rule matching so throttle policy can change independently of
// evaluation logic.
package suppression

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pennywise-app/nudge-engine/internal/domain"
	"github.com/pennywise-app/nudge-engine/internal/repository"
)

// Suppression reasons, in check order.
const (
	ReasonMuted          = "muted"
	ReasonCooldown       = "cooldown"
	ReasonGlobalThrottle = "global_throttle"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Admitted bool
	Reason   string
}

// Admitted is the passing decision.
var Admitted = Decision{Admitted: true}

// Suppressed builds a denying decision.
func Suppressed(reason string) Decision {
	return Decision{Reason: reason}
}

// Ledger enforces per-user mute, cooldown, and global throttle state. All
// delivery writers must serialize through Lock for the target user; the lock
// plus the store's transactional delivery write make check-and-commit atomic
// per user. Cross-user admissions never contend.
type Ledger struct {
	store repository.NudgeStore
	log   *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLedger creates a suppression ledger over the nudge store.
func NewLedger(store repository.NudgeStore, log *zap.Logger) *Ledger {
	return &Ledger{
		store: store,
		log:   log,
		locks: make(map[string]*sync.Mutex),
	}
}

// Lock acquires the per-user serialization point and returns its release.
func (l *Ledger) Lock(userID string) func() {
	l.mu.Lock()
	userLock, ok := l.locks[userID]
	if !ok {
		userLock = &sync.Mutex{}
		l.locks[userID] = userLock
	}
	l.mu.Unlock()

	userLock.Lock()
	return userLock.Unlock
}

// Admit checks a candidate against the user's suppression state, in order:
// category mute, rule cooldown, global 24h throttle. Callers that intend to
// deliver must hold the user lock across Admit and the delivery write.
func (l *Ledger) Admit(ctx context.Context, userID, ruleID, category string, cooldownDays int, now time.Time) (Decision, error) {
	prefs, err := l.store.GetPrefs(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return Decision{}, fmt.Errorf("failed to load prefs for admission: %w", err)
	}
	if prefs.Muted(category) {
		return Suppressed(ReasonMuted), nil
	}

	ruleRecord, err := l.store.GetSuppression(ctx, userID, ruleID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return Decision{}, fmt.Errorf("failed to load rule suppression record: %w", err)
	}
	if err == nil {
		cooldown := time.Duration(cooldownDays) * 24 * time.Hour
		if now.Sub(ruleRecord.LastFiredAt) < cooldown {
			return Suppressed(ReasonCooldown), nil
		}
	}

	globalRecord, err := l.store.GetSuppression(ctx, userID, domain.ScopeGlobal)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return Decision{}, fmt.Errorf("failed to load global suppression record: %w", err)
	}
	if err == nil && now.Sub(globalRecord.LastFiredAt) < domain.GlobalThrottleWindow {
		return Suppressed(ReasonGlobalThrottle), nil
	}

	return Admitted, nil
}
