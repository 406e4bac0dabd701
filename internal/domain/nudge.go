package domain

import (
	"fmt"
	"time"
)

// ScopeGlobal is the suppression scope covering all rules for a user. Rule
// scopes use the rule ID itself.
const ScopeGlobal = "global"

// GlobalThrottleWindow is the rolling window within which at most one nudge
// may be delivered to a user.
const GlobalThrottleWindow = 24 * time.Hour

// Candidate is an ephemeral rule match awaiting admission. It is only
// persisted indirectly, through the delivery or suppression outcome it
// reaches.
type Candidate struct {
	UserID       string
	RuleID       string
	MatchedAt    time.Time
	SnapshotDate time.Time
}

// SuppressionRecord tracks the last fire time for one (user, scope) pair.
type SuppressionRecord struct {
	UserID      string
	Scope       string
	LastFiredAt time.Time
}

// Delivery is a nudge that reached a user. Immutable once created; it is the
// durability source of truth, not the live event.
type Delivery struct {
	DeliveryID  string
	UserID      string
	RuleID      string
	Category    string
	Title       string
	Body        string
	CTA         string
	DeliveredAt time.Time
}

// Action is a client engagement signal on a delivered nudge.
type Action string

const (
	ActionViewed    Action = "viewed"
	ActionClicked   Action = "clicked"
	ActionDismissed Action = "dismissed"
)

// ParseAction validates a raw action string.
func ParseAction(raw string) (Action, error) {
	switch Action(raw) {
	case ActionViewed, ActionClicked, ActionDismissed:
		return Action(raw), nil
	default:
		return "", fmt.Errorf("unknown interaction action: %q", raw)
	}
}

// Interaction is one appended engagement record. Repeatable per action,
// never mutated or deleted.
type Interaction struct {
	InteractionID string
	DeliveryID    string
	UserID        string
	Action        Action
	OccurredAt    time.Time
}

// UserPrefs holds user-owned mute and trait state, read-only to the engine.
type UserPrefs struct {
	UserID          string
	MutedCategories []string
	Traits          map[string]string
}

// Muted reports whether the user muted the given nudge category.
func (p *UserPrefs) Muted(category string) bool {
	for _, c := range p.MutedCategories {
		if c == category {
			return true
		}
	}
	return false
}
