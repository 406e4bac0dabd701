package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SignalSnapshot is one user's daily behavioral metric set. Exactly one exists
// per (user, date); re-aggregation replaces it wholesale, it is never mutated.
type SignalSnapshot struct {
	UserID     string
	Date       time.Time
	Metrics    map[string]decimal.Decimal
	ComputedAt time.Time
	Version    uint64
}

// Metric returns a named metric value and whether it is present.
func (s *SignalSnapshot) Metric(name string) (decimal.Decimal, bool) {
	v, ok := s.Metrics[name]
	return v, ok
}

// DateOf truncates a timestamp to its UTC calendar day, the snapshot key.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
