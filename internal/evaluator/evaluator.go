// Package evaluator matches the rule catalog against a user's snapshot. It
// is pure: no I/O, no shared mutable state, so full-population evaluation
// parallelizes per user.
package evaluator

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pennywise-app/nudge-engine/internal/domain"
	"github.com/pennywise-app/nudge-engine/internal/rules"
)

// Match is one rule whose condition held against the snapshot, carrying the
// rule itself for the downstream render and admission steps.
type Match struct {
	Candidate         domain.Candidate
	Rule              rules.Rule
	EffectivePriority decimal.Decimal
}

var (
	halfScore     = decimal.NewFromFloat(0.5)
	penaltyFactor = decimal.NewFromInt(2)
)

// Evaluate returns all matching rules ranked by effective priority
// descending, ties broken by rule_id ascending. The responsiveness score
// applies a bounded penalty to persistently-dismissed categories; it reorders
// near-ties but never filters a rule, keeping evaluation deterministic.
// Suppression is deliberately not applied here.
func Evaluate(userID string, snapshot *domain.SignalSnapshot, catalog []rules.Rule,
	traits map[string]string, responsiveness map[string]decimal.Decimal, now time.Time) []Match {

	matches := make([]Match, 0, 4)
	for _, rule := range catalog {
		if !rules.MatchTraits(rule.TraitFilter, traits) {
			continue
		}
		if !rule.Condition.Eval(snapshot.Metrics) {
			continue
		}

		matches = append(matches, Match{
			Candidate: domain.Candidate{
				UserID:       userID,
				RuleID:       rule.RuleID,
				MatchedAt:    now,
				SnapshotDate: snapshot.Date,
			},
			Rule:              rule,
			EffectivePriority: effectivePriority(rule, responsiveness),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		cmp := matches[i].EffectivePriority.Cmp(matches[j].EffectivePriority)
		if cmp != 0 {
			return cmp > 0
		}
		return matches[i].Rule.RuleID < matches[j].Rule.RuleID
	})

	return matches
}

// effectivePriority subtracts penalty = 2 * (0.5 - score) when the user's
// engagement score for the rule's category is below 0.5. The penalty is
// capped at one priority point, a soft adjustment only.
func effectivePriority(rule rules.Rule, responsiveness map[string]decimal.Decimal) decimal.Decimal {
	priority := decimal.NewFromInt(int64(rule.Priority))

	score, ok := responsiveness[rule.Category]
	if !ok || score.GreaterThanOrEqual(halfScore) {
		return priority
	}

	penalty := halfScore.Sub(score).Mul(penaltyFactor)
	return priority.Sub(penalty)
}
