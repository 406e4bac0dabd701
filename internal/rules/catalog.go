package rules

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pennywise-app/nudge-engine/internal/domain"
	"github.com/pennywise-app/nudge-engine/internal/metrics"
)

// Rule is one loadable nudge rule with its condition pre-parsed.
type Rule struct {
	RuleID        string
	Version       int
	Name          string
	Category      string
	Priority      int
	Condition     Condition
	CooldownDays  int
	TraitFilter   []TraitCondition
	TitleTemplate string
	BodyTemplate  string
	CTA           string
	CreatedAt     time.Time
}

// RuleRecord is the stored shape of a rule version, condition still raw.
// The catalog is append-only: edits insert a new version, history is never
// mutated.
type RuleRecord struct {
	RuleID          string
	Version         int
	Name            string
	Category        string
	Priority        int
	ConditionJSON   string
	CooldownDays    int
	TraitFilterJSON string
	TitleTemplate   string
	BodyTemplate    string
	CTA             string
	Active          bool
	CreatedAt       time.Time
}

// CatalogSource lists the latest active version of every rule.
type CatalogSource interface {
	ListActiveRules(ctx context.Context) ([]RuleRecord, error)
}

// LoadCatalog loads and parses the active rule set. A malformed rule is
// skipped and logged so the rest of the catalog still evaluates; an empty or
// unloadable catalog is fatal to the evaluation batch.
func LoadCatalog(ctx context.Context, src CatalogSource, log *zap.Logger) ([]Rule, error) {
	records, err := src.ListActiveRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active rules: %w", err)
	}

	loaded := make([]Rule, 0, len(records))
	for _, record := range records {
		rule, err := parseRecord(record)
		if err != nil {
			metrics.RuleConfigErrors.Inc()
			log.Error("Skipping malformed rule",
				zap.String("rule_id", record.RuleID),
				zap.Int("version", record.Version),
				zap.Error(fmt.Errorf("%w: %v", domain.ErrRuleConfig, err)))
			continue
		}
		loaded = append(loaded, rule)
	}

	if len(loaded) == 0 {
		return nil, fmt.Errorf("%w: %d records, none loadable", domain.ErrEmptyCatalog, len(records))
	}

	return loaded, nil
}

func parseRecord(record RuleRecord) (Rule, error) {
	if record.RuleID == "" {
		return Rule{}, fmt.Errorf("rule record is missing an ID")
	}
	// Rule IDs double as suppression scopes; "global" names the 24h throttle.
	if record.RuleID == domain.ScopeGlobal {
		return Rule{}, fmt.Errorf("rule ID %q is reserved", domain.ScopeGlobal)
	}
	if record.CooldownDays < 0 {
		return Rule{}, fmt.Errorf("cooldown_days must be non-negative, got %d", record.CooldownDays)
	}

	condition, err := ParseCondition([]byte(record.ConditionJSON))
	if err != nil {
		return Rule{}, fmt.Errorf("condition: %w", err)
	}

	var filter []TraitCondition
	if record.TraitFilterJSON != "" {
		filter, err = ParseTraitFilter([]byte(record.TraitFilterJSON))
		if err != nil {
			return Rule{}, fmt.Errorf("trait filter: %w", err)
		}
	}

	return Rule{
		RuleID:        record.RuleID,
		Version:       record.Version,
		Name:          record.Name,
		Category:      record.Category,
		Priority:      record.Priority,
		Condition:     condition,
		CooldownDays:  record.CooldownDays,
		TraitFilter:   filter,
		TitleTemplate: record.TitleTemplate,
		BodyTemplate:  record.BodyTemplate,
		CTA:           record.CTA,
		CreatedAt:     record.CreatedAt,
	}, nil
}
