package rules

import (
	"encoding/json"
	"fmt"
)

// Trait filter operators.
const (
	TraitOpEQ  = "eq"
	TraitOpNEQ = "neq"
)

// TraitCondition restricts a rule to users whose static trait matches.
type TraitCondition struct {
	Trait string `json:"trait"`
	Op    string `json:"op"`
	Value string `json:"value"`
}

// MatchTraits reports whether all trait conditions hold for the given traits.
// An empty filter matches every user; a missing trait fails an eq condition
// and satisfies a neq condition.
func MatchTraits(filter []TraitCondition, traits map[string]string) bool {
	for _, cond := range filter {
		actual := traits[cond.Trait]
		switch cond.Op {
		case TraitOpEQ:
			if actual != cond.Value {
				return false
			}
		case TraitOpNEQ:
			if actual == cond.Value {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// ParseTraitFilter parses a JSON trait filter. An empty document is a valid
// match-all filter.
func ParseTraitFilter(raw []byte) ([]TraitCondition, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var filter []TraitCondition
	if err := json.Unmarshal(raw, &filter); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trait filter: %w", err)
	}
	for i, cond := range filter {
		if cond.Trait == "" {
			return nil, fmt.Errorf("trait condition %d is missing a trait name", i)
		}
		if cond.Op != TraitOpEQ && cond.Op != TraitOpNEQ {
			return nil, fmt.Errorf("trait condition %d has unknown op %q", i, cond.Op)
		}
	}
	return filter, nil
}
