package domain

import "errors"

// Engine error taxonomy. Callers wrap these with fmt.Errorf("...: %w", err)
// and match with errors.Is.
var (
	// ErrDataUnavailable marks an upstream metric feed gap; the affected user is
	// skipped for the cycle, never written partially.
	ErrDataUnavailable = errors.New("upstream data unavailable")

	// ErrRuleConfig marks a malformed rule definition; the rule is skipped, the
	// remaining catalog still loads.
	ErrRuleConfig = errors.New("invalid rule configuration")

	// ErrEmptyCatalog halts an evaluation batch: nothing loadable to evaluate.
	ErrEmptyCatalog = errors.New("rule catalog is empty")

	// ErrRender marks an unresolved template placeholder; the candidate is
	// dropped rather than delivering a broken message.
	ErrRender = errors.New("template rendering failed")

	// ErrNotFound is returned by stores for missing records.
	ErrNotFound = errors.New("record not found")
)
