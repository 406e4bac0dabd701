package rules

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Comparison operators supported in rule conditions.
const (
	OpGT  = "gt"
	OpGTE = "gte"
	OpLT  = "lt"
	OpLTE = "lte"
	OpEQ  = "eq"
	OpNEQ = "neq"
)

// Condition is a typed, pre-parsed rule predicate over snapshot metrics.
// Conditions are interpreted, never executed as dynamic code.
type Condition interface {
	// Eval evaluates the condition against a metric set. A missing metric
	// makes the enclosing comparison false; evaluation never fails.
	Eval(metrics map[string]decimal.Decimal) bool
}

// Comparison compares one named metric against a fixed threshold.
type Comparison struct {
	Metric string
	Op     string
	Value  decimal.Decimal
}

// Eval returns false when the metric is absent.
func (c Comparison) Eval(metrics map[string]decimal.Decimal) bool {
	v, ok := metrics[c.Metric]
	if !ok {
		return false
	}
	switch c.Op {
	case OpGT:
		return v.GreaterThan(c.Value)
	case OpGTE:
		return v.GreaterThanOrEqual(c.Value)
	case OpLT:
		return v.LessThan(c.Value)
	case OpLTE:
		return v.LessThanOrEqual(c.Value)
	case OpEQ:
		return v.Equal(c.Value)
	case OpNEQ:
		return !v.Equal(c.Value)
	default:
		return false
	}
}

// And is satisfied when all children are, with short-circuit evaluation.
type And struct {
	Children []Condition
}

func (a And) Eval(metrics map[string]decimal.Decimal) bool {
	for _, child := range a.Children {
		if !child.Eval(metrics) {
			return false
		}
	}
	return true
}

// Or is satisfied when any child is, with short-circuit evaluation.
type Or struct {
	Children []Condition
}

func (o Or) Eval(metrics map[string]decimal.Decimal) bool {
	for _, child := range o.Children {
		if child.Eval(metrics) {
			return true
		}
	}
	return false
}

// conditionJSON is the wire shape of a condition tree node. Exactly one of
// the three forms must be set: a comparison, an "all" group, or an "any"
// group.
type conditionJSON struct {
	Metric string            `json:"metric,omitempty"`
	Op     string            `json:"op,omitempty"`
	Value  *decimal.Decimal  `json:"value,omitempty"`
	All    []json.RawMessage `json:"all,omitempty"`
	Any    []json.RawMessage `json:"any,omitempty"`
}

// ParseCondition parses a JSON condition tree into its typed form. Parsing
// happens once at catalog load time.
func ParseCondition(raw []byte) (Condition, error) {
	var node conditionJSON
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, fmt.Errorf("failed to unmarshal condition node: %w", err)
	}

	set := 0
	if node.Metric != "" {
		set++
	}
	if len(node.All) > 0 {
		set++
	}
	if len(node.Any) > 0 {
		set++
	}
	if set != 1 {
		return nil, fmt.Errorf("condition node must be exactly one of comparison, all, any")
	}

	switch {
	case node.Metric != "":
		if node.Value == nil {
			return nil, fmt.Errorf("comparison on %q is missing a value", node.Metric)
		}
		if !validOp(node.Op) {
			return nil, fmt.Errorf("comparison on %q has unknown op %q", node.Metric, node.Op)
		}
		return Comparison{Metric: node.Metric, Op: node.Op, Value: *node.Value}, nil

	case len(node.All) > 0:
		children, err := parseChildren(node.All)
		if err != nil {
			return nil, err
		}
		return And{Children: children}, nil

	default:
		children, err := parseChildren(node.Any)
		if err != nil {
			return nil, err
		}
		return Or{Children: children}, nil
	}
}

func parseChildren(raws []json.RawMessage) ([]Condition, error) {
	children := make([]Condition, 0, len(raws))
	for i, raw := range raws {
		child, err := ParseCondition(raw)
		if err != nil {
			return nil, fmt.Errorf("child %d: %w", i, err)
		}
		children = append(children, child)
	}
	return children, nil
}

func validOp(op string) bool {
	switch op {
	case OpGT, OpGTE, OpLT, OpLTE, OpEQ, OpNEQ:
		return true
	}
	return false
}
