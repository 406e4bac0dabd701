// Package render binds a matched rule's templates to snapshot metrics and
// user traits. Messages are deterministic substitution, never generated.
package render

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pennywise-app/nudge-engine/internal/domain"
	"github.com/pennywise-app/nudge-engine/internal/rules"
)

// Rendered is the final message text for a delivery.
type Rendered struct {
	Title string
	Body  string
	CTA   string
}

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// Render substitutes {name} placeholders from snapshot metrics first, then
// user traits. Fails closed: any unresolved placeholder aborts the render so
// a broken message is never delivered.
func Render(rule rules.Rule, snapshot *domain.SignalSnapshot, traits map[string]string) (Rendered, error) {
	title, err := substitute(rule.TitleTemplate, snapshot, traits)
	if err != nil {
		return Rendered{}, fmt.Errorf("%w: rule %s title: %v", domain.ErrRender, rule.RuleID, err)
	}
	body, err := substitute(rule.BodyTemplate, snapshot, traits)
	if err != nil {
		return Rendered{}, fmt.Errorf("%w: rule %s body: %v", domain.ErrRender, rule.RuleID, err)
	}
	cta, err := substitute(rule.CTA, snapshot, traits)
	if err != nil {
		return Rendered{}, fmt.Errorf("%w: rule %s cta: %v", domain.ErrRender, rule.RuleID, err)
	}

	return Rendered{Title: title, Body: body, CTA: cta}, nil
}

func substitute(template string, snapshot *domain.SignalSnapshot, traits map[string]string) (string, error) {
	var unresolved []string

	result := placeholderPattern.ReplaceAllStringFunc(template, func(token string) string {
		name := token[1 : len(token)-1]

		if value, ok := snapshot.Metric(name); ok {
			return formatMetric(value)
		}
		if value, ok := traits[name]; ok {
			return value
		}

		unresolved = append(unresolved, name)
		return token
	})

	if len(unresolved) > 0 {
		return "", fmt.Errorf("unresolved placeholders: %s", strings.Join(unresolved, ", "))
	}

	return result, nil
}

// formatMetric renders counts bare and fractional values with two decimal
// places.
func formatMetric(value decimal.Decimal) string {
	if value.IsInteger() {
		return value.String()
	}
	return value.StringFixed(2)
}
