package request

import (
	"errors"
	"fmt"
	"strings"

	"ask/internal/reasoning"
)

// Budgets are the thinking budgets, in tokens, sent for each reasoning level
// to vendors that express reasoning as a budget. None always maps to zero.
type Budgets struct {
	Low    int
	Medium int
	High   int
}

// ErrInvalidBudgets indicates a budget table that is neither the zero value
// nor positive and strictly increasing.
var ErrInvalidBudgets = errors.New("invalid thinking budgets")

// DefaultBudgets are used when Params.Budgets is the zero value.
var DefaultBudgets = Budgets{Low: 512, Medium: 8192, High: 24576}

// For returns the budget for a reasoning level.
func (b Budgets) For(effort reasoning.Effort) int {
	if b == (Budgets{}) {
		b = DefaultBudgets
	}
	switch effort {
	case reasoning.Low:
		return b.Low
	case reasoning.Medium:
		return b.Medium
	case reasoning.High:
		return b.High
	default:
		return 0
	}
}

// Validate requires positive, strictly increasing budgets.
func (b Budgets) Validate() error {
	if b == (Budgets{}) {
		return nil
	}
	if b.Low <= 0 {
		return fmt.Errorf("thinking budget for low must be positive, got %d", b.Low)
	}
	if b.Medium <= b.Low {
		return fmt.Errorf("thinking budget for medium (%d) must exceed low (%d)", b.Medium, b.Low)
	}
	if b.High <= b.Medium {
		return fmt.Errorf("thinking budget for high (%d) must exceed medium (%d)", b.High, b.Medium)
	}
	return nil
}

type vendor struct {
	name  string
	match func(model string) bool
	adapt func(Params) Params
}

// vendors is consulted in order; the first match rewrites the request.
var vendors = []vendor{
	{name: "google", match: modelPrefix("gemini"), adapt: adaptGoogle},
}

// Adapt rewrites vendor-specific representations for the target model.
// Models that match no vendor pass through unchanged. Adapt is idempotent.
func Adapt(p Params) Params {
	for _, v := range vendors {
		if v.match(p.Model) {
			return v.adapt(p)
		}
	}
	return p
}

// Vendor reports which vendor, if any, claims the model.
func Vendor(model string) (string, bool) {
	for _, v := range vendors {
		if v.match(model) {
			return v.name, true
		}
	}
	return "", false
}

func modelPrefix(prefix string) func(string) bool {
	return func(model string) bool {
		return strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), prefix)
	}
}

// adaptGoogle moves the reasoning level into google.thinking_config. The
// endpoint rejects reasoning_effort and thinking_config together.
func adaptGoogle(p Params) Params {
	if !p.ShowReasoning {
		return p
	}

	budget := p.Budgets.For(p.ReasoningEffort)
	p.ReasoningEffort = reasoning.None

	if budget != 0 {
		p.ExtraBody = map[string]any{
			"google": map[string]any{
				"thinking_config": map[string]any{
					"thinkingBudget":   budget,
					"include_thoughts": true,
				},
			},
		}
	}
	return p
}
