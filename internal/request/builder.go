package request

import (
	"errors"
	"fmt"
	"strings"

	"ask/internal/models"
	"ask/internal/reasoning"
)

// ErrMissingField indicates a required request field was never set.
var ErrMissingField = errors.New("missing required field")

// StreamOptions asks the backend to append a usage record to the stream.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// Params accumulates the fields of a chat completion request. The zero
// value is usable; Build validates it.
type Params struct {
	Model           string
	Messages        []models.Message
	Stream          bool
	ReasoningEffort reasoning.Effort
	// ShowReasoning requests the vendor-specific reasoning representation
	// for vendors that have one.
	ShowReasoning bool
	// ExtraBody is an opaque provider-specific fragment. Nil is sent as {}.
	ExtraBody map[string]any
	// Budgets maps reasoning levels to thinking budgets. Zero value means
	// DefaultBudgets.
	Budgets Budgets
}

// SetReasoningEffort records the requested reasoning level.
func (p *Params) SetReasoningEffort(effort reasoning.Effort) *Params {
	p.ReasoningEffort = effort
	return p
}

// SetExtraBody replaces the extra body fragment. The last call wins.
func (p *Params) SetExtraBody(extra map[string]any) *Params {
	p.ExtraBody = extra
	return p
}

// Body is the serialized chat completion request. Build returns a copy that
// shares no mutable state with the Params it came from.
type Body struct {
	Model           string           `json:"model"`
	Messages        []models.Message `json:"messages"`
	Stream          bool             `json:"stream"`
	StreamOptions   *StreamOptions   `json:"stream_options,omitempty"`
	ReasoningEffort string           `json:"reasoning_effort,omitempty"`
	ExtraBody       map[string]any   `json:"extra_body"`
}

// Build validates the budget table, applies vendor adaptation, validates
// required fields and produces the request body. It never performs I/O.
func Build(p Params) (Body, error) {
	if err := p.Budgets.Validate(); err != nil {
		return Body{}, fmt.Errorf("%w: %w", ErrInvalidBudgets, err)
	}
	p = Adapt(p)

	if strings.TrimSpace(p.Model) == "" {
		return Body{}, fmt.Errorf("%w: model", ErrMissingField)
	}
	if len(p.Messages) == 0 {
		return Body{}, fmt.Errorf("%w: messages", ErrMissingField)
	}

	messages := make([]models.Message, len(p.Messages))
	copy(messages, p.Messages)

	body := Body{
		Model:     p.Model,
		Messages:  messages,
		Stream:    p.Stream,
		ExtraBody: cloneObject(p.ExtraBody),
	}
	if p.Stream {
		body.StreamOptions = &StreamOptions{IncludeUsage: true}
	}
	if word, ok := p.ReasoningEffort.Generic(); ok {
		body.ReasoningEffort = word
	}
	return body, nil
}

func cloneObject(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneObject(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}
