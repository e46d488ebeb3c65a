package request

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"ask/internal/models"
	"ask/internal/reasoning"
)

func userMessages() []models.Message {
	return []models.Message{{Role: "user", Content: "Hello"}}
}

func marshalToMap(t *testing.T, body Body) map[string]any {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	return out
}

func TestBuildRequiresModelAndMessages(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		wantErr bool
	}{
		{name: "empty", params: Params{}, wantErr: true},
		{name: "model only", params: Params{Model: "gpt-4o-mini"}, wantErr: true},
		{name: "messages only", params: Params{Messages: userMessages()}, wantErr: true},
		{name: "empty messages", params: Params{Model: "gpt-4o-mini", Messages: []models.Message{}}, wantErr: true},
		{name: "complete", params: Params{Model: "gpt-4o-mini", Messages: userMessages()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.params)
			if tt.wantErr {
				if !errors.Is(err, ErrMissingField) {
					t.Fatalf("Build() error = %v, want ErrMissingField", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
		})
	}
}

func TestBuildDefaults(t *testing.T) {
	body, err := Build(Params{Model: "gpt-4o-mini", Messages: userMessages()})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	got := marshalToMap(t, body)
	if got["stream"] != false {
		t.Errorf("stream = %v, want false", got["stream"])
	}
	if _, ok := got["stream_options"]; ok {
		t.Error("stream_options must be omitted when not streaming")
	}
	if _, ok := got["reasoning_effort"]; ok {
		t.Error("reasoning_effort must be omitted for level none")
	}
	if extra, ok := got["extra_body"].(map[string]any); !ok || len(extra) != 0 {
		t.Errorf("extra_body = %#v, want empty object", got["extra_body"])
	}
}

func TestBuildStreamingRequestsUsage(t *testing.T) {
	body, err := Build(Params{Model: "gpt-4o-mini", Messages: userMessages(), Stream: true})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	got := marshalToMap(t, body)
	want := map[string]any{"include_usage": true}
	if !reflect.DeepEqual(got["stream_options"], want) {
		t.Errorf("stream_options = %#v, want %#v", got["stream_options"], want)
	}
}

func TestBuildGenericReasoningEffort(t *testing.T) {
	p := Params{Model: "gpt-4o-mini", Messages: userMessages()}
	p.SetReasoningEffort(reasoning.High)

	body, err := Build(p)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if body.ReasoningEffort != "high" {
		t.Errorf("ReasoningEffort = %q, want high", body.ReasoningEffort)
	}
}

func TestBuildExtraBodyLastWriteWins(t *testing.T) {
	p := Params{Model: "gpt-4o-mini", Messages: userMessages()}
	p.SetExtraBody(map[string]any{"first": true}).SetExtraBody(map[string]any{"second": true})

	body, err := Build(p)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !reflect.DeepEqual(body.ExtraBody, map[string]any{"second": true}) {
		t.Errorf("ExtraBody = %#v", body.ExtraBody)
	}
}

func TestBuildDoesNotAliasParams(t *testing.T) {
	p := Params{
		Model:     "gpt-4o-mini",
		Messages:  userMessages(),
		ExtraBody: map[string]any{"nested": map[string]any{"k": "v"}},
	}
	body, err := Build(p)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	p.Messages[0].Content = "changed"
	p.ExtraBody["nested"].(map[string]any)["k"] = "changed"

	if body.Messages[0].Content != "Hello" {
		t.Errorf("message mutated through params: %q", body.Messages[0].Content)
	}
	if body.ExtraBody["nested"].(map[string]any)["k"] != "v" {
		t.Error("extra body mutated through params")
	}
}

func TestBuildRejectsPartialBudgets(t *testing.T) {
	p := Params{
		Model:         "gemini-2.5-flash",
		Messages:      userMessages(),
		ShowReasoning: true,
		Budgets:       Budgets{Low: 100},
	}
	p.SetReasoningEffort(reasoning.High)

	if _, err := Build(p); !errors.Is(err, ErrInvalidBudgets) {
		t.Fatalf("Build() error = %v, want ErrInvalidBudgets", err)
	}

	p.Budgets = Budgets{}
	if _, err := Build(p); err != nil {
		t.Fatalf("Build() with default budgets error = %v", err)
	}
}
