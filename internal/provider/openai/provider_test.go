package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"strings"
	"testing"

	"ask/internal/config"
	"ask/internal/models"
	"ask/internal/provider"
	"ask/internal/reasoning"
	"ask/internal/request"
	"ask/internal/stream"
	"ask/internal/testutil"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

func newClient(t *testing.T, cfg config.Config, client *http.Client) *Client {
	t.Helper()
	if client == nil {
		client = http.DefaultClient
	}
	c, err := New(cfg, client, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func buildBody(t *testing.T, p request.Params) request.Body {
	t.Helper()
	body, err := request.Build(p)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return body
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		base   string
		legacy bool
		want   string
	}{
		{base: "https://api.openai.com/v1", want: "https://api.openai.com/v1/chat/completions"},
		{base: "https://api.openai.com/v1/", want: "https://api.openai.com/v1/chat/completions"},
		{base: "http://localhost:8080/v1", legacy: true, want: "http://localhost:8080/v1/completions"},
		{base: "http://localhost:8080/v1/", legacy: true, want: "http://localhost:8080/v1/completions"},
	}
	for _, tt := range tests {
		if got := Endpoint(tt.base, tt.legacy); got != tt.want {
			t.Errorf("Endpoint(%q, %v) = %q, want %q", tt.base, tt.legacy, got, tt.want)
		}
	}
}

func TestNewRejectsMissingInputs(t *testing.T) {
	if _, err := New(config.Config{BaseURL: "http://x"}, nil, nil); err == nil {
		t.Error("expected error for nil client")
	}
	if _, err := New(config.Config{}, http.DefaultClient, nil); err == nil {
		t.Error("expected error for empty base url")
	}
}

func TestCompleteSendsHeadersAndDecodes(t *testing.T) {
	upstream := testutil.NewUpstream(t, testutil.UpstreamConfig{
		Completion: `{"choices":[{"index":0,"message":{"role":"assistant","content":"Paris."},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":5,"total_tokens":8}}`,
	})
	c := newClient(t, config.Config{
		BaseURL: upstream.BaseURL(),
		APIKey:  "sk-test",
		Headers: config.Headers{"X-Team": "blue"},
	}, nil)

	got, err := c.Complete(context.Background(), buildBody(t, request.Params{
		Model:    "gpt-4o-mini",
		Messages: []models.Message{{Role: "user", Content: "Capital of France?"}},
	}))
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got.Content != "Paris." || got.Usage.TotalTokens != 8 {
		t.Errorf("Complete() = %+v", got)
	}

	reqs := upstream.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	req := reqs[0]
	if req.Path != "/v1/chat/completions" {
		t.Errorf("path = %q", req.Path)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer sk-test" {
		t.Errorf("Authorization = %q", got)
	}
	if got := req.Header.Get("Accept"); got != contentTypeJSON {
		t.Errorf("Accept = %q", got)
	}
	if req.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	if got := req.Header.Get("X-Team"); got != "blue" {
		t.Errorf("X-Team = %q", got)
	}

	var sent map[string]any
	if err := json.Unmarshal(req.Body, &sent); err != nil {
		t.Fatalf("decode sent body: %v", err)
	}
	if sent["stream"] != false {
		t.Errorf("stream = %v", sent["stream"])
	}
	if _, ok := sent["extra_body"]; !ok {
		t.Error("extra_body key missing")
	}
	if _, ok := sent["stream_options"]; ok {
		t.Error("stream_options must be omitted for non-streaming requests")
	}
}

func TestCompleteOmitsAuthorizationWithoutKey(t *testing.T) {
	upstream := testutil.NewUpstream(t, testutil.UpstreamConfig{
		Completion: `{"choices":[{"index":0,"text":"ok"}]}`,
	})
	c := newClient(t, config.Config{BaseURL: upstream.BaseURL() + "/", LegacyCompletions: true}, nil)

	got, err := c.Complete(context.Background(), buildBody(t, request.Params{
		Model:    "local",
		Messages: []models.Message{{Role: "user", Content: "hi"}},
	}))
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got.Content != "ok" {
		t.Errorf("Content = %q", got.Content)
	}
	req := upstream.Requests()[0]
	if req.Path != "/v1/completions" {
		t.Errorf("path = %q", req.Path)
	}
	if got := req.Header.Get("Authorization"); got != "" {
		t.Errorf("Authorization = %q, want none", got)
	}
}

func TestStreamDeliversFragments(t *testing.T) {
	upstream := testutil.NewUpstream(t, testutil.UpstreamConfig{
		StreamChunks: []string{
			"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n",
			"\ndata: {\"choices\":[{\"delta\":{\"con",
			"tent\":\"lo\"}}]}\n\n",
			"data: {\"choices\":[],\"usage\":{\"prompt_tokens\":2,\"completion_tokens\":2,\"total_tokens\":4}}\n\n",
			"data: [DONE]\n\n",
		},
	})
	c := newClient(t, config.Config{BaseURL: upstream.BaseURL()}, nil)

	body, err := c.Stream(context.Background(), buildBody(t, request.Params{
		Model:    "gpt-4o-mini",
		Messages: []models.Message{{Role: "user", Content: "hi"}},
		Stream:   true,
	}))
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer body.Close()

	dec := stream.NewDecoder(stream.WithErrorHandler(func(err error) {
		t.Errorf("unexpected stream error: %v", err)
	}))
	got := slices.Collect(dec.Fragments(stream.ReadChunks(body, 16)))
	if strings.Join(got, "") != "Hello" {
		t.Errorf("fragments = %q", got)
	}
	if u := dec.Usage(); u == nil || u.TotalTokens != 4 {
		t.Errorf("usage = %+v", u)
	}

	if got := upstream.Requests()[0].Header.Get("Accept"); got != contentTypeEventStream {
		t.Errorf("Accept = %q", got)
	}
}

func TestStreamAndCompleteRejectMismatchedMode(t *testing.T) {
	c := newClient(t, config.Config{BaseURL: "http://127.0.0.1:1"}, nil)
	ctx := context.Background()

	if _, err := c.Complete(ctx, request.Body{Stream: true}); !errors.Is(err, provider.ErrUnsupportedOperation) {
		t.Errorf("Complete(stream) error = %v", err)
	}
	if _, err := c.Stream(ctx, request.Body{}); !errors.Is(err, provider.ErrUnsupportedOperation) {
		t.Errorf("Stream(non-stream) error = %v", err)
	}
}

func TestAPIErrorParsing(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType string
		wantMsg  string
	}{
		{
			name:     "openai object",
			status:   http.StatusUnauthorized,
			body:     `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`,
			wantType: "invalid_request_error",
			wantMsg:  "Incorrect API key provided",
		},
		{
			name:     "gemini array",
			status:   http.StatusBadRequest,
			body:     `[{"error":{"code":400,"message":"API key not valid.","status":"INVALID_ARGUMENT"}}]`,
			wantType: "INVALID_ARGUMENT",
			wantMsg:  "API key not valid.",
		},
		{
			name:   "plain text",
			status: http.StatusBadGateway,
			body:   `"upstream down"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := testutil.NewUpstream(t, testutil.UpstreamConfig{Status: tt.status, ErrorBody: tt.body})
			c := newClient(t, config.Config{BaseURL: upstream.BaseURL()}, nil)

			_, err := c.Complete(context.Background(), buildBody(t, request.Params{
				Model:    "m",
				Messages: []models.Message{{Role: "user", Content: "hi"}},
			}))
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error = %v, want *APIError", err)
			}
			if apiErr.StatusCode != tt.status || apiErr.Type != tt.wantType || apiErr.Message != tt.wantMsg {
				t.Errorf("APIError = %+v", apiErr)
			}
			if !strings.Contains(apiErr.Error(), "status") {
				t.Errorf("Error() = %q", apiErr.Error())
			}
		})
	}
}

func TestCheckModelAgainstUpstream(t *testing.T) {
	upstream := testutil.NewUpstream(t, testutil.UpstreamConfig{
		Models: `{"object":"list","data":[{"id":"gpt-4o-mini","owned_by":"openai"},{"id":"o3-mini"}]}`,
	})
	c := newClient(t, config.Config{BaseURL: upstream.BaseURL()}, nil)
	ctx := context.Background()

	if err := c.CheckModel(ctx, "o3-mini"); err != nil {
		t.Errorf("CheckModel(o3-mini) error = %v", err)
	}
	err := c.CheckModel(ctx, "gpt-5")
	if !errors.Is(err, provider.ErrUnknownModel) {
		t.Fatalf("CheckModel(gpt-5) error = %v", err)
	}
	if !strings.Contains(err.Error(), "gpt-4o-mini, o3-mini") {
		t.Errorf("error should list available models: %v", err)
	}
	if got := upstream.Requests()[0].Method; got != http.MethodGet {
		t.Errorf("method = %q", got)
	}
}

func TestListModelsRecorded(t *testing.T) {
	rec := testutil.NewVCRRecorder(t, "gemini_models")
	c := newClient(t, config.Config{BaseURL: geminiBaseURL, APIKey: "test"}, testutil.VCRHTTPClient(rec))

	list, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	ids := make([]string, 0, len(list))
	for _, m := range list {
		ids = append(ids, m.ID)
	}
	want := []string{"models/gemini-2.0-flash", "models/gemini-2.5-flash"}
	if !slices.Equal(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
	if list[0].OwnedBy != "google" {
		t.Errorf("OwnedBy = %q", list[0].OwnedBy)
	}
}

func TestStreamRecordedGemini(t *testing.T) {
	rec := testutil.NewVCRRecorder(t, "gemini_chat_stream")
	c := newClient(t, config.Config{BaseURL: geminiBaseURL, APIKey: "test"}, testutil.VCRHTTPClient(rec))

	p := request.Params{
		Model:         "gemini-2.5-flash",
		Messages:      []models.Message{{Role: "user", Content: "Say hi"}},
		Stream:        true,
		ShowReasoning: true,
	}
	p.SetReasoningEffort(reasoning.Low)

	body, err := c.Stream(context.Background(), buildBody(t, p))
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer body.Close()

	dec := stream.NewDecoder()
	var sb strings.Builder
	for fragment := range dec.Fragments(stream.ReadChunks(body, stream.DefaultChunkSize)) {
		sb.WriteString(fragment)
	}
	if sb.String() != "Hi there!" {
		t.Errorf("answer = %q", sb.String())
	}
	if !dec.Done() {
		t.Error("decoder did not observe the sentinel")
	}
	if u := dec.Usage(); u == nil || u.TotalTokens != 6 {
		t.Errorf("usage = %+v", u)
	}
	_, _ = io.Copy(io.Discard, body)
}
