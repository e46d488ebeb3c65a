package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"ask/internal/config"
	"ask/internal/models"
	"ask/internal/provider"
	"ask/internal/request"
	"ask/internal/translator"
)

const (
	contentTypeJSON        = "application/json"
	contentTypeEventStream = "text/event-stream"
	maxErrorBodyBytes      = 64 * 1024
)

// UserAgent is sent with every request.
var UserAgent = "ask/dev"

var (
	_ provider.Provider    = (*Client)(nil)
	_ provider.ModelLister = (*Client)(nil)
)

// Client talks to an OpenAI-compatible API. It performs exactly one HTTP
// exchange per call and never retries.
type Client struct {
	apiKey   string
	baseURL  string
	headers  map[string]string
	client   *http.Client
	logger   *slog.Logger
	endpoint string
}

// New creates a client for the configured backend.
func New(cfg config.Config, client *http.Client, logger *slog.Logger) (*Client, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("base url must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		apiKey:   cfg.APIKey,
		baseURL:  cfg.BaseURL,
		headers:  cfg.Headers,
		client:   client,
		logger:   logger,
		endpoint: Endpoint(cfg.BaseURL, cfg.LegacyCompletions),
	}, nil
}

// Endpoint returns the completion URL for baseURL, inserting a separator
// only when baseURL does not already end with one.
func Endpoint(baseURL string, legacyCompletions bool) string {
	path := "chat/completions"
	if legacyCompletions {
		path = "completions"
	}
	return joinURL(baseURL, path)
}

func joinURL(baseURL, path string) string {
	if strings.HasSuffix(baseURL, "/") {
		return baseURL + path
	}
	return baseURL + "/" + path
}

// Endpoint returns the URL requests are posted to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Complete sends a non-streaming request and decodes the single response.
func (c *Client) Complete(ctx context.Context, body request.Body) (*models.Completion, error) {
	if body.Stream {
		return nil, fmt.Errorf("complete called with a streaming request: %w", provider.ErrUnsupportedOperation)
	}

	httpResp, err := c.do(ctx, http.MethodPost, c.endpoint, body, contentTypeJSON)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	return translator.DecodeChatResponse(httpResp.Body)
}

// Stream sends a streaming request and returns the open event-stream body.
// The caller must close it.
func (c *Client) Stream(ctx context.Context, body request.Body) (io.ReadCloser, error) {
	if !body.Stream {
		return nil, fmt.Errorf("stream called with a non-streaming request: %w", provider.ErrUnsupportedOperation)
	}

	httpResp, err := c.do(ctx, http.MethodPost, c.endpoint, body, contentTypeEventStream)
	if err != nil {
		return nil, err
	}
	return httpResp.Body, nil
}

// ListModels returns the models advertised by GET /models.
func (c *Client) ListModels(ctx context.Context) ([]models.Model, error) {
	httpResp, err := c.do(ctx, http.MethodGet, joinURL(c.baseURL, "models"), nil, contentTypeJSON)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	return translator.DecodeModelList(httpResp.Body)
}

// CheckModel verifies that id is advertised by the backend.
func (c *Client) CheckModel(ctx context.Context, id string) error {
	available, err := c.ListModels(ctx)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(available))
	for _, model := range available {
		if model.ID == id {
			return nil
		}
		ids = append(ids, model.ID)
	}
	return fmt.Errorf("%w: %s (available: %s)", provider.ErrUnknownModel, id, strings.Join(ids, ", "))
}

func (c *Client) do(ctx context.Context, method, url string, payload any, accept string) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, url, payload, accept)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("sending request",
		"method", method,
		"url", url,
		"request_id", req.Header.Get("X-Request-ID"),
	)

	httpResp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s request failed: %w", method, url, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		defer httpResp.Body.Close()
		return nil, parseAPIError(httpResp)
	}
	return httpResp, nil
}

func (c *Client) newRequest(ctx context.Context, method, url string, payload any, accept string) (*http.Request, error) {
	var reader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	if payload != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		if e.Type != "" {
			return fmt.Sprintf("upstream error status %d (%s): %s", e.StatusCode, e.Type, e.Message)
		}
		return fmt.Sprintf("upstream error status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("upstream error status %d: %s", e.StatusCode, e.Body)
}

type apiErrorResponse struct {
	Error apiErrorObject `json:"error"`
}

type apiErrorObject struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Status  string `json:"status"`
	Code    any    `json:"code"`
}

func parseAPIError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		return fmt.Errorf("upstream error status %d and failed to read body: %w", resp.StatusCode, err)
	}

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}

	// Some backends wrap the error object in a one-element array.
	var parsed apiErrorResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		var wrapped []apiErrorResponse
		if json.Unmarshal(body, &wrapped) == nil && len(wrapped) > 0 {
			parsed = wrapped[0]
		}
	}
	apiErr.Message = parsed.Error.Message
	apiErr.Type = parsed.Error.Type
	if apiErr.Type == "" {
		apiErr.Type = parsed.Error.Status
	}
	return apiErr
}
