package testutil

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// UpstreamConfig scripts the responses of a fake OpenAI-compatible backend.
type UpstreamConfig struct {
	// StreamChunks are written, flushed one at a time, for stream:true requests.
	StreamChunks []string
	// Completion is the JSON body returned for stream:false requests.
	Completion string
	// Models is the JSON body returned by GET /models.
	Models string
	// Status, when non-zero, is returned with ErrorBody for every request.
	Status    int
	ErrorBody string
}

// RecordedRequest is a request received by the fake backend.
type RecordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// Upstream is a fake OpenAI-compatible backend served under /v1.
type Upstream struct {
	cfg    UpstreamConfig
	server *httptest.Server

	mu       sync.Mutex
	requests []RecordedRequest
}

// NewUpstream starts a fake backend that is shut down when the test ends.
func NewUpstream(t *testing.T, cfg UpstreamConfig) *Upstream {
	t.Helper()

	u := &Upstream{cfg: cfg}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Debug("upstream request", "method", v.Method, "uri", v.URI, "status", v.Status)
			return nil
		},
	}))

	e.POST("/v1/chat/completions", u.handleCompletion)
	e.POST("/v1/completions", u.handleCompletion)
	e.GET("/v1/models", u.handleModels)

	u.server = httptest.NewServer(e)
	t.Cleanup(u.server.Close)
	return u
}

// BaseURL is the API root, including the /v1 prefix.
func (u *Upstream) BaseURL() string {
	return u.server.URL + "/v1"
}

// Requests returns the requests received so far.
func (u *Upstream) Requests() []RecordedRequest {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]RecordedRequest, len(u.requests))
	copy(out, u.requests)
	return out
}

func (u *Upstream) record(c echo.Context) ([]byte, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	u.requests = append(u.requests, RecordedRequest{
		Method: c.Request().Method,
		Path:   c.Request().URL.Path,
		Header: c.Request().Header.Clone(),
		Body:   body,
	})
	u.mu.Unlock()
	return body, nil
}

func (u *Upstream) handleCompletion(c echo.Context) error {
	body, err := u.record(c)
	if err != nil {
		return err
	}
	if u.cfg.Status != 0 {
		return c.JSONBlob(u.cfg.Status, []byte(u.cfg.ErrorBody))
	}

	var req struct {
		Stream bool `json:"stream"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !req.Stream {
		return c.JSONBlob(http.StatusOK, []byte(u.cfg.Completion))
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.WriteHeader(http.StatusOK)
	for _, chunk := range u.cfg.StreamChunks {
		if _, err := io.WriteString(res, chunk); err != nil {
			return err
		}
		res.Flush()
	}
	return nil
}

func (u *Upstream) handleModels(c echo.Context) error {
	if _, err := u.record(c); err != nil {
		return err
	}
	if u.cfg.Status != 0 {
		return c.JSONBlob(u.cfg.Status, []byte(u.cfg.ErrorBody))
	}
	return c.JSONBlob(http.StatusOK, []byte(u.cfg.Models))
}

// Client returns an HTTP client for the fake backend.
func (u *Upstream) Client() *http.Client {
	return u.server.Client()
}
