package factory

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"ask/internal/config"
	openaiProvider "ask/internal/provider/openai"
)

const (
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// NewProvider constructs the OpenAI-compatible client described by cfg.
func NewProvider(cfg config.Config, logger *slog.Logger) (*openaiProvider.Client, error) {
	client, err := openaiProvider.New(cfg, NewHTTPClient(cfg.Timeout), logger)
	if err != nil {
		return nil, fmt.Errorf("initialise openai provider: %w", err)
	}
	return client, nil
}

// NewHTTPClient returns an instrumented client without an overall deadline,
// so streamed bodies are never cut short. Only connection setup and the wait
// for response headers are bounded; a zero headerTimeout waits indefinitely.
func NewHTTPClient(headerTimeout time.Duration) *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(newTransport(headerTimeout)),
	}
}

func newTransport(headerTimeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: headerTimeout,
	}
}
