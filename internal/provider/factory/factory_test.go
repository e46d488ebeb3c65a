package factory

import (
	"testing"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"ask/internal/config"
)

func TestNewHTTPClient(t *testing.T) {
	client := NewHTTPClient(30 * time.Second)
	if client.Timeout != 0 {
		t.Errorf("Timeout = %s, want no overall deadline", client.Timeout)
	}
	if _, ok := client.Transport.(*otelhttp.Transport); !ok {
		t.Errorf("Transport = %T, want *otelhttp.Transport", client.Transport)
	}
}

func TestTransportBoundsOnlyHeaders(t *testing.T) {
	tr := newTransport(30 * time.Second)
	if tr.ResponseHeaderTimeout != 30*time.Second {
		t.Errorf("ResponseHeaderTimeout = %s", tr.ResponseHeaderTimeout)
	}
	if tr.TLSHandshakeTimeout == 0 || tr.DialContext == nil {
		t.Error("connection setup should be bounded")
	}
	if newTransport(0).ResponseHeaderTimeout != 0 {
		t.Error("zero timeout should wait for headers indefinitely")
	}
}

func TestNewProvider(t *testing.T) {
	client, err := NewProvider(config.Config{BaseURL: "https://api.openai.com/v1/"}, nil)
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	if got := client.Endpoint(); got != "https://api.openai.com/v1/chat/completions" {
		t.Errorf("Endpoint() = %q", got)
	}

	if _, err := NewProvider(config.Config{}, nil); err == nil {
		t.Error("expected error for empty base url")
	}
}
