package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"ask/internal/request"
)

const (
	// PathEnv overrides the configuration file location.
	PathEnv = "ASKCONFIG_PATH"

	envPrefix       = "ASK_"
	defaultFileName = ".askconfig"
	redacted        = "********"

	headersEnvPrefix = "headers__"
)

var defaults = map[string]any{
	"base_url":           "https://generativelanguage.googleapis.com/v1beta/openai/",
	"legacy_completions": false,
	"model":              "gemini-2.0-flash",
	"thinking_model":     "gemini-2.5-flash",
	"system_prompt":      "The user will be asking questions via a terminal, so there is no need for markdown formatting.",
	"system_role":        "system",
	"stream":             true,
	"timeout":            "0s",
}

// Config represents the client configuration. Values come from defaults,
// the config file and ASK_* environment variables, in increasing priority.
type Config struct {
	BaseURL           string          `koanf:"base_url" yaml:"base_url"`
	LegacyCompletions bool            `koanf:"legacy_completions" yaml:"legacy_completions"`
	Model             string          `koanf:"model" yaml:"model"`
	ThinkingModel     string          `koanf:"thinking_model" yaml:"thinking_model"`
	SystemPrompt      string          `koanf:"system_prompt" yaml:"system_prompt"`
	SystemRole        string          `koanf:"system_role" yaml:"system_role"`
	Stream            bool            `koanf:"stream" yaml:"stream"`
	APIKey            string          `koanf:"api_key" yaml:"api_key,omitempty"`
	Headers           Headers         `koanf:"headers" yaml:"headers,omitempty"`
	// Timeout bounds the wait for response headers. Zero waits indefinitely.
	Timeout           time.Duration   `koanf:"timeout" yaml:"timeout"`
	ThinkingBudgets   ThinkingBudgets `koanf:"thinking_budgets" yaml:"thinking_budgets"`
}

// Headers contains additional HTTP headers to send with every request.
type Headers map[string]string

// ThinkingBudgets overrides the per-level thinking budgets. Leaving all three
// at zero keeps the built-in table.
type ThinkingBudgets struct {
	Low    int `koanf:"low" yaml:"low"`
	Medium int `koanf:"medium" yaml:"medium"`
	High   int `koanf:"high" yaml:"high"`
}

// Budgets converts the configured values for the request builder.
func (b ThinkingBudgets) Budgets() request.Budgets {
	return request.Budgets{Low: b.Low, Medium: b.Medium, High: b.High}
}

// DefaultPath returns $ASKCONFIG_PATH, else $HOME/.askconfig, else
// ./.askconfig.
func DefaultPath() string {
	if path := os.Getenv(PathEnv); path != "" {
		return path
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, defaultFileName)
	}
	return defaultFileName
}

// Load reads configuration and validates the result. An empty path means
// DefaultPath, which may be absent; an explicit path must exist. The file may
// be YAML or JSON.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	k := koanf.New(".")
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return Config{}, fmt.Errorf("set default %s: %w", key, err)
		}
	}

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}

	if err := k.Load(file.Provider(absPath), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKey maps ASK_FOO__BAR to foo.bar. Header names keep their own
// spelling: ASK_HEADERS__X_TRACE_ID becomes headers.X-Trace-Id.
func envKey(s string) string {
	key := strings.TrimPrefix(s, envPrefix)
	if name, ok := strings.CutPrefix(strings.ToLower(key), headersEnvPrefix); ok {
		return "headers." + http.CanonicalHeaderKey(strings.ReplaceAll(name, "_", "-"))
	}
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("base_url must be provided")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("base_url %q is not a valid URL: %w", c.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url %q must use http or https", c.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("base_url %q must include a host", c.BaseURL)
	}

	if strings.TrimSpace(c.Model) == "" {
		return errors.New("model must be provided")
	}
	if strings.TrimSpace(c.SystemPrompt) != "" && strings.TrimSpace(c.SystemRole) == "" {
		return errors.New("system_role must be provided when system_prompt is set")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}

	for headerKey := range c.Headers {
		if !isCanonicalHTTPHeader(headerKey) {
			return fmt.Errorf("header %q is not a valid canonical HTTP header", headerKey)
		}
	}

	if err := c.ThinkingBudgets.Budgets().Validate(); err != nil {
		return fmt.Errorf("thinking_budgets: %w", err)
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	out := c
	if out.APIKey != "" {
		out.APIKey = redacted
	}
	if len(c.Headers) > 0 {
		out.Headers = make(Headers, len(c.Headers))
		for k, v := range c.Headers {
			if strings.EqualFold(k, "Authorization") {
				v = redacted
			}
			out.Headers[k] = v
		}
	}
	return out
}

// YAML renders the redacted configuration.
func (c Config) YAML() ([]byte, error) {
	data, err := yamlv3.Marshal(c.Redacted())
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

func isCanonicalHTTPHeader(header string) bool {
	if header == "" {
		return false
	}

	for _, r := range header {
		if !(r == '-' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')) {
			return false
		}
	}
	return true
}
