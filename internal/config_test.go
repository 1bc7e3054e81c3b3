package internal

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "casewatch/pkg/config"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Monitor.PollInterval() != 2*time.Second {
		t.Errorf("poll interval = %v", cfg.Monitor.PollInterval())
	}
	if cfg.Monitor.CaseIDDigits != 8 {
		t.Errorf("case id digits = %d", cfg.Monitor.CaseIDDigits)
	}
	if cfg.Extract.MaxChars != 6000 {
		t.Errorf("max chars = %d", cfg.Extract.MaxChars)
	}
	if cfg.LLM.Timeout() != 60*time.Second {
		t.Errorf("llm timeout = %v", cfg.LLM.Timeout())
	}
	if cfg.LLM.Temperature != 0.2 {
		t.Errorf("temperature = %v", cfg.LLM.Temperature)
	}
	if cfg.Retry.Backoff() != 5*time.Second {
		t.Errorf("backoff = %v", cfg.Retry.Backoff())
	}
}

func TestApplicationConfig_Level(t *testing.T) {
	for raw, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	} {
		cfg := ApplicationConfig{LogLevel: raw}
		if got := cfg.Level(); got != want {
			t.Errorf("Level(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled || cfg.AuthEnabled() {
		t.Errorf("mode = %q, enabled = %v", cfg.Mode, cfg.AuthEnabled())
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: AuthModeToken}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRepositoryConfig_HTTPRequiresBaseURL(t *testing.T) {
	cfg := RepositoryConfig{Mode: RepositoryModeHTTP}
	if err := cfg.Validate(); err == nil {
		t.Fatal("http mode without base_url should fail")
	}
	cfg.BaseURL = "http://host/cases/"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("http mode with base_url should pass: %v", err)
	}
}

func TestRepositoryConfig_EmptyModeDefaultsFile(t *testing.T) {
	cfg := RepositoryConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to file: %v", err)
	}
	if cfg.Mode != RepositoryModeFile {
		t.Errorf("mode = %q", cfg.Mode)
	}
}

func TestWebhookConfig_EmptyPrimaryAllowed(t *testing.T) {
	cfg := WebhookConfig{Enabled: true, TimeoutSeconds: 10}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty primary URL should pass: %v", err)
	}
	cfg.TimeoutSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("enabled webhook without timeout should fail")
	}
}

func TestMonitorConfig_RejectsBadValues(t *testing.T) {
	cfg := NewDefaultConfig().Monitor
	cfg.PollIntervalSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero poll interval should fail")
	}

	cfg = NewDefaultConfig().Monitor
	cfg.CaseIDDigits = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero case id digits should fail")
	}
}

func TestLoad_ExpandsEnvAndValidates(t *testing.T) {
	t.Setenv("TEST_WEBHOOK_URL", "http://hooks.example/abc")

	raw := `
monitor:
  dir: ./m
  work_dir: ./w
  poll_interval_seconds: 0.5
webhook:
  primary_url: ${TEST_WEBHOOK_URL}
llm:
  model: test-model
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Webhook.PrimaryURL != "http://hooks.example/abc" {
		t.Errorf("primary url = %q", cfg.Webhook.PrimaryURL)
	}
	if cfg.Monitor.PollInterval() != 500*time.Millisecond {
		t.Errorf("poll interval = %v", cfg.Monitor.PollInterval())
	}
	if cfg.LLM.Model != "test-model" {
		t.Errorf("model = %q", cfg.LLM.Model)
	}
	// Unset sections keep their defaults.
	if cfg.App.HTTP.Port != 8080 {
		t.Errorf("port = %d", cfg.App.HTTP.Port)
	}
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	raw := `
app:
  http:
    port: -1
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err == nil {
		t.Fatal("negative port should fail validation")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(filepath.Join(t.TempDir(), "nope.yaml"), cfg); err == nil {
		t.Fatal("missing file should fail")
	}
}
