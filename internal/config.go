package internal

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Repository modes.
const (
	RepositoryModeFile = "file"
	RepositoryModeHTTP = "http"
)

// Config represents the application configuration. It is constructed
// once at startup and injected into every component; nothing reads it
// as ambient global state.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Monitor    MonitorConfig     `yaml:"monitor"`
	Extract    ExtractConfig     `yaml:"extract"`
	Repository RepositoryConfig  `yaml:"repository"`
	LLM        LLMConfig         `yaml:"llm"`
	Webhook    WebhookConfig     `yaml:"webhook"`
	Journal    JournalConfig     `yaml:"journal"`
	Retry      RetryConfig       `yaml:"retry"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Monitor.Validate(); err != nil {
		return err
	}
	if err := c.Extract.Validate(); err != nil {
		return err
	}
	if err := c.Repository.Validate(); err != nil {
		return err
	}
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if err := c.Webhook.Validate(); err != nil {
		return err
	}
	if err := c.Journal.Validate(); err != nil {
		return err
	}
	return c.Retry.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel string     `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
	Auth     AuthConfig `yaml:"auth"`
}

// Level parses the configured log level, defaulting to info.
func (c *ApplicationConfig) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// AuthConfig holds status-API authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// MonitorConfig holds directory-monitor configuration. Interval-style
// values are given in seconds so they can be supplied directly through
// environment variable expansion.
type MonitorConfig struct {
	Dir                 string  `yaml:"dir"`
	WorkDir             string  `yaml:"work_dir"`
	PollIntervalSeconds float64 `yaml:"poll_interval_seconds"`
	CaseIDDigits        int     `yaml:"case_id_digits"`
	ProcessExisting     bool    `yaml:"process_existing"`
	MaxConcurrent       int     `yaml:"max_concurrent"`
}

// PollInterval returns the directory scan interval.
func (c *MonitorConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds * float64(time.Second))
}

// Validate validates the monitor configuration.
func (c *MonitorConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
		validation.Field(&c.WorkDir, validation.Required),
		validation.Field(&c.PollIntervalSeconds, validation.Required, validation.Min(0.1)),
		validation.Field(&c.CaseIDDigits, validation.Required, validation.Min(1), validation.Max(32)),
		validation.Field(&c.MaxConcurrent, validation.Required, validation.Min(1)),
	)
}

// ExtractConfig holds history-extraction configuration. Keyword fields
// are comma-separated lists matched case-insensitively.
type ExtractConfig struct {
	SeparatorPattern  string          `yaml:"separator_pattern"`
	HeaderDatePattern string          `yaml:"header_date_pattern"`
	QuestionKeywords  string          `yaml:"question_keywords"`
	AnswerKeywords    string          `yaml:"answer_keywords"`
	MaxChars          int             `yaml:"max_chars"`
	LogFilter         LogFilterConfig `yaml:"log_filter"`
}

// Validate validates the extraction configuration.
func (c *ExtractConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.SeparatorPattern, validation.Required),
		validation.Field(&c.HeaderDatePattern, validation.Required),
		validation.Field(&c.QuestionKeywords, validation.Required),
		validation.Field(&c.AnswerKeywords, validation.Required),
		validation.Field(&c.MaxChars, validation.Required, validation.Min(1)),
	); err != nil {
		return err
	}
	return c.LogFilter.Validate()
}

// LogFilterConfig controls removal of log noise from entry bodies.
type LogFilterConfig struct {
	Enabled    bool `yaml:"enabled"`
	MaxLineLen int  `yaml:"max_line_len"`
}

// Validate validates the log filter configuration.
func (c *LogFilterConfig) Validate() error {
	if c.Enabled && c.MaxLineLen < 1 {
		return fmt.Errorf("log_filter: max_line_len must be positive when enabled")
	}
	return nil
}

// RepositoryConfig selects how the authoritative case text is fetched.
type RepositoryConfig struct {
	Mode           string `yaml:"mode"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the repository fetch timeout.
func (c *RepositoryConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate validates the repository configuration.
func (c *RepositoryConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = RepositoryModeFile
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(RepositoryModeFile, RepositoryModeHTTP)),
	); err != nil {
		return err
	}
	if c.Mode == RepositoryModeHTTP && c.BaseURL == "" {
		return fmt.Errorf("repository: mode is %q but base_url is empty", RepositoryModeHTTP)
	}
	return nil
}

// LLMConfig holds judgment endpoint configuration.
type LLMConfig struct {
	BaseURL        string  `yaml:"base_url"`
	APIKey         string  `yaml:"api_key"`
	Model          string  `yaml:"model"`
	Temperature    float64 `yaml:"temperature"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	Prompt         string  `yaml:"prompt"`
	AllowPartial   bool    `yaml:"allow_partial"`
}

// Timeout returns the LLM request timeout.
func (c *LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate validates the LLM configuration.
func (c *LLMConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required),
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.Temperature, validation.Min(0.0), validation.Max(2.0)),
		validation.Field(&c.TimeoutSeconds, validation.Required, validation.Min(1)),
	)
}

// WebhookConfig holds notification webhook configuration. RejectURL is
// optional: when empty, rejection verdicts go only to the primary
// webhook.
type WebhookConfig struct {
	Enabled        bool   `yaml:"enabled"`
	PrimaryURL     string `yaml:"primary_url"`
	RejectURL      string `yaml:"reject_url"`
	CaseLinkBase   string `yaml:"case_link_base"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the webhook delivery timeout.
func (c *WebhookConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate validates the webhook configuration. An empty PrimaryURL is
// allowed even when enabled: delivery is silently skipped until a
// webhook is configured.
func (c *WebhookConfig) Validate() error {
	if c.Enabled && c.TimeoutSeconds < 1 {
		return fmt.Errorf("webhook: timeout_seconds must be positive when enabled")
	}
	return nil
}

// JournalConfig holds the processing-journal database path.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the journal configuration.
func (c *JournalConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// RetryConfig bounds retries of transient stage failures.
type RetryConfig struct {
	MaxAttempts    int `yaml:"max_attempts"`
	BackoffSeconds int `yaml:"backoff_seconds"`
}

// Backoff returns the base backoff interval; attempt n waits
// Backoff() << (n-1).
func (c *RetryConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffSeconds) * time.Second
}

// Validate validates the retry configuration.
func (c *RetryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxAttempts, validation.Required, validation.Min(1)),
		validation.Field(&c.BackoffSeconds, validation.Required, validation.Min(1)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: "info",
			HTTP: HTTPConfig{
				Port: 8080,
			},
			Auth: AuthConfig{
				Mode: AuthModeDisabled,
			},
		},
		Monitor: MonitorConfig{
			Dir:                 "./monitor",
			WorkDir:             "./work",
			PollIntervalSeconds: 2,
			CaseIDDigits:        8,
			MaxConcurrent:       4,
		},
		Extract: ExtractConfig{
			SeparatorPattern:  `^ー+$`,
			HeaderDatePattern: `\d{4}/\d{2}/\d{2}\s+\d{2}:\d{2}`,
			QuestionKeywords:  "QUESTION",
			AnswerKeywords:    "ANSWER",
			MaxChars:          6000,
			LogFilter: LogFilterConfig{
				Enabled:    true,
				MaxLineLen: 200,
			},
		},
		Repository: RepositoryConfig{
			Mode:           RepositoryModeFile,
			BaseURL:        "http://localhost:8080/",
			TimeoutSeconds: 30,
		},
		LLM: LLMConfig{
			BaseURL:        "http://localhost:11434/v1",
			Model:          "llama3.2:1b",
			Temperature:    0.2,
			TimeoutSeconds: 60,
		},
		Webhook: WebhookConfig{
			Enabled:        true,
			CaseLinkBase:   "http://localhost:8080/",
			TimeoutSeconds: 10,
		},
		Journal: JournalConfig{
			Path: "./casewatch.db",
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			BackoffSeconds: 5,
		},
	}
}
