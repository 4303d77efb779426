package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/notegraph/internal/analysis"
	"github.com/starford/notegraph/internal/jobs"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeSession  = "session"
)

// LLM providers.
const (
	LLMDisabled = "disabled"
	LLMGemini   = "gemini"
	LLMOpenAI   = "openai"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Auth     AuthConfig        `yaml:"auth"`
	LLM      LLMConfig         `yaml:"llm"`
	Google   GoogleConfig      `yaml:"google"`
	Analysis AnalysisConfig    `yaml:"analysis"`
	Jobs     JobsConfig        `yaml:"jobs"`
	Graph    GraphConfig       `yaml:"graph"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{
		&c.App, &c.SQLite, &c.Auth, &c.LLM, &c.Google, &c.Analysis, &c.Jobs, &c.Graph,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel    slog.Level `yaml:"log_level"`
	HTTP        HTTPConfig `yaml:"http"`
	CORSOrigins []string   `yaml:"cors_origins"`
	// FrontendURL is where the Google OAuth callback redirects the browser.
	FrontendURL string `yaml:"frontend_url"`
	// LocalUser is the account every request acts as when auth is disabled,
	// and the account the MCP server acts as.
	LocalUser string `yaml:"local_user"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.FrontendURL, validation.Required, is.URL),
		validation.Field(&c.LocalUser, validation.Required, is.EmailFormat),
	)
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

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): every request acts as app.local_user.
//   - "session": JWT access tokens in a cookie or Bearer header; Secret must be set.
type AuthConfig struct {
	Mode          string        `yaml:"mode"`
	Secret        string        `yaml:"secret"`
	AccessTTL     time.Duration `yaml:"access_ttl"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl"`
	SecureCookies bool          `yaml:"secure_cookies"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeSession)),
		validation.Field(&c.AccessTTL, validation.Min(time.Minute)),
		validation.Field(&c.RefreshTTL, validation.Min(time.Minute)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeSession && len(c.Secret) < 32 {
		return fmt.Errorf("auth: mode is %q but secret is shorter than 32 bytes", AuthModeSession)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeSession
}

// LLMConfig selects the text-generation provider.
type LLMConfig struct {
	Provider   string        `yaml:"provider"`
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries uint64        `yaml:"max_retries"`
}

// Validate validates the LLM configuration.
func (c *LLMConfig) Validate() error {
	if c.Provider == "" {
		c.Provider = LLMDisabled
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.In(LLMDisabled, LLMGemini, LLMOpenAI)),
		validation.Field(&c.APIKey, validation.When(c.Provider != LLMDisabled, validation.Required)),
		validation.Field(&c.BaseURL, is.URL),
	)
}

// GoogleConfig holds the Google OAuth client. Calendar features are off
// while ClientID is empty.
type GoogleConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
	// APIEndpoint overrides the Calendar and userinfo base URL.
	APIEndpoint string `yaml:"api_endpoint"`
}

// Enabled reports whether a client is configured.
func (c *GoogleConfig) Enabled() bool { return c.ClientID != "" }

// Validate validates the Google configuration.
func (c *GoogleConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ClientSecret, validation.When(c.Enabled(), validation.Required)),
		validation.Field(&c.RedirectURL, validation.When(c.Enabled(), validation.Required), is.URL),
		validation.Field(&c.APIEndpoint, is.URL),
	)
}

// AnalysisConfig tunes the analysis orchestrator and heuristic rules.
type AnalysisConfig struct {
	ConnectionWindow int           `yaml:"connection_window"`
	MaxConnections   int           `yaml:"max_connections"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
	CategoryTTL      time.Duration `yaml:"category_ttl"`
	SummaryTTL       time.Duration `yaml:"summary_ttl"`
	FullTTL          time.Duration `yaml:"full_ttl"`
	// RulesFile is an optional YAML override of the keyword rules, reloaded on change.
	RulesFile string `yaml:"rules_file"`
}

// Validate validates the analysis configuration.
func (c *AnalysisConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ConnectionWindow, validation.Required, validation.Min(1), validation.Max(500)),
		validation.Field(&c.MaxConnections, validation.Required, validation.Min(1), validation.Max(50)),
	)
}

// Orchestrator returns the analyzer settings, keeping defaults for unset TTLs.
func (c *AnalysisConfig) Orchestrator() analysis.Config {
	out := analysis.DefaultConfig()
	out.ConnectionWindow = c.ConnectionWindow
	out.MaxConnections = c.MaxConnections
	for _, ttl := range []struct {
		dst *time.Duration
		v   time.Duration
	}{
		{&out.TTL.Default, c.CacheTTL},
		{&out.TTL.Category, c.CategoryTTL},
		{&out.TTL.Summary, c.SummaryTTL},
		{&out.TTL.Full, c.FullTTL},
	} {
		if ttl.v > 0 {
			*ttl.dst = ttl.v
		}
	}
	return out
}

// JobsConfig tunes the background worker pool and its sweeps.
type JobsConfig struct {
	Workers             int                         `yaml:"workers"`
	QueueSize           int                         `yaml:"queue_size"`
	JobTimeout          time.Duration               `yaml:"job_timeout"`
	Retry               map[string]jobs.RetryPolicy `yaml:"retry"`
	UnprocessedInterval time.Duration               `yaml:"unprocessed_interval"`
	CalendarInterval    time.Duration               `yaml:"calendar_interval"`
	MaintenanceInterval time.Duration               `yaml:"maintenance_interval"`
	SweepLimit          int                         `yaml:"sweep_limit"`
	RetainFinished      time.Duration               `yaml:"retain_finished"`
}

// Validate validates the jobs configuration.
func (c *JobsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Workers, validation.Required, validation.Min(1), validation.Max(64)),
		validation.Field(&c.QueueSize, validation.Min(1)),
		validation.Field(&c.SweepLimit, validation.Min(1)),
	)
}

// Queue returns the worker pool settings. Retry policies from the file
// override the defaults per kind.
func (c *JobsConfig) Queue() jobs.Config {
	retry := jobs.DefaultRetry()
	for kind, p := range c.Retry {
		retry[kind] = p
	}
	return jobs.Config{
		Workers:    c.Workers,
		QueueSize:  c.QueueSize,
		JobTimeout: c.JobTimeout,
		Retry:      retry,
	}
}

// Sweeps returns the periodic sweep settings.
func (c *JobsConfig) Sweeps() jobs.SweepConfig {
	return jobs.SweepConfig{
		UnprocessedInterval: c.UnprocessedInterval,
		CalendarInterval:    c.CalendarInterval,
		MaintenanceInterval: c.MaintenanceInterval,
		Limit:               c.SweepLimit,
		RetainFinished:      c.RetainFinished,
	}
}

// GraphConfig points at the optional Neo4j mirror. An empty URI disables it.
type GraphConfig struct {
	URI      string `yaml:"uri"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// Validate validates the graph configuration.
func (c *GraphConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.User, validation.When(c.URI != "", validation.Required)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8000,
			},
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			FrontendURL: "http://localhost:5173",
			LocalUser:   "local@notegraph.local",
		},
		SQLite: SQLiteConfig{
			Path: "./notegraph.db",
		},
		Auth: AuthConfig{
			Mode:       AuthModeDisabled,
			AccessTTL:  30 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		LLM: LLMConfig{
			Provider:   LLMDisabled,
			Timeout:    60 * time.Second,
			MaxRetries: 3,
		},
		Analysis: AnalysisConfig{
			ConnectionWindow: 20,
			MaxConnections:   5,
		},
		Jobs: JobsConfig{
			Workers:             4,
			QueueSize:           256,
			JobTimeout:          5 * time.Minute,
			UnprocessedInterval: 5 * time.Minute,
			CalendarInterval:    30 * time.Minute,
			MaintenanceInterval: 24 * time.Hour,
			SweepLimit:          50,
			RetainFinished:      7 * 24 * time.Hour,
		},
	}
}
