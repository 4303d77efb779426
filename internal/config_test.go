package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/notegraph/internal/jobs"
	pkgconfig "github.com/starford/notegraph/pkg/config"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should pass: %v", err)
	}
	if cfg.Auth.AuthEnabled() {
		t.Error("default config should not enable auth")
	}
	if cfg.Google.Enabled() {
		t.Error("default config should not enable Google")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_SessionMode(t *testing.T) {
	cfg := AuthConfig{Mode: AuthModeSession, Secret: testSecret}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("session mode with secret should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("session mode should be enabled")
	}
}

func TestAuthConfig_SessionModeShortSecret(t *testing.T) {
	cfg := AuthConfig{Mode: AuthModeSession, Secret: "short"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("session mode with short secret should fail")
	}
	if !strings.Contains(err.Error(), "secret") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestLLMConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     LLMConfig
		wantErr bool
	}{
		{"empty defaults to disabled", LLMConfig{}, false},
		{"gemini with key", LLMConfig{Provider: LLMGemini, APIKey: "k"}, false},
		{"openai without key", LLMConfig{Provider: LLMOpenAI}, true},
		{"unknown provider", LLMConfig{Provider: "claude-ish", APIKey: "k"}, true},
		{"bad base url", LLMConfig{Provider: LLMOpenAI, APIKey: "k", BaseURL: "not a url"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGoogleConfigRequiresSecretWhenEnabled(t *testing.T) {
	cfg := GoogleConfig{ClientID: "id"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("enabled Google without secret should fail")
	}
	cfg.ClientSecret = "s"
	cfg.RedirectURL = "http://localhost:8000/api/auth/google/callback"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("complete Google config should pass: %v", err)
	}
}

func TestFullConfig_SectionValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Jobs.Workers = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch jobs error")
	}

	cfg = NewDefaultConfig()
	cfg.Graph.URI = "bolt://localhost:7687"
	if err := cfg.Validate(); err == nil {
		t.Fatal("graph URI without user should fail")
	}
}

func TestAnalysisConfig_Orchestrator(t *testing.T) {
	cfg := NewDefaultConfig().Analysis
	cfg.ConnectionWindow = 7
	cfg.SummaryTTL = time.Hour

	got := cfg.Orchestrator()
	if got.ConnectionWindow != 7 || got.MaxConnections != 5 {
		t.Errorf("orchestrator = %+v", got)
	}
	if got.TTL.Summary != time.Hour {
		t.Errorf("summary ttl = %v", got.TTL.Summary)
	}
	if got.TTL.Category != 30*24*time.Hour {
		t.Errorf("category ttl = %v, want default", got.TTL.Category)
	}
}

func TestJobsConfig_RetryOverride(t *testing.T) {
	cfg := NewDefaultConfig().Jobs
	cfg.Retry = map[string]jobs.RetryPolicy{jobs.KindAnalyzeNote: {MaxRetries: 9, Delay: time.Second}}

	q := cfg.Queue()
	if q.Retry[jobs.KindAnalyzeNote].MaxRetries != 9 {
		t.Errorf("override lost: %+v", q.Retry[jobs.KindAnalyzeNote])
	}
	if q.Retry[jobs.KindCreateNote].MaxRetries != 3 {
		t.Errorf("default lost: %+v", q.Retry[jobs.KindCreateNote])
	}
	if s := cfg.Sweeps(); s.Limit != 50 || s.CalendarInterval != 30*time.Minute {
		t.Errorf("sweeps = %+v", s)
	}
}

func TestLoadYAMLOverDefaults(t *testing.T) {
	t.Setenv("TEST_SECRET_KEY", testSecret)
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
app:
  log_level: debug
  http:
    port: 9090
auth:
  mode: session
  secret: ${TEST_SECRET_KEY}
  access_ttl: 15m
jobs:
  workers: 2
  retry:
    analyze_note:
      max_retries: 1
      delay: 10s
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.HTTP.Address() != ":9090" || cfg.App.LogLevel.String() != "DEBUG" {
		t.Errorf("app = %+v", cfg.App)
	}
	if cfg.Auth.Secret != testSecret || cfg.Auth.AccessTTL != 15*time.Minute || cfg.Auth.RefreshTTL != 7*24*time.Hour {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	if p := cfg.Jobs.Retry[jobs.KindAnalyzeNote]; p.MaxRetries != 1 || p.Delay != 10*time.Second {
		t.Errorf("retry = %+v", p)
	}
	if cfg.SQLite.Path != "./notegraph.db" {
		t.Errorf("sqlite default lost: %q", cfg.SQLite.Path)
	}
}
