package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := defaults()

	if cfg.Server.Port != 8088 {
		t.Errorf("expected default port 8088, got %d", cfg.Server.Port)
	}
	if cfg.API.BaseURL != "http://localhost:5000/api" {
		t.Errorf("expected default base url, got %s", cfg.API.BaseURL)
	}
	if cfg.Queries.StaleTime != 30*time.Second {
		t.Errorf("expected default stale time 30s, got %v", cfg.Queries.StaleTime)
	}
	if cfg.Queries.AggregateStaleTime != 60*time.Second {
		t.Errorf("expected aggregate stale time 60s, got %v", cfg.Queries.AggregateStaleTime)
	}
	if cfg.Queries.Retry != 1 {
		t.Errorf("expected a single retry, got %d", cfg.Queries.Retry)
	}
	if cfg.Queries.ReportsInterval != 15*time.Second {
		t.Errorf("expected reports interval 15s, got %v", cfg.Queries.ReportsInterval)
	}
	if cfg.Queries.AvailableMonthsInterval != 5*time.Minute {
		t.Errorf("expected available months interval 5m, got %v", cfg.Queries.AvailableMonthsInterval)
	}
	if len(cfg.Auth.LoginFields) != 2 || cfg.Auth.LoginFields[0].Name != "email" {
		t.Errorf("expected email+password login fields, got %+v", cfg.Auth.LoginFields)
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `
api:
  base_url: "https://gmv.example.com/api"
  timeout: 5s
server:
  port: 9090
  host: "0.0.0.0"
  read_timeout: 10s
  write_timeout: 15s
session:
  store: file
  token_file: "/tmp/gmvdash-test-token"
auth:
  login_fields:
    - name: telegram_user_id
      label: Telegram ID
      rules: required,numeric
    - name: username
      label: Username
      rules: required
queries:
  stale_time: 10s
  aggregate_stale_time: 20s
  hosts_interval: 45s
`
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.API.BaseURL != "https://gmv.example.com/api" {
		t.Errorf("expected base url from file, got %s", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 5*time.Second {
		t.Errorf("expected api timeout 5s, got %v", cfg.API.Timeout)
	}
	if cfg.Queries.HostsInterval != 45*time.Second {
		t.Errorf("expected hosts interval 45s, got %v", cfg.Queries.HostsInterval)
	}
	// Untouched keys keep their defaults.
	if cfg.Queries.ReportsInterval != 15*time.Second {
		t.Errorf("expected default reports interval, got %v", cfg.Queries.ReportsInterval)
	}
	if len(cfg.Auth.LoginFields) != 2 || cfg.Auth.LoginFields[0].Name != "telegram_user_id" {
		t.Errorf("expected telegram login fields, got %+v", cfg.Auth.LoginFields)
	}
}

func TestLoadNoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load with empty path should use defaults: %v", err)
	}
	if cfg.Server.Port != 8088 {
		t.Errorf("expected default port 8088, got %d", cfg.Server.Port)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GMVDASH_API_BASE_URL", "https://env.example.com/api")
	t.Setenv("GMVDASH_PORT", "3000")
	t.Setenv("GMVDASH_HOST", "10.0.0.1")
	t.Setenv("GMVDASH_STALE_TIME", "45s")
	t.Setenv("GMVDASH_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.BaseURL != "https://env.example.com/api" {
		t.Errorf("expected env base url, got %s", cfg.API.BaseURL)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("expected port 3000, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "10.0.0.1" {
		t.Errorf("expected host 10.0.0.1, got %s", cfg.Server.Host)
	}
	if cfg.Queries.StaleTime != 45*time.Second {
		t.Errorf("expected stale time 45s, got %v", cfg.Queries.StaleTime)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Log.Level)
	}
}

func TestEnvWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GMVDASH_PORT", "7070")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("expected env port 7070 to win, got %d", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"port too low", func(c *Config) { c.Server.Port = 0 }, true},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, true},
		{"zero read timeout", func(c *Config) { c.Server.ReadTimeout = 0 }, true},
		{"empty base url", func(c *Config) { c.API.BaseURL = "" }, true},
		{"relative base url", func(c *Config) { c.API.BaseURL = "/api" }, true},
		{"zero api timeout", func(c *Config) { c.API.Timeout = 0 }, true},
		{"unknown store", func(c *Config) { c.Session.Store = "sqlite" }, true},
		{"redis without addr", func(c *Config) { c.Session.Store = "redis"; c.Session.RedisAddr = "" }, true},
		{"short token key", func(c *Config) { c.Session.TokenKey = "abcd" }, true},
		{"valid token key", func(c *Config) { c.Session.TokenKey = strings.Repeat("ab", 32) }, false},
		{"no login fields", func(c *Config) { c.Auth.LoginFields = nil }, true},
		{"unnamed login field", func(c *Config) { c.Auth.LoginFields = []LoginField{{Label: "x"}} }, true},
		{"negative retry", func(c *Config) { c.Queries.Retry = -1 }, true},
		{"zero login attempts", func(c *Config) { c.LoginLimit.Attempts = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAddr(t *testing.T) {
	cfg := defaults()
	if cfg.Addr() != "127.0.0.1:8088" {
		t.Errorf("expected 127.0.0.1:8088, got %s", cfg.Addr())
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_GMVDASH_VAR", "hello")
	result := expandEnvVars("value: ${TEST_GMVDASH_VAR}")
	if result != "value: hello" {
		t.Errorf("expected 'value: hello', got %s", result)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandHome("~/x/token"); got != filepath.Join(home, "x", "token") {
		t.Errorf("expected expansion under %s, got %s", home, got)
	}
	if got := expandHome("/abs/token"); got != "/abs/token" {
		t.Errorf("absolute path should be unchanged, got %s", got)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("{{invalid yaml"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}
