package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	API        APIConfig        `yaml:"api"`
	Server     ServerConfig     `yaml:"server"`
	Session    SessionConfig    `yaml:"session"`
	Auth       AuthConfig       `yaml:"auth"`
	Queries    QueryConfig      `yaml:"queries"`
	Log        LogConfig        `yaml:"log"`
	LoginLimit LoginLimitConfig `yaml:"login_limit"`
}

type APIConfig struct {
	BaseURL string        `yaml:"base_url" env:"GMVDASH_API_BASE_URL"`
	Timeout time.Duration `yaml:"timeout" env:"GMVDASH_API_TIMEOUT"`
}

type ServerConfig struct {
	Host         string        `yaml:"host" env:"GMVDASH_HOST"`
	Port         int           `yaml:"port" env:"GMVDASH_PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type SessionConfig struct {
	Store     string `yaml:"store" env:"GMVDASH_SESSION_STORE"` // "file" or "redis"
	TokenFile string `yaml:"token_file" env:"GMVDASH_TOKEN_FILE"`
	TokenKey  string `yaml:"token_key" env:"GMVDASH_TOKEN_KEY"` // hex, 32 bytes; empty stores the token in clear
	RedisAddr string `yaml:"redis_addr" env:"GMVDASH_REDIS_ADDR"`
	RedisKey  string `yaml:"redis_key" env:"GMVDASH_REDIS_KEY"`
	Watch     bool   `yaml:"watch" env:"GMVDASH_SESSION_WATCH"`
}

// LoginField describes one credential the backend expects on POST /auth/login.
type LoginField struct {
	Name   string `yaml:"name"`
	Label  string `yaml:"label"`
	Secret bool   `yaml:"secret"`
	Rules  string `yaml:"rules"` // validator tags, e.g. "required,email"
}

type AuthConfig struct {
	LoginFields []LoginField `yaml:"login_fields"`
}

type QueryConfig struct {
	StaleTime               time.Duration `yaml:"stale_time" env:"GMVDASH_STALE_TIME"`
	AggregateStaleTime      time.Duration `yaml:"aggregate_stale_time"`
	Retry                   int           `yaml:"retry"`
	RetryDelay              time.Duration `yaml:"retry_delay"`
	GCTime                  time.Duration `yaml:"gc_time"`
	ReportsInterval         time.Duration `yaml:"reports_interval"`
	StatisticsInterval      time.Duration `yaml:"statistics_interval"`
	HostsInterval           time.Duration `yaml:"hosts_interval"`
	PendingUsersInterval    time.Duration `yaml:"pending_users_interval"`
	AvailableMonthsInterval time.Duration `yaml:"available_months_interval"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"GMVDASH_LOG_LEVEL"`
}

type LoginLimitConfig struct {
	Attempts int           `yaml:"attempts"`
	Window   time.Duration `yaml:"window"`
}

// Load builds the configuration from defaults, an optional YAML file, an
// optional .env file in the working directory, and GMVDASH_* variables, in
// that order of precedence (last wins).
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		expanded := expandEnvVars(string(data))

		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	cfg.Session.TokenFile = expandHome(cfg.Session.TokenFile)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:5000/api",
			Timeout: 15 * time.Second,
		},
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8088,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Session: SessionConfig{
			Store:     "file",
			TokenFile: defaultTokenFile(),
			RedisAddr: "localhost:6379",
			RedisKey:  "gmvdash:token",
		},
		Auth: AuthConfig{
			LoginFields: DefaultLoginFields(),
		},
		Queries: QueryConfig{
			StaleTime:               30 * time.Second,
			AggregateStaleTime:      60 * time.Second,
			Retry:                   1,
			RetryDelay:              time.Second,
			GCTime:                  5 * time.Minute,
			ReportsInterval:         15 * time.Second,
			StatisticsInterval:      15 * time.Second,
			HostsInterval:           30 * time.Second,
			PendingUsersInterval:    30 * time.Second,
			AvailableMonthsInterval: 5 * time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
		LoginLimit: LoginLimitConfig{
			Attempts: 5,
			Window:   time.Minute,
		},
	}
}

// DefaultLoginFields is the email+password shape used by the current backend.
func DefaultLoginFields() []LoginField {
	return []LoginField{
		{Name: "email", Label: "Email", Rules: "required,email"},
		{Name: "password", Label: "Password", Secret: true, Rules: "required,min=6"},
	}
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".gmvdash-token"
	}
	return filepath.Join(dir, "gmvdash", "token")
}

func expandEnvVars(s string) string {
	return os.ExpandEnv(s)
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

// applyEnvOverrides only touches the sections that carry env tags; the login
// field schema is file-only.
func applyEnvOverrides(cfg *Config) error {
	for _, section := range []any{&cfg.API, &cfg.Server, &cfg.Session, &cfg.Queries, &cfg.Log} {
		if err := env.Parse(section); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, errors.New("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, errors.New("server.write_timeout must be positive"))
	}

	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	} else if u, err := url.Parse(c.API.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("api.base_url must be an absolute http(s) URL, got %q", c.API.BaseURL))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, errors.New("api.timeout must be positive"))
	}

	switch c.Session.Store {
	case "file":
		if c.Session.TokenFile == "" {
			errs = append(errs, errors.New("session.token_file is required for the file store"))
		}
	case "redis":
		if c.Session.RedisAddr == "" {
			errs = append(errs, errors.New("session.redis_addr is required for the redis store"))
		}
	default:
		errs = append(errs, fmt.Errorf("session.store must be \"file\" or \"redis\", got %q", c.Session.Store))
	}
	if c.Session.TokenKey != "" {
		key, err := hex.DecodeString(c.Session.TokenKey)
		if err != nil || len(key) != 32 {
			errs = append(errs, errors.New("session.token_key must be 64 hex characters"))
		}
	}

	if len(c.Auth.LoginFields) == 0 {
		errs = append(errs, errors.New("auth.login_fields must not be empty"))
	}
	for i, f := range c.Auth.LoginFields {
		if f.Name == "" {
			errs = append(errs, fmt.Errorf("auth.login_fields[%d].name is required", i))
		}
	}

	if c.Queries.StaleTime <= 0 || c.Queries.AggregateStaleTime <= 0 {
		errs = append(errs, errors.New("queries stale times must be positive"))
	}
	if c.Queries.Retry < 0 {
		errs = append(errs, errors.New("queries.retry must not be negative"))
	}

	if c.LoginLimit.Attempts < 1 {
		errs = append(errs, errors.New("login_limit.attempts must be at least 1"))
	}
	if c.LoginLimit.Window <= 0 {
		errs = append(errs, errors.New("login_limit.window must be positive"))
	}

	return errors.Join(errs...)
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
