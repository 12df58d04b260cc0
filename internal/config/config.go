/*
Package config loads the service configuration.
Values come from (lowest to highest precedence) built-in defaults, an optional
config.yaml, a .env file and HEALTHAI_* environment variables.
*/
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the root configuration object handed to every component.
type Config struct {
	Environment string        `mapstructure:"environment"`
	Server      ServerConfig  `mapstructure:"server"`
	Gemini      GeminiConfig  `mapstructure:"gemini"`
	Store       StoreConfig   `mapstructure:"store"`
	Flows       FlowConfig    `mapstructure:"flows"`
	Session     SessionConfig `mapstructure:"session"`
	I18n        I18nConfig    `mapstructure:"i18n"`
	Logging     LoggingConfig `mapstructure:"logging"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	// AllowOrigins feeds the CORS middleware.
	AllowOrigins []string `mapstructure:"allow_origins"`

	// Per-client budget for routes that reach the model.
	AIRequestsPerMinute float64 `mapstructure:"ai_requests_per_minute"`
	AIBurst             int     `mapstructure:"ai_burst"`
}

// GeminiConfig configures the generative-language transport.
type GeminiConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`

	// StructuredModel serves follow-up questions, diagnosis and analysis;
	// TextModel serves the short calendar summaries.
	StructuredModel string `mapstructure:"structured_model"`
	TextModel       string `mapstructure:"text_model"`

	// Timeout is the caller-side deadline applied to every model call.
	Timeout time.Duration `mapstructure:"timeout"`

	// MaxAttempts of 1 disables transport retries.
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`

	// RateLimit is requests per second; Burst the bucket size.
	RateLimit float64 `mapstructure:"rate_limit"`
	Burst     int     `mapstructure:"burst"`

	Breaker BreakerConfig `mapstructure:"breaker"`
}

type BreakerConfig struct {
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MinRequests  uint32        `mapstructure:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
}

// StoreConfig selects where health logs live.
type StoreConfig struct {
	Driver      string `mapstructure:"driver"` // memory, sqlite or postgres
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresURL string `mapstructure:"postgres_url"`
}

type FlowConfig struct {
	MaxItems int           `mapstructure:"max_items"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type SessionConfig struct {
	Secret string `mapstructure:"secret"`
	MaxAge int    `mapstructure:"max_age"`
	Secure bool   `mapstructure:"secure"`
}

type I18nConfig struct {
	DefaultLanguage string `mapstructure:"default_language"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

const envPrefix = "HEALTHAI"

// Load reads the configuration. A missing config file or .env is not an error.
func Load() (*Config, error) {
	// .env only fills variables that are not already set in the environment.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The bare GEMINI_API_KEY name is what most deployments already export.
	if err := v.BindEnv("gemini.api_key", envPrefix+"_GEMINI_API_KEY", "GEMINI_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind gemini api key: %w", err)
	}
	if err := v.BindEnv("server.port", envPrefix+"_SERVER_PORT", "PORT"); err != nil {
		return nil, fmt.Errorf("failed to bind server port: %w", err)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Production is served over TLS; the settings cookie must not leak.
	if cfg.IsProduction() {
		cfg.Session.Secure = true
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("server.idle_timeout", "1m")
	// Local dev servers only; deployments list their own origins.
	v.SetDefault("server.allow_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("server.ai_requests_per_minute", 20.0)
	v.SetDefault("server.ai_burst", 5)

	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("gemini.structured_model", "gemini-2.5-pro")
	v.SetDefault("gemini.text_model", "gemini-2.5-flash")
	v.SetDefault("gemini.timeout", "60s")
	v.SetDefault("gemini.max_attempts", 1)
	v.SetDefault("gemini.initial_backoff", "1s")
	v.SetDefault("gemini.rate_limit", 2.0)
	v.SetDefault("gemini.burst", 4)
	v.SetDefault("gemini.breaker.max_requests", 1)
	v.SetDefault("gemini.breaker.interval", "60s")
	v.SetDefault("gemini.breaker.timeout", "30s")
	v.SetDefault("gemini.breaker.min_requests", 5)
	v.SetDefault("gemini.breaker.failure_ratio", 0.6)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "./data/healthlogs.db")
	v.SetDefault("store.postgres_url", "")

	v.SetDefault("flows.max_items", 1000)
	v.SetDefault("flows.ttl", "2h")

	v.SetDefault("session.secret", "")
	v.SetDefault("session.max_age", 86400*30)
	v.SetDefault("session.secure", false)

	v.SetDefault("i18n.default_language", "en")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.PostgresURL == "" {
			return fmt.Errorf("store.postgres_url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store driver: %q", c.Store.Driver)
	}

	if c.Gemini.MaxAttempts < 1 {
		return fmt.Errorf("gemini.max_attempts must be at least 1")
	}
	if c.Gemini.Timeout <= 0 {
		return fmt.Errorf("gemini.timeout must be positive")
	}
	if c.Flows.MaxItems <= 0 {
		return fmt.Errorf("flows.max_items must be positive")
	}

	if c.IsProduction() {
		if c.Session.Secret == "" {
			return fmt.Errorf("session.secret is required in production")
		}
		for _, origin := range c.Server.AllowOrigins {
			if strings.Contains(origin, "*") {
				return fmt.Errorf("wildcard origin %q is not allowed in production", origin)
			}
		}
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	return nil
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
