// Package config loads runtime configuration from environment variables.
//
// Every external credential is optional. A missing value disables the feature
// that depends on it instead of failing startup.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DatabaseURL    string        `env:"DATABASE_URL"`
	SupabaseDBURI  string        `env:"SUPABASE_DB_URI"`
	CreditsEnabled bool          `env:"CREDITS_ENABLED" envDefault:"true"`
	StoreTimeout   time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`

	OpenAIAPIKey  string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string        `env:"OPENAI_BASE_URL"`
	DefaultModel  string        `env:"DEFAULT_MODEL" envDefault:"gpt-4o-mini"`
	ModelTimeout  time.Duration `env:"MODEL_TIMEOUT" envDefault:"60s"`

	SandboxAPIKey  string        `env:"E2B_API_KEY"`
	SandboxURL     string        `env:"SANDBOX_URL" envDefault:"https://api.e2b.dev/v1/code-interpreter"`
	SandboxTimeout time.Duration `env:"SANDBOX_TIMEOUT" envDefault:"30s"`

	JWTSecret   string   `env:"JWT_SECRET"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	RedisAddr      string        `env:"REDIS_ADDR"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	RedisDB        int           `env:"REDIS_DB" envDefault:"0"`
	ChatRateLimit  int           `env:"CHAT_RATE_LIMIT" envDefault:"30"`
	ChatRateWindow time.Duration `env:"CHAT_RATE_WINDOW" envDefault:"1m"`
	JoinRateLimit  int           `env:"JOIN_RATE_LIMIT" envDefault:"10"`
}

// Load parses the process environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = cfg.SupabaseDBURI
	}
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	return cfg, nil
}

// StoreConfigured reports whether a database connection string is set.
func (c Config) StoreConfigured() bool { return c.DatabaseURL != "" }

// CreditsEnforced reports whether credit deductions hit the store.
// Without a store, credits are treated as unlimited.
func (c Config) CreditsEnforced() bool { return c.StoreConfigured() && c.CreditsEnabled }

// ModelConfigured reports whether the LLM provider key is set.
func (c Config) ModelConfigured() bool { return strings.TrimSpace(c.OpenAIAPIKey) != "" }

// SandboxConfigured reports whether remote code execution is available.
func (c Config) SandboxConfigured() bool {
	return strings.TrimSpace(c.SandboxAPIKey) != "" && strings.TrimSpace(c.SandboxURL) != ""
}

// JWTSecretConfigured reports whether tokens are signed with an operator
// supplied secret rather than the built-in development one.
func (c Config) JWTSecretConfigured() bool { return strings.TrimSpace(c.JWTSecret) != "" }

// RedisConfigured reports whether the distributed rate limiter can be used.
func (c Config) RedisConfigured() bool { return c.RedisAddr != "" }
