package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SUPABASE_DB_URI", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("E2B_API_KEY", "")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("port: got %q, want 8080", cfg.Port)
	}
	if cfg.StoreTimeout != 5*time.Second {
		t.Errorf("store timeout: got %v, want 5s", cfg.StoreTimeout)
	}
	if cfg.StoreConfigured() || cfg.CreditsEnforced() {
		t.Error("store should be unconfigured without DATABASE_URL")
	}
	if cfg.ModelConfigured() || cfg.SandboxConfigured() {
		t.Error("model and sandbox should be disabled without keys")
	}
	if cfg.JWTSecretConfigured() {
		t.Error("JWT secret should be reported as unset")
	}
}

func TestLoadFeatureKeys(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("E2B_API_KEY", "e2b-test")
	t.Setenv("JWT_SECRET", "prod-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.ModelConfigured() || !cfg.SandboxConfigured() || !cfg.JWTSecretConfigured() {
		t.Errorf("keys set but features reported off: %+v", cfg)
	}

	t.Setenv("SANDBOX_URL", " ")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SandboxConfigured() {
		t.Error("sandbox needs an endpoint as well as a key")
	}
}

func TestLoadSupabaseFallback(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SUPABASE_DB_URI", " postgres://u:p@db:5432/app ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://u:p@db:5432/app" {
		t.Errorf("database url: got %q", cfg.DatabaseURL)
	}
	if !cfg.CreditsEnforced() {
		t.Error("credits should be enforced once a store is configured")
	}
}

func TestLoadCreditsDisabled(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/app")
	t.Setenv("CREDITS_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CreditsEnforced() {
		t.Error("CREDITS_ENABLED=false should disable enforcement")
	}
}

func TestLoadCORSOrigins(t *testing.T) {
	t.Setenv("CORS_ORIGINS", "http://a.test,http://b.test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b.test" {
		t.Errorf("cors origins: got %v", cfg.CORSOrigins)
	}
}

func TestLoadError(t *testing.T) {
	t.Setenv("STORE_TIMEOUT", "forever")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}
