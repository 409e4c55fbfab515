package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DB_DSN", "LOG_LEVEL", "MIGRATE_ON_START", "STORE_TIMEOUT_SECONDS", "RATE_LIMIT_PER_MIN", "REALTIME_BUFFER"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected info log level, got %q", cfg.LogLevel)
	}
	if !cfg.MigrateOnStart {
		t.Fatalf("expected migrations on start by default")
	}
	if cfg.StoreTimeout != 5*time.Second {
		t.Fatalf("expected 5s store timeout, got %s", cfg.StoreTimeout)
	}
	if cfg.RealtimeBuffer != 16 {
		t.Fatalf("expected realtime buffer 16, got %d", cfg.RealtimeBuffer)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_TIMEOUT_SECONDS", "0")
	t.Setenv("MIGRATE_ON_START", "false")
	t.Setenv("RATE_LIMIT_PER_MIN", "not-a-number")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected port 9090, got %q", cfg.Port)
	}
	if cfg.StoreTimeout != 0 {
		t.Fatalf("expected disabled store timeout, got %s", cfg.StoreTimeout)
	}
	if cfg.MigrateOnStart {
		t.Fatalf("expected migrations disabled")
	}
	if cfg.RateLimitPerMinute != 120 {
		t.Fatalf("expected fallback rate limit, got %d", cfg.RateLimitPerMinute)
	}
}
