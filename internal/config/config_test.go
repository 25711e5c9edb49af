package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	for _, key := range []string{"PORT", "SERVER_PORT", "STORAGE_DRIVER", "PENDING_TTL_HOURS", "CURRENCY_LABEL", "EVENTS_EXCHANGE"} {
		unsetEnvWithCleanup(t, key)
	}

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.ServerPort)
	}
	if cfg.StorageDriver != StorageDriverPostgres {
		t.Fatalf("expected postgres storage driver, got %q", cfg.StorageDriver)
	}
	if !cfg.RunMigrations {
		t.Fatal("expected migrations to run by default")
	}
	if cfg.PendingTTL() != 0 {
		t.Fatalf("expected pending items to never expire by default, got %s", cfg.PendingTTL())
	}
	if cfg.OutboxPollInterval() != 1200*time.Millisecond {
		t.Fatalf("expected 1200ms outbox poll interval, got %s", cfg.OutboxPollInterval())
	}
	if cfg.CurrencyLabel != "SSP" || cfg.EventsExchange != "moneypay.events" {
		t.Fatalf("unexpected defaults: currency=%q exchange=%q", cfg.CurrencyLabel, cfg.EventsExchange)
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("PORT", "7000")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "7000" {
		t.Fatalf("expected PORT to win, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_CoercesInvalidValues(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("MONEY_MOVEMENT_RATE_LIMIT_PER_MINUTE", "-4")
	t.Setenv("PENDING_TTL_HOURS", "-1")
	t.Setenv("COMMISSION_CACHE_TTL_SECONDS", "-10")
	t.Setenv("REDIS_KEY_PREFIX", ":custom:")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.StorageDriver != StorageDriverPostgres {
		t.Fatalf("expected unknown driver to fall back to postgres, got %q", cfg.StorageDriver)
	}
	if cfg.MoneyMovementRateLimitPerMinute != 30 {
		t.Fatalf("expected rate limit default 30, got %d", cfg.MoneyMovementRateLimitPerMinute)
	}
	if cfg.PendingTTLHours != 0 || cfg.CommissionCacheTTLSeconds != 0 {
		t.Fatalf("expected negative durations to be coerced to zero, got ttl=%d cache=%d", cfg.PendingTTLHours, cfg.CommissionCacheTTLSeconds)
	}
	if cfg.RedisKeyPrefix != "custom" {
		t.Fatalf("expected trimmed redis prefix, got %q", cfg.RedisKeyPrefix)
	}
}

func TestLoadConfig_ReadsDotEnvFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "STORAGE_DRIVER")
	unsetEnvWithCleanup(t, "CURRENCY_LABEL")

	dir := t.TempDir()
	content := "STORAGE_DRIVER=memory\nCURRENCY_LABEL=USD\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.StorageDriver != StorageDriverMemory {
		t.Fatalf("expected memory driver from .env, got %q", cfg.StorageDriver)
	}
	if cfg.CurrencyLabel != "USD" {
		t.Fatalf("expected currency label from .env, got %q", cfg.CurrencyLabel)
	}
}

func TestAllowedOrigins(t *testing.T) {
	cfg := Config{CORSAllowedOrigins: " https://app.example.com, ,https://admin.example.com "}
	got := cfg.AllowedOrigins()
	if len(got) != 2 || got[0] != "https://app.example.com" || got[1] != "https://admin.example.com" {
		t.Fatalf("unexpected origins: %v", got)
	}
	if empty := (Config{}).AllowedOrigins(); len(empty) != 1 || empty[0] != "*" {
		t.Fatalf("expected wildcard fallback, got %v", empty)
	}
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
