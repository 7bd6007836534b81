package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("PORT", "")
	t.Setenv("STRIPE_SECRET_KEY", "")

	cfg, err := LoadConfig(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "5000" {
		t.Fatalf("expected default port 5000, got %q", cfg.ServerPort)
	}
	if cfg.PaymentCurrency != "INR" {
		t.Fatalf("expected INR, got %q", cfg.PaymentCurrency)
	}
	if cfg.PaymentMetadataTag != "tree_adoption" {
		t.Fatalf("unexpected metadata tag %q", cfg.PaymentMetadataTag)
	}
	if cfg.SessionTTL() != 12*time.Hour {
		t.Fatalf("unexpected session ttl %s", cfg.SessionTTL())
	}
	if got := cfg.AllowedOrigins(); len(got) != 1 || got[0] != "*" {
		t.Fatalf("expected wildcard origins, got %v", got)
	}
}

func TestLoadConfig_EnvOverridesAndAliases(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("PORT", "9090")
	t.Setenv("PAYMENT_CURRENCY", " usd ")
	t.Setenv("AI_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "or-key")
	t.Setenv("REDIS_KEY_PREFIX", "trees:")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("RECONCILE_PENDING_AFTER_MINUTES", "30")

	cfg, err := LoadConfig(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Fatalf("expected PORT to win, got %q", cfg.ServerPort)
	}
	if cfg.PaymentCurrency != "USD" {
		t.Fatalf("expected normalised currency, got %q", cfg.PaymentCurrency)
	}
	if cfg.AIAPIKey != "or-key" {
		t.Fatalf("expected OPENROUTER_API_KEY alias, got %q", cfg.AIAPIKey)
	}
	if cfg.RedisKeyPrefix != "trees" {
		t.Fatalf("expected trimmed prefix, got %q", cfg.RedisKeyPrefix)
	}
	if got := cfg.AllowedOrigins(); len(got) != 2 || got[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", got)
	}
	if cfg.ReconcilePendingAfter() != 30*time.Minute {
		t.Fatalf("unexpected pending window %s", cfg.ReconcilePendingAfter())
	}
}

func TestLoadConfig_CoercesInvalidKnobs(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("PAYMENT_INTENT_RATE_LIMIT_PER_MINUTE", "-1")
	t.Setenv("SESSION_TTL_MINUTES", "0")

	cfg, err := LoadConfig(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.PaymentIntentRateLimitPerMinute != 20 {
		t.Fatalf("expected default rate limit, got %d", cfg.PaymentIntentRateLimitPerMinute)
	}
	if cfg.SessionTTLMinutes != 720 {
		t.Fatalf("expected default session ttl, got %d", cfg.SessionTTLMinutes)
	}
}
