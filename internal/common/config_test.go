package common

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("OPENAI_API_KEY", "sk-test")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequired(t)
	cfg := LoadConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if cfg.Database.DSN != "expensebot.db" {
		t.Fatalf("expected sqlite default DSN, got %s", cfg.Database.DSN)
	}
	if cfg.Dispatch.Interval != 5*time.Second {
		t.Fatalf("expected 5s dispatch interval, got %s", cfg.Dispatch.Interval)
	}
	if cfg.Confirm.ItemwiseMax != 5 {
		t.Fatalf("expected itemwise max 5, got %d", cfg.Confirm.ItemwiseMax)
	}
	if cfg.Telegram.DisplayLanguage != "English" {
		t.Fatalf("expected English default, got %s", cfg.Telegram.DisplayLanguage)
	}
}

func TestLoadConfigReadsOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("DISPATCH_INTERVAL", "30s")
	t.Setenv("CONFIRM_ITEMWISE_MAX", "10")
	t.Setenv("OPENAI_TEMPERATURE", "0.7")

	cfg := LoadConfig()
	if cfg.Dispatch.Interval != 30*time.Second {
		t.Fatalf("expected 30s, got %s", cfg.Dispatch.Interval)
	}
	if cfg.Confirm.ItemwiseMax != 10 {
		t.Fatalf("expected 10, got %d", cfg.Confirm.ItemwiseMax)
	}
	if cfg.LLM.Temperature != 0.7 {
		t.Fatalf("expected 0.7, got %f", cfg.LLM.Temperature)
	}
}

func TestValidateRequiresCredentials(t *testing.T) {
	setRequired(t)
	t.Setenv("TELEGRAM_TOKEN", "")
	if err := LoadConfig().Validate(); err == nil {
		t.Fatal("expected error without telegram token")
	}

	setRequired(t)
	t.Setenv("OPENAI_API_KEY", "")
	if err := LoadConfig().Validate(); err == nil {
		t.Fatal("expected error without openai key")
	}

	setRequired(t)
	t.Setenv("OPENAI_MAX_ATTEMPTS", "0")
	if err := LoadConfig().Validate(); err == nil {
		t.Fatal("expected error with zero attempts")
	}
}
