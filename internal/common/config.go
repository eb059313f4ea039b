package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Telegram  TelegramConfig
	LLM       LLMConfig
	Vision    VisionConfig
	Recognize RecognizeConfig
	Dispatch  DispatchConfig
	Confirm   ConfirmConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN         string
	DialTimeout time.Duration
}

// TelegramConfig holds chat boundary configuration
type TelegramConfig struct {
	Token           string
	DisplayLanguage string
}

// LLMConfig holds extraction/correction model configuration
type LLMConfig struct {
	BaseURL       string
	Model         string
	FallbackModel string
	APIKey        string
	Temperature   float32
	Timeout       time.Duration
	MaxAttempts   int
	RetryBackoff  time.Duration
}

// VisionConfig holds the vision OCR fallback configuration
type VisionConfig struct {
	APIKey string
	Model  string
}

// RecognizeConfig holds recognition chain configuration
type RecognizeConfig struct {
	RemoteQREndpoint string
	FetchTimeout     time.Duration
}

// DispatchConfig holds the background dispatcher configuration
type DispatchConfig struct {
	Interval time.Duration
}

// ConfirmConfig holds confirmation flow configuration
type ConfirmConfig struct {
	ItemwiseMax int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:         getEnv("DB_URL", "expensebot.db"),
			DialTimeout: getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		Telegram: TelegramConfig{
			Token:           getEnv("TELEGRAM_TOKEN", ""),
			DisplayLanguage: getEnv("DISPLAY_LANGUAGE", "English"),
		},
		LLM: LLMConfig{
			BaseURL:       getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:         getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			FallbackModel: getEnv("OPENAI_FALLBACK_MODEL", "gpt-4o"),
			APIKey:        getEnv("OPENAI_API_KEY", ""),
			Temperature:   getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:       getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
			MaxAttempts:   getEnvAsInt("OPENAI_MAX_ATTEMPTS", 3),
			RetryBackoff:  getEnvAsDuration("OPENAI_RETRY_BACKOFF", 2*time.Second),
		},
		Vision: VisionConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
			Model:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		},
		Recognize: RecognizeConfig{
			RemoteQREndpoint: getEnv("QR_REMOTE_ENDPOINT", ""),
			FetchTimeout:     getEnvAsDuration("FETCH_TIMEOUT", 60*time.Second),
		},
		Dispatch: DispatchConfig{
			Interval: getEnvAsDuration("DISPATCH_INTERVAL", 5*time.Second),
		},
		Confirm: ConfirmConfig{
			ItemwiseMax: getEnvAsInt("CONFIRM_ITEMWISE_MAX", 5),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return NewAppError("CONFIG_ERROR", "TELEGRAM_TOKEN is required", ErrInvalidInput)
	}
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrInvalidInput)
	}
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.LLM.MaxAttempts < 1 {
		return NewAppError("CONFIG_ERROR", "OPENAI_MAX_ATTEMPTS must be at least 1", ErrInvalidInput)
	}
	return nil
}
