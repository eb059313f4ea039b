package openai

import (
	"log/slog"
	"net/http"
	"os"
	"time"
)

// Config for the OpenAI-compatible chat/completions client.
type Config struct {
	APIKey        string        // if empty, falls back to env OPENAI_API_KEY
	BaseURL       string        // default https://api.openai.com/v1
	Model         string        // primary extraction/correction model
	FallbackModel string        // tried after the primary's attempts are exhausted
	Temperature   float32       // 0..2
	Timeout       time.Duration // http client timeout
	MaxAttempts   int           // attempts per candidate model
	RetryBackoff  time.Duration // base backoff between attempts
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// models returns the candidate models in fallback order.
func (c *Client) models() []string {
	if c.cfg.FallbackModel == "" || c.cfg.FallbackModel == c.cfg.Model {
		return []string{c.cfg.Model}
	}
	return []string{c.cfg.Model, c.cfg.FallbackModel}
}
