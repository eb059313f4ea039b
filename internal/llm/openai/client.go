package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alex-mextner/expensesyncbot/internal/entity"
	"github.com/alex-mextner/expensesyncbot/internal/llm"
)

// ExtractItems implements llm.ItemExtractor. Each candidate model gets up
// to MaxAttempts tries with exponential backoff before the next model is
// consulted.
func (c *Client) ExtractItems(ctx context.Context, req llm.ExtractRequest) (*llm.ExtractResult, error) {
	rid := uuid.New().String()
	start := time.Now()
	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"text_len", len(req.Text),
		"known_categories", len(req.KnownCategories),
		"language", req.DisplayLanguage,
	)

	schema := llm.BuildItemsJSONSchema()
	sys := buildExtractSystemPrompt(req)
	user := buildExtractUserPrompt(req.Text)

	var result *llm.ExtractResult
	var lastErr error
	for _, model := range c.models() {
		err := llm.WithRetry(ctx, c.logger, "extract."+model, c.cfg.MaxAttempts, c.cfg.RetryBackoff, func() error {
			raw, err := c.complete(ctx, model, sys, user, schema)
			if err != nil {
				return err
			}
			var out llm.ExtractResult
			if err := json.Unmarshal(raw, &out); err != nil {
				return fmt.Errorf("unmarshal extraction: %w", err)
			}
			if err := validateItems(&out); err != nil {
				return err
			}
			result = &out
			return nil
		})
		if err == nil {
			c.logger.Info("llm.extract.ok",
				"req_id", rid,
				"model", model,
				"items", len(result.Items),
				"currency", result.Currency,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return result, nil
		}
		lastErr = err
		c.logger.Warn("llm.extract.model_exhausted", "req_id", rid, "model", model, "error", err)
	}
	c.logger.Error("llm.extract.failed", "req_id", rid,
		"elapsed_ms", time.Since(start).Milliseconds(), "error", lastErr)
	return nil, fmt.Errorf("extraction exhausted all models: %w", lastErr)
}

// CorrectSummary implements llm.SummaryCorrector. The drift gate lives in
// the correction engine; this only produces a candidate summary of the
// expected shape.
func (c *Client) CorrectSummary(ctx context.Context, req llm.CorrectRequest) (*entity.Summary, error) {
	rid := uuid.New().String()
	start := time.Now()
	c.logger.Info("llm.correct.start",
		"req_id", rid,
		"instruction_len", len(req.Instruction),
		"history", len(req.History),
	)

	schema := llm.BuildSummaryJSONSchema(req.AllowedCategories)
	sys := buildCorrectSystemPrompt(req.AllowedCategories)
	user := buildCorrectUserPrompt(req)

	var result *entity.Summary
	var lastErr error
	for _, model := range c.models() {
		err := llm.WithRetry(ctx, c.logger, "correct."+model, c.cfg.MaxAttempts, c.cfg.RetryBackoff, func() error {
			raw, err := c.complete(ctx, model, sys, user, schema)
			if err != nil {
				return err
			}
			var out entity.Summary
			if err := json.Unmarshal(raw, &out); err != nil {
				return fmt.Errorf("unmarshal summary: %w", err)
			}
			result = &out
			return nil
		})
		if err == nil {
			c.logger.Info("llm.correct.ok", "req_id", rid, "model", model,
				"elapsed_ms", time.Since(start).Milliseconds())
			return result, nil
		}
		lastErr = err
		c.logger.Warn("llm.correct.model_exhausted", "req_id", rid, "model", model, "error", err)
	}
	c.logger.Error("llm.correct.failed", "req_id", rid, "error", lastErr)
	return nil, fmt.Errorf("correction exhausted all models: %w", lastErr)
}

// complete runs one chat/completions round trip and returns the schema-
// validated message content.
func (c *Client) complete(ctx context.Context, model, sys, user string, schema map[string]any) ([]byte, error) {
	body := map[string]any{
		"model":           model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": sys},
			{"role": "user", "content": user + "\n\nReturn ONLY JSON that matches the provided schema."},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		return nil, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}
	content := []byte(cleanMarkdownJSON(cc.Choices[0].Message.Content))
	if err := llm.ValidateJSONAgainstSchema(schema, content); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}
	return content, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm http error: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("llm response body close error", "error", cerr)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("llm status %d: %s", resp.StatusCode, string(raw))
	}
	return raw, nil
}

// validateItems enforces the acceptance rule beyond schema shape: every
// item needs a non-empty name, numeric amounts and a category.
func validateItems(res *llm.ExtractResult) error {
	for i, it := range res.Items {
		if strings.TrimSpace(it.Name) == "" {
			return fmt.Errorf("item %d: empty name", i)
		}
		if strings.TrimSpace(it.Category) == "" {
			return fmt.Errorf("item %d: empty category", i)
		}
		for _, v := range []string{it.Quantity, it.UnitPrice, it.Total} {
			if strings.TrimSpace(v) == "" {
				return fmt.Errorf("item %d: missing amount", i)
			}
		}
	}
	return nil
}

func buildExtractSystemPrompt(req llm.ExtractRequest) string {
	parts := []string{
		"You are a receipt line-item parser. Return ONLY JSON that matches the JSON Schema provided.",
		"Translate every item name into " + req.DisplayLanguage + " and keep the original name in 'name_original'.",
		"Extract quantity, unit price and the line total per item. 'total' is the charged amount including any line discount.",
		"Currency must be a 3-letter ISO 4217 code.",
		"Attach 1-3 'alternatives': other plausible categories for the item.",
		"All amounts are decimal strings, never numbers.",
		"Never output null. If a field is not present, omit it.",
	}
	if len(req.KnownCategories) > 0 {
		parts = append(parts,
			"Assign each item to one of the existing categories: "+strings.Join(req.KnownCategories, ", ")+".",
			"Never invent a new category; pick the closest existing one.")
	} else {
		parts = append(parts, "Assign each item a short, sensible category label.")
	}
	return strings.Join(parts, " ")
}

func buildExtractUserPrompt(text string) string {
	var b strings.Builder
	b.WriteString("Receipt text (first ~6k chars):\n")
	if len(text) > 6000 {
		b.WriteString(text[:6000])
	} else {
		b.WriteString(text)
	}
	return b.String()
}

func buildCorrectSystemPrompt(allowed []string) string {
	parts := []string{
		"You edit a receipt summary grouped by spending category. Return ONLY JSON matching the provided schema.",
		"You may ONLY move items between categories or merge categories.",
		"NEVER alter an item's 'total' or 'item_id' and never add or remove items.",
		"'total_amount' must remain the sum of all item totals.",
	}
	if len(allowed) > 0 {
		parts = append(parts, "Category names must come from: "+strings.Join(allowed, ", ")+".")
	}
	return strings.Join(parts, " ")
}

func buildCorrectUserPrompt(req llm.CorrectRequest) string {
	var b strings.Builder
	b.WriteString("Current summary:\n")
	b.WriteString(mustJSON(req.Summary))
	if len(req.History) > 0 {
		b.WriteString("\n\nEarlier corrections (context only, do not replay):\n")
		for _, h := range req.History {
			b.WriteString("- instruction: " + h.UserText + " => " + h.Result + "\n")
		}
	}
	b.WriteString("\nInstruction:\n")
	b.WriteString(req.Instruction)
	return b.String()
}

// cleanMarkdownJSON strips a ```json fence if the model wrapped its output
// despite instructions.
func cleanMarkdownJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
