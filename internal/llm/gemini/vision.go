package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

const recognizePrompt = `You are reading a photographed purchase receipt.
Transcribe ALL text visible in the image, line by line, top to bottom.
Keep item names, quantities and prices exactly as printed.
Return plain text only, no commentary, no markdown.`

// Vision runs text recognition on receipt photos via Gemini. It is the
// last stage of the recognition chain, used when QR decoding produced
// nothing or the decoded link could not be fetched.
type Vision struct {
	client *genai.Client
	model  *genai.GenerativeModel
	logger *slog.Logger
}

func NewVision(ctx context.Context, apiKey, modelName string, logger *slog.Logger) (*Vision, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}
	if logger == nil {
		logger = slog.Default()
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Vision{
		client: client,
		model:  client.GenerativeModel(modelName),
		logger: logger,
	}, nil
}

// RecognizeText returns the transcription of the photo, or an error when
// the model yields nothing usable.
func (v *Vision) RecognizeText(ctx context.Context, image []byte, format string) (string, error) {
	rid := uuid.New().String()
	start := time.Now()
	if format == "" {
		format = "jpeg"
	}
	v.logger.Info("vision.recognize.start", "req_id", rid, "bytes", len(image), "format", format)

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	resp, err := v.model.GenerateContent(ctx,
		genai.ImageData(format, image),
		genai.Text(recognizePrompt),
	)
	if err != nil {
		v.logger.Error("vision.recognize.failed", "req_id", rid, "error", err)
		return "", fmt.Errorf("generating content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from gemini")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("empty transcription")
	}
	v.logger.Info("vision.recognize.ok", "req_id", rid,
		"text_len", len(text), "elapsed_ms", time.Since(start).Milliseconds())
	return text, nil
}

// Close closes the underlying client.
func (v *Vision) Close() error {
	return v.client.Close()
}
