package llm

import (
	"context"

	"github.com/alex-mextner/expensesyncbot/internal/entity"
)

// ExtractedItem is the normalized line-item shape we want from the model.
// Money fields are decimal strings; conversion to entity.Item happens in
// the recognition layer.
type ExtractedItem struct {
	Name         string   `json:"name"`
	NameOriginal string   `json:"name_original,omitempty"`
	Quantity     string   `json:"quantity"`
	UnitPrice    string   `json:"unit_price"`
	Total        string   `json:"total"`
	Category     string   `json:"category"`
	Alternatives []string `json:"alternatives,omitempty"` // 1-3 entries
}

// ExtractResult is a full extraction response.
type ExtractResult struct {
	Currency string          `json:"currency"`
	Items    []ExtractedItem `json:"items"`
}

type ExtractRequest struct {
	Text            string
	KnownCategories []string // when non-empty, the model must pick from these
	DisplayLanguage string   // item names are translated into this language
}

// ItemExtractor turns resolved receipt text into candidate line items.
type ItemExtractor interface {
	ExtractItems(ctx context.Context, req ExtractRequest) (*ExtractResult, error)
}

type CorrectRequest struct {
	Summary           *entity.Summary
	Instruction       string
	AllowedCategories []string
	// History is supplied to the model purely as context; it is never
	// replayed mechanically.
	History []entity.CorrectionEntry
}

// SummaryCorrector applies a free-text instruction to a summary, moving or
// merging items between categories without touching their totals.
type SummaryCorrector interface {
	CorrectSummary(ctx context.Context, req CorrectRequest) (*entity.Summary, error)
}
