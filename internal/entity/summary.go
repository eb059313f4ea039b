package entity

import (
	"github.com/shopspring/decimal"
)

// Summary is the bulk-confirmation snapshot of a job: all pending items
// grouped by category, with the overall total the drift gate protects.
type Summary struct {
	Categories  []SummaryCategory `json:"categories"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
	Currency    string            `json:"currency"`
}

type SummaryCategory struct {
	Name  string        `json:"name"`
	Items []SummaryItem `json:"items"`
}

// SummaryItem carries the originating item id so a corrected summary can
// be mapped back to stored items even when two items share a name.
type SummaryItem struct {
	ItemID int64           `json:"item_id,omitempty"`
	Name   string          `json:"name"`
	Total  decimal.Decimal `json:"total"`
}

// Recompute sums every item total in the summary. Used to verify the
// TotalAmount field against the items actually present.
func (s *Summary) Recompute() decimal.Decimal {
	sum := decimal.Zero
	for _, cat := range s.Categories {
		for _, it := range cat.Items {
			sum = sum.Add(it.Total)
		}
	}
	return sum
}

// CategoryNames returns category names in summary order.
func (s *Summary) CategoryNames() []string {
	names := make([]string, len(s.Categories))
	for i, c := range s.Categories {
		names[i] = c.Name
	}
	return names
}
