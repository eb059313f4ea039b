package entity

import (
	"github.com/shopspring/decimal"
)

// ItemStatus is the confirmation status of a recognized line item.
type ItemStatus string

const (
	ItemStatusPending   ItemStatus = "pending"
	ItemStatusConfirmed ItemStatus = "confirmed"
)

// Item is one recognized receipt line. Total is the authoritative monetary
// fact; it is not necessarily Quantity×UnitPrice because receipts carry
// discounts.
type Item struct {
	ID           int64
	JobID        int64
	Name         string
	NameOriginal string
	Quantity     decimal.Decimal
	UnitPrice    decimal.Decimal
	Total        decimal.Decimal
	Currency     string

	SuggestedCategory  string
	PossibleCategories []string

	Status            ItemStatus
	ConfirmedCategory *string

	// WaitingForCategoryInput marks the item whose category the next
	// free-text message from the group will name. At most one item per
	// group carries it; the confirmation flow enforces that.
	WaitingForCategoryInput bool
}

// Confirmed reports whether the item has already been confirmed.
func (i *Item) Confirmed() bool {
	return i.Status == ItemStatusConfirmed
}

// CategoryOptions returns the suggested category followed by the
// alternatives, deduplicated, in presentation order.
func (i *Item) CategoryOptions() []string {
	opts := make([]string, 0, len(i.PossibleCategories)+1)
	seen := map[string]struct{}{}
	for _, c := range append([]string{i.SuggestedCategory}, i.PossibleCategories...) {
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		opts = append(opts, c)
	}
	return opts
}
