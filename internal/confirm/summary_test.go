package confirm

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/alex-mextner/expensesyncbot/internal/entity"
)

func item(name, category, total string) *entity.Item {
	return &entity.Item{
		Name:              name,
		SuggestedCategory: category,
		Total:             decimal.RequireFromString(total),
		Currency:          "EUR",
		Status:            entity.ItemStatusPending,
	}
}

func TestBuildSummaryGroupsInFirstSeenOrder(t *testing.T) {
	s := BuildSummary([]*entity.Item{
		item("milk", "groceries", "3.50"),
		item("soap", "household", "2.00"),
		item("bread", "groceries", "1.50"),
	})

	if got := len(s.Categories); got != 2 {
		t.Fatalf("expected 2 categories, got %d", got)
	}
	if s.Categories[0].Name != "groceries" || s.Categories[1].Name != "household" {
		t.Fatalf("unexpected category order: %v", s.CategoryNames())
	}
	if got := len(s.Categories[0].Items); got != 2 {
		t.Fatalf("expected 2 grocery items, got %d", got)
	}
	if !s.TotalAmount.Equal(decimal.RequireFromString("7.00")) {
		t.Fatalf("expected total 7.00, got %s", s.TotalAmount)
	}
	if s.Currency != "EUR" {
		t.Fatalf("expected currency EUR, got %s", s.Currency)
	}
	if !s.Recompute().Equal(s.TotalAmount) {
		t.Fatalf("recompute %s disagrees with total %s", s.Recompute(), s.TotalAmount)
	}
}

func TestBuildSummaryCarriesItemIDs(t *testing.T) {
	first := item("milk", "groceries", "3.50")
	first.ID = 11
	second := item("milk", "household", "2.00")
	second.ID = 12

	s := BuildSummary([]*entity.Item{first, second})
	if got := s.Categories[0].Items[0].ItemID; got != 11 {
		t.Fatalf("expected item id 11, got %d", got)
	}
	if got := s.Categories[1].Items[0].ItemID; got != 12 {
		t.Fatalf("expected item id 12, got %d", got)
	}
}

func TestBuildSummarySkipsConfirmedAndDefaultsCategory(t *testing.T) {
	confirmed := item("milk", "groceries", "3.50")
	confirmed.Status = entity.ItemStatusConfirmed

	s := BuildSummary([]*entity.Item{
		confirmed,
		item("mystery", "", "4.00"),
	})

	if got := len(s.Categories); got != 1 {
		t.Fatalf("expected 1 category, got %d", got)
	}
	if s.Categories[0].Name != entity.DefaultCategory {
		t.Fatalf("expected default bucket, got %s", s.Categories[0].Name)
	}
	if !s.TotalAmount.Equal(decimal.RequireFromString("4.00")) {
		t.Fatalf("expected total 4.00, got %s", s.TotalAmount)
	}
}
