package entity

import (
	"reflect"
	"testing"
)

func TestCategoryOptionsDedupes(t *testing.T) {
	it := &Item{
		SuggestedCategory:  "groceries",
		PossibleCategories: []string{"household", "groceries", "", "snacks"},
	}
	got := it.CategoryOptions()
	want := []string{"groceries", "household", "snacks"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestCategoryOptionsWithoutSuggestion(t *testing.T) {
	it := &Item{PossibleCategories: []string{"household"}}
	got := it.CategoryOptions()
	if len(got) != 1 || got[0] != "household" {
		t.Fatalf("expected [household], got %v", got)
	}
}
