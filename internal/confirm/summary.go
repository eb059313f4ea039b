package confirm

import (
	"github.com/alex-mextner/expensesyncbot/internal/entity"
)

// BuildSummary groups pending items by their suggested category, in
// first-seen order. TotalAmount is the sum of every item total at build
// time; the correction engine defends that number afterwards.
func BuildSummary(items []*entity.Item) *entity.Summary {
	s := &entity.Summary{}
	index := map[string]int{}
	for _, it := range items {
		if it.Confirmed() {
			continue
		}
		if s.Currency == "" {
			s.Currency = it.Currency
		}
		cat := it.SuggestedCategory
		if cat == "" {
			cat = entity.DefaultCategory
		}
		i, ok := index[cat]
		if !ok {
			i = len(s.Categories)
			index[cat] = i
			s.Categories = append(s.Categories, entity.SummaryCategory{Name: cat})
		}
		s.Categories[i].Items = append(s.Categories[i].Items, entity.SummaryItem{
			ItemID: it.ID,
			Name:   it.Name,
			Total:  it.Total,
		})
		s.TotalAmount = s.TotalAmount.Add(it.Total)
	}
	return s
}
