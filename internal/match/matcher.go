// Package match holds the category-name matching policy. The closest-match
// substitution is a heuristic, so it is kept behind an interface and swapped
// by constructor argument rather than being load-bearing logic.
package match

import (
	"strings"
)

// Matcher resolves a proposed category name against a group's known set.
type Matcher interface {
	// Exact reports a case-insensitive exact match.
	Exact(name string, known []string) (string, bool)
	// Closest returns the best inexact match, if any is close enough.
	Closest(name string, known []string) (string, bool)
}

// Heuristic is the default Matcher: exact fold, then containment, then a
// bounded edit distance.
type Heuristic struct {
	// MaxDistance is the largest edit distance still considered close.
	// Zero means a third of the proposed name's length.
	MaxDistance int
}

func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

func (h *Heuristic) Exact(name string, known []string) (string, bool) {
	name = norm(name)
	for _, k := range known {
		if norm(k) == name {
			return k, true
		}
	}
	return "", false
}

func (h *Heuristic) Closest(name string, known []string) (string, bool) {
	name = norm(name)
	if name == "" {
		return "", false
	}
	for _, k := range known {
		nk := norm(k)
		if strings.Contains(nk, name) || strings.Contains(name, nk) {
			return k, true
		}
	}
	limit := h.MaxDistance
	if limit <= 0 {
		limit = len([]rune(name)) / 3
	}
	best, bestDist := "", limit+1
	for _, k := range known {
		if d := editDistance(name, norm(k)); d < bestDist {
			best, bestDist = k, d
		}
	}
	if bestDist <= limit {
		return best, true
	}
	return "", false
}

func norm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min3(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
