package retriever

import (
	"math"
	"sort"

	"exampaper-rag/internal/apperr"
	"exampaper-rag/internal/models"
)

// Allocation is the share of a budget assigned to one source
type Allocation struct {
	DocumentID string  `json:"document_id"`
	Weight     float64 `json:"weight"`
	Count      int     `json:"count"`
}

// Allocate splits budget across weightings in proportion to their weights.
// Each source gets floor(w*budget); the remainder goes one unit at a time to
// sources in descending weight order, request order breaking ties. The
// result keeps request order and always sums to budget.
func Allocate(weightings []models.SourceWeighting, budget int) ([]Allocation, error) {
	if budget <= 0 {
		return nil, apperr.Errorf(apperr.InvalidRequest, "budget must be positive, got %d", budget)
	}
	if len(weightings) == 0 {
		return nil, apperr.Errorf(apperr.InvalidRequest, "at least one source is required")
	}

	total := 0
	for _, w := range weightings {
		if w.Weight < 0 || w.Weight > 100 {
			return nil, apperr.Errorf(apperr.InvalidRequest, "weight for %s must be within [0,100], got %d", w.DocumentID, w.Weight)
		}
		total += w.Weight
	}
	if total == 0 {
		return nil, apperr.Errorf(apperr.InvalidRequest, "weights must not all be zero")
	}

	out := make([]Allocation, len(weightings))
	assigned := 0
	for i, w := range weightings {
		norm := float64(w.Weight) / float64(total)
		// Integer arithmetic keeps 40/35/25 of 40 at exactly 16/14/10.
		n := w.Weight * budget / total
		out[i] = Allocation{DocumentID: w.DocumentID, Weight: norm, Count: n}
		assigned += n
	}

	order := make([]int, len(weightings))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return weightings[order[a]].Weight > weightings[order[b]].Weight
	})
	for r := budget - assigned; r > 0; {
		for _, i := range order {
			if r == 0 {
				break
			}
			out[i].Count++
			r--
		}
	}
	return out, nil
}

// MinimumContent is the smallest acceptable retrieved total for budget
func MinimumContent(budget int, ratio float64) int {
	return int(math.Ceil(ratio * float64(budget)))
}
