// Package fusion merges ranked result lists with reciprocal rank
// fusion. Scoring is a pure function of the input rankings; items
// absent from a list contribute nothing from it, rather than being
// penalized with a sentinel rank.
package fusion

import (
	"fmt"
	"sort"
)

// Result is one fused entry
type Result struct {
	ID    string
	Score float64
}

// Fuse combines two ranked ID lists. Each list contributes
// 1/(k+rank) for the items it contains, with ranks 1-based. Ties are
// broken by first-encounter order: position in listA, then listB.
// k must be positive; it dampens the dominance of top ranks.
func Fuse(listA, listB []string, k float64) ([]Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("rrf constant must be positive, got %g", k)
	}

	scores := make(map[string]float64)
	order := make(map[string]int)
	next := 0

	accumulate := func(list []string) {
		for i, id := range list {
			scores[id] += 1.0 / (k + float64(i+1))
			if _, seen := order[id]; !seen {
				order[id] = next
				next++
			}
		}
	}
	accumulate(listA)
	accumulate(listB)

	results := make([]Result, 0, len(scores))
	for id, score := range scores {
		results = append(results, Result{ID: id, Score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return order[results[i].ID] < order[results[j].ID]
	})
	return results, nil
}
