package analysis

import (
	"sort"

	"TradeSentinel/internal/model"
)

// Better reports whether a beats b: higher final equity, then lower
// enumeration index. Folding results with Better in any order selects the
// same winner as a strict ">" scan in enumeration order.
func Better(a, b model.GridSearchResult) bool {
	if a.Summary.FinalEquity != b.Summary.FinalEquity {
		return a.Summary.FinalEquity > b.Summary.FinalEquity
	}
	return a.Index < b.Index
}

// Rank sorts results best first. The input slice is reordered in place.
func Rank(results []model.GridSearchResult) []model.GridSearchResult {
	sort.Slice(results, func(i, j int) bool {
		return Better(results[i], results[j])
	})
	return results
}
