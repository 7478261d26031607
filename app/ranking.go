package app

import (
	"fmt"
	"sort"

	"combolift/domain/combo"
)

// KeepResults drops combinations with no exposed users or no conversions among them
func KeepResults(results []combo.CombinationResult) []combo.CombinationResult {
	kept := make([]combo.CombinationResult, 0, len(results))
	for _, r := range results {
		if combo.Keep(r) {
			kept = append(kept, r)
		}
	}
	return kept
}

// Rank sorts results in place by the selected rule and assigns 1-based ranks.
// Equal scores fall back to the entity pair so the order never depends on
// which worker finished first.
func Rank(results []combo.CombinationResult, rule combo.RankingRule) error {
	var better func(a, b combo.CombinationResult) bool
	switch rule {
	case combo.RankByAIC:
		better = func(a, b combo.CombinationResult) bool { return a.AIC < b.AIC }
	case combo.RankByExpectedValue:
		better = func(a, b combo.CombinationResult) bool { return a.ExpectedValue() > b.ExpectedValue() }
	default:
		return fmt.Errorf("%w: %q", combo.ErrUnknownRankingRule, rule)
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if better(a, b) {
			return true
		}
		if better(b, a) {
			return false
		}
		if a.Combination.A != b.Combination.A {
			return a.Combination.A < b.Combination.A
		}
		return a.Combination.B < b.Combination.B
	})

	for i := range results {
		results[i].Rank = i + 1
	}
	return nil
}
