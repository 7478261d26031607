package app

import (
	"testing"

	"combolift/domain/combo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func result(a, b string, aic, lift float64, conversions int) combo.CombinationResult {
	return combo.CombinationResult{
		Combination:       combo.Combination{A: a, B: b},
		AIC:               aic,
		Lift:              lift,
		TotalConversions:  conversions,
		UsersWithExposure: conversions + 1,
	}
}

func pairs(results []combo.CombinationResult) []combo.Combination {
	out := make([]combo.Combination, len(results))
	for i, r := range results {
		out[i] = r.Combination
	}
	return out
}

func TestRank(t *testing.T) {
	tests := []struct {
		name    string
		rule    combo.RankingRule
		results []combo.CombinationResult
		want    []combo.Combination
	}{
		{
			name: "lower AIC first",
			rule: combo.RankByAIC,
			results: []combo.CombinationResult{
				result("p", "q", 120, 1, 1),
				result("r", "s", 80, 1, 1),
			},
			want: []combo.Combination{{A: "r", B: "s"}, {A: "p", B: "q"}},
		},
		{
			name: "higher lift times conversions first",
			rule: combo.RankByExpectedValue,
			results: []combo.CombinationResult{
				result("r", "s", 80, 1.5, 1),
				result("p", "q", 120, 3.0, 1),
			},
			want: []combo.Combination{{A: "p", B: "q"}, {A: "r", B: "s"}},
		},
		{
			name: "expected value weighs conversions",
			rule: combo.RankByExpectedValue,
			results: []combo.CombinationResult{
				result("a", "b", 100, 4.0, 1),
				result("c", "d", 100, 1.0, 10),
			},
			want: []combo.Combination{{A: "c", B: "d"}, {A: "a", B: "b"}},
		},
		{
			name: "AIC ties break on the entity pair",
			rule: combo.RankByAIC,
			results: []combo.CombinationResult{
				result("b", "c", 50, 1, 1),
				result("a", "d", 50, 1, 1),
				result("a", "c", 50, 1, 1),
			},
			want: []combo.Combination{{A: "a", B: "c"}, {A: "a", B: "d"}, {A: "b", B: "c"}},
		},
		{
			name: "expected value ties break on the entity pair",
			rule: combo.RankByExpectedValue,
			results: []combo.CombinationResult{
				result("x", "y", 10, 2.0, 3),
				result("m", "n", 90, 3.0, 2),
			},
			want: []combo.Combination{{A: "m", B: "n"}, {A: "x", B: "y"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, Rank(tt.results, tt.rule))
			assert.Equal(t, tt.want, pairs(tt.results))
			for i, r := range tt.results {
				assert.Equal(t, i+1, r.Rank)
			}
		})
	}
}

func TestRank_UnknownRule(t *testing.T) {
	results := []combo.CombinationResult{result("a", "b", 1, 1, 1)}

	err := Rank(results, combo.RankingRule("p_value_ascending"))
	assert.ErrorIs(t, err, combo.ErrUnknownRankingRule)
	assert.Zero(t, results[0].Rank)
}

func TestRank_Empty(t *testing.T) {
	assert.NoError(t, Rank(nil, combo.RankByAIC))
}

func TestKeepResults(t *testing.T) {
	noExposure := result("a", "b", 10, 0, 0)
	noExposure.UsersWithExposure = 0
	noConversions := result("a", "c", 10, 0, 0)
	kept := result("b", "c", 10, 2, 3)

	out := KeepResults([]combo.CombinationResult{noExposure, noConversions, kept})
	require.Len(t, out, 1)
	assert.Equal(t, kept.Combination, out[0].Combination)

	assert.Empty(t, KeepResults(nil))
}
