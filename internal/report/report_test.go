package report

import (
	"strings"
	"testing"
	"time"

	"combolift/domain/combo"
	"combolift/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResults() []combo.CombinationResult {
	return []combo.CombinationResult{
		{Rank: 1, Combination: combo.Combination{A: "c1", B: "c2"}, DisplayName1: "Alpha", DisplayName2: "Beta", Lift: 4, AIC: 10, TotalConversions: 6, UsersWithExposure: 15},
		{Rank: 2, Combination: combo.Combination{A: "c1", B: "c3"}, Lift: 3, AIC: 20, TotalConversions: 3},
		{Rank: 3, Combination: combo.Combination{A: "c2", B: "c3"}, Lift: 2, AIC: 30, TotalConversions: 2},
		{Rank: 4, Combination: combo.Combination{A: "c3", B: "c4"}, Lift: 1, AIC: 40, TotalConversions: 1},
	}
}

func sampleRun() *ports.RunRecord {
	started := time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)
	return &ports.RunRecord{
		RunID:             "0190a5e4-7c2d-7000-8000-000000000001",
		AnalysisType:      combo.SubscriptionPairs,
		RankingRule:       combo.RankByExpectedValue,
		Status:            combo.RunPartial,
		Warning:           "search stopped early",
		Population:        100,
		Candidates:        3,
		TotalCombinations: 3,
		Evaluated:         2,
		Coverage:          2.0 / 3.0,
		Kept:              2,
		StartedAt:         started,
		FinishedAt:        started.Add(90 * time.Second),
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleResults())

	assert.Equal(t, 4, s.Count)
	assert.Equal(t, Distribution{Min: 1, P25: 1, Median: 2.5, P75: 3, Max: 4}, s.Lift)
	assert.Equal(t, 10.0, s.AIC.Min)
	assert.Equal(t, 25.0, s.AIC.Median)
	assert.Equal(t, 40.0, s.AIC.Max)
}

func TestSummarize_Empty(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestMarkdown(t *testing.T) {
	md := Markdown(sampleRun(), sampleResults(), 2)

	assert.True(t, strings.HasPrefix(md, "# subscription_pairs\n"))
	assert.Contains(t, md, "- **Status:** partial")
	assert.Contains(t, md, "2 of 3 combinations (66.7%)")
	assert.Contains(t, md, "> search stopped early")
	assert.Contains(t, md, "## Top 2")
	assert.Contains(t, md, "| 1 | Alpha + Beta | 15 | 6 | 4.000 | 24.00 |")
	assert.Contains(t, md, "| 2 | c1 + c3 |")
	assert.NotContains(t, md, "| 3 | c2 + c3 |")
}

func TestMarkdown_NoRunsOrResults(t *testing.T) {
	assert.Contains(t, Markdown(nil, nil, 0), "No runs recorded yet.")
	assert.Contains(t, Markdown(sampleRun(), nil, 0), "No combinations passed the keep rule.")
}

func TestHTML(t *testing.T) {
	out := string(HTML(Markdown(sampleRun(), sampleResults(), 0)))

	require.NotEmpty(t, out)
	assert.Contains(t, out, "<h1")
	assert.Contains(t, out, "<table>")
	assert.Contains(t, out, "Alpha + Beta")
}
