package report

import (
	"fmt"
	"strings"

	"combolift/domain/combo"
	"combolift/ports"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/montanaflynn/stats"
)

// DefaultTop is the number of ranked combinations shown in a report
const DefaultTop = 20

// Distribution summarises one metric across the kept combinations.
// Fields stay zero when the sample is too small for the statistic.
type Distribution struct {
	Min    float64 `json:"min"`
	P25    float64 `json:"p25"`
	Median float64 `json:"median"`
	P75    float64 `json:"p75"`
	Max    float64 `json:"max"`
}

// Summary holds the distributions shown at the top of a report
type Summary struct {
	Count int          `json:"count"`
	Lift  Distribution `json:"lift"`
	AIC   Distribution `json:"aic"`
}

// Summarize computes lift and AIC distributions over results
func Summarize(results []combo.CombinationResult) Summary {
	lifts := make([]float64, len(results))
	aics := make([]float64, len(results))
	for i, r := range results {
		lifts[i] = r.Lift
		aics[i] = r.AIC
	}
	return Summary{
		Count: len(results),
		Lift:  distribution(lifts),
		AIC:   distribution(aics),
	}
}

func distribution(data []float64) Distribution {
	var d Distribution
	if len(data) == 0 {
		return d
	}
	d.Min, _ = stats.Min(data)
	d.Max, _ = stats.Max(data)
	d.Median, _ = stats.Median(data)
	// Percentile errors on samples too small for the rank; zero is reported then
	if q, err := stats.Percentile(data, 25); err == nil {
		d.P25 = q
	}
	if q, err := stats.Percentile(data, 75); err == nil {
		d.P75 = q
	}
	return d
}

// Markdown renders the run summary and the top ranked combinations
func Markdown(run *ports.RunRecord, results []combo.CombinationResult, top int) string {
	if top <= 0 {
		top = DefaultTop
	}
	var b strings.Builder

	if run == nil {
		b.WriteString("# Combination report\n\nNo runs recorded yet.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "# %s\n\n", run.AnalysisType)
	fmt.Fprintf(&b, "- **Run:** `%s`\n", run.RunID)
	fmt.Fprintf(&b, "- **Status:** %s\n", run.Status)
	fmt.Fprintf(&b, "- **Ranking:** %s\n", run.RankingRule)
	fmt.Fprintf(&b, "- **Population:** %d users, %d candidate entities\n", run.Population, run.Candidates)
	fmt.Fprintf(&b, "- **Coverage:** %d of %d combinations (%.1f%%)\n", run.Evaluated, run.TotalCombinations, run.Coverage*100)
	fmt.Fprintf(&b, "- **Finished:** %s in %s\n", run.FinishedAt.UTC().Format("2006-01-02 15:04:05 MST"), run.FinishedAt.Sub(run.StartedAt))
	if run.Warning != "" {
		fmt.Fprintf(&b, "\n> %s\n", run.Warning)
	}

	if len(results) == 0 {
		b.WriteString("\nNo combinations passed the keep rule.\n")
		return b.String()
	}

	s := Summarize(results)
	fmt.Fprintf(&b, "\n## Distribution over %d kept combinations\n\n", s.Count)
	b.WriteString("| metric | min | p25 | median | p75 | max |\n")
	b.WriteString("|---|---:|---:|---:|---:|---:|\n")
	writeDistribution(&b, "lift", s.Lift)
	writeDistribution(&b, "AIC", s.AIC)

	shown := min(top, len(results))
	fmt.Fprintf(&b, "\n## Top %d\n\n", shown)
	b.WriteString("| # | pair | exposed | conversions | lift | expected value | AIC | LR p |\n")
	b.WriteString("|---:|---|---:|---:|---:|---:|---:|---:|\n")
	for _, r := range results[:shown] {
		fmt.Fprintf(&b, "| %d | %s + %s | %d | %d | %.3f | %.2f | %.2f | %.4f |\n",
			r.Rank, cellText(r.DisplayName1, r.Combination.A), cellText(r.DisplayName2, r.Combination.B),
			r.UsersWithExposure, r.TotalConversions, r.Lift, r.ExpectedValue(), r.AIC, r.LikelihoodRatioP)
	}
	return b.String()
}

func writeDistribution(b *strings.Builder, name string, d Distribution) {
	fmt.Fprintf(b, "| %s | %.3f | %.3f | %.3f | %.3f | %.3f |\n", name, d.Min, d.P25, d.Median, d.P75, d.Max)
}

func cellText(name, id string) string {
	if name == "" {
		name = id
	}
	return strings.ReplaceAll(name, "|", `\|`)
}

// HTML converts a markdown report into an HTML fragment
func HTML(md string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	return markdown.ToHTML([]byte(md), p, renderer)
}
