package ports

import (
	"context"
	"time"

	"combolift/domain/combo"
)

// RunRecord is the persisted summary of one analysis run
type RunRecord struct {
	RunID             combo.RunID        `db:"run_id" json:"run_id"`
	AnalysisType      combo.AnalysisType `db:"analysis_type" json:"analysis_type"`
	RankingRule       combo.RankingRule  `db:"ranking_rule" json:"ranking_rule"`
	Status            combo.RunStatus    `db:"status" json:"status"`
	Warning           string             `db:"warning" json:"warning,omitempty"`
	Population        int                `db:"population" json:"population"`
	Candidates        int                `db:"candidates" json:"candidates"`
	TotalCombinations int                `db:"total_combinations" json:"total_combinations"`
	Evaluated         int                `db:"evaluated" json:"evaluated"`
	Coverage          float64            `db:"coverage" json:"coverage"`
	Kept              int                `db:"kept" json:"kept"`
	StartedAt         time.Time          `db:"started_at" json:"started_at"`
	FinishedAt        time.Time          `db:"finished_at" json:"finished_at"`
}

// NewRunRecord summarises a report for persistence
func NewRunRecord(r *combo.RunReport) RunRecord {
	return RunRecord{
		RunID:             r.RunID,
		AnalysisType:      r.AnalysisType,
		RankingRule:       r.RankingRule,
		Status:            r.Status,
		Warning:           r.Warning,
		Population:        r.Population,
		Candidates:        r.Candidates,
		TotalCombinations: r.TotalCombinations,
		Evaluated:         r.Evaluated,
		Coverage:          r.Coverage,
		Kept:              r.Kept,
		StartedAt:         r.StartedAt,
		FinishedAt:        r.FinishedAt,
	}
}

// PatternRepository stores ranked combinations per analysis type
type PatternRepository interface {
	// ReplaceResults deletes every stored result for the analysis type and
	// inserts the given ranked list in one transaction
	ReplaceResults(ctx context.Context, analysisType combo.AnalysisType, results []combo.CombinationResult) error
	ListResults(ctx context.Context, analysisType combo.AnalysisType, limit int) ([]combo.CombinationResult, error)

	RecordRun(ctx context.Context, run RunRecord) error
	LatestRun(ctx context.Context, analysisType combo.AnalysisType) (*RunRecord, error)
}
