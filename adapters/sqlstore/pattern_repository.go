// Package sqlstore persists ranked combinations and run history in a SQL
// database. The same statements serve Postgres and SQLite; only the
// placeholder format differs.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"combolift/domain/combo"
	"combolift/ports"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// DefaultBatchSize is the number of result rows per INSERT statement
const DefaultBatchSize = 500

// Dialect selects the placeholder format for a driver
type Dialect struct {
	Name        string
	Placeholder sq.PlaceholderFormat
}

var (
	Postgres = Dialect{Name: "postgres", Placeholder: sq.Dollar}
	SQLite   = Dialect{Name: "sqlite3", Placeholder: sq.Question}
)

func (d Dialect) builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(d.Placeholder)
}

var resultColumns = []string{
	"analysis_type", "rank", "entity_id_1", "entity_id_2", "display_name_1", "display_name_2",
	"beta0", "beta1", "iterations", "log_likelihood", "aic", "odds_ratio", "likelihood_ratio_p",
	"precision", "recall", "lift", "users_with_exposure", "conversion_rate_in_group",
	"overall_conversion_rate", "total_conversions", "total_views_1", "total_views_2",
	"total_outcomes", "analyzed_at",
}

var runColumns = []string{
	"run_id", "analysis_type", "ranking_rule", "status", "warning", "population", "candidates",
	"total_combinations", "evaluated", "coverage", "kept", "started_at", "finished_at",
}

// resultRow is the flat storage shape of a CombinationResult
type resultRow struct {
	AnalysisType          string    `db:"analysis_type"`
	Rank                  int       `db:"rank"`
	EntityID1             string    `db:"entity_id_1"`
	EntityID2             string    `db:"entity_id_2"`
	DisplayName1          string    `db:"display_name_1"`
	DisplayName2          string    `db:"display_name_2"`
	Beta0                 float64   `db:"beta0"`
	Beta1                 float64   `db:"beta1"`
	Iterations            int       `db:"iterations"`
	LogLikelihood         float64   `db:"log_likelihood"`
	AIC                   float64   `db:"aic"`
	OddsRatio             float64   `db:"odds_ratio"`
	LikelihoodRatioP      float64   `db:"likelihood_ratio_p"`
	Precision             float64   `db:"precision"`
	Recall                float64   `db:"recall"`
	Lift                  float64   `db:"lift"`
	UsersWithExposure     int       `db:"users_with_exposure"`
	ConversionRateInGroup float64   `db:"conversion_rate_in_group"`
	OverallConversionRate float64   `db:"overall_conversion_rate"`
	TotalConversions      int       `db:"total_conversions"`
	TotalViews1           int       `db:"total_views_1"`
	TotalViews2           int       `db:"total_views_2"`
	TotalOutcomes         int       `db:"total_outcomes"`
	AnalyzedAt            time.Time `db:"analyzed_at"`
}

func (r resultRow) toDomain() combo.CombinationResult {
	return combo.CombinationResult{
		Rank:                  r.Rank,
		Combination:           combo.Combination{A: r.EntityID1, B: r.EntityID2},
		DisplayName1:          r.DisplayName1,
		DisplayName2:          r.DisplayName2,
		Beta0:                 r.Beta0,
		Beta1:                 r.Beta1,
		Iterations:            r.Iterations,
		LogLikelihood:         r.LogLikelihood,
		AIC:                   r.AIC,
		OddsRatio:             r.OddsRatio,
		LikelihoodRatioP:      r.LikelihoodRatioP,
		Precision:             r.Precision,
		Recall:                r.Recall,
		Lift:                  r.Lift,
		UsersWithExposure:     r.UsersWithExposure,
		ConversionRateInGroup: r.ConversionRateInGroup,
		OverallConversionRate: r.OverallConversionRate,
		TotalConversions:      r.TotalConversions,
		TotalViews1:           r.TotalViews1,
		TotalViews2:           r.TotalViews2,
		TotalOutcomes:         r.TotalOutcomes,
		AnalyzedAt:            r.AnalyzedAt,
	}
}

// patternRepository implements the PatternRepository interface
type patternRepository struct {
	db        *sqlx.DB
	sql       sq.StatementBuilderType
	batchSize int
}

var _ ports.PatternRepository = (*patternRepository)(nil)

// NewPatternRepository creates a new pattern repository; batchSize <= 0 uses DefaultBatchSize
func NewPatternRepository(db *sqlx.DB, dialect Dialect, batchSize int) ports.PatternRepository {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &patternRepository{db: db, sql: dialect.builder(), batchSize: batchSize}
}

// ReplaceResults deletes the analysis type's results and inserts the new ranked list
func (r *patternRepository) ReplaceResults(ctx context.Context, analysisType combo.AnalysisType, results []combo.CombinationResult) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	del, delArgs, err := r.sql.Delete("combination_results").
		Where(sq.Eq{"analysis_type": string(analysisType)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete: %w", err)
	}
	if _, err = tx.ExecContext(ctx, del, delArgs...); err != nil {
		return fmt.Errorf("failed to delete results for %s: %w", analysisType, err)
	}

	for start := 0; start < len(results); start += r.batchSize {
		end := min(start+r.batchSize, len(results))
		query, args, buildErr := insertResultsQuery(r.sql, analysisType, results[start:end])
		if buildErr != nil {
			err = buildErr
			return fmt.Errorf("failed to build insert: %w", err)
		}
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert results %d-%d: %w", start, end, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit results: %w", err)
	}
	return nil
}

func insertResultsQuery(b sq.StatementBuilderType, analysisType combo.AnalysisType, batch []combo.CombinationResult) (string, []interface{}, error) {
	q := b.Insert("combination_results").Columns(resultColumns...)
	for _, res := range batch {
		q = q.Values(
			string(analysisType), res.Rank, res.Combination.A, res.Combination.B, res.DisplayName1, res.DisplayName2,
			res.Beta0, res.Beta1, res.Iterations, res.LogLikelihood, res.AIC, res.OddsRatio, res.LikelihoodRatioP,
			res.Precision, res.Recall, res.Lift, res.UsersWithExposure, res.ConversionRateInGroup,
			res.OverallConversionRate, res.TotalConversions, res.TotalViews1, res.TotalViews2,
			res.TotalOutcomes, res.AnalyzedAt,
		)
	}
	return q.ToSql()
}

// ListResults returns stored results in rank order; limit <= 0 returns all
func (r *patternRepository) ListResults(ctx context.Context, analysisType combo.AnalysisType, limit int) ([]combo.CombinationResult, error) {
	query, args, err := listResultsQuery(r.sql, analysisType, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to build list query: %w", err)
	}

	var rows []resultRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}

	results := make([]combo.CombinationResult, len(rows))
	for i, row := range rows {
		results[i] = row.toDomain()
	}
	return results, nil
}

func listResultsQuery(b sq.StatementBuilderType, analysisType combo.AnalysisType, limit int) (string, []interface{}, error) {
	q := b.Select(resultColumns...).
		From("combination_results").
		Where(sq.Eq{"analysis_type": string(analysisType)}).
		OrderBy("rank")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return q.ToSql()
}

// RecordRun appends one row to the run history
func (r *patternRepository) RecordRun(ctx context.Context, run ports.RunRecord) error {
	query, args, err := r.sql.Insert("analysis_runs").Columns(runColumns...).Values(
		run.RunID, run.AnalysisType, run.RankingRule, run.Status, run.Warning, run.Population, run.Candidates,
		run.TotalCombinations, run.Evaluated, run.Coverage, run.Kept, run.StartedAt, run.FinishedAt,
	).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build run insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.RunID, err)
	}
	return nil
}

// LatestRun returns the most recent run for the analysis type, or nil when none exists
func (r *patternRepository) LatestRun(ctx context.Context, analysisType combo.AnalysisType) (*ports.RunRecord, error) {
	query, args, err := r.sql.Select(runColumns...).
		From("analysis_runs").
		Where(sq.Eq{"analysis_type": string(analysisType)}).
		OrderBy("started_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build latest run query: %w", err)
	}

	var run ports.RunRecord
	if err := r.db.GetContext(ctx, &run, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return &run, nil
}
