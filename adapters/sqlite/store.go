package sqlite

import (
	"context"
	"fmt"

	"combolift/adapters/sqlstore"
	"combolift/ports"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// MemoryPath opens a private in-memory store
const MemoryPath = ":memory:"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS combination_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		analysis_type TEXT NOT NULL,
		rank INTEGER NOT NULL,
		entity_id_1 TEXT NOT NULL,
		entity_id_2 TEXT NOT NULL,
		display_name_1 TEXT NOT NULL DEFAULT '',
		display_name_2 TEXT NOT NULL DEFAULT '',
		beta0 REAL NOT NULL,
		beta1 REAL NOT NULL,
		iterations INTEGER NOT NULL DEFAULT 0,
		log_likelihood REAL NOT NULL,
		aic REAL NOT NULL,
		odds_ratio REAL NOT NULL,
		likelihood_ratio_p REAL NOT NULL DEFAULT 1,
		precision REAL NOT NULL,
		recall REAL NOT NULL,
		lift REAL NOT NULL,
		users_with_exposure INTEGER NOT NULL,
		conversion_rate_in_group REAL NOT NULL,
		overall_conversion_rate REAL NOT NULL,
		total_conversions INTEGER NOT NULL,
		total_views_1 INTEGER NOT NULL DEFAULT 0,
		total_views_2 INTEGER NOT NULL DEFAULT 0,
		total_outcomes INTEGER NOT NULL DEFAULT 0,
		analyzed_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_results_type_rank ON combination_results(analysis_type, rank)`,
	`CREATE TABLE IF NOT EXISTS analysis_runs (
		run_id TEXT PRIMARY KEY,
		analysis_type TEXT NOT NULL,
		ranking_rule TEXT NOT NULL,
		status TEXT NOT NULL,
		warning TEXT NOT NULL DEFAULT '',
		population INTEGER NOT NULL DEFAULT 0,
		candidates INTEGER NOT NULL DEFAULT 0,
		total_combinations INTEGER NOT NULL DEFAULT 0,
		evaluated INTEGER NOT NULL DEFAULT 0,
		coverage REAL NOT NULL DEFAULT 0,
		kept INTEGER NOT NULL DEFAULT 0,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_type_started ON analysis_runs(analysis_type, started_at)`,
}

// Open opens or creates a local results store at path and ensures its schema.
// The pool is pinned to one connection so an in-memory store stays a single database.
func Open(ctx context.Context, path string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, sqlstore.SQLite.Name, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
		}
	}
	return db, nil
}

// NewPatternRepository stores results in a database opened with Open
func NewPatternRepository(db *sqlx.DB, batchSize int) ports.PatternRepository {
	return sqlstore.NewPatternRepository(db, sqlstore.SQLite, batchSize)
}
