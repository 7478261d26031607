package migration

import (
	"context"

	"combolift/internal"
	"combolift/internal/errors"

	"github.com/jmoiron/sqlx"
)

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
	logger  *internal.Logger
}

type step struct {
	name  string
	apply func(ctx context.Context, db *sqlx.DB) error
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.1.0",
		logger:  internal.DefaultLogger.With("migration"),
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

func (r *MigrationRunner) steps() []step {
	return []step{
		{"user_engagement table", r.createEngagementTable},
		{"entity_directory table", r.createEntityDirectoryTable},
		{"combination_results table", r.createResultsTable},
		{"combination_results columns", r.addResultColumns},
		{"analysis_runs table", r.createRunsTable},
		{"indexes", r.createIndexes},
	}
}

// Run executes all database migrations in order; every step is idempotent
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	for _, s := range r.steps() {
		if err := s.apply(ctx, db); err != nil {
			return errors.DatabaseError("failed to migrate "+s.name, err)
		}
	}
	r.logger.Info("schema at version %s", r.version)
	return nil
}

// user_engagement is owned by the upstream ETL; it is created here so a
// fresh database can be seeded for local runs
func (r *MigrationRunner) createEngagementTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS user_engagement (
			id BIGSERIAL PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			creator_id VARCHAR(64),
			portfolio_ticker VARCHAR(64),
			profile_views INTEGER DEFAULT 0,
			pdp_views INTEGER DEFAULT 0,
			did_subscribe BOOLEAN DEFAULT false,
			subscription_count INTEGER DEFAULT 0,
			did_copy BOOLEAN DEFAULT false,
			copy_count INTEGER DEFAULT 0,
			event_date TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func (r *MigrationRunner) createEntityDirectoryTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS entity_directory (
			entity_kind VARCHAR(32) NOT NULL,
			entity_id VARCHAR(64) NOT NULL,
			display_name VARCHAR(255) NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			PRIMARY KEY (entity_kind, entity_id)
		)
	`)
	return err
}

func (r *MigrationRunner) createResultsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS combination_results (
			id BIGSERIAL PRIMARY KEY,
			analysis_type VARCHAR(64) NOT NULL,
			rank INTEGER NOT NULL,
			entity_id_1 VARCHAR(64) NOT NULL,
			entity_id_2 VARCHAR(64) NOT NULL,
			beta0 DOUBLE PRECISION NOT NULL,
			beta1 DOUBLE PRECISION NOT NULL,
			iterations INTEGER NOT NULL DEFAULT 0,
			log_likelihood DOUBLE PRECISION NOT NULL,
			aic DOUBLE PRECISION NOT NULL,
			odds_ratio DOUBLE PRECISION NOT NULL,
			precision DOUBLE PRECISION NOT NULL,
			recall DOUBLE PRECISION NOT NULL,
			lift DOUBLE PRECISION NOT NULL,
			users_with_exposure INTEGER NOT NULL,
			conversion_rate_in_group DOUBLE PRECISION NOT NULL,
			overall_conversion_rate DOUBLE PRECISION NOT NULL,
			total_conversions INTEGER NOT NULL,
			total_views_1 INTEGER NOT NULL DEFAULT 0,
			total_views_2 INTEGER NOT NULL DEFAULT 0,
			total_outcomes INTEGER NOT NULL DEFAULT 0,
			analyzed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

// addResultColumns brings tables created by 1.0.0 up to date
func (r *MigrationRunner) addResultColumns(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM information_schema.columns
				WHERE table_name = 'combination_results' AND column_name = 'display_name_1'
			) THEN
				ALTER TABLE combination_results ADD COLUMN display_name_1 VARCHAR(255) NOT NULL DEFAULT '';
				ALTER TABLE combination_results ADD COLUMN display_name_2 VARCHAR(255) NOT NULL DEFAULT '';
			END IF;

			IF NOT EXISTS (
				SELECT 1 FROM information_schema.columns
				WHERE table_name = 'combination_results' AND column_name = 'likelihood_ratio_p'
			) THEN
				ALTER TABLE combination_results ADD COLUMN likelihood_ratio_p DOUBLE PRECISION NOT NULL DEFAULT 1;
			END IF;
		END $$;
	`)
	return err
}

func (r *MigrationRunner) createRunsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS analysis_runs (
			run_id UUID PRIMARY KEY,
			analysis_type VARCHAR(64) NOT NULL,
			ranking_rule VARCHAR(64) NOT NULL,
			status VARCHAR(32) NOT NULL,
			warning TEXT NOT NULL DEFAULT '',
			population INTEGER NOT NULL DEFAULT 0,
			candidates INTEGER NOT NULL DEFAULT 0,
			total_combinations INTEGER NOT NULL DEFAULT 0,
			evaluated INTEGER NOT NULL DEFAULT 0,
			coverage DOUBLE PRECISION NOT NULL DEFAULT 0,
			kept INTEGER NOT NULL DEFAULT 0,
			started_at TIMESTAMP WITH TIME ZONE NOT NULL,
			finished_at TIMESTAMP WITH TIME ZONE NOT NULL
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		// Loader pages by id within the analysis window
		"CREATE INDEX IF NOT EXISTS idx_engagement_event_date ON user_engagement(event_date)",
		"CREATE INDEX IF NOT EXISTS idx_engagement_user_id ON user_engagement(user_id)",

		"CREATE INDEX IF NOT EXISTS idx_results_type_rank ON combination_results(analysis_type, rank)",

		"CREATE INDEX IF NOT EXISTS idx_runs_type_started ON analysis_runs(analysis_type, started_at DESC)",
	}

	for _, idxSQL := range indexes {
		if _, err := db.ExecContext(ctx, idxSQL); err != nil {
			// Log but don't fail on index creation errors
			r.logger.Warn("failed to create index: %v", err)
		}
	}

	return nil
}
