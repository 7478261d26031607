package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"combolift/adapters/excel"
	"combolift/adapters/sqlite"
	"combolift/adapters/sqlstore"
	"combolift/domain/combo"
	"combolift/internal"
	"combolift/internal/config"
	"combolift/internal/container"
	"combolift/internal/migration"
	"combolift/internal/report"
	"combolift/internal/testkit"
	"combolift/ports"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "combolift",
		Short: "Rank entity pairs whose joint exposure predicts conversion",
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newExportCmd(),
		newMigrateCmd(),
		newGenerateCmd(),
		newDemoCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig applies the flag overrides shared by run and demo
func loadConfig(rule string, workers int, budget time.Duration) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	internal.DefaultLogger = internal.NewLogger(internal.ParseLogLevel(cfg.LogLevel))

	if rule != "" {
		r, err := combo.ParseRankingRule(rule)
		if err != nil {
			return nil, err
		}
		for t, a := range cfg.Analyses {
			a.RankingRule = r
			cfg.Analyses[t] = a
		}
	}
	if workers > 0 {
		cfg.Search.Workers = workers
	}
	if budget > 0 {
		cfg.Search.TimeBudget = budget
		if cfg.Search.SafetyMargin >= budget {
			cfg.Search.SafetyMargin = 0
		}
	}
	return cfg, cfg.Validate()
}

func connect(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	return db, nil
}

// openStore opens the results store: the sqlite file at path when given, Postgres otherwise
func openStore(ctx context.Context, cfg *config.Config, path string) (*sqlx.DB, ports.PatternRepository, error) {
	if path != "" {
		db, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, nil, err
		}
		return db, sqlite.NewPatternRepository(db, cfg.Search.PersistBatchSize), nil
	}
	db, err := connect(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return db, sqlstore.NewPatternRepository(db, sqlstore.Postgres, cfg.Search.PersistBatchSize), nil
}

func parseTypes(args []string) ([]combo.AnalysisType, error) {
	if len(args) == 0 {
		return combo.AnalysisTypes(), nil
	}
	types := make([]combo.AnalysisType, 0, len(args))
	for _, a := range args {
		t, err := combo.ParseAnalysisType(a)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

func newRunCmd() *cobra.Command {
	var input, rule, exportDir, store string
	var workers int
	var budget time.Duration
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "run [analysis-type...]",
		Short: "Run analyses against Postgres, or against an xlsx/csv export with --input",
		Long: `Run one or more analyses. Without arguments every analysis type runs.

Example: combolift run subscription_pairs --input engagement.xlsx --rule lift_times_conversions_descending`,
		RunE: func(cmd *cobra.Command, args []string) error {
			types, err := parseTypes(args)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(rule, workers, budget)
			if err != nil {
				return err
			}

			c, err := container.New(cfg)
			if err != nil {
				return err
			}
			defer c.Shutdown(context.Background())

			if input != "" {
				var repo ports.PatternRepository = testkit.NewInMemoryPatternRepository()
				if store != "" {
					var db *sqlx.DB
					if db, repo, err = openStore(cmd.Context(), cfg, store); err != nil {
						return err
					}
					defer db.Close()
				}
				err = c.InitWithFile(input, repo, nil)
			} else {
				var db *sqlx.DB
				if db, err = connect(cmd.Context(), cfg); err == nil {
					err = c.InitWithDatabase(db)
				}
			}
			if err != nil {
				return err
			}

			for _, t := range types {
				rep, err := c.Search.Run(cmd.Context(), t)
				if err != nil {
					return err
				}
				if err := printReport(cmd, rep, asJSON); err != nil {
					return err
				}
				if exportDir != "" {
					path := filepath.Join(exportDir, string(t)+".xlsx")
					if err := excel.ExportResults(path, t, rep.Results); err != nil {
						return err
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "exported %d results to %s\n", len(rep.Results), path)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "xlsx or csv engagement export to read instead of Postgres")
	cmd.Flags().StringVar(&rule, "rule", "", "ranking rule override (aic_ascending | lift_times_conversions_descending)")
	cmd.Flags().IntVar(&workers, "workers", 0, "worker pool size override")
	cmd.Flags().DurationVar(&budget, "budget", 0, "time budget for each run, e.g. 5m")
	cmd.Flags().StringVar(&store, "store", "", "keep results and run history of an --input run in this sqlite file")
	cmd.Flags().StringVar(&exportDir, "export-dir", "", "write each ranked list to <dir>/<analysis-type>.xlsx")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full run report as JSON")

	return cmd
}

func printReport(cmd *cobra.Command, rep *combo.RunReport, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	run := ports.NewRunRecord(rep)
	fmt.Fprintln(out, report.Markdown(&run, rep.Results, report.DefaultTop))
	return nil
}

func newExportCmd() *cobra.Command {
	var limit int
	var store string

	cmd := &cobra.Command{
		Use:   "export <analysis-type> <output.xlsx>",
		Short: "Export stored results for an analysis type to Excel",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := combo.ParseAnalysisType(args[0])
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, repo, err := openStore(cmd.Context(), cfg, store)
			if err != nil {
				return err
			}
			defer db.Close()

			results, err := repo.ListResults(cmd.Context(), t, limit)
			if err != nil {
				return err
			}
			if err := excel.ExportResults(args[1], t, results); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d results to %s\n", len(results), args[1])
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows to export (0 = all)")
	cmd.Flags().StringVar(&store, "store", "", "read from this sqlite results file instead of Postgres")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := connect(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			runner := migration.NewRunner()
			if err := runner.Run(cmd.Context(), db); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %s\n", runner.Version())
			return nil
		},
	}
}

func newGenerateCmd() *cobra.Command {
	var users int
	var seed int64

	cmd := &cobra.Command{
		Use:   "generate <output.xlsx>",
		Short: "Write a synthetic engagement export with planted pairs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !strings.EqualFold(filepath.Ext(args[0]), ".xlsx") {
				return fmt.Errorf("output must be an .xlsx file")
			}
			gcfg := testkit.DefaultEngagementConfig()
			gcfg.UserCount = users
			gcfg.Seed = seed

			rows := testkit.NewEngagementGenerator(gcfg).Generate()
			if err := excel.WriteEngagement(args[0], rows); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows for %d users to %s\n", len(rows), users, args[0])
			return nil
		},
	}

	cmd.Flags().IntVar(&users, "users", 2000, "number of synthetic users")
	cmd.Flags().Int64Var(&seed, "seed", 42, "random seed")
	return cmd
}

func newDemoCmd() *cobra.Command {
	var users int
	var seed int64
	var rule string

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run every analysis on synthetic data in memory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rule, 0, 0)
			if err != nil {
				return err
			}

			gcfg := testkit.DefaultEngagementConfig()
			gcfg.UserCount = users
			gcfg.Seed = seed
			gen := testkit.NewEngagementGenerator(gcfg)

			c, err := container.New(cfg)
			if err != nil {
				return err
			}
			if err := c.InitWithKit(testkit.NewTestKit(gen.Generate(), gen.DisplayNames())); err != nil {
				return err
			}

			reports, err := c.Search.RunAll(cmd.Context())
			for _, rep := range reports {
				if perr := printReport(cmd, rep, false); perr != nil {
					return perr
				}
			}
			return err
		},
	}

	cmd.Flags().IntVar(&users, "users", 2000, "number of synthetic users")
	cmd.Flags().Int64Var(&seed, "seed", 42, "random seed")
	cmd.Flags().StringVar(&rule, "rule", "", "ranking rule override")
	return cmd
}
