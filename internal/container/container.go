package container

import (
	"context"
	"fmt"

	"combolift/adapters/api"
	"combolift/adapters/excel"
	"combolift/adapters/postgres"
	"combolift/adapters/sqlstore"
	"combolift/app"
	"combolift/internal"
	"combolift/internal/config"
	"combolift/internal/testkit"
	"combolift/ports"

	"github.com/jmoiron/sqlx"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config

	// Infrastructure
	DB *sqlx.DB

	// Ports
	Loader     ports.EngagementLoader
	Repository ports.PatternRepository
	Directory  ports.EntityDirectory

	// Services
	Search *app.PatternSearchService

	logger *internal.Logger
}

// New creates a new dependency injection container
func New(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	c := &Container{
		Config: cfg,
		logger: internal.DefaultLogger.With("container"),
	}

	return c, nil
}

// InitWithDatabase wires the Postgres adapters and the search service.
// A configured engagement API replaces the table loader.
func (c *Container) InitWithDatabase(db *sqlx.DB) error {
	if db == nil {
		return fmt.Errorf("database connection cannot be nil")
	}

	c.DB = db
	c.Loader = c.engagementLoader(db)
	c.Repository = sqlstore.NewPatternRepository(db, sqlstore.Postgres, c.Config.Search.PersistBatchSize)
	c.Directory = postgres.NewEntityDirectory(db)
	c.initServices()

	c.logger.Info("initialized with postgres adapters")
	return nil
}

func (c *Container) engagementLoader(db *sqlx.DB) ports.EngagementLoader {
	cfg := c.Config.EngagementAPI
	if cfg.URL == "" {
		return postgres.NewEngagementLoader(db, postgres.DefaultPageSize)
	}

	source := api.DefaultSource(cfg.URL)
	source.AuthToken = cfg.Token
	source.CursorPath = cfg.CursorPath
	if cfg.DataPath != "" {
		source.DataPath = cfg.DataPath
	}
	if cfg.PageSize > 0 {
		source.PageSize = cfg.PageSize
	}
	if cfg.Timeout > 0 {
		source.Timeout = cfg.Timeout
	}
	c.logger.Info("loading engagement from %s", cfg.URL)
	return api.NewLoader(source)
}

// InitWithFile reads engagement from an xlsx/csv export; results go to the given repository
func (c *Container) InitWithFile(path string, repo ports.PatternRepository, directory ports.EntityDirectory) error {
	if path == "" {
		return fmt.Errorf("input file path cannot be empty")
	}
	if repo == nil {
		return fmt.Errorf("pattern repository cannot be nil")
	}

	c.Loader = excel.NewFileLoader(path)
	c.Repository = repo
	c.Directory = directory
	c.initServices()

	c.logger.Info("initialized with file input %s", path)
	return nil
}

// InitWithKit wires the in-memory adapters of a test kit
func (c *Container) InitWithKit(kit *testkit.TestKit) error {
	if kit == nil {
		return fmt.Errorf("test kit cannot be nil")
	}

	c.Loader = kit.Loader
	c.Repository = kit.Repository
	c.Directory = kit.Directory
	c.initServices()

	c.logger.Info("initialized with in-memory adapters")
	return nil
}

func (c *Container) initServices() {
	c.Search = app.NewPatternSearchService(c.Loader, c.Repository, c.Directory, c.Config)
}

// Shutdown gracefully shuts down all components
func (c *Container) Shutdown(ctx context.Context) error {
	c.logger.Info("shutting down")

	// Close database connection
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
