package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"combolift/domain/combo"
	"combolift/internal/errors"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Database      DatabaseConfig
	EngagementAPI EngagementAPIConfig
	Server        ServerConfig
	Search        SearchConfig
	Analyses      map[combo.AnalysisType]AnalysisConfig `validate:"dive"`
	LogLevel      string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int `validate:"min=1"`
}

// EngagementAPIConfig points the loader at a paged JSON export instead of
// the user_engagement table. Empty URL keeps the database loader.
type EngagementAPIConfig struct {
	URL        string
	Token      string
	DataPath   string
	CursorPath string
	PageSize   int `validate:"omitempty,min=1"`
	Timeout    time.Duration
}

// ServerConfig holds HTTP API settings. The ops listener serves health
// and metrics on its own port; OPS_PORT=off disables it.
type ServerConfig struct {
	Port             string `validate:"required"`
	OpsPort          string
	MetricsEnabled   bool
	ScheduleInterval time.Duration
}

// SearchConfig holds settings shared by every analysis type
type SearchConfig struct {
	MinPopulation       int `validate:"min=1"`
	MaxNewtonIterations int `validate:"min=1"`
	Workers             int `validate:"min=1,max=64"`
	WindowDays          int `validate:"min=1"`
	PersistBatchSize    int `validate:"min=1"`
	TimeBudget          time.Duration
	SafetyMargin        time.Duration
}

// AnalysisConfig holds per-analysis-type settings
type AnalysisConfig struct {
	MinUsersPerEntity int               `yaml:"min_users_per_entity" validate:"min=1"`
	MaxEntities       int               `yaml:"max_entities" validate:"min=2"`
	RankingRule       combo.RankingRule `yaml:"ranking_rule" validate:"oneof=aic_ascending lift_times_conversions_descending"`
	Enabled           bool              `yaml:"enabled"`
}

// analysesFile is the YAML overlay shape; pointers distinguish unset from zero
type analysesFile struct {
	Analyses map[string]struct {
		MinUsersPerEntity *int    `yaml:"min_users_per_entity"`
		MaxEntities       *int    `yaml:"max_entities"`
		RankingRule       *string `yaml:"ranking_rule"`
		Enabled           *bool   `yaml:"enabled"`
	} `yaml:"analyses"`
}

// Defaults returns the configuration used when no environment is set
func Defaults() *Config {
	cfg := &Config{
		Database: DatabaseConfig{MaxOpenConns: 10},
		EngagementAPI: EngagementAPIConfig{
			DataPath: "data",
			PageSize: 1000,
			Timeout:  30 * time.Second,
		},
		Server: ServerConfig{Port: "8080", OpsPort: "9090", MetricsEnabled: true},
		Search: SearchConfig{
			MinPopulation:       50,
			MaxNewtonIterations: 20,
			Workers:             4,
			TimeBudget:          0,
			SafetyMargin:        30 * time.Second,
			WindowDays:          90,
			PersistBatchSize:    500,
		},
		Analyses: make(map[combo.AnalysisType]AnalysisConfig),
		LogLevel: "INFO",
	}
	for _, t := range combo.AnalysisTypes() {
		cfg.Analyses[t] = AnalysisConfig{
			MinUsersPerEntity: combo.DefaultMinUsersPerEntity,
			MaxEntities:       combo.DefaultMaxEntities,
			RankingRule:       combo.RankByAIC,
			Enabled:           true,
		}
	}
	return cfg
}

// Load reads configuration from environment variables, overlays the
// optional ANALYSES_FILE and validates the result
func Load() (*Config, error) {
	cfg := Defaults()

	cfg.Database.URL = os.Getenv("DATABASE_URL")
	cfg.Database.MaxOpenConns = getEnvIntOrDefault("DB_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)

	api := &cfg.EngagementAPI
	api.URL = os.Getenv("ENGAGEMENT_API_URL")
	api.Token = os.Getenv("ENGAGEMENT_API_TOKEN")
	api.DataPath = getEnvOrDefault("ENGAGEMENT_API_DATA_PATH", api.DataPath)
	api.CursorPath = os.Getenv("ENGAGEMENT_API_CURSOR_PATH")
	api.PageSize = getEnvIntOrDefault("ENGAGEMENT_API_PAGE_SIZE", api.PageSize)
	api.Timeout = getEnvDurationOrDefault("ENGAGEMENT_API_TIMEOUT", api.Timeout)

	cfg.Server.Port = getEnvOrDefault("PORT", cfg.Server.Port)
	cfg.Server.OpsPort = getEnvOrDefault("OPS_PORT", cfg.Server.OpsPort)
	cfg.Server.MetricsEnabled = getEnvBoolOrDefault("METRICS_ENABLED", cfg.Server.MetricsEnabled)
	cfg.Server.ScheduleInterval = getEnvDurationOrDefault("SCHEDULE_INTERVAL", cfg.Server.ScheduleInterval)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)

	s := &cfg.Search
	s.MinPopulation = getEnvIntOrDefault("MIN_POPULATION_FOR_ANALYSIS", s.MinPopulation)
	s.MaxNewtonIterations = getEnvIntOrDefault("MAX_NEWTON_ITERATIONS", s.MaxNewtonIterations)
	s.Workers = getEnvIntOrDefault("SEARCH_WORKERS", s.Workers)
	s.TimeBudget = getEnvDurationOrDefault("TIME_BUDGET", s.TimeBudget)
	s.SafetyMargin = getEnvDurationOrDefault("BUDGET_SAFETY_MARGIN", s.SafetyMargin)
	s.WindowDays = getEnvIntOrDefault("ANALYSIS_WINDOW_DAYS", s.WindowDays)
	s.PersistBatchSize = getEnvIntOrDefault("PERSIST_BATCH_SIZE", s.PersistBatchSize)

	// Global per-analysis defaults, then the YAML overlay per type
	for t, a := range cfg.Analyses {
		a.MinUsersPerEntity = getEnvIntOrDefault("MIN_USERS_PER_ENTITY", a.MinUsersPerEntity)
		a.MaxEntities = getEnvIntOrDefault("MAX_ENTITIES", a.MaxEntities)
		a.RankingRule = combo.RankingRule(getEnvOrDefault("RANKING_RULE", string(a.RankingRule)))
		cfg.Analyses[t] = a
	}

	if path := os.Getenv("ANALYSES_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read analyses file %s", path)
		}
		if err := cfg.ApplyAnalysesYAML(data); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return cfg, nil
}

// ApplyAnalysesYAML overlays per-analysis settings from a YAML document
func (c *Config) ApplyAnalysesYAML(data []byte) error {
	var file analysesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, fmt.Errorf("parse analyses file: %w", err))
	}
	for name, overlay := range file.Analyses {
		t, err := combo.ParseAnalysisType(name)
		if err != nil {
			return errors.WithCode(errors.CodeConfigInvalid, err)
		}
		a := c.Analyses[t]
		if overlay.MinUsersPerEntity != nil {
			a.MinUsersPerEntity = *overlay.MinUsersPerEntity
		}
		if overlay.MaxEntities != nil {
			a.MaxEntities = *overlay.MaxEntities
		}
		if overlay.RankingRule != nil {
			a.RankingRule = combo.RankingRule(*overlay.RankingRule)
		}
		if overlay.Enabled != nil {
			a.Enabled = *overlay.Enabled
		}
		c.Analyses[t] = a
	}
	return nil
}

// Validate checks struct constraints
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, err)
	}
	if c.Search.TimeBudget > 0 && c.Search.SafetyMargin >= c.Search.TimeBudget {
		return errors.ConfigInvalid("BUDGET_SAFETY_MARGIN must be smaller than TIME_BUDGET")
	}
	return nil
}

// RequireDatabase fails when no DATABASE_URL was configured
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return errors.ConfigInvalid("DATABASE_URL is required")
	}
	return nil
}

// Analysis returns the settings for one analysis type
func (c *Config) Analysis(t combo.AnalysisType) AnalysisConfig {
	if a, ok := c.Analyses[t]; ok {
		return a
	}
	return Defaults().Analyses[t]
}

// SearchDeadline is the wall-clock budget the combination loop may use,
// zero meaning unbounded
func (c *Config) SearchDeadline() time.Duration {
	if c.Search.TimeBudget <= 0 {
		return 0
	}
	return c.Search.TimeBudget - c.Search.SafetyMargin
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
