package combo

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RunID identifies a single analysis run
type RunID string

// NewRunID creates a time-ordered run identifier (UUID v7, v4 fallback)
func NewRunID() RunID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return RunID(id.String())
}

// ParseRunID validates a run id received from outside the process
func ParseRunID(s string) (RunID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("run ID cannot be empty")
	}
	if _, err := uuid.Parse(s); err != nil {
		return "", fmt.Errorf("invalid run ID %q: %w", s, err)
	}
	return RunID(s), nil
}

func (id RunID) String() string { return string(id) }

// Observation is one (user, entity) exposure row with the user's outcome
type Observation struct {
	UserID        string `json:"user_id"`
	EntityID      string `json:"entity_id"`
	ExposureCount int    `json:"exposure_count"`
	Converted     bool   `json:"outcome_flag"`
	OutcomeCount  int    `json:"outcome_count"`
}

// Valid reports whether the row carries both keys
func (o Observation) Valid() bool {
	return o.UserID != "" && o.EntityID != ""
}

// UserRecord collapses every observation of one user.
// The exposure set is the key set of Exposures; values are summed exposure counts.
type UserRecord struct {
	UserID       string
	Exposures    map[string]int
	Converted    bool
	OutcomeTotal int
}

// ExposedTo reports whether the user saw the entity
func (u *UserRecord) ExposedTo(entityID string) bool {
	_, ok := u.Exposures[entityID]
	return ok
}

// ExposedToBoth reports whether the user's exposure set contains both entities of c
func (u *UserRecord) ExposedToBoth(c Combination) bool {
	return u.ExposedTo(c.A) && u.ExposedTo(c.B)
}

// EntityCount returns the size of the exposure set
func (u *UserRecord) EntityCount() int {
	return len(u.Exposures)
}

// CandidateEntity is an entity that survived the exposure threshold
type CandidateEntity struct {
	EntityID          string `json:"entity_id"`
	ExposureUserCount int    `json:"exposure_user_count"`
}

// Combination is an unordered pair of distinct entities
type Combination struct {
	A string `json:"entity_id_1"`
	B string `json:"entity_id_2"`
}

func (c Combination) String() string {
	return c.A + "+" + c.B
}

// Key returns an order-independent identity for the pair
func (c Combination) Key() string {
	if c.A > c.B {
		return c.B + "+" + c.A
	}
	return c.String()
}

// CombinationResult is the scored outcome for one combination.
// Created once per combination and never mutated after ranking.
type CombinationResult struct {
	Rank                  int         `json:"rank"`
	Combination           Combination `json:"combination"`
	DisplayName1          string      `json:"display_name_1"`
	DisplayName2          string      `json:"display_name_2"`
	Beta0                 float64     `json:"beta0"`
	Beta1                 float64     `json:"beta1"`
	Iterations            int         `json:"iterations"`
	LogLikelihood         float64     `json:"log_likelihood"`
	AIC                   float64     `json:"aic"`
	OddsRatio             float64     `json:"odds_ratio"`
	LikelihoodRatioP      float64     `json:"likelihood_ratio_p"`
	Precision             float64     `json:"precision"`
	Recall                float64     `json:"recall"`
	Lift                  float64     `json:"lift"`
	UsersWithExposure     int         `json:"users_with_exposure"`
	ConversionRateInGroup float64     `json:"conversion_rate_in_group"`
	OverallConversionRate float64     `json:"overall_conversion_rate"`
	TotalConversions      int         `json:"total_conversions"`
	TotalViews1           int         `json:"total_views_1"`
	TotalViews2           int         `json:"total_views_2"`
	TotalOutcomes         int         `json:"total_outcomes"`
	AnalyzedAt            time.Time   `json:"analyzed_at"`
}

// ExpectedValue is the business score lift * total_conversions
func (r CombinationResult) ExpectedValue() float64 {
	return r.Lift * float64(r.TotalConversions)
}

// Keep applies the business keep rule: at least one exposed user and one conversion among them
func Keep(r CombinationResult) bool {
	return r.UsersWithExposure > 0 && r.TotalConversions > 0
}

// RunStatus describes how a run ended
type RunStatus string

const (
	RunCompleted        RunStatus = "completed"
	RunPartial          RunStatus = "partial"
	RunInsufficientData RunStatus = "insufficient_data"
)

// RunReport is what every caller gets back from a run: a ranked list,
// an insufficient-data notice, or a partial result with its coverage.
type RunReport struct {
	RunID             RunID               `json:"run_id"`
	AnalysisType      AnalysisType        `json:"analysis_type"`
	RankingRule       RankingRule         `json:"ranking_rule"`
	Status            RunStatus           `json:"status"`
	Warning           string              `json:"warning,omitempty"`
	Population        int                 `json:"population"`
	Candidates        int                 `json:"candidates"`
	TotalCombinations int                 `json:"total_combinations"`
	Evaluated         int                 `json:"evaluated"`
	Coverage          float64             `json:"coverage"`
	Kept              int                 `json:"kept"`
	Results           []CombinationResult `json:"results"`
	StartedAt         time.Time           `json:"started_at"`
	FinishedAt        time.Time           `json:"finished_at"`
}

// Duration returns the wall-clock length of the run
func (r *RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
