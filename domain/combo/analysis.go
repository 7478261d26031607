package combo

import (
	"fmt"
	"time"
)

// AnalysisType selects which exposure and which outcome a run studies
type AnalysisType string

const (
	// SubscriptionPairs: does seeing two creators predict a subscription
	SubscriptionPairs AnalysisType = "subscription_pairs"
	// CopyPairs: does seeing two portfolios predict a copy
	CopyPairs AnalysisType = "copy_pairs"
	// CreatorCopyPairs: does seeing two creators predict a copy
	CreatorCopyPairs AnalysisType = "creator_copy_pairs"
)

// AnalysisTypes lists every supported analysis in a stable order
func AnalysisTypes() []AnalysisType {
	return []AnalysisType{SubscriptionPairs, CopyPairs, CreatorCopyPairs}
}

// ParseAnalysisType validates an analysis type name
func ParseAnalysisType(s string) (AnalysisType, error) {
	for _, t := range AnalysisTypes() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAnalysisType, s)
}

// EntityKind is the kind of content unit an analysis pairs up
func (t AnalysisType) EntityKind() string {
	if t == CopyPairs {
		return "portfolio"
	}
	return "creator"
}

// RankingRule orders surviving combinations
type RankingRule string

const (
	RankByAIC           RankingRule = "aic_ascending"
	RankByExpectedValue RankingRule = "lift_times_conversions_descending"
)

// ParseRankingRule validates a ranking rule name
func ParseRankingRule(s string) (RankingRule, error) {
	switch RankingRule(s) {
	case RankByAIC, RankByExpectedValue:
		return RankingRule(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRankingRule, s)
}

// EngagementRow is one user/creator/portfolio engagement summary as delivered
// by the ETL layer for the analysis window.
type EngagementRow struct {
	UserID            string    `db:"user_id"`
	CreatorID         string    `db:"creator_id"`
	PortfolioTicker   string    `db:"portfolio_ticker"`
	ProfileViews      int       `db:"profile_views"`
	PDPViews          int       `db:"pdp_views"`
	DidSubscribe      bool      `db:"did_subscribe"`
	SubscriptionCount int       `db:"subscription_count"`
	DidCopy           bool      `db:"did_copy"`
	CopyCount         int       `db:"copy_count"`
	EventDate         time.Time `db:"event_date"`
}

// Extractor pairs an entity extraction with an outcome extraction
type Extractor struct {
	Entity  func(EngagementRow) (entityID string, exposure int)
	Outcome func(EngagementRow) (converted bool, count int)
}

// Observation maps a row to an observation; the result may be invalid
func (e Extractor) Observation(row EngagementRow) Observation {
	entity, exposure := e.Entity(row)
	converted, count := e.Outcome(row)
	return Observation{
		UserID:        row.UserID,
		EntityID:      entity,
		ExposureCount: exposure,
		Converted:     converted,
		OutcomeCount:  count,
	}
}

// Observations maps rows and drops the ones missing a user or entity key
func (e Extractor) Observations(rows []EngagementRow) []Observation {
	out := make([]Observation, 0, len(rows))
	for _, row := range rows {
		obs := e.Observation(row)
		if !obs.Valid() {
			continue
		}
		out = append(out, obs)
	}
	return out
}

func creatorExposure(r EngagementRow) (string, int)   { return r.CreatorID, r.ProfileViews }
func portfolioExposure(r EngagementRow) (string, int) { return r.PortfolioTicker, r.PDPViews }
func subscribed(r EngagementRow) (bool, int)          { return r.DidSubscribe, r.SubscriptionCount }
func copied(r EngagementRow) (bool, int)              { return r.DidCopy, r.CopyCount }

// ExtractorFor returns the extraction strategy for an analysis type
func ExtractorFor(t AnalysisType) (Extractor, error) {
	switch t {
	case SubscriptionPairs:
		return Extractor{Entity: creatorExposure, Outcome: subscribed}, nil
	case CopyPairs:
		return Extractor{Entity: portfolioExposure, Outcome: copied}, nil
	case CreatorCopyPairs:
		return Extractor{Entity: creatorExposure, Outcome: copied}, nil
	}
	return Extractor{}, fmt.Errorf("%w: %q", ErrUnknownAnalysisType, t)
}
