package testkit

import (
	"fmt"
	"math/rand"
	"slices"
	"time"

	"combolift/domain/combo"
)

// EngagementGeneratorConfig configures the synthetic engagement generator
type EngagementGeneratorConfig struct {
	UserCount      int     `json:"user_count"`
	CreatorCount   int     `json:"creator_count"`
	PortfolioCount int     `json:"portfolio_count"`
	MaxCreators    int     `json:"max_creators_per_user"`
	MaxPortfolios  int     `json:"max_portfolios_per_user"`
	BaseRate       float64 `json:"base_rate"`
	// PlantedRate applies to users who saw both planted entities
	PlantedRate float64   `json:"planted_rate"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	Seed        int64     `json:"seed"`
}

// DefaultEngagementConfig covers the 30 days before now
func DefaultEngagementConfig() EngagementGeneratorConfig {
	now := time.Now().UTC()
	return EngagementGeneratorConfig{
		UserCount:      2000,
		CreatorCount:   30,
		PortfolioCount: 20,
		MaxCreators:    6,
		MaxPortfolios:  4,
		BaseRate:       0.03,
		PlantedRate:    0.7,
		StartDate:      now.AddDate(0, 0, -30),
		EndDate:        now,
		Seed:           42,
	}
}

// EngagementGenerator produces engagement rows with one planted creator
// pair and one planted portfolio pair
type EngagementGenerator struct {
	config EngagementGeneratorConfig
	rng    *rand.Rand
}

// NewEngagementGenerator creates a generator; equal seeds give equal output
func NewEngagementGenerator(config EngagementGeneratorConfig) *EngagementGenerator {
	return &EngagementGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

func CreatorID(i int) string   { return fmt.Sprintf("creator_%03d", i) }
func PortfolioID(i int) string { return fmt.Sprintf("PF%03d", i) }

// PlantedCreators is the creator pair whose joint viewers subscribe and copy at PlantedRate
func PlantedCreators() combo.Combination {
	return combo.Combination{A: CreatorID(0), B: CreatorID(1)}
}

// PlantedPortfolios is the portfolio pair whose joint viewers copy at PlantedRate
func PlantedPortfolios() combo.Combination {
	return combo.Combination{A: PortfolioID(0), B: PortfolioID(1)}
}

// Generate returns one row per (user, creator) and per (user, portfolio) seen
func (g *EngagementGenerator) Generate() []combo.EngagementRow {
	var rows []combo.EngagementRow
	for i := 0; i < g.config.UserCount; i++ {
		rows = append(rows, g.generateUser(fmt.Sprintf("user_%05d", i+1))...)
	}
	return rows
}

func (g *EngagementGenerator) generateUser(userID string) []combo.EngagementRow {
	creators := g.pick(g.config.CreatorCount, g.config.MaxCreators)
	portfolios := g.pick(g.config.PortfolioCount, g.config.MaxPortfolios)

	sawCreators := slices.Contains(creators, 0) && slices.Contains(creators, 1)
	sawPortfolios := slices.Contains(portfolios, 0) && slices.Contains(portfolios, 1)

	subscribeRate := g.config.BaseRate
	if sawCreators {
		subscribeRate = g.config.PlantedRate
	}
	copyRate := g.config.BaseRate
	if sawCreators || sawPortfolios {
		copyRate = g.config.PlantedRate
	}

	didSubscribe := g.rng.Float64() < subscribeRate
	didCopy := g.rng.Float64() < copyRate
	subscriptions, copies := 0, 0
	if didSubscribe {
		subscriptions = 1 + g.rng.Intn(3)
	}
	if didCopy {
		copies = 1 + g.rng.Intn(3)
	}

	var rows []combo.EngagementRow
	for _, idx := range creators {
		rows = append(rows, combo.EngagementRow{
			UserID:            userID,
			CreatorID:         CreatorID(idx),
			ProfileViews:      1 + g.rng.Intn(5),
			DidSubscribe:      didSubscribe,
			SubscriptionCount: subscriptions,
			DidCopy:           didCopy,
			CopyCount:         copies,
			EventDate:         g.randomTime(),
		})
	}
	for _, idx := range portfolios {
		rows = append(rows, combo.EngagementRow{
			UserID:            userID,
			PortfolioTicker:   PortfolioID(idx),
			PDPViews:          1 + g.rng.Intn(5),
			DidSubscribe:      didSubscribe,
			SubscriptionCount: subscriptions,
			DidCopy:           didCopy,
			CopyCount:         copies,
			EventDate:         g.randomTime(),
		})
	}
	return rows
}

// pick draws 1..limit distinct indices below n, skewed towards low indices
// so the first entities are the most popular. The result is sorted.
func (g *EngagementGenerator) pick(n, limit int) []int {
	if n <= 0 || limit <= 0 {
		return nil
	}
	want := min(1+g.rng.Intn(limit), n)
	seen := make(map[int]bool, want)
	picked := make([]int, 0, want)
	for len(picked) < want {
		r := g.rng.Float64()
		idx := int(float64(n) * r * r)
		if !seen[idx] {
			seen[idx] = true
			picked = append(picked, idx)
		}
	}
	slices.Sort(picked)
	return picked
}

func (g *EngagementGenerator) randomTime() time.Time {
	span := g.config.EndDate.Sub(g.config.StartDate)
	if span <= 0 {
		return g.config.StartDate
	}
	return g.config.StartDate.Add(time.Duration(g.rng.Int63n(int64(span))))
}

// DisplayNames returns directory entries for every generated entity, keyed by entity kind
func (g *EngagementGenerator) DisplayNames() map[string]map[string]string {
	creators := make(map[string]string, g.config.CreatorCount)
	for i := 0; i < g.config.CreatorCount; i++ {
		creators[CreatorID(i)] = fmt.Sprintf("Creator %d", i)
	}
	portfolios := make(map[string]string, g.config.PortfolioCount)
	for i := 0; i < g.config.PortfolioCount; i++ {
		portfolios[PortfolioID(i)] = fmt.Sprintf("Portfolio %d", i)
	}
	return map[string]map[string]string{
		combo.SubscriptionPairs.EntityKind(): creators,
		combo.CopyPairs.EntityKind():         portfolios,
	}
}
