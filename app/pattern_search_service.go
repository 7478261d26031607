package app

import (
	"context"
	"fmt"
	"time"

	"combolift/adapters/stats/evaluator"
	"combolift/domain/combo"
	"combolift/internal"
	"combolift/internal/config"
	"combolift/internal/errors"
	"combolift/internal/metrics"
	"combolift/ports"

	"golang.org/x/sync/errgroup"
)

// flushTimeout bounds result persistence after the caller's context has ended
const flushTimeout = 30 * time.Second

// SearchOptions are the resolved settings for one run
type SearchOptions struct {
	MinPopulation       int
	MinUsersPerEntity   int
	MaxEntities         int
	MaxNewtonIterations int
	Workers             int
	RankingRule         combo.RankingRule
	WindowDays          int
	// SearchBudget is the run's time budget less the safety margin, counted
	// from the start of the run; zero means unbounded
	SearchBudget time.Duration
}

// OptionsFor resolves configuration for one analysis type
func OptionsFor(cfg *config.Config, t combo.AnalysisType) SearchOptions {
	a := cfg.Analysis(t)
	return SearchOptions{
		MinPopulation:       cfg.Search.MinPopulation,
		MinUsersPerEntity:   a.MinUsersPerEntity,
		MaxEntities:         a.MaxEntities,
		MaxNewtonIterations: cfg.Search.MaxNewtonIterations,
		Workers:             cfg.Search.Workers,
		RankingRule:         a.RankingRule,
		WindowDays:          cfg.Search.WindowDays,
		SearchBudget:        cfg.SearchDeadline(),
	}
}

// PatternSearchService runs the load → aggregate → filter → search → rank → persist pipeline
type PatternSearchService struct {
	loader    ports.EngagementLoader
	repo      ports.PatternRepository
	directory ports.EntityDirectory
	cfg       *config.Config
	logger    *internal.Logger
	now       func() time.Time
}

// NewPatternSearchService wires the service; directory may be nil
func NewPatternSearchService(loader ports.EngagementLoader, repo ports.PatternRepository, directory ports.EntityDirectory, cfg *config.Config) *PatternSearchService {
	return &PatternSearchService{
		loader:    loader,
		repo:      repo,
		directory: directory,
		cfg:       cfg,
		logger:    internal.DefaultLogger.With("pattern-search"),
		now:       time.Now,
	}
}

// Run executes one analysis. Insufficient data and an exhausted time budget
// are reported through the returned RunReport; only loader and persistence
// failures come back as errors.
func (s *PatternSearchService) Run(ctx context.Context, analysisType combo.AnalysisType) (*combo.RunReport, error) {
	extractor, err := combo.ExtractorFor(analysisType)
	if err != nil {
		return nil, errors.WithCode(errors.CodeInvalidInput, err)
	}
	opts := OptionsFor(s.cfg, analysisType)

	report := &combo.RunReport{
		RunID:        combo.NewRunID(),
		AnalysisType: analysisType,
		RankingRule:  opts.RankingRule,
		StartedAt:    s.now().UTC(),
		Results:      []combo.CombinationResult{},
	}
	s.logger.Info("run %s started: analysis=%s rule=%s", report.RunID, analysisType, opts.RankingRule)

	// Loading and aggregation are charged against the budget too
	var deadline time.Time
	if opts.SearchBudget > 0 {
		deadline = report.StartedAt.Add(opts.SearchBudget)
	}

	window := ports.TrailingWindow(s.now(), opts.WindowDays)
	rows, err := s.loader.LoadEngagement(ctx, window)
	if err != nil {
		return nil, errors.UpstreamIO("load engagement", err)
	}

	pop := combo.AggregateUsers(extractor.Observations(rows))
	report.Population = pop.Size()
	s.logger.Debug("run %s: %d rows aggregated into %d users", report.RunID, len(rows), pop.Size())

	if pop.Size() < opts.MinPopulation {
		report.Status = combo.RunInsufficientData
		report.Warning = fmt.Sprintf("%v: %d users, need %d", combo.ErrInsufficientPopulation, pop.Size(), opts.MinPopulation)
		return s.finish(ctx, report, false)
	}

	candidates := combo.FilterEntities(pop, opts.MinUsersPerEntity, opts.MaxEntities)
	report.Candidates = len(candidates)
	if len(candidates) < 2 {
		report.Status = combo.RunInsufficientData
		report.Warning = fmt.Sprintf("%v: %d survived min_users=%d", combo.ErrInsufficientCandidates, len(candidates), opts.MinUsersPerEntity)
		return s.finish(ctx, report, false)
	}

	ids := combo.EntityIDs(candidates)
	report.TotalCombinations = combo.PairCount(len(ids))

	ev := evaluator.New(pop, opts.MaxNewtonIterations)
	if ev.OverallConversionRate() == 0 {
		s.logger.Warn("run %s: no converters among %d users, every lift will be 0", report.RunID, pop.Size())
	}
	results, evaluated := Search(ctx, ev, ids, opts.Workers, deadline)
	report.Evaluated = evaluated
	report.Coverage = float64(evaluated) / float64(report.TotalCombinations)
	metrics.CombinationsEvaluated.WithLabelValues(string(analysisType)).Add(float64(evaluated))

	if evaluated < report.TotalCombinations {
		report.Status = combo.RunPartial
		report.Warning = fmt.Sprintf("search stopped early: evaluated %d of %d combinations (%.1f%% coverage)",
			evaluated, report.TotalCombinations, report.Coverage*100)
		s.logger.Warn("run %s: %s", report.RunID, report.Warning)
	} else {
		report.Status = combo.RunCompleted
	}

	kept := KeepResults(results)
	if err := Rank(kept, opts.RankingRule); err != nil {
		return nil, errors.WithCode(errors.CodeInvalidInput, err)
	}
	s.attachDisplayNames(ctx, analysisType, kept)
	report.Results = kept
	report.Kept = len(kept)
	metrics.CombinationsKept.WithLabelValues(string(analysisType)).Add(float64(len(kept)))

	// A run stopped before its first evaluation leaves the previous ranking in place
	return s.finish(ctx, report, evaluated > 0)
}

// RunAll runs every enabled analysis type in sequence; one failing
// analysis does not prevent the others from running
func (s *PatternSearchService) RunAll(ctx context.Context) ([]*combo.RunReport, error) {
	var reports []*combo.RunReport
	var errs []error
	for _, t := range combo.AnalysisTypes() {
		if !s.cfg.Analysis(t).Enabled {
			s.logger.Debug("skipping disabled analysis %s", t)
			continue
		}
		report, err := s.Run(ctx, t)
		if err != nil {
			s.logger.Error("analysis %s failed: %v", t, err)
			errs = append(errs, errors.Wrapf(err, "analysis %s", t))
			continue
		}
		reports = append(reports, report)
	}
	return reports, errors.Join(errs...)
}

// Search evaluates every pair of ids with a bounded worker pool. When the
// deadline passes or the caller's context ends, dispatch stops and whatever
// has been evaluated is returned together with the count. A zero deadline
// means unbounded.
func Search(ctx context.Context, ev *evaluator.Evaluator, ids []string, workers int, deadline time.Time) ([]combo.CombinationResult, int) {
	if workers < 1 {
		workers = 1
	}
	searchCtx := ctx
	if !deadline.IsZero() {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	total := combo.PairCount(len(ids))
	slots := make([]combo.CombinationResult, total)
	done := make([]bool, total)

	// Workers write only to their own slot, so nothing is shared while the group runs
	var g errgroup.Group
	g.SetLimit(workers)
	i := 0
	for c := range combo.Pairs(ids) {
		if searchCtx.Err() != nil {
			break
		}
		idx := i
		pair := c
		g.Go(func() error {
			if searchCtx.Err() != nil {
				return nil
			}
			slots[idx] = ev.Evaluate(pair)
			done[idx] = true
			return nil
		})
		i++
	}
	_ = g.Wait()

	results := make([]combo.CombinationResult, 0, total)
	for idx, ok := range done {
		if ok {
			results = append(results, slots[idx])
		}
	}
	return results, len(results)
}

func (s *PatternSearchService) attachDisplayNames(ctx context.Context, analysisType combo.AnalysisType, results []combo.CombinationResult) {
	if len(results) == 0 {
		return
	}

	seen := make(map[string]bool)
	var ids []string
	for _, r := range results {
		for _, id := range []string{r.Combination.A, r.Combination.B} {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	names := map[string]string{}
	if s.directory != nil && ctx.Err() == nil {
		resolved, err := s.directory.DisplayNames(ctx, analysisType.EntityKind(), ids)
		if err != nil {
			s.logger.Warn("display name lookup failed, falling back to ids: %v", err)
		} else {
			names = resolved
		}
	}

	for i := range results {
		results[i].DisplayName1 = displayName(names, results[i].Combination.A)
		results[i].DisplayName2 = displayName(names, results[i].Combination.B)
	}
}

func displayName(names map[string]string, id string) string {
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return id
}

// finish stamps the report, persists it and records metrics. Persistence
// runs on a context detached from the caller so a run cut short by its
// deadline still flushes what it produced.
func (s *PatternSearchService) finish(ctx context.Context, report *combo.RunReport, replaceResults bool) (*combo.RunReport, error) {
	report.FinishedAt = s.now().UTC()

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()

	if replaceResults {
		if err := s.repo.ReplaceResults(flushCtx, report.AnalysisType, report.Results); err != nil {
			return nil, errors.UpstreamIO("persist results", err)
		}
	}
	if err := s.repo.RecordRun(flushCtx, ports.NewRunRecord(report)); err != nil {
		return nil, errors.UpstreamIO("record run", err)
	}

	label := string(report.AnalysisType)
	metrics.RunsTotal.WithLabelValues(label, string(report.Status)).Inc()
	metrics.RunDuration.WithLabelValues(label).Observe(report.Duration().Seconds())
	metrics.SearchCoverage.WithLabelValues(label).Set(report.Coverage)

	s.logger.Info("run %s finished: status=%s population=%d candidates=%d evaluated=%d/%d kept=%d in %s",
		report.RunID, report.Status, report.Population, report.Candidates,
		report.Evaluated, report.TotalCombinations, report.Kept, report.Duration())
	return report, nil
}
