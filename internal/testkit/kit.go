package testkit

import (
	"context"
	"slices"
	"sync"

	"combolift/domain/combo"
	"combolift/ports"
)

// TestKit bundles in-memory adapters for demos and tests
type TestKit struct {
	Loader     *StaticLoader
	Repository *InMemoryPatternRepository
	Directory  *InMemoryEntityDirectory
}

// NewTestKit creates a kit serving rows, with names registered in the directory
func NewTestKit(rows []combo.EngagementRow, names map[string]map[string]string) *TestKit {
	dir := NewInMemoryEntityDirectory()
	for kind, byID := range names {
		for id, name := range byID {
			dir.Register(kind, id, name)
		}
	}
	return &TestKit{
		Loader:     NewStaticLoader(rows),
		Repository: NewInMemoryPatternRepository(),
		Directory:  dir,
	}
}

// StaticLoader serves a fixed rowset, honouring the window on dated rows
type StaticLoader struct {
	rows []combo.EngagementRow
}

var _ ports.EngagementLoader = (*StaticLoader)(nil)

func NewStaticLoader(rows []combo.EngagementRow) *StaticLoader {
	return &StaticLoader{rows: rows}
}

func (l *StaticLoader) LoadEngagement(ctx context.Context, window ports.Window) ([]combo.EngagementRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]combo.EngagementRow, 0, len(l.rows))
	for _, r := range l.rows {
		if r.EventDate.IsZero() || window.Contains(r.EventDate) {
			out = append(out, r)
		}
	}
	return out, nil
}

// InMemoryPatternRepository keeps results and run history in process
type InMemoryPatternRepository struct {
	results map[combo.AnalysisType][]combo.CombinationResult
	runs    []ports.RunRecord
	mu      sync.RWMutex
}

var _ ports.PatternRepository = (*InMemoryPatternRepository)(nil)

func NewInMemoryPatternRepository() *InMemoryPatternRepository {
	return &InMemoryPatternRepository{
		results: make(map[combo.AnalysisType][]combo.CombinationResult),
	}
}

func (r *InMemoryPatternRepository) ReplaceResults(_ context.Context, t combo.AnalysisType, results []combo.CombinationResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[t] = slices.Clone(results)
	return nil
}

func (r *InMemoryPatternRepository) ListResults(_ context.Context, t combo.AnalysisType, limit int) ([]combo.CombinationResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored := r.results[t]
	if limit > 0 && limit < len(stored) {
		stored = stored[:limit]
	}
	return slices.Clone(stored), nil
}

func (r *InMemoryPatternRepository) RecordRun(_ context.Context, run ports.RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return nil
}

func (r *InMemoryPatternRepository) LatestRun(_ context.Context, t combo.AnalysisType) (*ports.RunRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *ports.RunRecord
	for i := range r.runs {
		run := r.runs[i]
		if run.AnalysisType != t {
			continue
		}
		if latest == nil || !run.StartedAt.Before(latest.StartedAt) {
			latest = &run
		}
	}
	return latest, nil
}

// Runs returns every recorded run in insertion order
func (r *InMemoryPatternRepository) Runs() []ports.RunRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.runs)
}

// InMemoryEntityDirectory maps (kind, id) to a display name
type InMemoryEntityDirectory struct {
	names map[string]map[string]string
	mu    sync.RWMutex
}

var _ ports.EntityDirectory = (*InMemoryEntityDirectory)(nil)

func NewInMemoryEntityDirectory() *InMemoryEntityDirectory {
	return &InMemoryEntityDirectory{names: make(map[string]map[string]string)}
}

func (d *InMemoryEntityDirectory) Register(kind, id, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.names[kind] == nil {
		d.names[kind] = make(map[string]string)
	}
	d.names[kind][id] = name
}

func (d *InMemoryEntityDirectory) DisplayNames(_ context.Context, kind string, ids []string) (map[string]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if name, ok := d.names[kind][id]; ok {
			out[id] = name
		}
	}
	return out, nil
}
