// Package memory implements the experiment Repository and AnalysisCache on
// plain in-process maps. It backs unit tests and serves as a fallback when
// no durable store is configured; it is not durable.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ignite/experiment-engine/internal/domain"
	"github.com/ignite/experiment-engine/internal/service/experiment"
)

// Repository is a concurrency-safe in-memory store.
type Repository struct {
	mu          sync.RWMutex
	experiments map[string]*domain.Experiment
	assignments map[string]map[string]*domain.Assignment // experimentID -> subjectID
	results     map[string][]domain.Result
	analyses    map[string]cachedAnalysis
}

type cachedAnalysis struct {
	analysis *domain.Analysis
	expires  time.Time
}

// New creates an empty in-memory repository.
func New() *Repository {
	return &Repository{
		experiments: make(map[string]*domain.Experiment),
		assignments: make(map[string]map[string]*domain.Assignment),
		results:     make(map[string][]domain.Result),
		analyses:    make(map[string]cachedAnalysis),
	}
}

func (m *Repository) CreateExperiment(_ context.Context, e *domain.Experiment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := cloneExperiment(e)
	m.experiments[e.ID] = cp
	return nil
}

func (m *Repository) GetExperiment(_ context.Context, id string) (*domain.Experiment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.experiments[id]
	if !ok {
		return nil, experiment.ErrNotFound
	}
	return cloneExperiment(e), nil
}

func (m *Repository) ListExperiments(_ context.Context, f experiment.ListFilter) ([]domain.Experiment, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Experiment
	for _, e := range m.experiments {
		if f.Status != "" && string(e.Status) != f.Status {
			continue
		}
		if f.CompanyID != "" && e.CompanyID != f.CompanyID {
			continue
		}
		out = append(out, *cloneExperiment(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	total := len(out)
	if f.Offset >= len(out) {
		return nil, total, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (m *Repository) UpdateExperiment(_ context.Context, e *domain.Experiment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.experiments[e.ID]; !ok {
		return experiment.ErrNotFound
	}
	m.experiments[e.ID] = cloneExperiment(e)
	return nil
}

func (m *Repository) DeleteExperiment(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.experiments[id]; !ok {
		return experiment.ErrNotFound
	}
	delete(m.experiments, id)
	delete(m.assignments, id)
	delete(m.results, id)
	delete(m.analyses, id)
	return nil
}

func (m *Repository) GetAssignment(_ context.Context, experimentID, subjectID string) (*domain.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assignments[experimentID][subjectID]
	if !ok {
		return nil, experiment.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *Repository) SaveAssignment(_ context.Context, a *domain.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byExp, ok := m.assignments[a.ExperimentID]
	if !ok {
		byExp = make(map[string]*domain.Assignment)
		m.assignments[a.ExperimentID] = byExp
	}
	// First write wins; a concurrent duplicate carries the same variant.
	if _, exists := byExp[a.SubjectID]; exists {
		return nil
	}
	cp := *a
	byExp[a.SubjectID] = &cp
	return nil
}

func (m *Repository) ListAssignments(_ context.Context, experimentID string) ([]domain.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Assignment
	for _, a := range m.assignments[experimentID] {
		out = append(out, *a)
	}
	return out, nil
}

func (m *Repository) AppendResult(_ context.Context, r *domain.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[r.ExperimentID] = append(m.results[r.ExperimentID], *r)
	return nil
}

func (m *Repository) ListResults(_ context.Context, experimentID string) ([]domain.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Result, len(m.results[experimentID]))
	copy(out, m.results[experimentID])
	return out, nil
}

func (m *Repository) GetAnalysis(_ context.Context, experimentID string) (*domain.Analysis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.analyses[experimentID]
	if !ok || time.Now().After(c.expires) {
		return nil, nil
	}
	cp := *c.analysis
	return &cp, nil
}

func (m *Repository) PutAnalysis(_ context.Context, a *domain.Analysis, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.analyses[a.ExperimentID] = cachedAnalysis{analysis: &cp, expires: time.Now().Add(ttl)}
	return nil
}

func (m *Repository) InvalidateAnalysis(_ context.Context, experimentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.analyses, experimentID)
	return nil
}

func cloneExperiment(e *domain.Experiment) *domain.Experiment {
	cp := *e
	cp.Variants = append([]domain.Variant(nil), e.Variants...)
	return &cp
}
