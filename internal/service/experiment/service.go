package experiment

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/experiment-engine/internal/domain"
	"github.com/ignite/experiment-engine/internal/pkg/logger"
)

// Defaults applied to experiment definitions when the caller omits them.
const (
	DefaultConfidenceLevel   = 0.95
	DefaultTrafficAllocation = 100.0
	DefaultAnalysisCacheTTL  = 5 * time.Minute
)

// Service implements the experiment engine. It coordinates validation, the
// lifecycle state machine, bucketing, event recording and analysis on top
// of an injected Repository. Safe for concurrent use if the repository is.
type Service struct {
	repo     Repository
	resolver SubjectResolver
	cache    AnalysisCache
	cacheTTL time.Duration

	now    func() time.Time
	sample func() float64 // uniform draw in [0,1) for traffic allocation
}

// Option customizes a Service.
type Option func(*Service)

// WithAnalysisCache enables read-through caching of computed analyses.
func WithAnalysisCache(c AnalysisCache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSampleFunc overrides the traffic-allocation draw. Used by tests.
func WithSampleFunc(f func() float64) Option {
	return func(s *Service) { s.sample = f }
}

// NewService creates an experiment service backed by the given repository
// and identity resolver.
func NewService(repo Repository, resolver SubjectResolver, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		resolver: resolver,
		cacheTTL: DefaultAnalysisCacheTTL,
		now:      time.Now,
		sample:   rand.Float64,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create validates a proposed definition and persists it in draft status.
// Returns a ConfigurationError on the first invariant violation; nothing is
// persisted on failure.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Experiment, error) {
	if in.ConfidenceLevel == 0 {
		in.ConfidenceLevel = DefaultConfidenceLevel
	}
	if in.TrafficAllocation == 0 {
		in.TrafficAllocation = DefaultTrafficAllocation
	}
	if err := validateDefinition(in); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	e := &domain.Experiment{
		ID:                uuid.New().String(),
		Name:              in.Name,
		Description:       in.Description,
		Status:            domain.ExperimentDraft,
		Target:            in.Target,
		Metrics:           in.Metrics,
		TrafficAllocation: in.TrafficAllocation,
		ConfidenceLevel:   in.ConfidenceLevel,
		SampleSizeTarget:  in.SampleSizeTarget,
		OwnerID:           in.OwnerID,
		CompanyID:         in.CompanyID,
		Metadata:          in.Metadata,
		EndDate:           in.EndDate,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	for _, v := range in.Variants {
		e.Variants = append(e.Variants, domain.Variant{
			ID:            uuid.New().String(),
			Name:          v.Name,
			Description:   v.Description,
			TrafficSplit:  v.TrafficSplit,
			Configuration: v.Configuration,
			IsControl:     v.IsControl,
		})
	}

	if err := s.repo.CreateExperiment(ctx, e); err != nil {
		return nil, fmt.Errorf("persist experiment: %w", err)
	}
	logger.Info("experiment created", "experiment_id", e.ID, "variants", len(e.Variants))
	return e, nil
}

// Get returns a single experiment.
func (s *Service) Get(ctx context.Context, id string) (*domain.Experiment, error) {
	return s.repo.GetExperiment(ctx, id)
}

// List returns experiments matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Experiment, int, error) {
	return s.repo.ListExperiments(ctx, f)
}

// Update replaces the mutable parts of a draft experiment, re-validating
// the definition. Variants, splits and targeting are immutable once the
// experiment has left draft.
func (s *Service) Update(ctx context.Context, id string, in CreateInput) (*domain.Experiment, error) {
	e, err := s.repo.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status != domain.ExperimentDraft {
		return nil, &StateTransitionError{Reason: "Only draft tests can be edited"}
	}

	if in.ConfidenceLevel == 0 {
		in.ConfidenceLevel = e.ConfidenceLevel
	}
	if in.TrafficAllocation == 0 {
		in.TrafficAllocation = e.TrafficAllocation
	}
	if err := validateDefinition(in); err != nil {
		return nil, err
	}

	e.Name = in.Name
	e.Description = in.Description
	e.Target = in.Target
	e.Metrics = in.Metrics
	e.TrafficAllocation = in.TrafficAllocation
	e.ConfidenceLevel = in.ConfidenceLevel
	e.SampleSizeTarget = in.SampleSizeTarget
	e.Metadata = in.Metadata
	e.EndDate = in.EndDate
	e.Variants = e.Variants[:0]
	for _, v := range in.Variants {
		e.Variants = append(e.Variants, domain.Variant{
			ID:            uuid.New().String(),
			Name:          v.Name,
			Description:   v.Description,
			TrafficSplit:  v.TrafficSplit,
			Configuration: v.Configuration,
			IsControl:     v.IsControl,
		})
	}
	e.UpdatedAt = s.now().UTC()

	if err := s.repo.UpdateExperiment(ctx, e); err != nil {
		return nil, fmt.Errorf("persist experiment: %w", err)
	}
	return e, nil
}

// Start transitions a draft experiment to active and stamps StartedAt.
func (s *Service) Start(ctx context.Context, id string) (*domain.Experiment, error) {
	e, err := s.repo.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status != domain.ExperimentDraft {
		return nil, &StateTransitionError{Reason: "Only draft tests can be started"}
	}

	now := s.now().UTC()
	e.Status = domain.ExperimentActive
	e.StartedAt = &now
	e.UpdatedAt = now
	if err := s.repo.UpdateExperiment(ctx, e); err != nil {
		return nil, fmt.Errorf("persist transition: %w", err)
	}
	logger.Info("experiment started", "experiment_id", e.ID)
	return e, nil
}

// Pause suspends an active experiment. Assignment stops; existing bindings
// and results are untouched.
func (s *Service) Pause(ctx context.Context, id string) (*domain.Experiment, error) {
	e, err := s.repo.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status != domain.ExperimentActive {
		return nil, &StateTransitionError{Reason: "Only active tests can be paused"}
	}

	e.Status = domain.ExperimentPaused
	e.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateExperiment(ctx, e); err != nil {
		return nil, fmt.Errorf("persist transition: %w", err)
	}
	logger.Info("experiment paused", "experiment_id", e.ID)
	return e, nil
}

// Resume reactivates a paused experiment.
func (s *Service) Resume(ctx context.Context, id string) (*domain.Experiment, error) {
	e, err := s.repo.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status != domain.ExperimentPaused {
		return nil, &StateTransitionError{Reason: "Only paused tests can be resumed"}
	}

	e.Status = domain.ExperimentActive
	e.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateExperiment(ctx, e); err != nil {
		return nil, fmt.Errorf("persist transition: %w", err)
	}
	logger.Info("experiment resumed", "experiment_id", e.ID)
	return e, nil
}

// Complete finishes an active or paused experiment and stamps EndedAt.
// Completed is terminal.
func (s *Service) Complete(ctx context.Context, id string) (*domain.Experiment, error) {
	e, err := s.repo.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status != domain.ExperimentActive && e.Status != domain.ExperimentPaused {
		return nil, &StateTransitionError{Reason: "Only active or paused tests can be completed"}
	}

	now := s.now().UTC()
	e.Status = domain.ExperimentCompleted
	e.EndedAt = &now
	e.UpdatedAt = now
	if err := s.repo.UpdateExperiment(ctx, e); err != nil {
		return nil, fmt.Errorf("persist transition: %w", err)
	}
	logger.Info("experiment completed", "experiment_id", e.ID)
	return e, nil
}

// Delete removes an experiment and cascades to all of its assignments and
// results. Active experiments cannot be deleted.
func (s *Service) Delete(ctx context.Context, id string) error {
	e, err := s.repo.GetExperiment(ctx, id)
	if err != nil {
		return err
	}
	if e.Status == domain.ExperimentActive {
		return &InvalidOperationError{Reason: "cannot delete an active test; pause or complete it first"}
	}

	if err := s.repo.DeleteExperiment(ctx, id); err != nil {
		return fmt.Errorf("delete experiment: %w", err)
	}
	if s.cache != nil {
		if cerr := s.cache.InvalidateAnalysis(ctx, id); cerr != nil {
			logger.Warn("analysis cache invalidation failed", "experiment_id", id, "error", cerr)
		}
	}
	logger.Info("experiment deleted", "experiment_id", id)
	return nil
}
