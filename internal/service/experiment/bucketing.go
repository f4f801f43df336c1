package experiment

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/ignite/experiment-engine/internal/domain"
	"github.com/ignite/experiment-engine/internal/pkg/logger"
)

// Assign buckets a subject into a variant of an active experiment.
//
// It returns (nil, nil) whenever the subject is simply not eligible: the
// experiment is missing or inactive, target criteria are not met, the
// resolver fails (fail-closed), or the traffic-allocation draw excludes the
// subject. Ineligibility is a normal outcome, not an error.
//
// Repeat calls for an already-assigned (experiment, subject) pair return
// the existing binding unchanged. Variant selection itself is a pure
// function of the subject id, so concurrent first assignments converge to
// the same variant regardless of which write wins.
func (s *Service) Assign(ctx context.Context, experimentID, subjectID string, assignCtx map[string]string) (*domain.Assignment, error) {
	e, err := s.repo.GetExperiment(ctx, experimentID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load experiment: %w", err)
	}
	if !e.IsActive() {
		return nil, nil
	}

	existing, err := s.repo.GetAssignment(ctx, experimentID, subjectID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("load assignment: %w", err)
	}

	if !s.matchesTarget(ctx, e, subjectID) {
		logger.Debug("subject not eligible for experiment", "experiment_id", experimentID, "subject_id", subjectID)
		return nil, nil
	}

	// Traffic allocation is an independent random draw, deliberately not
	// memoized: an excluded subject may be re-sampled on a later call
	// (ramp-up friendliness). Variant choice below stays deterministic
	// regardless of when the draw passes.
	if s.sample()*100 >= e.TrafficAllocation {
		return nil, nil
	}

	v := bucketVariant(e, subjectID)
	if v == nil {
		return nil, fmt.Errorf("no variant bucket for subject in experiment %s", experimentID)
	}

	a := &domain.Assignment{
		ExperimentID: experimentID,
		SubjectID:    subjectID,
		VariantID:    v.ID,
		AssignedAt:   s.now().UTC(),
		Context:      assignCtx,
	}
	if err := s.repo.SaveAssignment(ctx, a); err != nil {
		return nil, fmt.Errorf("persist assignment: %w", err)
	}
	return a, nil
}

// GetAssignment returns the existing binding for a subject, or ErrNotFound.
func (s *Service) GetAssignment(ctx context.Context, experimentID, subjectID string) (*domain.Assignment, error) {
	return s.repo.GetAssignment(ctx, experimentID, subjectID)
}

// matchesTarget evaluates the experiment's target criteria against the
// subject's resolved attributes. Resolver failure or absence of attributes
// fails closed.
func (s *Service) matchesTarget(ctx context.Context, e *domain.Experiment, subjectID string) bool {
	if e.Target.IsEmpty() {
		return true
	}

	// No resolver means targeting attributes cannot be checked; fail closed.
	if s.resolver == nil {
		logger.Warn("experiment has target criteria but no resolver is configured", "experiment_id", e.ID)
		return false
	}

	attrs, err := s.resolver.Resolve(ctx, subjectID)
	if err != nil || attrs == nil {
		if err != nil {
			logger.Warn("subject resolution failed", "subject_id", subjectID, "error", err)
		}
		return false
	}

	if len(e.Target.Roles) > 0 && !contains(e.Target.Roles, attrs.Role) {
		return false
	}
	if len(e.Target.DeviceTypes) > 0 && !contains(e.Target.DeviceTypes, attrs.DeviceType) {
		return false
	}
	if len(e.Target.Regions) > 0 && !contains(e.Target.Regions, attrs.Region) {
		return false
	}
	for k, want := range e.Target.Custom {
		if attrs.Custom[k] != want {
			return false
		}
	}
	return true
}

// bucketVariant deterministically maps a subject to a variant: a stable
// 32-bit FNV-1a hash of the subject id reduced mod 100 is walked against
// the cumulative traffic splits in declared variant order. The same subject
// always lands in the same variant for a given experiment.
func bucketVariant(e *domain.Experiment, subjectID string) *domain.Variant {
	h := fnv.New32a()
	h.Write([]byte(subjectID))
	bucket := float64(h.Sum32() % 100)

	var cumulative float64
	for i := range e.Variants {
		cumulative += e.Variants[i].TrafficSplit
		if bucket < cumulative {
			return &e.Variants[i]
		}
	}
	// Splits sum to 100 within tolerance; a sub-tolerance shortfall can
	// leave bucket 99.x uncovered, fall back to the last variant.
	if len(e.Variants) > 0 {
		return &e.Variants[len(e.Variants)-1]
	}
	return nil
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
