package experiment

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/experiment-engine/internal/domain"
	"github.com/ignite/experiment-engine/internal/pkg/logger"
)

// Record appends an outcome event for a subject. If the subject has no
// assignment in this experiment the call is a silent no-op: subjects never
// exposed to the experiment must not pollute its results, and the absence
// of an assignment must not leak through an error channel.
//
// The variant is always taken from the stored assignment; callers cannot
// attribute a result to an arbitrary variant.
func (s *Service) Record(ctx context.Context, experimentID, subjectID, metric string, value float64, metadata map[string]string) error {
	a, err := s.repo.GetAssignment(ctx, experimentID, subjectID)
	if errors.Is(err, ErrNotFound) {
		logger.Debug("event for unassigned subject dropped", "experiment_id", experimentID, "subject_id", subjectID, "metric", metric)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load assignment: %w", err)
	}

	r := &domain.Result{
		ExperimentID: experimentID,
		VariantID:    a.VariantID,
		SubjectID:    subjectID,
		Metric:       metric,
		Value:        value,
		Metadata:     metadata,
		RecordedAt:   s.now().UTC(),
	}
	if err := s.repo.AppendResult(ctx, r); err != nil {
		return fmt.Errorf("append result: %w", err)
	}
	return nil
}

// RecordConversion records a conversion event of the given type using the
// fixed "conversion_<type>" metric convention.
func (s *Service) RecordConversion(ctx context.Context, experimentID, subjectID, conversionType string, metadata map[string]string) error {
	return s.Record(ctx, experimentID, subjectID, domain.MetricConversionPrefix+conversionType, 1, metadata)
}

// RecordRevenue records a revenue event under the fixed "revenue" metric.
func (s *Service) RecordRevenue(ctx context.Context, experimentID, subjectID string, amount float64, metadata map[string]string) error {
	return s.Record(ctx, experimentID, subjectID, domain.MetricRevenue, amount, metadata)
}
