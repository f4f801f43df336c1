package experiment

import (
	"context"
	"time"

	"github.com/ignite/experiment-engine/internal/domain"
)

// Repository defines the data access contract for experiments, assignments
// and results. Implementations must be safe for concurrent use. The durable
// store is the source of truth; any in-process structure is a read-through
// cache only.
type Repository interface {
	// CreateExperiment persists a new experiment.
	CreateExperiment(ctx context.Context, e *domain.Experiment) error

	// GetExperiment returns a single experiment. Returns ErrNotFound if it
	// doesn't exist.
	GetExperiment(ctx context.Context, id string) (*domain.Experiment, error)

	// ListExperiments returns experiments matching the filter, newest first,
	// plus the total match count before pagination.
	ListExperiments(ctx context.Context, f ListFilter) ([]domain.Experiment, int, error)

	// UpdateExperiment replaces the stored experiment record.
	UpdateExperiment(ctx context.Context, e *domain.Experiment) error

	// DeleteExperiment removes the experiment and cascades to all of its
	// assignments and results. Never partial.
	DeleteExperiment(ctx context.Context, id string) error

	// GetAssignment returns the binding for (experiment, subject), or
	// ErrNotFound if the subject was never assigned.
	GetAssignment(ctx context.Context, experimentID, subjectID string) (*domain.Assignment, error)

	// SaveAssignment persists an assignment. Idempotent-set semantics:
	// concurrent writers for the same pair may both succeed; because variant
	// selection is deterministic they converge to the same binding.
	SaveAssignment(ctx context.Context, a *domain.Assignment) error

	// ListAssignments returns every assignment for an experiment.
	ListAssignments(ctx context.Context, experimentID string) ([]domain.Assignment, error)

	// AppendResult appends an outcome event. Results are never mutated.
	AppendResult(ctx context.Context, r *domain.Result) error

	// ListResults returns every recorded result for an experiment.
	ListResults(ctx context.Context, experimentID string) ([]domain.Result, error)
}

// AnalysisCache optionally memoizes computed analyses with a short TTL.
// It is a performance optimization, never a correctness mechanism: a miss
// must always be answered by recomputing from the Repository.
type AnalysisCache interface {
	GetAnalysis(ctx context.Context, experimentID string) (*domain.Analysis, error)
	PutAnalysis(ctx context.Context, a *domain.Analysis, ttl time.Duration) error
	InvalidateAnalysis(ctx context.Context, experimentID string) error
}

// SubjectResolver is the external identity/targeting collaborator. A lookup
// failure or an unknown subject must result in a nil-attribute response or
// an error; the engine treats both as "not eligible" (fail-closed).
type SubjectResolver interface {
	Resolve(ctx context.Context, subjectID string) (*domain.SubjectAttributes, error)
}

// ListFilter controls pagination and filtering for experiment lists.
type ListFilter struct {
	Status    string
	CompanyID string
	Limit     int
	Offset    int
}
