package domain

import "time"

// ExperimentStatus enumerates the lifecycle states of an experiment.
type ExperimentStatus string

const (
	ExperimentDraft     ExperimentStatus = "draft"
	ExperimentActive    ExperimentStatus = "active"
	ExperimentPaused    ExperimentStatus = "paused"
	ExperimentCompleted ExperimentStatus = "completed"
)

// Variant is one arm of an experiment. Exactly one variant per experiment
// carries IsControl. Configuration is an opaque payload the engine stores
// and returns but never interprets.
type Variant struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	TrafficSplit  float64        `json:"traffic_split"` // 0-100, all variants sum to 100
	Configuration map[string]any `json:"configuration,omitempty"`
	IsControl     bool           `json:"is_control"`
}

// TargetCriteria restricts which subjects are eligible for assignment.
// A subject must satisfy every populated filter. An empty criteria set
// matches everyone.
type TargetCriteria struct {
	Roles       []string          `json:"roles,omitempty"`
	DeviceTypes []string          `json:"device_types,omitempty"`
	Regions     []string          `json:"regions,omitempty"`
	Custom      map[string]string `json:"custom,omitempty"`
}

// IsEmpty reports whether no filters are populated.
func (tc *TargetCriteria) IsEmpty() bool {
	if tc == nil {
		return true
	}
	return len(tc.Roles) == 0 && len(tc.DeviceTypes) == 0 &&
		len(tc.Regions) == 0 && len(tc.Custom) == 0
}

// Experiment is a configured comparison between two or more variants over
// a subject population.
type Experiment struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Status      ExperimentStatus `json:"status"`
	Variants    []Variant        `json:"variants"`
	Target      *TargetCriteria  `json:"target_criteria,omitempty"`
	Metrics     []string         `json:"metrics,omitempty"`

	// TrafficAllocation is the percentage (1-100) of eligible subjects
	// that participate at all. ConfidenceLevel (0.80-0.99) drives the
	// z-score used by analysis.
	TrafficAllocation float64 `json:"traffic_allocation"`
	ConfidenceLevel   float64 `json:"confidence_level"`
	SampleSizeTarget  int     `json:"sample_size_target,omitempty"`

	OwnerID   string            `json:"owner_id,omitempty"`
	CompanyID string            `json:"company_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`

	// EndDate is the scheduled end; StartedAt/EndedAt record the actual
	// lifecycle transitions.
	EndDate   *time.Time `json:"end_date,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// IsActive reports whether the experiment currently accepts assignments.
func (e *Experiment) IsActive() bool {
	return e.Status == ExperimentActive
}

// Control returns the control variant, or nil if none is marked.
func (e *Experiment) Control() *Variant {
	for i := range e.Variants {
		if e.Variants[i].IsControl {
			return &e.Variants[i]
		}
	}
	return nil
}

// VariantByID returns the variant with the given id, or nil.
func (e *Experiment) VariantByID(id string) *Variant {
	for i := range e.Variants {
		if e.Variants[i].ID == id {
			return &e.Variants[i]
		}
	}
	return nil
}
