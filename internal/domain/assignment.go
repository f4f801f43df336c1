package domain

import "time"

// Assignment binds a subject to a variant for one experiment. Created at
// most once per (experiment, subject) pair; repeated assignment requests
// return the existing binding unchanged.
type Assignment struct {
	ExperimentID string            `json:"experiment_id"`
	SubjectID    string            `json:"subject_id"`
	VariantID    string            `json:"variant_id"`
	AssignedAt   time.Time         `json:"assigned_at"`
	Context      map[string]string `json:"context,omitempty"`
}

// Result is one outcome event recorded against an existing assignment.
// Append-only; the variant id always comes from the subject's assignment,
// never from the caller.
type Result struct {
	ExperimentID string            `json:"experiment_id"`
	VariantID    string            `json:"variant_id"`
	SubjectID    string            `json:"subject_id"`
	Metric       string            `json:"metric"`
	Value        float64           `json:"value"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	RecordedAt   time.Time         `json:"recorded_at"`
}

// MetricConversionPrefix marks metrics counted as conversions by analysis.
// MetricRevenue is the fixed metric name for revenue events.
const (
	MetricConversionPrefix = "conversion_"
	MetricRevenue          = "revenue"
)

// SubjectAttributes are the resolved targeting attributes for a subject,
// provided by the external identity collaborator.
type SubjectAttributes struct {
	Role       string            `json:"role,omitempty"`
	DeviceType string            `json:"device_type,omitempty"`
	Region     string            `json:"region,omitempty"`
	Custom     map[string]string `json:"attributes,omitempty"`
}
