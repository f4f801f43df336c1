package domain

import "time"

// DataQuality grades how trustworthy an analysis is, based on participant
// count and the event-to-participant ratio.
type DataQuality string

const (
	DataQualityLow    DataQuality = "low"
	DataQualityMedium DataQuality = "medium"
	DataQualityHigh   DataQuality = "high"
)

// VariantAnalysis holds the per-variant statistics computed by analysis.
type VariantAnalysis struct {
	VariantID   string `json:"variant_id"`
	VariantName string `json:"variant_name"`
	IsControl   bool   `json:"is_control"`

	SampleSize     int     `json:"sample_size"`
	Conversions    int     `json:"conversions"`
	ConversionRate float64 `json:"conversion_rate"`
	Revenue        float64 `json:"revenue"`

	ConfidenceLevel float64 `json:"confidence_level"`
	StandardError   float64 `json:"standard_error"`
	MarginOfError   float64 `json:"margin_of_error"`
	IntervalLower   float64 `json:"interval_lower"`
	IntervalUpper   float64 `json:"interval_upper"`
	PValue          float64 `json:"p_value"`
	Significant     bool    `json:"is_statistically_significant"`

	// LiftVsControl is the relative improvement over the control's
	// conversion rate, in percent. Always 0 for the control itself.
	LiftVsControl float64 `json:"lift_vs_control"`
}

// RecommendationAction enumerates what the analyzer suggests doing next.
type RecommendationAction string

const (
	RecommendAdoptWinner  RecommendationAction = "adopt_winner"
	RecommendContinueTest RecommendationAction = "continue_test"
)

// Recommendation is the analyzer's significance-aware verdict.
type Recommendation struct {
	Action          RecommendationAction `json:"action"`
	WinnerVariantID string               `json:"winner_variant_id,omitempty"`
	Confidence      float64              `json:"confidence"`
	Reason          string               `json:"reason"`
}

// Analysis is the derived, per-request view of an experiment's results.
// It is recomputed from the authoritative assignment and result sets and
// may be cached with a short TTL purely as an optimization.
type Analysis struct {
	ExperimentID      string            `json:"experiment_id"`
	GeneratedAt       time.Time         `json:"generated_at"`
	TotalParticipants int               `json:"total_participants"`
	TotalEvents       int               `json:"total_events"`
	Variants          []VariantAnalysis `json:"variants"`
	Recommendation    Recommendation    `json:"recommendation"`
	DataQuality       DataQuality       `json:"data_quality"`
}
