package experiment

import (
	"fmt"
	"math"
	"time"

	"github.com/ignite/experiment-engine/internal/domain"
)

// trafficSplitTolerance absorbs floating error when checking that variant
// splits sum to 100.
const trafficSplitTolerance = 0.01

// VariantInput describes one variant in an experiment definition.
type VariantInput struct {
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	TrafficSplit  float64        `json:"traffic_split"`
	Configuration map[string]any `json:"configuration,omitempty"`
	IsControl     bool           `json:"is_control"`
}

// CreateInput is a proposed experiment definition.
type CreateInput struct {
	Name              string                 `json:"name"`
	Description       string                 `json:"description,omitempty"`
	Variants          []VariantInput         `json:"variants"`
	Target            *domain.TargetCriteria `json:"target_criteria,omitempty"`
	Metrics           []string               `json:"metrics,omitempty"`
	TrafficAllocation float64                `json:"traffic_allocation,omitempty"`
	ConfidenceLevel   float64                `json:"confidence_level,omitempty"`
	SampleSizeTarget  int                    `json:"sample_size_target,omitempty"`
	OwnerID           string                 `json:"owner_id,omitempty"`
	CompanyID         string                 `json:"company_id,omitempty"`
	Metadata          map[string]string      `json:"metadata,omitempty"`
	EndDate           *time.Time             `json:"end_date,omitempty"`
}

// validateDefinition enforces the structural invariants of an experiment
// definition, in order, failing on the first violation. Defaults must be
// applied before calling.
func validateDefinition(in CreateInput) error {
	if in.Name == "" {
		return &ConfigurationError{Reason: "name is required"}
	}
	if len(in.Variants) < 2 {
		return &ConfigurationError{Reason: "at least 2 variants are required"}
	}

	var splitSum float64
	controls := 0
	for _, v := range in.Variants {
		if v.TrafficSplit < 0 || v.TrafficSplit > 100 {
			return &ConfigurationError{Reason: fmt.Sprintf("variant %q traffic split must be within 0-100", v.Name)}
		}
		splitSum += v.TrafficSplit
		if v.IsControl {
			controls++
		}
	}
	if math.Abs(splitSum-100) > trafficSplitTolerance {
		return &ConfigurationError{Reason: fmt.Sprintf("variant traffic splits must sum to 100, got %.2f", splitSum)}
	}
	if controls != 1 {
		return &ConfigurationError{Reason: fmt.Sprintf("exactly one control variant is required, got %d", controls)}
	}

	if in.ConfidenceLevel < 0.80 || in.ConfidenceLevel > 0.99 {
		return &ConfigurationError{Reason: "confidence level must be within 0.80-0.99"}
	}
	if in.TrafficAllocation < 1 || in.TrafficAllocation > 100 {
		return &ConfigurationError{Reason: "traffic allocation must be within 1-100"}
	}
	return nil
}
