package experiment

import (
	"context"
	"fmt"
	"strings"

	mstats "github.com/montanaflynn/stats"

	"github.com/ignite/experiment-engine/internal/domain"
	"github.com/ignite/experiment-engine/internal/pkg/logger"
	"github.com/ignite/experiment-engine/internal/stats"
)

// minSampleForInference is the sample size below which the normal
// approximation is not trusted: p-values default to 1.0 and variants are
// never flagged significant.
const minSampleForInference = 30

// maxMarginForSignificance is the margin-of-error ceiling for flagging a
// variant statistically significant.
const maxMarginForSignificance = 0.05

// Analyze recomputes the experiment's per-variant statistics and
// recommendation from the authoritative assignment and result sets.
// Results pass through the analysis cache when one is configured; a miss
// always recomputes.
func (s *Service) Analyze(ctx context.Context, experimentID string) (*domain.Analysis, error) {
	e, err := s.repo.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if cached, err := s.cache.GetAnalysis(ctx, experimentID); err == nil && cached != nil {
			return cached, nil
		}
	}

	assignments, err := s.repo.ListAssignments(ctx, experimentID)
	if err != nil {
		return nil, fmt.Errorf("load assignments: %w", err)
	}
	results, err := s.repo.ListResults(ctx, experimentID)
	if err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}

	a := s.computeAnalysis(e, assignments, results)

	if s.cache != nil {
		if err := s.cache.PutAnalysis(ctx, a, s.cacheTTL); err != nil {
			logger.Warn("analysis cache write failed", "experiment_id", experimentID, "error", err)
		}
	}
	return a, nil
}

func (s *Service) computeAnalysis(e *domain.Experiment, assignments []domain.Assignment, results []domain.Result) *domain.Analysis {
	sampleSizes := make(map[string]int)
	for _, a := range assignments {
		sampleSizes[a.VariantID]++
	}
	conversions := make(map[string]int)
	revenue := make(map[string]float64)
	for _, r := range results {
		if strings.HasPrefix(r.Metric, domain.MetricConversionPrefix) {
			conversions[r.VariantID]++
		}
		if r.Metric == domain.MetricRevenue {
			revenue[r.VariantID] += r.Value
		}
	}

	z := stats.ZScore(e.ConfidenceLevel)
	control := e.Control()

	var controlRate float64
	if control != nil && sampleSizes[control.ID] > 0 {
		controlRate = float64(conversions[control.ID]) / float64(sampleSizes[control.ID])
	}

	variants := make([]domain.VariantAnalysis, 0, len(e.Variants))
	for _, v := range e.Variants {
		n := sampleSizes[v.ID]
		rate := 0.0
		if n > 0 {
			rate = float64(conversions[v.ID]) / float64(n)
		}

		iv := stats.NormalInterval(rate, n, z)

		pValue := 1.0
		if n > minSampleForInference {
			pValue = stats.PValueAgainstZero(rate, n)
		}

		va := domain.VariantAnalysis{
			VariantID:       v.ID,
			VariantName:     v.Name,
			IsControl:       v.IsControl,
			SampleSize:      n,
			Conversions:     conversions[v.ID],
			ConversionRate:  rate,
			Revenue:         revenue[v.ID],
			ConfidenceLevel: e.ConfidenceLevel,
			StandardError:   iv.StandardError,
			MarginOfError:   iv.MarginOfError,
			IntervalLower:   iv.Lower,
			IntervalUpper:   iv.Upper,
			PValue:          pValue,
			Significant:     n > minSampleForInference && iv.MarginOfError < maxMarginForSignificance,
		}
		if !v.IsControl {
			va.LiftVsControl = stats.Lift(rate, controlRate)
		}
		variants = append(variants, va)
	}

	return &domain.Analysis{
		ExperimentID:      e.ID,
		GeneratedAt:       s.now().UTC(),
		TotalParticipants: len(assignments),
		TotalEvents:       len(results),
		Variants:          variants,
		Recommendation:    recommend(variants, e.ConfidenceLevel),
		DataQuality:       gradeDataQuality(len(assignments), len(results)),
	}
}

// recommend picks the non-control variant with the highest raw conversion
// rate. Unless that variant is flagged significant the verdict is to keep
// collecting data at low confidence.
func recommend(variants []domain.VariantAnalysis, confidenceLevel float64) domain.Recommendation {
	var best *domain.VariantAnalysis
	for i := range variants {
		if variants[i].IsControl {
			continue
		}
		if best == nil || variants[i].ConversionRate > best.ConversionRate {
			best = &variants[i]
		}
	}

	if best == nil || !best.Significant {
		return domain.Recommendation{
			Action:     domain.RecommendContinueTest,
			Confidence: 0.3,
			Reason:     "no variant has reached statistical significance; continue collecting data",
		}
	}
	return domain.Recommendation{
		Action:          domain.RecommendAdoptWinner,
		WinnerVariantID: best.VariantID,
		Confidence:      confidenceLevel,
		Reason: fmt.Sprintf("%s leads with a %.1f%% conversion rate (%+.1f%% lift vs control)",
			best.VariantName, best.ConversionRate*100, best.LiftVsControl),
	}
}

// gradeDataQuality derives a coarse trust grade from participant volume and
// the event-to-participant ratio.
func gradeDataQuality(participants, events int) domain.DataQuality {
	if participants == 0 {
		return domain.DataQualityLow
	}
	ratio := float64(events) / float64(participants)
	switch {
	case participants < 100 || ratio < 0.1:
		return domain.DataQualityLow
	case participants >= 1000 && ratio >= 0.5:
		return domain.DataQualityHigh
	default:
		return domain.DataQualityMedium
	}
}

// VariantSummary is the raw per-variant tally exposed by the statistics
// endpoint, including a revenue distribution sketch.
type VariantSummary struct {
	VariantID      string  `json:"variant_id"`
	VariantName    string  `json:"variant_name"`
	IsControl      bool    `json:"is_control"`
	SampleSize     int     `json:"sample_size"`
	Events         int     `json:"events"`
	Conversions    int     `json:"conversions"`
	ConversionRate float64 `json:"conversion_rate"`
	RevenueTotal   float64 `json:"revenue_total"`
	RevenueMean    float64 `json:"revenue_mean"`
	RevenueMedian  float64 `json:"revenue_median"`
	RevenueP90     float64 `json:"revenue_p90"`
}

// VariantSummaries returns raw counts and revenue distribution per variant,
// without inference. Ordering follows the declared variant order.
func (s *Service) VariantSummaries(ctx context.Context, experimentID string) ([]VariantSummary, error) {
	e, err := s.repo.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	assignments, err := s.repo.ListAssignments(ctx, experimentID)
	if err != nil {
		return nil, fmt.Errorf("load assignments: %w", err)
	}
	results, err := s.repo.ListResults(ctx, experimentID)
	if err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}

	sampleSizes := make(map[string]int)
	for _, a := range assignments {
		sampleSizes[a.VariantID]++
	}
	events := make(map[string]int)
	conversions := make(map[string]int)
	revenues := make(map[string][]float64)
	for _, r := range results {
		events[r.VariantID]++
		if strings.HasPrefix(r.Metric, domain.MetricConversionPrefix) {
			conversions[r.VariantID]++
		}
		if r.Metric == domain.MetricRevenue {
			revenues[r.VariantID] = append(revenues[r.VariantID], r.Value)
		}
	}

	out := make([]VariantSummary, 0, len(e.Variants))
	for _, v := range e.Variants {
		vs := VariantSummary{
			VariantID:   v.ID,
			VariantName: v.Name,
			IsControl:   v.IsControl,
			SampleSize:  sampleSizes[v.ID],
			Events:      events[v.ID],
			Conversions: conversions[v.ID],
		}
		if vs.SampleSize > 0 {
			vs.ConversionRate = float64(vs.Conversions) / float64(vs.SampleSize)
		}
		if vals := revenues[v.ID]; len(vals) > 0 {
			vs.RevenueTotal, _ = mstats.Sum(vals)
			vs.RevenueMean, _ = mstats.Mean(vals)
			vs.RevenueMedian, _ = mstats.Median(vals)
			vs.RevenueP90, _ = mstats.Percentile(vals, 90)
		}
		out = append(out, vs)
	}
	return out, nil
}
