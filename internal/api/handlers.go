// Package api exposes the experiment engine over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/experiment-engine/internal/domain"
	"github.com/ignite/experiment-engine/internal/pkg/httputil"
	"github.com/ignite/experiment-engine/internal/service/experiment"
)

// Handlers holds the HTTP handlers for the experiment API.
type Handlers struct {
	svc *experiment.Service
}

// NewHandlers creates the handler set.
func NewHandlers(svc *experiment.Service) *Handlers {
	return &Handlers{svc: svc}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}

// writeServiceError maps service errors onto HTTP statuses: configuration
// problems are the caller's fault (400), refused lifecycle actions conflict
// with current state (409), unknown ids are 404, the rest is 500.
func writeServiceError(w http.ResponseWriter, err error) {
	var cfgErr *experiment.ConfigurationError
	var stateErr *experiment.StateTransitionError
	var opErr *experiment.InvalidOperationError

	switch {
	case errors.As(err, &cfgErr):
		httputil.Error(w, http.StatusBadRequest, cfgErr.Error(), "invalid_configuration")
	case errors.As(err, &stateErr):
		httputil.Error(w, http.StatusConflict, stateErr.Error(), "invalid_transition")
	case errors.As(err, &opErr):
		httputil.Error(w, http.StatusConflict, opErr.Error(), "invalid_operation")
	case errors.Is(err, experiment.ErrNotFound):
		httputil.NotFound(w, "experiment not found")
	default:
		httputil.InternalError(w, err)
	}
}

// CreateExperiment handles POST /api/experiments
func (h *Handlers) CreateExperiment(w http.ResponseWriter, r *http.Request) {
	var in experiment.CreateInput
	if !httputil.Decode(w, r, &in) {
		return
	}

	e, err := h.svc.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.Created(w, e)
}

// ListExperiments handles GET /api/experiments
func (h *Handlers) ListExperiments(w http.ResponseWriter, r *http.Request) {
	f := experiment.ListFilter{
		Status:    r.URL.Query().Get("status"),
		CompanyID: r.URL.Query().Get("company_id"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		f.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		f.Offset, _ = strconv.Atoi(v)
	}

	experiments, total, err := h.svc.List(r.Context(), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if experiments == nil {
		experiments = []domain.Experiment{}
	}
	httputil.OK(w, map[string]any{
		"experiments": experiments,
		"total":       total,
	})
}

// GetExperiment handles GET /api/experiments/{experimentID}
func (h *Handlers) GetExperiment(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.Get(r.Context(), chi.URLParam(r, "experimentID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, e)
}

// UpdateExperiment handles PUT /api/experiments/{experimentID}
func (h *Handlers) UpdateExperiment(w http.ResponseWriter, r *http.Request) {
	var in experiment.CreateInput
	if !httputil.Decode(w, r, &in) {
		return
	}

	e, err := h.svc.Update(r.Context(), chi.URLParam(r, "experimentID"), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, e)
}

// DeleteExperiment handles DELETE /api/experiments/{experimentID}
func (h *Handlers) DeleteExperiment(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "experimentID")); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": "deleted"})
}

func (h *Handlers) transition(w http.ResponseWriter, r *http.Request,
	fn func(context.Context, string) (*domain.Experiment, error)) {
	e, err := fn(r.Context(), chi.URLParam(r, "experimentID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, e)
}

// StartExperiment handles POST /api/experiments/{experimentID}/start
func (h *Handlers) StartExperiment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Start)
}

// PauseExperiment handles POST /api/experiments/{experimentID}/pause
func (h *Handlers) PauseExperiment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Pause)
}

// ResumeExperiment handles POST /api/experiments/{experimentID}/resume
func (h *Handlers) ResumeExperiment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Resume)
}

// CompleteExperiment handles POST /api/experiments/{experimentID}/complete
func (h *Handlers) CompleteExperiment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Complete)
}

type assignRequest struct {
	SubjectID string            `json:"subject_id"`
	Context   map[string]string `json:"context,omitempty"`
}

// AssignSubject handles POST /api/experiments/{experimentID}/assignments.
// An ineligible subject yields 200 with assigned=false, not an error.
func (h *Handlers) AssignSubject(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.SubjectID == "" {
		httputil.Error(w, http.StatusBadRequest, "subject_id is required", "bad_request")
		return
	}

	a, err := h.svc.Assign(r.Context(), chi.URLParam(r, "experimentID"), req.SubjectID, req.Context)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if a == nil {
		httputil.OK(w, map[string]any{"assigned": false})
		return
	}
	httputil.OK(w, map[string]any{"assigned": true, "assignment": a})
}

// GetAssignment handles GET /api/experiments/{experimentID}/assignments/{subjectID}.
// The response carries the assigned variant so callers get its configuration
// payload in one round trip.
func (h *Handlers) GetAssignment(w http.ResponseWriter, r *http.Request) {
	experimentID := chi.URLParam(r, "experimentID")

	a, err := h.svc.GetAssignment(r.Context(), experimentID, chi.URLParam(r, "subjectID"))
	if errors.Is(err, experiment.ErrNotFound) {
		httputil.NotFound(w, "subject has no assignment in this experiment")
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := map[string]any{"assignment": a}
	if e, err := h.svc.Get(r.Context(), experimentID); err == nil {
		if v := e.VariantByID(a.VariantID); v != nil {
			resp["variant"] = v
		}
	}
	httputil.OK(w, resp)
}

type eventRequest struct {
	SubjectID string            `json:"subject_id"`
	Metric    string            `json:"metric"`
	Value     float64           `json:"value"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// RecordEvent handles POST /api/experiments/{experimentID}/events
func (h *Handlers) RecordEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.SubjectID == "" || req.Metric == "" {
		httputil.Error(w, http.StatusBadRequest, "subject_id and metric are required", "bad_request")
		return
	}

	if err := h.svc.Record(r.Context(), chi.URLParam(r, "experimentID"), req.SubjectID, req.Metric, req.Value, req.Metadata); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.JSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

type conversionRequest struct {
	SubjectID      string            `json:"subject_id"`
	ConversionType string            `json:"conversion_type"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// RecordConversion handles POST /api/experiments/{experimentID}/conversions
func (h *Handlers) RecordConversion(w http.ResponseWriter, r *http.Request) {
	var req conversionRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.SubjectID == "" || req.ConversionType == "" {
		httputil.Error(w, http.StatusBadRequest, "subject_id and conversion_type are required", "bad_request")
		return
	}

	if err := h.svc.RecordConversion(r.Context(), chi.URLParam(r, "experimentID"), req.SubjectID, req.ConversionType, req.Metadata); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.JSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

type revenueRequest struct {
	SubjectID string            `json:"subject_id"`
	Amount    float64           `json:"amount"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// RecordRevenue handles POST /api/experiments/{experimentID}/revenue
func (h *Handlers) RecordRevenue(w http.ResponseWriter, r *http.Request) {
	var req revenueRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.SubjectID == "" {
		httputil.Error(w, http.StatusBadRequest, "subject_id is required", "bad_request")
		return
	}

	if err := h.svc.RecordRevenue(r.Context(), chi.URLParam(r, "experimentID"), req.SubjectID, req.Amount, req.Metadata); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.JSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

// GetAnalysis handles GET /api/experiments/{experimentID}/analysis
func (h *Handlers) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.Analyze(r.Context(), chi.URLParam(r, "experimentID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, a)
}

// GetVariantStats handles GET /api/experiments/{experimentID}/variants/stats
func (h *Handlers) GetVariantStats(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.svc.VariantSummaries(r.Context(), chi.URLParam(r, "experimentID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"variants": summaries})
}
