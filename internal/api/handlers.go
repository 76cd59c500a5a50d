package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/adinsight/internal/domain"
	"github.com/ignite/adinsight/internal/pkg/distlock"
	"github.com/ignite/adinsight/internal/pkg/httputil"
	"github.com/ignite/adinsight/internal/pkg/logger"
	"github.com/ignite/adinsight/internal/service/experiment"
	"github.com/ignite/adinsight/internal/service/pattern"
	"github.com/ignite/adinsight/internal/worker"
)

// BatchTrigger starts batches and reports the last one.
type BatchTrigger interface {
	Trigger(ctx context.Context, businessIDs []string) (*worker.BatchStats, error)
	Last() (*worker.BatchStats, time.Time)
}

// InsightService reads and re-derives pattern insights.
type InsightService interface {
	Analyze(ctx context.Context, businessID string) ([]domain.PatternInsight, error)
	Insights(ctx context.Context, businessID string) (*domain.InsightSet, error)
}

// ExperimentService is the experiment lifecycle.
type ExperimentService interface {
	Create(ctx context.Context, in experiment.CreateInput) (*domain.Experiment, error)
	Get(ctx context.Context, id string) (*domain.Experiment, error)
	ListActive(ctx context.Context, businessID string) ([]domain.Experiment, error)
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error
	Complete(ctx context.Context, id string) (*domain.ExperimentResult, error)
	Results(ctx context.Context, id string) (*domain.ExperimentResult, error)
	AssignVariant(ctx context.Context, experimentID, subjectID string) (domain.Variant, error)
}

// Handlers serves the ops endpoints.
type Handlers struct {
	batch       BatchTrigger
	insights    InsightService
	experiments ExperimentService
	// background runs outlive the request
	baseCtx context.Context
}

// NewHandlers creates the ops handlers.
func NewHandlers(batch BatchTrigger, insights InsightService, experiments ExperimentService) *Handlers {
	return &Handlers{
		batch:       batch,
		insights:    insights,
		experiments: experiments,
		baseCtx:     context.Background(),
	}
}

// SetBaseContext sets the parent context of background batch runs.
func (h *Handlers) SetBaseContext(ctx context.Context) { h.baseCtx = ctx }

type runBatchRequest struct {
	BusinessIDs []string `json:"business_ids"`
}

// RunBatch starts a batch. With ?wait=true it blocks and returns the
// stats; otherwise it returns 202 and runs in the background.
//
//	POST /batch/run
func (h *Handlers) RunBatch(w http.ResponseWriter, r *http.Request) {
	var req runBatchRequest
	if r.ContentLength > 0 && !httputil.Decode(w, r, &req) {
		return
	}
	if ids := r.URL.Query().Get("business"); ids != "" {
		req.BusinessIDs = append(req.BusinessIDs, strings.Split(ids, ",")...)
	}

	if r.URL.Query().Get("wait") == "true" {
		stats, err := h.batch.Trigger(r.Context(), req.BusinessIDs)
		if errors.Is(err, distlock.ErrLocked) {
			httputil.Conflict(w, "a batch is already running")
			return
		}
		if err != nil {
			httputil.InternalError(w, err)
			return
		}
		httputil.OK(w, stats)
		return
	}

	go func(ids []string) {
		_, err := h.batch.Trigger(h.baseCtx, ids)
		if errors.Is(err, distlock.ErrLocked) {
			logger.Info("manual batch skipped, another run holds the lock")
		} else if err != nil {
			logger.Error("manual batch failed", "error", err)
		}
	}(req.BusinessIDs)
	httputil.Accepted(w, map[string]interface{}{
		"status":       "started",
		"business_ids": req.BusinessIDs,
	})
}

// LastBatch returns the stats of the last run in this process.
//
//	GET /batch/last
func (h *Handlers) LastBatch(w http.ResponseWriter, r *http.Request) {
	stats, at := h.batch.Last()
	if stats == nil {
		httputil.NotFound(w, "no batch has completed yet")
		return
	}
	httputil.OK(w, map[string]interface{}{"completed_at": at, "stats": stats})
}

// GetInsights returns the stored insight set.
//
//	GET /businesses/{businessID}/insights
func (h *Handlers) GetInsights(w http.ResponseWriter, r *http.Request) {
	set, err := h.insights.Insights(r.Context(), chi.URLParam(r, "businessID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, set)
}

// AnalyzeBusiness re-runs pattern analysis now.
//
//	POST /businesses/{businessID}/analyze
func (h *Handlers) AnalyzeBusiness(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "businessID")
	insights, err := h.insights.Analyze(r.Context(), businessID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if insights == nil {
		insights = []domain.PatternInsight{}
	}
	httputil.OK(w, map[string]interface{}{"business_id": businessID, "insights": insights})
}

// ListExperiments lists a business's active experiments.
//
//	GET /businesses/{businessID}/experiments
func (h *Handlers) ListExperiments(w http.ResponseWriter, r *http.Request) {
	exps, err := h.experiments.ListActive(r.Context(), chi.URLParam(r, "businessID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if exps == nil {
		exps = []domain.Experiment{}
	}
	httputil.OK(w, exps)
}

// CreateExperiment creates an active experiment.
//
//	POST /experiments
func (h *Handlers) CreateExperiment(w http.ResponseWriter, r *http.Request) {
	var in experiment.CreateInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	e, err := h.experiments.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.Created(w, e)
}

// GetExperiment returns one experiment.
//
//	GET /experiments/{experimentID}
func (h *Handlers) GetExperiment(w http.ResponseWriter, r *http.Request) {
	e, err := h.experiments.Get(r.Context(), chi.URLParam(r, "experimentID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, e)
}

// GetResults returns the experiment's current result.
//
//	GET /experiments/{experimentID}/results
func (h *Handlers) GetResults(w http.ResponseWriter, r *http.Request) {
	res, err := h.experiments.Results(r.Context(), chi.URLParam(r, "experimentID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, res)
}

// AssignVariant buckets a subject into an arm.
//
//	GET /experiments/{experimentID}/assign/{subjectID}
func (h *Handlers) AssignVariant(w http.ResponseWriter, r *http.Request) {
	expID := chi.URLParam(r, "experimentID")
	subject := chi.URLParam(r, "subjectID")
	v, err := h.experiments.AssignVariant(r.Context(), expID, subject)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]string{
		"experiment_id": expID,
		"subject_id":    subject,
		"variant":       string(v),
	})
}

// PauseExperiment pauses an active experiment.
//
//	POST /experiments/{experimentID}/pause
func (h *Handlers) PauseExperiment(w http.ResponseWriter, r *http.Request) {
	if err := h.experiments.Pause(r.Context(), chi.URLParam(r, "experimentID")); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.NoContent(w)
}

// ResumeExperiment reactivates a paused experiment.
//
//	POST /experiments/{experimentID}/resume
func (h *Handlers) ResumeExperiment(w http.ResponseWriter, r *http.Request) {
	if err := h.experiments.Resume(r.Context(), chi.URLParam(r, "experimentID")); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.NoContent(w)
}

// CompleteExperiment ends an experiment now.
//
//	POST /experiments/{experimentID}/complete
func (h *Handlers) CompleteExperiment(w http.ResponseWriter, r *http.Request) {
	res, err := h.experiments.Complete(r.Context(), chi.URLParam(r, "experimentID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, res)
}

// writeServiceError maps service sentinels to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, experiment.ErrNotFound),
		errors.Is(err, experiment.ErrResultNotFound),
		errors.Is(err, pattern.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, experiment.ErrInvalidTransition):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, domain.ErrInvalidSplit),
		errors.Is(err, domain.ErrInvalidDates),
		errors.Is(err, experiment.ErrSameContent),
		errors.Is(err, experiment.ErrInvalidInput),
		errors.Is(err, pattern.ErrMissingBusiness):
		httputil.BadRequest(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
