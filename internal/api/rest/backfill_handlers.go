package rest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/fortuna/diamond/internal/backfill"
	"github.com/fortuna/diamond/internal/ingest/bbref"
	"github.com/fortuna/diamond/internal/store"
)

// BackfillHandler proxies API calls to the backfill service.
type BackfillHandler struct {
	service   BackfillService
	failures  FailureStore
	validator *validator.Validate
}

func NewBackfillHandler(service BackfillService, failures FailureStore) *BackfillHandler {
	return &BackfillHandler{service: service, failures: failures, validator: validator.New()}
}

type apiBackfillRequest struct {
	Team          string `json:"team" validate:"omitempty,alpha,max=3"`
	Season        int    `json:"season" validate:"omitempty,gte=1871,lte=2100"`
	StartDate     string `json:"start_date" validate:"required_with=EndDate,omitempty,datetime=2006-01-02"`
	EndDate       string `json:"end_date" validate:"required_with=StartDate,omitempty,datetime=2006-01-02"`
	DryRun        bool   `json:"dry_run"`
	BuildFeatures *bool  `json:"build_features"`
}

// HandleBackfillRequest handles POST /api/v1/backfill.
func (h *BackfillHandler) HandleBackfillRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var req apiBackfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validator.StructCtx(r.Context(), req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid backfill request", err)
		return
	}

	backfillReq := backfill.Request{
		Team:          req.Team,
		Season:        req.Season,
		DryRun:        req.DryRun,
		BuildFeatures: req.BuildFeatures == nil || *req.BuildFeatures,
	}
	if req.StartDate != "" {
		start, _ := time.Parse(time.DateOnly, req.StartDate)
		end, _ := time.Parse(time.DateOnly, req.EndDate)
		backfillReq.Start, backfillReq.End = &start, &end
	}

	job, err := h.service.Enqueue(r.Context(), backfillReq)
	switch {
	case errors.Is(err, backfill.ErrInvalidRequest),
		errors.Is(err, bbref.ErrInvalidTeam),
		errors.Is(err, bbref.ErrInvalidDateRange):
		respondError(w, http.StatusBadRequest, "Invalid backfill request", err)
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "Failed to enqueue backfill job", err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]any{"job": jobPayload(job)})
}

// HandleBackfillStatus handles GET /api/v1/backfill/status.
func (h *BackfillHandler) HandleBackfillStatus(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.GetStatus(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch status", err)
		return
	}
	respondJSON(w, http.StatusOK, buildStatusPayload(summary))
}

// HandleBackfillJob handles GET /api/v1/backfill/jobs/{jobID}.
func (h *BackfillHandler) HandleBackfillJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := strconv.ParseInt(mux.Vars(r)["jobID"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid job ID", err)
		return
	}
	job, err := h.service.GetJob(r.Context(), jobID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Job not found", err)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch job", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"job": jobPayload(job)})
}

// HandleBackfillFailures handles GET /api/v1/backfill/failures?job_id=&limit=.
func (h *BackfillHandler) HandleBackfillFailures(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var jobID int64
	if s := q.Get("job_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid job_id", err)
			return
		}
		jobID = id
	}
	limit := 50
	if s := q.Get("limit"); s != "" {
		if l, err := strconv.Atoi(s); err == nil && l > 0 && l <= 500 {
			limit = l
		}
	}

	failures, err := h.failures.List(r.Context(), jobID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch failures", err)
		return
	}
	out := make([]map[string]any, 0, len(failures))
	for _, f := range failures {
		p := map[string]any{
			"id":         f.ID,
			"url":        f.URL,
			"kind":       f.Kind,
			"message":    f.Message,
			"created_at": f.CreatedAt,
		}
		setInt(p, "job_id", f.JobID)
		setString(p, "box_score_id", f.BoxScoreID)
		out = append(out, p)
	}
	respondJSON(w, http.StatusOK, out)
}

func buildStatusPayload(summary *backfill.StatusSummary) map[string]any {
	response := map[string]any{
		"status":  "idle",
		"message": "No active jobs",
	}
	if summary.ActiveJob != nil {
		response["status"] = summary.ActiveJob.Status
		if summary.ActiveJob.StatusMessage.Valid {
			response["message"] = summary.ActiveJob.StatusMessage.String
		}
		response["active_job"] = jobPayload(summary.ActiveJob)
	}

	history := make([]map[string]any, 0, len(summary.History))
	for _, job := range summary.History {
		history = append(history, jobPayload(job))
	}
	response["history"] = history
	return response
}

func jobPayload(job *backfill.Job) map[string]any {
	if job == nil {
		return nil
	}

	payload := map[string]any{
		"job_id":           job.JobID,
		"team":             job.Team,
		"start_date":       job.StartDate.Format(time.DateOnly),
		"end_date":         job.EndDate.Format(time.DateOnly),
		"dry_run":          job.DryRun,
		"build_features":   job.BuildFeatures,
		"status":           job.Status,
		"progress_current": job.ProgressCurrent,
		"progress_total":   job.ProgressTotal,
		"pages_ok":         job.PagesOK,
		"pages_failed":     job.PagesFailed,
		"created_at":       job.CreatedAt,
		"updated_at":       job.UpdatedAt,
	}
	setString(payload, "status_message", job.StatusMessage)
	setString(payload, "last_error", job.LastError)
	if job.StartedAt.Valid {
		payload["started_at"] = job.StartedAt.Time
	}
	if job.CompletedAt.Valid {
		payload["completed_at"] = job.CompletedAt.Time
	}
	return payload
}
