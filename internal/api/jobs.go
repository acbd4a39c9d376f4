package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
	"github.com/snarg/pullquote/internal/database"
	"github.com/snarg/pullquote/internal/job"
	"github.com/snarg/pullquote/internal/request"
	"github.com/snarg/pullquote/internal/stamp"
)

// JobsHandler exposes job submission and inspection endpoints.
type JobsHandler struct {
	reg      *job.Registry
	pipeline *job.Pipeline
	db       *database.DB // nil when no history store is configured
	baseCtx  context.Context
}

func NewJobsHandler(reg *job.Registry, pipeline *job.Pipeline, db *database.DB, baseCtx context.Context) *JobsHandler {
	return &JobsHandler{reg: reg, pipeline: pipeline, db: db, baseCtx: baseCtx}
}

// CreateJobRequest is the POST /jobs body. Either structured fields or a
// pasted Block (URL plus "MM:SS - description" lines) may be supplied.
type CreateJobRequest struct {
	Mode     string           `json:"mode,omitempty"`
	URL      string           `json:"url,omitempty"`
	Question string           `json:"question,omitempty"`
	Moments  []request.Moment `json:"moments,omitempty"`
	Block    string           `json:"block,omitempty"`
}

func (h *JobsHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var body CreateJobRequest
	if err := DecodeJSON(r, &body); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if body.Block != "" {
		parsed, err := request.Parse(body.Block)
		if err != nil {
			WriteErrorDetail(w, http.StatusBadRequest, "invalid request block", err.Error())
			return
		}
		if body.URL == "" {
			body.URL = parsed.URL
		}
		if len(body.Moments) == 0 {
			body.Moments = parsed.Moments
		}
	}
	if body.URL == "" {
		WriteError(w, http.StatusBadRequest, "url is required")
		return
	}
	if err := normalizeMoments(body.Moments); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid moments", err.Error())
		return
	}

	mode, err := resolveMode(body)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	switch mode {
	case job.ModeQuotes:
		if len(body.Moments) == 0 {
			WriteError(w, http.StatusBadRequest, "quotes mode requires at least one moment")
			return
		}
	case job.ModeAnalysis:
		if body.Question == "" {
			WriteError(w, http.StatusBadRequest, "analysis mode requires a question")
			return
		}
	}

	j := h.reg.Create(mode, body.URL, body.Question, body.Moments)
	h.pipeline.Submit(h.baseCtx, j)

	hlog.FromRequest(r).Info().
		Str("job_id", j.ID).
		Str("mode", string(mode)).
		Str("url", body.URL).
		Msg("job submitted")

	snap, _ := h.reg.Get(j.ID)
	WriteJSON(w, http.StatusAccepted, snap)
}

// resolveMode picks the job mode from an explicit field or infers it from
// the shape of the request.
func resolveMode(body CreateJobRequest) (job.Mode, error) {
	switch job.Mode(body.Mode) {
	case job.ModeQuotes, job.ModeAnalysis, job.ModeTranscript:
		return job.Mode(body.Mode), nil
	case "":
	default:
		return "", &request.Error{Field: "mode", Value: body.Mode, Reason: "want quotes, analysis, or transcript"}
	}
	if len(body.Moments) > 0 {
		return job.ModeQuotes, nil
	}
	if body.Question != "" {
		return job.ModeAnalysis, nil
	}
	return job.ModeTranscript, nil
}

// normalizeMoments fills in whichever of Seconds or Clock the caller omitted.
func normalizeMoments(moments []request.Moment) error {
	for i := range moments {
		m := &moments[i]
		if m.Clock != "" {
			sec, err := stamp.Parse(m.Clock)
			if err != nil {
				return &request.Error{Field: "timestamp", Value: m.Clock, Reason: "want MM:SS or HH:MM:SS"}
			}
			m.Seconds = sec
			continue
		}
		if m.Seconds < 0 {
			return &request.Error{Field: "timestamp", Value: m.Clock, Reason: "negative"}
		}
		m.Clock = stamp.Format(m.Seconds)
	}
	return nil
}

func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"jobs": h.reg.List()})
}

func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	j, ok := h.reg.Get(id)
	if !ok {
		WriteError(w, http.StatusNotFound, "job not found")
		return
	}
	WriteJSON(w, http.StatusOK, j)
}

func (h *JobsHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.reg.Cancel(id) {
		WriteError(w, http.StatusConflict, "job not found or already finished")
		return
	}
	hlog.FromRequest(r).Info().Str("job_id", id).Msg("job cancel requested")
	WriteJSON(w, http.StatusOK, map[string]string{"id": id, "status": "cancelling"})
}

// JobResult serves the content of a finished job's output file. kind is
// transcript, quotes, or analysis.
func (h *JobsHandler) JobResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	j, ok := h.reg.Get(id)
	if !ok {
		WriteError(w, http.StatusNotFound, "job not found")
		return
	}
	if j.Result == nil {
		WriteError(w, http.StatusConflict, "job has no result yet")
		return
	}

	var path string
	switch kind := chi.URLParam(r, "kind"); kind {
	case "transcript":
		path = j.Result.TranscriptPath
	case "quotes":
		path = j.Result.QuotesPath
	case "analysis":
		path = j.Result.AnalysisPath
	default:
		WriteError(w, http.StatusBadRequest, "unknown result kind, want transcript, quotes, or analysis")
		return
	}
	if path == "" {
		WriteError(w, http.StatusNotFound, "job did not produce that output")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	http.ServeFile(w, r, path)
}

// JobHistory returns persisted jobs from past process runs. Requires the
// database to be configured.
func (h *JobsHandler) JobHistory(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		WriteError(w, http.StatusServiceUnavailable, "job history not configured")
		return
	}
	limit, _ := QueryInt(r, "limit")
	rows, err := h.db.ListJobs(r.Context(), limit)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("list job history")
		WriteError(w, http.StatusInternalServerError, "failed to list job history")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"jobs": rows})
}

// Routes registers job routes on the given router.
func (h *JobsHandler) Routes(r chi.Router) {
	r.Post("/jobs", h.CreateJob)
	r.Get("/jobs", h.ListJobs)
	r.Get("/jobs/history", h.JobHistory)
	r.Get("/jobs/{id}", h.GetJob)
	r.Get("/jobs/{id}/result/{kind}", h.JobResult)
	r.Post("/jobs/{id}/cancel", h.CancelJob)
}
