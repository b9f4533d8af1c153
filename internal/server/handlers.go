package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/pdtx/mediagen-api/internal/credentials"
	"github.com/pdtx/mediagen-api/internal/job"
)

// Handlers contains the HTTP handlers for the job API.
type Handlers struct {
	service   *job.Service
	validator *validator.Validate
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *job.Service, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		service:   service,
		validator: validator.New(),
		logger:    logger,
	}
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateJob handles POST /jobs requests. Credential resolution happens
// before any job is created; a validation failure returns synchronously
// and leaves no trace.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	generateAudio := true
	if req.GenerateAudio != nil {
		generateAudio = *req.GenerateAudio
	}
	snap, err := h.service.Submit(r.Context(), job.SubmitInput{
		Kind:     job.Kind(req.Kind),
		ClientID: req.ClientID,
		Prompt:   req.Prompt,
		Params: job.Params{
			DurationSeconds:   req.DurationSeconds,
			AspectRatio:       req.AspectRatio,
			Model:             req.Model,
			GenerateAudio:     generateAudio,
			GenerateThumbnail: req.GenerateThumbnail,
			ThumbnailPrompt:   req.ThumbnailPrompt,
		},
		Credentials: req.Credentials,
	})
	if err != nil {
		var verr *credentials.ValidationError
		switch {
		case errors.As(err, &verr):
			writeError(w, http.StatusBadRequest, verr.Error(), "CREDENTIAL_VALIDATION_ERROR")
		case errors.Is(err, job.ErrUnknownKind), errors.Is(err, job.ErrEmptyPrompt):
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		default:
			h.logger.Error("failed to create job",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, snap)
}

// GetJob handles GET /jobs/{id} requests. An unknown id answers with
// the virtual not_found status, not an HTTP error.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	snap, err := h.service.Get(r.Context(), jobID)
	if err != nil {
		h.logger.Error("failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// WaitJob handles GET /jobs/{id}/wait requests: the long-poll read. It
// blocks until the job leaves {queued, started} or the fixed bound
// elapses, then returns the same projection GetJob would.
func (h *Handlers) WaitJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	snap, err := h.service.Wait(r.Context(), jobID)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// Client went away; nothing to answer.
		return
	}
	if err != nil {
		h.logger.Error("failed to wait for job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to wait for job", "JOB_FETCH_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ListJobs handles GET /jobs requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_FETCH_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": snaps})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
