package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nucleohub/seqdispatch/internal/api/response"
	"github.com/nucleohub/seqdispatch/internal/cache"
	"github.com/nucleohub/seqdispatch/internal/jobs"
	"github.com/nucleohub/seqdispatch/internal/store"
	"github.com/nucleohub/seqdispatch/pkg/models"
)

const statusCacheTTL = time.Hour

// StatusReader defines the interface the status handler depends on.
type StatusReader interface {
	Status(ctx context.Context, jobID uuid.UUID) (*jobs.JobStatus, error)
}

// NewStatusHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
// Terminal job statuses are immutable, so they are served from the cache
// once computed.
func NewStatusHandler(svc StatusReader, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "job id must be a UUID", nil)
			return
		}

		key := cache.JobStatusKey(jobID)
		if cached, ok, _ := c.Get(r.Context(), key); ok {
			var st jobs.JobStatus
			if json.Unmarshal(cached, &st) == nil {
				response.JSON(w, &st)
				return
			}
		}

		st, err := svc.Status(r.Context(), jobID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Unknown job", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to read job status", nil)
			return
		}

		if models.IsTerminalJobStatus(st.Status) {
			if body, err := json.Marshal(st); err == nil {
				c.Set(r.Context(), key, body, statusCacheTTL)
			}
		}
		response.JSON(w, st)
	}
}
