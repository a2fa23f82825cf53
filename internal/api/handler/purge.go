package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nucleohub/seqdispatch/internal/api/response"
	"github.com/nucleohub/seqdispatch/internal/cache"
	"github.com/nucleohub/seqdispatch/internal/store"
)

// Purger defines the interface the purge handler depends on.
type Purger interface {
	Purge(ctx context.Context, jobID uuid.UUID) error
}

// NewPurgeHandler returns an http.HandlerFunc for
// DELETE /api/v1/admin/jobs/{jobID}.
func NewPurgeHandler(svc Purger, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "job id must be a UUID", nil)
			return
		}

		if err := svc.Purge(r.Context(), jobID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Unknown job", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to purge job", nil)
			return
		}

		c.Delete(r.Context(), cache.JobStatusKey(jobID))
		response.JSON(w, map[string]any{"job_id": jobID, "purged": true})
	}
}
