package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nucleohub/seqdispatch/internal/api/response"
	"github.com/nucleohub/seqdispatch/internal/store"
	"github.com/nucleohub/seqdispatch/pkg/models"
)

// ResultsReader defines the interface the results handler depends on.
type ResultsReader interface {
	Results(ctx context.Context, jobID uuid.UUID, ordering string) ([]models.Hit, error)
}

// NewResultsHandler returns an http.HandlerFunc for
// GET /api/v1/jobs/{jobID}/results.
func NewResultsHandler(svc ResultsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "job id must be a UUID", nil)
			return
		}

		hits, err := svc.Results(r.Context(), jobID, r.URL.Query().Get("ordering"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Unknown job", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to read job results", nil)
			return
		}

		response.Collection(w, hits, len(hits))
	}
}
