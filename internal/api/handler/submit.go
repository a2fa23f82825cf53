package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nucleohub/seqdispatch/internal/api/response"
	"github.com/nucleohub/seqdispatch/internal/jobs"
	"github.com/nucleohub/seqdispatch/pkg/models"
)

// Submitter defines the interface the submission handler depends on.
type Submitter interface {
	Submit(ctx context.Context, p jobs.SubmitParams) (*models.Job, error)
}

// NewSubmitHandler returns an http.HandlerFunc for POST /api/v1/jobs.
func NewSubmitHandler(svc Submitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query       string   `json:"query"`
			Databases   []string `json:"databases"`
			Description string   `json:"description"`
			Ordering    string   `json:"ordering"`
			Priority    string   `json:"priority"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.Query == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "query is required", nil)
			return
		}

		job, err := svc.Submit(r.Context(), jobs.SubmitParams{
			Query:       req.Query,
			Databases:   req.Databases,
			Description: req.Description,
			Ordering:    req.Ordering,
			Priority:    req.Priority,
		})
		if err != nil {
			switch {
			case errors.Is(err, jobs.ErrInvalidQuery),
				errors.Is(err, jobs.ErrQueryLength),
				errors.Is(err, jobs.ErrUnknownDatabase),
				errors.Is(err, jobs.ErrUnknownOrdering),
				errors.Is(err, jobs.ErrNoDatabases):
				response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			default:
				response.Error(w, http.StatusInternalServerError,
					"INTERNAL_ERROR", "Failed to submit job", nil)
			}
			return
		}

		response.Created(w, map[string]any{"job_id": job.ID})
	}
}
