package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/nucleohub/seqdispatch/internal/api/middleware"
	"github.com/nucleohub/seqdispatch/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	AdminAuth *mw.AdminAuth
	RateLimit *mw.RateLimit

	HealthHandler  http.HandlerFunc
	SubmitHandler  http.HandlerFunc
	StatusHandler  http.HandlerFunc
	ResultsHandler http.HandlerFunc
	PurgeHandler   http.HandlerFunc
}

// NewRouter builds the Chi router with the middleware stack and all routes.
// The /api/submit-job and /api/job-status paths are kept as aliases for
// clients of the original deployment.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimit.Limit)
		r.Post("/api/v1/jobs", orNotImplemented(deps.SubmitHandler))
		r.Post("/api/submit-job", orNotImplemented(deps.SubmitHandler))
	})

	r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.StatusHandler))
	r.Get("/api/job-status/{jobID}", orNotImplemented(deps.StatusHandler))
	r.Get("/api/v1/jobs/{jobID}/results", orNotImplemented(deps.ResultsHandler))

	r.Group(func(r chi.Router) {
		r.Use(deps.AdminAuth.Require)
		r.Delete("/api/v1/admin/jobs/{jobID}", orNotImplemented(deps.PurgeHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
