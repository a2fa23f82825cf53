package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/nucleohub/seqdispatch/internal/api/response"
)

// Recovery converts a handler panic into a 500 response. The scheduler
// loop has its own recover; this one covers the HTTP surface only.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			slog.Error("handler panicked",
				"panic", rec,
				"method", r.Method,
				"path", r.URL.Path,
				"stack", string(debug.Stack()),
			)
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "An unexpected error occurred", nil)
		}()
		next.ServeHTTP(w, r)
	})
}
