package middleware

import (
	"net/http"
	"strings"

	"github.com/nucleohub/seqdispatch/internal/api/response"
	"golang.org/x/crypto/bcrypt"
)

// AdminAuth guards the admin routes with a single bearer token checked
// against a bcrypt hash. With an empty hash every request is rejected.
type AdminAuth struct {
	tokenHash string
}

// NewAdminAuth creates an AdminAuth middleware.
func NewAdminAuth(tokenHash string) *AdminAuth {
	return &AdminAuth{tokenHash: tokenHash}
}

// Require validates the Bearer token against the configured hash.
func (a *AdminAuth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.tokenHash == "" {
			response.Error(w, http.StatusForbidden,
				"ADMIN_DISABLED", "Admin routes are not enabled", nil)
			return
		}

		token := extractBearerToken(r)
		if token == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		if bcrypt.CompareHashAndPassword([]byte(a.tokenHash), []byte(token)) != nil {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid admin token", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
