package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nikhilbhutani/speechcoach/internal/auth"
)

// IdentityResolver derives the caller's rate-limit identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, r *http.Request) (auth.Identity, error)
}

// Identify resolves the caller and stores the identity in the request
// context. Only an authenticated-only resolver can reject a request here.
func Identify(resolver IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := resolver.Resolve(r.Context(), r)
			if err != nil {
				if errors.Is(err, auth.ErrUnauthenticated) {
					writeError(w, http.StatusUnauthorized, "Authentication required")
					return
				}
				slog.ErrorContext(r.Context(), "identity resolution failed", "error", err)
				writeError(w, http.StatusInternalServerError, "Could not identify caller")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
