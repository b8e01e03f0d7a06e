package middleware

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/nikhilbhutani/speechcoach/internal/auth"
	"github.com/nikhilbhutani/speechcoach/internal/ratelimit"
)

// QuotaChecker admits and records one request against the caller's quota.
type QuotaChecker interface {
	CheckAndRecord(ctx context.Context, id auth.Identity, endpoint string) (ratelimit.Decision, error)
}

// Quota charges each request to the identity set by Identify. Requests over
// quota get 429; when the request log is unreachable the request is refused
// with 503.
func Quota(limiter QuotaChecker, endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				slog.ErrorContext(r.Context(), "quota check without identity", "endpoint", endpoint)
				writeError(w, http.StatusInternalServerError, "Could not identify caller")
				return
			}

			d, err := limiter.CheckAndRecord(r.Context(), id, endpoint)
			if d.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			}

			var limitErr *ratelimit.LimitError
			switch {
			case errors.As(err, &limitErr):
				slog.InfoContext(r.Context(), "rate limit exceeded", "endpoint", endpoint, "identity", id)
				if limitErr.RetryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(limitErr.RetryAfter.Seconds()))))
				}
				writeError(w, http.StatusTooManyRequests, limitErr.Error())
				return
			case err != nil:
				writeError(w, http.StatusServiceUnavailable, "Rate limit service unavailable. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
