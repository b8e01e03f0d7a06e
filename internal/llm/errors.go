package llm

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUpstreamRateLimited matches provider replies with HTTP 429.
	ErrUpstreamRateLimited = errors.New("upstream rate limit exceeded")
	// ErrPaymentRequired matches provider replies with HTTP 402.
	ErrPaymentRequired = errors.New("upstream payment required")
)

// UpstreamError is a non-success HTTP reply from a provider.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s returned status %d: %v", e.Provider, e.StatusCode, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool {
	switch target {
	case ErrUpstreamRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case ErrPaymentRequired:
		return e.StatusCode == http.StatusPaymentRequired
	}
	return false
}

// retryable reports whether another attempt could succeed. Quota and billing
// replies will not change within a request.
func retryable(err error) bool {
	return !errors.Is(err, ErrUpstreamRateLimited) && !errors.Is(err, ErrPaymentRequired)
}
