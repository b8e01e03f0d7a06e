package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrUnauthenticated = errors.New("authentication required")
)

// Principal is a caller whose bearer token was accepted by the auth provider.
type Principal struct {
	ID          uuid.UUID
	Email       string
	IsAnonymous bool
	// ExpiresAt is when the token stops being valid; zero if unknown.
	ExpiresAt time.Time
}

// Verifier turns a bearer token into a Principal.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}
