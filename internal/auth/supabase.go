package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SupabaseVerifier asks the Supabase auth server who a token belongs to.
// Use it when the JWT secret is not available to this service.
type SupabaseVerifier struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewSupabaseVerifier(supabaseURL, apiKey string) *SupabaseVerifier {
	return &SupabaseVerifier{
		baseURL:    strings.TrimRight(supabaseURL, "/") + "/auth/v1",
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type supabaseUser struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	IsAnonymous bool   `json:"is_anonymous"`
}

func (v *SupabaseVerifier) Verify(ctx context.Context, token string) (*Principal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/user", nil)
	if err != nil {
		return nil, fmt.Errorf("create user request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", v.apiKey)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrInvalidToken
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("get user failed (%d): %s", resp.StatusCode, string(body))
	}

	var u supabaseUser
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}

	id, err := uuid.Parse(u.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid user ID %q", ErrInvalidToken, u.ID)
	}

	return &Principal{ID: id, Email: u.Email, IsAnonymous: u.IsAnonymous, ExpiresAt: tokenExpiry(token)}, nil
}

// tokenExpiry reads exp from a token the auth server has already accepted.
// Opaque or malformed tokens report zero.
func tokenExpiry(token string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
