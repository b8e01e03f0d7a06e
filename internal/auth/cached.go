package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/nikhilbhutani/speechcoach/internal/cache"
)

// CachingVerifier remembers successful verifications for a short TTL so a
// burst of requests with the same token costs one auth round trip.
// Failed verifications are never cached, and no entry outlives its token.
type CachingVerifier struct {
	next  Verifier
	cache *cache.Cache
	ttl   time.Duration
	now   func() time.Time
}

func NewCachingVerifier(next Verifier, c *cache.Cache, ttl time.Duration) *CachingVerifier {
	return &CachingVerifier{next: next, cache: c, ttl: ttl, now: time.Now}
}

func (v *CachingVerifier) Verify(ctx context.Context, token string) (*Principal, error) {
	key := hashToken(token)

	var p Principal
	if err := v.cache.Get(ctx, key, &p); err == nil && (p.ExpiresAt.IsZero() || v.now().Before(p.ExpiresAt)) {
		return &p, nil
	}

	principal, err := v.next.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	ttl := v.ttl
	if !principal.ExpiresAt.IsZero() {
		ttl = min(ttl, principal.ExpiresAt.Sub(v.now()))
	}
	if ttl <= 0 {
		return principal, nil
	}
	if err := v.cache.Set(ctx, key, principal, ttl); err != nil {
		slog.Warn("auth cache write failed", "error", err)
	}
	return principal, nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
