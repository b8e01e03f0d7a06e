package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// Kind tags which branch of identity resolution produced an Identity.
type Kind int

const (
	KindAnonymousIP Kind = iota
	KindAnonymousSession
	KindAuthenticated
)

// UnknownOrigin is the identifier used when no network origin header is set.
const UnknownOrigin = "unknown"

// Identity is the stable bucket a caller is billed against.
type Identity struct {
	Kind  Kind
	Value string
}

func Authenticated(id string) Identity    { return Identity{Kind: KindAuthenticated, Value: id} }
func AnonymousSession(id string) Identity { return Identity{Kind: KindAnonymousSession, Value: id} }
func AnonymousIP(addr string) Identity    { return Identity{Kind: KindAnonymousIP, Value: addr} }

// Class is the identifier_type persisted with rate limit records.
func (i Identity) Class() string {
	switch i.Kind {
	case KindAuthenticated:
		return "user"
	case KindAnonymousSession:
		return "anonymous_session"
	default:
		return "ip"
	}
}

// Verified reports whether the identity came from an accepted token.
func (i Identity) Verified() bool {
	return i.Kind == KindAuthenticated || i.Kind == KindAnonymousSession
}

// LogValue keeps guest addresses out of logs.
func (i Identity) LogValue() slog.Value {
	if i.Kind == KindAnonymousIP {
		return slog.GroupValue(slog.String("class", i.Class()), slog.String("id", "guest"))
	}
	return slog.GroupValue(slog.String("class", i.Class()), slog.String("id", i.Value))
}

// Resolver derives an Identity from request headers.
type Resolver struct {
	verifier Verifier
	required bool
}

// NewResolver builds a Resolver. With required set, requests without a
// valid token are rejected with ErrUnauthenticated instead of falling back to
// their network origin.
func NewResolver(v Verifier, required bool) *Resolver {
	return &Resolver{verifier: v, required: required}
}

func (r *Resolver) Resolve(ctx context.Context, req *http.Request) (Identity, error) {
	token := extractBearerToken(req)
	if token != "" && r.verifier != nil {
		p, err := r.verifier.Verify(ctx, token)
		if err == nil {
			if p.IsAnonymous {
				return AnonymousSession(p.ID.String()), nil
			}
			return Authenticated(p.ID.String()), nil
		}
		slog.WarnContext(ctx, "token verification failed, treating caller as guest", "error", err)
	}

	if r.required {
		return Identity{}, ErrUnauthenticated
	}
	return AnonymousIP(networkOrigin(req)), nil
}

func networkOrigin(req *http.Request) string {
	if fwd := req.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(req.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return UnknownOrigin
}

func extractBearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

type ctxKey string

const identityKey ctxKey = "identity"

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the identity stored by the Identify middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
