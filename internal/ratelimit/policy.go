package ratelimit

import (
	"time"

	"github.com/nikhilbhutani/speechcoach/internal/auth"
	"github.com/nikhilbhutani/speechcoach/internal/config"
)

// Policy maps identity classes to requests allowed per window.
type Policy struct {
	User             int
	AnonymousSession int
	IP               int
	Window           time.Duration
}

func PolicyFromConfig(cfg config.RateLimitConfig) Policy {
	return Policy{
		User:             cfg.UserLimit,
		AnonymousSession: cfg.AnonSessionLimit,
		IP:               cfg.GuestLimit,
		Window:           cfg.Window,
	}
}

func (p Policy) LimitFor(kind auth.Kind) int {
	switch kind {
	case auth.KindAuthenticated:
		return p.User
	case auth.KindAnonymousSession:
		return p.AnonymousSession
	default:
		return p.IP
	}
}

func classLabel(class string) string {
	switch class {
	case "user":
		return "Authenticated users"
	case "anonymous_session":
		return "Guest sessions"
	default:
		return "Guest users"
	}
}

func windowLabel(d time.Duration) string {
	switch d {
	case time.Hour:
		return "hour"
	case time.Minute:
		return "minute"
	case 24 * time.Hour:
		return "day"
	default:
		return d.String()
	}
}
