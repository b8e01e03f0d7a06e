// Package ratelimit enforces per-caller hourly quotas against a durable
// request log. Every accepted request is recorded before the caller does any
// downstream work, and the check and record happen atomically in the store.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nikhilbhutani/speechcoach/internal/auth"
)

// ErrUnavailable is returned when the request log cannot be read or written.
// The limiter fails closed: such requests are denied.
var ErrUnavailable = errors.New("rate limit service unavailable")

// Key identifies one quota bucket.
type Key struct {
	Identifier string
	Class      string
	Endpoint   string
}

func (k Key) String() string {
	return k.Endpoint + ":" + k.Class + ":" + k.Identifier
}

// Usage is what a store reports after an atomic check-and-record.
type Usage struct {
	Allowed bool
	// Count is the number of records in the window, including the one just
	// written when Allowed is true.
	Count int
	// Oldest is the earliest record in the window; zero if there is none.
	Oldest time.Time
}

// Store is a durable request log. CheckAndRecord counts records for key with
// requested_at >= since and, if fewer than limit, appends one stamped now.
type Store interface {
	CheckAndRecord(ctx context.Context, key Key, limit int, since, now time.Time) (Usage, error)
}

// Decision is the outcome for one request.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// LimitError is returned for requests over quota.
type LimitError struct {
	Limit      int
	Class      string
	Window     time.Duration
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("Rate limit exceeded. %s can make %d requests per %s.", classLabel(e.Class), e.Limit, windowLabel(e.Window))
}

type Limiter struct {
	store  Store
	policy Policy
	now    func() time.Time
}

func New(store Store, policy Policy) *Limiter {
	return &Limiter{store: store, policy: policy, now: time.Now}
}

// WithClock replaces the time source.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

func (l *Limiter) Policy() Policy { return l.policy }

// CheckAndRecord admits or rejects one request for id on endpoint. A
// rejected request returns a *LimitError; a storage failure returns an error
// wrapping ErrUnavailable.
func (l *Limiter) CheckAndRecord(ctx context.Context, id auth.Identity, endpoint string) (Decision, error) {
	limit := l.policy.LimitFor(id.Kind)
	key := Key{Identifier: id.Value, Class: id.Class(), Endpoint: endpoint}
	now := l.now()

	usage, err := l.store.CheckAndRecord(ctx, key, limit, now.Add(-l.policy.Window), now)
	if err != nil {
		slog.ErrorContext(ctx, "rate limit check failed, denying request", "endpoint", endpoint, "identity", id, "error", err)
		return Decision{Limit: limit}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	d := Decision{
		Allowed:   usage.Allowed,
		Limit:     limit,
		Remaining: max(limit-usage.Count, 0),
	}
	if usage.Allowed {
		return d, nil
	}

	if !usage.Oldest.IsZero() {
		d.RetryAfter = max(usage.Oldest.Add(l.policy.Window).Sub(now), 0)
	}
	return d, &LimitError{
		Limit:      limit,
		Class:      id.Class(),
		Window:     l.policy.Window,
		RetryAfter: d.RetryAfter,
	}
}
