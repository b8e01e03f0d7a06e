package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps the request log in the rate_limits table. Each check
// runs in a transaction holding an advisory lock on the bucket, so concurrent
// requests from one caller are serialized and cannot overrun the quota.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CheckAndRecord(ctx context.Context, key Key, limit int, since, now time.Time) (Usage, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Usage{}, fmt.Errorf("begin rate limit tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key.String()); err != nil {
		return Usage{}, fmt.Errorf("lock rate limit bucket: %w", err)
	}

	var count int
	var oldest *time.Time
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*), MIN(requested_at) FROM rate_limits
		 WHERE identifier = $1 AND identifier_type = $2 AND endpoint = $3 AND requested_at >= $4`,
		key.Identifier, key.Class, key.Endpoint, since,
	).Scan(&count, &oldest)
	if err != nil {
		return Usage{}, fmt.Errorf("count rate limit records: %w", err)
	}

	usage := Usage{Count: count}
	if oldest != nil {
		usage.Oldest = *oldest
	}

	if count >= limit {
		return usage, tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO rate_limits (identifier, identifier_type, endpoint, requested_at)
		 VALUES ($1, $2, $3, $4)`,
		key.Identifier, key.Class, key.Endpoint, now,
	); err != nil {
		return Usage{}, fmt.Errorf("insert rate limit record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Usage{}, fmt.Errorf("commit rate limit record: %w", err)
	}

	usage.Allowed = true
	usage.Count++
	if usage.Oldest.IsZero() {
		usage.Oldest = now
	}
	return usage, nil
}

// Prune deletes records older than before and reports how many were removed.
func (s *PostgresStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM rate_limits WHERE requested_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune rate limits: %w", err)
	}
	return tag.RowsAffected(), nil
}
