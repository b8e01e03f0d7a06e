package ratelimit

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
)

// BadgerStore is an embedded request log for single-node deployments.
// Keys are <bucket>\x00<unix nanos, big endian><uuid>; entries expire after
// the window so the log does not grow without bound.
type BadgerStore struct {
	db *badger.DB
	// mu serializes check-and-record; badger's optimistic transactions do
	// not detect phantom inserts under a prefix scan.
	mu sync.Mutex
}

// OpenBadgerStore opens (or creates) a store at path. An empty path opens an
// in-memory store.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	} else if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create rate limit directory: %w", err)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) CheckAndRecord(ctx context.Context, key Key, limit int, since, now time.Time) (Usage, error) {
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := append([]byte(key.String()), 0)
	var usage Usage

	err := s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})

		sinceNanos := since.UnixNano()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().Key()
			if len(k) < len(prefix)+8 {
				continue
			}
			ts := int64(binary.BigEndian.Uint64(k[len(prefix) : len(prefix)+8]))
			if ts < sinceNanos {
				continue
			}
			if usage.Count == 0 {
				usage.Oldest = time.Unix(0, ts)
			}
			usage.Count++
		}
		it.Close()

		if usage.Count >= limit {
			return nil
		}

		id := uuid.New()
		recordKey := make([]byte, 0, len(prefix)+8+len(id))
		recordKey = append(recordKey, prefix...)
		recordKey = binary.BigEndian.AppendUint64(recordKey, uint64(now.UnixNano()))
		recordKey = append(recordKey, id[:]...)

		ttl := now.Sub(since)
		if ttl <= 0 {
			ttl = time.Second
		}
		if err := txn.SetEntry(badger.NewEntry(recordKey, nil).WithTTL(ttl)); err != nil {
			return err
		}

		usage.Allowed = true
		usage.Count++
		if usage.Oldest.IsZero() {
			usage.Oldest = now
		}
		return nil
	})
	if err != nil {
		return Usage{}, fmt.Errorf("badger check and record: %w", err)
	}
	return usage, nil
}
