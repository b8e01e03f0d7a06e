package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/speechcoach/internal/queue"
)

// Pruner deletes rate-limit records older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

type PruneWorker struct {
	store Pruner
	// window is the shortest retention accepted; records inside the live
	// window are never deleted.
	window time.Duration
	now    func() time.Time
}

func NewPruneWorker(store Pruner, window time.Duration) *PruneWorker {
	return &PruneWorker{store: store, window: window, now: time.Now}
}

func (w *PruneWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.PruneRateLimitsPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	retention := payload.Retention
	if retention < w.window {
		slog.WarnContext(ctx, "prune retention shorter than rate limit window, using window",
			"retention", retention, "window", w.window)
		retention = w.window
	}

	before := w.now().Add(-retention)
	n, err := w.store.Prune(ctx, before)
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "rate limit records pruned", "deleted", n, "before", before)
	return nil
}
