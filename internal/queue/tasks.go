package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypePruneRateLimits = "ratelimit:prune"
)

// PruneRateLimitsPayload asks a worker to drop rate-limit records older than
// Retention, measured from when the task runs.
type PruneRateLimitsPayload struct {
	Retention time.Duration `json:"retention"`
}

func NewPruneRateLimitsTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(PruneRateLimitsPayload{Retention: retention})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(TypePruneRateLimits, data, asynq.MaxRetry(3), asynq.Timeout(5*time.Minute)), nil
}
