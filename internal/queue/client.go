package queue

import (
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/speechcoach/internal/config"
)

func redisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

type Client struct {
	client *asynq.Client
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{client: asynq.NewClient(redisOpt(cfg))}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueuePruneRateLimits schedules a one-off prune. Duplicates submitted
// within the same hour collapse into one task.
func (c *Client) EnqueuePruneRateLimits(retention time.Duration) error {
	task, err := NewPruneRateLimitsTask(retention)
	if err != nil {
		return err
	}
	if _, err := c.client.Enqueue(task, asynq.Unique(time.Hour)); err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
		return fmt.Errorf("enqueue %s: %w", TypePruneRateLimits, err)
	}
	return nil
}
