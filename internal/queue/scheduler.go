package queue

import (
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/speechcoach/internal/config"
)

type Scheduler struct {
	scheduler *asynq.Scheduler
}

func NewScheduler(cfg config.RedisConfig) *Scheduler {
	return &Scheduler{
		scheduler: asynq.NewScheduler(redisOpt(cfg), &asynq.SchedulerOpts{Location: time.UTC}),
	}
}

// SchedulePruneRateLimits registers the periodic prune. spec is a cron
// expression or an "@every <duration>" string.
func (s *Scheduler) SchedulePruneRateLimits(spec string, retention time.Duration) (string, error) {
	task, err := NewPruneRateLimitsTask(retention)
	if err != nil {
		return "", err
	}
	id, err := s.scheduler.Register(spec, task)
	if err != nil {
		return "", fmt.Errorf("register %s %q: %w", TypePruneRateLimits, spec, err)
	}
	return id, nil
}

// Start begins enqueuing registered tasks in the background.
func (s *Scheduler) Start() error {
	return s.scheduler.Start()
}

func (s *Scheduler) Shutdown() {
	s.scheduler.Shutdown()
}
