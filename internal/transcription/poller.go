package transcription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrTimeout means the job never reached a terminal state within the
// attempt ceiling. It is distinct from a *RemoteError.
var ErrTimeout = errors.New("transcription timeout")

// RemoteError is a job that the provider reported as failed.
type RemoteError struct {
	JobID   string
	Message string
}

func (e *RemoteError) Error() string {
	return "Transcription failed: " + e.Message
}

// State is the poller's view of a job.
type State int

const (
	StatePolling State = iota
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePolling:
		return "polling"
	case StateCompleted:
		return "completed"
	default:
		return "failed"
	}
}

// Sleeper suspends between polls. Sleep returns early with ctx.Err() when
// the context is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// JobGetter fetches job status by id.
type JobGetter interface {
	Get(ctx context.Context, id string) (*Job, error)
}

// Poller drives a job from Polling to Completed or Failed. It waits one
// interval before every status request and gives up after MaxAttempts.
type Poller struct {
	jobs        JobGetter
	interval    time.Duration
	maxAttempts int
	sleeper     Sleeper
}

func NewPoller(jobs JobGetter, interval time.Duration, maxAttempts int) *Poller {
	return &Poller{jobs: jobs, interval: interval, maxAttempts: maxAttempts, sleeper: timerSleeper{}}
}

// WithSleeper replaces the sleep implementation.
func (p *Poller) WithSleeper(s Sleeper) *Poller {
	p.sleeper = s
	return p
}

// Wait polls job id until it completes. A failed job returns *RemoteError,
// an exhausted ceiling returns an error wrapping ErrTimeout, and a cancelled
// context returns ctx.Err().
func (p *Poller) Wait(ctx context.Context, id string) (*Job, error) {
	state := StatePolling
	var job *Job

	for attempt := 1; state == StatePolling; attempt++ {
		if attempt > p.maxAttempts {
			return nil, fmt.Errorf("%w after %d attempts", ErrTimeout, p.maxAttempts)
		}
		if err := p.sleeper.Sleep(ctx, p.interval); err != nil {
			return nil, err
		}

		var err error
		job, err = p.jobs.Get(ctx, id)
		if err != nil {
			return nil, err
		}

		state = next(job.Status)
		slog.DebugContext(ctx, "transcription status", "job_id", id, "attempt", attempt, "status", job.Status)
	}

	if state == StateFailed {
		return nil, &RemoteError{JobID: id, Message: job.Error}
	}
	return job, nil
}

func next(s Status) State {
	switch s {
	case StatusCompleted:
		return StateCompleted
	case StatusFailed:
		return StateFailed
	default:
		return StatePolling
	}
}
