package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/nikhilbhutani/speechcoach/internal/config"
	"github.com/nikhilbhutani/speechcoach/internal/database"
	"github.com/nikhilbhutani/speechcoach/internal/queue"
	"github.com/nikhilbhutani/speechcoach/internal/queue/workers"
	"github.com/nikhilbhutani/speechcoach/internal/ratelimit"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to read .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateWorker(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Redis and badger expire records themselves; only the postgres log
	// needs housekeeping.
	if cfg.RateLimit.Backend != "postgres" {
		slog.Info("nothing to prune for rate limit backend", "backend", cfg.RateLimit.Backend)
		return
	}

	ctx := context.Background()
	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{"default": 1},
	})

	registry := queue.NewHandlersRegistry()
	pruneWorker := workers.NewPruneWorker(ratelimit.NewPostgresStore(db), cfg.RateLimit.Window)
	registry.Register(queue.TypePruneRateLimits, pruneWorker.ProcessTask)

	scheduler := queue.NewScheduler(cfg.Redis)
	entryID, err := scheduler.SchedulePruneRateLimits(cfg.RateLimit.PruneSchedule, cfg.RateLimit.Retention)
	if err != nil {
		slog.Error("failed to schedule prune", "error", err)
		os.Exit(1)
	}
	if err := scheduler.Start(); err != nil {
		slog.Error("scheduler error", "error", err)
		os.Exit(1)
	}
	defer scheduler.Shutdown()

	// Prune once at startup rather than waiting for the first tick.
	client := queue.NewClient(cfg.Redis)
	if err := client.EnqueuePruneRateLimits(cfg.RateLimit.Retention); err != nil {
		slog.Warn("initial prune not enqueued", "error", err)
	}
	client.Close()

	if err := srv.Start(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
	slog.Info("worker started",
		"prune_schedule", cfg.RateLimit.PruneSchedule,
		"retention", cfg.RateLimit.Retention,
		"entry_id", entryID,
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	srv.Shutdown()
}
