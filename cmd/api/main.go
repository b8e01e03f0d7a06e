package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/speechcoach/internal/api"
	"github.com/nikhilbhutani/speechcoach/internal/api/handlers"
	"github.com/nikhilbhutani/speechcoach/internal/auth"
	"github.com/nikhilbhutani/speechcoach/internal/cache"
	"github.com/nikhilbhutani/speechcoach/internal/coaching"
	"github.com/nikhilbhutani/speechcoach/internal/config"
	"github.com/nikhilbhutani/speechcoach/internal/database"
	"github.com/nikhilbhutani/speechcoach/internal/llm"
	"github.com/nikhilbhutani/speechcoach/internal/ratelimit"
	"github.com/nikhilbhutani/speechcoach/internal/sessions"
	"github.com/nikhilbhutani/speechcoach/internal/storage"
	"github.com/nikhilbhutani/speechcoach/internal/transcription"
	"github.com/nikhilbhutani/speechcoach/migrations"
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
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	var checks []handlers.Check

	// Database is required only by the postgres rate-limit backend; session
	// history is served whenever it is reachable.
	db, err := database.NewPool(ctx, cfg.Database)
	switch {
	case err == nil:
		defer db.Close()
		var migrationsFS fs.FS = migrations.FS
		if cfg.Database.MigrationsPath != "" {
			migrationsFS = os.DirFS(cfg.Database.MigrationsPath)
		}
		if err := database.RunMigrations(ctx, db, migrationsFS); err != nil {
			slog.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		checks = append(checks, handlers.Check{Name: "database", Ping: db.Ping})
	case cfg.RateLimit.Backend == "postgres":
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	case errors.Is(err, database.ErrNotConfigured):
		slog.Info("no database configured, session history disabled")
	default:
		slog.Warn("database unavailable, session history disabled", "error", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	redisUp := rdb.Ping(ctx).Err() == nil
	if redisUp || cfg.RateLimit.Backend == "redis" {
		checks = append(checks, handlers.Check{Name: "redis", Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }})
	} else {
		slog.Warn("redis unavailable, running without token cache")
	}

	store, closeStore, err := rateLimitStore(cfg.RateLimit, db, rdb)
	if err != nil {
		slog.Error("rate limit store unavailable", "backend", cfg.RateLimit.Backend, "error", err)
		os.Exit(1)
	}
	defer closeStore()
	limiter := ratelimit.New(store, ratelimit.PolicyFromConfig(cfg.RateLimit))

	var verifier auth.Verifier
	if cfg.Auth.Mode == "jwt" {
		verifier = auth.NewJWTVerifier(cfg.Auth.JWTSecret)
	} else {
		verifier = auth.NewSupabaseVerifier(cfg.Auth.SupabaseURL, cfg.Auth.SupabaseKey)
	}
	if redisUp && cfg.Auth.CacheTTL > 0 {
		verifier = auth.NewCachingVerifier(verifier, cache.NewCache(rdb, "auth:"), cfg.Auth.CacheTTL)
	}

	deps := api.Deps{
		Config:   cfg,
		Resolver: auth.NewResolver(verifier, cfg.Auth.Required),
		Limiter:  limiter,
		Checks:   checks,
	}

	if cfg.Enabled(config.EndpointTranscribe) {
		client := transcription.NewAssemblyAI(transcription.AssemblyAIConfig{
			APIKey:  cfg.STT.AssemblyAIKey,
			BaseURL: cfg.STT.BaseURL,
		})
		poller := transcription.NewPoller(client, cfg.STT.PollInterval, cfg.STT.MaxPollAttempts)
		deps.Transcriber = transcription.NewService(client, poller)
	}
	if cfg.Enabled(config.EndpointAnalyze) {
		deps.Coach = coaching.NewCoach(llm.NewGateway(cfg.LLM), cfg.LLM.DefaultModel)
	}
	if db != nil {
		deps.Sessions = sessions.NewService(db)
	}
	if cfg.Storage.ArchiveAudio {
		if cfg.Storage.SupabaseURL == "" || cfg.Storage.SupabaseKey == "" {
			slog.Warn("audio archive enabled without storage credentials, archive disabled")
		} else {
			objects := storage.NewSupabaseStorage(cfg.Storage.SupabaseURL, cfg.Storage.SupabaseKey)
			deps.Archive = storage.NewAudioArchive(objects, cfg.Storage.Bucket)
		}
	}

	srv := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     api.NewRouter(deps).Setup(),
		ReadTimeout: 30 * time.Second,
		// Transcription polls for up to MaxPollAttempts * PollInterval.
		WriteTimeout: time.Duration(cfg.STT.MaxPollAttempts)*cfg.STT.PollInterval + time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server",
			"addr", cfg.Addr(),
			"endpoints", cfg.Endpoints,
			"rate_limit_backend", cfg.RateLimit.Backend,
			"auth_mode", cfg.Auth.Mode,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func rateLimitStore(cfg config.RateLimitConfig, db *pgxpool.Pool, rdb *redis.Client) (ratelimit.Store, func(), error) {
	switch cfg.Backend {
	case "redis":
		return ratelimit.NewRedisStore(rdb), func() {}, nil
	case "badger":
		s, err := ratelimit.OpenBadgerStore(cfg.BadgerPath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	default:
		if db == nil {
			return nil, nil, database.ErrNotConfigured
		}
		return ratelimit.NewPostgresStore(db), func() {}, nil
	}
}
