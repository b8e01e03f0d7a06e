package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	EndpointTranscribe = "transcribe"
	EndpointAnalyze    = "analyze"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	LLM       LLMConfig
	STT       STTConfig
	Storage   StorageConfig
	Endpoints []string `validate:"min=1,dive,oneof=transcribe analyze"`
}

type ServerConfig struct {
	Host           string
	Port           int      `validate:"gt=0,lte=65535"`
	AllowedOrigins []string `validate:"min=1"`
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int `validate:"gt=0"`
	MinConns       int `validate:"gte=0"`
	MigrationsPath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int `validate:"gte=0"`
}

type AuthConfig struct {
	Mode        string `validate:"oneof=jwt supabase"`
	SupabaseURL string `validate:"omitempty,url"`
	SupabaseKey string
	JWTSecret   string
	// Required rejects callers without a valid bearer token instead of
	// treating them as guests.
	Required bool
	CacheTTL time.Duration `validate:"gte=0"`
}

type RateLimitConfig struct {
	Backend          string        `validate:"oneof=postgres redis badger"`
	UserLimit        int           `validate:"gt=0"`
	AnonSessionLimit int           `validate:"gt=0"`
	GuestLimit       int           `validate:"gt=0"`
	Window           time.Duration `validate:"gt=0"`
	Retention        time.Duration `validate:"gtefield=Window"`
	PruneSchedule    string        `validate:"required"`
	BadgerPath       string
}

type LLMConfig struct {
	GatewayURL       string `validate:"omitempty,url"`
	GatewayKey       string
	AnthropicKey     string
	DefaultProvider  string `validate:"oneof=openai anthropic"`
	DefaultModel     string `validate:"required"`
	FallbackProvider string `validate:"omitempty,oneof=openai anthropic"`
	FallbackModel    string
	MaxRetries       int `validate:"gte=0,lte=5"`
}

type STTConfig struct {
	AssemblyAIKey   string
	BaseURL         string        `validate:"required,url"`
	PollInterval    time.Duration `validate:"gt=0"`
	MaxPollAttempts int           `validate:"gt=0"`
}

type StorageConfig struct {
	SupabaseURL  string
	SupabaseKey  string
	Bucket       string
	ArchiveAudio bool
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	authRequired, err := getEnvBool("AUTH_REQUIRED", false)
	if err != nil {
		return nil, fmt.Errorf("invalid AUTH_REQUIRED: %w", err)
	}

	authCacheTTL, err := getEnvDuration("AUTH_CACHE_TTL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid AUTH_CACHE_TTL: %w", err)
	}

	userLimit, err := getEnvInt("RATE_LIMIT_USER", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_USER: %w", err)
	}

	anonSessionLimit, err := getEnvInt("RATE_LIMIT_ANON_SESSION", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_ANON_SESSION: %w", err)
	}

	guestLimit, err := getEnvInt("RATE_LIMIT_GUEST", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_GUEST: %w", err)
	}

	window, err := getEnvDuration("RATE_LIMIT_WINDOW", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_WINDOW: %w", err)
	}

	retention, err := getEnvDuration("RATE_LIMIT_RETENTION", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RETENTION: %w", err)
	}

	maxRetries, err := getEnvInt("LLM_MAX_RETRIES", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_MAX_RETRIES: %w", err)
	}

	pollInterval, err := getEnvDuration("STT_POLL_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid STT_POLL_INTERVAL: %w", err)
	}

	maxPollAttempts, err := getEnvInt("STT_MAX_POLL_ATTEMPTS", 60)
	if err != nil {
		return nil, fmt.Errorf("invalid STT_MAX_POLL_ATTEMPTS: %w", err)
	}

	archiveAudio, err := getEnvBool("ARCHIVE_AUDIO", false)
	if err != nil {
		return nil, fmt.Errorf("invalid ARCHIVE_AUDIO: %w", err)
	}

	jwtSecret := getEnv("SUPABASE_JWT_SECRET", "")
	authMode := "supabase"
	if jwtSecret != "" {
		authMode = "jwt"
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           port,
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       maxConns,
			MinConns:       minConns,
			MigrationsPath: getEnv("MIGRATIONS_PATH", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			Mode:        getEnv("AUTH_MODE", authMode),
			SupabaseURL: getEnv("SUPABASE_URL", ""),
			SupabaseKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
			JWTSecret:   jwtSecret,
			Required:    authRequired,
			CacheTTL:    authCacheTTL,
		},
		RateLimit: RateLimitConfig{
			Backend:          getEnv("RATE_LIMIT_BACKEND", "postgres"),
			UserLimit:        userLimit,
			AnonSessionLimit: anonSessionLimit,
			GuestLimit:       guestLimit,
			Window:           window,
			Retention:        retention,
			PruneSchedule:    getEnv("RATE_LIMIT_PRUNE_SCHEDULE", "@every 1h"),
			BadgerPath:       getEnv("RATE_LIMIT_BADGER_PATH", "./data/ratelimit"),
		},
		LLM: LLMConfig{
			GatewayURL:       getEnv("AI_GATEWAY_URL", "https://ai.gateway.lovable.dev/v1"),
			GatewayKey:       getEnv("LOVABLE_API_KEY", getEnv("OPENAI_API_KEY", "")),
			AnthropicKey:     getEnv("ANTHROPIC_API_KEY", ""),
			DefaultProvider:  getEnv("LLM_DEFAULT_PROVIDER", "openai"),
			DefaultModel:     getEnv("LLM_DEFAULT_MODEL", "google/gemini-2.5-flash"),
			FallbackProvider: getEnv("LLM_FALLBACK_PROVIDER", ""),
			FallbackModel:    getEnv("LLM_FALLBACK_MODEL", "claude-3-haiku-20240307"),
			MaxRetries:       maxRetries,
		},
		STT: STTConfig{
			AssemblyAIKey:   getEnv("ASSEMBLYAI_API_KEY", ""),
			BaseURL:         getEnv("ASSEMBLYAI_BASE_URL", "https://api.assemblyai.com"),
			PollInterval:    pollInterval,
			MaxPollAttempts: maxPollAttempts,
		},
		Storage: StorageConfig{
			SupabaseURL:  getEnv("SUPABASE_URL", ""),
			SupabaseKey:  getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
			Bucket:       getEnv("STORAGE_BUCKET", "recordings"),
			ArchiveAudio: archiveAudio,
		},
		Endpoints: getEnvList("ENABLED_ENDPOINTS", []string{EndpointTranscribe, EndpointAnalyze}),
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Enabled reports whether the named endpoint is served by this process.
func (c *Config) Enabled(endpoint string) bool {
	for _, e := range c.Endpoints {
		if e == endpoint {
			return true
		}
	}
	return false
}

// Validate checks field ranges and that every secret the enabled endpoints
// and backends depend on is present.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var missing []string
	if c.Enabled(EndpointTranscribe) && c.STT.AssemblyAIKey == "" {
		missing = append(missing, "ASSEMBLYAI_API_KEY")
	}
	if c.Enabled(EndpointAnalyze) {
		if c.LLM.DefaultProvider == "openai" && c.LLM.GatewayKey == "" {
			missing = append(missing, "LOVABLE_API_KEY")
		}
		if (c.LLM.DefaultProvider == "anthropic" || c.LLM.FallbackProvider == "anthropic") && c.LLM.AnthropicKey == "" {
			missing = append(missing, "ANTHROPIC_API_KEY")
		}
	}

	switch c.Auth.Mode {
	case "jwt":
		if c.Auth.JWTSecret == "" {
			missing = append(missing, "SUPABASE_JWT_SECRET")
		}
	case "supabase":
		if c.Auth.SupabaseURL == "" {
			missing = append(missing, "SUPABASE_URL")
		}
		if c.Auth.SupabaseKey == "" {
			missing = append(missing, "SUPABASE_SERVICE_ROLE_KEY")
		}
	}

	missing = append(missing, c.missingBackendVars()...)

	if c.Storage.ArchiveAudio && (c.Storage.SupabaseURL == "" || c.Storage.SupabaseKey == "") {
		missing = append(missing, "SUPABASE_URL/SUPABASE_SERVICE_ROLE_KEY (ARCHIVE_AUDIO)")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ValidateWorker checks what the housekeeping worker needs: field ranges,
// the rate-limit backend and the Redis instance asynq runs on. API keys for
// the HTTP endpoints are not required.
func (c *Config) ValidateWorker() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	missing := c.missingBackendVars()
	if c.Redis.Addr == "" && c.RateLimit.Backend != "redis" {
		missing = append(missing, "REDIS_ADDR")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) missingBackendVars() []string {
	var missing []string
	switch c.RateLimit.Backend {
	case "postgres":
		if c.Database.URL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case "redis":
		if c.Redis.Addr == "" {
			missing = append(missing, "REDIS_ADDR")
		}
	case "badger":
		if c.RateLimit.BadgerPath == "" {
			missing = append(missing, "RATE_LIMIT_BADGER_PATH")
		}
	}
	return missing
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}
