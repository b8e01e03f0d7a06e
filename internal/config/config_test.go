package config

import (
	"strings"
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ASSEMBLYAI_API_KEY", "aai-key")
	t.Setenv("LOVABLE_API_KEY", "gw-key")
	t.Setenv("SUPABASE_JWT_SECRET", "secret")
	t.Setenv("DATABASE_URL", "postgres://localhost/speechcoach")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Auth.Mode != "jwt" {
		t.Errorf("auth mode = %q, want jwt when a JWT secret is set", cfg.Auth.Mode)
	}
	if cfg.RateLimit.UserLimit != 20 || cfg.RateLimit.GuestLimit != 3 || cfg.RateLimit.AnonSessionLimit != 3 {
		t.Errorf("unexpected quota defaults: %+v", cfg.RateLimit)
	}
	if cfg.RateLimit.Window != time.Hour {
		t.Errorf("window = %v, want 1h", cfg.RateLimit.Window)
	}
	if cfg.STT.PollInterval != 5*time.Second || cfg.STT.MaxPollAttempts != 60 {
		t.Errorf("unexpected poll defaults: %+v", cfg.STT)
	}
	if !cfg.Enabled(EndpointTranscribe) || !cfg.Enabled(EndpointAnalyze) {
		t.Errorf("both endpoints should be enabled by default, got %v", cfg.Endpoints)
	}
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Errorf("addr = %q", cfg.Addr())
	}
}

func TestValidateReportsMissingKeys(t *testing.T) {
	t.Setenv("SUPABASE_JWT_SECRET", "secret")
	t.Setenv("RATE_LIMIT_BACKEND", "redis")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"ASSEMBLYAI_API_KEY", "LOVABLE_API_KEY"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
	if strings.Contains(err.Error(), "DATABASE_URL") {
		t.Errorf("redis backend should not require DATABASE_URL: %v", err)
	}
}

func TestValidateOnlyChecksEnabledEndpoints(t *testing.T) {
	t.Setenv("SUPABASE_JWT_SECRET", "secret")
	t.Setenv("RATE_LIMIT_BACKEND", "badger")
	t.Setenv("ENABLED_ENDPOINTS", "analyze")
	t.Setenv("LOVABLE_API_KEY", "gw-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Enabled(EndpointTranscribe) {
		t.Fatal("transcribe should be disabled")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("RATE_LIMIT_BACKEND", "memcached")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestSupabaseModeRequiresServiceKey(t *testing.T) {
	t.Setenv("ASSEMBLYAI_API_KEY", "aai-key")
	t.Setenv("LOVABLE_API_KEY", "gw-key")
	t.Setenv("DATABASE_URL", "postgres://localhost/speechcoach")
	t.Setenv("SUPABASE_URL", "https://example.supabase.co")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.Mode != "supabase" {
		t.Fatalf("auth mode = %q, want supabase", cfg.Auth.Mode)
	}
	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "SUPABASE_SERVICE_ROLE_KEY") {
		t.Fatalf("expected missing service role key, got %v", err)
	}
}

func TestLoadRejectsMalformedNumbers(t *testing.T) {
	t.Setenv("RATE_LIMIT_GUEST", "three")
	if _, err := Load(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidateWorker(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/speechcoach")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// The worker runs without any endpoint API keys.
	if err := cfg.ValidateWorker(); err != nil {
		t.Fatalf("ValidateWorker: %v", err)
	}

	t.Setenv("RATE_LIMIT_RETENTION", "30m")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.ValidateWorker(); err == nil || !strings.Contains(err.Error(), "Retention") {
		t.Fatalf("expected retention shorter than window to be rejected, got %v", err)
	}
}

func TestValidateWorkerRequiresDatabaseForPostgres(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	err = cfg.ValidateWorker()
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected missing DATABASE_URL, got %v", err)
	}
	if strings.Contains(err.Error(), "ASSEMBLYAI_API_KEY") {
		t.Fatalf("worker should not require endpoint keys: %v", err)
	}
}
