package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nikhilbhutani/speechcoach/internal/api/handlers"
	"github.com/nikhilbhutani/speechcoach/internal/auth"
	"github.com/nikhilbhutani/speechcoach/internal/coaching"
	"github.com/nikhilbhutani/speechcoach/internal/config"
	"github.com/nikhilbhutani/speechcoach/internal/llm"
	"github.com/nikhilbhutani/speechcoach/internal/models"
	"github.com/nikhilbhutani/speechcoach/internal/ratelimit"
	"github.com/nikhilbhutani/speechcoach/internal/sessions"
	"github.com/nikhilbhutani/speechcoach/internal/transcription"
	"github.com/nikhilbhutani/speechcoach/internal/validation"
)

const jwtSecret = "router-test-secret-router-test-secret"

type fakeTranscriber struct {
	calls atomic.Int32
	err   error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audio []byte) (*transcription.Result, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &transcription.Result{
		Transcript:      "Um, I think, uh, this is a great idea, you know",
		FillerWordCount: 3,
		WordCount:       11,
		Duration:        10,
		Confidence:      0.9,
	}, nil
}

type fakeCoach struct {
	calls atomic.Int32
	err   error
}

func (f *fakeCoach) Analyze(_ context.Context, req coaching.Request) (*coaching.Report, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &coaching.Report{
		Metrics:  coaching.ComputeMetrics(req.Transcript, req.Duration, req.FillerWordCount),
		Feedback: coaching.FallbackFeedback(),
	}, nil
}

type fakeArchive struct{}

func (fakeArchive) Archive(_ context.Context, userID string, _ []byte) (string, error) {
	return userID + "/clip.webm", nil
}

type fakeSessions struct{}

func (fakeSessions) Create(_ context.Context, userID uuid.UUID, req sessions.CreateRequest) (*models.PracticeSession, error) {
	return &models.PracticeSession{ID: uuid.New(), UserID: userID, Transcript: req.Transcript}, nil
}

func (fakeSessions) List(_ context.Context, userID uuid.UUID, _, _ int) ([]models.PracticeSession, error) {
	return []models.PracticeSession{{UserID: userID}}, nil
}

type brokenStore struct{}

func (brokenStore) CheckAndRecord(context.Context, ratelimit.Key, int, time.Time, time.Time) (ratelimit.Usage, error) {
	return ratelimit.Usage{}, errors.New("connection refused")
}

type testEnv struct {
	handler     http.Handler
	transcriber *fakeTranscriber
	coach       *fakeCoach
}

type envOption func(*Deps, *config.Config)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Server:    config.ServerConfig{AllowedOrigins: []string{"*"}},
		Endpoints: []string{config.EndpointTranscribe, config.EndpointAnalyze},
	}

	store, err := ratelimit.OpenBadgerStore("")
	if err != nil {
		t.Fatalf("OpenBadgerStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	env := &testEnv{transcriber: &fakeTranscriber{}, coach: &fakeCoach{}}
	deps := Deps{
		Config:      cfg,
		Resolver:    auth.NewResolver(auth.NewJWTVerifier(jwtSecret), false),
		Limiter:     ratelimit.New(store, ratelimit.Policy{User: 20, AnonymousSession: 3, IP: 3, Window: time.Hour}),
		Transcriber: env.transcriber,
		Coach:       env.coach,
	}
	for _, opt := range opts {
		opt(&deps, cfg)
	}
	env.handler = NewRouter(deps).Setup()
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func bearer(t *testing.T, sub string, anonymous bool) map[string]string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		IsAnonymous: anonymous,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(jwtSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + tok, "X-Forwarded-For": "203.0.113.9"}
}

var guest = map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}

const analyzeBody = `{"transcript":"Um, I think, uh, this is a great idea, you know","duration":10,"fillerWordCount":3}`

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body.Error
}

func TestPreflight(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/functions/v1/transcribe-audio", "/functions/v1/analyze-speech", "/api/v1/analyze"} {
		rec := env.do(t, http.MethodOptions, path, "", map[string]string{"Origin": "https://app.example"})
		if rec.Code != http.StatusNoContent {
			t.Fatalf("%s: status = %d", path, rec.Code)
		}
		if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Fatalf("%s: missing allow-origin", path)
		}
		if h := rec.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(h, "authorization") || !strings.Contains(h, "content-type") {
			t.Fatalf("%s: allow-headers = %q", path, h)
		}
	}
	if env.transcriber.calls.Load() != 0 || env.coach.calls.Load() != 0 {
		t.Fatal("preflight reached a handler")
	}
}

func TestAnalyzeSuccess(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/functions/v1/analyze-speech", analyzeBody, guest)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS header on response")
	}

	var resp struct {
		Metrics struct {
			FluencyScore    int `json:"fluencyScore"`
			WordCount       int `json:"wordCount"`
			SpeechRate      int `json:"speechRate"`
			FillerWordCount int `json:"fillerWordCount"`
		} `json:"metrics"`
		Feedback struct {
			Delivery []string `json:"delivery"`
			Content  []string `json:"content"`
		} `json:"feedback"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Metrics.FluencyScore != 70 || resp.Metrics.WordCount != 11 || resp.Metrics.SpeechRate != 66 {
		t.Fatalf("metrics = %+v", resp.Metrics)
	}
	if len(resp.Feedback.Delivery) == 0 || len(resp.Feedback.Content) == 0 {
		t.Fatalf("feedback = %+v", resp.Feedback)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "3" || rec.Header().Get("X-RateLimit-Remaining") != "2" {
		t.Fatalf("rate limit headers: %v", rec.Header())
	}
}

func TestGuestFourthRequestRejected(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		if rec := env.do(t, http.MethodPost, "/functions/v1/analyze-speech", analyzeBody, guest); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i+1, rec.Code)
		}
	}

	rec := env.do(t, http.MethodPost, "/api/v1/analyze", analyzeBody, guest)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if msg := errorMessage(t, rec); !strings.Contains(msg, "3") {
		t.Fatalf("message %q does not contain the limit", msg)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After")
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS header on 429")
	}
	if got := env.coach.calls.Load(); got != 3 {
		t.Fatalf("coach called %d times, want 3", got)
	}

	// Endpoints keep separate quotas.
	audio := base64.StdEncoding.EncodeToString([]byte("RIFF....WAVE"))
	if rec := env.do(t, http.MethodPost, "/functions/v1/transcribe-audio", `{"audio":"`+audio+`"}`, guest); rec.Code != http.StatusOK {
		t.Fatalf("transcribe status = %d", rec.Code)
	}
}

func TestIdentityClassesHaveIndependentQuotas(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		env.do(t, http.MethodPost, "/api/v1/analyze", analyzeBody, guest)
	}
	if rec := env.do(t, http.MethodPost, "/api/v1/analyze", analyzeBody, guest); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("guest status = %d", rec.Code)
	}

	// Same network origin, but signed in.
	user := bearer(t, uuid.NewString(), false)
	rec := env.do(t, http.MethodPost, "/api/v1/analyze", analyzeBody, user)
	if rec.Code != http.StatusOK {
		t.Fatalf("user status = %d", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "20" {
		t.Fatalf("user limit = %q", rec.Header().Get("X-RateLimit-Limit"))
	}

	// An invalid token falls back to the exhausted guest bucket.
	bad := map[string]string{"Authorization": "Bearer not-a-jwt", "X-Forwarded-For": "203.0.113.9"}
	if rec := env.do(t, http.MethodPost, "/api/v1/analyze", analyzeBody, bad); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("invalid token status = %d", rec.Code)
	}
}

func TestValidationRunsBeforeUpstream(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		path, body, want string
	}{
		{"/functions/v1/transcribe-audio", `{"audio":"not base64!"}`, "Invalid base64 format"},
		{"/functions/v1/transcribe-audio", `{"audio":42}`, "Audio must be a base64 string"},
		{"/functions/v1/analyze-speech", `{"transcript":"   ","duration":10,"fillerWordCount":0}`, "Transcript cannot be empty"},
		{"/functions/v1/analyze-speech", `{"transcript":"hello","duration":0,"fillerWordCount":0}`, "Duration"},
		{"/functions/v1/analyze-speech", `{"transcript":"hello","duration":10,"fillerWordCount":1.5}`, "whole number"},
		{"/functions/v1/analyze-speech", `not json`, "Invalid JSON body"},
	}
	for _, tt := range tests {
		hdr := bearer(t, uuid.NewString(), false)
		rec := env.do(t, http.MethodPost, tt.path, tt.body, hdr)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s %s: status = %d", tt.path, tt.body, rec.Code)
		}
		if msg := errorMessage(t, rec); !strings.Contains(msg, tt.want) {
			t.Fatalf("%s %s: error %q, want %q", tt.path, tt.body, msg, tt.want)
		}
	}
	if env.transcriber.calls.Load() != 0 || env.coach.calls.Load() != 0 {
		t.Fatal("invalid request reached an upstream service")
	}
}

func TestAnalyzeUpstreamErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
		msg    string
	}{
		{&llm.UpstreamError{Provider: "openai", StatusCode: 429, Err: errors.New("slow down")}, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later."},
		{&llm.UpstreamError{Provider: "openai", StatusCode: 402, Err: errors.New("no credits")}, http.StatusPaymentRequired, "Payment required. Please add funds to your workspace."},
		{&llm.UpstreamError{Provider: "openai", StatusCode: 500, Err: errors.New("boom")}, http.StatusInternalServerError, "AI analysis failed"},
	}
	for _, tt := range tests {
		env := newTestEnv(t)
		env.coach.err = tt.err
		rec := env.do(t, http.MethodPost, "/functions/v1/analyze-speech", analyzeBody, bearer(t, uuid.NewString(), false))
		if rec.Code != tt.status {
			t.Fatalf("%v: status = %d, want %d", tt.err, rec.Code, tt.status)
		}
		if msg := errorMessage(t, rec); msg != tt.msg {
			t.Fatalf("%v: message = %q", tt.err, msg)
		}
	}
}

func TestTranscribeErrors(t *testing.T) {
	audio := `{"audio":"` + base64.StdEncoding.EncodeToString([]byte("RIFF....WAVE")) + `"}`
	tests := []struct {
		err    error
		status int
		msg    string
	}{
		{transcription.ErrTimeout, http.StatusInternalServerError, "Transcription timeout"},
		{&transcription.RemoteError{JobID: "j1", Message: "Audio file is corrupt"}, http.StatusInternalServerError, "Transcription failed: Audio file is corrupt"},
		{&transcription.StatusError{Op: "upload audio", StatusCode: 429}, http.StatusTooManyRequests, "Transcription service is busy. Please try again later."},
		{&transcription.StatusError{Op: "upload audio", StatusCode: 401}, http.StatusInternalServerError, "Transcription service error"},
	}
	for _, tt := range tests {
		env := newTestEnv(t)
		env.transcriber.err = tt.err
		rec := env.do(t, http.MethodPost, "/api/v1/transcribe", audio, guest)
		if rec.Code != tt.status {
			t.Fatalf("%v: status = %d, want %d", tt.err, rec.Code, tt.status)
		}
		if msg := errorMessage(t, rec); msg != tt.msg {
			t.Fatalf("%v: message = %q", tt.err, msg)
		}
	}
}

func TestTranscribeArchivesVerifiedCallers(t *testing.T) {
	env := newTestEnv(t, func(d *Deps, _ *config.Config) { d.Archive = fakeArchive{} })
	audio := `{"audio":"` + base64.StdEncoding.EncodeToString([]byte("RIFF....WAVE")) + `"}`

	userID := uuid.NewString()
	rec := env.do(t, http.MethodPost, "/functions/v1/transcribe-audio", audio, bearer(t, userID, false))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["audioPath"] != userID+"/clip.webm" {
		t.Fatalf("audioPath = %v", resp["audioPath"])
	}
	if resp["fillerWordCount"] != float64(3) || resp["wordCount"] != float64(11) {
		t.Fatalf("unexpected body: %v", resp)
	}

	rec = env.do(t, http.MethodPost, "/functions/v1/transcribe-audio", audio, guest)
	if rec.Code != http.StatusOK {
		t.Fatalf("guest status = %d", rec.Code)
	}
	var guestResp map[string]any
	json.Unmarshal(rec.Body.Bytes(), &guestResp)
	if _, archived := guestResp["audioPath"]; archived {
		t.Fatal("guest audio was archived")
	}
}

func TestRateLimitStoreDownFailsClosed(t *testing.T) {
	env := newTestEnv(t, func(d *Deps, _ *config.Config) {
		d.Limiter = ratelimit.New(brokenStore{}, ratelimit.Policy{User: 20, AnonymousSession: 3, IP: 3, Window: time.Hour})
	})
	rec := env.do(t, http.MethodPost, "/functions/v1/analyze-speech", analyzeBody, guest)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if env.coach.calls.Load() != 0 {
		t.Fatal("request proceeded without a quota record")
	}
}

func TestAuthRequiredMode(t *testing.T) {
	env := newTestEnv(t, func(d *Deps, _ *config.Config) {
		d.Resolver = auth.NewResolver(auth.NewJWTVerifier(jwtSecret), true)
	})
	if rec := env.do(t, http.MethodPost, "/functions/v1/analyze-speech", analyzeBody, guest); rec.Code != http.StatusUnauthorized {
		t.Fatalf("guest status = %d, want 401", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/functions/v1/analyze-speech", analyzeBody, bearer(t, uuid.NewString(), false)); rec.Code != http.StatusOK {
		t.Fatalf("user status = %d", rec.Code)
	}
}

func TestEnabledEndpoints(t *testing.T) {
	env := newTestEnv(t, func(_ *Deps, cfg *config.Config) {
		cfg.Endpoints = []string{config.EndpointAnalyze}
	})
	audio := `{"audio":"` + base64.StdEncoding.EncodeToString([]byte("x")) + `"}`
	if rec := env.do(t, http.MethodPost, "/functions/v1/transcribe-audio", audio, guest); rec.Code != http.StatusNotFound {
		t.Fatalf("disabled endpoint status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/functions/v1/analyze-speech", analyzeBody, guest); rec.Code != http.StatusOK {
		t.Fatalf("enabled endpoint status = %d", rec.Code)
	}
}

func TestSessionsRequireVerifiedIdentity(t *testing.T) {
	env := newTestEnv(t, func(d *Deps, _ *config.Config) { d.Sessions = fakeSessions{} })

	if rec := env.do(t, http.MethodGet, "/api/v1/sessions", "", guest); rec.Code != http.StatusUnauthorized {
		t.Fatalf("guest status = %d", rec.Code)
	}

	anon := bearer(t, uuid.NewString(), true)
	if rec := env.do(t, http.MethodGet, "/api/v1/sessions", "", anon); rec.Code != http.StatusOK {
		t.Fatalf("anonymous session status = %d", rec.Code)
	}

	body := `{"transcript":"Hello team","duration":3,"wordCount":2,"speechRate":40,"fluencyScore":80}`
	if rec := env.do(t, http.MethodPost, "/api/v1/sessions", body, bearer(t, uuid.NewString(), false)); rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, func(d *Deps, _ *config.Config) {
		d.Checks = []handlers.Check{{Name: "database", Ping: func(context.Context) error { return errors.New("down") }}}
	})
	if rec := env.do(t, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/readyz", "", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz = %d", rec.Code)
	}
}

func TestOversizedBodiesAreValidationErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name, path, body, want string
	}{
		{"audio just over ceiling", "/functions/v1/transcribe-audio",
			`{"audio":"` + strings.Repeat("A", validation.MaxAudioLength+1) + `"}`, validation.MsgAudioTooLarge},
		{"audio far over ceiling", "/functions/v1/transcribe-audio",
			`{"audio":"` + strings.Repeat("A", validation.MaxAudioLength+100<<10) + `"}`, validation.MsgAudioTooLarge},
		{"transcript body over limit", "/functions/v1/analyze-speech",
			`{"transcript":"` + strings.Repeat("a", 300<<10) + `","duration":10,"fillerWordCount":0}`, validation.MsgTranscriptTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tt.path, tt.body, bearer(t, uuid.NewString(), false))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if msg := errorMessage(t, rec); msg != tt.want {
				t.Fatalf("message = %q, want %q", msg, tt.want)
			}
		})
	}
	if env.transcriber.calls.Load() != 0 || env.coach.calls.Load() != 0 {
		t.Fatal("oversized request reached an upstream service")
	}
}
