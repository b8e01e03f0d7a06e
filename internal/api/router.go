package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/speechcoach/internal/api/handlers"
	"github.com/nikhilbhutani/speechcoach/internal/api/middleware"
	"github.com/nikhilbhutani/speechcoach/internal/config"
)

// Endpoint names recorded in the rate-limit log.
const (
	TranscribeEndpoint = "transcribe-audio"
	AnalyzeEndpoint    = "analyze-speech"
)

// Deps are the services the router wires into handlers. Transcriber and
// Coach are required only when their endpoint is enabled; Sessions and
// Archive are optional.
type Deps struct {
	Config      *config.Config
	Resolver    middleware.IdentityResolver
	Limiter     middleware.QuotaChecker
	Transcriber handlers.Transcriber
	Coach       handlers.Analyzer
	Sessions    handlers.SessionStore
	Archive     handlers.Archiver
	Checks      []handlers.Check
}

type Router struct {
	mux  *chi.Mux
	deps Deps
}

func NewRouter(deps Deps) *Router {
	return &Router{
		mux:  chi.NewRouter(),
		deps: deps,
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux
	cfg := rt.deps.Config

	// Global middleware. CORS answers preflights before routing.
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)

	// Health endpoints (no identity, no quota)
	health := handlers.NewHealthHandler(rt.deps.Checks...)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	identify := middleware.Identify(rt.deps.Resolver)

	if cfg.Enabled(config.EndpointTranscribe) {
		transcribeH := handlers.NewTranscribeHandler(rt.deps.Transcriber, rt.deps.Archive)
		gated := r.With(identify, middleware.Quota(rt.deps.Limiter, TranscribeEndpoint))
		gated.Post("/functions/v1/transcribe-audio", transcribeH.Transcribe)
		gated.Post("/api/v1/transcribe", transcribeH.Transcribe)
	}

	if cfg.Enabled(config.EndpointAnalyze) {
		analyzeH := handlers.NewAnalyzeHandler(rt.deps.Coach)
		gated := r.With(identify, middleware.Quota(rt.deps.Limiter, AnalyzeEndpoint))
		gated.Post("/functions/v1/analyze-speech", analyzeH.Analyze)
		gated.Post("/api/v1/analyze", analyzeH.Analyze)
	}

	if rt.deps.Sessions != nil {
		sessionH := handlers.NewSessionHandler(rt.deps.Sessions)
		r.Route("/api/v1/sessions", func(r chi.Router) {
			r.Use(identify)
			r.Post("/", sessionH.Create)
			r.Get("/", sessionH.List)
		})
	}

	return r
}
