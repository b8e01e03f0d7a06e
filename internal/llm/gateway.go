package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nikhilbhutani/speechcoach/internal/config"
)

type gateway struct {
	providers        map[string]Provider
	defaultProvider  string
	defaultModel     string
	fallbackProvider string
	fallbackModel    string
	maxRetries       int
}

func NewGateway(cfg config.LLMConfig) Gateway {
	providers := make(map[string]Provider)
	if cfg.GatewayKey != "" {
		providers["openai"] = NewOpenAIProvider(cfg.GatewayKey, cfg.GatewayURL)
	}
	if cfg.AnthropicKey != "" {
		providers["anthropic"] = NewAnthropicProvider(cfg.AnthropicKey)
	}
	return newGateway(providers, cfg)
}

func newGateway(providers map[string]Provider, cfg config.LLMConfig) *gateway {
	return &gateway{
		providers:        providers,
		defaultProvider:  cfg.DefaultProvider,
		defaultModel:     cfg.DefaultModel,
		fallbackProvider: cfg.FallbackProvider,
		fallbackModel:    cfg.FallbackModel,
		maxRetries:       cfg.MaxRetries,
	}
}

func (g *gateway) provider(name string) (Provider, error) {
	p, ok := g.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", name)
	}
	return p, nil
}

func (g *gateway) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	providerName := req.Provider
	if providerName == "" {
		providerName = g.defaultProvider
	}
	if req.Model == "" {
		req.Model = g.defaultModel
	}

	resp, err := g.chatWithRetry(ctx, providerName, req)
	if err == nil || g.fallbackProvider == "" || g.fallbackProvider == providerName || ctx.Err() != nil {
		return resp, err
	}

	slog.WarnContext(ctx, "primary provider failed, trying fallback",
		"primary", providerName,
		"fallback", g.fallbackProvider,
		"error", err,
	)
	if g.fallbackModel != "" {
		req.Model = g.fallbackModel
	}
	resp, fbErr := g.chatWithRetry(ctx, g.fallbackProvider, req)
	if fbErr != nil {
		return nil, fmt.Errorf("%w (primary: %w)", fbErr, err)
	}
	return resp, nil
}

func (g *gateway) chatWithRetry(ctx context.Context, providerName string, req ChatRequest) (*ChatResponse, error) {
	p, err := g.provider(providerName)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			slog.DebugContext(ctx, "retrying LLM call", "provider", providerName, "attempt", attempt)
		}

		resp, err := p.ChatCompletion(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
	}
	if g.maxRetries == 0 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("all retries exhausted for %s: %w", providerName, lastErr)
}
