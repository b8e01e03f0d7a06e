// Package coaching scores a spoken response and asks a language model for
// delivery and content feedback on it.
package coaching

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nikhilbhutani/speechcoach/internal/llm"
)

const systemPrompt = `You are a professional speech coach providing constructive feedback.
Analyze the transcript and provide specific, actionable feedback in two categories:
1. Delivery Feedback: pace, tone, energy, pauses
2. Content Feedback: clarity, structure, engagement, key points

Format your response as JSON with this structure:
{
  "delivery": ["point 1", "point 2", "point 3"],
  "content": ["point 1", "point 2", "point 3"]
}

Keep each point concise (1-2 sentences) and constructive.`

const scenarioPrompt = `

The speaker was responding to this scenario: %q
Judge the content against that situation: say whether the response suits it, what a listener in that situation would need to hear, and what was missing or out of place.`

type Request struct {
	Transcript      string
	Duration        float64
	FillerWordCount int
	Prompt          string
}

type Report struct {
	Metrics  Metrics  `json:"metrics"`
	Feedback Feedback `json:"feedback"`
}

type Coach struct {
	llm   llm.Gateway
	model string
}

// NewCoach builds a Coach. An empty model uses the gateway default.
func NewCoach(gw llm.Gateway, model string) *Coach {
	return &Coach{llm: gw, model: model}
}

// Analyze computes metrics and requests feedback. Upstream failures are
// returned unchanged so callers can match llm.ErrUpstreamRateLimited and
// llm.ErrPaymentRequired; unparseable model output is replaced with
// FallbackFeedback and never returned as an error.
func (c *Coach) Analyze(ctx context.Context, req Request) (*Report, error) {
	metrics := ComputeMetrics(req.Transcript, req.Duration, req.FillerWordCount)

	resp, err := c.llm.Chat(ctx, llm.ChatRequest{
		Model: c.model,
		Messages: []llm.Message{
			{Role: "system", Content: buildSystemPrompt(req.Prompt)},
			{Role: "user", Content: buildUserPrompt(req, metrics)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("request feedback: %w", err)
	}

	feedback, ok := ParseFeedback(resp.Content)
	if !ok {
		slog.WarnContext(ctx, "failed to parse AI feedback, using defaults",
			"provider", resp.Provider,
			"model", resp.Model,
			"response_length", len(resp.Content),
		)
		feedback = FallbackFeedback()
	}

	return &Report{Metrics: metrics, Feedback: feedback}, nil
}

func buildSystemPrompt(scenario string) string {
	if scenario == "" {
		return systemPrompt
	}
	return systemPrompt + fmt.Sprintf(scenarioPrompt, scenario)
}

func buildUserPrompt(req Request, m Metrics) string {
	var b strings.Builder
	if req.Prompt != "" {
		fmt.Fprintf(&b, "Scenario: %q\n", req.Prompt)
	}
	fmt.Fprintf(&b, "Speech transcript: %q\n", req.Transcript)
	fmt.Fprintf(&b, "Duration: %g seconds\n", req.Duration)
	fmt.Fprintf(&b, "Word count: %d\n", m.WordCount)
	fmt.Fprintf(&b, "Speech rate: %d words/minute\n", m.SpeechRate)
	fmt.Fprintf(&b, "Filler words: %d\n\n", req.FillerWordCount)
	b.WriteString("Please analyze this speech and provide feedback.")
	return b.String()
}
