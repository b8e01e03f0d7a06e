package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nikhilbhutani/speechcoach/internal/auth"
	"github.com/nikhilbhutani/speechcoach/internal/coaching"
	"github.com/nikhilbhutani/speechcoach/internal/llm"
	"github.com/nikhilbhutani/speechcoach/internal/validation"
)

const analyzeBodyLimit = 256 << 10

type Analyzer interface {
	Analyze(ctx context.Context, req coaching.Request) (*coaching.Report, error)
}

type AnalyzeHandler struct {
	coach Analyzer
}

func NewAnalyzeHandler(coach Analyzer) *AnalyzeHandler {
	return &AnalyzeHandler{coach: coach}
}

func (h *AnalyzeHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, ok := decodeBody(w, r, analyzeBodyLimit, validation.MsgTranscriptTooLong)
	if !ok {
		return
	}
	in, err := validation.Analysis(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	id, _ := auth.IdentityFromContext(ctx)
	slog.InfoContext(ctx, "analyzing speech",
		"identity", id,
		"transcript_length", len(in.Transcript),
		"duration", in.Duration,
		"filler_word_count", in.FillerWordCount,
		"has_prompt", in.Prompt != "",
	)

	report, err := h.coach.Analyze(ctx, coaching.Request{
		Transcript:      in.Transcript,
		Duration:        in.Duration,
		FillerWordCount: in.FillerWordCount,
		Prompt:          in.Prompt,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, report)
	case errors.Is(err, context.Canceled):
		slog.InfoContext(ctx, "analysis abandoned by client")
	case errors.Is(err, llm.ErrPaymentRequired):
		slog.ErrorContext(ctx, "AI gateway requires payment", "error", err)
		writeError(w, http.StatusPaymentRequired, "Payment required. Please add funds to your workspace.", "")
	case errors.Is(err, llm.ErrUpstreamRateLimited):
		slog.WarnContext(ctx, "AI gateway rate limited", "error", err)
		writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.", "")
	default:
		slog.ErrorContext(ctx, "speech analysis failed", "error", err)
		writeError(w, http.StatusInternalServerError, "AI analysis failed", "")
	}
}
