// Package transcription turns recorded audio into text and filler-word
// statistics using AssemblyAI.
package transcription

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Client is the subset of the provider API the service needs.
type Client interface {
	Upload(ctx context.Context, audio []byte) (string, error)
	Submit(ctx context.Context, audioURL string, wordBoost []string) (string, error)
	JobGetter
}

type Result struct {
	Transcript      string  `json:"transcript"`
	FillerWordCount int     `json:"fillerWordCount"`
	WordCount       int     `json:"wordCount"`
	Duration        float64 `json:"duration"`
	Confidence      float64 `json:"confidence"`
}

type Service struct {
	client Client
	poller *Poller
}

func NewService(client Client, poller *Poller) *Service {
	return &Service{client: client, poller: poller}
}

// Transcribe uploads audio, submits a job and waits for it to finish.
func (s *Service) Transcribe(ctx context.Context, audio []byte) (*Result, error) {
	start := time.Now()

	uploadURL, err := s.client.Upload(ctx, audio)
	if err != nil {
		return nil, fmt.Errorf("upload audio: %w", err)
	}

	jobID, err := s.client.Submit(ctx, uploadURL, FillerWords)
	if err != nil {
		return nil, fmt.Errorf("submit transcription: %w", err)
	}
	slog.InfoContext(ctx, "transcription requested", "job_id", jobID, "audio_bytes", len(audio))

	job, err := s.poller.Wait(ctx, jobID)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Transcript:      job.Text,
		FillerWordCount: CountFillers(job.Text),
		WordCount:       len(job.Words),
		Duration:        job.AudioDuration,
		Confidence:      job.Confidence,
	}
	slog.InfoContext(ctx, "transcription complete",
		"job_id", jobID,
		"word_count", res.WordCount,
		"filler_word_count", res.FillerWordCount,
		"duration", res.Duration,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}
