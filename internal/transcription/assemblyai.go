package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrRateLimited matches a *StatusError carrying HTTP 429.
var ErrRateLimited = errors.New("speech-to-text provider rate limited")

// StatusError is a non-2xx reply from the speech-to-text provider.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed (status %d)", e.Op, e.StatusCode)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrRateLimited && e.StatusCode == http.StatusTooManyRequests
}

// Job is a transcript resource as reported by AssemblyAI.
type Job struct {
	ID            string  `json:"id"`
	Status        Status  `json:"status"`
	Text          string  `json:"text"`
	Words         []Word  `json:"words"`
	AudioDuration float64 `json:"audio_duration"`
	Confidence    float64 `json:"confidence"`
	Error         string  `json:"error"`
}

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "error"
)

// Word is one recognized token with timings in milliseconds.
type Word struct {
	Text       string  `json:"text"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
}

// AssemblyAIConfig holds connection settings for the AssemblyAI REST API.
type AssemblyAIConfig struct {
	APIKey  string
	BaseURL string // default: "https://api.assemblyai.com"
}

// AssemblyAI is a minimal client for the upload, submit and status calls.
type AssemblyAI struct {
	cfg        AssemblyAIConfig
	httpClient *http.Client
}

func NewAssemblyAI(cfg AssemblyAIConfig) *AssemblyAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.assemblyai.com"
	}
	return &AssemblyAI{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

func (c *AssemblyAI) Name() string { return "assemblyai" }

// Upload sends raw audio and returns the private URL AssemblyAI stored it at.
func (c *AssemblyAI) Upload(ctx context.Context, audio []byte) (string, error) {
	var out struct {
		UploadURL string `json:"upload_url"`
	}
	if err := c.do(ctx, "upload audio", http.MethodPost, "/v2/upload", "application/octet-stream", bytes.NewReader(audio), &out); err != nil {
		return "", err
	}
	if out.UploadURL == "" {
		return "", fmt.Errorf("upload audio: empty upload_url in response")
	}
	return out.UploadURL, nil
}

// Submit starts a transcription job for audioURL, boosting the given vocabulary.
func (c *AssemblyAI) Submit(ctx context.Context, audioURL string, wordBoost []string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"audio_url":  audioURL,
		"word_boost": wordBoost,
	})
	if err != nil {
		return "", fmt.Errorf("marshal transcript request: %w", err)
	}

	var out Job
	if err := c.do(ctx, "request transcription", http.MethodPost, "/v2/transcript", "application/json", bytes.NewReader(payload), &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("request transcription: empty id in response")
	}
	return out.ID, nil
}

// Get fetches the current state of a transcription job.
func (c *AssemblyAI) Get(ctx context.Context, id string) (*Job, error) {
	var job Job
	if err := c.do(ctx, "check status", http.MethodGet, "/v2/transcript/"+id, "", nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *AssemblyAI) do(ctx context.Context, op, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", c.cfg.APIKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s: parse response: %w", op, err)
	}
	return nil
}
