// Package validation checks the shape of untrusted request bodies before any
// quota-consuming or external work happens. Every function here is pure.
package validation

import (
	"encoding/base64"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxAudioLength bounds the encoded payload to roughly 7.5MB of audio.
	MaxAudioLength = 10_485_760

	MaxTranscriptLength = 10_000
	MaxDurationSeconds  = 600
	MaxFillerWordCount  = 1000
	MinPromptLength     = 10
	MaxPromptLength     = 500
)

// Messages shared with the HTTP layer, which rejects oversized bodies before
// they are decoded.
const (
	MsgAudioTooLarge     = "Audio too large. Maximum 7.5MB (approximately 5-7 minutes)"
	MsgTranscriptTooLong = "Transcript too long. Maximum 10,000 characters."
)

var base64Pattern = regexp.MustCompile(`^[A-Za-z0-9+/=]+$`)

// Error is a field-level validation failure.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string { return e.Message }

func invalid(field, format string, args ...any) *Error {
	return &Error{Field: field, Message: fmt.Sprintf(format, args...)}
}

// AudioInput is a validated transcription request.
type AudioInput struct {
	Encoded string
	Data    []byte
}

// AnalysisInput is a validated analysis request.
type AnalysisInput struct {
	Transcript      string
	Duration        float64
	FillerWordCount int
	Prompt          string
}

// Audio validates a transcription body of the form {"audio": "<base64>"}.
func Audio(body map[string]any) (AudioInput, error) {
	raw, ok := body["audio"].(string)
	if !ok {
		return AudioInput{}, invalid("audio", "Audio must be a base64 string")
	}
	if len(raw) > MaxAudioLength {
		return AudioInput{}, invalid("audio", MsgAudioTooLarge)
	}
	if !base64Pattern.MatchString(raw) {
		return AudioInput{}, invalid("audio", "Invalid base64 format")
	}

	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return AudioInput{}, invalid("audio", "Invalid base64 encoding")
	}
	if len(data) == 0 {
		return AudioInput{}, invalid("audio", "Audio cannot be empty")
	}

	return AudioInput{Encoded: raw, Data: data}, nil
}

// Analysis validates an analysis body with transcript, duration,
// fillerWordCount and an optional scenario prompt.
func Analysis(body map[string]any) (AnalysisInput, error) {
	transcript, ok := body["transcript"].(string)
	if !ok {
		return AnalysisInput{}, invalid("transcript", "Transcript must be a string")
	}
	if strings.TrimSpace(transcript) == "" {
		return AnalysisInput{}, invalid("transcript", "Transcript cannot be empty")
	}
	if utf8.RuneCountInString(transcript) > MaxTranscriptLength {
		return AnalysisInput{}, invalid("transcript", MsgTranscriptTooLong)
	}

	duration, ok := number(body["duration"])
	if !ok || duration <= 0 || duration > MaxDurationSeconds {
		return AnalysisInput{}, invalid("duration", "Duration must be greater than 0 and at most %d seconds (10 minutes)", MaxDurationSeconds)
	}

	fillers, ok := number(body["fillerWordCount"])
	if !ok || fillers < 0 || fillers > MaxFillerWordCount {
		return AnalysisInput{}, invalid("fillerWordCount", "Filler word count must be between 0 and %d", MaxFillerWordCount)
	}
	if fillers != math.Trunc(fillers) {
		return AnalysisInput{}, invalid("fillerWordCount", "Filler word count must be a whole number")
	}

	in := AnalysisInput{
		Transcript:      transcript,
		Duration:        duration,
		FillerWordCount: int(fillers),
	}

	if p, present := body["prompt"]; present && p != nil {
		prompt, ok := p.(string)
		if !ok {
			return AnalysisInput{}, invalid("prompt", "Prompt must be a string")
		}
		n := utf8.RuneCountInString(prompt)
		if n < MinPromptLength || n > MaxPromptLength {
			return AnalysisInput{}, invalid("prompt", "Prompt must be between %d and %d characters", MinPromptLength, MaxPromptLength)
		}
		in.Prompt = prompt
	}

	return in, nil
}

// number accepts only JSON numbers; NaN and infinities cannot come out of
// encoding/json but are rejected anyway for callers building maps by hand.
func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
