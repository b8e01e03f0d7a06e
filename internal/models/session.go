package models

import (
	"time"

	"github.com/google/uuid"
)

// PracticeSession is one saved recording with its metrics and feedback.
// Prompt is the scenario sent to analysis; Prompts lists every prompt shown
// during the session.
type PracticeSession struct {
	ID               uuid.UUID `json:"id" db:"id"`
	UserID           uuid.UUID `json:"userId" db:"user_id"`
	Category         *string   `json:"category,omitempty" db:"category"`
	ScenarioID       *string   `json:"scenarioId,omitempty" db:"scenario_id"`
	Prompt           *string   `json:"prompt,omitempty" db:"prompt"`
	Prompts          []string  `json:"prompts" db:"prompts"`
	Transcript       string    `json:"transcript" db:"transcript"`
	AudioPath        *string   `json:"audioPath,omitempty" db:"audio_path"`
	Duration         float64   `json:"duration" db:"duration"`
	WordCount        int       `json:"wordCount" db:"word_count"`
	SpeechRate       int       `json:"speechRate" db:"speech_rate"`
	FillerWordCount  int       `json:"fillerWordCount" db:"filler_word_count"`
	FluencyScore     int       `json:"fluencyScore" db:"fluency_score"`
	ClarityScore     *int      `json:"clarityScore,omitempty" db:"clarity_score"`
	ConfidenceScore  *int      `json:"confidenceScore,omitempty" db:"confidence_score"`
	EmpathyScore     *int      `json:"empathyScore,omitempty" db:"empathy_score"`
	PacingScore      *int      `json:"pacingScore,omitempty" db:"pacing_score"`
	DeliveryFeedback []string  `json:"deliveryFeedback" db:"delivery_feedback"`
	ContentFeedback  []string  `json:"contentFeedback" db:"content_feedback"`
	CompletedAt      time.Time `json:"completedAt" db:"completed_at"`
	CreatedAt        time.Time `json:"createdAt" db:"created_at"`
}
