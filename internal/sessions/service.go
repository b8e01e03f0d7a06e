// Package sessions stores practice-session history for signed-in and
// anonymous-session users.
package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikhilbhutani/speechcoach/internal/models"
)

var ErrInvalid = errors.New("invalid practice session")

type CreateRequest struct {
	Category         string     `json:"category" validate:"omitempty,max=64"`
	ScenarioID       string     `json:"scenarioId" validate:"omitempty,max=128"`
	Prompt           string     `json:"prompt" validate:"omitempty,min=10,max=500"`
	Prompts          []string   `json:"prompts" validate:"max=20,dive,min=1,max=500"`
	Transcript       string     `json:"transcript" validate:"required,max=10000"`
	AudioPath        string     `json:"audioPath" validate:"omitempty,max=512"`
	Duration         float64    `json:"duration" validate:"gt=0,lte=600"`
	WordCount        int        `json:"wordCount" validate:"gte=0"`
	SpeechRate       int        `json:"speechRate" validate:"gte=0"`
	FillerWordCount  int        `json:"fillerWordCount" validate:"gte=0,lte=1000"`
	FluencyScore     int        `json:"fluencyScore" validate:"gte=0,lte=100"`
	ClarityScore     *int       `json:"clarityScore" validate:"omitempty,gte=0,lte=100"`
	ConfidenceScore  *int       `json:"confidenceScore" validate:"omitempty,gte=0,lte=100"`
	EmpathyScore     *int       `json:"empathyScore" validate:"omitempty,gte=0,lte=100"`
	PacingScore      *int       `json:"pacingScore" validate:"omitempty,gte=0,lte=100"`
	DeliveryFeedback []string   `json:"deliveryFeedback" validate:"max=10,dive,max=1000"`
	ContentFeedback  []string   `json:"contentFeedback" validate:"max=10,dive,max=1000"`
	CompletedAt      *time.Time `json:"completedAt"`
}

type Service struct {
	db       *pgxpool.Pool
	validate *validator.Validate
}

func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db, validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate checks req for userID. Archived audio must live under the
// caller's own prefix.
func (s *Service) Validate(userID uuid.UUID, req CreateRequest) error {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed %q", ErrInvalid, verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if req.AudioPath != "" && !strings.HasPrefix(req.AudioPath, userID.String()+"/") {
		return fmt.Errorf("%w: audioPath does not belong to caller", ErrInvalid)
	}
	return nil
}

func (s *Service) Create(ctx context.Context, userID uuid.UUID, req CreateRequest) (*models.PracticeSession, error) {
	if err := s.Validate(userID, req); err != nil {
		return nil, err
	}

	delivery, err := json.Marshal(nonNil(req.DeliveryFeedback))
	if err != nil {
		return nil, fmt.Errorf("marshal delivery feedback: %w", err)
	}
	content, err := json.Marshal(nonNil(req.ContentFeedback))
	if err != nil {
		return nil, fmt.Errorf("marshal content feedback: %w", err)
	}

	prompts, err := json.Marshal(nonNil(req.Prompts))
	if err != nil {
		return nil, fmt.Errorf("marshal prompts: %w", err)
	}

	row := s.db.QueryRow(ctx,
		`INSERT INTO practice_sessions
		   (user_id, category, scenario_id, prompt, prompts, transcript, audio_path, duration,
		    word_count, speech_rate, filler_word_count, fluency_score, clarity_score,
		    confidence_score, empathy_score, pacing_score, delivery_feedback, content_feedback,
		    completed_at)
		 VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), $5, $6, NULLIF($7, ''), $8,
		         $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, COALESCE($19, now()))
		 RETURNING `+sessionColumns,
		userID, req.Category, req.ScenarioID, req.Prompt, prompts, req.Transcript, req.AudioPath, req.Duration,
		req.WordCount, req.SpeechRate, req.FillerWordCount, req.FluencyScore, req.ClarityScore,
		req.ConfidenceScore, req.EmpathyScore, req.PacingScore, delivery, content,
		req.CompletedAt,
	)
	ps, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("insert practice session: %w", err)
	}
	return ps, nil
}

// List returns the caller's sessions, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.PracticeSession, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+sessionColumns+` FROM practice_sessions
		 WHERE user_id = $1
		 ORDER BY completed_at DESC, created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list practice sessions: %w", err)
	}
	defer rows.Close()

	out := []models.PracticeSession{}
	for rows.Next() {
		ps, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan practice session: %w", err)
		}
		out = append(out, *ps)
	}
	return out, rows.Err()
}

const sessionColumns = `id, user_id, category, scenario_id, prompt, prompts, transcript, audio_path,
	duration, word_count, speech_rate, filler_word_count, fluency_score, clarity_score,
	confidence_score, empathy_score, pacing_score, delivery_feedback, content_feedback,
	completed_at, created_at`

func scanSession(row pgx.Row) (*models.PracticeSession, error) {
	var ps models.PracticeSession
	err := row.Scan(&ps.ID, &ps.UserID, &ps.Category, &ps.ScenarioID, &ps.Prompt, &ps.Prompts,
		&ps.Transcript, &ps.AudioPath, &ps.Duration, &ps.WordCount, &ps.SpeechRate,
		&ps.FillerWordCount, &ps.FluencyScore, &ps.ClarityScore, &ps.ConfidenceScore,
		&ps.EmpathyScore, &ps.PacingScore, &ps.DeliveryFeedback, &ps.ContentFeedback,
		&ps.CompletedAt, &ps.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &ps, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
