package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nikhilbhutani/speechcoach/internal/auth"
	"github.com/nikhilbhutani/speechcoach/internal/transcription"
	"github.com/nikhilbhutani/speechcoach/internal/validation"
)

// JSON framing around the base64 payload.
const transcribeBodyLimit = validation.MaxAudioLength + 64<<10

const transcribeDetails = "Transcription failed. Please check your audio and try again."

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (*transcription.Result, error)
}

// Archiver stores a copy of the audio and returns its object path.
type Archiver interface {
	Archive(ctx context.Context, userID string, audio []byte) (string, error)
}

type TranscribeHandler struct {
	svc     Transcriber
	archive Archiver
}

// NewTranscribeHandler builds the handler; archive may be nil.
func NewTranscribeHandler(svc Transcriber, archive Archiver) *TranscribeHandler {
	return &TranscribeHandler{svc: svc, archive: archive}
}

type transcribeResponse struct {
	*transcription.Result
	AudioPath string `json:"audioPath,omitempty"`
}

func (h *TranscribeHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, ok := decodeBody(w, r, transcribeBodyLimit, validation.MsgAudioTooLarge)
	if !ok {
		return
	}
	in, err := validation.Audio(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	id, _ := auth.IdentityFromContext(ctx)
	slog.InfoContext(ctx, "starting transcription", "identity", id, "audio_size", len(in.Encoded))

	res, err := h.svc.Transcribe(ctx, in.Data)
	if err != nil {
		h.writeTranscribeError(ctx, w, err)
		return
	}

	resp := transcribeResponse{Result: res}
	if h.archive != nil && id.Verified() {
		path, err := h.archive.Archive(ctx, id.Value, in.Data)
		if err != nil {
			slog.WarnContext(ctx, "audio archive failed", "identity", id, "error", err)
		} else {
			resp.AudioPath = path
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *TranscribeHandler) writeTranscribeError(ctx context.Context, w http.ResponseWriter, err error) {
	var remote *transcription.RemoteError
	switch {
	case errors.Is(err, context.Canceled):
		slog.InfoContext(ctx, "transcription abandoned by client", "error", err)
		return
	case errors.Is(err, transcription.ErrTimeout):
		slog.ErrorContext(ctx, "transcription timed out", "error", err)
		writeError(w, http.StatusInternalServerError, "Transcription timeout", transcribeDetails)
	case errors.As(err, &remote):
		slog.ErrorContext(ctx, "transcription job failed", "job_id", remote.JobID, "error", err)
		writeError(w, http.StatusInternalServerError, remote.Error(), transcribeDetails)
	case errors.Is(err, transcription.ErrRateLimited):
		slog.WarnContext(ctx, "speech-to-text provider rate limited", "error", err)
		writeError(w, http.StatusTooManyRequests, "Transcription service is busy. Please try again later.", "")
	default:
		slog.ErrorContext(ctx, "transcription failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Transcription service error", transcribeDetails)
	}
}
