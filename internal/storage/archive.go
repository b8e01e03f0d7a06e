package storage

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// AudioArchive keeps a copy of submitted recordings, one folder per user.
type AudioArchive struct {
	store  Uploader
	bucket string
}

func NewAudioArchive(store Uploader, bucket string) *AudioArchive {
	return &AudioArchive{store: store, bucket: bucket}
}

// Archive uploads audio and returns its object path, "<userID>/<uuid>.<ext>".
func (a *AudioArchive) Archive(ctx context.Context, userID string, audio []byte) (string, error) {
	contentType, ext := sniffAudio(audio)
	path := fmt.Sprintf("%s/%s%s", userID, uuid.NewString(), ext)

	if err := a.store.Upload(ctx, a.bucket, path, audio, contentType); err != nil {
		return "", fmt.Errorf("archive audio: %w", err)
	}
	return path, nil
}

func sniffAudio(data []byte) (contentType, ext string) {
	detected := http.DetectContentType(data)
	switch {
	case strings.HasPrefix(detected, "video/webm"):
		// MediaRecorder output; the container carries audio only.
		return "audio/webm", ".webm"
	case strings.HasPrefix(detected, "audio/wave"):
		return "audio/wav", ".wav"
	case strings.HasPrefix(detected, "audio/mpeg"):
		return "audio/mpeg", ".mp3"
	case strings.HasPrefix(detected, "application/ogg"), strings.HasPrefix(detected, "audio/ogg"):
		return "audio/ogg", ".ogg"
	case strings.HasPrefix(detected, "video/mp4"), strings.HasPrefix(detected, "audio/mp4"):
		return "audio/mp4", ".m4a"
	default:
		return "application/octet-stream", ".bin"
	}
}
