package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAudioArchive(t *testing.T) {
	webm := append([]byte{0x1A, 0x45, 0xDF, 0xA3}, []byte("....webm payload")...)

	var gotPath, gotType, gotAuth string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"Key":"recordings/x"}`))
	}))
	defer srv.Close()

	archive := NewAudioArchive(NewSupabaseStorage(srv.URL, "service-key"), "recordings")
	path, err := archive.Archive(context.Background(), "user-1", webm)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}

	if !strings.HasPrefix(path, "user-1/") || !strings.HasSuffix(path, ".webm") {
		t.Fatalf("path = %q", path)
	}
	if gotPath != "/storage/v1/object/recordings/"+path {
		t.Fatalf("request path = %q", gotPath)
	}
	if gotType != "audio/webm" || gotAuth != "Bearer service-key" || string(gotBody) != string(webm) {
		t.Fatalf("unexpected upload: type=%q auth=%q body=%d bytes", gotType, gotAuth, len(gotBody))
	}
}

func TestAudioArchiveUploadError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"new row violates row-level security policy"}`))
	}))
	defer srv.Close()

	archive := NewAudioArchive(NewSupabaseStorage(srv.URL, "bad-key"), "recordings")
	if _, err := archive.Archive(context.Background(), "user-1", []byte("RIFF\x00\x00\x00\x00WAVEfmt ")); err == nil {
		t.Fatal("expected error")
	}
}

func TestSniffAudio(t *testing.T) {
	tests := []struct {
		data []byte
		ext  string
	}{
		{[]byte("RIFF\x24\x08\x00\x00WAVEfmt "), ".wav"},
		{[]byte("OggS\x00\x02\x00\x00"), ".ogg"},
		{[]byte("ID3\x03\x00\x00\x00"), ".mp3"},
		{[]byte("not audio at all"), ".bin"},
	}
	for _, tt := range tests {
		if _, ext := sniffAudio(tt.data); ext != tt.ext {
			t.Errorf("sniffAudio(%q) ext = %q, want %q", tt.data, ext, tt.ext)
		}
	}
}
