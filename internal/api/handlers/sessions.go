package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/speechcoach/internal/auth"
	"github.com/nikhilbhutani/speechcoach/internal/models"
	"github.com/nikhilbhutani/speechcoach/internal/sessions"
)

type SessionStore interface {
	Create(ctx context.Context, userID uuid.UUID, req sessions.CreateRequest) (*models.PracticeSession, error)
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.PracticeSession, error)
}

type SessionHandler struct {
	store SessionStore
}

func NewSessionHandler(store SessionStore) *SessionHandler {
	return &SessionHandler{store: store}
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionOwner(w, r)
	if !ok {
		return
	}

	var req sessions.CreateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, analyzeBodyLimit)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", "")
		return
	}

	ps, err := h.store.Create(r.Context(), userID, req)
	if err != nil {
		if errors.Is(err, sessions.ErrInvalid) {
			writeError(w, http.StatusBadRequest, err.Error(), "")
			return
		}
		slog.ErrorContext(r.Context(), "save practice session failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Could not save practice session", "")
		return
	}

	writeJSON(w, http.StatusCreated, ps)
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionOwner(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	list, err := h.store.List(r.Context(), userID, limit, offset)
	if err != nil {
		slog.ErrorContext(r.Context(), "list practice sessions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Could not load practice sessions", "")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": list, "limit": limit, "offset": offset})
}

// sessionOwner returns the caller's principal id. History is only kept for
// token-backed identities.
func sessionOwner(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, _ := auth.IdentityFromContext(r.Context())
	if !id.Verified() {
		writeError(w, http.StatusUnauthorized, "Sign in to save practice sessions", "")
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(id.Value)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Sign in to save practice sessions", "")
		return uuid.Nil, false
	}
	return userID, true
}
