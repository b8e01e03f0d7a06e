package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
)

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, errorBody{Error: msg, Details: details})
}

// decodeBody reads a JSON object of at most limit bytes. An oversized body is
// a validation failure answered with 400 and tooLarge. It reports false after
// writing the error response itself.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, tooLarge string) (map[string]any, bool) {
	var body map[string]any
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit)).Decode(&body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusBadRequest, tooLarge, "")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "Invalid JSON body", "")
		return nil, false
	}
	if body == nil {
		writeError(w, http.StatusBadRequest, "Request body must be a JSON object", "")
		return nil, false
	}
	return body, true
}
