package api

import (
	"encoding/json"
	"net/http"

	"github.com/msaudio/audioserver-go/internal/apperrors"
)

// WriteJSON sends a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}

// WriteError serializes an error as {"error": {kind, message, ...}} with the
// HTTP status its kind maps to. Untagged errors come out as internal 500s.
func WriteError(w http.ResponseWriter, err error) {
	appErr := apperrors.Ensure(err)
	_ = WriteJSON(w, appErr.StatusCode, map[string]any{"error": appErr.Body()})
}
