package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// envelope is the base shape of every JSON response: a success flag plus a
// human-readable message. Error responses additionally carry the raw
// underlying failure text.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func ok(message string) envelope {
	return envelope{Success: true, Message: message}
}

func fail(message, errText string) envelope {
	return envelope{Success: false, Message: message, Error: errText}
}

// writeJSON encodes v with the given status. Encoding failures after the
// header is written can only be logged.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message, errText string) {
	writeJSON(w, status, fail(message, errText))
}
