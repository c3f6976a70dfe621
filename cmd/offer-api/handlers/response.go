// Package handlers provides HTTP handlers for the offer API.
package handlers

import (
	"encoding/json"
	"net/http"
)

// MessageDTO is the body of simple acknowledgements.
type MessageDTO struct {
	Message string `json:"message"`
	Deleted *int64 `json:"deleted,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	resp := map[string]string{
		"error":   message,
		"message": message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	writeJSON(w, status, resp)
}
