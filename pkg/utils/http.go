// Package utils holds the JSON response helpers shared by every handler.
package utils

import (
	"encoding/json"
	"net/http"
)

// errEnvelope is the error body used across the API: a message plus the
// taxonomy kind the handlers classify errors into.
type errEnvelope struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// JSONError writes the error envelope with the given status, kind and message.
func JSONError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errEnvelope{Error: message, Kind: kind})
}

// JSONWrite writes v as JSON with the given status code.
func JSONWrite(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	return json.NewEncoder(w).Encode(v)
}
