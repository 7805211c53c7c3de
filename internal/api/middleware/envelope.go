package middleware

import (
	"encoding/json"
	"net/http"
)

// errorEnvelope mirrors the api package's response envelope so error
// responses produced inside middleware look the same as handler errors.
type errorEnvelope struct {
	Error string `json:"error,omitempty"`
}

// writeEnvelopeError writes a JSON error response in the API envelope
// format. Encode failures are ignored; the status line is already out.
func writeEnvelopeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorEnvelope{Error: msg}) //nolint:errcheck
}
