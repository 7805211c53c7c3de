package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
)

// envelope is the standard API response wrapper.
// All JSON responses use this format: { "data": ..., "error": ... }
type envelope struct {
	Data  any    `json:"data"`
	Error string `json:"error,omitempty"`
}

// writeJSON writes a JSON response with the given status code and data payload.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Data: data}); err != nil {
		slog.Error("failed to encode json response", "error", err)
	}
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Error: msg}); err != nil {
		slog.Error("failed to encode json error response", "error", err)
	}
}

// maxRequestBody caps control API request bodies; call commands are tiny.
const maxRequestBody = 64 * 1024

// decodeJSON decodes a JSON request body into dst. It returns an error
// message suitable for a 400 response, or "" on success.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) string {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return "invalid request body: " + err.Error()
	}
	return ""
}

// Paging bounds for list endpoints.
const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// parsePagination reads limit and offset query parameters. Out-of-range
// values are rejected rather than clamped so a client bug is visible. It
// returns an error message suitable for a 400 response, or "" on success.
func parsePagination(r *http.Request) (limit, offset int, errMsg string) {
	limit = defaultPageLimit
	q := r.URL.Query()

	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxPageLimit {
			return 0, 0, fmt.Sprintf("limit must be an integer between 1 and %d", maxPageLimit)
		}
		limit = v
	}
	if raw := q.Get("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return 0, 0, "offset must be a non-negative integer"
		}
		offset = v
	}
	return limit, offset, ""
}
