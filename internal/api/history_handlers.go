package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/wavelink/wavelink/internal/call"
	"github.com/wavelink/wavelink/internal/database"
)

// historyEntryResponse is the JSON rendering of one finished call.
type historyEntryResponse struct {
	ID           int64  `json:"id"`
	PeerID       string `json:"peer_id"`
	PeerName     string `json:"peer_name"`
	Kind         string `json:"kind"`
	Role         string `json:"role"`
	StartedAt    string `json:"started_at"`
	DurationSecs int64  `json:"duration_secs"`
	Duration     string `json:"duration"`
	Outcome      string `json:"outcome"`
}

func toHistoryEntryResponse(e call.HistoryEntry) historyEntryResponse {
	return historyEntryResponse{
		ID:           e.ID,
		PeerID:       e.PeerID,
		PeerName:     e.PeerName,
		Kind:         string(e.Kind),
		Role:         string(e.Role),
		StartedAt:    e.StartedAt.Format(time.RFC3339),
		DurationSecs: int64(e.Duration.Seconds()),
		Duration:     e.FormattedDuration(),
		Outcome:      string(e.Outcome),
	}
}

// historyListResponse wraps a page of history entries.
type historyListResponse struct {
	Entries []historyEntryResponse `json:"entries"`
	Total   int                    `json:"total"`
}

// handleHistoryList returns finished calls, newest first.
// Query params: limit, offset, peer_id, outcome, search.
func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, offset, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	outcome := q.Get("outcome")
	switch outcome {
	case "", "completed", "missed", "rejected":
	default:
		writeError(w, http.StatusBadRequest, "outcome must be \"completed\", \"missed\", or \"rejected\"")
		return
	}

	entries, total, err := s.history.List(r.Context(), database.HistoryListFilter{
		PeerID:  q.Get("peer_id"),
		Outcome: outcome,
		Search:  q.Get("search"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		slog.Error("listing call history", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := historyListResponse{
		Entries: make([]historyEntryResponse, 0, len(entries)),
		Total:   total,
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, toHistoryEntryResponse(e))
	}
	writeJSON(w, http.StatusOK, resp)
}
