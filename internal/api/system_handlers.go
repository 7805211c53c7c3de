package api

import (
	"net/http"
	"time"

	"github.com/wavelink/wavelink/internal/media"
)

// handleHealth is the unauthenticated liveness check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// systemStatusResponse summarises the daemon's connections.
type systemStatusResponse struct {
	LocalID            string `json:"local_id"`
	DisplayName        string `json:"display_name"`
	SignalingConnected bool   `json:"signaling_connected"`
	MediaStatus        string `json:"media_status"`
	CallState          string `json:"call_state"`
	UptimeSecs         int64  `json:"uptime_secs"`
}

// handleSystemStatus reports connectivity and the current call state.
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.controller.State()

	mediaStatus := string(media.StatusDisconnected)
	if p := s.controller.Provider(); p != nil {
		mediaStatus = string(p.Status())
	}

	writeJSON(w, http.StatusOK, systemStatusResponse{
		LocalID:            s.cfg.LocalID,
		DisplayName:        s.cfg.DisplayName,
		SignalingConnected: s.channel.Connected(),
		MediaStatus:        mediaStatus,
		CallState:          string(snap.State),
		UptimeSecs:         int64(time.Since(s.startTime).Seconds()),
	})
}
