package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/wavelink/wavelink/internal/call"
	"github.com/wavelink/wavelink/internal/signaling"
)

// callStateResponse is the JSON rendering of a call snapshot.
type callStateResponse struct {
	State     string           `json:"state"`
	ChannelID string           `json:"channel_id,omitempty"`
	Kind      string           `json:"kind,omitempty"`
	Role      string           `json:"role,omitempty"`
	Peer      *signaling.Party `json:"peer,omitempty"`
	PeerName  string           `json:"peer_name,omitempty"`
	StartedAt string           `json:"started_at,omitempty"`
	Duration  int64            `json:"duration_secs"`
	Muted     bool             `json:"muted"`
	VideoOff  bool             `json:"video_off"`
	Offer     *offerResponse   `json:"offer,omitempty"`
}

// offerResponse describes a pending incoming call.
type offerResponse struct {
	ChannelID  string          `json:"channel_id"`
	Kind       string          `json:"kind"`
	Caller     signaling.Party `json:"caller"`
	CallerName string          `json:"caller_name"`
	AutoAnswer bool            `json:"auto_answer"`
}

// toCallStateResponse converts a call.Snapshot to the API response.
func toCallStateResponse(snap call.Snapshot) callStateResponse {
	resp := callStateResponse{
		State:     string(snap.State),
		ChannelID: snap.ChannelID,
		Kind:      string(snap.Kind),
		Role:      string(snap.Role),
		PeerName:  snap.PeerName,
		Duration:  int64(snap.Duration.Seconds()),
		Muted:     snap.Muted,
		VideoOff:  snap.VideoOff,
	}
	if snap.Peer.ID != "" {
		peer := snap.Peer
		resp.Peer = &peer
	}
	if !snap.StartedAt.IsZero() {
		resp.StartedAt = snap.StartedAt.Format(time.RFC3339)
	}
	if snap.Offer != nil {
		resp.Offer = &offerResponse{
			ChannelID:  snap.Offer.ChannelID,
			Kind:       string(snap.Offer.Kind),
			Caller:     snap.Offer.Caller,
			CallerName: snap.Offer.CallerName,
			AutoAnswer: snap.Offer.AutoAnswer,
		}
	}
	return resp
}

// writeCallError maps controller errors to HTTP status codes.
func writeCallError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, call.ErrNoPeer):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, call.ErrCallInProgress),
		errors.Is(err, call.ErrTransitionInFlight),
		errors.Is(err, call.ErrNoPendingOffer),
		errors.Is(err, call.ErrNoActiveCall):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, call.ErrSignalingOffline):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

// handleCallState returns the current call snapshot.
func (s *Server) handleCallState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toCallStateResponse(s.controller.State()))
}

// startCallRequest is the payload for POST /call/start.
type startCallRequest struct {
	Peer signaling.Party `json:"peer"`
	Kind string          `json:"kind"`
}

// handleCallStart originates an outgoing call.
func (s *Server) handleCallStart(w http.ResponseWriter, r *http.Request) {
	var req startCallRequest
	if msg := decodeJSON(w, r, &req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	kind := call.Kind(req.Kind)
	if kind != call.KindVoice && kind != call.KindVideo {
		writeError(w, http.StatusBadRequest, "kind must be \"voice\" or \"video\"")
		return
	}

	snap, err := s.controller.StartCall(r.Context(), req.Peer, kind, "")
	if err != nil {
		writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCallStateResponse(snap))
}

// handleCallAnswer accepts the pending incoming call.
func (s *Server) handleCallAnswer(w http.ResponseWriter, r *http.Request) {
	snap, err := s.controller.Answer(r.Context())
	if err != nil {
		writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCallStateResponse(snap))
}

// handleCallReject declines the pending incoming call.
func (s *Server) handleCallReject(w http.ResponseWriter, r *http.Request) {
	snap, err := s.controller.Reject()
	if err != nil {
		writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCallStateResponse(snap))
}

// handleCallEnd terminates the active call.
func (s *Server) handleCallEnd(w http.ResponseWriter, r *http.Request) {
	snap, err := s.controller.EndCall(r.Context())
	if err != nil {
		writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCallStateResponse(snap))
}

// toggleResponse reports the flag value after a toggle.
type toggleResponse struct {
	Enabled bool `json:"enabled"`
}

// handleCallMute toggles the microphone mute flag.
func (s *Server) handleCallMute(w http.ResponseWriter, r *http.Request) {
	muted, err := s.controller.ToggleMute()
	if err != nil {
		writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toggleResponse{Enabled: muted})
}

// handleCallVideo toggles the camera-off flag.
func (s *Server) handleCallVideo(w http.ResponseWriter, r *http.Request) {
	videoOff, err := s.controller.ToggleVideo()
	if err != nil {
		writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toggleResponse{Enabled: videoOff})
}

// sendMessageRequest is the payload for POST /call/messages.
type sendMessageRequest struct {
	Text string `json:"text"`
}

// handleCallSendMessage sends one in-call chat message.
func (s *Server) handleCallSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if msg := decodeJSON(w, r, &req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	sent, err := s.controller.Messaging().Send(req.Text)
	if err != nil {
		switch {
		case errors.Is(err, call.ErrEmptyMessage):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, call.ErrNoActiveCall):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, sent)
}

// handleCallMessages returns the in-call chat history for the active call.
func (s *Server) handleCallMessages(w http.ResponseWriter, r *http.Request) {
	messages := s.controller.Messaging().History()
	if messages == nil {
		messages = []signaling.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, messages)
}
