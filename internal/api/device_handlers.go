package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/wavelink/wavelink/internal/devices"
)

// handleDeviceList returns all known capture and playback devices.
func (s *Server) handleDeviceList(w http.ResponseWriter, r *http.Request) {
	list, err := s.devices.List(r.Context())
	if err != nil {
		if errors.Is(err, devices.ErrUnsupportedPlatform) {
			writeError(w, http.StatusNotImplemented, err.Error())
			return
		}
		slog.Error("listing devices", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if list == nil {
		list = []devices.Device{}
	}
	writeJSON(w, http.StatusOK, list)
}

// deviceTestRequest is the payload for POST /devices/test.
type deviceTestRequest struct {
	Kind string `json:"kind"`
}

// deviceTestResponse reports the result of a capture self-test.
type deviceTestResponse struct {
	Kind string `json:"kind"`
	OK   bool   `json:"ok"`
}

// handleDeviceTest opens and releases a device of the requested kind.
func (s *Server) handleDeviceTest(w http.ResponseWriter, r *http.Request) {
	var req deviceTestRequest
	if msg := decodeJSON(w, r, &req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	kind := devices.Kind(req.Kind)
	switch kind {
	case devices.KindMicrophone, devices.KindSpeaker, devices.KindCamera:
	default:
		writeError(w, http.StatusBadRequest, "kind must be \"microphone\", \"speaker\", or \"camera\"")
		return
	}

	if err := s.devices.Test(r.Context(), kind); err != nil {
		switch {
		case errors.Is(err, devices.ErrNoDevice):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, devices.ErrUnsupportedPlatform):
			writeError(w, http.StatusNotImplemented, err.Error())
		default:
			writeError(w, http.StatusConflict, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, deviceTestResponse{Kind: req.Kind, OK: true})
}
