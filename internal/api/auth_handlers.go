package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/wavelink/wavelink/internal/api/middleware"
	"github.com/wavelink/wavelink/internal/database"
)

// loginRequest is the payload for POST /auth/login.
type loginRequest struct {
	Password string `json:"password"`
}

// loginResponse carries the control token returned on successful login.
type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// handleLogin exchanges the control password for a bearer token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.cfg.ControlPassword == "" {
		writeError(w, http.StatusNotFound, "control authentication is not configured")
		return
	}

	var req loginRequest
	if msg := decodeJSON(w, r, &req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "password is required")
		return
	}

	match, err := database.CheckPassword(req.Password, s.cfg.ControlPassword)
	if err != nil {
		slog.Error("checking control password", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !match {
		slog.Warn("control login failed", "remote_addr", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "invalid password")
		return
	}

	token, expiresAt, err := middleware.GenerateControlToken(s.jwtSecret, s.cfg.LocalID)
	if err != nil {
		slog.Error("generating control token", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt.Format(time.RFC3339),
	})
}
