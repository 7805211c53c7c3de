// Package api implements the local HTTP control API for the WaveLink call
// agent. A UI process (or curl) drives calls through it; the daemon holds
// all call state.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wavelink/wavelink/internal/api/middleware"
	"github.com/wavelink/wavelink/internal/call"
	"github.com/wavelink/wavelink/internal/config"
	"github.com/wavelink/wavelink/internal/database"
	"github.com/wavelink/wavelink/internal/devices"
	"github.com/wavelink/wavelink/internal/signaling"
)

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router     *chi.Mux
	cfg        *config.Config
	controller *call.Controller
	channel    signaling.Channel
	history    database.HistoryRepository
	devices    *devices.Inventory
	gatherer   prometheus.Gatherer
	jwtSecret  []byte
	startTime  time.Time
}

// NewServer creates the HTTP handler with all routes mounted. gatherer may
// be nil to disable the /metrics endpoint.
func NewServer(
	cfg *config.Config,
	controller *call.Controller,
	channel signaling.Channel,
	history database.HistoryRepository,
	inventory *devices.Inventory,
	gatherer prometheus.Gatherer,
	jwtSecret []byte,
) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		cfg:        cfg,
		controller: controller,
		channel:    channel,
		history:    history,
		devices:    inventory,
		gatherer:   gatherer,
		jwtSecret:  jwtSecret,
		startTime:  time.Now(),
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes() {
	r := s.router

	// Global middleware stack.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(middleware.ParseCORSOrigins(s.cfg.CORSOrigins)))

	apiLimiter := middleware.NewIPRateLimiter(middleware.APIRateLimitConfig())
	authLimiter := middleware.NewIPRateLimiter(middleware.LoginRateLimitConfig())

	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(apiLimiter))

		// Unauthenticated routes.
		r.Get("/health", s.handleHealth)
		r.With(middleware.RateLimit(authLimiter)).Post("/auth/login", s.handleLogin)

		// Everything else requires a control token, unless no control
		// password is configured at all (trusted localhost setups).
		r.Group(func(r chi.Router) {
			if s.cfg.ControlPassword != "" {
				r.Use(middleware.RequireControlAuth(s.jwtSecret))
			}

			r.Route("/call", func(r chi.Router) {
				r.Get("/", s.handleCallState)
				r.Post("/start", s.handleCallStart)
				r.Post("/answer", s.handleCallAnswer)
				r.Post("/reject", s.handleCallReject)
				r.Post("/end", s.handleCallEnd)
				r.Post("/mute", s.handleCallMute)
				r.Post("/video", s.handleCallVideo)
				r.Get("/messages", s.handleCallMessages)
				r.Post("/messages", s.handleCallSendMessage)
			})

			r.Get("/history", s.handleHistoryList)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleDeviceList)
				r.Post("/test", s.handleDeviceTest)
			})

			r.Get("/system/status", s.handleSystemStatus)
		})
	})
}
