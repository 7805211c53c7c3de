package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wavelink/wavelink/internal/api"
	"github.com/wavelink/wavelink/internal/call"
	"github.com/wavelink/wavelink/internal/config"
	"github.com/wavelink/wavelink/internal/database"
	"github.com/wavelink/wavelink/internal/devices"
	"github.com/wavelink/wavelink/internal/media"
	"github.com/wavelink/wavelink/internal/metrics"
	"github.com/wavelink/wavelink/internal/signaling"
	"github.com/wavelink/wavelink/internal/tokens"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging.
	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting wavelink",
		"http_port", cfg.HTTPPort,
		"local_id", cfg.LocalID,
		"data_dir", cfg.DataDir,
	)

	if cfg.LocalID == "" || cfg.AuthToken == "" {
		slog.Error("local-id and auth-token are required")
		os.Exit(1)
	}

	jwtSecret, err := cfg.JWTSecretBytes()
	if err != nil {
		slog.Error("failed to load jwt secret", "error", err)
		os.Exit(1)
	}

	// Open database and run migrations.
	db, err := database.Open(cfg.DataDir)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Application context for background goroutines.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	history := database.NewHistoryRepository(db)
	recovery := database.NewRecoveryStore(db)

	// Signaling channel with a reconnect loop; the channel itself does not
	// reconnect on its own.
	channel := signaling.NewWSChannel(cfg.SignalingURL, logger)
	go maintainSignaling(appCtx, channel, cfg.AuthToken)

	provider := media.NewGatewayProvider(cfg.MediaGatewayURL, logger)
	tokenSvc := tokens.NewClient(cfg.APIBaseURL, cfg.AuthToken)

	local := signaling.Party{ID: cfg.LocalID, FullName: cfg.DisplayName}
	controller := call.NewController(channel, provider, tokenSvc, recovery, history, cfg.MediaAppID, local, logger)
	controller.Start()

	inventory := devices.NewInventory(logger)

	// Metrics registry with only our own collector; the default registry's
	// process metrics are not useful on a per-user agent.
	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics.NewCollector(controller, channel, history, time.Now()))

	handler := api.NewServer(cfg, controller, channel, history, inventory, registry, jwtSecret)

	srv := &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("control api listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	// Graceful shutdown with timeout. End any active call first so the peer
	// is told rather than left hanging.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down")
	if _, err := controller.EndCall(ctx); err != nil && err != call.ErrNoActiveCall {
		slog.Warn("ending active call on shutdown", "error", err)
	}
	controller.Close()
	appCancel()
	channel.Close()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("wavelink stopped")
}

// maintainSignaling keeps the signaling channel connected, redialing with
// capped exponential backoff whenever the connection drops.
func maintainSignaling(ctx context.Context, channel *signaling.WSChannel, authToken string) {
	const (
		minBackoff = time.Second
		maxBackoff = 30 * time.Second
	)
	backoff := minBackoff

	for {
		if ctx.Err() != nil {
			return
		}
		if channel.Connected() {
			backoff = minBackoff
		} else {
			connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := channel.Connect(connectCtx, authToken)
			cancel()
			if err != nil {
				slog.Warn("signaling connect failed, retrying", "error", err, "backoff", backoff)
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return
				}
				backoff = min(backoff*2, maxBackoff)
				continue
			}
			backoff = minBackoff
		}

		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			return
		}
	}
}
