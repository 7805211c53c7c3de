package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Config holds all runtime configuration for the WaveLink call agent.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	DataDir         string
	HTTPPort        int
	APIBaseURL      string // WaveLink REST API base (token service lives here)
	SignalingURL    string // websocket URL of the signaling service
	MediaGatewayURL string // websocket URL of the media gateway (SFU)
	MediaAppID      string // application ID passed to the media provider on join
	AuthToken       string // bearer credential for signaling and token service
	LocalID         string // this client's user ID
	DisplayName     string // display name announced to call peers
	ControlPassword string // Argon2id hash protecting the local control API
	JWTSecret       string // hex-encoded 32-byte secret for control API JWT signing
	CORSOrigins     string // comma-separated origins allowed to call the control API
	LogLevel        string
	LogFormat       string // log output format: "text" or "json"
}

// defaults
const (
	defaultDataDir      = "./data"
	defaultHTTPPort     = 8090
	defaultAPIBaseURL   = "https://api.wavelink.app"
	defaultSignalingURL = "wss://api.wavelink.app/rtm"
	defaultMediaGateway = "wss://media.wavelink.app/ws"
	defaultLogLevel     = "info"
	defaultLogFormat    = "text"
)

// envPrefix is the prefix for all WaveLink environment variables.
const envPrefix = "WAVELINK_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("wavelink", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for call history and recovery store")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "local control API listen port")
	fs.StringVar(&cfg.APIBaseURL, "api-url", defaultAPIBaseURL, "WaveLink REST API base URL")
	fs.StringVar(&cfg.SignalingURL, "signaling-url", defaultSignalingURL, "signaling service websocket URL")
	fs.StringVar(&cfg.MediaGatewayURL, "media-gateway-url", defaultMediaGateway, "media gateway websocket URL")
	fs.StringVar(&cfg.MediaAppID, "media-app-id", "", "application ID for the media provider")
	fs.StringVar(&cfg.AuthToken, "auth-token", "", "bearer credential for signaling and token service")
	fs.StringVar(&cfg.LocalID, "local-id", "", "user ID of this client")
	fs.StringVar(&cfg.DisplayName, "display-name", "", "display name announced to call peers")
	fs.StringVar(&cfg.ControlPassword, "control-password-hash", "", "Argon2id hash of the local control API password (API is unauthenticated if empty)")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "", "hex-encoded 32-byte secret for control API JWT signing (auto-generated if empty)")
	fs.StringVar(&cfg.CORSOrigins, "cors-origins", "", "comma-separated origins allowed to call the control API")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// Apply env var overrides for any flags not explicitly set on the command line.
	// CLI flags take precedence over env vars.
	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line. This preserves the precedence:
// CLI flags > env vars > defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	// Track which flags were explicitly set via CLI.
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	// Map of flag name to env var name.
	envMap := map[string]string{
		"data-dir":              envPrefix + "DATA_DIR",
		"http-port":             envPrefix + "HTTP_PORT",
		"api-url":               envPrefix + "API_URL",
		"signaling-url":         envPrefix + "SIGNALING_URL",
		"media-gateway-url":     envPrefix + "MEDIA_GATEWAY_URL",
		"media-app-id":          envPrefix + "MEDIA_APP_ID",
		"auth-token":            envPrefix + "AUTH_TOKEN",
		"local-id":              envPrefix + "LOCAL_ID",
		"display-name":          envPrefix + "DISPLAY_NAME",
		"control-password-hash": envPrefix + "CONTROL_PASSWORD_HASH",
		"jwt-secret":            envPrefix + "JWT_SECRET",
		"cors-origins":          envPrefix + "CORS_ORIGINS",
		"log-level":             envPrefix + "LOG_LEVEL",
		"log-format":            envPrefix + "LOG_FORMAT",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "data-dir":
			cfg.DataDir = val
		case "http-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.HTTPPort = v
			}
		case "api-url":
			cfg.APIBaseURL = val
		case "signaling-url":
			cfg.SignalingURL = val
		case "media-gateway-url":
			cfg.MediaGatewayURL = val
		case "media-app-id":
			cfg.MediaAppID = val
		case "auth-token":
			cfg.AuthToken = val
		case "local-id":
			cfg.LocalID = val
		case "display-name":
			cfg.DisplayName = val
		case "control-password-hash":
			cfg.ControlPassword = val
		case "jwt-secret":
			cfg.JWTSecret = val
		case "cors-origins":
			cfg.CORSOrigins = val
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}

	if _, err := url.Parse(c.APIBaseURL); err != nil || c.APIBaseURL == "" {
		return fmt.Errorf("api-url must be a valid URL, got %q", c.APIBaseURL)
	}
	for name, raw := range map[string]string{
		"signaling-url":     c.SignalingURL,
		"media-gateway-url": c.MediaGatewayURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || raw == "" {
			return fmt.Errorf("%s must be a valid URL, got %q", name, raw)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("%s must use ws:// or wss://, got %q", name, raw)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	return nil
}

// JWTSecretBytes returns the decoded 32-byte JWT signing secret.
// If no secret is configured, it generates a random 32-byte key and stores
// the hex-encoded value back in the config for the process lifetime.
func (c *Config) JWTSecretBytes() ([]byte, error) {
	if c.JWTSecret == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating jwt secret: %w", err)
		}
		c.JWTSecret = hex.EncodeToString(key)
		slog.Warn("no jwt-secret configured, generated ephemeral key (tokens will not survive restart)")
		return key, nil
	}
	key, err := hex.DecodeString(c.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("decoding jwt secret: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("jwt secret must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
