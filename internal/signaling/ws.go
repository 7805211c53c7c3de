package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// envelope is the wire format for all signaling traffic: a named event
// with a JSON body.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// WSChannel is a websocket-backed signaling channel. One reader goroutine
// decodes inbound envelopes and dispatches them to registered handlers;
// writes are serialized through a mutex. Reconnection is the caller's
// concern: a dropped connection leaves the channel disconnected until
// Connect is called again.
type WSChannel struct {
	Dispatcher

	url    string
	dialer *websocket.Dialer
	logger *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

// NewWSChannel creates a signaling channel that dials the given websocket URL.
func NewWSChannel(url string, logger *slog.Logger) *WSChannel {
	return &WSChannel{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger.With("subsystem", "signaling"),
	}
}

// Connect dials the signaling service, presenting the bearer credential in
// the handshake, and starts the read loop.
func (c *WSChannel) Connect(ctx context.Context, authToken string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+authToken)

	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("signaling connect: %s: %w", resp.Status, err)
		}
		return fmt.Errorf("signaling connect: %w", err)
	}

	c.conn = conn
	c.connected = true
	c.logger.Info("signaling connected", "url", c.url)

	go c.readLoop(conn)
	return nil
}

// readLoop decodes inbound envelopes until the connection drops.
func (c *WSChannel) readLoop(conn *websocket.Conn) {
	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			c.mu.Lock()
			// Only mark disconnected if this is still the active connection;
			// a stale read loop from a replaced connection must not clobber it.
			if c.conn == conn {
				c.connected = false
				c.conn = nil
			}
			c.mu.Unlock()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("signaling read failed", "error", err)
			}
			return
		}
		c.logger.Debug("signaling event received", "event", env.Event)
		c.Dispatch(env.Event, env.Data)
	}
}

// Emit sends a named event to the server.
func (c *WSChannel) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", event, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.conn == nil {
		return ErrNotConnected
	}
	if err := c.conn.WriteJSON(envelope{Event: event, Data: data}); err != nil {
		return fmt.Errorf("emitting %s: %w", event, err)
	}
	c.logger.Debug("signaling event sent", "event", event)
	return nil
}

// Connected reports whether the websocket is currently established.
func (c *WSChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Close shuts down the websocket. Safe to call multiple times.
func (c *WSChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.connected = false
	return err
}
