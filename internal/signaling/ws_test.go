package signaling

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// startTestServer runs a websocket echo-style server that records the auth
// header and forwards every received envelope to the returned channel.
func startTestServer(t *testing.T) (*httptest.Server, chan envelope, chan string) {
	t.Helper()

	received := make(chan envelope, 16)
	authHeaders := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case authHeaders <- r.Header.Get("Authorization"):
		default:
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var env envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			received <- env
			// Echo call:initiate back as call:incoming so the client side
			// of the test can observe a server-pushed event.
			if env.Event == EventCallInitiate {
				conn.WriteJSON(envelope{Event: EventCallIncoming, Data: env.Data}) //nolint:errcheck
			}
		}
	}))
	t.Cleanup(srv.Close)

	return srv, received, authHeaders
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWSChannelConnectAndEmit(t *testing.T) {
	srv, received, authHeaders := startTestServer(t)

	ch := NewWSChannel(wsURL(srv), slog.Default())
	defer ch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if ch.Connected() {
		t.Fatal("channel should not report connected before Connect")
	}
	if err := ch.Connect(ctx, "tok-xyz"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !ch.Connected() {
		t.Fatal("channel should report connected after Connect")
	}

	select {
	case auth := <-authHeaders:
		if auth != "Bearer tok-xyz" {
			t.Errorf("auth header = %q, want %q", auth, "Bearer tok-xyz")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handshake")
	}

	err := ch.Emit(EventCallEnd, EndPayload{ChannelID: "c-1", RecipientID: "u-2"})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	select {
	case env := <-received:
		if env.Event != EventCallEnd {
			t.Errorf("event = %q, want %q", env.Event, EventCallEnd)
		}
		var p EndPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			t.Fatalf("decoding payload: %v", err)
		}
		if p.ChannelID != "c-1" {
			t.Errorf("channelId = %q, want c-1", p.ChannelID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for emitted event")
	}
}

func TestWSChannelDispatchesInboundEvents(t *testing.T) {
	srv, _, _ := startTestServer(t)

	ch := NewWSChannel(wsURL(srv), slog.Default())
	defer ch.Close()

	got := make(chan IncomingPayload, 1)
	ch.On(EventCallIncoming, func(data json.RawMessage) {
		var p IncomingPayload
		if err := json.Unmarshal(data, &p); err != nil {
			t.Errorf("decoding incoming payload: %v", err)
			return
		}
		got <- p
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ch.Connect(ctx, "tok"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// The test server mirrors call:initiate back as call:incoming.
	err := ch.Emit(EventCallInitiate, IncomingPayload{ChannelID: "c-42", Kind: "voice"})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	select {
	case p := <-got:
		if p.ChannelID != "c-42" || p.Kind != "voice" {
			t.Errorf("payload = %+v, want channel c-42 kind voice", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatched event")
	}
}

func TestWSChannelEmitWhenDisconnected(t *testing.T) {
	ch := NewWSChannel("ws://127.0.0.1:1/ws", slog.Default())
	if err := ch.Emit(EventCallEnd, EndPayload{ChannelID: "c"}); err != ErrNotConnected {
		t.Fatalf("Emit on disconnected channel = %v, want ErrNotConnected", err)
	}
}

func TestDispatcherOnOff(t *testing.T) {
	var d Dispatcher

	calls := 0
	id := d.On("evt", func(json.RawMessage) { calls++ })
	d.On("other", func(json.RawMessage) { t.Error("wrong event dispatched") })

	d.Dispatch("evt", nil)
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}

	d.Off("evt", id)
	d.Dispatch("evt", nil)
	if calls != 1 {
		t.Fatalf("calls after Off = %d, want 1", calls)
	}
}
