package call

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/wavelink/wavelink/internal/signaling"
)

func newTestMessaging() (*Messaging, *fakeChannel) {
	ch := &fakeChannel{connected: true}
	local := signaling.Party{ID: "user-a", FullName: "Alice Example"}
	return newMessaging(ch, local, slog.Default()), ch
}

func TestSendRejectsEmptyText(t *testing.T) {
	m, _ := newTestMessaging()
	m.bind("c-1")

	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := m.Send(text); !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("Send(%q) err = %v, want ErrEmptyMessage", text, err)
		}
	}
	if got := len(m.History()); got != 0 {
		t.Errorf("history = %d messages, want 0", got)
	}
}

func TestSendRequiresActiveCall(t *testing.T) {
	m, _ := newTestMessaging()
	if _, err := m.Send("hello"); !errors.Is(err, ErrNoActiveCall) {
		t.Fatalf("err = %v, want ErrNoActiveCall", err)
	}
}

func TestSendAppendsOptimisticallyAndEmits(t *testing.T) {
	m, ch := newTestMessaging()
	m.bind("c-1")

	msg, err := m.Send("hello there")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msg.ID == "" || msg.SenderID != "user-a" || msg.SenderName != "Alice Example" {
		t.Errorf("message = %+v", msg)
	}

	hist := m.History()
	if len(hist) != 1 || hist[0].Text != "hello there" {
		t.Fatalf("history = %+v, want the sent message", hist)
	}

	payload, ok := ch.lastEmitted(signaling.EventCallMessage)
	if !ok {
		t.Fatal("call:message was not emitted")
	}
	p := payload.(signaling.MessagePayload)
	if p.ChannelID != "c-1" || p.Message.ID != msg.ID {
		t.Errorf("payload = %+v", p)
	}
}

func TestSendKeepsLocalCopyOnEmitFailure(t *testing.T) {
	m, ch := newTestMessaging()
	ch.emitErr = errors.New("socket closed")
	m.bind("c-1")

	if _, err := m.Send("hello"); err == nil {
		t.Fatal("expected emit error to surface")
	}
	// The optimistic append stands even when the emit fails.
	if got := len(m.History()); got != 1 {
		t.Errorf("history = %d messages, want 1", got)
	}
}

func TestReceiveDropsForeignChannel(t *testing.T) {
	m, _ := newTestMessaging()
	m.bind("c-1")

	msg := signaling.ChatMessage{ID: "m1", SenderID: "user-b", Text: "hi", Timestamp: time.Now()}
	m.receive(signaling.MessagePayload{ChannelID: "c-other", Message: msg})
	if got := len(m.History()); got != 0 {
		t.Errorf("history = %d messages, want 0 after foreign-channel drop", got)
	}

	m.receive(signaling.MessagePayload{ChannelID: "c-1", Message: msg})
	hist := m.History()
	if len(hist) != 1 || hist[0].ID != "m1" {
		t.Errorf("history = %+v, want the matching message", hist)
	}
}

func TestBindClearsHistory(t *testing.T) {
	m, _ := newTestMessaging()
	m.bind("c-1")
	if _, err := m.Send("first call message"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	m.bind("c-2")
	if got := len(m.History()); got != 0 {
		t.Errorf("history after rebind = %d messages, want 0", got)
	}

	m.bind("")
	if _, err := m.Send("hello"); !errors.Is(err, ErrNoActiveCall) {
		t.Errorf("Send after unbind err = %v, want ErrNoActiveCall", err)
	}
}

func TestHistoryReturnsCopy(t *testing.T) {
	m, _ := newTestMessaging()
	m.bind("c-1")
	if _, err := m.Send("original"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	hist := m.History()
	hist[0].Text = "mutated"
	if got := m.History()[0].Text; got != "original" {
		t.Errorf("internal history mutated through returned slice: %q", got)
	}
}
