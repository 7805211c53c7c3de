package call

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wavelink/wavelink/internal/signaling"
)

// ErrEmptyMessage is returned by Send for empty or whitespace-only text.
var ErrEmptyMessage = errors.New("message text must not be empty")

// Messaging is the secondary text channel scoped to the active call. Sent
// messages are appended optimistically; received messages are appended only
// when they carry the active session's channel ID. The history is
// append-only and cleared when the session changes.
type Messaging struct {
	channel signaling.Channel
	local   signaling.Party
	logger  *slog.Logger

	mu        sync.Mutex
	channelID string
	messages  []signaling.ChatMessage
}

func newMessaging(channel signaling.Channel, local signaling.Party, logger *slog.Logger) *Messaging {
	return &Messaging{
		channel: channel,
		local:   local,
		logger:  logger.With("subsystem", "call_messaging"),
	}
}

// bind scopes the messaging channel to a session's channel ID, discarding
// any previous history. An empty ID unbinds it.
func (m *Messaging) bind(channelID string) {
	m.mu.Lock()
	m.channelID = channelID
	m.messages = nil
	m.mu.Unlock()
}

// Send validates, appends, and emits one in-call message. The local append
// is optimistic: it happens before the emit so the sender sees their own
// message immediately.
func (m *Messaging) Send(text string) (signaling.ChatMessage, error) {
	if strings.TrimSpace(text) == "" {
		return signaling.ChatMessage{}, ErrEmptyMessage
	}

	m.mu.Lock()
	channelID := m.channelID
	m.mu.Unlock()
	if channelID == "" {
		return signaling.ChatMessage{}, ErrNoActiveCall
	}

	msg := signaling.ChatMessage{
		ID:         uuid.NewString(),
		SenderID:   m.local.ID,
		SenderName: PeerDisplayName(m.local),
		Text:       text,
		Timestamp:  time.Now(),
	}

	m.mu.Lock()
	m.messages = append(m.messages, msg)
	m.mu.Unlock()

	err := m.channel.Emit(signaling.EventCallMessage, signaling.MessagePayload{
		ChannelID: channelID,
		Message:   msg,
	})
	if err != nil {
		return msg, err
	}
	return msg, nil
}

// receive appends an inbound message if it belongs to the active call.
// Messages for other channels are not an error, just irrelevant.
func (m *Messaging) receive(p signaling.MessagePayload) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.channelID == "" || p.ChannelID != m.channelID {
		m.logger.Debug("dropping message for foreign channel", "channel_id", p.ChannelID)
		return
	}
	m.messages = append(m.messages, p.Message)
}

// History returns a copy of the in-call message history.
func (m *Messaging) History() []signaling.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]signaling.ChatMessage, len(m.messages))
	copy(out, m.messages)
	return out
}
