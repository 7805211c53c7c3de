package signaling

import "time"

// Call event names - client to server.
const (
	// EventCallInitiate - caller starts a call to a recipient.
	EventCallInitiate = "call:initiate"

	// EventCallAccept - callee accepts the incoming call.
	EventCallAccept = "call:accept"

	// EventCallReject - callee rejects the incoming call.
	EventCallReject = "call:reject"

	// EventCallEnd - either party ends an ongoing call.
	EventCallEnd = "call:end"

	// EventCallMessage - in-call text message, both directions.
	EventCallMessage = "call:message"
)

// Call event names - server to client.
const (
	// EventCallIncoming - notify callee of an incoming call.
	EventCallIncoming = "call:incoming"

	// EventCallAccepted - notify caller that the callee accepted.
	EventCallAccepted = "call:accepted"

	// EventCallRejected - notify caller that the callee rejected.
	EventCallRejected = "call:rejected"

	// EventCallEnded - notify the other party that the call ended.
	EventCallEnded = "call:ended"

	// EventCallUnavailable - notify caller that the callee cannot be reached.
	EventCallUnavailable = "call:unavailable"
)

// Party identifies a call participant as carried on the wire.
type Party struct {
	ID       string `json:"id"`
	FullName string `json:"fullName,omitempty"`
	Name     string `json:"name,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// InitiatePayload is the body of a call:initiate event.
type InitiatePayload struct {
	RecipientID string `json:"recipientId"`
	ChannelID   string `json:"channelId"`
	Kind        string `json:"kind"`
	Caller      Party  `json:"caller"`
	MediaToken  string `json:"mediaToken"`
}

// IncomingPayload is the body of a call:incoming event (server to callee).
type IncomingPayload struct {
	ChannelID  string `json:"channelId"`
	Kind       string `json:"kind"`
	Caller     Party  `json:"caller"`
	MediaToken string `json:"mediaToken,omitempty"`
}

// AcceptPayload is the body of call:accept and call:accepted events.
type AcceptPayload struct {
	ChannelID string `json:"channelId"`
	CallerID  string `json:"callerId"`
}

// RejectPayload is the body of call:reject and call:rejected events.
type RejectPayload struct {
	ChannelID string `json:"channelId"`
	CallerID  string `json:"callerId"`
}

// EndPayload is the body of call:end and call:ended events.
type EndPayload struct {
	ChannelID   string `json:"channelId"`
	RecipientID string `json:"recipientId,omitempty"`
}

// UnavailablePayload is the body of a call:unavailable event.
type UnavailablePayload struct {
	ChannelID string `json:"channelId"`
	Reason    string `json:"reason,omitempty"`
}

// ChatMessage is one in-call text message as carried on the wire.
type ChatMessage struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
}

// MessagePayload is the body of a call:message event, both directions.
type MessagePayload struct {
	ChannelID string      `json:"channelId"`
	Message   ChatMessage `json:"message"`
}
