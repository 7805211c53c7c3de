package call

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wavelink/wavelink/internal/media"
	"github.com/wavelink/wavelink/internal/signaling"
)

// State is the lifecycle state of a call session.
type State string

const (
	StateIdle        State = "idle"
	StateOriginating State = "originating"
	StateRinging     State = "ringing"
	StateConnecting  State = "connecting"
	StateActive      State = "active"
	StateEnding      State = "ending"
	StateFailed      State = "failed"
)

// Kind is the call media type.
type Kind string

const (
	KindVoice Kind = "voice"
	KindVideo Kind = "video"
)

// Role distinguishes the originating from the answering side.
type Role string

const (
	RoleCaller Role = "caller"
	RoleCallee Role = "callee"
)

// MaxChannelIDLength is the provider-imposed upper bound on media channel
// identifiers.
const MaxChannelIDLength = 64

// NewChannelID generates a unique media channel identifier, always within
// the provider length limit.
func NewChannelID() string {
	return "wl-" + uuid.NewString()
}

// ValidateChannelID rejects empty or over-long channel identifiers before
// any network or provider call is made with them.
func ValidateChannelID(channelID string) error {
	if channelID == "" {
		return fmt.Errorf("channel id must not be empty")
	}
	if len(channelID) > MaxChannelIDLength {
		return fmt.Errorf("channel id exceeds %d characters (%d)", MaxChannelIDLength, len(channelID))
	}
	return nil
}

// PeerDisplayName resolves the name shown for a call peer through an
// ordered fallback: full name, then short name, then ID, then "Unknown".
func PeerDisplayName(p signaling.Party) string {
	switch {
	case p.FullName != "":
		return p.FullName
	case p.Name != "":
		return p.Name
	case p.ID != "":
		return p.ID
	default:
		return "Unknown"
	}
}

// Session is the authoritative record of one call attempt. Its channel ID is
// immutable once created; local tracks are exclusively owned by the session
// and must be closed before another session acquires any.
type Session struct {
	// ChannelID identifies the media room, unique per call.
	ChannelID string

	// Kind is voice or video.
	Kind Kind

	// Role records which side of the call this client is.
	Role Role

	// Peer is the remote party identity.
	Peer signaling.Party

	// MediaToken is the per-call credential for the media provider. It is
	// scoped to ChannelID and never reused across channels.
	MediaToken string

	// State is the current lifecycle state.
	State State

	// StartedAt is when the session went active.
	StartedAt time.Time

	// Muted and VideoOff are local toggle flags, independent of whether
	// the corresponding track exists.
	Muted    bool
	VideoOff bool

	audioTrack media.Track
	videoTrack media.Track
}

// Duration returns the elapsed call time, zero before the session is active.
func (s *Session) Duration() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	return time.Since(s.StartedAt)
}

// AdoptTrack takes exclusive ownership of a local track. A leftover track of
// the same kind is an invariant violation; it is closed before adoption.
func (s *Session) AdoptTrack(t media.Track, logger *slog.Logger) {
	switch t.Kind() {
	case media.TrackKindAudio:
		if s.audioTrack != nil {
			logger.Warn("closing leftover audio track before adopting a new one")
			if err := s.audioTrack.Close(); err != nil {
				logger.Warn("closing leftover audio track", "error", err)
			}
		}
		s.audioTrack = t
	case media.TrackKindVideo:
		if s.videoTrack != nil {
			logger.Warn("closing leftover video track before adopting a new one")
			if err := s.videoTrack.Close(); err != nil {
				logger.Warn("closing leftover video track", "error", err)
			}
		}
		s.videoTrack = t
	}
}

// Tracks returns the currently owned local tracks.
func (s *Session) Tracks() []media.Track {
	var ts []media.Track
	if s.audioTrack != nil {
		ts = append(ts, s.audioTrack)
	}
	if s.videoTrack != nil {
		ts = append(ts, s.videoTrack)
	}
	return ts
}

// AudioTrack returns the owned audio track, or nil.
func (s *Session) AudioTrack() media.Track { return s.audioTrack }

// VideoTrack returns the owned video track, or nil.
func (s *Session) VideoTrack() media.Track { return s.videoTrack }

// CloseTracks closes and releases all owned local tracks. Close failures are
// logged, never propagated: teardown must always run to completion.
func (s *Session) CloseTracks(logger *slog.Logger) {
	if s.audioTrack != nil {
		if err := s.audioTrack.Close(); err != nil {
			logger.Warn("closing audio track", "error", err)
		}
		s.audioTrack = nil
	}
	if s.videoTrack != nil {
		if err := s.videoTrack.Close(); err != nil {
			logger.Warn("closing video track", "error", err)
		}
		s.videoTrack = nil
	}
}

// TokenService is the boundary to the WaveLink token endpoints. Both calls
// require a bearer credential and are not retried on failure.
type TokenService interface {
	// StartCall registers a proposed call and returns the media token for
	// its channel. The server may substitute its own channel ID; the
	// returned value is authoritative.
	StartCall(ctx context.Context, channelID, recipientID string, kind Kind) (string, string, error)

	// FetchToken returns a media token for joining an existing channel.
	FetchToken(ctx context.Context, channelID, localID string) (string, error)
}
