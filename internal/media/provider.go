package media

import "context"

// Status is the observable connection state of the media provider.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// TrackKind distinguishes audio from video tracks.
type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

// Track is a single local media stream handle. A track is exclusively owned
// by the call session that created it and must be closed exactly once.
type Track interface {
	// ID is the provider-assigned track identifier.
	ID() string

	// Kind reports whether this is an audio or video track.
	Kind() TrackKind

	// SetEnabled pauses (false) or resumes (true) the track without
	// releasing the underlying device.
	SetEnabled(enabled bool)

	// Close releases the track and its capture device.
	Close() error
}

// RemoteEvent describes a change on the remote side of the media channel.
type RemoteEvent struct {
	UserID string
	Kind   TrackKind // zero for join/leave events
}

// RemoteListener receives remote participant events from the provider.
// Any method may be left as a no-op by embedding NopRemoteListener.
type RemoteListener interface {
	RemoteTrackPublished(ev RemoteEvent)
	RemoteTrackUnpublished(ev RemoteEvent)
	RemoteUserJoined(ev RemoteEvent)
	RemoteUserLeft(ev RemoteEvent)
}

// NopRemoteListener ignores all remote events.
type NopRemoteListener struct{}

func (NopRemoteListener) RemoteTrackPublished(RemoteEvent)   {}
func (NopRemoteListener) RemoteTrackUnpublished(RemoteEvent) {}
func (NopRemoteListener) RemoteUserJoined(RemoteEvent)       {}
func (NopRemoteListener) RemoteUserLeft(RemoteEvent)         {}

// Provider is the media session capability: device capture, channel join,
// publish/subscribe, and remote participant events.
//
// Contract: Join must never be called while Status is connecting or
// connected. Callers are expected to Unpublish and Leave first, tolerating
// leave errors, so a stuck provider cannot block a new call.
type Provider interface {
	// Join connects to the media channel identified by channelID using the
	// per-call token. localID is this client's user ID within the channel.
	Join(ctx context.Context, appID, channelID, token, localID string) error

	// Leave disconnects from the current channel.
	Leave(ctx context.Context) error

	// CreateAudioTrack captures the default microphone.
	CreateAudioTrack(ctx context.Context) (Track, error)

	// CreateVideoTrack captures the default camera.
	CreateVideoTrack(ctx context.Context) (Track, error)

	// Publish makes the given local tracks available to the remote party.
	Publish(ctx context.Context, tracks ...Track) error

	// Unpublish withdraws all published local tracks.
	Unpublish(ctx context.Context) error

	// Status reports the current connection state.
	Status() Status

	// SetRemoteListener registers the receiver for remote participant
	// events. Passing nil removes the current listener.
	SetRemoteListener(l RemoteListener)
}
