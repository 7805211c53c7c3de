//go:build linux

package media

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
)

// newCodecSelector builds the Opus/VP8 codec selector used for both capture
// and the peer connection's media engine.
func newCodecSelector() (*mediadevices.CodecSelector, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	vpxParams.BitRate = 1_500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}

	return mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	), nil
}

// newPeerConnection creates a PeerConnection whose media engine is populated
// from the capture codec selector, so captured tracks can be published as-is.
func newPeerConnection() (*webrtc.PeerConnection, error) {
	selector, err := newCodecSelector()
	if err != nil {
		return nil, err
	}

	mediaEngine := &webrtc.MediaEngine{}
	selector.Populate(mediaEngine)

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, err
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
	)

	return api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	})
}

// captureTrack acquires one microphone or camera track via pion/mediadevices.
// Video is capped at 640x480 and restricted to raw frame formats; MJPEG
// camera nodes can emit malformed JPEG frames that poison the VP8 encoder.
func captureTrack(_ context.Context, kind TrackKind) (Track, error) {
	selector, err := newCodecSelector()
	if err != nil {
		return nil, err
	}

	constraints := mediadevices.MediaStreamConstraints{Codec: selector}
	switch kind {
	case TrackKindAudio:
		constraints.Audio = func(_ *mediadevices.MediaTrackConstraints) {}
	case TrackKindVideo:
		constraints.Video = func(c *mediadevices.MediaTrackConstraints) {
			c.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			c.Width = prop.IntRanged{Max: 640}
			c.Height = prop.IntRanged{Max: 480}
		}
	default:
		return nil, fmt.Errorf("unknown track kind %q", kind)
	}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, fmt.Errorf("acquiring %s device: %w", kind, err)
	}

	tracks := stream.GetTracks()
	if len(tracks) == 0 {
		return nil, fmt.Errorf("no %s track produced by capture", kind)
	}

	// One-kind constraints produce exactly one track; close any extras.
	for _, extra := range tracks[1:] {
		extra.Close()
	}

	return &captureLocalTrack{md: tracks[0], kind: kind, enabled: true}, nil
}

// captureLocalTrack wraps a mediadevices track as a provider Track.
// SetEnabled pauses delivery by detaching the track from its RTP sender;
// the capture device stays open so resume is instant.
type captureLocalTrack struct {
	md   mediadevices.Track
	kind TrackKind

	mu      sync.Mutex
	sender  *webrtc.RTPSender
	enabled bool
}

func (t *captureLocalTrack) ID() string      { return t.md.ID() }
func (t *captureLocalTrack) Kind() TrackKind { return t.kind }

func (t *captureLocalTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if enabled == t.enabled {
		return
	}
	t.enabled = enabled

	if t.sender == nil {
		return
	}
	if enabled {
		t.sender.ReplaceTrack(t.md) //nolint:errcheck
	} else {
		t.sender.ReplaceTrack(nil) //nolint:errcheck
	}
}

func (t *captureLocalTrack) Close() error {
	return t.md.Close()
}

func (t *captureLocalTrack) trackLocal() webrtc.TrackLocal { return t.md }

func (t *captureLocalTrack) attachSender(s *webrtc.RTPSender) {
	t.mu.Lock()
	t.sender = s
	t.mu.Unlock()
}
