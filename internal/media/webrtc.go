package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
)

// ErrAlreadyJoined is returned by Join when the provider is not disconnected.
// Callers must Unpublish and Leave before joining a new channel.
var ErrAlreadyJoined = errors.New("media provider already joined a channel")

// ErrCaptureUnsupported is returned by track creation on platforms without
// capture drivers.
var ErrCaptureUnsupported = errors.New("local media capture not supported on this platform")

// gatewayMsg is the wire format spoken with the media gateway: a join
// handshake followed by SDP offer/answer exchanges, plus server-pushed
// participant events.
type gatewayMsg struct {
	Type      string `json:"type"` // join, joined, offer, answer, peer-joined, peer-left, error
	AppID     string `json:"appId,omitempty"`
	ChannelID string `json:"channelId,omitempty"`
	Token     string `json:"token,omitempty"`
	UID       string `json:"uid,omitempty"`
	SDP       string `json:"sdp,omitempty"`
	UserID    string `json:"userId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// publishableTrack is the provider-internal view of a local track: it can
// hand out the underlying pion track and remember the sender publishing it.
type publishableTrack interface {
	Track
	trackLocal() webrtc.TrackLocal
	attachSender(s *webrtc.RTPSender)
}

// GatewayProvider implements Provider against the WaveLink media gateway:
// local capture through pion/mediadevices and transport through a
// PeerConnection negotiated over the gateway websocket.
type GatewayProvider struct {
	gatewayURL string
	logger     *slog.Logger

	mu       sync.Mutex
	status   Status
	conn     *websocket.Conn
	pc       *webrtc.PeerConnection
	senders  []*webrtc.RTPSender
	answers  chan string
	listener RemoteListener
}

// NewGatewayProvider creates a media provider that joins channels through
// the gateway at the given websocket URL.
func NewGatewayProvider(gatewayURL string, logger *slog.Logger) *GatewayProvider {
	return &GatewayProvider{
		gatewayURL: gatewayURL,
		status:     StatusDisconnected,
		logger:     logger.With("subsystem", "media"),
	}
}

// Status reports the current connection state.
func (p *GatewayProvider) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// SetRemoteListener registers the receiver for remote participant events.
func (p *GatewayProvider) SetRemoteListener(l RemoteListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listener = l
}

func (p *GatewayProvider) remoteListener() RemoteListener {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listener == nil {
		return NopRemoteListener{}
	}
	return p.listener
}

// Join authenticates against the media gateway with the per-call token and
// performs the initial SDP exchange. It fails if the provider is not
// disconnected: the caller owns the leave-before-join protocol.
func (p *GatewayProvider) Join(ctx context.Context, appID, channelID, token, localID string) error {
	p.mu.Lock()
	if p.status != StatusDisconnected {
		p.mu.Unlock()
		return ErrAlreadyJoined
	}
	p.status = StatusConnecting
	p.mu.Unlock()

	conn, pc, err := p.dialAndJoin(ctx, appID, channelID, token, localID)
	if err != nil {
		p.mu.Lock()
		p.status = StatusDisconnected
		p.mu.Unlock()
		return err
	}

	p.mu.Lock()
	p.conn = conn
	p.pc = pc
	p.answers = make(chan string, 1)
	p.status = StatusConnected
	p.mu.Unlock()

	go p.readLoop(conn)

	// Initial negotiation so the channel has a live transport even before
	// any local track is published (receive-only).
	if err := p.negotiate(ctx); err != nil {
		p.teardown()
		return fmt.Errorf("initial negotiation: %w", err)
	}

	p.logger.Info("joined media channel", "channel_id", channelID, "uid", localID)
	return nil
}

// dialAndJoin opens the gateway websocket and completes the join handshake.
func (p *GatewayProvider) dialAndJoin(ctx context.Context, appID, channelID, token, localID string) (*websocket.Conn, *webrtc.PeerConnection, error) {
	dialer := &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := dialer.DialContext(ctx, p.gatewayURL, header)
	if err != nil {
		if resp != nil {
			return nil, nil, fmt.Errorf("media gateway connect: %s: %w", resp.Status, err)
		}
		return nil, nil, fmt.Errorf("media gateway connect: %w", err)
	}

	join := gatewayMsg{Type: "join", AppID: appID, ChannelID: channelID, Token: token, UID: localID}
	if err := conn.WriteJSON(join); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("sending join: %w", err)
	}

	var reply gatewayMsg
	conn.SetReadDeadline(time.Now().Add(10 * time.Second)) //nolint:errcheck
	if err := conn.ReadJSON(&reply); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("reading join reply: %w", err)
	}
	conn.SetReadDeadline(time.Time{}) //nolint:errcheck

	switch reply.Type {
	case "joined":
	case "error":
		conn.Close()
		return nil, nil, fmt.Errorf("media gateway rejected join: %s", reply.Error)
	default:
		conn.Close()
		return nil, nil, fmt.Errorf("unexpected join reply %q", reply.Type)
	}

	pc, err := newPeerConnection()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("creating peer connection: %w", err)
	}

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		kind := TrackKindAudio
		if remote.Kind() == webrtc.RTPCodecTypeVideo {
			kind = TrackKindVideo
		}
		p.logger.Debug("remote track published", "stream_id", remote.StreamID(), "kind", kind)
		p.remoteListener().RemoteTrackPublished(RemoteEvent{UserID: remote.StreamID(), Kind: kind})

		// Drain inbound RTP so the receive buffers do not back up; remote
		// rendering happens in the UI layer, not here.
		go func() {
			for {
				if _, _, err := remote.ReadRTP(); err != nil {
					p.remoteListener().RemoteTrackUnpublished(RemoteEvent{UserID: remote.StreamID(), Kind: kind})
					return
				}
			}
		}()
	})

	return conn, pc, nil
}

// readLoop dispatches gateway messages: answers feed waiting negotiations,
// participant events go to the remote listener.
func (p *GatewayProvider) readLoop(conn *websocket.Conn) {
	for {
		var msg gatewayMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "answer":
			p.mu.Lock()
			ch := p.answers
			p.mu.Unlock()
			if ch != nil {
				select {
				case ch <- msg.SDP:
				default:
					p.logger.Warn("dropping unsolicited sdp answer")
				}
			}
		case "peer-joined":
			p.remoteListener().RemoteUserJoined(RemoteEvent{UserID: msg.UserID})
		case "peer-left":
			p.remoteListener().RemoteUserLeft(RemoteEvent{UserID: msg.UserID})
		case "error":
			p.logger.Warn("media gateway error", "error", msg.Error)
		}
	}
}

// negotiate runs one offer/answer exchange with the gateway. ICE candidates
// are gathered up front (no trickle), so the offer carries the full
// candidate set.
func (p *GatewayProvider) negotiate(ctx context.Context) error {
	p.mu.Lock()
	pc, conn, answers := p.pc, p.conn, p.answers
	p.mu.Unlock()
	if pc == nil || conn == nil {
		return ErrNotJoined
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("creating offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("setting local description: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := conn.WriteJSON(gatewayMsg{Type: "offer", SDP: pc.LocalDescription().SDP}); err != nil {
		return fmt.Errorf("sending offer: %w", err)
	}

	select {
	case sdp := <-answers:
		answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
		if err := pc.SetRemoteDescription(answer); err != nil {
			return fmt.Errorf("setting remote description: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(15 * time.Second):
		return errors.New("timed out waiting for sdp answer")
	}
}

// ErrNotJoined is returned when an operation requires a joined channel.
var ErrNotJoined = errors.New("media provider not joined to a channel")

// CreateAudioTrack captures the default microphone.
func (p *GatewayProvider) CreateAudioTrack(ctx context.Context) (Track, error) {
	return captureTrack(ctx, TrackKindAudio)
}

// CreateVideoTrack captures the default camera.
func (p *GatewayProvider) CreateVideoTrack(ctx context.Context) (Track, error) {
	return captureTrack(ctx, TrackKindVideo)
}

// Publish adds the given local tracks to the peer connection and
// renegotiates with the gateway.
func (p *GatewayProvider) Publish(ctx context.Context, tracks ...Track) error {
	p.mu.Lock()
	pc := p.pc
	p.mu.Unlock()
	if pc == nil {
		return ErrNotJoined
	}

	for _, t := range tracks {
		pt, ok := t.(publishableTrack)
		if !ok {
			return fmt.Errorf("track %s was not created by this provider", t.ID())
		}
		sender, err := pc.AddTrack(pt.trackLocal())
		if err != nil {
			return fmt.Errorf("adding %s track: %w", t.Kind(), err)
		}
		pt.attachSender(sender)
		p.mu.Lock()
		p.senders = append(p.senders, sender)
		p.mu.Unlock()
	}

	if err := p.negotiate(ctx); err != nil {
		return fmt.Errorf("publish negotiation: %w", err)
	}
	p.logger.Debug("published local tracks", "count", len(tracks))
	return nil
}

// Unpublish withdraws all published local tracks and renegotiates.
func (p *GatewayProvider) Unpublish(ctx context.Context) error {
	p.mu.Lock()
	pc := p.pc
	senders := p.senders
	p.senders = nil
	p.mu.Unlock()
	if pc == nil {
		return ErrNotJoined
	}
	if len(senders) == 0 {
		return nil
	}

	for _, s := range senders {
		if err := pc.RemoveTrack(s); err != nil {
			p.logger.Warn("removing track from peer connection", "error", err)
		}
	}

	if err := p.negotiate(ctx); err != nil {
		return fmt.Errorf("unpublish negotiation: %w", err)
	}
	return nil
}

// Leave disconnects from the current channel, closing the peer connection
// and the gateway websocket.
func (p *GatewayProvider) Leave(ctx context.Context) error {
	return p.teardown()
}

// teardown closes the transport and resets status to disconnected.
func (p *GatewayProvider) teardown() error {
	p.mu.Lock()
	conn, pc := p.conn, p.pc
	p.conn, p.pc, p.senders, p.answers = nil, nil, nil, nil
	p.status = StatusDisconnected
	p.mu.Unlock()

	var errs []error
	if pc != nil {
		if err := pc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing peer connection: %w", err))
		}
	}
	if conn != nil {
		conn.WriteJSON(gatewayMsg{Type: "leave"}) //nolint:errcheck
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing gateway connection: %w", err))
		}
	}
	return errors.Join(errs...)
}
