package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wavelink/wavelink/internal/media"
	"github.com/wavelink/wavelink/internal/signaling"
)

// Precondition errors. These are rejected synchronously before any side
// effect and are safe to show to the user.
var (
	ErrNoPeer             = errors.New("no call recipient selected")
	ErrCallInProgress     = errors.New("a call is already in progress")
	ErrSignalingOffline   = errors.New("not connected to the signaling service")
	ErrTransitionInFlight = errors.New("another call operation is in progress")
	ErrNoPendingOffer     = errors.New("no incoming call to answer")
	ErrNoActiveCall       = errors.New("no active call")
)

const (
	// autoAnswerGrace is the delay between receiving an auto-answer offer
	// and answering it, giving the UI a moment to render the call screen.
	autoAnswerGrace = 1 * time.Second

	// offerPollInterval is how often the recovery store is polled for a
	// pending offer delivered outside the live signaling connection.
	offerPollInterval = 500 * time.Millisecond

	// offerTTL bounds how long a persisted offer stays answerable.
	offerTTL = 45 * time.Second

	// tickInterval drives the UI duration timer while a call is active.
	tickInterval = 1 * time.Second
)

// Snapshot is an immutable view of the controller state handed to observers.
type Snapshot struct {
	State     State
	ChannelID string
	Kind      Kind
	Role      Role
	Peer      signaling.Party
	PeerName  string
	StartedAt time.Time
	Duration  time.Duration
	Muted     bool
	VideoOff  bool
	Offer     *OfferSnapshot
}

// OfferSnapshot describes a pending incoming call for observers.
type OfferSnapshot struct {
	ChannelID  string
	Kind       Kind
	Caller     signaling.Party
	CallerName string
	AutoAnswer bool
}

// Controller orchestrates call session transitions in response to local
// actions and signaling events. All transitions are serialized through a
// single in-flight guard: a second start/answer/end while one is suspended
// on a provider or network operation is rejected, not queued.
type Controller struct {
	channel  signaling.Channel
	provider media.Provider
	tokens   TokenService
	recovery RecoveryStore
	history  HistoryStore
	logger   *slog.Logger

	appID string
	local signaling.Party

	// offerLifetime bounds how long an unanswered offer rings before it is
	// recorded as missed. Defaults to offerTTL.
	offerLifetime time.Duration

	mu            sync.Mutex
	session       *Session
	offer         *IncomingOffer
	offerSeq      uint64
	transitioning bool
	subs          []func(Snapshot)
	tickerStop    chan struct{}

	msgs *Messaging

	events chan func()
	done   chan struct{}
}

// NewController wires the call controller to its collaborators. local is
// this client's identity as announced to peers; appID is passed to the
// media provider on join.
func NewController(
	channel signaling.Channel,
	provider media.Provider,
	tokens TokenService,
	recovery RecoveryStore,
	history HistoryStore,
	appID string,
	local signaling.Party,
	logger *slog.Logger,
) *Controller {
	c := &Controller{
		channel:  channel,
		provider: provider,
		tokens:   tokens,
		recovery: recovery,
		history:  history,
		appID:    appID,
		local:    local,
		logger:   logger.With("subsystem", "call"),

		offerLifetime: offerTTL,

		events: make(chan func(), 64),
		done:   make(chan struct{}),
	}
	c.msgs = newMessaging(channel, local, c.logger)
	return c
}

// Start registers signaling handlers and launches the event queue and the
// recovery-store poller. It must be called once before any call operation.
func (c *Controller) Start() {
	c.channel.On(signaling.EventCallIncoming, c.queued(c.onIncoming))
	c.channel.On(signaling.EventCallAccepted, c.queued(c.onAccepted))
	c.channel.On(signaling.EventCallRejected, c.queued(c.onRejected))
	c.channel.On(signaling.EventCallEnded, c.queued(c.onEnded))
	c.channel.On(signaling.EventCallUnavailable, c.queued(c.onUnavailable))
	c.channel.On(signaling.EventCallMessage, c.queued(c.onMessage))

	go c.runQueue()
	go c.pollRecovery()
}

// Close stops the controller's background goroutines. Any active call
// should be ended by the caller first.
func (c *Controller) Close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

// Messaging returns the in-call text channel scoped to the active session.
func (c *Controller) Messaging() *Messaging { return c.msgs }

// Provider returns the media provider the controller drives.
func (c *Controller) Provider() media.Provider { return c.provider }

// Subscribe registers an observer invoked after every state change and on
// every duration tick while a call is active.
func (c *Controller) Subscribe(fn func(Snapshot)) {
	c.mu.Lock()
	c.subs = append(c.subs, fn)
	c.mu.Unlock()
}

// State returns the current snapshot.
func (c *Controller) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// snapshotLocked builds a Snapshot; callers must hold c.mu.
func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{State: StateIdle}
	if c.offer != nil {
		snap.State = StateRinging
		snap.Offer = &OfferSnapshot{
			ChannelID:  c.offer.ChannelID,
			Kind:       c.offer.Kind,
			Caller:     c.offer.Caller,
			CallerName: PeerDisplayName(c.offer.Caller),
			AutoAnswer: c.offer.AutoAnswer,
		}
	}
	if s := c.session; s != nil {
		snap.State = s.State
		snap.ChannelID = s.ChannelID
		snap.Kind = s.Kind
		snap.Role = s.Role
		snap.Peer = s.Peer
		snap.PeerName = PeerDisplayName(s.Peer)
		snap.StartedAt = s.StartedAt
		snap.Duration = s.Duration()
		snap.Muted = s.Muted
		snap.VideoOff = s.VideoOff
	}
	return snap
}

// notify delivers the current snapshot to all observers.
func (c *Controller) notify() {
	c.mu.Lock()
	snap := c.snapshotLocked()
	subs := make([]func(Snapshot), len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// beginTransition acquires the single in-flight transition guard.
func (c *Controller) beginTransition() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transitioning {
		return ErrTransitionInFlight
	}
	c.transitioning = true
	return nil
}

func (c *Controller) endTransition() {
	c.mu.Lock()
	c.transitioning = false
	c.mu.Unlock()
}

// StartCall originates a call to peer. channelID may be empty, in which
// case one is generated. The caller-side session goes straight to Active
// once local media is up; the UI shows the call screen while the remote
// side is still ringing.
func (c *Controller) StartCall(ctx context.Context, peer signaling.Party, kind Kind, channelID string) (Snapshot, error) {
	if peer.ID == "" {
		return c.State(), ErrNoPeer
	}
	if channelID == "" {
		channelID = NewChannelID()
	}
	if err := ValidateChannelID(channelID); err != nil {
		return c.State(), err
	}
	if !c.channel.Connected() {
		return c.State(), ErrSignalingOffline
	}

	if err := c.beginTransition(); err != nil {
		return c.State(), err
	}
	defer c.endTransition()

	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return c.State(), ErrCallInProgress
	}
	c.mu.Unlock()

	serverChannelID, token, err := c.tokens.StartCall(ctx, channelID, peer.ID, kind)
	if err != nil {
		return c.State(), fmt.Errorf("failed to start call: %w", err)
	}
	if serverChannelID != "" && serverChannelID != channelID {
		if err := ValidateChannelID(serverChannelID); err != nil {
			return c.State(), fmt.Errorf("failed to start call: %w", err)
		}
		channelID = serverChannelID
	}

	session := &Session{
		ChannelID:  channelID,
		Kind:       kind,
		Role:       RoleCaller,
		Peer:       peer,
		MediaToken: token,
		State:      StateOriginating,
	}
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
	c.notify()

	if err := c.setUpMedia(ctx, session); err != nil {
		c.failSetup(ctx, session, err)
		return c.State(), err
	}

	err = c.channel.Emit(signaling.EventCallInitiate, signaling.InitiatePayload{
		RecipientID: peer.ID,
		ChannelID:   channelID,
		Kind:        string(kind),
		Caller:      c.local,
		MediaToken:  token,
	})
	if err != nil {
		err = fmt.Errorf("failed to start call: %w", err)
		c.failSetup(ctx, session, err)
		return c.State(), err
	}

	c.activate(session)
	c.logger.Info("call started",
		"channel_id", channelID,
		"kind", kind,
		"peer", peer.ID,
	)
	return c.State(), nil
}

// Answer accepts the pending incoming offer. The offer is consumed whether
// or not setup succeeds; a failed answer is never retried automatically.
func (c *Controller) Answer(ctx context.Context) (Snapshot, error) {
	if err := c.beginTransition(); err != nil {
		return c.State(), err
	}
	defer c.endTransition()

	c.mu.Lock()
	offer := c.offer
	if offer == nil {
		c.mu.Unlock()
		return c.State(), ErrNoPendingOffer
	}
	if c.session != nil {
		c.mu.Unlock()
		return c.State(), ErrCallInProgress
	}
	c.mu.Unlock()

	if !c.channel.Connected() {
		return c.State(), ErrSignalingOffline
	}
	if !offer.TryConsume() {
		return c.State(), ErrNoPendingOffer
	}
	c.clearRecoveryKeys()

	token := offer.MediaToken
	if token == "" {
		var err error
		token, err = c.tokens.FetchToken(ctx, offer.ChannelID, c.local.ID)
		if err != nil {
			c.dropOffer(offer)
			return c.State(), fmt.Errorf("failed to join call: %w", err)
		}
	}

	session := &Session{
		ChannelID:  offer.ChannelID,
		Kind:       offer.Kind,
		Role:       RoleCallee,
		Peer:       offer.Caller,
		MediaToken: token,
		State:      StateConnecting,
	}
	c.mu.Lock()
	c.session = session
	c.offer = nil
	c.mu.Unlock()
	c.notify()

	if err := c.setUpMedia(ctx, session); err != nil {
		c.failSetup(ctx, session, err)
		return c.State(), err
	}

	err := c.channel.Emit(signaling.EventCallAccept, signaling.AcceptPayload{
		ChannelID: session.ChannelID,
		CallerID:  session.Peer.ID,
	})
	if err != nil {
		err = fmt.Errorf("failed to join call: %w", err)
		c.failSetup(ctx, session, err)
		return c.State(), err
	}

	c.activate(session)
	c.logger.Info("call answered",
		"channel_id", session.ChannelID,
		"kind", session.Kind,
		"peer", session.Peer.ID,
	)
	return c.State(), nil
}

// Reject declines the pending incoming offer. No media is ever touched.
func (c *Controller) Reject() (Snapshot, error) {
	if err := c.beginTransition(); err != nil {
		return c.State(), err
	}
	defer c.endTransition()

	c.mu.Lock()
	offer := c.offer
	c.mu.Unlock()
	if offer == nil || !offer.TryConsume() {
		return c.State(), ErrNoPendingOffer
	}

	err := c.channel.Emit(signaling.EventCallReject, signaling.RejectPayload{
		ChannelID: offer.ChannelID,
		CallerID:  offer.Caller.ID,
	})
	if err != nil {
		c.logger.Warn("emitting call:reject", "error", err)
	}

	c.clearRecoveryKeys()
	c.appendHistory(HistoryEntry{
		PeerID:    offer.Caller.ID,
		PeerName:  PeerDisplayName(offer.Caller),
		Kind:      offer.Kind,
		Role:      RoleCallee,
		StartedAt: offer.ReceivedAt,
		Outcome:   OutcomeRejected,
	})

	c.mu.Lock()
	if c.offer == offer {
		c.offer = nil
	}
	c.mu.Unlock()
	c.notify()

	c.logger.Info("call rejected", "channel_id", offer.ChannelID, "caller", offer.Caller.ID)
	return c.State(), nil
}

// EndCall terminates the active call, emitting call:end after local
// teardown has begun.
func (c *Controller) EndCall(ctx context.Context) (Snapshot, error) {
	if err := c.beginTransition(); err != nil {
		return c.State(), err
	}
	defer c.endTransition()

	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return c.State(), ErrNoActiveCall
	}

	c.teardown(ctx, session, teardownOpts{
		emitEnd: true,
		record:  true,
		outcome: OutcomeCompleted,
	})
	return c.State(), nil
}

// ToggleMute flips the local mute flag and pauses/resumes the audio track.
// The flag is independent of track existence.
func (c *Controller) ToggleMute() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session
	if s == nil || s.State != StateActive {
		return false, ErrNoActiveCall
	}
	s.Muted = !s.Muted
	if t := s.AudioTrack(); t != nil {
		t.SetEnabled(!s.Muted)
	}
	return s.Muted, nil
}

// ToggleVideo flips the local video-off flag and pauses/resumes the video
// track.
func (c *Controller) ToggleVideo() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session
	if s == nil || s.State != StateActive {
		return false, ErrNoActiveCall
	}
	s.VideoOff = !s.VideoOff
	if t := s.VideoTrack(); t != nil {
		t.SetEnabled(!s.VideoOff)
	}
	return s.VideoOff, nil
}

// setUpMedia performs the provider half of a setup transition: leave any
// stale channel, join, acquire tracks, publish. On error the caller must
// run failSetup.
func (c *Controller) setUpMedia(ctx context.Context, s *Session) error {
	c.ensureProviderIdle(ctx)

	if err := c.provider.Join(ctx, c.appID, s.ChannelID, s.MediaToken, c.local.ID); err != nil {
		return fmt.Errorf("joining media channel: %w", err)
	}

	audio, err := c.provider.CreateAudioTrack(ctx)
	if err != nil {
		return fmt.Errorf("acquiring microphone: %w", err)
	}
	c.mu.Lock()
	s.AdoptTrack(audio, c.logger)
	c.mu.Unlock()

	if s.Kind == KindVideo {
		video, err := c.provider.CreateVideoTrack(ctx)
		if err != nil {
			return fmt.Errorf("acquiring camera: %w", err)
		}
		c.mu.Lock()
		s.AdoptTrack(video, c.logger)
		c.mu.Unlock()
	}

	if err := c.provider.Publish(ctx, s.Tracks()...); err != nil {
		return fmt.Errorf("publishing local tracks: %w", err)
	}
	return nil
}

// ensureProviderIdle unpublishes and leaves any prior media channel. Leave
// errors are logged, never propagated: a stuck provider must not block
// starting a new call.
func (c *Controller) ensureProviderIdle(ctx context.Context) {
	if c.provider.Status() == media.StatusDisconnected {
		return
	}
	c.logger.Warn("provider still attached to a previous channel, leaving first")
	if err := c.provider.Unpublish(ctx); err != nil {
		c.logger.Warn("unpublishing stale tracks", "error", err)
	}
	if err := c.provider.Leave(ctx); err != nil {
		c.logger.Warn("leaving stale media channel", "error", err)
	}
}

// failSetup cleans up a partially built session after a setup failure and
// returns the controller to Idle. Cleanup is best-effort in the fixed
// unpublish, close-tracks, leave order.
func (c *Controller) failSetup(ctx context.Context, s *Session, cause error) {
	c.logger.Error("call setup failed",
		"channel_id", s.ChannelID,
		"role", s.Role,
		"error", cause,
	)

	c.mu.Lock()
	s.State = StateFailed
	c.mu.Unlock()
	c.notify()

	if err := c.provider.Unpublish(ctx); err != nil {
		c.logger.Warn("unpublishing after failed setup", "error", err)
	}
	c.mu.Lock()
	s.CloseTracks(c.logger)
	c.mu.Unlock()
	if err := c.provider.Leave(ctx); err != nil {
		c.logger.Warn("leaving media channel after failed setup", "error", err)
	}

	c.mu.Lock()
	if c.session == s {
		c.session = nil
	}
	c.mu.Unlock()
	c.notify()
}

// activate commits a session to Active and starts the duration ticker.
func (c *Controller) activate(s *Session) {
	c.mu.Lock()
	s.State = StateActive
	s.StartedAt = time.Now()
	c.tickerStop = make(chan struct{})
	stop := c.tickerStop
	c.mu.Unlock()

	c.msgs.bind(s.ChannelID)
	go c.runTicker(stop)
	c.notify()
}

// runTicker notifies observers once per second so the UI call timer
// advances without polling.
func (c *Controller) runTicker(stop chan struct{}) {
	t := time.NewTicker(tickInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.notify()
		case <-stop:
			return
		case <-c.done:
			return
		}
	}
}

type teardownOpts struct {
	emitEnd bool
	record  bool
	outcome Outcome
}

// teardown runs the fixed teardown sequence: unpublish, close tracks,
// leave. Each step is best-effort; a failure is logged and the remaining
// steps still run, so the session always reaches Idle. call:end is emitted
// only for a locally initiated end, and only after teardown has begun.
func (c *Controller) teardown(ctx context.Context, s *Session, opts teardownOpts) {
	c.mu.Lock()
	s.State = StateEnding
	if c.tickerStop != nil {
		close(c.tickerStop)
		c.tickerStop = nil
	}
	c.mu.Unlock()
	c.notify()

	if err := c.provider.Unpublish(ctx); err != nil {
		c.logger.Warn("unpublishing local tracks", "error", err)
	}
	c.mu.Lock()
	s.CloseTracks(c.logger)
	c.mu.Unlock()
	if err := c.provider.Leave(ctx); err != nil {
		c.logger.Warn("leaving media channel", "error", err)
	}

	if opts.emitEnd {
		err := c.channel.Emit(signaling.EventCallEnd, signaling.EndPayload{
			ChannelID:   s.ChannelID,
			RecipientID: s.Peer.ID,
		})
		if err != nil {
			c.logger.Warn("emitting call:end", "error", err)
		}
	}

	if opts.record && !s.StartedAt.IsZero() {
		c.appendHistory(HistoryEntry{
			PeerID:    s.Peer.ID,
			PeerName:  PeerDisplayName(s.Peer),
			Kind:      s.Kind,
			Role:      s.Role,
			StartedAt: s.StartedAt,
			Duration:  s.Duration(),
			Outcome:   opts.outcome,
		})
	}

	c.mu.Lock()
	if c.session == s {
		c.session = nil
	}
	c.mu.Unlock()
	c.msgs.bind("")
	c.notify()

	c.logger.Info("call ended",
		"channel_id", s.ChannelID,
		"outcome", opts.outcome,
		"duration_ms", s.Duration().Milliseconds(),
	)
}

// dropOffer removes a consumed offer after a failed answer.
func (c *Controller) dropOffer(offer *IncomingOffer) {
	c.mu.Lock()
	if c.offer == offer {
		c.offer = nil
	}
	c.mu.Unlock()
	c.notify()
}

// appendHistory writes a finished-call record; failures are logged, never
// propagated.
func (c *Controller) appendHistory(e HistoryEntry) {
	if c.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.history.Append(ctx, e); err != nil {
		c.logger.Warn("appending call history", "error", err)
	}
}

// clearRecoveryKeys deletes the one-shot offer entries from the recovery
// store.
func (c *Controller) clearRecoveryKeys() {
	if c.recovery == nil {
		return
	}
	if err := c.recovery.Delete(RecoveryKeyPendingOffer); err != nil {
		c.logger.Warn("clearing pending offer from recovery store", "error", err)
	}
	if err := c.recovery.Delete(RecoveryKeyAutoAnswer); err != nil {
		c.logger.Warn("clearing auto-answer flag from recovery store", "error", err)
	}
}

// runQueue processes the inbound event queue one handler at a time,
// decoupling signaling delivery order from processing order.
func (c *Controller) runQueue() {
	for {
		select {
		case fn := <-c.events:
			fn()
		case <-c.done:
			return
		}
	}
}

// enqueue schedules a handler on the event queue; if the controller is
// shutting down the event is dropped.
func (c *Controller) enqueue(fn func()) {
	select {
	case c.events <- fn:
	case <-c.done:
	}
}

// queued adapts a typed handler into a signaling.Handler that runs on the
// event queue.
func (c *Controller) queued(fn func(data json.RawMessage)) signaling.Handler {
	return func(data json.RawMessage) {
		c.enqueue(func() { fn(data) })
	}
}

// onIncoming handles a call:incoming event from the live signaling channel.
func (c *Controller) onIncoming(data json.RawMessage) {
	var p signaling.IncomingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.logger.Warn("decoding call:incoming", "error", err)
		return
	}
	autoAnswer := false
	if v, ok := payloadAutoAnswer(data); ok {
		autoAnswer = v
	}
	c.acceptOffer(p, autoAnswer, "signaling")
}

// payloadAutoAnswer extracts the optional autoAnswer flag some servers
// attach to call:incoming.
func payloadAutoAnswer(data json.RawMessage) (bool, bool) {
	var probe struct {
		AutoAnswer *bool `json:"autoAnswer"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || probe.AutoAnswer == nil {
		return false, false
	}
	return *probe.AutoAnswer, true
}

// acceptOffer is the single idempotent consumer for offers arriving from
// both the signaling event and the recovery-store poll. Duplicate delivery
// for the same channel is ignored; a newer offer for a different channel
// replaces the pending one, since the UI can show only one ringing dialog.
func (c *Controller) acceptOffer(p signaling.IncomingPayload, autoAnswer bool, source string) {
	if err := ValidateChannelID(p.ChannelID); err != nil {
		c.logger.Warn("ignoring incoming offer", "error", err, "source", source)
		return
	}

	c.mu.Lock()
	if existing := c.offer; existing != nil {
		if existing.ChannelID == p.ChannelID {
			// Duplicate delivery. Absorb a late-arriving auto-answer flag
			// but never ring twice.
			if autoAnswer && !existing.AutoAnswer {
				existing.AutoAnswer = true
				c.scheduleAutoAnswerLocked(existing)
			}
			c.mu.Unlock()
			return
		}
		// Superseded by a newer offer for a different channel.
		c.logger.Info("incoming offer superseded",
			"old_channel_id", existing.ChannelID,
			"new_channel_id", p.ChannelID,
		)
		superseded := existing
		c.mu.Unlock()
		if superseded.TryConsume() {
			c.appendHistory(HistoryEntry{
				PeerID:    superseded.Caller.ID,
				PeerName:  PeerDisplayName(superseded.Caller),
				Kind:      superseded.Kind,
				Role:      RoleCallee,
				StartedAt: superseded.ReceivedAt,
				Outcome:   OutcomeMissed,
			})
		}
		c.mu.Lock()
	}

	c.offerSeq++
	offer := &IncomingOffer{
		ChannelID:  p.ChannelID,
		Kind:       Kind(p.Kind),
		Caller:     p.Caller,
		MediaToken: p.MediaToken,
		AutoAnswer: autoAnswer,
		ReceivedAt: time.Now(),
		Seq:        c.offerSeq,
	}
	c.offer = offer
	if autoAnswer {
		c.scheduleAutoAnswerLocked(offer)
	}
	c.mu.Unlock()

	// An unanswered offer cannot ring forever: if the caller crashed after
	// sending it, no call:ended will ever arrive, so the controller itself
	// retires the offer as missed after its lifetime.
	time.AfterFunc(c.offerLifetime, func() {
		c.enqueue(func() { c.expireOffer(offer) })
	})

	c.persistOffer(p, autoAnswer)
	c.notify()

	c.logger.Info("incoming call",
		"channel_id", p.ChannelID,
		"kind", p.Kind,
		"caller", p.Caller.ID,
		"auto_answer", autoAnswer,
		"source", source,
	)
}

// scheduleAutoAnswerLocked arms the one-shot auto-answer timer for an
// offer; callers must hold c.mu. The consumed flag on the offer guarantees
// at most one answer even if a manual answer races the timer.
func (c *Controller) scheduleAutoAnswerLocked(offer *IncomingOffer) {
	if offer.autoArmed {
		return
	}
	offer.autoArmed = true
	time.AfterFunc(autoAnswerGrace, func() {
		c.enqueue(func() { c.autoAnswer(offer) })
	})
}

// autoAnswer answers an armed offer unless it was already consumed or
// superseded.
func (c *Controller) autoAnswer(offer *IncomingOffer) {
	c.mu.Lock()
	current := c.offer == offer && !offer.Consumed() && c.session == nil
	c.mu.Unlock()
	if !current {
		return
	}
	if _, err := c.Answer(context.Background()); err != nil {
		c.logger.Warn("auto-answer failed", "channel_id", offer.ChannelID, "error", err)
	}
}

// expireOffer retires an offer that rang for its whole lifetime without an
// answer, a reject, or a remote termination. The consumed flag makes stale
// timers no-ops once the offer was handled through any other path.
func (c *Controller) expireOffer(offer *IncomingOffer) {
	c.mu.Lock()
	current := c.offer == offer
	c.mu.Unlock()
	if !current || !offer.TryConsume() {
		return
	}
	c.clearRecoveryKeys()
	c.appendHistory(HistoryEntry{
		PeerID:    offer.Caller.ID,
		PeerName:  PeerDisplayName(offer.Caller),
		Kind:      offer.Kind,
		Role:      RoleCallee,
		StartedAt: offer.ReceivedAt,
		Outcome:   OutcomeMissed,
	})
	c.dropOffer(offer)
	c.logger.Info("incoming call timed out", "channel_id", offer.ChannelID)
}

// persistOffer snapshots the offer into the recovery store so a restart
// while ringing does not lose the call.
func (c *Controller) persistOffer(p signaling.IncomingPayload, autoAnswer bool) {
	if c.recovery == nil {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		c.logger.Warn("encoding offer for recovery store", "error", err)
		return
	}
	if err := c.recovery.Set(RecoveryKeyPendingOffer, data, c.offerLifetime); err != nil {
		c.logger.Warn("persisting pending offer", "error", err)
	}
	if autoAnswer {
		if err := c.recovery.Set(RecoveryKeyAutoAnswer, []byte("true"), c.offerLifetime); err != nil {
			c.logger.Warn("persisting auto-answer flag", "error", err)
		}
	}
}

// pollRecovery is the fallback offer delivery path: an offer written to the
// recovery store by another delivery channel (or a previous process) is
// picked up here and fed into the same idempotent consumer as live events.
func (c *Controller) pollRecovery() {
	if c.recovery == nil {
		return
	}
	t := time.NewTicker(offerPollInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			data, ok, err := c.recovery.Peek(RecoveryKeyPendingOffer)
			if err != nil {
				c.logger.Warn("reading recovery store", "error", err)
				continue
			}
			if !ok {
				continue
			}

			var p signaling.IncomingPayload
			if err := json.Unmarshal(data, &p); err != nil {
				c.logger.Warn("decoding recovered offer", "error", err)
				if err := c.recovery.Delete(RecoveryKeyPendingOffer); err != nil {
					c.logger.Warn("dropping malformed recovery entry", "error", err)
				}
				continue
			}

			// The entry acceptOffer itself persisted for the currently
			// ringing offer stays in the store so a restart mid-ring can
			// still recover it. Only a foreign entry is consumed.
			c.mu.Lock()
			pending := c.offer != nil && c.offer.ChannelID == p.ChannelID
			c.mu.Unlock()
			if pending {
				continue
			}

			if _, ok, err := c.recovery.Consume(RecoveryKeyPendingOffer); err != nil || !ok {
				if err != nil {
					c.logger.Warn("consuming recovered offer", "error", err)
				}
				continue
			}
			autoRaw, hasAuto, err := c.recovery.Consume(RecoveryKeyAutoAnswer)
			if err != nil {
				c.logger.Warn("reading auto-answer flag", "error", err)
			}
			autoAnswer := hasAuto && string(autoRaw) == "true"

			c.enqueue(func() { c.acceptOffer(p, autoAnswer, "recovery") })
		case <-c.done:
			return
		}
	}
}

// onAccepted handles call:accepted. The caller side is already optimistic
// Active, so an accept for the current channel is informational; an accept
// for a foreign channel is stale cross-talk and never overwrites state.
func (c *Controller) onAccepted(data json.RawMessage) {
	var p signaling.AcceptPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.logger.Warn("decoding call:accepted", "error", err)
		return
	}

	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil || s.ChannelID != p.ChannelID {
		c.logger.Debug("ignoring accept for foreign channel", "channel_id", p.ChannelID)
		return
	}
	c.logger.Info("peer accepted call", "channel_id", p.ChannelID)
}

// onRejected handles call:rejected: the remote side declined before
// connecting, so the caller tears down without a history entry.
func (c *Controller) onRejected(data json.RawMessage) {
	var p signaling.RejectPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.logger.Warn("decoding call:rejected", "error", err)
		return
	}
	c.remoteTerminate(p.ChannelID, "rejected", teardownOpts{record: false})
}

// onEnded handles call:ended: authoritative remote termination.
func (c *Controller) onEnded(data json.RawMessage) {
	var p signaling.EndPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.logger.Warn("decoding call:ended", "error", err)
		return
	}
	c.remoteTerminate(p.ChannelID, "ended", teardownOpts{record: true, outcome: OutcomeCompleted})
}

// onUnavailable handles call:unavailable: the remote party cannot be
// reached.
func (c *Controller) onUnavailable(data json.RawMessage) {
	var p signaling.UnavailablePayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.logger.Warn("decoding call:unavailable", "error", err)
		return
	}
	c.remoteTerminate(p.ChannelID, "unavailable", teardownOpts{record: false})
}

// remoteTerminate applies a remote-signaled termination. It is
// authoritative: local teardown runs even if local state disagrees. Events
// for a foreign channel are ignored. If a setup transition is still in
// flight the termination is requeued until the guard frees up.
func (c *Controller) remoteTerminate(channelID, reason string, opts teardownOpts) {
	c.mu.Lock()
	session := c.session
	offer := c.offer
	c.mu.Unlock()

	// A termination can also refer to the pending (unanswered) offer: the
	// caller hung up or went away while we were ringing.
	if session == nil {
		if offer != nil && offer.ChannelID == channelID && offer.TryConsume() {
			c.clearRecoveryKeys()
			c.appendHistory(HistoryEntry{
				PeerID:    offer.Caller.ID,
				PeerName:  PeerDisplayName(offer.Caller),
				Kind:      offer.Kind,
				Role:      RoleCallee,
				StartedAt: offer.ReceivedAt,
				Outcome:   OutcomeMissed,
			})
			c.dropOffer(offer)
			c.logger.Info("pending call withdrawn", "channel_id", channelID, "reason", reason)
		}
		return
	}

	if session.ChannelID != channelID {
		c.logger.Debug("ignoring termination for foreign channel",
			"channel_id", channelID,
			"active_channel_id", session.ChannelID,
			"reason", reason,
		)
		return
	}

	if err := c.beginTransition(); err != nil {
		// A setup transition is suspended on the provider; try again once
		// it completes rather than interleaving with it.
		time.AfterFunc(100*time.Millisecond, func() {
			c.enqueue(func() { c.remoteTerminate(channelID, reason, opts) })
		})
		return
	}
	defer c.endTransition()

	c.mu.Lock()
	still := c.session == session
	c.mu.Unlock()
	if !still {
		return
	}

	c.logger.Info("remote terminated call", "channel_id", channelID, "reason", reason)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c.teardown(ctx, session, opts)
}

// onMessage routes an in-call chat message to the messaging component.
func (c *Controller) onMessage(data json.RawMessage) {
	var p signaling.MessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.logger.Warn("decoding call:message", "error", err)
		return
	}
	c.msgs.receive(p)
}
