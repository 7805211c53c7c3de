package call

import (
	"sync/atomic"
	"time"

	"github.com/wavelink/wavelink/internal/signaling"
)

// IncomingOffer is the transient record of a call proposal received before
// acceptance. It lives from signaling receipt until accept, reject, or
// supersession by a newer offer for a different channel.
type IncomingOffer struct {
	ChannelID  string
	Kind       Kind
	Caller     signaling.Party
	MediaToken string // pre-fetched by the server, may be empty
	AutoAnswer bool
	ReceivedAt time.Time

	// Seq orders offers so duplicate delivery through the signaling event
	// and the recovery-store poll can be deduplicated.
	Seq uint64

	// autoArmed records that the auto-answer timer has been scheduled for
	// this offer; guarded by the controller mutex.
	autoArmed bool

	consumed atomic.Bool
}

// TryConsume marks the offer as answered. It returns true exactly once, so
// an auto-answer timer and a manual answer racing on the same offer cannot
// both proceed.
func (o *IncomingOffer) TryConsume() bool {
	return o.consumed.CompareAndSwap(false, true)
}

// Consumed reports whether the offer has already been answered or rejected.
func (o *IncomingOffer) Consumed() bool {
	return o.consumed.Load()
}
