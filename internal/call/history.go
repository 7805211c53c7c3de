package call

import (
	"context"
	"fmt"
	"time"
)

// Outcome classifies how a finished call ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeMissed    Outcome = "missed"
	OutcomeRejected  Outcome = "rejected"
)

// HistoryEntry is the read-only summary written once a call terminates.
// Entries are never mutated after creation.
type HistoryEntry struct {
	ID        int64
	PeerID    string
	PeerName  string
	Kind      Kind
	Role      Role
	StartedAt time.Time
	Duration  time.Duration
	Outcome   Outcome
}

// FormattedDuration renders the call duration as MM:SS (or H:MM:SS past an
// hour) for display in the call history list.
func (e HistoryEntry) FormattedDuration() string {
	d := e.Duration.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// HistoryStore persists finished calls. Append failures are logged by the
// controller, never allowed to disturb call teardown.
type HistoryStore interface {
	Append(ctx context.Context, e HistoryEntry) error
}

// Recovery store keys. Both entries are write-once-read-once: consumed
// values are deleted as they are read.
const (
	RecoveryKeyPendingOffer = "pending-incoming-call"
	RecoveryKeyAutoAnswer   = "pending-auto-answer"
)

// RecoveryStore is a small keyed store bridging signaling delivery across
// process restarts and page navigations. Entries expire after their TTL.
type RecoveryStore interface {
	// Set stores a value under key, replacing any previous value.
	Set(key string, value []byte, ttl time.Duration) error

	// Consume reads and deletes the value under key in one step. The
	// second return is false when no live entry exists.
	Consume(key string) ([]byte, bool, error)

	// Peek reads the value under key without deleting it. The second
	// return is false when no live entry exists.
	Peek(key string) ([]byte, bool, error)

	// Delete removes the value under key if present.
	Delete(key string) error
}
