package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// ErrNotConnected is returned by Emit when the channel has no live connection.
var ErrNotConnected = errors.New("signaling channel not connected")

// Handler receives the decoded JSON body of one signaling event.
// Handlers run on the channel's read goroutine and must not block.
type Handler func(data json.RawMessage)

// Channel is the duplex signaling transport the call controller drives.
// Implementations carry named events with JSON payloads in both directions.
type Channel interface {
	// Connect establishes and authenticates the transport. It must be
	// called before Emit; events may be delivered as soon as it returns.
	Connect(ctx context.Context, authToken string) error

	// Emit sends a named event with the given payload to the server.
	Emit(event string, payload any) error

	// On registers a handler for a named event and returns a subscription
	// ID for Off.
	On(event string, h Handler) int

	// Off removes a previously registered handler.
	Off(event string, id int)

	// Connected reports whether the transport is currently established.
	Connected() bool

	// Close tears down the transport. Safe to call multiple times.
	Close() error
}

// Dispatcher is a thread-safe event handler registry. It implements the
// On/Off half of Channel and is embedded by transport implementations.
type Dispatcher struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[string]map[int]Handler
}

// On registers a handler for the named event.
func (d *Dispatcher) On(event string, h Handler) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handlers == nil {
		d.handlers = make(map[string]map[int]Handler)
	}
	if d.handlers[event] == nil {
		d.handlers[event] = make(map[int]Handler)
	}
	d.nextID++
	d.handlers[event][d.nextID] = h
	return d.nextID
}

// Off removes the handler registered under the given subscription ID.
func (d *Dispatcher) Off(event string, id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if hs, ok := d.handlers[event]; ok {
		delete(hs, id)
	}
}

// Dispatch invokes every handler registered for the named event.
func (d *Dispatcher) Dispatch(event string, data json.RawMessage) {
	d.mu.RLock()
	hs := make([]Handler, 0, len(d.handlers[event]))
	for _, h := range d.handlers[event] {
		hs = append(hs, h)
	}
	d.mu.RUnlock()

	for _, h := range hs {
		h(data)
	}
}
