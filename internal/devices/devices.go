// Package devices inventories the local capture and playback hardware and
// runs capture self-tests, so a user can verify their microphone and camera
// before a call rather than during one.
package devices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Kind buckets a device by its role.
type Kind string

const (
	KindMicrophone Kind = "microphone"
	KindSpeaker    Kind = "speaker"
	KindCamera     Kind = "camera"
)

// Device describes one piece of media hardware.
type Device struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Kind  Kind   `json:"kind"`
}

// ErrUnsupportedPlatform is returned on platforms without capture driver
// support.
var ErrUnsupportedPlatform = errors.New("media devices are not supported on this platform")

// ErrNoDevice is returned by a probe when no device of the requested kind
// exists.
var ErrNoDevice = errors.New("no device of the requested kind found")

// EnumerateFunc lists hardware; ProbeFunc opens and immediately releases a
// device of one kind. Both are injectable for tests; the platform defaults
// come from the build-tagged files.
type (
	EnumerateFunc func() ([]Device, error)
	ProbeFunc     func(ctx context.Context, kind Kind) error
)

// Inventory lists and probes media devices. Enumeration results are cached
// briefly since USB topology changes are rare and scans can be slow.
type Inventory struct {
	logger    *slog.Logger
	enumerate EnumerateFunc
	probe     ProbeFunc

	mu       sync.Mutex
	cached   []Device
	cachedAt time.Time
	cacheTTL time.Duration
}

// NewInventory creates an Inventory using the platform's native device
// drivers.
func NewInventory(logger *slog.Logger) *Inventory {
	return NewInventoryWithDrivers(logger, platformEnumerate, platformProbe)
}

// NewInventoryWithDrivers creates an Inventory with explicit driver
// functions, used by tests and diagnostic tooling.
func NewInventoryWithDrivers(logger *slog.Logger, enumerate EnumerateFunc, probe ProbeFunc) *Inventory {
	return &Inventory{
		logger:    logger.With("subsystem", "devices"),
		enumerate: enumerate,
		probe:     probe,
		cacheTTL:  5 * time.Second,
	}
}

// List returns all known devices grouped by kind order: microphones, then
// speakers, then cameras.
func (i *Inventory) List(ctx context.Context) ([]Device, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.cached != nil && time.Since(i.cachedAt) < i.cacheTTL {
		return append([]Device(nil), i.cached...), nil
	}

	devices, err := i.enumerate()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}

	kindOrder := map[Kind]int{KindMicrophone: 0, KindSpeaker: 1, KindCamera: 2}
	sort.SliceStable(devices, func(a, b int) bool {
		return kindOrder[devices[a].Kind] < kindOrder[devices[b].Kind]
	})

	i.cached = devices
	i.cachedAt = time.Now()
	i.logger.Debug("devices enumerated", "count", len(devices))
	return append([]Device(nil), devices...), nil
}

// Test opens a device of the given kind and releases it immediately,
// verifying that capture permission and drivers work. Speakers cannot be
// probed this way and always pass if one is present.
func (i *Inventory) Test(ctx context.Context, kind Kind) error {
	devices, err := i.List(ctx)
	if err != nil {
		return err
	}
	found := false
	for _, d := range devices {
		if d.Kind == kind {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNoDevice, kind)
	}

	if kind == KindSpeaker {
		return nil
	}

	if err := i.probe(ctx, kind); err != nil {
		return fmt.Errorf("probing %s: %w", kind, err)
	}
	i.logger.Info("device test passed", "kind", kind)
	return nil
}

// Invalidate drops the enumeration cache, forcing the next List to rescan.
func (i *Inventory) Invalidate() {
	i.mu.Lock()
	i.cached = nil
	i.mu.Unlock()
}
