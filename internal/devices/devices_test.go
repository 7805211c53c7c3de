package devices

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

func newTestInventory(enumerate EnumerateFunc, probe ProbeFunc) *Inventory {
	return &Inventory{
		logger:    slog.Default(),
		enumerate: enumerate,
		probe:     probe,
		cacheTTL:  time.Minute,
	}
}

func fixedDevices() ([]Device, error) {
	return []Device{
		{ID: "cam0", Label: "Integrated Camera", Kind: KindCamera},
		{ID: "mic0", Label: "Built-in Microphone", Kind: KindMicrophone},
		{ID: "spk0", Label: "Built-in Speakers", Kind: KindSpeaker},
	}, nil
}

func TestListGroupsByKind(t *testing.T) {
	inv := newTestInventory(fixedDevices, nil)

	devices, err := inv.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(devices) != 3 {
		t.Fatalf("len = %d, want 3", len(devices))
	}
	order := []Kind{KindMicrophone, KindSpeaker, KindCamera}
	for i, kind := range order {
		if devices[i].Kind != kind {
			t.Errorf("devices[%d].Kind = %s, want %s", i, devices[i].Kind, kind)
		}
	}
}

func TestListCachesEnumeration(t *testing.T) {
	calls := 0
	inv := newTestInventory(func() ([]Device, error) {
		calls++
		return fixedDevices()
	}, nil)

	ctx := context.Background()
	if _, err := inv.List(ctx); err != nil {
		t.Fatalf("List: %v", err)
	}
	if _, err := inv.List(ctx); err != nil {
		t.Fatalf("second List: %v", err)
	}
	if calls != 1 {
		t.Errorf("enumerate calls = %d, want 1 (cached)", calls)
	}

	inv.Invalidate()
	if _, err := inv.List(ctx); err != nil {
		t.Fatalf("List after Invalidate: %v", err)
	}
	if calls != 2 {
		t.Errorf("enumerate calls = %d, want 2 after invalidate", calls)
	}
}

func TestListEnumerationFailure(t *testing.T) {
	boom := errors.New("driver exploded")
	inv := newTestInventory(func() ([]Device, error) { return nil, boom }, nil)

	if _, err := inv.List(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped driver error", err)
	}
}

func TestTestProbesCaptureDevices(t *testing.T) {
	var probed []Kind
	inv := newTestInventory(fixedDevices, func(_ context.Context, kind Kind) error {
		probed = append(probed, kind)
		return nil
	})

	ctx := context.Background()
	if err := inv.Test(ctx, KindMicrophone); err != nil {
		t.Fatalf("Test(microphone): %v", err)
	}
	if err := inv.Test(ctx, KindCamera); err != nil {
		t.Fatalf("Test(camera): %v", err)
	}
	if len(probed) != 2 || probed[0] != KindMicrophone || probed[1] != KindCamera {
		t.Errorf("probed = %v", probed)
	}
}

func TestTestSpeakerSkipsProbe(t *testing.T) {
	inv := newTestInventory(fixedDevices, func(context.Context, Kind) error {
		t.Fatal("speakers must not be probed")
		return nil
	})
	if err := inv.Test(context.Background(), KindSpeaker); err != nil {
		t.Fatalf("Test(speaker): %v", err)
	}
}

func TestTestMissingDevice(t *testing.T) {
	inv := newTestInventory(func() ([]Device, error) {
		return []Device{{ID: "spk0", Kind: KindSpeaker}}, nil
	}, nil)

	err := inv.Test(context.Background(), KindCamera)
	if !errors.Is(err, ErrNoDevice) {
		t.Fatalf("err = %v, want ErrNoDevice", err)
	}
}

func TestTestProbeFailureSurfaces(t *testing.T) {
	busy := errors.New("device busy")
	inv := newTestInventory(fixedDevices, func(context.Context, Kind) error { return busy })

	if err := inv.Test(context.Background(), KindMicrophone); !errors.Is(err, busy) {
		t.Fatalf("err = %v, want device-busy surfaced", err)
	}
}
