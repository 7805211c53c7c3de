//go:build !linux

package devices

import "context"

func platformEnumerate() ([]Device, error) {
	return nil, ErrUnsupportedPlatform
}

func platformProbe(context.Context, Kind) error {
	return ErrUnsupportedPlatform
}
