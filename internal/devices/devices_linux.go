//go:build linux

package devices

import (
	"context"
	"fmt"

	"github.com/pion/mediadevices"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
)

// platformEnumerate lists V4L2 cameras and ALSA capture/playback devices
// through pion/mediadevices.
func platformEnumerate() ([]Device, error) {
	infos := mediadevices.EnumerateDevices()

	var devices []Device
	for _, info := range infos {
		var kind Kind
		switch info.Kind {
		case mediadevices.AudioInput:
			kind = KindMicrophone
		case mediadevices.AudioOutput:
			kind = KindSpeaker
		case mediadevices.VideoInput:
			kind = KindCamera
		default:
			continue
		}
		label := info.Label
		if label == "" {
			label = string(kind) + " " + info.DeviceID
		}
		devices = append(devices, Device{
			ID:    info.DeviceID,
			Label: label,
			Kind:  kind,
		})
	}
	return devices, nil
}

// platformProbe opens a capture stream of the requested kind and releases it
// immediately. A busy or permission-blocked device fails here rather than
// mid-call.
func platformProbe(_ context.Context, kind Kind) error {
	constraints := mediadevices.MediaStreamConstraints{}
	switch kind {
	case KindMicrophone:
		constraints.Audio = func(*mediadevices.MediaTrackConstraints) {}
	case KindCamera:
		constraints.Video = func(*mediadevices.MediaTrackConstraints) {}
	default:
		return fmt.Errorf("kind %s cannot be probed", kind)
	}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return err
	}
	for _, track := range stream.GetTracks() {
		track.Close()
	}
	return nil
}
