// Package camera defines the capability contract the capture controller
// needs from a stereo camera, plus a simulated gateway used for development
// and tests. Vendor SDK bindings live outside this repository and only need
// to satisfy the Gateway interface.
package camera

import (
	"context"
	"errors"
	"time"
)

// Gateway failure modes. Capture is not reentrant; a second capture while
// one is in flight fails with ErrCameraBusy rather than queueing.
var (
	// ErrCameraUnavailable means the device is disconnected or dead.
	// Fatal to the capture loop until an explicit reset.
	ErrCameraUnavailable = errors.New("camera unavailable")

	// ErrCameraBusy means a previous capture has not completed yet.
	ErrCameraBusy = errors.New("camera busy")

	// ErrUnsupportedSetting means a settings value is outside the device's
	// accepted range. The whole settings update is rejected atomically.
	ErrUnsupportedSetting = errors.New("unsupported camera setting")
)

// ImageRef identifies the image set produced by one capture: one file per
// requested view, sharing a common prefix. Opaque to the controller.
type ImageRef struct {
	// Prefix is the shared filename stem for this capture.
	Prefix string `json:"prefix"`

	// Paths maps view name to the written file.
	Paths map[string]string `json:"paths"`
}

// Gateway is the capability interface to the camera hardware.
type Gateway interface {
	// Capture grabs one frame set and persists it. Blocks for
	// hardware-bound durations; honors ctx cancellation where the
	// underlying device allows it.
	Capture(ctx context.Context) (ImageRef, error)

	// Settings returns a copy of the active camera settings.
	Settings() Settings

	// ApplySettings replaces the active settings. Rejects the whole
	// update with ErrUnsupportedSetting if any value is out of range.
	ApplySettings(Settings) error

	// Connected reports device connectivity.
	Connected() bool
}

// Recorder is the optional video capability a gateway may provide.
type Recorder interface {
	// StartRecording begins writing a video container to path.
	StartRecording(path string, opts RecordingOptions) error

	// StopRecording finalizes the container.
	StopRecording() error
}

// RecordingOptions configure a video recording.
type RecordingOptions struct {
	Codec       string        `json:"codec"` // "H264" or "H265"
	BitrateKbps int           `json:"bitrate_kbps,omitempty"`
	MaxDuration time.Duration `json:"-"`
}
