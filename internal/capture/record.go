// Package capture implements the capture controller: the state machine that
// decides when to trigger a capture from the active policy, drives the
// camera gateway, and emits one immutable record per successful capture.
package capture

import (
	"time"

	"zedcapd/internal/camera"
	"zedcapd/internal/gps"
)

// Trigger names what caused a capture.
const (
	TriggerTime     = "time"
	TriggerDistance = "distance"
	TriggerManual   = "manual"
)

// Record is the immutable bundle produced by one successful capture.
// Sequence is the sole ordering and dedup key; it is assigned only after the
// gateway reports success, strictly increases, and is never reused.
type Record struct {
	Sequence   uint64          `json:"sequence_number"`
	CapturedAt time.Time       `json:"captured_at"`
	Trigger    string          `json:"trigger"`
	GPS        *gps.Fix        `json:"gps"` // nil = captured without a fix
	Settings   camera.Settings `json:"settings"`
	Image      camera.ImageRef `json:"image_reference"`
}

// Sink consumes finished capture records. The metadata writer implements
// this; write failures are non-fatal to the capture loop.
type Sink interface {
	Write(Record) error
}

// Index persists records for sequence continuity across restarts.
type Index interface {
	Insert(Record) error
}

// Skip reasons reported through the Observer.
const (
	SkipCameraBusy = "camera_busy"
	SkipGPSWaiting = "gps_waiting"
)

// Observer receives the capture events no Record carries: trigger events
// that produced nothing and attempts that failed. The metrics layer
// implements this.
type Observer interface {
	CaptureSkipped(reason string)
	CaptureFailed()
}
