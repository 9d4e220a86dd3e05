package camera

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"zedcapd/internal/logging"
)

// SimConfig configures the simulated gateway.
type SimConfig struct {
	// OutputDir is where image sets are written.
	OutputDir string

	// FilePrefix is the filename stem, e.g. "zed".
	FilePrefix string

	// Latency is the simulated grab-and-encode duration per capture.
	Latency time.Duration
}

// SimGateway is an in-process Gateway for development and tests. It writes
// real (tiny) image files so the rest of the pipeline, metadata sidecars
// included, behaves exactly as with hardware.
type SimGateway struct {
	mu        sync.Mutex
	cfg       SimConfig
	settings  Settings
	connected bool
	log       *logging.Logger

	// capture is not reentrant, same as the vendor SDK
	busy atomic.Bool

	recording     bool
	recordingPath string
	recordingFile *os.File
}

var _ Gateway = (*SimGateway)(nil)
var _ Recorder = (*SimGateway)(nil)

// NewSim creates a connected simulated gateway with default settings.
func NewSim(cfg SimConfig, log *logging.Logger) *SimGateway {
	if log == nil {
		log = logging.Default()
	}
	if cfg.FilePrefix == "" {
		cfg.FilePrefix = "zed"
	}
	return &SimGateway{
		cfg:       cfg,
		settings:  DefaultSettings(),
		connected: true,
		log:       log.WithComponent("camera"),
	}
}

// SetConnected toggles simulated device connectivity.
func (g *SimGateway) SetConnected(connected bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = connected
}

// Connected reports simulated device connectivity.
func (g *SimGateway) Connected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connected
}

// Settings returns a copy of the active settings.
func (g *SimGateway) Settings() Settings {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.settings.Clone()
}

// ApplySettings validates and swaps the active settings atomically.
func (g *SimGateway) ApplySettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return ErrCameraUnavailable
	}
	g.settings = s.Clone()
	g.log.Debug("applied camera settings", "mode", s.Mode, "resolution", s.Resolution)
	return nil
}

// Capture grabs one simulated frame set and writes one file per view.
func (g *SimGateway) Capture(ctx context.Context) (ImageRef, error) {
	if !g.Connected() {
		return ImageRef{}, ErrCameraUnavailable
	}
	if !g.busy.CompareAndSwap(false, true) {
		return ImageRef{}, ErrCameraBusy
	}
	defer g.busy.Store(false)

	if g.cfg.Latency > 0 {
		select {
		case <-time.After(g.cfg.Latency):
		case <-ctx.Done():
			return ImageRef{}, ctx.Err()
		}
	}

	now := time.Now()
	prefix := fmt.Sprintf("%s_%s_%03d", g.cfg.FilePrefix,
		now.Format("20060102_150405"), now.Nanosecond()/1e6)

	if err := os.MkdirAll(g.cfg.OutputDir, 0755); err != nil {
		return ImageRef{}, fmt.Errorf("create output directory: %w", err)
	}

	views := g.Settings().EffectiveViews()
	ref := ImageRef{Prefix: prefix, Paths: make(map[string]string, len(views))}

	for _, view := range views {
		var path string
		var err error
		if view == ViewPointCloud {
			path = filepath.Join(g.cfg.OutputDir, prefix+"_pointcloud.ply")
			err = writeSimPointCloud(path)
		} else {
			path = filepath.Join(g.cfg.OutputDir, fmt.Sprintf("%s_%s.png", prefix, view))
			err = writeSimImage(path, view)
		}
		if err != nil {
			return ImageRef{}, fmt.Errorf("write %s view: %w", view, err)
		}
		ref.Paths[view] = path
	}

	g.log.Debug("simulated capture written", "prefix", prefix, "views", len(views))
	return ref, nil
}

// StartRecording begins a simulated video container.
func (g *SimGateway) StartRecording(path string, opts RecordingOptions) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.connected {
		return ErrCameraUnavailable
	}
	if g.recording {
		return fmt.Errorf("recording already in progress: %s", g.recordingPath)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create recording directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create recording file: %w", err)
	}
	fmt.Fprintf(f, "SIMSVO %s %s\n", opts.Codec, time.Now().Format(time.RFC3339))

	g.recording = true
	g.recordingPath = path
	g.recordingFile = f
	return nil
}

// StopRecording finalizes the simulated container.
func (g *SimGateway) StopRecording() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.recording {
		return fmt.Errorf("no recording in progress")
	}
	err := g.recordingFile.Close()
	g.recording = false
	g.recordingFile = nil
	g.recordingPath = ""
	return err
}

// writeSimImage writes a small placeholder frame. Each view gets a slightly
// different shade so files are distinguishable in the output directory.
func writeSimImage(path, view string) error {
	const w, h = 64, 48
	img := image.NewGray(image.Rect(0, 0, w, h))
	base := uint8(40 + 30*(len(view)%6))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: base + uint8((x+y)%32)})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

// writeSimPointCloud writes a minimal ASCII PLY file.
func writeSimPointCloud(path string) error {
	const header = "ply\nformat ascii 1.0\nelement vertex 1\n" +
		"property float x\nproperty float y\nproperty float z\n" +
		"end_header\n0.0 0.0 0.0\n"
	return os.WriteFile(path, []byte(header), 0644)
}
