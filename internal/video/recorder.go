// Package video manages SVO container recordings: one active recording at a
// time, identified by a generated ID, indexed for later retrieval.
package video

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"zedcapd/internal/camera"
	"zedcapd/internal/logging"
)

// Recording errors.
var (
	// ErrAlreadyRecording means a recording is still active.
	ErrAlreadyRecording = errors.New("recording already in progress")

	// ErrNotRecording means there is no active recording to stop.
	ErrNotRecording = errors.New("no recording in progress")
)

// Info describes one recording.
type Info struct {
	ID        string                  `json:"id"`
	Path      string                  `json:"path"`
	Options   camera.RecordingOptions `json:"options"`
	StartedAt time.Time               `json:"started_at"`
	StoppedAt time.Time               `json:"stopped_at,omitempty"`
}

// Journal persists recording bookkeeping. The SQLite store satisfies this
// through a thin adapter; nil disables journaling.
type Journal interface {
	RecordingStarted(id, path, codec string, at time.Time) error
	RecordingStopped(id string, at time.Time) error
}

// Manager drives the camera's recorder capability.
type Manager struct {
	mu      sync.Mutex
	log     *logging.Logger
	rec     camera.Recorder
	dir     string
	journal Journal
	clock   func() time.Time

	active *Info
}

// Option configures a Manager.
type Option func(*Manager)

// WithJournal records recording rows in the given journal.
func WithJournal(j Journal) Option {
	return func(m *Manager) { m.journal = j }
}

// WithClock substitutes the wall clock, used by tests.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// NewManager builds a manager writing containers into dir.
func NewManager(rec camera.Recorder, dir string, log *logging.Logger, opts ...Option) *Manager {
	if log == nil {
		log = logging.Default()
	}
	m := &Manager{
		log:   log.WithComponent("video"),
		rec:   rec,
		dir:   dir,
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins a new recording. Only one recording runs at a time.
func (m *Manager) Start(opts camera.RecordingOptions) (Info, error) {
	if opts.Codec == "" {
		opts.Codec = "H264"
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return Info{}, fmt.Errorf("%w: %s", ErrAlreadyRecording, m.active.ID)
	}

	now := m.clock()
	id := uuid.NewString()
	path := filepath.Join(m.dir, fmt.Sprintf("rec_%s_%s.svo",
		now.Format("20060102_150405"), id[:8]))

	if err := m.rec.StartRecording(path, opts); err != nil {
		return Info{}, fmt.Errorf("start recording: %w", err)
	}

	m.active = &Info{ID: id, Path: path, Options: opts, StartedAt: now}
	if m.journal != nil {
		if err := m.journal.RecordingStarted(id, path, opts.Codec, now); err != nil {
			m.log.Error("recording journal insert failed", "error", err)
		}
	}

	m.log.Info("recording started", "id", id, "path", path, "codec", opts.Codec)
	return *m.active, nil
}

// Stop finalizes the active recording and writes its JSON sidecar next to
// the container.
func (m *Manager) Stop() (Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return Info{}, ErrNotRecording
	}

	if err := m.rec.StopRecording(); err != nil {
		return Info{}, fmt.Errorf("stop recording: %w", err)
	}

	info := *m.active
	info.StoppedAt = m.clock()
	m.active = nil

	if m.journal != nil {
		if err := m.journal.RecordingStopped(info.ID, info.StoppedAt); err != nil {
			m.log.Error("recording journal update failed", "error", err)
		}
	}
	if err := writeSidecar(info); err != nil {
		m.log.Error("recording sidecar write failed", "error", err)
	}

	m.log.Info("recording stopped", "id", info.ID,
		"duration", info.StoppedAt.Sub(info.StartedAt).Round(time.Millisecond))
	return info, nil
}

// Active returns the running recording, if any.
func (m *Manager) Active() (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return Info{}, false
	}
	return *m.active, true
}

func writeSidecar(info Info) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal recording info: %w", err)
	}
	path := info.Path + ".json"
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write recording sidecar: %w", err)
	}
	return nil
}
