package video

import (
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"zedcapd/internal/camera"
)

type fakeRecorder struct {
	mu       sync.Mutex
	started  []string
	stopped  int
	startErr error
}

func (r *fakeRecorder) StartRecording(path string, opts camera.RecordingOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.started = append(r.started, path)
	return nil
}

func (r *fakeRecorder) StopRecording() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped++
	return nil
}

type fakeJournal struct {
	started, stopped []string
}

func (j *fakeJournal) RecordingStarted(id, path, codec string, at time.Time) error {
	j.started = append(j.started, id)
	return nil
}

func (j *fakeJournal) RecordingStopped(id string, at time.Time) error {
	j.stopped = append(j.stopped, id)
	return nil
}

func TestRecordingLifecycle(t *testing.T) {
	dir := t.TempDir()
	rec := &fakeRecorder{}
	journal := &fakeJournal{}
	m := NewManager(rec, dir, nil, WithJournal(journal))

	info, err := m.Start(camera.RecordingOptions{Codec: "H265"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if info.ID == "" || info.Options.Codec != "H265" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if _, ok := m.Active(); !ok {
		t.Fatal("recording should be active")
	}

	// A second start is rejected while one is running.
	if _, err := m.Start(camera.RecordingOptions{}); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("expected ErrAlreadyRecording, got %v", err)
	}

	done, err := m.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if done.ID != info.ID || done.StoppedAt.IsZero() {
		t.Fatalf("unexpected stop info: %+v", done)
	}
	if _, ok := m.Active(); ok {
		t.Fatal("no recording should be active after stop")
	}
	if rec.stopped != 1 {
		t.Fatalf("recorder stops = %d, want 1", rec.stopped)
	}

	// Sidecar written next to the container.
	if _, err := os.Stat(done.Path + ".json"); err != nil {
		t.Fatalf("sidecar missing: %v", err)
	}

	if len(journal.started) != 1 || len(journal.stopped) != 1 {
		t.Fatalf("journal rows: %+v / %+v", journal.started, journal.stopped)
	}
}

func TestStopWithoutStart(t *testing.T) {
	m := NewManager(&fakeRecorder{}, t.TempDir(), nil)
	if _, err := m.Stop(); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("expected ErrNotRecording, got %v", err)
	}
}

func TestStartFailurePropagates(t *testing.T) {
	rec := &fakeRecorder{startErr: errors.New("device detached")}
	m := NewManager(rec, t.TempDir(), nil)

	if _, err := m.Start(camera.RecordingOptions{}); err == nil {
		t.Fatal("expected start failure")
	}
	if _, ok := m.Active(); ok {
		t.Fatal("failed start must not leave an active recording")
	}
}

func TestDefaultCodec(t *testing.T) {
	m := NewManager(&fakeRecorder{}, t.TempDir(), nil)
	info, err := m.Start(camera.RecordingOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if info.Options.Codec != "H264" {
		t.Fatalf("codec = %q, want H264", info.Options.Codec)
	}
}
