package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"zedcapd/internal/camera"
	"zedcapd/internal/capture"
	"zedcapd/internal/gps"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "captures.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord(seq uint64, trigger string) capture.Record {
	alt := 120.5
	return capture.Record{
		Sequence:   seq,
		CapturedAt: time.Date(2025, 6, 1, 12, 0, int(seq), 0, time.UTC),
		Trigger:    trigger,
		GPS: &gps.Fix{
			Lat: -6.2, Lon: 106.81, Altitude: &alt,
			Time: time.Now(), Quality: gps.Fix3D, Satellites: 8, HDOP: 1.1,
		},
		Settings: camera.DefaultSettings(),
		Image: camera.ImageRef{
			Prefix: "zed_000001",
			Paths:  map[string]string{"rgb": "/data/zed_000001_rgb.png"},
		},
	}
}

func TestOpenCreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "deeper", "captures.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if err := s.Ping(); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestCloseNilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close on nil db should not error: %v", err)
	}
}

func TestInsertAndGetCapture(t *testing.T) {
	s := openStore(t)

	rec := testRecord(1, capture.TriggerTime)
	if err := s.Insert(rec); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := s.GetCapture(1)
	if err != nil {
		t.Fatalf("GetCapture failed: %v", err)
	}
	if got.Sequence != 1 || got.Trigger != capture.TriggerTime {
		t.Errorf("unexpected record: %+v", got)
	}
	if !got.CapturedAt.Equal(rec.CapturedAt) {
		t.Errorf("captured_at = %v, want %v", got.CapturedAt, rec.CapturedAt)
	}
	if got.GPS == nil {
		t.Fatal("gps fix lost")
	}
	if got.GPS.Quality != gps.Fix3D || got.GPS.Satellites != 8 {
		t.Errorf("unexpected fix: %+v", got.GPS)
	}
	if got.GPS.Altitude == nil || *got.GPS.Altitude != 120.5 {
		t.Errorf("altitude lost: %+v", got.GPS.Altitude)
	}
	if got.Image.Paths["rgb"] != "/data/zed_000001_rgb.png" {
		t.Errorf("paths lost: %+v", got.Image.Paths)
	}
	if got.Settings.Resolution != camera.ResHD1080 {
		t.Errorf("settings lost: %+v", got.Settings)
	}
}

func TestInsertWithoutFix(t *testing.T) {
	s := openStore(t)

	rec := testRecord(1, capture.TriggerManual)
	rec.GPS = nil
	if err := s.Insert(rec); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := s.GetCapture(1)
	if err != nil {
		t.Fatalf("GetCapture failed: %v", err)
	}
	if got.GPS != nil {
		t.Errorf("expected nil fix, got %+v", got.GPS)
	}
}

func TestInsertDuplicateSequenceFails(t *testing.T) {
	s := openStore(t)

	if err := s.Insert(testRecord(7, capture.TriggerTime)); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if err := s.Insert(testRecord(7, capture.TriggerTime)); err == nil {
		t.Fatal("duplicate sequence should fail")
	}
}

func TestLastSequence(t *testing.T) {
	s := openStore(t)

	seq, err := s.LastSequence()
	if err != nil {
		t.Fatalf("LastSequence failed: %v", err)
	}
	if seq != 0 {
		t.Errorf("empty index sequence = %d, want 0", seq)
	}

	for i := uint64(1); i <= 3; i++ {
		if err := s.Insert(testRecord(i, capture.TriggerDistance)); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	seq, err = s.LastSequence()
	if err != nil {
		t.Fatalf("LastSequence failed: %v", err)
	}
	if seq != 3 {
		t.Errorf("sequence = %d, want 3", seq)
	}
}

func TestListCapturesNewestFirst(t *testing.T) {
	s := openStore(t)

	for i := uint64(1); i <= 5; i++ {
		if err := s.Insert(testRecord(i, capture.TriggerTime)); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	recs, err := s.ListCaptures(3)
	if err != nil {
		t.Fatalf("ListCaptures failed: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	if recs[0].Sequence != 5 || recs[2].Sequence != 3 {
		t.Errorf("unexpected order: %d, %d, %d",
			recs[0].Sequence, recs[1].Sequence, recs[2].Sequence)
	}
}

func TestCountByTrigger(t *testing.T) {
	s := openStore(t)

	triggers := []string{capture.TriggerTime, capture.TriggerTime, capture.TriggerManual}
	for i, trig := range triggers {
		if err := s.Insert(testRecord(uint64(i+1), trig)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	counts, err := s.CountByTrigger()
	if err != nil {
		t.Fatalf("CountByTrigger failed: %v", err)
	}
	if counts[capture.TriggerTime] != 2 || counts[capture.TriggerManual] != 1 {
		t.Errorf("unexpected counts: %+v", counts)
	}
}

func TestGetCaptureNotFound(t *testing.T) {
	s := openStore(t)

	_, err := s.GetCapture(99)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := openStore(t)

	started := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	id, err := s.BeginSession(started, "time(5s)")
	if err != nil {
		t.Fatalf("BeginSession failed: %v", err)
	}

	sess, err := s.GetSession(id)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if !sess.Started.Equal(started) || sess.Policy != "time(5s)" {
		t.Errorf("unexpected session: %+v", sess)
	}
	if !sess.Ended.IsZero() {
		t.Errorf("running session should have zero end time")
	}

	ended := started.Add(time.Hour)
	if err := s.EndSession(id, ended); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}
	sess, err = s.GetSession(id)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if !sess.Ended.Equal(ended) {
		t.Errorf("ended = %v, want %v", sess.Ended, ended)
	}

	if err := s.EndSession(9999, ended); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordingLifecycle(t *testing.T) {
	s := openStore(t)

	rec := Recording{
		ID:      "f0b3d2a1",
		Path:    "/data/video/rec.svo",
		Codec:   "H264",
		Started: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := s.InsertRecording(rec); err != nil {
		t.Fatalf("InsertRecording failed: %v", err)
	}

	if err := s.FinishRecording(rec.ID, rec.Started.Add(time.Minute)); err != nil {
		t.Fatalf("FinishRecording failed: %v", err)
	}

	list, err := s.ListRecordings()
	if err != nil {
		t.Fatalf("ListRecordings failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != rec.ID || list[0].Stopped.IsZero() {
		t.Errorf("unexpected recordings: %+v", list)
	}
}
