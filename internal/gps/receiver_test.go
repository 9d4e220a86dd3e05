package gps

import (
	"io"
	"math"
	"strings"
	"testing"
	"time"
)

const (
	ggaFix   = "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47"
	ggaDGPS  = "$GPGGA,123519,4807.038,N,01131.000,E,2,08,0.9,545.4,M,46.9,M,,*44"
	rmcValid = "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A"
	rmcVoid  = "$GPRMC,123519,V,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*7D"
)

func TestParseSentenceGGA(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	fix, ok := parseSentence(ggaFix, Fix{}, now)
	if !ok {
		t.Fatal("GGA sentence not parsed")
	}
	if fix.Quality != Fix3D {
		t.Errorf("quality = %v, want Fix3D", fix.Quality)
	}
	if math.Abs(fix.Lat-48.1173) > 0.0001 || math.Abs(fix.Lon-11.5167) > 0.0001 {
		t.Errorf("position = %v,%v", fix.Lat, fix.Lon)
	}
	if fix.Altitude == nil || math.Abs(*fix.Altitude-545.4) > 0.01 {
		t.Errorf("altitude = %v", fix.Altitude)
	}
	if fix.Satellites != 8 {
		t.Errorf("satellites = %d, want 8", fix.Satellites)
	}
	if fix.Time.Hour() != 12 || fix.Time.Minute() != 35 || fix.Time.Second() != 19 {
		t.Errorf("time = %v", fix.Time)
	}
}

func TestParseSentenceQuality(t *testing.T) {
	now := time.Now()

	if fix, _ := parseSentence(ggaDGPS, Fix{}, now); fix.Quality != DGPS {
		t.Errorf("DGPS sentence quality = %v", fix.Quality)
	}

	// RMC alone proves a 2D position.
	if fix, _ := parseSentence(rmcValid, Fix{}, now); fix.Quality != Fix2D {
		t.Errorf("valid RMC quality = %v, want Fix2D", fix.Quality)
	}

	// RMC keeps a previous 3D quality alive.
	prev, _ := parseSentence(ggaFix, Fix{}, now)
	if fix, _ := parseSentence(rmcValid, prev, now); fix.Quality != Fix3D {
		t.Errorf("RMC after GGA downgraded quality to %v", fix.Quality)
	}

	// A void RMC drops the fix entirely.
	if fix, _ := parseSentence(rmcVoid, prev, now); fix.Quality != NoFix {
		t.Errorf("void RMC quality = %v, want NoFix", fix.Quality)
	}
}

func TestParseSentenceRejectsGarbage(t *testing.T) {
	if _, ok := parseSentence("$GPGGA,garbage*00", Fix{}, time.Now()); ok {
		t.Error("bad checksum sentence was accepted")
	}
	if _, ok := parseSentence("$GPGSV,3,1,11,03,03,111,00*74", Fix{}, time.Now()); ok {
		t.Error("unhandled sentence type produced a fix")
	}
}

func TestReceiverFeedsTracker(t *testing.T) {
	tr := NewTracker()
	r := NewReceiver(tr, nil)

	stream := strings.Join([]string{ggaFix, rmcValid, ggaDGPS}, "\r\n") + "\r\n"
	r.Start(io.NopCloser(strings.NewReader(stream)))

	// EOF marks the receiver disconnected once the loop drains.
	deadline := time.After(2 * time.Second)
	for r.Connected() {
		select {
		case <-deadline:
			t.Fatal("receiver never observed stream end")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	fix, ok := tr.CurrentFix()
	if !ok {
		t.Fatal("tracker never received a fix")
	}
	if fix.Quality != DGPS {
		t.Errorf("final quality = %v, want DGPS", fix.Quality)
	}

	if got := r.LastSentences(); len(got) != 3 {
		t.Errorf("sentence history length = %d, want 3", len(got))
	}
}

func TestReceiverSentenceHistoryBound(t *testing.T) {
	tr := NewTracker()
	r := NewReceiver(tr, nil)

	lines := make([]string, 0, sentenceHistory+3)
	for i := 0; i < sentenceHistory+3; i++ {
		lines = append(lines, ggaFix)
	}
	r.Start(io.NopCloser(strings.NewReader(strings.Join(lines, "\n") + "\n")))

	deadline := time.After(2 * time.Second)
	for r.Connected() {
		select {
		case <-deadline:
			t.Fatal("receiver never observed stream end")
		case <-time.After(5 * time.Millisecond):
		}
	}
	r.Close()

	if got := len(r.LastSentences()); got != sentenceHistory {
		t.Errorf("history length = %d, want %d", got, sentenceHistory)
	}
}
