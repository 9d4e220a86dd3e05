package gps

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/adrianmo/go-nmea"
	"go.bug.st/serial"

	"zedcapd/internal/logging"
)

// sentenceHistory is how many raw NMEA sentences are kept for diagnostics.
const sentenceHistory = 5

// Receiver reads NMEA sentences from a GPS device, parses GGA and RMC, and
// feeds fixes into a Tracker. The read loop runs on its own goroutine and
// never blocks on the capture side: update notifications are posted to a
// one-slot channel where the latest notification wins.
//
// The receiver does not reconnect on its own; when the stream ends it marks
// itself disconnected and surfaces that through Connected().
type Receiver struct {
	mu        sync.Mutex
	tracker   *Tracker
	log       *logging.Logger
	src       io.ReadCloser
	connected bool
	last      Fix
	sentences []string
	notify    chan struct{}
	onFix     func(Fix)
	wg        sync.WaitGroup
}

// NewReceiver creates a receiver feeding the given tracker.
func NewReceiver(tracker *Tracker, log *logging.Logger) *Receiver {
	if log == nil {
		log = logging.Default()
	}
	return &Receiver{
		tracker: tracker,
		log:     log.WithComponent("gps"),
		notify:  make(chan struct{}, 1),
	}
}

// Connect opens the serial port and starts the read loop.
func (r *Receiver) Connect(portName string, baudRate int) error {
	mode := &serial.Mode{BaudRate: baudRate}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return fmt.Errorf("open gps port %s: %w", portName, err)
	}
	r.log.Info("connected to gps receiver", "port", portName, "baud", baudRate)
	r.Start(port)
	return nil
}

// Start begins reading NMEA sentences from src. Used directly in tests and
// simulations with any stream; Connect uses it with the serial port.
func (r *Receiver) Start(src io.ReadCloser) {
	r.mu.Lock()
	r.src = src
	r.connected = true
	r.mu.Unlock()

	r.wg.Add(1)
	go r.readLoop(src)
}

// readLoop consumes sentences until the stream ends.
func (r *Receiver) readLoop(src io.Reader) {
	defer r.wg.Done()

	scanner := bufio.NewScanner(src)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		r.ingestLine(line)
	}

	if err := scanner.Err(); err != nil {
		r.log.Error("gps stream read failed", "error", err)
	} else {
		r.log.Warn("gps stream ended")
	}

	r.mu.Lock()
	r.connected = false
	r.mu.Unlock()
	r.postNotify()
}

// ingestLine parses one raw sentence and updates the tracker.
func (r *Receiver) ingestLine(line string) {
	r.mu.Lock()
	r.sentences = append(r.sentences, line)
	if len(r.sentences) > sentenceHistory {
		r.sentences = r.sentences[1:]
	}
	prev := r.last
	r.mu.Unlock()

	if !strings.HasPrefix(line, "$") {
		return
	}

	fix, ok := parseSentence(line, prev, time.Now().UTC())
	if !ok {
		return
	}

	r.mu.Lock()
	r.last = fix
	hook := r.onFix
	r.mu.Unlock()

	r.tracker.Ingest(fix)
	if hook != nil {
		hook(fix)
	}
	r.postNotify()
}

// OnFix registers an observer called with every parsed fix, for metrics.
// Set before Start; the hook runs on the read loop goroutine.
func (r *Receiver) OnFix(hook func(Fix)) {
	r.mu.Lock()
	r.onFix = hook
	r.mu.Unlock()
}

// postNotify signals an update without ever blocking the read loop.
func (r *Receiver) postNotify() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Updates returns a channel that receives a signal whenever a new fix has
// been ingested or the connection state changed. Latest-wins semantics.
func (r *Receiver) Updates() <-chan struct{} {
	return r.notify
}

// Connected reports whether the sentence stream is still open.
func (r *Receiver) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

// LastSentences returns the most recent raw sentences, oldest first.
func (r *Receiver) LastSentences() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.sentences))
	copy(out, r.sentences)
	return out
}

// Close stops the read loop and closes the stream.
func (r *Receiver) Close() error {
	r.mu.Lock()
	src := r.src
	r.src = nil
	r.mu.Unlock()

	var err error
	if src != nil {
		err = src.Close()
	}
	r.wg.Wait()
	return err
}

// parseSentence converts one GGA or RMC sentence into a Fix. The previous
// fix carries forward fields the sentence does not report, the way the
// receiver hardware interleaves the two sentence types. Unknown sentence
// types and parse failures are skipped.
func parseSentence(line string, prev Fix, now time.Time) (Fix, bool) {
	s, err := nmea.Parse(line)
	if err != nil {
		return Fix{}, false
	}

	switch m := s.(type) {
	case nmea.GGA:
		alt := m.Altitude
		fix := Fix{
			Lat:        m.Latitude,
			Lon:        m.Longitude,
			Time:       sentenceTime(m.Time, nmea.Date{}, now),
			Quality:    ggaQuality(m.FixQuality),
			Satellites: int(m.NumSatellites),
			HDOP:       m.HDOP,
		}
		if fix.Quality > NoFix {
			fix.Altitude = &alt
		}
		return fix, true

	case nmea.RMC:
		fix := prev
		fix.Lat = m.Latitude
		fix.Lon = m.Longitude
		fix.Time = sentenceTime(m.Time, m.Date, now)
		if m.Validity == nmea.ValidRMC {
			// RMC alone proves a position but not altitude.
			if fix.Quality == NoFix {
				fix.Quality = Fix2D
			}
		} else {
			fix.Quality = NoFix
			fix.Altitude = nil
		}
		return fix, true
	}

	return Fix{}, false
}

// ggaQuality maps the GGA fix quality field onto the Quality enum.
func ggaQuality(q string) Quality {
	switch q {
	case nmea.Invalid:
		return NoFix
	case nmea.GPS:
		return Fix3D
	case nmea.DGPS:
		return DGPS
	default:
		// PPS, RTK and friends are at least as good as DGPS.
		return DGPS
	}
}

// sentenceTime combines the NMEA time (and date, when present) with the
// current wall-clock date.
func sentenceTime(t nmea.Time, d nmea.Date, now time.Time) time.Time {
	if !t.Valid {
		return now
	}
	year, month, day := now.Date()
	if d.Valid {
		year = 2000 + d.YY
		month = time.Month(d.MM)
		day = d.DD
	}
	return time.Date(year, month, day, t.Hour, t.Minute, t.Second,
		t.Millisecond*int(time.Millisecond), time.UTC)
}
