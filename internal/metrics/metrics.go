// Package metrics exposes the daemon's operational counters over a
// Prometheus scrape endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the daemon's instruments on a private registry, so tests
// can build isolated instances and nothing leaks into the global default.
type Metrics struct {
	registry *prometheus.Registry

	CapturesTotal *prometheus.CounterVec
	CaptureSkips  *prometheus.CounterVec
	CaptureErrors prometheus.Counter
	GPSFixes      *prometheus.CounterVec
	SessionState  prometheus.Gauge
	DistanceM     prometheus.Gauge
	LastSequence  prometheus.Gauge
}

// New builds the instrument set.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.CapturesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zedcapd_captures_total",
		Help: "Completed captures by trigger source.",
	}, []string{"trigger"})

	m.CaptureSkips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zedcapd_capture_skips_total",
		Help: "Trigger events that produced no capture, by reason.",
	}, []string{"reason"})

	m.CaptureErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "zedcapd_capture_errors_total",
		Help: "Capture attempts that failed.",
	})

	m.GPSFixes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zedcapd_gps_fixes_total",
		Help: "Parsed NMEA position fixes by quality.",
	}, []string{"quality"})

	m.SessionState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "zedcapd_session_state",
		Help: "Session state: 0 idle, 1 running, 2 paused, 3 stopped.",
	})

	m.DistanceM = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "zedcapd_distance_since_capture_meters",
		Help: "Great-circle distance accumulated since the last capture.",
	})

	m.LastSequence = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "zedcapd_last_sequence_number",
		Help: "Sequence number of the most recent capture.",
	})

	m.registry.MustRegister(
		m.CapturesTotal, m.CaptureSkips, m.CaptureErrors,
		m.GPSFixes, m.SessionState, m.DistanceM, m.LastSequence,
	)
	return m
}

// Handler serves the scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordCapture counts one completed capture and updates the sequence
// gauge.
func (m *Metrics) RecordCapture(trigger string, sequence uint64) {
	m.CapturesTotal.WithLabelValues(trigger).Inc()
	m.LastSequence.Set(float64(sequence))
}

// RecordSkip counts one withheld or skipped trigger event.
func (m *Metrics) RecordSkip(reason string) {
	m.CaptureSkips.WithLabelValues(reason).Inc()
}

// RecordFix counts one parsed position fix.
func (m *Metrics) RecordFix(quality string) {
	m.GPSFixes.WithLabelValues(quality).Inc()
}

// CaptureSkipped implements the capture controller's observer hook.
func (m *Metrics) CaptureSkipped(reason string) {
	m.RecordSkip(reason)
}

// CaptureFailed implements the capture controller's observer hook.
func (m *Metrics) CaptureFailed() {
	m.CaptureErrors.Inc()
}
