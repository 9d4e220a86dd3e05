package gps

import (
	"math"
	"sync"
)

// earthRadiusM is the mean Earth radius in meters.
const earthRadiusM = 6371000

// Tracker maintains the last-known fix and the distance traveled since the
// reference point (the position at the last accepted capture, or the last
// ResetReference call).
//
// Ingest is called from the receiver's read loop while the other methods are
// called from the controller's decision loop, so all state is guarded by one
// mutex; a fix is always observed whole, never as a torn lat/lon pair.
//
// Losing the fix freezes the reported distance at the last valid value.
// When the fix returns, accumulation resumes against the same reference, so
// a signal dropout never discards progress toward the distance threshold.
type Tracker struct {
	mu sync.Mutex

	current Fix
	hasFix  bool

	// Last valid position observed, used for distance computation.
	validLat, validLon float64
	hasValid           bool

	// Reference point distance is measured from. When armed without a
	// valid fix, the reference is taken from the first valid fix seen.
	refLat, refLon float64
	hasRef         bool
}

// NewTracker returns an empty tracker with no reference point.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Ingest records a new fix. Invalid fixes still become the current fix, so
// metadata can report "fix lost" instead of stale coordinates, but they do
// not move the valid position or the reference.
func (t *Tracker) Ingest(f Fix) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.current = f
	t.hasFix = true

	if !f.Valid() {
		return
	}

	t.validLat, t.validLon = f.Lat, f.Lon
	t.hasValid = true

	if !t.hasRef {
		t.refLat, t.refLon = f.Lat, f.Lon
		t.hasRef = true
	}
}

// CurrentFix returns the most recent fix, valid or not. The second return
// value is false until the first fix arrives.
func (t *Tracker) CurrentFix() (Fix, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current, t.hasFix
}

// DistanceSinceReference returns the great-circle distance in meters between
// the reference point and the latest valid fix. Zero until both exist.
func (t *Tracker) DistanceSinceReference() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.hasRef || !t.hasValid {
		return 0
	}
	return haversineMeters(t.refLat, t.refLon, t.validLat, t.validLon)
}

// ResetReference moves the reference to the current valid position. If there
// is no valid fix right now, the reference is cleared and re-established by
// the next valid fix.
func (t *Tracker) ResetReference() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.hasFix && t.current.Valid() {
		t.refLat, t.refLon = t.current.Lat, t.current.Lon
		t.hasRef = true
		return
	}
	t.hasRef = false
}

// haversineMeters computes the great-circle distance between two points
// given in decimal degrees.
func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	rLat1 := lat1 * math.Pi / 180
	rLat2 := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Asin(math.Sqrt(a))

	return earthRadiusM * c
}
