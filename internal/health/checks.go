package health

import (
	"context"
	"fmt"
	"time"

	"zedcapd/internal/camera"
	"zedcapd/internal/gps"
)

// CameraCheck reports camera connectivity. Critical: without the camera the
// daemon cannot do its job.
func CameraCheck(gw camera.Gateway) Check {
	return func(ctx context.Context) CheckResult {
		if !gw.Connected() {
			return CheckResult{
				Status:  StatusUnhealthy,
				Message: "camera disconnected",
			}
		}
		return CheckResult{Status: StatusHealthy}
	}
}

// GPSCheck reports fix availability and freshness. Non-critical: time-based
// sessions work without GPS; the fix just goes missing from metadata.
func GPSCheck(tracker *gps.Tracker, maxAge time.Duration) Check {
	return func(ctx context.Context) CheckResult {
		fix, ok := tracker.CurrentFix()
		if !ok {
			return CheckResult{
				Status:  StatusDegraded,
				Message: "no NMEA data received yet",
			}
		}
		if !fix.Valid() {
			return CheckResult{
				Status:  StatusDegraded,
				Message: "receiver reports no fix",
			}
		}
		if age := time.Since(fix.Time); maxAge > 0 && age > maxAge {
			return CheckResult{
				Status:  StatusDegraded,
				Message: fmt.Sprintf("last fix is %s old", age.Round(time.Second)),
			}
		}
		return CheckResult{
			Status:  StatusHealthy,
			Message: fmt.Sprintf("%s fix, %d satellites", fix.Quality, fix.Satellites),
		}
	}
}

// Pinger is anything with a connection liveness probe, like the capture
// index store.
type Pinger interface {
	Ping() error
}

// StoreCheck reports capture index availability.
func StoreCheck(p Pinger) Check {
	return func(ctx context.Context) CheckResult {
		if err := p.Ping(); err != nil {
			return CheckResult{
				Status:  StatusUnhealthy,
				Message: "capture index unreachable",
				Error:   err.Error(),
			}
		}
		return CheckResult{Status: StatusHealthy}
	}
}
