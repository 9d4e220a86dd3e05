package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"zedcapd/internal/gps"
)

func staticCheck(status Status) Check {
	return func(ctx context.Context) CheckResult {
		return CheckResult{Status: status}
	}
}

func TestOverallStatusAggregation(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("camera", true, staticCheck(StatusHealthy))
	c.RegisterFunc("gps", false, staticCheck(StatusHealthy))
	c.Check(context.Background())

	if got := c.OverallStatus(); got != StatusHealthy {
		t.Fatalf("status = %s, want healthy", got)
	}

	// Non-critical failure degrades.
	c.RegisterFunc("gps", false, staticCheck(StatusUnhealthy))
	c.Check(context.Background())
	if got := c.OverallStatus(); got != StatusDegraded {
		t.Fatalf("status = %s, want degraded", got)
	}

	// Critical failure is unhealthy.
	c.RegisterFunc("camera", true, staticCheck(StatusUnhealthy))
	c.Check(context.Background())
	if got := c.OverallStatus(); got != StatusUnhealthy {
		t.Fatalf("status = %s, want unhealthy", got)
	}
}

func TestUncheckedCriticalIsUnknown(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("camera", true, staticCheck(StatusHealthy))

	if got := c.OverallStatus(); got != StatusUnknown {
		t.Fatalf("status before first check = %s, want unknown", got)
	}
}

func TestGPSCheckStates(t *testing.T) {
	tracker := gps.NewTracker()
	check := GPSCheck(tracker, time.Minute)

	if r := check(context.Background()); r.Status != StatusDegraded {
		t.Errorf("no data: status = %s, want degraded", r.Status)
	}

	tracker.Ingest(gps.Fix{Quality: gps.NoFix, Time: time.Now()})
	if r := check(context.Background()); r.Status != StatusDegraded {
		t.Errorf("no fix: status = %s, want degraded", r.Status)
	}

	tracker.Ingest(gps.Fix{Lat: 1, Lon: 2, Quality: gps.Fix3D, Time: time.Now()})
	if r := check(context.Background()); r.Status != StatusHealthy {
		t.Errorf("fresh fix: status = %s, want healthy", r.Status)
	}

	tracker.Ingest(gps.Fix{Lat: 1, Lon: 2, Quality: gps.Fix3D, Time: time.Now().Add(-2 * time.Minute)})
	if r := check(context.Background()); r.Status != StatusDegraded {
		t.Errorf("stale fix: status = %s, want degraded", r.Status)
	}
}

type failingPinger struct{ err error }

func (p failingPinger) Ping() error { return p.err }

func TestStoreCheck(t *testing.T) {
	if r := StoreCheck(failingPinger{})(context.Background()); r.Status != StatusHealthy {
		t.Errorf("status = %s, want healthy", r.Status)
	}
	r := StoreCheck(failingPinger{err: errors.New("locked")})(context.Background())
	if r.Status != StatusUnhealthy || r.Error != "locked" {
		t.Errorf("unexpected result: %+v", r)
	}
}

func TestHandlerReportsComponents(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("camera", true, staticCheck(StatusHealthy))
	c.SetReady(true)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != 200 {
		t.Fatalf("status code = %d", rec.Code)
	}
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != StatusHealthy || !resp.Ready {
		t.Errorf("unexpected response: %+v", resp)
	}
	if _, ok := resp.Components["camera"]; !ok {
		t.Error("camera component missing from response")
	}
}

func TestReadinessHandler(t *testing.T) {
	c := NewChecker()

	rec := httptest.NewRecorder()
	c.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != 503 {
		t.Fatalf("not ready should be 503, got %d", rec.Code)
	}

	c.SetReady(true)
	rec = httptest.NewRecorder()
	c.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != 200 {
		t.Fatalf("ready should be 200, got %d", rec.Code)
	}
}
