package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"zedcapd/internal/camera"
	"zedcapd/internal/capture"
	"zedcapd/internal/gps"
)

type countingGateway struct {
	mu       sync.Mutex
	captures int
	settings camera.Settings
	block    chan struct{} // when set, Capture waits for a send or close
}

func (g *countingGateway) Capture(context.Context) (camera.ImageRef, error) {
	if g.block != nil {
		<-g.block
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.captures++
	return camera.ImageRef{Prefix: "t", Paths: map[string]string{"rgb": "t.png"}}, nil
}

func (g *countingGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.captures
}

func (g *countingGateway) Settings() camera.Settings           { return g.settings }
func (g *countingGateway) ApplySettings(camera.Settings) error { return nil }
func (g *countingGateway) Connected() bool                     { return true }

type nullSink struct{}

func (nullSink) Write(capture.Record) error { return nil }

type memJournal struct {
	mu      sync.Mutex
	began   int
	ended   int
	policy  string
	started time.Time
}

func (j *memJournal) BeginSession(started time.Time, policy string) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.began++
	j.policy = policy
	j.started = started
	return int64(j.began), nil
}

func (j *memJournal) EndSession(int64, time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ended++
	return nil
}

func newTestSupervisor(t *testing.T, opts ...Option) (*Supervisor, *capture.Controller, *countingGateway) {
	t.Helper()
	gw := &countingGateway{settings: camera.DefaultSettings()}
	ctrl := capture.NewController(gw, gps.NewTracker(), nullSink{}, nil)
	sup := NewSupervisor(ctrl, Config{TickInterval: 5 * time.Millisecond}, nil, opts...)
	t.Cleanup(func() { sup.Stop() })
	return sup, ctrl, gw
}

func TestStartRequiresPolicy(t *testing.T) {
	sup, _, _ := newTestSupervisor(t)
	require.ErrorIs(t, sup.Start(), capture.ErrPolicyNotSet)
	require.Equal(t, Idle, sup.State())
}

func TestSessionCapturesOnInterval(t *testing.T) {
	sup, ctrl, gw := newTestSupervisor(t)
	require.NoError(t, ctrl.SetPolicy(capture.TimeInterval(20*time.Millisecond)))

	require.NoError(t, sup.Start())
	require.Equal(t, Running, sup.State())

	require.Eventually(t, func() bool {
		return gw.count() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, sup.Stop())
	require.Equal(t, Stopped, sup.State())
}

func TestDoubleStartRejected(t *testing.T) {
	sup, ctrl, _ := newTestSupervisor(t)
	require.NoError(t, ctrl.SetPolicy(capture.TimeInterval(time.Hour)))

	require.NoError(t, sup.Start())
	require.ErrorIs(t, sup.Start(), ErrInvalidTransition)
}

func TestPauseStopsCaptures(t *testing.T) {
	sup, ctrl, gw := newTestSupervisor(t)
	require.NoError(t, ctrl.SetPolicy(capture.TimeInterval(10*time.Millisecond)))

	require.NoError(t, sup.Start())
	require.Eventually(t, func() bool {
		return gw.count() >= 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, sup.Pause())
	require.Equal(t, Paused, sup.State())
	require.Equal(t, capture.Idle, ctrl.State())

	n := gw.count()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, n, gw.count())

	require.NoError(t, sup.Resume())
	require.Equal(t, Running, sup.State())
	require.Eventually(t, func() bool {
		return gw.count() > n
	}, 2*time.Second, 5*time.Millisecond)
}

func TestTransitionRules(t *testing.T) {
	sup, ctrl, _ := newTestSupervisor(t)
	require.NoError(t, ctrl.SetPolicy(capture.TimeInterval(time.Hour)))

	// Pause and resume require a running or paused session.
	require.ErrorIs(t, sup.Pause(), ErrInvalidTransition)
	require.ErrorIs(t, sup.Resume(), ErrInvalidTransition)

	require.NoError(t, sup.Start())
	require.ErrorIs(t, sup.Resume(), ErrInvalidTransition)

	require.NoError(t, sup.Pause())
	require.ErrorIs(t, sup.Pause(), ErrInvalidTransition)

	// Stop works from paused too, and again once stopped as a no-op.
	require.NoError(t, sup.Stop())
	require.Equal(t, Stopped, sup.State())
	require.NoError(t, sup.Stop())
}

func TestJournalRows(t *testing.T) {
	j := &memJournal{}
	sup, ctrl, _ := newTestSupervisor(t, WithJournal(j))
	require.NoError(t, ctrl.SetPolicy(capture.DistanceInterval(5)))

	require.NoError(t, sup.Start())
	require.NoError(t, sup.Stop())

	j.mu.Lock()
	defer j.mu.Unlock()
	require.Equal(t, 1, j.began)
	require.Equal(t, 1, j.ended)
	require.Equal(t, "distance(5.0m)", j.policy)
}

func TestRestartAfterStop(t *testing.T) {
	sup, ctrl, gw := newTestSupervisor(t)
	require.NoError(t, ctrl.SetPolicy(capture.TimeInterval(10*time.Millisecond)))

	require.NoError(t, sup.Start())
	require.NoError(t, sup.Stop())

	n := gw.count()
	require.NoError(t, sup.Start())
	require.Eventually(t, func() bool {
		return gw.count() > n
	}, 2*time.Second, 5*time.Millisecond)
}

func TestFixUpdateTriggersEvaluation(t *testing.T) {
	tracker := gps.NewTracker()
	gw := &countingGateway{settings: camera.DefaultSettings()}
	ctrl := capture.NewController(gw, tracker, nullSink{}, nil)
	updates := make(chan struct{}, 1)

	// A long tick interval isolates the update channel as the only
	// evaluation path.
	sup := NewSupervisor(ctrl, Config{TickInterval: time.Hour}, nil, WithFixUpdates(updates))
	t.Cleanup(func() { sup.Stop() })

	require.NoError(t, ctrl.SetPolicy(capture.DistanceInterval(5)))
	tracker.Ingest(gps.Fix{Lat: 0, Lon: 0, Time: time.Now(), Quality: gps.Fix3D})
	require.NoError(t, sup.Start())

	tracker.Ingest(gps.Fix{Lat: 0, Lon: 0.0001, Time: time.Now(), Quality: gps.Fix3D})
	updates <- struct{}{}

	require.Eventually(t, func() bool {
		return gw.count() == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStopWaitsForInFlightCapture(t *testing.T) {
	gw := &countingGateway{settings: camera.DefaultSettings(), block: make(chan struct{})}
	ctrl := capture.NewController(gw, gps.NewTracker(), nullSink{}, nil)
	sup := NewSupervisor(ctrl, Config{TickInterval: 5 * time.Millisecond}, nil)
	t.Cleanup(func() { sup.Stop() })

	require.NoError(t, ctrl.SetPolicy(capture.TimeInterval(10*time.Millisecond)))
	require.NoError(t, sup.Start())

	// Wait until a capture is actually stalled inside the gateway.
	require.Eventually(t, func() bool {
		return ctrl.State() == capture.Capturing
	}, 2*time.Second, time.Millisecond)

	stopped := make(chan error, 1)
	go func() { stopped <- sup.Stop() }()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a capture was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(gw.block)
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the capture finished")
	}
	require.GreaterOrEqual(t, gw.count(), 1)
}

func TestPauseDuringInFlightCaptureSticks(t *testing.T) {
	gw := &countingGateway{settings: camera.DefaultSettings(), block: make(chan struct{})}
	ctrl := capture.NewController(gw, gps.NewTracker(), nullSink{}, nil)
	sup := NewSupervisor(ctrl, Config{TickInterval: 5 * time.Millisecond}, nil)
	t.Cleanup(func() { sup.Stop() })

	require.NoError(t, ctrl.SetPolicy(capture.TimeInterval(10*time.Millisecond)))
	require.NoError(t, sup.Start())
	require.Eventually(t, func() bool {
		return ctrl.State() == capture.Capturing
	}, 2*time.Second, time.Millisecond)

	// Pause while the capture is stalled inside the gateway.
	require.NoError(t, sup.Pause())
	require.Equal(t, Paused, sup.State())

	close(gw.block)
	require.Eventually(t, func() bool {
		return ctrl.State() == capture.Idle
	}, 2*time.Second, time.Millisecond)

	// The stalled capture may complete, but no new ones fire while Paused.
	n := gw.count()
	require.LessOrEqual(t, n, 1)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, n, gw.count())

	require.NoError(t, sup.Resume())
	require.Eventually(t, func() bool {
		return gw.count() > n
	}, 2*time.Second, 5*time.Millisecond)
}
