package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"zedcapd/internal/camera"
	"zedcapd/internal/gps"
	"zedcapd/internal/logging"
)

// Controller errors.
var (
	// ErrInvalidTransition means the requested operation is not legal in
	// the controller's current state.
	ErrInvalidTransition = errors.New("invalid controller transition")

	// ErrPolicyNotSet means arming was requested without a trigger policy.
	ErrPolicyNotSet = errors.New("no trigger policy set")
)

// State is the controller's lifecycle state.
type State int

const (
	// Idle: no policy armed; only single shots are possible.
	Idle State = iota
	// Armed: policy active and session running, awaiting a qualifying tick.
	Armed
	// Capturing: a capture operation is in flight.
	Capturing
	// Faulted: unrecoverable camera error; requires an explicit Reset.
	Faulted
)

// String returns the state name used in status output.
func (s State) String() string {
	switch s {
	case Armed:
		return "armed"
	case Capturing:
		return "capturing"
	case Faulted:
		return "faulted"
	default:
		return "idle"
	}
}

// Status is the pull-style status snapshot the operator layer displays.
type Status struct {
	State          State     `json:"state"`
	Policy         *Policy   `json:"policy,omitempty"`
	Sequence       uint64    `json:"sequence_number"`
	CaptureCount   uint64    `json:"capture_count"`
	LastCaptureAt  time.Time `json:"last_capture_at,omitempty"`
	GPSWaiting     bool      `json:"gps_waiting"`
	DistanceMeters float64   `json:"distance_since_reference_m"`
	LastError      string    `json:"last_error,omitempty"`
}

// Controller owns the trigger policy and fires captures. All state changes
// go through one mutex; the gateway call itself runs outside the lock so
// status reads and fix ingestion are never blocked by camera hardware.
type Controller struct {
	mu       sync.Mutex
	log      *logging.Logger
	gateway  camera.Gateway
	tracker  *gps.Tracker
	sink     Sink
	index    Index
	observer Observer
	clock    func() time.Time

	state        State
	pendingStop  bool // Disarm arrived while Capturing; land in Idle
	policy       *Policy
	seq          uint64
	captureCount uint64
	baseline     time.Time // trigger baseline for the time policy
	lastCapture  time.Time
	gpsWaiting   bool
	lastErr      error
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock substitutes the wall clock, used by tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithIndex persists every record to the given index. Insert failures are
// treated like metadata write failures: surfaced, never fatal.
func WithIndex(idx Index) Option {
	return func(c *Controller) { c.index = idx }
}

// WithStartSequence seeds the sequence counter, so numbering continues from
// a persisted index across daemon restarts.
func WithStartSequence(seq uint64) Option {
	return func(c *Controller) { c.seq = seq }
}

// WithObserver reports skipped trigger events and failed attempts, typically
// to the metrics instruments.
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observer = o }
}

// NewController builds an idle controller with no policy armed.
func NewController(gateway camera.Gateway, tracker *gps.Tracker, sink Sink, log *logging.Logger, opts ...Option) *Controller {
	if log == nil {
		log = logging.Default()
	}
	c := &Controller{
		log:     log.WithComponent("capture"),
		gateway: gateway,
		tracker: tracker,
		sink:    sink,
		clock:   time.Now,
		state:   Idle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetPolicy installs a new trigger policy and resets the accumulation
// baseline, so stale elapsed time or distance never causes an immediate
// fire. Allowed in Idle or Armed.
func (c *Controller) SetPolicy(p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Capturing || c.state == Faulted {
		return fmt.Errorf("%w: set policy while %s", ErrInvalidTransition, c.state)
	}

	c.policy = &p
	c.baseline = c.clock()
	c.tracker.ResetReference()
	c.gpsWaiting = false
	c.log.Info("trigger policy set", "policy", p.String())
	return nil
}

// Policy returns the active policy, if any.
func (c *Controller) Policy() *Policy {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.policy == nil {
		return nil
	}
	p := *c.policy
	return &p
}

// Arm transitions to Armed for a fresh session start, resetting the
// accumulation baseline. Fails with ErrPolicyNotSet without a policy.
func (c *Controller) Arm() error {
	return c.arm(true)
}

// Rearm transitions back to Armed after a pause, preserving the elapsed
// time and accumulated distance of the interrupted interval.
func (c *Controller) Rearm() error {
	return c.arm(false)
}

func (c *Controller) arm(resetBaseline bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Capturing:
		return fmt.Errorf("%w: arm while capturing", ErrInvalidTransition)
	case Faulted:
		return fmt.Errorf("%w: arm while faulted", ErrInvalidTransition)
	}
	if c.policy == nil {
		return ErrPolicyNotSet
	}

	if resetBaseline {
		c.baseline = c.clock()
		c.tracker.ResetReference()
	}
	c.state = Armed
	c.pendingStop = false
	return nil
}

// Disarm returns to Idle; ticks become no-ops. Issued while a capture is in
// flight, the disarm is deferred: the capture completes and the controller
// lands in Idle instead of rearming, so a pause always sticks. No-op while
// Faulted.
func (c *Controller) Disarm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Armed:
		c.state = Idle
	case Capturing:
		c.pendingStop = true
	}
}

// Reset clears a Faulted controller back to Idle.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Faulted {
		return fmt.Errorf("%w: reset while %s", ErrInvalidTransition, c.state)
	}
	c.state = Idle
	c.lastErr = nil
	c.log.Info("controller reset from faulted state")
	return nil
}

// Tick is the heartbeat from the supervisor loop. It evaluates the active
// policy against now and fires at most one capture. No-op unless Armed.
func (c *Controller) Tick(now time.Time) error {
	c.mu.Lock()

	if c.state != Armed || c.policy == nil {
		c.mu.Unlock()
		return nil
	}

	fire := false
	trigger := TriggerTime
	switch c.policy.Kind {
	case KindTime:
		fire = now.Sub(c.baseline) >= c.policy.Interval
	case KindDistance:
		trigger = TriggerDistance
		fix, ok := c.tracker.CurrentFix()
		if !ok || fix.Quality < gps.Fix2D {
			// Distance cannot be trusted without a fix: withhold the
			// capture and surface the condition instead of silently
			// falling back to time-based triggering. Counted once per
			// dropout, not per tick.
			entered := !c.gpsWaiting
			if entered {
				c.log.Warn("gps fix lost, distance captures withheld")
			}
			c.gpsWaiting = true
			c.mu.Unlock()
			if entered && c.observer != nil {
				c.observer.CaptureSkipped(SkipGPSWaiting)
			}
			return nil
		}
		c.gpsWaiting = false
		fire = c.tracker.DistanceSinceReference() >= c.policy.Meters
	}

	if !fire {
		c.mu.Unlock()
		return nil
	}

	_, err := c.fireLocked(now, trigger, true)
	return err
}

// SingleShot performs one immediate capture through the normal capture
// path without touching the trigger baseline or the tracker reference, so
// manual shots never perturb the automatic cadence. Available in any
// non-Faulted state. A capture already in flight rejects the request with
// ErrCameraBusy; capture operations never overlap.
func (c *Controller) SingleShot() (Record, error) {
	c.mu.Lock()

	switch c.state {
	case Faulted:
		c.mu.Unlock()
		return Record{}, fmt.Errorf("%w: single shot while faulted", ErrInvalidTransition)
	case Capturing:
		c.mu.Unlock()
		return Record{}, camera.ErrCameraBusy
	}

	return c.fireLocked(c.clock(), TriggerManual, false)
}

// settleLocked leaves Capturing, honoring a Disarm that arrived while the
// capture was in flight.
func (c *Controller) settleLocked(prev State) {
	if c.pendingStop {
		c.pendingStop = false
		c.state = Idle
		return
	}
	c.state = prev
}

// fireLocked runs one capture. Called with the mutex held; releases it
// around the gateway call and returns with it released.
func (c *Controller) fireLocked(now time.Time, trigger string, advanceBaseline bool) (Record, error) {
	prev := c.state
	c.state = Capturing
	settings := c.gateway.Settings()
	c.mu.Unlock()

	// Deliberately not cancellable: stop() waits for an in-flight capture
	// rather than aborting it, to avoid leaving the device undefined.
	ref, err := c.gateway.Capture(context.Background())

	c.mu.Lock()

	switch {
	case errors.Is(err, camera.ErrCameraBusy):
		c.settleLocked(prev)
		c.log.Warn("camera busy, capture skipped", "trigger", trigger)
		c.mu.Unlock()
		if c.observer != nil {
			c.observer.CaptureSkipped(SkipCameraBusy)
		}
		if trigger == TriggerManual {
			// Manual callers need the rejection; the tick loop just
			// skips the event and keeps its cadence.
			return Record{}, err
		}
		return Record{}, nil

	case errors.Is(err, camera.ErrCameraUnavailable):
		c.state = Faulted
		c.pendingStop = false
		c.lastErr = err
		c.log.Error("camera unavailable, controller faulted")
		c.mu.Unlock()
		if c.observer != nil {
			c.observer.CaptureFailed()
		}
		return Record{}, err

	case err != nil:
		c.settleLocked(prev)
		c.lastErr = err
		c.log.Error("capture failed", "error", err)
		c.mu.Unlock()
		if c.observer != nil {
			c.observer.CaptureFailed()
		}
		return Record{}, err
	}

	c.seq++
	c.captureCount++
	rec := Record{
		Sequence:   c.seq,
		CapturedAt: now,
		Trigger:    trigger,
		Settings:   settings.Clone(),
		Image:      ref,
	}
	if fix, ok := c.tracker.CurrentFix(); ok {
		f := fix
		rec.GPS = &f
	}

	if advanceBaseline {
		c.baseline = now
		c.lastCapture = now
		c.tracker.ResetReference()
	}
	c.settleLocked(prev)
	c.mu.Unlock()

	c.log.Info("capture complete", "sequence", rec.Sequence, "trigger", trigger)

	var persistErr error
	if c.sink != nil {
		if err := c.sink.Write(rec); err != nil {
			// Image files are already on disk; a metadata failure is
			// surfaced but never stops the loop.
			persistErr = fmt.Errorf("metadata write: %w", err)
			c.log.Error("metadata write failed", "sequence", rec.Sequence, "error", err)
		}
	}
	if c.index != nil {
		if err := c.index.Insert(rec); err != nil {
			persistErr = fmt.Errorf("index insert: %w", err)
			c.log.Error("capture index insert failed", "sequence", rec.Sequence, "error", err)
		}
	}
	if persistErr != nil {
		c.mu.Lock()
		c.lastErr = persistErr
		c.mu.Unlock()
	}

	return rec, persistErr
}

// ApplySettings forwards a settings change to the gateway, rejecting it
// while a capture is in flight so settings never change mid-grab.
func (c *Controller) ApplySettings(s camera.Settings) error {
	c.mu.Lock()
	if c.state == Capturing {
		c.mu.Unlock()
		return fmt.Errorf("%w: apply settings while capturing", ErrInvalidTransition)
	}
	c.mu.Unlock()

	return c.gateway.ApplySettings(s)
}

// Settings returns the gateway's active settings.
func (c *Controller) Settings() camera.Settings {
	return c.gateway.Settings()
}

// State returns the current controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns a consistent snapshot for the operator layer.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		State:          c.state,
		Sequence:       c.seq,
		CaptureCount:   c.captureCount,
		LastCaptureAt:  c.lastCapture,
		GPSWaiting:     c.gpsWaiting,
		DistanceMeters: c.tracker.DistanceSinceReference(),
	}
	if c.policy != nil {
		p := *c.policy
		st.Policy = &p
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}
