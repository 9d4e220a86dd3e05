// Package session runs the capture session lifecycle: the tick loop that
// drives the controller, and the start/pause/resume/stop transitions the
// operator layer exposes.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"zedcapd/internal/capture"
	"zedcapd/internal/logging"
)

// ErrInvalidTransition means the requested lifecycle operation is not legal
// in the current session state.
var ErrInvalidTransition = errors.New("invalid session transition")

// State is the session lifecycle state.
type State int

const (
	// Idle: no session started yet.
	Idle State = iota
	// Running: the tick loop is driving the controller.
	Running
	// Paused: the loop is alive but the controller is disarmed.
	Paused
	// Stopped: the last session ended; a new one may be started.
	Stopped
)

// String returns the state name used in status output.
func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	default:
		return "idle"
	}
}

// Journal persists session bookkeeping. The SQLite store implements this;
// nil disables journaling.
type Journal interface {
	BeginSession(started time.Time, policy string) (int64, error)
	EndSession(id int64, ended time.Time) error
}

// Config tunes the supervisor.
type Config struct {
	// TickInterval is the policy evaluation cadence. Distance triggers
	// additionally re-evaluate on every fix update.
	TickInterval time.Duration
}

// DefaultConfig returns the tick cadence the daemon ships with.
func DefaultConfig() Config {
	return Config{TickInterval: 500 * time.Millisecond}
}

// Supervisor owns one capture session at a time. Start spawns the tick
// loop; Stop cancels it and waits for an in-flight capture to finish.
type Supervisor struct {
	mu         sync.Mutex
	log        *logging.Logger
	controller *capture.Controller
	journal    Journal
	updates    <-chan struct{}
	cfg        Config
	clock      func() time.Time

	state     State
	sessionID int64
	startedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithJournal records session rows in the given journal.
func WithJournal(j Journal) Option {
	return func(s *Supervisor) { s.journal = j }
}

// WithFixUpdates re-evaluates the policy whenever the channel signals a
// fresh fix, so distance triggers react faster than the tick cadence.
func WithFixUpdates(ch <-chan struct{}) Option {
	return func(s *Supervisor) { s.updates = ch }
}

// WithClock substitutes the wall clock, used by tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Supervisor) { s.clock = clock }
}

// NewSupervisor builds an idle supervisor around the controller.
func NewSupervisor(controller *capture.Controller, cfg Config, log *logging.Logger, opts ...Option) *Supervisor {
	if log == nil {
		log = logging.Default()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	s := &Supervisor{
		log:        log.WithComponent("session"),
		controller: controller,
		cfg:        cfg,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start arms the controller and spawns the tick loop. Fails if a session is
// already active or no trigger policy is set.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Idle && s.state != Stopped {
		return fmt.Errorf("%w: start while %s", ErrInvalidTransition, s.state)
	}
	if err := s.controller.Arm(); err != nil {
		return err
	}

	now := s.clock()
	s.startedAt = now
	s.sessionID = 0
	if s.journal != nil {
		id, err := s.journal.BeginSession(now, s.policyName())
		if err != nil {
			s.log.Error("session journal insert failed", "error", err)
		} else {
			s.sessionID = id
		}
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.state = Running
	s.wg.Add(1)
	go s.run(s.ctx)

	s.log.Info("session started", "policy", s.policyName())
	return nil
}

// Pause disarms the controller; the loop stays alive so Resume is cheap and
// the elapsed interval survives.
func (s *Supervisor) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Running {
		return fmt.Errorf("%w: pause while %s", ErrInvalidTransition, s.state)
	}
	s.controller.Disarm()
	s.state = Paused
	s.log.Info("session paused")
	return nil
}

// Resume rearms the controller, preserving accumulated time and distance.
func (s *Supervisor) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Paused {
		return fmt.Errorf("%w: resume while %s", ErrInvalidTransition, s.state)
	}
	if err := s.controller.Rearm(); err != nil {
		return err
	}
	s.state = Running
	s.log.Info("session resumed")
	return nil
}

// Stop shuts the loop down and waits for any in-flight capture to complete,
// then disarms the controller and closes the journal row. Stopping a
// supervisor with no active session is a no-op.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if s.state == Idle || s.state == Stopped {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.controller.Disarm()
	s.state = Stopped
	if s.journal != nil && s.sessionID != 0 {
		if err := s.journal.EndSession(s.sessionID, s.clock()); err != nil {
			s.log.Error("session journal update failed", "error", err)
		}
	}
	s.log.Info("session stopped")
	return nil
}

// State returns the current session state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StartedAt returns the active session's start time, zero when no session
// is active.
func (s *Supervisor) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Running && s.state != Paused {
		return time.Time{}
	}
	return s.startedAt
}

func (s *Supervisor) policyName() string {
	if p := s.controller.Policy(); p != nil {
		return p.String()
	}
	return "none"
}

func (s *Supervisor) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		case _, ok := <-s.updates:
			if !ok {
				// Receiver closed; fall back to the ticker alone.
				s.updates = nil
				continue
			}
			s.tick()
		}
	}
}

func (s *Supervisor) tick() {
	if err := s.controller.Tick(s.clock()); err != nil {
		// The controller logged the specifics; the loop keeps running so
		// transient camera errors never kill the session.
		s.log.Warn("tick failed", "error", err)
	}
}
