// Package countdown runs the single cancellable countdown a room may have.
//
// A Scheduler is owned by one room. Start, Stop, Skip, Active and Shutdown must
// be called from the room's serialized execution context; the only work done
// elsewhere is waiting on the clock, and its result is handed back through the
// Dispatcher before touching any state.
package countdown

import (
	"time"

	"github.com/jason-s-yu/roomsim/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// Dispatcher schedules fn on the owning room's execution context.
type Dispatcher func(fn func())

// ChangeFunc is called whenever a countdown is attached (non-nil) or detached (nil).
type ChangeFunc func(cd *models.Countdown)

// Scheduler holds at most one running countdown.
type Scheduler struct {
	clock    clockwork.Clock
	dispatch Dispatcher
	onChange ChangeFunc
	log      logrus.FieldLogger

	generation   uint64
	lastID       int
	active       *models.Countdown
	endsAt       time.Time
	continuation func()
	timer        clockwork.Timer
	cancel       chan struct{}
}

// New creates an idle scheduler.
func New(clock clockwork.Clock, dispatch Dispatcher, onChange ChangeFunc, log logrus.FieldLogger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if onChange == nil {
		onChange = func(*models.Countdown) {}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{
		clock:    clock,
		dispatch: dispatch,
		onChange: onChange,
		log:      log,
	}
}

// Start supersedes any running countdown (without running its continuation),
// attaches a new countdown of the given kind and duration and arms its timer.
// continuation runs on the room's execution context when the countdown elapses
// or is skipped.
func (s *Scheduler) Start(kind models.CountdownKind, d time.Duration, continuation func()) models.Countdown {
	s.Stop()

	s.generation++
	s.lastID++
	s.active = &models.Countdown{ID: s.lastID, Kind: kind, TimeRemaining: d}
	s.endsAt = s.clock.Now().Add(d)
	s.continuation = continuation
	s.cancel = make(chan struct{})

	s.onChange(s.active.Clone())

	gen := s.generation
	s.timer = s.clock.NewTimer(d)
	go func(timer clockwork.Timer, cancel <-chan struct{}) {
		select {
		case <-timer.Chan():
			s.dispatch(func() { s.elapse(gen) })
		case <-cancel:
		}
	}(s.timer, s.cancel)

	s.log.WithFields(logrus.Fields{
		"countdown_id": s.active.ID,
		"kind":         kind,
		"duration":     d,
	}).Debug("countdown started")

	return *s.active
}

// Stop cancels the running countdown without running its continuation. It
// reports whether a countdown was running.
func (s *Scheduler) Stop() bool {
	if s.active == nil {
		return false
	}
	id := s.active.ID
	s.detach()
	s.onChange(nil)
	s.log.WithField("countdown_id", id).Debug("countdown stopped")
	return true
}

// Skip resolves the running countdown immediately, as if it had elapsed.
func (s *Scheduler) Skip() bool {
	if s.active == nil {
		return false
	}
	s.complete("countdown skipped")
	return true
}

// Active returns the running countdown with its remaining time recomputed.
func (s *Scheduler) Active() *models.Countdown {
	if s.active == nil {
		return nil
	}
	out := s.active.Clone()
	out.TimeRemaining = s.endsAt.Sub(s.clock.Now())
	if out.TimeRemaining < 0 {
		out.TimeRemaining = 0
	}
	return out
}

// Running reports whether a countdown is attached.
func (s *Scheduler) Running() bool {
	return s.active != nil
}

// Shutdown cancels the running countdown without notifying anyone.
func (s *Scheduler) Shutdown() {
	if s.active != nil {
		s.detach()
	}
}

func (s *Scheduler) elapse(gen uint64) {
	if gen != s.generation || s.active == nil {
		s.log.WithField("generation", gen).Debug("discarding stale countdown delivery")
		return
	}
	s.complete("countdown elapsed")
}

func (s *Scheduler) complete(msg string) {
	id := s.active.ID
	continuation := s.continuation
	s.detach()
	s.onChange(nil)
	s.log.WithField("countdown_id", id).Debug(msg)
	if continuation != nil {
		continuation()
	}
}

// detach clears the countdown and invalidates any delivery already in flight.
func (s *Scheduler) detach() {
	stopAndDrainTimer(s.timer)
	close(s.cancel)
	s.timer = nil
	s.cancel = nil
	s.active = nil
	s.continuation = nil
	s.generation++
}

func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
