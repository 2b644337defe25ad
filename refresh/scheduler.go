// Package refresh implements the REGISTER auto-refresh timer of
// SPEC_FULL §4.8: a single cancellable entry that re-fires a REGISTER
// shortly before the server-granted expiration lapses.
package refresh

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Guard and Floor bound the refresh cadence: wake at
// max(expires-Guard, Floor).
const (
	Guard = 60 * time.Second
	Floor = 5 * time.Second
)

// Cadence returns the wait before the next refresh for a
// server-granted expiration.
func Cadence(expires time.Duration) time.Duration {
	wait := expires - Guard
	if wait < Floor {
		wait = Floor
	}
	return wait
}

// Scheduler owns one cancellable, single-entry refresh timer, grounded
// on the time.AfterFunc idiom used throughout the transaction timers.
type Scheduler struct {
	mu      sync.Mutex
	timer   *time.Timer
	running bool
	stopped bool
	log     zerolog.Logger
}

func NewScheduler(logger zerolog.Logger) *Scheduler {
	return &Scheduler{log: logger.With().Str("component", "refresh").Logger()}
}

// Schedule cancels any pending or in-flight-but-not-yet-started refresh
// and arms a new one at Cadence(expires). fn is invoked on its own
// goroutine when the timer fires; SPEC_FULL §4.8 permits at most one
// in-flight refresh, enforced by running.
func (s *Scheduler) Schedule(expires time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	wait := Cadence(expires)
	s.timer = time.AfterFunc(wait, func() { s.fire(fn) })
}

// ScheduleAfter arms a refresh after exactly wait, bypassing the
// Guard/Floor cadence calculation — used when a caller names an
// explicit refresh interval instead of a server-granted expiration
// (SPEC_FULL §4.10 enable_auto_refresh(aor, interval?)).
func (s *Scheduler) ScheduleAfter(wait time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(wait, func() { s.fire(fn) })
}

func (s *Scheduler) fire(fn func()) {
	s.mu.Lock()
	if s.stopped || s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	fn()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// Cancel stops any pending refresh without stopping the scheduler
// itself (used on unregister(), REGISTER with expires=0).
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Close cancels any pending refresh and prevents further scheduling
// (facade close, SPEC_FULL §5).
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
