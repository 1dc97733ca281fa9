// Package timer implements the countdown bound to the active task.
//
// The timer does no scheduling of its own. Whoever drives it calls Tick once
// per second with the generation returned by Start or Resume; ticks carrying
// an older generation are ignored, so a tick scheduled before a pause, reset
// or restart can never act on the new state.
package timer

import (
	"errors"

	"github.com/sadopc/tempo/internal/store"
)

var (
	ErrInvalidDuration = errors.New("timer duration must be positive")
	ErrRunning         = errors.New("timer already running")
	ErrNotRunning      = errors.New("timer not running")
	ErrNothingLeft     = errors.New("timer has no time remaining")
)

type Timer struct {
	total     int64
	remaining int64
	running   bool

	// gen identifies the current run; bumped on every state change.
	gen uint64
	// segment is the remaining count when the current run began.
	segment int64
	// expired latches after the expiry event has been emitted once.
	expired bool
}

// New returns an idle timer sized to total seconds.
func New(total int64) *Timer {
	if total < 0 {
		total = 0
	}
	return &Timer{total: total, remaining: total, segment: total}
}

// Start begins a fresh countdown of total seconds.
func (t *Timer) Start(total int64) (uint64, error) {
	if total <= 0 {
		return 0, ErrInvalidDuration
	}
	if t.running {
		return 0, ErrRunning
	}
	t.total = total
	t.remaining = total
	t.running = true
	t.expired = false
	t.segment = total
	t.gen++
	return t.gen, nil
}

// Resume continues a paused countdown from its remaining seconds.
func (t *Timer) Resume() (uint64, error) {
	if t.running {
		return 0, ErrRunning
	}
	if t.remaining <= 0 {
		return 0, ErrNothingLeft
	}
	t.running = true
	t.segment = t.remaining
	t.gen++
	return t.gen, nil
}

// Tick decrements the countdown by one second. It reports true exactly once
// per run, on the tick that brings remaining to zero.
func (t *Timer) Tick(gen uint64) bool {
	if !t.running || gen != t.gen {
		return false
	}
	if t.remaining > 0 {
		t.remaining--
	}
	if t.remaining > 0 {
		return false
	}
	t.running = false
	t.gen++
	if t.expired {
		return false
	}
	t.expired = true
	return true
}

// Pause stops the countdown and returns the seconds elapsed in the run that
// just ended.
func (t *Timer) Pause() (int64, error) {
	if !t.running {
		return 0, ErrNotRunning
	}
	t.running = false
	t.gen++
	return t.segment - t.remaining, nil
}

// RunSeconds returns the seconds counted since the last Start or Resume. It
// keeps its value after the run ends by pause or expiry.
func (t *Timer) RunSeconds() int64 {
	return t.segment - t.remaining
}

// Reset restores the full duration and stops the timer. Pending ticks are
// invalidated.
func (t *Timer) Reset() {
	t.remaining = t.total
	t.segment = t.total
	t.running = false
	t.expired = false
	t.gen++
}

func (t *Timer) Running() bool { return t.running }

func (t *Timer) Remaining() int64 { return t.remaining }

func (t *Timer) Total() int64 { return t.total }

func (t *Timer) State() store.TimerState {
	return store.TimerState{
		Running:          t.running,
		RemainingSeconds: t.remaining,
		TotalSeconds:     t.total,
	}
}

// Load restores a persisted state. The timer always comes back paused.
func Load(st store.TimerState) *Timer {
	t := New(st.TotalSeconds)
	if st.RemainingSeconds >= 0 && st.RemainingSeconds <= st.TotalSeconds {
		t.remaining = st.RemainingSeconds
		t.segment = st.RemainingSeconds
	}
	return t
}
