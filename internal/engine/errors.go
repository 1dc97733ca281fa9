package engine

import (
	"errors"

	"github.com/sadopc/tempo/internal/report"
	"github.com/sadopc/tempo/internal/store"
)

// Reasons an operation was ignored. They come back in Outcome.Reason rather
// than as errors: misuse such as completing a finished session is a no-op.
var (
	ErrNoActiveTask      = errors.New("no active task")
	ErrNoActiveSession   = errors.New("no active session")
	ErrSessionFinished   = errors.New("session already finished")
	ErrPastLastTask      = errors.New("no task left in session")
	ErrTimerRunning      = errors.New("timer already running")
	ErrTimerNotRunning   = errors.New("timer not running")
	ErrTaskNotFound      = errors.New("task not found")
	ErrSessionNotFound   = errors.New("session not found")
	ErrTaskFinished      = errors.New("task already finished")
	ErrCompletionHandled = errors.New("session completion already handled")
	ErrNotOver           = errors.New("session not over")
)

// ErrOffline is returned by operations that need the remote authority when
// none is configured.
var ErrOffline = errors.New("remote sync disabled")

// ValidationError rejects input at the call boundary. Nothing is applied.
type ValidationError = report.ValidationError

// Outcome describes what an operation did.
type Outcome struct {
	Applied bool
	// Reason is set when Applied is false.
	Reason error

	// Report is the report recorded by the operation, if any.
	Report *store.CompletionReport
	// Advanced is set when a session moved on to its next task.
	Advanced bool
	// SessionCompleted is set when the operation finished the session.
	SessionCompleted bool
}

func ignored(reason error) Outcome {
	return Outcome{Reason: reason}
}
