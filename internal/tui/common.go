package tui

import (
	"errors"
	"fmt"
	"time"

	"github.com/sadopc/tempo/internal/engine"
	"github.com/sadopc/tempo/internal/store"
)

// viewState represents the currently active view.
type viewState int

const (
	viewDashboard viewState = iota
	viewTasks
	viewSessions
	viewReports
	viewSettings
)

var viewNames = []string{"Dashboard", "Tasks", "Sessions", "Reports", "Settings"}

// Store is the local data the views read besides the controller.
// *store.Store implements it.
type Store interface {
	GetAllSettings() ([]store.Setting, error)
	GetSetting(key string) (string, error)
	GetSettingInt(key string, fallback int) int
	SetSetting(key, value string) error
	GetDailySummary(from, to time.Time) ([]store.DailySummary, error)
	GetTodayTotal() (int64, error)
}

// --- Messages ---

type statusMsg struct {
	text    string
	isError bool
}

type tickMsg time.Time

type exportDoneMsg struct {
	path string
}

// refreshMsg asks every view to reload after the controller changed.
type refreshMsg struct{}

// AuthFailedMsg is sent by the program owner when the remote rejects the
// configured token.
type AuthFailedMsg struct {
	Err error
}

// --- Helpers ---

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func formatSeconds(secs int64) string {
	return formatDuration(time.Duration(secs) * time.Second)
}

// formatCountdown drops the hour field for short timers.
func formatCountdown(secs int64) string {
	if secs < 0 {
		secs = 0
	}
	if secs >= 3600 {
		return formatSeconds(secs)
	}
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

func formatMinutes(mins int64) string {
	if mins < 60 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%dh%02dm", mins/60, mins%60)
}

// outcomeStatus turns an ignored operation into a status line. Applied
// outcomes produce applied.
func outcomeStatus(out engine.Outcome, applied string) statusMsg {
	if out.Applied {
		if out.SessionCompleted {
			return statusMsg{text: "Session complete! \a"}
		}
		return statusMsg{text: applied}
	}
	return statusMsg{text: reasonText(out.Reason), isError: true}
}

func reasonText(err error) string {
	switch {
	case err == nil:
		return "Nothing to do"
	case errors.Is(err, engine.ErrNoActiveTask):
		return "No active task. Pick one in Tasks or Sessions."
	case errors.Is(err, engine.ErrNoActiveSession):
		return "No active session"
	case errors.Is(err, engine.ErrTimerRunning):
		return "Timer already running"
	case errors.Is(err, engine.ErrTimerNotRunning):
		return "Timer is not running"
	case errors.Is(err, engine.ErrSessionFinished):
		return "Session already finished"
	default:
		return err.Error()
	}
}

func errStatus(format string, err error) statusMsg {
	return statusMsg{text: fmt.Sprintf(format, err), isError: true}
}
