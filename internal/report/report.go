// Package report builds completion reports from the feedback form shown when
// a task finishes or is skipped, and keeps the append-only report log.
package report

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sadopc/tempo/internal/store"
)

// Default completion percentages for unfinished outcomes. More severe
// outcomes default lower.
const (
	DefaultDelayedPercentage = 90
	DefaultPartialPercentage = 60
	DefaultQuality           = 3
)

// ValidationError is returned when a form is rejected. Nothing is recorded.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Subject identifies what a report is about.
type Subject struct {
	TaskID         string
	TaskName       string
	SessionID      string
	TaskIndex      int
	PlannedSeconds int64
	ActualSeconds  int64
}

// SubjectFor builds a subject from the active task and the seconds spent on it.
func SubjectFor(a *store.ActiveTask, actualSeconds int64) Subject {
	return Subject{
		TaskID:         a.ID,
		TaskName:       a.Name,
		SessionID:      a.SessionID,
		TaskIndex:      a.SessionIndex,
		PlannedSeconds: a.PlannedSeconds,
		ActualSeconds:  actualSeconds,
	}
}

type Form struct {
	Status store.ReportStatus
	// CompletionPercentage is ignored for completed reports.
	CompletionPercentage *int
	DelayReason          string
	Difficulty           store.Difficulty
	Quality              int
	Notes                string
	NextActions          string
}

// Build validates the form and produces an immutable report.
func Build(sub Subject, f Form, now time.Time) (store.CompletionReport, error) {
	if err := Validate(f); err != nil {
		return store.CompletionReport{}, err
	}

	difficulty := f.Difficulty
	if difficulty == "" {
		difficulty = store.DifficultyAsExpected
	}
	quality := f.Quality
	if quality == 0 {
		quality = DefaultQuality
	}

	return store.CompletionReport{
		ID:                   uuid.NewString(),
		TaskID:               sub.TaskID,
		TaskName:             sub.TaskName,
		SessionID:            sub.SessionID,
		TaskIndex:            sub.TaskIndex,
		Status:               f.Status,
		Skipped:              f.Status == store.ReportSkipped,
		CompletionPercentage: Percentage(f.Status, f.CompletionPercentage),
		PlannedMinutes:       Minutes(sub.PlannedSeconds),
		ActualMinutes:        Minutes(sub.ActualSeconds),
		DelayReason:          strings.TrimSpace(f.DelayReason),
		Difficulty:           difficulty,
		Quality:              quality,
		Notes:                strings.TrimSpace(f.Notes),
		NextActions:          strings.TrimSpace(f.NextActions),
		ReportedAt:           now,
	}, nil
}

// Validate checks the conditional requirements of a form.
func Validate(f Form) error {
	switch f.Status {
	case store.ReportCompleted, store.ReportSkipped:
	case store.ReportDelayed, store.ReportPartial:
		if strings.TrimSpace(f.DelayReason) == "" {
			return &ValidationError{Field: "delayReason", Message: fmt.Sprintf("required when status is %s", f.Status)}
		}
	default:
		return &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", f.Status)}
	}

	switch f.Difficulty {
	case "", store.DifficultyEasier, store.DifficultyAsExpected, store.DifficultyHarder:
	default:
		return &ValidationError{Field: "difficultyLevel", Message: fmt.Sprintf("unknown difficulty %q", f.Difficulty)}
	}

	if f.Quality != 0 && (f.Quality < 1 || f.Quality > 5) {
		return &ValidationError{Field: "qualityRating", Message: "must be between 1 and 5"}
	}
	if p := f.CompletionPercentage; p != nil && f.Status != store.ReportCompleted && (*p < 0 || *p > 100) {
		return &ValidationError{Field: "completionPercentage", Message: "must be between 0 and 100"}
	}
	return nil
}

// Percentage resolves the completion percentage for a status.
func Percentage(status store.ReportStatus, supplied *int) int {
	switch status {
	case store.ReportCompleted:
		return 100
	case store.ReportSkipped:
		if supplied != nil {
			return *supplied
		}
		return 0
	}
	if supplied != nil {
		return *supplied
	}
	if status == store.ReportDelayed {
		return DefaultDelayedPercentage
	}
	return DefaultPartialPercentage
}

// Skip produces the minimal report recorded when a task is skipped.
func Skip(sub Subject, now time.Time) store.CompletionReport {
	return store.CompletionReport{
		ID:             uuid.NewString(),
		TaskID:         sub.TaskID,
		TaskName:       sub.TaskName,
		SessionID:      sub.SessionID,
		TaskIndex:      sub.TaskIndex,
		Status:         store.ReportSkipped,
		Skipped:        true,
		PlannedMinutes: Minutes(sub.PlannedSeconds),
		ActualMinutes:  Minutes(sub.ActualSeconds),
		Difficulty:     store.DifficultyAsExpected,
		Quality:        DefaultQuality,
		ReportedAt:     now,
	}
}

// ResolveStatus picks the outcome of a run that ended on its own: on time
// counts as completed, over time as delayed.
func ResolveStatus(actualSeconds, plannedSeconds int64) store.ReportStatus {
	if actualSeconds <= plannedSeconds {
		return store.ReportCompleted
	}
	return store.ReportDelayed
}

// Minutes rounds seconds to the nearest whole minute.
func Minutes(seconds int64) int {
	if seconds <= 0 {
		return 0
	}
	return int((seconds + 30) / 60)
}

// Log is the in-memory append-only report log.
type Log struct {
	mu      sync.RWMutex
	reports []store.CompletionReport
}

func NewLog(initial []store.CompletionReport) *Log {
	return &Log{reports: append([]store.CompletionReport(nil), initial...)}
}

func (l *Log) Append(r store.CompletionReport) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reports = append(l.reports, r)
}

// All returns a copy of every report in append order.
func (l *Log) All() []store.CompletionReport {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]store.CompletionReport(nil), l.reports...)
}

func (l *Log) ForSession(id string) []store.CompletionReport {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []store.CompletionReport
	for _, r := range l.reports {
		if r.SessionID == id {
			out = append(out, r)
		}
	}
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.reports)
}
