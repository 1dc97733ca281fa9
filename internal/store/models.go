package store

import (
	"fmt"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
	TaskSkipped   TaskStatus = "skipped"
)

type SessionStatus string

const (
	SessionPending    SessionStatus = "pending"
	SessionInProgress SessionStatus = "in-progress"
	SessionCompleted  SessionStatus = "completed"
	SessionCancelled  SessionStatus = "cancelled"
)

// Terminal reports whether no further transitions are accepted.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionCancelled
}

type ReportStatus string

const (
	ReportCompleted ReportStatus = "completed"
	ReportDelayed   ReportStatus = "delayed"
	ReportPartial   ReportStatus = "partially-completed"
	ReportSkipped   ReportStatus = "skipped"
)

type Difficulty string

const (
	DifficultyEasier     Difficulty = "easier"
	DifficultyAsExpected Difficulty = "as-expected"
	DifficultyHarder     Difficulty = "harder"
)

// Execution is one run of a timer against a task. TaskIndex is the session
// task index, or -1 for a standalone task.
type Execution struct {
	StartedAt       time.Time `json:"startedAt"`
	EndedAt         time.Time `json:"endedAt"`
	DurationSeconds int64     `json:"durationSeconds"`
	Completed       bool      `json:"completed"`
	TaskIndex       int       `json:"taskIndex"`
}

type Task struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	Priority         Priority    `json:"priority"`
	PlannedSeconds   int64       `json:"plannedDurationSeconds"`
	Status           TaskStatus  `json:"status"`
	TimeSpentSeconds int64       `json:"timeSpentSeconds"`
	Executions       []Execution `json:"executions"`
	CreatedAt        time.Time   `json:"createdAt"`
	CompletedAt      *time.Time  `json:"completedAt,omitempty"`
	UpdatedAt        *time.Time  `json:"updatedAt,omitempty"`
}

// TaskSpec is the immutable template of one task inside a session.
type TaskSpec struct {
	Name           string   `json:"name"`
	Priority       Priority `json:"priority"`
	PlannedMinutes int      `json:"plannedDurationMinutes"`
}

func (s TaskSpec) PlannedSeconds() int64 {
	return int64(s.PlannedMinutes) * 60
}

type Session struct {
	ID                  string        `json:"id"`
	Name                string        `json:"name"`
	Tasks               []TaskSpec    `json:"tasks"`
	Status              SessionStatus `json:"status"`
	CurrentTaskIndex    int           `json:"currentTaskIndex"`
	CompletedTaskCount  int           `json:"completedTaskCount"`
	TotalPlannedSeconds int64         `json:"totalPlannedSeconds"`
	ActualTimeSeconds   int64         `json:"actualTimeSeconds"`
	Executions          []Execution   `json:"executions"`
	CancelReason        string        `json:"cancelReason,omitempty"`
	CreatedAt           time.Time     `json:"createdAt"`
	StartedAt           *time.Time    `json:"startedAt,omitempty"`
	CompletedAt         *time.Time    `json:"completedAt,omitempty"`
	UpdatedAt           *time.Time    `json:"updatedAt,omitempty"`
}

// Clone returns a deep copy so callers never share slices with the owner.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Tasks != nil {
		c.Tasks = append([]TaskSpec{}, s.Tasks...)
	}
	if s.Executions != nil {
		c.Executions = append([]Execution{}, s.Executions...)
	}
	c.StartedAt = cloneTime(s.StartedAt)
	c.CompletedAt = cloneTime(s.CompletedAt)
	c.UpdatedAt = cloneTime(s.UpdatedAt)
	return &c
}

func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.Executions != nil {
		c.Executions = append([]Execution{}, t.Executions...)
	}
	c.CompletedAt = cloneTime(t.CompletedAt)
	c.UpdatedAt = cloneTime(t.UpdatedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ActiveTask is the runtime projection of a standalone task or of the
// current session task spec. It is never a source of truth for counts.
type ActiveTask struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Priority       Priority `json:"priority"`
	PlannedSeconds int64    `json:"plannedDurationSeconds"`
	TimerSeconds   int64    `json:"timerSeconds"`
	SessionID      string   `json:"sessionId,omitempty"`
	SessionIndex   int      `json:"sessionIndex"`
}

func (a *ActiveTask) InSession() bool {
	return a != nil && a.SessionID != ""
}

// ActiveFromTask materializes a standalone task.
func ActiveFromTask(t *Task) *ActiveTask {
	return &ActiveTask{
		ID:             t.ID,
		Name:           t.Name,
		Priority:       t.Priority,
		PlannedSeconds: t.PlannedSeconds,
		TimerSeconds:   t.PlannedSeconds,
		SessionIndex:   -1,
	}
}

// ActiveFromSpec materializes the task at index of session s.
func ActiveFromSpec(s *Session, index int) *ActiveTask {
	spec := s.Tasks[index]
	return &ActiveTask{
		ID:             SessionTaskID(s.ID, index),
		Name:           spec.Name,
		Priority:       spec.Priority,
		PlannedSeconds: spec.PlannedSeconds(),
		TimerSeconds:   spec.PlannedSeconds(),
		SessionID:      s.ID,
		SessionIndex:   index,
	}
}

func SessionTaskID(sessionID string, index int) string {
	return fmt.Sprintf("%s-task-%d", sessionID, index)
}

type TimerState struct {
	Running          bool  `json:"isRunning"`
	RemainingSeconds int64 `json:"remainingSeconds"`
	TotalSeconds     int64 `json:"totalSeconds"`
}

type CompletionReport struct {
	ID                   string       `json:"id"`
	TaskID               string       `json:"taskId"`
	TaskName             string       `json:"taskName"`
	SessionID            string       `json:"sessionId,omitempty"`
	TaskIndex            int          `json:"taskIndex"`
	Status               ReportStatus `json:"status"`
	Skipped              bool         `json:"skipped"`
	CompletionPercentage int          `json:"completionPercentage"`
	PlannedMinutes       int          `json:"plannedDurationMinutes"`
	ActualMinutes        int          `json:"actualDurationMinutes"`
	DelayReason          string       `json:"delayReason,omitempty"`
	Difficulty           Difficulty   `json:"difficultyLevel"`
	Quality              int          `json:"qualityRating"`
	Notes                string       `json:"notes,omitempty"`
	NextActions          string       `json:"nextActions,omitempty"`
	ReportedAt           time.Time    `json:"reportedAt"`
}

// State is the locally persisted snapshot of the engine.
type State struct {
	Tasks                   []Task      `json:"tasks"`
	Sessions                []Session   `json:"sessions"`
	ActiveTask              *ActiveTask `json:"activeTask"`
	ActiveSession           *Session    `json:"activeSession"`
	CurrentSessionTaskIndex int         `json:"currentSessionTaskIndex"`
	Timer                   TimerState  `json:"timer"`
	LastSavedAt             *time.Time  `json:"lastSavedAt,omitempty"`

	// SyncPending maps a session ID to the moment its local changes first
	// went unconfirmed by the remote.
	SyncPending map[string]time.Time `json:"syncPending,omitempty"`
}

type Setting struct {
	Key   string
	Value string
}

// ReportFilter is used to filter completion reports in queries.
type ReportFilter struct {
	SessionID string
	From      *time.Time
	To        *time.Time
	Limit     int
}

// DailySummary aggregates reported work per day.
type DailySummary struct {
	Date           string
	Reports        int
	PlannedMinutes int64
	ActualMinutes  int64
	Skipped        int
}
