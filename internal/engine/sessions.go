package engine

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/sadopc/tempo/internal/store"
)

const maxNameLength = 100

func validateName(field, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &ValidationError{Field: field, Message: "required"}
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", &ValidationError{Field: field, Message: fmt.Sprintf("must be at most %d characters", maxNameLength)}
	}
	return name, nil
}

func validatePriority(field string, p store.Priority) (store.Priority, error) {
	if p == "" {
		return store.PriorityMedium, nil
	}
	if !p.Valid() {
		return "", &ValidationError{Field: field, Message: fmt.Sprintf("unknown priority %q", p)}
	}
	return p, nil
}

// CreateSession validates the plan, stores a pending session and makes its
// first task the active one. The session is committed to the remote in the
// background.
func (c *Controller) CreateSession(name string, specs []store.TaskSpec) (*store.Session, error) {
	name, err := validateName("name", name)
	if err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return nil, &ValidationError{Field: "tasks", Message: "at least one task is required"}
	}
	tasks := make([]store.TaskSpec, len(specs))
	var total int64
	for i, spec := range specs {
		field := fmt.Sprintf("tasks[%d]", i)
		if spec.Name, err = validateName(field+".name", spec.Name); err != nil {
			return nil, err
		}
		if spec.Priority, err = validatePriority(field+".priority", spec.Priority); err != nil {
			return nil, err
		}
		if spec.PlannedMinutes <= 0 {
			return nil, &ValidationError{Field: field + ".plannedDurationMinutes", Message: "must be positive"}
		}
		tasks[i] = spec
		total += spec.PlannedSeconds()
	}

	c.mu.Lock()
	now := c.now()
	s := &store.Session{
		ID:                  uuid.NewString(),
		Name:                name,
		Tasks:               tasks,
		Status:              store.SessionPending,
		TotalPlannedSeconds: total,
		CreatedAt:           now,
		UpdatedAt:           &now,
	}
	c.putSessionLocked(s)
	c.markPendingLocked(s.ID, now)
	c.switchActiveLocked(store.ActiveFromSpec(s, 0))
	jobs := c.commitCreateLocked(s)
	out := s.Clone()
	c.mu.Unlock()

	c.dispatch(jobs)
	c.log.Info("session created", "session_id", out.ID, "name", out.Name, "tasks", len(out.Tasks))
	return out, nil
}

// SelectSession makes the current task of an open session the active one.
func (c *Controller) SelectSession(id string) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	if !ok {
		return c.logIgnored("select session", ignored(ErrSessionNotFound))
	}
	if s.Status.Terminal() {
		return c.logIgnored("select session", ignored(ErrSessionFinished))
	}
	if s.CurrentTaskIndex < 0 || s.CurrentTaskIndex >= len(s.Tasks) {
		return c.logIgnored("select session", ignored(ErrPastLastTask))
	}
	if c.cur != nil && c.cur.task.SessionID == id && c.cur.task.SessionIndex == s.CurrentTaskIndex {
		return Outcome{Applied: true}
	}
	c.switchActiveLocked(store.ActiveFromSpec(s, s.CurrentTaskIndex))
	return Outcome{Applied: true}
}

// LoadRemoteSession fetches a session from the remote and applies it. An
// open session becomes the active one.
func (c *Controller) LoadRemoteSession(ctx context.Context, id string) (*store.Session, error) {
	if c.remote == nil {
		return nil, ErrOffline
	}
	canon, err := c.remote.GetSession(ctx, id)
	if err != nil {
		c.observeAuth(err)
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconcileLocked(canon, c.now())
	s := c.sessions[canon.ID]
	if !s.Status.Terminal() && s.CurrentTaskIndex >= 0 && s.CurrentTaskIndex < len(s.Tasks) {
		if c.cur == nil || c.cur.task.SessionID != s.ID {
			c.switchActiveLocked(store.ActiveFromSpec(s, s.CurrentTaskIndex))
		}
	}
	return s.Clone(), nil
}

// CancelSession ends an open session without completing it. An empty id
// means the active session.
func (c *Controller) CancelSession(id, reason string) Outcome {
	c.mu.Lock()
	if id == "" {
		if s := c.activeSessionLocked(); s != nil {
			id = s.ID
		}
	}
	s, ok := c.sessions[id]
	if !ok {
		c.mu.Unlock()
		if id == "" {
			return c.logIgnored("cancel session", ignored(ErrNoActiveSession))
		}
		return c.logIgnored("cancel session", ignored(ErrSessionNotFound))
	}
	if s.Status.Terminal() {
		c.mu.Unlock()
		return c.logIgnored("cancel session", ignored(ErrSessionFinished))
	}

	if c.cur != nil && c.cur.task.SessionID == id {
		c.switchActiveLocked(nil)
	}
	now := c.now()
	s.Status = store.SessionCancelled
	s.CancelReason = strings.TrimSpace(reason)
	s.CompletedAt = &now
	s.UpdatedAt = &now
	c.runtimeLocked(id).completionHandled = true
	c.markPendingLocked(id, now)
	c.markDirty()
	jobs := c.commitProgressLocked(s, kindCommit)
	c.mu.Unlock()

	c.dispatch(jobs)
	c.log.Info("session cancelled", "session_id", id, "reason", s.CancelReason)
	return Outcome{Applied: true}
}
