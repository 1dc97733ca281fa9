package engine

import (
	"github.com/sadopc/tempo/internal/remote"
	"github.com/sadopc/tempo/internal/report"
	"github.com/sadopc/tempo/internal/store"
	"github.com/sadopc/tempo/internal/timer"
)

// SubmitReport records feedback for the active task and completes it. A
// session task advances its session; a standalone task is closed.
func (c *Controller) SubmitReport(f report.Form) (Outcome, error) {
	c.mu.Lock()
	if c.cur == nil {
		c.mu.Unlock()
		return c.logIgnored("submit report", ignored(ErrNoActiveTask)), nil
	}
	out, jobs, err := c.completeLocked(f, f.Status == store.ReportSkipped)
	c.mu.Unlock()
	c.dispatch(jobs)
	return c.logIgnored("submit report", out), err
}

// CompleteCurrentTask completes the current task of the active session and
// advances to the next one, or finishes the session after the last.
func (c *Controller) CompleteCurrentTask(f report.Form) (Outcome, error) {
	c.mu.Lock()
	if !c.cur.sessionTask() {
		c.mu.Unlock()
		return c.logIgnored("complete task", ignored(ErrNoActiveSession)), nil
	}
	out, jobs, err := c.completeLocked(f, f.Status == store.ReportSkipped)
	c.mu.Unlock()
	c.dispatch(jobs)
	return c.logIgnored("complete task", out), err
}

// Skip records a minimal skipped report and moves on like a completion.
func (c *Controller) Skip() Outcome {
	c.mu.Lock()
	if c.cur == nil {
		c.mu.Unlock()
		return c.logIgnored("skip", ignored(ErrNoActiveTask))
	}
	out, jobs, _ := c.completeLocked(report.Form{Status: store.ReportSkipped}, true)
	c.mu.Unlock()
	c.dispatch(jobs)
	return c.logIgnored("skip", out)
}

func (a *active) sessionTask() bool {
	return a != nil && a.task.InSession()
}

func (c *Controller) completeLocked(f report.Form, skip bool) (Outcome, []commitJob, error) {
	if c.cur.task.InSession() {
		return c.completeSessionTaskLocked(f, skip)
	}
	out, err := c.completeStandaloneLocked(f, skip)
	return out, nil, err
}

func (c *Controller) completeSessionTaskLocked(f report.Form, skip bool) (Outcome, []commitJob, error) {
	cur := c.cur
	s, ok := c.sessions[cur.task.SessionID]
	if !ok {
		return ignored(ErrSessionNotFound), nil, nil
	}
	if s.Status.Terminal() {
		return ignored(ErrSessionFinished), nil, nil
	}
	idx := s.CurrentTaskIndex
	if idx < 0 || idx >= len(s.Tasks) {
		return ignored(ErrPastLastTask), nil, nil
	}
	if !skip {
		if err := report.Validate(f); err != nil {
			return Outcome{}, nil, err
		}
	}

	if s.Status == store.SessionPending {
		c.beginSessionLocked(s)
	}
	if cur.timer.Running() {
		if _, err := cur.timer.Pause(); err == nil {
			c.recordRunLocked(!skip)
		}
	}
	c.stopSchedulesLocked()

	now := c.now()
	r := c.buildReportLocked(cur.task, f, skip)
	c.appendReportLocked(r)

	if s.CompletedTaskCount < len(s.Tasks) {
		s.CompletedTaskCount++
	}
	out := Outcome{Applied: true, Report: &r}
	if idx+1 < len(s.Tasks) {
		s.CurrentTaskIndex = idx + 1
		next := store.ActiveFromSpec(s, s.CurrentTaskIndex)
		c.cur = &active{task: next, timer: timer.New(next.TimerSeconds)}
		out.Advanced = true
	} else {
		c.finishSessionLocked(s)
		c.cur = nil
		out.SessionCompleted = true
	}
	s.UpdatedAt = &now
	c.markPendingLocked(s.ID, now)
	c.markDirty()

	c.log.Info("session task finished",
		"session_id", s.ID, "index", idx, "status", r.Status,
		"completed", s.CompletedTaskCount, "of", len(s.Tasks))
	return out, c.commitCompletionLocked(s, idx, completionBody(r)), nil
}

func (c *Controller) completeStandaloneLocked(f report.Form, skip bool) (Outcome, error) {
	cur := c.cur
	t, ok := c.tasks[cur.task.ID]
	if !ok {
		return ignored(ErrTaskNotFound), nil
	}
	if t.Status != store.TaskPending {
		return ignored(ErrTaskFinished), nil
	}
	if !skip {
		if err := report.Validate(f); err != nil {
			return Outcome{}, err
		}
	}

	if cur.timer.Running() {
		if _, err := cur.timer.Pause(); err == nil {
			c.recordRunLocked(!skip)
		}
	}
	c.stopSchedulesLocked()

	now := c.now()
	r := c.buildReportLocked(cur.task, f, skip)
	c.appendReportLocked(r)

	t.Status = store.TaskCompleted
	if skip {
		t.Status = store.TaskSkipped
	}
	t.CompletedAt = &now
	t.UpdatedAt = &now
	c.cur = nil
	c.markDirty()

	c.log.Info("task finished", "task_id", t.ID, "status", r.Status)
	return Outcome{Applied: true, Report: &r}, nil
}

// buildReportLocked assumes the form was validated.
func (c *Controller) buildReportLocked(a *store.ActiveTask, f report.Form, skip bool) store.CompletionReport {
	sub := report.SubjectFor(a, c.spentLocked(a))
	if skip {
		return report.Skip(sub, c.now())
	}
	r, err := report.Build(sub, f, c.now())
	if err != nil {
		c.log.Error("build report", "task", a.Name, "error", err)
	}
	return r
}

func (c *Controller) beginSessionLocked(s *store.Session) {
	now := c.now()
	s.Status = store.SessionInProgress
	s.StartedAt = &now
	s.UpdatedAt = &now
	c.markPendingLocked(s.ID, now)
	c.markDirty()
	c.log.Info("session started", "session_id", s.ID, "name", s.Name)
}

// finishSessionLocked moves s to completed. The index is left one past the
// last task.
func (c *Controller) finishSessionLocked(s *store.Session) {
	now := c.now()
	s.Status = store.SessionCompleted
	s.CompletedTaskCount = len(s.Tasks)
	s.CurrentTaskIndex = len(s.Tasks)
	s.CompletedAt = &now
	s.UpdatedAt = &now
	c.runtimeLocked(s.ID).completionHandled = true
	c.log.Info("session completed", "session_id", s.ID, "actual_seconds", s.ActualTimeSeconds)
}

func completionBody(r store.CompletionReport) remote.TaskCompletion {
	body := remote.TaskCompletion{
		IsCompleted:          !r.Skipped && r.Status != store.ReportPartial,
		CompletionPercentage: r.CompletionPercentage,
		Reason:               r.DelayReason,
		Notes:                r.Notes,
	}
	if r.Skipped {
		body.Reason = "skipped"
	}
	return body
}

// CheckCompletion finalizes the active session if it is over: every task is
// done, the planned total has elapsed, or nothing remains on the clock. It
// acts at most once per session.
func (c *Controller) CheckCompletion() Outcome {
	c.mu.Lock()
	out, jobs := c.checkCompletionLocked()
	c.mu.Unlock()
	c.dispatch(jobs)
	return out
}

func (c *Controller) scheduledCheck(token uint64) {
	c.mu.Lock()
	if token != c.epoch {
		c.mu.Unlock()
		return
	}
	_, jobs := c.checkCompletionLocked()
	c.mu.Unlock()
	c.dispatch(jobs)
}

func (c *Controller) checkCompletionLocked() (Outcome, []commitJob) {
	s := c.activeSessionLocked()
	if s == nil {
		return ignored(ErrNoActiveSession), nil
	}
	rt := c.runtimeLocked(s.ID)
	if rt.completionHandled {
		return ignored(ErrCompletionHandled), nil
	}
	if s.Status.Terminal() {
		rt.completionHandled = true
		return ignored(ErrSessionFinished), nil
	}

	elapsed := s.ActualTimeSeconds
	if c.cur.timer.Running() {
		elapsed += c.cur.timer.RunSeconds()
	}
	over := s.CompletedTaskCount >= len(s.Tasks) ||
		elapsed >= s.TotalPlannedSeconds ||
		c.smartRemainingLocked() <= 0
	if !over {
		return ignored(ErrNotOver), nil
	}

	cur := c.cur
	if cur.timer.Running() {
		if _, err := cur.timer.Pause(); err == nil {
			c.recordRunLocked(true)
		}
	}
	c.stopSchedulesLocked()

	out := Outcome{Applied: true, SessionCompleted: true}
	if s.CompletedTaskCount < len(s.Tasks) {
		r := c.buildReportLocked(cur.task, autoForm(c.spentLocked(cur.task), cur.task.PlannedSeconds), false)
		c.appendReportLocked(r)
		out.Report = &r
	}
	if s.Status == store.SessionPending {
		c.beginSessionLocked(s)
	}
	c.finishSessionLocked(s)
	c.cur = nil
	c.markPendingLocked(s.ID, c.now())
	c.markDirty()
	return out, c.commitProgressLocked(s, kindCommit)
}

// SmartRemainingTime returns the seconds left in the active context: the
// current task (live if running, else its full plan) plus every later task
// of the session.
func (c *Controller) SmartRemainingTime() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.smartRemainingLocked()
}

func (c *Controller) smartRemainingLocked() int64 {
	if c.cur == nil {
		return 0
	}
	var left int64
	if c.cur.timer.Running() {
		left = c.cur.timer.Remaining()
	} else {
		left = c.cur.task.PlannedSeconds
	}
	s := c.activeSessionLocked()
	if s == nil {
		return left
	}
	for i := c.cur.task.SessionIndex + 1; i < len(s.Tasks); i++ {
		left += s.Tasks[i].PlannedSeconds()
	}
	return left
}
