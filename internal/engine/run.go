package engine

import (
	"github.com/sadopc/tempo/internal/report"
	"github.com/sadopc/tempo/internal/store"
	"github.com/sadopc/tempo/internal/timer"
)

// StartTimer starts or resumes the countdown of the active task. Starting
// the first task of a pending session starts the session.
func (c *Controller) StartTimer() Outcome {
	c.mu.Lock()
	out, jobs := c.startTimerLocked()
	c.mu.Unlock()
	c.dispatch(jobs)
	return c.logIgnored("start timer", out)
}

func (c *Controller) startTimerLocked() (Outcome, []commitJob) {
	cur := c.cur
	if cur == nil {
		return ignored(ErrNoActiveTask), nil
	}
	if cur.timer.Running() {
		return ignored(ErrTimerRunning), nil
	}

	var jobs []commitJob
	if cur.task.InSession() {
		s, ok := c.sessions[cur.task.SessionID]
		if !ok {
			return ignored(ErrSessionNotFound), nil
		}
		if s.Status.Terminal() {
			return ignored(ErrSessionFinished), nil
		}
		if s.Status == store.SessionPending {
			c.beginSessionLocked(s)
			jobs = append(jobs, c.commitProgressLocked(s, kindCommit)...)
		}
	}

	var (
		gen uint64
		err error
	)
	if rem := cur.timer.Remaining(); rem > 0 && rem < cur.timer.Total() {
		gen, err = cur.timer.Resume()
	} else {
		gen, err = cur.timer.Start(cur.task.TimerSeconds)
	}
	if err != nil {
		return ignored(err), jobs
	}
	cur.gen = gen
	cur.runStarted = c.now()
	cur.expired = false
	c.installSchedulesLocked()
	c.markDirty()
	return Outcome{Applied: true}, jobs
}

// PauseTimer stops the countdown and records the run.
func (c *Controller) PauseTimer() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return c.logIgnored("pause timer", ignored(ErrNoActiveTask))
	}
	if !c.cur.timer.Running() {
		return c.logIgnored("pause timer", ignored(ErrTimerNotRunning))
	}
	c.pauseLocked()
	return Outcome{Applied: true}
}

// ResetTimer restores the active task's full duration. Time already run is
// kept on the task as an unfinished execution.
func (c *Controller) ResetTimer() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return c.logIgnored("reset timer", ignored(ErrNoActiveTask))
	}
	if c.cur.timer.Running() {
		c.pauseLocked()
	}
	c.cur.timer.Reset()
	c.cur.expired = false
	c.stopSchedulesLocked()
	c.markDirty()
	return Outcome{Applied: true}
}

func (c *Controller) pauseLocked() {
	if _, err := c.cur.timer.Pause(); err != nil {
		return
	}
	c.recordRunLocked(false)
	c.stopSchedulesLocked()
	c.markDirty()
}

func (c *Controller) installSchedulesLocked() {
	c.stopSchedulesLocked()
	token := c.epoch
	c.cancelTick = c.sched.Every(c.iv.Tick, func() { c.tick(token) })
	if c.cur.task.InSession() {
		c.cancelCheck = c.sched.Every(c.iv.CompletionCheck, func() { c.scheduledCheck(token) })
	}
}

func (c *Controller) stopSchedulesLocked() {
	if c.cancelTick != nil {
		c.cancelTick()
		c.cancelTick = nil
	}
	if c.cancelCheck != nil {
		c.cancelCheck()
		c.cancelCheck = nil
	}
	c.epoch++
}

func (c *Controller) tick(token uint64) {
	c.mu.Lock()
	if token != c.epoch || c.cur == nil || !c.cur.timer.Tick(c.cur.gen) {
		c.mu.Unlock()
		return
	}
	jobs := c.expireLocked()
	c.mu.Unlock()
	c.dispatch(jobs)
}

// expireLocked handles the single expiry event of a run.
func (c *Controller) expireLocked() []commitJob {
	cur := c.cur
	c.stopSchedulesLocked()
	c.recordRunLocked(true)
	c.log.Info("timer expired", "task", cur.task.Name, "session_id", cur.task.SessionID)

	if !c.autoComplete {
		cur.expired = true
		c.markDirty()
		return nil
	}
	out, jobs, err := c.completeLocked(autoForm(c.spentLocked(cur.task), cur.task.PlannedSeconds), false)
	if err != nil {
		c.log.Error("complete expired task", "task", cur.task.Name, "error", err)
		return jobs
	}
	c.logIgnored("complete expired task", out)
	return jobs
}

// autoForm is the report form used when a run ends without user input.
func autoForm(actual, planned int64) report.Form {
	f := report.Form{Status: report.ResolveStatus(actual, planned)}
	if f.Status == store.ReportDelayed {
		f.DelayReason = "ran over planned time"
	}
	return f
}

// recordRunLocked appends the run that just ended to the owner of the
// active task.
func (c *Controller) recordRunLocked(completed bool) {
	cur := c.cur
	secs := cur.timer.RunSeconds()
	if secs <= 0 {
		return
	}
	now := c.now()
	ex := store.Execution{
		StartedAt:       cur.runStarted,
		EndedAt:         now,
		DurationSeconds: secs,
		Completed:       completed,
		TaskIndex:       cur.task.SessionIndex,
	}
	if cur.task.InSession() {
		s, ok := c.sessions[cur.task.SessionID]
		if !ok {
			return
		}
		s.Executions = append(s.Executions, ex)
		s.ActualTimeSeconds += secs
		s.UpdatedAt = &now
		c.markPendingLocked(s.ID, now)
	} else {
		t, ok := c.tasks[cur.task.ID]
		if !ok {
			return
		}
		t.Executions = append(t.Executions, ex)
		t.TimeSpentSeconds += secs
		t.UpdatedAt = &now
	}
	c.markDirty()
}

// spentLocked returns the seconds recorded against a task, plus the live
// run if the timer is going.
func (c *Controller) spentLocked(a *store.ActiveTask) int64 {
	var spent int64
	if a.InSession() {
		if s, ok := c.sessions[a.SessionID]; ok {
			for _, ex := range s.Executions {
				if ex.TaskIndex == a.SessionIndex {
					spent += ex.DurationSeconds
				}
			}
		}
	} else if t, ok := c.tasks[a.ID]; ok {
		spent = t.TimeSpentSeconds
	}
	if c.cur != nil && c.cur.task == a && c.cur.timer.Running() {
		spent += c.cur.timer.RunSeconds()
	}
	return spent
}

// switchActiveLocked binds a new task to the timer. A running timer is
// paused and its run recorded against the previous task first.
func (c *Controller) switchActiveLocked(a *store.ActiveTask) {
	prevSession := ""
	if c.cur != nil {
		if c.cur.timer.Running() {
			c.pauseLocked()
		}
		prevSession = c.cur.task.SessionID
	}
	c.stopSchedulesLocked()
	c.markDirty()
	if a == nil {
		c.cur = nil
		return
	}
	c.cur = &active{task: a, timer: timer.New(a.TimerSeconds)}
	if a.InSession() && a.SessionID != prevSession {
		c.runtimeLocked(a.SessionID).completionHandled = false
	}
}

func (c *Controller) logIgnored(op string, out Outcome) Outcome {
	if !out.Applied && out.Reason != nil {
		c.log.Warn("operation ignored", "op", op, "reason", out.Reason)
	}
	return out
}
