package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sadopc/tempo/internal/remote"
	"github.com/sadopc/tempo/internal/store"
)

// commitJob performs one remote call and applies its result.
type commitJob func(ctx context.Context) error

type commitKind int

const (
	kindCreate commitKind = iota
	kindCommit
	// kindFollowUp commits are retries. A stale answer to one never
	// schedules another.
	kindFollowUp
)

// SyncStatus is the remote sync state of one session.
type SyncStatus struct {
	SessionID    string
	Pending      bool
	InFlight     bool
	Stale        bool
	PendingSince time.Time
	LastAttempt  time.Time
	LastSynced   time.Time
	LastError    string
}

func (c *Controller) markPendingLocked(id string, now time.Time) {
	if c.remote == nil {
		return
	}
	rt := c.runtimeLocked(id)
	if !rt.pending {
		rt.pending = true
		rt.pendingSince = now
	}
}

// commitLocked builds a job for call unless a commit for the session is
// already in flight. In that case the session stays pending and the answer
// to the in-flight commit decides whether a follow-up is needed.
func (c *Controller) commitLocked(id string, kind commitKind, call func(ctx context.Context) (*store.Session, error)) []commitJob {
	if c.remote == nil {
		return nil
	}
	rt := c.runtimeLocked(id)
	if rt.commitInFlight {
		c.markPendingLocked(id, c.now())
		return nil
	}
	rt.commitInFlight = true
	rt.lastAttempt = c.now()
	return []commitJob{func(ctx context.Context) error {
		canon, err := call(ctx)
		return c.applyCommit(id, kind, canon, err)
	}}
}

func (c *Controller) commitCreateLocked(s *store.Session) []commitJob {
	snap := s.Clone()
	return c.commitLocked(s.ID, kindCreate, func(ctx context.Context) (*store.Session, error) {
		return c.remote.CreateSession(ctx, snap)
	})
}

// commitProgressLocked sends the session's current progress. A session the
// remote has never seen is created instead.
func (c *Controller) commitProgressLocked(s *store.Session, kind commitKind) []commitJob {
	id := s.ID
	patch := remote.PatchFor(s)
	snap := s.Clone()
	return c.commitLocked(id, kind, func(ctx context.Context) (*store.Session, error) {
		canon, err := c.remote.UpdateSession(ctx, id, patch)
		if errors.Is(err, remote.ErrNotFound) {
			return c.remote.CreateSession(ctx, snap)
		}
		return canon, err
	})
}

func (c *Controller) commitCompletionLocked(s *store.Session, index int, body remote.TaskCompletion) []commitJob {
	id := s.ID
	return c.commitLocked(id, kindCommit, func(ctx context.Context) (*store.Session, error) {
		return c.remote.CompleteTask(ctx, id, index, body)
	})
}

func (c *Controller) applyCommit(id string, kind commitKind, canon *store.Session, err error) error {
	c.mu.Lock()
	rt := c.runtimeLocked(id)
	rt.commitInFlight = false
	now := c.now()
	rt.lastAttempt = now

	if err != nil {
		rt.lastErr = err
		c.markPendingLocked(id, now)
		c.mu.Unlock()
		c.log.Warn("remote commit failed", "session_id", id, "error", err)
		c.observeAuth(err)
		return fmt.Errorf("sync session %s: %w", id, err)
	}

	var jobs []commitJob
	if !c.reconcileLocked(canon, now) && kind != kindFollowUp {
		if s, ok := c.sessions[id]; ok {
			jobs = c.commitProgressLocked(s, kindFollowUp)
		}
	}
	c.mu.Unlock()
	c.dispatch(jobs)
	return nil
}

// reconcileLocked applies a canonical session from the remote. It reports
// false when the canonical copy is behind local progress; the local copy is
// then kept and stays pending.
func (c *Controller) reconcileLocked(canon *store.Session, now time.Time) bool {
	if canon == nil {
		return false
	}
	local, ok := c.sessions[canon.ID]
	if !ok {
		c.putSessionLocked(canon.Clone())
		c.markDirty()
		return true
	}
	rt := c.runtimeLocked(canon.ID)
	rt.lastErr = nil
	if behind(canon, local) {
		c.markPendingLocked(canon.ID, now)
		c.log.Debug("remote session behind local",
			"session_id", canon.ID,
			"remote_completed", canon.CompletedTaskCount,
			"local_completed", local.CompletedTaskCount)
		return false
	}

	merged := mergeCanonical(canon, local)
	c.sessions[canon.ID] = merged
	rt.lastSynced = now
	if merged.ActualTimeSeconds > canon.ActualTimeSeconds {
		// Elapsed time only travels with progress updates; the next
		// autosave or sync carries it.
		c.markPendingLocked(canon.ID, now)
	} else {
		rt.pending = false
		rt.pendingSince = time.Time{}
	}
	c.markDirty()

	if c.cur != nil && c.cur.task.SessionID == merged.ID {
		switch {
		case merged.Status.Terminal():
			c.switchActiveLocked(nil)
			rt.completionHandled = true
		case merged.CurrentTaskIndex != c.cur.task.SessionIndex &&
			merged.CurrentTaskIndex >= 0 && merged.CurrentTaskIndex < len(merged.Tasks):
			c.switchActiveLocked(store.ActiveFromSpec(merged, merged.CurrentTaskIndex))
		}
	}
	return true
}

// behind reports whether canon is missing advancement that local has.
// Elapsed time is not compared: a task completion never carries it.
func behind(canon, local *store.Session) bool {
	if canon.CompletedTaskCount < local.CompletedTaskCount {
		return true
	}
	if canon.CurrentTaskIndex < local.CurrentTaskIndex {
		return true
	}
	return statusRank(canon.Status) < statusRank(local.Status)
}

// mergeCanonical takes canon as the new local copy but keeps the elapsed
// time, executions and timestamps the remote has not seen yet.
func mergeCanonical(canon, local *store.Session) *store.Session {
	merged := canon.Clone()
	merged.ActualTimeSeconds = max(canon.ActualTimeSeconds, local.ActualTimeSeconds)
	if len(merged.Executions) < len(local.Executions) {
		merged.Executions = append([]store.Execution(nil), local.Executions...)
	}
	if merged.StartedAt == nil && local.StartedAt != nil {
		t := *local.StartedAt
		merged.StartedAt = &t
	}
	if merged.CompletedAt == nil && local.CompletedAt != nil && merged.Status.Terminal() {
		t := *local.CompletedAt
		merged.CompletedAt = &t
	}
	return merged
}

func statusRank(s store.SessionStatus) int {
	switch s {
	case store.SessionPending:
		return 0
	case store.SessionInProgress:
		return 1
	}
	return 2
}

// AutoSave commits the progress of every open session with unsynced local
// changes. Finished sessions are left to Sync.
func (c *Controller) AutoSave(ctx context.Context) error {
	return c.syncPending(ctx, false)
}

// Sync commits every session with unsynced local changes, finished ones
// included, and returns the failures.
func (c *Controller) Sync(ctx context.Context) error {
	if c.remote == nil {
		return ErrOffline
	}
	return c.syncPending(ctx, true)
}

func (c *Controller) syncPending(ctx context.Context, includeFinished bool) error {
	c.mu.Lock()
	var jobs []commitJob
	for _, id := range c.sessionOrder {
		s := c.sessions[id]
		rt := c.runtimeLocked(id)
		if !rt.pending || rt.commitInFlight {
			continue
		}
		if s.Status.Terminal() && !includeFinished {
			continue
		}
		jobs = append(jobs, c.commitProgressLocked(s, kindFollowUp)...)
	}
	c.mu.Unlock()

	var errs []error
	for _, job := range jobs {
		c.wg.Add(1)
		err := job(ctx)
		c.wg.Done()
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Controller) SyncStatus(id string) (SyncStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sessions[id]; !ok {
		return SyncStatus{}, false
	}
	return c.syncStatusLocked(id), true
}

// SyncStatuses lists the sync state of every session in creation order.
func (c *Controller) SyncStatuses() []SyncStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SyncStatus, 0, len(c.sessionOrder))
	for _, id := range c.sessionOrder {
		out = append(out, c.syncStatusLocked(id))
	}
	return out
}

func (c *Controller) syncStatusLocked(id string) SyncStatus {
	rt := c.runtimeLocked(id)
	st := SyncStatus{
		SessionID:    id,
		Pending:      rt.pending,
		InFlight:     rt.commitInFlight,
		PendingSince: rt.pendingSince,
		LastAttempt:  rt.lastAttempt,
		LastSynced:   rt.lastSynced,
	}
	if rt.lastErr != nil {
		st.LastError = rt.lastErr.Error()
	}
	if rt.pending && c.now().Sub(rt.pendingSince) > c.iv.SyncStaleAfter {
		st.Stale = true
	}
	return st
}
