// Package engine is the session execution controller. It owns the active
// task, its timer and the lifecycle of work sessions, records completion
// reports, and keeps local progress and the remote session authority in
// step.
//
// Every state change happens under one mutex. Remote calls never run while
// it is held: operations collect them as jobs and hand them to the async
// runner once the lock is released, and results are applied in a second
// critical section.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sadopc/tempo/internal/remote"
	"github.com/sadopc/tempo/internal/report"
	"github.com/sadopc/tempo/internal/store"
	"github.com/sadopc/tempo/internal/timer"
)

// LocalStore persists the engine state and the report log.
type LocalStore interface {
	SaveState(st *store.State) error
	AppendReport(r *store.CompletionReport) error
}

// Remote is the session authority. *remote.Client implements it.
type Remote interface {
	CreateSession(ctx context.Context, s *store.Session) (*store.Session, error)
	GetSession(ctx context.Context, id string) (*store.Session, error)
	UpdateSession(ctx context.Context, id string, patch remote.SessionPatch) (*store.Session, error)
	CompleteTask(ctx context.Context, id string, index int, body remote.TaskCompletion) (*store.Session, error)
}

// AuthObserver is told about rejected credentials.
type AuthObserver interface {
	Unauthorized(err error)
}

// AuthObserverFunc adapts a func to AuthObserver.
type AuthObserverFunc func(err error)

func (f AuthObserverFunc) Unauthorized(err error) { f(err) }

type Intervals struct {
	Tick            time.Duration
	CompletionCheck time.Duration
	AutoSave        time.Duration
	LocalFlush      time.Duration
	// SyncStaleAfter marks a pending session stale in SyncStatus.
	SyncStaleAfter time.Duration
}

func DefaultIntervals() Intervals {
	return Intervals{
		Tick:            time.Second,
		CompletionCheck: 3 * time.Second,
		AutoSave:        5 * time.Minute,
		LocalFlush:      2 * time.Second,
		SyncStaleAfter:  15 * time.Minute,
	}
}

type Option func(*Controller)

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func WithScheduler(s Scheduler) Option {
	return func(c *Controller) { c.sched = s }
}

// WithAsync replaces the runner for remote calls. Tests pass a func that
// runs the job inline.
func WithAsync(run func(func())) Option {
	return func(c *Controller) { c.async = run }
}

// WithIntervals overrides the schedule. Zero fields keep their defaults.
func WithIntervals(iv Intervals) Option {
	return func(c *Controller) {
		def := c.iv
		if iv.Tick > 0 {
			def.Tick = iv.Tick
		}
		if iv.CompletionCheck > 0 {
			def.CompletionCheck = iv.CompletionCheck
		}
		if iv.AutoSave > 0 {
			def.AutoSave = iv.AutoSave
		}
		if iv.LocalFlush > 0 {
			def.LocalFlush = iv.LocalFlush
		}
		if iv.SyncStaleAfter > 0 {
			def.SyncStaleAfter = iv.SyncStaleAfter
		}
		c.iv = def
	}
}

func WithAuthObserver(o AuthObserver) Option {
	return func(c *Controller) { c.auth = o }
}

// WithAutoCompleteOnExpiry controls whether an expired timer records a report
// and advances on its own. When off the task waits for SubmitReport.
func WithAutoCompleteOnExpiry(on bool) Option {
	return func(c *Controller) { c.autoComplete = on }
}

// WithReports seeds the report log, usually from the local store.
func WithReports(reports []store.CompletionReport) Option {
	return func(c *Controller) { c.reports = report.NewLog(reports) }
}

// active is the runtime record of the task bound to the timer.
type active struct {
	task  *store.ActiveTask
	timer *timer.Timer
	gen   uint64
	// runStarted is the wall-clock start of the current run.
	runStarted time.Time
	// expired is set when the timer ran out and no report has been taken.
	expired bool
}

// sessionRuntime holds the per-session guards and sync bookkeeping.
// completionHandled is cleared whenever the session becomes the active one.
type sessionRuntime struct {
	completionHandled bool
	commitInFlight    bool

	pending      bool
	pendingSince time.Time
	lastAttempt  time.Time
	lastSynced   time.Time
	lastErr      error
}

type Controller struct {
	mu sync.Mutex

	log          *slog.Logger
	local        LocalStore
	remote       Remote
	auth         AuthObserver
	sched        Scheduler
	async        func(func())
	now          func() time.Time
	iv           Intervals
	autoComplete bool

	tasks        map[string]*store.Task
	taskOrder    []string
	sessions     map[string]*store.Session
	sessionOrder []string
	runtime      map[string]*sessionRuntime
	reports      *report.Log

	// heldPending keeps restored sync marks while there is no remote, so an
	// offline run does not drop them from the snapshot.
	heldPending map[string]time.Time

	cur *active
	// epoch tags scheduled ticks and checks. Bumped whenever the timer or
	// the active task changes so callbacks from an older context do nothing.
	epoch       uint64
	cancelTick  func()
	cancelCheck func()
	background  []func()

	dirty     bool
	lastSaved *time.Time

	ctx    context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// New builds a controller. remote may be nil, in which case sessions are
// tracked locally only.
func New(local LocalStore, rem Remote, opts ...Option) *Controller {
	ctx, stop := context.WithCancel(context.Background())
	c := &Controller{
		log:          slog.Default(),
		local:        local,
		remote:       rem,
		sched:        NewTickerScheduler(),
		async:        func(fn func()) { go fn() },
		now:          time.Now,
		iv:           DefaultIntervals(),
		autoComplete: true,
		tasks:        make(map[string]*store.Task),
		sessions:     make(map[string]*store.Session),
		runtime:      make(map[string]*sessionRuntime),
		reports:      report.NewLog(nil),
		ctx:          ctx,
		stop:         stop,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "engine")
	return c
}

// Start installs the background schedules: the autosave of pending sessions
// and the debounced local flush.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || len(c.background) > 0 {
		return
	}
	c.background = append(c.background,
		c.sched.Every(c.iv.AutoSave, func() {
			if err := c.AutoSave(c.ctx); err != nil {
				c.log.Warn("autosave failed", "error", err)
			}
		}),
		c.sched.Every(c.iv.LocalFlush, func() {
			if err := c.FlushLocal(); err != nil {
				c.log.Error("flush local state", "error", err)
			}
		}),
	)
}

// Close stops all schedules, waits for in-flight remote calls and flushes
// local state. A running timer is persisted as paused.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for _, cancel := range c.background {
		cancel()
	}
	c.background = nil
	if c.cur != nil && c.cur.timer.Running() {
		c.pauseLocked()
	}
	c.stopSchedulesLocked()
	c.mu.Unlock()

	c.wg.Wait()
	c.stop()
	return c.FlushLocal()
}

// dispatch runs remote jobs collected under the lock. It must be called
// after the lock is released.
func (c *Controller) dispatch(jobs []commitJob) {
	for _, job := range jobs {
		c.wg.Add(1)
		job := job
		c.async(func() {
			defer c.wg.Done()
			_ = job(c.ctx)
		})
	}
}

func (c *Controller) markDirty() { c.dirty = true }

// FlushLocal writes the state snapshot if anything changed since the last
// write.
func (c *Controller) FlushLocal() error {
	c.mu.Lock()
	if !c.dirty || c.local == nil {
		c.mu.Unlock()
		return nil
	}
	now := c.now()
	c.lastSaved = &now
	st := c.snapshotLocked()
	c.dirty = false
	c.mu.Unlock()

	if err := c.local.SaveState(&st); err != nil {
		c.mu.Lock()
		c.dirty = true
		c.mu.Unlock()
		return err
	}
	return nil
}

// Snapshot returns the persistable state. The timer is always reported as
// paused.
func (c *Controller) Snapshot() store.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() store.State {
	st := store.State{
		Tasks:    make([]store.Task, 0, len(c.taskOrder)),
		Sessions: make([]store.Session, 0, len(c.sessionOrder)),
	}
	for _, id := range c.taskOrder {
		st.Tasks = append(st.Tasks, *c.tasks[id].Clone())
	}
	for _, id := range c.sessionOrder {
		st.Sessions = append(st.Sessions, *c.sessions[id].Clone())
	}
	if c.cur != nil {
		a := *c.cur.task
		st.ActiveTask = &a
		st.Timer = c.cur.timer.State()
		st.Timer.Running = false
		if a.InSession() {
			if s, ok := c.sessions[a.SessionID]; ok {
				st.ActiveSession = s.Clone()
				st.CurrentSessionTaskIndex = s.CurrentTaskIndex
			}
		}
	}
	if c.lastSaved != nil {
		t := *c.lastSaved
		st.LastSavedAt = &t
	}
	for _, id := range c.sessionOrder {
		since, ok := c.heldPending[id]
		if rt := c.runtime[id]; rt != nil && rt.pending {
			since, ok = rt.pendingSince, true
		}
		if !ok {
			continue
		}
		if st.SyncPending == nil {
			st.SyncPending = make(map[string]time.Time)
		}
		st.SyncPending[id] = since
	}
	return st
}

// Restore replaces all engine state with st. Sessions with a saved sync mark
// keep it; other sessions that are still open are marked pending so the next
// sync reconciles them with the remote.
func (c *Controller) Restore(st store.State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopSchedulesLocked()
	c.tasks = make(map[string]*store.Task, len(st.Tasks))
	c.taskOrder = c.taskOrder[:0]
	for i := range st.Tasks {
		t := st.Tasks[i].Clone()
		if _, dup := c.tasks[t.ID]; !dup {
			c.taskOrder = append(c.taskOrder, t.ID)
		}
		c.tasks[t.ID] = t
	}
	c.sessions = make(map[string]*store.Session, len(st.Sessions))
	c.sessionOrder = c.sessionOrder[:0]
	c.runtime = make(map[string]*sessionRuntime, len(st.Sessions))
	for i := range st.Sessions {
		c.putSessionLocked(st.Sessions[i].Clone())
	}
	if st.ActiveSession != nil {
		if _, ok := c.sessions[st.ActiveSession.ID]; !ok {
			c.putSessionLocked(st.ActiveSession.Clone())
		}
	}
	c.heldPending = nil
	now := c.now()
	for _, id := range c.sessionOrder {
		since, marked := st.SyncPending[id]
		switch {
		case marked && c.remote == nil:
			if c.heldPending == nil {
				c.heldPending = make(map[string]time.Time)
			}
			c.heldPending[id] = since
		case marked:
			rt := c.runtimeLocked(id)
			rt.pending = true
			rt.pendingSince = since
		case !c.sessions[id].Status.Terminal():
			c.markPendingLocked(id, now)
		}
	}

	c.cur = nil
	if a := st.ActiveTask; a != nil && c.activeValidLocked(a) {
		t := timer.Load(st.Timer)
		if st.Timer.TotalSeconds <= 0 {
			t = timer.New(a.TimerSeconds)
		}
		task := *a
		c.cur = &active{task: &task, timer: t}
	}
	if st.LastSavedAt != nil {
		t := *st.LastSavedAt
		c.lastSaved = &t
	}
	c.dirty = true
}

// activeValidLocked reports whether a restored active task still points at
// something that can run.
func (c *Controller) activeValidLocked(a *store.ActiveTask) bool {
	if !a.InSession() {
		t, ok := c.tasks[a.ID]
		return ok && t.Status == store.TaskPending
	}
	s, ok := c.sessions[a.SessionID]
	if !ok || s.Status.Terminal() {
		return false
	}
	return a.SessionIndex == s.CurrentTaskIndex && a.SessionIndex >= 0 && a.SessionIndex < len(s.Tasks)
}

func (c *Controller) putSessionLocked(s *store.Session) {
	if _, ok := c.sessions[s.ID]; !ok {
		c.sessionOrder = append(c.sessionOrder, s.ID)
	}
	c.sessions[s.ID] = s
	if _, ok := c.runtime[s.ID]; !ok {
		c.runtime[s.ID] = &sessionRuntime{}
	}
}

func (c *Controller) runtimeLocked(id string) *sessionRuntime {
	rt, ok := c.runtime[id]
	if !ok {
		rt = &sessionRuntime{}
		c.runtime[id] = rt
	}
	return rt
}

// Tasks returns the standalone tasks in creation order.
func (c *Controller) Tasks() []store.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]store.Task, 0, len(c.taskOrder))
	for _, id := range c.taskOrder {
		out = append(out, *c.tasks[id].Clone())
	}
	return out
}

func (c *Controller) Task(id string) (*store.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tasks[id]
	return t.Clone(), ok
}

func (c *Controller) Sessions() []store.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]store.Session, 0, len(c.sessionOrder))
	for _, id := range c.sessionOrder {
		out = append(out, *c.sessions[id].Clone())
	}
	return out
}

func (c *Controller) Session(id string) (*store.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	return s.Clone(), ok
}

// ActiveTask returns a copy of the task bound to the timer, or nil.
func (c *Controller) ActiveTask() *store.ActiveTask {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return nil
	}
	a := *c.cur.task
	return &a
}

// ActiveSession returns a copy of the session owning the active task, or nil.
func (c *Controller) ActiveSession() *store.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeSessionLocked().Clone()
}

func (c *Controller) activeSessionLocked() *store.Session {
	if c.cur == nil || !c.cur.task.InSession() {
		return nil
	}
	return c.sessions[c.cur.task.SessionID]
}

func (c *Controller) TimerState() store.TimerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return store.TimerState{}
	}
	return c.cur.timer.State()
}

// AwaitingReport reports whether the active task's timer ran out and the
// task is waiting for SubmitReport.
func (c *Controller) AwaitingReport() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur != nil && c.cur.expired
}

// Reports returns every recorded completion report in append order.
func (c *Controller) Reports() []store.CompletionReport {
	return c.reports.All()
}

func (c *Controller) appendReportLocked(r store.CompletionReport) {
	c.reports.Append(r)
	if c.local == nil {
		return
	}
	if err := c.local.AppendReport(&r); err != nil {
		c.log.Error("persist report", "report_id", r.ID, "error", err)
	}
}

func (c *Controller) observeAuth(err error) {
	var ae *remote.AuthError
	if c.auth != nil && errors.As(err, &ae) {
		c.auth.Unauthorized(err)
	}
}
