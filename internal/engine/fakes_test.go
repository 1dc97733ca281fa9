package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sadopc/tempo/internal/logging"
	"github.com/sadopc/tempo/internal/remote"
	"github.com/sadopc/tempo/internal/store"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type fakeEntry struct {
	every     time.Duration
	next      time.Time
	fn        func()
	cancelled bool
}

// fakeScheduler fires entries in time order as the clock is advanced.
type fakeScheduler struct {
	mu      sync.Mutex
	clock   *fakeClock
	entries []*fakeEntry
}

func (s *fakeScheduler) Every(d time.Duration, fn func()) func() {
	s.mu.Lock()
	e := &fakeEntry{every: d, next: s.clock.Now().Add(d), fn: fn}
	s.entries = append(s.entries, e)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		e.cancelled = true
		s.mu.Unlock()
	}
}

func (s *fakeScheduler) Advance(d time.Duration) {
	end := s.clock.Now().Add(d)
	for {
		s.mu.Lock()
		var due *fakeEntry
		for _, e := range s.entries {
			if e.cancelled || e.next.After(end) {
				continue
			}
			if due == nil || e.next.Before(due.next) {
				due = e
			}
		}
		if due == nil {
			s.mu.Unlock()
			s.clock.Set(end)
			return
		}
		at := due.next
		due.next = at.Add(due.every)
		s.mu.Unlock()

		s.clock.Set(at)
		due.fn()
	}
}

// fireCancelled delivers one late callback from every cancelled entry, the
// way a ticker may after Stop.
func (s *fakeScheduler) fireCancelled() {
	s.mu.Lock()
	var fns []func()
	for _, e := range s.entries {
		if e.cancelled {
			fns = append(fns, e.fn)
		}
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type fakeLocal struct {
	mu      sync.Mutex
	saves   int
	last    store.State
	reports []store.CompletionReport
}

func (l *fakeLocal) SaveState(st *store.State) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.saves++
	l.last = *st
	return nil
}

func (l *fakeLocal) AppendReport(r *store.CompletionReport) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reports = append(l.reports, *r)
	return nil
}

// fakeRemote behaves like the session server.
type fakeRemote struct {
	mu       sync.Mutex
	sessions map[string]*store.Session

	failCreate   error
	failUpdate   error
	failComplete error

	creates   int
	updates   []remote.SessionPatch
	completes []int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{sessions: make(map[string]*store.Session)}
}

func (r *fakeRemote) CreateSession(_ context.Context, s *store.Session) (*store.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	if r.failCreate != nil {
		return nil, r.failCreate
	}
	if existing, ok := r.sessions[s.ID]; ok {
		return existing.Clone(), nil
	}
	r.sessions[s.ID] = s.Clone()
	return s.Clone(), nil
}

func (r *fakeRemote) GetSession(_ context.Context, id string) (*store.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("get: %w", remote.ErrNotFound)
	}
	return s.Clone(), nil
}

func (r *fakeRemote) UpdateSession(_ context.Context, id string, p remote.SessionPatch) (*store.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, p)
	if r.failUpdate != nil {
		return nil, r.failUpdate
	}
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("update: %w", remote.ErrNotFound)
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.StartedAt != nil {
		s.StartedAt = p.StartedAt
	}
	if p.CompletedAt != nil {
		s.CompletedAt = p.CompletedAt
	}
	if p.ActualTimeSeconds != nil {
		s.ActualTimeSeconds = *p.ActualTimeSeconds
	}
	if p.CompletedTaskCount != nil && *p.CompletedTaskCount > s.CompletedTaskCount {
		s.CompletedTaskCount = *p.CompletedTaskCount
	}
	if p.CurrentTaskIndex != nil {
		s.CurrentTaskIndex = *p.CurrentTaskIndex
	}
	if p.CancelReason != nil {
		s.CancelReason = *p.CancelReason
	}
	return s.Clone(), nil
}

func (r *fakeRemote) CompleteTask(_ context.Context, id string, index int, _ remote.TaskCompletion) (*store.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completes = append(r.completes, index)
	if r.failComplete != nil {
		return nil, r.failComplete
	}
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("complete: %w", remote.ErrNotFound)
	}
	if index != s.CurrentTaskIndex {
		return s.Clone(), nil
	}
	if s.Status == store.SessionPending {
		s.Status = store.SessionInProgress
	}
	s.CompletedTaskCount++
	s.CurrentTaskIndex++
	if s.CurrentTaskIndex >= len(s.Tasks) {
		s.Status = store.SessionCompleted
	}
	return s.Clone(), nil
}

func (r *fakeRemote) counts() (creates, updates, completes int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creates, len(r.updates), len(r.completes)
}

func (r *fakeRemote) set(fn func(r *fakeRemote)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r)
}

type testEnv struct {
	c      *Controller
	clock  *fakeClock
	sched  *fakeScheduler
	local  *fakeLocal
	remote *fakeRemote
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	clock := &fakeClock{t: baseTime}
	env := &testEnv{
		clock:  clock,
		sched:  &fakeScheduler{clock: clock},
		local:  &fakeLocal{},
		remote: newFakeRemote(),
	}
	base := []Option{
		WithLogger(logging.Discard()),
		WithClock(clock.Now),
		WithScheduler(env.sched),
		WithAsync(func(fn func()) { fn() }),
	}
	env.c = New(env.local, env.remote, append(base, opts...)...)
	t.Cleanup(func() { env.c.Close() })
	return env
}

func morningFocus() []store.TaskSpec {
	return []store.TaskSpec{
		{Name: "Write report", Priority: store.PriorityHigh, PlannedMinutes: 25},
		{Name: "Review PR", Priority: store.PriorityMedium, PlannedMinutes: 15},
	}
}

func (e *testEnv) session(t *testing.T, id string) *store.Session {
	t.Helper()
	s, ok := e.c.Session(id)
	if !ok {
		t.Fatalf("session %s not found", id)
	}
	return s
}

// reopen restores st into a fresh controller that shares the clock,
// scheduler and remote with e, the way a restart would.
func (e *testEnv) reopen(t *testing.T, st store.State) *Controller {
	t.Helper()
	c := New(&fakeLocal{}, e.remote,
		WithLogger(logging.Discard()),
		WithClock(e.clock.Now),
		WithScheduler(e.sched),
		WithAsync(func(fn func()) { fn() }))
	c.Restore(st)
	t.Cleanup(func() { c.Close() })
	return c
}
