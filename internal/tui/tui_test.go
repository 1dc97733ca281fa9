package tui

import (
	"os"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sadopc/tempo/internal/engine"
	"github.com/sadopc/tempo/internal/logging"
	"github.com/sadopc/tempo/internal/store"
)

// idleScheduler never fires; the tests drive the controller directly.
type idleScheduler struct{}

func (idleScheduler) Every(time.Duration, func()) func() { return func() {} }

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewMemory()
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestApp(t *testing.T, opts ...Option) (App, *engine.Controller, *store.Store) {
	t.Helper()
	st := newTestStore(t)
	c := engine.New(st, nil,
		engine.WithLogger(logging.Discard()),
		engine.WithScheduler(idleScheduler{}),
		engine.WithAsync(func(fn func()) { fn() }))
	t.Cleanup(func() { c.Close() })

	a := NewApp(c, st, opts...)
	m, _ := a.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return m.(App), c, st
}

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "space":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

func press(t *testing.T, a App, k string) (App, tea.Cmd) {
	t.Helper()
	m, cmd := a.Update(keyMsg(k))
	return m.(App), cmd
}

// collect runs cmd and any batch it returns. It must not be handed a tick.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, collect(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

// feed delivers every message produced by cmd back into the app.
func feed(t *testing.T, a App, cmd tea.Cmd) App {
	t.Helper()
	for _, msg := range collect(cmd) {
		m, _ := a.Update(msg)
		a = m.(App)
	}
	return a
}

// feedCancel delivers the cancel request produced by cmd and then the
// outcome of handling it.
func feedCancel(t *testing.T, a App, cmd tea.Cmd) App {
	t.Helper()
	msgs := collect(cmd)
	if len(msgs) != 1 {
		t.Fatalf("expected one message, got %#v", msgs)
	}
	req, ok := msgs[0].(cancelRequestMsg)
	if !ok {
		t.Fatalf("expected a cancel request, got %#v", msgs[0])
	}
	m, next := a.Update(req)
	return feed(t, m.(App), next)
}

func twoTaskSession(t *testing.T, c *engine.Controller) *store.Session {
	t.Helper()
	s, err := c.CreateSession("Morning Focus", []store.TaskSpec{
		{Name: "Write report", Priority: store.PriorityHigh, PlannedMinutes: 25},
		{Name: "Review PR", PlannedMinutes: 15},
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// ============================================================
// Helpers
// ============================================================

func TestFormatters(t *testing.T) {
	cases := []struct {
		got, want string
	}{
		{formatCountdown(1500), "25:00"},
		{formatCountdown(59), "00:59"},
		{formatCountdown(3661), "01:01:01"},
		{formatCountdown(-5), "00:00"},
		{formatSeconds(90), "00:01:30"},
		{formatMinutes(45), "45m"},
		{formatMinutes(125), "2h05m"},
		{truncate("short", 10), "short"},
		{truncate("a very long task name", 6), "a ver…"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("got %q, want %q", tc.got, tc.want)
		}
	}
}

func TestSettingConversions(t *testing.T) {
	if got := secsToHours("14400"); got != "4.0" {
		t.Errorf("secsToHours = %q", got)
	}
	if got := hoursToSecs("2.5"); got != "9000" {
		t.Errorf("hoursToSecs = %q", got)
	}
	if got := formatSettingValue("daily_goal", "5400"); got != "1.5 hours" {
		t.Errorf("daily_goal = %q", got)
	}
	if got := formatSettingValue("default_task_minutes", "25"); got != "25 min" {
		t.Errorf("default_task_minutes = %q", got)
	}
	if validateMinutes("0") == nil || validateMinutes("abc") == nil || validateMinutes("30") != nil {
		t.Error("validateMinutes accepted or rejected the wrong input")
	}
	if validateHours("25") == nil || validateHours("7.5") != nil {
		t.Error("validateHours accepted or rejected the wrong input")
	}
}

func TestParseTaskLines(t *testing.T) {
	specs, err := parseTaskLines("Write report, 30, high\n\n  Review PR  \nEmails, 10m", 25)
	if err != nil {
		t.Fatalf("parseTaskLines: %v", err)
	}
	if len(specs) != 3 {
		t.Fatalf("specs = %+v", specs)
	}
	if specs[0].Name != "Write report" || specs[0].PlannedMinutes != 30 || specs[0].Priority != store.PriorityHigh {
		t.Errorf("first = %+v", specs[0])
	}
	if specs[1].Name != "Review PR" || specs[1].PlannedMinutes != 25 || specs[1].Priority != "" {
		t.Errorf("second = %+v", specs[1])
	}
	if specs[2].PlannedMinutes != 10 {
		t.Errorf("third = %+v", specs[2])
	}

	for name, in := range map[string]string{
		"empty":        " \n ",
		"bad minutes":  "a, soon",
		"zero minutes": "a, 0",
		"bad priority": "a, 5, whenever",
		"extra field":  "a, 5, low, x",
	} {
		if _, err := parseTaskLines(in, 25); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestPlanBar(t *testing.T) {
	over := planBar("x", 25, 30)
	if over.Values[0].Value != 25 || over.Values[1].Value != 5 || over.Values[2].Value != 0 {
		t.Errorf("overrun bar = %+v", over.Values)
	}
	under := planBar("y", 25, 10)
	if under.Values[0].Value != 10 || under.Values[1].Value != 0 || under.Values[2].Value != 15 {
		t.Errorf("underrun bar = %+v", under.Values)
	}
}

// ============================================================
// Report form
// ============================================================

func TestReportFormValue(t *testing.T) {
	r := newReportForm("Write report")

	f, err := r.value()
	if err != nil {
		t.Fatal(err)
	}
	if f.Status != store.ReportCompleted || f.CompletionPercentage != nil || f.Quality != 3 {
		t.Fatalf("default form = %+v", f)
	}

	*r.status = string(store.ReportDelayed)
	*r.percentage = " 80 "
	*r.delayReason = "meetings"
	f, err = r.value()
	if err != nil {
		t.Fatal(err)
	}
	if f.Status != store.ReportDelayed || f.CompletionPercentage == nil || *f.CompletionPercentage != 80 || f.DelayReason != "meetings" {
		t.Fatalf("delayed form = %+v", f)
	}
}

func TestReportFormValidation(t *testing.T) {
	r := newReportForm("x")
	if validatePercentage("") != nil || validatePercentage("100") != nil {
		t.Error("valid percentage rejected")
	}
	if validatePercentage("101") == nil || validatePercentage("-1") == nil || validatePercentage("lots") == nil {
		t.Error("invalid percentage accepted")
	}
	if r.validateReason("") != nil {
		t.Error("reason should be optional for a completed task")
	}
	*r.status = string(store.ReportPartial)
	if r.validateReason("  ") == nil {
		t.Error("reason should be required for a partial task")
	}
}

// ============================================================
// Global keys
// ============================================================

func TestTimerKeys(t *testing.T) {
	a, c, _ := newTestApp(t)
	twoTaskSession(t, c)

	a, _ = press(t, a, "s")
	if !c.TimerState().Running {
		t.Fatal("s should start the timer")
	}
	if s := c.ActiveSession(); s.Status != store.SessionInProgress {
		t.Fatalf("session status = %s", s.Status)
	}

	a, _ = press(t, a, "space")
	if c.TimerState().Running {
		t.Fatal("space should pause the timer")
	}

	press(t, a, "r")
	st := c.TimerState()
	if st.Running || st.RemainingSeconds != st.TotalSeconds || st.TotalSeconds != 1500 {
		t.Fatalf("timer after reset = %+v", st)
	}
}

func TestSkipKeyAdvancesSession(t *testing.T) {
	a, c, _ := newTestApp(t)
	twoTaskSession(t, c)

	a, cmd := press(t, a, "k")
	a = feed(t, a, cmd)

	if active := c.ActiveTask(); active == nil || active.Name != "Review PR" {
		t.Fatalf("active after skip = %+v", active)
	}
	reports := c.Reports()
	if len(reports) != 1 || !reports[0].Skipped {
		t.Fatalf("reports = %+v", reports)
	}
	if a.status != "Skipped" || a.statusErr {
		t.Fatalf("status = %q (error %v)", a.status, a.statusErr)
	}
}

func TestCompleteKeyWithoutActiveTask(t *testing.T) {
	a, _, _ := newTestApp(t)

	a, cmd := press(t, a, "c")
	if a.report != nil {
		t.Fatal("report form should not open without an active task")
	}
	a = feed(t, a, cmd)
	if !a.statusErr || !strings.Contains(a.status, "No active task") {
		t.Fatalf("status = %q", a.status)
	}
}

func TestCompleteKeyOpensReportForm(t *testing.T) {
	a, c, _ := newTestApp(t)
	twoTaskSession(t, c)

	a, _ = press(t, a, "c")
	if a.report == nil || a.report.taskName != "Write report" {
		t.Fatalf("report form = %+v", a.report)
	}

	// Global keys go to the form while it is open.
	a, _ = press(t, a, "s")
	if c.TimerState().Running {
		t.Fatal("s should not reach the controller while reporting")
	}

	a, _ = press(t, a, "esc")
	if a.report != nil {
		t.Fatal("esc should close the report form")
	}
}

func TestSyncKeyWhenOffline(t *testing.T) {
	a, _, _ := newTestApp(t)

	a, cmd := press(t, a, "y")
	if a.status != "Syncing..." {
		t.Fatalf("status = %q", a.status)
	}
	a = feed(t, a, cmd)
	if !a.statusErr || a.status != "Remote sync is disabled" {
		t.Fatalf("status = %q", a.status)
	}
}

func TestViewSwitching(t *testing.T) {
	a, _, _ := newTestApp(t)

	for _, tc := range []struct {
		key  string
		want viewState
	}{
		{"2", viewTasks},
		{"3", viewSessions},
		{"4", viewReports},
		{"5", viewSettings},
		{"tab", viewDashboard},
		{"tab", viewTasks},
		{"1", viewDashboard},
	} {
		a, _ = press(t, a, tc.key)
		if a.activeView != tc.want {
			t.Fatalf("after %q view = %d, want %d", tc.key, a.activeView, tc.want)
		}
	}
}

func TestAuthFailedMsg(t *testing.T) {
	a, _, _ := newTestApp(t)
	m, _ := a.Update(AuthFailedMsg{Err: os.ErrPermission})
	a = m.(App)
	if !a.statusErr || !strings.Contains(a.status, "remote.token") {
		t.Fatalf("status = %q", a.status)
	}
}

// ============================================================
// Views
// ============================================================

func TestDashboardView(t *testing.T) {
	a, c, _ := newTestApp(t)
	if !strings.Contains(a.View(), "NO ACTIVE TASK") {
		t.Fatal("empty dashboard should say there is no active task")
	}

	twoTaskSession(t, c)
	m, _ := a.Update(tickMsg(time.Now()))
	a = m.(App)
	view := a.View()
	for _, want := range []string{"READY", "Write report", "Morning Focus", "0/2 tasks done"} {
		if !strings.Contains(view, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}

	a, _ = press(t, a, "s")
	m, _ = a.Update(tickMsg(time.Now()))
	a = m.(App)
	if !strings.Contains(a.View(), "RUNNING") {
		t.Fatal("dashboard should show the running timer")
	}
}

func TestTasksView(t *testing.T) {
	a, c, _ := newTestApp(t)
	first, err := c.CreateTask("Inbox zero", store.PriorityLow, 15)
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.CreateTask("Plan sprint", "", 30)
	if err != nil {
		t.Fatal(err)
	}

	a, _ = press(t, a, "2")
	a, _ = press(t, a, "down")
	a, cmd := press(t, a, "enter")
	a = feed(t, a, cmd)
	if active := c.ActiveTask(); active == nil || active.ID != second.ID {
		t.Fatalf("active = %+v", active)
	}
	if !strings.Contains(a.View(), "active") {
		t.Fatal("tasks view should mark the active task")
	}

	a, cmd = press(t, a, "f")
	a = feed(t, a, cmd)
	if task, _ := c.Task(second.ID); task.Status != store.TaskCompleted {
		t.Fatalf("status = %s", task.Status)
	}
	if c.ActiveTask() != nil {
		t.Fatal("completing the active task should clear it")
	}

	a, _ = press(t, a, "enter")
	if a.tasks.cursor != 1 {
		t.Fatalf("cursor = %d", a.tasks.cursor)
	}
	a.tasks.cursor = 0
	a, cmd = press(t, a, "d")
	feed(t, a, cmd)
	if _, ok := c.Task(first.ID); ok {
		t.Fatal("d should delete the selected task")
	}
	if len(c.Tasks()) != 1 {
		t.Fatalf("tasks = %d", len(c.Tasks()))
	}
}

func TestTasksNewFormUsesSettings(t *testing.T) {
	a, _, st := newTestApp(t)
	if err := st.SetSetting("default_task_minutes", "45"); err != nil {
		t.Fatal(err)
	}
	if err := st.SetSetting("default_priority", "urgent"); err != nil {
		t.Fatal(err)
	}

	a, _ = press(t, a, "2")
	a, _ = press(t, a, "n")
	if !a.tasks.formActive {
		t.Fatal("n should open the new task form")
	}
	if *a.tasks.formMinutes != "45" || *a.tasks.formPriority != "urgent" {
		t.Fatalf("form defaults = %q %q", *a.tasks.formMinutes, *a.tasks.formPriority)
	}

	// Global keys are typed into the form.
	a, _ = press(t, a, "1")
	if a.activeView != viewTasks {
		t.Fatal("form input should not switch views")
	}
	a, _ = press(t, a, "esc")
	if a.tasks.formActive {
		t.Fatal("esc should close the form")
	}
}

func TestSessionsViewCancelWithoutConfirm(t *testing.T) {
	a, c, st := newTestApp(t)
	s := twoTaskSession(t, c)
	if err := st.SetSetting("confirm_cancel", "false"); err != nil {
		t.Fatal(err)
	}

	a, _ = press(t, a, "3")
	a, cmd := press(t, a, "x")
	a = feedCancel(t, a, cmd)

	got, _ := c.Session(s.ID)
	if got.Status != store.SessionCancelled {
		t.Fatalf("status = %s", got.Status)
	}
	if !strings.Contains(a.status, "Cancelled Morning Focus") {
		t.Fatalf("status = %q", a.status)
	}
}

func TestCancelAsksForConfirmation(t *testing.T) {
	a, c, _ := newTestApp(t)
	s := twoTaskSession(t, c)

	a, cmd := press(t, a, "x")
	a = feed(t, a, cmd)
	if a.cancel == nil || a.cancel.id != s.ID {
		t.Fatalf("cancel dialog = %+v", a.cancel)
	}
	if !strings.Contains(a.View(), "Cancel Session") {
		t.Fatal("view should show the cancel dialog")
	}

	a, _ = press(t, a, "esc")
	if a.cancel != nil {
		t.Fatal("esc should close the dialog")
	}
	if got, _ := c.Session(s.ID); got.Status.Terminal() {
		t.Fatal("closing the dialog must not cancel the session")
	}
}

func TestCancelWithoutActiveSession(t *testing.T) {
	a, _, _ := newTestApp(t)
	a, cmd := press(t, a, "x")
	a = feedCancel(t, a, cmd)
	if a.cancel != nil || !a.statusErr {
		t.Fatalf("cancel = %+v status = %q", a.cancel, a.status)
	}
}

func TestReportsView(t *testing.T) {
	a, c, _ := newTestApp(t)
	twoTaskSession(t, c)
	c.Skip()

	a, cmd := press(t, a, "4")
	a = feed(t, a, cmd)
	if len(a.reports.reports) != 1 {
		t.Fatalf("reports = %d", len(a.reports.reports))
	}
	if !strings.Contains(a.View(), "Write report") {
		t.Fatal("recent table should list the report")
	}

	a, cmd = press(t, a, "enter")
	a = feed(t, a, cmd)
	if a.reports.mode != reportDaily {
		t.Fatal("enter should switch to the daily view")
	}
	if len(a.reports.summaries) != 1 || a.reports.summaries[0].Skipped != 1 {
		t.Fatalf("summaries = %+v", a.reports.summaries)
	}
}

func TestSettingsSave(t *testing.T) {
	st := newTestStore(t)
	m := newSettingsModel(st)
	*m.taskMinutes = "40"
	*m.priority = "high"
	*m.dailyGoal = "2.5"
	*m.confirmCancel = false

	if err := m.saveSettings(); err != nil {
		t.Fatal(err)
	}
	for k, want := range map[string]string{
		"default_task_minutes": "40",
		"default_priority":     "high",
		"daily_goal":           "9000",
		"confirm_cancel":       "false",
	} {
		if got, _ := st.GetSetting(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	a, c, _ := newTestApp(t, WithExportDir(dir))
	twoTaskSession(t, c)
	c.Skip()

	a, _ = press(t, a, "e")
	if !a.exportPicking {
		t.Fatal("e should open the export picker")
	}
	a, _ = press(t, a, "esc")
	if a.exportPicking {
		t.Fatal("esc should close the picker")
	}

	for format, prefix := range []string{"tempo-reports-", "tempo-sessions-", "tempo-export-"} {
		msgs := collect(a.doExport(format))
		done, ok := msgs[0].(exportDoneMsg)
		if !ok {
			t.Fatalf("format %d: got %#v", format, msgs[0])
		}
		if !strings.HasPrefix(done.path, dir) || !strings.Contains(done.path, prefix) {
			t.Fatalf("path = %q", done.path)
		}
		if info, err := os.Stat(done.path); err != nil || info.Size() == 0 {
			t.Fatalf("export %s not written: %v", done.path, err)
		}
	}
}
