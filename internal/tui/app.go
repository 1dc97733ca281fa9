package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/tempo/internal/engine"
	"github.com/sadopc/tempo/internal/export"
)

const syncTimeout = 30 * time.Second

var exportFormats = []string{"Reports (CSV)", "Sessions (CSV)", "Full state (JSON)"}

// Option configures an App.
type Option func(*App)

// WithExportDir sets where the export picker writes files.
func WithExportDir(dir string) Option {
	return func(a *App) { a.exportDir = dir }
}

// cancelRequestMsg asks the App to cancel a session, confirming first when
// the confirm_cancel setting is on. An empty id means the active session.
type cancelRequestMsg struct {
	id   string
	name string
}

// cancelDialog asks for a cancellation reason.
type cancelDialog struct {
	form    *huh.Form
	id      string
	name    string
	reason  *string
	confirm *bool
}

// App is the root Bubble Tea model.
type App struct {
	ctrl      *engine.Controller
	store     Store
	exportDir string
	width     int
	height    int

	activeView    viewState
	showHelp      bool
	exportPicking bool
	exportCursor  int

	dashboard dashboardModel
	tasks     tasksModel
	sessions  sessionsModel
	reports   reportsModel
	settings  settingsModel

	report *reportForm
	cancel *cancelDialog

	help      help.Model
	status    string
	statusErr bool
}

func NewApp(c *engine.Controller, s Store, opts ...Option) App {
	h := help.New()
	h.ShowAll = false

	a := App{
		ctrl:       c,
		store:      s,
		exportDir:  ".",
		activeView: viewDashboard,
		dashboard:  newDashboardModel(c, s),
		tasks:      newTasksModel(c, s),
		sessions:   newSessionsModel(c, s),
		reports:    newReportsModel(c, s),
		settings:   newSettingsModel(s),
		help:       h,
	}
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

func (a App) Init() tea.Cmd {
	return tea.Batch(
		a.dashboard.Init(),
		tickCmd(),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		contentHeight := a.height - 4 // header + footer
		a.dashboard.setSize(a.width, contentHeight)
		a.tasks.setSize(a.width, contentHeight)
		a.sessions.setSize(a.width, contentHeight)
		a.reports.setSize(a.width, contentHeight)
		a.settings.setSize(a.width, contentHeight)
		return a, nil

	case tea.KeyMsg:
		if a.exportPicking {
			return a.updateExportPicker(msg)
		}
		if a.report != nil {
			return a.updateReportForm(msg)
		}
		if a.cancel != nil {
			return a.updateCancelDialog(msg)
		}

		// If a child view is capturing input (e.g. form), delegate first.
		if a.isFormActive() {
			return a.updateActiveView(msg)
		}

		if model, cmd, ok := a.handleGlobalKey(msg); ok {
			return model, cmd
		}

	case tickMsg:
		// The controller owns the countdown; the views re-read it.
		a.dashboard, _ = a.dashboard.update(msg)
		a.tasks, _ = a.tasks.update(msg)
		a.sessions, _ = a.sessions.update(msg)
		return a, tickCmd()

	case refreshMsg:
		var cmds []tea.Cmd
		var cmd tea.Cmd
		a.dashboard, cmd = a.dashboard.update(msg)
		cmds = append(cmds, cmd)
		a.tasks, cmd = a.tasks.update(msg)
		cmds = append(cmds, cmd)
		a.sessions, cmd = a.sessions.update(msg)
		cmds = append(cmds, cmd)
		a.reports, cmd = a.reports.update(msg)
		cmds = append(cmds, cmd)
		return a, tea.Batch(cmds...)

	case statusMsg:
		a.status = msg.text
		a.statusErr = msg.isError
		return a, nil

	case AuthFailedMsg:
		a.status = fmt.Sprintf("Sync rejected: %v. Check remote.token in the config.", msg.Err)
		a.statusErr = true
		return a, nil

	case cancelRequestMsg:
		return a.requestCancel(msg)

	case exportDoneMsg:
		a.status = "Exported to " + msg.path
		a.statusErr = false
		a.exportPicking = false
		return a, nil
	}

	if a.report != nil {
		return a.updateReportForm(msg)
	}
	if a.cancel != nil {
		return a.updateCancelDialog(msg)
	}
	return a.updateActiveView(msg)
}

// handleGlobalKey runs keys that work from every view. ok is false when the
// key belongs to the active view.
func (a App) handleGlobalKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	switch {
	case key.Matches(msg, keys.Quit):
		return a, tea.Quit, true
	case key.Matches(msg, keys.Help):
		a.showHelp = !a.showHelp
		a.help.ShowAll = a.showHelp
		return a, nil, true
	case key.Matches(msg, keys.Tab1):
		a.activeView = viewDashboard
		return a, a.dashboard.loadData(), true
	case key.Matches(msg, keys.Tab2):
		a.activeView = viewTasks
		a.tasks.load()
		return a, nil, true
	case key.Matches(msg, keys.Tab3):
		a.activeView = viewSessions
		a.sessions.load()
		return a, nil, true
	case key.Matches(msg, keys.Tab4):
		a.activeView = viewReports
		return a, a.reports.refresh(), true
	case key.Matches(msg, keys.Tab5):
		a.activeView = viewSettings
		return a, a.settings.refresh(), true
	case key.Matches(msg, keys.Tab):
		a.activeView = (a.activeView + 1) % viewState(len(viewNames))
		return a, a.refreshCurrentView(), true

	case key.Matches(msg, keys.Export):
		a.exportPicking = true
		a.exportCursor = 0
		return a, nil, true
	case key.Matches(msg, keys.Start):
		return a, applied(a.ctrl.StartTimer(), "Timer started"), true
	case key.Matches(msg, keys.Pause):
		return a, applied(a.ctrl.PauseTimer(), "Timer paused"), true
	case key.Matches(msg, keys.Reset):
		return a, applied(a.ctrl.ResetTimer(), "Timer reset"), true
	case key.Matches(msg, keys.Skip):
		return a, applied(a.ctrl.Skip(), "Skipped"), true
	case key.Matches(msg, keys.Complete):
		active := a.ctrl.ActiveTask()
		if active == nil {
			return a, applied(engine.Outcome{Reason: engine.ErrNoActiveTask}, ""), true
		}
		a.report = newReportForm(active.Name)
		return a, a.report.form.Init(), true
	case key.Matches(msg, keys.Sync):
		a.status = "Syncing..."
		a.statusErr = false
		return a, a.syncCmd(), true
	case key.Matches(msg, keys.Cancel) && a.activeView != viewSessions:
		return a, func() tea.Msg { return cancelRequestMsg{} }, true
	}
	return a, nil, false
}

func (a App) syncCmd() tea.Cmd {
	c := a.ctrl
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		defer cancel()
		err := c.Sync(ctx)
		switch {
		case errors.Is(err, engine.ErrOffline):
			return statusMsg{text: "Remote sync is disabled", isError: true}
		case err != nil:
			return errStatus("Sync failed: %v", err)
		}
		return statusMsg{text: "All sessions synced"}
	}
}

func (a App) updateReportForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "esc" {
		a.report = nil
		return a, nil
	}

	form, cmd := a.report.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		a.report.form = f
	}
	if a.report.form.State != huh.StateCompleted {
		return a, cmd
	}

	r := a.report
	a.report = nil
	f, err := r.value()
	if err != nil {
		return a, func() tea.Msg { return errStatus("Report not saved: %v", err) }
	}
	out, err := a.ctrl.SubmitReport(f)
	if err != nil {
		return a, func() tea.Msg { return errStatus("Report not saved: %v", err) }
	}
	text := "Reported " + r.taskName
	if out.Advanced {
		if next := a.ctrl.ActiveTask(); next != nil {
			text += ", next up: " + next.Name
		}
	}
	return a, applied(out, text)
}

func (a App) requestCancel(msg cancelRequestMsg) (tea.Model, tea.Cmd) {
	if msg.id == "" {
		s := a.ctrl.ActiveSession()
		if s == nil {
			return a, applied(engine.Outcome{Reason: engine.ErrNoActiveSession}, "")
		}
		msg.id, msg.name = s.ID, s.Name
	}
	if v, err := a.store.GetSetting("confirm_cancel"); err == nil && v == "false" {
		return a, applied(a.ctrl.CancelSession(msg.id, ""), "Cancelled "+msg.name)
	}

	reason := ""
	confirm := false
	d := &cancelDialog{id: msg.id, name: msg.name, reason: &reason, confirm: &confirm}
	d.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Reason (optional)").Value(d.reason),
			huh.NewConfirm().Title("Cancel "+msg.name+"?").
				Affirmative("Cancel session").
				Negative("Keep going").
				Value(d.confirm),
		),
	).WithShowHelp(true).WithShowErrors(true)
	a.cancel = d
	return a, d.form.Init()
}

func (a App) updateCancelDialog(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "esc" {
		a.cancel = nil
		return a, nil
	}

	form, cmd := a.cancel.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		a.cancel.form = f
	}
	if a.cancel.form.State != huh.StateCompleted {
		return a, cmd
	}

	d := a.cancel
	a.cancel = nil
	if !*d.confirm {
		return a, nil
	}
	return a, applied(a.ctrl.CancelSession(d.id, *d.reason), "Cancelled "+d.name)
}

func (a App) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch a.activeView {
	case viewDashboard:
		a.dashboard, cmd = a.dashboard.update(msg)
	case viewTasks:
		a.tasks, cmd = a.tasks.update(msg)
	case viewSessions:
		a.sessions, cmd = a.sessions.update(msg)
	case viewReports:
		a.reports, cmd = a.reports.update(msg)
	case viewSettings:
		a.settings, cmd = a.settings.update(msg)
	}
	return a, cmd
}

func (a App) isFormActive() bool {
	switch a.activeView {
	case viewTasks:
		return a.tasks.formActive
	case viewSessions:
		return a.sessions.formActive
	case viewSettings:
		return a.settings.formActive
	}
	return false
}

func (a App) refreshCurrentView() tea.Cmd {
	switch a.activeView {
	case viewDashboard:
		return a.dashboard.loadData()
	case viewReports:
		return a.reports.refresh()
	case viewSettings:
		return a.settings.refresh()
	}
	return func() tea.Msg { return refreshMsg{} }
}

func (a App) View() string {
	if a.width == 0 {
		return "Loading..."
	}

	header := a.renderHeader()
	footer := a.renderFooter()

	var content string
	switch a.activeView {
	case viewDashboard:
		content = a.dashboard.view()
	case viewTasks:
		content = a.tasks.view()
	case viewSessions:
		content = a.sessions.view()
	case viewReports:
		content = a.reports.view()
	case viewSettings:
		content = a.settings.view()
	}

	// Calculate available height for content
	headerHeight := lipgloss.Height(header)
	footerHeight := lipgloss.Height(footer)
	contentHeight := a.height - headerHeight - footerHeight
	if contentHeight < 1 {
		contentHeight = 1
	}

	switch {
	case a.exportPicking:
		content = a.renderExportPicker()
	case a.report != nil:
		content = activePanelStyle.Width(a.width - 4).Render(a.report.form.View())
	case a.cancel != nil:
		content = expiredPanelStyle.Width(a.width - 4).Render(
			lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render("Cancel Session"), "", a.cancel.form.View()))
	}

	content = lipgloss.NewStyle().
		Width(a.width).
		Height(contentHeight).
		Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, header, content, footer)
}

func (a App) renderHeader() string {
	var tabs []string
	for i, name := range viewNames {
		if viewState(i) == a.activeView {
			tabs = append(tabs, activeTabStyle.Render(name))
		} else {
			tabs = append(tabs, inactiveTabStyle.Render(name))
		}
	}

	tabRow := lipgloss.JoinHorizontal(lipgloss.Bottom, tabs...)

	title := lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).Render("tempo")
	gap := a.width - lipgloss.Width(title) - lipgloss.Width(tabRow) - 4
	if gap < 1 {
		gap = 1
	}
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return headerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Bottom, title, spacer, tabRow),
	)
}

func (a App) renderFooter() string {
	helpView := a.help.View(keys)

	status := ""
	if a.status != "" {
		style := mutedStyle
		if a.statusErr {
			style = errorStyle
		}
		status = style.Render(" " + a.status)
	}

	// Countdown indicator in footer
	timerInfo := ""
	if d := a.dashboard; d.active != nil {
		remaining := formatCountdown(d.timer.RemainingSeconds)
		switch {
		case d.awaiting:
			timerInfo = accentStyle.Render(" ⏰ 00:00")
		case d.timer.Running:
			timerInfo = successStyle.Render(" ● " + remaining)
		case d.timer.RemainingSeconds < d.timer.TotalSeconds:
			timerInfo = warningStyle.Render(" ⏸ " + remaining)
		}
	}

	left := footerStyle.Render(helpView)
	right := timerInfo + status

	gap := a.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return lipgloss.JoinHorizontal(lipgloss.Bottom, left, spacer, right)
}

func (a App) renderExportPicker() string {
	title := titleStyle.Render("Export")
	var rows []string
	rows = append(rows, title)
	rows = append(rows, "")
	for i, f := range exportFormats {
		cursor := "  "
		style := normalItemStyle
		if i == a.exportCursor {
			cursor = "> "
			style = selectedItemStyle
		}
		rows = append(rows, style.Render(cursor+f))
	}
	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  to "+a.exportDir))
	rows = append(rows, mutedStyle.Render("  enter: export  esc: cancel"))

	w := a.width - 4
	return activePanelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (a App) updateExportPicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if a.exportCursor > 0 {
			a.exportCursor--
		}
	case key.Matches(msg, keys.Down):
		if a.exportCursor < len(exportFormats)-1 {
			a.exportCursor++
		}
	case key.Matches(msg, keys.Enter):
		a.exportPicking = false
		return a, a.doExport(a.exportCursor)
	case key.Matches(msg, keys.Back):
		a.exportPicking = false
	}
	return a, nil
}

func (a App) doExport(format int) tea.Cmd {
	c, dir := a.ctrl, a.exportDir
	return func() tea.Msg {
		dateStr := time.Now().Format("2006-01-02")

		var (
			path string
			err  error
		)
		switch format {
		case 0:
			path = filepath.Join(dir, fmt.Sprintf("tempo-reports-%s.csv", dateStr))
			err = export.ReportsToCSV(c.Reports(), path)
		case 1:
			path = filepath.Join(dir, fmt.Sprintf("tempo-sessions-%s.csv", dateStr))
			err = export.SessionsToCSV(c.Sessions(), path)
		default:
			path = filepath.Join(dir, fmt.Sprintf("tempo-export-%s.json", dateStr))
			err = export.ToJSON(c.Snapshot(), path)
		}
		if err != nil {
			return errStatus("Export error: %v", err)
		}
		return exportDoneMsg{path: path}
	}
}
