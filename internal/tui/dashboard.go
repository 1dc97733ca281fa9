package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/tempo/internal/engine"
	"github.com/sadopc/tempo/internal/store"
)

const recentReports = 5

type dashboardModel struct {
	ctrl   *engine.Controller
	store  Store
	width  int
	height int

	// Read from the controller on every tick.
	active   *store.ActiveTask
	timer    store.TimerState
	awaiting bool
	session  *store.Session
	smart    int64
	sync     engine.SyncStatus
	recent   []store.CompletionReport

	// Loaded from the store on refresh.
	todayMinutes int64
	goalSeconds  int64
}

func newDashboardModel(c *engine.Controller, s Store) dashboardModel {
	d := dashboardModel{ctrl: c, store: s}
	d.poll()
	return d
}

func (d dashboardModel) Init() tea.Cmd {
	return d.loadData()
}

func (d *dashboardModel) setSize(w, h int) {
	d.width = w
	d.height = h
}

type dashboardDataMsg struct {
	todayMinutes int64
	goalSeconds  int64
}

func (d dashboardModel) loadData() tea.Cmd {
	return func() tea.Msg {
		total, _ := d.store.GetTodayTotal()
		goal := d.store.GetSettingInt("daily_goal", 14400)
		return dashboardDataMsg{todayMinutes: total, goalSeconds: int64(goal)}
	}
}

// poll copies the controller state the view renders.
func (d *dashboardModel) poll() {
	d.active = d.ctrl.ActiveTask()
	d.timer = d.ctrl.TimerState()
	d.awaiting = d.ctrl.AwaitingReport()
	d.session = d.ctrl.ActiveSession()
	d.smart = 0
	d.sync = engine.SyncStatus{}
	if d.session != nil {
		d.smart = d.ctrl.SmartRemainingTime()
		d.sync, _ = d.ctrl.SyncStatus(d.session.ID)
	}
	all := d.ctrl.Reports()
	d.recent = nil
	for i := len(all) - 1; i >= 0 && len(d.recent) < recentReports; i-- {
		d.recent = append(d.recent, all[i])
	}
}

func (d dashboardModel) update(msg tea.Msg) (dashboardModel, tea.Cmd) {
	switch msg := msg.(type) {
	case dashboardDataMsg:
		d.todayMinutes = msg.todayMinutes
		d.goalSeconds = msg.goalSeconds
		return d, nil

	case tickMsg:
		d.poll()
		return d, nil

	case refreshMsg:
		d.poll()
		return d, d.loadData()
	}
	return d, nil
}

func (d dashboardModel) view() string {
	if d.width < 20 {
		return "Terminal too small"
	}

	contentWidth := d.width - 4

	panels := []string{d.renderTimerPanel(contentWidth)}
	if d.session != nil {
		panels = append(panels, d.renderSessionPanel(contentWidth))
	}
	panels = append(panels, d.renderTodayPanel(contentWidth))

	return lipgloss.JoinVertical(lipgloss.Left, panels...)
}

func (d dashboardModel) renderTimerPanel(w int) string {
	if d.active == nil {
		content := lipgloss.JoinVertical(lipgloss.Center,
			timerStyle.Width(w-6).Render("--:--"),
			mutedStyle.Render("■  NO ACTIVE TASK"),
			mutedStyle.Render("Pick a task in Tasks (2) or a session in Sessions (3)"),
		)
		return panelStyle.Width(w).Render(content)
	}

	remaining := formatCountdown(d.timer.RemainingSeconds)
	nameLine := priorityBadge(d.active.Priority) + " " + highlightStyle.Render(d.active.Name)
	planned := mutedStyle.Render("planned " + formatCountdown(d.active.PlannedSeconds))

	switch {
	case d.awaiting:
		content := lipgloss.JoinVertical(lipgloss.Center,
			timerExpiredStyle.Width(w-6).Render("00:00"),
			accentStyle.Render("⏰  TIME'S UP"),
			nameLine,
			mutedStyle.Render("Press c to report or k to skip"),
		)
		return expiredPanelStyle.Width(w).Render(content)

	case d.timer.Running:
		content := lipgloss.JoinVertical(lipgloss.Center,
			timerRunningStyle.Width(w-6).Render(remaining),
			successStyle.Render("●  RUNNING"),
			nameLine,
			planned,
		)
		return activePanelStyle.Width(w).Render(content)

	case d.timer.RemainingSeconds < d.timer.TotalSeconds:
		content := lipgloss.JoinVertical(lipgloss.Center,
			timerPausedStyle.Width(w-6).Render(remaining),
			warningStyle.Render("⏸  PAUSED"),
			nameLine,
			mutedStyle.Render("Press s to resume"),
		)
		return panelStyle.Width(w).Render(content)
	}

	content := lipgloss.JoinVertical(lipgloss.Center,
		timerStyle.Width(w-6).Render(remaining),
		mutedStyle.Render("■  READY"),
		nameLine,
		mutedStyle.Render("Press s to start"),
	)
	return panelStyle.Width(w).Render(content)
}

func (d dashboardModel) renderSessionPanel(w int) string {
	s := d.session
	title := titleStyle.Render(s.Name) + "  " + sessionStatusStyle(s.Status).Render(string(s.Status))

	rows := []string{
		title + "  " + d.renderSyncIndicator(),
		"",
		d.renderProgress(),
		"",
		fmt.Sprintf("  %d/%d tasks done   %s left (smart)   %s of %s spent",
			s.CompletedTaskCount, len(s.Tasks),
			highlightStyle.Render(formatSeconds(d.smart)),
			formatSeconds(s.ActualTimeSeconds), formatSeconds(s.TotalPlannedSeconds)),
	}
	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}

// renderProgress draws one dot per task: done, current and upcoming.
func (d dashboardModel) renderProgress() string {
	s := d.session
	var parts []string
	for i, spec := range s.Tasks {
		var dot string
		switch {
		case i < s.CompletedTaskCount:
			dot = successStyle.Render("●")
		case i == s.CurrentTaskIndex && s.Status == store.SessionInProgress:
			dot = accentStyle.Render("◐")
		default:
			dot = mutedStyle.Render("○")
		}
		label := spec.Name
		if i == s.CurrentTaskIndex && !s.Status.Terminal() {
			label = selectedItemStyle.Render(label)
		} else {
			label = mutedStyle.Render(label)
		}
		parts = append(parts, fmt.Sprintf("  %s %s %s", dot, label, mutedStyle.Render(fmt.Sprintf("%dm", spec.PlannedMinutes))))
	}
	return strings.Join(parts, "\n")
}

func (d dashboardModel) renderSyncIndicator() string {
	switch {
	case d.sync.SessionID == "":
		return ""
	case d.sync.InFlight:
		return highlightStyle.Render("⟳ syncing")
	case d.sync.Stale:
		return errorStyle.Render("⚠ unsynced since " + d.sync.PendingSince.Local().Format("15:04"))
	case d.sync.Pending && d.sync.LastError != "":
		return warningStyle.Render("● unsynced (retrying)")
	case d.sync.Pending:
		return warningStyle.Render("● unsynced")
	case !d.sync.LastSynced.IsZero():
		return successStyle.Render("✓ synced")
	}
	return mutedStyle.Render("local")
}

func (d dashboardModel) renderTodayPanel(w int) string {
	goalMinutes := d.goalSeconds / 60
	header := titleStyle.Render("Today") + "  " + highlightStyle.Render(formatMinutes(d.todayMinutes))
	if goalMinutes > 0 {
		header += mutedStyle.Render(fmt.Sprintf(" / %s goal", formatMinutes(goalMinutes)))
	}

	rows := []string{header}
	if len(d.recent) == 0 {
		rows = append(rows, mutedStyle.Render("No reports yet"))
		return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
	}
	for _, r := range d.recent {
		rows = append(rows, fmt.Sprintf("  %s %s  %-24s %3dm / %3dm  %3d%%",
			reportMark(r.Status),
			r.ReportedAt.Local().Format("15:04"),
			truncate(r.TaskName, 24),
			r.ActualMinutes, r.PlannedMinutes, r.CompletionPercentage))
	}
	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}

func reportMark(s store.ReportStatus) string {
	switch s {
	case store.ReportCompleted:
		return successStyle.Render("✓")
	case store.ReportDelayed:
		return warningStyle.Render("◷")
	case store.ReportPartial:
		return warningStyle.Render("◑")
	default:
		return mutedStyle.Render("»")
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
