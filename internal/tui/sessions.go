package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/tempo/internal/engine"
	"github.com/sadopc/tempo/internal/store"
)

type sessionsModel struct {
	ctrl   *engine.Controller
	store  Store
	width  int
	height int

	sessions []store.Session
	syncs    map[string]engine.SyncStatus
	activeID string
	cursor   int

	formActive bool
	form       *huh.Form

	// Form field pointers (survive value copies)
	formName  *string
	formTasks *string
}

func newSessionsModel(c *engine.Controller, s Store) sessionsModel {
	name, tasks := "", ""
	m := sessionsModel{
		ctrl:      c,
		store:     s,
		formName:  &name,
		formTasks: &tasks,
	}
	m.load()
	return m
}

func (m *sessionsModel) setSize(w, h int) {
	m.width = w
	m.height = h
}

func (m *sessionsModel) load() {
	m.sessions = m.ctrl.Sessions()
	m.syncs = make(map[string]engine.SyncStatus, len(m.sessions))
	for _, st := range m.ctrl.SyncStatuses() {
		m.syncs[st.SessionID] = st
	}
	m.activeID = ""
	if s := m.ctrl.ActiveSession(); s != nil {
		m.activeID = s.ID
	}
	if m.cursor >= len(m.sessions) {
		m.cursor = max(0, len(m.sessions)-1)
	}
}

func (m sessionsModel) selected() (store.Session, bool) {
	if m.cursor >= len(m.sessions) {
		return store.Session{}, false
	}
	return m.sessions[m.cursor], true
}

func (m sessionsModel) update(msg tea.Msg) (sessionsModel, tea.Cmd) {
	if m.formActive && m.form != nil {
		return m.updateForm(msg)
	}

	switch msg := msg.(type) {
	case refreshMsg, tickMsg:
		m.load()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.sessions)-1 {
				m.cursor++
			}
		case key.Matches(msg, keys.New):
			return m.showNewSessionForm()
		case key.Matches(msg, keys.Enter):
			if s, ok := m.selected(); ok {
				return m, applied(m.ctrl.SelectSession(s.ID), "Active: "+s.Name)
			}
		case key.Matches(msg, keys.Cancel):
			if s, ok := m.selected(); ok {
				return m, func() tea.Msg { return cancelRequestMsg{id: s.ID, name: s.Name} }
			}
		}
	}
	return m, nil
}

func (m sessionsModel) showNewSessionForm() (sessionsModel, tea.Cmd) {
	*m.formName = ""
	*m.formTasks = ""
	defaultMinutes := m.store.GetSettingInt("default_task_minutes", 25)

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Session Name").Value(m.formName),
			huh.NewText().Title("Tasks").
				Description(fmt.Sprintf("One per line: name, minutes, priority (default %dm, medium)", defaultMinutes)).
				Validate(func(s string) error {
					_, err := parseTaskLines(s, defaultMinutes)
					return err
				}).
				Value(m.formTasks),
		),
	).WithShowHelp(true).WithShowErrors(true)

	m.formActive = true
	return m, m.form.Init()
}

func (m sessionsModel) updateForm(msg tea.Msg) (sessionsModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			m.formActive = false
			m.form = nil
			return m, nil
		}
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.formActive = false
		specs, err := parseTaskLines(*m.formTasks, m.store.GetSettingInt("default_task_minutes", 25))
		if err != nil {
			return m, func() tea.Msg { return errStatus("Session not created: %v", err) }
		}
		s, err := m.ctrl.CreateSession(*m.formName, specs)
		if err != nil {
			return m, func() tea.Msg { return errStatus("Session not created: %v", err) }
		}
		m.load()
		m.cursor = len(m.sessions) - 1
		return m, applied(engine.Outcome{Applied: true}, fmt.Sprintf("Created %s with %d tasks", s.Name, len(s.Tasks)))
	}

	return m, cmd
}

// parseTaskLines reads "name, minutes, priority" lines. Minutes and
// priority are optional.
func parseTaskLines(text string, defaultMinutes int) ([]store.TaskSpec, error) {
	var specs []store.TaskSpec
	for n, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		spec := store.TaskSpec{Name: fields[0], PlannedMinutes: defaultMinutes}
		if len(fields) > 1 && fields[1] != "" {
			mins, err := strconv.Atoi(strings.TrimSuffix(fields[1], "m"))
			if err != nil || mins <= 0 {
				return nil, fmt.Errorf("line %d: bad minutes %q", n+1, fields[1])
			}
			spec.PlannedMinutes = mins
		}
		if len(fields) > 2 && fields[2] != "" {
			spec.Priority = store.Priority(strings.ToLower(fields[2]))
			if !spec.Priority.Valid() {
				return nil, fmt.Errorf("line %d: unknown priority %q", n+1, fields[2])
			}
		}
		if len(fields) > 3 {
			return nil, fmt.Errorf("line %d: too many fields", n+1)
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil, errors.New("add at least one task")
	}
	return specs, nil
}

func (m sessionsModel) view() string {
	w := m.width - 4

	if m.formActive && m.form != nil {
		content := lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render("New Session"), "", m.form.View())
		return panelStyle.Width(w).Render(content)
	}

	title := titleStyle.Render("Sessions")
	if len(m.sessions) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			title,
			"",
			mutedStyle.Render("No sessions yet. Press n to plan one."),
		)
		return panelStyle.Width(w).Render(content)
	}

	var rows []string
	rows = append(rows, title)
	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render(fmt.Sprintf("  %-28s %-12s %7s %10s %10s  %s", "Name", "Status", "Tasks", "Planned", "Spent", "Sync")))

	for i, s := range m.sessions {
		cursor := "  "
		style := normalItemStyle
		if i == m.cursor {
			cursor = "> "
			style = selectedItemStyle
		}
		name := truncate(s.Name, 28)
		if s.ID == m.activeID {
			name = truncate("▶ "+s.Name, 28)
		}
		status := sessionStatusStyle(s.Status).Render(fmt.Sprintf("%-12s", s.Status))
		row := fmt.Sprintf("%s%s %s %s  %s",
			cursor,
			style.Render(fmt.Sprintf("%-28s", name)),
			status,
			style.Render(fmt.Sprintf("%7s %10s %10s", fmt.Sprintf("%d/%d", s.CompletedTaskCount, len(s.Tasks)),
				formatSeconds(s.TotalPlannedSeconds), formatSeconds(s.ActualTimeSeconds))),
			syncLabel(m.syncs[s.ID]))
		rows = append(rows, row)
	}

	if s, ok := m.selected(); ok && s.CancelReason != "" {
		rows = append(rows, "")
		rows = append(rows, mutedStyle.Render("  Cancelled: "+s.CancelReason))
	}

	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  n: new  enter: make active  x: cancel"))

	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}

func syncLabel(st engine.SyncStatus) string {
	switch {
	case st.InFlight:
		return highlightStyle.Render("⟳")
	case st.Stale:
		return errorStyle.Render("⚠ stale")
	case st.Pending:
		return warningStyle.Render("● pending")
	case !st.LastSynced.IsZero():
		return successStyle.Render("✓")
	}
	return mutedStyle.Render("-")
}
