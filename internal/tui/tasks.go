package tui

import (
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

type tasksModel struct {
	ctrl   *engine.Controller
	store  Store
	width  int
	height int

	tasks    []store.Task
	activeID string
	cursor   int

	formActive bool
	form       *huh.Form

	// Form field pointers (survive value copies)
	formName     *string
	formPriority *string
	formMinutes  *string
}

func newTasksModel(c *engine.Controller, s Store) tasksModel {
	name, priority, minutes := "", "", ""
	t := tasksModel{
		ctrl:         c,
		store:        s,
		formName:     &name,
		formPriority: &priority,
		formMinutes:  &minutes,
	}
	t.load()
	return t
}

func (t *tasksModel) setSize(w, h int) {
	t.width = w
	t.height = h
}

func (t *tasksModel) load() {
	t.tasks = t.ctrl.Tasks()
	t.activeID = ""
	if a := t.ctrl.ActiveTask(); a != nil && !a.InSession() {
		t.activeID = a.ID
	}
	if t.cursor >= len(t.tasks) {
		t.cursor = max(0, len(t.tasks)-1)
	}
}

func (t tasksModel) selected() (store.Task, bool) {
	if t.cursor >= len(t.tasks) {
		return store.Task{}, false
	}
	return t.tasks[t.cursor], true
}

func (t tasksModel) update(msg tea.Msg) (tasksModel, tea.Cmd) {
	if t.formActive && t.form != nil {
		return t.updateForm(msg)
	}

	switch msg := msg.(type) {
	case refreshMsg, tickMsg:
		t.load()
		return t, nil

	case tea.KeyMsg:
		return t.updateList(msg)
	}
	return t, nil
}

func (t tasksModel) updateList(msg tea.KeyMsg) (tasksModel, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if t.cursor > 0 {
			t.cursor--
		}
	case key.Matches(msg, keys.Down):
		if t.cursor < len(t.tasks)-1 {
			t.cursor++
		}
	case key.Matches(msg, keys.New):
		return t.showNewTaskForm()
	case key.Matches(msg, keys.Enter):
		if task, ok := t.selected(); ok {
			return t, applied(t.ctrl.SelectTask(task.ID), "Active: "+task.Name)
		}
	case key.Matches(msg, keys.Done):
		if task, ok := t.selected(); ok {
			return t, applied(t.ctrl.CompleteTask(task.ID), "Done: "+task.Name)
		}
	case key.Matches(msg, keys.Delete):
		if task, ok := t.selected(); ok {
			return t, applied(t.ctrl.DeleteTask(task.ID), "Deleted "+task.Name)
		}
	}
	return t, nil
}

// applied reports an outcome and asks every view to reload.
func applied(out engine.Outcome, text string) tea.Cmd {
	status := outcomeStatus(out, text)
	return tea.Batch(
		func() tea.Msg { return status },
		func() tea.Msg { return refreshMsg{} },
	)
}

func (t tasksModel) showNewTaskForm() (tasksModel, tea.Cmd) {
	*t.formName = ""
	*t.formPriority = string(store.PriorityMedium)
	if v, err := t.store.GetSetting("default_priority"); err == nil && store.Priority(v).Valid() {
		*t.formPriority = v
	}
	*t.formMinutes = strconv.Itoa(t.store.GetSettingInt("default_task_minutes", 25))

	t.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Task Name").Value(t.formName),
			huh.NewSelect[string]().Title("Priority").Options(priorityOptions()...).Value(t.formPriority),
			huh.NewInput().Title("Planned minutes").Validate(validateMinutes).Value(t.formMinutes),
		),
	).WithShowHelp(true).WithShowErrors(true)

	t.formActive = true
	return t, t.form.Init()
}

func (t tasksModel) updateForm(msg tea.Msg) (tasksModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			t.formActive = false
			t.form = nil
			return t, nil
		}
	}

	form, cmd := t.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		t.form = f
	}

	if t.form.State == huh.StateCompleted {
		t.formActive = false
		minutes, _ := strconv.Atoi(strings.TrimSpace(*t.formMinutes))
		task, err := t.ctrl.CreateTask(*t.formName, store.Priority(*t.formPriority), minutes)
		if err != nil {
			return t, func() tea.Msg { return errStatus("Task not created: %v", err) }
		}
		t.load()
		t.cursor = len(t.tasks) - 1
		return t, func() tea.Msg { return statusMsg{text: "Created " + task.Name} }
	}

	return t, cmd
}

func (t tasksModel) view() string {
	w := t.width - 4

	if t.formActive && t.form != nil {
		content := lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render("New Task"), "", t.form.View())
		return panelStyle.Width(w).Render(content)
	}

	title := titleStyle.Render("Tasks")
	if len(t.tasks) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			title,
			"",
			mutedStyle.Render("No tasks yet. Press n to create one."),
		)
		return panelStyle.Width(w).Render(content)
	}

	var rows []string
	rows = append(rows, title)
	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render(fmt.Sprintf("    %-28s %-8s %8s %8s  %s", "Name", "Priority", "Planned", "Spent", "Status")))

	for i, task := range t.tasks {
		cursor := "  "
		style := normalItemStyle
		if i == t.cursor {
			cursor = "> "
			style = selectedItemStyle
		}
		if task.Status != store.TaskPending {
			style = doneItemStyle
		}
		status := string(task.Status)
		if task.ID == t.activeID {
			status = accentStyle.Render("active")
		}
		row := fmt.Sprintf("%s%s %s %s",
			cursor, priorityBadge(task.Priority),
			style.Render(fmt.Sprintf("%-28s %-8s %8s %8s", truncate(task.Name, 28), task.Priority,
				formatCountdown(task.PlannedSeconds), formatCountdown(task.TimeSpentSeconds))),
			status)
		rows = append(rows, row)
	}

	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  n: new  enter: make active  f: mark done  d: delete"))

	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}
