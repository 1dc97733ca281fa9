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

	"github.com/sadopc/tempo/internal/store"
)

type settingsModel struct {
	store  Store
	width  int
	height int

	settings   []store.Setting
	formActive bool
	form       *huh.Form

	// Form values as pointers (survive value copies)
	taskMinutes   *string
	priority      *string
	dailyGoal     *string
	confirmCancel *bool
}

func newSettingsModel(s Store) settingsModel {
	tm, p, dg := "", "", ""
	cc := true
	return settingsModel{
		store:         s,
		taskMinutes:   &tm,
		priority:      &p,
		dailyGoal:     &dg,
		confirmCancel: &cc,
	}
}

func (s *settingsModel) setSize(w, h int) {
	s.width = w
	s.height = h
}

type settingsDataMsg struct {
	settings []store.Setting
}

func (s settingsModel) refresh() tea.Cmd {
	return func() tea.Msg {
		settings, _ := s.store.GetAllSettings()
		return settingsDataMsg{settings: settings}
	}
}

func (s settingsModel) update(msg tea.Msg) (settingsModel, tea.Cmd) {
	if s.formActive && s.form != nil {
		return s.updateForm(msg)
	}

	switch msg := msg.(type) {
	case settingsDataMsg:
		s.settings = msg.settings
		return s, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Enter), key.Matches(msg, keys.New):
			return s.showForm()
		}
	}
	return s, nil
}

func (s settingsModel) showForm() (settingsModel, tea.Cmd) {
	*s.taskMinutes = s.getVal("default_task_minutes", "25")
	*s.priority = s.getVal("default_priority", string(store.PriorityMedium))
	*s.dailyGoal = secsToHours(s.getVal("daily_goal", "14400"))
	*s.confirmCancel = s.getVal("confirm_cancel", "true") == "true"

	s.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Default task length (min)").
				Validate(validateMinutes).
				Value(s.taskMinutes),
			huh.NewSelect[string]().Title("Default priority").
				Options(priorityOptions()...).
				Value(s.priority),
		).Title("Tasks"),
		huh.NewGroup(
			huh.NewInput().Title("Daily goal (hours)").
				Validate(validateHours).
				Value(s.dailyGoal),
			huh.NewConfirm().Title("Ask before cancelling a session?").
				Value(s.confirmCancel),
		).Title("General"),
	).WithShowHelp(true).WithShowErrors(true)

	s.formActive = true
	return s, s.form.Init()
}

func (s settingsModel) updateForm(msg tea.Msg) (settingsModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			s.formActive = false
			s.form = nil
			return s, nil
		}
	}

	form, cmd := s.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		s.form = f
	}

	if s.form.State == huh.StateCompleted {
		s.formActive = false
		if err := s.saveSettings(); err != nil {
			return s, func() tea.Msg { return errStatus("Settings error: %v", err) }
		}
		return s, tea.Batch(s.refresh(), func() tea.Msg {
			return statusMsg{text: "Settings saved"}
		})
	}

	return s, cmd
}

func (s settingsModel) saveSettings() error {
	return errors.Join(
		s.store.SetSetting("default_task_minutes", strings.TrimSpace(*s.taskMinutes)),
		s.store.SetSetting("default_priority", *s.priority),
		s.store.SetSetting("daily_goal", hoursToSecs(*s.dailyGoal)),
		s.store.SetSetting("confirm_cancel", strconv.FormatBool(*s.confirmCancel)),
	)
}

func (s settingsModel) getVal(k, fallback string) string {
	v, err := s.store.GetSetting(k)
	if err != nil {
		return fallback
	}
	return v
}

func (s settingsModel) view() string {
	w := s.width - 4

	if s.formActive && s.form != nil {
		title := titleStyle.Render("Settings")
		formView := s.form.View()
		return panelStyle.Width(w).Render(
			lipgloss.JoinVertical(lipgloss.Left, title, "", formView),
		)
	}

	title := titleStyle.Render("Settings")
	hint := mutedStyle.Render("Press enter to edit settings")

	var rows []string
	rows = append(rows, title)
	rows = append(rows, "")

	for _, setting := range s.settings {
		label := lipgloss.NewStyle().Width(24).Render(setting.Key)
		value := highlightStyle.Render(formatSettingValue(setting.Key, setting.Value))
		rows = append(rows, fmt.Sprintf("  %s %s", label, value))
	}

	rows = append(rows, "")
	rows = append(rows, hint)

	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func priorityOptions() []huh.Option[string] {
	return []huh.Option[string]{
		huh.NewOption("Low", string(store.PriorityLow)),
		huh.NewOption("Medium", string(store.PriorityMedium)),
		huh.NewOption("High", string(store.PriorityHigh)),
		huh.NewOption("Urgent", string(store.PriorityUrgent)),
	}
}

func validateMinutes(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return errors.New("enter a whole number of minutes")
	}
	return nil
}

func validateHours(s string) error {
	h, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || h < 0 || h > 24 {
		return errors.New("enter hours from 0 to 24")
	}
	return nil
}

func formatSettingValue(k, v string) string {
	switch k {
	case "default_task_minutes":
		return v + " min"
	case "daily_goal":
		if secs, err := strconv.Atoi(v); err == nil {
			return fmt.Sprintf("%.1f hours", float64(secs)/3600)
		}
	}
	return v
}

func secsToHours(s string) string {
	if secs, err := strconv.Atoi(s); err == nil {
		return fmt.Sprintf("%.1f", float64(secs)/3600)
	}
	return s
}

func hoursToSecs(s string) string {
	if hours, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return strconv.Itoa(int(hours * 3600))
	}
	return s
}
