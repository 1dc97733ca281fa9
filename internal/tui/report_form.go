package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/sadopc/tempo/internal/report"
	"github.com/sadopc/tempo/internal/store"
)

// reportForm collects a completion report for the active task. Values are
// pointers so they survive the value copies of the bubbletea update loop.
type reportForm struct {
	form     *huh.Form
	taskName string

	status      *string
	percentage  *string
	delayReason *string
	difficulty  *string
	quality     *int
	notes       *string
	nextActions *string
}

func newReportForm(taskName string) *reportForm {
	status := string(store.ReportCompleted)
	percentage, reason, notes, next := "", "", "", ""
	difficulty := string(store.DifficultyAsExpected)
	quality := report.DefaultQuality

	r := &reportForm{
		taskName:    taskName,
		status:      &status,
		percentage:  &percentage,
		delayReason: &reason,
		difficulty:  &difficulty,
		quality:     &quality,
		notes:       &notes,
		nextActions: &next,
	}

	r.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().Title("Outcome").
				Options(
					huh.NewOption("Completed", string(store.ReportCompleted)),
					huh.NewOption("Delayed", string(store.ReportDelayed)),
					huh.NewOption("Partially completed", string(store.ReportPartial)),
					huh.NewOption("Skipped", string(store.ReportSkipped)),
				).Value(r.status),
			huh.NewInput().Title("Completion %").
				Placeholder("default for the outcome").
				Validate(validatePercentage).
				Value(r.percentage),
			huh.NewInput().Title("What got in the way?").
				Validate(r.validateReason).
				Value(r.delayReason),
		).Title("Report: "+taskName),
		huh.NewGroup(
			huh.NewSelect[string]().Title("Difficulty").
				Options(
					huh.NewOption("Easier than expected", string(store.DifficultyEasier)),
					huh.NewOption("As expected", string(store.DifficultyAsExpected)),
					huh.NewOption("Harder than expected", string(store.DifficultyHarder)),
				).Value(r.difficulty),
			huh.NewSelect[int]().Title("Quality").
				Options(
					huh.NewOption("★", 1),
					huh.NewOption("★★", 2),
					huh.NewOption("★★★", 3),
					huh.NewOption("★★★★", 4),
					huh.NewOption("★★★★★", 5),
				).Value(r.quality),
			huh.NewText().Title("Notes").Value(r.notes),
			huh.NewInput().Title("Next actions").Value(r.nextActions),
		).Title("Reflection"),
	).WithShowHelp(true).WithShowErrors(true)

	return r
}

func validatePercentage(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 100 {
		return errors.New("enter a number from 0 to 100")
	}
	return nil
}

func (r *reportForm) validateReason(s string) error {
	switch store.ReportStatus(*r.status) {
	case store.ReportDelayed, store.ReportPartial:
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("required when the task is %s", *r.status)
		}
	}
	return nil
}

// value converts the filled form for the controller.
func (r *reportForm) value() (report.Form, error) {
	f := report.Form{
		Status:      store.ReportStatus(*r.status),
		DelayReason: *r.delayReason,
		Difficulty:  store.Difficulty(*r.difficulty),
		Quality:     *r.quality,
		Notes:       *r.notes,
		NextActions: *r.nextActions,
	}
	if s := strings.TrimSpace(*r.percentage); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return report.Form{}, fmt.Errorf("completion percentage: %w", err)
		}
		f.CompletionPercentage = &n
	}
	return f, nil
}
