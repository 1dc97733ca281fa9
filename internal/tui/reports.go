package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/tempo/internal/engine"
	"github.com/sadopc/tempo/internal/store"
)

type reportMode int

const (
	reportRecent reportMode = iota
	reportDaily
)

const recentBars = 10

var (
	onPlanStyle = lipgloss.NewStyle().Foreground(colorSuccess)
	overStyle   = lipgloss.NewStyle().Foreground(colorError)
	unusedStyle = lipgloss.NewStyle().Foreground(colorSubtle)
)

type reportsModel struct {
	ctrl   *engine.Controller
	store  Store
	width  int
	height int

	mode      reportMode
	reports   []store.CompletionReport
	summaries []store.DailySummary
	offset    int // 7-day blocks back from today (0 = current)

	chart barchart.Model
}

func newReportsModel(c *engine.Controller, s Store) reportsModel {
	return reportsModel{
		ctrl:  c,
		store: s,
		chart: barchart.New(60, 12),
	}
}

func (r *reportsModel) setSize(w, h int) {
	r.width = w
	r.height = h
	r.buildChart()
}

type reportsDataMsg struct {
	reports   []store.CompletionReport
	summaries []store.DailySummary
}

func (r reportsModel) refresh() tea.Cmd {
	return func() tea.Msg {
		msg := reportsDataMsg{reports: r.ctrl.Reports()}
		from, to := r.dateRange()
		msg.summaries, _ = r.store.GetDailySummary(from, to)
		return msg
	}
}

// dateRange covers seven UTC days ending today, shifted back by offset weeks.
func (r reportsModel) dateRange() (time.Time, time.Time) {
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	end := today.AddDate(0, 0, 1-7*r.offset)
	return end.AddDate(0, 0, -7), end
}

func (r reportsModel) update(msg tea.Msg) (reportsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case reportsDataMsg:
		r.reports = msg.reports
		r.summaries = msg.summaries
		r.buildChart()
		return r, nil

	case refreshMsg:
		return r, r.refresh()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Left):
			if r.mode == reportDaily {
				r.offset++
				return r, r.refresh()
			}
		case key.Matches(msg, keys.Right):
			if r.mode == reportDaily && r.offset > 0 {
				r.offset--
				return r, r.refresh()
			}
		case key.Matches(msg, keys.Enter):
			if r.mode == reportRecent {
				r.mode = reportDaily
			} else {
				r.mode = reportRecent
			}
			r.offset = 0
			return r, r.refresh()
		}
	}
	return r, nil
}

// planBar stacks actual against planned minutes: the part within plan, the
// overrun and the unused remainder.
func planBar(label string, planned, actual int64) barchart.BarData {
	onPlan := min(actual, planned)
	return barchart.BarData{
		Label: label,
		Values: []barchart.BarValue{
			{Name: "on plan", Value: float64(onPlan), Style: onPlanStyle},
			{Name: "over", Value: float64(max(actual-planned, 0)), Style: overStyle},
			{Name: "unused", Value: float64(max(planned-actual, 0)), Style: unusedStyle},
		},
	}
}

func (r *reportsModel) buildChart() {
	chartWidth := r.width - 8
	if chartWidth < 20 {
		chartWidth = 20
	}
	chartHeight := 12
	if r.height > 30 {
		chartHeight = 16
	}

	r.chart = barchart.New(chartWidth, chartHeight)

	var bars []barchart.BarData
	if r.mode == reportRecent {
		start := max(len(r.reports)-recentBars, 0)
		for i, rep := range r.reports[start:] {
			bars = append(bars, planBar(fmt.Sprintf("#%d", start+i+1), int64(rep.PlannedMinutes), int64(rep.ActualMinutes)))
		}
	} else {
		byDate := make(map[string]store.DailySummary, len(r.summaries))
		for _, s := range r.summaries {
			byDate[s.Date] = s
		}
		from, to := r.dateRange()
		for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
			s := byDate[d.Format("2006-01-02")]
			bars = append(bars, planBar(d.Format("Mon 02"), s.PlannedMinutes, s.ActualMinutes))
		}
	}

	if len(bars) == 0 {
		return
	}
	r.chart.PushAll(bars)
	r.chart.Draw()
}

func (r reportsModel) view() string {
	w := r.width - 4

	recentTab := inactiveTabStyle.Render("Recent")
	dailyTab := inactiveTabStyle.Render("Daily")
	if r.mode == reportRecent {
		recentTab = activeTabStyle.Render("Recent")
	} else {
		dailyTab = activeTabStyle.Render("Daily")
	}
	modeTabs := lipgloss.JoinHorizontal(lipgloss.Bottom, recentTab, dailyTab)

	var rangeLabel, tableView, nav string
	if r.mode == reportRecent {
		rangeLabel = mutedStyle.Render(fmt.Sprintf("last %d reports", min(len(r.reports), recentBars)))
		tableView = r.renderReportTable(w)
		nav = mutedStyle.Render("  enter: daily view")
	} else {
		from, to := r.dateRange()
		rangeLabel = mutedStyle.Render(fmt.Sprintf("%s to %s", from.Format("Jan 02"), to.Add(-24*time.Hour).Format("Jan 02, 2006")))
		tableView = r.renderSummaryTable(w)
		nav = mutedStyle.Render("  ←/→: navigate  enter: recent view")
	}

	header := lipgloss.JoinHorizontal(lipgloss.Bottom,
		titleStyle.Render("Reports"), "  ", modeTabs, "  ", rangeLabel,
	)

	return panelStyle.Width(w).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header, "", r.chart.View(), "", renderLegend(), "", tableView, "", nav,
		),
	)
}

func (r reportsModel) renderReportTable(w int) string {
	if len(r.reports) == 0 {
		return mutedStyle.Render("  No reports yet")
	}

	rows := []string{
		mutedStyle.Render(fmt.Sprintf("  %-4s %-24s %-20s %8s %8s %5s %4s", "#", "Task", "Status", "Planned", "Actual", "Done", "Q")),
		mutedStyle.Render("  " + strings.Repeat("─", min(w-6, 80))),
	}
	start := max(len(r.reports)-recentBars, 0)
	for i := len(r.reports) - 1; i >= start; i-- {
		rep := r.reports[i]
		rows = append(rows, fmt.Sprintf("  %-4d %-24s %s %-18s %8s %8s %4d%% %4d",
			i+1, truncate(rep.TaskName, 24), reportMark(rep.Status), rep.Status,
			formatMinutes(int64(rep.PlannedMinutes)), formatMinutes(int64(rep.ActualMinutes)),
			rep.CompletionPercentage, rep.Quality))
	}
	return strings.Join(rows, "\n")
}

func (r reportsModel) renderSummaryTable(w int) string {
	if len(r.summaries) == 0 {
		return mutedStyle.Render("  No data for this period")
	}

	var rows []string
	rows = append(rows, mutedStyle.Render(fmt.Sprintf("  %-12s %8s %8s %8s %8s", "Date", "Reports", "Planned", "Actual", "Skipped")))
	rows = append(rows, mutedStyle.Render("  "+strings.Repeat("─", min(w-6, 54))))

	for _, s := range r.summaries {
		actual := formatMinutes(s.ActualMinutes)
		if s.ActualMinutes > s.PlannedMinutes {
			actual = overStyle.Render(fmt.Sprintf("%8s", actual))
		} else {
			actual = fmt.Sprintf("%8s", actual)
		}
		rows = append(rows, fmt.Sprintf("  %-12s %8d %8s %s %8d",
			s.Date, s.Reports, formatMinutes(s.PlannedMinutes), actual, s.Skipped,
		))
	}

	return strings.Join(rows, "\n")
}

func renderLegend() string {
	return "  " + strings.Join([]string{
		onPlanStyle.Render("●") + " on plan",
		overStyle.Render("●") + " over",
		unusedStyle.Render("●") + " unused",
	}, "  ")
}
