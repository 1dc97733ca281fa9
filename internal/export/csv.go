package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/sadopc/tempo/internal/store"
)

// WriteReportsCSV writes one row per completion report.
func WriteReportsCSV(w io.Writer, reports []store.CompletionReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"Reported", "Task", "Session", "Index", "Status", "Completion %",
		"Planned (min)", "Actual (min)", "Difficulty", "Quality", "Delay reason", "Notes", "Next actions",
	}); err != nil {
		return err
	}
	for _, r := range reports {
		index := ""
		if r.SessionID != "" {
			index = strconv.Itoa(r.TaskIndex)
		}
		row := []string{
			r.ReportedAt.Local().Format(time.RFC3339),
			r.TaskName,
			r.SessionID,
			index,
			string(r.Status),
			strconv.Itoa(r.CompletionPercentage),
			strconv.Itoa(r.PlannedMinutes),
			strconv.Itoa(r.ActualMinutes),
			string(r.Difficulty),
			strconv.Itoa(r.Quality),
			r.DelayReason,
			r.Notes,
			r.NextActions,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSessionsCSV writes one row per session with its planned and actual
// time as hh:mm:ss.
func WriteSessionsCSV(w io.Writer, sessions []store.Session) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"ID", "Name", "Status", "Tasks", "Completed", "Planned", "Actual", "Started", "Finished"}); err != nil {
		return err
	}
	for _, s := range sessions {
		row := []string{
			s.ID,
			s.Name,
			string(s.Status),
			strconv.Itoa(len(s.Tasks)),
			strconv.Itoa(s.CompletedTaskCount),
			formatDuration(s.TotalPlannedSeconds),
			formatDuration(s.ActualTimeSeconds),
			formatTimePtr(s.StartedAt),
			formatTimePtr(s.CompletedAt),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func ReportsToCSV(reports []store.CompletionReport, path string) error {
	return writeFile(path, func(w io.Writer) error { return WriteReportsCSV(w, reports) })
}

func SessionsToCSV(sessions []store.Session, path string) error {
	return writeFile(path, func(w io.Writer) error { return WriteSessionsCSV(w, sessions) })
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Local().Format(time.RFC3339)
}

func formatDuration(secs int64) string {
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
