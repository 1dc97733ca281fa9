package store

import (
	"fmt"
	"time"
)

const reportColumns = `id, task_id, task_name, session_id, task_index, status, skipped, completion_percentage,
	planned_minutes, actual_minutes, delay_reason, difficulty, quality, notes, next_actions, reported_at`

// AppendReport stores a completion report. Reports are never updated.
func (s *Store) AppendReport(r *CompletionReport) error {
	_, err := s.db.Exec(
		`INSERT INTO reports (`+reportColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TaskID, r.TaskName, r.SessionID, r.TaskIndex, string(r.Status), boolInt(r.Skipped),
		r.CompletionPercentage, r.PlannedMinutes, r.ActualMinutes, r.DelayReason, string(r.Difficulty),
		r.Quality, r.Notes, r.NextActions, formatTime(r.ReportedAt),
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (s *Store) ListReports(f ReportFilter) ([]CompletionReport, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE 1=1`
	var args []any

	if f.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, f.SessionID)
	}
	if f.From != nil {
		query += ` AND reported_at >= ?`
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		query += ` AND reported_at < ?`
		args = append(args, formatTime(*f.To))
	}
	query += ` ORDER BY reported_at, id`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []CompletionReport
	for rows.Next() {
		var r CompletionReport
		var status, difficulty, reportedAt string
		var skipped int
		if err := rows.Scan(&r.ID, &r.TaskID, &r.TaskName, &r.SessionID, &r.TaskIndex, &status, &skipped,
			&r.CompletionPercentage, &r.PlannedMinutes, &r.ActualMinutes, &r.DelayReason, &difficulty,
			&r.Quality, &r.Notes, &r.NextActions, &reportedAt); err != nil {
			return nil, err
		}
		r.Status = ReportStatus(status)
		r.Skipped = skipped == 1
		r.Difficulty = Difficulty(difficulty)
		r.ReportedAt = parseTime(reportedAt)
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// GetDailySummary aggregates reports per UTC day in [from, to).
func (s *Store) GetDailySummary(from, to time.Time) ([]DailySummary, error) {
	rows, err := s.db.Query(`
		SELECT substr(reported_at, 1, 10) AS day, COUNT(*),
		       COALESCE(SUM(planned_minutes), 0), COALESCE(SUM(actual_minutes), 0),
		       COALESCE(SUM(skipped), 0)
		FROM reports
		WHERE reported_at >= ? AND reported_at < ?
		GROUP BY day
		ORDER BY day`,
		formatTime(from), formatTime(to),
	)
	if err != nil {
		return nil, fmt.Errorf("daily summary: %w", err)
	}
	defer rows.Close()

	var summaries []DailySummary
	for rows.Next() {
		var ds DailySummary
		if err := rows.Scan(&ds.Date, &ds.Reports, &ds.PlannedMinutes, &ds.ActualMinutes, &ds.Skipped); err != nil {
			return nil, err
		}
		summaries = append(summaries, ds)
	}
	return summaries, rows.Err()
}

// GetTodayTotal returns the actual minutes reported today (UTC).
func (s *Store) GetTodayTotal() (int64, error) {
	today := time.Now().UTC().Format("2006-01-02")
	var total int64
	err := s.db.QueryRow(`
		SELECT COALESCE(SUM(actual_minutes), 0)
		FROM reports
		WHERE substr(reported_at, 1, 10) = ?`, today,
	).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}
