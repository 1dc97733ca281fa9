package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

const sessionColumns = `id, name, status, current_task_index, completed_task_count, total_planned, actual_time,
	cancel_reason, created_at, started_at, completed_at, updated_at`

// SaveSession inserts or replaces a session, its task specs and executions.
func (s *Store) SaveSession(sess *Session) error {
	return s.WithTx(context.Background(), func(tx *sql.Tx) error {
		return saveSession(tx, sess)
	})
}

func saveSession(tx *sql.Tx, sess *Session) error {
	_, err := tx.Exec(
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			current_task_index = excluded.current_task_index,
			completed_task_count = excluded.completed_task_count,
			total_planned = excluded.total_planned,
			actual_time = excluded.actual_time,
			cancel_reason = excluded.cancel_reason,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			updated_at = excluded.updated_at`,
		sess.ID, sess.Name, string(sess.Status), sess.CurrentTaskIndex, sess.CompletedTaskCount,
		sess.TotalPlannedSeconds, sess.ActualTimeSeconds, sess.CancelReason,
		formatTime(sess.CreatedAt), formatTimePtr(sess.StartedAt), formatTimePtr(sess.CompletedAt), formatTimePtr(sess.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM session_tasks WHERE session_id = ?`, sess.ID); err != nil {
		return fmt.Errorf("clear session tasks: %w", err)
	}
	for i, spec := range sess.Tasks {
		_, err := tx.Exec(
			`INSERT INTO session_tasks (session_id, position, name, priority, planned_minutes) VALUES (?, ?, ?, ?, ?)`,
			sess.ID, i, spec.Name, string(spec.Priority), spec.PlannedMinutes,
		)
		if err != nil {
			return fmt.Errorf("insert session task: %w", err)
		}
	}
	return replaceExecutions(tx, "session", sess.ID, sess.Executions)
}

// GetSession returns ErrNotFound (wrapped) when the session does not exist.
func (s *Store) GetSession(id string) (*Session, error) {
	sess, err := scanSession(s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	if err := s.loadSessionChildren(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Store) ListSessions() ([]Session, error) {
	rows, err := s.db.Query(`SELECT ` + sessionColumns + ` FROM sessions ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range sessions {
		if err := s.loadSessionChildren(&sessions[i]); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

func (s *Store) loadSessionChildren(sess *Session) error {
	rows, err := s.db.Query(
		`SELECT name, priority, planned_minutes FROM session_tasks WHERE session_id = ? ORDER BY position`, sess.ID,
	)
	if err != nil {
		return fmt.Errorf("list session tasks: %w", err)
	}
	defer rows.Close()

	var specs []TaskSpec
	for rows.Next() {
		var spec TaskSpec
		var priority string
		if err := rows.Scan(&spec.Name, &priority, &spec.PlannedMinutes); err != nil {
			return err
		}
		spec.Priority = Priority(priority)
		specs = append(specs, spec)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	sess.Tasks = specs

	sess.Executions, err = s.listExecutions("session", sess.ID)
	return err
}

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	sess := &Session{}
	var status, createdAt string
	var startedAt, completedAt, updatedAt sql.NullString
	err := row.Scan(&sess.ID, &sess.Name, &status, &sess.CurrentTaskIndex, &sess.CompletedTaskCount,
		&sess.TotalPlannedSeconds, &sess.ActualTimeSeconds, &sess.CancelReason,
		&createdAt, &startedAt, &completedAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	sess.Status = SessionStatus(status)
	sess.CreatedAt = parseTime(createdAt)
	sess.StartedAt = parseNullTime(startedAt)
	sess.CompletedAt = parseNullTime(completedAt)
	sess.UpdatedAt = parseNullTime(updatedAt)
	return sess, nil
}
