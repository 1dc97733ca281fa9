package store

import (
	"database/sql"
	"fmt"
)

const taskColumns = `id, name, priority, planned_seconds, status, time_spent, created_at, completed_at, updated_at`

func saveTask(tx *sql.Tx, t *Task) error {
	_, err := tx.Exec(
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			priority = excluded.priority,
			planned_seconds = excluded.planned_seconds,
			status = excluded.status,
			time_spent = excluded.time_spent,
			completed_at = excluded.completed_at,
			updated_at = excluded.updated_at`,
		t.ID, t.Name, string(t.Priority), t.PlannedSeconds, string(t.Status), t.TimeSpentSeconds,
		formatTime(t.CreatedAt), formatTimePtr(t.CompletedAt), formatTimePtr(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert task: %w", err)
	}
	return replaceExecutions(tx, "task", t.ID, t.Executions)
}

func (s *Store) ListTasks() ([]Task, error) {
	rows, err := s.db.Query(`SELECT ` + taskColumns + ` FROM tasks ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range tasks {
		tasks[i].Executions, err = s.listExecutions("task", tasks[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

func scanTask(row interface{ Scan(...any) error }) (*Task, error) {
	t := &Task{}
	var createdAt string
	var completedAt, updatedAt sql.NullString
	var priority, status string
	err := row.Scan(&t.ID, &t.Name, &priority, &t.PlannedSeconds, &status, &t.TimeSpentSeconds,
		&createdAt, &completedAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	t.Priority = Priority(priority)
	t.Status = TaskStatus(status)
	t.CreatedAt = parseTime(createdAt)
	t.CompletedAt = parseNullTime(completedAt)
	t.UpdatedAt = parseNullTime(updatedAt)
	return t, nil
}

func replaceExecutions(tx *sql.Tx, kind, ownerID string, execs []Execution) error {
	if _, err := tx.Exec(`DELETE FROM executions WHERE owner_kind = ? AND owner_id = ?`, kind, ownerID); err != nil {
		return fmt.Errorf("clear executions: %w", err)
	}
	for _, e := range execs {
		_, err := tx.Exec(
			`INSERT INTO executions (owner_kind, owner_id, task_index, started_at, ended_at, duration, completed)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			kind, ownerID, e.TaskIndex, formatTime(e.StartedAt), formatTime(e.EndedAt), e.DurationSeconds, boolInt(e.Completed),
		)
		if err != nil {
			return fmt.Errorf("insert execution: %w", err)
		}
	}
	return nil
}

func (s *Store) listExecutions(kind, ownerID string) ([]Execution, error) {
	rows, err := s.db.Query(
		`SELECT task_index, started_at, ended_at, duration, completed
		 FROM executions WHERE owner_kind = ? AND owner_id = ? ORDER BY id`, kind, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var execs []Execution
	for rows.Next() {
		var e Execution
		var startedAt, endedAt string
		var completed int
		if err := rows.Scan(&e.TaskIndex, &startedAt, &endedAt, &e.DurationSeconds, &completed); err != nil {
			return nil, err
		}
		e.StartedAt = parseTime(startedAt)
		e.EndedAt = parseTime(endedAt)
		e.Completed = completed == 1
		execs = append(execs, e)
	}
	return execs, rows.Err()
}
