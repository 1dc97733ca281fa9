package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SaveState replaces the persisted tasks, sessions, sync marks and active
// snapshot in one transaction. Reports are left alone. The timer is stored as paused: a
// running timer is never resumed after a reload.
func (s *Store) SaveState(st *State) error {
	var activeTask string
	if st.ActiveTask != nil {
		data, err := json.Marshal(st.ActiveTask)
		if err != nil {
			return fmt.Errorf("marshal active task: %w", err)
		}
		activeTask = string(data)
	}
	activeSessionID := ""
	if st.ActiveSession != nil {
		activeSessionID = st.ActiveSession.ID
	}

	return s.WithTx(context.Background(), func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM executions`,
			`DELETE FROM session_tasks`,
			`DELETE FROM sessions`,
			`DELETE FROM tasks`,
		} {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("clear state: %w", err)
			}
		}
		for i := range st.Tasks {
			if err := saveTask(tx, &st.Tasks[i]); err != nil {
				return err
			}
		}
		for i := range st.Sessions {
			if err := saveSession(tx, &st.Sessions[i]); err != nil {
				return err
			}
		}
		for id, since := range st.SyncPending {
			if _, err := tx.Exec(`UPDATE sessions SET sync_pending_since = ? WHERE id = ?`, formatTime(since), id); err != nil {
				return fmt.Errorf("mark sync pending: %w", err)
			}
		}
		_, err := tx.Exec(
			`INSERT INTO app_state (id, active_task, active_session_id, current_task_index, timer_remaining, timer_total, last_saved_at)
			 VALUES (1, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
				active_task = excluded.active_task,
				active_session_id = excluded.active_session_id,
				current_task_index = excluded.current_task_index,
				timer_remaining = excluded.timer_remaining,
				timer_total = excluded.timer_total,
				last_saved_at = excluded.last_saved_at`,
			activeTask, activeSessionID, st.CurrentSessionTaskIndex,
			st.Timer.RemainingSeconds, st.Timer.TotalSeconds, formatTimePtr(st.LastSavedAt),
		)
		if err != nil {
			return fmt.Errorf("save app state: %w", err)
		}
		return nil
	})
}

// LoadState reads tasks, sessions and the active snapshot.
func (s *Store) LoadState() (*State, error) {
	tasks, err := s.ListTasks()
	if err != nil {
		return nil, err
	}
	sessions, err := s.ListSessions()
	if err != nil {
		return nil, err
	}
	st := &State{Tasks: tasks, Sessions: sessions}
	if st.SyncPending, err = s.listSyncPending(); err != nil {
		return nil, err
	}

	var activeTask, activeSessionID string
	var lastSaved sql.NullString
	err = s.db.QueryRow(
		`SELECT active_task, active_session_id, current_task_index, timer_remaining, timer_total, last_saved_at
		 FROM app_state WHERE id = 1`,
	).Scan(&activeTask, &activeSessionID, &st.CurrentSessionTaskIndex,
		&st.Timer.RemainingSeconds, &st.Timer.TotalSeconds, &lastSaved)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load app state: %w", err)
	}

	if activeTask != "" {
		var at ActiveTask
		if err := json.Unmarshal([]byte(activeTask), &at); err != nil {
			return nil, fmt.Errorf("decode active task: %w", err)
		}
		st.ActiveTask = &at
	}
	for i := range sessions {
		if sessions[i].ID == activeSessionID {
			st.ActiveSession = sessions[i].Clone()
			break
		}
	}
	st.LastSavedAt = parseNullTime(lastSaved)
	return st, nil
}

func (s *Store) listSyncPending() (map[string]time.Time, error) {
	rows, err := s.db.Query(`SELECT id, sync_pending_since FROM sessions WHERE sync_pending_since IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("list sync pending: %w", err)
	}
	defer rows.Close()

	var pending map[string]time.Time
	for rows.Next() {
		var id, since string
		if err := rows.Scan(&id, &since); err != nil {
			return nil, err
		}
		if pending == nil {
			pending = make(map[string]time.Time)
		}
		pending[id] = parseTime(since)
	}
	return pending, rows.Err()
}

// LastSavedAt returns when the snapshot was last written, or nil.
func (s *Store) LastSavedAt() (*time.Time, error) {
	var lastSaved sql.NullString
	err := s.db.QueryRow(`SELECT last_saved_at FROM app_state WHERE id = 1`).Scan(&lastSaved)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read last saved: %w", err)
	}
	return parseNullTime(lastSaved), nil
}
