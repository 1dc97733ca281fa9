package engine

import (
	"github.com/google/uuid"

	"github.com/sadopc/tempo/internal/store"
)

// CreateTask adds a pending standalone task.
func (c *Controller) CreateTask(name string, priority store.Priority, plannedMinutes int) (*store.Task, error) {
	name, err := validateName("name", name)
	if err != nil {
		return nil, err
	}
	if priority, err = validatePriority("priority", priority); err != nil {
		return nil, err
	}
	if plannedMinutes <= 0 {
		return nil, &ValidationError{Field: "plannedDurationMinutes", Message: "must be positive"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	t := &store.Task{
		ID:             uuid.NewString(),
		Name:           name,
		Priority:       priority,
		PlannedSeconds: int64(plannedMinutes) * 60,
		Status:         store.TaskPending,
		CreatedAt:      c.now(),
	}
	c.tasks[t.ID] = t
	c.taskOrder = append(c.taskOrder, t.ID)
	c.markDirty()
	return t.Clone(), nil
}

// SelectTask binds a pending standalone task to the timer.
func (c *Controller) SelectTask(id string) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tasks[id]
	if !ok {
		return c.logIgnored("select task", ignored(ErrTaskNotFound))
	}
	if t.Status != store.TaskPending {
		return c.logIgnored("select task", ignored(ErrTaskFinished))
	}
	if c.cur != nil && !c.cur.task.InSession() && c.cur.task.ID == id {
		return Outcome{Applied: true}
	}
	c.switchActiveLocked(store.ActiveFromTask(t))
	return Outcome{Applied: true}
}

// CompleteTask marks a standalone task completed without a report.
func (c *Controller) CompleteTask(id string) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tasks[id]
	if !ok {
		return c.logIgnored("complete task", ignored(ErrTaskNotFound))
	}
	if t.Status != store.TaskPending {
		return c.logIgnored("complete task", ignored(ErrTaskFinished))
	}
	if c.cur != nil && !c.cur.task.InSession() && c.cur.task.ID == id {
		if c.cur.timer.Running() {
			if _, err := c.cur.timer.Pause(); err == nil {
				c.recordRunLocked(true)
			}
		}
		c.switchActiveLocked(nil)
	}
	now := c.now()
	t.Status = store.TaskCompleted
	t.CompletedAt = &now
	t.UpdatedAt = &now
	c.markDirty()
	return Outcome{Applied: true}
}

// DeleteTask removes a standalone task. Deleting the active task clears it.
func (c *Controller) DeleteTask(id string) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tasks[id]; !ok {
		return c.logIgnored("delete task", ignored(ErrTaskNotFound))
	}
	if c.cur != nil && !c.cur.task.InSession() && c.cur.task.ID == id {
		c.switchActiveLocked(nil)
	}
	delete(c.tasks, id)
	for i, tid := range c.taskOrder {
		if tid == id {
			c.taskOrder = append(c.taskOrder[:i], c.taskOrder[i+1:]...)
			break
		}
	}
	c.markDirty()
	return Outcome{Applied: true}
}
