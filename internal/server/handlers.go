package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sadopc/tempo/internal/remote"
	"github.com/sadopc/tempo/internal/store"
)

var (
	errFinished    = errors.New("session already finished")
	errIndexAhead  = errors.New("task index ahead of session")
	errInvalidPlan = errors.New("invalid session plan")
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleGet(c *gin.Context) {
	sess, err := s.sessions.GetSession(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// handleCreate stores a new session. Creating an id that already exists
// returns the stored copy unchanged.
func (s *Server) handleCreate(c *gin.Context) {
	var sess store.Session
	if err := c.ShouldBindJSON(&sess); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := normalizePlan(&sess); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.ID == "" {
		sess.ID = uuid.NewString()
	} else if existing, err := s.sessions.GetSession(sess.ID); err == nil {
		c.JSON(http.StatusOK, existing)
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		s.fail(c, err)
		return
	}

	now := s.now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = &now
	if err := s.sessions.SaveSession(&sess); err != nil {
		s.fail(c, err)
		return
	}
	s.log.Info("session created", "session_id", sess.ID, "tasks", len(sess.Tasks))
	c.JSON(http.StatusCreated, &sess)
}

func (s *Server) handleUpdate(c *gin.Context) {
	var patch remote.SessionPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.GetSession(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := applyPatch(sess, patch); err != nil {
		s.fail(c, err)
		return
	}
	now := s.now().UTC()
	sess.UpdatedAt = &now
	if err := s.sessions.SaveSession(sess); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// handleComplete advances the session past task index. Completing an index
// the session has already moved past is a no-op that returns the session.
func (s *Server) handleComplete(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task index"})
		return
	}
	var body remote.TaskCompletion
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.GetSession(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if index < sess.CurrentTaskIndex {
		c.JSON(http.StatusOK, sess)
		return
	}
	if sess.Status.Terminal() {
		s.fail(c, errFinished)
		return
	}
	if index > sess.CurrentTaskIndex || index >= len(sess.Tasks) {
		s.fail(c, errIndexAhead)
		return
	}

	now := s.now().UTC()
	if sess.Status == store.SessionPending {
		sess.Status = store.SessionInProgress
		sess.StartedAt = &now
	}
	sess.CompletedTaskCount++
	sess.CurrentTaskIndex++
	if sess.CurrentTaskIndex >= len(sess.Tasks) {
		sess.Status = store.SessionCompleted
		sess.CompletedTaskCount = len(sess.Tasks)
		sess.CompletedAt = &now
	}
	sess.UpdatedAt = &now
	if err := s.sessions.SaveSession(sess); err != nil {
		s.fail(c, err)
		return
	}
	s.log.Info("task completed",
		"session_id", sess.ID,
		"index", index,
		"is_completed", body.IsCompleted,
		"percentage", body.CompletionPercentage)
	c.JSON(http.StatusOK, sess)
}

func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, errFinished), errors.Is(err, errIndexAhead):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, errInvalidPlan):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		s.log.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// normalizePlan validates a submitted session and fills derived fields.
func normalizePlan(sess *store.Session) error {
	if strings.TrimSpace(sess.Name) == "" {
		return fmt.Errorf("%w: name is required", errInvalidPlan)
	}
	if len(sess.Tasks) == 0 {
		return fmt.Errorf("%w: at least one task is required", errInvalidPlan)
	}
	var total int64
	for i, t := range sess.Tasks {
		if strings.TrimSpace(t.Name) == "" || t.PlannedMinutes <= 0 {
			return fmt.Errorf("%w: task %d needs a name and a positive duration", errInvalidPlan, i)
		}
		if t.Priority == "" {
			sess.Tasks[i].Priority = store.PriorityMedium
		}
		total += t.PlannedSeconds()
	}
	sess.TotalPlannedSeconds = total
	if sess.Status == "" {
		sess.Status = store.SessionPending
	}
	n := len(sess.Tasks)
	if sess.CurrentTaskIndex < 0 {
		sess.CurrentTaskIndex = 0
	}
	if sess.CurrentTaskIndex > n {
		sess.CurrentTaskIndex = n
	}
	if sess.CompletedTaskCount > n {
		sess.CompletedTaskCount = n
	}
	if sess.Status == store.SessionCompleted {
		sess.CompletedTaskCount = n
		sess.CurrentTaskIndex = n
	}
	return nil
}

// applyPatch merges progress into sess. Counts, indexes and elapsed time
// never move backwards and a finished session cannot be reopened.
func applyPatch(sess *store.Session, p remote.SessionPatch) error {
	if p.Status != nil && *p.Status != sess.Status {
		switch {
		case sess.Status.Terminal():
			return errFinished
		case *p.Status == store.SessionPending:
		default:
			sess.Status = *p.Status
		}
	}
	n := len(sess.Tasks)
	if p.CompletedTaskCount != nil && *p.CompletedTaskCount > sess.CompletedTaskCount {
		sess.CompletedTaskCount = min(*p.CompletedTaskCount, n)
	}
	if p.CurrentTaskIndex != nil && *p.CurrentTaskIndex > sess.CurrentTaskIndex {
		sess.CurrentTaskIndex = min(*p.CurrentTaskIndex, n)
	}
	if p.ActualTimeSeconds != nil && *p.ActualTimeSeconds > sess.ActualTimeSeconds {
		sess.ActualTimeSeconds = *p.ActualTimeSeconds
	}
	if sess.StartedAt == nil && p.StartedAt != nil {
		t := p.StartedAt.UTC()
		sess.StartedAt = &t
	}
	if p.CompletedAt != nil && sess.Status.Terminal() && sess.CompletedAt == nil {
		t := p.CompletedAt.UTC()
		sess.CompletedAt = &t
	}
	if p.CancelReason != nil && sess.Status == store.SessionCancelled {
		sess.CancelReason = *p.CancelReason
	}
	if sess.Status == store.SessionCompleted {
		sess.CompletedTaskCount = n
		sess.CurrentTaskIndex = n
	}
	if sess.CurrentTaskIndex == n && sess.Status != store.SessionCompleted {
		sess.CurrentTaskIndex = n - 1
	}
	return nil
}
