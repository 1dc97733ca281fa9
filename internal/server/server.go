// Package server is the session authority: a small HTTP API that stores the
// canonical copy of every work session and applies progress monotonically.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sadopc/tempo/internal/store"
)

// Sessions is the storage the server needs. *store.Store implements it.
type Sessions interface {
	GetSession(id string) (*store.Session, error)
	SaveSession(s *store.Session) error
}

type Server struct {
	sessions Sessions
	token    string
	now      func() time.Time
	log      *slog.Logger
	router   *gin.Engine

	// mu serializes read-modify-write cycles on sessions.
	mu sync.Mutex
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New builds the server. An empty token disables authentication.
func New(sessions Sessions, token string, opts ...Option) *Server {
	s := &Server{
		sessions: sessions,
		token:    token,
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "server")

	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())
	router.GET("/healthz", s.handleHealth)

	api := router.Group("/", s.requireToken())
	{
		api.POST("/sessions", s.handleCreate)
		api.GET("/sessions/:id", s.handleGet)
		api.PUT("/sessions/:id", s.handleUpdate)
		api.POST("/sessions/:id/tasks/:index/complete", s.handleComplete)
	}
	s.router = router
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("stopped")
	return nil
}

func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.token == "" {
			c.Next()
			return
		}
		if c.GetHeader("Authorization") != "Bearer "+s.token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing token"})
			return
		}
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Next()
		s.log.Info("request",
			"request_id", id,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
