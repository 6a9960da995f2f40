// Package api implements the thin HTTP/WebSocket surface spec.md §1 lists
// as an external collaborator boundary: a gin server exposing task
// triggers, execution status, and the progress WebSocket, with no
// reporting logic of its own. Modeled on the teacher's pkg/api/handlers.go
// Server/NewServer shape.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reportforge/reportengine/internal/events"
	"github.com/reportforge/reportengine/internal/models"
	"github.com/reportforge/reportengine/internal/pipeline"
)

// TaskRepository is the slice of database.TaskRepository the API needs.
type TaskRepository interface {
	Get(ctx context.Context, id string) (models.Task, error)
}

// ExecutionRepository is the slice of database.ExecutionRepository the API
// needs.
type ExecutionRepository interface {
	Get(ctx context.Context, id string) (models.TaskExecution, error)
}

// Server is the HTTP API server: task triggers, execution lookups, and the
// progress WebSocket. It owns no business logic — every request delegates
// to Pipeline or a repository.
type Server struct {
	Pipeline   *pipeline.Pipeline
	Tasks      TaskRepository
	Executions ExecutionRepository
	Events     *events.ConnectionManager
	Log        *slog.Logger

	AllowedOrigins []string // empty means accept any origin (dev default)

	router *gin.Engine
}

// NewServer creates a Server and wires its routes.
func NewServer(p *pipeline.Pipeline, tasks TaskRepository, executions ExecutionRepository, conn *events.ConnectionManager, allowedOrigins []string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		Pipeline:       p,
		Tasks:          tasks,
		Executions:     executions,
		Events:         conn,
		Log:            log.With("component", "api"),
		AllowedOrigins: allowedOrigins,
	}
	s.router = gin.New()
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()
	return s
}

// Router exposes the underlying gin.Engine for http.ListenAndServe.
func (s *Server) Router() http.Handler { return s.router }

// Run starts the HTTP server on addr, blocking until it exits.
func (s *Server) Run(addr string) error { return s.router.Run(addr) }

// ServeLocalFiles mounts dir as a static file server under urlPath, serving
// the objects storage.LocalBackend writes when the S3 primary is unavailable
// or disabled, matching the base URL passed to storage.NewLocalBackend.
func (s *Server) ServeLocalFiles(urlPath, dir string) {
	s.router.Static(urlPath, dir)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.health)

	api := s.router.Group("/api")
	{
		api.POST("/tasks/:id/trigger", s.triggerTask)
		api.GET("/executions/:id", s.getExecution)
		api.POST("/executions/:id/cancel", s.cancelExecution)
	}

	s.router.GET("/ws/executions/:id", s.subscribeExecution)
}

// requestLogger is a small gin middleware logging method/path/status/
// latency through the server's slog.Logger, mirroring the teacher's
// reliance on structured per-request logging rather than gin's default
// text logger.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Log.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}

// health handles GET /health.
func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
