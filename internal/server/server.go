// Package server exposes the research pipeline over HTTP: task submission,
// report retrieval, model listing, and a WebSocket progress channel with
// history replay.
package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nicheradar/nicheradar/internal/config"
	"github.com/nicheradar/nicheradar/internal/progress"
	"github.com/nicheradar/nicheradar/internal/research"
	"github.com/nicheradar/nicheradar/internal/storage"
)

// historyRetention is how long a finished task's progress history stays
// available for late subscribers before it is pruned.
const historyRetention = 10 * time.Minute

// Runner executes one research job. Implemented by research.Orchestrator.
type Runner interface {
	Run(ctx context.Context, req research.Request, taskID string) (*storage.Report, error)
}

// Server holds the HTTP layer's dependencies.
type Server struct {
	runner      Runner
	broadcaster *progress.Broadcaster
	store       storage.Repository
	models      config.ModelsConfig
	logger      *slog.Logger

	// afterRun, when set, is called once a background job finishes. Used by
	// tests to synchronize on completion.
	afterRun func(taskID string)
}

func New(runner Runner, broadcaster *progress.Broadcaster, store storage.Repository, models config.ModelsConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		runner:      runner,
		broadcaster: broadcaster,
		store:       store,
		models:      models,
		logger:      logger,
	}
}

// Router builds the gin engine with middleware and all routes.
func (s *Server) Router(allowedOrigins []string, perIPPerMinute int) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(CORSMiddleware(allowedOrigins))
	router.Use(RateLimitMiddleware(perIPPerMinute))

	router.GET("/healthz", s.health)
	router.GET("/api/models", s.listModels)
	router.POST("/api/research/tasks", s.startTask)
	router.GET("/api/reports/:id", s.getReport)
	router.POST("/api/reports/:id/mark-paid", s.markPaid)
	router.GET("/ws/progress/:task_id", s.wsProgress)

	return router
}

func (s *Server) health(c *gin.Context) {
	c.JSON(200, gin.H{
		"service": "nicheradar",
		"status":  "running",
	})
}

func (s *Server) listModels(c *gin.Context) {
	c.JSON(200, gin.H{
		"basic_model":      s.models.Basic,
		"advanced_models":  s.models.AdvancedChoices,
		"default_advanced": s.models.Advanced,
	})
}
