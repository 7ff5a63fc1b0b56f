// Package server exposes the service over HTTP: the MCP endpoint for task
// management tools, a health probe and prometheus metrics.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"cronhub/internal/logging"
	"cronhub/internal/registry"
	"cronhub/internal/store"
)

// serverName and serverVersion identify this service in the MCP handshake.
const (
	serverName      = "cronhub"
	serverVersion   = "1.0.0"
	protocolVersion = "2025-03-26"
)

// TaskRunner executes one task on demand.
type TaskRunner interface {
	Execute(ctx context.Context, taskID string) (*store.Execution, error)
}

// SchedulerStatus reports what the scheduler is doing, for the health probe.
type SchedulerStatus interface {
	Running() []string
	IsRunning() bool
}

// Deps wires the server's collaborators.
type Deps struct {
	Store     *store.Store
	Registry  *registry.Registry
	Runner    TaskRunner
	Scheduler SchedulerStatus
	Metrics   http.Handler
	Logger    logging.Logger
}

// Server is the HTTP surface. Build with New, serve with Handler or Run.
type Server struct {
	engine *gin.Engine
	deps   Deps
	logger logging.Logger
	tools  []toolDef

	mu       sync.Mutex
	sessions map[string]time.Time
}

// New assembles the router.
func New(deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Logger())
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "Mcp-Session-Id"}
	engine.Use(cors.New(corsConfig))

	s := &Server{
		engine:   engine,
		deps:     deps,
		logger:   logging.OrNop(deps.Logger),
		sessions: make(map[string]time.Time),
	}
	s.tools = s.toolDefs()

	engine.GET("/", s.handleInfo)
	engine.GET("/health", s.handleHealth)
	if deps.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(deps.Metrics))
	}
	engine.POST("/mcp", s.handleMCP)
	engine.DELETE("/mcp", s.handleSessionClose)

	return s
}

// Handler returns the router for serving or testing.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until the listener fails.
func (s *Server) Run(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.logger.Info("HTTP server listening on %s", addr)
	return s.engine.Run(addr)
}

func (s *Server) handleInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":     serverName,
		"version":  serverVersion,
		"protocol": protocolVersion,
		"endpoints": gin.H{
			"mcp":     "/mcp",
			"health":  "/health",
			"metrics": "/metrics",
		},
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	dbStatus := "ok"
	if err := s.deps.Store.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		dbStatus = err.Error()
	}

	payload := gin.H{
		"status":   "healthy",
		"database": dbStatus,
	}
	if status != http.StatusOK {
		payload["status"] = "unhealthy"
	}
	if s.deps.Scheduler != nil {
		payload["scheduler_running"] = s.deps.Scheduler.IsRunning()
		payload["running_tasks"] = len(s.deps.Scheduler.Running())
	}
	c.JSON(status, payload)
}

func (s *Server) handleSessionClose(c *gin.Context) {
	sid := c.GetHeader("Mcp-Session-Id")
	if sid != "" {
		s.mu.Lock()
		delete(s.sessions, sid)
		s.mu.Unlock()
	}
	c.Status(http.StatusOK)
}

func (s *Server) newSession() string {
	sid := uuid.NewString()
	s.mu.Lock()
	s.sessions[sid] = time.Now()
	s.mu.Unlock()
	return sid
}
