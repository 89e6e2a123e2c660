// Package control exposes the job-control HTTP surface consumed by outer
// layers: start/pause/resume/cancel, status, configuration, and a
// websocket progress stream.
package control

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/hostmirror/hostmirror/internal/config"
	"github.com/hostmirror/hostmirror/internal/sync"
)

// Server wires the sync engine and config holder into a gin router.
type Server struct {
	engine *sync.Engine
	holder *config.Holder
	logger *slog.Logger
}

// New creates the control server.
func New(engine *sync.Engine, holder *config.Holder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{engine: engine, holder: holder, logger: logger}
}

// Router builds the HTTP routes.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = s.holder.Config().Control.AllowedOrigins
	corsCfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut}
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", s.health)

	api := r.Group("/api")
	{
		api.POST("/sync/start", s.startSync)
		api.POST("/sync/pause", s.pauseSync)
		api.POST("/sync/resume", s.resumeSync)
		api.POST("/sync/cancel", s.cancelSync)
		api.GET("/sync/status", s.syncStatus)
		api.GET("/sync/ws", s.progressSocket)
		api.GET("/config", s.getConfig)
		api.PUT("/config", s.putConfig)
	}

	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

// startRequest is the body of POST /api/sync/start. The override fields
// are optional and apply to this job only.
type startRequest struct {
	AccountID                string `json:"account_id" binding:"required"`
	BatchSize                *int   `json:"batch_size"`
	MaxRetries               *int   `json:"max_retries"`
	EnableDuplicateDetection *bool  `json:"enable_duplicate_detection"`
	SyncTimeoutMs            *int   `json:"sync_timeout_ms"`
}

// validateOverrides holds per-job overrides to the same ranges the
// configuration file is held to.
func validateOverrides(req startRequest) error {
	if req.BatchSize != nil && (*req.BatchSize < config.MinBatchSize || *req.BatchSize > config.MaxBatchSize) {
		return fmt.Errorf("batch_size must be between %d and %d, got %d",
			config.MinBatchSize, config.MaxBatchSize, *req.BatchSize)
	}

	if req.MaxRetries != nil && (*req.MaxRetries < config.MinMaxRetries || *req.MaxRetries > config.MaxMaxRetries) {
		return fmt.Errorf("max_retries must be between %d and %d, got %d",
			config.MinMaxRetries, config.MaxMaxRetries, *req.MaxRetries)
	}

	if req.SyncTimeoutMs != nil && *req.SyncTimeoutMs < config.MinSyncTimeoutMs {
		return fmt.Errorf("sync_timeout_ms must be at least %d, got %d",
			config.MinSyncTimeoutMs, *req.SyncTimeoutMs)
	}

	return nil
}

func (s *Server) startSync(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := validateOverrides(req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	ov := sync.Overrides{
		BatchSize:                req.BatchSize,
		MaxRetries:               req.MaxRetries,
		EnableDuplicateDetection: req.EnableDuplicateDetection,
	}

	if req.SyncTimeoutMs != nil {
		d := time.Duration(*req.SyncTimeoutMs) * time.Millisecond
		ov.Timeout = &d
	}

	snap, err := s.engine.Start(req.AccountID, ov)
	if errors.Is(err, sync.ErrSyncConflict) {
		c.JSON(http.StatusConflict, gin.H{"error": "a sync job is already active"})
		return
	}

	if errors.Is(err, sync.ErrInvalidConfig) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, snap)
}

func (s *Server) pauseSync(c *gin.Context) {
	s.jobControl(c, s.engine.Pause)
}

func (s *Server) resumeSync(c *gin.Context) {
	s.jobControl(c, s.engine.Resume)
}

func (s *Server) cancelSync(c *gin.Context) {
	s.jobControl(c, s.engine.Cancel)
}

// jobControl handles the shared shape of pause/resume/cancel.
func (s *Server) jobControl(c *gin.Context, op func() error) {
	err := op()
	if errors.Is(err, sync.ErrNoActiveJob) {
		c.JSON(http.StatusConflict, gin.H{"error": "no active sync job"})
		return
	}

	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, s.engine.Status())
}

func (s *Server) syncStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Status())
}

func (s *Server) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.holder.Config())
}

// putConfig replaces the sync section at runtime. The change applies to
// the next job; it is not written back to the config file.
func (s *Server) putConfig(c *gin.Context) {
	var syncCfg config.SyncConfig
	if err := c.ShouldBindJSON(&syncCfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	next := *s.holder.Config()
	next.Sync = syncCfg

	if err := s.holder.Update(&next); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	s.logger.Info("configuration updated via control API")

	c.JSON(http.StatusOK, s.holder.Config())
}
