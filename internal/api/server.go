// Package api implements the HTTP server behind the timeline UI.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yolo-detection/yolo-timeline/internal/config"
	"github.com/yolo-detection/yolo-timeline/internal/db"
	"github.com/yolo-detection/yolo-timeline/internal/models"
	"github.com/yolo-detection/yolo-timeline/internal/timeutil"
)

const serviceName = "yolo-timeline"

// Server represents the HTTP API server.
type Server struct {
	config     *config.Config
	logger     *zap.Logger
	router     *gin.Engine
	httpServer *http.Server
	pool       *db.Pool
	store      *db.EventStore
	cameras    []models.Camera
	clock      timeutil.Clock
	snapshots  *snapshotProxy
	registry   *prometheus.Registry
	metrics    *httpMetrics
}

// ServerOption customizes a Server.
type ServerOption func(*Server)

// WithClock replaces the clock used for default dates and health timestamps.
func WithClock(clock timeutil.Clock) ServerOption {
	return func(s *Server) {
		s.clock = clock
	}
}

// NewServer creates a new API server instance.
func NewServer(cfg *config.Config, pool *db.Pool, store *db.EventStore, logger *zap.Logger, opts ...ServerOption) (*Server, error) {
	// Set Gin mode based on log level
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	snapshots, err := newSnapshotProxy(cfg.Timeline.DetectionServiceURL, logger)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		db.NewPoolCollector(pool),
	)

	srv := &Server{
		config:    cfg,
		logger:    logger,
		router:    gin.New(),
		pool:      pool,
		store:     store,
		cameras:   cfg.CameraList(),
		clock:     timeutil.UTCClock{},
		snapshots: snapshots,
		registry:  registry,
		metrics:   newHTTPMetrics(registry),
	}
	for _, opt := range opts {
		opt(srv)
	}

	// Add middleware
	srv.router.Use(gin.Recovery())
	srv.router.Use(requestID())
	srv.router.Use(zapLogger(logger))
	srv.router.Use(srv.metrics.middleware())
	srv.router.Use(newCORS(cfg.Timeline.CORSOrigins))

	srv.setupRoutes()

	srv.httpServer = &http.Server{
		Addr:              cfg.Timeline.Address(),
		Handler:           srv.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Recordings can be large; the write timeout bounds a whole response.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return srv, nil
}

// setupRoutes configures all routes.
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	ui := s.router.Group("/api")
	{
		ui.GET("/events", s.handleListEvents)
		ui.GET("/events/:event_id", s.handleEventDetail)
		ui.GET("/timeline", s.handleTimeline)
		ui.GET("/cameras/status", s.handleCamerasStatus)
		ui.GET("/cameras/:camera_id/snapshot", s.handleCameraSnapshot)
	}

	// Recorded media
	s.router.GET("/events/:filename", s.handleEventFile)
	s.router.GET("/snapshots/:filename", s.handleSnapshotFile)

	if s.config.Metrics.Enabled {
		s.router.GET(s.config.Metrics.Path, gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})))
	}

	// Everything else is the single-page UI.
	s.router.NoRoute(s.handleSPA)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server on the configured address. It returns
// http.ErrServerClosed after Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("Listening", zap.String("address", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":   serviceName,
		"status":    "healthy",
		"timestamp": timeutil.FormatTimestamp(s.clock.Now()),
		"database":  s.pool.Stats(),
		"snapshots": s.snapshots.state(),
	})
}
