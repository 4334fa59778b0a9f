// Package webui serves the product studio over HTTP: the studio UI, the
// user API behind the identity header, public blob files, progress over
// WebSocket and the Basic-auth protected admin API.
package webui

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"productstudio/logging"
	"productstudio/metrics"
)

// Server is the HTTP server. It wires together:
//   - StaticAssetHandler for the embedded studio UI
//   - FilesHandler for public product and generated image files
//   - IdentityMiddleware and StudioAPI for /api
//   - ProgressHub for /ws/progress
//   - AdminGuard and AdminAPI for /admin/api
//   - HealthMonitor for /health
//   - LoggingMiddleware around everything
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	config     ServerConfig
	logger     *logging.Logger

	identity *IdentityMiddleware
	hub      *ProgressHub
	health   *HealthMonitor
	status   StatusReader
}

// StatusReader reports whether the service is running or stopping.
// *metrics.Store implements it.
type StatusReader interface {
	GetSystemStatus() metrics.SystemStatus
}

// ServerConfig configures the Server.
type ServerConfig struct {
	// Host to bind to (default "0.0.0.0")
	Host string

	// Port to listen on (default 8080)
	Port int

	ReadTimeout time.Duration

	// WriteTimeout must cover a whole batch: every item is a model call.
	WriteTimeout time.Duration

	IdleTimeout time.Duration

	// ShutdownTimeout bounds the graceful drain of open requests
	ShutdownTimeout time.Duration

	// IdentityHeader carries the caller's user id (default X-User-ID)
	IdentityHeader string

	StaticConfig StaticAssetConfig

	// LogSkipPaths are paths the request logger ignores
	LogSkipPaths []string
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    15 * time.Minute,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 60 * time.Second,
		IdentityHeader:  DefaultIdentityHeader,
		StaticConfig:    DefaultStaticAssetConfig(),
		LogSkipPaths:    []string{"/health"},
	}
}

// ServerDeps are the collaborators of the Server.
type ServerDeps struct {
	Studio StudioAPIConfig
	Admin  AdminAPIConfig

	// AdminGuard protects /admin/api. Required.
	AdminGuard AdminGuard

	// Provisioner creates profiles on first sight; nil disables it.
	Provisioner Provisioner

	// Files serves /files/{bucket}/{path...}
	Files FileSource

	// Hub pushes progress; created from Studio.Progress when nil.
	Hub *ProgressHub

	// Health backs /health; an empty monitor is created when nil.
	Health *HealthMonitor

	// Status turns /health unhealthy while the service is stopping.
	Status StatusReader
}

// NewServer creates a Server with every route registered.
func NewServer(config ServerConfig, deps ServerDeps, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}

	defaults := DefaultServerConfig()
	if config.Port == 0 {
		config.Port = defaults.Port
	}
	if config.Host == "" {
		config.Host = defaults.Host
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if config.StaticConfig.Prefix == "" {
		config.StaticConfig = defaults.StaticConfig
	}

	if deps.Hub == nil {
		deps.Hub = NewProgressHub(deps.Studio.Progress, DefaultHubConfig(), logger)
	}
	if deps.Health == nil {
		deps.Health = NewHealthMonitor(DefaultHealthMonitorConfig(), logger)
	}
	if deps.Admin.Health == nil {
		deps.Admin.Health = deps.Health
	}

	s := &Server{
		mux:      http.NewServeMux(),
		config:   config,
		logger:   logger.Named("webui"),
		identity: NewIdentityMiddleware(config.IdentityHeader, deps.Provisioner, logger),
		hub:      deps.Hub,
		health:   deps.Health,
		status:   deps.Status,
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /files/{bucket}/{path...}", NewFilesHandler(deps.Files, logger))
	s.mux.Handle("GET /ws/progress", s.identity.Require(http.HandlerFunc(s.hub.HandleConnection)))
	NewStudioAPI(deps.Studio, logger).RegisterRoutes(s.mux, s.identity.Require)
	NewAdminAPI(deps.Admin, logger).RegisterRoutes(s.mux, deps.AdminGuard)
	NewStaticAssetHandler(config.StaticConfig).RegisterRoutes(s.mux)

	loggingMw := NewLoggingMiddleware(LoggingMiddlewareConfig{
		Logger:         &ZapRequestLogger{Logger: logger.Named("http")},
		SkipPaths:      config.LogSkipPaths,
		IdentityHeader: s.identity.header,
	})

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      loggingMw.Handler(s.mux),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	s.logger.Info("web server created",
		zap.String("addr", addr),
		zap.Bool("auto_provision", deps.Provisioner != nil),
	)
	return s, nil
}

func (d ServerDeps) validate() error {
	switch {
	case d.Studio.Studio == nil:
		return errors.New("webui: studio is required")
	case d.Studio.Accounts == nil || d.Studio.Profiles == nil:
		return errors.New("webui: account and profile readers are required")
	case d.Studio.Catalog == nil || d.Studio.Gallery == nil:
		return errors.New("webui: catalog and gallery are required")
	case d.Studio.Progress == nil:
		return errors.New("webui: progress source is required")
	case d.Admin.Profiles == nil || d.Admin.Accounts == nil || d.Admin.Catalog == nil ||
		d.Admin.Gallery == nil || d.Admin.Metrics == nil || d.Admin.Events == nil:
		return errors.New("webui: admin dependencies are incomplete")
	case d.AdminGuard == nil:
		return errors.New("webui: admin guard is required")
	case d.Files == nil:
		return errors.New("webui: file source is required")
	}
	return nil
}

// HealthResponse represents the JSON response for /health.
type HealthResponse struct {
	Status       string             `json:"status"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	deps, healthy := s.health.Status()
	resp := HealthResponse{Status: "ok", Dependencies: deps}
	code := http.StatusOK

	switch {
	case s.status != nil && s.status.GetSystemStatus().Health == metrics.SystemHealthStopping:
		resp.Status = metrics.SystemHealthStopping
		code = http.StatusServiceUnavailable
	case !healthy:
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Hub returns the progress hub so the orchestrator's tracker can notify it.
func (s *Server) Hub() *ProgressHub {
	return s.hub
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start runs the progress hub and health monitor and serves HTTP. It
// blocks until the server is shut down.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Start(ctx)
	go s.health.Start(ctx)

	s.logger.Info("web server starting", zap.String("addr", s.httpServer.Addr))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for open requests,
// including running generations, up to ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down web server")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown error: %w", err)
	}

	s.logger.Info("web server stopped")
	return nil
}
