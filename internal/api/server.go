// Package api provides the HTTP API server for nspawnium. It uses the Echo
// framework to serve REST endpoints plus a WebSocket log stream per
// container. All routes except login and the health check require a valid
// admin token.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"evalgo.org/nspawnium/internal/auth"
	"evalgo.org/nspawnium/internal/config"
	"evalgo.org/nspawnium/internal/forwards"
	"evalgo.org/nspawnium/internal/hostinfo"
	"evalgo.org/nspawnium/internal/invoker"
	"evalgo.org/nspawnium/internal/jobs"
	"evalgo.org/nspawnium/internal/lifecycle"
	"evalgo.org/nspawnium/internal/provision"
)

// Deps bundles the services the handlers operate on.
type Deps struct {
	Pipeline  *provision.Pipeline
	Registry  *jobs.Registry
	Lifecycle *lifecycle.Controller
	Forwards  *forwards.Store
	Inspector *hostinfo.Inspector
	Invoker   invoker.Invoker
}

// Server represents the nspawnium API server.
type Server struct {
	echo       *echo.Echo
	config     *config.Config
	log        *logrus.Logger
	jwtService *auth.JWTService
	authMiddle *auth.Middleware
	deps       Deps
}

// New creates a new API server instance.
func New(cfg *config.Config, log *logrus.Logger, deps Deps) *Server {
	e := echo.New()

	e.HideBanner = true
	e.HidePort = true
	e.Debug = cfg.Server.Debug

	e.HTTPErrorHandler = HTTPErrorHandler

	jwtService := auth.NewJWTService(cfg)

	server := &Server{
		echo:       e,
		config:     cfg,
		log:        log,
		jwtService: jwtService,
		authMiddle: auth.NewMiddleware(jwtService),
		deps:       deps,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	// Logger middleware
	s.echo.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "[${time_rfc3339}] ${status} ${method} ${uri} (${latency_human})\n",
	}))

	// Recover middleware
	s.echo.Use(middleware.Recover())

	// CORS middleware
	if len(s.config.Security.AllowedOrigins) > 0 {
		s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: s.config.Security.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		}))
	}

	// Request ID middleware
	s.echo.Use(middleware.RequestID())

	// Rate limiting
	if s.config.Security.RateLimit > 0 {
		s.echo.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(
			rate.Limit(s.config.Security.RateLimit),
		)))
	}
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	// Health check
	s.echo.GET("/health", s.healthCheck)

	v1 := s.echo.Group("/api/v1")

	// Authentication routes
	authRoutes := v1.Group("/auth")
	authRoutes.POST("/login", s.login)

	// Container routes
	containers := v1.Group("/containers", s.authMiddle.RequireAuth)
	containers.POST("", s.createContainer)
	containers.GET("", s.listContainers)
	containers.GET("/:name", s.getContainer)
	containers.POST("/:name/start", s.startContainer)
	containers.POST("/:name/stop", s.stopContainer)
	containers.POST("/:name/restart", s.restartContainer)
	containers.DELETE("/:name", s.deleteContainer)
	containers.GET("/:name/logs", s.getContainerLogs)

	// Creation job routes
	jobRoutes := v1.Group("/jobs", s.authMiddle.RequireAuth)
	jobRoutes.GET("", s.listJobs)
	jobRoutes.GET("/:name", s.getJob)
	jobRoutes.POST("/:name/cancel", s.cancelJob)
	jobRoutes.DELETE("/:name", s.ackJob)

	// Network routes
	network := v1.Group("/network", s.authMiddle.RequireAuth)
	network.GET("/bridge", s.getBridge)
	network.GET("/forwards", s.listForwards)
	network.POST("/forwards", s.createForward)
	network.DELETE("/forwards/:id", s.deleteForward)

	// Host system info
	v1.GET("/system", s.getSystemInfo, s.authMiddle.RequireAuth)

	// WebSocket log stream (token accepted as query parameter)
	ws := v1.Group("/ws", s.authMiddle.RequireAuth)
	ws.GET("/containers/:name/logs", s.streamContainerLogs)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	s.log.WithFields(logrus.Fields{
		"address":      addr,
		"machines_dir": s.config.Paths.MachinesDir,
		"bridge":       s.config.Network.Bridge,
	}).Info("starting API server")

	s.echo.Server.ReadTimeout = s.config.Server.ReadTimeout
	s.echo.Server.WriteTimeout = s.config.Server.WriteTimeout

	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down API server")

	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	return nil
}

// healthCheck handles health check requests.
func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": "nspawnium",
	})
}

// ServeHTTP allows Server to implement http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
