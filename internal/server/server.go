// Package server exposes the agent's operator API over HTTP.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ecortez91/sentinel-sub001/config"
	"github.com/ecortez91/sentinel-sub001/internal/agent"
	"github.com/ecortez91/sentinel-sub001/internal/notify"
)

// Server is the HTTP operator surface.
type Server struct {
	cfg        *config.Config
	router     *gin.Engine
	handlers   *Handlers
	auth       *AuthService
	limiter    *RateLimiter
	httpServer *http.Server
}

// New builds the server around a running agent.
func New(cfg *config.Config, a *agent.Agent, notifier *notify.Notifier) *Server {
	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	auth := NewAuthService(cfg.APIKey, cfg.JWTSecret)
	limiter := NewRateLimiter(cfg.RateLimitRPS)
	handlers := NewHandlers(cfg, a, notifier, auth)

	s := &Server{
		cfg:      cfg,
		router:   router,
		handlers: handlers,
		auth:     auth,
		limiter:  limiter,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(RecoveryMiddleware())
	s.router.Use(LoggerMiddleware())
	s.router.Use(CORSMiddleware(s.cfg.AllowedOrigins))
	s.router.Use(RateLimitMiddleware(s.limiter))
}

func (s *Server) setupRoutes() {
	// Health check (no auth)
	s.router.GET("/health", s.handlers.HealthCheck)

	api := s.router.Group("/api")
	api.Use(AuthMiddleware(s.auth))
	{
		// Thermal state
		api.GET("/thermal", s.handlers.GetThermal)
		api.GET("/thermal/history", s.handlers.GetThermalHistory)
		api.GET("/alerts", s.handlers.GetAlerts)

		// Shutdown escalation
		api.GET("/shutdown", s.handlers.GetShutdownStatus)
		api.POST("/shutdown/abort", s.handlers.AbortShutdown)

		// System metrics
		api.GET("/metrics", s.handlers.GetMetrics)
		api.GET("/metrics/sensors", s.handlers.GetSensorTemps)

		// Heat sources
		api.GET("/processes", s.handlers.ListProcesses)
		api.GET("/containers", s.handlers.ListContainers)

		// Notifications
		api.POST("/notify/test", s.handlers.TestNotification)

		// Token exchange
		api.POST("/auth/token", s.handlers.IssueToken)
	}
}

// Run serves until SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Run() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Printf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("Starting Sentinel agent API on %s", s.cfg.Addr())

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	if err := s.handlers.Close(); err != nil {
		log.Printf("Error closing handlers: %v", err)
	}

	log.Println("Server stopped")
	return nil
}

// Router returns the Gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}
