// Package httpapi exposes a minimal admin/status HTTP surface over a
// FederationBroker: server/resource listing, stats, query execution,
// and virtual table management. It is a deliberately narrow slice of
// the teacher's full REST surface — bearer-JWT only, no RBAC, no
// tenant model, no SSO — since the broker has no notion of users or
// roles to enforce.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/mcp-federation-broker/internal/broker"
	"github.com/platformbuilds/mcp-federation-broker/internal/logger"
)

// Config bounds the HTTP surface, mirroring config.HTTPAPIConfig.
type Config struct {
	Addr      string
	JWTSecret string
}

// Server wraps a gin.Engine bound to one Broker.
type Server struct {
	cfg    Config
	log    logger.Logger
	broker *broker.Broker
	router *gin.Engine
	http   *http.Server
}

func NewServer(cfg Config, b *broker.Broker, log logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	s := &Server{cfg: cfg, log: log, broker: b, router: router}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("httpapi request", "method", c.Request.Method, "path", c.Request.URL.Path,
			"status", c.Writer.Status(), "durationMs", time.Since(start).Milliseconds())
	})
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	v1.Use(bearerAuth(s.cfg.JWTSecret))

	v1.GET("/servers", s.handleListServers)
	v1.DELETE("/servers/:alias", s.handleDetachServer)
	v1.POST("/servers/:alias/reset", s.handleForceResetServer)
	v1.GET("/resources", s.handleListResources)
	v1.GET("/stats", s.handleStats)
	v1.POST("/query", s.handleQuery)
	v1.DELETE("/vtables/:name", s.handleDropVirtualTable)
	v1.POST("/vtables/:name/refresh", s.handleRefreshVirtualTable)
	v1.POST("/cache/clear", s.handleClearCache)
}

// Start launches the HTTP server and blocks until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.http = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("httpapi server starting", "addr", s.cfg.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("httpapi server failed: %w", err)
	case <-ctx.Done():
		s.log.Info("httpapi server shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}
