package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/svcgateway/svcgw/internal/auth"
	"github.com/svcgateway/svcgw/internal/config"
	"github.com/svcgateway/svcgw/internal/health"
)

// ginModeOnce ensures gin.SetMode is only called once to avoid race conditions.
var ginModeOnce sync.Once

// Server is the gateway's HTTP server. Gateway-owned endpoints
// (health, metrics, revocation) are registered explicitly; everything
// else falls through to the admission pipeline.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	pipeline   *Pipeline
	logger     *zap.Logger
	config     *config.ServerConfig

	mu      sync.Mutex
	running bool
}

// ServerOptions holds the server's collaborators.
type ServerOptions struct {
	Config         *config.ServerConfig
	Pipeline       *Pipeline
	Health         *health.Handler
	Revocation     auth.RevocationList
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewServer creates the gateway HTTP server and registers its routes.
func NewServer(opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	engine := gin.New()
	engine.Use(
		Recovery(logger),
		RequestID(),
		LoggingWithConfig(LoggingConfig{
			Logger:    logger,
			SkipPaths: []string{"/health", "/metrics"},
		}),
	)
	if len(opts.AllowedOrigins) > 0 {
		engine.Use(CORS(opts.AllowedOrigins))
	}

	s := &Server{
		engine:   engine,
		pipeline: opts.Pipeline,
		logger:   logger,
		config:   opts.Config,
	}

	if opts.Health != nil {
		engine.GET("/health", opts.Health.Handle)
	}
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if opts.Revocation != nil {
		engine.POST("/auth/revoke", revokeHandler(opts.Pipeline.validator, opts.Revocation, logger))
	}

	engine.NoRoute(opts.Pipeline.Handle)

	return s
}

// Engine returns the underlying gin engine. Used by tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start runs the HTTP server until it is stopped.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}

	addr := fmt.Sprintf("%s:%d", s.config.Address, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.config.ReadTimeout.Duration(),
		WriteTimeout: s.config.WriteTimeout.Duration(),
		IdleTimeout:  s.config.IdleTimeout.Duration(),
	}

	s.running = true
	s.mu.Unlock()

	s.logger.Info("starting HTTP server",
		zap.String("address", addr),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("stopping HTTP server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}

// revokeHandler invalidates the caller's own token for its remaining
// lifetime. The token must still be valid to be revoked.
func revokeHandler(validator TokenValidator, revocation auth.RevocationList, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractBearerToken(c.Request)
		if err != nil {
			c.JSON(http.StatusUnauthorized, errorBody{
				Error:   "unauthorized",
				Message: "invalid or missing token",
			})
			return
		}

		identity, err := validator.Validate(c.Request.Context(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, errorBody{
				Error:   "unauthorized",
				Message: "invalid or missing token",
			})
			return
		}

		until := time.Until(identity.ExpiresAt)
		key := auth.RevocationKeyForIdentity(identity)

		if err := revocation.Revoke(c.Request.Context(), key, until); err != nil {
			logger.Error("token revocation failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, errorBody{
				Error:   "service_unavailable",
				Message: "revocation store unavailable",
			})
			return
		}

		logger.Info("token revoked",
			zap.String("subject", identity.Subject),
		)

		c.JSON(http.StatusOK, gin.H{"revoked": true})
	}
}
