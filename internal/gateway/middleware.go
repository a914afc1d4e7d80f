package gateway

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// RequestIDHeader is the header carrying the request ID.
	RequestIDHeader = "X-Request-Id"

	// requestIDKey is the gin context key for the request ID.
	requestIDKey = "requestID"
)

// RequestID ensures every request carries an ID, generating one when
// the client did not send one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}

// GetRequestID returns the request ID from the gin context.
func GetRequestID(c *gin.Context) string {
	if id, exists := c.Get(requestIDKey); exists {
		if requestID, ok := id.(string); ok {
			return requestID
		}
	}
	return ""
}

// LoggingConfig holds configuration for the logging middleware.
type LoggingConfig struct {
	Logger    *zap.Logger
	SkipPaths []string
}

// Logging returns a middleware that logs completed requests.
func Logging(logger *zap.Logger) gin.HandlerFunc {
	return LoggingWithConfig(LoggingConfig{Logger: logger})
}

// LoggingWithConfig returns a logging middleware with custom configuration.
func LoggingWithConfig(config LoggingConfig) gin.HandlerFunc {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	skipPaths := make(map[string]bool)
	for _, path := range config.SkipPaths {
		skipPaths[path] = true
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if skipPaths[path] {
			c.Next()
			return
		}

		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("requestID", GetRequestID(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("clientIP", c.ClientIP()),
			zap.Int("bodySize", c.Writer.Size()),
		}

		switch {
		case status >= 500:
			config.Logger.Error("request completed", fields...)
		case status >= 400:
			config.Logger.Warn("request completed", fields...)
		default:
			config.Logger.Info("request completed", fields...)
		}
	}
}

// CORS returns a middleware answering cross-origin requests for the
// listed origins. "*" allows any origin. Preflight requests are
// answered here and never reach the pipeline.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	allowAny := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAny = true
			continue
		}
		allowed[origin] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}

		if allowAny {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if allowed[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, HEAD, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-Id")
			c.Header("Access-Control-Max-Age", "86400")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Recovery returns a middleware that recovers from handler panics and
// converts them into a 500 response.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered",
					zap.Any("error", err),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.String("requestID", GetRequestID(c)),
					zap.ByteString("stack", debug.Stack()),
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{
					Error:   "internal_error",
					Message: "internal server error",
				})
			}
		}()

		c.Next()
	}
}
