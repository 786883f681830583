package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"candle-signals/internal/analysis"
	"candle-signals/internal/auth"
	"candle-signals/internal/cache"
	"candle-signals/internal/database"
	"candle-signals/internal/events"
	"candle-signals/internal/logging"
	"candle-signals/internal/signals"
)

// RateLimiter provides simple in-memory rate limiting per endpoint
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int           // max requests
	window   time.Duration // time window
	now      func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	windowStart := now.Add(-r.window)

	// Filter out old requests
	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// HistoryStore reads persisted signal snapshots
type HistoryStore interface {
	ListSignalSnapshots(ctx context.Context, interval string, limit int) ([]database.SignalSnapshot, error)
	GetSignalSnapshot(ctx context.Context, scanID string) (*database.SignalSnapshot, error)
	HealthCheck(ctx context.Context) error
}

// Services are the components the API exposes. Cache, History, Auth and
// EventBus may be nil when the matching feature is disabled.
type Services struct {
	Analyzer *analysis.Analyzer
	Scanner  *signals.Scanner
	Cache    cache.Store
	History  HistoryStore
	Auth     *auth.Service
	EventBus *events.EventBus
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port               int
	Host               string
	ProductionMode     bool
	AllowedOrigins     []string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	RateLimitPerMinute int
}

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	config      ServerConfig
	services    Services
	rateLimiter *RateLimiter
	startedAt   time.Time
	log         *logging.Logger
}

// NewServer creates a new API server
func NewServer(config ServerConfig, services Services) *Server {
	// Set Gin mode
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.DebugMode)
	}
	if config.RateLimitPerMinute <= 0 {
		config.RateLimitPerMinute = 60
	}
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	}

	router := gin.New()

	server := &Server{
		router:      router,
		config:      config,
		services:    services,
		rateLimiter: NewRateLimiter(config.RateLimitPerMinute, time.Minute),
		startedAt:   time.Now(),
		log:         logging.WithComponent("api"),
	}

	// Middleware
	router.Use(gin.Recovery())
	router.Use(server.accessLogMiddleware())

	// CORS middleware
	corsConfig := cors.DefaultConfig()
	if len(config.AllowedOrigins) == 1 && config.AllowedOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = config.AllowedOrigins
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length", "X-Trace-ID"}
	router.Use(cors.New(corsConfig))

	server.setupRoutes()

	return server
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// accessLogMiddleware logs every request through the structured logger
func (s *Server) accessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		ctx, l := logging.ContextWithTraceID(c.Request.Context(), c.GetHeader("X-Trace-ID"))
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Trace-ID", logging.TraceIDFromContext(ctx))

		c.Next()

		l = l.WithFields(map[string]interface{}{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
			"client_ip": c.ClientIP(),
		}).WithDuration(time.Since(start))

		switch status := c.Writer.Status(); {
		case status >= 500:
			l.Error("HTTP request")
		case status >= 400:
			l.Warn("HTTP request")
		default:
			l.Debug("HTTP request")
		}
	}
}

// rateLimitMiddleware creates a middleware that rate limits requests by endpoint
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		if !s.rateLimiter.Allow(path) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   true,
				"message": "Too many requests to this endpoint. Please slow down to avoid Binance API bans.",
				"path":    path,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")

	// Token issuing is public
	api.POST("/auth/token", s.handleToken)

	protected := api.Group("")
	if s.services.Auth != nil {
		protected.Use(auth.Middleware(s.services.Auth.JWTManager()))
	}

	protected.GET("/auth/me", s.handleWhoAmI)
	protected.GET("/patterns", s.handlePatterns)

	// Endpoints that reach the exchange are rate limited
	limited := protected.Group("", s.rateLimitMiddleware())
	limited.GET("/analysis", s.handleAnalysis)
	limited.GET("/signals", s.handleSignals)

	protected.GET("/signals/latest", s.handleLatestSignals)
	protected.GET("/signals/history", s.handleSignalHistory)
	protected.GET("/signals/history/:scanId", s.handleSignalSnapshot)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info("Starting HTTP server", "addr", addr)
	if s.services.EventBus != nil {
		s.services.EventBus.Publish(events.Event{
			Type: events.EventServerStarted,
			Data: map[string]interface{}{"addr": addr},
		})
	}

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server")

	if s.services.EventBus != nil {
		s.services.EventBus.Publish(events.Event{Type: events.EventServerStopped})
	}

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}
