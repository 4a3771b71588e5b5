// Package api exposes the signal and risk surface over HTTP. The server is
// read-mostly: signals and risk parameters are queries against in-memory
// state, the only mutation is forcing a symbol refresh.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"signal-engine/internal/auth"
	"signal-engine/internal/engine"
	"signal-engine/internal/market"
	"signal-engine/internal/service"
)

// RateLimiter provides simple in-memory rate limiting per client
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

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

// SignalAPI is what the server needs from the signal service
type SignalAPI interface {
	Symbols() []string
	Snapshot(symbol string) (service.SignalSnapshot, bool)
	Frame(symbol string) (*engine.Frame, bool)
	RefreshSymbol(ctx context.Context, symbol string) error
	StopLoss(symbol string, side market.PositionSide) float64
	Leverage(symbol string, proposed, maxLeverage float64) float64
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	AllowedOrigins []string
	ProductionMode bool
	MaxLeverage    float64
}

// Server is the HTTP API server
type Server struct {
	router       *gin.Engine
	httpServer   *http.Server
	signals      SignalAPI
	config       ServerConfig
	tokenManager *auth.TokenManager
	rateLimiter  *RateLimiter
	logger       zerolog.Logger
	startedAt    time.Time
}

// NewServer creates the API server. tokenManager may be nil when auth is
// disabled; every route is then open.
func NewServer(config ServerConfig, signals SignalAPI, tokenManager *auth.TokenManager, logger zerolog.Logger) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(config.AllowedOrigins) == 1 && config.AllowedOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = config.AllowedOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length", "X-Request-ID"}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:       router,
		signals:      signals,
		config:       config,
		tokenManager: tokenManager,
		rateLimiter:  NewRateLimiter(120, time.Minute),
		logger:       logger.With().Str("component", "APIServer").Logger(),
		startedAt:    time.Now(),
	}

	router.Use(server.requestIDMiddleware())
	router.Use(server.requestLogMiddleware())
	server.setupRoutes()

	return server
}

// requestIDMiddleware tags every request with a request ID for log correlation
func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func (s *Server) requestLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("request_id", c.GetString("request_id")).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request handled")
	}
}

// rateLimitMiddleware limits each client IP to the configured request budget
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.rateLimiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded, try again later",
			})
			return
		}
		c.Next()
	}
}

// authMiddleware validates the bearer token when auth is enabled
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.tokenManager == nil {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := s.tokenManager.ValidateToken(header[len(prefix):])
		if err != nil {
			status := http.StatusUnauthorized
			c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
			return
		}

		c.Set("client_id", claims.ClientID)
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	v1.Use(s.rateLimitMiddleware())
	v1.Use(s.authMiddleware())
	{
		v1.GET("/signals", s.handleListSignals)
		v1.GET("/signals/:symbol", s.handleGetSignal)
		v1.GET("/signals/:symbol/frame", s.handleGetFrame)
		v1.POST("/signals/:symbol/refresh", s.handleRefresh)

		v1.GET("/risk/stoploss", s.handleStopLoss)
		v1.GET("/risk/leverage", s.handleLeverage)
		v1.GET("/risk/roi", s.handleROILadder)
	}
}

// Start runs the HTTP server in a background goroutine
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("http server terminated")
		}
	}()

	s.logger.Info().Str("addr", addr).Bool("auth", s.tokenManager != nil).Msg("api server listening")
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
