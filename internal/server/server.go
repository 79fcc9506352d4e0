// Package server implements the HTTP front door for the parley session
// runtime. It extracts the session key and message text from the request,
// routes them through the registry, and translates session errors into
// transport responses.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/parley-chat/parley/internal/chat"
	"github.com/parley-chat/parley/internal/session"
)

// Server is the HTTP front door.
type Server struct {
	registry    *session.Registry
	logger      *slog.Logger
	engine      *gin.Engine
	server      *http.Server
	turnTimeout time.Duration
	startTime   time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithTurnTimeout bounds each turn request end to end: queueing,
// inference and the durable write. Zero means no bound beyond the
// client's own disconnect.
func WithTurnTimeout(d time.Duration) Option {
	return func(s *Server) { s.turnTimeout = d }
}

// New creates the front door over registry. allowedOrigins configures
// CORS; an empty list allows no cross-origin callers.
func New(registry *session.Registry, allowedOrigins []string, opts ...Option) *Server {
	s := &Server{
		registry:  registry,
		logger:    slog.Default(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestID())
	engine.Use(RequestLogger(s.logger))
	engine.Use(cors.New(cors.Config{
		AllowOrigins:  allowedOrigins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"*"},
		ExposeHeaders: []string{"Content-Length", "X-Request-ID"},
	}))

	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/metrics", gin.WrapH(registry.Metrics().Handler()))
	engine.POST("/v1/sessions/:key/turns", s.handleTurn)
	engine.GET("/v1/sessions/:key/history", s.handleHistory)
	engine.POST("/v1/sessions/:key/reset", s.handleReset)

	s.engine = engine
	return s
}

// Handler returns the HTTP handler for use with httptest or custom servers.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("front door listening", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"uptime": time.Since(s.startTime).String(),
	})
}

func (s *Server) handleTurn(c *gin.Context) {
	actor, ok := s.resolve(c)
	if !ok {
		return
	}

	var req struct {
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Message == "" {
		s.writeError(c, http.StatusBadRequest, "invalid_request", "Body must be JSON with a non-empty \"message\"")
		return
	}

	ctx := c.Request.Context()
	if s.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.turnTimeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := actor.HandleTurn(ctx, req.Message)
	if err != nil {
		s.writeTurnError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_key": actor.Key(),
		"reply":       reply,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleHistory(c *gin.Context) {
	actor, ok := s.resolve(c)
	if !ok {
		return
	}

	turns, err := actor.History(c.Request.Context())
	if err != nil {
		s.writeTurnError(c, err)
		return
	}
	if turns == nil {
		turns = []chat.Turn{}
	}

	c.JSON(http.StatusOK, gin.H{
		"session_key": actor.Key(),
		"turns":       turns,
	})
}

func (s *Server) handleReset(c *gin.Context) {
	actor, ok := s.resolve(c)
	if !ok {
		return
	}

	if err := actor.Reset(c.Request.Context()); err != nil {
		s.writeTurnError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_key": actor.Key(),
		"status":      "reset",
	})
}

func (s *Server) resolve(c *gin.Context) (*session.Actor, bool) {
	actor, err := s.registry.Resolve(c.Param("key"))
	if err != nil {
		s.writeError(c, http.StatusBadRequest, "invalid_key", err.Error())
		return nil, false
	}
	return actor, true
}

// writeTurnError maps session-layer failures to transport responses. A
// TurnError keeps its classification even when the underlying cause is a
// deadline: a timed-out inference call is an inference failure.
func (s *Server) writeTurnError(c *gin.Context, err error) {
	var te *session.TurnError
	switch {
	case errors.As(err, &te) && te.Reason == session.ReasonPersistence:
		s.writeError(c, http.StatusInternalServerError, "persistence_failure", te.Error())
	case errors.As(err, &te):
		s.writeError(c, http.StatusBadGateway, "inference_failure", te.Error())
	case errors.Is(err, context.DeadlineExceeded):
		s.writeError(c, http.StatusGatewayTimeout, "timeout", "The request timed out while queued")
	default:
		s.writeError(c, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func (s *Server) writeError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":   code,
		"message": message,
	})
}
