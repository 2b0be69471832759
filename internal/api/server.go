// Package api exposes health, metrics and bot control over HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ducminhle1904/crypto-futures-bot/internal/commands"
	"github.com/ducminhle1904/crypto-futures-bot/internal/monitoring"
	"github.com/ducminhle1904/crypto-futures-bot/internal/registry"
)

// Config holds the listener settings. An empty AuthToken leaves the control routes open.
type Config struct {
	Addr      string
	AuthToken string
}

// Server is the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	cfg        Config
	bot        commands.Controller
	metrics    *monitoring.Metrics
	health     *monitoring.HealthChecker
	log        zerolog.Logger
}

// NewServer builds the router. metrics and health may be nil, their routes are then absent.
func NewServer(cfg Config, bot commands.Controller, metrics *monitoring.Metrics, health *monitoring.HealthChecker, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		router:  gin.New(),
		cfg:     cfg,
		bot:     bot,
		metrics: metrics,
		health:  health,
		log:     log.With().Str("component", "api").Logger(),
	}
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	if s.health != nil {
		s.router.GET("/health", gin.WrapH(s.health))
	}
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	ctl := s.router.Group("/", s.authMiddleware())
	ctl.GET("/status", s.handleStatus)
	ctl.GET("/trades", s.handleTrades)
	ctl.POST("/pause", s.handlePause)
	ctl.POST("/resume", s.handleResume)
	ctl.POST("/close/:symbol", s.handleClose)
	ctl.POST("/panic", s.handlePanic)
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.log.Info().Str("addr", s.cfg.Addr).Msg("starting HTTP server")
	if s.cfg.AuthToken == "" {
		s.log.Warn().Msg("API_AUTH_TOKEN not set, control routes are unauthenticated")
	}

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.log.Info().Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AuthToken == "" {
			c.Next()
			return
		}
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "UNAUTHORIZED",
				"message": "missing or invalid bearer token",
			})
			return
		}
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	st := s.bot.Status(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"status":         st,
		"unrealized_pnl": st.UnrealizedPnL(),
	})
}

func (s *Server) handleTrades(c *gin.Context) {
	st := s.bot.Status(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"open":    st.Trades,
		"closed":  s.bot.Journal().Entries(),
		"summary": s.bot.Journal().Summary(),
	})
}

func (s *Server) handlePause(c *gin.Context) {
	s.bot.Pause()
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

func (s *Server) handleResume(c *gin.Context) {
	s.bot.Resume()
	c.JSON(http.StatusOK, gin.H{"paused": false})
}

func (s *Server) handleClose(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	err := s.bot.CloseSymbol(c.Request.Context(), symbol)
	switch {
	case errors.Is(err, registry.ErrTradeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "NOT_FOUND", "message": err.Error()})
		return
	case errors.Is(err, registry.ErrAlreadyClosing):
		c.JSON(http.StatusConflict, gin.H{"error": "CONFLICT", "message": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": "CLOSE_FAILED", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": symbol})
}

// handlePanic requires ?confirm=true, like the chat command.
func (s *Server) handlePanic(c *gin.Context) {
	if c.Query("confirm") != "true" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "CONFIRMATION_REQUIRED",
			"message": "POST /panic?confirm=true closes every open trade and pauses entries",
		})
		return
	}
	n, err := s.bot.PanicCloseAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"closed": n, "error": "PARTIAL", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": n, "paused": true})
}
