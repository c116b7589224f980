// Package server exposes the message bus, the page agent endpoint and the
// blocked page over HTTP.
package server

import (
	"context"
	_ "embed"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"focuser/internal/bus"
)

//go:embed static/blocked.html
var blockedHTML []byte

const (
	shutdownTimeout = 5 * time.Second
	maxMessageSize  = 1 << 20 // 1MB
)

type Dispatcher interface {
	Dispatch(ctx context.Context, msg bus.Message) bus.Response
}

type Options struct {
	Addr       string
	Dispatcher Dispatcher
	// Agents serves page agent websockets. Nil disables /api/agents.
	Agents http.Handler
	// BlockedPage is an extra path the blocked page is served at.
	BlockedPage string
	Logger      *zap.Logger
}

// Server is the daemon's HTTP surface.
type Server struct {
	addr       string
	dispatcher Dispatcher
	agents     http.Handler
	logger     *zap.Logger
	router     *gin.Engine
}

func New(opts Options) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(opts.Logger))

	s := &Server{
		addr:       opts.Addr,
		dispatcher: opts.Dispatcher,
		agents:     opts.Agents,
		logger:     opts.Logger,
		router:     router,
	}

	router.GET("/healthz", s.handleHealth)
	router.GET("/blocked", s.handleBlocked)
	if p := opts.BlockedPage; p != "" && p != "/blocked" {
		router.GET(p, s.handleBlocked)
	}

	api := router.Group("/api")
	{
		api.POST("/message", s.handleMessage)
		if s.agents != nil {
			api.GET("/agents", gin.WrapH(s.agents))
		}
	}

	return s
}

// Handler returns the routed engine.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleBlocked(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", blockedHTML)
}

// handleMessage dispatches one bus message. Bus failures are reported in
// the body with status 200, as the bus itself does.
func (s *Server) handleMessage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxMessageSize)

	var msg bus.Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, bus.Response{Error: "invalid message: " + err.Error()})
		return
	}
	if msg.Action == "" {
		c.JSON(http.StatusBadRequest, bus.Response{Error: "action is required"})
		return
	}

	c.JSON(http.StatusOK, s.dispatcher.Dispatch(c.Request.Context(), msg))
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
