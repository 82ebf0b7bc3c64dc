// Package web serves the HTTP entry points of the daemon.
package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/matheus3301/chitchat/internal/summarize"
)

// Summarizer summarizes discussion text.
type Summarizer interface {
	Summarize(ctx context.Context, discussion string) (string, error)
}

type summarizeRequest struct {
	Discussion *string `json:"discussion"`
}

// NewRouter builds the router. attachmentsDir, when set, is served under /attachments.
func NewRouter(s Summarizer, attachmentsDir string, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/summarize", func(c *gin.Context) {
		var req summarizeRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Discussion == nil || strings.TrimSpace(*req.Discussion) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "discussion is required"})
			return
		}

		summary, err := s.Summarize(c.Request.Context(), *req.Discussion)
		if errors.Is(err, summarize.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "discussion is required"})
			return
		}
		if err != nil {
			logger.Error("summarize request failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to summarize discussion"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"summary": summary})
	})

	if attachmentsDir != "" {
		router.Static("/attachments", attachmentsDir)
	}
	return router
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

// Server runs the router on a TCP address.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewServer creates a server for handler on addr.
func NewServer(addr string, handler http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		srv:    &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second},
		logger: logger,
	}
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", zap.Error(err))
		}
	}()
	s.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
