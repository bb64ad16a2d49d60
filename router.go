package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/havenai/haven/pkg/event"
	"github.com/havenai/haven/pkg/handler"
	"github.com/havenai/haven/pkg/service"
	"github.com/havenai/haven/pkg/utils"
)

// Services bundles everything the HTTP layer needs; main builds it.
type Services struct {
	Orchestrator *service.Orchestrator
	Consent      *service.ConsentService
	Sessions     *service.SessionService
	Summaries    *service.SummaryService
}

type Server struct {
	ginEngine *gin.Engine
	logger    *slog.Logger
	port      int
}

func NewServer(svcs Services) *Server {
	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery())

	// CORS middleware: allow common localhost dev origins only; the
	// backend binds locally.
	ginEngine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// If there's no Origin header, it's not a browser CORS request.
		if origin != "" {
			allowed := strings.HasPrefix(origin, "http://localhost") ||
				strings.HasPrefix(origin, "http://127.0.0.1") ||
				strings.HasPrefix(origin, "https://localhost") ||
				strings.HasPrefix(origin, "https://127.0.0.1")

			if allowed {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
				c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-User-ID")
			} else {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	server := &Server{
		ginEngine: ginEngine,
		logger:    utils.GetLogger(),
		port:      0,
	}

	server.SetupRoutes(svcs)

	return server
}

func (s *Server) Start(ctx context.Context) error {
	// Read port from environment variable HAVEN_PORT, default to 8098 if unset or invalid
	port := 8098
	if v := os.Getenv("HAVEN_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 && p <= 65535 {
			port = p
		} else {
			s.logger.Warn("Invalid HAVEN_PORT value, falling back to default", "value", v)
		}
	}

	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{Addr: addr, Handler: s.ginEngine}

	// Attempt to listen on port first; if occupied return error immediately
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}

	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port = tcpAddr.Port
	} else {
		s.port = port
	}
	s.logger.Info("server listening", "port", s.port)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ln)
	}()

	// Listen for context cancellation for graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	default:
	}
	return nil
}

func (s *Server) SetupRoutes(svcs Services) {
	interactHandler := handler.NewInteractHandler(svcs.Orchestrator)
	consentHandler := handler.NewConsentHandler(svcs.Consent)
	sessionHandler := handler.NewSessionHandler(svcs.Sessions, svcs.Summaries)
	wsHandler := event.NewWSHandler()

	s.ginEngine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.ginEngine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := s.ginEngine.Group("/api")
	v1 := apiGroup.Group("/v1")

	interactHandler.RegisterRoutes(v1)
	consentHandler.RegisterRoutes(v1)
	sessionHandler.RegisterRoutes(v1)

	apiGroup.GET("/events/ws", wsHandler.Handle)
}
