package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Config HTTP listener settings
type Config struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server API server
type Server struct {
	router *gin.Engine
	srv    *http.Server
	log    zerolog.Logger
}

func NewServer(cfg Config, log zerolog.Logger) *Server {
	log = log.With().Str("component", "http").Logger()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(log))

	port := cfg.Port
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &Server{router: router, srv: srv, log: log}
}

// requestLogger logs one line per request through zerolog.
func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		evt := log.Info()
		if status >= http.StatusInternalServerError {
			evt = log.Error()
		} else if status >= http.StatusBadRequest {
			evt = log.Warn()
		}
		evt.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}

// SetupRoutes registers every route.
func (s *Server) SetupRoutes(h *Handlers) {
	s.router.GET("/health", h.HealthCheck)
	s.router.GET("/ready", h.ReadinessCheck)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/auth/register", h.Register)
		v1.POST("/auth/login", h.Login)

		v1.DELETE("/users/:id", h.DeleteUser)
		v1.GET("/users/:id/watchlists", h.ListWatchlists)
		v1.POST("/users/:id/watchlists", h.CreateWatchlist)

		v1.PATCH("/watchlists/:id", h.UpdateWatchlist)
		v1.DELETE("/watchlists/:id", h.DeleteWatchlist)
		v1.POST("/watchlists/:id/evaluate", h.EvaluateWatchlist)
		v1.DELETE("/watchlists/:id/matches", h.ClearMatches)
		v1.DELETE("/watchlists/:id/matches/:symbol", h.RemoveMatch)

		v1.POST("/screen", h.Screen)
		v1.GET("/criteria/fields", h.CriteriaFields)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.srv.Addr).Msg("api server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info().Msg("api server stopped")
	return nil
}
