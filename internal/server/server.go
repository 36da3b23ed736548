// Package server exposes bill items and their explanations over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lamim/medibill/internal/config"
	"github.com/lamim/medibill/internal/metrics"
	"github.com/lamim/medibill/internal/store"
	"github.com/lamim/medibill/pkg/models"
)

const shutdownTimeout = 10 * time.Second

// ItemService explains and illustrates single items. *explainer.Service implements it.
type ItemService interface {
	Explain(ctx context.Context, item models.BillItem, prefs models.Preferences) (models.ExplanationResult, error)
	Illustrate(ctx context.Context, item models.BillItem) (models.IllustrationResult, error)
}

// Server is the HTTP API
type Server struct {
	cfg      config.ServerConfig
	repo     store.Repository
	service  ItemService
	defaults models.Preferences
	metrics  *metrics.Collector
	logger   *slog.Logger
	router   *gin.Engine
}

// New builds the router. defaults fill in preferences a request leaves out.
func New(
	cfg config.ServerConfig,
	repo store.Repository,
	service ItemService,
	defaults models.Preferences,
	collector *metrics.Collector,
	logger *slog.Logger,
) (*Server, error) {
	logger = logger.With("component", "server")
	if collector == nil {
		collector = metrics.NewCollector(logger)
	}

	s := &Server{
		cfg:      cfg,
		repo:     repo,
		service:  service,
		defaults: defaults,
		metrics:  collector,
		logger:   logger,
	}

	corsCfg := corsConfig(cfg.AllowedOrigins)
	if err := corsCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid CORS settings: %w", err)
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.observe(), cors.New(corsCfg))

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/items", s.listItems)
	r.POST("/items/:id/explanation", s.explain)
	r.POST("/items/:id/illustration", s.illustrate)

	s.router = r
	return s, nil
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is canceled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSeconds) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// observe logs each request and records its duration by route template
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		duration := time.Since(start)
		status := c.Writer.Status()

		s.metrics.RecordHTTPRequest(c.Request.Method, route, status, duration)

		level := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.logger.Log(c.Request.Context(), level, "HTTP request",
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", duration.Milliseconds())
	}
}
