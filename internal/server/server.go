/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server wires configuration, storage, services, and the HTTP
// router into a runnable process.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/skuld_planner/internal/api"
	"github.com/friendsincode/skuld_planner/internal/audit"
	"github.com/friendsincode/skuld_planner/internal/breakdown"
	"github.com/friendsincode/skuld_planner/internal/cache"
	"github.com/friendsincode/skuld_planner/internal/calendar"
	"github.com/friendsincode/skuld_planner/internal/config"
	"github.com/friendsincode/skuld_planner/internal/db"
	"github.com/friendsincode/skuld_planner/internal/events"
	"github.com/friendsincode/skuld_planner/internal/scheduler"
	"github.com/friendsincode/skuld_planner/internal/telemetry"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	metricsSrv *http.Server
	closers    []func() error

	db        *gorm.DB
	cache     *cache.Cache
	bus       *events.Bus
	api       *api.API
	auditSvc  *audit.Service
	scheduler *scheduler.Service

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("skuld-planner-api"))
	router.Use(telemetry.MetricsMiddleware)
	router.Use(middleware.Timeout(60 * time.Second))

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		bus:    events.NewBus(),
	}

	if err := srv.initDependencies(); err != nil {
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:              addr,
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'; base-uri 'self'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	s.db = database
	s.closers = append(s.closers, func() error { return db.Close(database) })

	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	location := s.cfg.Location()

	if s.cfg.CacheEnabled {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.RedisAddr = s.cfg.RedisAddr
		cacheCfg.RedisPassword = s.cfg.RedisPassword
		cacheCfg.RedisDB = s.cfg.RedisDB
		if s.cfg.FreeBusyTTL > 0 {
			cacheCfg.FreeBusyTTL = s.cfg.FreeBusyTTL
		}
		c, err := cache.New(cacheCfg, s.logger)
		if err != nil {
			return fmt.Errorf("initialize cache: %w", err)
		}
		s.cache = c
		s.closers = append(s.closers, c.Close)
	}

	oauth := calendar.NewOAuthManager(
		s.cfg.GoogleClientID,
		s.cfg.GoogleClientSecret,
		s.cfg.GoogleRedirectURL,
		database,
		s.logger,
	)
	gateway := calendar.NewGoogleGateway(oauth, s.cfg.CalendarID, s.logger)

	breakdownSvc := breakdown.NewService(breakdown.Config{
		BaseURL: s.cfg.LLMBaseURL,
		APIKey:  s.cfg.LLMAPIKey,
		Model:   s.cfg.LLMModel,
		Timeout: s.cfg.LLMTimeout,
	}, s.logger)
	if !breakdownSvc.Enabled() {
		s.logger.Warn().Msg("no LLM API key configured, goal decomposition will produce placeholder plans")
	}

	s.scheduler = scheduler.New(
		database,
		gateway,
		s.bus,
		s.cfg.Policy,
		location,
		s.cfg.StrictFreeBusy,
		s.logger,
	)
	if s.cache != nil {
		s.scheduler.SetCache(s.cache)
	}

	s.auditSvc = audit.NewService(database, s.bus, s.logger)

	s.api = api.New(
		database,
		[]byte(s.cfg.JWTSigningKey),
		breakdownSvc,
		s.scheduler,
		oauth,
		s.auditSvc,
		s.bus,
		s.logger,
	)
	if s.cache != nil {
		s.api.SetCache(s.cache)
	}

	return nil
}

func (s *Server) configureRoutes() {
	s.api.Routes(s.router)
	s.router.Handle("/metrics", telemetry.Handler())
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.auditSvc.Start(ctx)
	}()

	// Metrics also listen on a private bind so scrapes never compete with
	// API traffic.
	if s.cfg.MetricsBind != "" {
		s.metricsSrv = &http.Server{
			Addr:              s.cfg.MetricsBind,
			Handler:           telemetry.Handler(),
			ReadHeaderTimeout: 15 * time.Second,
		}
		go func() {
			s.logger.Info().Str("addr", s.cfg.MetricsBind).Msg("metrics server listening")
			if err := s.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.logger.Error().Err(err).Msg("metrics server error")
			}
		}()
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel != nil {
		s.bgCancel()
	}
	s.bgWG.Wait()
}

// HTTPServer returns the configured HTTP server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Router returns the HTTP router, mainly for tests.
func (s *Server) Router() chi.Router {
	return s.router
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	if s.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.metricsSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("metrics server shutdown error")
		}
		cancel()
	}
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
