/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the HTTP surface: account management, calendar
// linking, goal decomposition, and planning runs.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/skuld_planner/internal/audit"
	"github.com/friendsincode/skuld_planner/internal/auth"
	"github.com/friendsincode/skuld_planner/internal/breakdown"
	"github.com/friendsincode/skuld_planner/internal/cache"
	"github.com/friendsincode/skuld_planner/internal/calendar"
	"github.com/friendsincode/skuld_planner/internal/events"
	"github.com/friendsincode/skuld_planner/internal/scheduler"
	"github.com/friendsincode/skuld_planner/internal/version"
)

// tokenTTL is the lifetime of issued session tokens.
const tokenTTL = 24 * time.Hour

// API exposes HTTP handlers.
type API struct {
	db        *gorm.DB
	jwtSecret []byte
	breakdown *breakdown.Service
	scheduler *scheduler.Service
	oauth     *calendar.OAuthManager
	auditSvc  *audit.Service
	bus       *events.Bus
	cache     *cache.Cache
	logger    zerolog.Logger
}

// New creates the API router wrapper.
func New(db *gorm.DB, jwtSecret []byte, breakdownSvc *breakdown.Service, schedulerSvc *scheduler.Service, oauth *calendar.OAuthManager, auditSvc *audit.Service, bus *events.Bus, logger zerolog.Logger) *API {
	return &API{
		db:        db,
		jwtSecret: jwtSecret,
		breakdown: breakdownSvc,
		scheduler: schedulerSvc,
		oauth:     oauth,
		auditSvc:  auditSvc,
		bus:       bus,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// SetCache enables decomposition caching. Without it every re-decomposition
// goes back to the model.
func (a *API) SetCache(c *cache.Cache) {
	a.cache = c
}

// Routes mounts all API routes on the router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		// Public endpoints (no auth required)
		r.Post("/auth/register", a.handleRegister)
		r.Post("/auth/login", a.handleLogin)

		// The OAuth provider redirects here; identity travels in the
		// signed state parameter, not in a bearer token.
		r.Get("/auth/google/callback", a.handleGoogleCallback)

		r.Group(func(pr chi.Router) {
			pr.Use(auth.Middleware(a.jwtSecret))

			pr.Get("/auth/google", a.handleGoogleConnect)
			pr.Get("/calendar/status", a.handleCalendarStatus)

			pr.Route("/goals", func(r chi.Router) {
				r.Post("/", a.handleGoalCreate)
				r.Get("/", a.handleGoalsList)
				r.Route("/{goalID}", func(r chi.Router) {
					r.Get("/", a.handleGoalGet)
					r.Delete("/", a.handleGoalDelete)
					r.Post("/breakdown", a.handleGoalRedecompose)
				})
			})

			pr.Route("/schedule", func(r chi.Router) {
				r.Post("/run", a.handleScheduleRun)
				r.Post("/preview", a.handleSchedulePreview)
			})

			pr.Get("/audit", a.handleAuditList)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// decodeJSON reads a bounded JSON request body.
func decodeJSON(r *http.Request, dest any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	return dec.Decode(dest)
}
