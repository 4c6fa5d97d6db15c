/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"time"

	"github.com/friendsincode/skuld_planner/internal/auth"
	"github.com/friendsincode/skuld_planner/internal/events"
)

// stateTTL bounds how long an OAuth consent round trip may take.
const stateTTL = 10 * time.Minute

// handleGoogleConnect starts the OAuth flow. The state parameter is a
// short-lived token carrying the user's identity, since the provider's
// redirect back to us arrives without a bearer token.
func (a *API) handleGoogleConnect(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	state, err := auth.Issue(a.jwtSecret, auth.Claims{
		UserID: claims.UserID,
		Email:  claims.Email,
	}, stateTTL)
	if err != nil {
		a.logger.Error().Err(err).Msg("state token issue failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"auth_url": a.oauth.AuthURL(state),
	})
}

// handleGoogleCallback completes the OAuth flow.
func (a *API) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if errCode := r.URL.Query().Get("error"); errCode != "" {
		writeError(w, http.StatusBadRequest, "consent_denied")
		return
	}

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		writeError(w, http.StatusBadRequest, "missing_code_or_state")
		return
	}

	claims, err := auth.Parse(a.jwtSecret, state)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_state")
		return
	}

	if err := a.oauth.Exchange(r.Context(), claims.UserID, code); err != nil {
		a.logger.Warn().Err(err).Str("user_id", claims.UserID).Msg("oauth exchange failed")
		writeError(w, http.StatusBadGateway, "exchange_failed")
		return
	}

	a.bus.Publish(events.EventCalendarConnected, events.Payload{
		"user_id": claims.UserID,
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "connected"})
}

func (a *API) handleCalendarStatus(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	connected, err := a.oauth.Connected(r.Context(), claims.UserID)
	if err != nil {
		a.logger.Error().Err(err).Msg("calendar status lookup failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"connected": connected})
}
