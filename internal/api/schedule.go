/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/friendsincode/skuld_planner/internal/auth"
	"github.com/friendsincode/skuld_planner/internal/calendar"
	"github.com/friendsincode/skuld_planner/internal/scheduler"
)

type planFunc func(ctx context.Context, userID string, req scheduler.RunRequest) (*scheduler.RunResult, error)

func (a *API) handleScheduleRun(w http.ResponseWriter, r *http.Request) {
	a.runSchedule(w, r, a.scheduler.Run)
}

func (a *API) handleSchedulePreview(w http.ResponseWriter, r *http.Request) {
	a.runSchedule(w, r, a.scheduler.Preview)
}

func (a *API) runSchedule(w http.ResponseWriter, r *http.Request, plan planFunc) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req scheduler.RunRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.GoalID == "" {
		writeError(w, http.StatusBadRequest, "goal_id_required")
		return
	}

	result, err := plan(r.Context(), claims.UserID, req)
	switch {
	case errors.Is(err, scheduler.ErrGoalNotFound):
		writeError(w, http.StatusNotFound, "goal_not_found")
		return
	case errors.Is(err, scheduler.ErrNoTasks):
		writeError(w, http.StatusUnprocessableEntity, "goal_has_no_tasks")
		return
	case errors.Is(err, calendar.ErrNotConnected):
		writeError(w, http.StatusConflict, "calendar_not_connected")
		return
	case err != nil:
		a.logger.Error().Err(err).Str("goal_id", req.GoalID).Msg("planning run failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
