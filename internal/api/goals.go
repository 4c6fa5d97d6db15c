/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/friendsincode/skuld_planner/internal/auth"
	"github.com/friendsincode/skuld_planner/internal/breakdown"
	"github.com/friendsincode/skuld_planner/internal/cache"
	"github.com/friendsincode/skuld_planner/internal/events"
	"github.com/friendsincode/skuld_planner/internal/models"
)

type goalCreateRequest struct {
	Title         string `json:"title"`
	CurrentLevel  string `json:"current_level"`
	TargetLevel   string `json:"target_level"`
	Deadline      string `json:"deadline"` // YYYY-MM-DD
	OverrideCount int    `json:"override_task_count,omitempty"`
}

type goalResponse struct {
	models.Goal
	Fallback bool `json:"fallback,omitempty"`
}

func (a *API) handleGoalCreate(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req goalCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title_required")
		return
	}
	if req.Deadline != "" {
		if _, err := time.Parse("2006-01-02", req.Deadline); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_deadline")
			return
		}
	}
	if req.CurrentLevel == "" {
		req.CurrentLevel = "medium"
	}
	if req.TargetLevel == "" {
		req.TargetLevel = "advanced"
	}

	result := a.breakdown.Decompose(r.Context(), breakdown.Request{
		Goal:          req.Title,
		CurrentLevel:  req.CurrentLevel,
		TargetLevel:   req.TargetLevel,
		Deadline:      req.Deadline,
		OverrideCount: req.OverrideCount,
	})

	goal := models.Goal{
		ID:           uuid.NewString(),
		UserID:       claims.UserID,
		Title:        req.Title,
		CurrentLevel: req.CurrentLevel,
		TargetLevel:  req.TargetLevel,
		Deadline:     req.Deadline,
		Complexity:   result.Complexity,
	}
	for _, t := range result.Tasks {
		goal.Tasks = append(goal.Tasks, models.GoalTask{
			ID:            uuid.NewString(),
			GoalID:        goal.ID,
			Seq:           t.ID,
			Description:   t.Description,
			DurationHours: t.DurationHours,
		})
	}

	if err := a.db.WithContext(r.Context()).Create(&goal).Error; err != nil {
		a.logger.Error().Err(err).Msg("goal create failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	a.bus.Publish(events.EventGoalCreated, events.Payload{
		"user_id": claims.UserID,
		"goal_id": goal.ID,
		"title":   goal.Title,
	})
	a.bus.Publish(events.EventGoalDecomposed, events.Payload{
		"user_id":    claims.UserID,
		"goal_id":    goal.ID,
		"tasks":      len(goal.Tasks),
		"complexity": result.Complexity,
		"fallback":   result.Fallback,
	})

	if a.cache != nil && !result.Fallback {
		if err := a.cache.SetBreakdown(r.Context(), cachedBreakdown(goal.ID, result)); err != nil {
			a.logger.Warn().Err(err).Msg("failed to cache breakdown")
		}
	}

	writeJSON(w, http.StatusCreated, goalResponse{Goal: goal, Fallback: result.Fallback})
}

func (a *API) handleGoalsList(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var goals []models.Goal
	err := a.db.WithContext(r.Context()).
		Preload("Tasks", func(db *gorm.DB) *gorm.DB {
			return db.Order("seq ASC")
		}).
		Where("user_id = ?", claims.UserID).
		Order("created_at DESC").
		Find(&goals).Error
	if err != nil {
		a.logger.Error().Err(err).Msg("goal list failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"goals": goals})
}

func (a *API) handleGoalGet(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	goal, err := a.loadGoal(r, claims.UserID)
	if err != nil {
		writeError(w, http.StatusNotFound, "goal_not_found")
		return
	}

	writeJSON(w, http.StatusOK, goal)
}

func (a *API) handleGoalDelete(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	goal, err := a.loadGoal(r, claims.UserID)
	if err != nil {
		writeError(w, http.StatusNotFound, "goal_not_found")
		return
	}

	err = a.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("goal_id = ?", goal.ID).Delete(&models.GoalTask{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Goal{}, "id = ?", goal.ID).Error
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("goal delete failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	if a.cache != nil {
		if err := a.cache.InvalidateBreakdown(r.Context(), goal.ID); err != nil {
			a.logger.Warn().Err(err).Msg("failed to invalidate breakdown cache")
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleGoalRedecompose regenerates the task list for an existing goal,
// replacing its previous tasks.
func (a *API) handleGoalRedecompose(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	goal, err := a.loadGoal(r, claims.UserID)
	if err != nil {
		writeError(w, http.StatusNotFound, "goal_not_found")
		return
	}

	var req struct {
		OverrideCount int `json:"override_task_count,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
	}

	// A recent cached decomposition is reused unless the caller pins a
	// task count, which always forces a fresh run.
	var result breakdown.Result
	cached := false
	if a.cache != nil && req.OverrideCount == 0 {
		if snap, ok := a.cache.GetBreakdown(r.Context(), goal.ID); ok {
			result = breakdownFromCache(snap)
			cached = true
		}
	}
	if !cached {
		result = a.breakdown.Decompose(r.Context(), breakdown.Request{
			Goal:          goal.Title,
			CurrentLevel:  goal.CurrentLevel,
			TargetLevel:   goal.TargetLevel,
			Deadline:      goal.Deadline,
			OverrideCount: req.OverrideCount,
		})
		if a.cache != nil && !result.Fallback {
			if err := a.cache.SetBreakdown(r.Context(), cachedBreakdown(goal.ID, result)); err != nil {
				a.logger.Warn().Err(err).Msg("failed to cache breakdown")
			}
		}
	}

	tasks := make([]models.GoalTask, 0, len(result.Tasks))
	for _, t := range result.Tasks {
		tasks = append(tasks, models.GoalTask{
			ID:            uuid.NewString(),
			GoalID:        goal.ID,
			Seq:           t.ID,
			Description:   t.Description,
			DurationHours: t.DurationHours,
		})
	}

	err = a.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("goal_id = ?", goal.ID).Delete(&models.GoalTask{}).Error; err != nil {
			return err
		}
		if err := tx.Create(&tasks).Error; err != nil {
			return err
		}
		return tx.Model(&models.Goal{}).Where("id = ?", goal.ID).
			Update("complexity", result.Complexity).Error
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("task regeneration failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	goal.Tasks = tasks
	goal.Complexity = result.Complexity

	a.bus.Publish(events.EventGoalDecomposed, events.Payload{
		"user_id":    claims.UserID,
		"goal_id":    goal.ID,
		"tasks":      len(tasks),
		"complexity": result.Complexity,
		"fallback":   result.Fallback,
	})

	writeJSON(w, http.StatusOK, goalResponse{Goal: *goal, Fallback: result.Fallback})
}

// cachedBreakdown converts a decomposition result into its cache snapshot.
func cachedBreakdown(goalID string, result breakdown.Result) *cache.CachedBreakdown {
	snap := &cache.CachedBreakdown{
		GoalID:     goalID,
		Complexity: result.Complexity,
		Tasks:      make([]cache.CachedBreakdownTask, 0, len(result.Tasks)),
	}
	for _, t := range result.Tasks {
		snap.Tasks = append(snap.Tasks, cache.CachedBreakdownTask{
			Seq:           t.ID,
			Description:   t.Description,
			DurationHours: t.DurationHours,
		})
	}
	return snap
}

func breakdownFromCache(snap *cache.CachedBreakdown) breakdown.Result {
	result := breakdown.Result{
		Complexity: snap.Complexity,
		Tasks:      make([]breakdown.Task, 0, len(snap.Tasks)),
	}
	for _, t := range snap.Tasks {
		result.Tasks = append(result.Tasks, breakdown.Task{
			ID:            t.Seq,
			Description:   t.Description,
			DurationHours: t.DurationHours,
		})
	}
	return result
}

// loadGoal fetches the routed goal, scoped to the requesting user.
func (a *API) loadGoal(r *http.Request, userID string) (*models.Goal, error) {
	goalID := chi.URLParam(r, "goalID")

	var goal models.Goal
	err := a.db.WithContext(r.Context()).
		Preload("Tasks", func(db *gorm.DB) *gorm.DB {
			return db.Order("seq ASC")
		}).
		Where("id = ? AND user_id = ?", goalID, userID).
		First(&goal).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			a.logger.Warn().Err(err).Str("goal_id", goalID).Msg("goal lookup failed")
		}
		return nil, err
	}
	return &goal, nil
}
