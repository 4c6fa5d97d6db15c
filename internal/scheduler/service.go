/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler orchestrates planning runs: it loads a goal's tasks,
// fetches calendar free/busy, allocates slots, and writes events back to the
// calendar.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/skuld_planner/internal/cache"
	"github.com/friendsincode/skuld_planner/internal/calendar"
	"github.com/friendsincode/skuld_planner/internal/config"
	"github.com/friendsincode/skuld_planner/internal/events"
	"github.com/friendsincode/skuld_planner/internal/models"
	"github.com/friendsincode/skuld_planner/internal/planner"
	"github.com/friendsincode/skuld_planner/internal/telemetry"
)

// ErrGoalNotFound indicates the goal does not exist or belongs to another user.
var ErrGoalNotFound = errors.New("goal not found")

// ErrNoTasks indicates the goal has no decomposed tasks to place.
var ErrNoTasks = errors.New("goal has no tasks")

// BusyCache is the slice of the snapshot cache the scheduler consumes.
type BusyCache interface {
	GetFreeBusy(ctx context.Context, userID string, timeMin, timeMax time.Time) ([]cache.CachedInterval, bool)
	SetFreeBusy(ctx context.Context, userID string, timeMin, timeMax time.Time, intervals []cache.CachedInterval) error
	InvalidateFreeBusy(ctx context.Context, userID string) error
}

// Service coordinates one planning run end to end.
type Service struct {
	db       *gorm.DB
	gateway  calendar.Gateway
	cache    BusyCache
	bus      *events.Bus
	defaults config.PolicyDefaults
	location *time.Location
	strict   bool
	logger   zerolog.Logger
	now      func() time.Time
}

// New constructs the scheduler service.
func New(db *gorm.DB, gateway calendar.Gateway, bus *events.Bus, defaults config.PolicyDefaults, location *time.Location, strict bool, logger zerolog.Logger) *Service {
	return &Service{
		db:       db,
		gateway:  gateway,
		bus:      bus,
		defaults: defaults,
		location: location,
		strict:   strict,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		now:      time.Now,
	}
}

// SetCache sets the free/busy snapshot cache.
func (s *Service) SetCache(c BusyCache) {
	s.cache = c
}

// WindowOverride narrows placements to an hour range on the start day's
// date grid.
type WindowOverride struct {
	StartHour int `json:"start_hour"`
	EndHour   int `json:"end_hour"`
}

// RunRequest parameterizes one planning run. Zero fields fall back to the
// configured policy defaults.
type RunRequest struct {
	GoalID string `json:"goal_id"`

	// Deadline overrides the goal's stored deadline (YYYY-MM-DD or RFC3339).
	Deadline string `json:"deadline,omitempty"`

	Weekdays        []string        `json:"weekdays,omitempty"`
	DailyTaskCount  int             `json:"daily_task_count,omitempty"`
	DailyHourCap    float64         `json:"daily_hour_cap,omitempty"`
	BufferMinutes   int             `json:"buffer_minutes,omitempty"`
	PreferredWindow *WindowOverride `json:"preferred_window,omitempty"`
	SkipStartDay    *bool           `json:"skip_start_day,omitempty"`
}

// ScheduledItem is one placed task in the run result.
type ScheduledItem struct {
	Seq           int64     `json:"seq"`
	Description   string    `json:"description"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	EventID       string    `json:"event_id,omitempty"`
	InsertError   string    `json:"insert_error,omitempty"`
	DurationHours float64   `json:"duration_hours"`
}

// UnscheduledItem is a task that could not be placed before the deadline.
type UnscheduledItem struct {
	Seq           int64   `json:"seq"`
	Description   string  `json:"description"`
	DurationHours float64 `json:"duration_hours"`
}

// RunResult summarizes a planning run.
type RunResult struct {
	GoalID            string            `json:"goal_id"`
	Mode              string            `json:"mode"`
	Deadline          time.Time         `json:"deadline"`
	DeadlineDefaulted bool              `json:"deadline_defaulted"`
	Degraded          bool              `json:"degraded"`
	Scheduled         []ScheduledItem   `json:"scheduled"`
	Unscheduled       []UnscheduledItem `json:"unscheduled"`
}

// Run plans the goal's tasks and inserts calendar events for every placed
// slot. Individual insert failures are reported per item; already-created
// events are never rolled back.
func (s *Service) Run(ctx context.Context, userID string, req RunRequest) (*RunResult, error) {
	return s.run(ctx, userID, req, true)
}

// Preview plans the goal's tasks without touching the calendar.
func (s *Service) Preview(ctx context.Context, userID string, req RunRequest) (*RunResult, error) {
	return s.run(ctx, userID, req, false)
}

func (s *Service) run(ctx context.Context, userID string, req RunRequest, insert bool) (*RunResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "scheduler", "plan.run")
	defer span.End()

	start := time.Now()
	defer func() {
		telemetry.PlanDuration.Observe(time.Since(start).Seconds())
	}()

	goal, tasks, err := s.loadGoal(ctx, userID, req.GoalID)
	if err != nil {
		telemetry.PlanRunsTotal.WithLabelValues("error").Inc()
		telemetry.RecordError(span, err)
		return nil, err
	}

	deadlineRaw := req.Deadline
	if deadlineRaw == "" {
		deadlineRaw = goal.Deadline
	}

	loc := s.planLocation(ctx, userID)
	policy, defaulted := s.buildPolicy(req, deadlineRaw, loc)

	telemetry.AddSpanAttributes(span, map[string]any{
		"user_id":  userID,
		"goal_id":  goal.ID,
		"tasks":    len(tasks),
		"deadline": policy.Deadline.Format("2006-01-02"),
	})

	busy, degraded, err := s.fetchBusy(ctx, userID, policy)
	if err != nil {
		telemetry.PlanRunsTotal.WithLabelValues("error").Inc()
		telemetry.RecordError(span, err)
		return nil, err
	}

	alloc := planner.NewAllocator(policy)
	mode := alloc.Mode(busy)
	allocation := alloc.Schedule(tasks, busy)

	result := &RunResult{
		GoalID:            goal.ID,
		Mode:              modeName(mode),
		Deadline:          policy.Deadline,
		DeadlineDefaulted: defaulted,
		Degraded:          degraded,
		Scheduled:         make([]ScheduledItem, 0, len(allocation.Scheduled)),
		Unscheduled:       make([]UnscheduledItem, 0, len(allocation.Unscheduled)),
	}

	for _, ev := range allocation.Scheduled {
		item := ScheduledItem{
			Seq:           ev.Task.ID,
			Description:   ev.Task.Description,
			Start:         ev.Slot.Start,
			End:           ev.Slot.End,
			DurationHours: ev.Task.DurationHours,
		}
		if insert {
			item.EventID, item.InsertError = s.insertEvent(ctx, userID, goal, ev, loc)
		}
		result.Scheduled = append(result.Scheduled, item)
	}

	for _, ut := range allocation.Unscheduled {
		result.Unscheduled = append(result.Unscheduled, UnscheduledItem{
			Seq:           ut.Task.ID,
			Description:   ut.Task.Description,
			DurationHours: ut.Task.DurationHours,
		})
	}

	if insert && s.cache != nil && len(result.Scheduled) > 0 {
		// New events change free/busy; stale snapshots must not survive.
		if err := s.cache.InvalidateFreeBusy(ctx, userID); err != nil {
			s.logger.Warn().Err(err).Msg("failed to invalidate free/busy cache")
		}
	}

	telemetry.TasksScheduledTotal.Add(float64(len(result.Scheduled)))
	telemetry.TasksUnscheduledTotal.Add(float64(len(result.Unscheduled)))
	if degraded {
		telemetry.PlanRunsTotal.WithLabelValues("degraded").Inc()
	} else {
		telemetry.PlanRunsTotal.WithLabelValues("ok").Inc()
	}

	s.bus.Publish(events.EventPlanRun, events.Payload{
		"user_id":     userID,
		"goal_id":     goal.ID,
		"mode":        result.Mode,
		"scheduled":   len(result.Scheduled),
		"unscheduled": len(result.Unscheduled),
		"degraded":    degraded,
		"dry_run":     !insert,
	})

	s.logger.Info().
		Str("user_id", userID).
		Str("goal_id", goal.ID).
		Str("mode", result.Mode).
		Int("scheduled", len(result.Scheduled)).
		Int("unscheduled", len(result.Unscheduled)).
		Bool("degraded", degraded).
		Bool("dry_run", !insert).
		Msg("planning run complete")

	return result, nil
}

// loadGoal fetches the goal and its tasks in decomposition order.
func (s *Service) loadGoal(ctx context.Context, userID, goalID string) (*models.Goal, []planner.Task, error) {
	var goal models.Goal
	err := s.db.WithContext(ctx).
		Preload("Tasks", func(db *gorm.DB) *gorm.DB {
			return db.Order("seq ASC")
		}).
		Where("id = ? AND user_id = ?", goalID, userID).
		First(&goal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrGoalNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load goal: %w", err)
	}
	if len(goal.Tasks) == 0 {
		return nil, nil, ErrNoTasks
	}

	tasks := make([]planner.Task, 0, len(goal.Tasks))
	for _, t := range goal.Tasks {
		tasks = append(tasks, planner.Task{
			ID:            t.Seq,
			Description:   t.Description,
			DurationHours: t.DurationHours,
		})
	}
	return &goal, tasks, nil
}

// planLocation resolves the time zone for a run: the user's stored zone when
// one is set and valid, the configured default otherwise.
func (s *Service) planLocation(ctx context.Context, userID string) *time.Location {
	var user models.User
	err := s.db.WithContext(ctx).Select("timezone").First(&user, "id = ?", userID).Error
	if err != nil || user.Timezone == "" {
		return s.location
	}

	loc, err := time.LoadLocation(user.Timezone)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Str("timezone", user.Timezone).Msg("stored timezone invalid, using default")
		return s.location
	}
	return loc
}

// buildPolicy merges configured defaults with per-request overrides.
func (s *Service) buildPolicy(req RunRequest, deadlineRaw string, loc *time.Location) (planner.Policy, bool) {
	now := s.now().In(loc)

	p := planner.Policy{
		HorizonStart: now,
		Location:     loc,
	}

	if s.defaults.WorkStartHour != 0 || s.defaults.WorkEndHour != 0 {
		p.WorkWindow = planner.ClockWindow{
			StartHour: s.defaults.WorkStartHour,
			EndHour:   s.defaults.WorkEndHour,
		}
	}

	weekdays := s.defaults.AllowedWeekdays
	if len(req.Weekdays) > 0 {
		weekdays = req.Weekdays
	}
	p.AllowedWeekdays = planner.ParseWeekdays(weekdays)

	switch {
	case req.DailyHourCap > 0:
		p.Cap = planner.HourCap(req.DailyHourCap)
	case req.DailyTaskCount > 0:
		p.Cap = planner.CountCap(req.DailyTaskCount)
	case s.defaults.DailyHourCap > 0:
		p.Cap = planner.HourCap(s.defaults.DailyHourCap)
	case s.defaults.DailyTaskCount > 0:
		p.Cap = planner.CountCap(s.defaults.DailyTaskCount)
	}

	bufferMinutes := s.defaults.BufferMinutes
	if req.BufferMinutes > 0 {
		bufferMinutes = req.BufferMinutes
	}
	if bufferMinutes > 0 {
		p.Buffer = time.Duration(bufferMinutes) * time.Minute
	}

	if req.PreferredWindow != nil {
		p.Preferred = &planner.ClockWindow{
			StartHour: req.PreferredWindow.StartHour,
			EndHour:   req.PreferredWindow.EndHour,
		}
	}

	p.SkipStartDay = s.defaults.SkipStartDay
	if req.SkipStartDay != nil {
		p.SkipStartDay = *req.SkipStartDay
	}

	deadline, defaulted := planner.ResolveDeadline(deadlineRaw, now, loc)
	p.Deadline = deadline

	return p.Normalize(), defaulted
}

// fetchBusy returns busy intervals for the planning horizon, consulting the
// snapshot cache first. Provider failures degrade to an empty calendar
// unless strict free/busy is configured; a missing calendar link is always a
// hard error because inserts would fail anyway.
func (s *Service) fetchBusy(ctx context.Context, userID string, p planner.Policy) ([]planner.Interval, bool, error) {
	// The cache keys on the window bounds; timeMin is minute-aligned so
	// runs moments apart share a snapshot instead of each missing on a
	// second-resolution bound.
	timeMin := p.HorizonStart.Truncate(time.Minute)
	timeMax := p.Deadline.AddDate(0, 0, 1)

	if s.cache != nil {
		if cached, ok := s.cache.GetFreeBusy(ctx, userID, timeMin, timeMax); ok {
			telemetry.FreeBusyFetchesTotal.WithLabelValues("cached").Inc()
			intervals := make([]planner.Interval, 0, len(cached))
			for _, ci := range cached {
				intervals = append(intervals, planner.Interval{Start: ci.Start, End: ci.End})
			}
			return intervals, false, nil
		}
	}

	busy, err := s.gateway.FetchBusy(ctx, userID, timeMin, timeMax)
	if err != nil {
		if errors.Is(err, calendar.ErrNotConnected) {
			return nil, false, err
		}
		if s.strict {
			return nil, false, fmt.Errorf("fetch free/busy: %w", err)
		}

		telemetry.FreeBusyFetchesTotal.WithLabelValues("degraded").Inc()
		s.bus.Publish(events.EventFreeBusyDegraded, events.Payload{
			"user_id": userID,
			"error":   err.Error(),
		})
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("free/busy fetch failed, planning against empty calendar")
		return nil, true, nil
	}

	telemetry.FreeBusyFetchesTotal.WithLabelValues("ok").Inc()

	if s.cache != nil {
		cached := make([]cache.CachedInterval, 0, len(busy))
		for _, iv := range busy {
			cached = append(cached, cache.CachedInterval{Start: iv.Start, End: iv.End})
		}
		if err := s.cache.SetFreeBusy(ctx, userID, timeMin, timeMax, cached); err != nil {
			s.logger.Debug().Err(err).Msg("failed to cache free/busy snapshot")
		}
	}

	return busy, false, nil
}

// insertEvent writes one placed task to the calendar. Failures are returned
// as a message on the item, not as a run error.
func (s *Service) insertEvent(ctx context.Context, userID string, goal *models.Goal, ev planner.ScheduledEvent, loc *time.Location) (string, string) {
	eventID, err := s.gateway.InsertEvent(ctx, userID, calendar.Event{
		Summary:     ev.Task.Description,
		Description: fmt.Sprintf("Goal: %s", goal.Title),
		Start:       ev.Slot.Start,
		End:         ev.Slot.End,
		Timezone:    loc.String(),
	})
	if err != nil {
		telemetry.CalendarInsertsTotal.WithLabelValues("error").Inc()
		s.bus.Publish(events.EventCalendarInsertErr, events.Payload{
			"user_id": userID,
			"goal_id": goal.ID,
			"seq":     ev.Task.ID,
			"error":   err.Error(),
		})
		s.logger.Warn().Err(err).
			Str("user_id", userID).
			Int64("seq", ev.Task.ID).
			Msg("event insert failed")
		return "", err.Error()
	}

	telemetry.CalendarInsertsTotal.WithLabelValues("ok").Inc()
	s.bus.Publish(events.EventCalendarInsert, events.Payload{
		"user_id":  userID,
		"goal_id":  goal.ID,
		"seq":      ev.Task.ID,
		"event_id": eventID,
	})
	return eventID, ""
}

func modeName(m planner.Mode) string {
	if m == planner.ModePreferredWindow {
		return "preferred_window"
	}
	return "free_busy_carve"
}
