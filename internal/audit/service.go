/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/skuld_planner/internal/events"
	"github.com/friendsincode/skuld_planner/internal/models"
)

// Service handles audit logging by subscribing to events and storing audit entries.
type Service struct {
	db     *gorm.DB
	bus    *events.Bus
	logger zerolog.Logger
}

// NewService creates a new audit service.
func NewService(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Start subscribes to relevant events and logs them as audit entries.
func (s *Service) Start(ctx context.Context) {
	s.logger.Info().Msg("audit service starting")

	goalCreated := s.bus.Subscribe(events.EventGoalCreated)
	goalDecomposed := s.bus.Subscribe(events.EventGoalDecomposed)
	planRun := s.bus.Subscribe(events.EventPlanRun)
	calendarConnected := s.bus.Subscribe(events.EventCalendarConnected)
	calendarInsert := s.bus.Subscribe(events.EventCalendarInsert)
	calendarInsertErr := s.bus.Subscribe(events.EventCalendarInsertErr)
	freeBusyDegraded := s.bus.Subscribe(events.EventFreeBusyDegraded)

	defer func() {
		s.bus.Unsubscribe(events.EventGoalCreated, goalCreated)
		s.bus.Unsubscribe(events.EventGoalDecomposed, goalDecomposed)
		s.bus.Unsubscribe(events.EventPlanRun, planRun)
		s.bus.Unsubscribe(events.EventCalendarConnected, calendarConnected)
		s.bus.Unsubscribe(events.EventCalendarInsert, calendarInsert)
		s.bus.Unsubscribe(events.EventCalendarInsertErr, calendarInsertErr)
		s.bus.Unsubscribe(events.EventFreeBusyDegraded, freeBusyDegraded)
	}()

	s.logger.Info().Msg("audit service started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("audit service stopping")
			return

		case payload := <-goalCreated:
			s.logAuditEntry(ctx, events.EventGoalCreated, payload)

		case payload := <-goalDecomposed:
			s.logAuditEntry(ctx, events.EventGoalDecomposed, payload)

		case payload := <-planRun:
			s.logAuditEntry(ctx, events.EventPlanRun, payload)

		case payload := <-calendarConnected:
			s.logAuditEntry(ctx, events.EventCalendarConnected, payload)

		case payload := <-calendarInsert:
			s.logAuditEntry(ctx, events.EventCalendarInsert, payload)

		case payload := <-calendarInsertErr:
			s.logAuditEntry(ctx, events.EventCalendarInsertErr, payload)

		case payload := <-freeBusyDegraded:
			s.logAuditEntry(ctx, events.EventFreeBusyDegraded, payload)
		}
	}
}

// logAuditEntry creates an audit log entry from an event payload.
func (s *Service) logAuditEntry(ctx context.Context, action events.EventType, payload events.Payload) {
	entry := &models.AuditLog{
		Action:  string(action),
		Details: make(map[string]any),
	}

	if userID, ok := payload["user_id"].(string); ok && userID != "" {
		entry.UserID = userID
	}

	for k, v := range payload {
		if k == "user_id" {
			continue
		}
		entry.Details[k] = v
	}

	if err := s.Log(ctx, entry); err != nil {
		s.logger.Error().Err(err).
			Str("action", string(action)).
			Msg("failed to log audit entry")
	}
}

// Log records an audit entry directly (for non-event-bus actions).
func (s *Service) Log(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.Details == nil {
		entry.Details = make(map[string]any)
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return err
	}

	s.logger.Debug().
		Str("action", entry.Action).
		Str("id", entry.ID).
		Msg("audit entry logged")

	return nil
}

// QueryFilters defines filters for querying audit logs.
type QueryFilters struct {
	UserID    *string
	Action    *string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

// Query retrieves audit logs with filters.
func (s *Service) Query(ctx context.Context, filters QueryFilters) ([]models.AuditLog, int64, error) {
	var logs []models.AuditLog
	var total int64

	query := s.db.WithContext(ctx).Model(&models.AuditLog{})

	if filters.UserID != nil {
		query = query.Where("user_id = ?", *filters.UserID)
	}
	if filters.Action != nil {
		query = query.Where("action = ?", *filters.Action)
	}
	if filters.StartTime != nil {
		query = query.Where("created_at >= ?", *filters.StartTime)
	}
	if filters.EndTime != nil {
		query = query.Where("created_at <= ?", *filters.EndTime)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	} else {
		query = query.Limit(100)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Order("created_at DESC").Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}
