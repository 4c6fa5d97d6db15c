/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	calendarapi "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/friendsincode/skuld_planner/internal/planner"
)

// GoogleGateway implements Gateway against the Google Calendar API.
type GoogleGateway struct {
	oauth      *OAuthManager
	calendarID string
	logger     zerolog.Logger

	// newService builds an API client for a user. Tests point this at an
	// httptest server.
	newService func(ctx context.Context, userID string) (*calendarapi.Service, error)
}

// NewGoogleGateway creates a gateway that authenticates each call with the
// user's stored OAuth token.
func NewGoogleGateway(oauth *OAuthManager, calendarID string, logger zerolog.Logger) *GoogleGateway {
	g := &GoogleGateway{
		oauth:      oauth,
		calendarID: calendarID,
		logger:     logger.With().Str("component", "calendar").Logger(),
	}
	g.newService = func(ctx context.Context, userID string) (*calendarapi.Service, error) {
		ts, err := oauth.TokenSource(ctx, userID)
		if err != nil {
			return nil, err
		}
		return calendarapi.NewService(ctx, option.WithTokenSource(ts))
	}
	return g
}

// FetchBusy queries free/busy for [timeMin, timeMax) and returns the raw
// busy intervals. No merging happens here; the planner owns that.
func (g *GoogleGateway) FetchBusy(ctx context.Context, userID string, timeMin, timeMax time.Time) ([]planner.Interval, error) {
	svc, err := g.newService(ctx, userID)
	if err != nil {
		return nil, err
	}

	req := &calendarapi.FreeBusyRequest{
		TimeMin: timeMin.Format(time.RFC3339),
		TimeMax: timeMax.Format(time.RFC3339),
		Items:   []*calendarapi.FreeBusyRequestItem{{Id: g.calendarID}},
	}

	resp, err := svc.Freebusy.Query(req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("free/busy query: %w", err)
	}

	var busy []planner.Interval
	for _, cal := range resp.Calendars {
		for _, period := range cal.Busy {
			start, err := time.Parse(time.RFC3339, period.Start)
			if err != nil {
				g.logger.Warn().Str("value", period.Start).Msg("unparseable busy start, skipping period")
				continue
			}
			end, err := time.Parse(time.RFC3339, period.End)
			if err != nil {
				g.logger.Warn().Str("value", period.End).Msg("unparseable busy end, skipping period")
				continue
			}
			busy = append(busy, planner.Interval{Start: start, End: end})
		}
	}

	g.logger.Debug().
		Str("user_id", userID).
		Int("busy_periods", len(busy)).
		Time("time_min", timeMin).
		Time("time_max", timeMax).
		Msg("fetched free/busy")

	return busy, nil
}

// InsertEvent creates a calendar event and returns its provider ID.
func (g *GoogleGateway) InsertEvent(ctx context.Context, userID string, event Event) (string, error) {
	svc, err := g.newService(ctx, userID)
	if err != nil {
		return "", err
	}

	apiEvent := &calendarapi.Event{
		Summary:     event.Summary,
		Description: event.Description,
		Start: &calendarapi.EventDateTime{
			DateTime: event.Start.Format(time.RFC3339),
			TimeZone: event.Timezone,
		},
		End: &calendarapi.EventDateTime{
			DateTime: event.End.Format(time.RFC3339),
			TimeZone: event.Timezone,
		},
	}

	created, err := svc.Events.Insert(g.calendarID, apiEvent).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert event: %w", err)
	}

	g.logger.Debug().
		Str("user_id", userID).
		Str("event_id", created.Id).
		Str("summary", event.Summary).
		Msg("event created")

	return created.Id, nil
}
