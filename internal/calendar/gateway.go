/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package calendar talks to the user's external calendar: free/busy
// snapshots for planning and event inserts for placed tasks.
package calendar

import (
	"context"
	"errors"
	"time"

	"github.com/friendsincode/skuld_planner/internal/planner"
)

// ErrNotConnected indicates the user has not linked a calendar account.
var ErrNotConnected = errors.New("calendar not connected")

// Event is a calendar event to be created for a scheduled task.
type Event struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Timezone    string
}

// Gateway abstracts the external calendar provider.
type Gateway interface {
	// FetchBusy returns the busy intervals in [timeMin, timeMax).
	FetchBusy(ctx context.Context, userID string, timeMin, timeMax time.Time) ([]planner.Interval, error)

	// InsertEvent creates an event and returns the provider's event ID.
	InsertEvent(ctx context.Context, userID string, event Event) (string, error)
}
