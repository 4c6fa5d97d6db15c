/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	calendarapi "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/friendsincode/skuld_planner/internal/planner"
)

// newTestGateway returns a gateway whose API client talks to the given
// httptest server instead of Google.
func newTestGateway(t *testing.T, srv *httptest.Server) *GoogleGateway {
	t.Helper()

	g := &GoogleGateway{
		calendarID: "primary",
		logger:     zerolog.Nop(),
	}
	g.newService = func(ctx context.Context, userID string) (*calendarapi.Service, error) {
		return calendarapi.NewService(ctx,
			option.WithEndpoint(srv.URL),
			option.WithHTTPClient(srv.Client()),
		)
	}
	return g
}

func TestFetchBusyParsesPeriods(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/freeBusy" {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}

		var req calendarapi.FreeBusyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Items) != 1 || req.Items[0].Id != "primary" {
			t.Errorf("expected query for primary calendar, got %+v", req.Items)
		}

		resp := calendarapi.FreeBusyResponse{
			Calendars: map[string]calendarapi.FreeBusyCalendar{
				"primary": {
					Busy: []*calendarapi.TimePeriod{
						{Start: "2026-03-02T10:00:00Z", End: "2026-03-02T11:00:00Z"},
						{Start: "2026-03-02T14:00:00Z", End: "2026-03-02T15:30:00Z"},
					},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	g := newTestGateway(t, srv)

	timeMin := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	timeMax := timeMin.AddDate(0, 0, 7)

	busy, err := g.FetchBusy(context.Background(), "user-1", timeMin, timeMax)
	if err != nil {
		t.Fatalf("FetchBusy failed: %v", err)
	}

	want := []planner.Interval{
		{Start: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), End: time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)},
		{Start: time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC), End: time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC)},
	}
	if len(busy) != len(want) {
		t.Fatalf("expected %d intervals, got %d", len(want), len(busy))
	}
	for i := range want {
		if !busy[i].Start.Equal(want[i].Start) || !busy[i].End.Equal(want[i].End) {
			t.Errorf("interval %d: got [%v, %v), want [%v, %v)",
				i, busy[i].Start, busy[i].End, want[i].Start, want[i].End)
		}
	}
}

func TestFetchBusySkipsMalformedPeriods(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := calendarapi.FreeBusyResponse{
			Calendars: map[string]calendarapi.FreeBusyCalendar{
				"primary": {
					Busy: []*calendarapi.TimePeriod{
						{Start: "not-a-time", End: "2026-03-02T11:00:00Z"},
						{Start: "2026-03-02T14:00:00Z", End: "2026-03-02T15:00:00Z"},
					},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	g := newTestGateway(t, srv)

	busy, err := g.FetchBusy(context.Background(),
		"user-1",
		time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
	)
	if err != nil {
		t.Fatalf("FetchBusy failed: %v", err)
	}
	if len(busy) != 1 {
		t.Fatalf("expected malformed period to be skipped, got %d intervals", len(busy))
	}
}

func TestFetchBusyErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":500,"message":"backend error"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := newTestGateway(t, srv)

	_, err := g.FetchBusy(context.Background(),
		"user-1",
		time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
	)
	if err == nil {
		t.Fatal("expected error from failed free/busy query")
	}
}

func TestInsertEventReturnsID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/calendars/primary/events" {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}

		var ev calendarapi.Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if ev.Summary != "Practice scales" {
			t.Errorf("expected summary to round-trip, got %q", ev.Summary)
		}
		if ev.Start == nil || ev.Start.TimeZone != "America/Los_Angeles" {
			t.Errorf("expected start timezone to be set, got %+v", ev.Start)
		}

		ev.Id = "evt_123"
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ev)
	}))
	defer srv.Close()

	g := newTestGateway(t, srv)

	id, err := g.InsertEvent(context.Background(), "user-1", Event{
		Summary:  "Practice scales",
		Start:    time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		End:      time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC),
		Timezone: "America/Los_Angeles",
	})
	if err != nil {
		t.Fatalf("InsertEvent failed: %v", err)
	}
	if id != "evt_123" {
		t.Errorf("expected event ID evt_123, got %q", id)
	}
}
