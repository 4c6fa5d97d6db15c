/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package planner

import (
	"testing"
	"time"
)

func TestNormalizeAppliesDefaults(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	p := Policy{HorizonStart: start}.Normalize()

	if p.Location != time.UTC {
		t.Fatalf("Location = %v, want UTC", p.Location)
	}
	if len(p.AllowedWeekdays) != 5 || !p.AllowedWeekdays[time.Monday] || p.AllowedWeekdays[time.Saturday] {
		t.Fatalf("AllowedWeekdays = %v, want Mon-Fri", p.AllowedWeekdays)
	}
	if p.Cap.Kind != CapCount || p.Cap.Count != DefaultDailyTaskCount {
		t.Fatalf("Cap = %+v, want CountCap(%d)", p.Cap, DefaultDailyTaskCount)
	}
	if p.Buffer != time.Hour {
		t.Fatalf("Buffer = %v, want 1h", p.Buffer)
	}
	if p.WorkWindow.StartHour != 9 || p.WorkWindow.EndHour != 22 {
		t.Fatalf("WorkWindow = %+v, want 9-22", p.WorkWindow)
	}
	wantDeadline := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	if !p.Deadline.Equal(wantDeadline) {
		t.Fatalf("Deadline = %v, want %v", p.Deadline, wantDeadline)
	}
}

func TestNormalizeDropsInvalidPreferredWindow(t *testing.T) {
	p := Policy{Preferred: &ClockWindow{StartHour: 14, EndHour: 9}}.Normalize()
	if p.Preferred != nil {
		t.Fatalf("Preferred = %+v, want nil", p.Preferred)
	}
}

func TestParseWeekdays(t *testing.T) {
	tests := []struct {
		name  string
		codes []string
		want  []time.Weekday
	}{
		{name: "subset", codes: []string{"MO", "WE", "FR"}, want: []time.Weekday{time.Monday, time.Wednesday, time.Friday}},
		{name: "weekend", codes: []string{"SA", "SU"}, want: []time.Weekday{time.Saturday, time.Sunday}},
		{name: "unknown codes ignored", codes: []string{"MO", "XX"}, want: []time.Weekday{time.Monday}},
		{name: "all unknown yields nil", codes: []string{"XX", "YY"}, want: nil},
		{name: "empty yields nil", codes: nil, want: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseWeekdays(tc.codes)
			if tc.want == nil {
				if got != nil {
					t.Fatalf("ParseWeekdays(%v) = %v, want nil", tc.codes, got)
				}
				return
			}
			if len(got) != len(tc.want) {
				t.Fatalf("ParseWeekdays(%v) = %v, want %v", tc.codes, got, tc.want)
			}
			for _, wd := range tc.want {
				if !got[wd] {
					t.Fatalf("ParseWeekdays(%v) missing %v", tc.codes, wd)
				}
			}
		})
	}
}

func TestResolveDeadlineParsesDateForms(t *testing.T) {
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	got, fallback := ResolveDeadline("2026-03-20", now, time.UTC)
	if fallback {
		t.Fatal("date-only form took fallback")
	}
	if want := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("deadline = %v, want %v", got, want)
	}

	got, fallback = ResolveDeadline("2026-03-20T18:30:00Z", now, time.UTC)
	if fallback {
		t.Fatal("RFC3339 form took fallback")
	}
	if want := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("deadline = %v, want %v", got, want)
	}
}

func TestResolveDeadlineMalformedFallsBackSevenDays(t *testing.T) {
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	got, fallback := ResolveDeadline("not-a-date", now, time.UTC)
	if !fallback {
		t.Fatal("expected fallback for malformed deadline")
	}
	if want := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("deadline = %v, want %v", got, want)
	}
}

func TestDailyCapVariants(t *testing.T) {
	count := CountCap(2)
	if !count.allows(dayUsage{count: 1}, 2) {
		t.Fatal("count cap rejected second task")
	}
	if count.allows(dayUsage{count: 2}, 0.5) {
		t.Fatal("count cap allowed third task")
	}

	hours := HourCap(4)
	if !hours.allows(dayUsage{hours: 2}, 2) {
		t.Fatal("hour cap rejected exact fit")
	}
	if hours.allows(dayUsage{hours: 2.5}, 2) {
		t.Fatal("hour cap allowed overrun")
	}
}
