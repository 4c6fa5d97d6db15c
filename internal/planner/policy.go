/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package planner

import (
	"time"
)

// Defaults applied by Policy.Normalize.
const (
	DefaultWorkStartHour  = 9
	DefaultWorkEndHour    = 22
	DefaultBuffer         = time.Hour
	DefaultDailyTaskCount = 2

	// FallbackHorizonDays is used when a deadline cannot be parsed.
	FallbackHorizonDays = 7
)

// CapKind selects the daily-cap accounting mode.
type CapKind int

const (
	// CapCount limits the number of tasks placed on a single day.
	CapCount CapKind = iota
	// CapHours limits the summed scheduled hours on a single day.
	CapHours
)

// DailyCap bounds how much may be placed on one calendar day. Exactly one
// variant is active, selected by Kind.
type DailyCap struct {
	Kind  CapKind
	Count int
	Hours float64
}

// CountCap returns a cap of n tasks per day.
func CountCap(n int) DailyCap {
	return DailyCap{Kind: CapCount, Count: n}
}

// HourCap returns a cap of h scheduled hours per day.
func HourCap(h float64) DailyCap {
	return DailyCap{Kind: CapHours, Hours: h}
}

// allows reports whether placing a task of durationHours on a day with the
// given usage stays within the cap. Comparisons are exact; no rounding.
func (c DailyCap) allows(used dayUsage, durationHours float64) bool {
	switch c.Kind {
	case CapCount:
		return used.count < c.Count
	case CapHours:
		return used.hours+durationHours <= c.Hours
	default:
		return false
	}
}

// ClockWindow is a same-day window expressed as whole hours, e.g. 9-22.
type ClockWindow struct {
	StartHour int `json:"start_hour" yaml:"start_hour"`
	EndHour   int `json:"end_hour" yaml:"end_hour"`
}

// Valid reports whether the window spans forward within one day.
func (w ClockWindow) Valid() bool {
	return w.StartHour >= 0 && w.EndHour <= 24 && w.StartHour < w.EndHour
}

// on anchors the window to a calendar day, returning concrete timestamps.
func (w ClockWindow) on(day time.Time, loc *time.Location) Interval {
	y, m, d := day.In(loc).Date()
	return Interval{
		Start: time.Date(y, m, d, w.StartHour, 0, 0, 0, loc),
		End:   time.Date(y, m, d, w.EndHour, 0, 0, 0, loc),
	}
}

// Policy is the declared configuration for one scheduling run. It is built
// once per request and passed in whole; the engine holds no configuration of
// its own.
type Policy struct {
	// AllowedWeekdays filters eligible days. Empty means Mon-Fri.
	AllowedWeekdays map[time.Weekday]bool
	// Cap bounds per-day usage. Zero value means CountCap(2).
	Cap DailyCap
	// Preferred, when set, confines placements to a narrow window on runs
	// with no pre-existing calendar commitments.
	Preferred *ClockWindow
	// Buffer is idle time enforced after each placed task.
	Buffer time.Duration
	// WorkWindow is the wide fallback window used in carve mode.
	WorkWindow ClockWindow
	// HorizonStart is the earliest instant scheduling may begin.
	HorizonStart time.Time
	// Deadline is the last eligible calendar day, inclusive.
	Deadline time.Time
	// SkipStartDay shifts the initial cursor to the day after HorizonStart.
	SkipStartDay bool
	// Location is the single time zone for the whole run.
	Location *time.Location
}

// DefaultWeekdays returns the Mon-Fri working week.
func DefaultWeekdays() map[time.Weekday]bool {
	return map[time.Weekday]bool{
		time.Monday:    true,
		time.Tuesday:   true,
		time.Wednesday: true,
		time.Thursday:  true,
		time.Friday:    true,
	}
}

var weekdayCodes = map[string]time.Weekday{
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
	"SU": time.Sunday,
}

// ParseWeekdays converts two-letter day codes ("MO".."SU") into a weekday
// set. Unknown codes are ignored; an empty or all-unknown list yields nil so
// callers fall back to the default working week.
func ParseWeekdays(codes []string) map[time.Weekday]bool {
	if len(codes) == 0 {
		return nil
	}
	out := make(map[time.Weekday]bool, len(codes))
	for _, code := range codes {
		if wd, ok := weekdayCodes[code]; ok {
			out[wd] = true
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Normalize fills unset fields with the documented defaults and returns the
// completed policy.
func (p Policy) Normalize() Policy {
	if p.Location == nil {
		p.Location = time.UTC
	}
	if len(p.AllowedWeekdays) == 0 {
		p.AllowedWeekdays = DefaultWeekdays()
	}
	if p.Cap.Kind == CapCount && p.Cap.Count <= 0 {
		p.Cap.Count = DefaultDailyTaskCount
	}
	if p.Buffer <= 0 {
		p.Buffer = DefaultBuffer
	}
	if !p.WorkWindow.Valid() {
		p.WorkWindow = ClockWindow{StartHour: DefaultWorkStartHour, EndHour: DefaultWorkEndHour}
	}
	if p.Preferred != nil && !p.Preferred.Valid() {
		p.Preferred = nil
	}
	if p.Deadline.IsZero() {
		p.Deadline = dayStart(p.HorizonStart.AddDate(0, 0, FallbackHorizonDays), p.Location)
	}
	return p
}

// dayEligible reports whether the day's weekday is allowed.
func (p Policy) dayEligible(day time.Time) bool {
	return p.AllowedWeekdays[day.In(p.Location).Weekday()]
}

// windowFor returns the effective working window for a day under the
// selected mode.
func (p Policy) windowFor(day time.Time, mode Mode) Interval {
	if mode == ModePreferredWindow && p.Preferred != nil {
		return p.Preferred.on(day, p.Location)
	}
	return p.WorkWindow.on(day, p.Location)
}

// horizonEnd is the exclusive upper bound of the run: midnight after the
// deadline day.
func (p Policy) horizonEnd() time.Time {
	return dayStart(p.Deadline, p.Location).AddDate(0, 0, 1)
}

// ResolveDeadline parses a deadline date string ("2006-01-02", or a full
// RFC 3339 timestamp whose date portion is used). Malformed input falls back
// to FallbackHorizonDays from now instead of failing the request; the second
// return value reports whether the fallback was taken.
func ResolveDeadline(raw string, now time.Time, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.ParseInLocation("2006-01-02", raw, loc); err == nil {
		return t, false
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return dayStart(t.In(loc), loc), false
	}
	return dayStart(now.In(loc).AddDate(0, 0, FallbackHorizonDays), loc), true
}

// dayStart truncates t to midnight in loc.
func dayStart(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
