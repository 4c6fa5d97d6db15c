/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package planner

import (
	"time"
)

// Task is one unit of work to place. Durations are fractional hours and are
// never split across intervals.
type Task struct {
	ID            int64   `json:"id"`
	Description   string  `json:"description"`
	DurationHours float64 `json:"duration_hours"`
}

// duration converts the fractional-hour duration to a time.Duration.
func (t Task) duration() time.Duration {
	return time.Duration(t.DurationHours * float64(time.Hour))
}

// ScheduledEvent pairs a task with the slot it was assigned.
type ScheduledEvent struct {
	Task Task     `json:"task"`
	Slot Interval `json:"slot"`
}

// UnscheduledTask is a task for which no slot fit before the deadline. It is
// an expected outcome, not an error.
type UnscheduledTask struct {
	Task Task `json:"task"`
}

// Result partitions a run's outcome.
type Result struct {
	Scheduled   []ScheduledEvent  `json:"scheduled"`
	Unscheduled []UnscheduledTask `json:"unscheduled"`
}

// Mode is the run-wide placement strategy, chosen once before the main loop.
type Mode int

const (
	// ModeFreeBusyCarve subtracts real busy intervals from the wide
	// fallback work window.
	ModeFreeBusyCarve Mode = iota
	// ModePreferredWindow confines placements to the user's preferred
	// window. Selected only when the calendar has no commitments in range.
	ModePreferredWindow
)

// SelectMode picks the strategy for a run: preferred-window mode when a
// preferred window was supplied and the merged busy set is empty, carve mode
// otherwise. The choice applies to the whole run.
func SelectMode(p Policy, mergedBusy []Interval) Mode {
	if p.Preferred != nil && len(mergedBusy) == 0 {
		return ModePreferredWindow
	}
	return ModeFreeBusyCarve
}

// dayUsage tracks per-day consumption against the daily cap.
type dayUsage struct {
	count int
	hours float64
}

// Allocator walks tasks in input order and days forward from a cursor,
// placing each task in the first gap that fits. The cursor never moves
// backward: once a task lands, later tasks start searching at its buffer
// end, and a failed search is not retried on earlier days.
type Allocator struct {
	policy Policy
}

// NewAllocator builds an allocator for a normalized policy.
func NewAllocator(policy Policy) *Allocator {
	return &Allocator{policy: policy.Normalize()}
}

// Mode reports the strategy the allocator would select for the given raw
// busy list.
func (a *Allocator) Mode(busy []Interval) Mode {
	return SelectMode(a.policy, MergeBusy(a.clipToHorizon(busy)))
}

// Schedule assigns each task a non-overlapping slot, or records it as
// unscheduled. Tasks are processed strictly in input order; placement within
// a run is immediately visible to subsequent tasks. The computation is pure
// and deterministic.
func (a *Allocator) Schedule(tasks []Task, busy []Interval) Result {
	p := a.policy
	merged := MergeBusy(a.clipToHorizon(busy))
	mode := SelectMode(p, merged)

	cursor := p.HorizonStart.In(p.Location)
	if p.SkipStartDay {
		cursor = dayStart(cursor, p.Location).AddDate(0, 0, 1)
	}
	lastDay := dayStart(p.Deadline, p.Location)
	usage := make(map[string]dayUsage)

	result := Result{
		Scheduled:   make([]ScheduledEvent, 0, len(tasks)),
		Unscheduled: make([]UnscheduledTask, 0),
	}

	for _, task := range tasks {
		dur := task.duration()
		if dur <= 0 {
			result.Unscheduled = append(result.Unscheduled, UnscheduledTask{Task: task})
			continue
		}

		slot, found := a.findSlot(task, dur, mode, cursor, lastDay, merged, usage)
		if !found {
			// Horizon exhausted. The cursor stays put: the search
			// space only moves forward.
			result.Unscheduled = append(result.Unscheduled, UnscheduledTask{Task: task})
			continue
		}

		result.Scheduled = append(result.Scheduled, ScheduledEvent{Task: task, Slot: slot})

		// The placed slot plus its trailing buffer becomes busy for the
		// rest of the run.
		merged = MergeBusy(append(merged, Interval{Start: slot.Start, End: slot.End.Add(p.Buffer)}))

		key := dayKey(slot.Start, p.Location)
		used := usage[key]
		used.count++
		used.hours += task.DurationHours
		usage[key] = used

		cursor = slot.End.Add(p.Buffer)
	}

	return result
}

// findSlot scans days from the cursor's day through the deadline and returns
// the first-fit slot. Tie-breaks: earliest eligible day, then earliest gap,
// then the gap's start (clamped to the cursor on the cursor's own day).
func (a *Allocator) findSlot(task Task, dur time.Duration, mode Mode, cursor time.Time, lastDay time.Time, busy []Interval, usage map[string]dayUsage) (Interval, bool) {
	p := a.policy

	for day := dayStart(cursor, p.Location); !day.After(lastDay); day = day.AddDate(0, 0, 1) {
		if !p.dayEligible(day) {
			continue
		}
		if !p.Cap.allows(usage[dayKey(day, p.Location)], task.DurationHours) {
			continue
		}

		window := p.windowFor(day, mode)
		if day.Equal(dayStart(cursor, p.Location)) && cursor.After(window.Start) {
			window.Start = cursor
		}
		if !window.End.After(window.Start) {
			continue
		}

		for _, gap := range carveFree(window.Start, window.End, busy) {
			if gap.Duration() >= dur {
				return Interval{Start: gap.Start, End: gap.Start.Add(dur)}, true
			}
		}
	}

	return Interval{}, false
}

// clipToHorizon restricts raw busy intervals to [HorizonStart, deadline+1d).
// Intervals straddling a bound are trimmed, not dropped.
func (a *Allocator) clipToHorizon(busy []Interval) []Interval {
	p := a.policy
	lo := p.HorizonStart.In(p.Location)
	hi := p.horizonEnd()

	out := make([]Interval, 0, len(busy))
	for _, iv := range busy {
		if !iv.End.After(lo) || !hi.After(iv.Start) {
			continue
		}
		if iv.Start.Before(lo) {
			iv.Start = lo
		}
		if iv.End.After(hi) {
			iv.End = hi
		}
		out = append(out, iv)
	}
	return out
}

func dayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
