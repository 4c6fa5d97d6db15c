/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package planner implements the slot-allocation engine: it merges busy
// calendar intervals, carves free gaps out of bounded day windows, and
// places tasks first-fit under a declared scheduling policy. The package
// performs no I/O; callers supply the busy snapshot and consume the result.
package planner

import (
	"sort"
	"time"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns the span of the interval.
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Overlaps reports whether two half-open intervals intersect.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// MergeBusy normalizes a raw busy list into a sorted set of disjoint
// intervals. Pairs with end <= start are dropped rather than rejected;
// overlapping or adjacent pairs are coalesced.
func MergeBusy(raw []Interval) []Interval {
	cleaned := make([]Interval, 0, len(raw))
	for _, iv := range raw {
		if !iv.End.After(iv.Start) {
			continue
		}
		cleaned = append(cleaned, iv)
	}
	if len(cleaned) == 0 {
		return nil
	}

	sort.Slice(cleaned, func(i, j int) bool {
		if cleaned[i].Start.Equal(cleaned[j].Start) {
			return cleaned[i].End.Before(cleaned[j].End)
		}
		return cleaned[i].Start.Before(cleaned[j].Start)
	})

	merged := []Interval{cleaned[0]}
	for _, iv := range cleaned[1:] {
		last := &merged[len(merged)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// carveFree subtracts busy intervals from the window [windowStart, windowEnd)
// and returns the remaining gaps in chronological order. busy must be merged
// and sorted; entries outside the window are clipped. Zero-length gaps are
// omitted.
func carveFree(windowStart, windowEnd time.Time, busy []Interval) []Interval {
	if !windowEnd.After(windowStart) {
		return nil
	}

	var gaps []Interval
	cursor := windowStart
	for _, iv := range busy {
		if !iv.End.After(windowStart) || !windowEnd.After(iv.Start) {
			continue
		}
		start := iv.Start
		if start.Before(windowStart) {
			start = windowStart
		}
		if start.After(cursor) {
			gaps = append(gaps, Interval{Start: cursor, End: start})
		}
		if iv.End.After(cursor) {
			cursor = iv.End
		}
	}
	if cursor.Before(windowEnd) {
		gaps = append(gaps, Interval{Start: cursor, End: windowEnd})
	}
	return gaps
}
