// Package interval implements inclusive date-interval arithmetic at day
// granularity. A Set holds the merged union of recorded intervals, so
// coverage queries behave as if overlapping or adjacent segments were a
// single segment regardless of how they were recorded.
package interval

import (
	"fmt"
	"sort"
	"time"

	"github.com/finboard/fincache/internal/core"
)

// Interval is an inclusive [Start, End] range of calendar days.
// Start == End is a valid single-day interval.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// New builds a day-truncated interval. End before Start is an error,
// never silently swapped.
func New(start, end time.Time) (Interval, error) {
	s := core.DateOnly(start)
	e := core.DateOnly(end)
	if e.Before(s) {
		return Interval{}, fmt.Errorf("invalid interval: end %s before start %s", core.FormatDate(e), core.FormatDate(s))
	}
	return Interval{Start: s, End: e}, nil
}

// MustNew is New for statically-known-valid ranges (tests, month bounds).
func MustNew(start, end time.Time) Interval {
	iv, err := New(start, end)
	if err != nil {
		panic(err)
	}
	return iv
}

// Days returns the inclusive day count.
func (iv Interval) Days() int {
	return core.DaysBetween(iv.Start, iv.End)
}

// Contains reports whether day d falls within the interval.
func (iv Interval) Contains(d time.Time) bool {
	d = core.DateOnly(d)
	return !d.Before(iv.Start) && !d.After(iv.End)
}

// Overlaps reports whether the two intervals share at least one day.
func (iv Interval) Overlaps(other Interval) bool {
	return !iv.Start.After(other.End) && !iv.End.Before(other.Start)
}

// touches reports whether the intervals overlap or are adjacent
// (gap of zero days), in which case they merge into one.
func (iv Interval) touches(other Interval) bool {
	return !iv.Start.After(other.End.AddDate(0, 0, 1)) && !iv.End.Before(other.Start.AddDate(0, 0, -1))
}

// Intersection returns the overlap of two intervals.
// The second return is false when they do not overlap.
func (iv Interval) Intersection(other Interval) (Interval, bool) {
	if !iv.Overlaps(other) {
		return Interval{}, false
	}
	start := iv.Start
	if other.Start.After(start) {
		start = other.Start
	}
	end := iv.End
	if other.End.Before(end) {
		end = other.End
	}
	return Interval{Start: start, End: end}, true
}

func (iv Interval) String() string {
	return core.FormatDate(iv.Start) + ".." + core.FormatDate(iv.End)
}

// Set maintains a sorted, disjoint, merged list of intervals.
// The zero value is an empty set ready for use.
type Set struct {
	ivs []Interval
}

// NewSet builds a set from arbitrary (possibly overlapping) intervals.
func NewSet(ivs ...Interval) *Set {
	s := &Set{}
	for _, iv := range ivs {
		s.Add(iv)
	}
	return s
}

// Add inserts an interval, coalescing with any overlapping or adjacent
// members. Adding an already-covered interval is a no-op, so recording the
// same range twice yields identical coverage.
func (s *Set) Add(iv Interval) {
	merged := iv
	rest := make([]Interval, 0, len(s.ivs)+1)
	for _, existing := range s.ivs {
		if merged.touches(existing) {
			if existing.Start.Before(merged.Start) {
				merged.Start = existing.Start
			}
			if existing.End.After(merged.End) {
				merged.End = existing.End
			}
		} else {
			rest = append(rest, existing)
		}
	}
	rest = append(rest, merged)
	sort.Slice(rest, func(i, j int) bool { return rest[i].Start.Before(rest[j].Start) })
	s.ivs = rest
}

// Remove deletes coverage for iv, splitting a member when iv is a strict
// sub-range of it.
func (s *Set) Remove(iv Interval) {
	rest := make([]Interval, 0, len(s.ivs)+1)
	for _, existing := range s.ivs {
		if !existing.Overlaps(iv) {
			rest = append(rest, existing)
			continue
		}
		if existing.Start.Before(iv.Start) {
			rest = append(rest, Interval{Start: existing.Start, End: iv.Start.AddDate(0, 0, -1)})
		}
		if existing.End.After(iv.End) {
			rest = append(rest, Interval{Start: iv.End.AddDate(0, 0, 1), End: existing.End})
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].Start.Before(rest[j].Start) })
	s.ivs = rest
}

// Intervals returns the merged, disjoint members in ascending order.
func (s *Set) Intervals() []Interval {
	out := make([]Interval, len(s.ivs))
	copy(out, s.ivs)
	return out
}

// Len returns the number of disjoint members.
func (s *Set) Len() int {
	return len(s.ivs)
}

// TotalDays returns the total number of covered days.
func (s *Set) TotalDays() int {
	total := 0
	for _, iv := range s.ivs {
		total += iv.Days()
	}
	return total
}

// Contains reports whether iv is fully covered by the set.
func (s *Set) Contains(iv Interval) bool {
	return len(s.Subtract(iv)) == 0
}

// Intersect returns the portions of iv that are covered, as a minimal
// ascending list of disjoint intervals.
func (s *Set) Intersect(iv Interval) []Interval {
	out := make([]Interval, 0)
	for _, existing := range s.ivs {
		if hit, ok := existing.Intersection(iv); ok {
			out = append(out, hit)
		}
	}
	return out
}

// Subtract returns the portions of iv that are NOT covered, as a minimal
// ascending list of disjoint intervals. A query spanning
// cached-gap-cached yields one interval per gap.
func (s *Set) Subtract(iv Interval) []Interval {
	out := make([]Interval, 0)
	cursor := iv.Start
	for _, existing := range s.ivs {
		hit, ok := existing.Intersection(iv)
		if !ok {
			continue
		}
		if hit.Start.After(cursor) {
			out = append(out, Interval{Start: cursor, End: hit.Start.AddDate(0, 0, -1)})
		}
		next := hit.End.AddDate(0, 0, 1)
		if next.After(cursor) {
			cursor = next
		}
	}
	if !cursor.After(iv.End) {
		out = append(out, Interval{Start: cursor, End: iv.End})
	}
	return out
}
