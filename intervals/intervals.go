// Package intervals implements the float-interval algebra the rest of the
// engine relies on: overlap tests, overlap ranges, sub-range selection and
// the margin-aware merge used everywhere a list of speech ranges needs to be
// collapsed into disjoint spans.
package intervals

import (
	"math"
	"sort"
)

// Interval is a closed range [Start, End] in seconds. End must be >= Start.
type Interval struct {
	Start float64
	End   float64
}

// IsOverlap reports whether a and b share any open interior point.
func IsOverlap(a, b Interval) bool {
	return a.End > b.Start && b.End > a.Start
}

// OverlapRange returns the overlap of a and b and true, or the zero Interval
// and false when they don't overlap.
func OverlapRange(a, b Interval) (Interval, bool) {
	if !IsOverlap(a, b) {
		return Interval{}, false
	}
	return Interval{Start: math.Max(a.Start, b.Start), End: math.Min(a.End, b.End)}, true
}

// SubRangeList returns OverlapRange(target, s) for every s in sources that
// overlaps target, preserving the order of sources.
func SubRangeList(target Interval, sources []Interval) []Interval {
	out := make([]Interval, 0, len(sources))
	for _, s := range sources {
		if r, ok := OverlapRange(target, s); ok {
			out = append(out, r)
		}
	}
	return out
}

// scaled is the integer-scaled, margin-shifted representation used
// internally by MergeFloatIntervals so the sweep never depends on
// floating-point comparisons.
type scaled struct {
	start int64
	end   int64
}

// MergeFloatIntervals merges list into the minimal set of disjoint
// intervals. decimals controls the integer scale (round(x * 10^decimals));
// margin is added to every start before the sweep and subtracted back
// afterwards, so integer-adjacent intervals (end == next.start) are NOT
// merged unless margin makes them overlap — margin=2 reproduces "a gap of
// exactly one integer unit breaks continuity".
//
// Intervals that become degenerate (start >= end) after the margin shift are
// dropped; they carried no real duration to begin with.
func MergeFloatIntervals(list []Interval, decimals, margin int) []Interval {
	if len(list) == 0 {
		return nil
	}
	scale := math.Pow(10, float64(decimals))

	scaledList := make([]scaled, 0, len(list))
	for _, iv := range list {
		s := int64(math.Round(iv.Start*scale)) + int64(margin)
		e := int64(math.Round(iv.End * scale))
		if s >= e {
			continue
		}
		scaledList = append(scaledList, scaled{start: s, end: e})
	}
	if len(scaledList) == 0 {
		return nil
	}

	sort.Slice(scaledList, func(i, j int) bool { return scaledList[i].start < scaledList[j].start })

	merged := make([]scaled, 0, len(scaledList))
	cur := scaledList[0]
	for _, next := range scaledList[1:] {
		if cur.end >= next.start {
			if next.end > cur.end {
				cur.end = next.end
			}
			continue
		}
		merged = append(merged, cur)
		cur = next
	}
	merged = append(merged, cur)

	out := make([]Interval, 0, len(merged))
	for _, m := range merged {
		start := float64(m.start-int64(margin)) / scale
		end := float64(m.end) / scale
		if start >= end {
			continue
		}
		out = append(out, Interval{Start: start, End: end})
	}
	return out
}
