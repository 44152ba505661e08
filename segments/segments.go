// Package segments builds the multi-scale subsegment layout: it turns a
// speech interval plus a (window, shift) schedule into subsegments, and
// builds the scale map that lets finer-scale segments look up their
// covering segment at any coarser scale.
package segments

import (
	"fmt"
	"math"

	"speakerdiarize/intervals"
)

// Scale is a single (window, shift) granularity in a multiscale schedule.
type Scale struct {
	WindowSec float64
	ShiftSec  float64
}

// Schedule is an ordered list of scales, finest (base) scale last, plus a
// parallel weight vector used when scales are collapsed (channels.Select).
type Schedule struct {
	Scales  []Scale
	Weights []float64
}

// Validate enforces the schedule invariants from the data model: strictly
// decreasing windows and shifts, window > shift at every scale, and a
// weights vector of matching length.
func (s Schedule) Validate() error {
	if len(s.Scales) == 0 {
		return fmt.Errorf("segments: schedule has no scales")
	}
	if len(s.Weights) != 0 && len(s.Weights) != len(s.Scales) {
		return fmt.Errorf("segments: %d weights for %d scales", len(s.Weights), len(s.Scales))
	}
	for i, sc := range s.Scales {
		if sc.WindowSec <= sc.ShiftSec {
			return fmt.Errorf("segments: scale %d window %.3f must exceed shift %.3f", i, sc.WindowSec, sc.ShiftSec)
		}
		if i > 0 {
			prev := s.Scales[i-1]
			if !(sc.WindowSec < prev.WindowSec) || !(sc.ShiftSec < prev.ShiftSec) {
				return fmt.Errorf("segments: scale %d must have strictly smaller window/shift than scale %d", i, i-1)
			}
		}
	}
	for _, w := range s.Weights {
		if w < 0 {
			return fmt.Errorf("segments: multiscale_weights must be non-negative, got %v", w)
		}
	}
	return nil
}

// BaseIndex is the finest (last) scale's index.
func (s Schedule) BaseIndex() int { return len(s.Scales) - 1 }

// Subsegment is an (offset, duration) pair relative to the start of the
// audio, produced from a parent speech segment at one scale.
type Subsegment struct {
	OffsetSec   float64
	DurationSec float64
}

// DefaultMinSubsegmentDuration is the lower bound on a kept subsegment.
const DefaultMinSubsegmentDuration = 0.03

// Subsegments applies the §3 rule to a speech interval of length
// seg.End-seg.Start under scale sc, keeping only subsegments whose duration
// exceeds minDuration.
func Subsegments(seg intervals.Interval, sc Scale, minDuration float64) []Subsegment {
	length := seg.End - seg.Start
	if length <= 0 {
		return nil
	}

	var raw []Subsegment
	if length >= minDuration && length < sc.ShiftSec {
		raw = []Subsegment{{OffsetSec: seg.Start, DurationSec: math.Min(length, sc.WindowSec)}}
	} else {
		slices := int(math.Ceil((length-sc.WindowSec)/sc.ShiftSec)) + 1
		if slices < 1 {
			slices = 1
		}
		raw = make([]Subsegment, 0, slices)
		sliceEnd := seg.Start + length
		for k := 0; k < slices; k++ {
			start := seg.Start + float64(k)*sc.ShiftSec
			end := start + sc.WindowSec
			if end > sliceEnd {
				end = sliceEnd
			}
			raw = append(raw, Subsegment{OffsetSec: start, DurationSec: end - start})
		}
	}

	out := raw[:0:0]
	for _, s := range raw {
		if s.DurationSec > minDuration {
			out = append(out, s)
		}
	}
	return out
}

// Center returns the midpoint of a subsegment, used for nearest-center scale
// mapping.
func (s Subsegment) Center() float64 { return s.OffsetSec + s.DurationSec/2 }

// ScaleMap[s][t] maps finest-scale index t to its covering segment index at
// scale s. Row BaseIndex is the identity.
type ScaleMap [][]int

// BuildScaleMap derives the scale map from per-scale subsegment centers by
// nearest-center (argmin distance) assignment, as specified in §3.
func BuildScaleMap(perScale [][]Subsegment) ScaleMap {
	base := len(perScale) - 1
	if base < 0 {
		return nil
	}
	fine := perScale[base]
	m := make(ScaleMap, len(perScale))
	for s := range perScale {
		row := make([]int, len(fine))
		if s == base {
			for t := range fine {
				row[t] = t
			}
			m[s] = row
			continue
		}
		centers := make([]float64, len(perScale[s]))
		for i, sub := range perScale[s] {
			centers[i] = sub.Center()
		}
		for t, fsub := range fine {
			row[t] = nearestCenterIndex(fsub.Center(), centers)
		}
		m[s] = row
	}
	return m
}

func nearestCenterIndex(target float64, centers []float64) int {
	best := 0
	bestDist := math.Inf(1)
	for i, c := range centers {
		d := math.Abs(c - target)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}
