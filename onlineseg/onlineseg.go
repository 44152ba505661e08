// Package onlineseg implements the online segmentor (C9): a cursor-based
// buffered segmentation helper that keeps a cumulative VAD label tensor
// across successive buffer calls. It shares C1's interval algebra and C2's
// subsegment rule but is not part of the offline/batch engine (§1
// Non-goals: "online streaming inference" is explicitly out of scope for
// the main engine; this helper exists because it shares interval logic).
package onlineseg

import (
	"speakerdiarize/intervals"
	"speakerdiarize/segments"
)

// Signal is one extracted/padded audio subsegment's raw samples.
type Signal []float32

// Segmentor owns the cumulative state described in §4.9: the frame/buffer
// cursor and the running VAD label tensor. It is never process-global
// (§9 design note).
type Segmentor struct {
	frameStart  float64
	bufferStart float64
	bufferEnd   float64
	sampleRate  int
	cumulative  []intervals.Interval
	nextIndex   int
	haveInitial bool
	signals     []Signal
	ranges      []intervals.Interval
	indexes     []int
}

// New creates a Segmentor for a session at the given sample rate.
func New(sampleRate int) *Segmentor {
	return &Segmentor{sampleRate: sampleRate}
}

// Result is what RunOnlineSegmentation appends this call: the new signals,
// their time ranges, and their monotonically increasing indices, plus the
// segmentor's resulting cumulative VAD.
type Result struct {
	Signals    []Signal
	Ranges     []intervals.Interval
	Indexes    []int
	Cumulative []intervals.Interval
}

// RunOnlineSegmentation implements §4.9 steps 1-5 for one buffer of audio.
// audioBuffer is the raw samples for [bufferStart,bufferEnd); vadTimestamps
// are the VAD-positive ranges detected in this buffer (absolute seconds).
// sc is the (window,shift) used to generate subsegments (§3 rule).
func (s *Segmentor) RunOnlineSegmentation(audioBuffer []float32, vadTimestamps []intervals.Interval, frameStart, bufferStart, bufferEnd float64, sc segments.Scale, minSubsegmentDuration float64) Result {
	s.frameStart = frameStart
	s.bufferStart = bufferStart
	s.bufferEnd = bufferEnd

	if !s.haveInitial && len(s.ranges) == 0 {
		s.cumulative = append([]intervals.Interval(nil), vadTimestamps...)
		s.haveInitial = true
	} else {
		cursor := s.cursorForOldSegments(frameStart)
		s.popOlderThan(cursor)
		s.mergeCumulative(vadTimestamps, cursor, bufferEnd)
	}

	var newSignals []Signal
	var newRanges []intervals.Interval
	var newIndexes []int

	for _, speech := range vadTimestamps {
		clipped := clip(speech, bufferStart, bufferEnd)
		if clipped.End <= clipped.Start {
			continue
		}
		subs := segments.Subsegments(clipped, sc, minSubsegmentDuration)
		for _, sub := range subs {
			sig := extractAndPad(audioBuffer, bufferStart, sub, sc.WindowSec, s.sampleRate)
			newSignals = append(newSignals, sig)
			newRanges = append(newRanges, intervals.Interval{Start: sub.OffsetSec, End: sub.OffsetSec + sub.DurationSec})
			newIndexes = append(newIndexes, s.nextIndex)
			s.nextIndex++
		}
	}

	s.signals = append(s.signals, newSignals...)
	s.ranges = append(s.ranges, newRanges...)
	s.indexes = append(s.indexes, newIndexes...)

	return Result{
		Signals:    newSignals,
		Ranges:     newRanges,
		Indexes:    newIndexes,
		Cumulative: append([]intervals.Interval(nil), s.cumulative...),
	}
}

// cursorForOldSegments finds the earliest start among ranges whose end is
// still >= frameStart (§4.9 step 2).
func (s *Segmentor) cursorForOldSegments(frameStart float64) float64 {
	cursor := frameStart
	for _, r := range s.ranges {
		if r.End >= frameStart && r.Start < cursor {
			cursor = r.Start
		}
	}
	return cursor
}

// popOlderThan removes ranges (and their parallel signals/indexes) whose
// end is older than cursor, keeping the three lists equal length (§4.9
// invariant).
func (s *Segmentor) popOlderThan(cursor float64) {
	keepFrom := 0
	for i, r := range s.ranges {
		if r.End >= cursor {
			keepFrom = i
			break
		}
		keepFrom = i + 1
	}
	s.signals = s.signals[keepFrom:]
	s.ranges = s.ranges[keepFrom:]
	s.indexes = s.indexes[keepFrom:]
}

// mergeCumulative merges the new buffer's VAD with the prior cumulative VAD
// on [cursor, bufferEnd] (§4.9 step 3): intervals entirely before cursor are
// kept as-is; intervals overlapping [cursor,bufferEnd] are merged with the
// new timestamps.
func (s *Segmentor) mergeCumulative(vadTimestamps []intervals.Interval, cursor, bufferEnd float64) {
	var untouched, inWindow []intervals.Interval
	for _, iv := range s.cumulative {
		if iv.End <= cursor {
			untouched = append(untouched, iv)
		} else {
			inWindow = append(inWindow, iv)
		}
	}
	merged := intervals.MergeFloatIntervals(append(inWindow, vadTimestamps...), 5, 2)
	s.cumulative = append(untouched, merged...)
}

func clip(iv intervals.Interval, lo, hi float64) intervals.Interval {
	start := iv.Start
	if start < lo {
		start = lo
	}
	end := iv.End
	if end > hi {
		end = hi
	}
	return intervals.Interval{Start: start, End: end}
}

// extractAndPad slices the audio buffer for the given subsegment (relative
// to bufferStart) and pads via signal repetition when shorter than
// window*sampleRate, matching §4.9 step 4.
func extractAndPad(buffer []float32, bufferStart float64, sub segments.Subsegment, windowSec float64, sampleRate int) Signal {
	startIdx := int((sub.OffsetSec - bufferStart) * float64(sampleRate))
	endIdx := startIdx + int(sub.DurationSec*float64(sampleRate))
	if startIdx < 0 {
		startIdx = 0
	}
	if endIdx > len(buffer) {
		endIdx = len(buffer)
	}
	if endIdx < startIdx {
		endIdx = startIdx
	}
	raw := buffer[startIdx:endIdx]

	wantLen := int(windowSec * float64(sampleRate))
	if wantLen <= len(raw) {
		out := make(Signal, len(raw))
		copy(out, raw)
		return out
	}

	out := make(Signal, wantLen)
	if len(raw) == 0 {
		return out
	}
	for i := range out {
		out[i] = raw[i%len(raw)]
	}
	return out
}
