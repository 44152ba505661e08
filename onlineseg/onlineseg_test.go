package onlineseg

import (
	"testing"

	"speakerdiarize/intervals"
	"speakerdiarize/segments"
)

func TestFirstCallAdoptsVADAsCumulative(t *testing.T) {
	s := New(16000)
	vad := []intervals.Interval{{Start: 0, End: 1}}
	buf := make([]float32, 16000)
	res := s.RunOnlineSegmentation(buf, vad, 0, 0, 1, segments.Scale{WindowSec: 1.5, ShiftSec: 0.75}, 0.03)
	if len(res.Cumulative) != 1 || res.Cumulative[0] != vad[0] {
		t.Fatalf("expected cumulative to adopt initial vad, got %v", res.Cumulative)
	}
}

func TestParallelListsStayEqualLength(t *testing.T) {
	s := New(16000)
	sc := segments.Scale{WindowSec: 0.5, ShiftSec: 0.25}
	buf := make([]float32, 16000*2)
	vad := []intervals.Interval{{Start: 0, End: 2}}
	res := s.RunOnlineSegmentation(buf, vad, 0, 0, 2, sc, 0.03)
	if len(res.Signals) != len(res.Ranges) || len(res.Ranges) != len(res.Indexes) {
		t.Fatalf("parallel lists diverged: %d/%d/%d", len(res.Signals), len(res.Ranges), len(res.Indexes))
	}
	if len(s.signals) != len(s.ranges) || len(s.ranges) != len(s.indexes) {
		t.Fatalf("internal parallel lists diverged")
	}
}

func TestIndexesStrictlyIncrease(t *testing.T) {
	s := New(16000)
	sc := segments.Scale{WindowSec: 0.5, ShiftSec: 0.25}
	buf := make([]float32, 16000*2)
	vad := []intervals.Interval{{Start: 0, End: 2}}
	s.RunOnlineSegmentation(buf, vad, 0, 0, 2, sc, 0.03)
	res := s.RunOnlineSegmentation(buf, vad, 1, 1, 3, sc, 0.03)
	prev := -1
	for _, idx := range s.indexes {
		if idx <= prev {
			t.Fatalf("indexes not strictly increasing: %v", s.indexes)
		}
		prev = idx
	}
	_ = res
}

func TestPaddingByRepetitionWhenShorterThanWindow(t *testing.T) {
	buf := []float32{1, 2, 3}
	sub := segments.Subsegment{OffsetSec: 0, DurationSec: 0.25}
	out := extractAndPad(buf, 0, sub, 1.0, 10)
	if len(out) != 10 {
		t.Fatalf("expected padded length 10, got %d", len(out))
	}
	if out[0] != 1 || out[1] != 2 || out[2] != 1 || out[9] != 2 {
		t.Fatalf("expected the 2 extracted samples repeated, got %v", out)
	}
}
