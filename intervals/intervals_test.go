package intervals

import "testing"

func TestIsOverlap(t *testing.T) {
	cases := []struct {
		a, b Interval
		want bool
	}{
		{Interval{0, 5}, Interval{4, 10}, true},
		{Interval{0, 5}, Interval{5, 10}, false},
		{Interval{0, 5}, Interval{6, 10}, false},
		{Interval{0, 5}, Interval{1, 2}, true},
	}
	for _, c := range cases {
		if got := IsOverlap(c.a, c.b); got != c.want {
			t.Errorf("IsOverlap(%v, %v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestOverlapRange(t *testing.T) {
	r, ok := OverlapRange(Interval{0, 5}, Interval{3, 8})
	if !ok || r != (Interval{3, 5}) {
		t.Fatalf("got %v, %v", r, ok)
	}
	if _, ok := OverlapRange(Interval{0, 5}, Interval{5, 8}); ok {
		t.Fatal("expected no overlap at touching boundary")
	}
}

func TestSubRangeListContainment(t *testing.T) {
	target := Interval{2, 10}
	sources := []Interval{{0, 3}, {4, 6}, {9, 20}, {100, 200}}
	got := SubRangeList(target, sources)
	if len(got) != 3 {
		t.Fatalf("expected 3 sub-ranges, got %d: %v", len(got), got)
	}
	for _, r := range got {
		if r.Start < target.Start || r.End > target.End {
			t.Errorf("sub-range %v escapes target %v", r, target)
		}
		contained := false
		for _, s := range sources {
			if r.Start >= s.Start && r.End <= s.End {
				contained = true
				break
			}
		}
		if !contained {
			t.Errorf("sub-range %v not contained in any source", r)
		}
	}
}

func TestMergeFloatIntervalsBasic(t *testing.T) {
	in := []Interval{{0, 5}, {4, 8}, {20, 25}, {24.999, 30}}
	got := MergeFloatIntervals(in, 5, 2)
	want := []Interval{{0, 8}, {20, 30}}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if !almostEqual(got[i].Start, want[i].Start) || !almostEqual(got[i].End, want[i].End) {
			t.Errorf("interval %d: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestMergeFloatIntervalsAdjacencyBreaksContinuity(t *testing.T) {
	// [1,10] and [11,20]: integer-adjacent, margin=2 must NOT merge them.
	in := []Interval{{1, 10}, {11, 20}}
	got := MergeFloatIntervals(in, 0, 2)
	if len(got) != 2 {
		t.Fatalf("expected adjacent-but-separate intervals to stay apart, got %v", got)
	}
}

func TestMergeIdempotence(t *testing.T) {
	in := []Interval{{0, 5}, {4.5, 9}, {1, 2}, {20, 21}, {20.5, 22}}
	once := MergeFloatIntervals(in, 5, 2)
	twice := MergeFloatIntervals(once, 5, 2)
	if len(once) != len(twice) {
		t.Fatalf("merge not idempotent in length: %v vs %v", once, twice)
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Fatalf("merge not idempotent at %d: %v vs %v", i, once[i], twice[i])
		}
	}
}

func TestMergeCorrectnessCoversEveryPoint(t *testing.T) {
	in := []Interval{{0, 3}, {2, 5}, {10, 12}}
	out := MergeFloatIntervals(in, 5, 2)
	probe := func(x float64) int {
		count := 0
		for _, iv := range in {
			if x >= iv.Start && x < iv.End {
				count++
			}
		}
		return count
	}
	for _, x := range []float64{0.5, 2.5, 4.9, 11} {
		if probe(x) == 0 {
			continue
		}
		covered := 0
		for _, iv := range out {
			if x >= iv.Start && x < iv.End {
				covered++
			}
		}
		if covered != 1 {
			t.Errorf("point %v covered %d times in output, want exactly 1", x, covered)
		}
	}
}

func TestMergeDropsDegenerateAfterMarginShift(t *testing.T) {
	out := MergeFloatIntervals([]Interval{{5, 5}}, 5, 2)
	if len(out) != 0 {
		t.Fatalf("expected degenerate interval to be dropped, got %v", out)
	}
}

func almostEqual(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-9
}
