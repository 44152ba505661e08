package channels

import "testing"

func makeCollapsed(t, d, c int, fill func(ti, di, ci int) float32) Collapsed {
	out := make(Collapsed, t)
	for ti := range out {
		row := make([][]float32, d)
		for di := range row {
			vec := make([]float32, c)
			for ci := range vec {
				vec[ci] = fill(ti, di, ci)
			}
			row[di] = vec
		}
		out[ti] = row
	}
	return out
}

func TestChannelSimilarityAndSelectAllChannelsSilent(t *testing.T) {
	// All-zero channels => similarity scores are all zero => fatal.
	collapsed := makeCollapsed(4, 3, 2, func(ti, di, ci int) float32 { return 0 })
	_, score := ChannelSimilarity(collapsed)
	_, err := SelectChannels(score, 2)
	if err == nil {
		t.Fatal("expected fatal error when all channels are silent")
	}
}

func TestSelectChannelsIdempotenceWhenMaxEqualsC(t *testing.T) {
	// Two distinct, non-degenerate channels.
	collapsed := makeCollapsed(5, 4, 2, func(ti, di, ci int) float32 {
		if ci == 0 {
			return float32(di + 1)
		}
		return float32(2 * (di + 1))
	})
	_, score := ChannelSimilarity(collapsed)
	sel, err := SelectChannels(score, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sel.Order) != 2 {
		t.Fatalf("expected 2 channels selected, got %d", len(sel.Order))
	}
	seen := map[int]bool{}
	for _, c := range sel.Order {
		seen[c] = true
	}
	if len(seen) != 2 {
		t.Errorf("selecting C channels from a C-channel input with max=C must be a permutation of all channels, got %v", sel.Order)
	}

	gathered := Gather(collapsed, sel)
	if len(gathered) != len(collapsed) {
		t.Fatalf("gather changed time dimension")
	}
}

func TestSelectChannelsTilesWhenFewerPositiveThanMax(t *testing.T) {
	score := []float64{1.0}
	sel, err := SelectChannels(score, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sel.Order) != 4 {
		t.Fatalf("expected tiling to pad to 4 entries, got %d", len(sel.Order))
	}
	for _, c := range sel.Order {
		if c != 0 {
			t.Errorf("expected only channel 0 to be tiled, got %d", c)
		}
	}
}

func TestCollapseScalesWeightedSum(t *testing.T) {
	emb := Embeddings{
		{ // t=0
			{{1, 2}, {3, 4}}, // s=0: d=0 -> [1,2], d=1 -> [3,4]
			{{10, 20}, {30, 40}},
		},
	}
	got := CollapseScales(emb, []float64{1, 0.5})
	want := [][]float32{{1 + 5, 2 + 10}, {3 + 15, 4 + 20}}
	for di := range want {
		for ci := range want[di] {
			if got[0][di][ci] != want[di][ci] {
				t.Errorf("collapsed[0][%d][%d] = %v, want %v", di, ci, got[0][di][ci], want[di][ci])
			}
		}
	}
}
