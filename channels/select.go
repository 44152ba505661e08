// Package channels implements the multi-channel embedding selector (C5):
// optional scale collapse, channel-similarity scoring, and the top-K
// channel gather with tiling for sessions with fewer positive channels than
// the configured cap.
package channels

import (
	"fmt"
	"math"
	"sort"
)

// Embeddings is a multi-channel embedding tensor [T][S][D][C], matching the
// shape in §3. Embeddings with a single channel never reach this package —
// callers bypass C5 and collapse scales directly.
type Embeddings [][][][]float32 // [t][s][d][c]

// Collapsed is the scale-reduced tensor [T][D][C] produced by step 1.
type Collapsed [][][]float32 // [t][d][c]

// CollapseScales reduces the S axis by a weighted sum using multiscaleWeights
// (len == S). When weights are nil, scales are summed unweighted (the
// "flatten" branch degenerates to concatenation handled by FlattenScales
// instead, which callers use when they need to keep scales separate).
func CollapseScales(emb Embeddings, weights []float64) Collapsed {
	if len(emb) == 0 {
		return nil
	}
	numScales := len(emb[0])
	out := make(Collapsed, len(emb))
	for t, perScale := range emb {
		if len(perScale) == 0 {
			out[t] = nil
			continue
		}
		d := len(perScale[0])
		c := 0
		if d > 0 {
			c = len(perScale[0][0])
		}
		row := make([][]float32, d)
		for di := 0; di < d; di++ {
			row[di] = make([]float32, c)
		}
		for s := 0; s < numScales && s < len(perScale); s++ {
			w := float32(1.0)
			if weights != nil && s < len(weights) {
				w = float32(weights[s])
			}
			for di := 0; di < d && di < len(perScale[s]); di++ {
				for ci := 0; ci < c && ci < len(perScale[s][di]); ci++ {
					row[di][ci] += w * perScale[s][di][ci]
				}
			}
		}
		out[t] = row
	}
	return out
}

// FlattenScales concatenates the S and D axes into one vector per channel,
// returning [T][S*D][C] and the reshape plan (S, D) needed to restore it.
func FlattenScales(emb Embeddings) (flat Collapsed, numScales, dim int) {
	if len(emb) == 0 {
		return nil, 0, 0
	}
	numScales = len(emb[0])
	if numScales > 0 {
		dim = len(emb[0][0])
	}
	c := 0
	if numScales > 0 && dim > 0 {
		c = len(emb[0][0][0])
	}
	flat = make(Collapsed, len(emb))
	for t, perScale := range emb {
		row := make([][]float32, numScales*dim)
		idx := 0
		for s := 0; s < numScales; s++ {
			for di := 0; di < dim; di++ {
				vec := make([]float32, c)
				if s < len(perScale) && di < len(perScale[s]) {
					copy(vec, perScale[s][di])
				}
				row[idx] = vec
				idx++
			}
		}
		flat[t] = row
	}
	return flat, numScales, dim
}

// ChannelSimilarity computes channel_similarity[c1][c2] = cosine(emb[:,c1],
// emb[:,c2]) averaged over time (step 2), then reduces each row to a single
// score by summing across columns (step 2, "reduce across rows").
func ChannelSimilarity(collapsed Collapsed) (matrix [][]float64, score []float64) {
	c := channelCount(collapsed)
	if c == 0 {
		return nil, nil
	}
	sums := make([][]float64, c)
	for i := range sums {
		sums[i] = make([]float64, c)
	}
	count := 0
	for _, row := range collapsed {
		for c1 := 0; c1 < c; c1++ {
			v1 := column(row, c1)
			for c2 := 0; c2 < c; c2++ {
				v2 := column(row, c2)
				sums[c1][c2] += cosine(v1, v2)
			}
		}
		count++
	}
	matrix = make([][]float64, c)
	score = make([]float64, c)
	for i := range matrix {
		matrix[i] = make([]float64, c)
		for j := range matrix[i] {
			if count > 0 {
				matrix[i][j] = sums[i][j] / float64(count)
			}
			score[i] += matrix[i][j]
		}
	}
	return matrix, score
}

func channelCount(collapsed Collapsed) int {
	for _, row := range collapsed {
		if len(row) > 0 {
			return len(row[0])
		}
	}
	return 0
}

func column(row [][]float32, c int) []float32 {
	out := make([]float32, len(row))
	for i, vec := range row {
		if c < len(vec) {
			out[i] = vec[c]
		}
	}
	return out
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Selection holds the per-time-step ordering used to gather channels.
type Selection struct {
	Order []int // channel indices, descending similarity, tiled/truncated to len == maxChannels
}

// SelectChannels applies steps 3-4: only_pos gating (fatal if every channel
// is silent), descending-similarity ordering, and tiling positive channels
// to pad up to maxChannels when fewer than maxChannels are positive.
//
// This computes one global ranking from the time-averaged score and reuses
// it at every time step; channels are not re-ranked per time step.
func SelectChannels(score []float64, maxChannels int) (Selection, error) {
	positive := make([]int, 0, len(score))
	for c, s := range score {
		if s > 0 {
			positive = append(positive, c)
		}
	}
	if len(positive) == 0 {
		return Selection{}, fmt.Errorf("channels: all channels silent (only_pos.count == 0)")
	}

	sort.SliceStable(positive, func(i, j int) bool { return score[positive[i]] > score[positive[j]] })

	order := make([]int, 0, maxChannels)
	for len(order) < maxChannels {
		order = append(order, positive...)
	}
	order = order[:maxChannels]
	return Selection{Order: order}, nil
}

// Gather restores the per-time-step selected channel sub-tensor, producing
// [T][D][maxChannels] from a collapsed [T][D][C] input.
func Gather(collapsed Collapsed, sel Selection) Collapsed {
	out := make(Collapsed, len(collapsed))
	for t, row := range collapsed {
		d := len(row)
		newRow := make([][]float32, d)
		for di := 0; di < d; di++ {
			vec := make([]float32, len(sel.Order))
			for oi, c := range sel.Order {
				if c < len(row[di]) {
					vec[oi] = row[di][c]
				}
			}
			newRow[di] = vec
		}
		out[t] = newRow
	}
	return out
}
