// Package clustering implements the clustering driver (C6): long-form
// detection, the spectral/affinity speaker counter it invokes, and the
// divide-and-conquer refinement with sync-score guard for long recordings.
package clustering

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// CounterOptions mirrors the parameters §4.6 step 4 passes to the external
// speaker counter / spectral clusterer.
type CounterOptions struct {
	OracleNumSpeakers     *int
	MaxNumSpeakers        int
	MinNumSpeakers        int
	MaxRPThreshold        float64
	SparseSearchVolume    int
	DropLengthThresScaled float64
	ReclusAffThres        float64
}

// Counter is the external speaker counter / spectral clusterer collaborator
// invoked by the clustering driver. SpectralCounter below is the concrete
// implementation grounded on gonum/mat eigen-gap estimation. SherpaBackend
// (sherpa.go) wraps sherpa-onnx-go's end-to-end diarization and does not
// implement Counter.
type Counter interface {
	Count(embeddings [][]float32, opts CounterOptions) (labels []int, err error)
}

// SpectralCounter estimates the speaker count via the eigengap heuristic on
// the symmetric normalized Laplacian of a sparsified cosine-affinity matrix,
// then assigns labels with spherical k-means (§4.6.1).
type SpectralCounter struct{}

func (SpectralCounter) Count(embeddings [][]float32, opts CounterOptions) ([]int, error) {
	n := len(embeddings)
	if n == 0 {
		return nil, nil
	}
	if n == 1 {
		return []int{0}, nil
	}

	affinity := buildAffinity(embeddings, opts.SparseSearchVolume, opts.ReclusAffThres)

	k := opts.MaxNumSpeakers
	if opts.OracleNumSpeakers != nil {
		k = *opts.OracleNumSpeakers
	} else {
		estimated, err := estimateSpeakerCount(affinity, opts.MinNumSpeakers, opts.MaxNumSpeakers)
		if err != nil {
			return nil, err
		}
		k = estimated
	}
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}

	return sphericalKMeans(embeddings, k), nil
}

// buildAffinity computes cosine similarity clipped to [0,1], keeps only the
// top sparseSearchVolume neighbours per row (0 or negative means "keep all"),
// and zeros edges below reclusAffThres.
func buildAffinity(embeddings [][]float32, sparseSearchVolume int, reclusAffThres float64) [][]float64 {
	n := len(embeddings)
	w := make([][]float64, n)
	for i := range w {
		w[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				w[i][j] = 1
				continue
			}
			c := cosineSim(embeddings[i], embeddings[j])
			if c < 0 {
				c = 0
			}
			w[i][j] = c
		}
	}

	if sparseSearchVolume > 0 && sparseSearchVolume < n {
		for i := 0; i < n; i++ {
			idx := make([]int, n)
			for j := range idx {
				idx[j] = j
			}
			sort.Slice(idx, func(a, b int) bool { return w[i][idx[a]] > w[i][idx[b]] })
			keep := make(map[int]bool, sparseSearchVolume)
			for _, j := range idx[:sparseSearchVolume] {
				keep[j] = true
			}
			for j := 0; j < n; j++ {
				if !keep[j] && j != i {
					w[i][j] = 0
				}
			}
		}
	}

	if reclusAffThres > 0 {
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if i != j && w[i][j] < reclusAffThres {
					w[i][j] = 0
				}
			}
		}
	}

	// symmetrize
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			m := math.Max(w[i][j], w[j][i])
			w[i][j] = m
			w[j][i] = m
		}
	}
	return w
}

func estimateSpeakerCount(affinity [][]float64, minSpk, maxSpk int) (int, error) {
	n := len(affinity)
	if minSpk < 1 {
		minSpk = 1
	}
	if maxSpk < minSpk {
		maxSpk = minSpk
	}
	if maxSpk > n {
		maxSpk = n
	}

	laplacian := normalizedLaplacian(affinity)
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, laplacian[i][j])
		}
	}

	var eig mat.EigSym
	if ok := eig.Factorize(sym, false); !ok {
		return 0, fmt.Errorf("clustering: eigendecomposition failed")
	}
	values := eig.Values(nil) // ascending

	best := minSpk
	bestGap := math.Inf(-1)
	for k := minSpk; k <= maxSpk && k < n; k++ {
		gap := values[k] - values[k-1]
		if gap > bestGap {
			bestGap = gap
			best = k
		}
	}
	return best, nil
}

func normalizedLaplacian(w [][]float64) [][]float64 {
	n := len(w)
	deg := make([]float64, n)
	for i := range w {
		for j := range w[i] {
			deg[i] += w[i][j]
		}
	}
	invSqrt := make([]float64, n)
	for i, d := range deg {
		if d > 0 {
			invSqrt[i] = 1 / math.Sqrt(d)
		}
	}
	l := make([][]float64, n)
	for i := range l {
		l[i] = make([]float64, n)
		for j := range l[i] {
			identity := 0.0
			if i == j {
				identity = 1
			}
			l[i][j] = identity - invSqrt[i]*w[i][j]*invSqrt[j]
		}
	}
	return l
}

// sphericalKMeans clusters embeddings into k groups by cosine distance,
// seeded deterministically from embeddings 0..k-1 by index (wrapping when
// k > n; duplicate embeddings are not skipped) so the run never depends on a
// random source (§5: no wall-clock/random seed).
func sphericalKMeans(embeddings [][]float32, k int) []int {
	n := len(embeddings)
	labels := make([]int, n)
	if k <= 1 {
		return labels
	}

	centers := make([][]float64, k)
	for i := 0; i < k; i++ {
		centers[i] = normalize(embeddings[i%n])
	}

	for iter := 0; iter < 25; iter++ {
		changed := false
		for i, e := range embeddings {
			v := normalize(e)
			best, bestSim := 0, math.Inf(-1)
			for c, center := range centers {
				sim := dot(v, center)
				if sim > bestSim {
					bestSim = sim
					best = c
				}
			}
			if labels[i] != best {
				labels[i] = best
				changed = true
			}
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		dim := len(centers[0])
		for i := range sums {
			sums[i] = make([]float64, dim)
		}
		for i, e := range embeddings {
			v := normalize(e)
			c := labels[i]
			counts[c]++
			for d := range v {
				sums[c][d] += v[d]
			}
		}
		for c := range centers {
			if counts[c] > 0 {
				centers[c] = normalize64(sums[c])
			}
		}
		if !changed {
			break
		}
	}

	return relabelMinimal(labels)
}

// relabelMinimal renumbers labels so the non-negative set is exactly
// {0,...,K-1} in order of first appearance (the minimality invariant in
// §3/§8).
func relabelMinimal(labels []int) []int {
	remap := make(map[int]int)
	out := make([]int, len(labels))
	next := 0
	for i, l := range labels {
		if l < 0 {
			out[i] = -1
			continue
		}
		id, ok := remap[l]
		if !ok {
			id = next
			remap[l] = id
			next++
		}
		out[i] = id
	}
	return out
}

func cosineSim(a, b []float32) float64 {
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

func normalize(v []float32) []float64 {
	out := make([]float64, len(v))
	var norm float64
	for i, x := range v {
		out[i] = float64(x)
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return out
	}
	for i := range out {
		out[i] /= norm
	}
	return out
}

func normalize64(v []float64) []float64 {
	out := make([]float64, len(v))
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
