// Package msdd implements the MSDD overlap-decoder post-processor (C7):
// top-K per-frame speaker activation, threshold/gap logic, multi-channel
// late-fusion, and the TS-VAD masking gate. It consumes the clustering
// driver's finest-scale labels and the MSDD model's sigmoid activations and
// produces the speaker-activation matrix that the output emitter (C8)
// turns into RTTM/JSON.
package msdd

import (
	"fmt"
	"math"
	"sort"
)

// LateFusionMode selects how a multi-channel prediction tensor is reduced
// to a single-channel one (§4.7, "Multi-channel late fusion").
type LateFusionMode string

const (
	PreMean  LateFusionMode = "pre_mean"
	PostMean LateFusionMode = "post_mean"
	PostMax  LateFusionMode = "post_max"
)

// Options bundles the configurable parameters §4.7 lists.
type Options struct {
	Threshold            float64
	MaxOverlapCount      int // default 2 when 0
	InferOverlap         bool
	MaskSpksWithClus     bool
	OverlapInferSpkLimit float64
	TSVADThreshold       float64 // 0 => fall back to plain VAD mask
	MCLateFusionMode     LateFusionMode
}

func (o Options) maxOverlap() int {
	if o.MaxOverlapCount <= 0 {
		return 2
	}
	return o.MaxOverlapCount
}

// Activation is the emitted speaker-activation matrix A[T][M] in {0,1},
// row sums bounded by MaxOverlapCount.
type Activation [][]bool

// PostProcess runs the single-channel algorithm from §4.7 steps 1-9.
// clusLabels has length T (one entry per base-scale frame, -1 = non-speech);
// preds is [T][M] sigmoid activations.
func PostProcess(clusLabels []int, preds [][]float64, opts Options) (Activation, error) {
	t := len(preds)
	if t == 0 {
		return nil, nil
	}
	m := len(preds[0])
	for _, row := range preds {
		if len(row) != m {
			return nil, fmt.Errorf("msdd: ragged prediction matrix")
		}
		for _, v := range row {
			if math.IsNaN(v) {
				return nil, fmt.Errorf("msdd: NaN in msdd_preds")
			}
		}
	}
	if len(clusLabels) < t {
		return nil, fmt.Errorf("msdd: cluster labels shorter (%d) than predictions (%d)", len(clusLabels), t)
	}

	vadMask := make([]bool, t)
	for i := 0; i < t; i++ {
		vadMask[i] = clusLabels[i] > -1
	}

	work := cloneMatrix(preds)

	if opts.MaskSpksWithClus {
		seen := make([]bool, m)
		for i := 0; i < t; i++ {
			l := clusLabels[i]
			if l >= 0 && l < m {
				seen[l] = true
			}
		}
		for i := 0; i < t; i++ {
			for j := 0; j < m; j++ {
				if !seen[j] {
					work[i][j] = 0
				}
			}
		}
	}

	spkFrac, activeSpeakers := speakerTimeFraction(work, opts.OverlapInferSpkLimit)

	k := 1
	if opts.InferOverlap {
		k = activeSpeakers
		if k > opts.maxOverlap() {
			k = opts.maxOverlap()
		}
		if k < 1 {
			k = 1
		}
	}

	topK, top1, logitGap := topKPerRow(work, k)

	excluded := make([]bool, m)
	for j, f := range spkFrac {
		excluded[j] = f < opts.OverlapInferSpkLimit
	}
	for i := 0; i < t; i++ {
		for j := 0; j < m; j++ {
			if excluded[j] {
				topK[i][j] = 0
			}
		}
	}

	activation := make(Activation, t)
	for i := 0; i < t; i++ {
		activation[i] = make([]bool, m)
		for j := 0; j < m; j++ {
			aOvl := topK[i][j] >= opts.Threshold && logitGap[i] >= opts.Threshold
			aTop1 := top1[i][j] > 0
			activation[i][j] = aTop1 || aOvl
		}
	}

	applyVADGate(activation, preds, vadMask, opts.TSVADThreshold)

	return activation, nil
}

// PostProcessMultiChannel implements the three late-fusion strategies for a
// [T][M][C] prediction tensor.
func PostProcessMultiChannel(clusLabels []int, preds [][][]float64, opts Options) (Activation, error) {
	if len(preds) == 0 {
		return nil, nil
	}
	numChannels := len(preds[0][0])
	if numChannels == 0 {
		return nil, fmt.Errorf("msdd: multi-channel predictions have zero channels")
	}

	switch opts.MCLateFusionMode {
	case PreMean, "":
		mean := meanAcrossChannels(preds)
		return PostProcess(clusLabels, mean, opts)
	case PostMean, PostMax:
		perChannel := make([]Activation, numChannels)
		for c := 0; c < numChannels; c++ {
			single := sliceChannel(preds, c)
			act, err := PostProcess(clusLabels, single, opts)
			if err != nil {
				return nil, err
			}
			perChannel[c] = act
		}
		return reduceChannelActivations(perChannel, opts.MCLateFusionMode), nil
	default:
		return nil, fmt.Errorf("msdd: unknown mc_late_fusion_mode %q", opts.MCLateFusionMode)
	}
}

func speakerTimeFraction(preds [][]float64, limit float64) (frac []float64, activeCount int) {
	t := len(preds)
	if t == 0 {
		return nil, 0
	}
	m := len(preds[0])
	colSum := make([]float64, m)
	total := 0.0
	for _, row := range preds {
		for j, v := range row {
			colSum[j] += v
			total += v
		}
	}
	frac = make([]float64, m)
	for j := range frac {
		if total > 0 {
			frac[j] = colSum[j] / total
		}
		if frac[j] >= limit {
			activeCount++
		}
	}
	return frac, activeCount
}

// topKPerRow keeps the top-k activations per row (rest zeroed), and returns
// the k=1 matrix plus the logit_gap = topK[:,1]/topK[:,0] per row (0 when
// k==1). The invariant: every row of topK has exactly k non-zero entries
// whenever the row has at least k non-zero source values.
func topKPerRow(preds [][]float64, k int) (topK [][]float64, top1 [][]float64, logitGap []float64) {
	t := len(preds)
	topK = make([][]float64, t)
	top1 = make([][]float64, t)
	logitGap = make([]float64, t)

	for i, row := range preds {
		m := len(row)
		idx := make([]int, m)
		for j := range idx {
			idx[j] = j
		}
		sort.Slice(idx, func(a, b int) bool { return row[idx[a]] > row[idx[b]] })

		topK[i] = make([]float64, m)
		top1[i] = make([]float64, m)
		kk := k
		if kk > m {
			kk = m
		}
		for r := 0; r < kk; r++ {
			topK[i][idx[r]] = row[idx[r]]
		}
		if kk >= 1 {
			top1[i][idx[0]] = row[idx[0]]
		}
		if kk >= 2 && row[idx[0]] != 0 {
			logitGap[i] = row[idx[1]] / row[idx[0]]
		}
	}
	return topK, top1, logitGap
}

// applyVADGate zeroes rows where VAD says silence (mode 0, tsVadThreshold<=0)
// or where max_m preds[t,m] < tsVadThreshold (mode >0), per §4.7 step 8.
func applyVADGate(act Activation, preds [][]float64, vadMask []bool, tsVadThreshold float64) {
	for i := range act {
		gateOpen := vadMask[i]
		if tsVadThreshold > 0 {
			maxVal := 0.0
			for _, v := range preds[i] {
				if v > maxVal {
					maxVal = v
				}
			}
			gateOpen = maxVal >= tsVadThreshold
		}
		if !gateOpen {
			for j := range act[i] {
				act[i][j] = false
			}
		}
	}
}

func cloneMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

func meanAcrossChannels(preds [][][]float64) [][]float64 {
	t := len(preds)
	out := make([][]float64, t)
	for i, row := range preds {
		m := len(row)
		out[i] = make([]float64, m)
		for j, vec := range row {
			c := len(vec)
			if c == 0 {
				continue
			}
			sum := 0.0
			for _, v := range vec {
				sum += v
			}
			out[i][j] = sum / float64(c)
		}
	}
	return out
}

func sliceChannel(preds [][][]float64, c int) [][]float64 {
	out := make([][]float64, len(preds))
	for i, row := range preds {
		out[i] = make([]float64, len(row))
		for j, vec := range row {
			if c < len(vec) {
				out[i][j] = vec[c]
			}
		}
	}
	return out
}

// reduceChannelActivations combines per-channel activations with a
// commutative reduction (mean-then-threshold or max/union), matching the
// decision in DESIGN.md that channel identity is not stable across time
// steps, so the reduction must not depend on channel ordering.
func reduceChannelActivations(perChannel []Activation, mode LateFusionMode) Activation {
	t := len(perChannel[0])
	out := make(Activation, t)
	for i := 0; i < t; i++ {
		m := len(perChannel[0][i])
		out[i] = make([]bool, m)
		for j := 0; j < m; j++ {
			switch mode {
			case PostMax:
				for _, ch := range perChannel {
					if ch[i][j] {
						out[i][j] = true
						break
					}
				}
			default: // PostMean
				on := 0
				for _, ch := range perChannel {
					if ch[i][j] {
						on++
					}
				}
				out[i][j] = float64(on)/float64(len(perChannel)) >= 0.5
			}
		}
	}
	return out
}
