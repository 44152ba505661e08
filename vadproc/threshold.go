// Package vadproc implements the adaptive VAD thresholding (C4) and the
// TS-VAD hysteresis smoothing used by the MSDD post-processor (C7.1).
package vadproc

import "speakerdiarize/segments"

const histogramBins = 50

// Threshold computes the adaptive VAD threshold described in §4.4: a 50-bin
// histogram over [0,1], a knee search over the first 10 bins, plus the
// operator's base offset tau0.
func Threshold(baseScaleProbs []float64, tau0 float64) float64 {
	hist := make([]int, histogramBins)
	for _, p := range baseScaleProbs {
		bin := int(p * float64(histogramBins))
		if bin >= histogramBins {
			bin = histogramBins - 1
		}
		if bin < 0 {
			bin = 0
		}
		hist[bin]++
	}

	best := 0
	bestDelta := hist[0] - hist[1]
	for i := 1; i < 10 && i+1 < histogramBins; i++ {
		delta := hist[i] - hist[i+1]
		if delta > bestDelta {
			bestDelta = delta
			best = i
		}
	}

	binEdge := float64(best+1) / float64(histogramBins)
	return binEdge + tau0
}

// AggregateToBaseScale averages fine-scale VAD probabilities into base-scale
// segment probabilities, grouping every fine index by its base-scale
// projection (scaleMap's base row).
func AggregateToBaseScale(fineProbs []float64, scaleMap segments.ScaleMap, baseIndex int) []float64 {
	if len(scaleMap) == 0 {
		return nil
	}
	row := scaleMap[baseIndex]
	numBase := 0
	for _, b := range row {
		if b+1 > numBase {
			numBase = b + 1
		}
	}
	sums := make([]float64, numBase)
	counts := make([]int, numBase)
	for t, p := range fineProbs {
		if t >= len(row) {
			break
		}
		b := row[t]
		sums[b] += p
		counts[b]++
	}
	out := make([]float64, numBase)
	for b := range out {
		if counts[b] > 0 {
			out[b] = sums[b] / float64(counts[b])
		}
	}
	return out
}

// Masks produces mask_scaled (base scale) and mask_base (finest scale) from
// vad probabilities thresholded at tau, per §4.4 step 4.
func Masks(baseProbs, fineProbs []float64, tau float64) (maskScaled, maskBase []bool) {
	maskScaled = make([]bool, len(baseProbs))
	for i, p := range baseProbs {
		maskScaled[i] = p >= tau
	}
	maskBase = make([]bool, len(fineProbs))
	for i, p := range fineProbs {
		maskBase[i] = p >= tau
	}
	return maskScaled, maskBase
}

// CountNonSpeech returns how many entries of mask are false (i.e. classified as
// non-speech) — used to test the monotonicity property in §8.
func CountNonSpeech(mask []bool) int {
	n := 0
	for _, v := range mask {
		if !v {
			n++
		}
	}
	return n
}
