package clustering

import (
	"fmt"

	"speakerdiarize/segments"
	"speakerdiarize/vadproc"
)

// DefaultLongAudioThres: recordings with more fine-scale frames than this
// get the long-form / divide-and-conquer path.
const DefaultLongAudioThres = 100000

// Input bundles everything the clustering driver needs to run one session
// through §4.6.
type Input struct {
	// BaseScaleEmbeddings[t] is the embedding for base-scale segment t,
	// already channel-selected/collapsed by an earlier stage.
	BaseScaleEmbeddings [][]float32
	FineVadProbs        []float64
	ScaleMap            segments.ScaleMap
	ClusteringScaleIdx  int
	BaseScaleIdx        int
	WindowClusteringSec float64
	WindowBaseSec       float64

	VADTau0         float64
	DropLengthThres float64
	LongAudioThres  int // 0 => DefaultLongAudioThres
	UnitClusLen     int
	SyncScoreThres  float64 // 0 => 0.75

	OracleOnly  bool // config's oracle_num_speakers flag
	NumSpeakers *int // session's num_speakers, may be nil

	Counter Counter
	Opts    CounterOptions
}

// Result is the finest-scale cluster label vector plus the diagnostics
// needed by tests and by the long-form refinement decision log.
type Result struct {
	ClusterLabelsInfer []int // length T_fine, -1 = non-speech
	LongForm           bool
	ChunkSyncScores    []float64
}

// Run executes the full clustering driver: long-form detection, the C4 VAD
// thresholding and masking it wraps (channel selection is not applied here;
// embeddings arrive already collapsed), the speaker-counter invocation,
// finest-scale expansion, and (for long recordings) divide-and-conquer
// refinement.
func Run(in Input) (Result, error) {
	if in.OracleOnly && in.NumSpeakers == nil {
		return Result{}, fmt.Errorf("clustering: oracle_num_speakers is set but num_speakers is null")
	}

	longAudioThres := in.LongAudioThres
	if longAudioThres == 0 {
		longAudioThres = DefaultLongAudioThres
	}
	syncThres := in.SyncScoreThres
	if syncThres == 0 {
		syncThres = 0.75
	}

	tFine := len(in.FineVadProbs)
	longForm := tFine > longAudioThres
	effectiveScaleIdx := in.ClusteringScaleIdx
	if longForm && effectiveScaleIdx > 0 {
		effectiveScaleIdx--
	}

	baseProbs := vadproc.AggregateToBaseScale(in.FineVadProbs, in.ScaleMap, in.BaseScaleIdx)
	tau := vadproc.Threshold(baseProbs, in.VADTau0)
	maskScaled, maskBase := vadproc.Masks(baseProbs, in.FineVadProbs, tau)

	opts := in.Opts
	opts.DropLengthThresScaled = in.DropLengthThres * in.WindowClusteringSec / in.WindowBaseSec
	if in.NumSpeakers != nil {
		opts.OracleNumSpeakers = in.NumSpeakers
	}

	maskedEmbeddings := make([][]float32, 0, len(in.BaseScaleEmbeddings))
	maskedIndex := make([]int, 0, len(in.BaseScaleEmbeddings))
	for t, on := range maskScaled {
		if on && t < len(in.BaseScaleEmbeddings) {
			maskedEmbeddings = append(maskedEmbeddings, in.BaseScaleEmbeddings[t])
			maskedIndex = append(maskedIndex, t)
		}
	}

	counter := in.Counter
	if counter == nil {
		counter = SpectralCounter{}
	}
	labels, err := counter.Count(maskedEmbeddings, opts)
	if err != nil {
		return Result{}, fmt.Errorf("clustering: speaker counter: %w", err)
	}

	clusterLabelsBase := make([]int, len(maskScaled))
	for i := range clusterLabelsBase {
		clusterLabelsBase[i] = -1
	}
	for i, t := range maskedIndex {
		clusterLabelsBase[t] = labels[i]
	}

	infer := expandToFinestScale(clusterLabelsBase, in.ScaleMap, effectiveScaleIdx, maskBase)

	result := Result{ClusterLabelsInfer: infer, LongForm: longForm}
	if longForm && in.UnitClusLen > 0 {
		refined, scores := divideAndConquer(infer, maskBase, in.BaseScaleEmbeddings, in.UnitClusLen, counter, opts, syncThres)
		result.ClusterLabelsInfer = refined
		result.ChunkSyncScores = scores
	}

	return result, nil
}

func expandToFinestScale(clusterLabelsBase []int, scaleMap segments.ScaleMap, scaleIdx int, maskBase []bool) []int {
	out := make([]int, len(maskBase))
	for t := range out {
		out[t] = -1
		if !maskBase[t] {
			continue
		}
		if scaleIdx < 0 || scaleIdx >= len(scaleMap) || t >= len(scaleMap[scaleIdx]) {
			continue
		}
		base := scaleMap[scaleIdx][t]
		if base >= 0 && base < len(clusterLabelsBase) {
			out[t] = clusterLabelsBase[base]
		}
	}
	return out
}

// divideAndConquer implements §4.6 step 6: split the VAD-positive frames
// into chunks of unitClusLen, re-cluster each from its own embeddings,
// stitch against the running global labels, and reject chunks whose sync
// score falls below syncThres. embeddings is indexed the same way as infer
// and maskBase (one entry per base-scale frame).
func divideAndConquer(infer []int, maskBase []bool, embeddings [][]float32, unitClusLen int, counter Counter, baseOpts CounterOptions, syncThres float64) ([]int, []float64) {
	positive := make([]int, 0, len(infer))
	for t, on := range maskBase {
		if on {
			positive = append(positive, t)
		}
	}
	if len(positive) == 0 {
		return infer, nil
	}

	out := append([]int(nil), infer...)
	var scores []float64
	offset := 0

	for start := 0; start < len(positive); start += unitClusLen {
		end := start + unitClusLen
		if end > len(positive) {
			end = len(positive)
		}
		idxs := positive[start:end]

		globalChunk := make([]int, len(idxs))
		chunkEmbeddings := make([][]float32, len(idxs))
		localMax := -1
		for i, t := range idxs {
			globalChunk[i] = infer[t]
			if infer[t] > localMax {
				localMax = infer[t]
			}
			if t < len(embeddings) {
				chunkEmbeddings[i] = embeddings[t]
			}
		}

		localK := localMax + 1
		if localK < 1 {
			localK = 1
		}
		localOpts := baseOpts
		localOpts.MaxRPThreshold = 0.05
		localOpts.OracleNumSpeakers = &localK

		// Re-cluster from this chunk's own embeddings so the local pass can
		// disagree with (and correct) the global labels instead of always
		// reproducing them.
		localLabels, err := counter.Count(chunkEmbeddings, localOpts)
		if err != nil {
			// keep the global labels, offset-shifted, and record a zero
			// sync score so the caller can see the rejection.
			scores = append(scores, 0)
			applyOffset(out, idxs, globalChunk, offset)
			offset += localK
			continue
		}

		stitched := StitchClusterLabels(globalChunk, localLabels)
		score := SyncScore(stitched, globalChunk)
		scores = append(scores, score)

		if score < syncThres {
			applyOffset(out, idxs, globalChunk, offset)
		} else {
			for i, t := range idxs {
				out[t] = stitched[i]
			}
		}
		offset += localK
	}

	return out, scores
}

func applyOffset(out []int, idxs []int, globalChunk []int, offset int) {
	for i, t := range idxs {
		if globalChunk[i] < 0 {
			out[t] = -1
			continue
		}
		out[t] = globalChunk[i] + offset
	}
}
