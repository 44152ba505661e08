// Package pipeline wires C1-C9 into the per-session batch flow: load audio,
// derive VAD, build the multi-scale subsegment layout, extract/collapse
// embeddings, cluster, turn the cluster labels (optionally TS-VAD smoothed)
// into a speaker-activation matrix, and emit RTTM/JSON. The MSDD
// post-processor (package msdd) is not called here.
package pipeline

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"speakerdiarize/audioio"
	"speakerdiarize/clustering"
	"speakerdiarize/diagerr"
	"speakerdiarize/embeddings"
	"speakerdiarize/emit"
	"speakerdiarize/internal/config"
	"speakerdiarize/intervals"
	"speakerdiarize/manifest"
	"speakerdiarize/msdd"
	"speakerdiarize/segments"
	"speakerdiarize/vad"
	"speakerdiarize/vadproc"
	"speakerdiarize/voiceprint"
)

// Collaborators bundles the optional ONNX-backed collaborators shared
// across sessions in a worker; nil fields fall back to the oracle paths.
type Collaborators struct {
	VAD        *vad.Detector
	Encoder    *embeddings.Encoder
	Counter    clustering.Counter
	Voiceprint *voiceprint.Matcher
}

// RunSession processes one manifest session end to end and writes its RTTM
// and JSON output under dirs. It returns a *diagerr.Error wrapping any
// failure so the caller can decide whether to keep processing other
// sessions.
func RunSession(uniqID string, sess *manifest.Session, cfg *config.Config, collab Collaborators, dirs emit.OutputDirs) error {
	schedule := segments.Schedule{Weights: cfg.MultiscaleWeights}
	for i := range cfg.WindowLengthsInSec {
		schedule.Scales = append(schedule.Scales, segments.Scale{
			WindowSec: cfg.WindowLengthsInSec[i],
			ShiftSec:  cfg.ShiftLengthsInSec[i],
		})
	}
	if err := schedule.Validate(); err != nil {
		return diagerr.Wrap(diagerr.ConfigError, uniqID, "schedule", err)
	}

	samples, info, err := audioio.ReadWAVMono(sess.AudioFilepath)
	if err != nil {
		return diagerr.Wrap(diagerr.DataError, uniqID, "audio-load", err)
	}

	speech, fineProbs, err := detectSpeech(samples, info.SampleRate, sess, schedule, collab.VAD, cfg)
	if err != nil {
		return diagerr.Wrap(diagerr.DataError, uniqID, "vad", err)
	}
	if len(speech) == 0 {
		return diagerr.Wrap(diagerr.RecoverableAnomaly, uniqID, "vad", fmt.Errorf("no speech detected, dropping session"))
	}

	perScale := make([][]segments.Subsegment, len(schedule.Scales))
	for s, sc := range schedule.Scales {
		var subs []segments.Subsegment
		for _, iv := range speech {
			subs = append(subs, segments.Subsegments(iv, sc, segments.DefaultMinSubsegmentDuration)...)
		}
		perScale[s] = subs
	}
	baseIdx := schedule.BaseIndex()
	if len(perScale[baseIdx]) == 0 {
		return diagerr.Wrap(diagerr.DataError, uniqID, "subsegments", fmt.Errorf("finest scale produced no subsegments"))
	}
	scaleMap := segments.BuildScaleMap(perScale)

	embeddingsByScale := make([][][]float32, len(schedule.Scales))
	for s, subs := range perScale {
		vecs := make([][]float32, len(subs))
		for i, sub := range subs {
			vecs[i] = extractEmbedding(samples, info.SampleRate, sub, collab.Encoder)
		}
		embeddingsByScale[s] = vecs
	}

	clusterIdx := cfg.ClusteringScaleIndex
	if cfg.UseSingleScaleClustering {
		clusterIdx = baseIdx
	}
	baseEmbeddings := collapseSingleChannel(embeddingsByScale, scaleMap, schedule.Weights, baseIdx)

	if len(fineProbs) != len(perScale[baseIdx]) {
		fineProbs = resampleProbs(fineProbs, len(perScale[baseIdx]))
	}

	result, err := clustering.Run(clustering.Input{
		BaseScaleEmbeddings: baseEmbeddings,
		FineVadProbs:        fineProbs,
		ScaleMap:            scaleMap,
		ClusteringScaleIdx:  clusterIdx,
		BaseScaleIdx:        baseIdx,
		WindowClusteringSec: schedule.Scales[clusterIdx].WindowSec,
		WindowBaseSec:       schedule.Scales[baseIdx].WindowSec,
		VADTau0:             cfg.VADThreshold,
		DropLengthThres:     float64(cfg.DropLengthThres),
		LongAudioThres:      cfg.LongAudioThres,
		UnitClusLen:         cfg.UnitClusLen,
		SyncScoreThres:      cfg.SyncScoreThres,
		OracleOnly:          cfg.OracleNumSpeakers,
		NumSpeakers:         sess.NumSpeakers,
		Counter:             collab.Counter,
		Opts: clustering.CounterOptions{
			MaxNumSpeakers:     cfg.MaxNumSpeakers,
			MinNumSpeakers:     cfg.MinNumSpeakers,
			MaxRPThreshold:     cfg.MaxRPThreshold,
			SparseSearchVolume: cfg.SparseSearchVolume,
			ReclusAffThres:     cfg.ReclusAffThres,
		},
	})
	if err != nil {
		return diagerr.Wrap(diagerr.DataError, uniqID, "clustering", err)
	}

	var activation msdd.Activation
	if cfg.UseTSVAD {
		active := make([]bool, len(result.ClusterLabelsInfer))
		for i, l := range result.ClusterLabelsInfer {
			active[i] = l >= 0
		}
		smoothed := vadproc.TSVADPostProcessing(active, vadproc.TSVADParams{
			MinDurationOn:  0.25,
			MinDurationOff: 0.25,
			PadOnset:       0.05,
			PadOffset:      0.05,
			HopSec:         schedule.Scales[baseIdx].ShiftSec,
		})
		activation = activationFromClusterAndIntervals(result.ClusterLabelsInfer, smoothed, perScale[baseIdx])
	} else {
		activation = activationFromClusterLabels(result.ClusterLabelsInfer, cfg.MaxNumSpeakers)
	}

	timestamps := make([]intervals.Interval, len(perScale[baseIdx]))
	for i, sub := range perScale[baseIdx] {
		timestamps[i] = intervals.Interval{Start: sub.OffsetSec, End: sub.OffsetSec + sub.DurationSec}
	}
	if len(timestamps) != len(activation) {
		return diagerr.Wrap(diagerr.DataError, uniqID, "emit", fmt.Errorf("timestamp/activation length mismatch: %d vs %d", len(timestamps), len(activation)))
	}

	speakerNames := resolveSpeakerNames(result.ClusterLabelsInfer, baseEmbeddings, collab.Voiceprint)
	speakerIntervals := emit.FromActivation(activation, timestamps, speakerNames)
	lines := speakerIntervals.SortedLines()

	if err := os.MkdirAll(dirs.RTTMDir, 0755); err != nil {
		return diagerr.Wrap(diagerr.DataError, uniqID, "emit-rttm", err)
	}
	rttmPath := filepath.Join(dirs.RTTMDir, uniqID+".rttm")
	if err := emit.WriteRTTMFile(rttmPath, uniqID, lines); err != nil {
		return diagerr.Wrap(diagerr.DataError, uniqID, "emit-rttm", err)
	}
	if err := emit.WriteJSONFile(dirs.JSONDir, uniqID, sess.AudioFilepath, lines); err != nil {
		return diagerr.Wrap(diagerr.DataError, uniqID, "emit-json", err)
	}
	return nil
}

// detectSpeech returns the speech intervals (absolute seconds) and a
// per-finest-subsegment VAD probability vector. With a VAD model configured
// it runs real inference; otherwise it falls back to the manifest's oracle
// RTTM (§7 recoverable path: "missing RTTM reference" is handled by the
// caller dropping the session instead).
func detectSpeech(samples []float32, sampleRate int, sess *manifest.Session, schedule segments.Schedule, detector *vad.Detector, cfg *config.Config) ([]intervals.Interval, []float64, error) {
	if detector != nil {
		probs, err := detector.FrameProbabilities(samples)
		if err != nil {
			return nil, nil, fmt.Errorf("vad inference: %w", err)
		}
		windowSec := 512.0 / float64(sampleRate)
		var speech []intervals.Interval
		inRun := false
		var runStart float64
		for i, p := range probs {
			t := float64(i) * windowSec
			if p >= cfg.VADThreshold && !inRun {
				inRun = true
				runStart = t
			} else if p < cfg.VADThreshold && inRun {
				inRun = false
				speech = append(speech, intervals.Interval{Start: runStart, End: t})
			}
		}
		if inRun {
			speech = append(speech, intervals.Interval{Start: runStart, End: float64(len(probs)) * windowSec})
		}
		return intervals.MergeFloatIntervals(speech, 3, 0), probs, nil
	}

	if sess.RTTMFilepath == "" {
		return nil, nil, fmt.Errorf("no VAD model configured and session has no rttm_filepath for oracle VAD")
	}
	f, err := os.Open(sess.RTTMFilepath)
	if err != nil {
		return nil, nil, fmt.Errorf("open rttm: %w", err)
	}
	defer f.Close()
	rttmLines, err := manifest.ParseRTTM(f)
	if err != nil {
		return nil, nil, fmt.Errorf("parse rttm: %w", err)
	}
	speech := manifest.OracleVADSegments(rttmLines, sess.Offset, sess.Duration)
	return speech, nil, nil
}

// extractEmbedding runs the ONNX encoder over one subsegment's samples, or
// falls back to a small fixed-shape energy/zero-crossing feature vector so
// the clustering driver always receives a well-formed embedding even
// without a model configured (§1: only the encoder's tensor shape matters
// to this pipeline).
func extractEmbedding(samples []float32, sampleRate int, sub segments.Subsegment, encoder *embeddings.Encoder) []float32 {
	start := int(sub.OffsetSec * float64(sampleRate))
	end := start + int(sub.DurationSec*float64(sampleRate))
	if start < 0 {
		start = 0
	}
	if end > len(samples) {
		end = len(samples)
	}
	if end < start {
		end = start
	}
	chunk := samples[start:end]

	if encoder != nil {
		if vec, err := encoder.Encode(chunk); err == nil {
			return vec
		}
	}
	return energyFeature(chunk)
}

func energyFeature(samples []float32) []float32 {
	if len(samples) == 0 {
		return []float32{0, 0}
	}
	var sumSq float64
	crossings := 0
	for i, s := range samples {
		sumSq += float64(s) * float64(s)
		if i > 0 && (samples[i-1] < 0) != (s < 0) {
			crossings++
		}
	}
	n := float64(len(samples))
	rms := math.Sqrt(sumSq / n)
	zcr := float64(crossings) / n
	return []float32{float32(rms), float32(zcr)}
}

// collapseSingleChannel reduces the per-scale embedding tensors to one
// embedding per finest-scale (base) segment, weighted-summing each coarser
// scale's covering segment via scaleMap. Mono sessions never reach the
// channels package (§9 "Polymorphism over single-vs-multi-channel
// embeddings" — this is the SingleChannel variant).
func collapseSingleChannel(embeddingsByScale [][][]float32, scaleMap segments.ScaleMap, weights []float64, baseIdx int) [][]float32 {
	fine := embeddingsByScale[baseIdx]
	out := make([][]float32, len(fine))
	for t := range fine {
		var acc []float32
		for s, perSeg := range embeddingsByScale {
			idx := t
			if s < len(scaleMap) && t < len(scaleMap[s]) {
				idx = scaleMap[s][t]
			}
			if idx < 0 || idx >= len(perSeg) {
				continue
			}
			w := float32(1.0)
			if weights != nil && s < len(weights) {
				w = float32(weights[s])
			}
			vec := perSeg[idx]
			if acc == nil {
				acc = make([]float32, len(vec))
			}
			for d := 0; d < len(vec) && d < len(acc); d++ {
				acc[d] += w * vec[d]
			}
		}
		out[t] = acc
	}
	return out
}

func resampleProbs(probs []float64, want int) []float64 {
	out := make([]float64, want)
	if len(probs) == 0 || want == 0 {
		return out
	}
	for i := range out {
		src := i * len(probs) / want
		if src >= len(probs) {
			src = len(probs) - 1
		}
		out[i] = probs[src]
	}
	return out
}

func activationFromClusterLabels(labels []int, maxSpeakers int) msdd.Activation {
	numSpeakers := maxSpeakers
	for _, l := range labels {
		if l+1 > numSpeakers {
			numSpeakers = l + 1
		}
	}
	if numSpeakers <= 0 {
		numSpeakers = 1
	}
	act := make(msdd.Activation, len(labels))
	for t, l := range labels {
		row := make([]bool, numSpeakers)
		if l >= 0 && l < numSpeakers {
			row[l] = true
		}
		act[t] = row
	}
	return act
}

func activationFromClusterAndIntervals(labels []int, active []intervals.Interval, subs []segments.Subsegment) msdd.Activation {
	numSpeakers := 0
	for _, l := range labels {
		if l+1 > numSpeakers {
			numSpeakers = l + 1
		}
	}
	if numSpeakers <= 0 {
		numSpeakers = 1
	}
	act := make(msdd.Activation, len(subs))
	for t, sub := range subs {
		row := make([]bool, numSpeakers)
		l := labels[t]
		if l >= 0 && l < numSpeakers && coveredByAny(sub, active) {
			row[l] = true
		}
		act[t] = row
	}
	return act
}

// resolveSpeakerNames maps each cluster label to a persisted voiceprint
// name by matching the label's mean embedding against the store, when a
// matcher is configured. Unmatched labels are left out of the map so
// emit.FromActivation falls back to "speaker_<idx>".
func resolveSpeakerNames(labels []int, baseEmbeddings [][]float32, matcher *voiceprint.Matcher) map[int]string {
	if matcher == nil {
		return nil
	}
	centroids := clusterCentroids(labels, baseEmbeddings)
	if len(centroids) == 0 {
		return nil
	}
	names := make(map[int]string, len(centroids))
	for label, centroid := range centroids {
		if match := matcher.MatchWithAutoUpdate(centroid); match != nil {
			names[label] = match.VoicePrint.Name
		}
	}
	return names
}

func clusterCentroids(labels []int, baseEmbeddings [][]float32) map[int][]float32 {
	sums := make(map[int][]float32)
	counts := make(map[int]int)
	for i, l := range labels {
		if l < 0 || i >= len(baseEmbeddings) {
			continue
		}
		vec := baseEmbeddings[i]
		if sums[l] == nil {
			sums[l] = make([]float32, len(vec))
		}
		for d := 0; d < len(vec) && d < len(sums[l]); d++ {
			sums[l][d] += vec[d]
		}
		counts[l]++
	}
	centroids := make(map[int][]float32, len(sums))
	for l, sum := range sums {
		n := float32(counts[l])
		if n == 0 {
			continue
		}
		mean := make([]float32, len(sum))
		for d := range sum {
			mean[d] = sum[d] / n
		}
		centroids[l] = mean
	}
	return centroids
}

func coveredByAny(sub segments.Subsegment, active []intervals.Interval) bool {
	center := sub.Center()
	for _, iv := range active {
		if center >= iv.Start && center < iv.End {
			return true
		}
	}
	return false
}
