// Package config assembles the typed Config struct the batch pipeline and
// control-plane server run against, one flag per recognized option in §6.
package config

import (
	"flag"
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// Config holds every recognized diarization option (§6) plus the
// process-level flags that drive the batch CLI and the control-plane
// server.
type Config struct {
	// Process-level
	ManifestPath string
	OutDir       string
	DataDir      string
	TraceLog     string
	GRPCAddr     string
	Workers      int

	// Collaborator model paths (not §6 diarization options — ambient
	// wiring for the ONNX collaborators). Empty disables the collaborator
	// and falls back to the oracle-VAD/manifest path.
	VADModelPath        string
	EmbeddingModelPath  string
	VoicePrintStorePath string

	// Model registry / downloader (models package). When the corresponding
	// -vad-model / -embedding-model path is empty and a model ID is given
	// here, main.go resolves and downloads it into ModelsDir before
	// building collaborators.
	ModelsDir        string
	VADModelID       string
	EmbeddingModelID string

	// Scale schedule (§3)
	WindowLengthsInSec []float64
	ShiftLengthsInSec  []float64
	MultiscaleWeights  []float64

	UseSingleScaleClustering bool
	ClusteringScaleIndex     int

	// Speaker-count bounds
	MaxNumSpeakers    int
	MinNumSpeakers    int
	OracleNumSpeakers bool

	// External clusterer knobs
	MaxRPThreshold     float64
	SparseSearchVolume int
	ReclusAffThres     float64

	MaxMCChNum int

	VADThreshold float64

	// Long-form path
	DropLengthThres int
	LongAudioThres  int
	SyncScoreThres  float64
	UnitClusLen     int

	// MSDD post-processing
	InferOverlap         bool
	OverlapInferSpkLimit int
	TSVADThreshold       float64
	MaskSpksWithClus     bool
	MCLateFusionMode     string
	HopLenInCS           int

	// Emission
	InferMode                 string
	SystemName                string
	UseTSVAD                  bool
	GetRTTMWithTheFinestScale bool
}

// floatList is a flag.Value for comma-separated float64 lists
// (window_lengths_in_sec, shift_lengths_in_sec, multiscale_weights).
type floatList struct{ values *[]float64 }

func (f floatList) String() string {
	if f.values == nil {
		return ""
	}
	parts := make([]string, len(*f.values))
	for i, v := range *f.values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

func (f floatList) Set(s string) error {
	var out []float64
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return fmt.Errorf("config: invalid float in list %q: %w", s, err)
		}
		out = append(out, v)
	}
	*f.values = out
	return nil
}

// Load parses process flags into a Config, one flag per §6 option plus the
// process-level flags. Unrecognized flags are a flag-package fatal error by
// construction (flag.Parse's default ExitOnError behavior).
func Load() *Config {
	cfg := &Config{}

	manifest := flag.String("manifest", "", "Path to the session manifest (JSON-lines)")
	outDir := flag.String("out-dir", "pred_outputs", "Root output directory for RTTM/JSON emission")
	dataDir := flag.String("data", "data/sessions", "Scratch directory for session working data")
	traceLog := flag.String("trace-log", "", "Path to write structured trace logs (empty disables)")
	grpcAddr := flag.String("grpc-addr", defaultGRPCAddress(), "Control-plane listen address (unix:/path/to.sock or npipe:////./pipe/speakerdiarize-grpc)")
	workers := flag.Int("workers", runtime.NumCPU(), "Number of concurrent session workers")
	vadModel := flag.String("vad-model", "", "Path to the Silero VAD ONNX model (empty: use oracle VAD from the manifest RTTM)")
	embeddingModel := flag.String("embedding-model", "", "Path to the speaker-embedding ONNX model (empty: RMS/zero-crossing-rate feature vectors)")
	voicePrintStore := flag.String("speaker-identity-store", "", "Path to a persisted voiceprint store (empty: emit speaker_<idx> labels only)")
	modelsDir := flag.String("models-dir", "models_cache", "Directory the model manager downloads and caches ONNX models into")
	vadModelID := flag.String("vad-model-id", "", "Registry ID of a VAD model to auto-download if -vad-model is empty (see models.Registry)")
	embeddingModelID := flag.String("embedding-model-id", "", "Registry ID of a speaker-embedding model to auto-download if -embedding-model is empty")

	windowLengths := []float64{1.5, 1.25, 1.0, 0.75, 0.5}
	shiftLengths := []float64{0.75, 0.625, 0.5, 0.375, 0.25}
	weights := []float64{1, 1, 1, 1, 1}
	flag.Var(floatList{&windowLengths}, "window_lengths_in_sec", "Comma-separated scale window lengths in seconds")
	flag.Var(floatList{&shiftLengths}, "shift_lengths_in_sec", "Comma-separated scale shift lengths in seconds")
	flag.Var(floatList{&weights}, "multiscale_weights", "Comma-separated per-scale linear weights")

	useSingleScaleClustering := flag.Bool("use_single_scale_clustering", false, "Only scale 0 participates in clustering")
	clusteringScaleIndex := flag.Int("clustering_scale_index", 0, "Base scale index used for clustering")

	maxNumSpeakers := flag.Int("max_num_speakers", 8, "Upper bound on speaker count")
	minNumSpeakers := flag.Int("min_num_speakers", 1, "Lower bound on speaker count")
	oracleNumSpeakers := flag.Bool("oracle_num_speakers", false, "Use manifest num_speakers verbatim instead of estimating")

	maxRPThreshold := flag.Float64("max_rp_threshold", 0.25, "Max row-wise pruning threshold for the affinity graph")
	sparseSearchVolume := flag.Int("sparse_search_volume", 30, "Search volume for sparse affinity pruning")
	reclusAffThres := flag.Float64("reclus_aff_thres", 0.0, "Affinity threshold for re-clustering passes")

	maxMCChNum := flag.Int("max_mc_ch_num", 4, "Multi-channel cap for channel selection (§4.5)")

	vadThreshold := flag.Float64("vad_threshold", 0.5, "Fallback VAD probability threshold tau0 (§4.4)")

	dropLengthThres := flag.Int("drop_length_thres", 50, "Minimum chunk length to avoid dropping in long-form path")
	longAudioThres := flag.Int("long_audio_thres", 100000, "Segment-count threshold that switches on divide-and-conquer clustering")
	syncScoreThres := flag.Float64("sync_score_thres", 0.8, "Minimum stitch sync score to accept without warning")
	unitClusLen := flag.Int("unit_clus_len", 300, "Unit chunk length for divide-and-conquer clustering")

	inferOverlap := flag.Bool("infer_overlap", false, "Enable MSDD overlap-aware post-processing")
	overlapInferSpkLimit := flag.Int("overlap_infer_spk_limit", 3, "Max simultaneous active speakers considered during overlap inference")
	tsVADThreshold := flag.Float64("ts_vad_threshold", 0.0, "TS-VAD gating threshold (0 disables, falls back to VAD mask)")
	maskSpksWithClus := flag.Bool("mask_spks_with_clus", true, "Mask non-clustered speaker columns before top-k")
	mcLateFusionMode := flag.String("mc_late_fusion_mode", "post_mean", "Multi-channel late fusion mode: pre_mean, post_mean, post_max")
	hopLenInCS := flag.Int("hop_len_in_cs", 10, "MSDD hop length in centiseconds")

	inferMode := flag.String("infer_mode", "offline", "Inference mode: offline or online")
	systemName := flag.String("system_name", "speakerdiarize", "System name used in output directory layout")
	useTSVAD := flag.Bool("use_ts_vad", false, "Use TS-VAD hysteresis smoothing instead of the raw cluster-label activation")
	getRTTMWithFinestScale := flag.Bool("get_rttm_with_the_finest_scale", true, "Emit RTTM at the finest scale's resolution")

	flag.Parse()

	cfg.ManifestPath = *manifest
	cfg.OutDir = *outDir
	cfg.DataDir = *dataDir
	cfg.TraceLog = *traceLog
	cfg.GRPCAddr = *grpcAddr
	cfg.Workers = *workers
	cfg.VADModelPath = *vadModel
	cfg.EmbeddingModelPath = *embeddingModel
	cfg.VoicePrintStorePath = *voicePrintStore
	cfg.ModelsDir = *modelsDir
	cfg.VADModelID = *vadModelID
	cfg.EmbeddingModelID = *embeddingModelID

	cfg.WindowLengthsInSec = windowLengths
	cfg.ShiftLengthsInSec = shiftLengths
	cfg.MultiscaleWeights = weights

	cfg.UseSingleScaleClustering = *useSingleScaleClustering
	cfg.ClusteringScaleIndex = *clusteringScaleIndex

	cfg.MaxNumSpeakers = *maxNumSpeakers
	cfg.MinNumSpeakers = *minNumSpeakers
	cfg.OracleNumSpeakers = *oracleNumSpeakers

	cfg.MaxRPThreshold = *maxRPThreshold
	cfg.SparseSearchVolume = *sparseSearchVolume
	cfg.ReclusAffThres = *reclusAffThres

	cfg.MaxMCChNum = *maxMCChNum
	cfg.VADThreshold = *vadThreshold

	cfg.DropLengthThres = *dropLengthThres
	cfg.LongAudioThres = *longAudioThres
	cfg.SyncScoreThres = *syncScoreThres
	cfg.UnitClusLen = *unitClusLen

	cfg.InferOverlap = *inferOverlap
	cfg.OverlapInferSpkLimit = *overlapInferSpkLimit
	cfg.TSVADThreshold = *tsVADThreshold
	cfg.MaskSpksWithClus = *maskSpksWithClus
	cfg.MCLateFusionMode = *mcLateFusionMode
	cfg.HopLenInCS = *hopLenInCS

	cfg.InferMode = *inferMode
	cfg.SystemName = *systemName
	cfg.UseTSVAD = *useTSVAD
	cfg.GetRTTMWithTheFinestScale = *getRTTMWithFinestScale

	return cfg
}

// Validate checks the configuration-error cases named in §7.1: an
// ill-formed scale schedule, oracle_num_speakers set without a manifest
// num_speakers value (checked by the caller per-session since that's a
// manifest-level fact), and an unrecognized late-fusion mode.
func (c *Config) Validate() error {
	if len(c.WindowLengthsInSec) == 0 {
		return fmt.Errorf("config: window_lengths_in_sec must be non-empty")
	}
	if len(c.WindowLengthsInSec) != len(c.ShiftLengthsInSec) {
		return fmt.Errorf("config: window_lengths_in_sec and shift_lengths_in_sec must have equal length")
	}
	if len(c.MultiscaleWeights) != len(c.WindowLengthsInSec) {
		return fmt.Errorf("config: multiscale_weights must match window_lengths_in_sec in length")
	}
	for i := range c.WindowLengthsInSec {
		if c.WindowLengthsInSec[i] <= c.ShiftLengthsInSec[i] {
			return fmt.Errorf("config: scale %d window %v must exceed shift %v", i, c.WindowLengthsInSec[i], c.ShiftLengthsInSec[i])
		}
		if i > 0 && (c.WindowLengthsInSec[i] >= c.WindowLengthsInSec[i-1] || c.ShiftLengthsInSec[i] >= c.ShiftLengthsInSec[i-1]) {
			return fmt.Errorf("config: scale %d must have strictly smaller window/shift than scale %d", i, i-1)
		}
	}
	for _, w := range c.MultiscaleWeights {
		if w < 0 {
			return fmt.Errorf("config: multiscale_weights must be non-negative, got %v", w)
		}
	}
	switch c.MCLateFusionMode {
	case "pre_mean", "post_mean", "post_max":
	default:
		return fmt.Errorf("config: unknown mc_late_fusion_mode %q", c.MCLateFusionMode)
	}
	if c.ClusteringScaleIndex < 0 || c.ClusteringScaleIndex >= len(c.WindowLengthsInSec) {
		return fmt.Errorf("config: clustering_scale_index %d out of range", c.ClusteringScaleIndex)
	}
	return nil
}

func defaultGRPCAddress() string {
	if runtime.GOOS == "windows" {
		return "npipe:\\\\.\\pipe\\speakerdiarize-grpc"
	}
	return "unix:/tmp/speakerdiarize-grpc.sock"
}
