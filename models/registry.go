// Package models manages on-disk ONNX collaborator models (VAD and speaker
// embedding) for the diarization pipeline: a registry of known model
// variants plus a downloader/cache manager keyed by model ID.
package models

// Kind names which collaborator a model fills.
type Kind string

const (
	KindVAD       Kind = "vad"
	KindEmbedding Kind = "embedding"
)

// ModelInfo describes one downloadable ONNX model variant.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Kind        Kind   `json:"kind"`
	Size        string `json:"size"`
	SizeBytes   int64  `json:"sizeBytes"`
	Description string `json:"description"`
	Recommended bool   `json:"recommended,omitempty"`
	DownloadURL string `json:"downloadUrl,omitempty"`
	// Archive is true when DownloadURL points at a tar.bz2 bundle rather
	// than a bare .onnx file (sherpa-onnx's packaged releases ship this
	// way); the manager extracts it and locates the .onnx file inside.
	Archive bool `json:"archive,omitempty"`
}

// ModelStatus is a model's on-disk state.
type ModelStatus string

const (
	ModelStatusNotDownloaded ModelStatus = "not_downloaded"
	ModelStatusDownloading   ModelStatus = "downloading"
	ModelStatusDownloaded    ModelStatus = "downloaded"
	ModelStatusActive        ModelStatus = "active"
	ModelStatusError         ModelStatus = "error"
)

// ModelState is a registry entry annotated with its current on-disk state.
type ModelState struct {
	ModelInfo
	Status   ModelStatus `json:"status"`
	Progress float64     `json:"progress,omitempty"`
	Error    string      `json:"error,omitempty"`
	Path     string      `json:"path,omitempty"`
}

// Registry lists the VAD and speaker-embedding ONNX models this pipeline
// knows how to fetch. Sizes and URLs match the public sherpa-onnx release
// assets used elsewhere in this module (clustering/sherpa.go,
// vad.DefaultConfig, embeddings.DefaultConfig all expect these layouts).
var Registry = []ModelInfo{
	{
		ID:          "silero-vad-v5",
		Name:        "Silero VAD v5",
		Kind:        KindVAD,
		Size:        "2.2 MB",
		SizeBytes:   2_270_000,
		Description: "Silero VAD, 16kHz mono, single onnx file",
		Recommended: true,
		DownloadURL: "https://github.com/snakers4/silero-vad/raw/master/src/silero_vad/data/silero_vad.onnx",
	},
	{
		ID:          "nemo-titanet-large",
		Name:        "NeMo TitaNet Large",
		Kind:        KindEmbedding,
		Size:        "97 MB",
		SizeBytes:   101_000_000,
		Description: "Speaker-embedding encoder, 192-dim output",
		Recommended: true,
		DownloadURL: "https://github.com/k2-fsa/sherpa-onnx/releases/download/speaker-recongition-models/nemo_en_titanet_large.onnx",
	},
	{
		ID:          "3d-speaker-eres2netv2",
		Name:        "3D-Speaker ERes2NetV2",
		Kind:        KindEmbedding,
		Size:        "210 MB",
		SizeBytes:   220_000_000,
		Description: "Alternative speaker-embedding encoder bundled as a tar.bz2 archive",
		DownloadURL: "https://github.com/k2-fsa/sherpa-onnx/releases/download/speaker-recongition-models/3dspeaker_speech_eres2netv2_sv_zh-cn_16k-common.tar.bz2",
		Archive:     true,
	},
}

// GetModelByID returns the registry entry for id, or nil if unknown.
func GetModelByID(id string) *ModelInfo {
	for _, m := range Registry {
		if m.ID == id {
			return &m
		}
	}
	return nil
}

// GetModelsByKind filters the registry to one collaborator kind.
func GetModelsByKind(kind Kind) []ModelInfo {
	var result []ModelInfo
	for _, m := range Registry {
		if m.Kind == kind {
			result = append(result, m)
		}
	}
	return result
}

// GetRecommendedModels returns the registry entries flagged recommended.
func GetRecommendedModels() []ModelInfo {
	var result []ModelInfo
	for _, m := range Registry {
		if m.Recommended {
			result = append(result, m)
		}
	}
	return result
}
