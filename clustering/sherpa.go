// This file adapts a SherpaDiarizer into an alternative end-to-end
// speaker-counting backend. Unlike
// SpectralCounter, which implements the Counter interface over
// already-extracted embeddings (§4.6.1's gonum eigen-gap path),
// sherpa-onnx-go's OfflineSpeakerDiarization operates end-to-end on raw
// audio — it owns its own segmentation and embedding extraction — so it is
// exposed here as a session-level alternative rather than forced through
// the Counter seam. C6's driver does not call it; Run always goes through a
// Counter, and no config option selects this backend.
package clustering

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// SherpaSegment is one raw speaker-tagged interval from the sherpa backend.
type SherpaSegment struct {
	Start   float32
	End     float32
	Speaker int
}

// SherpaConfig configures the sherpa-onnx-go backend.
type SherpaConfig struct {
	SegmentationModelPath string
	EmbeddingModelPath    string
	NumThreads            int
	ClusteringThreshold   float32
	MinDurationOn         float32
	MinDurationOff        float32
	Provider              string // cpu, cuda, coreml, auto
}

// DefaultSherpaConfig returns sane defaults with provider auto-detection.
func DefaultSherpaConfig(segmentationPath, embeddingPath string) SherpaConfig {
	return SherpaConfig{
		SegmentationModelPath: segmentationPath,
		EmbeddingModelPath:    embeddingPath,
		NumThreads:            4,
		ClusteringThreshold:   0.5,
		MinDurationOn:         0.3,
		MinDurationOff:        0.5,
		Provider:              "auto",
	}
}

func detectBestProvider() string {
	if runtime.GOOS == "darwin" && runtime.GOARCH == "arm64" {
		return "coreml"
	}
	return "cpu"
}

// SherpaBackend wraps sherpa-onnx's OfflineSpeakerDiarization. A failed
// non-CPU provider falls back to CPU with a warning (§5, "CUDA unavailable
// => fall back to CPU").
type SherpaBackend struct {
	config      SherpaConfig
	diarizer    *sherpa.OfflineSpeakerDiarization
	mu          sync.Mutex
	initialized bool
	inProgress  int32
}

// NewSherpaBackend loads the segmentation and embedding models.
func NewSherpaBackend(config SherpaConfig) (*SherpaBackend, error) {
	if _, err := os.Stat(config.SegmentationModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("clustering: segmentation model not found: %s", config.SegmentationModelPath)
	}
	if _, err := os.Stat(config.EmbeddingModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("clustering: embedding model not found: %s", config.EmbeddingModelPath)
	}

	provider := config.Provider
	if provider == "" || provider == "auto" {
		provider = detectBestProvider()
	}
	log.Printf("clustering: sherpa backend provider=%s (requested=%s)", provider, config.Provider)

	sherpaConfig := &sherpa.OfflineSpeakerDiarizationConfig{
		Segmentation: sherpa.OfflineSpeakerSegmentationModelConfig{
			Pyannote:   sherpa.OfflineSpeakerSegmentationPyannoteModelConfig{Model: config.SegmentationModelPath},
			NumThreads: config.NumThreads, Provider: provider,
		},
		Embedding: sherpa.SpeakerEmbeddingExtractorConfig{
			Model: config.EmbeddingModelPath, NumThreads: config.NumThreads, Provider: provider,
		},
		Clustering: sherpa.FastClusteringConfig{
			NumClusters: -1,
			Threshold:   config.ClusteringThreshold,
		},
		MinDurationOn:  config.MinDurationOn,
		MinDurationOff: config.MinDurationOff,
	}

	diarizer := sherpa.NewOfflineSpeakerDiarization(sherpaConfig)
	if diarizer == nil && provider != "cpu" {
		log.Printf("clustering: %s provider failed, falling back to cpu", provider)
		sherpaConfig.Segmentation.Provider = "cpu"
		sherpaConfig.Embedding.Provider = "cpu"
		diarizer = sherpa.NewOfflineSpeakerDiarization(sherpaConfig)
		provider = "cpu"
	}
	if diarizer == nil {
		return nil, fmt.Errorf("clustering: failed to create sherpa-onnx diarizer")
	}

	config.Provider = provider
	return &SherpaBackend{config: config, diarizer: diarizer, initialized: true}, nil
}

// maxChunkSamples bounds a single native call (~15s at 16kHz) to avoid a
// long-running call hanging the session worker (§5, native-call guard).
const maxChunkSamples = 240000

// Diarize runs the sherpa pipeline end-to-end over raw audio, using
// TryLock rather than Lock so a hung native call doesn't pile up goroutines
// (§5, "TryLock-guarded collaborator calls").
func (b *SherpaBackend) Diarize(samples []float32) ([]SherpaSegment, error) {
	if !b.mu.TryLock() {
		return nil, fmt.Errorf("clustering: sherpa backend busy (inProgress=%d)", atomic.LoadInt32(&b.inProgress))
	}
	defer b.mu.Unlock()

	if !b.initialized {
		return nil, fmt.Errorf("clustering: sherpa backend not initialized")
	}
	if len(samples) == 0 {
		return nil, nil
	}
	if len(samples) > maxChunkSamples {
		return b.diarizeInChunks(samples)
	}
	return b.diarizeSingle(samples)
}

func (b *SherpaBackend) diarizeSingle(samples []float32) ([]SherpaSegment, error) {
	atomic.AddInt32(&b.inProgress, 1)
	defer atomic.AddInt32(&b.inProgress, -1)

	raw := b.diarizer.Process(samples)
	out := make([]SherpaSegment, len(raw))
	for i, s := range raw {
		out[i] = SherpaSegment{Start: s.Start, End: s.End, Speaker: s.Speaker}
	}
	return out, nil
}

func (b *SherpaBackend) diarizeInChunks(samples []float32) ([]SherpaSegment, error) {
	const chunkSize = maxChunkSamples
	const overlapSize = 16000
	const sampleRate = 16000

	var all []SherpaSegment
	offset := 0
	for offset < len(samples) {
		end := offset + chunkSize
		if end > len(samples) {
			end = len(samples)
		}
		chunk := samples[offset:end]
		chunkOffsetSec := float32(offset) / float32(sampleRate)

		atomic.AddInt32(&b.inProgress, 1)
		raw := b.diarizer.Process(chunk)
		atomic.AddInt32(&b.inProgress, -1)

		for _, s := range raw {
			all = append(all, SherpaSegment{Start: s.Start + chunkOffsetSec, End: s.End + chunkOffsetSec, Speaker: s.Speaker})
		}

		offset = end - overlapSize
		if offset < 0 || len(samples)-offset < sampleRate {
			break
		}
	}
	return mergeOverlappingSherpaSegments(all), nil
}

func mergeOverlappingSherpaSegments(segs []SherpaSegment) []SherpaSegment {
	if len(segs) <= 1 {
		return segs
	}
	for i := 0; i < len(segs)-1; i++ {
		for j := i + 1; j < len(segs); j++ {
			if segs[j].Start < segs[i].Start {
				segs[i], segs[j] = segs[j], segs[i]
			}
		}
	}
	merged := []SherpaSegment{segs[0]}
	for _, s := range segs[1:] {
		last := &merged[len(merged)-1]
		if s.Speaker == last.Speaker && s.Start <= last.End+0.5 {
			if s.End > last.End {
				last.End = s.End
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// Provider reports the ONNX execution provider actually in use (after any
// CPU fallback).
func (b *SherpaBackend) Provider() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.config.Provider
}

// Close releases the native diarizer.
func (b *SherpaBackend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.diarizer != nil {
		sherpa.DeleteOfflineSpeakerDiarization(b.diarizer)
		b.diarizer = nil
	}
	b.initialized = false
}
