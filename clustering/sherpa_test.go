package clustering

import (
	"os"
	"testing"
)

func TestNewSherpaBackendRequiresModelFiles(t *testing.T) {
	_, err := NewSherpaBackend(DefaultSherpaConfig("/nonexistent/segmentation.onnx", "/nonexistent/embedding.onnx"))
	if err == nil {
		t.Fatal("expected an error for missing model files")
	}
}

func TestMergeOverlappingSherpaSegmentsSameSpeakerAdjacent(t *testing.T) {
	segs := []SherpaSegment{
		{Start: 0, End: 2, Speaker: 0},
		{Start: 1.5, End: 3, Speaker: 0},
		{Start: 5, End: 6, Speaker: 1},
	}
	merged := mergeOverlappingSherpaSegments(segs)
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged segments, got %d: %+v", len(merged), merged)
	}
	if merged[0].Start != 0 || merged[0].End != 3 {
		t.Errorf("expected first merged segment [0,3], got [%v,%v]", merged[0].Start, merged[0].End)
	}
	if merged[1].Speaker != 1 {
		t.Errorf("expected second segment speaker 1, got %d", merged[1].Speaker)
	}
}

func TestMergeOverlappingSherpaSegmentsUnsortedInput(t *testing.T) {
	segs := []SherpaSegment{
		{Start: 5, End: 6, Speaker: 1},
		{Start: 0, End: 1, Speaker: 0},
	}
	merged := mergeOverlappingSherpaSegments(segs)
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged segments, got %d", len(merged))
	}
	if merged[0].Start != 0 {
		t.Errorf("expected sorted output starting at 0, got %v", merged[0].Start)
	}
}

func TestMergeOverlappingSherpaSegmentsEmptyAndSingle(t *testing.T) {
	if got := mergeOverlappingSherpaSegments(nil); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
	one := []SherpaSegment{{Start: 0, End: 1, Speaker: 0}}
	if got := mergeOverlappingSherpaSegments(one); len(got) != 1 {
		t.Errorf("expected single segment unchanged, got %v", got)
	}
}

func TestDetectBestProviderReturnsKnownValue(t *testing.T) {
	p := detectBestProvider()
	if p != "cpu" && p != "coreml" {
		t.Errorf("unexpected provider %q", p)
	}
}

// TestSherpaBackendDiarizeAgainstRealModel is skipped unless sherpa model
// paths are supplied via the environment; OfflineSpeakerDiarization needs
// real segmentation and embedding onnx files to exercise end to end.
func TestSherpaBackendDiarizeAgainstRealModel(t *testing.T) {
	segPath := os.Getenv("SPEAKERDIARIZE_SHERPA_SEGMENTATION_MODEL")
	embPath := os.Getenv("SPEAKERDIARIZE_SHERPA_EMBEDDING_MODEL")
	if segPath == "" || embPath == "" {
		t.Skip("SPEAKERDIARIZE_SHERPA_SEGMENTATION_MODEL / SPEAKERDIARIZE_SHERPA_EMBEDDING_MODEL not set; skipping")
	}

	backend, err := NewSherpaBackend(DefaultSherpaConfig(segPath, embPath))
	if err != nil {
		t.Fatalf("NewSherpaBackend: %v", err)
	}
	defer backend.Close()

	samples := make([]float32, 16000)
	if _, err := backend.Diarize(samples); err != nil {
		t.Fatalf("Diarize: %v", err)
	}
}
