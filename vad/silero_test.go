package vad

import (
	"os"
	"testing"
)

// TestNewRequiresModelFile exercises the one pure-Go path in this package:
// New's upfront os.Stat check, which fails before ever touching the ONNX
// runtime.
func TestNewRequiresModelFile(t *testing.T) {
	_, err := New(DefaultConfig("/nonexistent/silero_vad.onnx"))
	if err == nil {
		t.Fatal("expected an error for a missing model file")
	}
}

func TestNewRejectsUnsupportedSampleRate(t *testing.T) {
	modelPath := os.Getenv("SPEAKERDIARIZE_VAD_MODEL")
	if modelPath == "" {
		t.Skip("SPEAKERDIARIZE_VAD_MODEL not set; skipping, requires a real Silero VAD onnx file")
	}
	_, err := New(Config{ModelPath: modelPath, SampleRate: 44100})
	if err == nil {
		t.Fatal("expected an error for an unsupported sample rate")
	}
}

// TestFrameProbabilitiesAgainstRealModel is skipped unless a model path is
// supplied via the environment; it's the smoke test this package's ONNX
// plumbing actually needs but can't run without a downloaded model.
func TestFrameProbabilitiesAgainstRealModel(t *testing.T) {
	modelPath := os.Getenv("SPEAKERDIARIZE_VAD_MODEL")
	if modelPath == "" {
		t.Skip("SPEAKERDIARIZE_VAD_MODEL not set; skipping, requires a real Silero VAD onnx file")
	}

	detector, err := New(DefaultConfig(modelPath))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer detector.Close()

	samples := make([]float32, 16000)
	probs, err := detector.FrameProbabilities(samples)
	if err != nil {
		t.Fatalf("FrameProbabilities: %v", err)
	}
	if len(probs) == 0 {
		t.Fatal("expected at least one probability")
	}
}
