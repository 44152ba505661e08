package embeddings

import (
	"os"
	"testing"
)

func TestNewEncoderRequiresModelFile(t *testing.T) {
	_, err := NewEncoder(DefaultConfig("/nonexistent/encoder.onnx"))
	if err == nil {
		t.Fatal("expected an error for a missing model file")
	}
}

func TestNormalizeUnitLength(t *testing.T) {
	v := normalize([]float32{3, 4})
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if d := sumSq - 1.0; d > 1e-4 || d < -1e-4 {
		t.Fatalf("expected unit-length vector, got squared norm %v", sumSq)
	}
}

func TestNormalizeZeroVectorUnchanged(t *testing.T) {
	v := normalize([]float32{0, 0, 0})
	for _, x := range v {
		if x != 0 {
			t.Fatalf("expected the zero vector to pass through unchanged, got %v", v)
		}
	}
}

// TestEncodeAgainstRealModel is skipped unless a model path is supplied via
// the environment; the encoder's ONNX plumbing needs a real model file to
// exercise end to end.
func TestEncodeAgainstRealModel(t *testing.T) {
	modelPath := os.Getenv("SPEAKERDIARIZE_EMBEDDING_MODEL")
	if modelPath == "" {
		t.Skip("SPEAKERDIARIZE_EMBEDDING_MODEL not set; skipping, requires a real speaker-embedding onnx file")
	}

	encoder, err := NewEncoder(DefaultConfig(modelPath))
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	defer encoder.Close()

	samples := make([]float32, 16000)
	vec, err := encoder.Encode(samples)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(vec) == 0 {
		t.Fatal("expected a non-empty embedding")
	}
}
