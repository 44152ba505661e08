package embeddings

import (
	"fmt"
	"log"
	"math"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Config configures the ONNX speaker-embedding extractor.
type Config struct {
	ModelPath  string
	SampleRate int
	NMels      int
	HopLength  int
	WinLength  int
	NFFT       int
}

// DefaultConfig matches WeSpeaker ResNet34-style embedding extractors.
func DefaultConfig(modelPath string) Config {
	return Config{
		ModelPath:  modelPath,
		SampleRate: 16000,
		NMels:      80,
		HopLength:  160,
		WinLength:  400,
		NFFT:       512,
	}
}

// Encoder turns a subsegment's raw audio into a normalized embedding
// vector via an ONNX runtime session.
type Encoder struct {
	config       Config
	session      *ort.DynamicAdvancedSession
	melProcessor *MelProcessor
	mu           sync.Mutex
	initialized  bool
}

// NewEncoder loads the ONNX model at config.ModelPath.
func NewEncoder(config Config) (*Encoder, error) {
	if _, err := os.Stat(config.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("embeddings: model file not found: %s", config.ModelPath)
	}

	e := &Encoder{
		config: config,
		melProcessor: NewMelProcessor(MelConfig{
			SampleRate: config.SampleRate,
			NMels:      config.NMels,
			HopLength:  config.HopLength,
			WinLength:  config.WinLength,
			NFFT:       config.NFFT,
			Center:     true,
		}),
	}

	if err := initRuntimeImpl(); err != nil {
		return nil, fmt.Errorf("embeddings: onnxruntime init: %w", err)
	}
	if err := e.loadModel(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Encoder) loadModel() error {
	inputInfo, outputInfo, err := ort.GetInputOutputInfo(e.config.ModelPath)
	if err != nil {
		return fmt.Errorf("embeddings: model info: %w", err)
	}

	inputNames := make([]string, len(inputInfo))
	for i, info := range inputInfo {
		inputNames[i] = info.Name
	}
	outputNames := make([]string, len(outputInfo))
	for i, info := range outputInfo {
		outputNames[i] = info.Name
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return fmt.Errorf("embeddings: session options: %w", err)
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(e.config.ModelPath, inputNames, outputNames, options)
	if err != nil {
		return fmt.Errorf("embeddings: session create: %w", err)
	}

	e.session = session
	e.initialized = true
	log.Printf("embeddings: encoder ready inputs=%v outputs=%v", inputNames, outputNames)
	return nil
}

// Encode extracts a normalized embedding from a subsegment's raw samples.
func (e *Encoder) Encode(samples []float32) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return nil, fmt.Errorf("embeddings: encoder not initialized")
	}
	if len(samples) < e.config.SampleRate/10 {
		return nil, fmt.Errorf("embeddings: audio too short")
	}

	melSpec, numFrames := e.melProcessor.Compute(samples)

	flat := make([]float32, numFrames*e.config.NMels)
	for t := 0; t < numFrames; t++ {
		for m := 0; m < e.config.NMels; m++ {
			flat[t*e.config.NMels+m] = melSpec[t][m]
		}
	}

	inputShape := ort.NewShape(1, int64(numFrames), int64(e.config.NMels))
	inputTensor, err := ort.NewTensor(inputShape, flat)
	if err != nil {
		return nil, fmt.Errorf("embeddings: input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, fmt.Errorf("embeddings: inference: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	outTensor := outputs[0].(*ort.Tensor[float32])
	result := make([]float32, len(outTensor.GetData()))
	copy(result, outTensor.GetData())
	return normalize(result), nil
}

func normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sumSq))
	if norm < 1e-6 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

// Close releases the ONNX session (§5: explicit release between sessions).
func (e *Encoder) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	e.initialized = false
}
