// Package vad wraps Silero VAD as the VAD-probability collaborator named
// in §1: it turns raw audio samples into the per-frame vad_probs[T_fine]
// vector (§3) that vadproc.Threshold and vadproc.Masks consume.
package vad

import (
	"fmt"
	"log"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Config configures the Silero VAD ONNX session.
type Config struct {
	ModelPath  string
	SampleRate int // 8000 or 16000
}

// DefaultConfig returns the conventional 16kHz Silero VAD configuration.
func DefaultConfig(modelPath string) Config {
	return Config{ModelPath: modelPath, SampleRate: 16000}
}

// Detector runs Silero VAD window-by-window and accumulates per-frame
// speech probabilities, exposing the raw probability vector §4.4 needs
// instead of a hysteresis-smoothed segment list (hysteresis smoothing lives
// in vadproc.TSVADPostProcessing; the pipeline applies it to cluster-label
// activity, not to these probabilities).
type Detector struct {
	session *ort.DynamicAdvancedSession
	config  Config

	state   []float32 // [2,1,128] LSTM state
	context []float32

	mu          sync.Mutex
	initialized bool
}

// New loads the Silero VAD ONNX model.
func New(config Config) (*Detector, error) {
	if _, err := os.Stat(config.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("vad: model file not found: %s", config.ModelPath)
	}
	if config.SampleRate != 8000 && config.SampleRate != 16000 {
		return nil, fmt.Errorf("vad: sample rate must be 8000 or 16000, got %d", config.SampleRate)
	}

	if err := initRuntime(); err != nil {
		return nil, fmt.Errorf("vad: onnxruntime init: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("vad: session options: %w", err)
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(config.ModelPath,
		[]string{"input", "state", "sr"}, []string{"output", "stateN"}, options)
	if err != nil {
		return nil, fmt.Errorf("vad: session create: %w", err)
	}

	contextSize := 64
	if config.SampleRate == 8000 {
		contextSize = 32
	}

	d := &Detector{
		session:     session,
		config:      config,
		state:       make([]float32, 2*1*128),
		context:     make([]float32, contextSize),
		initialized: true,
	}
	log.Printf("vad: silero detector ready sample_rate=%d", config.SampleRate)
	return d, nil
}

// Reset clears the LSTM state and rolling context.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.state {
		d.state[i] = 0
	}
	for i := range d.context {
		d.context[i] = 0
	}
}

// windowSize returns the Silero window (512 samples at 16kHz, 256 at 8kHz).
func (d *Detector) windowSize() int {
	if d.config.SampleRate == 16000 {
		return 512
	}
	return 256
}

// processChunk runs one window through the model and returns the speech
// probability, updating the rolling LSTM state and context.
func (d *Detector) processChunk(samples []float32) (float32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return 0, fmt.Errorf("vad: detector not initialized")
	}

	contextSize := len(d.context)
	inputData := make([]float32, contextSize+len(samples))
	copy(inputData[:contextSize], d.context)
	copy(inputData[contextSize:], samples)

	if len(samples) >= contextSize {
		copy(d.context, samples[len(samples)-contextSize:])
	} else {
		copy(d.context, d.context[len(samples):])
		copy(d.context[contextSize-len(samples):], samples)
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(inputData))), inputData)
	if err != nil {
		return 0, fmt.Errorf("vad: input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	stateTensor, err := ort.NewTensor(ort.NewShape(2, 1, 128), d.state)
	if err != nil {
		return 0, fmt.Errorf("vad: state tensor: %w", err)
	}
	defer stateTensor.Destroy()

	srTensor, err := ort.NewTensor(ort.NewShape(1), []int64{int64(d.config.SampleRate)})
	if err != nil {
		return 0, fmt.Errorf("vad: sr tensor: %w", err)
	}
	defer srTensor.Destroy()

	outputs := []ort.Value{nil, nil}
	if err := d.session.Run([]ort.Value{inputTensor, stateTensor, srTensor}, outputs); err != nil {
		return 0, fmt.Errorf("vad: inference: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	outputData := outputs[0].(*ort.Tensor[float32]).GetData()
	stateNData := outputs[1].(*ort.Tensor[float32]).GetData()
	copy(d.state, stateNData)

	if len(outputData) > 0 {
		return outputData[0], nil
	}
	return 0, nil
}

// FrameProbabilities computes vad_probs[T_fine] (§3): one speech
// probability per fixed-size window across the whole audio buffer,
// resetting LSTM state at the start of each call so results are
// session-deterministic.
func (d *Detector) FrameProbabilities(samples []float32) ([]float64, error) {
	d.Reset()
	windowSize := d.windowSize()

	probs := make([]float64, 0, len(samples)/windowSize+1)
	for i := 0; i < len(samples); i += windowSize {
		end := i + windowSize
		var chunk []float32
		if end <= len(samples) {
			chunk = samples[i:end]
		} else {
			chunk = make([]float32, windowSize)
			copy(chunk, samples[i:])
		}
		p, err := d.processChunk(chunk)
		if err != nil {
			return nil, err
		}
		probs = append(probs, float64(p))
	}
	return probs, nil
}

// Close releases the ONNX session.
func (d *Detector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session != nil {
		d.session.Destroy()
		d.session = nil
	}
	d.initialized = false
}
