// Package embeddings implements the embedding-extractor collaborator named
// in §1: given audio samples for a subsegment, it produces the fixed-size
// embedding vector that feeds the multi-scale embedding tensor (§3).
package embeddings

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// MelConfig configures log-mel spectrogram extraction.
type MelConfig struct {
	SampleRate int
	NMels      int
	HopLength  int // usually SampleRate/100 (10ms)
	WinLength  int // usually SampleRate/40 (25ms)
	NFFT       int
	Center     bool // true = center frames (librosa default)
}

// DefaultMelConfig matches WeSpeaker-style 80-mel front ends.
func DefaultMelConfig(sampleRate int) MelConfig {
	return MelConfig{
		SampleRate: sampleRate,
		NMels:      80,
		HopLength:  sampleRate / 100,
		WinLength:  sampleRate / 40,
		NFFT:       512,
		Center:     true,
	}
}

// MelProcessor computes log-mel spectrograms with gonum's FFT.
type MelProcessor struct {
	config     MelConfig
	melFilters [][]float64
	window     []float64
	fft        *fourier.FFT
}

func NewMelProcessor(config MelConfig) *MelProcessor {
	return &MelProcessor{
		config:     config,
		melFilters: createMelFilterbank(config.NFFT, config.NMels, config.SampleRate),
		window:     createHannWindow(config.WinLength),
		fft:        fourier.NewFFT(config.NFFT),
	}
}

// Compute returns the log-mel spectrogram [numFrames][nMels].
func (p *MelProcessor) Compute(samples []float32) ([][]float32, int) {
	var numFrames int
	if p.config.Center {
		numFrames = len(samples)/p.config.HopLength + 1
	} else if len(samples) >= p.config.WinLength {
		numFrames = (len(samples)-p.config.WinLength)/p.config.HopLength + 1
	} else {
		numFrames = 1
	}

	melSpec := make([][]float32, numFrames)
	for frame := 0; frame < numFrames; frame++ {
		var frameStart int
		if p.config.Center {
			frameStart = frame*p.config.HopLength - p.config.WinLength/2
		} else {
			frameStart = frame * p.config.HopLength
		}

		frameData := make([]float64, p.config.NFFT)
		for i := 0; i < p.config.WinLength; i++ {
			sampleIdx := frameStart + i
			if sampleIdx >= 0 && sampleIdx < len(samples) {
				frameData[i] = float64(samples[sampleIdx]) * p.window[i]
			}
		}

		coeffs := p.fft.Coefficients(nil, frameData)
		powerSpec := make([]float64, p.config.NFFT/2+1)
		for i := 0; i <= p.config.NFFT/2; i++ {
			re, im := real(coeffs[i]), imag(coeffs[i])
			powerSpec[i] = re*re + im*im
		}

		melSpec[frame] = make([]float32, p.config.NMels)
		for m := 0; m < p.config.NMels; m++ {
			sum := 0.0
			for k, pw := range powerSpec {
				sum += pw * p.melFilters[m][k]
			}
			if sum < 1e-9 {
				sum = 1e-9
			}
			melSpec[frame][m] = float32(math.Log(sum))
		}
	}

	return melSpec, numFrames
}

func createMelFilterbank(nFFT, nMels, sampleRate int) [][]float64 {
	hzToMel := func(hz float64) float64 { return 2595.0 * math.Log10(1.0+hz/700.0) }
	melToHz := func(mel float64) float64 { return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0) }

	numBins := nFFT/2 + 1
	fMax := float64(sampleRate) / 2.0

	allFreqs := make([]float64, numBins)
	for i := range allFreqs {
		allFreqs[i] = float64(i) * fMax / float64(numBins-1)
	}

	mMin, mMax := hzToMel(0), hzToMel(fMax)
	fPts := make([]float64, nMels+2)
	for i := range fPts {
		fPts[i] = melToHz(mMin + float64(i)*(mMax-mMin)/float64(nMels+1))
	}

	fDiff := make([]float64, nMels+1)
	for i := range fDiff {
		fDiff[i] = fPts[i+1] - fPts[i]
	}

	filters := make([][]float64, nMels)
	for m := 0; m < nMels; m++ {
		filters[m] = make([]float64, numBins)
		for k := 0; k < numBins; k++ {
			freq := allFreqs[k]
			lower := (freq - fPts[m]) / fDiff[m]
			upper := (fPts[m+2] - freq) / fDiff[m+1]
			val := math.Min(lower, upper)
			if val < 0 {
				val = 0
			}
			filters[m][k] = val
		}
	}
	return filters
}

func createHannWindow(size int) []float64 {
	w := make([]float64, size)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(size-1)))
	}
	return w
}
