package audioio

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func writeTestWAV(t *testing.T, path string, samples []int16, sampleRate, channels int) {
	t.Helper()

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	dataSize := uint32(len(samples) * 2)
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	byteRate := uint32(sampleRate * channels * 2)
	binary.Write(&buf, binary.LittleEndian, byteRate)
	binary.Write(&buf, binary.LittleEndian, uint16(channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataSize)
	for _, s := range samples {
		binary.Write(&buf, binary.LittleEndian, s)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("write test wav: %v", err)
	}
}

func TestReadWAVMonoPCM16(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wav")
	writeTestWAV(t, path, []int16{0, 16384, -16384, 32767}, 16000, 1)

	samples, info, err := ReadWAVMono(path)
	if err != nil {
		t.Fatalf("ReadWAVMono: %v", err)
	}
	if info.SampleRate != 16000 || info.Channels != 1 {
		t.Fatalf("unexpected info: %+v", info)
	}
	if len(samples) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(samples))
	}
	if samples[0] != 0 {
		t.Fatalf("expected first sample 0, got %f", samples[0])
	}
}

func TestReadWAVMonoStereoDownmix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	// L,R pairs: (0,0), (16384,-16384) -> mono should be (0, 0)
	writeTestWAV(t, path, []int16{0, 0, 16384, -16384}, 16000, 2)

	samples, _, err := ReadWAVMono(path)
	if err != nil {
		t.Fatalf("ReadWAVMono: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 mono frames, got %d", len(samples))
	}
	if samples[1] != 0 {
		t.Fatalf("expected downmixed frame to average to ~0, got %f", samples[1])
	}
}

func TestReadWAVMonoMissingFile(t *testing.T) {
	if _, _, err := ReadWAVMono("/nonexistent/path.wav"); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}
