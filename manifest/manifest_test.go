package manifest

import (
	"strings"
	"testing"

	"speakerdiarize/intervals"
)

func TestLoadManifestUniqIDFallback(t *testing.T) {
	data := `{"audio_filepath": "/data/foo/bar.wav"}`
	m, order, err := LoadManifest(strings.NewReader(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 1 || order[0] != "bar" {
		t.Fatalf("expected fallback uniq_id 'bar', got %v", order)
	}
	if m["bar"].AudioFilepath != "/data/foo/bar.wav" {
		t.Errorf("unexpected session: %+v", m["bar"])
	}
}

func TestLoadManifestDuplicateUniqIDFatal(t *testing.T) {
	data := `{"audio_filepath": "/a.wav", "uniq_id": "s1"}
{"audio_filepath": "/b.wav", "uniq_id": "s1"}`
	_, _, err := LoadManifest(strings.NewReader(data))
	if err == nil {
		t.Fatal("expected fatal error for duplicate uniq_id")
	}
}

func TestLoadManifestMissingAudioFilepath(t *testing.T) {
	_, _, err := LoadManifest(strings.NewReader(`{"uniq_id": "s1"}`))
	if err == nil {
		t.Fatal("expected error for missing audio_filepath")
	}
}

func TestParseRTTMAndFormatRoundtrip(t *testing.T) {
	line := FormatRTTMLine("sess1", 1.23456, 4.5, "speaker_0")
	lines, err := ParseRTTM(strings.NewReader(line))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	got := lines[0]
	if got.UniqID != "sess1" || got.Speaker != "speaker_0" {
		t.Errorf("unexpected parse: %+v", got)
	}
	if d := got.Start - 1.235; d > 1e-9 || d < -1e-9 {
		t.Errorf("expected rounded start 1.235, got %v", got.Start)
	}
}

func TestOracleVADSegmentsMerge(t *testing.T) {
	lines := []RTTMLine{
		{UniqID: "s1", Start: 0, Dur: 5},
		{UniqID: "s1", Start: 4, Dur: 4},
		{UniqID: "s1", Start: 20, Dur: 1},
	}
	got := OracleVADSegments(lines, nil, nil)
	if len(got) != 2 {
		t.Fatalf("expected 2 merged intervals, got %v", got)
	}
}

func TestOracleVADSegmentsClipToOffsetDuration(t *testing.T) {
	offset, duration := 2.0, 3.0
	lines := []RTTMLine{{UniqID: "s1", Start: 0, Dur: 10}}
	got := OracleVADSegments(lines, &offset, &duration)
	if len(got) != 1 || got[0].Start != 2 || got[0].End != 5 {
		t.Fatalf("expected clip to [2,5], got %v", got)
	}
}

func TestValidateVADManifestDropsEmptySessions(t *testing.T) {
	input := map[string][]intervals.Interval{
		"s1": {{Start: 0, End: 1}},
		"s2": {},
	}
	kept, dropped, err := ValidateVADManifest(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(kept) != 1 || kept["s1"] == nil {
		t.Fatalf("expected s1 kept, got %v", kept)
	}
	if len(dropped) != 1 || dropped[0] != "s2" {
		t.Fatalf("expected s2 dropped, got %v", dropped)
	}
}

func TestValidateVADManifestAllEmptyIsFatal(t *testing.T) {
	input := map[string][]intervals.Interval{"s1": {}, "s2": {}}
	_, _, err := ValidateVADManifest(input)
	if err == nil {
		t.Fatal("expected fatal error when every session has empty VAD")
	}
}
