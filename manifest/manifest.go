// Package manifest loads session descriptors from a JSON-lines manifest,
// builds the AUDIO_RTTM_MAP session directory, and reads/writes the RTTM
// line format shared by the oracle-VAD path (C2) and the output emitter
// (C8).
package manifest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"speakerdiarize/intervals"
)

// Session is one manifest record: the session descriptor from §3.
type Session struct {
	UniqID        string   `json:"uniq_id,omitempty"`
	AudioFilepath string   `json:"audio_filepath"`
	RTTMFilepath  string   `json:"rttm_filepath,omitempty"`
	Offset        *float64 `json:"offset,omitempty"`
	Duration      *float64 `json:"duration,omitempty"`
	NumSpeakers   *int     `json:"num_speakers,omitempty"`
	UEMFilepath   string   `json:"uem_filepath,omitempty"`
	CTMFilepath   string   `json:"ctm_filepath,omitempty"`
	Text          string   `json:"text,omitempty"`
}

// AudioRTTMMap is the session directory: uniq_id -> Session, built once at
// manifest load time and read-only thereafter (§5).
type AudioRTTMMap map[string]*Session

// LoadManifest reads a JSON-lines manifest. uniq_id falls back to the audio
// filename stem. A duplicate uniq_id across the manifest is a fatal
// configuration error (§3 invariant).
func LoadManifest(r io.Reader) (AudioRTTMMap, []string, error) {
	out := make(AudioRTTMMap)
	var order []string

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var sess Session
		if err := json.Unmarshal([]byte(line), &sess); err != nil {
			return nil, nil, fmt.Errorf("manifest: line %d: %w", lineNo, err)
		}
		if sess.AudioFilepath == "" {
			return nil, nil, fmt.Errorf("manifest: line %d: missing required audio_filepath", lineNo)
		}
		if sess.UniqID == "" {
			sess.UniqID = stem(sess.AudioFilepath)
		}
		if _, dup := out[sess.UniqID]; dup {
			return nil, nil, fmt.Errorf("manifest: duplicate uniq_id %q at line %d", sess.UniqID, lineNo)
		}
		s := sess
		out[s.UniqID] = &s
		order = append(order, s.UniqID)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("manifest: %w", err)
	}
	return out, order, nil
}

// LoadManifestFile is a convenience wrapper opening path and calling
// LoadManifest.
func LoadManifestFile(path string) (AudioRTTMMap, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("manifest: %w", err)
	}
	defer f.Close()
	return LoadManifest(f)
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// RTTMLine is one parsed "SPEAKER ..." record.
type RTTMLine struct {
	UniqID  string
	Start   float64
	Dur     float64
	Speaker string
}

// ParseRTTM reads standard NIST RTTM: field [3]=start, [4]=duration,
// [7]=speaker (0-indexed), and ignores any non-SPEAKER lines.
func ParseRTTM(r io.Reader) ([]RTTMLine, error) {
	var out []RTTMLine
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 8 || fields[0] != "SPEAKER" {
			continue
		}
		start, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return nil, fmt.Errorf("manifest: bad RTTM start %q: %w", fields[3], err)
		}
		dur, err := strconv.ParseFloat(fields[4], 64)
		if err != nil {
			return nil, fmt.Errorf("manifest: bad RTTM duration %q: %w", fields[4], err)
		}
		out = append(out, RTTMLine{UniqID: fields[1], Start: start, Dur: dur, Speaker: fields[7]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	return out, nil
}

// FormatRTTMLine writes one "SPEAKER" record, 3-decimal floats, channel
// fixed to 1, 10 whitespace-separated fields — the shape the output emitter
// (C8) reuses for writing.
func FormatRTTMLine(uniqID string, start, dur float64, speaker string) string {
	return fmt.Sprintf("SPEAKER %s 1 %.3f %.3f <NA> <NA> %s <NA> <NA>", uniqID, round3(start), round3(dur), speaker)
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}

// OracleVADSegments reads a session's RTTM (or VAD table) and produces the
// merged, offset/duration-clipped speech intervals used as the oracle-VAD
// segments manifest (§4.2). lines should already be filtered to the
// session's uniq_id.
func OracleVADSegments(lines []RTTMLine, offset, duration *float64) []intervals.Interval {
	raw := make([]intervals.Interval, 0, len(lines))
	lo, hi := math.Inf(-1), math.Inf(1)
	if offset != nil {
		lo = *offset
	}
	if duration != nil && offset != nil {
		hi = *offset + *duration
	} else if duration != nil {
		hi = *duration
	}
	for _, l := range lines {
		start := math.Max(l.Start, lo)
		end := math.Min(l.Start+l.Dur, hi)
		if end > start {
			raw = append(raw, intervals.Interval{Start: start, End: end})
		}
	}
	return intervals.MergeFloatIntervals(raw, 5, 2)
}

// ValidateVADManifest drops sessions with no speech intervals at all,
// returning the survivors and the dropped uniq_ids (recoverable anomaly,
// §7.3). It is fatal (returns an error) only when every session is empty.
func ValidateVADManifest(bySession map[string][]intervals.Interval) (kept map[string][]intervals.Interval, dropped []string, err error) {
	kept = make(map[string][]intervals.Interval, len(bySession))
	for id, ivs := range bySession {
		if len(ivs) == 0 {
			dropped = append(dropped, id)
			continue
		}
		kept[id] = ivs
	}
	if len(kept) == 0 && len(bySession) > 0 {
		return nil, dropped, fmt.Errorf("manifest: all %d sessions have empty VAD", len(bySession))
	}
	return kept, dropped, nil
}
