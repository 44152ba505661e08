package emit

import (
	"bytes"
	"strings"
	"testing"

	"speakerdiarize/intervals"
	"speakerdiarize/msdd"
)

func TestSingleSpeakerSingleScaleRTTM(t *testing.T) {
	// Scenario 1 from §8: one 5s speech range, all-zero labels -> one RTTM
	// line 0.000 5.000 speaker_0.
	act := msdd.Activation{{true}}
	ts := []intervals.Interval{{Start: 0, End: 5}}
	si := FromActivation(act, ts, nil)
	lines := si.SortedLines()
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	var buf bytes.Buffer
	if err := WriteRTTM(&buf, "s", lines); err != nil {
		t.Fatal(err)
	}
	want := "SPEAKER s 1 0.000 5.000 <NA> <NA> speaker_0 <NA> <NA>\n"
	if buf.String() != want {
		t.Fatalf("got %q want %q", buf.String(), want)
	}
}

func TestTwoSpeakerAlternatingMerges(t *testing.T) {
	var act msdd.Activation
	var ts []intervals.Interval
	for i := 0; i < 10; i++ {
		row := make([]bool, 2)
		if i%2 == 0 {
			row[0] = true
		} else {
			row[1] = true
		}
		act = append(act, row)
		ts = append(ts, intervals.Interval{Start: float64(i), End: float64(i + 1)})
	}
	si := FromActivation(act, ts, nil)
	// speaker_0 occupies frames 0,2,4,6,8 -- each isolated by a gap, so
	// merge should NOT combine them (adjacent-but-not-overlapping via the
	// other speaker's frame in between).
	if len(si["speaker_0"]) == 0 {
		t.Fatal("expected speaker_0 intervals")
	}
	if len(si["speaker_1"]) == 0 {
		t.Fatal("expected speaker_1 intervals")
	}
}

func TestLinesSortedByStart(t *testing.T) {
	si := SpeakerIntervals{
		"speaker_1": {{Start: 5, End: 6}},
		"speaker_0": {{Start: 1, End: 2}},
	}
	lines := si.SortedLines()
	if lines[0].Start != 1 || lines[1].Start != 5 {
		t.Fatalf("lines not sorted: %+v", lines)
	}
}

func TestWriteJSONFields(t *testing.T) {
	lines := []Line{{Speaker: "speaker_0", Start: 0, End: 1.5}}
	var buf bytes.Buffer
	if err := WriteJSON(&buf, "foo.wav", lines); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{`"start_time"`, `"end_time"`, `"offset"`, `"duration"`, `"speaker"`, `"audio_filepath"`, `"words"`, `"text"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected json to contain %s, got %s", want, out)
		}
	}
}

func TestChangeOutputDirNamesVerbose(t *testing.T) {
	dirs := ChangeOutputDirNames("/out", "sys", 0.12, true)
	if !strings.HasSuffix(dirs.RTTMDir, "pred_rttms_T0.12") {
		t.Fatalf("got %q", dirs.RTTMDir)
	}
	if !strings.HasSuffix(dirs.JSONDir, "pred_jsons_T0.12") {
		t.Fatalf("got %q", dirs.JSONDir)
	}
}

func TestChangeOutputDirNamesNonVerboseCollapsesSuffix(t *testing.T) {
	dirs := ChangeOutputDirNames("/out", "sys", 0.5, false)
	if !strings.HasSuffix(dirs.RTTMDir, "pred_rttms_T") {
		t.Fatalf("got %q", dirs.RTTMDir)
	}
	if !strings.HasSuffix(dirs.JSONDir, "pred_jsons_T") {
		t.Fatalf("got %q", dirs.JSONDir)
	}
}
