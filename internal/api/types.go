package api

import "speakerdiarize/intervals"

// ControlMessage is the wire frame for the C9 control-plane (§4.9.1): a
// caller streams audio_chunk frames and receives segments frames back, one
// per RunOnlineSegmentation call. It rides the same JSON gRPC codec the
// reference used for its WebSocket-equivalent Message type.
type ControlMessage struct {
	Type string `json:"type"`

	SessionID string `json:"sessionId,omitempty"`
	Error     string `json:"error,omitempty"`

	// audio_chunk request fields
	Samples     []float32 `json:"samples,omitempty"`
	FrameStart  float64   `json:"frameStart,omitempty"`
	BufferStart float64   `json:"bufferStart,omitempty"`
	BufferEnd   float64   `json:"bufferEnd,omitempty"`
	// VadRanges are the VAD-positive ranges for this buffer (absolute
	// seconds), produced upstream by the vad collaborator; the
	// control-plane itself never runs VAD inline.
	VadRanges []Range `json:"vadRanges,omitempty"`

	// segments response fields
	Ranges     []Range `json:"ranges,omitempty"`
	Cumulative int     `json:"cumulative,omitempty"`
}

// Range is the JSON-over-the-wire shape of an intervals.Interval.
type Range struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func rangesFromIntervals(in []intervals.Interval) []Range {
	out := make([]Range, len(in))
	for i, iv := range in {
		out[i] = Range{Start: iv.Start, End: iv.End}
	}
	return out
}

func intervalsFromRanges(in []Range) []intervals.Interval {
	out := make([]intervals.Interval, len(in))
	for i, r := range in {
		out[i] = intervals.Interval{Start: r.Start, End: r.End}
	}
	return out
}
