package vadproc

import "speakerdiarize/intervals"

// TSVADParams controls the hysteresis smoothing applied to a per-speaker 0/1
// activation column before it becomes RTTM intervals (§4.7, "TS-VAD
// smoothing"). Values are in seconds; HopSec is the frame hop.
type TSVADParams struct {
	MinDurationOn  float64 // minimum contiguous "on" run to keep
	MinDurationOff float64 // minimum "off" run before a run is considered to have ended
	PadOnset       float64 // seconds subtracted from a kept run's start
	PadOffset      float64 // seconds added to a kept run's end
	HopSec         float64 // seconds per frame
}

// TSVADPostProcessing converts a per-frame 0/1 activation column into a list
// of [start_s, end_s] intervals with hysteresis debouncing, grounded on the
// reference's DetectSpeechRegions state machine (confirm/silence window
// counters) generalized from a fixed window count to a seconds-based
// threshold so it composes with any hop length.
func TSVADPostProcessing(active []bool, p TSVADParams) []intervals.Interval {
	if len(active) == 0 || p.HopSec <= 0 {
		return nil
	}

	onFrames := int(p.MinDurationOn / p.HopSec)
	if onFrames < 1 {
		onFrames = 1
	}
	offFrames := int(p.MinDurationOff / p.HopSec)
	if offFrames < 1 {
		offFrames = 1
	}

	var raw []intervals.Interval
	inRun := false
	runStart := 0
	onCount, offCount := 0, 0

	for i, v := range active {
		if v {
			offCount = 0
			onCount++
			if !inRun && onCount >= onFrames {
				inRun = true
				runStart = i - (onFrames - 1)
				if runStart < 0 {
					runStart = 0
				}
			}
		} else {
			onCount = 0
			if inRun {
				offCount++
				if offCount >= offFrames {
					end := i - offFrames
					raw = append(raw, frameInterval(runStart, end+1, p.HopSec))
					inRun = false
					offCount = 0
				}
			}
		}
	}
	if inRun {
		raw = append(raw, frameInterval(runStart, len(active), p.HopSec))
	}

	padded := make([]intervals.Interval, len(raw))
	for i, iv := range raw {
		start := iv.Start - p.PadOnset
		if start < 0 {
			start = 0
		}
		padded[i] = intervals.Interval{Start: start, End: iv.End + p.PadOffset}
	}

	return intervals.MergeFloatIntervals(padded, 5, 2)
}

func frameInterval(startFrame, endFrame int, hopSec float64) intervals.Interval {
	return intervals.Interval{Start: float64(startFrame) * hopSec, End: float64(endFrame) * hopSec}
}
