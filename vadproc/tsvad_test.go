package vadproc

import "testing"

func TestTSVADPostProcessingBasicRun(t *testing.T) {
	active := make([]bool, 20)
	for i := 5; i < 15; i++ {
		active[i] = true
	}
	p := TSVADParams{MinDurationOn: 0.02, MinDurationOff: 0.02, HopSec: 0.01}
	out := TSVADPostProcessing(active, p)
	if len(out) != 1 {
		t.Fatalf("expected a single merged interval, got %v", out)
	}
	if out[0].Start > 0.06 || out[0].End < 0.14 {
		t.Errorf("interval %v does not cover the active run", out[0])
	}
}

func TestTSVADPostProcessingAllBelowThreshold(t *testing.T) {
	active := make([]bool, 10)
	out := TSVADPostProcessing(active, TSVADParams{MinDurationOn: 0.01, MinDurationOff: 0.01, HopSec: 0.01})
	if len(out) != 0 {
		t.Errorf("expected no intervals when nothing is active, got %v", out)
	}
}

func TestTSVADPostProcessingEndsWhileActive(t *testing.T) {
	active := []bool{false, false, true, true, true}
	out := TSVADPostProcessing(active, TSVADParams{MinDurationOn: 0.02, MinDurationOff: 0.05, HopSec: 0.01})
	if len(out) != 1 {
		t.Fatalf("expected one trailing interval, got %v", out)
	}
	if out[0].End != 0.05 {
		t.Errorf("expected run to close at buffer end (0.05), got %v", out[0].End)
	}
}
