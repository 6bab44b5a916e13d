package observ

import (
	"strings"
	"testing"
	"time"
)

func TestTimerReport(t *testing.T) {
	tm := NewTimer()
	idx := tm.Begin("parse")
	tm.End(idx, "3 funcs")
	tm.Add("ownership", 2*time.Millisecond, "")

	rep := tm.Report()
	if len(rep.Phases) != 2 {
		t.Fatalf("expected 2 phases, got %d", len(rep.Phases))
	}
	if rep.Phases[1].DurationMS != 2 {
		t.Errorf("ownership = %v ms, want 2", rep.Phases[1].DurationMS)
	}
	if rep.TotalMS < 2 {
		t.Errorf("total %v should include added phase", rep.TotalMS)
	}
	if s := tm.Summary(); !strings.Contains(s, "// 3 funcs") {
		t.Errorf("summary missing note:\n%s", s)
	}
}

func TestTimerEndOutOfRange(t *testing.T) {
	tm := NewTimer()
	tm.End(5, "ignored")
	if len(tm.Report().Phases) != 0 {
		t.Error("End with bad index must not add phases")
	}
}
