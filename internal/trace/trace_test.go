package trace

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestStreamTracerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelPhase, FormatText)

	Begin(tr, ScopePass, "bridge", 0).End("")
	Begin(tr, ScopeFunc, "ownership", 0).End("")

	out := buf.String()
	if !strings.Contains(out, "bridge") {
		t.Errorf("pass span missing:\n%s", out)
	}
	if strings.Contains(out, "ownership") {
		t.Errorf("func span should be filtered at phase level:\n%s", out)
	}
}

func TestRingTracerWraps(t *testing.T) {
	tr := NewRingTracer(2, LevelDebug)
	for _, name := range []string{"a", "b", "c"} {
		Point(tr, ScopeNode, name, "", 0)
	}
	snap := tr.Snapshot()
	if len(snap) != 2 || snap[0].Name != "b" || snap[1].Name != "c" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestMultiTracerSkipsDisabled(t *testing.T) {
	a, b := NewRingTracer(4, LevelDebug), NewRingTracer(4, LevelDebug)
	m := NewMultiTracer(LevelDebug, a, Nop, b)
	Point(m, ScopeNode, "x", "", 0)
	if len(a.Snapshot()) != 1 || len(b.Snapshot()) != 1 {
		t.Fatal("event not fanned out")
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if NewMultiTracer(LevelDebug, Nop).Enabled() {
		t.Error("multi tracer over Nop only should be disabled")
	}
}

func TestContextPropagation(t *testing.T) {
	ctx := context.Background()
	if FromContext(ctx) != Nop {
		t.Fatal("empty context should yield Nop")
	}
	tr := NewRingTracer(8, LevelDebug)
	ctx = WithTracer(ctx, tr)
	sp := Begin(FromContext(ctx), ScopeDriver, "translate", 0)
	ctx = WithParent(ctx, sp)
	if ParentFromContext(ctx) != sp.ID() {
		t.Errorf("parent = %d, want %d", ParentFromContext(ctx), sp.ID())
	}
}

func TestNDJSONFormat(t *testing.T) {
	ev := &Event{Kind: KindPoint, Scope: ScopeNode, Name: "decision", Detail: "p: Box"}
	line := string(FormatEvent(ev, FormatNDJSON))
	if !strings.Contains(line, `"name":"decision"`) || !strings.HasSuffix(line, "\n") {
		t.Errorf("bad ndjson: %q", line)
	}
}

func TestParseLevel(t *testing.T) {
	if lvl, err := ParseLevel("DETAIL"); err != nil || lvl != LevelDetail {
		t.Errorf("ParseLevel(DETAIL) = %v, %v", lvl, err)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}
