package diag

import (
	"strings"
	"testing"

	"decant/internal/source"
)

func TestBagLimitAndDropped(t *testing.T) {
	b := NewBag(2)
	for i := 0; i < 4; i++ {
		b.Add(NewWarning(OwnDoubleFree, source.Span{Start: uint32(i)}, "x"))
	}
	if b.Len() != 2 || b.Dropped() != 2 {
		t.Fatalf("len=%d dropped=%d, want 2/2", b.Len(), b.Dropped())
	}
}

func TestBagSortAndDedup(t *testing.T) {
	b := NewBag(10)
	b.Add(NewWarning(LckUnprotectedAccess, source.Span{Start: 9, End: 10}, "late"))
	b.Add(NewError(BldGoto, source.Span{Start: 1, End: 2}, "early"))
	b.Add(NewError(BldGoto, source.Span{Start: 1, End: 2}, "early"))
	b.Dedup()
	b.Sort()
	items := b.Items()
	if len(items) != 2 {
		t.Fatalf("expected 2 items after dedup, got %d", len(items))
	}
	if items[0].Code != BldGoto {
		t.Errorf("first item = %s, want %s", items[0].Code.ID(), BldGoto.ID())
	}
	if !b.HasErrors() {
		t.Error("HasErrors should be true")
	}
}

func TestCodeID(t *testing.T) {
	tests := map[Code]string{
		ParSyntax:            "PAR1001",
		BldGoto:              "BLD2003",
		OwnDoubleFree:        "OWN3001",
		LckPotentialDeadlock: "LCK4003",
		LftDanglingReference: "LFT5001",
		GenFallback:          "GEN6001",
		CfgVersionMismatch:   "CFG7002",
		UnknownCode:          "E0000",
	}
	for code, want := range tests {
		if got := code.ID(); got != want {
			t.Errorf("%d.ID() = %s, want %s", code, got, want)
		}
	}
}

func TestDedupReporter(t *testing.T) {
	bag := NewBag(10)
	r := NewDedupReporter(BagReporter{Bag: bag})
	sp := source.Span{Start: 3, End: 4}
	ReportWarning(r, OwnUseAfterFree, sp, "p used after free").Emit()
	ReportWarning(r, OwnUseAfterFree, sp, "p used after free").Emit()
	if bag.Len() != 1 {
		t.Fatalf("expected 1 diagnostic, got %d", bag.Len())
	}
}

func TestFormatShort(t *testing.T) {
	fs := source.NewFileSet()
	id := fs.AddVirtual("m.c", []byte("int a;\nint b;\n"))
	d := NewWarning(OwnForgottenFree, source.Span{File: id, Start: 7, End: 12}, "leak").
		WithNote(source.Span{File: id, Start: 0, End: 3}, "allocated here")
	out := FormatShort([]Diagnostic{d}, fs, true)
	if !strings.HasPrefix(out, "m.c:2:1: WARNING OWN3003: leak\n") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "note: m.c:1:1: allocated here") {
		t.Errorf("note missing:\n%s", out)
	}
}

func TestDedupReporterKeepsFirstPerSite(t *testing.T) {
	b := NewBag(10)
	r := NewDedupReporter(BagReporter{Bag: b})
	sp := source.Span{Start: 4, End: 11}
	ReportWarning(r, OwnDoubleFree, sp, "p freed on path 1").Emit()
	ReportWarning(r, OwnDoubleFree, sp, "p freed on path 2").Emit()
	ReportWarning(r, OwnUseAfterFree, sp, "p used").Emit()
	if b.Len() != 2 || r.Suppressed() != 1 {
		t.Fatalf("len=%d suppressed=%d, want 2/1", b.Len(), r.Suppressed())
	}
	if got := b.Items()[0].Message; got != "p freed on path 1" {
		t.Errorf("kept %q", got)
	}
}

func TestParseSeverity(t *testing.T) {
	for in, want := range map[string]Severity{"info": SevInfo, " Warn": SevWarning, "ERROR": SevError} {
		got, ok := ParseSeverity(in)
		if !ok || got != want {
			t.Errorf("ParseSeverity(%q) = %v, %v", in, got, ok)
		}
	}
	if _, ok := ParseSeverity("fatal"); ok {
		t.Error("fatal accepted")
	}
	if SevWarning.SarifLevel() != "warning" || SevInfo.SarifLevel() != "note" {
		t.Error("sarif levels")
	}
}
