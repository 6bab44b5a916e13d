package main

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"decant/internal/diag"
	"decant/internal/driver"
	"decant/internal/source"
)

func TestOutputPath(t *testing.T) {
	tests := []struct {
		input, dir, ext, want string
	}{
		{"src/list.c", "", ".rs", filepath.Join("src", "list.rs")},
		{"src/list.c", "out", ".rs", filepath.Join("out", "list.rs")},
		{"queue.c", "", ".report.json", "queue.report.json"},
	}
	for _, tt := range tests {
		if got := outputPath(tt.input, tt.dir, tt.ext); got != tt.want {
			t.Errorf("outputPath(%q, %q, %q) = %q, want %q", tt.input, tt.dir, tt.ext, got, tt.want)
		}
	}
}

func TestPendingDebounce(t *testing.T) {
	q := newPending(100 * time.Millisecond)
	start := time.Now()
	q.touch("b.c", start)
	q.touch("a.c", start)
	q.touch("c.c", start.Add(80*time.Millisecond))

	if got := q.due(start.Add(50 * time.Millisecond)); len(got) != 0 {
		t.Fatalf("due too early: %v", got)
	}
	if got := q.due(start.Add(120 * time.Millisecond)); !reflect.DeepEqual(got, []string{"a.c", "b.c"}) {
		t.Fatalf("due = %v", got)
	}
	// a second touch restarts the quiet period
	q.touch("c.c", start.Add(150*time.Millisecond))
	if got := q.due(start.Add(200 * time.Millisecond)); len(got) != 0 {
		t.Fatalf("c.c due before its quiet period: %v", got)
	}
	if got := q.due(start.Add(260 * time.Millisecond)); !reflect.DeepEqual(got, []string{"c.c"}) {
		t.Fatalf("due = %v", got)
	}
}

func TestRelevant(t *testing.T) {
	tests := []struct {
		ev   fsnotify.Event
		want bool
	}{
		{fsnotify.Event{Name: "a.c", Op: fsnotify.Write}, true},
		{fsnotify.Event{Name: "a.c", Op: fsnotify.Create}, true},
		{fsnotify.Event{Name: "a.c", Op: fsnotify.Chmod}, false},
		{fsnotify.Event{Name: "a.c", Op: fsnotify.Remove}, false},
		{fsnotify.Event{Name: "a.rs", Op: fsnotify.Write}, false},
	}
	for _, tt := range tests {
		if got := relevant(tt.ev); got != tt.want {
			t.Errorf("relevant(%v) = %v, want %v", tt.ev, got, tt.want)
		}
	}
}

func TestFlagValues(t *testing.T) {
	if m, err := readUIMode(" ON "); err != nil || m != uiModeOn {
		t.Errorf("readUIMode(ON) = %v, %v", m, err)
	}
	if _, err := readUIMode("sometimes"); err == nil {
		t.Error("readUIMode accepted an invalid value")
	}
	if !shouldUseTUI(uiModeOn, 1) || shouldUseTUI(uiModeOff, 10) {
		t.Error("explicit ui modes ignored")
	}
	if f, err := readDiagFormat("SARIF"); err != nil || f != diagSarif {
		t.Errorf("readDiagFormat(SARIF) = %v, %v", f, err)
	}
	if _, err := readDiagFormat("xml"); err == nil {
		t.Error("readDiagFormat accepted xml")
	}
}

func TestAtLeastFiltersCopies(t *testing.T) {
	r := &driver.Result{Path: "a.c", Diagnostics: []diag.Diagnostic{
		diag.New(diag.SevInfo, diag.OwnInconclusive, source.Span{}, "raw"),
		diag.NewWarning(diag.OwnDoubleFree, source.Span{}, "twice"),
	}}
	min, err := readMinSeverity("warning")
	if err != nil {
		t.Fatal(err)
	}
	got := atLeast([]*driver.Result{r}, min)
	if len(got[0].Diagnostics) != 1 || got[0].Diagnostics[0].Code != diag.OwnDoubleFree {
		t.Errorf("filtered = %+v", got[0].Diagnostics)
	}
	if len(r.Diagnostics) != 2 {
		t.Error("input result modified")
	}
	if _, err := readMinSeverity("loud"); err == nil {
		t.Error("expected error for unknown severity")
	}
}
