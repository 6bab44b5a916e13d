package ui

import (
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"

	"decant/internal/driver"
)

func TestApplyEventTracksStages(t *testing.T) {
	events := make(chan driver.Event)
	m := NewProgressModel("translating", []string{"a.c", "b.c"}, events).(*progressModel)

	m.applyEvent(driver.Event{File: "a.c", Stage: driver.StageAnalyze})
	m.applyEvent(driver.Event{File: "b.c", Stage: driver.StageDone, Status: driver.StatusFailed})
	m.applyEvent(driver.Event{File: "unknown.c", Stage: driver.StageDone})

	if got := itemLabel(m.items[0]); got != "analyze" {
		t.Fatalf("label of a.c = %q", got)
	}
	if got := itemLabel(m.items[1]); got != "failed" {
		t.Fatalf("label of b.c = %q", got)
	}
	view := m.View()
	if !strings.Contains(view, "translating 1/2") {
		t.Fatalf("header missing from view:\n%s", view)
	}
}

func TestDoneMessageQuits(t *testing.T) {
	events := make(chan driver.Event)
	close(events)
	m := NewProgressModel("t", []string{"a.c"}, events)
	msg := m.(*progressModel).listenForEvent()()
	if _, ok := msg.(doneMsg); !ok {
		t.Fatalf("closed channel produced %T", msg)
	}
	m, cmd := m.Update(msg)
	if cmd == nil || !m.(*progressModel).done {
		t.Fatal("model did not finish")
	}
}

func TestTruncateKeepsTail(t *testing.T) {
	got := truncate("very/long/directory/name/file.c", 12)
	if !strings.HasSuffix(got, "file.c") || !strings.HasPrefix(got, "...") {
		t.Fatalf("truncate = %q", got)
	}
	if runewidth.StringWidth(got) > 12 {
		t.Fatalf("truncate(%q) is wider than 12", got)
	}
	if got := truncate("a.c", 12); got != "a.c" {
		t.Fatalf("short value changed: %q", got)
	}
}
