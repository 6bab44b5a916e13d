package report_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fatih/color"

	"decant/internal/codegen"
	"decant/internal/dataflow"
	"decant/internal/lifetime"
	"decant/internal/locks"
	"decant/internal/ownership"
	"decant/internal/patterns"
	"decant/internal/report"
	"decant/internal/stdlib"
	"decant/internal/testkit"
)

func build(t *testing.T, lines ...string) *report.AnalysisReport {
	t.Helper()
	mod := testkit.Lower(t, testkit.Lines(lines...))
	ctx := context.Background()
	an := dataflow.NewAnalyzer(mod, stdlib.Builtin())
	graphs := make([]*dataflow.Graph, len(mod.Funcs))
	for i, fn := range mod.Funcs {
		graphs[i] = an.Build(fn)
	}
	own := ownership.InferModule(ctx, graphs, ownership.DefaultConfig())
	lts := make([]*lifetime.Result, len(graphs))
	for i, g := range graphs {
		lts[i] = lifetime.Analyze(g, own.Func(mod.Funcs[i].ID))
	}
	analysis := &codegen.Analysis{
		Graphs:    graphs,
		Ownership: own,
		Lifetimes: lts,
		Structs:   lifetime.AnalyzeStructs(mod),
		Locks:     locks.AnalyzeModule(ctx, graphs, locks.DefaultConfig()),
		Hints:     patterns.DetectModule(ctx, graphs, patterns.NewIndex(mod)),
	}
	g := codegen.New(mod, analysis, codegen.Config{})
	funcs := make([]codegen.FuncOutput, len(mod.Funcs))
	for i := range mod.Funcs {
		funcs[i] = g.Func(i)
	}
	out := g.Assemble(funcs)
	return report.Build(report.Input{
		Path:     "test.c",
		Module:   mod,
		Analysis: analysis,
		Output:   out,
		Structs:  g.Structs(),
		Globals:  g.Globals(),
	})
}

func function(t *testing.T, r *report.AnalysisReport, name string) *report.FuncReport {
	t.Helper()
	for i := range r.Functions {
		if r.Functions[i].Name == name {
			return &r.Functions[i]
		}
	}
	t.Fatalf("no report for %s", name)
	return nil
}

func decision(t *testing.T, f *report.FuncReport, name string) report.Decision {
	t.Helper()
	for _, d := range f.Decisions {
		if d.Name == name {
			return d
		}
	}
	t.Fatalf("%s: no decision for %s", f.Name, name)
	return report.Decision{}
}

func TestSearchReturnsOptionalIndex(t *testing.T) {
	r := build(t,
		"#include <stddef.h>",
		"int *find(int *arr, int len, int target) {",
		"    for (int i = 0; i < len; i++) {",
		"        if (arr[i] == target) return &arr[i];",
		"    }",
		"    return NULL;",
		"}",
	)
	f := function(t, r, "find")
	arr := decision(t, f, "arr")
	if arr.Kind != "Slice" || arr.Length != "len" {
		t.Errorf("arr = %s paired with %q, want Slice paired with len", arr.Kind, arr.Length)
	}
	if len(arr.Reasoning) == 0 {
		t.Errorf("arr has no reasoning")
	}
	if f.Return.Shape != "OptionIndex" {
		t.Errorf("return shape = %s", f.Return.Shape)
	}
	if r.Summary.Decisions["Slice"] != 1 {
		t.Errorf("summary decisions = %v", r.Summary.Decisions)
	}
}

func TestDoubleFreeIsReported(t *testing.T) {
	r := build(t,
		"#include <stdlib.h>",
		"void twice(int n) {",
		"    char *p = malloc(n);",
		"    free(p);",
		"    free(p);",
		"}",
	)
	f := function(t, r, "twice")
	p := decision(t, f, "p")
	if p.Kind != "Unknown" {
		t.Errorf("p = %s, want Unknown", p.Kind)
	}
	found := false
	for _, df := range p.Defects {
		found = found || df.Kind == "DoubleFree"
	}
	if !found {
		t.Errorf("no DoubleFree defect in %+v", p.Defects)
	}
	if len(f.Fallbacks) == 0 || r.Summary.Fallbacks != len(r.AllFallbacks()) {
		t.Errorf("fallbacks: func %d, summary %d, all %d", len(f.Fallbacks), r.Summary.Fallbacks, len(r.AllFallbacks()))
	}
	for i, fb := range r.AllFallbacks() {
		if fb.ID != i+1 {
			t.Errorf("fallback %d has id %d", i, fb.ID)
		}
	}
}

func TestUnprotectedAccessIsReported(t *testing.T) {
	r := build(t,
		"#include <pthread.h>",
		"pthread_mutex_t lock = PTHREAD_MUTEX_INITIALIZER;",
		"int x;",
		"void inc(void) {",
		"    pthread_mutex_lock(&lock);",
		"    x++;",
		"    pthread_mutex_unlock(&lock);",
		"}",
		"void dec(void) {",
		"    pthread_mutex_lock(&lock);",
		"    x--;",
		"    pthread_mutex_unlock(&lock);",
		"}",
		"void reset(void) {",
		"    x = 0;",
		"}",
	)
	total := 0
	for _, f := range r.Functions {
		for _, v := range f.Violations {
			if v.Kind == "UnprotectedAccess" {
				total++
				if f.Name != "reset" {
					t.Errorf("violation in %s, want reset", f.Name)
				}
			}
		}
	}
	if total != 1 {
		t.Errorf("got %d UnprotectedAccess violations, want 1", total)
	}
	if len(r.Mapping) != 1 || r.Mapping[0].Lock != "lock" || len(r.Mapping[0].Vars) != 1 || r.Mapping[0].Vars[0].Name != "x" {
		t.Errorf("mapping = %+v, want lock -> {x}", r.Mapping)
	}
	if len(function(t, r, "inc").Regions) != 1 {
		t.Errorf("inc regions = %+v", function(t, r, "inc").Regions)
	}
}

func TestStructStrategies(t *testing.T) {
	r := build(t,
		"struct node { int value; struct node *next; };",
		"int first(struct node *n) { return n->value; }",
	)
	if len(r.Structs) != 1 || r.Structs[0].Strategy != "tree" || r.Structs[0].Rust != "Node" {
		t.Errorf("structs = %+v", r.Structs)
	}
}

func TestWriteJSON(t *testing.T) {
	r := build(t, "int add(int a, int b) { return a + b; }")
	var buf bytes.Buffer
	if err := report.WriteJSON(&buf, r); err != nil {
		t.Fatal(err)
	}
	var back map[string]any
	if err := json.Unmarshal(buf.Bytes(), &back); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if back["tool"] != "decant" || back["file"] != "test.c" {
		t.Errorf("header = %v %v", back["tool"], back["file"])
	}
	if _, ok := back["summary"].(map[string]any); !ok {
		t.Errorf("summary missing: %s", buf.String())
	}
}

func TestWriteTextAndAudit(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	r := build(t,
		"#include <stdlib.h>",
		"void twice(int n) {",
		"    char *p = malloc(n);",
		"    free(p);",
		"    free(p);",
		"}",
	)
	var text bytes.Buffer
	if err := report.WriteText(&text, r, report.TextOpts{Reasoning: true}); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"fn twice", "Unknown", "DoubleFree", "FALLBACK#1"} {
		if !strings.Contains(text.String(), want) {
			t.Errorf("text report lacks %q:\n%s", want, text.String())
		}
	}

	var audit bytes.Buffer
	if err := report.WriteAudit(&audit, []*report.AnalysisReport{r}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(audit.String(), "in twice") || !strings.Contains(audit.String(), "construct") {
		t.Errorf("audit:\n%s", audit.String())
	}

	clean := build(t, "int add(int a, int b) { return a + b; }")
	audit.Reset()
	if err := report.WriteAudit(&audit, []*report.AnalysisReport{clean}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(audit.String(), "no fallbacks") {
		t.Errorf("clean audit:\n%s", audit.String())
	}
}
