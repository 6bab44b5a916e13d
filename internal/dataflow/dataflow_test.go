package dataflow_test

import (
	"testing"

	"decant/internal/dataflow"
	"decant/internal/hir"
	"decant/internal/testkit"
)

func graphOf(t *testing.T, src, name string) *dataflow.Graph {
	t.Helper()
	mod := testkit.Lower(t, src)
	return dataflow.NewAnalyzer(mod, nil).Build(testkit.Func(t, mod, name))
}

func bindingNamed(t *testing.T, g *dataflow.Graph, name string) *dataflow.Binding {
	t.Helper()
	for _, b := range g.Bindings {
		if b.Name == name {
			return b
		}
	}
	t.Fatalf("no binding %s", name)
	return nil
}

func TestFindPairsArrayWithLength(t *testing.T) {
	g := graphOf(t, testkit.Lines(
		"#include <stddef.h>",
		"int *find(int *arr, int len, int target) {",
		"    for (int i = 0; i < len; i++) {",
		"        if (arr[i] == target) {",
		"            return &arr[i];",
		"        }",
		"    }",
		"    return NULL;",
		"}",
	), "find")
	arr, length := bindingNamed(t, g, "arr"), bindingNamed(t, g, "len")
	lp, ok := g.LengthOf(arr.Local)
	if !ok || lp.Len != length.Local {
		t.Fatalf("pairs = %+v", g.LengthPairs)
	}
	if len(lp.Signals) < 4 {
		t.Errorf("expected adjacency, name, index and loop signals, got %v", lp.Signals)
	}
	if len(g.Returns) != 2 || g.Returns[0].Derived != arr.Local || !g.Returns[1].Null {
		t.Errorf("returns = %+v", g.Returns)
	}
}

func TestScalarParamIsNotPaired(t *testing.T) {
	g := graphOf(t, "void set(int *out, int v) { *out = v; }\n", "set")
	if len(g.LengthPairs) != 0 {
		t.Errorf("pairs = %+v", g.LengthPairs)
	}
	out := bindingNamed(t, g, "out")
	if len(out.Writes) != 1 || len(out.Reads) != 0 {
		t.Errorf("writes=%d reads=%d", len(out.Writes), len(out.Reads))
	}
}

func TestEscapeKinds(t *testing.T) {
	g := graphOf(t, testkit.Lines(
		"#include <stdio.h>",
		"struct holder { int *p; };",
		"int *saved;",
		"void keep(int *x);",
		"void f(struct holder *h, int *a, int *b, int *c, int *d) {",
		"    h->p = a;",
		"    saved = b;",
		"    keep(c);",
		"    printf(\"%p\\n\", (void *)d);",
		"}",
	), "f")
	tests := []struct {
		name string
		want []dataflow.EscapeKind
	}{
		{"a", []dataflow.EscapeKind{dataflow.EscapeField}},
		{"b", []dataflow.EscapeKind{dataflow.EscapeGlobal}},
		{"c", []dataflow.EscapeKind{dataflow.EscapeCall}},
		{"d", nil},
	}
	for _, tt := range tests {
		b := bindingNamed(t, g, tt.name)
		if len(b.Escapes) != len(tt.want) {
			t.Errorf("%s: escapes = %+v, want %v", tt.name, b.Escapes, tt.want)
			continue
		}
		for i, k := range tt.want {
			if b.Escapes[i].Kind != k {
				t.Errorf("%s: escape %d = %s, want %s", tt.name, i, b.Escapes[i].Kind, k)
			}
		}
	}
	if h := bindingNamed(t, g, "h"); len(h.Writes) != 1 {
		t.Errorf("h->p = a should write through h")
	}
}

func TestModuleCalleeSummary(t *testing.T) {
	g := graphOf(t, testkit.Lines(
		"#include <stdlib.h>",
		"static int peek(int *p) { return *p; }",
		"int use(void) {",
		"    int *q = malloc(sizeof(int));",
		"    *q = 3;",
		"    int v = peek(q);",
		"    free(q);",
		"    return v;",
		"}",
	), "use")
	q := bindingNamed(t, g, "q")
	if len(q.Escapes) != 0 {
		t.Errorf("q escapes: %+v", q.Escapes)
	}
	if len(q.Allocs) != 1 || len(q.Frees) != 1 || !q.HasOrigin(dataflow.OriginAllocation) {
		t.Errorf("q = %+v", q)
	}
}

func TestNullGuards(t *testing.T) {
	tests := []struct {
		src     string
		guarded bool
	}{
		{"int get(int *p) { if (!p) return 0; return *p; }", true},
		{"int get(int *p) { if (p != 0) { return *p; } return 0; }", true},
		{"int get(int *p) { return p ? *p : 0; }", true},
		{"int get(int *p) { return p && *p; }", true},
		{"int get(int *p) { return *p; }", false},
		{"int get(int *p, int *q) { if (p) { p = q; return *p; } return 0; }", false},
	}
	for _, tt := range tests {
		g := graphOf(t, tt.src+"\n", "get")
		p := bindingNamed(t, g, "p")
		if got := p.DerefsGuarded(); got != tt.guarded {
			t.Errorf("%s: guarded = %v, want %v", tt.src, got, tt.guarded)
		}
	}
}

func TestAliasAndArithmetic(t *testing.T) {
	g := graphOf(t, "int sum(int *p, int n) { int *q = p; int s = 0; while (n--) { s += *q; q++; } return s; }\n", "sum")
	q := bindingNamed(t, g, "q")
	p := bindingNamed(t, g, "p")
	if len(q.AliasOf) != 1 || q.AliasOf[0] != p.Local {
		t.Errorf("q alias = %v", q.AliasOf)
	}
	if len(q.Arith) != 1 {
		t.Errorf("q arith = %d, want 1", len(q.Arith))
	}
	alias := false
	for _, e := range g.Edges {
		if e.Kind == dataflow.EdgeAlias {
			alias = true
		}
	}
	if !alias {
		t.Error("missing alias edge")
	}
}

func countKind(g *dataflow.Graph, p dataflow.Path, kind dataflow.NodeKind) int {
	n := 0
	for _, i := range p.Nodes {
		if g.Node(i).Kind == kind {
			n++
		}
	}
	return n
}

func TestPathsBranchAndLoop(t *testing.T) {
	g := graphOf(t, testkit.Lines(
		"#include <stdlib.h>",
		"void f(int c) {",
		"    int *p = malloc(sizeof(int));",
		"    while (c) { c--; }",
		"    if (c) { free(p); } else { free(p); }",
		"}",
	), "f")
	paths, truncated := g.Paths(0)
	if truncated || len(paths) != 4 {
		t.Fatalf("paths = %d truncated = %v, want 4", len(paths), truncated)
	}
	for i, p := range paths {
		if n := countKind(g, p, dataflow.NodeFree); n != 1 {
			t.Errorf("path %d has %d frees", i, n)
		}
	}
}

func TestPathsNullBranch(t *testing.T) {
	g := graphOf(t, testkit.Lines(
		"#include <stdlib.h>",
		"void f(void) {",
		"    int *p = malloc(sizeof(int));",
		"    if (p == NULL) return;",
		"    *p = 1;",
		"    free(p);",
		"}",
	), "f")
	paths, _ := g.Paths(0)
	if len(paths) != 2 {
		t.Fatalf("paths = %d, want 2", len(paths))
	}
	early := paths[0]
	if early.Exit == hir.NoNodeID || countKind(g, early, dataflow.NodeNullBranch) != 1 {
		t.Errorf("early return path lacks the null assumption: %+v", early)
	}
	if countKind(g, paths[1], dataflow.NodeNullBranch) != 0 || countKind(g, paths[1], dataflow.NodeFree) != 1 {
		t.Errorf("main path = %+v", paths[1])
	}
}

func TestPathsNullBranchNeedsSingleBinding(t *testing.T) {
	g := graphOf(t, testkit.Lines(
		"#include <stdlib.h>",
		"void f(void) {",
		"    int *p = malloc(sizeof(int));",
		"    int *q = malloc(sizeof(int));",
		"    if (p == NULL || q == NULL) return;",
		"    free(q);",
		"    free(p);",
		"}",
	), "f")
	paths, _ := g.Paths(0)
	if len(paths) != 2 {
		t.Fatalf("paths = %d, want 2", len(paths))
	}
	for i, p := range paths {
		if n := countKind(g, p, dataflow.NodeNullBranch); n != 0 {
			t.Errorf("path %d carries %d null assumptions", i, n)
		}
	}
}

func TestIndexingNodes(t *testing.T) {
	g := graphOf(t, "int last(int *a, int n) { return a[n - 1]; }\n", "last")
	paths, _ := g.Paths(0)
	if len(paths) != 1 || countKind(g, paths[0], dataflow.NodeIndexing) != 1 {
		t.Fatalf("paths = %+v", paths)
	}
	if dataflow.NodeIndexing.String() != "index" {
		t.Errorf("kind name = %q", dataflow.NodeIndexing.String())
	}
}

func TestPathsTruncate(t *testing.T) {
	g := graphOf(t, "void f(int a) { if (a) a++; if (a) a++; if (a) a++; }\n", "f")
	paths, truncated := g.Paths(4)
	if !truncated || len(paths) > 4 {
		t.Errorf("paths = %d truncated = %v", len(paths), truncated)
	}
}

func TestSwitchFallThroughPaths(t *testing.T) {
	g := graphOf(t, testkit.Lines(
		"int f(int k) {",
		"    int x = 0;",
		"    switch (k) {",
		"    case 1: x = 1;",
		"    case 2: x = 2; break;",
		"    default: x = 3;",
		"    }",
		"    return x;",
		"}",
	), "f")
	paths, _ := g.Paths(0)
	// case 1 falling into 2, case 2, default
	if len(paths) != 3 {
		t.Errorf("paths = %d, want 3", len(paths))
	}
}
