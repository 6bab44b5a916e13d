package ownership_test

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"decant/internal/dataflow"
	"decant/internal/ownership"
	"decant/internal/testkit"
)

func infer(t *testing.T, src, name string, cfg ownership.Config) *ownership.Table {
	t.Helper()
	mod := testkit.Lower(t, src)
	g := dataflow.NewAnalyzer(mod, nil).Build(testkit.Func(t, mod, name))
	return ownership.Infer(g, cfg)
}

func decision(t *testing.T, tbl *ownership.Table, name string) *ownership.Decision {
	t.Helper()
	for _, d := range tbl.Decisions {
		if d.Name == name {
			return d
		}
	}
	t.Fatalf("no decision for %s in %s", name, tbl.Func.Name)
	return nil
}

const headers = "#include <stdio.h>\n#include <stdlib.h>\n"

func TestFindIsSliceWithOptionalIndex(t *testing.T) {
	tbl := infer(t, headers+testkit.Lines(
		"int *find(int *arr, int len, int target) {",
		"    for (int i = 0; i < len; i++) {",
		"        if (arr[i] == target) return &arr[i];",
		"    }",
		"    return NULL;",
		"}",
	), "find", ownership.DefaultConfig())
	arr := decision(t, tbl, "arr")
	if arr.Kind != ownership.KindSlice || arr.Mutable {
		t.Fatalf("arr = %s mutable=%v, reasoning %v", arr.Kind, arr.Mutable, arr.Reasoning)
	}
	if arr.Length != tbl.Func.Params[1].Local {
		t.Errorf("arr not paired with len")
	}
	if tbl.Return.Shape != ownership.ReturnOptionIndex || !tbl.Return.Nullable {
		t.Errorf("return = %+v", tbl.Return)
	}
}

func TestPolicy(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		fn, bind string
		kind     ownership.Kind
		mutable  bool
		nullable bool
	}{
		{
			name: "box",
			src:  "void f(int n) { int *p = malloc(sizeof(int)); *p = n; printf(\"%d\\n\", *p); free(p); }",
			fn:   "f", bind: "p", kind: ownership.KindBox,
		},
		{
			name: "box survives failed allocation branch",
			src:  "int f(void) { int *p = malloc(sizeof(int)); if (p == NULL) return -1; *p = 1; free(p); return 0; }",
			fn:   "f", bind: "p", kind: ownership.KindBox,
		},
		{
			name: "vec",
			src:  "void f(int n) { int *p = malloc(n * sizeof(int)); for (int i = 0; i < n; i++) p[i] = i; free(p); }",
			fn:   "f", bind: "p", kind: ownership.KindVec,
		},
		{
			name: "ref",
			src:  "int get(const int *p) { return *p; }",
			fn:   "get", bind: "p", kind: ownership.KindRef,
		},
		{
			name: "nullable ref",
			src:  "int get(const int *p) { if (!p) return 0; return *p; }",
			fn:   "get", bind: "p", kind: ownership.KindRef, nullable: true,
		},
		{
			name: "mutable ref",
			src:  "void set(int *out, int v) { *out = v; }",
			fn:   "set", bind: "out", kind: ownership.KindRef, mutable: true,
		},
		{
			name: "mutable slice",
			src:  "void zero(int *buf, int n) { for (int i = 0; i < n; i++) buf[i] = 0; }",
			fn:   "zero", bind: "buf", kind: ownership.KindSlice, mutable: true,
		},
		{
			name: "option box",
			src:  "void f(int n) { int *p = NULL; if (n > 0) { p = malloc(sizeof(int)); } if (p) { *p = 1; } free(p); }",
			fn:   "f", bind: "p", kind: ownership.KindOptionBox,
		},
		{
			name: "raw pointer arithmetic",
			src:  "int count(const char *s) { int c = 0; while (*s) { s++; c++; } return c; }",
			fn:   "count", bind: "s", kind: ownership.KindRawPointer,
		},
		{
			name: "escaping field store",
			src:  "struct node { int *v; };\nvoid keep(struct node *n, int *v) { n->v = v; }",
			fn:   "keep", bind: "v", kind: ownership.KindUnknown,
		},
		{
			name: "writer of the field store",
			src:  "struct node { int *v; };\nvoid keep(struct node *n, int *v) { n->v = v; }",
			fn:   "keep", bind: "n", kind: ownership.KindRef, mutable: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := infer(t, headers+tt.src+"\n", tt.fn, ownership.DefaultConfig())
			d := decision(t, tbl, tt.bind)
			if d.Kind != tt.kind || d.Mutable != tt.mutable || d.Nullable != tt.nullable {
				t.Fatalf("%s = %s mutable=%v nullable=%v\nreasoning:\n%s",
					tt.bind, d.Kind, d.Mutable, d.Nullable, strings.Join(d.Reasoning, "\n"))
			}
			if d.Kind != ownership.KindUnknown && (d.Confidence < 0.5 || d.Confidence > 1) {
				t.Errorf("confidence = %.2f", d.Confidence)
			}
		})
	}
}

func TestDefects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want ownership.DefectKind
		kind ownership.Kind
	}{
		{"double free", "int *p = malloc(sizeof(int)); free(p); free(p);", ownership.DefectDoubleFree, ownership.KindUnknown},
		{"use after free", "int *p = malloc(sizeof(int)); free(p); *p = 1;", ownership.DefectUseAfterFree, ownership.KindUnknown},
		{"forgotten free", "int *p = malloc(sizeof(int)); *p = n; if (n) { free(p); }", ownership.DefectForgottenFree, ownership.KindUnknown},
		{"overwritten", "int *p = malloc(sizeof(int)); p = malloc(sizeof(int)); free(p);", ownership.DefectForgottenFree, ownership.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := infer(t, headers+"void f(int n) { "+tt.body+" }\n", "f", ownership.DefaultConfig())
			d := decision(t, tbl, "p")
			if !d.HasDefect(tt.want) {
				t.Fatalf("defects = %+v, want %s", d.Defects, tt.want)
			}
			if d.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", d.Kind, tt.kind)
			}
			if d.Kind == ownership.KindUnknown && (d.Rule != 0 || d.Confidence != 0) {
				t.Errorf("rule %d at %.2f, want no rule", d.Rule, d.Confidence)
			}
		})
	}
}

func TestReturnedAllocationIsMovedOut(t *testing.T) {
	tbl := infer(t, headers+"int *make(int v) { int *p = malloc(sizeof(int)); *p = v; return p; }\n", "make", ownership.DefaultConfig())
	if d := decision(t, tbl, "p"); d.Kind != ownership.KindBox || len(d.Defects) != 0 {
		t.Fatalf("p = %s defects %+v", d.Kind, d.Defects)
	}
	if tbl.Return.Shape != ownership.ReturnOwned || tbl.Return.Kind != ownership.KindBox {
		t.Errorf("return = %+v", tbl.Return)
	}
}

func TestBorrowedReturn(t *testing.T) {
	tbl := infer(t, "const int *pick(const int *p) { return p; }\n", "pick", ownership.DefaultConfig())
	if tbl.Return.Shape != ownership.ReturnBorrowed {
		t.Errorf("return = %+v", tbl.Return)
	}
}

func TestTruncationIsInconclusive(t *testing.T) {
	src := headers + "void f(int a) { int *p = malloc(sizeof(int)); if (a) a++; if (a) a++; if (a) a++; free(p); }\n"
	tbl := infer(t, src, "f", ownership.Config{MinConfidence: 0.5, MaxPaths: 4})
	d := decision(t, tbl, "p")
	if !tbl.Truncated || d.Kind == ownership.KindBox {
		t.Fatalf("truncated=%v kind=%s", tbl.Truncated, d.Kind)
	}
	found := false
	for _, line := range d.Reasoning {
		if strings.Contains(line, "truncated at 4") {
			found = true
		}
	}
	if !found {
		t.Errorf("reasoning lacks truncation note: %v", d.Reasoning)
	}
}

func TestMinConfidenceFallsThrough(t *testing.T) {
	// An addressed parameter that is never dereferenced holds seven of the
	// nine Ref signals.
	src := "void touch(const int *p) { const int **pp = &p; (void)pp; }\n"
	tbl := infer(t, src, "touch", ownership.Config{MinConfidence: 0.9})
	if d := decision(t, tbl, "p"); d.Kind == ownership.KindRef {
		t.Errorf("p = %s at %.2f", d.Kind, d.Confidence)
	}
}

func TestInferModulePropagatesMutability(t *testing.T) {
	mod := testkit.Lower(t, testkit.Lines(
		"static void fill(int *p) { *p = 1; }",
		"int run(int *q) { fill(q); return *q; }",
	))
	an := dataflow.NewAnalyzer(mod, nil)
	var graphs []*dataflow.Graph
	for _, fn := range mod.Funcs {
		graphs = append(graphs, an.Build(fn))
	}
	m := ownership.InferModule(context.Background(), graphs, ownership.DefaultConfig())
	run := testkit.Func(t, mod, "run")
	d := m.Lookup(ownership.Key{Func: run.ID, Local: run.Params[0].Local})
	if d == nil || d.Kind != ownership.KindRef || !d.Mutable {
		t.Fatalf("q = %+v", d)
	}
}

func TestInferIsDeterministic(t *testing.T) {
	src := headers + testkit.Lines(
		"int f(int *a, int n, const int *k) {",
		"    int *tmp = malloc(n * sizeof(int));",
		"    for (int i = 0; i < n; i++) tmp[i] = a[i] + *k;",
		"    int s = tmp[0];",
		"    free(tmp);",
		"    return s;",
		"}",
	)
	first := infer(t, src, "f", ownership.DefaultConfig())
	second := infer(t, src, "f", ownership.DefaultConfig())
	if !reflect.DeepEqual(first.Decisions, second.Decisions) {
		t.Error("decisions differ between runs")
	}
	if !reflect.DeepEqual(first.Return, second.Return) {
		t.Error("return shape differs between runs")
	}
}
