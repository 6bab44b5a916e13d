package lifetime_test

import (
	"strings"
	"testing"

	"decant/internal/dataflow"
	"decant/internal/lifetime"
	"decant/internal/ownership"
	"decant/internal/testkit"
)

func analyze(t *testing.T, src, name string) *lifetime.Result {
	t.Helper()
	mod := testkit.Lower(t, src)
	g := dataflow.NewAnalyzer(mod, nil).Build(testkit.Func(t, mod, name))
	return lifetime.Analyze(g, ownership.Infer(g, ownership.DefaultConfig()))
}

func TestIDNames(t *testing.T) {
	for id, want := range map[lifetime.ID]string{1: "'a", 2: "'b", 26: "'z", 27: "'a1", 0: ""} {
		if got := id.String(); got != want {
			t.Errorf("ID(%d) = %q, want %q", id, got, want)
		}
	}
}

func TestSingleInputElides(t *testing.T) {
	r := analyze(t, "const int *pick(const int *p) { return p; }\n", "pick")
	sig := r.Signature
	if sig.Elision != lifetime.ElisionSingleInput || sig.Explicit() {
		t.Fatalf("elision = %s", sig.Elision)
	}
	if sig.Output != 1 || sig.Generics() != "" {
		t.Errorf("output = %q generics = %q", sig.Output, sig.Generics())
	}
}

func TestTwoInputsRequireExplicitLifetimes(t *testing.T) {
	r := analyze(t, "const int *max(const int *a, const int *b) { return *a > *b ? a : b; }\n", "max")
	sig := r.Signature
	if !sig.Explicit() {
		t.Fatalf("elision = %s", sig.Elision)
	}
	if len(sig.Params) != 2 || sig.Params[0].Lifetime == sig.Params[1].Lifetime {
		t.Errorf("params = %+v", sig.Params)
	}
	if sig.Output != lifetime.NoID || !strings.Contains(sig.Note, "a or b") {
		t.Errorf("output = %q note = %q", sig.Output, sig.Note)
	}
	if sig.Generics() != "<'a, 'b>" {
		t.Errorf("generics = %q", sig.Generics())
	}
}

func TestExplicitWithKnownSource(t *testing.T) {
	r := analyze(t, "const int *second(const int *a, const int *b) { if (*a) return b; return b; }\n", "second")
	sig := r.Signature
	if !sig.Explicit() || sig.Output != sig.ParamLifetime(r.Func.Params[1].Local) {
		t.Errorf("sig = %+v", sig)
	}
}

func TestReceiverLifetimeFlows(t *testing.T) {
	tests := []struct{ name, src string }{
		{"prefix", "struct list { int len; };\nconst struct list *list_check(const struct list *l, const int *key) { if (*key > l->len) return l; return l; }\n"},
		{"named", "struct list { int len; };\nconst struct list *check(const struct list *self, const int *key) { if (*key > self->len) return self; return self; }\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := "list_check"
			if tt.name == "named" {
				fn = "check"
			}
			sig := analyze(t, tt.src, fn).Signature
			if sig.Elision != lifetime.ElisionReceiver || sig.Output != sig.Params[0].Lifetime {
				t.Errorf("sig = %+v", sig)
			}
		})
	}
}

func TestDanglingReturns(t *testing.T) {
	tests := []struct {
		name, src, fn string
		want          string
	}{
		{"address of local", "int *bad(void) { int x = 1; return &x; }", "bad", "address of local x"},
		{"local array", "int *bad(void) { int buf[4]; buf[0] = 1; return buf; }", "bad", "returns array local buf"},
		{"through pointer", "int *bad(int c) { int x = c; int *p = &x; return p; }", "bad", "holds the address of local x"},
		{"nested block", "int *bad(int c) { if (c) { int y = c; return &y; } return 0; }", "bad", "address of local y"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := analyze(t, tt.src+"\n", tt.fn)
			if len(r.Dangling) != 1 || !strings.Contains(r.Dangling[0].Reason, tt.want) {
				t.Fatalf("dangling = %+v", r.Dangling)
			}
		})
	}
}

func TestStaticLocalIsNotDangling(t *testing.T) {
	r := analyze(t, "int *counter(void) { static int x; x++; return &x; }\n", "counter")
	if len(r.Dangling) != 0 {
		t.Errorf("dangling = %+v", r.Dangling)
	}
}

func TestNestedReferenceIsElevated(t *testing.T) {
	r := analyze(t, "int *pick(int *arr, int n) { if (n > 0) { int *q = arr + 1; return q; } return arr; }\n", "pick")
	if len(r.Elevated) != 1 || r.Elevated[0].From != r.Func.Params[0].Local {
		t.Errorf("elevated = %+v", r.Elevated)
	}
	if len(r.Dangling) != 0 {
		t.Errorf("dangling = %+v", r.Dangling)
	}
}

func TestRegions(t *testing.T) {
	r := analyze(t, "void f(int c) { if (c) { int x = 0; x++; } }\n", "f")
	if len(r.Regions) < 2 {
		t.Fatalf("regions = %+v", r.Regions)
	}
	fnScope, _ := r.Region(1)
	if fnScope.Depth != 0 || r.Regions[1].Depth != 1 {
		t.Errorf("regions = %+v", r.Regions)
	}
}

func TestStructLifetimes(t *testing.T) {
	mod := testkit.Lower(t, testkit.Lines(
		"#include <stdlib.h>",
		"struct view { const char *name; const int *vals; int *owned; int n; };",
		"struct outer { struct view v; int k; };",
		"struct tag { const char *label; };",
		"void init(struct view *v) { v->owned = malloc(sizeof(int)); }",
		"void name(struct tag *t) { t->label = malloc(4); }",
	))
	got := lifetime.AnalyzeStructs(mod)
	if len(got) != 2 || got[0].Name != "view" || got[1].Name != "outer" {
		t.Fatalf("structs = %+v", got)
	}
	view := got[0]
	if len(view.Params) != 2 || view.Field("name")[0] != 1 || view.Field("vals")[0] != 2 || view.Field("owned") != nil {
		t.Errorf("view = %+v", view)
	}
	if len(got[1].Field("v")) != 2 {
		t.Errorf("outer = %+v", got[1])
	}
}
