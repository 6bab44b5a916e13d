package locks_test

import (
	"context"
	"slices"
	"strings"
	"testing"

	"decant/internal/dataflow"
	"decant/internal/locks"
	"decant/internal/source"
	"decant/internal/testkit"
)

func analyzeModule(t *testing.T, src string) *locks.ModuleResult {
	t.Helper()
	mod := testkit.Lower(t, src)
	an := dataflow.NewAnalyzer(mod, nil)
	graphs := make([]*dataflow.Graph, 0, len(mod.Funcs))
	for _, fn := range mod.Funcs {
		graphs = append(graphs, an.Build(fn))
	}
	return locks.AnalyzeModule(context.Background(), graphs, locks.DefaultConfig())
}

func analyzeFunc(t *testing.T, src, name string) *locks.Result {
	t.Helper()
	mod := testkit.Lower(t, src)
	g := dataflow.NewAnalyzer(mod, nil).Build(testkit.Func(t, mod, name))
	return locks.Analyze(g, locks.DefaultConfig())
}

func violationsOf(vs []locks.Violation, kind locks.ViolationKind) []locks.Violation {
	var out []locks.Violation
	for _, v := range vs {
		if v.Kind == kind {
			out = append(out, v)
		}
	}
	return out
}

var counterSrc = testkit.Lines(
	"#include <pthread.h>",
	"pthread_mutex_t lock;",
	"int x;",
	"void inc(void) {",
	"    pthread_mutex_lock(&lock);",
	"    x++;",
	"    pthread_mutex_unlock(&lock);",
	"}",
	"void add(int n) {",
	"    pthread_mutex_lock(&lock);",
	"    x = x + n;",
	"    pthread_mutex_unlock(&lock);",
	"}",
	"int peek(void) {",
	"    return x;",
	"}",
)

func TestStrayAccessIsUnprotected(t *testing.T) {
	m := analyzeModule(t, counterSrc)

	if len(m.Mapping) != 1 {
		t.Fatalf("mapping has %d locks, want 1", len(m.Mapping))
	}
	lv := m.Mapping[0]
	if lv.Lock.Path != "lock" || len(lv.Vars) != 1 || lv.Vars[0].Var.Path != "x" {
		t.Fatalf("mapping = %+v, want lock -> {x}", lv)
	}
	if lv.Vars[0].Protected {
		t.Fatalf("x should not be fully protected")
	}
	if !lv.AllGlobal() {
		t.Fatalf("lock and x are globals")
	}
	stray := violationsOf(m.Violations, locks.UnprotectedAccess)
	if len(stray) != 1 {
		t.Fatalf("got %d unprotected accesses, want 1: %+v", len(stray), stray)
	}
	if stray[0].Func != "peek" || stray[0].Var != "x" || stray[0].Lock != "lock" {
		t.Fatalf("violation = %+v", stray[0])
	}
	if len(m.Violations) != 1 {
		t.Fatalf("unexpected violations: %+v", m.Violations)
	}
}

func TestFunctionMappingWithoutStray(t *testing.T) {
	r := analyzeFunc(t, counterSrc, "add")
	if len(r.Violations) != 0 {
		t.Fatalf("unexpected violations: %+v", r.Violations)
	}
	if len(r.Regions) != 1 {
		t.Fatalf("got %d regions, want 1", len(r.Regions))
	}
	rg := r.Regions[0]
	if !rg.SameBlock || rg.List == nil || rg.From != 0 || rg.To != 2 {
		t.Fatalf("region = %+v, want same-block statements 0..2", rg)
	}
	if rg.Kind != locks.LockMutex || rg.Depth != 0 {
		t.Fatalf("region kind %v depth %d", rg.Kind, rg.Depth)
	}
	if lock, ok := r.Mapping.LockOf("x"); !ok || lock.Path != "lock" {
		t.Fatalf("x maps to %+v", lock)
	}
}

func TestStackMismatch(t *testing.T) {
	tests := []struct {
		name string
		body []string
		want string
	}{
		{
			name: "return while holding",
			body: []string{
				"    pthread_mutex_lock(&a);",
				"    if (n) return 1;",
				"    pthread_mutex_unlock(&a);",
				"    return 0;",
			},
			want: "returns while holding a",
		},
		{
			name: "release not held",
			body: []string{
				"    pthread_mutex_unlock(&a);",
				"    return 0;",
			},
			want: "releases a, which is not held",
		},
		{
			name: "out of order",
			body: []string{
				"    pthread_mutex_lock(&a);",
				"    pthread_mutex_lock(&b);",
				"    pthread_mutex_unlock(&a);",
				"    pthread_mutex_unlock(&b);",
				"    return 0;",
			},
			want: "releases a while b, acquired later, is still held",
		},
		{
			name: "one branch",
			body: []string{
				"    if (n) {",
				"        pthread_mutex_lock(&a);",
				"    }",
				"    pthread_mutex_unlock(&a);",
				"    return 0;",
			},
			want: "lock a is held on only one branch",
		},
		{
			name: "loop",
			body: []string{
				"    while (n--) {",
				"        pthread_mutex_lock(&a);",
				"    }",
				"    return 0;",
			},
			want: "lock state changes across loop iterations",
		},
		{
			name: "held at end",
			body: []string{
				"    pthread_mutex_lock(&a);",
				"    n++;",
			},
			want: "lock a is still held at the end of f",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := []string{
				"#include <pthread.h>",
				"pthread_mutex_t a;",
				"pthread_mutex_t b;",
			}
			if tt.name == "held at end" {
				lines = append(lines, "void f(int n) {")
			} else {
				lines = append(lines, "int f(int n) {")
			}
			lines = append(lines, tt.body...)
			lines = append(lines, "}")
			r := analyzeFunc(t, testkit.Lines(lines...), "f")
			got := violationsOf(r.Violations, locks.StackMismatch)
			if !slices.ContainsFunc(got, func(v locks.Violation) bool { return v.Message == tt.want }) {
				t.Fatalf("violations %+v lack %q", got, tt.want)
			}
		})
	}
}

func TestNestedRegions(t *testing.T) {
	r := analyzeFunc(t, testkit.Lines(
		"#include <pthread.h>",
		"pthread_mutex_t a;",
		"pthread_rwlock_t rw;",
		"int x;",
		"void f(int n) {",
		"    pthread_mutex_lock(&a);",
		"    if (n) {",
		"        pthread_rwlock_wrlock(&rw);",
		"        x = n;",
		"        pthread_rwlock_unlock(&rw);",
		"    }",
		"    pthread_mutex_unlock(&a);",
		"}",
	), "f")
	if len(r.Violations) != 0 {
		t.Fatalf("unexpected violations: %+v", r.Violations)
	}
	if len(r.Regions) != 2 {
		t.Fatalf("got %d regions, want 2", len(r.Regions))
	}
	inner, outer := r.Regions[0], r.Regions[1]
	if inner.Lock.Path != "rw" || inner.Kind != locks.LockWrite || inner.Depth != 1 {
		t.Fatalf("inner region = %+v", inner)
	}
	if outer.Lock.Path != "a" || outer.Depth != 0 || !outer.SameBlock {
		t.Fatalf("outer region = %+v", outer)
	}
	if len(r.Edges) != 1 || r.Edges[0].From != "a" || r.Edges[0].To != "rw" {
		t.Fatalf("edges = %+v", r.Edges)
	}
	// both locks are held at the write; the tie goes to the smaller key
	if lock, ok := r.Mapping.LockOf("x"); !ok || lock.Path != "a" {
		t.Fatalf("x maps to %+v", lock)
	}
}

func TestRegionAcrossBlocks(t *testing.T) {
	r := analyzeFunc(t, testkit.Lines(
		"#include <pthread.h>",
		"pthread_mutex_t a;",
		"int x;",
		"void f(int n) {",
		"    pthread_mutex_lock(&a);",
		"    {",
		"        x = n;",
		"        pthread_mutex_unlock(&a);",
		"    }",
		"}",
	), "f")
	if len(r.Regions) != 1 {
		t.Fatalf("got %d regions", len(r.Regions))
	}
	if r.Regions[0].SameBlock || r.Regions[0].List != nil {
		t.Fatalf("region should span blocks: %+v", r.Regions[0])
	}
}

func TestParamStructLocksMergeAcrossFunctions(t *testing.T) {
	m := analyzeModule(t, testkit.Lines(
		"#include <pthread.h>",
		"struct counter { pthread_mutex_t mu; int n; };",
		"void bump(struct counter *c) {",
		"    pthread_mutex_lock(&c->mu);",
		"    c->n++;",
		"    pthread_mutex_unlock(&c->mu);",
		"}",
		"void reset(struct counter *s) {",
		"    pthread_mutex_lock(&s->mu);",
		"    s->n = 0;",
		"    pthread_mutex_unlock(&s->mu);",
		"}",
		"int get(struct counter *k) {",
		"    return k->n;",
		"}",
	))
	if len(m.Mapping) != 1 {
		t.Fatalf("mapping = %+v, want one lock", m.Mapping)
	}
	lv := m.Mapping[0]
	if !strings.HasSuffix(lv.Lock.Key, "->mu") || len(lv.Vars) != 1 || !strings.HasSuffix(lv.Vars[0].Var.Key, "->n") {
		t.Fatalf("mapping = %+v", lv)
	}
	if lv.AllGlobal() {
		t.Fatalf("a parameter lock is not global")
	}
	stray := violationsOf(m.Violations, locks.UnprotectedAccess)
	if len(stray) != 1 || stray[0].Func != "get" || stray[0].Var != "k->n" {
		t.Fatalf("unprotected = %+v", stray)
	}
}

func TestLocalDataIsNotShared(t *testing.T) {
	r := analyzeFunc(t, testkit.Lines(
		"#include <pthread.h>",
		"pthread_mutex_t a;",
		"int f(int n) {",
		"    int y = 0;",
		"    pthread_mutex_lock(&a);",
		"    y = n;",
		"    pthread_mutex_unlock(&a);",
		"    return y;",
		"}",
	), "f")
	if len(r.Accesses) != 0 || len(r.Mapping) != 0 {
		t.Fatalf("locals should not be tracked: %+v", r.Accesses)
	}
}

func TestPotentialDeadlock(t *testing.T) {
	m := analyzeModule(t, testkit.Lines(
		"#include <pthread.h>",
		"pthread_mutex_t a;",
		"pthread_mutex_t b;",
		"int x;",
		"void ab(void) {",
		"    pthread_mutex_lock(&a);",
		"    pthread_mutex_lock(&b);",
		"    x = 1;",
		"    pthread_mutex_unlock(&b);",
		"    pthread_mutex_unlock(&a);",
		"}",
		"void ba(void) {",
		"    pthread_mutex_lock(&b);",
		"    pthread_mutex_lock(&a);",
		"    x = 2;",
		"    pthread_mutex_unlock(&a);",
		"    pthread_mutex_unlock(&b);",
		"}",
	))
	if len(m.Cycles) != 1 {
		t.Fatalf("got %d cycles, want 1", len(m.Cycles))
	}
	if got := m.Cycles[0].String(); got != "a -> b -> a" {
		t.Fatalf("cycle = %q", got)
	}
	dl := violationsOf(m.Violations, locks.PotentialDeadlock)
	if len(dl) != 1 || !strings.Contains(dl[0].Message, "a -> b -> a") {
		t.Fatalf("deadlock violations = %+v", dl)
	}
}

func TestOrderGraph(t *testing.T) {
	t.Run("no cycle", func(t *testing.T) {
		g := locks.NewOrderGraph()
		g.AddEdge("A", "B", "f", source.Span{})
		g.AddEdge("B", "C", "f", source.Span{})
		g.AddEdge("A", "C", "g", source.Span{})
		if c := g.Cycles(); len(c) != 0 {
			t.Fatalf("unexpected cycles: %v", c)
		}
	})
	t.Run("duplicate edge", func(t *testing.T) {
		g := locks.NewOrderGraph()
		if !g.AddEdge("A", "B", "f", source.Span{}) {
			t.Fatalf("first edge should be new")
		}
		if g.AddEdge("A", "B", "g", source.Span{}) {
			t.Fatalf("second edge should not be new")
		}
	})
	t.Run("three lock cycle", func(t *testing.T) {
		g := locks.NewOrderGraph()
		g.AddEdge("C", "A", "h", source.Span{})
		g.AddEdge("A", "B", "f", source.Span{})
		g.AddEdge("B", "C", "g", source.Span{})
		cycles := g.Cycles()
		if len(cycles) != 1 {
			t.Fatalf("got %d cycles, want 1", len(cycles))
		}
		if got := cycles[0].String(); got != "A -> B -> C -> A" {
			t.Fatalf("cycle = %q", got)
		}
		if e := cycles[0].Edges[2]; e.From != "C" || e.To != "A" || e.Func != "h" {
			t.Fatalf("closing edge = %+v", e)
		}
	})
	t.Run("isolated locks", func(t *testing.T) {
		g := locks.NewOrderGraph()
		g.AddLock("Z")
		g.AddLock("Y")
		if got := g.Locks(); !slices.Equal(got, []string{"Y", "Z"}) {
			t.Fatalf("locks = %v", got)
		}
	})
}
