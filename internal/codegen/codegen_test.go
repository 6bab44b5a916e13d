package codegen_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"decant/internal/codegen"
	"decant/internal/dataflow"
	"decant/internal/lifetime"
	"decant/internal/locks"
	"decant/internal/optimize"
	"decant/internal/ownership"
	"decant/internal/patterns"
	"decant/internal/stdlib"
	"decant/internal/testkit"
)

var tagRe = regexp.MustCompile(`FALLBACK#(\d+)`)

// translate runs the analyses sequentially and renders the module.
func translate(t *testing.T, lines ...string) *codegen.Output {
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
	bodies, _ := optimize.Module(ctx, mod)
	out := codegen.Generate(mod, &codegen.Analysis{
		Graphs:    graphs,
		Ownership: own,
		Lifetimes: lts,
		Structs:   lifetime.AnalyzeStructs(mod),
		Locks:     locks.AnalyzeModule(ctx, graphs, locks.DefaultConfig()),
		Hints:     patterns.DetectModule(ctx, graphs, patterns.NewIndex(mod)),
		Bodies:    bodies,
	}, codegen.Config{})
	checkTags(t, out)
	return out
}

// checkTags verifies every recorded fallback is tagged exactly once in
// the text, numbered in output order.
func checkTags(t *testing.T, out *codegen.Output) {
	t.Helper()
	seen := make(map[string]bool)
	var order []string
	for _, m := range tagRe.FindAllStringSubmatch(out.Source, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			order = append(order, m[1])
		}
	}
	require.Len(t, order, len(out.Fallbacks), out.Source)
	for i, fb := range out.Fallbacks {
		assert.Equal(t, i+1, fb.ID)
	}
	assert.NotContains(t, out.Source, "\x1a")
}

func funcOut(t *testing.T, out *codegen.Output, name string) codegen.FuncOutput {
	t.Helper()
	for _, f := range out.Funcs {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("no output for %s", name)
	return codegen.FuncOutput{}
}

func TestLocalAllocationIsBoxed(t *testing.T) {
	out := translate(t,
		"#include <stdlib.h>",
		"int area(int w, int h) {",
		"    int *p = malloc(sizeof(int));",
		"    *p = w * h;",
		"    int r = *p;",
		"    free(p);",
		"    return r;",
		"}",
	)
	f := funcOut(t, out, "area")
	assert.Contains(t, f.Source, "Box::new(")
	assert.NotContains(t, f.Source, "free(")
	assert.Empty(t, f.Fallbacks)
}

func TestDoubleFreeFallsBack(t *testing.T) {
	out := translate(t,
		"#include <stdlib.h>",
		"void twice(int n) {",
		"    char *p = malloc(n);",
		"    free(p);",
		"    free(p);",
		"}",
	)
	f := funcOut(t, out, "twice")
	assert.NotContains(t, f.Source, "Box::new(")
	assert.Contains(t, f.Source, "libc::free")
	assert.NotEmpty(t, f.Fallbacks)
	for _, fb := range f.Fallbacks {
		assert.Equal(t, "twice", fb.Func)
		assert.NotEmpty(t, fb.Reason)
	}
}

func TestRawReturnIsRecorded(t *testing.T) {
	out := translate(t,
		"#include <stdlib.h>",
		"int *none(void) {",
		"    return NULL;",
		"}",
	)
	f := funcOut(t, out, "none")
	assert.Contains(t, f.Source, "-> *mut i32")
	var raw int
	for _, fb := range f.Fallbacks {
		if fb.Construct == "raw-return" {
			raw++
		}
	}
	assert.Equal(t, 1, raw, f.Fallbacks)
	assert.Regexp(t, `// FALLBACK#\d+: none returns a raw pointer[^\n]*\n\s*(pub )?fn none\(`, out.Source)
}

func TestVecFieldThroughSharedRefIsNotBorrowedMutably(t *testing.T) {
	out := translate(t,
		"#include <stdlib.h>",
		"struct list { int *items; int n; };",
		"void list_init(struct list *l, int n) {",
		"    l->items = malloc(n * sizeof(int));",
		"    l->n = n;",
		"}",
		"int *list_first(struct list *l) {",
		"    return l->items;",
		"}",
	)
	f := funcOut(t, out, "list_first")
	assert.NotContains(t, f.Source, "as_mut_ptr", f.Source)
}

func TestPrintf(t *testing.T) {
	out := translate(t,
		"#include <stdio.h>",
		"int main(void) {",
		"    int n = 3;",
		"    printf(\"n=%d %s\\n\", n, \"x\");",
		"    puts(\"done\");",
		"    return 0;",
		"}",
	)
	assert.Contains(t, out.Source, "fn main() {")
	assert.Contains(t, out.Source, `println!("n={} {}", n, "x");`)
	assert.Contains(t, out.Source, `println!("done");`)
	assert.NotContains(t, out.Source, "libc::printf")
	assert.Empty(t, out.Fallbacks)
}

func TestPercentInStatementsIsVerbatim(t *testing.T) {
	out := translate(t,
		"int rem(int a, int b) {",
		"    int x = 0;",
		"    x = a % b;",
		"    x %= 3;",
		"    return x;",
		"}",
	)
	assert.Regexp(t, `a\s*%\s*b`, out.Source)
	assert.Contains(t, out.Source, "%= 3")
	assert.NotContains(t, out.Source, "%!")
}

func TestSwitchBecomesMatch(t *testing.T) {
	out := translate(t,
		"int classify(int x) {",
		"    switch (x) {",
		"    case 1:",
		"        return 10;",
		"    case 2:",
		"    case 3:",
		"        return 20;",
		"    default:",
		"        return 0;",
		"    }",
		"}",
	)
	src := funcOut(t, out, "classify").Source
	assert.Contains(t, src, "match x {")
	assert.Contains(t, src, "1 => {")
	assert.Contains(t, src, "2 | 3 => {")
	assert.Contains(t, src, "_ => {")
}

func TestCountingLoopBecomesRange(t *testing.T) {
	out := translate(t,
		"int sum(int n) {",
		"    int s = 0;",
		"    for (int i = 0; i < n; i++) {",
		"        s += i;",
		"    }",
		"    return s;",
		"}",
	)
	src := funcOut(t, out, "sum").Source
	assert.Contains(t, src, "for i in 0..n {")
	assert.Contains(t, src, "s += i;")
}

func TestLockDataGuard(t *testing.T) {
	out := translate(t,
		"#include <pthread.h>",
		"pthread_mutex_t lock = PTHREAD_MUTEX_INITIALIZER;",
		"int counter;",
		"void inc(void) {",
		"    pthread_mutex_lock(&lock);",
		"    counter++;",
		"    pthread_mutex_unlock(&lock);",
		"}",
		"int get(void) {",
		"    pthread_mutex_lock(&lock);",
		"    int v = counter;",
		"    pthread_mutex_unlock(&lock);",
		"    return v;",
		"}",
	)
	assert.Contains(t, out.Source, "use std::sync::Mutex;")
	assert.Contains(t, out.Source, "pub struct LockData {")
	assert.Contains(t, out.Source, "let mut lock_guard = LOCK.lock().unwrap();")
	assert.Contains(t, out.Source, "lock_guard.counter += 1;")
	assert.NotContains(t, out.Source, "pthread_mutex_lock")
	assert.NotContains(t, out.Source, "pthread_mutex_unlock")

	var strategy string
	for _, gs := range codegen.New(testkit.Lower(t, testkit.Lines(
		"int counter;",
		"int get(void) { return counter; }",
	)), &codegen.Analysis{}, codegen.Config{}).Globals() {
		if gs.Name == "counter" {
			strategy = gs.Strategy
		}
	}
	assert.Equal(t, "static", strategy)
}

func TestForkExecBecomesCommand(t *testing.T) {
	out := translate(t,
		"#include <unistd.h>",
		"#include <sys/wait.h>",
		"#include <stddef.h>",
		"int run(void) {",
		"    int status;",
		"    pid_t pid = fork();",
		"    if (pid < 0) {",
		"        return -1;",
		"    } else if (pid == 0) {",
		"        execlp(\"ls\", \"ls\", \"-l\", NULL);",
		"        _exit(127);",
		"    } else {",
		"        waitpid(pid, &status, 0);",
		"    }",
		"    return status;",
		"}",
	)
	src := funcOut(t, out, "run").Source
	assert.NotContains(t, src, "fork(")
	assert.NotContains(t, src, "execlp")
	assert.Contains(t, src, `std::process::Command::new("ls").arg("-l").status()`)
	assert.Contains(t, src, "if spawned.is_err() {")
	assert.Contains(t, src, "status = spawned.as_ref().map_or(-1, |s| s.code().unwrap_or(-1));")
}

func TestOutParamBecomesReturn(t *testing.T) {
	out := translate(t,
		"void get_size(int *out) {",
		"    *out = 42;",
		"}",
		"int main(void) {",
		"    int s;",
		"    get_size(&s);",
		"    return s;",
		"}",
	)
	assert.Contains(t, funcOut(t, out, "get_size").Source, "fn get_size() -> i32 {")
	assert.Contains(t, funcOut(t, out, "main").Source, "let val = get_size();")
}

func TestEnum(t *testing.T) {
	out := translate(t,
		"enum color { COLOR_RED, COLOR_GREEN = 5, COLOR_BLUE };",
		"enum color pick(int x) {",
		"    if (x) return COLOR_GREEN;",
		"    return COLOR_RED;",
		"}",
	)
	assert.Contains(t, out.Source, "pub enum Color {")
	assert.Contains(t, out.Source, "Red = 0,")
	assert.Contains(t, out.Source, "Green = 5,")
	assert.Contains(t, out.Source, "Blue = 6,")
	assert.Contains(t, out.Source, "Color::Green")
}

func TestTreeAndArenaStructs(t *testing.T) {
	t.Run("tree", func(t *testing.T) {
		out := translate(t,
			"struct node { int value; struct node *next; };",
			"int first(struct node *n) { return n->value; }",
		)
		assert.Contains(t, out.Source, "pub next: Option<Box<Node>>,")
		assert.NotContains(t, out.Source, "NodeArena")
	})
	t.Run("doubly linked", func(t *testing.T) {
		out := translate(t,
			"struct node { int value; struct node *next; struct node *prev; };",
			"void link(struct node *a, struct node *b) {",
			"    a->next = b;",
			"    b->prev = a;",
			"}",
		)
		assert.Contains(t, out.Source, "pub next: Option<usize>,")
		assert.Contains(t, out.Source, "pub struct NodeArena {")
	})
}

func TestMacrosBecomeConsts(t *testing.T) {
	out := translate(t,
		"#define LIMIT 16",
		"int limit(void) { return LIMIT; }",
	)
	assert.Contains(t, out.Source, "pub const LIMIT: i32 = 16;")
}

func TestOutputIsDeterministic(t *testing.T) {
	src := []string{
		"#include <stdlib.h>",
		"#include <stdio.h>",
		"struct item { int key; struct item *next; };",
		"int total(struct item *it) {",
		"    int s = 0;",
		"    while (it) { s += it->key; it = it->next; }",
		"    return s;",
		"}",
		"int main(void) {",
		"    printf(\"%d\\n\", total(NULL));",
		"    return 0;",
		"}",
	}
	first := translate(t, src...).Source
	for range 3 {
		require.Equal(t, first, translate(t, src...).Source)
	}
}
