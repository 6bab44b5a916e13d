package patterns_test

import (
	"slices"
	"testing"

	"decant/internal/dataflow"
	"decant/internal/hir"
	"decant/internal/patterns"
	"decant/internal/testkit"
)

func hintsOf(t *testing.T, src, name string) *patterns.Hints {
	t.Helper()
	mod := testkit.Lower(t, src)
	fn := testkit.Func(t, mod, name)
	g := dataflow.NewAnalyzer(mod, nil).Build(fn)
	return patterns.Detect(fn, g, patterns.NewIndex(mod))
}

func paramName(h *patterns.Hints, l hir.LocalID) string {
	return h.Func.Local(l).Name
}

func TestOutParam(t *testing.T) {
	tests := []struct {
		name     string
		src      []string
		fn       string
		want     int
		fallible bool
	}{
		{
			name: "void setter",
			src: []string{
				"void get_size(int *out) {",
				"    *out = 42;",
				"}",
				"int main(void) {",
				"    int s;",
				"    get_size(&s);",
				"    return s;",
				"}",
			},
			fn:   "get_size",
			want: 1,
		},
		{
			name: "status code",
			src: []string{
				"int parse(const char *s, int *out) {",
				"    if (!s) return -1;",
				"    *out = 7;",
				"    return 0;",
				"}",
				"int main(void) {",
				"    int v;",
				"    if (parse(\"7\", &v) != 0) return 1;",
				"    return v;",
				"}",
			},
			fn:       "parse",
			want:     1,
			fallible: true,
		},
		{
			name: "read before write",
			src: []string{
				"void bump(int *out) {",
				"    *out += 1;",
				"}",
				"int main(void) {",
				"    int s = 0;",
				"    bump(&s);",
				"    return s;",
				"}",
			},
			fn: "bump",
		},
		{
			name: "null checked",
			src: []string{
				"void get(int *out) {",
				"    if (out) *out = 1;",
				"}",
				"int main(void) {",
				"    int s;",
				"    get(&s);",
				"    return s;",
				"}",
			},
			fn: "get",
		},
		{
			name: "caller passes a pointer",
			src: []string{
				"void get(int *out) {",
				"    *out = 1;",
				"}",
				"void relay(int *p) {",
				"    get(p);",
				"}",
			},
			fn: "get",
		},
		{
			name: "non constant status",
			src: []string{
				"int get(int n, int *out) {",
				"    *out = n;",
				"    return n - 1;",
				"}",
				"int main(void) {",
				"    int v;",
				"    return get(2, &v);",
				"}",
			},
			fn: "get",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := hintsOf(t, testkit.Lines(tt.src...), tt.fn)
			if len(h.OutParams) != tt.want {
				t.Fatalf("got %d output params, want %d", len(h.OutParams), tt.want)
			}
			if tt.want == 0 {
				return
			}
			op := h.OutParams[0]
			if op.Name != "out" || op.Elem.Kind != hir.TInt || op.Fallible != tt.fallible {
				t.Fatalf("out param = %+v", op)
			}
			if !op.Write.IsValid() {
				t.Fatalf("write statement not recorded")
			}
			if h.OutParam(op.Local) == nil {
				t.Fatalf("OutParam lookup failed")
			}
		})
	}
}

func TestVoidPointerGeneric(t *testing.T) {
	t.Run("comparator", func(t *testing.T) {
		h := hintsOf(t, testkit.Lines(
			"int less(const void *a, const void *b) {",
			"    const int *x = a;",
			"    const int *y = b;",
			"    return *x < *y;",
			"}",
			"int main(void) {",
			"    int u = 1, v = 2;",
			"    return less(&u, &v);",
			"}",
		), "less")
		if len(h.Generics) != 2 {
			t.Fatalf("got %d generics, want 2", len(h.Generics))
		}
		for _, gp := range h.Generics {
			if gp.Elem.Kind != hir.TInt || gp.Elem.Const {
				t.Errorf("%s elem = %s", gp.Name, gp.Elem)
			}
			if got := gp.Bounds.List(); !slices.Equal(got, []string{"PartialOrd"}) {
				t.Errorf("%s bounds = %v", gp.Name, got)
			}
			if len(gp.Views) != 1 {
				t.Errorf("%s views = %v", gp.Name, gp.Views)
			}
		}
	})
	t.Run("difference reads by value", func(t *testing.T) {
		h := hintsOf(t, testkit.Lines(
			"int diff(const void *a, const void *b) {",
			"    return *(const int *)a - *(const int *)b;",
			"}",
			"int main(void) {",
			"    int u = 1, v = 2;",
			"    return diff(&u, &v);",
			"}",
		), "diff")
		if len(h.Generics) != 2 {
			t.Fatalf("got %d generics, want 2", len(h.Generics))
		}
		if got := h.Generics[0].Bounds.List(); !slices.Equal(got, []string{"Copy"}) {
			t.Fatalf("bounds = %v", got)
		}
	})
	t.Run("memcpy", func(t *testing.T) {
		h := hintsOf(t, testkit.Lines(
			"#include <string.h>",
			"void copy(void *dst, const void *src) {",
			"    memcpy(dst, src, sizeof(int));",
			"}",
			"int main(void) {",
			"    int x = 0, y = 3;",
			"    copy(&x, &y);",
			"    return x;",
			"}",
		), "copy")
		if len(h.Generics) != 2 {
			t.Fatalf("got %d generics, want 2", len(h.Generics))
		}
		dst, src := h.Generics[0], h.Generics[1]
		if got := dst.Bounds.List(); !slices.Equal(got, []string{"Clone"}) {
			t.Errorf("dst bounds = %v", got)
		}
		if got := src.Bounds.List(); !slices.Equal(got, []string{"Copy"}) {
			t.Errorf("src bounds = %v", got)
		}
		if dst.Elem.Kind != hir.TInt {
			t.Errorf("elem from call sites = %s", dst.Elem)
		}
	})
	t.Run("inconsistent call sites", func(t *testing.T) {
		h := hintsOf(t, testkit.Lines(
			"int same(const void *a, const void *b) {",
			"    const int *x = a;",
			"    const int *y = b;",
			"    return *x == *y;",
			"}",
			"int main(void) {",
			"    int u = 1;",
			"    double d = 2.0;",
			"    return same(&u, &d);",
			"}",
		), "same")
		if len(h.Generics) != 1 || h.Generics[0].Name != "a" {
			t.Fatalf("generics = %+v, want only a", h.Generics)
		}
		if got := h.Generics[0].Bounds.List(); !slices.Equal(got, []string{"PartialEq"}) {
			t.Fatalf("bounds = %v", got)
		}
	})
	t.Run("address taken", func(t *testing.T) {
		h := hintsOf(t, testkit.Lines(
			"#include <stdlib.h>",
			"int cmp(const void *a, const void *b) {",
			"    return *(const int *)a - *(const int *)b;",
			"}",
			"void sort(int *v, size_t n) {",
			"    qsort(v, n, sizeof(int), cmp);",
			"}",
		), "cmp")
		if len(h.Generics) != 0 {
			t.Fatalf("generics = %+v, want none", h.Generics)
		}
	})
}

var spawnSrc = []string{
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
}

func TestForkExec(t *testing.T) {
	h := hintsOf(t, testkit.Lines(spawnSrc...), "run")
	if len(h.Spawns) != 1 {
		t.Fatalf("got %d spawns, want 1", len(h.Spawns))
	}
	sp := h.Spawns[0]
	if name, ok := sp.ProgramName(); !ok || name != "ls" {
		t.Fatalf("program = %q", name)
	}
	if sp.Exec != "execlp" || !sp.SearchesPath() || len(sp.Args) != 1 || sp.Argv != nil {
		t.Fatalf("spawn = %+v", sp)
	}
	if sp.Error == nil || sp.Parent == nil || !sp.HasWait {
		t.Fatalf("arms not recorded: %+v", sp)
	}
	if paramName(h, sp.Status) != "status" || paramName(h, sp.Pid) != "pid" {
		t.Fatalf("status %v pid %v", sp.Status, sp.Pid)
	}
	if sp.Fork != 1 || sp.If != 2 || h.SpawnAt(sp.ForkStmt) == nil {
		t.Fatalf("positions fork=%d if=%d", sp.Fork, sp.If)
	}
}

func TestForkExecWaitAfterIf(t *testing.T) {
	h := hintsOf(t, testkit.Lines(
		"#include <unistd.h>",
		"#include <sys/wait.h>",
		"void run(const char *path, char **argv) {",
		"    int status;",
		"    pid_t pid;",
		"    pid = fork();",
		"    if (!pid) {",
		"        execv(path, argv);",
		"        _exit(1);",
		"    }",
		"    wait(&status);",
		"}",
	), "run")
	if len(h.Spawns) != 1 {
		t.Fatalf("got %d spawns, want 1", len(h.Spawns))
	}
	sp := h.Spawns[0]
	if sp.Argv == nil || sp.Parent != nil || sp.Error != nil || sp.SearchesPath() {
		t.Fatalf("spawn = %+v", sp)
	}
}

func TestForkExecRejected(t *testing.T) {
	tests := map[string][]string{
		"child does more than exec": {
			"#include <unistd.h>",
			"#include <sys/wait.h>",
			"#include <stddef.h>",
			"void run(int fd) {",
			"    pid_t pid = fork();",
			"    if (pid == 0) {",
			"        dup2(fd, 1);",
			"        execlp(\"ls\", \"ls\", NULL);",
			"    }",
			"    waitpid(pid, NULL, 0);",
			"}",
		},
		"pid escapes": {
			"#include <unistd.h>",
			"#include <sys/wait.h>",
			"#include <stdio.h>",
			"#include <stddef.h>",
			"void run(void) {",
			"    pid_t pid = fork();",
			"    if (pid == 0) {",
			"        execlp(\"ls\", \"ls\", NULL);",
			"    }",
			"    printf(\"%d\\n\", pid);",
			"    waitpid(pid, NULL, 0);",
			"}",
		},
		"no wait": {
			"#include <unistd.h>",
			"#include <stddef.h>",
			"void run(void) {",
			"    pid_t pid = fork();",
			"    if (pid == 0) {",
			"        execlp(\"ls\", \"ls\", NULL);",
			"    }",
			"}",
		},
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			if h := hintsOf(t, testkit.Lines(src...), "run"); len(h.Spawns) != 0 {
				t.Fatalf("unexpected spawn: %+v", h.Spawns[0])
			}
		})
	}
}

func TestArrayWithLength(t *testing.T) {
	tests := []struct {
		name string
		cond string
		want bool
	}{
		{"less than", "i < len", true},
		{"less equal minus one", "i <= len - 1", true},
		{"greater than", "len > i", true},
		{"guarded conjunction", "i < len && arr[i] != 0", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := hintsOf(t, testkit.Lines(
				"int sum(int *arr, int len) {",
				"    int s = 0;",
				"    for (int i = 0; "+tt.cond+"; i++) {",
				"        s += arr[i];",
				"    }",
				"    return s;",
				"}",
				"int main(void) {",
				"    int a[4] = {1, 2, 3, 4};",
				"    return sum(a, 4);",
				"}",
			), "sum")
			if got := len(h.Slices) == 1; got != tt.want {
				t.Fatalf("matched = %v, want %v", got, tt.want)
			}
			sl := h.Slices[0]
			if paramName(h, sl.Ptr) != "arr" || paramName(h, sl.Len) != "len" || sl.PtrIndex != 0 || sl.LenIndex != 1 {
				t.Fatalf("slice = %+v", sl)
			}
			if len(sl.Loops) != 1 || h.Slice(sl.Len) != h.Slice(sl.Ptr) {
				t.Fatalf("loops = %v", sl.Loops)
			}
		})
	}
}

func TestArrayWithLengthRejected(t *testing.T) {
	tests := map[string][]string{
		"length used outside loops": {
			"int sum(int *arr, int len) {",
			"    int s = 0;",
			"    for (int i = 0; i < len; i++) {",
			"        s += arr[i];",
			"    }",
			"    return s / len;",
			"}",
		},
		"null at a call site": {
			"#include <stddef.h>",
			"int sum(int *arr, int len) {",
			"    int s = 0;",
			"    for (int i = 0; i < len; i++) s += arr[i];",
			"    return s;",
			"}",
			"int main(void) {",
			"    return sum(NULL, 0);",
			"}",
		},
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			if h := hintsOf(t, testkit.Lines(src...), "sum"); len(h.Slices) != 0 {
				t.Fatalf("unexpected slice: %+v", h.Slices[0])
			}
		})
	}
}

func TestIndexArgFuncs(t *testing.T) {
	mod := testkit.Lower(t, testkit.Lines(
		"int apply(int (*f)(int), int x) {",
		"    return f(x);",
		"}",
		"int inc(int x) { return x + 1; }",
		"int dbl(int x) { return 2 * x; }",
		"int main(void) {",
		"    return apply(inc, 1) + apply(dbl, 2) + apply(&inc, 3);",
		"}",
	))
	idx := patterns.NewIndex(mod)
	if n := len(idx.Calls("apply")); n != 3 {
		t.Fatalf("apply has %d call sites, want 3", n)
	}
	names, ok := idx.ArgFuncs(mod, "apply", 0)
	if !ok || !slices.Equal(names, []string{"inc", "dbl"}) {
		t.Fatalf("arg funcs = %v %v", names, ok)
	}
	if !idx.AddressTaken("inc") || idx.AddressTaken("apply") {
		t.Fatalf("address taken flags wrong")
	}
	if _, ok := idx.ArgFuncs(mod, "apply", 1); ok {
		t.Fatalf("integer argument matched as function")
	}
}
