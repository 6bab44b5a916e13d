package bridge_test

import (
	"bytes"
	"testing"

	"decant/internal/diag"
	"decant/internal/hir"
	"decant/internal/testkit"
)

func bodyOf(t *testing.T, src, name string) []hir.Stmt {
	t.Helper()
	return testkit.Func(t, testkit.Lower(t, src), name).Body.Stmts
}

func TestMallocBecomesSingleAlloc(t *testing.T) {
	stmts := bodyOf(t, testkit.Lines(
		"#include <stdlib.h>",
		"void f(void) {",
		"    int *p = malloc(sizeof(int));",
		"    *p = 1;",
		"    free(p);",
		"}",
	), "f")
	if len(stmts) != 3 {
		t.Fatalf("expected 3 statements, got %d", len(stmts))
	}
	decl := stmts[0].Data.(hir.DeclData)
	if decl.Init.Kind != hir.ExprAlloc {
		t.Fatalf("init kind = %s, want Alloc", decl.Init.Kind)
	}
	a := decl.Init.Data.(hir.AllocData)
	if a.IsArray() || a.Elem == nil || a.Elem.Kind != hir.TInt {
		t.Errorf("alloc = %+v, want single int", a)
	}
	if got := decl.Init.Type.String(); got != "int*" {
		t.Errorf("alloc type = %s, want int*", got)
	}
	if stmts[1].Kind != hir.StmtAssign {
		t.Errorf("stmt 1 = %s, want Assign", stmts[1].Kind)
	}
	if stmts[2].Kind != hir.StmtFree {
		t.Errorf("stmt 2 = %s, want Free", stmts[2].Kind)
	}
}

func TestArrayAllocKeepsCount(t *testing.T) {
	stmts := bodyOf(t, testkit.Lines(
		"#include <stdlib.h>",
		"int *make(int n) {",
		"    int *a = (int *)malloc(n * sizeof(int));",
		"    int *b = calloc(n, sizeof *a);",
		"    return a;",
		"}",
	), "make")
	a := stmts[0].Data.(hir.DeclData).Init
	if a.Kind != hir.ExprAlloc {
		t.Fatalf("cast around malloc was not stripped: %s", a.Kind)
	}
	if d := a.Data.(hir.AllocData); !d.IsArray() || d.Count.Kind != hir.ExprVarRef {
		t.Errorf("malloc count = %+v", d.Count)
	}
	c := stmts[1].Data.(hir.DeclData).Init.Data.(hir.AllocData)
	if c.Kind != hir.AllocCalloc || c.Elem == nil || c.Elem.Kind != hir.TInt {
		t.Errorf("calloc = %+v", c)
	}
}

func TestArrayAllocNumbersCountOnce(t *testing.T) {
	src := testkit.Lines(
		"#include <stdlib.h>",
		"void f(int n) {",
		"    int *a = malloc(n * sizeof(int));",
		"    int *b = realloc(a, sizeof(int) * n);",
		"    free(b);",
		"}",
	)
	fn := testkit.Func(t, testkit.Lower(t, src), "f")
	seen := make(map[hir.NodeID]int)
	hir.Inspect(fn.Body,
		func(s *hir.Stmt) bool { seen[s.ID]++; return true },
		func(e *hir.Expr) bool { seen[e.ID]++; return true })
	if len(seen) != int(fn.Nodes) {
		t.Fatalf("visited %d distinct ids, func records %d", len(seen), fn.Nodes)
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("node %d visited %d times", id, n)
		}
	}

	a := fn.Body.Stmts[0].Data.(hir.DeclData).Init.Data.(hir.AllocData)
	size := a.Size.Data.(hir.BinaryData)
	if a.Count == nil || a.Count == size.Left || a.Count.ID == size.Left.ID {
		t.Errorf("count shares the size factor: count=%+v left=%+v", a.Count, size.Left)
	}
}

func TestIncrementsBecomeCompoundAssign(t *testing.T) {
	stmts := bodyOf(t, testkit.Lines(
		"void f(void) {",
		"    int i = 0;",
		"    i++;",
		"    ++i;",
		"    i += 2;",
		"    i--;",
		"}",
	), "f")
	want := []hir.BinaryOp{hir.BinAdd, hir.BinAdd, hir.BinAdd, hir.BinSub}
	for k, op := range want {
		s := stmts[k+1]
		d, ok := s.Data.(hir.AssignData)
		if !ok || !d.Compound || d.Op != op {
			t.Errorf("stmt %d = %s %+v, want compound %s", k+1, s.Kind, s.Data, op)
		}
	}
}

func TestChainedAssignIsSplit(t *testing.T) {
	stmts := bodyOf(t, "void f(void) { int a; int b; a = b = 0; }", "f")
	if len(stmts) != 4 {
		t.Fatalf("expected 4 statements, got %d", len(stmts))
	}
	first := stmts[2].Data.(hir.AssignData)
	second := stmts[3].Data.(hir.AssignData)
	if first.Target.Data.(hir.VarRefData).Name != "b" || second.Target.Data.(hir.VarRefData).Name != "a" {
		t.Errorf("wrong order: %+v then %+v", first, second)
	}
	if second.Value.Kind != hir.ExprVarRef {
		t.Errorf("outer value = %s, want a reference to b", second.Value.Kind)
	}
}

func TestPrecedence(t *testing.T) {
	stmts := bodyOf(t, "int f(int a, int b, int c) { return a + b * c << 1 == 4 && c; }", "f")
	root := stmts[0].Data.(hir.ReturnData).Value
	and := root.Data.(hir.BinaryData)
	if and.Op != hir.BinLogAnd {
		t.Fatalf("root op = %s, want &&", and.Op)
	}
	eq := and.Left.Data.(hir.BinaryData)
	shl := eq.Left.Data.(hir.BinaryData)
	add := shl.Left.Data.(hir.BinaryData)
	mul := add.Right.Data.(hir.BinaryData)
	if eq.Op != hir.BinEq || shl.Op != hir.BinShl || add.Op != hir.BinAdd || mul.Op != hir.BinMul {
		t.Errorf("tree = %s %s %s %s", eq.Op, shl.Op, add.Op, mul.Op)
	}
}

func TestSubtractionIsLeftAssociative(t *testing.T) {
	stmts := bodyOf(t, "int f(int a, int b, int c) { return a - b - c; }", "f")
	outer := stmts[0].Data.(hir.ReturnData).Value.Data.(hir.BinaryData)
	if outer.Left.Kind != hir.ExprBinary || outer.Right.Kind != hir.ExprVarRef {
		t.Errorf("a - b - c parsed right-associative")
	}
}

func TestTypedefStruct(t *testing.T) {
	mod := testkit.Lower(t, testkit.Lines(
		"typedef struct Node {",
		"    int value;",
		"    struct Node *next;",
		"} Node;",
		"int get(Node *n) { return n->next->value; }",
	))
	def := mod.Struct("Node")
	if def == nil || len(def.Fields) != 2 {
		t.Fatalf("struct Node = %+v", def)
	}
	if td := mod.Typedef("Node"); td == nil || td.Type.Kind != hir.TStruct {
		t.Fatalf("typedef Node = %+v", td)
	}
	ret := testkit.Func(t, mod, "get").Body.Stmts[0].Data.(hir.ReturnData).Value
	if ret.Type == nil || ret.Type.Kind != hir.TInt {
		t.Errorf("n->next->value has type %s, want int", ret.Type)
	}
}

func TestFunctionPointerTypedef(t *testing.T) {
	mod := testkit.Lower(t, "typedef int (*cmp_fn)(const void *, const void *);\n")
	td := mod.Typedef("cmp_fn")
	if td == nil || td.Type.Kind != hir.TFuncPtr || len(td.Type.Params) != 2 || td.Type.Len != 0 {
		t.Fatalf("typedef cmp_fn = %+v", td)
	}
}

func TestEnumValues(t *testing.T) {
	mod := testkit.Lower(t, "enum color { RED, GREEN = 5, BLUE, LAST = BLUE * 2 };\n")
	want := map[string]int64{"RED": 0, "GREEN": 5, "BLUE": 6, "LAST": 12}
	for name, v := range want {
		got, ok := mod.EnumConst(name)
		if !ok || got != v {
			t.Errorf("%s = %d (%v), want %d", name, got, ok, v)
		}
	}
}

func TestSwitchGroupsLabels(t *testing.T) {
	stmts := bodyOf(t, testkit.Lines(
		"int f(int k) {",
		"    int x = 0;",
		"    switch (k) {",
		"    case 1:",
		"    case 2:",
		"        x = 1;",
		"        break;",
		"    default:",
		"        x = 2;",
		"    }",
		"    return x;",
		"}",
	), "f")
	sw := stmts[1].Data.(hir.SwitchData)
	if len(sw.Cases) != 2 {
		t.Fatalf("expected 2 label groups, got %d", len(sw.Cases))
	}
	if len(sw.Cases[0].Values) != 2 || len(sw.Cases[0].Body) != 2 {
		t.Errorf("first group = %+v", sw.Cases[0])
	}
	if !sw.Cases[1].IsDefault {
		t.Errorf("second group is not default")
	}
}

func TestGotoSkipsOnlyThatFunction(t *testing.T) {
	mod, errs, err := testkit.Build(testkit.Lines(
		"int ok(void) { return 1; }",
		"int bad(int x) {",
		"    if (x) goto out;",
		"    return 0;",
		"out:",
		"    return 1;",
		"}",
	))
	if err != nil {
		t.Fatal(err)
	}
	if mod.FuncByName("ok") == nil || mod.FuncByName("bad") != nil {
		t.Fatalf("funcs = %d, want only ok", len(mod.Funcs))
	}
	if mod.Proto("bad") == nil {
		t.Errorf("skipped function should remain as a prototype")
	}
	found := false
	for _, e := range errs {
		if e.Code == diag.BldGoto && e.Func == "bad" {
			found = true
		}
	}
	if !found {
		t.Errorf("missing goto error: %v", errs)
	}
}

func TestArityMismatch(t *testing.T) {
	_, errs, err := testkit.Build(testkit.Lines(
		"int add(int a, int b) { return a + b; }",
		"int main(void) { return add(1); }",
	))
	if err != nil {
		t.Fatal(err)
	}
	if len(errs) != 1 || errs[0].Code != diag.BldArityMismatch || errs[0].Func != "main" {
		t.Errorf("errs = %v", errs)
	}
}

func TestMacros(t *testing.T) {
	mod, errs, err := testkit.Build(testkit.Lines(
		"#define SIZE 16",
		"#define NAME \"box\"",
		"#define SQUARE(x) ((x) * (x))",
		"int buf[SIZE];",
		"int f(int v) { return SQUARE(v); }",
	))
	if err != nil {
		t.Fatal(err)
	}
	if g := mod.GlobalByName("buf"); g == nil || g.Type.Len != 16 {
		t.Fatalf("buf = %+v", g)
	}
	if m := mod.Macro("NAME"); m == nil || m.Value.Data.(hir.LiteralData).Text != "box" {
		t.Errorf("NAME = %+v", m)
	}
	var codes []diag.Code
	for _, e := range errs {
		codes = append(codes, e.Code)
	}
	if len(codes) != 2 || codes[0] != diag.BldFunctionMacro || codes[1] != diag.BldMacroCall {
		t.Errorf("codes = %v", codes)
	}
}

func TestNullAndCasts(t *testing.T) {
	stmts := bodyOf(t, testkit.Lines(
		"#include <stddef.h>",
		"void f(void) {",
		"    char *a = NULL;",
		"    char *b = (char *)0;",
		"    long n = (long)a;",
		"}",
	), "f")
	for i := range 2 {
		init := stmts[i].Data.(hir.DeclData).Init
		if !init.IsNull() || init.Type.String() != "char*" {
			t.Errorf("stmt %d init = %s %s", i, init.Kind, init.Type)
		}
	}
	if init := stmts[2].Data.(hir.DeclData).Init; init.Kind != hir.ExprCast {
		t.Errorf("(long)a = %s, want Cast", init.Kind)
	}
}

func TestLoweringIsDeterministic(t *testing.T) {
	src := testkit.Lines(
		"struct pair { int a; int b; };",
		"int sum(struct pair *p, int n) {",
		"    int s = 0;",
		"    for (int i = 0; i < n; i++) {",
		"        s += p[i].a * p[i].b;",
		"    }",
		"    return s;",
		"}",
	)
	var first, second bytes.Buffer
	if err := hir.Dump(&first, testkit.Lower(t, src)); err != nil {
		t.Fatal(err)
	}
	if err := hir.Dump(&second, testkit.Lower(t, src)); err != nil {
		t.Fatal(err)
	}
	if first.String() != second.String() {
		t.Errorf("dumps differ:\n%s\n---\n%s", first.String(), second.String())
	}
}

func TestStringEscapes(t *testing.T) {
	stmts := bodyOf(t, `void f(void) { const char *s = "a\tb\0" "c\x41\101"; }`, "f")
	lit := stmts[0].Data.(hir.DeclData).Init.Data.(hir.LiteralData)
	if lit.Text != "a\tb\x00cAA" {
		t.Errorf("text = %q", lit.Text)
	}
}
