package optimize_test

import (
	"testing"

	"decant/internal/hir"
	"decant/internal/optimize"
	"decant/internal/testkit"
)

func optimized(t *testing.T, name string, lines ...string) (*hir.Func, *hir.Func, optimize.Stats) {
	t.Helper()
	mod := testkit.Lower(t, testkit.Lines(lines...))
	fn := testkit.Func(t, mod, name)
	before := hir.FuncString(fn)
	out, st := optimize.Func(fn, mod)
	if after := hir.FuncString(fn); after != before {
		t.Fatalf("input was modified:\n%s\nbecame\n%s", before, after)
	}
	return fn, out, st
}

func TestFoldArithmetic(t *testing.T) {
	_, out, st := optimized(t, "f",
		"int f(void) {",
		"    int x = 2 * 3 + 1;",
		"    return x << (1 + 1);",
		"}",
	)
	init := out.Body.Stmts[0].Data.(hir.DeclData).Init
	if v, ok := init.IntValue(); !ok || v != 7 {
		t.Fatalf("init = %s, want 7", hir.ExprString(init))
	}
	ret := out.Body.Stmts[1].Data.(hir.ReturnData).Value.Data.(hir.BinaryData)
	if v, ok := ret.Right.IntValue(); !ok || v != 2 {
		t.Fatalf("shift = %s, want 2", hir.ExprString(ret.Right))
	}
	if st.Folded != 3 {
		t.Fatalf("folded %d, want 3", st.Folded)
	}
}

func TestFoldKeepsNodeIDs(t *testing.T) {
	fn, out, _ := optimized(t, "f",
		"int f(void) {",
		"    return 4 - 1;",
		"}",
	)
	orig := fn.Body.Stmts[0].Data.(hir.ReturnData).Value
	got := out.Body.Stmts[0].Data.(hir.ReturnData).Value
	if got.ID != orig.ID || got.Kind != hir.ExprLiteral {
		t.Fatalf("folded node %d %s, want literal with id %d", got.ID, got.Kind, orig.ID)
	}
}

func TestNoFoldOnUndefinedOrOverflow(t *testing.T) {
	_, out, st := optimized(t, "f",
		"int f(void) {",
		"    int a = 1 / 0;",
		"    int b = 2147483647 + 1;",
		"    return a + b;",
		"}",
	)
	for i := range 2 {
		if init := out.Body.Stmts[i].Data.(hir.DeclData).Init; init.Kind != hir.ExprBinary {
			t.Errorf("stmt %d folded to %s", i, hir.ExprString(init))
		}
	}
	if st.Folded != 0 {
		t.Fatalf("folded %d, want 0", st.Folded)
	}
}

func TestDeadBranches(t *testing.T) {
	tests := []struct {
		name  string
		body  []string
		kinds []hir.StmtKind
	}{
		{
			name:  "if zero without else",
			body:  []string{"    if (0) { n = 1; }", "    return n;"},
			kinds: []hir.StmtKind{hir.StmtReturn},
		},
		{
			name:  "if one",
			body:  []string{"    if (1) { n = 1; } else { n = 2; }", "    return n;"},
			kinds: []hir.StmtKind{hir.StmtBlock, hir.StmtReturn},
		},
		{
			name:  "folded condition",
			body:  []string{"    if (2 > 3) { n = 1; } else { n = 2; }", "    return n;"},
			kinds: []hir.StmtKind{hir.StmtBlock, hir.StmtReturn},
		},
		{
			name:  "while zero",
			body:  []string{"    while (0) { n++; }", "    return n;"},
			kinds: []hir.StmtKind{hir.StmtReturn},
		},
		{
			name:  "runtime condition kept",
			body:  []string{"    if (n > 3) { n = 1; }", "    return n;"},
			kinds: []hir.StmtKind{hir.StmtIf, hir.StmtReturn},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := append([]string{"int f(int n) {"}, tt.body...)
			lines = append(lines, "}")
			_, out, _ := optimized(t, "f", lines...)
			if len(out.Body.Stmts) != len(tt.kinds) {
				t.Fatalf("got %d statements, want %d", len(out.Body.Stmts), len(tt.kinds))
			}
			for i, k := range tt.kinds {
				if out.Body.Stmts[i].Kind != k {
					t.Errorf("stmt %d is %s, want %s", i, out.Body.Stmts[i].Kind, k)
				}
			}
		})
	}
}

func TestIterationsAreBounded(t *testing.T) {
	_, _, st := optimized(t, "f",
		"int f(int n) {",
		"    if (1 + 1 == 2) { if (0 == 0) { if (3 > 2) { n = 1; } } }",
		"    return n;",
		"}",
	)
	if st.Iterations < 1 || st.Iterations > optimize.MaxIterations {
		t.Fatalf("iterations = %d", st.Iterations)
	}
}
