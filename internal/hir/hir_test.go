package hir_test

import (
	"bytes"
	"strings"
	"testing"

	"decant/internal/hir"
)

func varRef(name string, id hir.LocalID, t *hir.Type) *hir.Expr {
	return &hir.Expr{Kind: hir.ExprVarRef, Type: t, Data: hir.VarRefData{Name: name, Ref: hir.RefLocal, Local: id}}
}

func intLit(v int64) *hir.Expr {
	return &hir.Expr{Kind: hir.ExprLiteral, Type: hir.Int, Data: hir.LiteralData{Kind: hir.LitInt, Int: v, Text: "1"}}
}

func sampleFunc() *hir.Func {
	p := hir.PointerTo(hir.Int)
	fn := &hir.Func{
		ID:     1,
		Name:   "bump",
		Result: hir.Void,
		Params: []hir.Param{{Name: "p", Local: 1, Type: p}},
		Locals: []hir.Local{{ID: 1, Name: "p", Type: p, Scope: hir.FuncScope, Param: true}},
		Scopes: []hir.Scope{{ID: hir.FuncScope}, {ID: 2, Parent: hir.FuncScope, Depth: 1}},
	}
	deref := &hir.Expr{Kind: hir.ExprUnary, Type: hir.Int, Data: hir.UnaryData{Op: hir.UnDeref, Operand: varRef("p", 1, p)}}
	fn.Body = &hir.Block{Scope: hir.FuncScope, Stmts: []hir.Stmt{
		{Kind: hir.StmtIf, Data: hir.IfData{
			Cond: varRef("p", 1, p),
			Then: &hir.Block{Scope: 2, Stmts: []hir.Stmt{
				{Kind: hir.StmtAssign, Data: hir.AssignData{Target: deref, Value: intLit(1), Op: hir.BinAdd, Compound: true}},
			}},
		}},
		{Kind: hir.StmtReturn, Data: hir.ReturnData{}},
	}}
	hir.Number(fn)
	return fn
}

func TestNumberIsPreOrder(t *testing.T) {
	fn := sampleFunc()
	var ids []hir.NodeID
	hir.Inspect(fn.Body,
		func(s *hir.Stmt) bool { ids = append(ids, s.ID); return true },
		func(e *hir.Expr) bool { ids = append(ids, e.ID); return true })
	for i, id := range ids {
		if id != hir.NodeID(i+1) {
			t.Fatalf("node %d has id %d, want %d", i, id, i+1)
		}
	}
	// if, cond, assign, deref, p, 1, return
	if fn.Nodes != 7 {
		t.Errorf("expected 7 nodes, got %d", fn.Nodes)
	}
}

func TestScopeWithin(t *testing.T) {
	fn := sampleFunc()
	if !fn.ScopeWithin(2, hir.FuncScope) {
		t.Error("block scope should be inside the function scope")
	}
	if fn.ScopeWithin(hir.FuncScope, 2) {
		t.Error("function scope is not inside its child")
	}
	if fn.ParamIndex(1) != 0 {
		t.Errorf("expected param index 0, got %d", fn.ParamIndex(1))
	}
}

func TestTypeString(t *testing.T) {
	tests := []struct {
		typ  *hir.Type
		want string
	}{
		{hir.Int, "int"},
		{hir.UInt, "unsigned int"},
		{hir.PointerTo(hir.Char.WithConst()), "const char*"},
		{hir.ArrayOf(hir.Double, 4), "double[4]"},
		{hir.PointerTo(hir.Named(hir.TStruct, "node")), "struct node*"},
		{&hir.Type{Kind: hir.TFuncPtr, Result: hir.Int, Params: []*hir.Type{hir.Int}}, "int (*)(int)"},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestTypeEqualIgnoresConst(t *testing.T) {
	a := hir.PointerTo(hir.Int)
	b := hir.PointerTo(hir.Int.WithConst())
	if !a.Equal(b) {
		t.Error("const should not affect equality")
	}
	if a.Equal(hir.PointerTo(hir.Long)) {
		t.Error("int* and long* must differ")
	}
}

func TestResolveTypedefChain(t *testing.T) {
	m := &hir.Module{
		Typedefs: []*hir.TypedefDef{
			{Name: "u32", Type: hir.UInt},
			{Name: "count_t", Type: hir.Named(hir.TTypedef, "u32")},
			{Name: "loop", Type: hir.Named(hir.TTypedef, "loop")},
		},
	}
	m.Reindex()
	got := m.Resolve(hir.Named(hir.TTypedef, "count_t").WithConst())
	if got.Kind != hir.TInt || !got.Unsigned || !got.Const {
		t.Errorf("unexpected resolved type %s", got)
	}
	if r := m.Resolve(hir.Named(hir.TTypedef, "loop")); r.Kind != hir.TTypedef {
		t.Errorf("self-referential typedef should stay a typedef, got %s", r)
	}
}

func TestDump(t *testing.T) {
	m := &hir.Module{Path: "bump.c", Funcs: []*hir.Func{sampleFunc()}}
	var buf bytes.Buffer
	if err := hir.Dump(&buf, m); err != nil {
		t.Fatalf("dump failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"fn bump(p: int*)", "*p += 1", "return"} {
		if !strings.Contains(out, want) {
			t.Errorf("dump missing %q:\n%s", want, out)
		}
	}
}
