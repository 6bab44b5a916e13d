// Package optimize simplifies a function body before code generation:
// literal arithmetic is folded and branches on constant conditions are
// removed. It always works on a copy, so the HIR the analyses ran on is
// never modified, and it keeps NodeIDs so analysis results still apply.
package optimize

import (
	"context"
	"fmt"

	"decant/internal/hir"
	"decant/internal/trace"
)

// MaxIterations bounds the fixed-point loop.
const MaxIterations = 3

// Stats counts what a run changed.
type Stats struct {
	Folded     int
	Pruned     int
	Iterations int
}

// Func returns an optimised copy of fn.
// Transformations, repeated until nothing changes or MaxIterations:
// 1. Fold integer literal arithmetic, comparisons, casts and ternaries
// 2. Replace `if (c)` on a constant with the taken branch
// 3. Drop `while (0)` loops and `for` loops whose condition is 0
func Func(fn *hir.Func, mod *hir.Module) (*hir.Func, Stats) {
	out := cloneFunc(fn)
	var st Stats
	if out.Body == nil {
		return out, st
	}
	for st.Iterations < MaxIterations {
		st.Iterations++
		f := &folder{mod: mod}
		out.Body.Stmts = f.stmts(out.Body.Stmts)
		st.Folded += f.folded
		st.Pruned += f.pruned
		if f.folded == 0 && f.pruned == 0 {
			break
		}
	}
	return out, st
}

// Module optimises every function of mod, in order.
func Module(ctx context.Context, mod *hir.Module) ([]*hir.Func, Stats) {
	span := trace.Begin(trace.FromContext(ctx), trace.ScopePass, "optimize", trace.ParentFromContext(ctx))
	var total Stats
	out := make([]*hir.Func, len(mod.Funcs))
	for i, fn := range mod.Funcs {
		var st Stats
		out[i], st = Func(fn, mod)
		total.Folded += st.Folded
		total.Pruned += st.Pruned
		total.Iterations = max(total.Iterations, st.Iterations)
	}
	span.WithExtra("folded", fmt.Sprint(total.Folded)).WithExtra("pruned", fmt.Sprint(total.Pruned)).End("")
	return out, total
}

func (f *folder) block(b *hir.Block) {
	if b != nil {
		b.Stmts = f.stmts(b.Stmts)
	}
}

func (f *folder) stmts(list []hir.Stmt) []hir.Stmt {
	out := list[:0]
	for _, s := range list {
		if keep, ok := f.stmt(s); ok {
			out = append(out, keep)
		}
	}
	return out
}

// stmt folds s and reports false when s is removed altogether.
func (f *folder) stmt(s hir.Stmt) (hir.Stmt, bool) {
	switch d := s.Data.(type) {
	case hir.DeclData:
		d.Init = f.expr(d.Init)
		s.Data = d
	case hir.ExprStmtData:
		d.Expr = f.expr(d.Expr)
		s.Data = d
	case hir.AssignData:
		d.Value = f.expr(d.Value)
		d.Target = f.lvalue(d.Target)
		s.Data = d
	case hir.ReturnData:
		d.Value = f.expr(d.Value)
		s.Data = d
	case hir.FreeData:
		d.Ptr = f.expr(d.Ptr)
		s.Data = d
	case hir.IfData:
		d.Cond = f.expr(d.Cond)
		f.block(d.Then)
		f.block(d.Else)
		if v, ok := d.Cond.IntValue(); ok {
			f.pruned++
			taken := d.Then
			if v == 0 {
				taken = d.Else
			}
			if taken == nil {
				return s, false
			}
			return hir.Stmt{ID: s.ID, Kind: hir.StmtBlock, Span: s.Span, Data: hir.BlockData{Block: taken}}, true
		}
		s.Data = d
	case hir.WhileData:
		d.Cond = f.expr(d.Cond)
		if v, ok := d.Cond.IntValue(); ok && v == 0 {
			f.pruned++
			return s, false
		}
		f.block(d.Body)
		s.Data = d
	case hir.DoWhileData:
		f.block(d.Body)
		d.Cond = f.expr(d.Cond)
		s.Data = d
	case hir.ForData:
		d.Init = f.stmts(d.Init)
		d.Cond = f.expr(d.Cond)
		if v, ok := d.Cond.IntValue(); ok && v == 0 {
			f.pruned++
			if len(d.Init) == 0 {
				return s, false
			}
			// the initialisers still run once
			return hir.Stmt{ID: s.ID, Kind: hir.StmtBlock, Span: s.Span, Data: hir.BlockData{
				Block: &hir.Block{Stmts: d.Init, Scope: d.Scope, Span: s.Span},
			}}, true
		}
		f.block(d.Body)
		d.Post = f.stmts(d.Post)
		s.Data = d
	case hir.SwitchData:
		d.Cond = f.expr(d.Cond)
		for i := range d.Cases {
			d.Cases[i].Body = f.stmts(d.Cases[i].Body)
		}
		s.Data = d
	case hir.BlockData:
		f.block(d.Block)
	}
	return s, true
}
