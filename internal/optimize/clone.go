package optimize

import "decant/internal/hir"

// cloneFunc copies fn's body deeply; params, locals and scopes are shared
// since no pass rewrites them.
func cloneFunc(fn *hir.Func) *hir.Func {
	c := *fn
	c.Body = cloneBlock(fn.Body)
	return &c
}

func cloneBlock(b *hir.Block) *hir.Block {
	if b == nil {
		return nil
	}
	return &hir.Block{Stmts: cloneStmts(b.Stmts), Scope: b.Scope, Span: b.Span}
}

func cloneStmts(list []hir.Stmt) []hir.Stmt {
	if list == nil {
		return nil
	}
	out := make([]hir.Stmt, len(list))
	for i := range list {
		out[i] = cloneStmt(list[i])
	}
	return out
}

func cloneStmt(s hir.Stmt) hir.Stmt {
	switch d := s.Data.(type) {
	case hir.DeclData:
		d.Init = hir.CloneExpr(d.Init)
		s.Data = d
	case hir.ExprStmtData:
		d.Expr = hir.CloneExpr(d.Expr)
		s.Data = d
	case hir.AssignData:
		d.Target, d.Value = hir.CloneExpr(d.Target), hir.CloneExpr(d.Value)
		s.Data = d
	case hir.ReturnData:
		d.Value = hir.CloneExpr(d.Value)
		s.Data = d
	case hir.FreeData:
		d.Ptr = hir.CloneExpr(d.Ptr)
		s.Data = d
	case hir.IfData:
		d.Cond, d.Then, d.Else = hir.CloneExpr(d.Cond), cloneBlock(d.Then), cloneBlock(d.Else)
		s.Data = d
	case hir.WhileData:
		d.Cond, d.Body = hir.CloneExpr(d.Cond), cloneBlock(d.Body)
		s.Data = d
	case hir.DoWhileData:
		d.Body, d.Cond = cloneBlock(d.Body), hir.CloneExpr(d.Cond)
		s.Data = d
	case hir.ForData:
		d.Init, d.Cond, d.Post, d.Body = cloneStmts(d.Init), hir.CloneExpr(d.Cond), cloneStmts(d.Post), cloneBlock(d.Body)
		s.Data = d
	case hir.SwitchData:
		d.Cond = hir.CloneExpr(d.Cond)
		cases := make([]hir.SwitchCase, len(d.Cases))
		for i, c := range d.Cases {
			c.Values = hir.CloneExprs(c.Values)
			c.Body = cloneStmts(c.Body)
			cases[i] = c
		}
		d.Cases = cases
		s.Data = d
	case hir.BlockData:
		d.Block = cloneBlock(d.Block)
		s.Data = d
	}
	return s
}
