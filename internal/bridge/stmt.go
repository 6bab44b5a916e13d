package bridge

import (
	"decant/internal/cparse"
	"decant/internal/diag"
	"decant/internal/hir"
	"decant/internal/source"
	"decant/internal/stdlib"
)

func (fb *funcBuilder) items(items []*cparse.Statement) []hir.Stmt {
	var out []hir.Stmt
	for _, it := range items {
		out = fb.stmt(it, out)
	}
	return out
}

func (fb *funcBuilder) compound(c *cparse.Compound) *hir.Block {
	sp := fb.b.span(c.Pos, c.EndPos)
	scope := fb.pushScope(sp)
	stmts := fb.items(c.Items)
	fb.popScope()
	return &hir.Block{Stmts: stmts, Scope: scope, Span: sp}
}

// blockOf wraps a single statement body in its own block.
func (fb *funcBuilder) blockOf(s *cparse.Statement) *hir.Block {
	if s.Compound != nil {
		return fb.compound(s.Compound)
	}
	sp := fb.b.span(s.Pos, s.EndPos)
	scope := fb.pushScope(sp)
	stmts := fb.stmt(s, nil)
	fb.popScope()
	return &hir.Block{Stmts: stmts, Scope: scope, Span: sp}
}

func (fb *funcBuilder) stmt(s *cparse.Statement, out []hir.Stmt) []hir.Stmt {
	sp := fb.b.span(s.Pos, s.EndPos)
	switch {
	case s.Compound != nil:
		return append(out, hir.Stmt{Kind: hir.StmtBlock, Span: sp, Data: hir.BlockData{Block: fb.compound(s.Compound)}})
	case s.If != nil:
		d := hir.IfData{Cond: fb.expr(s.If.Cond), Then: fb.blockOf(s.If.Then)}
		if s.If.Else != nil {
			d.Else = fb.blockOf(s.If.Else)
		}
		return append(out, hir.Stmt{Kind: hir.StmtIf, Span: sp, Data: d})
	case s.While != nil:
		d := hir.WhileData{Cond: fb.expr(s.While.Cond), Body: fb.blockOf(s.While.Body)}
		return append(out, hir.Stmt{Kind: hir.StmtWhile, Span: sp, Data: d})
	case s.Do != nil:
		body := fb.blockOf(s.Do.Body)
		d := hir.DoWhileData{Body: body, Cond: fb.expr(s.Do.Cond)}
		return append(out, hir.Stmt{Kind: hir.StmtDoWhile, Span: sp, Data: d})
	case s.For != nil:
		return append(out, fb.forStmt(s.For, sp))
	case s.Switch != nil:
		return append(out, fb.switchStmt(s.Switch, sp))
	case s.Case != nil:
		fb.fail(diag.BldUnsupported, sp, "case label outside the top level of a switch body")
		return out
	case s.Return != nil:
		d := hir.ReturnData{}
		if s.Return.Value != nil {
			d.Value = fb.coerce(fb.expr(s.Return.Value), fb.fn.Result)
		}
		return append(out, hir.Stmt{Kind: hir.StmtReturn, Span: sp, Data: d})
	case s.Break:
		return append(out, hir.Stmt{Kind: hir.StmtBreak, Span: sp, Data: hir.BreakData{}})
	case s.Continue:
		return append(out, hir.Stmt{Kind: hir.StmtContinue, Span: sp, Data: hir.ContinueData{}})
	case s.Goto != nil:
		fb.fail(diag.BldGoto, sp, "goto %s is not supported", *s.Goto)
		return out
	case s.Label != nil:
		fb.fail(diag.BldGoto, sp, "label %s: goto targets are not supported", *s.Label)
		return out
	case s.Directive != nil:
		fb.fail(diag.BldUnsupported, sp, "preprocessor directive inside a function body")
		return out
	case s.Decl != nil:
		return fb.localDecl(s.Decl, out)
	case s.Empty:
		return out
	case s.Expr != nil:
		return fb.exprStmts(s.Expr, out)
	}
	return out
}

func (fb *funcBuilder) localDecl(d *cparse.Declaration, out []hir.Stmt) []hir.Stmt {
	b := fb.b
	sp := b.span(d.Pos, d.EndPos)
	if d.Body != nil {
		fb.fail(diag.BldUnsupported, sp, "nested function definitions are not supported")
		return out
	}
	defines := (d.Specs.Struct != nil && d.Specs.Struct.Body) || (d.Specs.Enum != nil && d.Specs.Enum.Body)
	if d.Typedef {
		spec := b.specs(d.Specs, typedefName(d), len(d.Inits) == 0, fb)
		b.typedef(d, spec)
		b.mod.Reindex()
		return out
	}
	spec := b.specs(d.Specs, "", false, fb)
	if defines {
		b.mod.Reindex()
	}
	for _, init := range d.Inits {
		r := b.declarator(spec.base, init.Decl, fb)
		if r.isFunc {
			b.prototype(r)
			continue
		}
		typ := r.typ
		var value *hir.Expr
		if init.Init != nil {
			value = fb.initializer(init.Init, typ)
			typ = completeArray(typ, value)
			value.Type = completeArray(value.Type, value)
		}
		if typ.IsArray() && typ.Len < 0 {
			fb.fail(diag.BldUnsupported, r.span, "array %s has no constant size", r.name)
		}
		id := fb.declare(r.name, typ, -1, spec.static, r.span)
		out = append(out, hir.Stmt{
			Kind: hir.StmtDecl,
			Span: b.span(init.Pos, init.EndPos),
			Data: hir.DeclData{Local: id, Name: r.name, Type: typ, Init: value, Static: spec.static},
		})
	}
	return out
}

// completeArray sizes `T a[] = {...}` and `char s[] = "..."`.
func completeArray(t *hir.Type, init *hir.Expr) *hir.Type {
	if !t.IsArray() || t.Len >= 0 || init == nil {
		return t
	}
	switch d := init.Data.(type) {
	case hir.InitListData:
		return hir.ArrayOf(t.Elem, len(d.Items))
	case hir.LiteralData:
		if d.Kind == hir.LitString {
			return hir.ArrayOf(t.Elem, len(d.Text)+1)
		}
	}
	return t
}

// exprStmts lowers an expression statement. Top-level assignments and
// increments become StmtAssign; a deallocator call becomes StmtFree.
func (fb *funcBuilder) exprStmts(e *cparse.Expr, out []hir.Stmt) []hir.Stmt {
	for _, a := range e.Items {
		out = fb.assignStmt(a, out)
	}
	return out
}

func (fb *funcBuilder) assignStmt(a *cparse.Assignment, out []hir.Stmt) []hir.Stmt {
	sp := fb.b.span(a.Pos, a.EndPos)
	if a.Op == "" {
		return append(out, fb.effectStmt(fb.cond(a.Left), sp))
	}
	target := fb.cond(a.Left)
	var value *hir.Expr
	if a.Right.Op != "" {
		// a = b = c: hoist the inner assignment when re-reading its target is safe
		inner := fb.cond(a.Right.Left)
		if !hir.HasSideEffects(inner) {
			out = fb.assignStmt(a.Right, out)
			value = fb.cond(a.Right.Left)
		}
	}
	if value == nil {
		value = fb.assignment(a.Right)
	}
	d := hir.AssignData{Target: target, Value: fb.coerce(value, target.Type)}
	if a.Op != "=" {
		d.Op, d.Compound = compoundOps[a.Op], true
	}
	return append(out, hir.Stmt{Kind: hir.StmtAssign, Span: sp, Data: d})
}

var compoundOps = map[string]hir.BinaryOp{
	"+=": hir.BinAdd, "-=": hir.BinSub, "*=": hir.BinMul, "/=": hir.BinDiv, "%=": hir.BinMod,
	"<<=": hir.BinShl, ">>=": hir.BinShr, "&=": hir.BinBitAnd, "|=": hir.BinBitOr, "^=": hir.BinBitXor,
}

func (fb *funcBuilder) effectStmt(e *hir.Expr, sp source.Span) hir.Stmt {
	switch d := e.Data.(type) {
	case hir.UnaryData:
		if d.Op.IsIncDec() {
			op := hir.BinAdd
			if d.Op == hir.UnPreDec || d.Op == hir.UnPostDec {
				op = hir.BinSub
			}
			one := &hir.Expr{Kind: hir.ExprLiteral, Type: hir.Int, Span: e.Span, Data: hir.LiteralData{Kind: hir.LitInt, Int: 1, Text: "1"}}
			return hir.Stmt{Kind: hir.StmtAssign, Span: sp, Data: hir.AssignData{Target: d.Operand, Value: one, Op: op, Compound: true}}
		}
	case hir.AssignData:
		return hir.Stmt{Kind: hir.StmtAssign, Span: sp, Data: d}
	case hir.CallData:
		if d.Target == nil && len(d.Args) == 1 && fb.b.prov.Class(d.Callee) == stdlib.ClassFree && !fb.shadowed(d.Callee) {
			return hir.Stmt{Kind: hir.StmtFree, Span: sp, Data: hir.FreeData{Ptr: d.Args[0], Callee: d.Callee}}
		}
	}
	return hir.Stmt{Kind: hir.StmtExpr, Span: sp, Data: hir.ExprStmtData{Expr: e}}
}

func (fb *funcBuilder) forStmt(f *cparse.ForStmt, sp source.Span) hir.Stmt {
	scope := fb.pushScope(sp)
	d := hir.ForData{Scope: scope}
	switch {
	case f.InitDecl != nil:
		d.Init = fb.localDecl(f.InitDecl, nil)
	case f.InitExpr != nil:
		d.Init = fb.exprStmts(f.InitExpr, nil)
	}
	if f.Cond != nil {
		d.Cond = fb.expr(f.Cond)
	}
	d.Body = fb.blockOf(f.Body)
	if f.Post != nil {
		d.Post = fb.exprStmts(f.Post, nil)
	}
	fb.popScope()
	return hir.Stmt{Kind: hir.StmtFor, Span: sp, Data: d}
}

// switchStmt groups the body into label groups. Adjacent labels with no
// statements between them share a group.
func (fb *funcBuilder) switchStmt(s *cparse.SwitchStmt, sp source.Span) hir.Stmt {
	d := hir.SwitchData{Cond: fb.expr(s.Cond)}
	if s.Body.Compound == nil {
		fb.fail(diag.BldUnsupported, sp, "switch body must be a block")
		return hir.Stmt{Kind: hir.StmtSwitch, Span: sp, Data: d}
	}
	body := s.Body.Compound
	d.Scope = fb.pushScope(fb.b.span(body.Pos, body.EndPos))
	for _, it := range body.Items {
		if it.Case == nil {
			if len(d.Cases) == 0 {
				fb.fail(diag.BldUnsupported, fb.b.span(it.Pos, it.EndPos), "statement before the first case label")
				continue
			}
			last := &d.Cases[len(d.Cases)-1]
			last.Body = fb.stmt(it, last.Body)
			last.Span = last.Span.Cover(fb.b.span(it.Pos, it.EndPos))
			continue
		}
		lsp := fb.b.span(it.Pos, it.EndPos)
		if n := len(d.Cases); n == 0 || len(d.Cases[n-1].Body) > 0 {
			d.Cases = append(d.Cases, hir.SwitchCase{Span: lsp})
		}
		last := &d.Cases[len(d.Cases)-1]
		if it.Case.Default {
			last.IsDefault = true
		} else {
			last.Values = append(last.Values, fb.cond(it.Case.Value))
		}
		last.Span = last.Span.Cover(lsp)
	}
	fb.popScope()
	return hir.Stmt{Kind: hir.StmtSwitch, Span: sp, Data: d}
}
