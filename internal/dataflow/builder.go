package dataflow

import (
	"fmt"
	"maps"
	"slices"

	"fortio.org/safecast"

	"decant/internal/hir"
	"decant/internal/source"
	"decant/internal/stdlib"
)

// DefaultLengthThreshold is the minimum score for a pointer/length pair.
const DefaultLengthThreshold = 3

// Analyzer builds graphs for the functions of one module. It precomputes
// which parameters of module functions may be retained by their callee, so
// that passing a pointer to such a parameter is not treated as an escape.
type Analyzer struct {
	mod       *hir.Module
	prov      stdlib.Provider
	threshold int
	retains   map[string][]bool
}

type Option func(*Analyzer)

// WithLengthThreshold sets the length pairing score threshold.
func WithLengthThreshold(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.threshold = n
		}
	}
}

func NewAnalyzer(mod *hir.Module, prov stdlib.Provider, opts ...Option) *Analyzer {
	if prov == nil {
		prov = stdlib.Builtin()
	}
	a := &Analyzer{mod: mod, prov: prov, threshold: DefaultLengthThreshold, retains: make(map[string][]bool)}
	for _, o := range opts {
		o(a)
	}
	// Callee summaries do not recurse: module calls inside a callee escape.
	for _, fn := range mod.Funcs {
		g := a.build(fn, true)
		flags := make([]bool, len(fn.Params))
		for i, p := range fn.Params {
			if bd := g.Binding(p.Local); bd != nil {
				flags[i] = bd.EscapesOtherThanReturn()
			}
		}
		a.retains[fn.Name] = flags
	}
	return a
}

// Build returns the graph of fn.
func (a *Analyzer) Build(fn *hir.Func) *Graph { return a.build(fn, false) }

// Build is a one-off NewAnalyzer(mod, prov).Build(fn).
func Build(fn *hir.Func, mod *hir.Module, prov stdlib.Provider) *Graph {
	return NewAnalyzer(mod, prov).Build(fn)
}

type builder struct {
	a       *Analyzer
	g       *Graph
	fn      *hir.Func
	summary bool

	stmt   hir.NodeID
	scope  hir.ScopeID
	guards map[hir.LocalID]int
	last   map[hir.LocalID]NodeIndex
	loops  []*LoopBound
}

func (a *Analyzer) build(fn *hir.Func, summary bool) *Graph {
	g := &Graph{
		Func:       fn,
		Module:     a.mod,
		byStmt:     make(map[hir.NodeID][]NodeIndex),
		nullBranch: make(map[hir.NodeID][]nullAssumption),
	}
	b := &builder{
		a:       a,
		g:       g,
		fn:      fn,
		summary: summary,
		scope:   hir.FuncScope,
		guards:  make(map[hir.LocalID]int),
		last:    make(map[hir.LocalID]NodeIndex),
	}
	for _, l := range fn.Locals {
		g.Bindings = append(g.Bindings, &Binding{
			Local:      l.ID,
			Name:       l.Name,
			Type:       l.Type,
			Param:      l.Param,
			ParamIndex: l.ParamIndex,
			Pointer:    a.mod.Resolve(l.Type).IsPointer(),
		})
	}
	for _, p := range fn.Params {
		bd := g.Binding(p.Local)
		bd.Origins = append(bd.Origins, OriginParameter)
		if bd.Pointer {
			b.last[p.Local] = b.node(NodeParameter, p.Local, hir.NoNodeID, p.Span)
		}
	}
	b.block(fn.Body)
	if !summary {
		g.LengthPairs = pairLengths(g, a.threshold)
	}
	return g
}

func (b *builder) node(kind NodeKind, l hir.LocalID, id hir.NodeID, sp source.Span) NodeIndex {
	n, err := safecast.Conv[uint32](len(b.g.Nodes))
	if err != nil {
		panic(fmt.Errorf("dataflow node overflow: %w", err))
	}
	idx := NodeIndex(n)
	b.g.Nodes = append(b.g.Nodes, Node{Index: idx, Kind: kind, Local: l, HIR: id, Span: sp, Scope: b.scope})
	b.g.byStmt[b.stmt] = append(b.g.byStmt[b.stmt], idx)
	return idx
}

func (b *builder) binding(l hir.LocalID) *Binding { return b.g.Binding(l) }

func (b *builder) site(l hir.LocalID, id hir.NodeID, sp source.Span) Site {
	return Site{Node: id, Span: sp, Scope: b.scope, Guarded: b.guards[l] > 0}
}

// pointerLocal returns the pointer binding e names, ignoring casts.
func (b *builder) pointerLocal(e *hir.Expr) (hir.LocalID, bool) {
	l, ok := e.StripCasts().LocalRef()
	if !ok || !b.binding(l).Pointer {
		return hir.NoLocalID, false
	}
	return l, true
}

func (b *builder) withGuards(ls []hir.LocalID, f func()) {
	for _, l := range ls {
		b.guards[l]++
	}
	f()
	for _, l := range ls {
		if b.guards[l] > 0 {
			b.guards[l]--
		}
	}
}

func (b *builder) block(blk *hir.Block) {
	if blk == nil {
		return
	}
	saved, prevScope := b.guards, b.scope
	b.guards = maps.Clone(saved)
	b.scope = blk.Scope
	b.stmts(blk.Stmts)
	b.guards, b.scope = saved, prevScope
}

func (b *builder) stmts(list []hir.Stmt) {
	for i := range list {
		b.visitStmt(&list[i])
	}
}

func (b *builder) visitStmt(s *hir.Stmt) {
	prev := b.stmt
	b.stmt = s.ID
	defer func() { b.stmt = prev }()

	switch d := s.Data.(type) {
	case hir.DeclData:
		if d.Init != nil {
			b.expr(d.Init)
			b.bind(d.Local, d.Init, s.ID, s.Span, true)
		}
	case hir.ExprStmtData:
		b.expr(d.Expr)
	case hir.AssignData:
		b.assignment(d, s.ID, s.Span)
	case hir.ReturnData:
		b.ret(d, s)
	case hir.FreeData:
		if l, ok := b.pointerLocal(d.Ptr); ok {
			b.binding(l).Frees = append(b.binding(l).Frees, b.site(l, s.ID, s.Span))
			b.last[l] = b.node(NodeFree, l, s.ID, s.Span)
		} else {
			b.expr(d.Ptr)
		}
	case hir.IfData:
		b.condExpr(d.Cond)
		whenTrue, whenFalse := b.conds(d.Cond)
		// with several tested bindings an arm only knows that one of them
		// is NULL, which proves nothing about any single binding
		if len(whenFalse) == 1 {
			b.assume(s, whenFalse[0], true)
		}
		if len(whenTrue) == 1 {
			b.assume(s, whenTrue[0], false)
		}
		b.withGuards(whenTrue, func() { b.block(d.Then) })
		b.withGuards(whenFalse, func() { b.block(d.Else) })
		if d.Else == nil && terminates(d.Then) {
			for _, l := range whenFalse {
				b.guards[l]++
			}
		}
	case hir.WhileData:
		b.condExpr(d.Cond)
		whenTrue, _ := b.conds(d.Cond)
		b.loop(s.ID, d.Cond, func() {
			b.withGuards(whenTrue, func() { b.block(d.Body) })
		})
	case hir.DoWhileData:
		b.loop(s.ID, d.Cond, func() {
			b.block(d.Body)
			b.condExpr(d.Cond)
		})
	case hir.ForData:
		prevScope := b.scope
		b.scope = d.Scope
		b.stmts(d.Init)
		b.stmt = s.ID
		var whenTrue []hir.LocalID
		if d.Cond != nil {
			b.condExpr(d.Cond)
			whenTrue, _ = b.conds(d.Cond)
		}
		b.loop(s.ID, d.Cond, func() {
			b.withGuards(whenTrue, func() { b.block(d.Body) })
			b.stmts(d.Post)
		})
		b.scope = prevScope
	case hir.SwitchData:
		b.expr(d.Cond)
		prevScope := b.scope
		b.scope = d.Scope
		for i := range d.Cases {
			saved := b.guards
			b.guards = maps.Clone(saved)
			b.stmts(d.Cases[i].Body)
			b.guards = saved
		}
		b.scope = prevScope
	case hir.BlockData:
		b.block(d.Block)
	}
}

// assume records a NullBranch node for the arm of if-statement s on which
// l is NULL.
func (b *builder) assume(s *hir.Stmt, l hir.LocalID, onThen bool) {
	if !b.binding(l).Pointer {
		return
	}
	n, err := safecast.Conv[uint32](len(b.g.Nodes))
	if err != nil {
		panic(fmt.Errorf("dataflow node overflow: %w", err))
	}
	idx := NodeIndex(n)
	b.g.Nodes = append(b.g.Nodes, Node{Index: idx, Kind: NodeNullBranch, Local: l, HIR: s.ID, Span: s.Span, Scope: b.scope})
	b.g.nullBranch[s.ID] = append(b.g.nullBranch[s.ID], nullAssumption{node: idx, onThen: onThen})
}

// terminates reports a block whose last statement leaves the enclosing
// block unconditionally.
func terminates(blk *hir.Block) bool {
	last := blk.LastStmt()
	if last == nil {
		return false
	}
	switch last.Kind {
	case hir.StmtReturn, hir.StmtBreak, hir.StmtContinue:
		return true
	case hir.StmtExpr:
		call, ok := last.Data.(hir.ExprStmtData).Expr.Data.(hir.CallData)
		return ok && (call.Callee == "exit" || call.Callee == "abort" || call.Callee == "_exit")
	case hir.StmtBlock:
		return terminates(last.Data.(hir.BlockData).Block)
	}
	return false
}

// conds returns the pointer bindings known non-null when cond is true and
// when it is false.
func (b *builder) conds(cond *hir.Expr) (whenTrue, whenFalse []hir.LocalID) {
	if cond == nil {
		return nil, nil
	}
	e := cond.StripCasts()
	if l, ok := b.pointerLocal(e); ok {
		return []hir.LocalID{l}, nil
	}
	switch d := e.Data.(type) {
	case hir.UnaryData:
		if d.Op == hir.UnNot {
			t, f := b.conds(d.Operand)
			return f, t
		}
	case hir.BinaryData:
		switch d.Op {
		case hir.BinNe, hir.BinEq:
			l, ok := b.nullCompare(d)
			if !ok {
				return nil, nil
			}
			if d.Op == hir.BinNe {
				return []hir.LocalID{l}, nil
			}
			return nil, []hir.LocalID{l}
		case hir.BinLogAnd:
			lt, _ := b.conds(d.Left)
			rt, _ := b.conds(d.Right)
			return union(lt, rt), nil
		case hir.BinLogOr:
			_, lf := b.conds(d.Left)
			_, rf := b.conds(d.Right)
			return nil, union(lf, rf)
		}
	}
	return nil, nil
}

func union(a, b []hir.LocalID) []hir.LocalID {
	out := slices.Clone(a)
	for _, x := range b {
		if !slices.Contains(out, x) {
			out = append(out, x)
		}
	}
	return out
}

func (b *builder) nullCompare(d hir.BinaryData) (hir.LocalID, bool) {
	switch {
	case d.Right.IsNull():
		return b.pointerLocal(d.Left)
	case d.Left.IsNull():
		return b.pointerLocal(d.Right)
	}
	if v, ok := d.Right.IntValue(); ok && v == 0 {
		return b.pointerLocal(d.Left)
	}
	return hir.NoLocalID, false
}

// condExpr visits an expression in a truth-value position, where a bare
// pointer is a null test.
func (b *builder) condExpr(e *hir.Expr) {
	if l, ok := b.pointerLocal(e); ok {
		b.nullTest(l, e)
		return
	}
	b.expr(e)
}

func (b *builder) nullTest(l hir.LocalID, e *hir.Expr) {
	bd := b.binding(l)
	bd.NullTests = append(bd.NullTests, b.site(l, e.ID, e.Span))
	b.last[l] = b.node(NodeNullCheck, l, e.ID, e.Span)
}

func (b *builder) loop(id hir.NodeID, cond *hir.Expr, body func()) {
	lb := loopBound(cond)
	if lb != nil {
		lb.Loop = id
		b.loops = append(b.loops, lb)
	}
	body()
	if lb != nil {
		b.loops = b.loops[:len(b.loops)-1]
		b.g.Loops = append(b.g.Loops, *lb)
	}
}

// loopBound matches `i < n`, `i <= n - 1`, `i != n` and `n > i`.
func loopBound(cond *hir.Expr) *LoopBound {
	if cond == nil {
		return nil
	}
	d, ok := cond.Data.(hir.BinaryData)
	if !ok {
		return nil
	}
	if d.Op == hir.BinLogAnd {
		return loopBound(d.Left)
	}
	idx, bound := d.Left, d.Right
	switch d.Op {
	case hir.BinLt, hir.BinLe, hir.BinNe:
	case hir.BinGt, hir.BinGe:
		idx, bound = bound, idx
	default:
		return nil
	}
	if sub, ok := bound.Data.(hir.BinaryData); ok && sub.Op == hir.BinSub {
		bound = sub.Left
	}
	i, iok := idx.StripCasts().LocalRef()
	n, nok := bound.StripCasts().LocalRef()
	if !iok || !nok || i == n {
		return nil
	}
	return &LoopBound{Index: i, Bound: n}
}

// bind records l = value.
func (b *builder) bind(l hir.LocalID, value *hir.Expr, id hir.NodeID, sp source.Span, decl bool) {
	bd := b.binding(l)
	if !decl {
		bd.Reassigns = append(bd.Reassigns, b.site(l, id, sp))
	}
	delete(b.guards, l)
	if !bd.Pointer {
		return
	}
	n := b.node(NodeAssignment, l, id, sp)
	b.last[l] = n

	v := value.StripCasts()
	origin := OriginUnknown
	switch {
	case v.Kind == hir.ExprAlloc:
		a := v.Data.(hir.AllocData)
		kind, origin := NodeAllocation, OriginAllocation
		if a.IsArray() {
			kind, origin = NodeArrayAllocation, OriginArrayAllocation
		}
		bd.Allocs = append(bd.Allocs, AllocSite{Site: b.site(l, v.ID, v.Span), Kind: a.Kind, Array: a.IsArray(), Elem: a.Elem})
		bd.addOrigin(origin)
		alloc := b.node(kind, l, v.ID, v.Span)
		b.g.Edges = append(b.g.Edges, Edge{From: alloc, To: n, Kind: EdgeFlow})
		b.last[l] = alloc
		return
	case v.IsNull():
		bd.AssignedNull = true
		origin = OriginNull
	case v.Kind == hir.ExprUnary && v.Data.(hir.UnaryData).Op == hir.UnAddr:
		origin = OriginAddressOf
	case v.Kind == hir.ExprCall:
		origin = OriginCall
	default:
		if q, ok := b.aliasSource(v); ok {
			origin = OriginAlias
			if !slices.Contains(bd.AliasOf, q) {
				bd.AliasOf = append(bd.AliasOf, q)
			}
			if from, ok := b.last[q]; ok {
				b.g.Edges = append(b.g.Edges, Edge{From: from, To: n, Kind: EdgeAlias})
			}
		}
	}
	if value.Kind == hir.ExprCast {
		inner := value.Data.(hir.CastData).Value
		if b.a.mod.Resolve(inner.Type).IsInteger() && !inner.IsNull() {
			bd.IntCast = true
			origin = OriginCast
			b.node(NodeCast, l, value.ID, value.Span)
		}
	}
	bd.addOrigin(origin)
}

func (bd *Binding) addOrigin(o Origin) {
	if !slices.Contains(bd.Origins, o) {
		bd.Origins = append(bd.Origins, o)
	}
}

// aliasSource returns q for `q`, `q + i` and `&q[i]`.
func (b *builder) aliasSource(v *hir.Expr) (hir.LocalID, bool) {
	if q, ok := b.pointerLocal(v); ok {
		return q, true
	}
	return b.derivedFrom(v)
}

// derivedFrom matches pointer arithmetic on a binding: `p + i`, `p - i`,
// `&p[i]`.
func (b *builder) derivedFrom(v *hir.Expr) (hir.LocalID, bool) {
	switch d := v.StripCasts().Data.(type) {
	case hir.BinaryData:
		if d.Op == hir.BinAdd || d.Op == hir.BinSub {
			if p, ok := b.pointerLocal(d.Left); ok {
				return p, true
			}
			if d.Op == hir.BinAdd {
				return b.pointerLocal(d.Right)
			}
		}
	case hir.UnaryData:
		if d.Op == hir.UnAddr {
			if idx, ok := d.Operand.Data.(hir.IndexData); ok {
				return b.pointerLocal(idx.Object)
			}
		}
	}
	return hir.NoLocalID, false
}

func (b *builder) assignment(d hir.AssignData, id hir.NodeID, sp source.Span) {
	b.expr(d.Value)
	if l, ok := d.Target.LocalRef(); ok {
		bd := b.binding(l)
		if d.Compound {
			bd.Reassigns = append(bd.Reassigns, b.site(l, id, sp))
			if bd.Pointer {
				bd.Arith = append(bd.Arith, b.site(l, id, sp))
				b.last[l] = b.node(NodeArithmetic, l, id, sp)
			}
			return
		}
		b.bind(l, d.Value, id, sp, false)
		return
	}
	global := b.lvalue(d.Target)
	if q, ok := b.aliasSource(d.Value); ok {
		kind := EscapeField
		if global {
			kind = EscapeGlobal
		}
		b.escape(q, kind, id, sp, "", 0)
	}
}

// lvalue records a store through target and reports whether the stored
// location is a global reached without dereferencing.
func (b *builder) lvalue(target *hir.Expr) bool {
	switch d := target.Data.(type) {
	case hir.VarRefData:
		return d.Ref == hir.RefGlobal
	case hir.UnaryData:
		if d.Op == hir.UnDeref {
			if p, ok := b.pointerLocal(d.Operand); ok {
				b.deref(p, target, true)
				return false
			}
			b.expr(d.Operand)
			return false
		}
	case hir.FieldData:
		if d.Arrow {
			if p, ok := b.pointerLocal(d.Object); ok {
				b.deref(p, target, true)
				return false
			}
			b.expr(d.Object)
			return false
		}
		return b.lvalue(d.Object)
	case hir.IndexData:
		b.expr(d.Index)
		if p, ok := b.pointerLocal(d.Object); ok {
			b.deref(p, target, true)
			b.index(p, d.Index, target)
			return false
		}
		if l, ok := d.Object.LocalRef(); ok {
			b.index(l, d.Index, target)
			return false
		}
		return b.lvalue(d.Object)
	}
	b.expr(target)
	return false
}

func (b *builder) deref(p hir.LocalID, e *hir.Expr, write bool) {
	bd := b.binding(p)
	s := b.site(p, e.ID, e.Span)
	bd.Derefs = append(bd.Derefs, s)
	kind := NodeDereference
	if write {
		bd.Writes = append(bd.Writes, s)
		kind = NodeWrite
	} else {
		bd.Reads = append(bd.Reads, s)
	}
	b.last[p] = b.node(kind, p, e.ID, e.Span)
}

func (b *builder) index(l hir.LocalID, idx *hir.Expr, e *hir.Expr) {
	bd := b.binding(l)
	bd.Indexes = append(bd.Indexes, b.site(l, e.ID, e.Span))
	if bd.Pointer {
		b.node(NodeIndexing, l, e.ID, e.Span)
	}
	iv, ok := idx.StripCasts().LocalRef()
	if !ok {
		return
	}
	if !slices.Contains(bd.IndexVars, iv) {
		bd.IndexVars = append(bd.IndexVars, iv)
	}
	for _, lb := range b.loops {
		if lb.Index == iv && !slices.Contains(lb.Indexed, l) {
			lb.Indexed = append(lb.Indexed, l)
		}
	}
}

func (b *builder) escape(l hir.LocalID, kind EscapeKind, id hir.NodeID, sp source.Span, callee string, arg int) {
	bd := b.binding(l)
	bd.Escapes = append(bd.Escapes, Escape{Kind: kind, Site: b.site(l, id, sp), Callee: callee, Arg: arg})
	b.last[l] = b.node(NodeEscape, l, id, sp)
}

func (b *builder) ret(d hir.ReturnData, s *hir.Stmt) {
	site := Site{Node: s.ID, Span: s.Span, Scope: b.scope}
	if d.Value == nil {
		b.g.Returns = append(b.g.Returns, ReturnSite{Site: site})
		return
	}
	b.expr(d.Value)
	b.returned(site, d.Value, d.Value, s)
}

// returned records one ReturnSite per value a return may yield; the arms
// of a ternary are separate sites sharing the statement.
func (b *builder) returned(site Site, whole, value *hir.Expr, s *hir.Stmt) {
	v := value.StripCasts()
	if t, ok := v.Data.(hir.TernaryData); ok {
		b.returned(site, whole, t.Then, s)
		b.returned(site, whole, t.Else, s)
		return
	}
	rs := ReturnSite{Site: site, Value: whole}
	switch {
	case v.IsNull():
		rs.Null = true
	default:
		if l, ok := v.LocalRef(); ok {
			rs.Local = l
			if b.binding(l).Pointer {
				b.binding(l).Escapes = append(b.binding(l).Escapes, Escape{Kind: EscapeReturn, Site: b.site(l, s.ID, s.Span)})
				b.last[l] = b.node(NodeReturn, l, s.ID, s.Span)
			}
		} else if p, ok := b.derivedFrom(v); ok {
			rs.Derived = p
			b.escape(p, EscapeReturn, s.ID, s.Span, "", 0)
		} else if x, ok := AddressedLocal(v); ok {
			rs.AddrOf = x
		}
	}
	b.g.Returns = append(b.g.Returns, rs)
}

// AddressedLocal matches &x, &x.f and &x[i] for a local x.
func AddressedLocal(v *hir.Expr) (hir.LocalID, bool) {
	u, ok := v.Data.(hir.UnaryData)
	if !ok || u.Op != hir.UnAddr {
		return hir.NoLocalID, false
	}
	e := u.Operand
	for {
		switch d := e.Data.(type) {
		case hir.FieldData:
			if d.Arrow {
				return hir.NoLocalID, false
			}
			e = d.Object
			continue
		case hir.IndexData:
			e = d.Object
			continue
		}
		break
	}
	return e.LocalRef()
}

func (b *builder) expr(e *hir.Expr) {
	if e == nil {
		return
	}
	switch d := e.Data.(type) {
	case hir.VarRefData:
		if d.Ref == hir.RefLocal && b.binding(d.Local).Pointer {
			b.last[d.Local] = b.node(NodeUse, d.Local, e.ID, e.Span)
		}
	case hir.UnaryData:
		b.unary(d, e)
	case hir.BinaryData:
		b.binary(d, e)
	case hir.AssignData:
		b.assignment(d, e.ID, e.Span)
	case hir.CallData:
		b.call(d, e)
	case hir.FieldData:
		if p, ok := b.pointerLocal(d.Object); ok && d.Arrow {
			b.deref(p, e, false)
			return
		}
		b.expr(d.Object)
	case hir.IndexData:
		b.expr(d.Index)
		if p, ok := b.pointerLocal(d.Object); ok {
			b.deref(p, e, false)
			b.index(p, d.Index, e)
			return
		}
		if l, ok := d.Object.LocalRef(); ok {
			b.index(l, d.Index, e)
			return
		}
		b.expr(d.Object)
	case hir.CastData:
		b.expr(d.Value)
		if l, ok := d.Value.StripCasts().LocalRef(); ok {
			bd := b.binding(l)
			bd.Casts = append(bd.Casts, CastSite{Site: b.site(l, e.ID, e.Span), To: d.Target})
			if bd.Pointer && b.a.mod.Resolve(d.Target).IsInteger() {
				bd.IntCast = true
				b.node(NodeCast, l, e.ID, e.Span)
			}
		}
	case hir.TernaryData:
		b.condExpr(d.Cond)
		whenTrue, whenFalse := b.conds(d.Cond)
		b.withGuards(whenTrue, func() { b.expr(d.Then) })
		b.withGuards(whenFalse, func() { b.expr(d.Else) })
	case hir.InitListData:
		for _, it := range d.Items {
			b.expr(it.Index)
			b.expr(it.Value)
			if q, ok := b.aliasSource(it.Value); ok {
				b.escape(q, EscapeField, it.Value.ID, it.Value.Span, "", 0)
			}
		}
	case hir.AllocData:
		b.expr(d.Ptr)
		b.expr(d.Size)
	}
}

func (b *builder) unary(d hir.UnaryData, e *hir.Expr) {
	switch {
	case d.Op == hir.UnDeref:
		if p, ok := b.pointerLocal(d.Operand); ok {
			b.deref(p, e, false)
			return
		}
		b.expr(d.Operand)
	case d.Op == hir.UnAddr:
		if x, ok := d.Operand.LocalRef(); ok {
			bd := b.binding(x)
			bd.Addressed = append(bd.Addressed, b.site(x, e.ID, e.Span))
			b.node(NodeAddressOf, x, e.ID, e.Span)
			return
		}
		if idx, ok := d.Operand.Data.(hir.IndexData); ok {
			if p, ok := b.pointerLocal(idx.Object); ok {
				b.expr(idx.Index)
				b.index(p, idx.Index, d.Operand)
				bd := b.binding(p)
				bd.Arith = append(bd.Arith, b.site(p, e.ID, e.Span))
				return
			}
		}
		b.expr(d.Operand)
	case d.Op == hir.UnNot:
		b.condExpr(d.Operand)
	case d.Op.IsIncDec():
		if l, ok := d.Operand.LocalRef(); ok {
			bd := b.binding(l)
			bd.Reassigns = append(bd.Reassigns, b.site(l, e.ID, e.Span))
			if bd.Pointer {
				bd.Arith = append(bd.Arith, b.site(l, e.ID, e.Span))
				b.last[l] = b.node(NodeArithmetic, l, e.ID, e.Span)
			}
			return
		}
		b.lvalue(d.Operand)
	default:
		b.expr(d.Operand)
	}
}

func (b *builder) binary(d hir.BinaryData, e *hir.Expr) {
	switch d.Op {
	case hir.BinLogAnd, hir.BinLogOr:
		b.condExpr(d.Left)
		whenTrue, whenFalse := b.conds(d.Left)
		guard := whenTrue
		if d.Op == hir.BinLogOr {
			guard = whenFalse
		}
		b.withGuards(guard, func() { b.condExpr(d.Right) })
		return
	case hir.BinEq, hir.BinNe:
		if l, ok := b.nullCompare(d); ok {
			b.nullTest(l, e)
			return
		}
	case hir.BinAdd, hir.BinSub:
		if p, ok := b.pointerLocal(d.Left); ok && b.a.mod.Resolve(d.Right.Type).IsInteger() {
			b.arith(p, e)
			b.expr(d.Right)
			return
		}
		if p, ok := b.pointerLocal(d.Right); ok && d.Op == hir.BinAdd && b.a.mod.Resolve(d.Left.Type).IsInteger() {
			b.expr(d.Left)
			b.arith(p, e)
			return
		}
	}
	b.expr(d.Left)
	b.expr(d.Right)
}

func (b *builder) arith(p hir.LocalID, e *hir.Expr) {
	bd := b.binding(p)
	bd.Arith = append(bd.Arith, b.site(p, e.ID, e.Span))
	b.last[p] = b.node(NodeArithmetic, p, e.ID, e.Span)
}

func (b *builder) call(d hir.CallData, e *hir.Expr) {
	b.expr(d.Target)
	for i, arg := range d.Args {
		b.expr(arg)
		p, ok := b.aliasSource(arg)
		if !ok {
			continue
		}
		bd := b.binding(p)
		bd.Passed = append(bd.Passed, CallSite{Site: b.site(p, e.ID, e.Span), Callee: d.Callee, Arg: i})
		if b.retained(d, i) {
			b.escape(p, EscapeCall, e.ID, e.Span, d.Callee, i)
		}
	}
}

// retained reports whether the callee may keep argument i beyond the call.
func (b *builder) retained(d hir.CallData, i int) bool {
	if d.Target != nil {
		return true
	}
	if b.a.mod.FuncByName(d.Callee) != nil {
		if b.summary {
			return true
		}
		flags := b.a.retains[d.Callee]
		return i >= len(flags) || flags[i]
	}
	cls := b.a.prov.Class(d.Callee)
	return !cls.NonEscaping() && cls != stdlib.ClassFree && cls != stdlib.ClassRealloc
}
