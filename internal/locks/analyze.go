package locks

import (
	"fmt"
	"slices"

	"decant/internal/dataflow"
	"decant/internal/hir"
	"decant/internal/source"
)

type held struct {
	lock  Identity
	kind  LockKind
	acq   int
	node  hir.NodeID
	span  source.Span
	list  *[]hir.Stmt
	index int // statement index when the call is a whole statement, else -1
}

// lockState is the stack of held locks in acquisition order.
type lockState struct {
	held []held
}

func (s *lockState) clone() *lockState {
	return &lockState{held: slices.Clone(s.held)}
}

// find returns the topmost acquisition of path, or -1.
func (s *lockState) find(path string) int {
	for i := len(s.held) - 1; i >= 0; i-- {
		if s.held[i].lock.Path == path {
			return i
		}
	}
	return -1
}

func (s *lockState) keys() []string {
	out := make([]string, len(s.held))
	for i, h := range s.held {
		out[i] = h.lock.Path
	}
	return out
}

type analyzer struct {
	cfg  Config
	mod  *hir.Module
	fn   *hir.Func
	r    *Result
	st   *lockState
	acqs int

	list  *[]hir.Stmt
	index int
}

// Analyze matches the lock regions of g's function, collects its shared
// accesses and maps them to locks.
func Analyze(g *dataflow.Graph, cfg Config) *Result {
	if len(cfg.Acquire) == 0 && len(cfg.Release) == 0 {
		cfg = DefaultConfig()
	}
	a := &analyzer{
		cfg: cfg,
		mod: g.Module,
		fn:  g.Func,
		r:   &Result{Func: g.Func},
		st:  &lockState{},
	}
	if !a.walkBlock(g.Func.Body) {
		for _, h := range a.st.held {
			a.violation(StackMismatch, h.lock.Path, "", h.node, h.span,
				fmt.Sprintf("lock %s is still held at the end of %s", h.lock.Path, a.fn.Name))
		}
	}
	locks := make(map[string]Identity, len(a.r.Locks))
	for _, l := range a.r.Locks {
		locks[l.Path] = l
	}
	var unprotected []Violation
	a.r.Mapping, unprotected = bind(a.r.Accesses, locks,
		func(v Identity) string { return v.Path },
		func(ac *Access) []string { return ac.Held })
	a.r.Violations = append(a.r.Violations, unprotected...)
	return a.r
}

func (a *analyzer) violation(kind ViolationKind, lock, v string, node hir.NodeID, sp source.Span, msg string) {
	a.r.Violations = append(a.r.Violations, Violation{
		Kind: kind, Func: a.fn.Name, Lock: lock, Var: v, Node: node, Span: sp, Message: msg,
	})
}

func (a *analyzer) walkBlock(b *hir.Block) bool {
	if b == nil {
		return false
	}
	return a.walkList(&b.Stmts)
}

// walkList reports whether the list ends in a return, break or continue.
func (a *analyzer) walkList(list *[]hir.Stmt) bool {
	prevList, prevIndex := a.list, a.index
	defer func() { a.list, a.index = prevList, prevIndex }()
	for i := range *list {
		a.list, a.index = list, i
		if a.walkStmt(&(*list)[i]) {
			return true
		}
	}
	return false
}

func (a *analyzer) walkStmt(s *hir.Stmt) bool {
	switch d := s.Data.(type) {
	case hir.DeclData:
		a.visit(d.Init, false, false)
	case hir.ExprStmtData:
		a.visit(d.Expr, false, true)
	case hir.AssignData:
		a.visit(d.Value, false, false)
		a.visit(d.Target, true, false)
	case hir.FreeData:
		a.visit(d.Ptr, false, false)
	case hir.ReturnData:
		a.visit(d.Value, false, false)
		for _, h := range a.st.held {
			a.violation(StackMismatch, h.lock.Path, "", s.ID, s.Span,
				fmt.Sprintf("returns while holding %s", h.lock.Path))
		}
		return true
	case hir.BreakData, hir.ContinueData:
		return true
	case hir.IfData:
		a.visit(d.Cond, false, false)
		entry := a.st
		a.st = entry.clone()
		thenEnds := a.walkBlock(d.Then)
		thenSt := a.st
		a.st = entry.clone()
		elseEnds := a.walkBlock(d.Else)
		elseSt := a.st
		switch {
		case thenEnds && elseEnds:
			a.st = entry
			return true
		case thenEnds:
			a.st = elseSt
		case elseEnds:
			a.st = thenSt
		default:
			a.st = a.merge(thenSt, elseSt, s)
		}
	case hir.WhileData:
		a.visit(d.Cond, false, false)
		a.loop(s, func() { a.walkBlock(d.Body) })
	case hir.DoWhileData:
		a.loop(s, func() {
			a.walkBlock(d.Body)
			a.visit(d.Cond, false, false)
		})
	case hir.ForData:
		if a.walkList(&d.Init) {
			return true
		}
		a.visit(d.Cond, false, false)
		a.loop(s, func() {
			a.walkBlock(d.Body)
			a.walkList(&d.Post)
		})
	case hir.SwitchData:
		a.visit(d.Cond, false, false)
		entry := a.st
		for i := range d.Cases {
			a.st = entry.clone()
			ends := a.walkList(&d.Cases[i].Body)
			if !ends && !slices.Equal(a.st.keys(), entry.keys()) {
				a.violation(StackMismatch, "", "", s.ID, d.Cases[i].Span, "lock state differs between switch arms")
			}
		}
		a.st = entry
	case hir.BlockData:
		return a.walkBlock(d.Block)
	}
	return false
}

// loop walks a body once; a body that changes the held locks is a
// mismatch because the next iteration starts from a different state.
func (a *analyzer) loop(s *hir.Stmt, body func()) {
	entry := a.st
	a.st = entry.clone()
	body()
	if !slices.Equal(a.st.keys(), entry.keys()) {
		a.violation(StackMismatch, "", "", s.ID, s.Span, "lock state changes across loop iterations")
	}
	a.st = entry
}

// merge keeps the locks held on both branches.
func (a *analyzer) merge(x, y *lockState, s *hir.Stmt) *lockState {
	out := &lockState{}
	for _, h := range x.held {
		if y.find(h.lock.Path) >= 0 {
			out.held = append(out.held, h)
			continue
		}
		a.violation(StackMismatch, h.lock.Path, "", s.ID, s.Span,
			fmt.Sprintf("lock %s is held on only one branch", h.lock.Path))
	}
	for _, h := range y.held {
		if x.find(h.lock.Path) < 0 {
			a.violation(StackMismatch, h.lock.Path, "", s.ID, s.Span,
				fmt.Sprintf("lock %s is held on only one branch", h.lock.Path))
		}
	}
	return out
}

// visit walks e in evaluation order. whole is set when e is the entire
// expression statement.
func (a *analyzer) visit(e *hir.Expr, write, whole bool) {
	if e == nil {
		return
	}
	switch d := e.Data.(type) {
	case hir.CallData:
		if d.Target == nil && len(d.Args) > 0 {
			switch {
			case a.cfg.isAcquire(d.Callee):
				if id, ok := a.lockIdentity(d.Args[0]); ok {
					a.acquire(id, kindOf(d.Callee), e, whole)
					return
				}
			case a.cfg.isRelease(d.Callee):
				if id, ok := a.lockIdentity(d.Args[0]); ok {
					a.release(id, e, whole)
					return
				}
			}
		}
		a.visit(d.Target, false, false)
		for _, arg := range d.Args {
			a.visit(arg, false, false)
		}
		return
	case hir.AssignData:
		a.visit(d.Value, false, false)
		a.visit(d.Target, true, false)
		return
	case hir.UnaryData:
		if d.Op.IsIncDec() {
			a.visit(d.Operand, true, false)
			return
		}
	}
	if p, ok := a.path(e); ok && p.shared() {
		a.r.Accesses = append(a.r.Accesses, Access{
			Func:  a.fn.Name,
			Var:   p.identity(),
			Node:  e.ID,
			Span:  e.Span,
			Write: write,
			Held:  a.st.keys(),
		})
		a.visitIndices(e)
		return
	}
	for _, c := range e.Children() {
		a.visit(c, false, false)
	}
}

// visitIndices visits the index expressions inside an access path.
func (a *analyzer) visitIndices(e *hir.Expr) {
	switch d := e.Data.(type) {
	case hir.IndexData:
		a.visit(d.Index, false, false)
		a.visitIndices(d.Object)
	case hir.FieldData:
		a.visitIndices(d.Object)
	case hir.UnaryData:
		a.visitIndices(d.Operand)
	}
}

func (a *analyzer) lockIdentity(arg *hir.Expr) (Identity, bool) {
	e := arg.StripCasts()
	if u, ok := e.Data.(hir.UnaryData); ok && u.Op == hir.UnAddr {
		e = u.Operand
	}
	p, ok := a.path(e)
	if !ok {
		return Identity{}, false
	}
	return p.identity(), true
}

func (a *analyzer) acquire(id Identity, kind LockKind, e *hir.Expr, whole bool) {
	if !slices.ContainsFunc(a.r.Locks, func(l Identity) bool { return l.Path == id.Path }) {
		a.r.Locks = append(a.r.Locks, id)
	}
	for _, h := range a.st.held {
		if h.lock.Path != id.Path {
			a.r.Edges = append(a.r.Edges, OrderEdge{From: h.lock.Path, To: id.Path, Func: a.fn.Name, Span: e.Span})
		}
	}
	h := held{lock: id, kind: kind, acq: a.acqs, node: e.ID, span: e.Span, list: a.list, index: -1}
	if whole {
		h.index = a.index
	}
	a.acqs++
	a.st.held = append(a.st.held, h)
}

func (a *analyzer) release(id Identity, e *hir.Expr, whole bool) {
	i := a.st.find(id.Path)
	if i < 0 {
		a.violation(StackMismatch, id.Path, "", e.ID, e.Span, fmt.Sprintf("releases %s, which is not held", id.Path))
		return
	}
	if top := len(a.st.held) - 1; i != top {
		a.violation(StackMismatch, id.Path, "", e.ID, e.Span,
			fmt.Sprintf("releases %s while %s, acquired later, is still held", id.Path, a.st.held[top].lock.Path))
	}
	h := a.st.held[i]
	rg := Region{
		Lock:      h.lock,
		Kind:      h.kind,
		Acquire:   h.acq,
		Start:     h.node,
		End:       e.ID,
		StartSpan: h.span,
		EndSpan:   e.Span,
		Depth:     i,
		SameBlock: h.list == a.list,
	}
	if rg.SameBlock && whole && h.index >= 0 {
		rg.List, rg.From, rg.To = h.list, h.index, a.index
	}
	a.r.Regions = append(a.r.Regions, rg)
	a.st.held = slices.Delete(a.st.held, i, i+1)
}
