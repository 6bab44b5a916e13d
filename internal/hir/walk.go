package hir

// Inspect traverses b in canonical order: a statement, then its own
// expressions, then nested statements. For loops visit Init, Cond, Body and
// Post in evaluation order. Either callback may be nil; returning false from
// it skips the node's children. NodeIDs are assigned in this order.
func Inspect(b *Block, stmt func(*Stmt) bool, expr func(*Expr) bool) {
	if b == nil {
		return
	}
	w := walker{stmt: stmt, expr: expr}
	w.stmts(b.Stmts)
}

// InspectExpr traverses e in pre-order.
func InspectExpr(e *Expr, fn func(*Expr) bool) {
	w := walker{expr: fn}
	w.visitExpr(e)
}

type walker struct {
	stmt func(*Stmt) bool
	expr func(*Expr) bool
}

func (w *walker) stmts(list []Stmt) {
	for i := range list {
		w.visitStmt(&list[i])
	}
}

func (w *walker) block(b *Block) {
	if b != nil {
		w.stmts(b.Stmts)
	}
}

func (w *walker) visitStmt(s *Stmt) {
	if w.stmt != nil && !w.stmt(s) {
		return
	}
	switch d := s.Data.(type) {
	case DeclData:
		w.visitExpr(d.Init)
	case ExprStmtData:
		w.visitExpr(d.Expr)
	case AssignData:
		w.visitExpr(d.Target)
		w.visitExpr(d.Value)
	case ReturnData:
		w.visitExpr(d.Value)
	case IfData:
		w.visitExpr(d.Cond)
		w.block(d.Then)
		w.block(d.Else)
	case WhileData:
		w.visitExpr(d.Cond)
		w.block(d.Body)
	case DoWhileData:
		w.block(d.Body)
		w.visitExpr(d.Cond)
	case ForData:
		w.stmts(d.Init)
		w.visitExpr(d.Cond)
		w.block(d.Body)
		w.stmts(d.Post)
	case SwitchData:
		w.visitExpr(d.Cond)
		for ci := range d.Cases {
			for _, v := range d.Cases[ci].Values {
				w.visitExpr(v)
			}
			w.stmts(d.Cases[ci].Body)
		}
	case BlockData:
		w.block(d.Block)
	case FreeData:
		w.visitExpr(d.Ptr)
	}
}

func (w *walker) visitExpr(e *Expr) {
	if e == nil {
		return
	}
	if w.expr != nil && !w.expr(e) {
		return
	}
	for _, c := range e.Children() {
		w.visitExpr(c)
	}
}

// Number assigns NodeIDs to every statement and expression of f in
// canonical order and records the count in f.Nodes.
func Number(f *Func) {
	var next NodeID
	Inspect(f.Body,
		func(s *Stmt) bool {
			next++
			s.ID = next
			return true
		},
		func(e *Expr) bool {
			next++
			e.ID = next
			return true
		})
	f.Nodes = uint32(next)
}

// ContainsCall reports whether e calls or allocates anywhere.
func ContainsCall(e *Expr) bool {
	found := false
	InspectExpr(e, func(x *Expr) bool {
		if x.Kind == ExprCall || x.Kind == ExprAlloc {
			found = true
		}
		return !found
	})
	return found
}

// HasSideEffects reports calls, assignments and increments inside e.
func HasSideEffects(e *Expr) bool {
	found := false
	InspectExpr(e, func(x *Expr) bool {
		switch x.Kind {
		case ExprCall, ExprAlloc, ExprAssign:
			found = true
		case ExprUnary:
			if x.Data.(UnaryData).Op.IsIncDec() {
				found = true
			}
		}
		return !found
	})
	return found
}
