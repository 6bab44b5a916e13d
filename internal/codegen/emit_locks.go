package codegen

import (
	"decant/internal/hir"
	"decant/internal/locks"
)

// callID returns the node of a call statement, or NoNodeID.
func callID(s *hir.Stmt) hir.NodeID {
	d, ok := s.Data.(hir.ExprStmtData)
	if !ok || d.Expr == nil {
		return hir.NoNodeID
	}
	e := d.Expr.StripCasts()
	if _, ok := e.Data.(hir.CallData); !ok {
		return hir.NoNodeID
	}
	return e.ID
}

// regionAt finds the lock region acquired by list[i] and the index of
// its release in the same list.
func (fe *funcEmitter) regionAt(list []hir.Stmt, i int) (*locks.Region, int) {
	if fe.lk == nil {
		return nil, 0
	}
	id := callID(&list[i])
	if !id.IsValid() {
		return nil, 0
	}
	for k := range fe.lk.Regions {
		rg := &fe.lk.Regions[k]
		if !rg.SameBlock || rg.Start != id {
			continue
		}
		for j := i + 1; j < len(list); j++ {
			if callID(&list[j]) == rg.End {
				return rg, j
			}
		}
	}
	return nil, 0
}

func lockMethod(k locks.LockKind) string {
	switch k {
	case locks.LockRead:
		return "read"
	case locks.LockWrite:
		return "write"
	}
	return "lock"
}

// guarded renders a lock region as a scope holding the guard.
func (fe *funcEmitter) guarded(rg *locks.Region, body []hir.Stmt) {
	fe.line("{")
	fe.depth++
	pushed := false
	switch d := fe.lockDataOf(rg); {
	case d != nil:
		guard := lowerCase(d.name) + "_guard"
		if rg.Kind == locks.LockRead {
			fe.line("let %s = %s.%s().unwrap();", guard, d.name, d.method(false))
		} else {
			fe.line("let mut %s = %s.%s().unwrap();", guard, d.name, d.method(true))
		}
		fe.guards = append(fe.guards, activeGuard{data: d, name: guard})
		pushed = true
	default:
		fe.line("let _guard = %s.%s().unwrap();", fe.lockPath(rg), lockMethod(rg.Kind))
	}
	fe.stmts(body)
	if pushed {
		fe.guards = fe.guards[:len(fe.guards)-1]
	}
	fe.depth--
	fe.line("}")
}

func (fe *funcEmitter) lockDataOf(rg *locks.Region) *lockData {
	if !rg.Lock.Global {
		return nil
	}
	return fe.g.lockData[rg.Lock.Path]
}

// lockPath renders the lock object of rg.
func (fe *funcEmitter) lockPath(rg *locks.Region) string {
	if rg.Lock.Global {
		if r := fe.g.globals[rg.Lock.Path]; r != nil {
			return r.name
		}
	}
	if rg.List != nil && rg.From < len(*rg.List) {
		s := &(*rg.List)[rg.From]
		if d, ok := s.Data.(hir.ExprStmtData); ok {
			if call, ok := d.Expr.StripCasts().Data.(hir.CallData); ok && len(call.Args) > 0 {
				arg := call.Args[0].StripCasts()
				if u, ok := arg.Data.(hir.UnaryData); ok && u.Op == hir.UnAddr {
					code, _ := fe.render(u.Operand, "")
					return code
				}
				code, ty := fe.render(arg, "")
				if isOption(ty) {
					return code + ".as_deref().unwrap()"
				}
				return code
			}
		}
	}
	return ident(rg.Lock.Path)
}
