package patterns

import "decant/internal/hir"

// Call is one direct call of a module function or library routine.
type Call struct {
	Caller *hir.Func
	Expr   *hir.Expr
	Args   []*hir.Expr
}

// Index is the read-only module call-site index. It also records function
// names used as values, whose call sites are therefore unknown.
type Index struct {
	calls map[string][]Call
	refs  map[string][]Call
}

// NewIndex walks every function body of m in module order.
func NewIndex(m *hir.Module) *Index {
	x := &Index{calls: make(map[string][]Call), refs: make(map[string][]Call)}
	if m == nil {
		return x
	}
	for _, fn := range m.Funcs {
		hir.Inspect(fn.Body, nil, func(e *hir.Expr) bool {
			switch d := e.Data.(type) {
			case hir.CallData:
				if d.Target == nil {
					x.calls[d.Callee] = append(x.calls[d.Callee], Call{Caller: fn, Expr: e, Args: d.Args})
				}
			case hir.VarRefData:
				if d.Ref == hir.RefFunc {
					x.refs[d.Name] = append(x.refs[d.Name], Call{Caller: fn, Expr: e})
				}
			}
			return true
		})
	}
	for _, g := range m.Globals {
		hir.InspectExpr(g.Init, func(e *hir.Expr) bool {
			if d, ok := e.Data.(hir.VarRefData); ok && d.Ref == hir.RefFunc {
				x.refs[d.Name] = append(x.refs[d.Name], Call{Expr: e})
			}
			return true
		})
	}
	return x
}

// Calls returns the direct call sites of callee.
func (x *Index) Calls(callee string) []Call { return x.calls[callee] }

// AddressTaken reports whether name is used other than as a direct callee.
func (x *Index) AddressTaken(name string) bool { return len(x.refs[name]) > 0 }

// ArgFuncs returns the module functions passed as argument arg across every
// call of callee, in first-seen order. It reports false when some site
// passes anything else or when there are no sites.
func (x *Index) ArgFuncs(m *hir.Module, callee string, arg int) ([]string, bool) {
	calls := x.calls[callee]
	if len(calls) == 0 || x.AddressTaken(callee) {
		return nil, false
	}
	var names []string
	seen := make(map[string]bool)
	for _, c := range calls {
		if arg >= len(c.Args) {
			return nil, false
		}
		name, ok := FuncArg(c.Args[arg])
		if !ok || m.FuncByName(name) == nil {
			return nil, false
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names, true
}

// FuncArg matches `f` and `&f` for a function f.
func FuncArg(e *hir.Expr) (string, bool) {
	e = e.StripCasts()
	if u, ok := e.Data.(hir.UnaryData); ok && u.Op == hir.UnAddr {
		e = u.Operand
	}
	if d, ok := e.Data.(hir.VarRefData); ok && d.Ref == hir.RefFunc {
		return d.Name, true
	}
	return "", false
}
