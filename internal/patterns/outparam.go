package patterns

import "decant/internal/hir"

// OutParam is a pointer parameter that only carries a result back to the
// caller. The translation returns the value instead.
type OutParam struct {
	Local hir.LocalID
	Index int
	Name  string
	Elem  *hir.Type
	Write hir.NodeID // the `*p = v` statement

	// Fallible is set when the function returns int status constants; the
	// value is then returned as Ok on a zero status and the status as Err
	// otherwise.
	Fallible bool
}

func (d *detector) outParams() []OutParam {
	var out []OutParam
	for i, p := range d.fn.Params {
		b := d.g.Binding(p.Local)
		if b == nil || !b.Pointer {
			continue
		}
		rt := d.mod.Resolve(p.Type)
		if rt.IsVoidPointer() || rt.Elem == nil || rt.Elem.Const || rt.Elem.Kind == hir.TFuncPtr {
			continue
		}
		if len(b.Writes) != 1 || len(b.Derefs) != 1 || len(b.Reads) != 0 ||
			len(b.NullTests) != 0 || len(b.Escapes) != 0 || len(b.Passed) != 0 ||
			len(b.Arith) != 0 || len(b.Indexes) != 0 || len(b.Reassigns) != 0 ||
			len(b.Addressed) != 0 || len(b.Frees) != 0 || len(b.Casts) != 0 {
			continue
		}
		if d.refs(p.Local) != 1 {
			continue
		}
		stmt, ok := d.plainStore(p.Local, b.Writes[0].Node)
		if !ok {
			continue
		}
		if !d.sitesAgree(i, addressOfVar) {
			continue
		}
		op := OutParam{Local: p.Local, Index: i, Name: b.Name, Elem: unqualified(rt.Elem), Write: stmt}
		res := d.mod.Resolve(d.fn.Result)
		switch {
		case res.IsVoid():
		case res.Kind == hir.TInt && !res.Unsigned && d.constantReturns():
			op.Fallible = true
		default:
			continue
		}
		out = append(out, op)
	}
	if len(out) > 0 && out[0].Fallible {
		// a status function carries one value; more would need a tuple Ok
		// arm callers could not destructure uniformly
		out = out[:1]
	}
	return out
}

// plainStore finds the statement `*p = v` whose target is node.
func (d *detector) plainStore(p hir.LocalID, node hir.NodeID) (hir.NodeID, bool) {
	var found hir.NodeID
	hir.Inspect(d.fn.Body, func(s *hir.Stmt) bool {
		a, ok := s.Data.(hir.AssignData)
		if !ok || a.Compound || a.Target.ID != node {
			return true
		}
		u, ok := a.Target.Data.(hir.UnaryData)
		if !ok || u.Op != hir.UnDeref {
			return true
		}
		if l, ok := u.Operand.LocalRef(); ok && l == p {
			found = s.ID
		}
		return true
	}, nil)
	return found, found.IsValid()
}

func (d *detector) constantReturns() bool {
	if len(d.g.Returns) == 0 {
		return false
	}
	for _, r := range d.g.Returns {
		if r.Value == nil {
			return false
		}
		if _, ok := ConstInt(r.Value); !ok {
			return false
		}
	}
	return true
}

// addressOfVar matches `&v` for a plain local or global v.
func addressOfVar(arg *hir.Expr) bool {
	u, ok := arg.StripCasts().Data.(hir.UnaryData)
	if !ok || u.Op != hir.UnAddr {
		return false
	}
	v, ok := u.Operand.Data.(hir.VarRefData)
	return ok && (v.Ref == hir.RefLocal || v.Ref == hir.RefGlobal)
}

// ConstInt evaluates integer literals and enum constants.
func ConstInt(e *hir.Expr) (int64, bool) {
	e = e.StripCasts()
	if v, ok := e.IntValue(); ok {
		return v, true
	}
	if d, ok := e.Data.(hir.VarRefData); ok && d.Ref == hir.RefEnumConst {
		return d.Value, true
	}
	return 0, false
}
