package patterns

import (
	"slices"

	"decant/internal/hir"
)

// Bounds is the trait bound set inferred for a generic parameter.
type Bounds uint8

const (
	BoundPartialEq Bounds = 1 << iota
	BoundPartialOrd
	BoundCopy
	BoundClone
)

// List renders the bounds in a fixed order.
func (b Bounds) List() []string {
	var out []string
	if b&BoundPartialEq != 0 && b&BoundPartialOrd == 0 {
		out = append(out, "PartialEq")
	}
	if b&BoundPartialOrd != 0 {
		out = append(out, "PartialOrd")
	}
	if b&BoundCopy != 0 {
		out = append(out, "Copy")
	} else if b&BoundClone != 0 {
		out = append(out, "Clone")
	}
	return out
}

// GenericParam is a void* parameter used as one concrete pointee type.
type GenericParam struct {
	Local  hir.LocalID
	Index  int
	Name   string
	Elem   *hir.Type // the concrete type observed at casts and call sites
	Bounds Bounds
	Views  []hir.LocalID // typed locals initialised from the parameter
}

var memRoutines = []string{"memcpy", "memcmp", "memmove"}

func (d *detector) generics() []GenericParam {
	var out []GenericParam
	for i, p := range d.fn.Params {
		b := d.g.Binding(p.Local)
		if b == nil || !d.mod.Resolve(p.Type).IsVoidPointer() {
			continue
		}
		if len(b.Arith) != 0 || len(b.Reassigns) != 0 || len(b.Frees) != 0 ||
			len(b.NullTests) != 0 || len(b.Addressed) != 0 || len(b.Escapes) != 0 {
			continue
		}
		gp, ok := d.generic(p.Local)
		if !ok {
			continue
		}
		gp.Index, gp.Name = i, b.Name
		elem := gp.Elem
		agree := d.sitesAgree(i, func(arg *hir.Expr) bool {
			at := d.mod.Resolve(arg.StripCasts().Type)
			if arg.StripCasts().IsNull() || !at.IsPointer() || at.IsVoidPointer() {
				return false
			}
			if elem == nil {
				elem = unqualified(at.Elem)
				return true
			}
			return d.mod.Resolve(at.Elem).Equal(d.mod.Resolve(elem))
		})
		if !agree || elem == nil {
			continue
		}
		gp.Elem = elem
		out = append(out, gp)
	}
	return out
}

// generic checks every use of the void* parameter p: it may be cast to a
// typed pointer, copied into a typed local or passed to the mem routines.
func (d *detector) generic(p hir.LocalID) (GenericParam, bool) {
	gp := GenericParam{Local: p}
	uses, accounted := d.refs(p), 0
	var elems []*hir.Type
	ok := true

	isView := func(e *hir.Expr) bool {
		l, isRef := e.StripCasts().LocalRef()
		return isRef && (l == p || slices.Contains(gp.Views, l))
	}

	// element expressions that are stored into or compared, not copied out
	noCopy := make(map[hir.NodeID]bool)

	hir.Inspect(d.fn.Body, func(s *hir.Stmt) bool {
		if decl, isDecl := s.Data.(hir.DeclData); isDecl && decl.Init != nil {
			if l, isRef := decl.Init.LocalRef(); isRef && l == p {
				dt := d.mod.Resolve(decl.Type)
				if !dt.IsPointer() || dt.IsVoidPointer() {
					ok = false
					return false
				}
				gp.Views = append(gp.Views, decl.Local)
				elems = append(elems, dt.Elem)
				accounted++
			}
		}
		if as, isAssign := s.Data.(hir.AssignData); isAssign && d.element(as.Target, isView) {
			gp.Bounds |= BoundClone
			noCopy[as.Target.ID] = true
		}
		return true
	}, func(e *hir.Expr) bool {
		switch x := e.Data.(type) {
		case hir.CastData:
			if l, isRef := x.Value.LocalRef(); isRef && l == p {
				ct := d.mod.Resolve(x.Target)
				if !ct.IsPointer() || ct.IsVoidPointer() {
					ok = false
					return false
				}
				elems = append(elems, ct.Elem)
				accounted++
			}
		case hir.CallData:
			if x.Target != nil || !slices.Contains(memRoutines, x.Callee) {
				break
			}
			for ai, arg := range x.Args {
				if !isView(arg) {
					continue
				}
				if l, isRef := arg.LocalRef(); isRef && l == p {
					accounted++
				}
				switch {
				case x.Callee == "memcmp":
					gp.Bounds |= BoundPartialEq
				case ai == 0:
					gp.Bounds |= BoundClone
				default:
					gp.Bounds |= BoundCopy
				}
			}
		case hir.BinaryData:
			if !x.Op.IsComparison() {
				break
			}
			for _, side := range []*hir.Expr{x.Left, x.Right} {
				if !d.element(side, isView) {
					continue
				}
				noCopy[side.ID] = true
				if x.Op == hir.BinEq || x.Op == hir.BinNe {
					gp.Bounds |= BoundPartialEq
				} else {
					gp.Bounds |= BoundPartialOrd | BoundPartialEq
				}
			}
		case hir.AssignData:
			if d.element(x.Target, isView) {
				gp.Bounds |= BoundClone
				noCopy[x.Target.ID] = true
			}
		}
		if d.element(e, isView) && !noCopy[e.ID] {
			gp.Bounds |= BoundCopy
		}
		return true
	})
	if !ok || accounted != uses {
		return gp, false
	}
	for _, v := range gp.Views {
		vb := d.g.Binding(v)
		if vb == nil || len(vb.Escapes) != 0 || len(vb.Frees) != 0 || len(vb.Arith) != 0 || len(vb.Reassigns) != 0 {
			return gp, false
		}
	}
	for _, t := range elems[min(1, len(elems)):] {
		if !d.mod.Resolve(t).Equal(d.mod.Resolve(elems[0])) {
			return gp, false
		}
	}
	if len(elems) > 0 {
		gp.Elem = unqualified(elems[0])
	}
	return gp, true
}

// element matches `*v`, `v[i]` and `v->f` where v is the parameter, a view
// or a cast of either.
func (d *detector) element(e *hir.Expr, isView func(*hir.Expr) bool) bool {
	switch x := e.Data.(type) {
	case hir.UnaryData:
		return x.Op == hir.UnDeref && isView(x.Operand)
	case hir.IndexData:
		return isView(x.Object)
	case hir.FieldData:
		return x.Arrow && isView(x.Object)
	}
	return false
}
