package locks

import "decant/internal/hir"

// pathInfo is the textual access path of an lvalue and how it is rooted.
type pathInfo struct {
	text   string
	key    string
	global bool
	param  bool
	deref  bool
}

// shared reports data visible beyond one call: globals and storage reached
// through a pointer parameter.
func (p pathInfo) shared() bool { return p.global || (p.param && p.deref) }

func (p pathInfo) identity() Identity {
	return Identity{Path: p.text, Key: p.key, Global: p.global}
}

func (a *analyzer) path(e *hir.Expr) (pathInfo, bool) {
	switch d := e.Data.(type) {
	case hir.VarRefData:
		switch d.Ref {
		case hir.RefGlobal:
			return pathInfo{text: d.Name, key: d.Name, global: true}, true
		case hir.RefLocal:
			loc := a.fn.Local(d.Local)
			if loc == nil {
				return pathInfo{}, false
			}
			switch {
			case loc.Param:
				return pathInfo{text: loc.Name, key: "(" + loc.Type.String() + ")", param: true}, true
			case loc.Static:
				return pathInfo{text: loc.Name, key: a.fn.Name + "::" + loc.Name, global: true}, true
			}
			return pathInfo{text: loc.Name, key: a.fn.Name + "::" + loc.Name}, true
		}
	case hir.FieldData:
		base, ok := a.path(d.Object)
		if !ok {
			return pathInfo{}, false
		}
		sep := "."
		if d.Arrow {
			sep = "->"
		}
		base.text += sep + d.Field
		base.key += sep + d.Field
		base.deref = base.deref || d.Arrow
		return base, true
	case hir.UnaryData:
		if d.Op != hir.UnDeref {
			return pathInfo{}, false
		}
		base, ok := a.path(d.Operand)
		if !ok {
			return pathInfo{}, false
		}
		base.text = "*" + base.text
		base.key = "*" + base.key
		base.deref = true
		return base, true
	case hir.IndexData:
		base, ok := a.path(d.Object)
		if !ok {
			return pathInfo{}, false
		}
		base.text += "[]"
		base.key += "[]"
		base.deref = base.deref || a.mod.Resolve(d.Object.Type).IsPointer()
		return base, true
	}
	return pathInfo{}, false
}
