package lifetime

import (
	"decant/internal/hir"
)

// FieldLifetimes lists the lifetimes a field needs: one for a reference
// field, the nested struct's parameters for a struct-valued field.
type FieldLifetimes struct {
	Field     string
	Lifetimes []ID
}

// StructLifetimes are the lifetime parameters of one struct.
type StructLifetimes struct {
	Name   string
	Params []ID
	Fields []FieldLifetimes
}

// Field returns the lifetimes of field name.
func (s *StructLifetimes) Field(name string) []ID {
	for _, f := range s.Fields {
		if f.Field == name {
			return f.Lifetimes
		}
	}
	return nil
}

type fieldKey struct {
	strct string
	field string
}

// AnalyzeStructs gives every reference field a distinct lifetime. A
// reference field is a pointer-to-const field that no function of the
// module allocates into, assigns a call result to, or frees. Structs
// without reference fields are omitted.
func AnalyzeStructs(m *hir.Module) []StructLifetimes {
	owned := ownedFields(m)
	var out []StructLifetimes
	byName := make(map[string]StructLifetimes)
	for _, sd := range m.Structs {
		sl := StructLifetimes{Name: sd.Name}
		next := func() ID {
			id := ID(len(sl.Params) + 1)
			sl.Params = append(sl.Params, id)
			return id
		}
		for _, f := range sd.Fields {
			t := m.Resolve(f.Type)
			switch {
			case t.IsPointer() && t.Elem != nil && t.Elem.Const && !owned[fieldKey{sd.Name, f.Name}]:
				sl.Fields = append(sl.Fields, FieldLifetimes{Field: f.Name, Lifetimes: []ID{next()}})
			case t != nil && (t.Kind == hir.TStruct || t.Kind == hir.TUnion):
				inner, ok := byName[t.Name]
				if !ok {
					continue
				}
				ids := make([]ID, len(inner.Params))
				for i := range ids {
					ids[i] = next()
				}
				sl.Fields = append(sl.Fields, FieldLifetimes{Field: f.Name, Lifetimes: ids})
			}
		}
		if len(sl.Params) == 0 {
			continue
		}
		out = append(out, sl)
		byName[sd.Name] = sl
	}
	return out
}

func ownedFields(m *hir.Module) map[fieldKey]bool {
	owned := make(map[fieldKey]bool)
	mark := func(target *hir.Expr) {
		if target == nil {
			return
		}
		fd, ok := target.StripCasts().Data.(hir.FieldData)
		if !ok {
			return
		}
		if name := objectStruct(m, fd); name != "" {
			owned[fieldKey{name, fd.Field}] = true
		}
	}
	assigned := func(target, value *hir.Expr) {
		v := value.StripCasts()
		if v.Kind == hir.ExprAlloc || v.Kind == hir.ExprCall {
			mark(target)
		}
	}
	for _, fn := range m.Funcs {
		hir.Inspect(fn.Body, func(s *hir.Stmt) bool {
			switch d := s.Data.(type) {
			case hir.AssignData:
				assigned(d.Target, d.Value)
			case hir.FreeData:
				mark(d.Ptr)
			}
			return true
		}, func(e *hir.Expr) bool {
			if d, ok := e.Data.(hir.AssignData); ok {
				assigned(d.Target, d.Value)
			}
			return true
		})
	}
	return owned
}

// objectStruct returns the struct name a field access selects from.
func objectStruct(m *hir.Module, fd hir.FieldData) string {
	t := m.Resolve(fd.Object.Type)
	if fd.Arrow {
		if !t.IsPointer() {
			return ""
		}
		t = m.Resolve(t.Elem)
	}
	if t == nil || (t.Kind != hir.TStruct && t.Kind != hir.TUnion) {
		return ""
	}
	return t.Name
}
