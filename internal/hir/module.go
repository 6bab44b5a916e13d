package hir

import "decant/internal/source"

// Field is a struct or union member.
type Field struct {
	Name string
	Type *Type
	Span source.Span
}

// StructDef is a struct or union definition.
type StructDef struct {
	Name   string
	Union  bool
	Fields []Field
	Span   source.Span
}

// Field returns the named member, or nil.
func (s *StructDef) Field(name string) *Field {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}

type Enumerator struct {
	Name  string
	Value int64
	Span  source.Span
}

type EnumDef struct {
	Name   string
	Values []Enumerator
	Span   source.Span
}

// TypedefDef binds a name to a type. Builtin typedefs come from the
// signature provider (size_t, pid_t, ...) and are never emitted.
type TypedefDef struct {
	Name    string
	Type    *Type
	Builtin bool
	Span    source.Span
}

// Global is a file-scope variable.
type Global struct {
	ID     GlobalID
	Name   string
	Type   *Type
	Init   *Expr
	Static bool
	Extern bool
	Span   source.Span
}

// MacroConst is an object-like `#define NAME literal`.
type MacroConst struct {
	Name  string
	Value *Expr
	Span  source.Span
}

// Prototype is a function declaration without a body.
type Prototype struct {
	Name string
	Sig  *Type // TFuncPtr
	Span source.Span
}

// Module is one translation unit. Tables are in declaration order.
type Module struct {
	Path       string
	File       source.FileID
	Funcs      []*Func // index = FuncID-1
	Prototypes []Prototype
	Structs    []*StructDef
	Enums      []*EnumDef
	Typedefs   []*TypedefDef
	Globals    []*Global // index = GlobalID-1
	Macros     []*MacroConst
	Headers    []string

	structs  map[string]*StructDef
	enums    map[string]*EnumDef
	typedefs map[string]*TypedefDef
	funcs    map[string]*Func
	protos   map[string]*Prototype
	globals  map[string]*Global
	macros   map[string]*MacroConst
	consts   map[string]int64
}

// Reindex rebuilds the name lookups. Call it after the tables are filled.
func (m *Module) Reindex() {
	m.structs = make(map[string]*StructDef, len(m.Structs))
	for _, s := range m.Structs {
		m.structs[s.Name] = s
	}
	m.enums = make(map[string]*EnumDef, len(m.Enums))
	m.consts = make(map[string]int64)
	for _, e := range m.Enums {
		m.enums[e.Name] = e
		for _, v := range e.Values {
			m.consts[v.Name] = v.Value
		}
	}
	m.typedefs = make(map[string]*TypedefDef, len(m.Typedefs))
	for _, t := range m.Typedefs {
		m.typedefs[t.Name] = t
	}
	m.funcs = make(map[string]*Func, len(m.Funcs))
	for _, f := range m.Funcs {
		m.funcs[f.Name] = f
	}
	m.protos = make(map[string]*Prototype, len(m.Prototypes))
	for i := range m.Prototypes {
		m.protos[m.Prototypes[i].Name] = &m.Prototypes[i]
	}
	m.globals = make(map[string]*Global, len(m.Globals))
	for _, g := range m.Globals {
		m.globals[g.Name] = g
	}
	m.macros = make(map[string]*MacroConst, len(m.Macros))
	for _, c := range m.Macros {
		m.macros[c.Name] = c
	}
}

func (m *Module) Struct(name string) *StructDef    { return m.structs[name] }
func (m *Module) Enum(name string) *EnumDef        { return m.enums[name] }
func (m *Module) Typedef(name string) *TypedefDef  { return m.typedefs[name] }
func (m *Module) FuncByName(name string) *Func     { return m.funcs[name] }
func (m *Module) Proto(name string) *Prototype     { return m.protos[name] }
func (m *Module) GlobalByName(name string) *Global { return m.globals[name] }
func (m *Module) Macro(name string) *MacroConst    { return m.macros[name] }

// EnumConst returns the value of a named enumerator.
func (m *Module) EnumConst(name string) (int64, bool) {
	v, ok := m.consts[name]
	return v, ok
}

// Func returns the function for id, or nil.
func (m *Module) Func(id FuncID) *Func {
	if !id.IsValid() || int(id) > len(m.Funcs) {
		return nil
	}
	return m.Funcs[id-1]
}

// Global returns the global for id, or nil.
func (m *Module) Global(id GlobalID) *Global {
	if !id.IsValid() || int(id) > len(m.Globals) {
		return nil
	}
	return m.Globals[id-1]
}

// Signature returns the type of a defined or declared function.
func (m *Module) Signature(name string) (*Type, bool) {
	if f := m.funcs[name]; f != nil {
		return f.Signature(), true
	}
	if p := m.protos[name]; p != nil {
		return p.Sig, true
	}
	return nil, false
}

const maxTypedefDepth = 32

// Resolve follows typedef chains to the canonical type. The outer const
// qualifier is preserved. Unknown typedefs are returned unchanged.
func (m *Module) Resolve(t *Type) *Type {
	cur := t
	for range maxTypedefDepth {
		if cur == nil || cur.Kind != TTypedef {
			break
		}
		def := m.typedefs[cur.Name]
		if def == nil || def.Type == nil {
			break
		}
		cur = def.Type
	}
	if t != nil && t.Const {
		return cur.WithConst()
	}
	return cur
}

// StructOf returns the struct definition a value of type t (or *t) names.
func (m *Module) StructOf(t *Type) *StructDef {
	t = m.Resolve(t)
	if t.IsPointer() {
		t = m.Resolve(t.Elem)
	}
	if t == nil || (t.Kind != TStruct && t.Kind != TUnion) {
		return nil
	}
	return m.structs[t.Name]
}
