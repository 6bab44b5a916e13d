package codegen

import (
	"fmt"
	"strings"

	"decant/internal/hir"
	"decant/internal/lifetime"
)

// builtinTypes maps provider typedefs onto Rust types.
var builtinTypes = map[string]string{
	"size_t": "usize", "ssize_t": "isize", "ptrdiff_t": "isize",
	"intptr_t": "isize", "uintptr_t": "usize",
	"int8_t": "i8", "int16_t": "i16", "int32_t": "i32", "int64_t": "i64",
	"uint8_t": "u8", "uint16_t": "u16", "uint32_t": "u32", "uint64_t": "u64",
	"pid_t": "i32", "bool": "bool", "pthread_t": "u64",
	"FILE":               "libc::FILE",
	"pthread_mutex_t":    "Mutex<()>",
	"pthread_spinlock_t": "Mutex<()>",
	"mtx_t":              "Mutex<()>",
	"pthread_rwlock_t":   "RwLock<()>",
}

// numericRank orders the Rust primitive numbers for the usual arithmetic
// conversions.
var numericRank = map[string]int{
	"i8": 1, "u8": 1, "i16": 2, "u16": 2, "i32": 3, "u32": 3,
	"i64": 4, "u64": 4, "isize": 4, "usize": 5, "f32": 6, "f64": 7,
}

func isNumeric(t string) bool {
	_, ok := numericRank[t]
	return ok
}

func isFloat(t string) bool { return t == "f32" || t == "f64" }

func isUnsigned(t string) bool { return isNumeric(t) && t[0] == 'u' }

// common returns the type two operands are converted to.
func common(a, b string) string {
	ra, oka := numericRank[a]
	rb, okb := numericRank[b]
	switch {
	case !oka:
		return b
	case !okb:
		return a
	case ra > rb:
		return a
	case rb > ra:
		return b
	case isUnsigned(b):
		return b
	}
	return a
}

func isLockType(name string) bool {
	return strings.HasPrefix(builtinTypes[name], "Mutex<") || strings.HasPrefix(builtinTypes[name], "RwLock<")
}

// rust renders the plain representation of t. Pointers are raw here;
// bindings with an ownership decision are rendered by the function
// emitter.
func (g *Generator) rust(t *hir.Type) string {
	if t == nil {
		return ""
	}
	switch t.Kind {
	case hir.TVoid:
		return "()"
	case hir.TBool:
		return "bool"
	case hir.TChar:
		return "u8"
	case hir.TShort:
		return intName("16", t.Unsigned)
	case hir.TInt:
		return intName("32", t.Unsigned)
	case hir.TLong, hir.TLongLong:
		return intName("64", t.Unsigned)
	case hir.TFloat:
		return "f32"
	case hir.TDouble:
		return "f64"
	case hir.TPointer:
		elem := "std::ffi::c_void"
		if !t.Elem.IsVoid() {
			elem = g.rust(t.Elem)
		}
		if t.Elem != nil && t.Elem.Const {
			return "*const " + elem
		}
		return "*mut " + elem
	case hir.TArray:
		if t.Len < 0 {
			return "Vec<" + g.rust(t.Elem) + ">"
		}
		return fmt.Sprintf("[%s; %d]", g.rust(t.Elem), t.Len)
	case hir.TStruct, hir.TUnion:
		if sr := g.structs[t.Name]; sr != nil {
			return sr.name
		}
		if rt, ok := builtinTypes[t.Name]; ok {
			return rt
		}
		return camel(t.Name)
	case hir.TEnum:
		if isAnon(t.Name) {
			return "i32"
		}
		return camel(t.Name)
	case hir.TTypedef:
		if rt, ok := builtinTypes[t.Name]; ok {
			return rt
		}
		r := g.mod.Resolve(t)
		if r != nil && r.Kind != hir.TTypedef && (r.Kind == hir.TStruct || r.Kind == hir.TUnion || r.Kind == hir.TEnum) {
			return g.rust(r)
		}
		return camel(t.Name)
	case hir.TFuncPtr:
		return g.fnType(t)
	}
	return ""
}

func intName(bits string, unsigned bool) string {
	if unsigned {
		return "u" + bits
	}
	return "i" + bits
}

func isAnon(name string) bool { return name == "" || strings.HasPrefix(name, "anon_") }

// fnType renders a function pointer type `fn(i32) -> i32`.
func (g *Generator) fnType(t *hir.Type) string {
	params := make([]string, len(t.Params))
	for i, p := range t.Params {
		params[i] = g.rust(p)
	}
	out := "fn(" + strings.Join(params, ", ") + ")"
	if r := g.rust(t.Result); r != "" && r != "()" {
		out += " -> " + r
	}
	return out
}

// zero renders the zero value of t as a constant expression. ok is false
// when t has no safe zero value.
func (g *Generator) zero(t *hir.Type) (string, bool) {
	if t == nil {
		return "0", true
	}
	if t.Kind == hir.TTypedef {
		switch builtinTypes[t.Name] {
		case "bool":
			return "false", true
		case "Mutex<()>":
			return "Mutex::new(())", true
		case "RwLock<()>":
			return "RwLock::new(())", true
		case "libc::FILE":
			return "", false
		case "":
			return g.zero(g.mod.Resolve(t))
		}
		return "0", true
	}
	switch t.Kind {
	case hir.TBool:
		return "false", true
	case hir.TFloat, hir.TDouble:
		return "0.0", true
	case hir.TPointer:
		if t.Elem != nil && t.Elem.Const {
			return "std::ptr::null()", true
		}
		return "std::ptr::null_mut()", true
	case hir.TArray:
		elem, ok := g.zero(t.Elem)
		if t.Len < 0 {
			return "Vec::new()", true
		}
		return fmt.Sprintf("[%s; %d]", elem, t.Len), ok
	case hir.TStruct:
		sr := g.structs[t.Name]
		if sr == nil {
			return "", false
		}
		return sr.zeroLiteral(g)
	case hir.TUnion:
		return "", false
	case hir.TEnum:
		if er := g.firstVariant(t.Name); er != "" {
			return er, true
		}
		return "0", true
	case hir.TFuncPtr:
		return "", false
	}
	return "0", true
}

// fieldKind is how a struct member is represented.
type fieldKind uint8

const (
	fieldValue fieldKind = iota
	fieldTree            // Option<Box<Self>>
	fieldArena           // Option<usize>
	fieldRef             // Option<&'a T>
	fieldVec             // Vec<T> for a scalar buffer
	fieldBox             // Option<Box<T>>
	fieldRaw             // raw pointer
	fieldFn              // Option<fn(..)>
	fieldLock
)

type fieldRepr struct {
	cname string
	name  string
	typ   string
	kind  fieldKind
	ctype *hir.Type
}

// structRepr is the Rust shape chosen for one C struct or union.
type structRepr struct {
	def       *hir.StructDef
	name      string
	arena     bool
	lt        *lifetime.StructLifetimes
	fields    []fieldRepr
	noClone   bool
	noDefault bool
}

// StructStrategy is the representation chosen for one struct.
type StructStrategy struct {
	Name      string
	Rust      string
	Strategy  string   // value, tree, arena or raw
	Lifetimes []string `json:",omitempty"`
}

// Structs reports the representation of every struct in declaration
// order.
func (g *Generator) Structs() []StructStrategy {
	out := make([]StructStrategy, 0, len(g.mod.Structs))
	for _, sd := range g.mod.Structs {
		sr := g.structs[sd.Name]
		if sr == nil {
			continue
		}
		ss := StructStrategy{Name: sd.Name, Rust: sr.name, Strategy: "value"}
		for _, f := range sr.fields {
			switch {
			case sr.arena:
				ss.Strategy = "arena"
			case f.kind == fieldTree && ss.Strategy == "value":
				ss.Strategy = "tree"
			case f.kind == fieldRaw:
				ss.Strategy = "raw"
			}
		}
		if sr.lt != nil {
			for _, id := range sr.lt.Params {
				ss.Lifetimes = append(ss.Lifetimes, id.String())
			}
		}
		out = append(out, ss)
	}
	return out
}

func (sr *structRepr) field(name string) *fieldRepr {
	for i := range sr.fields {
		if sr.fields[i].cname == name {
			return &sr.fields[i]
		}
	}
	return nil
}

func (sr *structRepr) generics() string {
	if sr.lt == nil || len(sr.lt.Params) == 0 {
		return ""
	}
	names := make([]string, len(sr.lt.Params))
	for i, id := range sr.lt.Params {
		names[i] = id.String()
	}
	return "<" + strings.Join(names, ", ") + ">"
}

func (sr *structRepr) zeroLiteral(g *Generator) (string, bool) {
	if sr.def.Union {
		return "", false
	}
	parts := make([]string, 0, len(sr.fields))
	for _, f := range sr.fields {
		var z string
		switch f.kind {
		case fieldTree, fieldArena, fieldRef, fieldBox, fieldFn:
			z = "None"
		case fieldVec:
			z = "Vec::new()"
		default:
			var ok bool
			if z, ok = g.zero(f.ctype); !ok {
				return "", false
			}
		}
		parts = append(parts, f.name+": "+z)
	}
	return sr.name + " { " + strings.Join(parts, ", ") + " }", true
}

func (g *Generator) prepareStructs() {
	g.structs = make(map[string]*structRepr, len(g.mod.Structs))
	arenas := g.backEdges()
	for _, sd := range g.mod.Structs {
		g.structs[sd.Name] = &structRepr{def: sd, name: camel(sd.Name), arena: arenas[sd.Name], lt: g.structLifetimes(sd.Name)}
	}
	for _, sd := range g.mod.Structs {
		sr := g.structs[sd.Name]
		for _, f := range sd.Fields {
			fr := g.fieldRepr(sr, f)
			switch fr.kind {
			case fieldRaw:
				sr.noDefault = true
			case fieldLock:
				sr.noClone = true
			case fieldValue:
				if inner := g.mod.StructOf(f.Type); inner != nil && !g.mod.Resolve(f.Type).IsPointer() {
					if ir := g.structs[inner.Name]; ir != nil && ir != sr {
						sr.noClone = sr.noClone || ir.noClone
						sr.noDefault = sr.noDefault || ir.noDefault
					}
				}
			}
			sr.fields = append(sr.fields, fr)
		}
	}
}

func (g *Generator) fieldRepr(sr *structRepr, f hir.Field) fieldRepr {
	fr := fieldRepr{cname: f.Name, name: ident(f.Name), ctype: f.Type}
	if f.Type != nil && f.Type.Kind == hir.TTypedef && isLockType(f.Type.Name) {
		fr.kind, fr.typ = fieldLock, builtinTypes[f.Type.Name]
		return fr
	}
	t := g.mod.Resolve(f.Type)
	var lts []lifetime.ID
	if sr.lt != nil {
		lts = sr.lt.Field(f.Name)
	}
	switch {
	case t == nil:
		fr.typ = "()"
	case t.Kind == hir.TFuncPtr:
		fr.kind, fr.typ = fieldFn, "Option<"+g.fnType(t)+">"
	case t.IsPointer():
		elem := g.mod.Resolve(t.Elem)
		switch {
		case elem != nil && (elem.Kind == hir.TStruct || elem.Kind == hir.TUnion) && elem.Name == sr.def.Name:
			if sr.arena {
				fr.kind, fr.typ = fieldArena, "Option<usize>"
			} else {
				fr.kind, fr.typ = fieldTree, "Option<Box<"+sr.name+">>"
			}
		case len(lts) > 0:
			inner := g.rust(t.Elem)
			if elem.Kind == hir.TChar {
				inner = "str"
			}
			fr.kind, fr.typ = fieldRef, "Option<&"+lts[0].String()+" "+inner+">"
		case elem == nil || elem.IsVoid() || elem.IsPointer():
			fr.kind, fr.typ = fieldRaw, g.rust(t)
		case elem.Kind == hir.TStruct || elem.Kind == hir.TUnion:
			fr.kind, fr.typ = fieldBox, "Option<Box<"+g.rust(t.Elem)+">>"
		default:
			fr.kind, fr.typ = fieldVec, "Vec<"+g.rust(t.Elem)+">"
		}
	case (t.Kind == hir.TStruct || t.Kind == hir.TUnion) && len(lts) > 0:
		names := make([]string, len(lts))
		for i, id := range lts {
			names[i] = id.String()
		}
		fr.typ = g.rust(t) + "<" + strings.Join(names, ", ") + ">"
	default:
		fr.typ = g.rust(f.Type)
	}
	return fr
}

// backEdges finds structs with a link assigned in both directions, or
// pointing at itself, in some function. Those become arenas.
func (g *Generator) backEdges() map[string]bool {
	out := make(map[string]bool)
	for _, fn := range g.mod.Funcs {
		type link struct{ obj, val, strct string }
		var links []link
		record := func(d hir.AssignData) {
			fd, ok := d.Target.Data.(hir.FieldData)
			if !ok || !fd.Arrow {
				return
			}
			sd := g.mod.StructOf(fd.Object.Type)
			if sd == nil {
				return
			}
			field := sd.Field(fd.Field)
			if field == nil || g.mod.StructOf(field.Type) != sd || !g.mod.Resolve(field.Type).IsPointer() {
				return
			}
			obj, val := pathKey(fd.Object), pathKey(d.Value.StripCasts())
			if obj != "" && val != "" {
				links = append(links, link{obj, val, sd.Name})
			}
		}
		hir.Inspect(fn.Body, func(s *hir.Stmt) bool {
			if d, ok := s.Data.(hir.AssignData); ok {
				record(d)
			}
			return true
		}, func(e *hir.Expr) bool {
			if d, ok := e.Data.(hir.AssignData); ok {
				record(d)
			}
			return true
		})
		for i, a := range links {
			if a.obj == a.val || strings.HasPrefix(a.obj, a.val+"->") {
				out[a.strct] = true
				continue
			}
			for _, b := range links[i+1:] {
				if a.obj == b.val && a.val == b.obj {
					out[a.strct] = true
				}
			}
		}
	}
	return out
}

// pathKey renders a variable or arrow chain, empty for other shapes.
func pathKey(e *hir.Expr) string {
	switch d := e.Data.(type) {
	case hir.VarRefData:
		return d.Name
	case hir.FieldData:
		base := pathKey(d.Object)
		if base == "" {
			return ""
		}
		if d.Arrow {
			return base + "->" + d.Field
		}
		return base + "." + d.Field
	}
	return ""
}

func (g *Generator) emitStructs() {
	for _, sd := range g.mod.Structs {
		sr := g.structs[sd.Name]
		b := &g.items
		if sd.Union {
			g.raw(b, 0, g.fallbacks.comment(sd.Span, "union", "union %s has no safe representation; fields share storage", sd.Name))
			g.line(b, 0, "#[repr(C)]")
			g.line(b, 0, "#[derive(Clone, Copy)]")
			g.line(b, 0, "pub union %s {", sr.name)
			for _, f := range sr.fields {
				g.line(b, 1, "pub %s: %s,", f.name, f.typ)
			}
			g.line(b, 0, "}")
			b.WriteString("\n")
			continue
		}
		derives := []string{"Debug"}
		if !sr.noClone {
			derives = append(derives, "Clone")
		}
		if !sr.noDefault {
			derives = append(derives, "Default")
		}
		g.line(b, 0, "#[derive(%s)]", strings.Join(derives, ", "))
		g.line(b, 0, "pub struct %s%s {", sr.name, sr.generics())
		for _, f := range sr.fields {
			g.line(b, 1, "pub %s: %s,", f.name, f.typ)
		}
		g.line(b, 0, "}")
		b.WriteString("\n")
		if sr.arena {
			g.emitArena(sr)
		}
	}
}

func (g *Generator) emitArena(sr *structRepr) {
	b := &g.items
	g.line(b, 0, "/// Storage for %s values; links are indices into nodes.", sr.name)
	g.line(b, 0, "#[derive(Debug, Default)]")
	g.line(b, 0, "pub struct %sArena {", sr.name)
	g.line(b, 1, "pub nodes: Vec<%s>,", sr.name)
	g.line(b, 0, "}")
	b.WriteString("\n")
	g.line(b, 0, "impl %sArena {", sr.name)
	g.line(b, 1, "pub fn alloc(&mut self, value: %s) -> usize {", sr.name)
	g.line(b, 2, "self.nodes.push(value);")
	g.line(b, 2, "self.nodes.len() - 1")
	g.line(b, 1, "}")
	g.line(b, 0, "}")
	b.WriteString("\n")
}

// enumRepr locates one enumerator.
type enumRepr struct {
	enum    string // Rust enum name, empty for anonymous enums
	variant string
	value   int64
	alias   bool // duplicate discriminant, emitted as an associated const
}

func (er *enumRepr) path() string {
	if er.enum == "" {
		return er.variant
	}
	return er.enum + "::" + er.variant
}

func (g *Generator) prepareEnums() {
	g.enums = make(map[string]*enumRepr)
	for _, ed := range g.mod.Enums {
		names := make([]string, len(ed.Values))
		for i, v := range ed.Values {
			names[i] = v.Name
		}
		variants := variantNames(names)
		seen := make(map[int64]bool)
		for i, v := range ed.Values {
			er := &enumRepr{value: v.Value}
			if isAnon(ed.Name) {
				er.variant = upperSnake(v.Name)
			} else {
				er.enum, er.variant = camel(ed.Name), variants[i]
				er.alias = seen[v.Value]
				if er.alias {
					er.variant = upperSnake(v.Name)
				}
			}
			seen[v.Value] = true
			g.enums[v.Name] = er
		}
	}
}

func (g *Generator) firstVariant(name string) string {
	ed := g.mod.Enum(name)
	if ed == nil || len(ed.Values) == 0 {
		return ""
	}
	return g.enums[ed.Values[0].Name].path()
}

func (g *Generator) emitEnums() {
	b := &g.items
	for _, ed := range g.mod.Enums {
		if isAnon(ed.Name) {
			for _, v := range ed.Values {
				g.line(b, 0, "pub const %s: i32 = %d;", g.enums[v.Name].variant, v.Value)
			}
			b.WriteString("\n")
			continue
		}
		name := camel(ed.Name)
		g.line(b, 0, "#[repr(i32)]")
		g.line(b, 0, "#[derive(Debug, Clone, Copy, PartialEq, Eq, PartialOrd, Ord, Default)]")
		g.line(b, 0, "pub enum %s {", name)
		var aliases []*enumRepr
		first := true
		for _, v := range ed.Values {
			er := g.enums[v.Name]
			if er.alias {
				aliases = append(aliases, er)
				continue
			}
			if first {
				g.line(b, 1, "#[default]")
				first = false
			}
			g.line(b, 1, "%s = %d,", er.variant, v.Value)
		}
		g.line(b, 0, "}")
		b.WriteString("\n")
		if len(aliases) > 0 {
			g.line(b, 0, "impl %s {", name)
			for _, a := range aliases {
				target := ""
				for _, v := range ed.Values {
					if o := g.enums[v.Name]; !o.alias && o.value == a.value {
						target = o.variant
						break
					}
				}
				g.line(b, 1, "pub const %s: %s = %s::%s;", a.variant, name, name, target)
			}
			g.line(b, 0, "}")
			b.WriteString("\n")
		}
	}
}

func (g *Generator) emitTypedefs() {
	b := &g.items
	n := 0
	for _, td := range g.mod.Typedefs {
		if td.Builtin {
			continue
		}
		r := g.mod.Resolve(td.Type)
		if r == nil || r.Kind == hir.TStruct || r.Kind == hir.TUnion || r.Kind == hir.TEnum {
			continue
		}
		g.line(b, 0, "pub type %s = %s;", camel(td.Name), g.rust(td.Type))
		n++
	}
	if n > 0 {
		b.WriteString("\n")
	}
}

func (g *Generator) emitMacros() {
	b := &g.items
	fe := g.moduleEmitter()
	for _, mc := range g.mod.Macros {
		t := g.rust(mc.Value.Type)
		if lit, ok := mc.Value.Data.(hir.LiteralData); ok && lit.Kind == hir.LitString {
			t = "&str"
		}
		if t == "" {
			t = "i32"
		}
		g.line(b, 0, "pub const %s: %s = %s;", upperSnake(mc.Name), t, fe.expr(mc.Value, t))
	}
	if len(g.mod.Macros) > 0 {
		b.WriteString("\n")
	}
}
