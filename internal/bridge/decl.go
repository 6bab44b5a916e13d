package bridge

import (
	"fmt"
	"slices"

	"decant/internal/cparse"
	"decant/internal/diag"
	"decant/internal/hir"
	"decant/internal/source"
)

type paramInfo struct {
	name string
	typ  *hir.Type
	span source.Span
}

type declResult struct {
	name        string
	typ         *hir.Type
	isFunc      bool
	params      []paramInfo
	variadic    bool
	unspecified bool
	span        source.Span
}

type specInfo struct {
	base     *hir.Type
	static   bool
	extern   bool
	absorbed string // typedef name that lexed as TypeName into the specifiers
}

func (b *builder) declaration(d *cparse.Declaration) {
	hint := ""
	if d.Typedef {
		hint = typedefName(d)
	}
	spec := b.specs(d.Specs, hint, d.Typedef && len(d.Inits) == 0, b.top())

	switch {
	case d.Typedef:
		b.typedef(d, spec)
	case d.Body != nil:
		b.funcDef(d, spec)
	default:
		for _, init := range d.Inits {
			r := b.declarator(spec.base, init.Decl, b.top())
			if r.isFunc {
				b.prototype(r)
				continue
			}
			b.global(r, init, spec)
		}
	}
}

func typedefName(d *cparse.Declaration) string {
	if len(d.Inits) > 0 {
		for decl := d.Inits[0].Decl; decl != nil; decl = decl.Nested {
			if decl.Name != nil {
				return *decl.Name
			}
		}
		return ""
	}
	if d.Specs.TypeName != nil {
		return *d.Specs.TypeName
	}
	return ""
}

// specs lowers a specifier list. When absorb is set, a TypeName next to
// other type specifiers is the name being declared (`typedef struct n N;`).
func (b *builder) specs(s *cparse.DeclSpecs, hint string, absorb bool, fb *funcBuilder) specInfo {
	var info specInfo
	for _, st := range s.Storage {
		switch st {
		case "static":
			info.static = true
		case "extern":
			info.extern = true
		}
	}

	others := len(s.Prims) > 0 || s.Struct != nil || s.Enum != nil
	typeName := s.TypeName
	if absorb && typeName != nil && others {
		info.absorbed = *typeName
		typeName = nil
	}

	switch {
	case s.Struct != nil:
		info.base = b.structSpec(s.Struct, hint, fb)
	case s.Enum != nil:
		info.base = b.enumSpec(s.Enum, hint, fb)
	case typeName != nil && len(s.Prims) == 0:
		info.base = hir.Named(hir.TTypedef, *typeName)
	default:
		info.base = primType(s.Prims)
	}
	if slices.Contains(s.Quals, "const") {
		info.base = info.base.WithConst()
	}
	return info
}

func primType(prims []string) *hir.Type {
	var unsigned, short, char, float, double, void, boolean bool
	long := 0
	for _, p := range prims {
		switch p {
		case "unsigned":
			unsigned = true
		case "short":
			short = true
		case "long":
			long++
		case "char":
			char = true
		case "float":
			float = true
		case "double":
			double = true
		case "void":
			void = true
		case "bool", "_Bool":
			boolean = true
		}
	}
	switch {
	case void:
		return &hir.Type{Kind: hir.TVoid}
	case boolean:
		return &hir.Type{Kind: hir.TBool}
	case char:
		return &hir.Type{Kind: hir.TChar, Unsigned: unsigned}
	case float:
		return &hir.Type{Kind: hir.TFloat}
	case double:
		return &hir.Type{Kind: hir.TDouble}
	case short:
		return &hir.Type{Kind: hir.TShort, Unsigned: unsigned}
	case long >= 2:
		return &hir.Type{Kind: hir.TLongLong, Unsigned: unsigned}
	case long == 1:
		return &hir.Type{Kind: hir.TLong, Unsigned: unsigned}
	default:
		return &hir.Type{Kind: hir.TInt, Unsigned: unsigned}
	}
}

func (b *builder) structSpec(s *cparse.StructSpec, hint string, fb *funcBuilder) *hir.Type {
	kind := hir.TStruct
	if s.Kind == "union" {
		kind = hir.TUnion
	}
	var name string
	switch {
	case s.Name != nil:
		name = *s.Name
	case hint != "":
		name = hint
	default:
		b.anon++
		name = fmt.Sprintf("anon_%d", b.anon)
	}
	t := hir.Named(kind, name)
	if !s.Body {
		return t
	}
	sp := b.span(s.Pos, s.EndPos)
	for _, existing := range b.mod.Structs {
		if existing.Name == name {
			b.moduleError(diag.BldRedefinition, sp, "%s %s is defined twice", s.Kind, name)
			return t
		}
	}

	def := &hir.StructDef{Name: name, Union: kind == hir.TUnion, Span: sp}
	for _, g := range s.Fields {
		spec := b.specs(g.Specs, "", false, fb)
		for _, fd := range g.Decls {
			r := b.declarator(spec.base, fd.Decl, fb)
			if fd.BitWidth != nil {
				b.moduleError(diag.BldBitField, b.span(fd.Pos, fd.EndPos),
					"bit-field %s.%s is lowered as a plain %s", name, r.name, r.typ)
			}
			def.Fields = append(def.Fields, hir.Field{Name: r.name, Type: r.typ, Span: b.span(fd.Pos, fd.EndPos)})
		}
	}
	b.mod.Structs = append(b.mod.Structs, def)
	return t
}

func (b *builder) enumSpec(e *cparse.EnumSpec, hint string, fb *funcBuilder) *hir.Type {
	name := hint
	if e.Name != nil {
		name = *e.Name
	}
	if !e.Body {
		return hir.Named(hir.TEnum, name)
	}
	def := &hir.EnumDef{Name: name, Span: b.span(e.Pos, e.EndPos)}
	known := make(map[string]int64)
	var next int64
	for _, en := range e.Enumerators {
		sp := b.span(en.Pos, en.EndPos)
		if en.Value != nil {
			if v, ok := evalConst(fb.cond(en.Value), b.mod, known); ok {
				next = v
			} else {
				b.moduleError(diag.BldUnsupported, sp, "enumerator %s has a non-constant value", en.Name)
			}
		}
		def.Values = append(def.Values, hir.Enumerator{Name: en.Name, Value: next, Span: sp})
		known[en.Name] = next
		next++
	}
	b.mod.Enums = append(b.mod.Enums, def)
	if name == "" {
		return &hir.Type{Kind: hir.TInt}
	}
	return hir.Named(hir.TEnum, name)
}

// declarator applies pointers, then suffixes right to left, then recurses
// into a parenthesised inner declarator.
func (b *builder) declarator(base *hir.Type, d *cparse.Declarator, fb *funcBuilder) declResult {
	t := applyPointers(base, d.Pointers)
	t, fn := b.applySuffixes(t, d.Suffixes, fb)

	if d.Nested != nil {
		// (*name)(...) declares a pointer to function, never a definition
		return b.declarator(t, d.Nested, fb)
	}
	res := declResult{typ: t, span: b.span(d.Pos, d.EndPos)}
	if d.Name != nil {
		res.name = *d.Name
	}
	if fn != nil {
		res.isFunc = true
		res.params, res.variadic, res.unspecified = fn.params, fn.variadic, fn.unspecified
	}
	return res
}

func (b *builder) abstract(base *hir.Type, a *cparse.AbstractDeclarator, fb *funcBuilder) *hir.Type {
	if a == nil {
		return base
	}
	t := applyPointers(base, a.Pointers)
	t, _ = b.applySuffixes(t, a.Suffixes, fb)
	if a.Nested != nil {
		t = b.abstract(t, a.Nested, fb)
	}
	return t
}

func applyPointers(t *hir.Type, ptrs []*cparse.PointerQual) *hir.Type {
	for _, p := range ptrs {
		if t.Kind == hir.TFuncPtr && isBare(t) {
			unbare(t)
		} else {
			t = hir.PointerTo(t)
		}
		if slices.Contains(p.Quals, "const") {
			t = t.WithConst()
		}
	}
	return t
}

// A function suffix yields a TFuncPtr marked bare until a pointer is
// applied to it. Every type that leaves the bridge has Len 0 on TFuncPtr.
const bareFuncMark = -2

func isBare(t *hir.Type) bool { return t.Len == bareFuncMark }
func unbare(t *hir.Type)      { t.Len = 0 }

type funcSuffix struct {
	params      []paramInfo
	variadic    bool
	unspecified bool
}

// applySuffixes returns the built type and, when the suffix nearest the
// name is a parameter list, that list.
func (b *builder) applySuffixes(t *hir.Type, sfx []*cparse.DeclSuffix, fb *funcBuilder) (*hir.Type, *funcSuffix) {
	var fn *funcSuffix
	for i := len(sfx) - 1; i >= 0; i-- {
		s := sfx[i]
		switch {
		case s.Array != nil:
			n := -1
			if s.Array.Size != nil {
				if v, ok := evalConst(fb.cond(s.Array.Size), b.mod, nil); ok && v >= 0 {
					n = int(v)
				} else {
					fb.fail(diag.BldUnsupported, b.span(s.Pos, s.Pos), "variable-length arrays are not supported")
				}
			}
			t = hir.ArrayOf(t, n)
			fn = nil
		case s.Params != nil:
			params, variadic, unspecified := b.paramList(s.Params, fb)
			types := make([]*hir.Type, len(params))
			for j, p := range params {
				types[j] = p.typ
			}
			t = &hir.Type{Kind: hir.TFuncPtr, Params: types, Result: t, Variadic: variadic, Len: bareFuncMark}
			fn = &funcSuffix{params: params, variadic: variadic, unspecified: unspecified}
		}
	}
	return t, fn
}

func (b *builder) paramList(pl *cparse.ParamList, fb *funcBuilder) (params []paramInfo, variadic, unspecified bool) {
	if len(pl.Params) == 0 {
		return nil, pl.Variadic, true
	}
	if len(pl.Params) == 1 && isVoidParam(pl.Params[0]) {
		return nil, false, false
	}
	for i, p := range pl.Params {
		spec := b.specs(p.Specs, "", false, fb)
		info := paramInfo{span: b.span(p.Pos, p.EndPos)}
		switch {
		case p.Decl != nil:
			r := b.declarator(spec.base, p.Decl, fb)
			info.name, info.typ = r.name, r.typ
		default:
			info.typ = b.abstract(spec.base, p.Abstract, fb)
		}
		if info.name == "" {
			info.name = fmt.Sprintf("arg%d", i)
		}
		info.typ = decay(info.typ)
		params = append(params, info)
	}
	return params, pl.Variadic, false
}

func isVoidParam(p *cparse.Param) bool {
	if p.Decl != nil || len(p.Specs.Prims) != 1 || p.Specs.Prims[0] != "void" {
		return false
	}
	a := p.Abstract
	return a == nil || (len(a.Pointers) == 0 && a.Nested == nil && len(a.Suffixes) == 0)
}

// decay turns array parameters into pointers and bare functions into
// function pointers.
func decay(t *hir.Type) *hir.Type {
	switch {
	case t.IsArray():
		return hir.PointerTo(t.Elem)
	case t.Kind == hir.TFuncPtr && isBare(t):
		unbare(t)
	}
	return t
}

func (b *builder) typedef(d *cparse.Declaration, spec specInfo) {
	sp := b.span(d.Pos, d.EndPos)
	if spec.absorbed != "" {
		b.addTypedef(spec.absorbed, spec.base, sp)
		return
	}
	for _, init := range d.Inits {
		r := b.declarator(spec.base, init.Decl, b.top())
		b.addTypedef(r.name, decay(r.typ), sp)
	}
}

func (b *builder) addTypedef(name string, t *hir.Type, sp source.Span) {
	if name == "" || (t.Kind == hir.TTypedef && t.Name == name) {
		return
	}
	if t.Kind == hir.TFuncPtr {
		unbare(t)
	}
	for i, existing := range b.mod.Typedefs {
		if existing.Name != name {
			continue
		}
		if existing.Builtin {
			b.mod.Typedefs[i] = &hir.TypedefDef{Name: name, Type: t, Span: sp}
			return
		}
		if !existing.Type.Equal(t) {
			b.moduleError(diag.BldRedefinition, sp, "typedef %s redefined with a different type", name)
		}
		return
	}
	b.mod.Typedefs = append(b.mod.Typedefs, &hir.TypedefDef{Name: name, Type: t, Span: sp})
}

func (b *builder) funcDef(d *cparse.Declaration, spec specInfo) {
	sp := b.span(d.Pos, d.EndPos)
	if len(d.Inits) != 1 {
		b.moduleError(diag.BldUnsupported, sp, "function body without a single declarator")
		return
	}
	r := b.declarator(spec.base, d.Inits[0].Decl, b.top())
	if !r.isFunc {
		b.moduleError(diag.BldUnsupported, sp, "function body attached to non-function %s", r.name)
		return
	}
	unbare(r.typ)
	for _, p := range b.pending {
		if p.name == r.name {
			b.moduleError(diag.BldRedefinition, sp, "function %s is defined twice", r.name)
			return
		}
	}
	b.sigs[r.name] = r.typ
	if r.unspecified {
		b.unspecified[r.name] = true
	} else {
		delete(b.unspecified, r.name)
	}
	b.pending = append(b.pending, pendingFunc{
		name:   r.name,
		decl:   d,
		params: r.params,
		sig:    r.typ,
		static: spec.static,
		span:   sp,
	})
}

func (b *builder) prototype(r declResult) {
	unbare(r.typ)
	if _, seen := b.sigs[r.name]; seen {
		return
	}
	b.sigs[r.name] = r.typ
	if r.unspecified {
		b.unspecified[r.name] = true
	}
	b.mod.Prototypes = append(b.mod.Prototypes, hir.Prototype{Name: r.name, Sig: r.typ, Span: r.span})
}

func (b *builder) global(r declResult, init *cparse.InitDeclarator, spec specInfo) {
	g := &hir.Global{Name: r.name, Type: r.typ, Static: spec.static, Extern: spec.extern, Span: r.span}
	if init.Init != nil {
		g.Init = b.top().initializer(init.Init, r.typ)
	}
	for i, existing := range b.mod.Globals {
		if existing.Name != g.Name {
			continue
		}
		switch {
		case g.Extern:
		case existing.Extern:
			g.ID = existing.ID
			b.mod.Globals[i] = g
		default:
			b.moduleError(diag.BldRedefinition, r.span, "global %s is defined twice", g.Name)
		}
		return
	}
	id, err := safeID(len(b.mod.Globals) + 1)
	if err != nil {
		b.moduleError(diag.BldUnsupported, r.span, "too many globals")
		return
	}
	g.ID = hir.GlobalID(id)
	b.mod.Globals = append(b.mod.Globals, g)
}
