package codegen

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"decant/internal/hir"
	"decant/internal/ownership"
	"decant/internal/patterns"
)

// expr renders e converted to want. An empty want keeps the natural type.
func (fe *funcEmitter) expr(e *hir.Expr, want string) string {
	if e == nil {
		return "()"
	}
	code, ty := fe.render(e, want)
	return fe.coerce(e, code, ty, want)
}

// render returns the Rust text of e and its Rust type. want only steers
// literals and allocations.
func (fe *funcEmitter) render(e *hir.Expr, want string) (string, string) {
	switch d := e.Data.(type) {
	case hir.LiteralData:
		return fe.literal(e, d, want)
	case hir.VarRefData:
		return fe.varRef(e, d)
	case hir.UnaryData:
		return fe.unary(e, d, want)
	case hir.BinaryData:
		return fe.binary(e, d, want)
	case hir.AssignData:
		return fe.assignExpr(e, d)
	case hir.CallData:
		return fe.call(e, d, want)
	case hir.FieldData:
		return fe.field(e, d)
	case hir.IndexData:
		return fe.index(e, d)
	case hir.CastData:
		return fe.cast(e, d, want)
	case hir.SizeofData:
		return fe.sizeof(d), "usize"
	case hir.TernaryData:
		return fe.ternary(d, want)
	case hir.InitListData:
		return fe.initList(e, d, want)
	case hir.AllocData:
		return fe.alloc(e, d, want)
	}
	return fe.sink.inline(e.Span, "expression", "std::mem::zeroed()", "unsupported expression %s", e.Kind), want
}

// coerce converts code of type ty to want.
func (fe *funcEmitter) coerce(e *hir.Expr, code, ty, want string) string {
	if want == "" || ty == "" || want == ty {
		if want != "" && fe.needsClone(e, ty) {
			return code + ".clone()"
		}
		return code
	}
	switch {
	case want == "bool":
		return fe.truth(code, ty)
	case isNumeric(want) && (isNumeric(ty) || ty == "bool" || fe.g.isEnumType(ty)):
		return "(" + code + " as " + want + ")"
	case isNumeric(want) && isRaw(ty):
		return fe.sink.inline(e.Span, "pointer-to-int", "("+code+" as usize as "+want+")", "pointer converted to integer")
	case fe.g.isEnumType(want) && isNumeric(ty):
		return fe.sink.inline(e.Span, "int-to-enum",
			fmt.Sprintf("std::mem::transmute::<i32, %s>(%s as i32)", want, code), "integer converted to enum %s", want)
	case want == "String" && ty == "&str":
		return code + ".to_string()"
	case want == "&str" && ty == "String":
		return code + ".as_str()"
	case want == "&str" && isArrayTy(ty):
		return "std::str::from_utf8(&" + code + ").unwrap_or(\"\").trim_end_matches('\\0')"
	case isOption(want) && isOption(ty):
		switch {
		case isRefTy(inner(want)) && isBox(inner(ty)):
			if isMutRef(inner(want)) {
				return code + ".as_deref_mut()"
			}
			return code + ".as_deref()"
		}
		return code
	case isOption(want):
		return "Some(" + fe.coerce(e, code, ty, inner(want)) + ")"
	case isOption(ty) && isRefTy(want):
		if isMutRef(want) {
			return code + ".as_deref_mut().unwrap()"
		}
		return code + ".as_deref().unwrap()"
	case isRefTy(want) && isBox(ty):
		if isMutRef(want) {
			return "&mut *" + code
		}
		return "&*" + code
	case isSliceRef(want) && (isVec(ty) || isArrayTy(ty)):
		if isMutRef(want) {
			return "&mut " + code + "[..]"
		}
		return "&" + code + "[..]"
	case isSliceRef(want) && isSliceRef(ty):
		return code
	case isRefTy(want) && !isRefTy(ty) && !isRaw(ty):
		if isMutRef(want) {
			return "&mut " + code
		}
		return "&" + code
	case isRaw(want) && (isRefTy(ty) || isRaw(ty) || isNumeric(ty)):
		return "(" + code + " as " + want + ")"
	case isRaw(want) && isBox(ty):
		return "(&mut *" + code + " as *mut " + inner(ty) + " as " + want + ")"
	case isRaw(want) && isVec(ty):
		if fe.mutablePlace(e) {
			return "(" + code + ".as_mut_ptr() as " + want + ")"
		}
		return "(" + code + ".as_ptr() as " + want + ")"
	}
	return code
}

// mutablePlace reports whether the place e names can be borrowed mutably
// in the emitted Rust.
func (fe *funcEmitter) mutablePlace(e *hir.Expr) bool {
	l, ok := rootLocal(e)
	if !ok {
		return false
	}
	if d := fe.own.Lookup(l); d != nil {
		switch d.Kind {
		case ownership.KindRef, ownership.KindSlice:
			return d.Mutable
		case ownership.KindRawPointer, ownership.KindUnknown:
			return true
		}
	}
	return fe.mutated[l]
}

// needsClone reports a struct-valued place copied into a new binding.
func (fe *funcEmitter) needsClone(e *hir.Expr, ty string) bool {
	if e == nil || copyable(ty) || !isPlace(e) {
		return false
	}
	for _, sr := range fe.g.structs {
		if sr.name == ty {
			return !sr.noClone && !sr.def.Union
		}
	}
	return false
}

func isPlace(e *hir.Expr) bool {
	switch d := e.Data.(type) {
	case hir.VarRefData:
		return d.Ref == hir.RefLocal || d.Ref == hir.RefGlobal
	case hir.FieldData, hir.IndexData:
		return true
	case hir.UnaryData:
		return d.Op == hir.UnDeref
	}
	return false
}

func (g *Generator) isEnumType(t string) bool {
	for _, ed := range g.mod.Enums {
		if !isAnon(ed.Name) && camel(ed.Name) == t {
			return true
		}
	}
	return false
}

// truth renders code as a Rust condition.
func (fe *funcEmitter) truth(code, ty string) string {
	switch {
	case ty == "bool":
		return code
	case isFloat(ty):
		return "(" + code + " != 0.0)"
	case isNumeric(ty):
		return "(" + code + " != 0)"
	case fe.g.isEnumType(ty):
		return "(" + code + " as i32 != 0)"
	case isOption(ty):
		return code + ".is_some()"
	case isRaw(ty):
		return "!" + code + ".is_null()"
	case isBox(ty), isRefTy(ty), isVec(ty), ty == "String", strings.HasPrefix(ty, "fn("):
		return "true"
	}
	return "(" + code + " != 0)"
}

// cond renders a C condition expression.
func (fe *funcEmitter) cond(e *hir.Expr) string {
	code := fe.expr(e, "bool")
	if strings.HasPrefix(code, "(") && strings.HasSuffix(code, ")") && balanced(code[1:len(code)-1]) {
		return code[1 : len(code)-1]
	}
	return code
}

// balanced reports whether s has no unmatched parentheses.
func balanced(s string) bool {
	depth := 0
	for _, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

func (fe *funcEmitter) literal(e *hir.Expr, d hir.LiteralData, want string) (string, string) {
	switch d.Kind {
	case hir.LitInt:
		return fe.intLiteral(e, d.Int, want)
	case hir.LitFloat:
		s := strconv.FormatFloat(d.Float, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEn") {
			s += ".0"
		}
		if want == "f32" {
			return s, "f32"
		}
		return s, "f64"
	case hir.LitChar:
		if isNumeric(want) && want != "u8" && !isFloat(want) {
			return strconv.FormatInt(d.Int, 10), want
		}
		return byteLiteral(d.Int), "u8"
	case hir.LitString:
		return fe.stringLiteral(d.Text, want)
	case hir.LitNull:
		return fe.null(e, want)
	}
	return "0", "i32"
}

func (fe *funcEmitter) intLiteral(e *hir.Expr, v int64, want string) (string, string) {
	s := strconv.FormatInt(v, 10)
	switch {
	case want == "bool":
		return strconv.FormatBool(v != 0), "bool"
	case isFloat(want):
		return s + ".0", want
	case isNumeric(want):
		if v < 0 && isUnsigned(want) {
			return "(" + s + "i64 as " + want + ")", want
		}
		if want == "u16" || want == "u32" || want == "u64" {
			return s + want, want
		}
		return s, want
	case fe.g.isEnumType(want):
		if path := fe.g.variantOf(want, v); path != "" {
			return path, want
		}
	case v == 0 && (isOption(want) || isRaw(want)):
		return fe.null(e, want)
	}
	if v > 1<<31-1 || v < -1<<31 {
		return s, "i64"
	}
	return s, "i32"
}

// variantOf finds the variant of enum ty with discriminant v.
func (g *Generator) variantOf(ty string, v int64) string {
	for _, ed := range g.mod.Enums {
		if camel(ed.Name) != ty {
			continue
		}
		for _, ev := range ed.Values {
			if er := g.enums[ev.Name]; er != nil && !er.alias && ev.Value == v {
				return er.path()
			}
		}
	}
	return ""
}

func byteLiteral(v int64) string {
	switch v {
	case '\n':
		return `b'\n'`
	case '\r':
		return `b'\r'`
	case '\t':
		return `b'\t'`
	case 0:
		return `b'\0'`
	case '\\':
		return `b'\\'`
	case '\'':
		return `b'\''`
	}
	if v >= 0x20 && v < 0x7f {
		return "b'" + string(rune(v)) + "'"
	}
	return fmt.Sprintf(`b'\x%02x'`, byte(v))
}

// rustString quotes s as a Rust string literal.
func rustString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		s = s[size:]
		switch {
		case r == '"':
			b.WriteString(`\"`)
		case r == '\\':
			b.WriteString(`\\`)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case r == 0:
			b.WriteString(`\0`)
		case r == utf8.RuneError && size == 1:
			b.WriteString(`\u{fffd}`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&b, `\x%02x`, r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func (fe *funcEmitter) stringLiteral(text, want string) (string, string) {
	q := rustString(text)
	switch {
	case want == "String":
		return "String::from(" + q + ")", want
	case isRaw(want):
		return "(c" + q + ".as_ptr() as " + want + ")", want
	case isArrayTy(want) && element(want) == "u8":
		n, _ := strconv.Atoi(strings.TrimSuffix(want[strings.LastIndex(want, "; ")+2:], "]"))
		padded := text
		if len(padded) < n {
			padded += strings.Repeat("\x00", n-len(padded))
		}
		return "*b" + rustString(padded), want
	case want == "&[u8]":
		return "b" + q, want
	}
	return q, "&str"
}

func (fe *funcEmitter) null(e *hir.Expr, want string) (string, string) {
	switch {
	case isOption(want):
		return "None", want
	case strings.HasPrefix(want, "*const "):
		return "std::ptr::null()", want
	case isRaw(want):
		return "std::ptr::null_mut()", want
	case want == "" || strings.HasPrefix(want, "*"):
		return "std::ptr::null_mut()", "*mut std::ffi::c_void"
	}
	return fe.sink.inline(e.Span, "null", "std::mem::zeroed()", "NULL stored in non-nullable %s", want), want
}

// localType is the Rust type of a binding as declared in the output.
func (fe *funcEmitter) localType(l hir.LocalID) string {
	if t, ok := fe.types[l]; ok {
		return t
	}
	t := fe.computeLocalType(l)
	fe.types[l] = t
	return t
}

func (fe *funcEmitter) computeLocalType(l hir.LocalID) string {
	loc := fe.fn.Local(l)
	if loc == nil {
		return ""
	}
	if fe.strbufs[l] {
		return "String"
	}
	if fe.isMain && l == fe.argvLocal {
		return "Vec<String>"
	}
	if g, ok := fe.views[l]; ok {
		return fe.localType(g)
	}
	if op := fe.outParam(l); op != nil {
		return fe.g.rust(op.Elem)
	}
	if loc.Param && loc.ParamIndex >= 0 && fe.info != nil {
		return stripLifetimes(fe.g.paramType(fe.info, loc.ParamIndex, false))
	}
	t := fe.g.mod.Resolve(loc.Type)
	if t.IsPointer() {
		if sd := fe.g.mod.StructOf(t.Elem); sd != nil && fe.g.structs[sd.Name] != nil && fe.g.structs[sd.Name].arena {
			return fe.g.rust(loc.Type)
		}
		return stripLifetimes(fe.g.pointerType(fe.own.Lookup(l), t, ""))
	}
	return stripLifetimes(fe.g.rust(loc.Type))
}

func (fe *funcEmitter) outParam(l hir.LocalID) *patterns.OutParam {
	return fe.hints.OutParam(l)
}

// sliceLen returns the slice parameter whose length l was.
func (fe *funcEmitter) sliceLen(l hir.LocalID) (hir.LocalID, bool) {
	if fe.hints == nil {
		return 0, false
	}
	for _, sp := range fe.hints.Slices {
		if sp.Len == l {
			return sp.Ptr, true
		}
	}
	return 0, false
}

func (fe *funcEmitter) varRef(e *hir.Expr, d hir.VarRefData) (string, string) {
	switch d.Ref {
	case hir.RefLocal:
		if fe.fn == nil {
			return ident(d.Name), ""
		}
		if ptr, ok := fe.sliceLen(d.Local); ok {
			t := fe.g.rust(e.Type)
			if t == "usize" {
				return fe.localName(ptr) + ".len()", t
			}
			return "(" + fe.localName(ptr) + ".len() as " + t + ")", t
		}
		if fe.isMain && d.Local == fe.argvLocal {
			return "args", "Vec<String>"
		}
		if loc := fe.fn.Local(d.Local); loc != nil && loc.Static {
			name := fe.localName(d.Local)
			ty := fe.localType(d.Local)
			switch {
			case fe.inUnsafe:
			case fe.lhs:
				fe.pending = &pendingUnsafe{construct: "static-local", reason: "write to static local " + d.Name}
			default:
				return fe.sink.inline(e.Span, "static-local", name, "read of static local %s", d.Name), ty
			}
			return name, ty
		}
		return fe.localName(d.Local), fe.localType(d.Local)
	case hir.RefGlobal:
		return fe.global(e, d)
	case hir.RefFunc:
		if fn := fe.g.mod.FuncByName(d.Name); fn != nil {
			return ident(d.Name), fe.g.fnType(fn.Signature())
		}
		return fe.sink.inline(e.Span, "extern-fn", ident(d.Name), "library function %s used as a value", d.Name), fe.g.rust(e.Type)
	case hir.RefEnumConst:
		if er := fe.g.enums[d.Name]; er != nil {
			if er.enum == "" {
				return er.path(), "i32"
			}
			return er.path(), er.enum
		}
		return strconv.FormatInt(d.Value, 10), "i32"
	case hir.RefMacro:
		if mc := fe.g.mod.Macro(d.Name); mc != nil {
			return upperSnake(d.Name), fe.g.macroType(mc)
		}
	case hir.RefExtern:
		switch d.Name {
		case "errno":
			return "std::io::Error::last_os_error().raw_os_error().unwrap_or(0)", "i32"
		case "PTHREAD_MUTEX_INITIALIZER", "PTHREAD_RWLOCK_INITIALIZER":
			return "Mutex::new(())", "Mutex<()>"
		}
	}
	return fe.sink.inline(e.Span, "extern", ident(d.Name), "%s is declared outside the module", d.Name), fe.g.rust(e.Type)
}

func (g *Generator) macroType(mc *hir.MacroConst) string {
	if lit, ok := mc.Value.Data.(hir.LiteralData); ok && lit.Kind == hir.LitString {
		return "&str"
	}
	if t := g.rust(mc.Value.Type); t != "" {
		return t
	}
	return "i32"
}

func (fe *funcEmitter) unary(e *hir.Expr, d hir.UnaryData, want string) (string, string) {
	switch d.Op {
	case hir.UnNeg:
		if v, ok := d.Operand.IntValue(); ok {
			return fe.intLiteral(e, -v, want)
		}
		if lit, ok := d.Operand.Data.(hir.LiteralData); ok && lit.Kind == hir.LitFloat {
			code, ty := fe.literal(d.Operand, lit, want)
			return "-" + code, ty
		}
		code, ty := fe.render(d.Operand, want)
		if isUnsigned(ty) {
			return code + ".wrapping_neg()", ty
		}
		return "(-" + code + ")", ty
	case hir.UnPlus:
		return fe.render(d.Operand, want)
	case hir.UnNot:
		return "!" + wrap(fe.expr(d.Operand, "bool")), "bool"
	case hir.UnBitNot:
		code, ty := fe.render(d.Operand, want)
		return "(!" + code + ")", ty
	case hir.UnDeref:
		return fe.deref(e, d.Operand)
	case hir.UnAddr:
		return fe.addrOf(e, d.Operand, want)
	}
	return fe.incDecExpr(e, d)
}

// wrap parenthesises code unless it is atomic.
func wrap(code string) string {
	if isAtomic(code) {
		return code
	}
	return "(" + code + ")"
}

func isAtomic(code string) bool {
	if strings.HasPrefix(code, "(") && strings.HasSuffix(code, ")") && balanced(code[1:len(code)-1]) {
		return true
	}
	for _, r := range code {
		if !(r == '_' || r == '.' || r == ':' || r == '#' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return strings.HasSuffix(code, "()") && !strings.ContainsAny(code, " +-*/")
		}
	}
	return true
}

// deref renders *p by the representation of p.
func (fe *funcEmitter) deref(e *hir.Expr, operand *hir.Expr) (string, string) {
	base := operand.StripCasts()
	if l, ok := base.LocalRef(); ok && fe.outParam(l) != nil {
		return fe.localName(l), fe.localType(l)
	}
	if b, ok := base.Data.(hir.BinaryData); ok && (b.Op == hir.BinAdd || b.Op == hir.BinSub) && b.Left.Type.IsPointer() {
		_, lty := fe.render(b.Left, "")
		if isSliceRef(lty) || isVec(lty) || isArrayTy(lty) {
			return fe.index(e, hir.IndexData{Object: b.Left, Index: b.Right})
		}
	}
	lhs := fe.lhs
	code, ty := fe.render(operand, "")
	fe.lhs = lhs
	switch {
	case isBox(ty):
		return "*" + code, inner(ty)
	case isOption(ty):
		if fe.lhs {
			return "*" + code + ".as_deref_mut().unwrap()", pointee(ty)
		}
		return "*" + code + ".as_deref().unwrap()", pointee(ty)
	case ty == "&str" || ty == "String":
		return code + ".as_bytes()[0]", "u8"
	case isSliceRef(ty), isVec(ty), isArrayTy(ty):
		return code + "[0]", element(ty)
	case isRefTy(ty):
		return "*" + code, deref(ty)
	case isRaw(ty):
		return fe.unsafeAccess(e, "raw-deref", "*"+code, "dereference of raw pointer"), deref(ty)
	}
	return "*" + code, pointee(ty)
}

// unsafeAccess wraps a raw access in a tagged unsafe block, or records
// it for the enclosing statement when rendering a write target.
func (fe *funcEmitter) unsafeAccess(e *hir.Expr, construct, code, reason string) string {
	switch {
	case fe.inUnsafe:
		return code
	case fe.lhs:
		if fe.pending == nil {
			fe.pending = &pendingUnsafe{construct: construct, reason: reason}
		}
		return code
	}
	return fe.sink.inline(e.Span, construct, code, "%s", reason)
}

func (fe *funcEmitter) addrOf(e *hir.Expr, operand *hir.Expr, want string) (string, string) {
	if name, ok := operand.Data.(hir.VarRefData); ok && name.Ref == hir.RefFunc {
		return fe.render(operand, want)
	}
	if ix, ok := operand.Data.(hir.IndexData); ok && (isSliceRef(want) || isVec(want)) {
		code, ty := fe.render(ix.Object, "")
		idx := fe.expr(ix.Index, "usize")
		if isMutRef(want) {
			return "&mut " + code + "[" + idx + "..]", "&mut [" + element(ty) + "]"
		}
		return "&" + code + "[" + idx + "..]", "&[" + element(ty) + "]"
	}
	mut := isMutRef(want) || isRaw(want) || (isOption(want) && isMutRef(inner(want)))
	if want == "" {
		if l, ok := rootLocal(operand); ok && fe.mutated[l] {
			mut = true
		}
	}
	saved := fe.lhs
	fe.lhs = mut
	code, ty := fe.render(operand, "")
	fe.lhs = saved
	if isRaw(want) {
		ptr := "*const "
		if !strings.HasPrefix(want, "*const ") {
			ptr = "*mut "
		}
		prefix := "&"
		if ptr == "*mut " {
			prefix = "&mut "
		}
		return "(" + prefix + code + " as " + ptr + ty + ")", ptr + ty
	}
	if mut {
		return "&mut " + code, "&mut " + ty
	}
	return "&" + code, "&" + ty
}

func (fe *funcEmitter) incDecExpr(e *hir.Expr, d hir.UnaryData) (string, string) {
	op := "+="
	if d.Op == hir.UnPreDec || d.Op == hir.UnPostDec {
		op = "-="
	}
	one := &hir.Expr{Kind: hir.ExprLiteral, Type: hir.Int, Span: e.Span, Data: hir.LiteralData{Kind: hir.LitInt, Int: 1}}
	stmt := fe.store(d.Operand, op, one)
	read := fe.expr(d.Operand, "")
	_, ty := fe.render(d.Operand, "")
	if d.Op == hir.UnPreInc || d.Op == hir.UnPreDec {
		return "{ " + stmt + " " + read + " }", ty
	}
	return "{ let old = " + read + "; " + stmt + " old }", ty
}

func (fe *funcEmitter) assignExpr(e *hir.Expr, d hir.AssignData) (string, string) {
	op := "="
	if d.Compound {
		op = d.Op.String() + "="
	}
	stmt := fe.store(d.Target, op, d.Value)
	read, ty := fe.render(d.Target, "")
	return "{ " + stmt + " " + read + " }", ty
}

// store renders `target op value;`. A target that needs unsafe makes the
// whole statement a tagged unsafe block.
func (fe *funcEmitter) store(target *hir.Expr, op string, value *hir.Expr) string {
	if target.Type.IsPointer() && (op == "+=" || op == "-=") {
		t, ty := fe.render(target, "")
		return fe.pointerStep(target, t, ty, op, value)
	}
	return fe.storeWith(target, op, func(ty string) string {
		switch {
		case op == "<<=" || op == ">>=":
			return fe.expr(value, "u32")
		case fe.strbufs[localOf(target)] && op == "=":
			return fe.expr(value, "String")
		}
		return fe.expr(value, ty)
	})
}

// storeWith renders the target and then the value for the target type.
func (fe *funcEmitter) storeWith(target *hir.Expr, op string, value func(ty string) string) string {
	savedLhs, savedPending := fe.lhs, fe.pending
	fe.lhs, fe.pending = true, nil
	t, ty := fe.render(target, "")
	pending := fe.pending
	fe.lhs, fe.pending = savedLhs, savedPending

	savedUnsafe := fe.inUnsafe
	if pending != nil {
		fe.inUnsafe = true
	}
	v := value(ty)
	fe.inUnsafe = savedUnsafe
	stmt := t + " " + op + " " + v + ";"
	if pending != nil && !fe.inUnsafe {
		return fe.sink.inline(target.Span, pending.construct, stmt, "%s", pending.reason)
	}
	return stmt
}

func localOf(e *hir.Expr) hir.LocalID {
	l, _ := e.LocalRef()
	return l
}

// pointerStep renders p += n on a pointer.
func (fe *funcEmitter) pointerStep(target *hir.Expr, t, ty, op string, value *hir.Expr) string {
	n := fe.expr(value, "usize")
	if (isSliceRef(ty) || isVec(ty)) && op == "+=" {
		if isMutRef(ty) {
			return t + " = &mut std::mem::take(&mut " + t + ")[" + n + "..];"
		}
		return t + " = &" + t + "[" + n + "..];"
	}
	dir := ""
	if op == "-=" {
		dir = "-"
	}
	stmt := fmt.Sprintf("%s = %s.offset(%s(%s as isize));", t, t, dir, n)
	if fe.inUnsafe {
		return stmt
	}
	return fe.sink.inline(target.Span, "pointer-arith", stmt, "arithmetic on raw pointer")
}

func (fe *funcEmitter) binary(e *hir.Expr, d hir.BinaryData, want string) (string, string) {
	switch {
	case d.Op.IsLogical():
		op := "&&"
		if d.Op == hir.BinLogOr {
			op = "||"
		}
		return "(" + fe.expr(d.Left, "bool") + " " + op + " " + fe.expr(d.Right, "bool") + ")", "bool"
	case d.Op.IsComparison():
		return fe.comparison(e, d)
	case d.Left.Type.IsPointer() || d.Right.Type.IsPointer():
		return fe.pointerArith(e, d)
	}
	lt := fe.natural(d.Left)
	rt := fe.natural(d.Right)
	var ct string
	switch {
	case isLiteral(d.Left) && !isLiteral(d.Right):
		ct = rt
	case isLiteral(d.Right) && !isLiteral(d.Left):
		ct = lt
	default:
		ct = common(lt, rt)
	}
	if ct == "bool" || fe.g.isEnumType(ct) || !isNumeric(ct) {
		ct = "i32"
	}
	if r := numericRank[ct]; r < numericRank["i32"] {
		ct = "i32"
	}
	if isLiteral(d.Left) && isLiteral(d.Right) && isNumeric(want) {
		ct = want
	}
	op := d.Op.String()
	if d.Op == hir.BinShl || d.Op == hir.BinShr {
		return "(" + fe.expr(d.Left, ct) + " " + op + " " + fe.expr(d.Right, "u32") + ")", ct
	}
	return "(" + fe.expr(d.Left, ct) + " " + op + " " + fe.expr(d.Right, ct) + ")", ct
}

func isLiteral(e *hir.Expr) bool {
	e = e.StripCasts()
	if e.Kind == hir.ExprLiteral {
		return true
	}
	u, ok := e.Data.(hir.UnaryData)
	return ok && u.Op == hir.UnNeg && u.Operand.Kind == hir.ExprLiteral
}

// natural is the Rust type e renders to without conversion.
func (fe *funcEmitter) natural(e *hir.Expr) string {
	if lit, ok := e.Data.(hir.LiteralData); ok {
		switch lit.Kind {
		case hir.LitFloat:
			return "f64"
		case hir.LitChar:
			return "u8"
		}
		return "i32"
	}
	saved := *fe.sink
	out := fe.out
	fe.out = &strings.Builder{}
	_, ty := fe.render(e, "")
	*fe.sink = saved
	fe.out = out
	return ty
}

func (fe *funcEmitter) comparison(e *hir.Expr, d hir.BinaryData) (string, string) {
	op := d.Op.String()
	if d.Op == hir.BinEq || d.Op == hir.BinNe {
		switch {
		case d.Right.StripCasts().IsNull() || (d.Left.Type.IsPointer() && isZero(d.Right)):
			return fe.nullTest(d.Left, d.Op == hir.BinEq), "bool"
		case d.Left.StripCasts().IsNull() || (d.Right.Type.IsPointer() && isZero(d.Left)):
			return fe.nullTest(d.Right, d.Op == hir.BinEq), "bool"
		}
	}
	if d.Left.Type.IsPointer() && d.Right.Type.IsPointer() {
		l, lt := fe.render(d.Left, "")
		r, rt := fe.render(d.Right, "")
		switch {
		case isRaw(lt) && isRaw(rt):
			return "(" + l + " " + op + " " + r + ")", "bool"
		case (isRefTy(lt) || isBox(lt)) && (isRefTy(rt) || isBox(rt)) && (op == "==" || op == "!="):
			eq := "std::ptr::eq(&*" + l + ", &*" + r + ")"
			if op == "!=" {
				eq = "!" + eq
			}
			return eq, "bool"
		}
		return fe.sink.inline(e.Span, "pointer-compare", "("+l+" as *const _ "+op+" "+r+" as *const _)", "pointer comparison"), "bool"
	}
	lt := fe.natural(d.Left)
	rt := fe.natural(d.Right)
	var ct string
	switch {
	case fe.g.isEnumType(lt) && fe.g.isEnumType(rt) && lt == rt:
		ct = lt
	case fe.g.isEnumType(lt) && !isLiteral(d.Right) || fe.g.isEnumType(rt) && !isLiteral(d.Left):
		ct = "i32"
	case fe.g.isEnumType(lt):
		ct = lt
	case fe.g.isEnumType(rt):
		ct = rt
	case isLiteral(d.Left) && !isLiteral(d.Right):
		ct = rt
	case isLiteral(d.Right) && !isLiteral(d.Left):
		ct = lt
	default:
		ct = common(lt, rt)
	}
	if ct == "bool" && !(lt == "bool" && rt == "bool") {
		ct = "i32"
	}
	if ct == "" {
		ct = "i32"
	}
	return "(" + fe.expr(d.Left, ct) + " " + op + " " + fe.expr(d.Right, ct) + ")", "bool"
}

func isZero(e *hir.Expr) bool {
	v, ok := e.StripCasts().IntValue()
	return ok && v == 0
}

// nullTest renders p == NULL (isNull) or p != NULL.
func (fe *funcEmitter) nullTest(p *hir.Expr, isNull bool) string {
	code, ty := fe.render(p, "")
	switch {
	case isOption(ty):
		if isNull {
			return code + ".is_none()"
		}
		return code + ".is_some()"
	case isRaw(ty):
		if isNull {
			return code + ".is_null()"
		}
		return "!" + code + ".is_null()"
	}
	return strconv.FormatBool(!isNull)
}

func (fe *funcEmitter) pointerArith(e *hir.Expr, d hir.BinaryData) (string, string) {
	if d.Left.Type.IsPointer() && d.Right.Type.IsPointer() && d.Op == hir.BinSub {
		l := fe.expr(d.Left, "")
		r := fe.expr(d.Right, "")
		return fe.sink.inline(e.Span, "pointer-diff", "("+l+".offset_from("+r+") as i64)", "difference of pointers"), "i64"
	}
	ptr, n := d.Left, d.Right
	if !ptr.Type.IsPointer() {
		ptr, n = n, ptr
	}
	code, ty := fe.render(ptr, "")
	if d.Op == hir.BinAdd && (isSliceRef(ty) || isVec(ty) || isArrayTy(ty)) {
		return "&" + code + "[" + fe.expr(n, "usize") + "..]", "&[" + element(ty) + "]"
	}
	if d.Op == hir.BinAdd && ty == "&str" {
		return "&" + code + "[" + fe.expr(n, "usize") + "..]", "&str"
	}
	dir := ""
	if d.Op == hir.BinSub {
		dir = "-"
	}
	off := fmt.Sprintf("%s.offset(%s(%s as isize))", code, dir, fe.expr(n, ""))
	if !isRaw(ty) {
		return fe.sink.inline(e.Span, "pointer-arith", off, "arithmetic on %s", ty), ty
	}
	return fe.unsafeAccess(e, "pointer-arith", off, "arithmetic on raw pointer"), ty
}

func (fe *funcEmitter) field(e *hir.Expr, d hir.FieldData) (string, string) {
	fr := fe.g.fieldOf(d)
	ty := fe.g.rust(e.Type)
	name := ident(d.Field)
	if fr != nil {
		ty, name = stripLifetimes(fr.typ), fr.name
	}
	lhs := fe.lhs
	code, oty := fe.render(d.Object, "")
	fe.lhs = lhs
	if !d.Arrow {
		return code + "." + name, ty
	}
	switch {
	case isOption(oty):
		if fe.lhs {
			return code + ".as_deref_mut().unwrap()." + name, ty
		}
		return code + ".as_deref().unwrap()." + name, ty
	case isSliceRef(oty), isVec(oty), isArrayTy(oty):
		return code + "[0]." + name, ty
	case isRaw(oty):
		return fe.unsafeAccess(e, "raw-field", "(*"+code+")."+name, "field access through raw pointer"), ty
	}
	return code + "." + name, ty
}

// fieldOf returns the representation of the member d selects.
func (g *Generator) fieldOf(d hir.FieldData) *fieldRepr {
	t := d.Object.Type
	if d.Arrow {
		t = g.mod.Resolve(t)
		if t == nil || !t.IsPointer() {
			return nil
		}
		t = t.Elem
	}
	sd := g.mod.StructOf(t)
	if sd == nil {
		return nil
	}
	sr := g.structs[sd.Name]
	if sr == nil {
		return nil
	}
	return sr.field(d.Field)
}

func (fe *funcEmitter) index(e *hir.Expr, d hir.IndexData) (string, string) {
	lhs := fe.lhs
	code, oty := fe.render(d.Object, "")
	fe.lhs = lhs
	fe.lhs = false
	idx := fe.expr(d.Index, "usize")
	fe.lhs = lhs
	switch {
	case oty == "&str", oty == "String":
		return code + ".as_bytes()[" + idx + "]", "u8"
	case oty == "Vec<String>":
		return code + "[" + idx + "]", "String"
	case isOption(oty):
		return code + ".as_deref().unwrap()[" + idx + "]", element(pointee(oty))
	case isSliceRef(oty), isVec(oty), isArrayTy(oty), isRefTy(oty) && isArrayTy(deref(oty)):
		return code + "[" + idx + "]", element(oty)
	case isBox(oty) && isZero(d.Index):
		return "(*" + code + ")", inner(oty)
	case isRaw(oty):
		return fe.unsafeAccess(e, "raw-index", "*"+code+".offset("+idx+" as isize)", "indexing through raw pointer"), deref(oty)
	}
	return code + "[" + idx + "]", element(oty)
}

func (fe *funcEmitter) cast(e *hir.Expr, d hir.CastData, want string) (string, string) {
	if _, ok := d.Value.StripCasts().Data.(hir.AllocData); ok {
		return fe.render(d.Value.StripCasts(), want)
	}
	target := fe.g.mod.Resolve(d.Target)
	switch {
	case target.IsVoid():
		return fe.expr(d.Value, ""), "()"
	case target.IsPointer():
		code, ty := fe.render(d.Value, want)
		if d.Value.StripCasts().IsNull() {
			return fe.null(e, want)
		}
		return code, ty
	}
	rt := fe.g.rust(d.Target)
	if lit, ok := d.Value.Data.(hir.LiteralData); ok && lit.Kind != hir.LitString && lit.Kind != hir.LitNull {
		return fe.literal(d.Value, lit, rt)
	}
	code, ty := fe.render(d.Value, rt)
	if ty == rt {
		return code, rt
	}
	switch {
	case rt == "bool":
		return fe.truth(code, ty), "bool"
	case isRaw(ty) && isNumeric(rt):
		return fe.sink.inline(e.Span, "pointer-to-int", "("+code+" as usize as "+rt+")", "pointer cast to integer"), rt
	case fe.g.isEnumType(rt):
		return fe.coerce(e, code, ty, rt), rt
	case isNumeric(rt) && (isNumeric(ty) || ty == "bool" || fe.g.isEnumType(ty)):
		return "(" + code + " as " + rt + ")", rt
	}
	return code, ty
}

func (fe *funcEmitter) sizeof(d hir.SizeofData) string {
	if d.Of != nil {
		return "std::mem::size_of::<" + fe.g.rust(d.Of) + ">()"
	}
	code, ty := fe.render(d.Value, "")
	if isArrayTy(ty) || isNumeric(ty) {
		return "std::mem::size_of_val(&" + code + ")"
	}
	if t := fe.g.rust(d.Value.Type); t != "" {
		return "std::mem::size_of::<" + t + ">()"
	}
	return "std::mem::size_of_val(&" + code + ")"
}

func (fe *funcEmitter) ternary(d hir.TernaryData, want string) (string, string) {
	ty := want
	if ty == "" {
		ty = common(fe.natural(d.Then), fe.natural(d.Else))
	}
	return "(if " + fe.cond(d.Cond) + " { " + fe.expr(d.Then, ty) + " } else { " + fe.expr(d.Else, ty) + " })", ty
}

func (fe *funcEmitter) initList(e *hir.Expr, d hir.InitListData, want string) (string, string) {
	t := fe.g.mod.Resolve(e.Type)
	switch {
	case t != nil && t.Kind == hir.TStruct:
		return fe.structLiteral(e, t, d)
	case t.IsArray():
		return fe.arrayLiteral(e, t, d, want)
	}
	if len(d.Items) > 0 {
		return fe.render(d.Items[0].Value, want)
	}
	z, _ := fe.g.zero(t)
	return z, fe.g.rust(t)
}

func (fe *funcEmitter) structLiteral(e *hir.Expr, t *hir.Type, d hir.InitListData) (string, string) {
	sr := fe.g.structs[t.Name]
	if sr == nil {
		return fe.sink.inline(e.Span, "init-list", "std::mem::zeroed()", "initialiser for unknown struct %s", t.Name), camel(t.Name)
	}
	values := make(map[string]*hir.Expr, len(d.Items))
	next := 0
	for _, it := range d.Items {
		name := it.Field
		if name == "" {
			if next >= len(sr.fields) {
				continue
			}
			name = sr.fields[next].cname
		}
		for i, f := range sr.fields {
			if f.cname == name {
				next = i + 1
			}
		}
		values[name] = it.Value
	}
	parts := make([]string, 0, len(sr.fields))
	for _, f := range sr.fields {
		var v string
		if x, ok := values[f.cname]; ok {
			v = fe.expr(x, stripLifetimes(f.typ))
		} else {
			v = fe.fieldZero(e, f)
		}
		parts = append(parts, f.name+": "+v)
	}
	return sr.name + " { " + strings.Join(parts, ", ") + " }", sr.name
}

func (fe *funcEmitter) fieldZero(e *hir.Expr, f fieldRepr) string {
	switch f.kind {
	case fieldTree, fieldArena, fieldRef, fieldBox, fieldFn:
		return "None"
	case fieldVec:
		return "Vec::new()"
	}
	if z, ok := fe.g.zero(f.ctype); ok {
		return z
	}
	return fe.sink.inline(e.Span, "zeroed-field", "std::mem::zeroed()", "field %s has no zero value", f.cname)
}

func (fe *funcEmitter) arrayLiteral(e *hir.Expr, t *hir.Type, d hir.InitListData, want string) (string, string) {
	elem := stripLifetimes(fe.g.rust(t.Elem))
	if stringTable(t) {
		elem = "&str"
	}
	n := t.Len
	if n < 0 {
		n = len(d.Items)
	}
	items := make([]*hir.Expr, n)
	next := 0
	for _, it := range d.Items {
		i := next
		if it.Index != nil {
			if v, ok := it.Index.IntValue(); ok {
				i = int(v)
			}
		}
		if i >= 0 && i < n {
			items[i] = it.Value
		}
		next = i + 1
	}
	parts := make([]string, n)
	zero, ok := fe.g.zero(t.Elem)
	if !ok {
		zero = "Default::default()"
	}
	for i, it := range items {
		if it == nil {
			parts[i] = zero
			continue
		}
		parts[i] = fe.expr(it, elem)
	}
	if isVec(want) {
		return "vec![" + strings.Join(parts, ", ") + "]", "Vec<" + elem + ">"
	}
	return "[" + strings.Join(parts, ", ") + "]", fmt.Sprintf("[%s; %d]", elem, n)
}

func (fe *funcEmitter) alloc(e *hir.Expr, d hir.AllocData, want string) (string, string) {
	elemTy := want
	switch {
	case isOption(want):
		elemTy = pointee(want)
	case isBox(want), isVec(want):
		elemTy = inner(want)
	}
	zero := "Default::default()"
	if d.Elem != nil {
		if z, ok := fe.g.zero(d.Elem); ok {
			zero = z
		}
	} else if isNumeric(elemTy) {
		zero = "0"
	}
	switch {
	case isBox(want):
		return "Box::new(" + zero + ")", want
	case isOption(want) && isBox(inner(want)):
		return "Some(Box::new(" + zero + "))", want
	case isVec(want) && d.Kind != hir.AllocRealloc:
		count := d.Count
		if count == nil {
			count = d.Size
		}
		return "vec![" + zero + "; " + fe.expr(count, "usize") + "]", want
	}
	args := make([]string, 0, 2)
	switch d.Kind {
	case hir.AllocCalloc:
		args = append(args, fe.expr(d.Count, "usize"), fe.expr(d.Size, "usize"))
	case hir.AllocRealloc:
		args = append(args, fe.expr(d.Ptr, "*mut std::ffi::c_void"), fe.expr(d.Size, "usize"))
	default:
		args = append(args, fe.expr(d.Size, "usize"))
	}
	ty := want
	if !isRaw(ty) {
		ty = "*mut std::ffi::c_void"
	}
	call := fmt.Sprintf("libc::%s(%s) as %s", d.Callee, strings.Join(args, ", "), ty)
	if d.Callee == "" {
		call = fmt.Sprintf("libc::%s(%s) as %s", d.Kind, strings.Join(args, ", "), ty)
	}
	return fe.unsafeAccess(e, "raw-alloc", call, "allocation without a proven single owner"), ty
}

// constExpr renders a global initialiser.
func (fe *funcEmitter) constExpr(e *hir.Expr, t *hir.Type) string {
	return fe.expr(e, fe.g.rust(t))
}

// strTable renders a string or an array of strings.
func (fe *funcEmitter) strTable(e *hir.Expr, n int, array bool) string {
	str := func(x *hir.Expr) string {
		if x != nil {
			if lit, ok := x.StripCasts().Data.(hir.LiteralData); ok && lit.Kind == hir.LitString {
				return rustString(lit.Text)
			}
		}
		return `""`
	}
	if !array {
		return str(e)
	}
	parts := make([]string, n)
	for i := range parts {
		parts[i] = `""`
	}
	if d, ok := e.Data.(hir.InitListData); ok {
		for i, it := range d.Items {
			if i < n {
				parts[i] = str(it.Value)
			}
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
