package codegen

import (
	"fmt"
	"strings"

	"decant/internal/hir"
	"decant/internal/patterns"
)

// mathMethods are libm routines with a method of the same meaning on f64.
var mathMethods = map[string]string{
	"sqrt": "sqrt", "sin": "sin", "cos": "cos", "tan": "tan", "exp": "exp",
	"log": "ln", "log10": "log10", "log2": "log2", "floor": "floor", "ceil": "ceil",
	"round": "round", "fabs": "abs", "trunc": "trunc", "asin": "asin", "acos": "acos",
	"atan": "atan", "sinh": "sinh", "cosh": "cosh", "tanh": "tanh", "cbrt": "cbrt",
}

// ctypeMethods map <ctype.h> predicates onto u8 methods.
var ctypeMethods = map[string]string{
	"isdigit": "is_ascii_digit", "isalpha": "is_ascii_alphabetic", "isalnum": "is_ascii_alphanumeric",
	"isspace": "is_ascii_whitespace", "isupper": "is_ascii_uppercase", "islower": "is_ascii_lowercase",
	"ispunct": "is_ascii_punctuation", "isxdigit": "is_ascii_hexdigit", "iscntrl": "is_ascii_control",
	"isgraph": "is_ascii_graphic",
}

// lockSetup are lock lifecycle calls subsumed by the Rust lock types.
var lockSetup = map[string]bool{
	"pthread_mutex_init": true, "pthread_mutex_destroy": true,
	"pthread_rwlock_init": true, "pthread_rwlock_destroy": true,
	"pthread_spin_init": true, "pthread_spin_destroy": true,
	"mtx_init": true, "mtx_destroy": true,
}

func (fe *funcEmitter) call(e *hir.Expr, d hir.CallData, want string) (string, string) {
	if d.Target != nil {
		return fe.indirectCall(e, d)
	}
	if ci := fe.g.callees[d.Callee]; ci != nil {
		if len(ci.outs) > 0 {
			return fe.outCallExpr(e, d, ci)
		}
		ret := stripLifetimes(fe.g.returnType(ci, false))
		if ret == "" {
			ret = "()"
		}
		return ident(d.Callee) + "(" + strings.Join(fe.args(ci, d.Args), ", ") + ")", ret
	}
	if code, ty, ok := fe.libCall(e, d); ok {
		return code, ty
	}
	return fe.rawCall(e, d)
}

// args renders call arguments for the signature of ci.
func (fe *funcEmitter) args(ci *calleeInfo, args []*hir.Expr) []string {
	out := make([]string, 0, len(args))
	for i, a := range args {
		if ci.dropped[i] || i >= len(ci.fn.Params) {
			continue
		}
		out = append(out, fe.arg(ci, i, a, args))
	}
	return out
}

func (fe *funcEmitter) arg(ci *calleeInfo, i int, a *hir.Expr, all []*hir.Expr) string {
	if en, ok := ci.enums[i]; ok {
		if name, ok := patterns.FuncArg(a); ok {
			for k, f := range en.funcs {
				if f == name {
					return en.name + "::" + en.variants[k]
				}
			}
		}
		return fe.expr(a, "")
	}
	want := stripLifetimes(fe.g.paramType(ci, i, false))
	if tv, ok := ci.typeVars[i]; ok {
		if ci.generic(i) == nil {
			if name, ok := patterns.FuncArg(a); ok {
				return ident(name)
			}
			return fe.expr(a, "")
		}
		return fe.genericArg(a.StripCasts(), isMutRef(want), tv)
	}
	if sp := ci.hints.Slice(ci.fn.Params[i].Local); sp != nil && sp.LenIndex < len(all) {
		return fe.sliceArg(a, all[sp.LenIndex], isMutRef(want))
	}
	return fe.expr(a, want)
}

// genericArg passes a value to a `&T` parameter.
func (fe *funcEmitter) genericArg(a *hir.Expr, mut bool, tv string) string {
	if u, ok := a.Data.(hir.UnaryData); ok && u.Op == hir.UnAddr {
		saved := fe.lhs
		fe.lhs = mut
		code, _ := fe.render(u.Operand, "")
		fe.lhs = saved
		if mut {
			return "&mut " + code
		}
		return "&" + code
	}
	code, ty := fe.render(a, "")
	switch {
	case isBox(ty):
		if mut {
			return "&mut *" + code
		}
		return "&*" + code
	case isOption(ty):
		if mut {
			return code + ".as_deref_mut().unwrap()"
		}
		return code + ".as_deref().unwrap()"
	case isSliceRef(ty) || isVec(ty) || isArrayTy(ty):
		if mut {
			return "&mut " + code + "[0]"
		}
		return "&" + code + "[0]"
	}
	return code
}

// sliceArg passes a pointer and its length as one slice.
func (fe *funcEmitter) sliceArg(ptr, n *hir.Expr, mut bool) string {
	code, ty := fe.render(ptr.StripCasts(), "")
	if l, ok := n.StripCasts().LocalRef(); ok {
		if p, ok := fe.sliceLen(l); ok && localOf(ptr.StripCasts()) == p {
			return code
		}
	}
	if isSliceRef(ty) || isVec(ty) || isArrayTy(ty) {
		if arrayLenMatches(ty, n) {
			if mut {
				return "&mut " + code
			}
			return "&" + code
		}
		bound := fe.expr(n, "usize")
		if mut {
			return "&mut " + code + "[.." + bound + "]"
		}
		return "&" + code + "[.." + bound + "]"
	}
	if isRaw(ty) {
		from := "std::slice::from_raw_parts"
		if mut {
			from = "std::slice::from_raw_parts_mut"
		}
		return fe.sink.inline(ptr.Span, "raw-slice", fmt.Sprintf("%s(%s, %s)", from, code, fe.expr(n, "usize")), "slice built from raw pointer")
	}
	if isBox(ty) {
		if mut {
			return "std::slice::from_mut(&mut *" + code + ")"
		}
		return "std::slice::from_ref(&*" + code + ")"
	}
	return code
}

func arrayLenMatches(ty string, n *hir.Expr) bool {
	v, ok := n.StripCasts().IntValue()
	if !ok || !isArrayTy(ty) {
		return false
	}
	return strings.HasSuffix(ty, fmt.Sprintf("; %d]", v))
}

// outTargets returns the caller-side places receiving the outputs of ci.
func (fe *funcEmitter) outTargets(ci *calleeInfo, args []*hir.Expr) []*hir.Expr {
	out := make([]*hir.Expr, 0, len(ci.outs))
	for _, op := range ci.outs {
		if op.Index >= len(args) {
			continue
		}
		a := args[op.Index].StripCasts()
		if u, ok := a.Data.(hir.UnaryData); ok && u.Op == hir.UnAddr {
			out = append(out, u.Operand)
			continue
		}
		out = append(out, &hir.Expr{ID: a.ID, Kind: hir.ExprUnary, Type: op.Elem, Span: a.Span, Data: hir.UnaryData{Op: hir.UnDeref, Operand: a}})
	}
	return out
}

// outAssign renders `x = val;` or `(x, y) = val;` for the outputs.
func (fe *funcEmitter) outAssign(targets []*hir.Expr, val string) string {
	if len(targets) == 1 {
		return fe.storeWith(targets[0], "=", func(string) string { return val })
	}
	parts := make([]string, len(targets))
	for i, t := range targets {
		parts[i] = fe.storeWith(t, "=", func(string) string { return fmt.Sprintf("%s.%d", val, i) })
	}
	return strings.Join(parts, " ")
}

func (fe *funcEmitter) outCallExpr(e *hir.Expr, d hir.CallData, ci *calleeInfo) (string, string) {
	call := ident(d.Callee) + "(" + strings.Join(fe.args(ci, d.Args), ", ") + ")"
	targets := fe.outTargets(ci, d.Args)
	if ci.fallible {
		return "match " + call + " { Ok(val) => { " + fe.outAssign(targets, "val") + " 0 } Err(code) => code }", "i32"
	}
	return "{ let val = " + call + "; " + fe.outAssign(targets, "val") + " }", "()"
}

// outCallAssign renders `r = f(&x)` for an out-parameter callee.
func (fe *funcEmitter) outCallAssign(s *hir.Stmt, target, value *hir.Expr, d hir.CallData) bool {
	if d.Target != nil {
		return false
	}
	ci := fe.g.callees[d.Callee]
	if ci == nil || len(ci.outs) == 0 || !ci.fallible {
		return false
	}
	code, _ := fe.outCallExpr(value, d, ci)
	fe.raw(fe.storeWith(target, "=", func(string) string { return code }))
	return true
}

// callStmt renders calls with a statement form. It reports false when
// the call is rendered as a plain expression.
func (fe *funcEmitter) callStmt(s *hir.Stmt, e *hir.Expr, d hir.CallData) bool {
	if d.Target != nil {
		return false
	}
	if ci := fe.g.callees[d.Callee]; ci != nil && len(ci.outs) > 0 {
		call := ident(d.Callee) + "(" + strings.Join(fe.args(ci, d.Args), ", ") + ")"
		targets := fe.outTargets(ci, d.Args)
		if ci.fallible {
			fe.line("if let Ok(val) = %s {", call)
		} else {
			fe.line("{")
			fe.depth++
			fe.line("let val = %s;", call)
			fe.depth--
		}
		fe.depth++
		fe.raw(fe.outAssign(targets, "val"))
		fe.depth--
		fe.line("}")
		return true
	}
	if fe.printStmt(s, e, d) {
		return true
	}
	switch {
	case lockSetup[d.Callee]:
		if len(d.Args) > 0 {
			fe.line("// %s: handled by the lock type", hir.ExprString(d.Args[0]))
		}
		return true
	case d.Callee == "strcpy" || d.Callee == "strcat":
		if len(d.Args) == 2 && fe.strbufs[localOf(d.Args[0])] {
			dst := fe.localName(localOf(d.Args[0]))
			src := fe.expr(d.Args[1], "&str")
			if d.Callee == "strcpy" {
				fe.line("%s = %s.to_string();", dst, src)
			} else {
				fe.line("%s.push_str(%s);", dst, src)
			}
			return true
		}
	case d.Callee == "memset":
		if len(d.Args) == 3 {
			code, ty := fe.render(d.Args[0].StripCasts(), "")
			if v, ok := d.Args[1].IntValue(); ok && (isArrayTy(ty) || isVec(ty) || isSliceRef(ty)) && coversAll(d.Args[0], d.Args[2]) {
				zero := fmt.Sprint(v)
				if z, ok := fe.g.zero(fe.elemType(d.Args[0])); ok && v == 0 {
					zero = z
				}
				fe.line("%s.fill(%s);", code, zero)
				return true
			}
		}
	case d.Callee == "memcpy" || d.Callee == "memmove":
		if len(d.Args) == 3 && fe.genericCopy(d.Args[0], d.Args[1]) {
			return true
		}
	}
	return false
}

// coversAll matches a size argument of sizeof the object itself.
func coversAll(obj, size *hir.Expr) bool {
	sz, ok := size.StripCasts().Data.(hir.SizeofData)
	return ok && sz.Value != nil && hir.ExprString(sz.Value.StripCasts()) == hir.ExprString(obj.StripCasts())
}

func (fe *funcEmitter) elemType(e *hir.Expr) *hir.Type {
	t := fe.g.mod.Resolve(e.StripCasts().Type)
	if t != nil && (t.IsArray() || t.IsPointer()) {
		return t.Elem
	}
	return t
}

// genericCopy renders memcpy between generic element references.
func (fe *funcEmitter) genericCopy(dst, src *hir.Expr) bool {
	dl, ok1 := rootLocal(dst.StripCasts())
	sl, ok2 := rootLocal(src.StripCasts())
	if !ok1 || !ok2 {
		return false
	}
	gd, gs := fe.genericOf(dl), fe.genericOf(sl)
	if gd == nil && gs == nil {
		return false
	}
	d := fe.expr(dst.StripCasts(), "")
	s := fe.expr(src.StripCasts(), "")
	value := "(*" + s + ")"
	if isRefTy(fe.localType(sl)) || gs != nil {
		value = s
	}
	if bound := fe.typeBounds(gs, gd); strings.Contains(bound, "Copy") {
		fe.line("*%s = *%s;", d, value)
	} else {
		fe.line("*%s = %s.clone();", d, value)
	}
	return true
}

func (fe *funcEmitter) genericOf(l hir.LocalID) *patterns.GenericParam {
	if v, ok := fe.views[l]; ok {
		l = v
	}
	return fe.hints.Generic(l)
}

func (fe *funcEmitter) typeBounds(gps ...*patterns.GenericParam) string {
	var out []string
	for _, gp := range gps {
		if gp == nil {
			continue
		}
		if tv, ok := fe.info.typeVars[gp.Index]; ok {
			out = append(out, fe.info.bounds[tv]...)
		}
	}
	return strings.Join(out, " + ")
}

func (fe *funcEmitter) indirectCall(e *hir.Expr, d hir.CallData) (string, string) {
	t := fe.g.mod.Resolve(d.Target.Type)
	if t != nil && t.IsPointer() && t.Elem != nil && t.Elem.Kind == hir.TFuncPtr {
		t = t.Elem
	}
	var args []string
	ret := "()"
	if t != nil && t.Kind == hir.TFuncPtr {
		if r := fe.g.rust(t.Result); r != "" {
			ret = r
		}
		for i, a := range d.Args {
			want := ""
			if i < len(t.Params) {
				want = fe.g.rust(t.Params[i])
			}
			args = append(args, fe.expr(a, want))
		}
	} else {
		for _, a := range d.Args {
			args = append(args, fe.expr(a, ""))
		}
	}
	joined := strings.Join(args, ", ")
	target := d.Target.StripCasts()
	if u, ok := target.Data.(hir.UnaryData); ok && u.Op == hir.UnDeref {
		target = u.Operand.StripCasts()
	}
	if l, ok := target.LocalRef(); ok && fe.info != nil {
		if i := fe.fn.ParamIndex(l); i >= 0 {
			if _, ok := fe.info.enums[i]; ok {
				return fe.localName(l) + ".call(" + joined + ")", ret
			}
			if _, ok := fe.info.typeVars[i]; ok {
				return fe.localName(l) + "(" + joined + ")", ret
			}
		}
	}
	code, ty := fe.render(target, "")
	switch {
	case isOption(ty):
		return "(" + code + ".unwrap())(" + joined + ")", ret
	case strings.HasPrefix(ty, "fn("):
		return "(" + code + ")(" + joined + ")", ret
	}
	return fe.sink.inline(e.Span, "indirect-call", "(*"+code+")("+joined+")", "call through untyped function pointer"), ret
}

// libCall renders library routines with a safe Rust equivalent.
func (fe *funcEmitter) libCall(e *hir.Expr, d hir.CallData) (string, string, bool) {
	arg := func(i int, want string) string {
		if i >= len(d.Args) {
			return "0"
		}
		return fe.expr(d.Args[i], want)
	}
	name := d.Callee
	if m, ok := mathMethods[name]; ok && len(d.Args) == 1 {
		return wrap(arg(0, "f64")) + "." + m + "()", "f64", true
	}
	if m, ok := ctypeMethods[name]; ok && len(d.Args) == 1 {
		return "(" + wrap(arg(0, "u8")) + "." + m + "())", "bool", true
	}
	switch name {
	case "exit", "_exit":
		return "std::process::exit(" + arg(0, "i32") + ")", "()", true
	case "abort":
		return "std::process::abort()", "()", true
	case "abs", "labs", "llabs":
		_, ty := fe.render(d.Args[0], "")
		if !isNumeric(ty) {
			ty = "i32"
		}
		return wrap(arg(0, ty)) + ".abs()", ty, true
	case "pow":
		return wrap(arg(0, "f64")) + ".powf(" + arg(1, "f64") + ")", "f64", true
	case "fmax", "fmin":
		return wrap(arg(0, "f64")) + "." + name[1:] + "(" + arg(1, "f64") + ")", "f64", true
	case "fmod":
		return "(" + arg(0, "f64") + " % " + arg(1, "f64") + ")", "f64", true
	case "toupper", "tolower":
		m := "to_ascii_uppercase"
		if name == "tolower" {
			m = "to_ascii_lowercase"
		}
		return "(" + wrap(arg(0, "u8")) + "." + m + "() as i32)", "i32", true
	case "strlen":
		return fe.strlen(d.Args[0]), "usize", true
	case "strcmp":
		return "(" + wrap(arg(0, "&str")) + ".cmp(" + arg(1, "&str") + ") as i32)", "i32", true
	case "strncmp":
		n := arg(2, "usize")
		return fmt.Sprintf("(%s.bytes().take(%s).cmp(%s.bytes().take(%s)) as i32)", wrap(arg(0, "&str")), n, wrap(arg(1, "&str")), n), "i32", true
	case "strdup":
		return arg(0, "&str") + ".to_string()", "String", true
	case "atoi", "atol", "atoll", "atof":
		ty := map[string]string{"atoi": "i32", "atol": "i64", "atoll": "i64", "atof": "f64"}[name]
		zero := "0"
		if ty == "f64" {
			zero = "0.0"
		}
		return fmt.Sprintf("%s.trim().parse::<%s>().unwrap_or(%s)", wrap(arg(0, "&str")), ty, zero), ty, true
	case "getchar":
		return "{ use std::io::Read; let mut b = [0u8; 1]; if std::io::stdin().read(&mut b).unwrap_or(0) == 1 { b[0] as i32 } else { -1 } }", "i32", true
	case "sleep":
		return "{ std::thread::sleep(std::time::Duration::from_secs(" + arg(0, "u64") + ")); 0 }", "i32", true
	case "usleep":
		return "{ std::thread::sleep(std::time::Duration::from_micros(" + arg(0, "u64") + ")); 0 }", "i32", true
	case "getpid":
		return "(std::process::id() as i32)", "i32", true
	case "memcmp":
		if len(d.Args) == 3 {
			l, lok := rootLocal(d.Args[0].StripCasts())
			r, rok := rootLocal(d.Args[1].StripCasts())
			if lok && rok && (fe.genericOf(l) != nil || fe.genericOf(r) != nil) {
				a := fe.expr(d.Args[0].StripCasts(), "")
				b := fe.expr(d.Args[1].StripCasts(), "")
				return "(if " + a + " == " + b + " { 0 } else { 1 })", "i32", true
			}
		}
	}
	return "", "", false
}

func (fe *funcEmitter) strlen(s *hir.Expr) string {
	code, ty := fe.render(s, "")
	switch {
	case ty == "&str" || ty == "String":
		return code + ".len()"
	case isArrayTy(ty) || isVec(ty) || isSliceRef(ty):
		return code + ".iter().position(|&c| c == 0).unwrap_or(" + code + ".len())"
	}
	return fe.sink.inline(s.Span, "raw-strlen", "libc::strlen("+code+" as *const std::ffi::c_char)", "length of a raw C string")
}

// rawCall renders a call without a safe mapping through libc or the
// module's extern block.
func (fe *funcEmitter) rawCall(e *hir.Expr, d hir.CallData) (string, string) {
	var sig *hir.Type
	path := "libc::" + d.Callee
	if p := fe.g.mod.Proto(d.Callee); p != nil {
		sig = p.Sig
		path = ident(d.Callee)
	}
	args := make([]string, len(d.Args))
	fe.withUnsafe(func() {
		for i, a := range d.Args {
			if lit, ok := a.StripCasts().Data.(hir.LiteralData); ok && lit.Kind == hir.LitString {
				args[i] = "c" + rustString(lit.Text) + ".as_ptr()"
				continue
			}
			want := ""
			if sig != nil && i < len(sig.Params) {
				want = fe.g.rust(sig.Params[i])
			} else if a.Type.IsPointer() {
				want = fe.g.rust(a.Type)
			}
			args[i] = fe.expr(a, want)
		}
	})
	ret := fe.g.rust(e.Type)
	if sig != nil {
		ret = fe.g.rust(sig.Result)
	}
	if ret == "" {
		ret = "i32"
	}
	call := path + "(" + strings.Join(args, ", ") + ")"
	if fe.inUnsafe {
		return call, ret
	}
	reason := "call to C library routine " + d.Callee
	if sig != nil {
		reason = "call to external function " + d.Callee
	}
	return fe.sink.inline(e.Span, "extern-call", call, "%s", reason), ret
}
