package bridge

import (
	"strings"

	"github.com/alecthomas/participle/v2/lexer"

	"decant/internal/cparse"
	"decant/internal/diag"
	"decant/internal/hir"
	"decant/internal/source"
	"decant/internal/stdlib"
)

var (
	sizeT     = hir.Named(hir.TTypedef, "size_t")
	voidPtr   = hir.PointerTo(hir.Void)
	strType   = hir.PointerTo(hir.Char.WithConst())
	filePtr   = hir.PointerTo(hir.Named(hir.TTypedef, "FILE"))
	rankOrder = []hir.TypeKind{hir.TLongLong, hir.TLong, hir.TInt}
)

// builtinConsts are header macros lowered to integer literals.
var builtinConsts = map[string]int64{
	"EOF":          -1,
	"EXIT_SUCCESS": 0,
	"EXIT_FAILURE": 1,
	"RAND_MAX":     2147483647,
}

// externVars are library globals referenced by name.
var externVars = map[string]*hir.Type{
	"stdin":  filePtr,
	"stdout": filePtr,
	"stderr": filePtr,
	"errno":  hir.Int,
}

var precedence = map[string]int{
	"*": 10, "/": 10, "%": 10,
	"+": 9, "-": 9,
	"<<": 8, ">>": 8,
	"<": 7, "<=": 7, ">": 7, ">=": 7,
	"==": 6, "!=": 6,
	"&": 5, "^": 4, "|": 3, "&&": 2, "||": 1,
}

var binaryOps = map[string]hir.BinaryOp{
	"+": hir.BinAdd, "-": hir.BinSub, "*": hir.BinMul, "/": hir.BinDiv, "%": hir.BinMod,
	"<<": hir.BinShl, ">>": hir.BinShr,
	"<": hir.BinLt, "<=": hir.BinLe, ">": hir.BinGt, ">=": hir.BinGe, "==": hir.BinEq, "!=": hir.BinNe,
	"&": hir.BinBitAnd, "|": hir.BinBitOr, "^": hir.BinBitXor, "&&": hir.BinLogAnd, "||": hir.BinLogOr,
}

func (fb *funcBuilder) sp(start, end lexer.Position) source.Span { return fb.b.span(start, end) }

// expr lowers a full expression. The comma operator is only accepted where
// it can be split into statements.
func (fb *funcBuilder) expr(e *cparse.Expr) *hir.Expr {
	if len(e.Items) > 1 {
		fb.fail(diag.BldUnsupported, fb.sp(e.Pos, e.EndPos), "comma operator in an expression")
	}
	return fb.assignment(e.Items[0])
}

func (fb *funcBuilder) assignment(a *cparse.Assignment) *hir.Expr {
	left := fb.cond(a.Left)
	if a.Op == "" {
		return left
	}
	d := hir.AssignData{Target: left, Value: fb.coerce(fb.assignment(a.Right), left.Type)}
	if a.Op != "=" {
		d.Op, d.Compound = compoundOps[a.Op], true
	}
	return &hir.Expr{Kind: hir.ExprAssign, Type: left.Type, Span: fb.sp(a.Pos, a.EndPos), Data: d}
}

func (fb *funcBuilder) cond(c *cparse.Conditional) *hir.Expr {
	test := fb.binary(c.Cond)
	if c.Then == nil {
		return test
	}
	then := fb.expr(c.Then)
	els := fb.cond(c.Else)
	t := then.Type
	if then.IsNull() && els.Type != nil {
		t = els.Type
	} else if then.Type.IsArithmetic() && els.Type.IsArithmetic() {
		t = fb.arith(then.Type, els.Type)
	}
	return &hir.Expr{
		Kind: hir.ExprTernary,
		Type: t,
		Span: fb.sp(c.Pos, c.EndPos),
		Data: hir.TernaryData{Cond: test, Then: then, Else: els},
	}
}

// binary applies C precedence to the flat operator chain by precedence
// climbing. All binary operators are left-associative.
func (fb *funcBuilder) binary(bn *cparse.Binary) *hir.Expr {
	left := fb.unary(bn.Left)
	i := 0
	return fb.climb(left, bn.Ops, &i, 1)
}

func (fb *funcBuilder) climb(lhs *hir.Expr, ops []*cparse.BinOp, i *int, minPrec int) *hir.Expr {
	for *i < len(ops) && precedence[ops[*i].Op] >= minPrec {
		op := ops[*i]
		*i++
		rhs := fb.unary(op.Right)
		for *i < len(ops) && precedence[ops[*i].Op] > precedence[op.Op] {
			rhs = fb.climb(rhs, ops, i, precedence[op.Op]+1)
		}
		lhs = fb.makeBinary(binaryOps[op.Op], lhs, rhs)
	}
	return lhs
}

func (fb *funcBuilder) makeBinary(op hir.BinaryOp, l, r *hir.Expr) *hir.Expr {
	m := fb.b.mod
	lt, rt := m.Resolve(l.Type), m.Resolve(r.Type)
	var t *hir.Type
	switch {
	case op.IsComparison() || op.IsLogical():
		t = hir.Int
	case (op == hir.BinAdd || op == hir.BinSub) && isPtrLike(lt) && rt.IsInteger():
		t = decayed(l.Type, lt)
	case op == hir.BinAdd && lt.IsInteger() && isPtrLike(rt):
		t = decayed(r.Type, rt)
	case op == hir.BinSub && isPtrLike(lt) && isPtrLike(rt):
		t = hir.Long
	case op == hir.BinShl || op == hir.BinShr:
		t = promote(lt)
	case lt.IsArithmetic() && rt.IsArithmetic():
		t = fb.arith(l.Type, r.Type)
	default:
		t = l.Type
	}
	return &hir.Expr{Kind: hir.ExprBinary, Type: t, Span: l.Span.Cover(r.Span), Data: hir.BinaryData{Op: op, Left: l, Right: r}}
}

func isPtrLike(t *hir.Type) bool { return t.IsPointer() || t.IsArray() }

// decayed returns the pointer type arithmetic on t yields, keeping the
// typedef spelling when t already is a pointer.
func decayed(orig, resolved *hir.Type) *hir.Type {
	if resolved.IsArray() {
		return hir.PointerTo(resolved.Elem)
	}
	return orig
}

func promote(t *hir.Type) *hir.Type {
	if t == nil {
		return hir.Int
	}
	switch t.Kind {
	case hir.TBool, hir.TChar, hir.TShort, hir.TEnum:
		return hir.Int
	}
	return t
}

// arith implements the usual arithmetic conversions on resolved types.
func (fb *funcBuilder) arith(a, b *hir.Type) *hir.Type {
	a, b = promote(fb.b.mod.Resolve(a)), promote(fb.b.mod.Resolve(b))
	switch {
	case a.Kind == hir.TDouble || b.Kind == hir.TDouble:
		return hir.Double
	case a.Kind == hir.TFloat || b.Kind == hir.TFloat:
		return hir.Float
	}
	for _, k := range rankOrder {
		if a.Kind == k || b.Kind == k {
			unsigned := (a.Kind == k && a.Unsigned) || (b.Kind == k && b.Unsigned)
			return &hir.Type{Kind: k, Unsigned: unsigned}
		}
	}
	return hir.Int
}

var unaryOps = map[string]hir.UnaryOp{
	"-": hir.UnNeg, "+": hir.UnPlus, "!": hir.UnNot, "~": hir.UnBitNot,
	"*": hir.UnDeref, "&": hir.UnAddr, "++": hir.UnPreInc, "--": hir.UnPreDec,
}

func (fb *funcBuilder) unary(u *cparse.Unary) *hir.Expr {
	sp := fb.sp(u.Pos, u.EndPos)
	switch {
	case u.PreOp != nil:
		operand := fb.unary(u.Operand)
		op := unaryOps[*u.PreOp]
		if op == hir.UnNeg && operand.Kind == hir.ExprLiteral {
			if lit := operand.Data.(hir.LiteralData); lit.Kind == hir.LitInt || lit.Kind == hir.LitFloat {
				operand.Span = sp
				return negate(operand)
			}
		}
		return &hir.Expr{Kind: hir.ExprUnary, Type: fb.unaryType(op, operand), Span: sp, Data: hir.UnaryData{Op: op, Operand: operand}}
	case u.SizeofType != nil:
		return &hir.Expr{Kind: hir.ExprSizeof, Type: sizeT, Span: sp, Data: hir.SizeofData{Of: fb.typeName(u.SizeofType)}}
	case u.SizeofExpr != nil:
		return &hir.Expr{Kind: hir.ExprSizeof, Type: sizeT, Span: sp, Data: hir.SizeofData{Value: fb.unary(u.SizeofExpr)}}
	case u.Cast != nil:
		return fb.cast(u.Cast, sp)
	default:
		return fb.postfix(u.Postfix)
	}
}

func (fb *funcBuilder) unaryType(op hir.UnaryOp, operand *hir.Expr) *hir.Type {
	t := fb.b.mod.Resolve(operand.Type)
	switch op {
	case hir.UnNot:
		return hir.Int
	case hir.UnDeref:
		if isPtrLike(t) {
			return t.Elem
		}
		return nil
	case hir.UnAddr:
		if operand.Type == nil {
			return voidPtr
		}
		if operand.Type.Kind == hir.TFuncPtr {
			return operand.Type
		}
		return hir.PointerTo(operand.Type)
	case hir.UnNeg, hir.UnPlus, hir.UnBitNot:
		return promote(t)
	default:
		return operand.Type
	}
}

func (fb *funcBuilder) cast(c *cparse.Cast, sp source.Span) *hir.Expr {
	target := fb.typeName(c.Type)
	if c.List != nil {
		e := fb.initList(c.List, target)
		e.Span = sp
		d := e.Data.(hir.InitListData)
		d.Compound = true
		e.Data = d
		return e
	}
	value := fb.unary(c.Value)
	rt := fb.b.mod.Resolve(target)
	if v, ok := value.IntValue(); ok && v == 0 && rt.IsPointer() {
		return &hir.Expr{Kind: hir.ExprLiteral, Type: target, Span: sp, Data: hir.LiteralData{Kind: hir.LitNull, Text: "NULL"}}
	}
	if value.Kind == hir.ExprAlloc || value.IsNull() {
		return fb.coerce(value, target)
	}
	return &hir.Expr{Kind: hir.ExprCast, Type: target, Span: sp, Data: hir.CastData{Target: target, Value: value}}
}

func (fb *funcBuilder) typeName(t *cparse.TypeName) *hir.Type {
	spec := fb.b.specs(t.Specs, "", false, fb)
	typ := fb.b.abstract(spec.base, t.Decl, fb)
	if typ.Kind == hir.TFuncPtr {
		unbare(typ)
	}
	return typ
}

// coerce retypes allocations and NULL to the type they are stored into.
// A cast wrapping an allocation is dropped.
func (fb *funcBuilder) coerce(e *hir.Expr, target *hir.Type) *hir.Expr {
	if e == nil || target == nil {
		return e
	}
	inner := e.StripCasts()
	rt := fb.b.mod.Resolve(target)
	switch {
	case inner.Kind == hir.ExprAlloc && rt.IsPointer():
		d := inner.Data.(hir.AllocData)
		if d.Elem == nil && !rt.Elem.IsVoid() {
			d.Elem = rt.Elem
		}
		inner.Data = d
		inner.Type = target
		return inner
	case inner.IsNull() && rt.IsPointer():
		inner.Type = target
		return inner
	}
	return e
}

func (fb *funcBuilder) postfix(p *cparse.Postfix) *hir.Expr {
	ops := p.Ops
	var e *hir.Expr
	if p.Primary.Ident != nil && len(ops) > 0 && ops[0].Call != nil && fb.isDirectCallee(*p.Primary.Ident) {
		e = fb.call(*p.Primary.Ident, nil, ops[0].Call, fb.sp(p.Pos, ops[0].EndPos))
		ops = ops[1:]
	} else {
		e = fb.primary(p.Primary)
	}
	for _, op := range ops {
		sp := e.Span.Cover(fb.sp(op.Pos, op.EndPos))
		switch {
		case op.Index != nil:
			t := fb.b.mod.Resolve(e.Type)
			var elem *hir.Type
			if isPtrLike(t) {
				elem = t.Elem
			}
			e = &hir.Expr{Kind: hir.ExprIndex, Type: elem, Span: sp, Data: hir.IndexData{Object: e, Index: fb.expr(op.Index)}}
		case op.Call != nil:
			e = fb.call("", e, op.Call, sp)
		case op.Field != nil:
			e = fb.field(e, *op.Field, false, sp)
		case op.Arrow != nil:
			e = fb.field(e, *op.Arrow, true, sp)
		case op.IncDec != nil:
			un := hir.UnPostInc
			if *op.IncDec == "--" {
				un = hir.UnPostDec
			}
			e = &hir.Expr{Kind: hir.ExprUnary, Type: e.Type, Span: sp, Data: hir.UnaryData{Op: un, Operand: e}}
		}
	}
	return e
}

func (fb *funcBuilder) field(obj *hir.Expr, name string, arrow bool, sp source.Span) *hir.Expr {
	var t *hir.Type
	if def := fb.b.mod.StructOf(obj.Type); def != nil {
		if f := def.Field(name); f != nil {
			t = f.Type
		} else {
			fb.fail(diag.BldUnknownType, sp, "%s has no field %s", def.Name, name)
		}
	}
	return &hir.Expr{Kind: hir.ExprField, Type: t, Span: sp, Data: hir.FieldData{Object: obj, Field: name, Arrow: arrow}}
}

// isDirectCallee reports whether name refers to a function rather than a
// variable holding a function pointer.
func (fb *funcBuilder) isDirectCallee(name string) bool {
	if fb.shadowed(name) {
		return false
	}
	return fb.b.mod.GlobalByName(name) == nil
}

func (fb *funcBuilder) shadowed(name string) bool {
	if fb.fn == nil {
		return false
	}
	_, ok := fb.lookup(name)
	return ok
}

func (fb *funcBuilder) signature(name string) (*hir.Type, stdlib.Class, bool) {
	if sig, ok := fb.b.sigs[name]; ok {
		return sig, stdlib.ClassUnknown, true
	}
	if p, ok := fb.b.prov.Lookup(name); ok {
		return p.Signature(), p.Class, true
	}
	return nil, stdlib.ClassUnknown, false
}

func (fb *funcBuilder) call(name string, target *hir.Expr, args *cparse.CallArgs, sp source.Span) *hir.Expr {
	lowered := make([]*hir.Expr, len(args.Args))
	for i, a := range args.Args {
		lowered[i] = fb.assignment(a)
	}
	if target != nil {
		var result *hir.Type
		if ft := fb.b.mod.Resolve(target.Type); ft != nil {
			if ft.IsPointer() {
				ft = fb.b.mod.Resolve(ft.Elem)
			}
			if ft != nil && ft.Kind == hir.TFuncPtr {
				result = ft.Result
				fb.coerceArgs(lowered, ft)
			}
		}
		return &hir.Expr{Kind: hir.ExprCall, Type: result, Span: sp, Data: hir.CallData{Target: target, Args: lowered}}
	}

	if fb.b.funcMacros[name] {
		fb.fail(diag.BldMacroCall, sp, "call to function-like macro %s", name)
	}
	sig, class, known := fb.signature(name)
	var result *hir.Type
	if known {
		result = sig.Result
		if !fb.b.unspecified[name] && arityMismatch(sig, len(lowered)) {
			fb.fail(diag.BldArityMismatch, sp, "%s expects %d arguments, got %d", name, len(sig.Params), len(lowered))
		}
		fb.coerceArgs(lowered, sig)
		if class.IsAllocator() && takesSize(sig) {
			if a := fb.alloc(name, class, lowered, sp); a != nil {
				return a
			}
		}
	}
	return &hir.Expr{Kind: hir.ExprCall, Type: result, Span: sp, Data: hir.CallData{Callee: name, Args: lowered}}
}

func arityMismatch(sig *hir.Type, n int) bool {
	if sig.Variadic {
		return n < len(sig.Params)
	}
	return n != len(sig.Params)
}

func (fb *funcBuilder) coerceArgs(args []*hir.Expr, sig *hir.Type) {
	for i := range args {
		if i < len(sig.Params) {
			args[i] = fb.coerce(args[i], sig.Params[i])
		}
	}
}

// takesSize reports an allocator whose size parameter is size_t, which
// excludes strdup and friends.
func takesSize(sig *hir.Type) bool {
	for _, p := range sig.Params {
		if p.Kind == hir.TTypedef && p.Name == "size_t" {
			return true
		}
	}
	return false
}

// alloc recognises malloc(n * sizeof(T)), calloc(n, sizeof(T)) and
// realloc(p, n * sizeof(T)). A count of literal 1 is a single object.
func (fb *funcBuilder) alloc(name string, class stdlib.Class, args []*hir.Expr, sp source.Span) *hir.Expr {
	d := hir.AllocData{Callee: name}
	switch class {
	case stdlib.ClassAlloc:
		if len(args) != 1 {
			return nil
		}
		d.Kind, d.Size = hir.AllocMalloc, args[0]
		d.Count, d.Elem = splitSize(args[0])
	case stdlib.ClassCalloc:
		if len(args) != 2 {
			return nil
		}
		d.Kind, d.Size, d.Count = hir.AllocCalloc, args[1], args[0]
		d.Elem = sizeofType(args[1])
		if n, ok := args[0].IntValue(); ok && n == 1 {
			d.Count = nil
		}
	case stdlib.ClassRealloc:
		if len(args) != 2 {
			return nil
		}
		d.Kind, d.Ptr, d.Size = hir.AllocRealloc, args[0], args[1]
		d.Count, d.Elem = splitSize(args[1])
	default:
		return nil
	}
	return &hir.Expr{Kind: hir.ExprAlloc, Type: voidPtr, Span: sp, Data: d}
}

func splitSize(size *hir.Expr) (count *hir.Expr, elem *hir.Type) {
	if t := sizeofType(size); t != nil {
		return nil, t
	}
	bin, ok := size.Data.(hir.BinaryData)
	if !ok || bin.Op != hir.BinMul {
		return nil, nil
	}
	switch {
	case sizeofType(bin.Right) != nil:
		count, elem = hir.CloneExpr(bin.Left), sizeofType(bin.Right)
	case sizeofType(bin.Left) != nil:
		count, elem = hir.CloneExpr(bin.Right), sizeofType(bin.Left)
	default:
		return nil, nil
	}
	if n, ok := count.IntValue(); ok && n == 1 {
		count = nil
	}
	return count, elem
}

func sizeofType(e *hir.Expr) *hir.Type {
	d, ok := e.StripCasts().Data.(hir.SizeofData)
	if !ok {
		return nil
	}
	if d.Of != nil {
		return d.Of
	}
	return d.Value.Type
}

func (fb *funcBuilder) primary(p *cparse.Primary) *hir.Expr {
	sp := fb.sp(p.Pos, p.EndPos)
	var (
		e   *hir.Expr
		err error
	)
	switch {
	case p.Int != nil:
		e, err = intLiteral(*p.Int)
	case p.Float != nil:
		e, err = floatLiteral(*p.Float)
	case p.Char != nil:
		e, err = charLiteral(*p.Char)
	case len(p.Strings) > 0:
		var text string
		text, err = unquote(strings.Join(p.Strings, " "))
		e = &hir.Expr{Kind: hir.ExprLiteral, Type: strType, Data: hir.LiteralData{Kind: hir.LitString, Text: text}}
	case p.Ident != nil:
		return fb.ident(*p.Ident, sp)
	case p.Paren != nil:
		e = fb.expr(p.Paren)
		e.Span = sp
		return e
	}
	if err != nil || e == nil {
		fb.fail(diag.BldUnsupported, sp, "bad literal: %v", err)
		return &hir.Expr{Kind: hir.ExprLiteral, Type: hir.Int, Span: sp, Data: hir.LiteralData{Kind: hir.LitInt, Text: "0"}}
	}
	e.Span = sp
	return e
}

func (fb *funcBuilder) ident(name string, sp source.Span) *hir.Expr {
	m := fb.b.mod
	ref := func(d hir.VarRefData, t *hir.Type) *hir.Expr {
		d.Name = name
		return &hir.Expr{Kind: hir.ExprVarRef, Type: t, Span: sp, Data: d}
	}
	lit := func(kind hir.LitKind, v int64, t *hir.Type) *hir.Expr {
		return &hir.Expr{Kind: hir.ExprLiteral, Type: t, Span: sp, Data: hir.LiteralData{Kind: kind, Int: v, Text: name}}
	}

	if fb.fn != nil {
		if id, ok := fb.lookup(name); ok {
			return ref(hir.VarRefData{Ref: hir.RefLocal, Local: id}, fb.fn.Local(id).Type)
		}
	}
	if g := m.GlobalByName(name); g != nil {
		return ref(hir.VarRefData{Ref: hir.RefGlobal, Global: g.ID}, g.Type)
	}
	if v, ok := m.EnumConst(name); ok {
		return ref(hir.VarRefData{Ref: hir.RefEnumConst, Value: v}, hir.Int)
	}
	if mc := m.Macro(name); mc != nil {
		return ref(hir.VarRefData{Ref: hir.RefMacro}, mc.Value.Type)
	}
	switch name {
	case "NULL":
		return lit(hir.LitNull, 0, voidPtr)
	case "true", "false":
		return lit(hir.LitInt, boolInt(name == "true"), hir.Bool)
	}
	if v, ok := builtinConsts[name]; ok {
		return lit(hir.LitInt, v, hir.Int)
	}
	if sig, _, ok := fb.signature(name); ok {
		return ref(hir.VarRefData{Ref: hir.RefFunc}, sig)
	}
	return ref(hir.VarRefData{Ref: hir.RefExtern}, externVars[name])
}

func (fb *funcBuilder) initializer(i *cparse.Initializer, t *hir.Type) *hir.Expr {
	if i.List != nil {
		return fb.initList(i.List, t)
	}
	return fb.coerce(fb.assignment(i.Expr), t)
}

// initList types each item from the aggregate: arrays by element, structs
// by designator or position.
func (fb *funcBuilder) initList(l *cparse.InitList, t *hir.Type) *hir.Expr {
	rt := fb.b.mod.Resolve(t)
	def := fb.b.mod.StructOf(t)
	if rt.IsPointer() {
		def = nil
	}
	d := hir.InitListData{}
	pos := 0
	for _, it := range l.Items {
		item := hir.InitItem{}
		var elem *hir.Type
		switch {
		case it.Field != nil:
			item.Field = *it.Field
			if def != nil {
				for j, f := range def.Fields {
					if f.Name == item.Field {
						elem, pos = f.Type, j
					}
				}
			}
		case it.Index != nil:
			item.Index = fb.cond(it.Index)
		}
		switch {
		case elem != nil:
		case rt.IsArray():
			elem = rt.Elem
		case def != nil && pos < len(def.Fields):
			elem = def.Fields[pos].Type
		}
		item.Value = fb.initializer(it.Value, elem)
		d.Items = append(d.Items, item)
		pos++
	}
	return &hir.Expr{Kind: hir.ExprInitList, Type: t, Span: fb.sp(l.Pos, l.EndPos), Data: d}
}
