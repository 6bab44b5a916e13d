package optimize

import (
	"math"
	"strconv"

	"decant/internal/hir"
)

// fits reports whether v is representable in integer type t. Types the
// folder cannot size are rejected.
func fits(m *hir.Module, t *hir.Type, v int64) bool {
	rt := m.Resolve(t)
	if rt == nil {
		return false
	}
	var bits uint
	switch rt.Kind {
	case hir.TBool:
		return v == 0 || v == 1
	case hir.TChar:
		bits = 8
	case hir.TShort:
		bits = 16
	case hir.TInt, hir.TEnum:
		bits = 32
	case hir.TLong, hir.TLongLong:
		bits = 64
	default:
		return false
	}
	if rt.Unsigned {
		if v < 0 {
			return false
		}
		return bits == 64 || v <= int64(1)<<bits-1
	}
	if bits == 64 {
		return true
	}
	return v >= -(int64(1)<<(bits-1)) && v <= int64(1)<<(bits-1)-1
}

func intLit(e *hir.Expr, v int64) *hir.Expr {
	return &hir.Expr{
		ID:   e.ID,
		Kind: hir.ExprLiteral,
		Type: e.Type,
		Span: e.Span,
		Data: hir.LiteralData{Kind: hir.LitInt, Int: v, Text: strconv.FormatInt(v, 10)},
	}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func foldBinary(op hir.BinaryOp, l, r int64) (int64, bool) {
	switch op {
	case hir.BinAdd:
		if (r > 0 && l > math.MaxInt64-r) || (r < 0 && l < math.MinInt64-r) {
			return 0, false
		}
		return l + r, true
	case hir.BinSub:
		if (r < 0 && l > math.MaxInt64+r) || (r > 0 && l < math.MinInt64+r) {
			return 0, false
		}
		return l - r, true
	case hir.BinMul:
		if l != 0 && r != 0 {
			p := l * r
			if p/r != l {
				return 0, false
			}
			return p, true
		}
		return 0, true
	case hir.BinDiv:
		if r == 0 || (l == math.MinInt64 && r == -1) {
			return 0, false
		}
		return l / r, true
	case hir.BinMod:
		if r == 0 || (l == math.MinInt64 && r == -1) {
			return 0, false
		}
		return l % r, true
	case hir.BinShl:
		if r < 0 || r > 62 || l < 0 {
			return 0, false
		}
		return l << r, true
	case hir.BinShr:
		if r < 0 || r > 63 {
			return 0, false
		}
		return l >> r, true
	case hir.BinLt:
		return boolInt(l < r), true
	case hir.BinLe:
		return boolInt(l <= r), true
	case hir.BinGt:
		return boolInt(l > r), true
	case hir.BinGe:
		return boolInt(l >= r), true
	case hir.BinEq:
		return boolInt(l == r), true
	case hir.BinNe:
		return boolInt(l != r), true
	case hir.BinBitAnd:
		return l & r, true
	case hir.BinBitOr:
		return l | r, true
	case hir.BinBitXor:
		return l ^ r, true
	case hir.BinLogAnd:
		return boolInt(l != 0 && r != 0), true
	case hir.BinLogOr:
		return boolInt(l != 0 || r != 0), true
	}
	return 0, false
}

// folder rewrites literal arithmetic bottom-up. Every replacement keeps the
// NodeID and type of the expression it replaces.
type folder struct {
	mod    *hir.Module
	folded int
	pruned int
}

func (f *folder) expr(e *hir.Expr) *hir.Expr {
	if e == nil {
		return nil
	}
	switch d := e.Data.(type) {
	case hir.UnaryData:
		d.Operand = f.expr(d.Operand)
		e.Data = d
		v, ok := d.Operand.IntValue()
		if !ok || !f.integer(d.Operand) {
			return e
		}
		var r int64
		switch d.Op {
		case hir.UnNeg:
			if v == math.MinInt64 {
				return e
			}
			r = -v
		case hir.UnPlus:
			r = v
		case hir.UnNot:
			r = boolInt(v == 0)
		case hir.UnBitNot:
			r = ^v
		default:
			return e
		}
		return f.replace(e, r)
	case hir.BinaryData:
		d.Left, d.Right = f.expr(d.Left), f.expr(d.Right)
		e.Data = d
		l, lok := d.Left.IntValue()
		r, rok := d.Right.IntValue()
		if !lok || !rok || !f.integer(d.Left) || !f.integer(d.Right) {
			return e
		}
		v, ok := foldBinary(d.Op, l, r)
		if !ok {
			return e
		}
		return f.replace(e, v)
	case hir.TernaryData:
		d.Cond, d.Then, d.Else = f.expr(d.Cond), f.expr(d.Then), f.expr(d.Else)
		e.Data = d
		if v, ok := d.Cond.IntValue(); ok && f.sameType(d.Then, e) && f.sameType(d.Else, e) {
			f.folded++
			if v != 0 {
				return d.Then
			}
			return d.Else
		}
		return e
	case hir.CastData:
		d.Value = f.expr(d.Value)
		e.Data = d
		if v, ok := d.Value.IntValue(); ok && f.integer(d.Value) && f.mod.Resolve(d.Target).IsInteger() {
			return f.replace(e, v)
		}
		return e
	case hir.AssignData:
		d.Value = f.expr(d.Value)
		d.Target = f.lvalue(d.Target)
		e.Data = d
	case hir.CallData:
		d.Target = f.expr(d.Target)
		for i := range d.Args {
			d.Args[i] = f.expr(d.Args[i])
		}
		e.Data = d
	case hir.FieldData:
		d.Object = f.expr(d.Object)
		e.Data = d
	case hir.IndexData:
		d.Object, d.Index = f.expr(d.Object), f.expr(d.Index)
		e.Data = d
	case hir.InitListData:
		for i := range d.Items {
			d.Items[i].Value = f.expr(d.Items[i].Value)
		}
		e.Data = d
	case hir.AllocData:
		d.Size, d.Count, d.Ptr = f.expr(d.Size), f.expr(d.Count), f.expr(d.Ptr)
		e.Data = d
	}
	return e
}

// lvalue folds inside an assignment target without replacing the target.
func (f *folder) lvalue(e *hir.Expr) *hir.Expr {
	switch d := e.Data.(type) {
	case hir.IndexData:
		d.Object, d.Index = f.lvalue(d.Object), f.expr(d.Index)
		e.Data = d
	case hir.FieldData:
		d.Object = f.lvalue(d.Object)
		e.Data = d
	case hir.UnaryData:
		if d.Op == hir.UnDeref {
			d.Operand = f.expr(d.Operand)
			e.Data = d
		}
	}
	return e
}

func (f *folder) integer(e *hir.Expr) bool {
	lit, ok := e.Data.(hir.LiteralData)
	return ok && lit.Kind == hir.LitInt
}

func (f *folder) sameType(a, b *hir.Expr) bool {
	return a.Type != nil && b.Type != nil && f.mod.Resolve(a.Type).Equal(f.mod.Resolve(b.Type))
}

func (f *folder) replace(e *hir.Expr, v int64) *hir.Expr {
	if !fits(f.mod, e.Type, v) {
		return e
	}
	f.folded++
	return intLit(e, v)
}
