package bridge

import "decant/internal/hir"

// evalConst folds an integer constant expression. extra holds enumerators
// that are not yet in the module index.
func evalConst(e *hir.Expr, m *hir.Module, extra map[string]int64) (int64, bool) {
	if e == nil {
		return 0, false
	}
	switch d := e.Data.(type) {
	case hir.LiteralData:
		switch d.Kind {
		case hir.LitInt, hir.LitChar:
			return d.Int, true
		case hir.LitNull:
			return 0, true
		}
	case hir.VarRefData:
		if v, ok := extra[d.Name]; ok {
			return v, true
		}
		switch d.Ref {
		case hir.RefEnumConst:
			return d.Value, true
		case hir.RefMacro:
			if mc := m.Macro(d.Name); mc != nil {
				return evalConst(mc.Value, m, nil)
			}
		}
		return m.EnumConst(d.Name)
	case hir.UnaryData:
		v, ok := evalConst(d.Operand, m, extra)
		if !ok {
			return 0, false
		}
		switch d.Op {
		case hir.UnNeg:
			return -v, true
		case hir.UnPlus:
			return v, true
		case hir.UnBitNot:
			return ^v, true
		case hir.UnNot:
			return boolInt(v == 0), true
		}
	case hir.BinaryData:
		l, lok := evalConst(d.Left, m, extra)
		r, rok := evalConst(d.Right, m, extra)
		if !lok || !rok {
			return 0, false
		}
		return foldBinary(d.Op, l, r)
	case hir.TernaryData:
		c, ok := evalConst(d.Cond, m, extra)
		if !ok {
			return 0, false
		}
		if c != 0 {
			return evalConst(d.Then, m, extra)
		}
		return evalConst(d.Else, m, extra)
	case hir.CastData:
		if m.Resolve(d.Target).IsInteger() {
			return evalConst(d.Value, m, extra)
		}
	case hir.SizeofData:
		t := d.Of
		if t == nil && d.Value != nil {
			t = d.Value.Type
		}
		if n, ok := sizeOf(t, m, 0); ok {
			return n, true
		}
	}
	return 0, false
}

func foldBinary(op hir.BinaryOp, l, r int64) (int64, bool) {
	switch op {
	case hir.BinAdd:
		return l + r, true
	case hir.BinSub:
		return l - r, true
	case hir.BinMul:
		return l * r, true
	case hir.BinDiv:
		if r == 0 {
			return 0, false
		}
		return l / r, true
	case hir.BinMod:
		if r == 0 {
			return 0, false
		}
		return l % r, true
	case hir.BinShl:
		if r < 0 || r > 63 {
			return 0, false
		}
		return l << uint(r), true
	case hir.BinShr:
		if r < 0 || r > 63 {
			return 0, false
		}
		return l >> uint(r), true
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

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// sizeOf uses the LP64 data model.
func sizeOf(t *hir.Type, m *hir.Module, depth int) (int64, bool) {
	if depth > 16 {
		return 0, false
	}
	t = m.Resolve(t)
	if t == nil {
		return 0, false
	}
	switch t.Kind {
	case hir.TBool, hir.TChar:
		return 1, true
	case hir.TShort:
		return 2, true
	case hir.TInt, hir.TEnum, hir.TFloat:
		return 4, true
	case hir.TLong, hir.TLongLong, hir.TDouble, hir.TPointer, hir.TFuncPtr:
		return 8, true
	case hir.TArray:
		if t.Len < 0 {
			return 0, false
		}
		n, ok := sizeOf(t.Elem, m, depth+1)
		return n * int64(t.Len), ok
	case hir.TStruct, hir.TUnion:
		def := m.Struct(t.Name)
		if def == nil {
			return 0, false
		}
		var size, align int64 = 0, 1
		for _, f := range def.Fields {
			fs, ok := sizeOf(f.Type, m, depth+1)
			if !ok {
				return 0, false
			}
			fa, _ := alignOf(f.Type, m, depth+1)
			align = max(align, fa)
			if def.Union {
				size = max(size, fs)
				continue
			}
			size = roundUp(size, fa) + fs
		}
		return roundUp(size, align), true
	}
	return 0, false
}

func alignOf(t *hir.Type, m *hir.Module, depth int) (int64, bool) {
	t = m.Resolve(t)
	if t == nil || depth > 16 {
		return 1, false
	}
	switch t.Kind {
	case hir.TArray:
		return alignOf(t.Elem, m, depth+1)
	case hir.TStruct, hir.TUnion:
		def := m.Struct(t.Name)
		if def == nil {
			return 1, false
		}
		var a int64 = 1
		for _, f := range def.Fields {
			fa, _ := alignOf(f.Type, m, depth+1)
			a = max(a, fa)
		}
		return a, true
	}
	return sizeOf(t, m, depth)
}

func roundUp(n, a int64) int64 {
	if a <= 1 {
		return n
	}
	return (n + a - 1) / a * a
}
