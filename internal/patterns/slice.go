package patterns

import "decant/internal/hir"

// SliceParam merges a pointer parameter and its length parameter into one
// bounded slice. The length is dropped from the signature and read back
// as the slice length.
type SliceParam struct {
	Ptr      hir.LocalID
	Len      hir.LocalID
	PtrIndex int
	LenIndex int
	Loops    []hir.NodeID // loops bounded by the length
}

func (d *detector) sliceParams() []SliceParam {
	var out []SliceParam
	for _, lp := range d.g.LengthPairs {
		ptr, n := d.g.Binding(lp.Ptr), d.g.Binding(lp.Len)
		if ptr == nil || n == nil || !ptr.Param || !n.Param {
			continue
		}
		if len(ptr.Arith) != 0 || len(ptr.Frees) != 0 || len(ptr.Reassigns) != 0 || ptr.IntCast {
			continue
		}
		if len(n.Reassigns) != 0 || len(n.Addressed) != 0 {
			continue
		}
		loops, bounded := d.boundingLoops(lp.Ptr, lp.Len)
		if len(loops) == 0 || bounded != d.refs(lp.Len) {
			continue
		}
		if !d.sitesAgree(ptr.ParamIndex, func(arg *hir.Expr) bool { return !arg.StripCasts().IsNull() }) {
			continue
		}
		out = append(out, SliceParam{
			Ptr:      lp.Ptr,
			Len:      lp.Len,
			PtrIndex: ptr.ParamIndex,
			LenIndex: n.ParamIndex,
			Loops:    loops,
		})
	}
	return out
}

// boundingLoops returns the loops whose condition bounds an index of ptr
// by n, and the number of references to n those conditions hold.
func (d *detector) boundingLoops(ptr, n hir.LocalID) ([]hir.NodeID, int) {
	var loops []hir.NodeID
	refs := 0
	check := func(s *hir.Stmt, cond *hir.Expr, body *hir.Block) {
		idx, count, ok := loopIndex(cond, n)
		if !ok || !indexes(body, ptr, idx) {
			return
		}
		loops = append(loops, s.ID)
		refs += count
	}
	hir.Inspect(d.fn.Body, func(s *hir.Stmt) bool {
		switch x := s.Data.(type) {
		case hir.ForData:
			check(s, x.Cond, x.Body)
		case hir.WhileData:
			check(s, x.Cond, x.Body)
		case hir.DoWhileData:
			check(s, x.Cond, x.Body)
		}
		return true
	}, nil)
	return loops, refs
}

// loopIndex matches `i < n`, `i <= n - 1` and `n > i`, possibly as the
// first operand of `&&`. It returns the index variable and how many times n
// occurs in cond.
func loopIndex(cond *hir.Expr, n hir.LocalID) (hir.LocalID, int, bool) {
	if cond == nil {
		return hir.NoLocalID, 0, false
	}
	d, ok := cond.StripCasts().Data.(hir.BinaryData)
	if !ok {
		return hir.NoLocalID, 0, false
	}
	if d.Op == hir.BinLogAnd {
		i, c, ok := loopIndex(d.Left, n)
		if !ok || exprRefs(d.Right, n) != 0 {
			return hir.NoLocalID, 0, false
		}
		return i, c, true
	}
	isN := func(e *hir.Expr) bool {
		l, ok := e.StripCasts().LocalRef()
		return ok && l == n
	}
	nMinusOne := func(e *hir.Expr) bool {
		b, ok := e.StripCasts().Data.(hir.BinaryData)
		return ok && b.Op == hir.BinSub && isN(b.Left) && isConst(b.Right, 1)
	}
	var idx *hir.Expr
	switch {
	case d.Op == hir.BinLt && isN(d.Right):
		idx = d.Left
	case d.Op == hir.BinLe && nMinusOne(d.Right):
		idx = d.Left
	case d.Op == hir.BinGt && isN(d.Left):
		idx = d.Right
	default:
		return hir.NoLocalID, 0, false
	}
	i, ok := idx.StripCasts().LocalRef()
	if !ok {
		return hir.NoLocalID, 0, false
	}
	return i, 1, true
}

// indexes reports whether body contains ptr[i].
func indexes(body *hir.Block, ptr, i hir.LocalID) bool {
	found := false
	hir.Inspect(body, nil, func(e *hir.Expr) bool {
		if x, ok := e.Data.(hir.IndexData); ok {
			p, pok := x.Object.StripCasts().LocalRef()
			j, jok := x.Index.StripCasts().LocalRef()
			if pok && jok && p == ptr && j == i {
				found = true
			}
		}
		return !found
	})
	return found
}
