package dataflow

import (
	"slices"
	"strings"

	"decant/internal/hir"
)

var (
	bufferNames = []string{"arr", "buf", "data", "items", "list", "vals"}
	lengthNames = []string{"len", "size", "count", "num"}
)

// pairLengths scores every (pointer param, integer param) combination and
// keeps, per pointer, the best pair with at least two signals.
func pairLengths(g *Graph, threshold int) []LengthPair {
	fn := g.Func
	var pairs []LengthPair
	for i, p := range fn.Params {
		ptr := g.Binding(p.Local)
		if ptr == nil || !ptr.Pointer || pointsToStruct(g.Module, ptr.Type) {
			continue
		}
		var best *LengthPair
		for j, q := range fn.Params {
			if j == i || !g.Module.Resolve(q.Type).IsInteger() {
				continue
			}
			lp := scorePair(g, ptr, g.Binding(q.Local), j == i+1)
			if len(lp.Signals) < 2 || lp.Score < threshold {
				continue
			}
			if best == nil || lp.Score > best.Score {
				best = &lp
			}
		}
		if best != nil {
			pairs = append(pairs, *best)
		}
	}
	return pairs
}

func scorePair(g *Graph, ptr, n *Binding, adjacent bool) LengthPair {
	lp := LengthPair{Ptr: ptr.Local, Len: n.Local}
	signal := func(delta int, why string) {
		lp.Score += delta
		lp.Signals = append(lp.Signals, why)
	}
	if adjacent {
		signal(3, "length parameter follows the pointer")
	}
	if nameHas(ptr.Name, bufferNames) {
		signal(2, "pointer name suggests a buffer")
	}
	if nameHas(n.Name, lengthNames) || strings.EqualFold(n.Name, "n") {
		signal(2, "parameter name suggests a length")
	}
	if len(ptr.Indexes) > 0 {
		signal(3, "pointer is indexed")
	}
	for _, lb := range g.Loops {
		if lb.Bound == n.Local && slices.Contains(lb.Indexed, ptr.Local) {
			signal(3, "length bounds a loop indexing the pointer")
			break
		}
	}
	if len(ptr.Arith) > 0 {
		signal(-2, "pointer arithmetic is used")
	}
	return lp
}

func nameHas(name string, parts []string) bool {
	lower := strings.ToLower(name)
	for _, p := range parts {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func pointsToStruct(m *hir.Module, t *hir.Type) bool {
	rt := m.Resolve(t)
	if !rt.IsPointer() {
		return false
	}
	elem := m.Resolve(rt.Elem)
	return elem != nil && (elem.Kind == hir.TStruct || elem.Kind == hir.TUnion)
}
