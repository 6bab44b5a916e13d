// Package patterns recognises four C idioms that have a direct safe
// counterpart: output parameters, void* generics, fork/exec process spawns
// and pointer+length pairs. Every detector is conservative and matches only
// when all observed uses, and all module call sites, agree.
package patterns

import (
	"context"
	"fmt"

	"decant/internal/dataflow"
	"decant/internal/hir"
	"decant/internal/trace"
)

// Hints collects the detector results for one function.
type Hints struct {
	Func      *hir.Func
	OutParams []OutParam
	Generics  []GenericParam
	Spawns    []Spawn
	Slices    []SliceParam
}

// Empty reports whether no detector matched.
func (h *Hints) Empty() bool {
	return h == nil || len(h.OutParams)+len(h.Generics)+len(h.Spawns)+len(h.Slices) == 0
}

// OutParam returns the output-parameter hint for l, or nil.
func (h *Hints) OutParam(l hir.LocalID) *OutParam {
	if h == nil {
		return nil
	}
	for i := range h.OutParams {
		if h.OutParams[i].Local == l {
			return &h.OutParams[i]
		}
	}
	return nil
}

// Generic returns the void* generic hint for l, or nil.
func (h *Hints) Generic(l hir.LocalID) *GenericParam {
	if h == nil {
		return nil
	}
	for i := range h.Generics {
		if h.Generics[i].Local == l {
			return &h.Generics[i]
		}
	}
	return nil
}

// Slice returns the pointer+length hint whose pointer or length is l.
func (h *Hints) Slice(l hir.LocalID) *SliceParam {
	if h == nil {
		return nil
	}
	for i := range h.Slices {
		if h.Slices[i].Ptr == l || h.Slices[i].Len == l {
			return &h.Slices[i]
		}
	}
	return nil
}

// SpawnAt returns the spawn whose fork statement is stmt, or nil.
func (h *Hints) SpawnAt(stmt hir.NodeID) *Spawn {
	if h == nil {
		return nil
	}
	for i := range h.Spawns {
		if h.Spawns[i].ForkStmt == stmt {
			return &h.Spawns[i]
		}
	}
	return nil
}

// Count returns the number of matches.
func (h *Hints) Count() int {
	if h == nil {
		return 0
	}
	return len(h.OutParams) + len(h.Generics) + len(h.Spawns) + len(h.Slices)
}

// Detect runs the four detectors over fn.
func Detect(fn *hir.Func, g *dataflow.Graph, idx *Index) *Hints {
	h := &Hints{Func: fn}
	if fn == nil || fn.Body == nil || g == nil {
		return h
	}
	if idx == nil {
		idx = NewIndex(g.Module)
	}
	d := &detector{fn: fn, g: g, mod: g.Module, idx: idx}
	h.OutParams = d.outParams()
	h.Generics = d.generics()
	h.Spawns = d.spawns()
	h.Slices = d.sliceParams()
	return h
}

// DetectModule runs Detect for every graph, in order.
func DetectModule(ctx context.Context, graphs []*dataflow.Graph, idx *Index) []*Hints {
	t := trace.FromContext(ctx)
	span := trace.Begin(t, trace.ScopePass, "patterns", trace.ParentFromContext(ctx))
	out := make([]*Hints, len(graphs))
	matched := 0
	for i, g := range graphs {
		out[i] = Detect(g.Func, g, idx)
		matched += out[i].Count()
	}
	span.WithExtra("matched", fmt.Sprint(matched)).End("")
	return out
}

type detector struct {
	fn  *hir.Func
	g   *dataflow.Graph
	mod *hir.Module
	idx *Index
}

// refs counts the references to l in the function body.
func (d *detector) refs(l hir.LocalID) int {
	n := 0
	hir.Inspect(d.fn.Body, nil, func(e *hir.Expr) bool {
		if x, ok := e.LocalRef(); ok && x == l {
			n++
		}
		return true
	})
	return n
}

func exprRefs(e *hir.Expr, l hir.LocalID) int {
	n := 0
	hir.InspectExpr(e, func(x *hir.Expr) bool {
		if y, ok := x.LocalRef(); ok && y == l {
			n++
		}
		return true
	})
	return n
}

// sitesAgree reports whether every module call of the function satisfies
// ok for the argument at index. Functions whose address is taken have
// unknown call sites and never agree.
func (d *detector) sitesAgree(index int, ok func(arg *hir.Expr) bool) bool {
	if d.idx.AddressTaken(d.fn.Name) {
		return false
	}
	for _, c := range d.idx.Calls(d.fn.Name) {
		if index >= len(c.Args) || !ok(c.Args[index]) {
			return false
		}
	}
	return true
}

func unqualified(t *hir.Type) *hir.Type {
	if t == nil || !t.Const {
		return t
	}
	c := *t
	c.Const = false
	return &c
}
