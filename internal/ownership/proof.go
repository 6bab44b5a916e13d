package ownership

import (
	"decant/internal/dataflow"
	"decant/internal/hir"
)

type state uint8

const (
	stNone    state = iota // nothing owned, or a NULL value
	stLive                 // owns an allocation
	stFreed                // dangling
	stMoved                // returned
	stEscaped              // handed to a field, global or retaining call
	stExcused              // NULL branch after the allocation
)

// proof is the result of walking every enumerated path for one binding.
type proof struct {
	defects   []Defect
	allocated bool // some path allocates
	truncated bool
	aliased   bool
}

// ok reports that every allocating path frees exactly once or moves.
func (p proof) ok() bool { return p.allocated && !p.truncated && !p.aliased && len(p.defects) == 0 }

func (p proof) fatal() bool {
	for _, d := range p.defects {
		if d.Kind.Fatal() {
			return true
		}
	}
	return false
}

type pathWalker struct {
	g        *dataflow.Graph
	bd       *dataflow.Binding
	escapes  map[hir.NodeID]dataflow.EscapeKind
	reallocs map[hir.NodeID]bool
	seen     map[defectKey]bool
	out      *proof
}

type defectKey struct {
	kind DefectKind
	node hir.NodeID
}

// prove runs the free/move state machine for bd on every path.
func prove(g *dataflow.Graph, paths []dataflow.Path, truncated bool, bd *dataflow.Binding, aliased bool) proof {
	out := proof{truncated: truncated, aliased: aliased}
	w := &pathWalker{
		g:        g,
		bd:       bd,
		escapes:  make(map[hir.NodeID]dataflow.EscapeKind),
		reallocs: make(map[hir.NodeID]bool),
		seen:     make(map[defectKey]bool),
		out:      &out,
	}
	for _, e := range bd.Escapes {
		w.escapes[e.Site.Node] = e.Kind
	}
	for _, a := range bd.Allocs {
		if a.Kind == hir.AllocRealloc {
			w.reallocs[a.Site.Node] = true
		}
	}
	for _, p := range paths {
		w.walk(p)
	}
	return out
}

func (w *pathWalker) defect(kind DefectKind, n *dataflow.Node, detail string) {
	key := defectKey{kind: kind, node: n.HIR}
	if w.seen[key] {
		return
	}
	w.seen[key] = true
	w.out.defects = append(w.out.defects, Defect{Kind: kind, Node: n.HIR, Span: n.Span, Detail: detail})
}

func (w *pathWalker) walk(p dataflow.Path) {
	st := stNone
	// A parameter the function frees is owned for the double-free check but
	// never reported as leaked.
	owned := false
	if w.bd.Param && len(w.bd.Frees) > 0 {
		st = stLive
	}
	var allocNode *dataflow.Node
	for i, idx := range p.Nodes {
		n := w.g.Node(idx)
		if n.Local != w.bd.Local {
			continue
		}
		switch n.Kind {
		case dataflow.NodeAllocation, dataflow.NodeArrayAllocation:
			if st == stLive && owned && !w.reallocs[n.HIR] {
				w.defect(DefectForgottenFree, allocNode, "allocation overwritten before it is freed")
			}
			st, owned, allocNode = stLive, true, n
			w.out.allocated = true
		case dataflow.NodeAssignment:
			if w.followedByAlloc(p.Nodes, i) {
				continue
			}
			if st == stLive && owned {
				w.defect(DefectForgottenFree, allocNode, "allocation overwritten before it is freed")
			}
			st, owned = stNone, false
		case dataflow.NodeFree:
			switch st {
			case stFreed:
				w.defect(DefectDoubleFree, n, "freed again on this path")
			case stLive:
				st = stFreed
			}
		case dataflow.NodeDereference, dataflow.NodeWrite, dataflow.NodeIndexing:
			if st == stFreed {
				w.defect(DefectUseAfterFree, n, "dereferenced after free")
			}
		case dataflow.NodeReturn:
			if st == stFreed {
				w.defect(DefectUseAfterFree, n, "returned after free")
			}
			if st == stLive {
				st = stMoved
			}
		case dataflow.NodeEscape:
			kind, ok := w.escapes[n.HIR]
			switch {
			case st == stFreed:
				w.defect(DefectUseAfterFree, n, "used after free")
			case st != stLive || !ok:
			case kind == dataflow.EscapeReturn:
				st = stMoved
			default:
				st = stEscaped
			}
		case dataflow.NodeNullBranch:
			if st == stLive {
				st = stExcused
			}
		}
	}
	if st == stLive && owned {
		w.defect(DefectForgottenFree, allocNode, "allocation neither freed nor returned on some path")
	}
}

// followedByAlloc reports the assignment half of `p = malloc(..)`, whose
// allocation node comes next on the path.
func (w *pathWalker) followedByAlloc(nodes []dataflow.NodeIndex, i int) bool {
	if i+1 >= len(nodes) {
		return false
	}
	n := w.g.Node(nodes[i+1])
	return n.Local == w.bd.Local && (n.Kind == dataflow.NodeAllocation || n.Kind == dataflow.NodeArrayAllocation)
}
