// Package dataflow builds the per-function pointer graph every inference
// stage reads: where each binding comes from, where it is dereferenced,
// written, freed and where it escapes.
//
// A graph is built by one forward pass over the HIR and is read-only
// afterwards; it is safe to share between goroutines.
package dataflow

import (
	"decant/internal/hir"
	"decant/internal/source"
)

// NodeKind classifies a graph node. Nodes are syntactic occurrences.
type NodeKind uint8

const (
	NodeParameter NodeKind = iota
	NodeAllocation
	NodeArrayAllocation
	NodeAddressOf
	NodeCast
	NodeAssignment
	NodeDereference
	NodeWrite
	NodeFree
	NodeNullCheck
	NodeEscape
	NodeUse
	NodeArithmetic
	NodeIndexing
	NodeReturn
	NodeNullBranch
)

var nodeKindNames = [...]string{
	NodeParameter:       "param",
	NodeAllocation:      "alloc",
	NodeArrayAllocation: "array-alloc",
	NodeAddressOf:       "addr-of",
	NodeCast:            "cast",
	NodeAssignment:      "assign",
	NodeDereference:     "deref",
	NodeWrite:           "write",
	NodeFree:            "free",
	NodeNullCheck:       "null-check",
	NodeEscape:          "escape",
	NodeUse:             "use",
	NodeArithmetic:      "arith",
	NodeIndexing:        "index",
	NodeReturn:          "return",
	NodeNullBranch:      "null-branch",
}

func (k NodeKind) String() string {
	if int(k) < len(nodeKindNames) {
		return nodeKindNames[k]
	}
	return "unknown"
}

// NodeIndex addresses Graph.Nodes.
type NodeIndex uint32

// Node is one event on one binding.
type Node struct {
	Index NodeIndex
	Kind  NodeKind
	Local hir.LocalID
	HIR   hir.NodeID
	Span  source.Span
	Scope hir.ScopeID
}

// EdgeKind distinguishes value flow from binding aliasing.
type EdgeKind uint8

const (
	EdgeFlow EdgeKind = iota
	EdgeAlias
)

type Edge struct {
	From NodeIndex
	To   NodeIndex
	Kind EdgeKind
}

// Origin is where a binding's value came from.
type Origin uint8

const (
	OriginUnknown Origin = iota
	OriginParameter
	OriginAllocation
	OriginArrayAllocation
	OriginAddressOf
	OriginCast
	OriginNull
	OriginAlias
	OriginCall
)

var originNames = [...]string{
	OriginUnknown:         "unknown",
	OriginParameter:       "parameter",
	OriginAllocation:      "allocation",
	OriginArrayAllocation: "array-allocation",
	OriginAddressOf:       "address-of",
	OriginCast:            "cast",
	OriginNull:            "null",
	OriginAlias:           "alias",
	OriginCall:            "call",
}

func (o Origin) String() string {
	if int(o) < len(originNames) {
		return originNames[o]
	}
	return "unknown"
}

// EscapeKind says how a binding leaves the function's control.
type EscapeKind uint8

const (
	EscapeReturn EscapeKind = iota
	EscapeField
	EscapeGlobal
	EscapeCall
)

func (k EscapeKind) String() string {
	switch k {
	case EscapeReturn:
		return "return"
	case EscapeField:
		return "field"
	case EscapeGlobal:
		return "global"
	case EscapeCall:
		return "call"
	default:
		return "unknown"
	}
}

// Site is one occurrence inside the function body.
type Site struct {
	Node    hir.NodeID
	Span    source.Span
	Scope   hir.ScopeID
	Guarded bool // inside a region where the binding is known non-null
}

type Escape struct {
	Kind   EscapeKind
	Site   Site
	Callee string // EscapeCall
	Arg    int
}

// AllocSite is an allocation assigned to a binding.
type AllocSite struct {
	Site
	Kind  hir.AllocKind
	Array bool
	Elem  *hir.Type
}

// CallSite is a call receiving the binding as argument Arg.
type CallSite struct {
	Site
	Callee string
	Arg    int
}

// CastSite is a cast of the binding's value to To.
type CastSite struct {
	Site
	To *hir.Type
}

// Binding summarises one local or parameter.
type Binding struct {
	Local      hir.LocalID
	Name       string
	Type       *hir.Type
	Param      bool
	ParamIndex int
	Pointer    bool

	Origins   []Origin
	AliasOf   []hir.LocalID
	Allocs    []AllocSite
	Derefs    []Site
	Reads     []Site // dereferences that load a value
	Writes    []Site
	Frees     []Site
	Reassigns []Site
	Arith     []Site
	Indexes   []Site
	IndexVars []hir.LocalID
	NullTests []Site
	Addressed []Site // &local
	Escapes   []Escape
	Passed    []CallSite
	Casts     []CastSite

	AssignedNull bool
	IntCast      bool
}

// HasOrigin reports whether o is among the binding's origins.
func (b *Binding) HasOrigin(o Origin) bool {
	for _, x := range b.Origins {
		if x == o {
			return true
		}
	}
	return false
}

// IsHeap reports a binding assigned from an allocator.
func (b *Binding) IsHeap() bool { return len(b.Allocs) > 0 }

// Escaping returns escapes of the given kinds; no kinds means all.
func (b *Binding) Escaping(kinds ...EscapeKind) []Escape {
	if len(kinds) == 0 {
		return b.Escapes
	}
	var out []Escape
	for _, e := range b.Escapes {
		for _, k := range kinds {
			if e.Kind == k {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// EscapesOtherThanReturn reports field, global or call escapes.
func (b *Binding) EscapesOtherThanReturn() bool {
	return len(b.Escaping(EscapeField, EscapeGlobal, EscapeCall)) > 0
}

// DerefsGuarded reports whether every dereference lies inside a region
// gated by a non-null check. It is false when there are no dereferences.
func (b *Binding) DerefsGuarded() bool {
	if len(b.Derefs) == 0 {
		return false
	}
	for _, d := range b.Derefs {
		if !d.Guarded {
			return false
		}
	}
	return true
}

// LengthPair binds a pointer parameter to the integer parameter that
// carries its element count.
type LengthPair struct {
	Ptr     hir.LocalID
	Len     hir.LocalID
	Score   int
	Signals []string
}

// ReturnSite is one return statement.
type ReturnSite struct {
	Site
	Value   *hir.Expr
	Local   hir.LocalID // returns the binding itself
	Derived hir.LocalID // returns &p[i] or p + i
	AddrOf  hir.LocalID // returns &local
	Null    bool
}

// LoopBound records `i < n` style loop conditions and which pointers the
// loop body indexes with i.
type LoopBound struct {
	Loop    hir.NodeID
	Index   hir.LocalID
	Bound   hir.LocalID
	Indexed []hir.LocalID
}

// Graph is the dataflow graph of one function.
type Graph struct {
	Func        *hir.Func
	Module      *hir.Module
	Nodes       []Node
	Edges       []Edge
	Bindings    []*Binding // index = LocalID-1
	LengthPairs []LengthPair
	Returns     []ReturnSite
	Loops       []LoopBound

	byStmt     map[hir.NodeID][]NodeIndex
	nullBranch map[hir.NodeID][]nullAssumption
}

// nullAssumption is the NullBranch node inserted on the arm of an if where
// the tested binding is NULL.
type nullAssumption struct {
	node   NodeIndex
	onThen bool
}

// Binding returns the summary for id, or nil.
func (g *Graph) Binding(id hir.LocalID) *Binding {
	if !id.IsValid() || int(id) > len(g.Bindings) {
		return nil
	}
	return g.Bindings[id-1]
}

// Node returns the node at i.
func (g *Graph) Node(i NodeIndex) *Node { return &g.Nodes[i] }

// StmtNodes returns the nodes produced by a statement's own expressions.
func (g *Graph) StmtNodes(stmt hir.NodeID) []NodeIndex { return g.byStmt[stmt] }

// LengthOf returns the length pair for a pointer parameter.
func (g *Graph) LengthOf(ptr hir.LocalID) (LengthPair, bool) {
	for _, p := range g.LengthPairs {
		if p.Ptr == ptr {
			return p, true
		}
	}
	return LengthPair{}, false
}

// PairedLength reports whether id is the length half of some pair.
func (g *Graph) PairedLength(id hir.LocalID) (LengthPair, bool) {
	for _, p := range g.LengthPairs {
		if p.Len == id {
			return p, true
		}
	}
	return LengthPair{}, false
}

// PointerBindings returns pointer-typed bindings in LocalID order.
func (g *Graph) PointerBindings() []*Binding {
	var out []*Binding
	for _, b := range g.Bindings {
		if b.Pointer {
			out = append(out, b)
		}
	}
	return out
}
