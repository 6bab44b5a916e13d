// Package ownership classifies the pointer bindings of a function into Rust
// ownership kinds from its dataflow graph.
package ownership

import (
	"fmt"

	"decant/internal/dataflow"
	"decant/internal/hir"
	"decant/internal/source"
)

// Kind is the inferred representation of a pointer binding.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindRawPointer
	KindBox
	KindRef
	KindSlice
	KindVec
	KindOptionBox
)

func (k Kind) String() string {
	switch k {
	case KindRawPointer:
		return "RawPointer"
	case KindBox:
		return "Box"
	case KindRef:
		return "Ref"
	case KindSlice:
		return "Slice"
	case KindVec:
		return "Vec"
	case KindOptionBox:
		return "OptionBox"
	default:
		return "Unknown"
	}
}

// Owning reports kinds whose binding owns its allocation.
func (k Kind) Owning() bool { return k == KindBox || k == KindVec || k == KindOptionBox }

// Borrowing reports kinds rendered as Rust references.
func (k Kind) Borrowing() bool { return k == KindRef || k == KindSlice }

// DefectKind enumerates memory-safety defects found by the path proof.
type DefectKind uint8

const (
	DefectDoubleFree DefectKind = iota + 1
	DefectUseAfterFree
	DefectForgottenFree
)

func (k DefectKind) String() string {
	switch k {
	case DefectDoubleFree:
		return "DoubleFree"
	case DefectUseAfterFree:
		return "UseAfterFree"
	case DefectForgottenFree:
		return "ForgottenFree"
	default:
		return "Defect"
	}
}

// Fatal reports defects that rule out every owning kind.
func (k DefectKind) Fatal() bool { return k == DefectDoubleFree || k == DefectUseAfterFree }

type Defect struct {
	Kind   DefectKind
	Node   hir.NodeID
	Span   source.Span
	Detail string
}

// Signal is one condition a rule checked. Hard signals must all hold for
// the rule to apply.
type Signal struct {
	Name string
	Hard bool
	Held bool
}

// Decision is the classification of one pointer binding.
type Decision struct {
	Func       hir.FuncID
	Local      hir.LocalID
	Name       string
	Kind       Kind
	Mutable    bool        // Ref and Slice
	Nullable   bool        // Ref: rendered as Option<&T>
	Length     hir.LocalID // Slice: the paired length parameter
	Rule       int         // winning rule, 0 when none applied
	Confidence float64     // 0 for Unknown
	Reasoning  []string
	Signals    []Signal
	Defects    []Defect
}

func (d *Decision) reason(format string, args ...any) {
	d.Reasoning = append(d.Reasoning, fmt.Sprintf(format, args...))
}

// HasDefect reports whether a defect of kind k was recorded.
func (d *Decision) HasDefect(k DefectKind) bool {
	for _, df := range d.Defects {
		if df.Kind == k {
			return true
		}
	}
	return false
}

// ReturnShape classifies what a function returns.
type ReturnShape uint8

const (
	ReturnValue ReturnShape = iota
	ReturnOptionIndex
	ReturnBorrowed
	ReturnOwned
	ReturnRaw
)

func (s ReturnShape) String() string {
	switch s {
	case ReturnValue:
		return "Value"
	case ReturnOptionIndex:
		return "OptionIndex"
	case ReturnBorrowed:
		return "Borrowed"
	case ReturnOwned:
		return "Owned"
	default:
		return "Raw"
	}
}

// Return is the return-shape decision of a function.
type Return struct {
	Shape    ReturnShape
	Nullable bool          // some return is NULL
	From     []hir.LocalID // parameters (Borrowed, OptionIndex) or locals (Owned) returned
	Kind     Kind          // kind of the returned binding for Owned
	Reason   string
}

// Config tunes inference.
type Config struct {
	MinConfidence float64
	MaxPaths      int
}

func DefaultConfig() Config {
	return Config{MinConfidence: 0.5, MaxPaths: dataflow.DefaultPathLimit}
}

// Table is the side table of one function. Decisions are ordered by LocalID.
type Table struct {
	Func      *hir.Func
	Decisions []*Decision
	Return    Return
	Truncated bool

	byLocal map[hir.LocalID]*Decision
}

// Lookup returns the decision for l, or nil for non-pointer bindings.
func (t *Table) Lookup(l hir.LocalID) *Decision {
	if t == nil {
		return nil
	}
	return t.byLocal[l]
}

// KindOf returns the kind of l, KindUnknown when l has no decision.
func (t *Table) KindOf(l hir.LocalID) Kind {
	if d := t.Lookup(l); d != nil {
		return d.Kind
	}
	return KindUnknown
}

// Defects returns every defect of the function in decision order.
func (t *Table) Defects() []Defect {
	var out []Defect
	for _, d := range t.Decisions {
		out = append(out, d.Defects...)
	}
	return out
}

// Key identifies a binding across a module.
type Key struct {
	Func  hir.FuncID
	Local hir.LocalID
}

// ModuleTable holds the tables of every function of a module.
type ModuleTable struct {
	Tables []*Table // in module function order

	byFunc map[hir.FuncID]*Table
}

func (m *ModuleTable) Func(id hir.FuncID) *Table {
	if m == nil {
		return nil
	}
	return m.byFunc[id]
}

// Lookup returns the decision for k, or nil.
func (m *ModuleTable) Lookup(k Key) *Decision {
	return m.Func(k.Func).Lookup(k.Local)
}

// NewModuleTable indexes tables inferred separately, e.g. in parallel.
func NewModuleTable(tables []*Table) *ModuleTable {
	m := &ModuleTable{Tables: tables, byFunc: make(map[hir.FuncID]*Table, len(tables))}
	for _, t := range tables {
		m.byFunc[t.Func.ID] = t
	}
	return m
}
