// Package lifetime assigns lifetimes to reference parameters and struct
// fields and resolves output lifetimes by the elision rules.
package lifetime

import (
	"strconv"
	"strings"

	"decant/internal/hir"
	"decant/internal/source"
)

// ID is a lifetime parameter; 1 is 'a. 0 is none.
type ID uint32

const NoID ID = 0

func (id ID) String() string {
	if id == NoID {
		return ""
	}
	n := int(id - 1)
	name := "'" + string(rune('a'+n%26))
	if n >= 26 {
		name += strconv.Itoa(n / 26)
	}
	return name
}

// Elision records how the output lifetime was resolved.
type Elision uint8

const (
	ElisionNone        Elision = iota // no reference output
	ElisionSingleInput                // exactly one input lifetime
	ElisionReceiver                   // receiver-like first parameter
	ElisionExplicit                   // annotations required
)

func (e Elision) String() string {
	switch e {
	case ElisionSingleInput:
		return "single-input"
	case ElisionReceiver:
		return "receiver"
	case ElisionExplicit:
		return "explicit"
	default:
		return "none"
	}
}

// Region is the lifetime of one lexical scope.
type Region struct {
	Scope  hir.ScopeID
	Parent hir.ScopeID
	Depth  int
}

func (r Region) String() string { return "'scope" + strconv.FormatUint(uint64(r.Scope), 10) }

// Param is a reference parameter with its lifetime.
type Param struct {
	Local    hir.LocalID
	Index    int
	Name     string
	Lifetime ID
	Scope    hir.ScopeID
}

type Signature struct {
	Params []Param
	// Output is the lifetime of the returned reference. It is NoID when the
	// function returns no reference or the source is unresolved.
	Output          ID
	OutputReference bool
	Elision         Elision
	Note            string
}

// Explicit reports whether lifetimes must be annotated.
func (s *Signature) Explicit() bool { return s.Elision == ElisionExplicit }

// Resolved reports an output lifetime that is known, elided or not.
func (s *Signature) Resolved() bool { return !s.OutputReference || s.Output != NoID }

// ParamLifetime returns the lifetime of parameter l, NoID when l is not a
// reference.
func (s *Signature) ParamLifetime(l hir.LocalID) ID {
	for _, p := range s.Params {
		if p.Local == l {
			return p.Lifetime
		}
	}
	return NoID
}

// Generics renders `<'a, 'b>`, empty when none are needed.
func (s *Signature) Generics() string {
	if !s.Explicit() || len(s.Params) == 0 {
		return ""
	}
	names := make([]string, len(s.Params))
	for i, p := range s.Params {
		names[i] = p.Lifetime.String()
	}
	return "<" + strings.Join(names, ", ") + ">"
}

// Dangling is a returned reference to storage that dies with the function.
type Dangling struct {
	Node   hir.NodeID
	Span   source.Span
	Local  hir.LocalID
	Reason string
}

// Elevation is a reference created in a nested block whose referent is a
// parameter, so it lives for the whole function.
type Elevation struct {
	Local hir.LocalID
	From  hir.LocalID
	Scope hir.ScopeID
}

// Result is the lifetime analysis of one function.
type Result struct {
	Func      *hir.Func
	Regions   []Region
	Signature Signature
	Dangling  []Dangling
	Elevated  []Elevation
}

// Region returns the region of scope id.
func (r *Result) Region(id hir.ScopeID) (Region, bool) {
	if !id.IsValid() || int(id) > len(r.Regions) {
		return Region{}, false
	}
	return r.Regions[id-1], true
}
