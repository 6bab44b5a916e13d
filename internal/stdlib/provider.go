// Package stdlib provides libc prototypes, classifications and typedefs so
// the analyses can recognise allocation, I/O, locking and process calls
// without reading real headers.
package stdlib

import (
	"slices"
	"sort"

	"decant/internal/hir"
)

// Class is the behaviour category of a library function.
type Class uint8

const (
	ClassUnknown Class = iota
	ClassAlloc
	ClassCalloc
	ClassRealloc
	ClassFree
	ClassIO
	ClassFormat
	ClassLock
	ClassUnlock
	ClassFork
	ClassExec
	ClassWait
	ClassNonEscaping
)

func (c Class) String() string {
	switch c {
	case ClassAlloc:
		return "alloc"
	case ClassCalloc:
		return "calloc"
	case ClassRealloc:
		return "realloc"
	case ClassFree:
		return "free"
	case ClassIO:
		return "io"
	case ClassFormat:
		return "format"
	case ClassLock:
		return "lock"
	case ClassUnlock:
		return "unlock"
	case ClassFork:
		return "fork"
	case ClassExec:
		return "exec"
	case ClassWait:
		return "wait"
	case ClassNonEscaping:
		return "non-escaping"
	default:
		return "unknown"
	}
}

// IsAllocator reports the three allocation classes.
func (c Class) IsAllocator() bool {
	return c == ClassAlloc || c == ClassCalloc || c == ClassRealloc
}

// NonEscaping reports whether pointer arguments are known not to be
// retained by the callee.
func (c Class) NonEscaping() bool {
	switch c {
	case ClassIO, ClassFormat, ClassLock, ClassUnlock, ClassExec, ClassWait, ClassNonEscaping:
		return true
	}
	return false
}

// Prototype is a library function signature.
type Prototype struct {
	Name     string
	Header   string
	Params   []*hir.Type
	Result   *hir.Type
	Variadic bool
	Class    Class
}

// Signature returns the prototype as a function pointer type.
func (p Prototype) Signature() *hir.Type {
	return &hir.Type{Kind: hir.TFuncPtr, Params: p.Params, Result: p.Result, Variadic: p.Variadic}
}

// Typedef is a header-provided type alias.
type Typedef struct {
	Name   string
	Header string
	Type   *hir.Type
}

// Provider answers signature queries. Implementations must be safe for
// concurrent readers.
type Provider interface {
	Header(name string) []Prototype
	Lookup(fn string) (Prototype, bool)
	Class(fn string) Class
	Typedefs() []Typedef
}

// Table is an immutable Provider built from prototype and typedef lists.
type Table struct {
	byName   map[string]Prototype
	byHeader map[string][]Prototype
	typedefs []Typedef
}

// NewTable indexes protos and typedefs. Later entries win on name clashes.
func NewTable(protos []Prototype, typedefs []Typedef) *Table {
	t := &Table{
		byName:   make(map[string]Prototype, len(protos)),
		byHeader: make(map[string][]Prototype),
		typedefs: slices.Clone(typedefs),
	}
	for _, p := range protos {
		t.byName[p.Name] = p
		t.byHeader[p.Header] = append(t.byHeader[p.Header], p)
	}
	sort.Slice(t.typedefs, func(i, j int) bool { return t.typedefs[i].Name < t.typedefs[j].Name })
	return t
}

func (t *Table) Header(name string) []Prototype {
	return slices.Clone(t.byHeader[name])
}

func (t *Table) Lookup(fn string) (Prototype, bool) {
	p, ok := t.byName[fn]
	return p, ok
}

func (t *Table) Class(fn string) Class {
	return t.byName[fn].Class
}

func (t *Table) Typedefs() []Typedef {
	return slices.Clone(t.typedefs)
}

// Headers lists the known header names in sorted order.
func (t *Table) Headers() []string {
	out := make([]string, 0, len(t.byHeader))
	for h := range t.byHeader {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// TypeNames returns the typedef names a provider contributes to the lexer.
func TypeNames(p Provider) []string {
	tds := p.Typedefs()
	out := make([]string, 0, len(tds))
	for _, td := range tds {
		out = append(out, td.Name)
	}
	return out
}
