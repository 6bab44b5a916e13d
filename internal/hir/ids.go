// Package hir is the typed intermediate representation of a C translation unit.
//
// The tree is built once by internal/bridge and never mutated afterwards.
// Every statement and expression carries a NodeID that is unique within its
// function and stable for identical input; analyses key their side tables by
// these IDs (and by LocalID for bindings) instead of annotating the tree.
package hir

// FuncID identifies a function definition within a Module.
type FuncID uint32

// LocalID identifies a parameter or local variable within a function.
type LocalID uint32

// NodeID identifies a statement or expression within a function (pre-order).
type NodeID uint32

// ScopeID identifies a lexical block within a function. The body is scope 1.
type ScopeID uint32

// GlobalID identifies a file-scope variable.
type GlobalID uint32

// Zero is the sentinel for every ID kind.
const (
	NoFuncID   FuncID   = 0
	NoLocalID  LocalID  = 0
	NoNodeID   NodeID   = 0
	NoScopeID  ScopeID  = 0
	NoGlobalID GlobalID = 0

	FuncScope ScopeID = 1
)

func (id FuncID) IsValid() bool   { return id != NoFuncID }
func (id LocalID) IsValid() bool  { return id != NoLocalID }
func (id NodeID) IsValid() bool   { return id != NoNodeID }
func (id ScopeID) IsValid() bool  { return id != NoScopeID }
func (id GlobalID) IsValid() bool { return id != NoGlobalID }
