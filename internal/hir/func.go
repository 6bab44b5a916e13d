package hir

import "decant/internal/source"

// Param is a declared function parameter.
type Param struct {
	Name  string
	Local LocalID
	Type  *Type
	Span  source.Span
}

// Local describes one binding: a parameter or a block-scoped variable.
type Local struct {
	ID         LocalID
	Name       string
	Type       *Type
	Scope      ScopeID
	Param      bool
	ParamIndex int // -1 for non-parameters
	Static     bool
	Span       source.Span
}

// Scope is a lexical block. Depth is 0 for the function scope.
type Scope struct {
	ID     ScopeID
	Parent ScopeID
	Depth  int
	Span   source.Span
}

// Func is a function definition. It exclusively owns its body.
type Func struct {
	ID       FuncID
	Name     string
	Params   []Param
	Result   *Type
	Body     *Block
	Locals   []Local // index = LocalID-1
	Scopes   []Scope // index = ScopeID-1
	Variadic bool
	Static   bool
	Span     source.Span
	Nodes    uint32 // highest NodeID assigned
}

// Local returns the binding for id, or nil.
func (f *Func) Local(id LocalID) *Local {
	if !id.IsValid() || int(id) > len(f.Locals) {
		return nil
	}
	return &f.Locals[id-1]
}

// Scope returns the scope for id, or nil.
func (f *Func) Scope(id ScopeID) *Scope {
	if !id.IsValid() || int(id) > len(f.Scopes) {
		return nil
	}
	return &f.Scopes[id-1]
}

// ScopeWithin reports whether inner is outer or nested inside it.
func (f *Func) ScopeWithin(inner, outer ScopeID) bool {
	for id := inner; id.IsValid(); {
		if id == outer {
			return true
		}
		s := f.Scope(id)
		if s == nil {
			return false
		}
		id = s.Parent
	}
	return false
}

// ParamIndex returns the position of the parameter bound to id, or -1.
func (f *Func) ParamIndex(id LocalID) int {
	if l := f.Local(id); l != nil && l.Param {
		return l.ParamIndex
	}
	return -1
}

// Signature returns the function's type as a function pointer type.
func (f *Func) Signature() *Type {
	params := make([]*Type, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.Type
	}
	return &Type{Kind: TFuncPtr, Params: params, Result: f.Result, Variadic: f.Variadic}
}
