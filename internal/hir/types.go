package hir

import (
	"fmt"
	"strings"
)

// TypeKind enumerates HIR type shapes.
type TypeKind uint8

const (
	TVoid TypeKind = iota
	TBool
	TChar
	TShort
	TInt
	TLong
	TLongLong
	TFloat
	TDouble
	TPointer
	TArray
	TStruct
	TUnion
	TEnum
	TTypedef
	TFuncPtr
)

func (k TypeKind) String() string {
	switch k {
	case TVoid:
		return "void"
	case TBool:
		return "bool"
	case TChar:
		return "char"
	case TShort:
		return "short"
	case TInt:
		return "int"
	case TLong:
		return "long"
	case TLongLong:
		return "long long"
	case TFloat:
		return "float"
	case TDouble:
		return "double"
	case TPointer:
		return "pointer"
	case TArray:
		return "array"
	case TStruct:
		return "struct"
	case TUnion:
		return "union"
	case TEnum:
		return "enum"
	case TTypedef:
		return "typedef"
	case TFuncPtr:
		return "fnptr"
	default:
		return "unknown"
	}
}

// Type is an immutable C type. Named types (struct, union, enum, typedef)
// refer to their definition by Name only, so the type graph is acyclic.
type Type struct {
	Kind     TypeKind
	Unsigned bool
	Const    bool
	Elem     *Type   // TPointer, TArray
	Len      int     // TArray; -1 when unsized
	Name     string  // TStruct, TUnion, TEnum, TTypedef
	Params   []*Type // TFuncPtr
	Result   *Type   // TFuncPtr
	Variadic bool    // TFuncPtr
}

var (
	Void   = &Type{Kind: TVoid}
	Bool   = &Type{Kind: TBool}
	Char   = &Type{Kind: TChar}
	Int    = &Type{Kind: TInt}
	UInt   = &Type{Kind: TInt, Unsigned: true}
	Long   = &Type{Kind: TLong}
	ULong  = &Type{Kind: TLong, Unsigned: true}
	Float  = &Type{Kind: TFloat}
	Double = &Type{Kind: TDouble}
)

func PointerTo(elem *Type) *Type { return &Type{Kind: TPointer, Elem: elem} }

func ArrayOf(elem *Type, n int) *Type { return &Type{Kind: TArray, Elem: elem, Len: n} }

func Named(kind TypeKind, name string) *Type { return &Type{Kind: kind, Name: name} }

// WithConst returns a const-qualified copy.
func (t *Type) WithConst() *Type {
	if t == nil || t.Const {
		return t
	}
	c := *t
	c.Const = true
	return &c
}

func (t *Type) IsPointer() bool { return t != nil && t.Kind == TPointer }
func (t *Type) IsArray() bool   { return t != nil && t.Kind == TArray }
func (t *Type) IsVoid() bool    { return t != nil && t.Kind == TVoid }

// IsVoidPointer reports void* (any constness).
func (t *Type) IsVoidPointer() bool { return t.IsPointer() && t.Elem.IsVoid() }

func (t *Type) IsInteger() bool {
	if t == nil {
		return false
	}
	switch t.Kind {
	case TBool, TChar, TShort, TInt, TLong, TLongLong, TEnum:
		return true
	}
	return false
}

func (t *Type) IsFloat() bool { return t != nil && (t.Kind == TFloat || t.Kind == TDouble) }

func (t *Type) IsArithmetic() bool { return t.IsInteger() || t.IsFloat() }

// IsScalar reports arithmetic or pointer types.
func (t *Type) IsScalar() bool { return t.IsArithmetic() || t.IsPointer() }

// IsCharPointer reports char* and const char*.
func (t *Type) IsCharPointer() bool { return t.IsPointer() && t.Elem != nil && t.Elem.Kind == TChar }

// Equal compares structurally, ignoring constness.
func (t *Type) Equal(o *Type) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.Kind != o.Kind || t.Unsigned != o.Unsigned || t.Name != o.Name || t.Len != o.Len {
		return false
	}
	if !t.Elem.Equal(o.Elem) || !t.Result.Equal(o.Result) || len(t.Params) != len(o.Params) {
		return false
	}
	for i := range t.Params {
		if !t.Params[i].Equal(o.Params[i]) {
			return false
		}
	}
	return true
}

// String renders C-like syntax.
func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	var sb strings.Builder
	if t.Const && t.Kind != TPointer {
		sb.WriteString("const ")
	}
	switch t.Kind {
	case TPointer:
		sb.WriteString(t.Elem.String())
		sb.WriteString("*")
		if t.Const {
			sb.WriteString(" const")
		}
	case TArray:
		sb.WriteString(t.Elem.String())
		if t.Len < 0 {
			sb.WriteString("[]")
		} else {
			fmt.Fprintf(&sb, "[%d]", t.Len)
		}
	case TStruct, TUnion, TEnum:
		fmt.Fprintf(&sb, "%s %s", t.Kind, t.Name)
	case TTypedef:
		sb.WriteString(t.Name)
	case TFuncPtr:
		sb.WriteString(t.Result.String())
		sb.WriteString(" (*)(")
		for i, p := range t.Params {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(p.String())
		}
		if t.Variadic {
			sb.WriteString(", ...")
		}
		sb.WriteString(")")
	default:
		if t.Unsigned {
			sb.WriteString("unsigned ")
		}
		sb.WriteString(t.Kind.String())
	}
	return sb.String()
}
