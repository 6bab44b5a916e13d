package hir

import "decant/internal/source"

// ExprKind enumerates HIR expression kinds.
type ExprKind uint8

const (
	ExprLiteral ExprKind = iota
	ExprVarRef
	ExprUnary
	ExprBinary
	ExprAssign
	ExprCall
	ExprField
	ExprIndex
	ExprCast
	ExprSizeof
	ExprTernary
	ExprInitList
	ExprAlloc
)

func (k ExprKind) String() string {
	switch k {
	case ExprLiteral:
		return "Literal"
	case ExprVarRef:
		return "VarRef"
	case ExprUnary:
		return "Unary"
	case ExprBinary:
		return "Binary"
	case ExprAssign:
		return "Assign"
	case ExprCall:
		return "Call"
	case ExprField:
		return "Field"
	case ExprIndex:
		return "Index"
	case ExprCast:
		return "Cast"
	case ExprSizeof:
		return "Sizeof"
	case ExprTernary:
		return "Ternary"
	case ExprInitList:
		return "InitList"
	case ExprAlloc:
		return "Alloc"
	default:
		return "Unknown"
	}
}

// Expr represents an HIR expression. Type is the static C type computed by
// the bridge; nil when it could not be determined (calls to unknown functions).
type Expr struct {
	ID   NodeID
	Kind ExprKind
	Type *Type
	Span source.Span
	Data ExprData
}

// ExprData is implemented by every expression payload.
type ExprData interface {
	exprData()
}

// LitKind distinguishes literal payloads.
type LitKind uint8

const (
	LitInt LitKind = iota
	LitFloat
	LitChar
	LitString
	LitNull
)

type LiteralData struct {
	Kind  LitKind
	Int   int64
	Float float64
	Text  string // source spelling; decoded contents for strings
}

func (LiteralData) exprData() {}

// RefKind says what a name resolved to.
type RefKind uint8

const (
	RefLocal RefKind = iota
	RefGlobal
	RefFunc
	RefEnumConst
	RefMacro
	RefExtern // declared elsewhere (stderr, errno, ...)
)

type VarRefData struct {
	Name   string
	Ref    RefKind
	Local  LocalID
	Global GlobalID
	Func   FuncID
	Value  int64 // RefEnumConst
}

func (VarRefData) exprData() {}

// UnaryOp enumerates prefix and postfix operators.
type UnaryOp uint8

const (
	UnNeg UnaryOp = iota
	UnPlus
	UnNot
	UnBitNot
	UnDeref
	UnAddr
	UnPreInc
	UnPreDec
	UnPostInc
	UnPostDec
)

func (op UnaryOp) String() string {
	switch op {
	case UnNeg:
		return "-"
	case UnPlus:
		return "+"
	case UnNot:
		return "!"
	case UnBitNot:
		return "~"
	case UnDeref:
		return "*"
	case UnAddr:
		return "&"
	case UnPreInc, UnPostInc:
		return "++"
	case UnPreDec, UnPostDec:
		return "--"
	default:
		return "?"
	}
}

// IsIncDec reports the four increment/decrement forms.
func (op UnaryOp) IsIncDec() bool { return op >= UnPreInc }

type UnaryData struct {
	Op      UnaryOp
	Operand *Expr
}

func (UnaryData) exprData() {}

// BinaryOp enumerates binary operators.
type BinaryOp uint8

const (
	BinAdd BinaryOp = iota
	BinSub
	BinMul
	BinDiv
	BinMod
	BinShl
	BinShr
	BinLt
	BinLe
	BinGt
	BinGe
	BinEq
	BinNe
	BinBitAnd
	BinBitOr
	BinBitXor
	BinLogAnd
	BinLogOr
)

var binaryOpText = [...]string{
	BinAdd: "+", BinSub: "-", BinMul: "*", BinDiv: "/", BinMod: "%",
	BinShl: "<<", BinShr: ">>",
	BinLt: "<", BinLe: "<=", BinGt: ">", BinGe: ">=", BinEq: "==", BinNe: "!=",
	BinBitAnd: "&", BinBitOr: "|", BinBitXor: "^", BinLogAnd: "&&", BinLogOr: "||",
}

func (op BinaryOp) String() string {
	if int(op) < len(binaryOpText) {
		return binaryOpText[op]
	}
	return "?"
}

// IsComparison reports relational and equality operators.
func (op BinaryOp) IsComparison() bool { return op >= BinLt && op <= BinNe }

// IsLogical reports && and ||.
func (op BinaryOp) IsLogical() bool { return op == BinLogAnd || op == BinLogOr }

type BinaryData struct {
	Op    BinaryOp
	Left  *Expr
	Right *Expr
}

func (BinaryData) exprData() {}

// CallData is a direct call (Callee set) or a call through a function
// pointer expression (Target set).
type CallData struct {
	Callee string
	Func   FuncID // module function, when resolved
	Target *Expr
	Args   []*Expr
}

func (CallData) exprData() {}

type FieldData struct {
	Object *Expr
	Field  string
	Arrow  bool
}

func (FieldData) exprData() {}

type IndexData struct {
	Object *Expr
	Index  *Expr
}

func (IndexData) exprData() {}

type CastData struct {
	Target *Type
	Value  *Expr
}

func (CastData) exprData() {}

// SizeofData holds exactly one of Of or Value.
type SizeofData struct {
	Of    *Type
	Value *Expr
}

func (SizeofData) exprData() {}

type TernaryData struct {
	Cond *Expr
	Then *Expr
	Else *Expr
}

func (TernaryData) exprData() {}

// InitItem is one element of a brace initialiser, optionally designated.
type InitItem struct {
	Field string // .field = ...
	Index *Expr  // [i] = ...
	Value *Expr
}

// InitListData is a brace initialiser or a compound literal (Compound set).
type InitListData struct {
	Items    []InitItem
	Compound bool
}

func (InitListData) exprData() {}

// AllocKind enumerates recognised allocators.
type AllocKind uint8

const (
	AllocMalloc AllocKind = iota
	AllocCalloc
	AllocRealloc
)

func (k AllocKind) String() string {
	switch k {
	case AllocMalloc:
		return "malloc"
	case AllocCalloc:
		return "calloc"
	case AllocRealloc:
		return "realloc"
	default:
		return "alloc"
	}
}

// AllocData marks a heap allocation. Elem is the element type when the size
// mentions sizeof(T); Count is the element count for array allocations
// (`malloc(n * sizeof(T))`, `calloc(n, sizeof(T))`), nil for single objects.
// For malloc and realloc Count is a copy of the factor inside Size, numbered
// as a node of its own; analyses read the count through Size.
type AllocData struct {
	Kind   AllocKind
	Callee string
	Size   *Expr
	Count  *Expr
	Elem   *Type
	Ptr    *Expr // realloc source
}

func (AllocData) exprData() {}

// IsArray reports whether the allocation is of several elements.
func (d AllocData) IsArray() bool { return d.Count != nil || d.Kind == AllocRealloc }

// IsNull reports the NULL literal (including `(void*)0` after the bridge).
func (e *Expr) IsNull() bool {
	if e == nil || e.Kind != ExprLiteral {
		return false
	}
	lit, ok := e.Data.(LiteralData)
	return ok && lit.Kind == LitNull
}

// IntValue returns the value of an integer literal.
func (e *Expr) IntValue() (int64, bool) {
	if e == nil || e.Kind != ExprLiteral {
		return 0, false
	}
	lit, ok := e.Data.(LiteralData)
	if !ok || (lit.Kind != LitInt && lit.Kind != LitChar) {
		return 0, false
	}
	return lit.Int, true
}

// LocalRef returns the binding referenced by a plain variable expression.
func (e *Expr) LocalRef() (LocalID, bool) {
	if e == nil || e.Kind != ExprVarRef {
		return NoLocalID, false
	}
	ref, ok := e.Data.(VarRefData)
	if !ok || ref.Ref != RefLocal {
		return NoLocalID, false
	}
	return ref.Local, true
}

// StripCasts removes any number of enclosing casts.
func (e *Expr) StripCasts() *Expr {
	for e != nil && e.Kind == ExprCast {
		e = e.Data.(CastData).Value
	}
	return e
}

// Children returns direct sub-expressions in evaluation order.
func (e *Expr) Children() []*Expr {
	var out []*Expr
	add := func(xs ...*Expr) {
		for _, x := range xs {
			if x != nil {
				out = append(out, x)
			}
		}
	}
	switch d := e.Data.(type) {
	case UnaryData:
		add(d.Operand)
	case BinaryData:
		add(d.Left, d.Right)
	case AssignData:
		add(d.Target, d.Value)
	case CallData:
		add(d.Target)
		add(d.Args...)
	case FieldData:
		add(d.Object)
	case IndexData:
		add(d.Object, d.Index)
	case CastData:
		add(d.Value)
	case SizeofData:
		add(d.Value)
	case TernaryData:
		add(d.Cond, d.Then, d.Else)
	case InitListData:
		for _, it := range d.Items {
			add(it.Index, it.Value)
		}
	case AllocData:
		add(d.Ptr, d.Size, d.Count)
	}
	return out
}
