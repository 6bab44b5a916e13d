package hir

import "decant/internal/source"

// StmtKind enumerates HIR statement kinds.
type StmtKind uint8

const (
	StmtDecl StmtKind = iota
	StmtExpr
	StmtAssign
	StmtReturn
	StmtBreak
	StmtContinue
	StmtIf
	StmtWhile
	StmtDoWhile
	StmtFor
	StmtSwitch
	StmtBlock
	// StmtFree is a call to a deallocator, lifted out of StmtExpr.
	StmtFree
)

func (k StmtKind) String() string {
	switch k {
	case StmtDecl:
		return "Decl"
	case StmtExpr:
		return "Expr"
	case StmtAssign:
		return "Assign"
	case StmtReturn:
		return "Return"
	case StmtBreak:
		return "Break"
	case StmtContinue:
		return "Continue"
	case StmtIf:
		return "If"
	case StmtWhile:
		return "While"
	case StmtDoWhile:
		return "DoWhile"
	case StmtFor:
		return "For"
	case StmtSwitch:
		return "Switch"
	case StmtBlock:
		return "Block"
	case StmtFree:
		return "Free"
	default:
		return "Unknown"
	}
}

// Stmt represents an HIR statement.
type Stmt struct {
	ID   NodeID
	Kind StmtKind
	Span source.Span
	Data StmtData
}

// StmtData is implemented by every statement payload.
type StmtData interface {
	stmtData()
}

// DeclData declares one local. `int a, b;` becomes two statements.
type DeclData struct {
	Local  LocalID
	Name   string
	Type   *Type
	Init   *Expr // nil when uninitialised; ExprInitList for brace initialisers
	Static bool
}

func (DeclData) stmtData() {}

type ExprStmtData struct {
	Expr *Expr
}

func (ExprStmtData) stmtData() {}

// AssignData is shared by StmtAssign and ExprAssign.
// Compound assignments keep their operator (`a += b` has Op BinAdd).
type AssignData struct {
	Target   *Expr
	Value    *Expr
	Op       BinaryOp
	Compound bool
}

func (AssignData) stmtData() {}
func (AssignData) exprData() {}

type ReturnData struct {
	Value *Expr // nil for bare return
}

func (ReturnData) stmtData() {}

type BreakData struct{}

func (BreakData) stmtData() {}

type ContinueData struct{}

func (ContinueData) stmtData() {}

type IfData struct {
	Cond *Expr
	Then *Block
	Else *Block // nil if absent; `else if` is an Else block holding one If
}

func (IfData) stmtData() {}

type WhileData struct {
	Cond *Expr
	Body *Block
}

func (WhileData) stmtData() {}

type DoWhileData struct {
	Body *Block
	Cond *Expr
}

func (DoWhileData) stmtData() {}

// ForData keeps the C shape. Init lives in Scope, which encloses Body's scope.
type ForData struct {
	Init  []Stmt // zero or more decls/assignments
	Cond  *Expr  // nil means forever
	Post  []Stmt // comma-separated updates become several statements
	Body  *Block
	Scope ScopeID
}

func (ForData) stmtData() {}

// SwitchCase is one label group: `case 1: case 2:` share a SwitchCase.
type SwitchCase struct {
	Values    []*Expr
	IsDefault bool
	Body      []Stmt
	Span      source.Span
}

type SwitchData struct {
	Cond  *Expr
	Cases []SwitchCase
	Scope ScopeID
}

func (SwitchData) stmtData() {}

type BlockData struct {
	Block *Block
}

func (BlockData) stmtData() {}

// FreeData is `free(Ptr)` (or another deallocator named Callee).
type FreeData struct {
	Ptr    *Expr
	Callee string
}

func (FreeData) stmtData() {}

// Exprs returns the statement's own expressions, not those of nested blocks.
func (s *Stmt) Exprs() []*Expr {
	switch d := s.Data.(type) {
	case DeclData:
		if d.Init != nil {
			return []*Expr{d.Init}
		}
	case ExprStmtData:
		return []*Expr{d.Expr}
	case AssignData:
		return []*Expr{d.Target, d.Value}
	case ReturnData:
		if d.Value != nil {
			return []*Expr{d.Value}
		}
	case IfData:
		return []*Expr{d.Cond}
	case WhileData:
		return []*Expr{d.Cond}
	case DoWhileData:
		return []*Expr{d.Cond}
	case ForData:
		if d.Cond != nil {
			return []*Expr{d.Cond}
		}
	case SwitchData:
		out := []*Expr{d.Cond}
		for _, c := range d.Cases {
			out = append(out, c.Values...)
		}
		return out
	case FreeData:
		return []*Expr{d.Ptr}
	}
	return nil
}
