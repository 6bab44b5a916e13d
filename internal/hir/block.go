package hir

import "decant/internal/source"

// Block is a brace-delimited statement list with its own lexical scope.
type Block struct {
	Stmts []Stmt
	Scope ScopeID
	Span  source.Span
}

func (b *Block) IsEmpty() bool {
	return b == nil || len(b.Stmts) == 0
}

// LastStmt returns the last statement in the block, or nil if empty.
func (b *Block) LastStmt() *Stmt {
	if b.IsEmpty() {
		return nil
	}
	return &b.Stmts[len(b.Stmts)-1]
}
