package patterns

import (
	"slices"
	"strings"

	"decant/internal/hir"
	"decant/internal/source"
)

// Spawn is a `pid = fork()` whose child only execs and whose parent
// waits. It maps onto a single process-spawn call.
type Spawn struct {
	List     *[]hir.Stmt // statement list holding the fork
	Fork     int         // index of the fork statement in List
	If       int         // index of the if testing the child branch
	ForkStmt hir.NodeID
	Pid      hir.LocalID

	Exec    string
	Program *hir.Expr
	Args    []*hir.Expr // execl family, without argv[0] and the NULL terminator
	Argv    *hir.Expr   // execv family argument vector, argv[0] first

	Error  *hir.Block // the optional leading `pid < 0` arm
	Parent *hir.Block // the parent branch, nil when the parent continues after the if

	Wait    hir.NodeID // the wait/waitpid statement
	Status  hir.LocalID
	HasWait bool
	Span    source.Span
}

var (
	listExecs   = []string{"execl", "execlp", "execle"}
	vectorExecs = []string{"execv", "execvp", "execve", "execvpe"}
	childExits  = []string{"_exit", "exit", "abort", "perror", "fprintf", "printf", "puts", "fputs"}
)

func (d *detector) spawns() []Spawn {
	var out []Spawn
	var visit func(list *[]hir.Stmt)
	visit = func(list *[]hir.Stmt) {
		for i := range *list {
			if sp, ok := d.spawnAt(list, i); ok {
				out = append(out, sp)
			}
			forEachList(&(*list)[i], visit)
		}
	}
	visit(&d.fn.Body.Stmts)
	return out
}

// forEachList calls fn for every statement list directly nested in s.
func forEachList(s *hir.Stmt, fn func(*[]hir.Stmt)) {
	block := func(b *hir.Block) {
		if b != nil {
			fn(&b.Stmts)
		}
	}
	switch d := s.Data.(type) {
	case hir.IfData:
		block(d.Then)
		block(d.Else)
	case hir.WhileData:
		block(d.Body)
	case hir.DoWhileData:
		block(d.Body)
	case hir.ForData:
		block(d.Body)
	case hir.SwitchData:
		for i := range d.Cases {
			fn(&d.Cases[i].Body)
		}
	case hir.BlockData:
		block(d.Block)
	}
}

func (d *detector) spawnAt(list *[]hir.Stmt, i int) (Spawn, bool) {
	stmts := *list
	if i+1 >= len(stmts) {
		return Spawn{}, false
	}
	pid, ok := forkAssign(&stmts[i])
	if !ok {
		return Spawn{}, false
	}
	ifs, ok := stmts[i+1].Data.(hir.IfData)
	if !ok {
		return Spawn{}, false
	}
	sp := Spawn{List: list, Fork: i, If: i + 1, ForkStmt: stmts[i].ID, Pid: pid, Span: stmts[i].Span}
	condRefs := exprRefs(ifs.Cond, pid)

	var child *hir.Block
	switch {
	case childTest(ifs.Cond, pid):
		child, sp.Parent = ifs.Then, ifs.Else
	case errorTest(ifs.Cond, pid):
		inner, ok := elseIf(ifs.Else)
		if !ok || !childTest(inner.Cond, pid) {
			return Spawn{}, false
		}
		sp.Error = ifs.Then
		child, sp.Parent = inner.Then, inner.Else
		condRefs += exprRefs(inner.Cond, pid)
	default:
		return Spawn{}, false
	}
	if !d.childExecs(child, &sp) {
		return Spawn{}, false
	}

	waitRefs := 0
	if sp.Parent != nil {
		waitRefs, sp.HasWait = d.findWait(sp.Parent.Stmts, pid, &sp)
	}
	if !sp.HasWait {
		waitRefs, sp.HasWait = d.findWait(stmts[i+2:], pid, &sp)
	}
	if !sp.HasWait {
		return Spawn{}, false
	}
	// the pid is only tested and waited on; anything else needs a real pid
	assignRefs := 0
	if _, isAssign := stmts[i].Data.(hir.AssignData); isAssign {
		assignRefs = 1
	}
	if d.refs(pid) != condRefs+waitRefs+assignRefs {
		return Spawn{}, false
	}
	return sp, true
}

func forkAssign(s *hir.Stmt) (hir.LocalID, bool) {
	isFork := func(e *hir.Expr) bool {
		c, ok := e.StripCasts().Data.(hir.CallData)
		return ok && c.Target == nil && c.Callee == "fork" && len(c.Args) == 0
	}
	switch d := s.Data.(type) {
	case hir.DeclData:
		if d.Init != nil && isFork(d.Init) {
			return d.Local, true
		}
	case hir.AssignData:
		if l, ok := d.Target.LocalRef(); ok && !d.Compound && isFork(d.Value) {
			return l, true
		}
	}
	return hir.NoLocalID, false
}

func isPid(e *hir.Expr, pid hir.LocalID) bool {
	l, ok := e.StripCasts().LocalRef()
	return ok && l == pid
}

func isConst(e *hir.Expr, v int64) bool {
	x, ok := ConstInt(e)
	return ok && x == v
}

// childTest matches `pid == 0`, `0 == pid` and `!pid`.
func childTest(cond *hir.Expr, pid hir.LocalID) bool {
	switch d := cond.StripCasts().Data.(type) {
	case hir.BinaryData:
		return d.Op == hir.BinEq &&
			(isPid(d.Left, pid) && isConst(d.Right, 0) || isConst(d.Left, 0) && isPid(d.Right, pid))
	case hir.UnaryData:
		return d.Op == hir.UnNot && isPid(d.Operand, pid)
	}
	return false
}

// errorTest matches `pid < 0`, `pid == -1` and `0 > pid`.
func errorTest(cond *hir.Expr, pid hir.LocalID) bool {
	d, ok := cond.StripCasts().Data.(hir.BinaryData)
	if !ok {
		return false
	}
	switch d.Op {
	case hir.BinLt:
		return isPid(d.Left, pid) && isConst(d.Right, 0)
	case hir.BinGt:
		return isConst(d.Left, 0) && isPid(d.Right, pid)
	case hir.BinEq:
		return isPid(d.Left, pid) && isConst(d.Right, -1)
	}
	return false
}

func elseIf(b *hir.Block) (hir.IfData, bool) {
	if b == nil || len(b.Stmts) != 1 {
		return hir.IfData{}, false
	}
	d, ok := b.Stmts[0].Data.(hir.IfData)
	return d, ok
}

// childExecs requires the child to start with an exec call followed only
// by error reporting and exits.
func (d *detector) childExecs(child *hir.Block, sp *Spawn) bool {
	if child == nil || len(child.Stmts) == 0 {
		return false
	}
	es, ok := child.Stmts[0].Data.(hir.ExprStmtData)
	if !ok {
		return false
	}
	call, ok := es.Expr.StripCasts().Data.(hir.CallData)
	if !ok || call.Target != nil || len(call.Args) < 2 {
		return false
	}
	switch {
	case slices.Contains(listExecs, call.Callee):
		args := call.Args[2:]
		if call.Callee == "execle" && len(args) > 0 {
			args = args[:len(args)-1]
		}
		if len(args) == 0 || !args[len(args)-1].StripCasts().IsNull() {
			return false
		}
		sp.Args = args[:len(args)-1]
	case slices.Contains(vectorExecs, call.Callee):
		sp.Argv = call.Args[1]
	default:
		return false
	}
	sp.Exec, sp.Program = call.Callee, call.Args[0]
	for _, s := range child.Stmts[1:] {
		switch x := s.Data.(type) {
		case hir.ReturnData:
		case hir.ExprStmtData:
			c, ok := x.Expr.StripCasts().Data.(hir.CallData)
			if !ok || !slices.Contains(childExits, c.Callee) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// findWait looks for a top-level `wait(&st)` or `waitpid(pid, &st, 0)`
// statement and returns the pid references it holds.
func (d *detector) findWait(stmts []hir.Stmt, pid hir.LocalID, sp *Spawn) (int, bool) {
	for _, s := range stmts {
		es, ok := s.Data.(hir.ExprStmtData)
		if !ok {
			continue
		}
		call, ok := es.Expr.StripCasts().Data.(hir.CallData)
		if !ok || call.Target != nil {
			continue
		}
		var status *hir.Expr
		switch {
		case call.Callee == "wait" && len(call.Args) == 1:
			status = call.Args[0]
		case call.Callee == "waitpid" && len(call.Args) == 3:
			if !isPid(call.Args[0], pid) && !isConst(call.Args[0], -1) {
				continue
			}
			status = call.Args[1]
		default:
			continue
		}
		if !status.StripCasts().IsNull() {
			u, ok := status.StripCasts().Data.(hir.UnaryData)
			if !ok || u.Op != hir.UnAddr {
				return 0, false
			}
			l, ok := u.Operand.LocalRef()
			if !ok {
				return 0, false
			}
			sp.Status = l
		}
		sp.Wait = s.ID
		return exprRefs(es.Expr, pid), true
	}
	return 0, false
}

// ProgramName returns the literal program name, if the program is a
// string literal.
func (sp *Spawn) ProgramName() (string, bool) {
	lit, ok := sp.Program.StripCasts().Data.(hir.LiteralData)
	if !ok || lit.Kind != hir.LitString {
		return "", false
	}
	return lit.Text, true
}

// SearchesPath reports the exec variants that search PATH.
func (sp *Spawn) SearchesPath() bool { return strings.HasSuffix(strings.TrimSuffix(sp.Exec, "e"), "p") }
