package codegen

import (
	"strconv"
	"strings"

	"decant/internal/hir"
	"decant/internal/patterns"
)

func (fe *funcEmitter) spawnAt(id hir.NodeID) *patterns.Spawn {
	return fe.hints.SpawnAt(id)
}

// spawn renders a fork/exec/wait sequence as std::process::Command and
// returns the index of the last statement it consumed.
func (fe *funcEmitter) spawn(sp *patterns.Spawn, list []hir.Stmt, i int) int {
	ifID := hir.NoNodeID
	if sp.List != nil && sp.If < len(*sp.List) {
		ifID = (*sp.List)[sp.If].ID
	}
	end := -1
	for j := i + 1; j < len(list); j++ {
		if list[j].ID == ifID {
			end = j
			break
		}
	}
	if end < 0 {
		fe.raw(fe.sink.comment(sp.Span, "fork", "fork without a matching child branch"))
		return i
	}
	name := "spawned"
	fe.spawns++
	if fe.spawns > 1 {
		name += strconv.Itoa(fe.spawns)
	}
	fe.spawnNames[sp.ForkStmt] = name
	fe.stmts(list[i+1 : end])

	var b strings.Builder
	b.WriteString("std::process::Command::new(")
	b.WriteString(fe.expr(sp.Program, "&str"))
	b.WriteString(")")
	for _, a := range sp.Args {
		b.WriteString(".arg(")
		b.WriteString(fe.expr(a, "&str"))
		b.WriteString(")")
	}
	if sp.Argv != nil {
		b.WriteString(fe.argv(sp.Argv))
	}
	b.WriteString(".status()")
	fe.line("let %s = %s;", name, b.String())
	if sp.Error != nil {
		fe.line("if %s.is_err() {", name)
		fe.nested(sp.Error)
		fe.line("}")
	}
	if sp.Parent != nil {
		fe.block(sp.Parent)
	}
	return end
}

// argv renders the arguments of an execv-style vector, argv[0] excluded.
func (fe *funcEmitter) argv(v *hir.Expr) string {
	v = v.StripCasts()
	if l, ok := v.LocalRef(); ok {
		if l == fe.argvLocal {
			return ".args(&" + fe.localName(l) + "[1..])"
		}
		if init := fe.declInit(l); init != nil {
			if il, ok := init.Data.(hir.InitListData); ok {
				var args []string
				for k, it := range il.Items {
					if k == 0 || it.Value == nil || it.Value.StripCasts().IsNull() {
						continue
					}
					args = append(args, fe.expr(it.Value, "&str"))
				}
				if len(args) == 0 {
					return ""
				}
				return ".args([" + strings.Join(args, ", ") + "])"
			}
		}
	}
	code, ty := fe.render(v, "")
	if isRaw(ty) {
		return fe.sink.inline(v.Span, "raw-argv", ".args(std::slice::from_raw_parts("+code+", 0))", "argument vector behind a raw pointer")
	}
	return ".args(" + code + "[1..].iter().flatten())"
}

// declInit returns the initialiser of local l.
func (fe *funcEmitter) declInit(l hir.LocalID) *hir.Expr {
	var init *hir.Expr
	hir.Inspect(fe.body, func(s *hir.Stmt) bool {
		if d, ok := s.Data.(hir.DeclData); ok && d.Local == l {
			init = d.Init
			return false
		}
		return init == nil
	}, nil)
	return init
}

// waitStmt renders the wait of a spawned process as reading its exit
// status.
func (fe *funcEmitter) waitStmt(s *hir.Stmt) {
	sp := fe.waits[s.ID]
	name, ok := fe.spawnNames[sp.ForkStmt]
	if !ok {
		fe.raw(fe.sink.comment(s.Span, "wait", "wait without a translated spawn"))
		return
	}
	if !sp.Status.IsValid() || fe.skip[sp.Status] {
		fe.line("// %s has already been waited for", name)
		return
	}
	fe.line("%s = %s.as_ref().map_or(-1, |s| s.code().unwrap_or(-1));", fe.localName(sp.Status), name)
}
