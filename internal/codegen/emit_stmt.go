package codegen

import (
	"fmt"
	"strings"

	"decant/internal/hir"
	"decant/internal/ownership"
)

func (fe *funcEmitter) block(b *hir.Block) {
	if b != nil {
		fe.stmts(b.Stmts)
	}
}

func (fe *funcEmitter) stmts(list []hir.Stmt) {
	for i := 0; i < len(list); i++ {
		s := &list[i]
		if rg, end := fe.regionAt(list, i); rg != nil {
			fe.guarded(rg, list[i+1:end])
			i = end
			continue
		}
		if sp := fe.spawnAt(s.ID); sp != nil {
			i = fe.spawn(sp, list, i)
			continue
		}
		if _, ok := fe.waits[s.ID]; ok {
			fe.waitStmt(s)
			continue
		}
		fe.stmt(s)
	}
}

func (fe *funcEmitter) stmt(s *hir.Stmt) {
	switch d := s.Data.(type) {
	case hir.DeclData:
		fe.decl(s, d)
	case hir.ExprStmtData:
		fe.exprStmt(s, d.Expr)
	case hir.AssignData:
		fe.assignStmt(s, d)
	case hir.ReturnData:
		fe.withMutexGuards(fe.mutexRefs(d.Value), false, func() { fe.ret(s, d) })
	case hir.IfData:
		fe.ifStmt(d, false)
	case hir.WhileData:
		fe.whileStmt(d)
	case hir.DoWhileData:
		fe.doWhile(d)
	case hir.ForData:
		fe.forStmt(d)
	case hir.SwitchData:
		fe.withMutexGuards(fe.mutexRefs(d.Cond), len(fe.mutexRefs(d.Cond)) > 0, func() { fe.switchStmt(d) })
	case hir.BlockData:
		fe.line("{")
		fe.depth++
		fe.block(d.Block)
		fe.depth--
		fe.line("}")
	case hir.FreeData:
		fe.free(s, d)
	case hir.BreakData:
		fe.line("%s;", fe.jump(false))
	case hir.ContinueData:
		fe.line("%s;", fe.jump(true))
	}
}

func (fe *funcEmitter) decl(s *hir.Stmt, d hir.DeclData) {
	l := d.Local
	if fe.skip[l] {
		return
	}
	name := fe.localName(l)
	if _, ok := fe.views[l]; ok {
		fe.line("let %s = %s;", name, fe.localName(fe.views[l]))
		return
	}
	if fe.strbufs[l] {
		fe.line("let mut %s = String::new();", name)
		return
	}
	if d.Static {
		ty := stripLifetimes(fe.g.rust(d.Type))
		init := ""
		fe.withUnsafe(func() {
			if d.Init != nil {
				init = fe.expr(d.Init, ty)
			} else if z, ok := fe.g.zero(d.Type); ok {
				init = z
			} else {
				init = "std::mem::zeroed()"
			}
		})
		fe.raw(fe.sink.comment(s.Span, "static-local", "%s is a function-local static mut", d.Name))
		fe.line("static mut %s: %s = %s;", name, ty, init)
		return
	}
	ty := fe.localType(l)
	if d.Type != nil && d.Type.Kind == hir.TTypedef && isLockType(d.Type.Name) {
		fe.uses |= useMutex
	}
	mut := ""
	if fe.mutated[l] && fe.bindingNeedsMut(l) {
		mut = "mut "
	}
	if d.Init == nil {
		if z, ok := fe.localZero(ty, d.Type); ok {
			fe.line("let %s%s: %s = %s;", mut, name, ty, z)
		} else {
			fe.line("let %s%s: %s;", mut, name, ty)
		}
		return
	}
	fe.withMutexGuards(fe.mutexRefs(d.Init), false, func() {
		fe.line("let %s%s: %s = %s;", mut, name, ty, fe.expr(d.Init, ty))
	})
}

// localZero is the initial value of an uninitialised local.
func (fe *funcEmitter) localZero(ty string, ct *hir.Type) (string, bool) {
	switch {
	case isOption(ty):
		return "None", true
	case isVec(ty):
		return "Vec::new()", true
	case ty == "String":
		return "String::new()", true
	case isBox(ty), isRefTy(ty):
		return "", false
	}
	return fe.g.zero(ct)
}

func (fe *funcEmitter) withUnsafe(f func()) {
	saved := fe.inUnsafe
	fe.inUnsafe = true
	f()
	fe.inUnsafe = saved
}

func (fe *funcEmitter) exprStmt(s *hir.Stmt, e *hir.Expr) {
	switch d := e.Data.(type) {
	case hir.CallData:
		if fe.callStmt(s, e, d) {
			return
		}
	case hir.AssignData:
		fe.assignStmt(s, d)
		return
	case hir.UnaryData:
		if d.Op.IsIncDec() {
			op := "+="
			if d.Op == hir.UnPreDec || d.Op == hir.UnPostDec {
				op = "-="
			}
			one := &hir.Expr{Kind: hir.ExprLiteral, Type: hir.Int, Span: e.Span, Data: hir.LiteralData{Kind: hir.LitInt, Int: 1}}
			fe.withMutexGuards(fe.mutexRefs(d.Operand), false, func() { fe.raw(fe.store(d.Operand, op, one)) })
			return
		}
	case hir.CastData:
		if fe.g.mod.Resolve(d.Target).IsVoid() {
			fe.line("let _ = %s;", fe.expr(d.Value, ""))
			return
		}
	}
	fe.withMutexGuards(fe.mutexRefs(e), false, func() {
		code := fe.expr(e, "")
		if _, ok := e.Data.(hir.CallData); ok {
			fe.line("%s;", code)
			return
		}
		fe.line("let _ = %s;", code)
	})
}

func (fe *funcEmitter) assignStmt(s *hir.Stmt, d hir.AssignData) {
	if a, ok := d.Value.StripCasts().Data.(hir.AllocData); ok && a.Kind == hir.AllocRealloc && !d.Compound {
		if fe.resize(d.Target, a) {
			return
		}
	}
	if call, ok := d.Value.Data.(hir.CallData); ok && !d.Compound && fe.outCallAssign(s, d.Target, d.Value, call) {
		return
	}
	op := "="
	if d.Compound {
		op = d.Op.String() + "="
	}
	fe.withMutexGuards(fe.mutexRefs(d.Target, d.Value), false, func() {
		fe.raw(fe.store(d.Target, op, d.Value))
	})
}

// resize renders `p = realloc(p, n)` on a Vec as an in-place resize.
func (fe *funcEmitter) resize(target *hir.Expr, a hir.AllocData) bool {
	code, ty := fe.render(target, "")
	if !isVec(ty) || a.Ptr == nil || hir.ExprString(a.Ptr.StripCasts()) != hir.ExprString(target) {
		return false
	}
	count := a.Count
	if count == nil {
		count = a.Size
	}
	zero := "Default::default()"
	if a.Elem != nil {
		if z, ok := fe.g.zero(a.Elem); ok {
			zero = z
		}
	} else if isNumeric(inner(ty)) {
		zero = "0"
	}
	fe.line("%s.resize(%s, %s);", code, fe.expr(count, "usize"), zero)
	return true
}

func (fe *funcEmitter) ret(s *hir.Stmt, d hir.ReturnData) {
	if fe.isMain {
		if d.Value == nil {
			fe.line("return;")
			return
		}
		fe.line("std::process::exit(%s);", fe.expr(d.Value, "i32"))
		return
	}
	if len(fe.info.outs) > 0 {
		fe.line("return %s;", fe.outReturn(d.Value))
		return
	}
	if d.Value == nil {
		fe.line("return;")
		return
	}
	want := stripLifetimes(fe.g.returnType(fe.info, false))
	if fe.own != nil && fe.own.Return.Shape == ownership.ReturnOptionIndex {
		fe.line("return %s;", fe.optionIndex(d.Value))
		return
	}
	fe.line("return %s;", fe.expr(d.Value, want))
}

// outReturn renders a return of a function whose output parameters
// became its result.
func (fe *funcEmitter) outReturn(value *hir.Expr) string {
	out := fe.outValue()
	if !fe.info.fallible {
		return out
	}
	if v, ok := value.StripCasts().IntValue(); ok {
		if v == 0 {
			return "Ok(" + out + ")"
		}
		return fmt.Sprintf("Err(%d)", v)
	}
	code := fe.expr(value, "i32")
	return "if " + code + " == 0 { Ok(" + out + ") } else { Err(" + code + ") }"
}

// optionIndex renders the position of a returned element pointer.
func (fe *funcEmitter) optionIndex(v *hir.Expr) string {
	v = v.StripCasts()
	if v.IsNull() || isZero(v) {
		return "None"
	}
	switch d := v.Data.(type) {
	case hir.UnaryData:
		if ix, ok := d.Operand.Data.(hir.IndexData); ok && d.Op == hir.UnAddr {
			return "Some(" + fe.expr(ix.Index, "usize") + ")"
		}
	case hir.BinaryData:
		if d.Op == hir.BinAdd && d.Left.Type.IsPointer() {
			return "Some(" + fe.expr(d.Right, "usize") + ")"
		}
	case hir.VarRefData:
		if d.Ref == hir.RefLocal && fe.fn.Local(d.Local).Param {
			return "Some(0)"
		}
	}
	return fe.sink.inline(v.Span, "option-index", "None", "returned pointer %s is not an element position", hir.ExprString(v))
}

func (fe *funcEmitter) ifStmt(d hir.IfData, chained bool) {
	cond := fe.cond(d.Cond)
	if chained {
		fe.out.WriteString(" else if " + cond + " {\n")
	} else {
		fe.line("if %s {", cond)
	}
	fe.nested(d.Then)
	if d.Else.IsEmpty() {
		fe.line("}")
		return
	}
	if len(d.Else.Stmts) == 1 {
		if inner, ok := d.Else.Stmts[0].Data.(hir.IfData); ok {
			fe.closeBrace()
			fe.ifStmt(inner, true)
			return
		}
	}
	fe.closeBrace()
	fe.out.WriteString(" else {\n")
	fe.nested(d.Else)
	fe.line("}")
}

// closeBrace writes an indented `}` without a newline.
func (fe *funcEmitter) closeBrace() {
	for range fe.depth {
		fe.out.WriteString(fe.g.cfg.Indent)
	}
	fe.out.WriteString("}")
}

func (fe *funcEmitter) nested(b *hir.Block) {
	fe.depth++
	fe.block(b)
	fe.depth--
}

func (fe *funcEmitter) push(f *frame) *frame {
	fe.frames = append(fe.frames, f)
	return f
}

func (fe *funcEmitter) pop() { fe.frames = fe.frames[:len(fe.frames)-1] }

func (fe *funcEmitter) newLabel(prefix string) string {
	fe.labels++
	return fmt.Sprintf("'%s%d", prefix, fe.labels)
}

// labelled prefixes a loop header with its label when a jump used it.
func (f *frame) prefix() string {
	if f.used {
		return f.label + ": "
	}
	return ""
}

// jump renders break or continue. Jumps that leave a labelled block
// must name their target.
func (fe *funcEmitter) jump(cont bool) string {
	blocked := false
	for i := len(fe.frames) - 1; i >= 0; i-- {
		f := fe.frames[i]
		if !f.loop {
			if !cont {
				if f.label != "" {
					f.used = true
					return "break " + f.label
				}
				return "break"
			}
			blocked = blocked || f.label != ""
			continue
		}
		if cont && f.bodyLabel != "" {
			f.bodyUsed = true
			return "break " + f.bodyLabel
		}
		if blocked || f.bodyLabel != "" {
			f.used = true
			if cont {
				return "continue " + f.label
			}
			return "break " + f.label
		}
		if cont {
			return "continue"
		}
		return "break"
	}
	if cont {
		return "continue"
	}
	return "break"
}

// loopBody renders a loop body. With post statements and a continue the
// body goes into a labelled block, so continue still runs them.
func (fe *funcEmitter) loopBody(f *frame, body *hir.Block, post []hir.Stmt, tail func()) string {
	if len(post) > 0 && hasContinue(body.Stmts) {
		f.bodyLabel = fe.newLabel("body")
	}
	return fe.capture(func() {
		fe.depth++
		if f.bodyLabel != "" {
			fe.line("%s: {", f.bodyLabel)
			fe.depth++
		}
		fe.block(body)
		if f.bodyLabel != "" {
			fe.depth--
			fe.line("}")
		}
		fe.stmts(post)
		if tail != nil {
			tail()
		}
		fe.depth--
	})
}

func (fe *funcEmitter) whileStmt(d hir.WhileData) {
	cond := fe.cond(d.Cond)
	f := fe.push(&frame{loop: true, label: fe.newLabel("l")})
	body := fe.loopBody(f, d.Body, nil, nil)
	fe.pop()
	if cond == "true" || cond == "(1 != 0)" {
		fe.line("%sloop {", f.prefix())
	} else {
		fe.line("%swhile %s {", f.prefix(), cond)
	}
	fe.out.WriteString(body)
	fe.line("}")
}

func (fe *funcEmitter) doWhile(d hir.DoWhileData) {
	f := fe.push(&frame{loop: true, label: fe.newLabel("l")})
	tail := func() {
		fe.line("if !(%s) {", fe.cond(d.Cond))
		fe.depth++
		if f.bodyLabel != "" {
			f.used = true
			fe.line("break %s;", f.label)
		} else {
			fe.line("break;")
		}
		fe.depth--
		fe.line("}")
	}
	var body string
	if hasContinue(d.Body.Stmts) {
		f.bodyLabel = fe.newLabel("body")
		body = fe.capture(func() {
			fe.depth++
			fe.line("%s: {", f.bodyLabel)
			fe.nested(d.Body)
			fe.line("}")
			tail()
			fe.depth--
		})
	} else {
		body = fe.loopBody(f, d.Body, nil, tail)
	}
	fe.pop()
	fe.line("%sloop {", f.prefix())
	fe.out.WriteString(body)
	fe.line("}")
}

func (fe *funcEmitter) forStmt(d hir.ForData) {
	if v, from, to, incl, ok := fe.rangeLoop(d); ok {
		f := fe.push(&frame{loop: true, label: fe.newLabel("l")})
		body := fe.loopBody(f, d.Body, nil, nil)
		fe.pop()
		op := ".."
		if incl {
			op = "..="
		}
		fe.line("%sfor %s in %s%s%s {", f.prefix(), fe.localName(v), from, op, to)
		fe.out.WriteString(body)
		fe.line("}")
		return
	}
	scoped := false
	for _, s := range d.Init {
		if s.Kind == hir.StmtDecl {
			scoped = true
		}
	}
	if scoped {
		fe.line("{")
		fe.depth++
	}
	fe.stmts(d.Init)
	cond := "true"
	if d.Cond != nil {
		cond = fe.cond(d.Cond)
	}
	f := fe.push(&frame{loop: true, label: fe.newLabel("l")})
	body := fe.loopBody(f, d.Body, d.Post, nil)
	fe.pop()
	if cond == "true" {
		fe.line("%sloop {", f.prefix())
	} else {
		fe.line("%swhile %s {", f.prefix(), cond)
	}
	fe.out.WriteString(body)
	fe.line("}")
	if scoped {
		fe.depth--
		fe.line("}")
	}
}

// rangeLoop matches `for (T i = a; i < b; i++)` where the body leaves i
// and b alone.
func (fe *funcEmitter) rangeLoop(d hir.ForData) (hir.LocalID, string, string, bool, bool) {
	if len(d.Init) != 1 || len(d.Post) != 1 || d.Cond == nil {
		return 0, "", "", false, false
	}
	decl, ok := d.Init[0].Data.(hir.DeclData)
	if !ok || decl.Init == nil || decl.Static || !decl.Type.IsInteger() {
		return 0, "", "", false, false
	}
	v := decl.Local
	post, ok := d.Post[0].Data.(hir.AssignData)
	if !ok || !post.Compound || post.Op != hir.BinAdd || localOf(post.Target) != v {
		return 0, "", "", false, false
	}
	if one, ok := post.Value.IntValue(); !ok || one != 1 {
		return 0, "", "", false, false
	}
	cmp, ok := d.Cond.Data.(hir.BinaryData)
	if !ok || (cmp.Op != hir.BinLt && cmp.Op != hir.BinLe) || localOf(cmp.Left) != v {
		return 0, "", "", false, false
	}
	if writesLocal(d.Body, v) || !stableBound(d.Body, cmp.Right) {
		return 0, "", "", false, false
	}
	ty := fe.localType(v)
	return v, fe.expr(decl.Init, ty), wrap(fe.expr(cmp.Right, ty)), cmp.Op == hir.BinLe, true
}

// writesLocal reports assignments, increments or address-of of l in b.
func writesLocal(b *hir.Block, l hir.LocalID) bool {
	found := false
	check := func(e *hir.Expr) {
		if r, ok := rootLocal(e); ok && r == l {
			found = true
		}
	}
	hir.Inspect(b, func(s *hir.Stmt) bool {
		if d, ok := s.Data.(hir.AssignData); ok {
			check(d.Target)
		}
		return !found
	}, func(e *hir.Expr) bool {
		switch d := e.Data.(type) {
		case hir.AssignData:
			check(d.Target)
		case hir.UnaryData:
			if d.Op.IsIncDec() || d.Op == hir.UnAddr {
				check(d.Operand)
			}
		}
		return !found
	})
	return found
}

// stableBound reports a loop bound that the body cannot change: a
// constant, or locals the body never writes, with no calls.
func stableBound(b *hir.Block, bound *hir.Expr) bool {
	if hir.HasSideEffects(bound) || hir.ContainsCall(bound) {
		return false
	}
	stable := true
	hir.InspectExpr(bound, func(e *hir.Expr) bool {
		switch d := e.Data.(type) {
		case hir.VarRefData:
			switch d.Ref {
			case hir.RefLocal:
				stable = stable && !writesLocal(b, d.Local)
			case hir.RefGlobal:
				stable = false
			}
		case hir.UnaryData:
			if d.Op == hir.UnDeref {
				stable = false
			}
		case hir.FieldData, hir.IndexData:
			stable = false
		}
		return stable
	})
	return stable
}

// hasContinue finds a continue bound to the enclosing loop.
func hasContinue(list []hir.Stmt) bool {
	for i := range list {
		found := false
		visit(&list[i], func(s *hir.Stmt) {
			if s.Kind == hir.StmtContinue {
				found = true
			}
		})
		if found {
			return true
		}
	}
	return false
}

// visit calls f on s and its nested statements, without entering loops.
func visit(s *hir.Stmt, f func(*hir.Stmt)) {
	f(s)
	each := func(list []hir.Stmt) {
		for i := range list {
			visit(&list[i], f)
		}
	}
	switch d := s.Data.(type) {
	case hir.IfData:
		if d.Then != nil {
			each(d.Then.Stmts)
		}
		if d.Else != nil {
			each(d.Else.Stmts)
		}
	case hir.BlockData:
		each(d.Block.Stmts)
	case hir.SwitchData:
		for _, c := range d.Cases {
			each(c.Body)
		}
	}
}

func (fe *funcEmitter) switchStmt(d hir.SwitchData) {
	ty := fe.natural(d.Cond)
	cond := fe.expr(d.Cond, ty)
	f := &frame{}
	if needsSwitchLabel(d) {
		f.label = fe.newLabel("s")
	}
	fe.push(f)
	type arm struct {
		pats []string
		def  bool
		body []hir.Stmt
	}
	var arms []arm
	var pending []string
	pendingDefault := false
	for i, c := range d.Cases {
		for _, v := range c.Values {
			pending = append(pending, fe.pattern(v, ty))
		}
		pendingDefault = pendingDefault || c.IsDefault
		if len(c.Body) == 0 && i < len(d.Cases)-1 {
			continue
		}
		body := fallThrough(d.Cases, i)
		arms = append(arms, arm{pats: pending, def: pendingDefault, body: body})
		pending, pendingDefault = nil, false
	}
	text := fe.capture(func() {
		fe.depth++
		var deflt *arm
		for i := range arms {
			a := &arms[i]
			if a.def {
				deflt = a
				continue
			}
			fe.arm(strings.Join(a.pats, " | "), a.body)
		}
		if deflt != nil {
			fe.arm("_", deflt.body)
		} else {
			fe.line("_ => {}")
		}
		fe.depth--
	})
	fe.pop()
	if f.label != "" {
		fe.line("%s: {", f.label)
		fe.depth++
	}
	fe.line("match %s {", cond)
	fe.out.WriteString(text)
	fe.line("}")
	if f.label != "" {
		fe.depth--
		fe.line("}")
	}
}

func (fe *funcEmitter) arm(pat string, body []hir.Stmt) {
	if len(body) == 0 {
		fe.line("%s => {}", pat)
		return
	}
	fe.line("%s => {", pat)
	fe.depth++
	fe.stmts(body)
	fe.depth--
	fe.line("}")
}

// pattern renders a case label as a match pattern.
func (fe *funcEmitter) pattern(v *hir.Expr, ty string) string {
	if n, ok := v.StripCasts().IntValue(); ok {
		code, _ := fe.intLiteral(v, n, ty)
		if lit, ok := v.StripCasts().Data.(hir.LiteralData); ok && lit.Kind == hir.LitChar && ty == "u8" {
			code = byteLiteral(n)
		}
		return strings.TrimSuffix(strings.TrimPrefix(code, "("), ")")
	}
	if d, ok := v.Data.(hir.VarRefData); ok && d.Ref == hir.RefEnumConst && !fe.g.isEnumType(ty) {
		return fmt.Sprint(d.Value)
	}
	code, _ := fe.render(v, ty)
	return code
}

// fallThrough collects the statements run by case i: its own and those
// of the following cases until one ends in a jump. A trailing break is
// dropped.
func fallThrough(cases []hir.SwitchCase, i int) []hir.Stmt {
	var out []hir.Stmt
	for ; i < len(cases); i++ {
		out = append(out, cases[i].Body...)
		if n := len(out); n > 0 && terminal(&out[n-1]) {
			break
		}
	}
	if n := len(out); n > 0 && out[n-1].Kind == hir.StmtBreak {
		out = out[:n-1]
	}
	return out
}

func terminal(s *hir.Stmt) bool {
	switch s.Kind {
	case hir.StmtBreak, hir.StmtContinue, hir.StmtReturn:
		return true
	}
	return false
}

// needsSwitchLabel reports a break that leaves the switch before the end
// of its arm.
func needsSwitchLabel(d hir.SwitchData) bool {
	for i := range d.Cases {
		body := fallThrough(d.Cases, i)
		for j := range body {
			found := false
			visit(&body[j], func(s *hir.Stmt) {
				if s.Kind == hir.StmtBreak {
					found = true
				}
			})
			if found {
				return true
			}
		}
	}
	return false
}

func (fe *funcEmitter) free(s *hir.Stmt, d hir.FreeData) {
	ptr := d.Ptr.StripCasts()
	code, ty := fe.render(ptr, "")
	if isBox(ty) || isVec(ty) || (isOption(ty) && isBox(inner(ty))) {
		if _, ok := ptr.Data.(hir.FieldData); ok && isOption(ty) {
			fe.line("%s = None;", code)
			return
		}
		fe.line("// %s is dropped here", hir.ExprString(ptr))
		return
	}
	fe.withUnsafe(func() {
		code, _ = fe.render(ptr, "")
	})
	fe.raw(fe.sink.comment(s.Span, "raw-free", "%s has no proven single owner", hir.ExprString(ptr)))
	fe.line("unsafe { libc::%s(%s as *mut std::ffi::c_void); }", freeName(d.Callee), code)
}

func freeName(callee string) string {
	if callee == "" {
		return "free"
	}
	return callee
}
