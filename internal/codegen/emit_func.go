package codegen

import (
	"fmt"
	"sort"
	"strings"

	"decant/internal/dataflow"
	"decant/internal/hir"
	"decant/internal/lifetime"
	"decant/internal/locks"
	"decant/internal/ownership"
	"decant/internal/patterns"
)

// calleeInfo is the rendered signature shape of a module function, read
// by its own emitter and by every caller.
type calleeInfo struct {
	fn       *hir.Func
	index    int
	own      *ownership.Table
	hints    *patterns.Hints
	lt       *lifetime.Result
	dropped  map[int]bool // parameters removed from the signature
	outs     []patterns.OutParam
	fallible bool
	enums    map[int]*fnEnum
	typeVars map[int]string // void* generics and Fn parameters
	bounds   map[string][]string
	order    []string // type variables in declaration order
}

func (ci *calleeInfo) generic(i int) *patterns.GenericParam {
	if i >= len(ci.fn.Params) {
		return nil
	}
	return ci.hints.Generic(ci.fn.Params[i].Local)
}

// fnEnum is a closed set of functions passed to one parameter.
type fnEnum struct {
	name     string
	variants []string
	funcs    []string
	sig      *hir.Type
}

func (g *Generator) prepareCallees() {
	g.callees = make(map[string]*calleeInfo, len(g.mod.Funcs))
	for i, fn := range g.mod.Funcs {
		ci := &calleeInfo{
			fn:       fn,
			index:    i,
			own:      g.table(i),
			hints:    g.hints(i),
			lt:       g.lifetimes(i),
			dropped:  make(map[int]bool),
			enums:    make(map[int]*fnEnum),
			typeVars: make(map[int]string),
			bounds:   make(map[string][]string),
		}
		if ci.hints != nil {
			ci.outs = ci.hints.OutParams
			for _, op := range ci.outs {
				ci.dropped[op.Index] = true
				ci.fallible = ci.fallible || op.Fallible
			}
			for _, sp := range ci.hints.Slices {
				ci.dropped[sp.LenIndex] = true
			}
			g.genericVars(ci)
		}
		fnVars := 0
		for pi, p := range fn.Params {
			t := g.mod.Resolve(p.Type)
			if t == nil || t.Kind != hir.TFuncPtr {
				continue
			}
			if names, ok := g.an.Index.ArgFuncs(g.mod, fn.Name, pi); ok && len(names) > 0 {
				fe := &fnEnum{name: camel(fn.Name) + camel(p.Name), funcs: names, sig: t}
				fe.variants = variantNames(names)
				ci.enums[pi] = fe
				g.fnEnums = append(g.fnEnums, fe)
				continue
			}
			name := string(rune('F' + fnVars))
			fnVars++
			ci.typeVars[pi] = name
			ci.order = append(ci.order, name)
			ci.bounds[name] = []string{"Fn" + strings.TrimPrefix(g.fnType(t), "fn")}
		}
		g.callees[fn.Name] = ci
	}
}

// genericVars gives void* parameters with the same element type one
// shared type variable.
func (g *Generator) genericVars(ci *calleeInfo) {
	letters := []string{"T", "U", "V", "W"}
	var elems []*hir.Type
	for _, gp := range ci.hints.Generics {
		k := -1
		for j, e := range elems {
			if e.Equal(gp.Elem) {
				k = j
				break
			}
		}
		if k < 0 {
			k = len(elems)
			elems = append(elems, gp.Elem)
		}
		name := fmt.Sprintf("T%d", k+1)
		if k < len(letters) {
			name = letters[k]
		}
		if _, ok := ci.bounds[name]; !ok {
			ci.order = append(ci.order, name)
			ci.bounds[name] = nil
		}
		for _, b := range gp.Bounds.List() {
			if !containsStr(ci.bounds[name], b) {
				ci.bounds[name] = append(ci.bounds[name], b)
			}
		}
		ci.typeVars[gp.Index] = name
	}
	for name, bs := range ci.bounds {
		if containsStr(bs, "Copy") {
			ci.bounds[name] = removeStr(bs, "Clone")
		}
	}
}

func containsStr(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

func removeStr(xs []string, s string) []string {
	out := xs[:0:0]
	for _, x := range xs {
		if x != s {
			out = append(out, x)
		}
	}
	return out
}

func (g *Generator) emitFnEnums() {
	b := &g.items
	fe := g.moduleEmitter()
	for _, en := range g.fnEnums {
		g.line(b, 0, "#[derive(Debug, Clone, Copy, PartialEq, Eq)]")
		g.line(b, 0, "pub enum %s {", en.name)
		for _, v := range en.variants {
			g.line(b, 1, "%s,", v)
		}
		g.line(b, 0, "}")
		b.WriteString("\n")
		params := make([]string, len(en.sig.Params))
		args := make([]string, len(en.sig.Params))
		for i, p := range en.sig.Params {
			args[i] = fmt.Sprintf("a%d", i)
			params[i] = args[i] + ": " + g.rust(p)
		}
		ret := ""
		if r := g.rust(en.sig.Result); r != "" && r != "()" {
			ret = " -> " + r
		}
		g.line(b, 0, "impl %s {", en.name)
		g.line(b, 1, "pub fn call(self, %s)%s {", strings.Join(params, ", "), ret)
		g.line(b, 2, "match self {")
		for i, v := range en.variants {
			call := ident(en.funcs[i]) + "(" + strings.Join(args, ", ") + ")"
			if ci := g.callees[en.funcs[i]]; ci != nil && len(ci.dropped) > 0 {
				call = fe.sink.inline(ci.fn.Span, "fn-enum", call, "%s has a rewritten signature", en.funcs[i])
			}
			g.line(b, 3, "%s::%s => %s,", en.name, v, call)
		}
		g.line(b, 2, "}")
		g.line(b, 1, "}")
		g.line(b, 0, "}")
		b.WriteString("\n")
	}
}

// emitExterns declares prototypes without a body in the module.
func (g *Generator) emitExterns() {
	var decls []string
	for _, p := range g.mod.Prototypes {
		if g.mod.FuncByName(p.Name) != nil || p.Sig == nil {
			continue
		}
		params := make([]string, len(p.Sig.Params))
		for i, t := range p.Sig.Params {
			params[i] = fmt.Sprintf("a%d: %s", i, g.rust(t))
		}
		if p.Sig.Variadic {
			params = append(params, "...")
		}
		ret := ""
		if r := g.rust(p.Sig.Result); r != "" && r != "()" {
			ret = " -> " + r
		}
		decls = append(decls, fmt.Sprintf("fn %s(%s)%s;", ident(p.Name), strings.Join(params, ", "), ret))
	}
	if len(decls) == 0 {
		return
	}
	b := &g.items
	g.line(b, 0, "extern \"C\" {")
	for _, d := range decls {
		g.raw(b, 1, d)
	}
	g.line(b, 0, "}")
	b.WriteString("\n")
}

func (g *Generator) emitSkipped() {
	b := &g.items
	for _, s := range g.an.Skipped {
		g.raw(b, 0, g.fallbacks.comment(s.Span, "skipped-function", "%s was not translated: %s", s.Name, s.Reason))
	}
	if len(g.an.Skipped) > 0 {
		b.WriteString("\n")
	}
}

// frame is an enclosing loop or switch.
type frame struct {
	loop      bool
	label     string
	used      bool
	bodyLabel string // labelled block holding a loop body, for continue
	bodyUsed  bool
}

// activeGuard is a lock data guard in scope.
type activeGuard struct {
	data *lockData
	name string
}

// pendingUnsafe is recorded while rendering an lvalue that needs an
// unsafe statement.
type pendingUnsafe struct {
	construct string
	reason    string
}

// funcEmitter renders one function body.
type funcEmitter struct {
	g     *Generator
	fn    *hir.Func
	body  *hir.Block
	info  *calleeInfo
	own   *ownership.Table
	lt    *lifetime.Result
	lk    *locks.Result
	hints *patterns.Hints
	graph *dataflow.Graph
	sink  *fallbackSink
	out   *strings.Builder
	depth int
	uses  uses

	mutated map[hir.LocalID]bool
	strbufs map[hir.LocalID]bool
	views   map[hir.LocalID]hir.LocalID // typed view → generic parameter
	waits   map[hir.NodeID]*patterns.Spawn
	skip    map[hir.LocalID]bool // locals with no Rust binding
	frames  []*frame
	labels  int
	guards  []activeGuard
	spawns  int

	spawnNames   map[hir.NodeID]string // fork statement → Command result
	boundGlobals map[string]string     // Mutex global → guard bound for the statement
	types        map[hir.LocalID]string

	lhs       bool
	inUnsafe  bool
	pending   *pendingUnsafe
	isMain    bool
	argvLocal hir.LocalID // argv of main
	argc      hir.LocalID
}

// moduleEmitter renders constant expressions outside any function.
func (g *Generator) moduleEmitter() *funcEmitter {
	return &funcEmitter{g: g, sink: &g.fallbacks, out: &strings.Builder{}}
}

func (g *Generator) newFuncEmitter(i int) *funcEmitter {
	fn := g.mod.Funcs[i]
	fe := &funcEmitter{
		g:       g,
		fn:      fn,
		body:    g.body(i).Body,
		info:    g.callees[fn.Name],
		own:     g.table(i),
		lt:      g.lifetimes(i),
		lk:      g.lockResult(i),
		hints:   g.hints(i),
		graph:   g.graph(i),
		sink:    &fallbackSink{fn: fn.Name, files: g.cfg.Files},
		out:     &strings.Builder{},
		waits:   make(map[hir.NodeID]*patterns.Spawn),
		views:   make(map[hir.LocalID]hir.LocalID),
		skip:    make(map[hir.LocalID]bool),
		isMain:  fn.Name == "main",
		strbufs: make(map[hir.LocalID]bool),

		boundGlobals: make(map[string]string),
		types:        make(map[hir.LocalID]string),
		spawnNames:   make(map[hir.NodeID]string),
	}
	fe.mutated = mutatedLocals(fn)
	if fe.hints != nil {
		for _, gp := range fe.hints.Generics {
			for _, v := range gp.Views {
				fe.views[v] = gp.Local
			}
		}
		for k := range fe.hints.Spawns {
			sp := &fe.hints.Spawns[k]
			fe.skip[sp.Pid] = true
			if sp.HasWait {
				fe.waits[sp.Wait] = sp
			}
		}
	}
	fe.findStringBuffers()
	if fe.isMain && len(fn.Params) == 2 {
		fe.argc, fe.argvLocal = fn.Params[0].Local, fn.Params[1].Local
	}
	return fe
}

func (fe *funcEmitter) line(format string, args ...any) {
	fe.g.line(fe.out, fe.depth, format, args...)
}

func (fe *funcEmitter) raw(text string) {
	fe.g.raw(fe.out, fe.depth, text)
}

// capture renders f into a separate buffer.
func (fe *funcEmitter) capture(f func()) string {
	saved := fe.out
	fe.out = &strings.Builder{}
	f()
	text := fe.out.String()
	fe.out = saved
	return text
}

func (fe *funcEmitter) emit() {
	fn := fe.fn
	if fe.g.cfg.EmitReportComments {
		fe.reportComments()
	}
	vis := "pub "
	if fn.Static || fe.isMain {
		vis = ""
	}
	var params []string
	if !fe.isMain {
		for i := range fn.Params {
			if fe.info.dropped[i] {
				continue
			}
			params = append(params, fe.paramDecl(i))
		}
	}
	ret := ""
	if !fe.isMain {
		if r := fe.g.returnType(fe.info, true); r != "" {
			ret = " -> " + r
		}
		if reason, raw := fe.g.rawReturn(fe.info); raw {
			fe.raw(fe.sink.comment(fn.Span, "raw-return", "%s returns a raw pointer: %s", fn.Name, reason))
		}
	}
	fe.line("%sfn %s%s(%s)%s {", vis, ident(fn.Name), fe.g.generics(fe.info), strings.Join(params, ", "), ret)
	fe.depth++
	fe.prologue()
	stmts := fe.body.Stmts
	if fe.isMain && len(stmts) > 0 {
		if rd, ok := stmts[len(stmts)-1].Data.(hir.ReturnData); ok {
			if v, ok := rd.Value.IntValue(); ok && v == 0 {
				stmts = stmts[:len(stmts)-1]
			}
		}
	}
	fe.stmts(stmts)
	fe.epilogue()
	fe.depth--
	fe.line("}")
}

func (fe *funcEmitter) reportComments() {
	if fe.own == nil {
		return
	}
	for _, d := range fe.own.Decisions {
		fe.line("// %s: %s (%.2f)", d.Name, d.Kind, d.Confidence)
	}
	if fe.lt != nil && fe.lt.Signature.OutputReference {
		fe.line("// lifetimes: %s", fe.lt.Signature.Elision)
	}
}

func (fe *funcEmitter) paramDecl(i int) string {
	p := fe.fn.Params[i]
	name := fe.localName(p.Local)
	t := fe.g.paramType(fe.info, i, true)
	if fe.mutated[p.Local] && fe.bindingNeedsMut(p.Local) {
		name = "mut " + name
	}
	return name + ": " + t
}

func (fe *funcEmitter) prologue() {
	if fe.isMain && fe.argvLocal.IsValid() {
		fe.line("let args: Vec<String> = std::env::args().collect();")
		fe.line("let %s: i32 = args.len() as i32;", fe.localName(fe.argc))
	}
	for _, op := range fe.info.outs {
		z, ok := fe.g.zero(op.Elem)
		if !ok {
			z = "Default::default()"
		}
		fe.line("let mut %s: %s = %s;", fe.localName(op.Local), fe.g.rust(op.Elem), z)
	}
}

func (fe *funcEmitter) epilogue() {
	if len(fe.info.outs) == 0 {
		return
	}
	if last := fe.body.LastStmt(); last != nil && last.Kind == hir.StmtReturn {
		return
	}
	if fe.info.fallible {
		fe.line("Ok(%s)", fe.outValue())
		return
	}
	fe.line("%s", fe.outValue())
}

// outValue renders the returned output parameters.
func (fe *funcEmitter) outValue() string {
	names := make([]string, len(fe.info.outs))
	for i, op := range fe.info.outs {
		names[i] = fe.localName(op.Local)
	}
	if len(names) == 1 {
		return names[0]
	}
	return "(" + strings.Join(names, ", ") + ")"
}

func (fe *funcEmitter) localName(l hir.LocalID) string {
	if fe.fn == nil {
		return "_"
	}
	loc := fe.fn.Local(l)
	if loc == nil {
		return "_"
	}
	if loc.Static {
		return upperSnake(fe.fn.Name + "_" + loc.Name)
	}
	return ident(loc.Name)
}

// bindingNeedsMut reports whether mutation of l needs a mutable binding;
// writes through a reference or raw pointer do not.
func (fe *funcEmitter) bindingNeedsMut(l hir.LocalID) bool {
	if d := fe.own.Lookup(l); d != nil {
		switch d.Kind {
		case ownership.KindRef, ownership.KindSlice, ownership.KindRawPointer, ownership.KindUnknown:
			return fe.reassigned(l)
		}
	}
	return true
}

func (fe *funcEmitter) reassigned(l hir.LocalID) bool {
	if fe.graph == nil {
		return true
	}
	b := fe.graph.Binding(l)
	return b == nil || len(b.Reassigns) > 0 || len(b.Addressed) > 0
}

// mutatedLocals finds locals written, incremented or address-taken.
func mutatedLocals(fn *hir.Func) map[hir.LocalID]bool {
	out := make(map[hir.LocalID]bool)
	mark := func(e *hir.Expr) {
		if l, ok := rootLocal(e); ok {
			out[l] = true
		}
	}
	hir.Inspect(fn.Body, func(s *hir.Stmt) bool {
		if d, ok := s.Data.(hir.AssignData); ok {
			mark(d.Target)
		}
		return true
	}, func(e *hir.Expr) bool {
		switch d := e.Data.(type) {
		case hir.AssignData:
			mark(d.Target)
		case hir.UnaryData:
			if d.Op.IsIncDec() || d.Op == hir.UnAddr {
				mark(d.Operand)
			}
		case hir.CallData:
			// a Box or Vec passed by reference to a writing callee
			for _, a := range d.Args {
				if l, ok := a.StripCasts().LocalRef(); ok {
					out[l] = out[l] || a.Type.IsPointer()
				}
			}
		}
		return true
	})
	return out
}

// rootLocal strips fields, indices and dereferences down to a local.
func rootLocal(e *hir.Expr) (hir.LocalID, bool) {
	for e != nil {
		switch d := e.Data.(type) {
		case hir.VarRefData:
			if d.Ref == hir.RefLocal {
				return d.Local, true
			}
			return 0, false
		case hir.FieldData:
			e = d.Object
		case hir.IndexData:
			e = d.Object
		case hir.UnaryData:
			if d.Op != hir.UnDeref {
				return 0, false
			}
			e = d.Operand
		case hir.CastData:
			e = d.Value
		default:
			return 0, false
		}
	}
	return 0, false
}

// findStringBuffers marks local char arrays used only as sprintf targets
// and %s arguments. They become String buffers.
func (fe *funcEmitter) findStringBuffers() {
	candidates := make(map[hir.LocalID]bool)
	for _, loc := range fe.fn.Locals {
		t := fe.g.mod.Resolve(loc.Type)
		if !loc.Param && !loc.Static && t.IsArray() && t.Elem != nil && t.Elem.Kind == hir.TChar {
			candidates[loc.ID] = true
		}
	}
	if len(candidates) == 0 {
		return
	}
	allowed := make(map[hir.NodeID]bool)
	written := make(map[hir.LocalID]bool)
	hir.Inspect(fe.fn.Body, nil, func(e *hir.Expr) bool {
		d, ok := e.Data.(hir.CallData)
		if !ok || d.Target != nil {
			return true
		}
		switch d.Callee {
		case "sprintf", "snprintf":
			if len(d.Args) > 0 {
				allowed[d.Args[0].ID] = true
				if l, ok := d.Args[0].LocalRef(); ok {
					written[l] = true
				}
			}
			for _, a := range d.Args[1:] {
				allowed[a.ID] = true
			}
		case "printf", "fprintf", "puts", "fputs":
			for _, a := range d.Args {
				allowed[a.ID] = true
			}
		}
		return true
	})
	hir.Inspect(fe.fn.Body, func(s *hir.Stmt) bool {
		if d, ok := s.Data.(hir.DeclData); ok && candidates[d.Local] && d.Init != nil {
			delete(candidates, d.Local)
		}
		return true
	}, func(e *hir.Expr) bool {
		if l, ok := e.LocalRef(); ok && candidates[l] && !allowed[e.ID] {
			delete(candidates, l)
		}
		return true
	})
	for l := range candidates {
		if written[l] {
			fe.strbufs[l] = true
		}
	}
}

// paramType renders parameter i of a module function.
func (g *Generator) paramType(ci *calleeInfo, i int, withLifetimes bool) string {
	p := ci.fn.Params[i]
	if tv, ok := ci.typeVars[i]; ok {
		if ci.generic(i) == nil {
			return tv
		}
		lt := ""
		if withLifetimes {
			lt = g.paramLifetime(ci, p.Local)
		}
		if gp := ci.generic(i); gp.Bounds&patterns.BoundClone != 0 && g.genericWritten(ci, gp) {
			return "&" + lt + "mut " + tv
		}
		return "&" + lt + tv
	}
	if en, ok := ci.enums[i]; ok {
		return en.name
	}
	t := g.mod.Resolve(p.Type)
	if t.IsPointer() {
		d := ci.own.Lookup(p.Local)
		lt := ""
		if withLifetimes {
			lt = g.paramLifetime(ci, p.Local)
		}
		return g.pointerType(d, t, lt)
	}
	if sr := g.mod.StructOf(p.Type); sr != nil && withLifetimes {
		if r := g.structs[sr.Name]; r != nil && r.generics() != "" {
			return r.name + "<'_>"
		}
	}
	return g.rust(p.Type)
}

// genericWritten reports a generic parameter written through: an assign
// target or a memcpy destination.
func (g *Generator) genericWritten(ci *calleeInfo, gp *patterns.GenericParam) bool {
	targets := append([]hir.LocalID{gp.Local}, gp.Views...)
	written := false
	is := func(e *hir.Expr) bool {
		e = e.StripCasts()
		if u, ok := e.Data.(hir.UnaryData); ok && u.Op == hir.UnDeref {
			e = u.Operand.StripCasts()
		}
		l, ok := e.LocalRef()
		return ok && containsLocal(targets, l)
	}
	hir.Inspect(ci.fn.Body, func(s *hir.Stmt) bool {
		if d, ok := s.Data.(hir.AssignData); ok && is(d.Target) {
			written = true
		}
		return true
	}, func(e *hir.Expr) bool {
		switch d := e.Data.(type) {
		case hir.AssignData:
			written = written || is(d.Target)
		case hir.CallData:
			if (d.Callee == "memcpy" || d.Callee == "memmove") && len(d.Args) > 0 && is(d.Args[0]) {
				written = true
			}
		}
		return true
	})
	return written
}

func containsLocal(xs []hir.LocalID, l hir.LocalID) bool {
	for _, x := range xs {
		if x == l {
			return true
		}
	}
	return false
}

// paramLifetime returns the annotation prefix ("'a ") of a reference
// parameter, empty when elided.
func (g *Generator) paramLifetime(ci *calleeInfo, l hir.LocalID) string {
	if ci.lt == nil {
		return ""
	}
	sig := &ci.lt.Signature
	switch sig.Elision {
	case lifetime.ElisionExplicit:
		if id := sig.ParamLifetime(l); id != lifetime.NoID {
			return id.String() + " "
		}
	case lifetime.ElisionReceiver:
		if len(sig.Params) > 0 && sig.Params[0].Local == l {
			return sig.Params[0].Lifetime.String() + " "
		}
	}
	return ""
}

// outputLifetime returns the annotation of the returned reference.
func (g *Generator) outputLifetime(ci *calleeInfo) string {
	if ci.lt == nil {
		return ""
	}
	sig := &ci.lt.Signature
	switch sig.Elision {
	case lifetime.ElisionExplicit, lifetime.ElisionReceiver:
		if sig.Output != lifetime.NoID {
			return sig.Output.String() + " "
		}
		if from := returnFrom(ci); len(from) > 0 {
			if id := sig.ParamLifetime(from[0]); id != lifetime.NoID {
				return id.String() + " "
			}
		}
	}
	return ""
}

func returnFrom(ci *calleeInfo) []hir.LocalID {
	if ci.own == nil {
		return nil
	}
	return ci.own.Return.From
}

// generics renders the generic parameter list: lifetimes, then type
// variables with their bounds.
func (g *Generator) generics(ci *calleeInfo) string {
	var parts []string
	if ci.lt != nil {
		sig := &ci.lt.Signature
		switch sig.Elision {
		case lifetime.ElisionExplicit:
			out := strings.TrimSpace(g.outputLifetime(ci))
			for _, p := range sig.Params {
				name := p.Lifetime.String()
				if sig.Output == lifetime.NoID && out != "" && name != out && containsLocal(returnFrom(ci), p.Local) {
					name += ": " + out
				}
				parts = append(parts, name)
			}
		case lifetime.ElisionReceiver:
			if len(sig.Params) > 0 {
				parts = append(parts, sig.Params[0].Lifetime.String())
			}
		}
	}
	for _, tv := range ci.order {
		if bs := ci.bounds[tv]; len(bs) > 0 {
			parts = append(parts, tv+": "+strings.Join(bs, " + "))
		} else {
			parts = append(parts, tv)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "<" + strings.Join(parts, ", ") + ">"
}

// pointerType renders a pointer binding by its ownership decision. lt
// is a lifetime prefix such as "'a ".
func (g *Generator) pointerType(d *ownership.Decision, t *hir.Type, lt string) string {
	if d == nil || t.Elem.IsVoid() {
		return g.rust(t)
	}
	elem := g.rust(t.Elem)
	relem := g.mod.Resolve(t.Elem)
	switch d.Kind {
	case ownership.KindBox:
		return "Box<" + elem + ">"
	case ownership.KindVec:
		return "Vec<" + elem + ">"
	case ownership.KindOptionBox:
		return "Option<Box<" + elem + ">>"
	case ownership.KindRef:
		var ref string
		switch {
		case relem != nil && relem.Kind == hir.TChar && !d.Mutable:
			ref = "&" + lt + "str"
		case d.Mutable:
			ref = "&" + lt + "mut " + elem
		default:
			ref = "&" + lt + elem
		}
		if d.Nullable {
			return "Option<" + ref + ">"
		}
		return ref
	case ownership.KindSlice:
		if d.Mutable {
			return "&" + lt + "mut [" + elem + "]"
		}
		return "&" + lt + "[" + elem + "]"
	}
	return g.rust(t)
}

// rawReturn reports a pointer result that returnType leaves as a raw
// pointer, with the reason.
func (g *Generator) rawReturn(ci *calleeInfo) (string, bool) {
	if len(ci.outs) > 0 || !g.mod.Resolve(ci.fn.Result).IsPointer() {
		return "", false
	}
	if ci.own == nil {
		return "no ownership result", true
	}
	if ci.own.Return.Shape != ownership.ReturnRaw {
		return "", false
	}
	if ci.own.Return.Reason == "" {
		return "returned pointer has no safe provenance", true
	}
	return ci.own.Return.Reason, true
}

// returnType renders the result of a module function.
func (g *Generator) returnType(ci *calleeInfo, withLifetimes bool) string {
	fn := ci.fn
	if len(ci.outs) > 0 {
		types := make([]string, len(ci.outs))
		for i, op := range ci.outs {
			types[i] = g.rust(op.Elem)
		}
		v := types[0]
		if len(types) > 1 {
			v = "(" + strings.Join(types, ", ") + ")"
		}
		if ci.fallible {
			return "Result<" + v + ", i32>"
		}
		return v
	}
	res := g.mod.Resolve(fn.Result)
	if ci.own == nil || !res.IsPointer() {
		if r := g.rust(fn.Result); r != "()" {
			return r
		}
		return ""
	}
	ret := ci.own.Return
	elem := g.rust(res.Elem)
	switch ret.Shape {
	case ownership.ReturnOptionIndex:
		return "Option<usize>"
	case ownership.ReturnBorrowed:
		lt := ""
		if withLifetimes {
			lt = g.outputLifetime(ci)
		}
		mut := false
		for _, l := range ret.From {
			if d := ci.own.Lookup(l); d != nil && d.Mutable {
				mut = true
			}
		}
		var ref string
		switch {
		case res.Elem != nil && g.mod.Resolve(res.Elem).Kind == hir.TChar && !mut:
			ref = "&" + lt + "str"
		case mut:
			ref = "&" + lt + "mut " + elem
		default:
			ref = "&" + lt + elem
		}
		if ret.Nullable {
			return "Option<" + ref + ">"
		}
		return ref
	case ownership.ReturnOwned:
		switch ret.Kind {
		case ownership.KindVec:
			return "Vec<" + elem + ">"
		case ownership.KindOptionBox:
			return "Option<Box<" + elem + ">>"
		}
		if ret.Nullable {
			return "Option<Box<" + elem + ">>"
		}
		return "Box<" + elem + ">"
	}
	return g.rust(fn.Result)
}

// sortedKeys returns map keys in order, for deterministic output.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
