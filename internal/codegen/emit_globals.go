package codegen

import (
	"fmt"
	"strings"

	"decant/internal/hir"
)

type globalKind uint8

const (
	globalStatic    globalKind = iota // never written
	globalStr                         // never-written string or string table
	globalMutex                       // written by several functions
	globalStaticMut                   // written by one function, or a pointer
	globalLock                        // a lock with no data bound to it
	globalMember                      // a member of a lock data struct
	globalExtern
)

func (k globalKind) String() string {
	switch k {
	case globalStr:
		return "static-str"
	case globalMutex:
		return "mutex"
	case globalStaticMut:
		return "static-mut"
	case globalLock:
		return "lock"
	case globalMember:
		return "lock-data"
	case globalExtern:
		return "extern"
	default:
		return "static"
	}
}

type globalRepr struct {
	g       *hir.Global
	kind    globalKind
	name    string
	typ     string
	writers []string
	data    *lockData
}

// lockData is a global lock together with the globals it protects,
// emitted as one `Mutex<Data>`.
type lockData struct {
	lock     *hir.Global
	name     string // the static
	typeName string
	members  []*hir.Global
	rw       bool
}

func (d *lockData) method(write bool) string {
	switch {
	case !d.rw:
		return "lock"
	case write:
		return "write"
	default:
		return "read"
	}
}

// GlobalStrategy is the representation chosen for one global.
type GlobalStrategy struct {
	Name     string
	Strategy string
	Writers  []string
	Lock     string `json:",omitempty"`
}

// Globals reports the representation of every module global.
func (g *Generator) Globals() []GlobalStrategy {
	out := make([]GlobalStrategy, 0, len(g.mod.Globals))
	for _, gl := range g.mod.Globals {
		r := g.globals[gl.Name]
		if r == nil {
			continue
		}
		gs := GlobalStrategy{Name: gl.Name, Strategy: r.kind.String(), Writers: r.writers}
		if r.data != nil {
			gs.Lock = r.data.lock.Name
		}
		out = append(out, gs)
	}
	return out
}

func (g *Generator) prepareGlobals() {
	g.globals = make(map[string]*globalRepr, len(g.mod.Globals))
	g.lockData = make(map[string]*lockData)
	writers := g.globalWriters()
	for _, gl := range g.mod.Globals {
		r := &globalRepr{g: gl, name: upperSnake(gl.Name), typ: g.rust(gl.Type), writers: writers[gl.Name]}
		t := g.mod.Resolve(gl.Type)
		switch {
		case gl.Extern && gl.Init == nil:
			r.kind = globalExtern
			r.name = ident(gl.Name)
		case gl.Type.Kind == hir.TTypedef && isLockType(gl.Type.Name):
			r.kind = globalLock
		case len(r.writers) == 0 && stringTable(t):
			r.kind = globalStr
			r.typ = "&str"
			if t.IsArray() {
				r.typ = fmt.Sprintf("[&str; %d]", g.arrayLen(gl))
			}
		case t.IsPointer() || t.Kind == hir.TUnion:
			r.kind = globalStaticMut
		case len(r.writers) == 0:
			r.kind = globalStatic
		case len(r.writers) == 1:
			r.kind = globalStaticMut
		default:
			r.kind = globalMutex
			g.uses |= useMutex
		}
		g.globals[gl.Name] = r
	}
	g.bindLockData()
}

// stringTable matches `const char *s` and `const char *s[]`.
func stringTable(t *hir.Type) bool {
	if t.IsArray() {
		t = t.Elem
	}
	return t.IsCharPointer() && t.Elem.Const
}

func (g *Generator) arrayLen(gl *hir.Global) int {
	t := g.mod.Resolve(gl.Type)
	if t.Len >= 0 {
		return t.Len
	}
	if d, ok := gl.Init.Data.(hir.InitListData); ok {
		return len(d.Items)
	}
	return 0
}

// globalWriters lists, per global, the functions writing it.
func (g *Generator) globalWriters() map[string][]string {
	out := make(map[string][]string)
	for _, fn := range g.mod.Funcs {
		seen := make(map[string]bool)
		mark := func(e *hir.Expr) {
			if name, ok := rootGlobal(e); ok && !seen[name] {
				seen[name] = true
				out[name] = append(out[name], fn.Name)
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
			}
			return true
		})
	}
	return out
}

// rootGlobal strips member and index accesses down to a global. Writes
// through a pointer global do not write the global itself.
func rootGlobal(e *hir.Expr) (string, bool) {
	for e != nil {
		switch d := e.Data.(type) {
		case hir.VarRefData:
			return d.Name, d.Ref == hir.RefGlobal
		case hir.FieldData:
			if d.Arrow {
				return "", false
			}
			e = d.Object
		case hir.IndexData:
			if d.Object.Type.IsPointer() {
				return "", false
			}
			e = d.Object
		case hir.CastData:
			e = d.Value
		default:
			return "", false
		}
	}
	return "", false
}

// bindLockData folds a global lock and the globals it protects into one
// data struct when nothing else shares them.
func (g *Generator) bindLockData() {
	if g.an.Locks == nil {
		return
	}
	owner := make(map[string]string)
	for _, lv := range g.an.Locks.Mapping {
		if !lv.AllGlobal() {
			continue
		}
		lock := g.mod.GlobalByName(lv.Lock.Path)
		lr := g.globals[lv.Lock.Path]
		if lock == nil || lr == nil || lr.kind != globalLock {
			continue
		}
		d := &lockData{
			lock:     lock,
			name:     upperSnake(lock.Name),
			typeName: camel(lock.Name) + "Data",
			rw:       strings.Contains(lock.Type.Name, "rwlock"),
		}
		ok := true
		seen := make(map[string]bool)
		for _, b := range lv.Vars {
			name := pathRoot(b.Var.Path)
			gl := g.mod.GlobalByName(name)
			r := g.globals[name]
			if gl == nil || r == nil || strings.Contains(b.Var.Key, "::") || r.kind == globalLock ||
				r.kind == globalExtern || g.mod.Resolve(gl.Type).IsPointer() {
				ok = false
				break
			}
			if o, taken := owner[name]; taken && o != lock.Name {
				ok = false
				break
			}
			if !seen[name] {
				seen[name] = true
				d.members = append(d.members, gl)
			}
		}
		if !ok || len(d.members) == 0 {
			continue
		}
		for _, m := range d.members {
			owner[m.Name] = lock.Name
			r := g.globals[m.Name]
			r.kind = globalMember
			r.data = d
			r.name = ident(m.Name)
		}
		g.lockData[lock.Name] = d
	}
}

func pathRoot(path string) string {
	if i := strings.IndexAny(path, ".-["); i >= 0 {
		return path[:i]
	}
	return path
}

func (g *Generator) emitGlobals() {
	b := &g.items
	fe := g.moduleEmitter()
	var externs []string
	emitted := false
	for _, gl := range g.mod.Globals {
		r := g.globals[gl.Name]
		switch r.kind {
		case globalExtern:
			externs = append(externs, fmt.Sprintf("static mut %s: %s;", r.name, r.typ))
			continue
		case globalMember:
			continue
		case globalLock:
			if d := g.lockData[gl.Name]; d != nil {
				g.emitLockData(d)
				emitted = true
				continue
			}
			if strings.Contains(gl.Type.Name, "rwlock") {
				g.uses |= useRwLock
				g.line(b, 0, "static %s: RwLock<()> = RwLock::new(());", r.name)
			} else {
				g.uses |= useMutex
				g.line(b, 0, "static %s: Mutex<()> = Mutex::new(());", r.name)
			}
			emitted = true
			continue
		}
		init := g.globalInit(fe, r)
		switch r.kind {
		case globalStatic, globalStr:
			g.line(b, 0, "static %s: %s = %s;", r.name, r.typ, init)
		case globalMutex:
			g.line(b, 0, "static %s: Mutex<%s> = Mutex::new(%s);", r.name, r.typ, init)
		case globalStaticMut:
			reason := "written only by " + strings.Join(r.writers, ", ")
			if g.mod.Resolve(gl.Type).IsPointer() {
				reason = "pointer global"
			}
			g.raw(b, 0, g.fallbacks.comment(gl.Span, "static-mut", "%s is a static mut: %s", gl.Name, reason))
			g.line(b, 0, "static mut %s: %s = %s;", r.name, r.typ, init)
		}
		emitted = true
	}
	if len(externs) > 0 {
		g.line(b, 0, "extern \"C\" {")
		for _, e := range externs {
			g.raw(b, 1, e)
		}
		g.line(b, 0, "}")
		emitted = true
	}
	if emitted {
		b.WriteString("\n")
	}
}

func (g *Generator) globalInit(fe *funcEmitter, r *globalRepr) string {
	gl := r.g
	if r.kind == globalStr {
		return fe.strTable(gl.Init, g.arrayLen(gl), g.mod.Resolve(gl.Type).IsArray())
	}
	if gl.Init != nil {
		return fe.constExpr(gl.Init, gl.Type)
	}
	if z, ok := g.zero(gl.Type); ok {
		return z
	}
	return fe.sink.inline(gl.Span, "zeroed-global", "std::mem::zeroed()", "%s has no constant zero value", gl.Name)
}

func (g *Generator) emitLockData(d *lockData) {
	b := &g.items
	fe := g.moduleEmitter()
	g.line(b, 0, "#[derive(Debug, Default)]")
	g.line(b, 0, "pub struct %s {", d.typeName)
	for _, m := range d.members {
		g.line(b, 1, "pub %s: %s,", ident(m.Name), g.rust(m.Type))
	}
	g.line(b, 0, "}")
	b.WriteString("\n")
	fields := make([]string, len(d.members))
	for i, m := range d.members {
		r := &globalRepr{g: m, kind: globalStatic}
		fields[i] = ident(m.Name) + ": " + g.globalInit(fe, r)
	}
	kind := "Mutex"
	if d.rw {
		kind = "RwLock"
		g.uses |= useRwLock
	} else {
		g.uses |= useMutex
	}
	g.line(b, 0, "static %s: %s<%s> = %s::new(%s { %s });", d.name, kind, d.typeName, kind, d.typeName, strings.Join(fields, ", "))
	b.WriteString("\n")
}

// global renders a read or write of a module global.
func (fe *funcEmitter) global(e *hir.Expr, d hir.VarRefData) (string, string) {
	r := fe.g.globals[d.Name]
	if r == nil {
		return ident(d.Name), fe.g.rust(e.Type)
	}
	switch r.kind {
	case globalMutex:
		if guard, ok := fe.boundGlobals[d.Name]; ok {
			return "(*" + guard + ")", r.typ
		}
		return "(*" + r.name + ".lock().unwrap())", r.typ
	case globalStaticMut, globalExtern:
		if fe.inUnsafe {
			return r.name, r.typ
		}
		if fe.lhs {
			fe.pending = &pendingUnsafe{construct: "static-mut", reason: "write to static mut " + d.Name}
			return r.name, r.typ
		}
		return fe.sink.inline(e.Span, "static-mut", r.name, "read of static mut %s", d.Name), r.typ
	case globalMember:
		for i := len(fe.guards) - 1; i >= 0; i-- {
			if fe.guards[i].data == r.data {
				return fe.guards[i].name + "." + r.name, r.typ
			}
		}
		access := r.data.name + "." + r.data.method(fe.lhs) + "().unwrap()." + r.name
		if fe.lhs {
			fe.pending = &pendingUnsafe{construct: "unguarded-access", reason: d.Name + " written outside " + r.data.lock.Name}
			return access, r.typ
		}
		if fe.inUnsafe {
			return access, r.typ
		}
		return fe.sink.inline(e.Span, "unguarded-access", access, "%s read outside %s", d.Name, r.data.lock.Name), r.typ
	case globalLock:
		return r.name, r.typ
	}
	return r.name, r.typ
}

// mutexRefs counts the Mutex global references of e, by name.
func (fe *funcEmitter) mutexRefs(exprs ...*hir.Expr) map[string]int {
	out := make(map[string]int)
	for _, e := range exprs {
		hir.InspectExpr(e, func(x *hir.Expr) bool {
			if d, ok := x.Data.(hir.VarRefData); ok && d.Ref == hir.RefGlobal {
				if r := fe.g.globals[d.Name]; r != nil && r.kind == globalMutex {
					out[d.Name]++
				}
			}
			return true
		})
	}
	return out
}

// withMutexGuards binds each Mutex global referenced more than once in one
// statement to a single guard, so the statement does not lock twice.
func (fe *funcEmitter) withMutexGuards(refs map[string]int, always bool, f func()) {
	var names []string
	for _, name := range sortedKeys(refs) {
		if _, bound := fe.boundGlobals[name]; bound {
			continue
		}
		if refs[name] > 1 || always {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		f()
		return
	}
	fe.line("{")
	fe.depth++
	for _, name := range names {
		guard := lowerCase(fe.g.globals[name].name) + "_guard"
		fe.line("let mut %s = %s.lock().unwrap();", guard, fe.g.globals[name].name)
		fe.boundGlobals[name] = guard
	}
	f()
	for _, name := range names {
		delete(fe.boundGlobals, name)
	}
	fe.depth--
	fe.line("}")
}
