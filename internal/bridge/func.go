package bridge

import (
	"fmt"

	"decant/internal/diag"
	"decant/internal/hir"
	"decant/internal/source"
)

type scopeFrame struct {
	id    hir.ScopeID
	names map[string]hir.LocalID
}

// funcBuilder lowers one function body. The file-scope instance has a nil
// fn; errors raised through it become module-level warnings.
type funcBuilder struct {
	b      *builder
	fn     *hir.Func
	frames []scopeFrame
	err    *ConstructionError
}

func (b *builder) lowerFunc(p pendingFunc) (*hir.Func, *ConstructionError) {
	fn := &hir.Func{
		Name:     p.name,
		Result:   p.sig.Result,
		Variadic: p.sig.Variadic,
		Static:   p.static,
		Span:     p.span,
	}
	if fn.Variadic {
		return nil, &ConstructionError{
			Func:   p.name,
			Code:   diag.BldVariadicDefinition,
			Span:   p.span,
			Reason: "variadic function definitions are not supported",
		}
	}
	fb := &funcBuilder{b: b, fn: fn}
	body := p.decl.Body
	scope := fb.pushScope(b.span(body.Pos, body.EndPos))
	for i, prm := range p.params {
		id := fb.declare(prm.name, prm.typ, i, false, prm.span)
		fn.Params = append(fn.Params, hir.Param{Name: prm.name, Local: id, Type: prm.typ, Span: prm.span})
	}
	fn.Body = &hir.Block{Stmts: fb.items(body.Items), Scope: scope, Span: b.span(body.Pos, body.EndPos)}
	fb.popScope()
	if fb.err != nil {
		return nil, fb.err
	}
	hir.Number(fn)
	return fn, nil
}

func (fb *funcBuilder) fail(code diag.Code, sp source.Span, format string, args ...any) {
	if fb.fn == nil {
		fb.b.moduleError(code, sp, format, args...)
		return
	}
	if fb.err == nil {
		fb.err = &ConstructionError{Func: fb.fn.Name, Code: code, Span: sp, Reason: fmt.Sprintf(format, args...)}
	}
}

func (fb *funcBuilder) pushScope(sp source.Span) hir.ScopeID {
	parent, depth := hir.NoScopeID, 0
	if n := len(fb.frames); n > 0 {
		parent = fb.frames[n-1].id
		depth = fb.fn.Scope(parent).Depth + 1
	}
	id, err := safeID(len(fb.fn.Scopes) + 1)
	if err != nil {
		panic(fmt.Errorf("scope id overflow: %w", err))
	}
	sid := hir.ScopeID(id)
	fb.fn.Scopes = append(fb.fn.Scopes, hir.Scope{ID: sid, Parent: parent, Depth: depth, Span: sp})
	fb.frames = append(fb.frames, scopeFrame{id: sid, names: make(map[string]hir.LocalID)})
	return sid
}

func (fb *funcBuilder) popScope() {
	fb.frames = fb.frames[:len(fb.frames)-1]
}

// declare adds a binding to the innermost scope. paramIndex is -1 for
// block locals.
func (fb *funcBuilder) declare(name string, t *hir.Type, paramIndex int, static bool, sp source.Span) hir.LocalID {
	frame := fb.frames[len(fb.frames)-1]
	if _, dup := frame.names[name]; dup {
		fb.fail(diag.BldRedefinition, sp, "%s is declared twice in the same scope", name)
	}
	n, err := safeID(len(fb.fn.Locals) + 1)
	if err != nil {
		panic(fmt.Errorf("local id overflow: %w", err))
	}
	id := hir.LocalID(n)
	fb.fn.Locals = append(fb.fn.Locals, hir.Local{
		ID:         id,
		Name:       name,
		Type:       t,
		Scope:      frame.id,
		Param:      paramIndex >= 0,
		ParamIndex: paramIndex,
		Static:     static,
		Span:       sp,
	})
	frame.names[name] = id
	return id
}

func (fb *funcBuilder) lookup(name string) (hir.LocalID, bool) {
	for i := len(fb.frames) - 1; i >= 0; i-- {
		if id, ok := fb.frames[i].names[name]; ok {
			return id, true
		}
	}
	return hir.NoLocalID, false
}

func (fb *funcBuilder) currentScope() hir.ScopeID {
	return fb.frames[len(fb.frames)-1].id
}
