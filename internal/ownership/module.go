package ownership

import (
	"context"
	"fmt"

	"decant/internal/dataflow"
	"decant/internal/trace"
)

// InferModule infers every graph, then propagates mutability from callees:
// a reference passed where a module callee takes a mutable reference
// becomes mutable itself.
func InferModule(ctx context.Context, graphs []*dataflow.Graph, cfg Config) *ModuleTable {
	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopePass, "ownership", trace.ParentFromContext(ctx))
	defer span.End("")

	tables := make([]*Table, len(graphs))
	for i, g := range graphs {
		tables[i] = Infer(g, cfg)
	}
	m := NewModuleTable(tables)
	PropagateMutability(graphs, m)
	for _, t := range m.Tables {
		Emit(trace.WithParent(ctx, span), t)
	}
	return m
}

// PropagateMutability runs to a fixed point over call sites of module
// functions. Tables must be indexed like graphs.
func PropagateMutability(graphs []*dataflow.Graph, m *ModuleTable) {
	byName := make(map[string]*Table, len(m.Tables))
	for _, t := range m.Tables {
		byName[t.Func.Name] = t
	}
	for changed := true; changed; {
		changed = false
		for i, g := range graphs {
			t := m.Tables[i]
			for _, d := range t.Decisions {
				if d.Mutable || !d.Kind.Borrowing() {
					continue
				}
				bd := g.Binding(d.Local)
				for _, cs := range bd.Passed {
					callee := byName[cs.Callee]
					if callee == nil || cs.Arg >= len(callee.Func.Params) {
						continue
					}
					pd := callee.Lookup(callee.Func.Params[cs.Arg].Local)
					if pd == nil || !pd.Mutable {
						continue
					}
					d.Mutable = true
					d.reason("passed to %s, which writes through parameter %d", cs.Callee, cs.Arg+1)
					changed = true
					break
				}
			}
		}
	}
}

// Emit mirrors every decision's reasoning as node-level trace events.
func Emit(ctx context.Context, t *Table) {
	tracer := trace.FromContext(ctx)
	if !tracer.Enabled() || !tracer.Level().ShouldEmit(trace.ScopeNode) {
		return
	}
	parent := trace.ParentFromContext(ctx)
	for _, d := range t.Decisions {
		name := fmt.Sprintf("ownership %s.%s", t.Func.Name, d.Name)
		for _, line := range d.Reasoning {
			trace.Point(tracer, trace.ScopeNode, name, line, parent)
		}
		trace.Point(tracer, trace.ScopeNode, name, fmt.Sprintf("=> %s (%.2f)", d.Kind, d.Confidence), parent)
	}
	if t.Func.Result != nil {
		trace.Point(tracer, trace.ScopeNode, "ownership "+t.Func.Name+" return", t.Return.Shape.String(), parent)
	}
}
