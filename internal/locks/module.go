package locks

import (
	"context"
	"fmt"

	"decant/internal/dataflow"
	"decant/internal/trace"
)

// ModuleResult merges the function results of a module.
type ModuleResult struct {
	Funcs      []*Result
	Graph      *OrderGraph
	Cycles     []Cycle
	Mapping    Mapping // keyed by module-wide identity
	Violations []Violation
}

// Func returns the result of the named function, or nil.
func (m *ModuleResult) Func(name string) *Result {
	for _, r := range m.Funcs {
		if r.Func.Name == name {
			return r
		}
	}
	return nil
}

// AnalyzeModule analyzes every graph and merges the results.
func AnalyzeModule(ctx context.Context, graphs []*dataflow.Graph, cfg Config) *ModuleResult {
	span := trace.Begin(trace.FromContext(ctx), trace.ScopePass, "locks", trace.ParentFromContext(ctx))
	results := make([]*Result, len(graphs))
	for i, g := range graphs {
		results[i] = Analyze(g, cfg)
	}
	m := Merge(results)
	span.WithExtra("cycles", fmt.Sprint(len(m.Cycles))).End("")
	return m
}

// Merge builds the module lock-order graph and the module-wide mapping, so
// stray accesses in functions that never lock are reported too.
func Merge(results []*Result) *ModuleResult {
	m := &ModuleResult{Funcs: results, Graph: NewOrderGraph()}
	locks := make(map[string]Identity)
	var accesses []Access
	for _, r := range results {
		keyOf := make(map[string]string, len(r.Locks))
		for _, l := range r.Locks {
			keyOf[l.Path] = l.Key
			m.Graph.AddLock(l.Key)
			if _, ok := locks[l.Key]; !ok {
				locks[l.Key] = l
			}
		}
		for _, e := range r.Edges {
			m.Graph.AddEdge(keyOf[e.From], keyOf[e.To], e.Func, e.Span)
		}
		for _, ac := range r.Accesses {
			held := make([]string, len(ac.Held))
			for i, h := range ac.Held {
				held[i] = keyOf[h]
			}
			ac.Held = held
			accesses = append(accesses, ac)
		}
		for _, v := range r.Violations {
			if v.Kind != UnprotectedAccess {
				m.Violations = append(m.Violations, v)
			}
		}
	}
	var unprotected []Violation
	m.Mapping, unprotected = bind(accesses, locks,
		func(v Identity) string { return v.Key },
		func(ac *Access) []string { return ac.Held })
	m.Violations = append(m.Violations, unprotected...)

	m.Cycles = m.Graph.Cycles()
	for _, c := range m.Cycles {
		last := c.Edges[len(c.Edges)-1]
		m.Violations = append(m.Violations, Violation{
			Kind:    PotentialDeadlock,
			Func:    last.Func,
			Lock:    c.Path[0],
			Span:    last.Span,
			Message: "potential deadlock: lock order cycle " + c.String(),
		})
	}
	return m
}
