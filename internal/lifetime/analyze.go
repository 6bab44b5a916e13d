package lifetime

import (
	"fmt"
	"slices"
	"strings"

	"decant/internal/dataflow"
	"decant/internal/hir"
	"decant/internal/ownership"
)

var receiverNames = []string{"self", "this", "ctx", "s"}

// Analyze computes the regions, the elided signature and the dangling
// returns of g's function. own supplies which bindings are references.
func Analyze(g *dataflow.Graph, own *ownership.Table) *Result {
	fn := g.Func
	r := &Result{Func: fn}
	for _, s := range fn.Scopes {
		r.Regions = append(r.Regions, Region{Scope: s.ID, Parent: s.Parent, Depth: s.Depth})
	}
	r.Signature = signature(g, own)
	r.returns(g)
	return r
}

func signature(g *dataflow.Graph, own *ownership.Table) Signature {
	fn := g.Func
	var sig Signature
	// Rule 1: a distinct lifetime per reference parameter.
	for i, p := range fn.Params {
		d := own.Lookup(p.Local)
		if d == nil || !d.Kind.Borrowing() {
			continue
		}
		local := fn.Local(p.Local)
		sig.Params = append(sig.Params, Param{
			Local:    p.Local,
			Index:    i,
			Name:     local.Name,
			Lifetime: ID(len(sig.Params) + 1),
			Scope:    local.Scope,
		})
	}
	if own.Return.Shape != ownership.ReturnBorrowed {
		return sig
	}
	sig.OutputReference = true
	from := own.Return.From

	// Rule 2: one input lifetime flows to the output.
	if len(sig.Params) == 1 {
		sig.Output, sig.Elision = sig.Params[0].Lifetime, ElisionSingleInput
		return sig
	}
	// Rule 3: a receiver-like first parameter, when every return borrows
	// from it.
	if len(sig.Params) > 0 && sig.Params[0].Index == 0 && receiverLike(g.Module, fn, fn.Params[0]) &&
		len(from) == 1 && from[0] == sig.Params[0].Local {
		sig.Output, sig.Elision = sig.Params[0].Lifetime, ElisionReceiver
		return sig
	}

	sig.Elision = ElisionExplicit
	switch {
	case len(from) == 1:
		sig.Output = sig.ParamLifetime(from[0])
		sig.Note = "output borrows from " + fn.Local(from[0]).Name
	default:
		names := make([]string, len(from))
		for i, l := range from {
			names[i] = fn.Local(l).Name
		}
		sig.Note = "unresolved: output may borrow from " + strings.Join(names, " or ")
	}
	return sig
}

// receiverLike matches a struct pointer named like a receiver, or one whose
// struct name prefixes the function name (`list_push(struct list *l)`).
func receiverLike(m *hir.Module, fn *hir.Func, p hir.Param) bool {
	t := m.Resolve(p.Type)
	if !t.IsPointer() {
		return false
	}
	elem := m.Resolve(t.Elem)
	if elem == nil || (elem.Kind != hir.TStruct && elem.Kind != hir.TUnion) {
		return false
	}
	if slices.Contains(receiverNames, fn.Local(p.Local).Name) {
		return true
	}
	name := strings.ToLower(elem.Name)
	return name != "" && strings.HasPrefix(strings.ToLower(fn.Name), name+"_")
}

// returns reports dangling returns and elevates nested references to
// parameters.
func (r *Result) returns(g *dataflow.Graph) {
	fn := g.Func
	seen := make(map[hir.LocalID]bool)
	for _, rs := range g.Returns {
		switch {
		case rs.AddrOf.IsValid():
			r.dangling(rs, rs.AddrOf, "returns the address of %s")
		case rs.Local.IsValid() || rs.Derived.IsValid():
			l := rs.Local
			if !l.IsValid() {
				l = rs.Derived
			}
			loc := fn.Local(l)
			if loc.Param {
				continue
			}
			if g.Module.Resolve(loc.Type).IsArray() {
				r.dangling(rs, l, "returns array %s")
				continue
			}
			for _, x := range addressTargets(fn, l) {
				if x := fn.Local(x); x != nil && !x.Static && !x.Param {
					r.Dangling = append(r.Dangling, Dangling{
						Node:   rs.Node,
						Span:   rs.Span,
						Local:  x.ID,
						Reason: fmt.Sprintf("returns %s, which holds the address of local %s", loc.Name, x.Name),
					})
				}
			}
			if loc.Scope != hir.FuncScope && !seen[l] {
				if p, ok := paramSource(g, l); ok {
					seen[l] = true
					r.Elevated = append(r.Elevated, Elevation{Local: l, From: p, Scope: loc.Scope})
				}
			}
		}
	}
}

func (r *Result) dangling(rs dataflow.ReturnSite, l hir.LocalID, format string) {
	loc := r.Func.Local(l)
	if loc.Static {
		return
	}
	name := loc.Name
	if loc.Param {
		name = "parameter " + name
	} else {
		name = "local " + name
	}
	r.Dangling = append(r.Dangling, Dangling{Node: rs.Node, Span: rs.Span, Local: l, Reason: fmt.Sprintf(format, name)})
}

// paramSource follows alias edges from l back to a parameter.
func paramSource(g *dataflow.Graph, l hir.LocalID) (hir.LocalID, bool) {
	visited := make(map[hir.LocalID]bool)
	queue := []hir.LocalID{l}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		bd := g.Binding(cur)
		if bd == nil {
			continue
		}
		if bd.Param && cur != l {
			return cur, true
		}
		queue = append(queue, bd.AliasOf...)
	}
	return hir.NoLocalID, false
}

// addressTargets returns the locals whose address is stored into l.
func addressTargets(fn *hir.Func, l hir.LocalID) []hir.LocalID {
	var out []hir.LocalID
	add := func(v *hir.Expr) {
		if v == nil {
			return
		}
		if x, ok := dataflow.AddressedLocal(v.StripCasts()); ok && !slices.Contains(out, x) {
			out = append(out, x)
		}
	}
	assigned := func(target *hir.Expr, v *hir.Expr) {
		if t, ok := target.LocalRef(); ok && t == l {
			add(v)
		}
	}
	hir.Inspect(fn.Body, func(s *hir.Stmt) bool {
		switch d := s.Data.(type) {
		case hir.DeclData:
			if d.Local == l {
				add(d.Init)
			}
		case hir.AssignData:
			assigned(d.Target, d.Value)
		}
		return true
	}, func(e *hir.Expr) bool {
		if d, ok := e.Data.(hir.AssignData); ok {
			assigned(d.Target, d.Value)
		}
		return true
	})
	slices.Sort(out)
	return out
}
