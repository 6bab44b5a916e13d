package dataflow

import (
	"slices"

	"decant/internal/hir"
)

// DefaultPathLimit caps path enumeration.
const DefaultPathLimit = 4096

// Path is one control-flow path through the function as the ordered list
// of graph nodes on it.
type Path struct {
	Nodes []NodeIndex
	Exit  hir.NodeID // the return ending the path; NoNodeID when it falls off the end
}

type flow struct {
	next   [][]NodeIndex
	breaks [][]NodeIndex
	conts  [][]NodeIndex
}

type enumerator struct {
	g         *Graph
	limit     int
	done      []Path
	truncated bool
}

// Paths enumerates control-flow paths. If/else and switch arms branch,
// loops run zero or one time. More than limit paths sets truncated, and
// the returned set is then incomplete.
func (g *Graph) Paths(limit int) ([]Path, bool) {
	if limit <= 0 {
		limit = DefaultPathLimit
	}
	en := &enumerator{g: g, limit: limit}
	entry := [][]NodeIndex{slices.Clone(g.byStmt[hir.NoNodeID])}
	f := en.stmts(g.Func.Body.Stmts, entry)
	for _, p := range f.next {
		en.finish(p, hir.NoNodeID)
	}
	return en.done, en.truncated
}

func (en *enumerator) finish(p []NodeIndex, exit hir.NodeID) {
	if len(en.done) >= en.limit {
		en.truncated = true
		return
	}
	en.done = append(en.done, Path{Nodes: p, Exit: exit})
}

func (en *enumerator) bound(ps [][]NodeIndex) [][]NodeIndex {
	if room := en.limit - len(en.done); len(ps) > room {
		en.truncated = true
		if room < 0 {
			room = 0
		}
		return ps[:room]
	}
	return ps
}

func extend(ps [][]NodeIndex, nodes []NodeIndex) [][]NodeIndex {
	out := make([][]NodeIndex, len(ps))
	for i, p := range ps {
		out[i] = slices.Concat(p, nodes)
	}
	return out
}

func (en *enumerator) stmts(list []hir.Stmt, in [][]NodeIndex) flow {
	var out flow
	cur := in
	for i := range list {
		if len(cur) == 0 {
			break
		}
		f := en.stmt(&list[i], cur)
		out.breaks = append(out.breaks, f.breaks...)
		out.conts = append(out.conts, f.conts...)
		cur = en.bound(f.next)
	}
	out.next = cur
	return out
}

func (en *enumerator) block(b *hir.Block, in [][]NodeIndex) flow {
	if b == nil {
		return flow{next: in}
	}
	return en.stmts(b.Stmts, in)
}

func (en *enumerator) stmt(s *hir.Stmt, in [][]NodeIndex) flow {
	own := en.g.byStmt[s.ID]
	switch d := s.Data.(type) {
	case hir.ReturnData:
		for _, p := range extend(in, own) {
			en.finish(p, s.ID)
		}
		return flow{}
	case hir.BreakData:
		return flow{breaks: extend(in, own)}
	case hir.ContinueData:
		return flow{conts: extend(in, own)}
	case hir.IfData:
		base := extend(in, own)
		thenIn, elseIn := base, base
		for _, a := range en.g.nullBranch[s.ID] {
			if a.onThen {
				thenIn = extend(thenIn, []NodeIndex{a.node})
			} else {
				elseIn = extend(elseIn, []NodeIndex{a.node})
			}
		}
		ft := en.block(d.Then, thenIn)
		fe := en.block(d.Else, elseIn)
		return flow{
			next:   en.bound(slices.Concat(ft.next, fe.next)),
			breaks: slices.Concat(ft.breaks, fe.breaks),
			conts:  slices.Concat(ft.conts, fe.conts),
		}
	case hir.WhileData:
		base := extend(in, own)
		body := en.block(d.Body, base)
		again := extend(slices.Concat(body.next, body.conts), own)
		return flow{next: en.bound(slices.Concat(base, again, body.breaks))}
	case hir.DoWhileData:
		body := en.block(d.Body, in)
		after := extend(slices.Concat(body.next, body.conts), own)
		return flow{next: en.bound(slices.Concat(after, body.breaks))}
	case hir.ForData:
		init := en.stmts(d.Init, in).next
		base := extend(init, own)
		body := en.block(d.Body, base)
		post := en.stmts(d.Post, slices.Concat(body.next, body.conts)).next
		return flow{next: en.bound(slices.Concat(base, extend(post, own), body.breaks))}
	case hir.SwitchData:
		base := extend(in, own)
		var out flow
		var fall [][]NodeIndex
		hasDefault := false
		for i := range d.Cases {
			c := &d.Cases[i]
			hasDefault = hasDefault || c.IsDefault
			f := en.stmts(c.Body, slices.Concat(base, fall))
			out.next = append(out.next, f.breaks...)
			out.conts = append(out.conts, f.conts...)
			fall = en.bound(f.next)
		}
		out.next = append(out.next, fall...)
		if !hasDefault {
			out.next = append(out.next, base...)
		}
		out.next = en.bound(out.next)
		return out
	case hir.BlockData:
		return en.block(d.Block, in)
	default:
		return flow{next: extend(in, own)}
	}
}
