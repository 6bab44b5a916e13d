package ownership

import (
	"fmt"
	"slices"

	"decant/internal/dataflow"
	"decant/internal/hir"
)

// Infer classifies every pointer binding of g's function. Rules are tried
// in order and the first whose hard signals hold with enough confidence
// wins.
func Infer(g *dataflow.Graph, cfg Config) *Table {
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultConfig().MinConfidence
	}
	fn := g.Func
	t := &Table{Func: fn, byLocal: make(map[hir.LocalID]*Decision)}

	var (
		paths     []dataflow.Path
		truncated bool
		walked    bool
	)
	aliased := aliasTargets(g)
	for _, bd := range g.PointerBindings() {
		d := &Decision{Func: fn.ID, Local: bd.Local, Name: bd.Name}
		var pr proof
		if bd.IsHeap() || len(bd.Frees) > 0 {
			if !walked {
				paths, truncated = g.Paths(cfg.MaxPaths)
				t.Truncated = truncated
				walked = true
			}
			pr = prove(g, paths, truncated, bd, aliased[bd.Local])
			d.Defects = pr.defects
		}
		classify(g, bd, pr, aliased[bd.Local], cfg, d)
		t.Decisions = append(t.Decisions, d)
		t.byLocal[bd.Local] = d
	}
	t.Return = returnShape(g, t)
	return t
}

// aliasTargets returns the bindings some other binding was copied from.
func aliasTargets(g *dataflow.Graph) map[hir.LocalID]bool {
	out := make(map[hir.LocalID]bool)
	for _, bd := range g.Bindings {
		for _, src := range bd.AliasOf {
			out[src] = true
		}
	}
	return out
}

type rule struct {
	n       int
	kind    Kind
	signals []Signal
	apply   func(d *Decision)
}

func (r *rule) hard(name string, held bool) *rule {
	r.signals = append(r.signals, Signal{Name: name, Hard: true, Held: held})
	return r
}

func (r *rule) soft(name string, held bool) *rule {
	r.signals = append(r.signals, Signal{Name: name, Held: held})
	return r
}

func (r *rule) applies() bool {
	for _, s := range r.signals {
		if s.Hard && !s.Held {
			return false
		}
	}
	return true
}

func (r *rule) confidence() float64 {
	if len(r.signals) == 0 {
		return 0
	}
	held := 0
	for _, s := range r.signals {
		if s.Held {
			held++
		}
	}
	return float64(held) / float64(len(r.signals))
}

func firstFailed(signals []Signal) string {
	for _, s := range signals {
		if s.Hard && !s.Held {
			return s.Name
		}
	}
	return ""
}

func classify(g *dataflow.Graph, bd *dataflow.Binding, pr proof, aliased bool, cfg Config, d *Decision) {
	if pr.fatal() {
		d.Kind, d.Confidence = KindUnknown, 0
		for _, df := range pr.defects {
			if df.Kind.Fatal() {
				d.reason("%s: %s", df.Kind, df.Detail)
			}
		}
		d.reason("memory defect forces a raw pointer")
		return
	}
	if pr.truncated {
		d.reason("path enumeration truncated at %d", pathLimit(cfg))
	}
	for _, df := range pr.defects {
		d.reason("%s: %s", df.Kind, df.Detail)
	}

	escapes := bd.EscapesOtherThanReturn()
	lp, paired := g.LengthOf(bd.Local)
	freedOnce := pr.ok()
	neverFreed := len(bd.Frees) == 0
	rules := []*rule{
		ruleVec(bd, pr, escapes, paired, neverFreed, aliased, lp),
		ruleBox(bd, pr, escapes, freedOnce),
		ruleRef(bd, escapes, neverFreed, aliased),
		ruleRefMut(bd, escapes, neverFreed, aliased),
		ruleOptionBox(bd, pr, escapes),
	}
	for _, r := range rules {
		if !r.applies() {
			d.reason("rule %d (%s): %s does not hold", r.n, r.kind, firstFailed(r.signals))
			continue
		}
		c := r.confidence()
		if c < cfg.MinConfidence {
			d.reason("rule %d (%s): confidence %.2f below %.2f", r.n, r.kind, c, cfg.MinConfidence)
			continue
		}
		d.Kind, d.Rule, d.Confidence, d.Signals = r.kind, r.n, c, r.signals
		if r.apply != nil {
			r.apply(d)
		}
		d.reason("rule %d (%s): confidence %.2f", r.n, r.kind, c)
		return
	}

	switch {
	case bd.IntCast:
		d.Kind, d.Confidence = KindRawPointer, 1
		d.reason("integer/pointer cast keeps a raw pointer")
	case len(bd.Arith) > 0 && !paired:
		d.Kind, d.Confidence = KindRawPointer, 1
		d.reason("pointer arithmetic without a paired length keeps a raw pointer")
	default:
		d.Kind, d.Confidence = KindUnknown, 0
		d.reason("no rule applies; raw pointer fallback")
	}
}

func pathLimit(cfg Config) int {
	if cfg.MaxPaths > 0 {
		return cfg.MaxPaths
	}
	return dataflow.DefaultPathLimit
}

func ruleVec(bd *dataflow.Binding, pr proof, escapes, paired, neverFreed, aliased bool, lp dataflow.LengthPair) *rule {
	r := &rule{n: 1}
	if bd.Param {
		r.kind = KindSlice
		r.hard("parameter paired with a length", paired).
			hard("never freed", neverFreed).
			hard("never escapes", !escapes).
			soft("indexed", len(bd.Indexes) > 0).
			soft("not reassigned", len(bd.Reassigns) == 0).
			soft("not aliased", !aliased).
			soft("no integer cast", !bd.IntCast)
		r.apply = func(d *Decision) {
			d.Mutable = len(bd.Writes) > 0
			d.Length = lp.Len
		}
		return r
	}
	r.kind = KindVec
	r.hard("array allocation", bd.HasOrigin(dataflow.OriginArrayAllocation)).
		hard("never escapes", !escapes).
		hard("not aliased", !pr.aliased).
		soft("freed or moved on every path", pr.ok()).
		soft("no pointer arithmetic", len(bd.Arith) == 0).
		soft("no integer cast", !bd.IntCast)
	return r
}

func ruleBox(bd *dataflow.Binding, pr proof, escapes, freedOnce bool) *rule {
	r := &rule{n: 2, kind: KindBox}
	r.hard("heap allocated", bd.IsHeap()).
		hard("single object", !bd.HasOrigin(dataflow.OriginArrayAllocation)).
		hard("never escapes", !escapes).
		hard("never assigned NULL", !bd.AssignedNull).
		hard("freed once or moved on every path", freedOnce).
		soft("no pointer arithmetic", len(bd.Arith) == 0).
		soft("no integer cast", !bd.IntCast).
		soft("not addressed", len(bd.Addressed) == 0)
	return r
}

func ruleRef(bd *dataflow.Binding, escapes, neverFreed, aliased bool) *rule {
	r := &rule{n: 3, kind: KindRef}
	r.hard("parameter", bd.Param).
		hard("not aliased", !aliased).
		hard("read only", len(bd.Writes) == 0).
		hard("never escapes", !escapes).
		hard("never reassigned", len(bd.Reassigns) == 0).
		hard("never freed", neverFreed).
		soft("dereferenced", len(bd.Derefs) > 0).
		soft("no integer cast", !bd.IntCast).
		soft("not addressed", len(bd.Addressed) == 0)
	r.apply = func(d *Decision) { d.Nullable = len(bd.NullTests) > 0 }
	return r
}

func ruleRefMut(bd *dataflow.Binding, escapes, neverFreed, aliased bool) *rule {
	r := &rule{n: 4, kind: KindRef}
	r.hard("parameter", bd.Param).
		hard("not aliased", !aliased).
		hard("written through", len(bd.Writes) > 0).
		hard("never escapes", !escapes).
		hard("never reassigned", len(bd.Reassigns) == 0).
		hard("never freed", neverFreed).
		soft("no integer cast", !bd.IntCast).
		soft("not addressed", len(bd.Addressed) == 0)
	r.apply = func(d *Decision) {
		d.Mutable = true
		d.Nullable = len(bd.NullTests) > 0
	}
	return r
}

func ruleOptionBox(bd *dataflow.Binding, pr proof, escapes bool) *rule {
	r := &rule{n: 5, kind: KindOptionBox}
	r.hard("heap allocated", bd.IsHeap()).
		hard("absence is legitimate", bd.AssignedNull || bd.HasOrigin(dataflow.OriginNull)).
		hard("every dereference null-checked", len(bd.Derefs) == 0 || bd.DerefsGuarded()).
		hard("freed or moved on every path", pr.ok()).
		soft("never escapes", !escapes).
		soft("no pointer arithmetic", len(bd.Arith) == 0).
		soft("single object", !bd.HasOrigin(dataflow.OriginArrayAllocation))
	return r
}

// returnShape classifies the function's returns from the decisions.
func returnShape(g *dataflow.Graph, t *Table) Return {
	fn := g.Func
	if !g.Module.Resolve(fn.Result).IsPointer() {
		return Return{Shape: ReturnValue}
	}
	var (
		nullable bool
		values   []dataflow.ReturnSite
	)
	for _, rs := range g.Returns {
		if rs.Null {
			nullable = true
			continue
		}
		values = append(values, rs)
	}
	if len(values) == 0 {
		return Return{Shape: ReturnRaw, Nullable: nullable, Reason: "only NULL is returned"}
	}

	from := func(rs dataflow.ReturnSite) hir.LocalID {
		if rs.Derived.IsValid() {
			return rs.Derived
		}
		return rs.Local
	}
	all := func(pred func(rs dataflow.ReturnSite) bool) bool {
		for _, rs := range values {
			if !pred(rs) {
				return false
			}
		}
		return true
	}
	sources := func() []hir.LocalID {
		var out []hir.LocalID
		for _, rs := range values {
			if l := from(rs); !slices.Contains(out, l) {
				out = append(out, l)
			}
		}
		slices.Sort(out)
		return out
	}

	if nullable && all(func(rs dataflow.ReturnSite) bool {
		d := t.Lookup(from(rs))
		return d != nil && d.Kind == KindSlice
	}) {
		return Return{Shape: ReturnOptionIndex, Nullable: true, From: sources(), Reason: "returns an element of a slice parameter or NULL"}
	}
	if all(func(rs dataflow.ReturnSite) bool {
		d := t.Lookup(from(rs))
		return d != nil && d.Kind.Borrowing() && fn.ParamIndex(d.Local) >= 0
	}) {
		return Return{Shape: ReturnBorrowed, Nullable: nullable, From: sources(), Reason: "returns a reference parameter"}
	}
	if all(func(rs dataflow.ReturnSite) bool {
		if rs.Derived.IsValid() {
			return false
		}
		d := t.Lookup(rs.Local)
		return d != nil && d.Kind.Owning()
	}) {
		src := sources()
		kind := t.KindOf(src[0])
		for _, l := range src[1:] {
			if t.KindOf(l) != kind {
				return Return{Shape: ReturnRaw, Nullable: nullable, Reason: "returned owners differ in kind"}
			}
		}
		return Return{Shape: ReturnOwned, Nullable: nullable, From: src, Kind: kind, Reason: fmt.Sprintf("moves out a %s", kind)}
	}
	return Return{Shape: ReturnRaw, Nullable: nullable, Reason: "returned pointer has no safe provenance"}
}
