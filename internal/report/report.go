// Package report assembles the analysis report of one translated file:
// what was decided for every function, why, and where the translation
// fell back to raw constructs.
package report

import (
	"sort"
	"strings"

	"fortio.org/safecast"

	"decant/internal/bridge"
	"decant/internal/codegen"
	"decant/internal/diag"
	"decant/internal/hir"
	"decant/internal/lifetime"
	"decant/internal/locks"
	"decant/internal/ownership"
	"decant/internal/patterns"
	"decant/internal/source"
	"decant/internal/version"
)

// Location is a resolved source position.
type Location struct {
	Line uint32 `json:"line"`
	Col  uint32 `json:"col"`
}

type Defect struct {
	Kind     string   `json:"kind"`
	Detail   string   `json:"detail"`
	Location Location `json:"location"`
}

// Decision is the ownership classification of one pointer binding.
type Decision struct {
	Name       string   `json:"name"`
	Kind       string   `json:"kind"`
	Mutable    bool     `json:"mutable,omitempty"`
	Nullable   bool     `json:"nullable,omitempty"`
	Length     string   `json:"length,omitempty"`
	Rule       int      `json:"rule"`
	Confidence float64  `json:"confidence"`
	Reasoning  []string `json:"reasoning"`
	Defects    []Defect `json:"defects,omitempty"`
}

type Return struct {
	Shape    string `json:"shape"`
	Nullable bool   `json:"nullable,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type LifetimeParam struct {
	Name     string `json:"name"`
	Lifetime string `json:"lifetime"`
}

type DanglingRef struct {
	Local    string   `json:"local"`
	Reason   string   `json:"reason"`
	Location Location `json:"location"`
}

// Lifetimes is the signature decision of one function.
type Lifetimes struct {
	Elision  string          `json:"elision"`
	Generics string          `json:"generics,omitempty"`
	Params   []LifetimeParam `json:"params,omitempty"`
	Output   string          `json:"output,omitempty"`
	Note     string          `json:"note,omitempty"`
	Dangling []DanglingRef   `json:"dangling,omitempty"`
}

type LockRegion struct {
	Lock      string   `json:"lock"`
	Kind      string   `json:"kind"`
	Start     Location `json:"start"`
	End       Location `json:"end"`
	SameBlock bool     `json:"same_block"`
}

type ProtectedVar struct {
	Name      string `json:"name"`
	Sites     int    `json:"sites"`
	Guarded   int    `json:"guarded"`
	Protected bool   `json:"protected"`
}

// LockMapping is one lock and the variables it protects.
type LockMapping struct {
	Lock string         `json:"lock"`
	Vars []ProtectedVar `json:"vars"`
}

type Violation struct {
	Kind     string   `json:"kind"`
	Lock     string   `json:"lock,omitempty"`
	Var      string   `json:"var,omitempty"`
	Message  string   `json:"message"`
	Location Location `json:"location"`
}

// Pattern is one detector match.
type Pattern struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

type Fallback struct {
	ID        int      `json:"id"`
	Func      string   `json:"func,omitempty"`
	Construct string   `json:"construct"`
	Reason    string   `json:"reason"`
	Location  Location `json:"location"`
}

// FuncReport collects every decision made for one function.
type FuncReport struct {
	Name       string        `json:"name"`
	Location   Location      `json:"location"`
	Decisions  []Decision    `json:"decisions"`
	Return     Return        `json:"return"`
	Lifetimes  Lifetimes     `json:"lifetimes"`
	Regions    []LockRegion  `json:"regions,omitempty"`
	Mapping    []LockMapping `json:"mapping,omitempty"`
	Violations []Violation   `json:"violations,omitempty"`
	Patterns   []Pattern     `json:"patterns,omitempty"`
	Fallbacks  []Fallback    `json:"fallbacks,omitempty"`
	Truncated  bool          `json:"truncated,omitempty"`
}

type StructReport struct {
	Name      string   `json:"name"`
	Rust      string   `json:"rust"`
	Strategy  string   `json:"strategy"`
	Lifetimes []string `json:"lifetimes,omitempty"`
}

type GlobalReport struct {
	Name     string   `json:"name"`
	Strategy string   `json:"strategy"`
	Lock     string   `json:"lock,omitempty"`
	Writers  []string `json:"writers,omitempty"`
}

type OrderEdge struct {
	From     string   `json:"from"`
	To       string   `json:"to"`
	Func     string   `json:"func"`
	Location Location `json:"location"`
}

// Deadlock is a cycle in the module lock-order graph.
type Deadlock struct {
	Path  []string    `json:"path"`
	Edges []OrderEdge `json:"edges"`
}

// Skipped is a function left untranslated.
type Skipped struct {
	Name     string   `json:"name"`
	Code     string   `json:"code"`
	Reason   string   `json:"reason"`
	Location Location `json:"location"`
}

type Diagnostic struct {
	Severity string   `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Location Location `json:"location"`
}

// Summary holds the module-wide counts the audit prints.
type Summary struct {
	Functions   int            `json:"functions"`
	Skipped     int            `json:"skipped"`
	Decisions   map[string]int `json:"decisions"`
	Fallbacks   int            `json:"fallbacks"`
	Constructs  map[string]int `json:"constructs,omitempty"`
	Violations  int            `json:"violations"`
	Deadlocks   int            `json:"deadlocks"`
	Errors      int            `json:"errors"`
	Warnings    int            `json:"warnings"`
	Diagnostics int            `json:"diagnostics"`
}

// AnalysisReport is the report of one translated file.
type AnalysisReport struct {
	Tool        string         `json:"tool"`
	Version     string         `json:"version"`
	File        string         `json:"file"`
	Functions   []FuncReport   `json:"functions"`
	Items       []Fallback     `json:"item_fallbacks,omitempty"` // fallbacks outside functions
	Structs     []StructReport `json:"structs,omitempty"`
	Globals     []GlobalReport `json:"globals,omitempty"`
	Mapping     []LockMapping  `json:"mapping,omitempty"` // module-wide lock → data
	Deadlocks   []Deadlock     `json:"deadlocks,omitempty"`
	Skipped     []Skipped      `json:"skipped,omitempty"`
	Diagnostics []Diagnostic   `json:"diagnostics,omitempty"`
	Summary     Summary        `json:"summary"`
}

// Input is everything the report is built from. Analysis slices are
// indexed like Module.Funcs.
type Input struct {
	Path        string
	Module      *hir.Module
	Analysis    *codegen.Analysis
	Output      *codegen.Output
	Structs     []codegen.StructStrategy
	Globals     []codegen.GlobalStrategy
	Errors      []*bridge.ConstructionError
	Diagnostics []diag.Diagnostic
	Files       *source.FileSet
}

// Build assembles the report. It reads its inputs only.
func Build(in Input) *AnalysisReport {
	r := &AnalysisReport{
		Tool:    "decant",
		Version: version.Version,
		File:    in.Path,
		Summary: Summary{Decisions: make(map[string]int)},
	}
	an := in.Analysis
	if an == nil {
		an = &codegen.Analysis{}
	}
	at := func(sp source.Span) Location { return locate(in.Files, sp) }

	fallbacks := make(map[string][]Fallback)
	for _, fb := range outputFallbacks(in.Output) {
		f := Fallback{ID: fb.ID, Func: fb.Func, Construct: fb.Construct, Reason: fb.Reason, Location: position(fb.Line, fb.Col)}
		if fb.Func == "" {
			r.Items = append(r.Items, f)
		} else {
			fallbacks[fb.Func] = append(fallbacks[fb.Func], f)
		}
		r.Summary.Fallbacks++
		if r.Summary.Constructs == nil {
			r.Summary.Constructs = make(map[string]int)
		}
		r.Summary.Constructs[fb.Construct]++
	}

	if in.Module != nil {
		for i, fn := range in.Module.Funcs {
			fr := FuncReport{Name: fn.Name, Location: at(fn.Span), Decisions: []Decision{}}
			if t := an.Ownership.Func(fn.ID); t != nil {
				fr.Decisions = decisions(fn, t, at)
				fr.Return = Return{Shape: t.Return.Shape.String(), Nullable: t.Return.Nullable, Reason: t.Return.Reason}
				fr.Truncated = t.Truncated
				for _, d := range t.Decisions {
					r.Summary.Decisions[d.Kind.String()]++
				}
			}
			if i < len(an.Lifetimes) && an.Lifetimes[i] != nil {
				fr.Lifetimes = lifetimes(fn, an.Lifetimes[i], at)
			}
			if an.Locks != nil && i < len(an.Locks.Funcs) && an.Locks.Funcs[i] != nil {
				lr := an.Locks.Funcs[i]
				fr.Regions = regions(lr, at)
				fr.Mapping = mapping(lr.Mapping)
			}
			if an.Locks != nil {
				fr.Violations = violations(an.Locks.Violations, fn.Name, at)
				r.Summary.Violations += len(fr.Violations)
			}
			if i < len(an.Hints) {
				fr.Patterns = hints(fn, an.Hints[i])
			}
			fr.Fallbacks = fallbacks[fn.Name]
			r.Functions = append(r.Functions, fr)
		}
	}
	r.Summary.Functions = len(r.Functions)

	for _, ss := range in.Structs {
		r.Structs = append(r.Structs, StructReport{Name: ss.Name, Rust: ss.Rust, Strategy: ss.Strategy, Lifetimes: ss.Lifetimes})
	}
	for _, gs := range in.Globals {
		r.Globals = append(r.Globals, GlobalReport{Name: gs.Name, Strategy: gs.Strategy, Lock: gs.Lock, Writers: gs.Writers})
	}
	if an.Locks != nil {
		for _, c := range an.Locks.Cycles {
			d := Deadlock{Path: c.Path}
			for _, e := range c.Edges {
				d.Edges = append(d.Edges, OrderEdge{From: e.From, To: e.To, Func: e.Func, Location: at(e.Span)})
			}
			r.Deadlocks = append(r.Deadlocks, d)
		}
	}
	r.Summary.Deadlocks = len(r.Deadlocks)
	if an.Locks != nil {
		r.Mapping = mapping(an.Locks.Mapping)
	}

	for _, e := range in.Errors {
		if e == nil || e.Func == "" {
			continue
		}
		r.Skipped = append(r.Skipped, Skipped{Name: e.Func, Code: e.Code.ID(), Reason: e.Reason, Location: at(e.Span)})
	}
	r.Summary.Skipped = len(r.Skipped)

	for _, d := range in.Diagnostics {
		r.Diagnostics = append(r.Diagnostics, Diagnostic{
			Severity: d.Severity.String(),
			Code:     d.Code.ID(),
			Message:  d.Message,
			Location: at(d.Primary),
		})
		switch d.Severity {
		case diag.SevError:
			r.Summary.Errors++
		case diag.SevWarning:
			r.Summary.Warnings++
		}
	}
	r.Summary.Diagnostics = len(r.Diagnostics)
	return r
}

func outputFallbacks(out *codegen.Output) []codegen.Fallback {
	if out == nil {
		return nil
	}
	return out.Fallbacks
}

func position(line, col int) Location {
	l, err := safecast.Conv[uint32](line)
	if err != nil {
		return Location{}
	}
	c, err := safecast.Conv[uint32](col)
	if err != nil {
		return Location{Line: l}
	}
	return Location{Line: l, Col: c}
}

func locate(fs *source.FileSet, sp source.Span) Location {
	if fs == nil || fs.Get(sp.File) == nil {
		return Location{}
	}
	start, _ := fs.Resolve(sp)
	return Location{Line: start.Line, Col: start.Col}
}

func localName(fn *hir.Func, l hir.LocalID) string {
	if loc := fn.Local(l); loc != nil {
		return loc.Name
	}
	return ""
}

func decisions(fn *hir.Func, t *ownership.Table, at func(source.Span) Location) []Decision {
	out := make([]Decision, 0, len(t.Decisions))
	for _, d := range t.Decisions {
		rd := Decision{
			Name:       d.Name,
			Kind:       d.Kind.String(),
			Mutable:    d.Mutable,
			Nullable:   d.Nullable,
			Rule:       d.Rule,
			Confidence: d.Confidence,
			Reasoning:  append([]string{}, d.Reasoning...),
		}
		if d.Length.IsValid() {
			rd.Length = localName(fn, d.Length)
		}
		for _, df := range d.Defects {
			rd.Defects = append(rd.Defects, Defect{Kind: df.Kind.String(), Detail: df.Detail, Location: at(df.Span)})
		}
		out = append(out, rd)
	}
	return out
}

func lifetimes(fn *hir.Func, res *lifetime.Result, at func(source.Span) Location) Lifetimes {
	sig := &res.Signature
	lt := Lifetimes{Elision: sig.Elision.String(), Generics: sig.Generics(), Note: sig.Note}
	for _, p := range sig.Params {
		lt.Params = append(lt.Params, LifetimeParam{Name: p.Name, Lifetime: p.Lifetime.String()})
	}
	if sig.Output != lifetime.NoID {
		lt.Output = sig.Output.String()
	}
	for _, d := range res.Dangling {
		lt.Dangling = append(lt.Dangling, DanglingRef{Local: localName(fn, d.Local), Reason: d.Reason, Location: at(d.Span)})
	}
	return lt
}

func regions(lr *locks.Result, at func(source.Span) Location) []LockRegion {
	var out []LockRegion
	for _, rg := range lr.Regions {
		out = append(out, LockRegion{
			Lock:      rg.Lock.Path,
			Kind:      rg.Kind.String(),
			Start:     at(rg.StartSpan),
			End:       at(rg.EndSpan),
			SameBlock: rg.SameBlock,
		})
	}
	return out
}

func mapping(m locks.Mapping) []LockMapping {
	var out []LockMapping
	for _, lv := range m {
		lm := LockMapping{Lock: lv.Lock.Path}
		for _, b := range lv.Vars {
			lm.Vars = append(lm.Vars, ProtectedVar{Name: b.Var.Path, Sites: b.Sites, Guarded: b.Guarded, Protected: b.Protected})
		}
		out = append(out, lm)
	}
	return out
}

func violations(vs []locks.Violation, fn string, at func(source.Span) Location) []Violation {
	var out []Violation
	for _, v := range vs {
		if v.Func != fn {
			continue
		}
		out = append(out, Violation{Kind: v.Kind.String(), Lock: v.Lock, Var: v.Var, Message: v.Message, Location: at(v.Span)})
	}
	return out
}

func hints(fn *hir.Func, h *patterns.Hints) []Pattern {
	if h.Empty() {
		return nil
	}
	var out []Pattern
	for _, op := range h.OutParams {
		detail := op.Name + " returned by value"
		if op.Fallible {
			detail = op.Name + " returned as Result"
		}
		out = append(out, Pattern{Kind: "out-param", Detail: detail})
	}
	for _, gp := range h.Generics {
		detail := gp.Name + " as generic T"
		if b := gp.Bounds.List(); len(b) > 0 {
			detail += ": " + strings.Join(b, " + ")
		}
		out = append(out, Pattern{Kind: "generic", Detail: detail})
	}
	for i := range h.Spawns {
		sp := &h.Spawns[i]
		detail := sp.Exec
		if prog, ok := sp.ProgramName(); ok {
			detail += " " + prog
		}
		if sp.HasWait {
			detail += " with wait"
		}
		out = append(out, Pattern{Kind: "spawn", Detail: detail})
	}
	for _, sl := range h.Slices {
		out = append(out, Pattern{Kind: "slice", Detail: localName(fn, sl.Ptr) + " bounded by " + localName(fn, sl.Len)})
	}
	return out
}

// ConstructKinds returns the fallback construct kinds ordered by count, then
// name.
func (s *Summary) ConstructKinds() []string {
	kinds := make([]string, 0, len(s.Constructs))
	for k := range s.Constructs {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool {
		ci, cj := s.Constructs[kinds[i]], s.Constructs[kinds[j]]
		if ci != cj {
			return ci > cj
		}
		return kinds[i] < kinds[j]
	})
	return kinds
}

// AllFallbacks returns every fallback in ID order.
func (r *AnalysisReport) AllFallbacks() []Fallback {
	out := append([]Fallback{}, r.Items...)
	for _, f := range r.Functions {
		out = append(out, f.Fallbacks...)
	}
	return out
}
