// Package codegen renders an analysed HIR module as Rust source. Every
// construct without a safe rule is emitted as a tagged fallback and
// recorded, so the number of FALLBACK# tags in the output always equals
// the number of records.
package codegen

import (
	"fmt"
	"path/filepath"
	"strings"

	"decant/internal/dataflow"
	"decant/internal/hir"
	"decant/internal/lifetime"
	"decant/internal/locks"
	"decant/internal/ownership"
	"decant/internal/patterns"
	"decant/internal/source"
)

// Config controls the emitted text.
type Config struct {
	Indent             string // one level; four spaces when empty
	EmitReportComments bool   // ownership decisions as comments above each fn
	Files              *source.FileSet
}

// Skipped is a function the bridge could not lower.
type Skipped struct {
	Name   string
	Span   source.Span
	Reason string
}

// Analysis bundles the per-function side tables codegen reads. Slices
// are indexed like Module.Funcs.
type Analysis struct {
	Graphs    []*dataflow.Graph
	Ownership *ownership.ModuleTable
	Lifetimes []*lifetime.Result
	Structs   []lifetime.StructLifetimes
	Locks     *locks.ModuleResult
	Hints     []*patterns.Hints
	Index     *patterns.Index
	// Bodies are the optimised copies to render; a nil entry renders the
	// analysed function itself.
	Bodies  []*hir.Func
	Skipped []Skipped
}

// FuncOutput is the Rust text of one function.
type FuncOutput struct {
	Name      string
	Source    string
	Fallbacks []Fallback

	uses uses
}

// Output is a rendered module.
type Output struct {
	Source    string
	Funcs     []FuncOutput
	Fallbacks []Fallback
}

type uses uint8

const (
	useMutex uses = 1 << iota
	useRwLock
)

// Generator holds the module-level decisions shared by every function.
// After New it is read-only, so Func may run concurrently.
type Generator struct {
	mod *hir.Module
	an  *Analysis
	cfg Config

	structs  map[string]*structRepr
	enums    map[string]*enumRepr // by enumerator name
	globals  map[string]*globalRepr
	callees  map[string]*calleeInfo
	fnEnums  []*fnEnum
	lockData map[string]*lockData // by lock global name

	items     strings.Builder
	fallbacks fallbackSink
	uses      uses
}

// Generate renders the whole module sequentially.
func Generate(mod *hir.Module, an *Analysis, cfg Config) *Output {
	g := New(mod, an, cfg)
	funcs := make([]FuncOutput, len(mod.Funcs))
	for i := range mod.Funcs {
		funcs[i] = g.Func(i)
	}
	return g.Assemble(funcs)
}

// New prepares the module tables and renders the module items.
func New(mod *hir.Module, an *Analysis, cfg Config) *Generator {
	if cfg.Indent == "" {
		cfg.Indent = "    "
	}
	if an.Index == nil {
		an.Index = patterns.NewIndex(mod)
	}
	g := &Generator{
		mod:       mod,
		an:        an,
		cfg:       cfg,
		fallbacks: fallbackSink{files: cfg.Files},
	}
	g.prepareStructs()
	g.prepareEnums()
	g.prepareCallees()
	g.prepareGlobals()

	g.emitMacros()
	g.emitTypedefs()
	g.emitEnums()
	g.emitStructs()
	g.emitFnEnums()
	g.emitGlobals()
	g.emitExterns()
	g.emitSkipped()
	return g
}

// Func renders function i.
func (g *Generator) Func(i int) FuncOutput {
	fe := g.newFuncEmitter(i)
	fe.emit()
	return FuncOutput{
		Name:      fe.fn.Name,
		Source:    fe.out.String(),
		Fallbacks: fe.sink.list,
		uses:      fe.uses,
	}
}

// Assemble joins the module items and the function texts and numbers
// every fallback in output order.
func (g *Generator) Assemble(funcs []FuncOutput) *Output {
	all := g.uses
	for _, f := range funcs {
		all |= f.uses
	}
	var b strings.Builder
	fmt.Fprintf(&b, "// Translated from %s by decant.\n", filepath.Base(g.mod.Path))
	b.WriteString("#![allow(dead_code, unused_mut, unused_variables, unused_parens, unused_unsafe, unused_imports, non_snake_case, non_upper_case_globals)]\n")
	switch {
	case all&useMutex != 0 && all&useRwLock != 0:
		b.WriteString("\nuse std::sync::{Mutex, RwLock};\n")
	case all&useMutex != 0:
		b.WriteString("\nuse std::sync::Mutex;\n")
	case all&useRwLock != 0:
		b.WriteString("\nuse std::sync::RwLock;\n")
	}

	out := &Output{}
	items, fbs := renumber(g.items.String(), g.fallbacks.list, 0)
	out.Fallbacks = append(out.Fallbacks, fbs...)
	if items != "" {
		b.WriteString("\n")
		b.WriteString(items)
	}
	for _, f := range funcs {
		text, fbs := renumber(f.Source, f.Fallbacks, len(out.Fallbacks))
		out.Fallbacks = append(out.Fallbacks, fbs...)
		out.Funcs = append(out.Funcs, FuncOutput{Name: f.Name, Source: text, Fallbacks: fbs, uses: f.uses})
		b.WriteString("\n")
		b.WriteString(text)
	}
	out.Source = b.String()
	return out
}

// body returns the function to render for index i.
func (g *Generator) body(i int) *hir.Func {
	if i < len(g.an.Bodies) && g.an.Bodies[i] != nil {
		return g.an.Bodies[i]
	}
	return g.mod.Funcs[i]
}

func (g *Generator) table(i int) *ownership.Table {
	if g.an.Ownership == nil {
		return nil
	}
	return g.an.Ownership.Func(g.mod.Funcs[i].ID)
}

func (g *Generator) lifetimes(i int) *lifetime.Result {
	if i < len(g.an.Lifetimes) {
		return g.an.Lifetimes[i]
	}
	return nil
}

func (g *Generator) lockResult(i int) *locks.Result {
	if g.an.Locks == nil {
		return nil
	}
	if i < len(g.an.Locks.Funcs) && g.an.Locks.Funcs[i] != nil && g.an.Locks.Funcs[i].Func == g.mod.Funcs[i] {
		return g.an.Locks.Funcs[i]
	}
	return g.an.Locks.Func(g.mod.Funcs[i].Name)
}

func (g *Generator) hints(i int) *patterns.Hints {
	if i < len(g.an.Hints) {
		return g.an.Hints[i]
	}
	return nil
}

func (g *Generator) graph(i int) *dataflow.Graph {
	if i < len(g.an.Graphs) {
		return g.an.Graphs[i]
	}
	return nil
}

func (g *Generator) structLifetimes(name string) *lifetime.StructLifetimes {
	for i := range g.an.Structs {
		if g.an.Structs[i].Name == name {
			return &g.an.Structs[i]
		}
	}
	return nil
}

// line writes one indented line to b.
func (g *Generator) line(b *strings.Builder, depth int, format string, args ...any) {
	g.raw(b, depth, fmt.Sprintf(format, args...))
}

// raw writes text verbatim as one indented line.
func (g *Generator) raw(b *strings.Builder, depth int, text string) {
	for range depth {
		b.WriteString(g.cfg.Indent)
	}
	b.WriteString(text)
	b.WriteByte('\n')
}
