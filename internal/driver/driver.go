// Package driver runs the translation pipeline over files: parse, lower,
// analyze every function in parallel, generate Rust and assemble the
// report. Only the driver touches the filesystem.
package driver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"fortio.org/safecast"

	"decant/internal/bridge"
	"decant/internal/codegen"
	"decant/internal/config"
	"decant/internal/cparse"
	"decant/internal/dataflow"
	"decant/internal/diag"
	"decant/internal/hir"
	"decant/internal/lifetime"
	"decant/internal/locks"
	"decant/internal/observ"
	"decant/internal/optimize"
	"decant/internal/ownership"
	"decant/internal/patterns"
	"decant/internal/report"
	"decant/internal/source"
	"decant/internal/stdlib"
	"decant/internal/trace"
)

// Options configure a translation run.
type Options struct {
	Config         config.Config
	Provider       stdlib.Provider // nil means stdlib.Builtin()
	Cache          *Cache          // nil disables caching
	Observer       Observer
	MaxDiagnostics int
}

// DefaultOptions uses the default configuration without a cache.
func DefaultOptions() Options {
	return Options{Config: config.Default()}
}

// Result is the translation of one file.
type Result struct {
	Path        string
	Rust        string
	Report      *report.AnalysisReport
	Diagnostics []diag.Diagnostic
	Files       *source.FileSet
	File        source.FileID

	// Module and Output are nil when the result came from the cache.
	Module *hir.Module
	Output *codegen.Output

	Cached bool
	Timing observ.Report
	Err    error
}

// Fallbacks counts the fallbacks of the translation.
func (r *Result) Fallbacks() int {
	if r == nil || r.Report == nil {
		return 0
	}
	return r.Report.Summary.Fallbacks
}

func (r *Result) HasErrors() bool {
	if r.Err != nil {
		return true
	}
	for _, d := range r.Diagnostics {
		if d.Severity == diag.SevError {
			return true
		}
	}
	return false
}

// TranslateFile reads and translates path.
func TranslateFile(ctx context.Context, path string, opts Options) (*Result, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		opts.Observer.emit(Event{File: path, Stage: StageDone, Status: StatusFailed})
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return TranslateSource(ctx, path, src, opts)
}

// TranslateSource translates src. A syntax error is returned as a
// *cparse.Error with the partial result carrying its diagnostic.
func TranslateSource(ctx context.Context, path string, src []byte, opts Options) (*Result, error) {
	started := time.Now()
	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeDriver, "translate "+path, trace.ParentFromContext(ctx))
	ctx = trace.WithParent(ctx, span)
	defer span.End("")

	timer := observ.NewTimer()
	prov := opts.Provider
	if prov == nil {
		prov = stdlib.Builtin()
	}
	cfg := opts.Config
	fs := source.NewFileSet()
	id := fs.Add(path, src, 0)
	file := fs.Get(id)
	res := &Result{Path: path, Files: fs, File: id}

	key := CacheKey(file.Content, cfg.Fingerprint())
	if opts.Cache != nil {
		idx := timer.Begin("cache")
		payload, ok, err := opts.Cache.Get(key)
		timer.End(idx, "")
		if err != nil {
			opts.Cache.log.Warningf("cache read for %s failed: %v", path, err)
		}
		if ok {
			res.Rust, res.Report, res.Diagnostics, res.Cached = payload.Rust, payload.Report, payload.Diagnostics, true
			res.Timing = timer.Report()
			span.WithExtra("cached", "true")
			opts.Observer.emit(Event{File: path, Stage: StageDone, Status: StatusCached, Elapsed: time.Since(started)})
			return res, nil
		}
	}

	opts.Observer.emit(Event{File: path, Stage: StageParse})
	idx := timer.Begin("parse")
	unit, err := cparse.Parse(path, string(file.Content), cparse.WithTypeNames(stdlib.TypeNames(prov)...))
	timer.End(idx, "")
	if err != nil {
		res.Diagnostics = []diag.Diagnostic{syntaxDiagnostic(id, err)}
		res.Timing = timer.Report()
		opts.Observer.emit(Event{File: path, Stage: StageDone, Status: StatusFailed, Elapsed: time.Since(started)})
		return res, fmt.Errorf("parse %s: %w", path, err)
	}

	opts.Observer.emit(Event{File: path, Stage: StageBridge})
	idx = timer.Begin("bridge")
	mod, cerrs := bridge.Build(unit, bridge.Options{Path: path, File: id, Provider: prov})
	timer.End(idx, strconv.Itoa(len(mod.Funcs))+" functions")
	res.Module = mod

	opts.Observer.emit(Event{File: path, Stage: StageAnalyze})
	an, err := analyze(ctx, mod, prov, cfg, timer)
	if err != nil {
		return nil, err
	}
	for _, e := range cerrs {
		if e.Func != "" {
			an.Skipped = append(an.Skipped, codegen.Skipped{Name: e.Func, Span: e.Span, Reason: e.Reason})
		}
	}

	opts.Observer.emit(Event{File: path, Stage: StageGenerate})
	idx = timer.Begin("codegen")
	gen := codegen.New(mod, an, codegen.Config{
		Indent:             cfg.IndentString(),
		EmitReportComments: cfg.Codegen.EmitReportComments,
		Files:              fs,
	})
	funcs := make([]codegen.FuncOutput, len(mod.Funcs))
	err = forEach(ctx, cfg.Driver.Jobs, len(mod.Funcs), func(ctx context.Context, i int) error {
		s := trace.Begin(tracer, trace.ScopeFunc, "codegen "+mod.Funcs[i].Name, span.ID())
		funcs[i] = gen.Func(i)
		s.WithExtra("fallbacks", strconv.Itoa(len(funcs[i].Fallbacks))).End("")
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := gen.Assemble(funcs)
	timer.End(idx, strconv.Itoa(len(out.Fallbacks))+" fallbacks")
	res.Output, res.Rust = out, out.Source

	bag := diag.NewBag(opts.MaxDiagnostics)
	collect(bag, mod, an, out, cerrs)
	bag.Sort()
	bag.Dedup()
	res.Diagnostics = bag.Items()

	res.Report = report.Build(report.Input{
		Path:        path,
		Module:      mod,
		Analysis:    an,
		Output:      out,
		Structs:     gen.Structs(),
		Globals:     gen.Globals(),
		Errors:      cerrs,
		Diagnostics: res.Diagnostics,
		Files:       fs,
	})
	res.Timing = timer.Report()

	if opts.Cache != nil {
		if err := opts.Cache.Put(key, &Payload{Path: path, Rust: res.Rust, Report: res.Report, Diagnostics: res.Diagnostics}); err != nil {
			opts.Cache.log.Warningf("cache write for %s failed: %v", path, err)
		}
	}

	status := StatusOK
	if len(out.Fallbacks) > 0 {
		status = StatusFallbacks
	}
	span.WithExtra("fallbacks", strconv.Itoa(len(out.Fallbacks)))
	opts.Observer.emit(Event{File: path, Stage: StageDone, Status: status, Elapsed: time.Since(started)})
	return res, nil
}

// analyze runs the per-function analyses on the worker pool. The module
// passes (mutability propagation, lock merge, struct lifetimes) run in
// between.
func analyze(ctx context.Context, mod *hir.Module, prov stdlib.Provider, cfg config.Config, timer *observ.Timer) (*codegen.Analysis, error) {
	tracer := trace.FromContext(ctx)
	parent := trace.ParentFromContext(ctx)
	jobs := cfg.Driver.Jobs
	n := len(mod.Funcs)

	idx := timer.Begin("dataflow")
	pass := trace.Begin(tracer, trace.ScopePass, "dataflow", parent)
	analyzer := dataflow.NewAnalyzer(mod, prov, dataflow.WithLengthThreshold(cfg.Ownership.LengthPairThreshold))
	graphs := make([]*dataflow.Graph, n)
	tables := make([]*ownership.Table, n)
	ocfg := cfg.OwnershipConfig()
	err := forEach(ctx, jobs, n, func(ctx context.Context, i int) error {
		fn := mod.Funcs[i]
		s := trace.Begin(tracer, trace.ScopeFunc, "dataflow "+fn.Name, pass.ID())
		graphs[i] = analyzer.Build(fn)
		s.End("")
		s = trace.Begin(tracer, trace.ScopeFunc, "ownership "+fn.Name, pass.ID())
		tables[i] = ownership.Infer(graphs[i], ocfg)
		s.WithExtra("decisions", strconv.Itoa(len(tables[i].Decisions))).End("")
		return nil
	})
	pass.End("")
	timer.End(idx, "")
	if err != nil {
		return nil, err
	}

	own := ownership.NewModuleTable(tables)
	ownership.PropagateMutability(graphs, own)
	for _, t := range own.Tables {
		ownership.Emit(trace.WithParent(ctx, pass), t)
	}

	idx = timer.Begin("analyze")
	pass = trace.Begin(tracer, trace.ScopePass, "analyze", parent)
	lts := make([]*lifetime.Result, n)
	lockRes := make([]*locks.Result, n)
	hints := make([]*patterns.Hints, n)
	bodies := make([]*hir.Func, n)
	index := patterns.NewIndex(mod)
	lcfg := cfg.LocksConfig()
	err = forEach(ctx, jobs, n, func(ctx context.Context, i int) error {
		fn, g := mod.Funcs[i], graphs[i]
		s := trace.Begin(tracer, trace.ScopeFunc, "analyze "+fn.Name, pass.ID())
		lts[i] = lifetime.Analyze(g, own.Func(fn.ID))
		lockRes[i] = locks.Analyze(g, lcfg)
		hints[i] = patterns.Detect(fn, g, index)
		var st optimize.Stats
		bodies[i], st = optimize.Func(fn, mod)
		s.WithExtra("patterns", strconv.Itoa(hints[i].Count())).
			WithExtra("folded", strconv.Itoa(st.Folded)).
			End("")
		return nil
	})
	pass.End("")
	if err != nil {
		timer.End(idx, "")
		return nil, err
	}
	lk := locks.Merge(lockRes)
	structs := lifetime.AnalyzeStructs(mod)
	timer.End(idx, strconv.Itoa(len(lk.Cycles))+" lock cycles")

	return &codegen.Analysis{
		Graphs:    graphs,
		Ownership: own,
		Lifetimes: lts,
		Structs:   structs,
		Locks:     lk,
		Hints:     hints,
		Index:     index,
		Bodies:    bodies,
	}, nil
}

func syntaxDiagnostic(id source.FileID, err error) diag.Diagnostic {
	var pe *cparse.Error
	if !errors.As(err, &pe) {
		return diag.NewError(diag.ParSyntax, source.Span{File: id}, err.Error())
	}
	off, cerr := safecast.Conv[uint32](pe.Offset)
	if cerr != nil {
		off = 0
	}
	return diag.NewError(diag.ParSyntax, source.Span{File: id, Start: off, End: off + 1}, pe.Msg)
}
