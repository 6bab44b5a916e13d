// Package bridge lowers a cparse syntax tree into HIR.
//
// Lowering is deterministic: the same unit always yields the same module,
// including every ID. Unsupported constructs inside a function body abort
// only that function; the rest of the file is still lowered.
package bridge

import (
	"fmt"
	"regexp"
	"strings"

	"fortio.org/safecast"
	"github.com/alecthomas/participle/v2/lexer"

	"decant/internal/cparse"
	"decant/internal/diag"
	"decant/internal/hir"
	"decant/internal/source"
	"decant/internal/stdlib"
)

// Options configures Build.
type Options struct {
	Path     string
	File     source.FileID
	Provider stdlib.Provider // nil means stdlib.Builtin()
}

// ConstructionError reports an unsupported construct. Func is empty for
// module-level problems, which never drop a function.
type ConstructionError struct {
	Func   string
	Code   diag.Code
	Span   source.Span
	Reason string
}

func (e *ConstructionError) Error() string {
	if e.Func == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Func, e.Reason)
}

// Diagnostic converts the error for a diag.Bag. Function-level errors are
// errors; module-level ones are warnings.
func (e *ConstructionError) Diagnostic() diag.Diagnostic {
	if e.Func == "" {
		return diag.NewWarning(e.Code, e.Span, e.Reason)
	}
	return diag.NewError(e.Code, e.Span, fmt.Sprintf("function %s skipped: %s", e.Func, e.Reason))
}

type pendingFunc struct {
	name   string
	decl   *cparse.Declaration
	params []paramInfo
	sig    *hir.Type
	static bool
	span   source.Span
}

type builder struct {
	opts Options
	prov stdlib.Provider
	mod  *hir.Module
	errs []*ConstructionError

	anon        int
	funcMacros  map[string]bool
	unspecified map[string]bool // declared as `f()` with no parameter list
	sigs        map[string]*hir.Type
	pending     []pendingFunc
	file        *funcBuilder
}

// Build lowers unit. The returned module is complete and indexed even when
// errors are reported.
func Build(unit *cparse.Unit, opts Options) (*hir.Module, []*ConstructionError) {
	prov := opts.Provider
	if prov == nil {
		prov = stdlib.Builtin()
	}
	b := &builder{
		opts:        opts,
		prov:        prov,
		mod:         &hir.Module{Path: opts.Path, File: opts.File},
		funcMacros:  make(map[string]bool),
		unspecified: make(map[string]bool),
		sigs:        make(map[string]*hir.Type),
	}
	for _, td := range prov.Typedefs() {
		b.mod.Typedefs = append(b.mod.Typedefs, &hir.TypedefDef{Name: td.Name, Type: td.Type, Builtin: true})
	}
	b.mod.Reindex()

	for _, ext := range unit.Externals {
		switch {
		case ext.Directive != nil:
			b.directive(*ext.Directive, b.span(ext.Pos, ext.EndPos))
		case ext.Decl != nil:
			b.declaration(ext.Decl)
		}
		b.mod.Reindex()
	}

	b.lowerBodies()
	return b.mod, b.errs
}

func (b *builder) span(start, end lexer.Position) source.Span {
	s, err := safecast.Conv[uint32](start.Offset)
	if err != nil {
		s = 0
	}
	e, err := safecast.Conv[uint32](end.Offset)
	if err != nil || e < s {
		e = s
	}
	return source.Span{File: b.opts.File, Start: s, End: e}
}

// top returns the builder used for file-scope expressions (initialisers,
// array sizes, enumerator values).
func (b *builder) top() *funcBuilder {
	if b.file == nil {
		b.file = &funcBuilder{b: b}
	}
	return b.file
}

func safeID(n int) (uint32, error) {
	return safecast.Conv[uint32](n)
}

func (b *builder) moduleError(code diag.Code, sp source.Span, format string, args ...any) {
	b.errs = append(b.errs, &ConstructionError{Code: code, Span: sp, Reason: fmt.Sprintf(format, args...)})
}

var (
	includeRe    = regexp.MustCompile(`^#\s*include\s*[<"]([^>"]+)[>"]`)
	defineFuncRe = regexp.MustCompile(`^#\s*define\s+([A-Za-z_]\w*)\(`)
	defineRe     = regexp.MustCompile(`^#\s*define\s+([A-Za-z_]\w*)\s*(.*)$`)
	ignoredRe    = regexp.MustCompile(`^#\s*(ifndef|ifdef|if|elif|else|endif|pragma|undef)\b`)
)

func (b *builder) directive(text string, sp source.Span) {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\\\n", " "))
	switch {
	case includeRe.MatchString(text):
		b.mod.Headers = append(b.mod.Headers, includeRe.FindStringSubmatch(text)[1])
	case defineFuncRe.MatchString(text):
		name := defineFuncRe.FindStringSubmatch(text)[1]
		b.funcMacros[name] = true
		b.moduleError(diag.BldFunctionMacro, sp, "function-like macro %s is not translated", name)
	case defineRe.MatchString(text):
		m := defineRe.FindStringSubmatch(text)
		body := strings.TrimSpace(stripComment(m[2]))
		if body == "" {
			return // include guard or feature flag
		}
		value, ok := b.macroValue(body, sp)
		if !ok {
			b.moduleError(diag.BldUnsupported, sp, "macro %s is not a literal constant", m[1])
			return
		}
		b.mod.Macros = append(b.mod.Macros, &hir.MacroConst{Name: m[1], Value: value, Span: sp})
	case ignoredRe.MatchString(text):
	default:
		b.moduleError(diag.ParDirective, sp, "unsupported directive %q", text)
	}
}

func stripComment(s string) string {
	if i := strings.Index(s, "//"); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, "/*"); i >= 0 {
		s = s[:i]
	}
	return s
}

// macroValue accepts a literal, optionally negated and parenthesised.
func (b *builder) macroValue(body string, sp source.Span) (*hir.Expr, bool) {
	s := body
	for strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg, s = true, strings.TrimSpace(s[1:])
	}
	var (
		lit *hir.Expr
		err error
	)
	switch {
	case strings.HasPrefix(s, `"`) && !neg:
		var text string
		text, err = unquote(s)
		lit = &hir.Expr{Kind: hir.ExprLiteral, Type: hir.PointerTo(hir.Char.WithConst()), Data: hir.LiteralData{Kind: hir.LitString, Text: text}}
	case strings.HasPrefix(s, "'"):
		lit, err = charLiteral(s)
	case strings.ContainsAny(s, ".eE") && !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X"):
		lit, err = floatLiteral(s)
	default:
		lit, err = intLiteral(s)
	}
	if err != nil || lit == nil {
		return nil, false
	}
	lit.Span = sp
	if neg {
		lit = negate(lit)
	}
	return lit, true
}

func negate(lit *hir.Expr) *hir.Expr {
	d := lit.Data.(hir.LiteralData)
	d.Int, d.Float = -d.Int, -d.Float
	d.Text = "-" + d.Text
	lit.Data = d
	return lit
}

// lowerBodies lowers function definitions after every table is known, then
// assigns FuncIDs to the survivors and resolves call targets.
func (b *builder) lowerBodies() {
	var funcs []*hir.Func
	for _, p := range b.pending {
		fn, cerr := b.lowerFunc(p)
		if cerr != nil {
			b.errs = append(b.errs, cerr)
			b.mod.Prototypes = append(b.mod.Prototypes, hir.Prototype{Name: p.name, Sig: p.sig, Span: p.span})
			continue
		}
		funcs = append(funcs, fn)
	}
	for i, fn := range funcs {
		id, err := safecast.Conv[uint32](i + 1)
		if err != nil {
			panic(fmt.Errorf("function id overflow: %w", err))
		}
		fn.ID = hir.FuncID(id)
	}
	b.mod.Funcs = funcs
	b.mod.Reindex()

	for _, fn := range funcs {
		hir.Inspect(fn.Body, nil, func(e *hir.Expr) bool {
			switch d := e.Data.(type) {
			case hir.CallData:
				if d.Target == nil {
					if callee := b.mod.FuncByName(d.Callee); callee != nil {
						d.Func = callee.ID
						e.Data = d
					}
				}
			case hir.VarRefData:
				if d.Ref == hir.RefFunc {
					if callee := b.mod.FuncByName(d.Name); callee != nil {
						d.Func = callee.ID
						e.Data = d
					}
				}
			}
			return true
		})
	}
}
