//nolint:errcheck // Type assertions are checked by construction
package hir

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// DumpOptions configures HIR dumping.
type DumpOptions struct {
	EmitIDs   bool
	EmitTypes bool
}

// Printer dumps HIR in a C-like text form.
type Printer struct {
	w      io.Writer
	indent int
	opts   DumpOptions
	err    error
}

func NewPrinter(w io.Writer, opts DumpOptions) *Printer {
	return &Printer{w: w, opts: opts}
}

// Dump writes the module with node IDs.
func Dump(w io.Writer, m *Module) error {
	return NewPrinter(w, DumpOptions{EmitIDs: true}).PrintModule(m)
}

func (p *Printer) PrintModule(m *Module) error {
	p.printf("module %s\n", m.Path)
	for _, h := range m.Headers {
		p.printf("  include <%s>\n", h)
	}
	for _, c := range m.Macros {
		p.printf("  define %s = ", c.Name)
		p.expr(c.Value)
		p.printf("\n")
	}
	for _, t := range m.Typedefs {
		if !t.Builtin {
			p.printf("  typedef %s = %s\n", t.Name, t.Type)
		}
	}
	for _, s := range m.Structs {
		kw := "struct"
		if s.Union {
			kw = "union"
		}
		p.printf("  %s %s {", kw, s.Name)
		for i, f := range s.Fields {
			if i > 0 {
				p.printf(";")
			}
			p.printf(" %s: %s", f.Name, f.Type)
		}
		p.printf(" }\n")
	}
	for _, e := range m.Enums {
		p.printf("  enum %s {", e.Name)
		for i, v := range e.Values {
			if i > 0 {
				p.printf(",")
			}
			p.printf(" %s = %d", v.Name, v.Value)
		}
		p.printf(" }\n")
	}
	for _, g := range m.Globals {
		p.printf("  global %s: %s", g.Name, g.Type)
		if g.Init != nil {
			p.printf(" = ")
			p.expr(g.Init)
		}
		p.printf("\n")
	}
	for _, f := range m.Funcs {
		p.PrintFunc(f)
	}
	return p.err
}

func (p *Printer) PrintFunc(f *Func) error {
	p.printf("\nfn %s(", f.Name)
	for i, param := range f.Params {
		if i > 0 {
			p.printf(", ")
		}
		p.printf("%s: %s", param.Name, param.Type)
	}
	if f.Variadic {
		p.printf(", ...")
	}
	p.printf(") -> %s", f.Result)
	if p.opts.EmitIDs {
		p.printf(" (id=%d, nodes=%d)", f.ID, f.Nodes)
	}
	p.printf(" {\n")
	p.indent++
	p.block(f.Body)
	p.indent--
	p.printf("}\n")
	return p.err
}

func (p *Printer) block(b *Block) {
	if b == nil {
		return
	}
	for i := range b.Stmts {
		p.stmt(&b.Stmts[i])
	}
}

func (p *Printer) nested(b *Block) {
	p.printf(" {\n")
	p.indent++
	p.block(b)
	p.indent--
	p.pad()
	p.printf("}")
}

func (p *Printer) stmt(s *Stmt) {
	p.pad()
	if p.opts.EmitIDs {
		p.printf("#%d ", s.ID)
	}
	switch d := s.Data.(type) {
	case DeclData:
		if d.Static {
			p.printf("static ")
		}
		p.printf("let %s: %s", d.Name, d.Type)
		if d.Init != nil {
			p.printf(" = ")
			p.expr(d.Init)
		}
	case ExprStmtData:
		p.expr(d.Expr)
	case AssignData:
		p.assign(d)
	case ReturnData:
		p.printf("return")
		if d.Value != nil {
			p.printf(" ")
			p.expr(d.Value)
		}
	case BreakData:
		p.printf("break")
	case ContinueData:
		p.printf("continue")
	case IfData:
		p.printf("if ")
		p.expr(d.Cond)
		p.nested(d.Then)
		if d.Else != nil {
			p.printf(" else")
			p.nested(d.Else)
		}
	case WhileData:
		p.printf("while ")
		p.expr(d.Cond)
		p.nested(d.Body)
	case DoWhileData:
		p.printf("do")
		p.nested(d.Body)
		p.printf(" while ")
		p.expr(d.Cond)
	case ForData:
		p.printf("for (")
		p.inline(d.Init)
		p.printf("; ")
		if d.Cond != nil {
			p.expr(d.Cond)
		}
		p.printf("; ")
		p.inline(d.Post)
		p.printf(")")
		p.nested(d.Body)
	case SwitchData:
		p.printf("switch ")
		p.expr(d.Cond)
		p.printf(" {\n")
		p.indent++
		for _, c := range d.Cases {
			p.pad()
			if c.IsDefault {
				p.printf("default")
			}
			for i, v := range c.Values {
				if i > 0 || c.IsDefault {
					p.printf(" | ")
				}
				p.printf("case ")
				p.expr(v)
			}
			p.printf(":\n")
			p.indent++
			for i := range c.Body {
				p.stmt(&c.Body[i])
			}
			p.indent--
		}
		p.indent--
		p.pad()
		p.printf("}")
	case BlockData:
		p.printf("block")
		p.nested(d.Block)
	case FreeData:
		p.printf("%s(", d.Callee)
		p.expr(d.Ptr)
		p.printf(")")
	default:
		p.printf("<%s>", s.Kind)
	}
	p.printf("\n")
}

func (p *Printer) inline(list []Stmt) {
	for i := range list {
		if i > 0 {
			p.printf(", ")
		}
		switch d := list[i].Data.(type) {
		case DeclData:
			p.printf("let %s: %s", d.Name, d.Type)
			if d.Init != nil {
				p.printf(" = ")
				p.expr(d.Init)
			}
		case AssignData:
			p.assign(d)
		case ExprStmtData:
			p.expr(d.Expr)
		}
	}
}

func (p *Printer) assign(d AssignData) {
	p.expr(d.Target)
	if d.Compound {
		p.printf(" %s= ", d.Op)
	} else {
		p.printf(" = ")
	}
	p.expr(d.Value)
}

func (p *Printer) expr(e *Expr) {
	if e == nil {
		p.printf("<nil>")
		return
	}
	switch d := e.Data.(type) {
	case LiteralData:
		switch d.Kind {
		case LitString:
			p.printf("%s", strconv.Quote(d.Text))
		case LitNull:
			p.printf("NULL")
		default:
			p.printf("%s", d.Text)
		}
	case VarRefData:
		p.printf("%s", d.Name)
	case UnaryData:
		if d.Op == UnPostInc || d.Op == UnPostDec {
			p.expr(d.Operand)
			p.printf("%s", d.Op)
		} else {
			p.printf("%s", d.Op)
			p.expr(d.Operand)
		}
	case BinaryData:
		p.printf("(")
		p.expr(d.Left)
		p.printf(" %s ", d.Op)
		p.expr(d.Right)
		p.printf(")")
	case AssignData:
		p.printf("(")
		p.assign(d)
		p.printf(")")
	case CallData:
		if d.Target != nil {
			p.printf("(*")
			p.expr(d.Target)
			p.printf(")")
		} else {
			p.printf("%s", d.Callee)
		}
		p.printf("(")
		for i, a := range d.Args {
			if i > 0 {
				p.printf(", ")
			}
			p.expr(a)
		}
		p.printf(")")
	case FieldData:
		p.expr(d.Object)
		if d.Arrow {
			p.printf("->%s", d.Field)
		} else {
			p.printf(".%s", d.Field)
		}
	case IndexData:
		p.expr(d.Object)
		p.printf("[")
		p.expr(d.Index)
		p.printf("]")
	case CastData:
		p.printf("(%s)", d.Target)
		p.expr(d.Value)
	case SizeofData:
		if d.Of != nil {
			p.printf("sizeof(%s)", d.Of)
		} else {
			p.printf("sizeof ")
			p.expr(d.Value)
		}
	case TernaryData:
		p.printf("(")
		p.expr(d.Cond)
		p.printf(" ? ")
		p.expr(d.Then)
		p.printf(" : ")
		p.expr(d.Else)
		p.printf(")")
	case InitListData:
		if d.Compound {
			p.printf("(%s)", e.Type)
		}
		p.printf("{")
		for i, it := range d.Items {
			if i > 0 {
				p.printf(", ")
			}
			if it.Field != "" {
				p.printf(".%s = ", it.Field)
			}
			if it.Index != nil {
				p.printf("[")
				p.expr(it.Index)
				p.printf("] = ")
			}
			p.expr(it.Value)
		}
		p.printf("}")
	case AllocData:
		p.printf("%s<%s>(", d.Kind, d.Elem)
		if d.Ptr != nil {
			p.expr(d.Ptr)
			p.printf(", ")
		}
		if d.Count != nil {
			p.expr(d.Count)
		} else {
			p.expr(d.Size)
		}
		p.printf(")")
	default:
		p.printf("<%s>", e.Kind)
	}
	if p.opts.EmitTypes && e.Type != nil {
		p.printf(":%s", e.Type)
	}
}

func (p *Printer) pad() {
	p.printf("%s", strings.Repeat("  ", p.indent))
}

func (p *Printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

// FuncString renders f with node IDs.
func FuncString(f *Func) string {
	var sb strings.Builder
	_ = NewPrinter(&sb, DumpOptions{EmitIDs: true}).PrintFunc(f)
	return sb.String()
}

// ExprString renders e on one line.
func ExprString(e *Expr) string {
	var sb strings.Builder
	NewPrinter(&sb, DumpOptions{}).expr(e)
	return sb.String()
}
