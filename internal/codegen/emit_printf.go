package codegen

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"decant/internal/hir"
)

var errUnsupportedFormat = errors.New("unsupported conversion")

// convSpec is one parsed printf conversion.
type convSpec struct {
	flags     string
	width     int // -1 unset, -2 taken from an argument
	precision int // -1 unset, -2 taken from an argument
	length    string
	verb      byte
}

// fmtPiece is either literal text or a conversion.
type fmtPiece struct {
	text string
	conv *convSpec
}

// parseFormat splits a C format string into literal text and conversions.
func parseFormat(format string) ([]fmtPiece, error) {
	var out []fmtPiece
	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			out = append(out, fmtPiece{text: text.String()})
			text.Reset()
		}
	}
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			text.WriteByte(c)
			continue
		}
		i++
		if i >= len(format) {
			return nil, fmt.Errorf("%w: trailing %%", errUnsupportedFormat)
		}
		if format[i] == '%' {
			text.WriteByte('%')
			continue
		}
		cs := &convSpec{width: -1, precision: -1}
		for ; i < len(format) && strings.IndexByte("-+ #0", format[i]) >= 0; i++ {
			cs.flags += string(format[i])
		}
		cs.width, i = parseCount(format, i)
		if i < len(format) && format[i] == '.' {
			i++
			cs.precision, i = parseCount(format, i)
			if cs.precision == -1 {
				cs.precision = 0
			}
		}
		for ; i < len(format) && strings.IndexByte("hlLqjzt", format[i]) >= 0; i++ {
			cs.length += string(format[i])
		}
		if i >= len(format) {
			return nil, fmt.Errorf("%w: incomplete conversion", errUnsupportedFormat)
		}
		cs.verb = format[i]
		if strings.IndexByte("diuxXocsfFeEgGp", cs.verb) < 0 {
			return nil, fmt.Errorf("%w: %%%c", errUnsupportedFormat, cs.verb)
		}
		flush()
		out = append(out, fmtPiece{conv: cs})
	}
	flush()
	return out, nil
}

func parseCount(format string, i int) (int, int) {
	if i < len(format) && format[i] == '*' {
		return -2, i + 1
	}
	j := i
	for j < len(format) && format[j] >= '0' && format[j] <= '9' {
		j++
	}
	if j == i {
		return -1, i
	}
	n, _ := strconv.Atoi(format[i:j])
	return n, j
}

// argType is the Rust type a conversion reads its argument as.
func (cs *convSpec) argType() string {
	wide := strings.Contains(cs.length, "l") || cs.length == "j" || cs.length == "q"
	switch cs.verb {
	case 'd', 'i':
		switch {
		case cs.length == "z" || cs.length == "t":
			return "isize"
		case wide:
			return "i64"
		case cs.length == "h":
			return "i16"
		case cs.length == "hh":
			return "i8"
		}
		return "i32"
	case 'u', 'x', 'X', 'o':
		switch {
		case cs.length == "z":
			return "usize"
		case wide:
			return "u64"
		case cs.length == "h":
			return "u16"
		case cs.length == "hh":
			return "u8"
		}
		return "u32"
	case 'c':
		return "u8"
	case 's':
		return "&str"
	case 'f', 'F', 'e', 'E', 'g', 'G':
		return "f64"
	}
	return ""
}

// spec renders the Rust format spec, with explicit positions when pos is
// set.
func (cs *convSpec) spec(pos, width, precision int) string {
	var b strings.Builder
	b.WriteByte('{')
	if pos >= 0 {
		b.WriteString(strconv.Itoa(pos))
	}
	var s strings.Builder
	left := strings.Contains(cs.flags, "-")
	hasWidth := cs.width != -1
	switch {
	case left && hasWidth:
		s.WriteByte('<')
	case hasWidth && (cs.verb == 's' || cs.verb == 'c' || cs.verb == 'p'):
		s.WriteByte('>')
	}
	numeric := cs.verb != 's' && cs.verb != 'c' && cs.verb != 'p'
	if strings.Contains(cs.flags, "+") && numeric && cs.verb != 'u' && cs.verb != 'x' && cs.verb != 'X' && cs.verb != 'o' {
		s.WriteByte('+')
	}
	if strings.Contains(cs.flags, "#") && strings.IndexByte("xXo", cs.verb) >= 0 {
		s.WriteByte('#')
	}
	if strings.Contains(cs.flags, "0") && !left && hasWidth && numeric {
		s.WriteByte('0')
	}
	switch cs.width {
	case -1:
	case -2:
		fmt.Fprintf(&s, "%d$", width)
	default:
		s.WriteString(strconv.Itoa(cs.width))
	}
	prec := cs.precision
	if prec == -1 && strings.IndexByte("fFeE", cs.verb) >= 0 {
		prec = 6
	}
	switch {
	case prec == -2:
		fmt.Fprintf(&s, ".%d$", precision)
	case prec >= 0 && cs.verb != 'd' && cs.verb != 'i' && cs.verb != 'u' && cs.verb != 'c':
		fmt.Fprintf(&s, ".%d", prec)
	}
	switch cs.verb {
	case 'x':
		s.WriteByte('x')
	case 'X':
		s.WriteByte('X')
	case 'o':
		s.WriteByte('o')
	case 'e':
		s.WriteByte('e')
	case 'E':
		s.WriteByte('E')
	case 'p':
		s.WriteByte('p')
	}
	if s.Len() > 0 {
		b.WriteByte(':')
		b.WriteString(s.String())
	}
	b.WriteByte('}')
	return b.String()
}

func escapeBraces(s string) string {
	return strings.NewReplacer("{", "{{", "}", "}}").Replace(s)
}

// format translates a C format and its arguments into the arguments of a
// Rust formatting macro. It reports false when the format is not a
// literal or uses a conversion without a Rust equivalent.
func (fe *funcEmitter) format(f *hir.Expr, args []*hir.Expr) (string, []string, bool) {
	lit, ok := f.StripCasts().Data.(hir.LiteralData)
	if !ok || lit.Kind != hir.LitString {
		return "", nil, false
	}
	pieces, err := parseFormat(lit.Text)
	if err != nil {
		return "", nil, false
	}
	star := strings.Contains(lit.Text, "*")
	var tmpl strings.Builder
	var out []string
	next := 0
	take := func(want string) (string, int) {
		if next >= len(args) {
			return "", -1
		}
		a := args[next]
		next++
		out = append(out, fe.printArg(a, want))
		return out[len(out)-1], len(out) - 1
	}
	for _, p := range pieces {
		if p.conv == nil {
			tmpl.WriteString(escapeBraces(p.text))
			continue
		}
		cs := p.conv
		width, precision := -1, -1
		if cs.width == -2 {
			if _, width = take("usize"); width < 0 {
				return "", nil, false
			}
		}
		if cs.precision == -2 {
			if _, precision = take("usize"); precision < 0 {
				return "", nil, false
			}
		}
		_, pos := take(cs.argType())
		if pos < 0 {
			return "", nil, false
		}
		if cs.verb == 'c' {
			out[pos] = "(" + out[pos] + " as char)"
		}
		if !star {
			pos = -1
		}
		tmpl.WriteString(cs.spec(pos, width, precision))
	}
	if next != len(args) {
		return "", nil, false
	}
	return tmpl.String(), out, true
}

func (fe *funcEmitter) printArg(a *hir.Expr, want string) string {
	if want == "" {
		code, ty := fe.render(a, "")
		if isRaw(ty) || isRefTy(ty) {
			return code
		}
		return "&" + code
	}
	if want == "&str" {
		code, ty := fe.render(a, "")
		if ty == "String" && isPlace(a) {
			return code
		}
		return fe.coerce(a, code, ty, want)
	}
	return fe.expr(a, want)
}

// stream reports which standard stream e names.
func stream(e *hir.Expr) string {
	if d, ok := e.StripCasts().Data.(hir.VarRefData); ok {
		switch d.Name {
		case "stdout", "stderr":
			return d.Name
		}
	}
	return ""
}

// printMacro renders one print!/eprint! call, using the ln form when the
// template ends in a newline.
func printMacro(errStream bool, tmpl string, args []string) string {
	name := "print"
	if errStream {
		name = "eprint"
	}
	if strings.HasSuffix(tmpl, "\n") {
		tmpl = strings.TrimSuffix(tmpl, "\n")
		name += "ln"
	}
	if tmpl == "" && len(args) == 0 {
		return name + "!();"
	}
	parts := append([]string{rustString(tmpl)}, args...)
	return name + "!(" + strings.Join(parts, ", ") + ");"
}

// printStmt renders stdio output calls used as statements.
func (fe *funcEmitter) printStmt(s *hir.Stmt, e *hir.Expr, d hir.CallData) bool {
	a := d.Args
	emit := func(code string) {
		fe.withMutexGuards(fe.mutexRefs(a...), false, func() { fe.line("%s", code) })
	}
	switch d.Callee {
	case "printf":
		if len(a) == 0 {
			return false
		}
		if tmpl, args, ok := fe.format(a[0], a[1:]); ok {
			emit(printMacro(false, tmpl, args))
			return true
		}
	case "fprintf":
		if len(a) < 2 || stream(a[0]) == "" {
			return false
		}
		if tmpl, args, ok := fe.format(a[1], a[2:]); ok {
			emit(printMacro(stream(a[0]) == "stderr", tmpl, args))
			return true
		}
	case "puts":
		if len(a) == 1 {
			emit(fe.printString(false, a[0], true))
			return true
		}
	case "fputs":
		if len(a) == 2 && stream(a[1]) != "" {
			emit(fe.printString(stream(a[1]) == "stderr", a[0], false))
			return true
		}
	case "putchar":
		if len(a) == 1 {
			emit(fmt.Sprintf("print!(\"{}\", %s);", "("+fe.expr(a[0], "u8")+" as char)"))
			return true
		}
	case "fputc", "putc":
		if len(a) == 2 && stream(a[1]) != "" {
			emit(printMacro(stream(a[1]) == "stderr", "{}", []string{"(" + fe.expr(a[0], "u8") + " as char)"}))
			return true
		}
	case "fflush":
		if len(a) == 1 && stream(a[0]) != "" {
			fe.line("std::io::Write::flush(&mut std::io::%s()).ok();", stream(a[0]))
			return true
		}
	case "sprintf", "snprintf":
		return fe.sprintf(d)
	}
	return false
}

func (fe *funcEmitter) printString(errStream bool, s *hir.Expr, newline bool) string {
	if lit, ok := s.StripCasts().Data.(hir.LiteralData); ok && lit.Kind == hir.LitString {
		text := escapeBraces(lit.Text)
		if newline {
			text += "\n"
		}
		return printMacro(errStream, text, nil)
	}
	tmpl := "{}"
	if newline {
		tmpl += "\n"
	}
	return printMacro(errStream, tmpl, []string{fe.printArg(s, "&str")})
}

// sprintf renders formatting into a string buffer as an assignment.
func (fe *funcEmitter) sprintf(d hir.CallData) bool {
	fmtAt := 1
	if d.Callee == "snprintf" {
		fmtAt = 2
	}
	if len(d.Args) <= fmtAt {
		return false
	}
	dst := localOf(d.Args[0].StripCasts())
	if !dst.IsValid() || !fe.strbufs[dst] {
		return false
	}
	tmpl, args, ok := fe.format(d.Args[fmtAt], d.Args[fmtAt+1:])
	if !ok {
		return false
	}
	parts := append([]string{rustString(tmpl)}, args...)
	fe.withMutexGuards(fe.mutexRefs(d.Args...), false, func() {
		fe.line("%s = format!(%s);", fe.localName(dst), strings.Join(parts, ", "))
	})
	return true
}
