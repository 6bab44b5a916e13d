package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
)

// TextOpts controls the human-readable rendering.
type TextOpts struct {
	Reasoning bool // print every reasoning line under its decision
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	funcStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	safeColor    = color.New(color.FgGreen)
	borrowColor  = color.New(color.FgCyan)
	unknownColor = color.New(color.FgRed)
	warnColor    = color.New(color.FgYellow)
	errColor     = color.New(color.FgRed, color.Bold)
)

// pad left-aligns s in a column of w cells.
func pad(s string, w int) string {
	if n := runewidth.StringWidth(s); n < w {
		return s + strings.Repeat(" ", w-n)
	}
	return s
}

func kindColor(kind string) *color.Color {
	switch kind {
	case "Box", "Vec", "OptionBox":
		return safeColor
	case "Ref", "Slice":
		return borrowColor
	}
	return unknownColor
}

func (l Location) String() string {
	if l.Line == 0 {
		return "?"
	}
	return strconv.FormatUint(uint64(l.Line), 10) + ":" + strconv.FormatUint(uint64(l.Col), 10)
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteText renders r for a terminal.
func WriteText(w io.Writer, r *AnalysisReport, opts TextOpts) error {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%s %s: %s", r.Tool, r.Version, r.File)))
	b.WriteString("\n")

	for i := range r.Functions {
		writeFunc(&b, &r.Functions[i], opts)
	}
	if len(r.Structs) > 0 {
		b.WriteString("\n" + headerStyle.Render("structs") + "\n")
		nameW := 0
		for _, s := range r.Structs {
			nameW = max(nameW, runewidth.StringWidth(s.Name))
		}
		for _, s := range r.Structs {
			line := "  " + pad(s.Name, nameW) + "  " + pad(s.Strategy, 6) + "  " + s.Rust
			if len(s.Lifetimes) > 0 {
				line += "<" + strings.Join(s.Lifetimes, ", ") + ">"
			}
			b.WriteString(line + "\n")
		}
	}
	if len(r.Globals) > 0 {
		b.WriteString("\n" + headerStyle.Render("globals") + "\n")
		nameW := 0
		for _, g := range r.Globals {
			nameW = max(nameW, runewidth.StringWidth(g.Name))
		}
		for _, g := range r.Globals {
			line := "  " + pad(g.Name, nameW) + "  " + g.Strategy
			if g.Lock != "" {
				line += " under " + g.Lock
			}
			b.WriteString(line + "\n")
		}
	}
	if len(r.Mapping) > 0 {
		b.WriteString("\n" + headerStyle.Render("lock data") + "\n")
		writeMapping(&b, r.Mapping)
	}
	if len(r.Deadlocks) > 0 {
		b.WriteString("\n" + headerStyle.Render("potential deadlocks") + "\n")
		for _, d := range r.Deadlocks {
			b.WriteString("  " + warnColor.Sprint(strings.Join(append(append([]string{}, d.Path...), d.Path[0]), " -> ")) + "\n")
			for _, e := range d.Edges {
				fmt.Fprintf(&b, "    %s then %s in %s at %s\n", e.From, e.To, e.Func, e.Location)
			}
		}
	}
	if len(r.Skipped) > 0 {
		b.WriteString("\n" + headerStyle.Render("not translated") + "\n")
		for _, s := range r.Skipped {
			fmt.Fprintf(&b, "  %s %s at %s: %s\n", errColor.Sprint(s.Code), s.Name, s.Location, s.Reason)
		}
	}
	if len(r.Items) > 0 {
		b.WriteString("\n" + headerStyle.Render("module fallbacks") + "\n")
		for _, fb := range r.Items {
			writeFallback(&b, fb)
		}
	}
	b.WriteString("\n")
	writeSummary(&b, &r.Summary)
	_, err := io.WriteString(w, b.String())
	return err
}

func writeFunc(b *strings.Builder, f *FuncReport, opts TextOpts) {
	b.WriteString("\n" + funcStyle.Render("fn "+f.Name) + dimStyle.Render(" at "+f.Location.String()) + "\n")
	nameW, kindW := 6, 4
	for _, d := range f.Decisions {
		nameW = max(nameW, runewidth.StringWidth(d.Name))
		kindW = max(kindW, runewidth.StringWidth(d.Kind))
	}
	for _, d := range f.Decisions {
		line := "  " + pad(d.Name, nameW) + "  " + kindColor(d.Kind).Sprint(pad(d.Kind, kindW)) + "  " + strconv.FormatFloat(d.Confidence, 'f', 2, 64)
		if d.Rule > 0 {
			line += "  rule " + strconv.Itoa(d.Rule)
		}
		if d.Length != "" {
			line += "  len " + d.Length
		}
		if d.Mutable {
			line += "  mut"
		}
		if d.Nullable {
			line += "  nullable"
		}
		b.WriteString(line + "\n")
		if opts.Reasoning {
			for _, r := range d.Reasoning {
				b.WriteString(dimStyle.Render("    - "+r) + "\n")
			}
		}
		for _, df := range d.Defects {
			fmt.Fprintf(b, "    %s at %s: %s\n", warnColor.Sprint(df.Kind), df.Location, df.Detail)
		}
	}
	if f.Return.Shape != "" && f.Return.Shape != "Value" {
		line := "  " + pad("return", nameW) + "  " + f.Return.Shape
		if f.Return.Nullable {
			line += "  nullable"
		}
		b.WriteString(line + "\n")
	}
	if lt := f.Lifetimes; lt.Elision != "" && lt.Elision != "none" {
		line := "  lifetimes  " + lt.Elision
		if lt.Generics != "" {
			line += " " + lt.Generics
		}
		if lt.Note != "" {
			line += dimStyle.Render(" (" + lt.Note + ")")
		}
		b.WriteString(line + "\n")
	}
	for _, d := range f.Lifetimes.Dangling {
		fmt.Fprintf(b, "  %s %s at %s: %s\n", errColor.Sprint("dangling"), d.Local, d.Location, d.Reason)
	}
	for _, rg := range f.Regions {
		scope := "same block"
		if !rg.SameBlock {
			scope = "crosses blocks"
		}
		fmt.Fprintf(b, "  lock %s %s %s-%s, %s\n", rg.Lock, rg.Kind, rg.Start, rg.End, scope)
	}
	writeMapping(b, f.Mapping)
	for _, v := range f.Violations {
		fmt.Fprintf(b, "  %s at %s: %s\n", warnColor.Sprint(v.Kind), v.Location, v.Message)
	}
	for _, p := range f.Patterns {
		fmt.Fprintf(b, "  pattern %s: %s\n", p.Kind, p.Detail)
	}
	for _, fb := range f.Fallbacks {
		writeFallback(b, fb)
	}
	if f.Truncated {
		b.WriteString(dimStyle.Render("  path enumeration truncated") + "\n")
	}
}

func writeMapping(b *strings.Builder, m []LockMapping) {
	for _, lm := range m {
		names := make([]string, len(lm.Vars))
		for i, v := range lm.Vars {
			names[i] = v.Name
			if !v.Protected {
				names[i] += fmt.Sprintf(" (%d/%d)", v.Guarded, v.Sites)
			}
		}
		fmt.Fprintf(b, "  %s protects {%s}\n", lm.Lock, strings.Join(names, ", "))
	}
}

func writeFallback(b *strings.Builder, fb Fallback) {
	fmt.Fprintf(b, "  %s %s at %s: %s\n", unknownColor.Sprint("FALLBACK#"+strconv.Itoa(fb.ID)), fb.Construct, fb.Location, fb.Reason)
}

func writeSummary(b *strings.Builder, s *Summary) {
	kinds := make([]string, 0, len(s.Decisions))
	for _, k := range []string{"Box", "Vec", "OptionBox", "Ref", "Slice", "RawPointer", "Unknown"} {
		if n := s.Decisions[k]; n > 0 {
			kinds = append(kinds, k+" "+strconv.Itoa(n))
		}
	}
	fmt.Fprintf(b, "%d functions, %d not translated, %d fallbacks", s.Functions, s.Skipped, s.Fallbacks)
	if len(kinds) > 0 {
		b.WriteString("; " + strings.Join(kinds, ", "))
	}
	b.WriteString("\n")
}

// WriteAudit prints the fallback audit of every report: counts per
// construct, then each location.
func WriteAudit(w io.Writer, reports []*AnalysisReport) error {
	total := Summary{Constructs: make(map[string]int)}
	for _, r := range reports {
		total.Fallbacks += r.Summary.Fallbacks
		for k, n := range r.Summary.Constructs {
			total.Constructs[k] += n
		}
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render("unsafe audit") + "\n")
	if total.Fallbacks == 0 {
		b.WriteString(safeColor.Sprint("no fallbacks") + "\n")
		_, err := io.WriteString(w, b.String())
		return err
	}
	kinds := total.ConstructKinds()
	kindW := len("construct")
	for _, k := range kinds {
		kindW = max(kindW, runewidth.StringWidth(k))
	}
	b.WriteString("  " + pad("construct", kindW) + "  count\n")
	for _, k := range kinds {
		fmt.Fprintf(&b, "  %s  %5d\n", pad(k, kindW), total.Constructs[k])
	}
	b.WriteString("\n")
	for _, r := range reports {
		for _, fb := range r.AllFallbacks() {
			where := r.File + ":" + fb.Location.String()
			if fb.Func != "" {
				where += " in " + fb.Func
			}
			fmt.Fprintf(&b, "  %s %s %s: %s\n", unknownColor.Sprint("FALLBACK#"+strconv.Itoa(fb.ID)), where, fb.Construct, fb.Reason)
		}
	}
	fmt.Fprintf(&b, "\n%d fallbacks in %d files\n", total.Fallbacks, len(reports))
	_, err := io.WriteString(w, b.String())
	return err
}
