package codegen

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"decant/internal/source"
)

// Fallback is one construct emitted through the raw escape hatch.
type Fallback struct {
	ID        int
	Func      string // empty for module items
	Span      source.Span
	Line      int
	Col       int
	Construct string
	Reason    string
}

// fallbacks are numbered per function while generating in parallel and
// renumbered module-wide when the output is assembled. The placeholder
// holds the local index. Fallbacks whose text was discarded during
// rendering have no placeholder in the output and are dropped.
const marker = "\x1a"

func placeholder(k int) string { return marker + "FB" + strconv.Itoa(k) + marker }

var placeholderRe = regexp.MustCompile(marker + `FB(\d+)` + marker)

// tag is the visible form of fallback n.
func tag(n int) string { return "FALLBACK#" + strconv.Itoa(n) }

// renumber replaces the placeholders of list with tags numbered from
// base+1 in order of appearance and returns the fallbacks that appear.
func renumber(text string, list []Fallback, base int) (string, []Fallback) {
	ids := make(map[int]int)
	var kept []Fallback
	out := placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		k, _ := strconv.Atoi(strings.Trim(m[len(marker)+2:], marker))
		id, seen := ids[k]
		if !seen {
			id = base + len(kept) + 1
			ids[k] = id
			if k >= 1 && k <= len(list) {
				fb := list[k-1]
				fb.ID = id
				kept = append(kept, fb)
			}
		}
		return tag(id)
	})
	return out, kept
}

// fallbackSink collects the fallbacks of one emission unit.
type fallbackSink struct {
	fn    string
	files *source.FileSet
	list  []Fallback
}

func (s *fallbackSink) add(sp source.Span, construct, format string, args ...any) (int, string) {
	fb := Fallback{
		ID:        len(s.list) + 1,
		Func:      s.fn,
		Span:      sp,
		Construct: construct,
		Reason:    fmt.Sprintf(format, args...),
	}
	if s.files != nil {
		start, _ := s.files.Resolve(sp)
		fb.Line, fb.Col = int(start.Line), int(start.Col)
	}
	s.list = append(s.list, fb)
	return fb.ID, fb.Reason
}

// inline wraps code in a tagged unsafe block.
func (s *fallbackSink) inline(sp source.Span, construct, code, format string, args ...any) string {
	k, reason := s.add(sp, construct, format, args...)
	return "unsafe { /* " + placeholder(k) + ": " + commentSafe(reason) + " */ " + code + " }"
}

// comment returns a tagged comment line body for a fallback statement.
func (s *fallbackSink) comment(sp source.Span, construct, format string, args ...any) string {
	k, reason := s.add(sp, construct, format, args...)
	return "// " + placeholder(k) + ": " + commentSafe(reason)
}

func commentSafe(s string) string {
	s = strings.ReplaceAll(s, "*/", "* /")
	return strings.ReplaceAll(s, "\n", " ")
}
