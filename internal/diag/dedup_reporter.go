package diag

import "decant/internal/source"

type site struct {
	code Code
	span source.Span
}

// DedupReporter forwards the first finding of each code at a given span.
// Ownership and lock analyses walk every path through a function, so the
// same defect tends to be found once per path with slightly different
// wording; only the first wording survives.
type DedupReporter struct {
	next       Reporter
	seen       map[site]struct{}
	suppressed int
}

func NewDedupReporter(next Reporter) *DedupReporter {
	return &DedupReporter{next: next, seen: make(map[site]struct{})}
}

func (r *DedupReporter) Report(code Code, sev Severity, primary source.Span, msg string, notes []Note) {
	if r == nil {
		return
	}
	k := site{code: code, span: primary}
	if _, dup := r.seen[k]; dup {
		r.suppressed++
		return
	}
	r.seen[k] = struct{}{}
	if r.next != nil {
		r.next.Report(code, sev, primary, msg, notes)
	}
}

// Suppressed reports how many findings were swallowed as repeats.
func (r *DedupReporter) Suppressed() int {
	if r == nil {
		return 0
	}
	return r.suppressed
}
