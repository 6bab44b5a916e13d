package driver

import (
	"fmt"

	"decant/internal/bridge"
	"decant/internal/codegen"
	"decant/internal/diag"
	"decant/internal/hir"
	"decant/internal/locks"
	"decant/internal/ownership"
	"decant/internal/source"
)

var defectCodes = map[ownership.DefectKind]diag.Code{
	ownership.DefectDoubleFree:    diag.OwnDoubleFree,
	ownership.DefectUseAfterFree:  diag.OwnUseAfterFree,
	ownership.DefectForgottenFree: diag.OwnForgottenFree,
}

var violationCodes = map[locks.ViolationKind]diag.Code{
	locks.UnprotectedAccess: diag.LckUnprotectedAccess,
	locks.StackMismatch:     diag.LckStackMismatch,
	locks.PotentialDeadlock: diag.LckPotentialDeadlock,
}

// collect turns the findings of every stage into diagnostics.
func collect(bag *diag.Bag, mod *hir.Module, an *codegen.Analysis, out *codegen.Output, cerrs []*bridge.ConstructionError) {
	r := diag.NewDedupReporter(diag.BagReporter{Bag: bag})
	for _, e := range cerrs {
		bag.Add(e.Diagnostic())
	}

	for i, fn := range mod.Funcs {
		t := an.Ownership.Func(fn.ID)
		if t != nil {
			for _, d := range t.Decisions {
				for _, df := range d.Defects {
					diag.ReportWarning(r, defectCodes[df.Kind], df.Span, fmt.Sprintf("%s: %s", d.Name, df.Detail)).
						WithNote(fn.Span, "in function "+fn.Name).
						Emit()
				}
				if d.Kind == ownership.KindUnknown && len(d.Defects) == 0 {
					b := diag.ReportInfo(r, diag.OwnInconclusive, spanOf(fn, d.Local), fmt.Sprintf("%s in %s stays a raw pointer", d.Name, fn.Name))
					for _, line := range d.Reasoning {
						b.WithNote(fn.Span, line)
					}
					b.Emit()
				}
			}
			if t.Truncated {
				diag.ReportInfo(r, diag.OwnInconclusive, fn.Span, "path enumeration in "+fn.Name+" truncated; unproven bindings stay raw").Emit()
			}
		}

		if i < len(an.Lifetimes) && an.Lifetimes[i] != nil {
			lt := an.Lifetimes[i]
			for _, dg := range lt.Dangling {
				diag.ReportWarning(r, diag.LftDanglingReference, dg.Span, dg.Reason).Emit()
			}
			if lt.Signature.Explicit() {
				diag.ReportInfo(r, diag.LftExplicitRequired, fn.Span, fmt.Sprintf("%s returns a reference derived from several parameters; annotated %s", fn.Name, lt.Signature.Generics())).Emit()
			}
		}

		if an.Locks != nil && i < len(an.Locks.Funcs) && an.Locks.Funcs[i] != nil {
			for _, rg := range an.Locks.Funcs[i].Regions {
				if !rg.SameBlock {
					diag.ReportInfo(r, diag.LckCrossBlockRegion, rg.StartSpan, fmt.Sprintf("region of %s in %s spans blocks; emitted as raw calls", rg.Lock.Path, fn.Name)).
						WithNote(rg.EndSpan, "released here").
						Emit()
				}
			}
		}
	}

	if an.Locks != nil {
		for _, v := range an.Locks.Violations {
			diag.ReportWarning(r, violationCodes[v.Kind], v.Span, v.Message).Emit()
		}
	}
	for _, fb := range out.Fallbacks {
		diag.ReportInfo(r, diag.GenFallback, fb.Span, fmt.Sprintf("FALLBACK#%d %s: %s", fb.ID, fb.Construct, fb.Reason)).Emit()
	}
}

func spanOf(fn *hir.Func, l hir.LocalID) source.Span {
	if loc := fn.Local(l); loc != nil {
		return loc.Span
	}
	return fn.Span
}
