// Package testkit holds helpers shared by package tests: lowering C
// snippets straight to HIR and checking structural invariants.
package testkit

import (
	"strings"
	"testing"

	"decant/internal/bridge"
	"decant/internal/cparse"
	"decant/internal/hir"
	"decant/internal/stdlib"
)

// Build parses and lowers src with the builtin libc provider.
func Build(src string) (*hir.Module, []*bridge.ConstructionError, error) {
	prov := stdlib.Builtin()
	unit, err := cparse.Parse("test.c", src, cparse.WithTypeNames(stdlib.TypeNames(prov)...))
	if err != nil {
		return nil, nil, err
	}
	mod, errs := bridge.Build(unit, bridge.Options{Path: "test.c", Provider: prov})
	return mod, errs, nil
}

// Lower is Build for tests that expect every function to survive: a parse
// error or a function-level construction error fails t.
func Lower(t testing.TB, src string) *hir.Module {
	t.Helper()
	mod, errs, err := Build(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	for _, e := range errs {
		if e.Func != "" {
			t.Fatalf("construction: %v", e)
		}
	}
	if err := CheckInvariants(mod, src); err != nil {
		t.Fatalf("invariants: %v", err)
	}
	return mod
}

// Func returns the named function of mod or fails t.
func Func(t testing.TB, mod *hir.Module, name string) *hir.Func {
	t.Helper()
	fn := mod.FuncByName(name)
	if fn == nil {
		t.Fatalf("function %s not found", name)
	}
	return fn
}

// Lines joins C source lines; it keeps test literals readable.
func Lines(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}
