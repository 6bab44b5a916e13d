package testkit

import (
	"fmt"

	"fortio.org/safecast"

	"decant/internal/hir"
	"decant/internal/source"
)

// CheckInvariants verifies what every analysis relies on:
//  1. NodeIDs are 1..Nodes in canonical order
//  2. every local reference and every binding scope exists
//  3. every span lies within the source
func CheckInvariants(mod *hir.Module, src string) error {
	size, err := safecast.Conv[uint32](len(src))
	if err != nil {
		return fmt.Errorf("source length overflow: %w", err)
	}
	for _, fn := range mod.Funcs {
		if err := checkFunc(fn, size); err != nil {
			return fmt.Errorf("%s: %w", fn.Name, err)
		}
	}
	return nil
}

func checkFunc(fn *hir.Func, size uint32) error {
	var (
		next   hir.NodeID
		failed error
	)
	check := func(id hir.NodeID, sp source.Span) bool {
		next++
		switch {
		case id != next:
			failed = fmt.Errorf("node %d numbered %d", next, id)
		case sp.End > size || sp.End < sp.Start:
			failed = fmt.Errorf("node %d has span %s outside the source", id, sp)
		}
		return failed == nil
	}
	hir.Inspect(fn.Body,
		func(s *hir.Stmt) bool {
			return check(s.ID, s.Span)
		},
		func(e *hir.Expr) bool {
			if !check(e.ID, e.Span) {
				return false
			}
			if id, ok := e.LocalRef(); ok && fn.Local(id) == nil {
				failed = fmt.Errorf("node %d references unknown local %d", e.ID, id)
			}
			return failed == nil
		})
	if failed != nil {
		return failed
	}
	if uint32(next) != fn.Nodes {
		return fmt.Errorf("counted %d nodes, func records %d", next, fn.Nodes)
	}
	for _, l := range fn.Locals {
		if fn.Scope(l.Scope) == nil {
			return fmt.Errorf("local %s has unknown scope %d", l.Name, l.Scope)
		}
	}
	return nil
}
