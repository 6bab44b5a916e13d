package locks

import (
	"fmt"
	"slices"
	"strings"
)

// bind maps every variable touched under some lock to the lock held at
// most of its sites; ties go to the smaller lock key. Sites of a mapped
// variable that do not hold its lock are UnprotectedAccess violations.
func bind(accesses []Access, locks map[string]Identity, varKey func(Identity) string, heldKeys func(*Access) []string) (Mapping, []Violation) {
	type entry struct {
		id    Identity
		sites []*Access
	}
	byVar := make(map[string]*entry)
	var order []string
	for i := range accesses {
		ac := &accesses[i]
		k := varKey(ac.Var)
		e, ok := byVar[k]
		if !ok {
			e = &entry{id: ac.Var}
			byVar[k] = e
			order = append(order, k)
		}
		e.sites = append(e.sites, ac)
	}
	slices.Sort(order)

	perLock := make(map[string][]Binding)
	var violations []Violation
	for _, k := range order {
		e := byVar[k]
		counts := make(map[string]int)
		for _, ac := range e.sites {
			for _, l := range dedup(heldKeys(ac)) {
				counts[l]++
			}
		}
		lock, best := "", 0
		for l, n := range counts {
			if n > best || (n == best && l < lock) {
				lock, best = l, n
			}
		}
		if lock == "" {
			continue
		}
		perLock[lock] = append(perLock[lock], Binding{Var: e.id, Sites: len(e.sites), Guarded: best, Protected: best == len(e.sites)})
		for _, ac := range e.sites {
			if slices.Contains(heldKeys(ac), lock) {
				continue
			}
			verb := "reads"
			if ac.Write {
				verb = "writes"
			}
			lp := locks[lock].Path
			violations = append(violations, Violation{
				Kind:    UnprotectedAccess,
				Func:    ac.Func,
				Lock:    lp,
				Var:     ac.Var.Path,
				Node:    ac.Node,
				Span:    ac.Span,
				Message: fmt.Sprintf("%s %s without holding %s", verb, ac.Var.Path, lp),
			})
		}
	}

	keys := make([]string, 0, len(perLock))
	for l := range perLock {
		keys = append(keys, l)
	}
	slices.Sort(keys)
	m := make(Mapping, 0, len(keys))
	for _, l := range keys {
		id, ok := locks[l]
		if !ok {
			id = Identity{Path: l, Key: l}
		}
		m = append(m, LockVars{Lock: id, Vars: perLock[l]})
	}
	return m, violations
}

func dedup(xs []string) []string {
	out := slices.Clone(xs)
	slices.Sort(out)
	return slices.Compact(out)
}

// AllGlobal reports whether the lock and every variable it protects are
// globals.
func (lv *LockVars) AllGlobal() bool {
	if !lv.Lock.Global || strings.ContainsAny(lv.Lock.Path, ".->*[") {
		return false
	}
	for _, b := range lv.Vars {
		if !b.Var.Global {
			return false
		}
	}
	return len(lv.Vars) > 0
}
