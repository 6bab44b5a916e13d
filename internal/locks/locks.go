// Package locks binds locks to the shared data they guard. It matches
// acquire/release calls into regions, maps each shared variable to the lock
// that covers it and reports accesses outside that lock's regions.
package locks

import (
	"slices"
	"strings"

	"decant/internal/hir"
	"decant/internal/source"
)

// Config names the acquire and release functions.
type Config struct {
	Acquire []string
	Release []string
}

func DefaultConfig() Config {
	return Config{
		Acquire: []string{
			"pthread_mutex_lock",
			"pthread_rwlock_rdlock",
			"pthread_rwlock_wrlock",
			"pthread_spin_lock",
			"mtx_lock",
		},
		Release: []string{
			"pthread_mutex_unlock",
			"pthread_rwlock_unlock",
			"pthread_spin_unlock",
			"mtx_unlock",
		},
	}
}

func (c Config) isAcquire(name string) bool { return slices.Contains(c.Acquire, name) }
func (c Config) isRelease(name string) bool { return slices.Contains(c.Release, name) }

// LockKind is the flavour of an acquisition.
type LockKind uint8

const (
	LockMutex LockKind = iota
	LockRead
	LockWrite
	LockSpin
)

func (k LockKind) String() string {
	switch k {
	case LockRead:
		return "read"
	case LockWrite:
		return "write"
	case LockSpin:
		return "spin"
	default:
		return "mutex"
	}
}

func kindOf(callee string) LockKind {
	switch {
	case strings.Contains(callee, "rdlock"):
		return LockRead
	case strings.Contains(callee, "wrlock"):
		return LockWrite
	case strings.Contains(callee, "spin"):
		return LockSpin
	default:
		return LockMutex
	}
}

// Identity names a lock or a shared variable. Path is the textual access
// path (`m`, `s->mu`, `g.lock`). Key is the module-wide identity: the path
// itself for globals, the struct type and field path for data reached
// through a parameter, and a function-qualified path for locals.
type Identity struct {
	Path   string
	Key    string
	Global bool
}

// Region is one matched acquire/release pair.
type Region struct {
	Lock      Identity
	Kind      LockKind
	Acquire   int // index of the acquisition in the function, shared by regions it opens
	Start     hir.NodeID
	End       hir.NodeID
	StartSpan source.Span
	EndSpan   source.Span
	Depth     int
	SameBlock bool

	// For same-block regions whose calls are whole statements: the
	// statement list and the indices of the acquire and release in it.
	List *[]hir.Stmt
	From int
	To   int
}

// Access is one read or write of shared data.
type Access struct {
	Func  string
	Var   Identity
	Node  hir.NodeID
	Span  source.Span
	Write bool
	Held  []string // paths of the locks held, in acquisition order
}

// ViolationKind enumerates lock discipline violations.
type ViolationKind uint8

const (
	UnprotectedAccess ViolationKind = iota + 1
	StackMismatch
	PotentialDeadlock
)

func (k ViolationKind) String() string {
	switch k {
	case UnprotectedAccess:
		return "UnprotectedAccess"
	case StackMismatch:
		return "StackMismatch"
	case PotentialDeadlock:
		return "PotentialDeadlock"
	default:
		return "Violation"
	}
}

type Violation struct {
	Kind    ViolationKind
	Func    string
	Lock    string
	Var     string
	Node    hir.NodeID
	Span    source.Span
	Message string
}

// Binding is a shared variable mapped to a lock.
type Binding struct {
	Var       Identity
	Sites     int
	Guarded   int
	Protected bool // every site holds the lock
}

// LockVars is the protected set of one lock.
type LockVars struct {
	Lock Identity
	Vars []Binding
}

// Mapping is lock identity → protected variables, ordered by lock key.
type Mapping []LockVars

// Lock returns the mapping entry of key.
func (m Mapping) Lock(key string) *LockVars {
	for i := range m {
		if m[i].Lock.Key == key {
			return &m[i]
		}
	}
	return nil
}

// LockOf returns the lock a variable is mapped to.
func (m Mapping) LockOf(varKey string) (Identity, bool) {
	for _, lv := range m {
		for _, b := range lv.Vars {
			if b.Var.Key == varKey {
				return lv.Lock, true
			}
		}
	}
	return Identity{}, false
}

// OrderEdge records that To was acquired while From was held. In a
// function Result the ends are lock paths; in the module graph they are
// keys.
type OrderEdge struct {
	From, To string
	Func     string
	Span     source.Span
}

// Result is the lock analysis of one function.
type Result struct {
	Func       *hir.Func
	Regions    []Region
	Accesses   []Access
	Locks      []Identity // every lock acquired, by first acquisition
	Edges      []OrderEdge
	Mapping    Mapping
	Violations []Violation
}

// RegionsOf returns the regions opened by acquisition acq.
func (r *Result) RegionsOf(acq int) []Region {
	var out []Region
	for _, rg := range r.Regions {
		if rg.Acquire == acq {
			out = append(out, rg)
		}
	}
	return out
}
