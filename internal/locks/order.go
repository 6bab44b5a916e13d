package locks

import (
	"slices"

	"decant/internal/source"
)

// orderEdge is the first place an ordering was established.
type orderEdge struct {
	Func string
	Span source.Span
}

// OrderGraph tracks lock acquisition order across the functions of a
// module. An edge A → B means B was acquired while A was held.
type OrderGraph struct {
	edges map[string]map[string]orderEdge
	locks map[string]struct{}
}

// Cycle is a potential deadlock: Path[0] → Path[1] → … → Path[0].
type Cycle struct {
	Path  []string
	Edges []OrderEdge
}

func NewOrderGraph() *OrderGraph {
	return &OrderGraph{
		edges: make(map[string]map[string]orderEdge),
		locks: make(map[string]struct{}),
	}
}

func (g *OrderGraph) AddLock(lock string) { g.locks[lock] = struct{}{} }

// AddEdge records that to was acquired while from was held. It reports
// whether the edge is new.
func (g *OrderGraph) AddEdge(from, to, fn string, sp source.Span) bool {
	g.AddLock(from)
	g.AddLock(to)
	if g.edges[from] == nil {
		g.edges[from] = make(map[string]orderEdge)
	}
	if _, ok := g.edges[from][to]; ok {
		return false
	}
	g.edges[from][to] = orderEdge{Func: fn, Span: sp}
	return true
}

func (g *OrderGraph) Locks() []string {
	out := make([]string, 0, len(g.locks))
	for l := range g.locks {
		out = append(out, l)
	}
	slices.Sort(out)
	return out
}

func (g *OrderGraph) successors(lock string) []string {
	out := make([]string, 0, len(g.edges[lock]))
	for to := range g.edges[lock] {
		out = append(out, to)
	}
	slices.Sort(out)
	return out
}

// Cycles finds the cycles closed by DFS back edges. Locks and successors
// are visited in sorted order, and each cycle is rotated to start at its
// smallest lock, so the result is deterministic.
func (g *OrderGraph) Cycles() []Cycle {
	const (
		unvisited = iota
		onPath
		done
	)
	state := make(map[string]int)
	var stack []string
	var cycles []Cycle
	seen := make(map[string]bool)

	var dfs func(lock string)
	dfs = func(lock string) {
		state[lock] = onPath
		stack = append(stack, lock)
		for _, next := range g.successors(lock) {
			switch state[next] {
			case onPath:
				i := slices.Index(stack, next)
				c := g.cycle(slices.Clone(stack[i:]))
				if key := cycleKey(c.Path); !seen[key] {
					seen[key] = true
					cycles = append(cycles, c)
				}
			case unvisited:
				dfs(next)
			}
		}
		stack = stack[:len(stack)-1]
		state[lock] = done
	}
	for _, lock := range g.Locks() {
		if state[lock] == unvisited {
			dfs(lock)
		}
	}
	return cycles
}

func (g *OrderGraph) cycle(path []string) Cycle {
	start := 0
	for i, l := range path {
		if l < path[start] {
			start = i
		}
	}
	path = append(path[start:], path[:start]...)
	c := Cycle{Path: path}
	for i, from := range path {
		to := path[(i+1)%len(path)]
		e := g.edges[from][to]
		c.Edges = append(c.Edges, OrderEdge{From: from, To: to, Func: e.Func, Span: e.Span})
	}
	return c
}

func cycleKey(path []string) string {
	key := ""
	for _, l := range path {
		key += l + "\x00"
	}
	return key
}

// String renders `a -> b -> a`.
func (c Cycle) String() string {
	s := ""
	for _, l := range c.Path {
		s += l + " -> "
	}
	if len(c.Path) > 0 {
		s += c.Path[0]
	}
	return s
}
