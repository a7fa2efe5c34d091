package axis

import (
	"sync"
)

// depGraph holds the discovered dependency edges between slots. Edges are
// rebuilt wholesale each time a dependent is re-evaluated, since different
// branches may read different slots between revisions.
type depGraph struct {
	downstream map[SlotRef][]SlotRef // depended-on -> dependents
	upstream   map[SlotRef][]SlotRef // dependent -> depended-on
	mu         sync.RWMutex
}

func newDepGraph() *depGraph {
	return &depGraph{
		downstream: make(map[SlotRef][]SlotRef),
		upstream:   make(map[SlotRef][]SlotRef),
	}
}

// setDeps replaces dependent's recorded dependency set with deps.
func (g *depGraph) setDeps(dependent SlotRef, deps []SlotRef) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, old := range g.upstream[dependent] {
		g.downstream[old] = removeElement(g.downstream[old], dependent)
		if len(g.downstream[old]) == 0 {
			delete(g.downstream, old)
		}
	}
	if len(deps) == 0 {
		delete(g.upstream, dependent)
		return
	}
	g.upstream[dependent] = deps
	for _, dep := range deps {
		g.downstream[dep] = appendUnique(g.downstream[dep], dependent)
	}
}

// dependentsOf returns a copy of the direct dependents of ref.
func (g *depGraph) dependentsOf(ref SlotRef) []SlotRef {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if deps, ok := g.downstream[ref]; ok {
		out := make([]SlotRef, len(deps))
		copy(out, deps)
		return out
	}
	return nil
}

// dependenciesOf returns a copy of the direct dependencies of ref.
func (g *depGraph) dependenciesOf(ref SlotRef) []SlotRef {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if deps, ok := g.upstream[ref]; ok {
		out := make([]SlotRef, len(deps))
		copy(out, deps)
		return out
	}
	return nil
}

// export returns a copy of every downstream edge list.
func (g *depGraph) export() map[SlotRef][]SlotRef {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[SlotRef][]SlotRef, len(g.downstream))
	for ref, deps := range g.downstream {
		cp := make([]SlotRef, len(deps))
		copy(cp, deps)
		out[ref] = cp
	}
	return out
}

// findDependents walks downstream edges iteratively (explicit stack, no
// recursion) and returns every transitive dependent of start.
func (g *depGraph) findDependents(start SlotRef) []SlotRef {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stack := make([]SlotRef, 0, 32)
	stack = append(stack, start)

	dependents := make([]SlotRef, 0, 32)
	visited := make(map[SlotRef]bool, 32)

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[current] {
			continue
		}
		visited[current] = true

		if current != start {
			dependents = append(dependents, current)
		}

		for _, dep := range g.downstream[current] {
			if !visited[dep] {
				stack = append(stack, dep)
			}
		}
	}

	return dependents
}

// group returns the members of the cyclic group containing start, restricted
// to the given candidate set: slots reachable from start downstream whose
// own downstream reaches back. Mutual reachability over the live edge set is
// exactly a strongly connected component; the candidate restriction keeps
// the walk inside the currently dirty region.
func (g *depGraph) group(start SlotRef, within map[SlotRef]bool) []SlotRef {
	fwd := g.reachable(start, within, func(r SlotRef) []SlotRef { return g.downstream[r] })
	back := g.reachable(start, within, func(r SlotRef) []SlotRef { return g.upstream[r] })

	members := []SlotRef{start}
	for ref := range fwd {
		if ref != start && back[ref] {
			members = append(members, ref)
		}
	}
	return members
}

func (g *depGraph) reachable(start SlotRef, within map[SlotRef]bool, edges func(SlotRef) []SlotRef) map[SlotRef]bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := map[SlotRef]bool{start: true}
	stack := []SlotRef{start}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range edges(current) {
			if visited[next] || (within != nil && !within[next]) {
				continue
			}
			visited[next] = true
			stack = append(stack, next)
		}
	}
	return visited
}

func appendUnique[T comparable](slice []T, item T) []T {
	for _, existing := range slice {
		if existing == item {
			return slice
		}
	}
	return append(slice, item)
}

func removeElement[T comparable](slice []T, item T) []T {
	for i, existing := range slice {
		if existing == item {
			return append(slice[:i], slice[i+1:]...)
		}
	}
	return slice
}
