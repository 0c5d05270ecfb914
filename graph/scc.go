// ABOUTME: Strongly connected components of a snapshot (Tarjan, iterative)
// ABOUTME: Reports the reference cycles that reference counting alone cannot reclaim

package graph

import (
	"cmp"
	"slices"
)

// Cycles returns every reference cycle in g: strongly connected components
// with more than one object, or a single object holding a handle to itself.
// Each cycle is sorted, and cycles are ordered by their smallest ID.
func Cycles(g Graph) [][]ObjID {
	adj := make(map[ObjID][]ObjID, g.NumObjects())
	var ids []ObjID
	g.ForEachObject(func(obj *Object) {
		ids = append(ids, obj.ID)
		adj[obj.ID] = dedupe(g, obj.Ptrs)
	})

	index := make(map[ObjID]int, len(ids))
	lowlink := make(map[ObjID]int, len(ids))
	onStack := make(map[ObjID]bool)
	var stack []ObjID
	var cycles [][]ObjID
	next := 1

	type frame struct {
		id    ObjID
		child int
	}
	for _, start := range ids {
		if index[start] != 0 {
			continue
		}
		calls := []frame{{id: start}}
		index[start], lowlink[start] = next, next
		next++
		stack = append(stack, start)
		onStack[start] = true

		for len(calls) > 0 {
			top := &calls[len(calls)-1]
			v := top.id
			if top.child < len(adj[v]) {
				w := adj[v][top.child]
				top.child++
				switch {
				case index[w] == 0:
					index[w], lowlink[w] = next, next
					next++
					stack = append(stack, w)
					onStack[w] = true
					calls = append(calls, frame{id: w})
				case onStack[w]:
					lowlink[v] = min(lowlink[v], index[w])
				}
				continue
			}

			calls = calls[:len(calls)-1]
			if len(calls) > 0 {
				parent := calls[len(calls)-1].id
				lowlink[parent] = min(lowlink[parent], lowlink[v])
			}
			if lowlink[v] != index[v] {
				continue
			}
			var component []ObjID
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				component = append(component, w)
				if w == v {
					break
				}
			}
			if len(component) > 1 || slices.Contains(adj[v], v) {
				slices.Sort(component)
				cycles = append(cycles, component)
			}
		}
	}

	slices.SortFunc(cycles, func(a, b []ObjID) int {
		return cmp.Compare(a[0], b[0])
	})
	return cycles
}

// CyclicGarbage returns the cycles no root reaches. They survive local
// reclamation and are reclaimed by the next full collection.
func CyclicGarbage(g Graph) [][]ObjID {
	reachable := Reachable(g)
	var out [][]ObjID
	for _, cycle := range Cycles(g) {
		if !reachable[cycle[0]] {
			out = append(out, cycle)
		}
	}
	return out
}
