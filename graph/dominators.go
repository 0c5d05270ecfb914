// ABOUTME: Immediate dominators of a snapshot using the Cooper-Harvey-Kennedy iteration
// ABOUTME: An object dominates everything that dies when its last rooted path is cut
package graph

import "slices"

// adjacency returns the successor lists of g restricted to objects present in
// g, with the super-root 0 pointing at every root. Duplicate edges collapse.
func adjacency(g Graph) map[ObjID][]ObjID {
	adj := make(map[ObjID][]ObjID, g.NumObjects()+1)
	adj[0] = dedupe(g, g.GetRoots().IDs)
	g.ForEachObject(func(obj *Object) {
		adj[obj.ID] = dedupe(g, obj.Ptrs)
	})
	return adj
}

func dedupe(g Graph, ids []ObjID) []ObjID {
	out := make([]ObjID, 0, len(ids))
	for i, id := range ids {
		if id == 0 || containsBefore(ids, i, id) || g.GetObject(id) == nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

// postorder returns the objects reachable from the super-root in DFS
// postorder, super-root last, and the position of each in that order.
func postorder(adj map[ObjID][]ObjID) ([]ObjID, map[ObjID]int) {
	type frame struct {
		id   ObjID
		next int
	}
	order := make([]ObjID, 0, len(adj))
	index := make(map[ObjID]int, len(adj))
	visited := map[ObjID]bool{0: true}
	stack := []frame{{id: 0}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		succ := adj[top.id]
		if top.next < len(succ) {
			w := succ[top.next]
			top.next++
			if !visited[w] {
				visited[w] = true
				stack = append(stack, frame{id: w})
			}
			continue
		}
		index[top.id] = len(order)
		order = append(order, top.id)
		stack = stack[:len(stack)-1]
	}
	return order, index
}

// Dominators computes the immediate dominator of every object reachable from
// the roots. Roots, and objects reachable from more than one root, map to the
// super-root 0. Unreachable objects are absent.
func Dominators(g Graph) map[ObjID]ObjID {
	adj := adjacency(g)
	order, index := postorder(adj)

	preds := make(map[ObjID][]ObjID, len(order))
	for _, v := range order {
		for _, w := range adj[v] {
			preds[w] = append(preds[w], v)
		}
	}

	idom := map[ObjID]ObjID{0: 0}
	intersect := func(a, b ObjID) ObjID {
		for a != b {
			for index[a] < index[b] {
				a = idom[a]
			}
			for index[b] < index[a] {
				b = idom[b]
			}
		}
		return a
	}

	for changed := true; changed; {
		changed = false
		// Reverse postorder, skipping the super-root.
		for i := len(order) - 2; i >= 0; i-- {
			b := order[i]
			var dom ObjID
			found := false
			for _, p := range preds[b] {
				if _, ok := idom[p]; !ok {
					continue
				}
				if !found {
					dom, found = p, true
					continue
				}
				dom = intersect(p, dom)
			}
			if cur, ok := idom[b]; !ok || cur != dom {
				idom[b] = dom
				changed = true
			}
		}
	}

	delete(idom, 0)
	return idom
}

// DominatorTree inverts immediate dominators into child lists. The
// super-root 0 is always present; children are in ascending ID order.
func DominatorTree(idom map[ObjID]ObjID) map[ObjID][]ObjID {
	tree := map[ObjID][]ObjID{0: {}}
	for node, dom := range idom {
		if _, ok := tree[node]; !ok {
			tree[node] = []ObjID{}
		}
		tree[dom] = append(tree[dom], node)
	}
	for _, children := range tree {
		slices.Sort(children)
	}
	return tree
}
