// ABOUTME: Queries over the dominator tree of a snapshot
// ABOUTME: Depths, dominator chains and the objects a single release would free
package graph

import "slices"

// DominatorDepth computes the depth of each object in the dominator tree.
// The super-root has depth 0 and roots depth 1.
func DominatorDepth(tree map[ObjID][]ObjID) map[ObjID]int {
	depth := map[ObjID]int{0: 0}
	queue := []ObjID{0}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, child := range tree[id] {
			depth[child] = depth[id] + 1
			queue = append(queue, child)
		}
	}
	return depth
}

// DominatorPath returns the chain of dominators from id up to the
// super-root, both ends included. It returns nil for unreachable objects.
func DominatorPath(idom map[ObjID]ObjID, id ObjID) []ObjID {
	if _, ok := idom[id]; !ok {
		return nil
	}
	path := []ObjID{id}
	for cur := id; cur != 0; {
		cur = idom[cur]
		path = append(path, cur)
	}
	return path
}

// IsDominated reports whether every path from the roots to id passes
// through dominator. An object dominates itself and the super-root
// dominates every reachable object.
func IsDominated(idom map[ObjID]ObjID, id, dominator ObjID) bool {
	if _, ok := idom[id]; !ok {
		return false
	}
	for cur := id; ; cur = idom[cur] {
		if cur == dominator {
			return true
		}
		if cur == 0 {
			return false
		}
	}
}

// Dominated returns id and every object it dominates, in ascending order:
// the objects reclaimed once nothing outside the set refers to id.
func Dominated(tree map[ObjID][]ObjID, id ObjID) []ObjID {
	if _, ok := tree[id]; !ok {
		return nil
	}
	out := []ObjID{id}
	for i := 0; i < len(out); i++ {
		out = append(out, tree[out[i]]...)
	}
	slices.Sort(out)
	return out
}
