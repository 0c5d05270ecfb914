// ABOUTME: Retained sizes over the dominator tree of a snapshot
// ABOUTME: The bytes an anchor or object release would let the collector reclaim
package graph

// RetainedSize computes, for every object reachable from the roots, the total
// size of the objects it dominates, itself included: what would be reclaimed
// if every path to it from the anchors were cut.
func RetainedSize(g Graph) map[ObjID]uint64 {
	tree := DominatorTree(Dominators(g))
	retained := retainedFrom(g, tree, 0)
	delete(retained, 0)
	return retained
}

// RetainedSizeSubsets computes retained sizes only for the given objects.
// Objects that do not exist or are unreachable are omitted.
func RetainedSizeSubsets(g Graph, targetIDs []ObjID) map[ObjID]uint64 {
	result := make(map[ObjID]uint64, len(targetIDs))
	if len(targetIDs) == 0 {
		return result
	}
	tree := DominatorTree(Dominators(g))
	for _, id := range targetIDs {
		if _, ok := tree[id]; !ok || id == 0 {
			continue
		}
		if _, done := result[id]; done {
			continue
		}
		result[id] = retainedFrom(g, tree, id)[id]
	}
	return result
}

// retainedFrom sums sizes bottom-up over the dominator subtree at top,
// iteratively so deep chains do not grow the goroutine stack.
func retainedFrom(g Graph, tree map[ObjID][]ObjID, top ObjID) map[ObjID]uint64 {
	retained := make(map[ObjID]uint64)
	type frame struct {
		id       ObjID
		expanded bool
	}
	stack := []frame{{id: top}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !f.expanded {
			stack = append(stack, frame{id: f.id, expanded: true})
			for _, child := range tree[f.id] {
				stack = append(stack, frame{id: child})
			}
			continue
		}
		var size uint64
		if obj := g.GetObject(f.id); obj != nil {
			size = obj.Size
		}
		for _, child := range tree[f.id] {
			size += retained[child]
		}
		retained[f.id] = size
	}
	return retained
}
