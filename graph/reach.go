// ABOUTME: Reachability from anchors over a snapshot
// ABOUTME: Predicts exactly what the next full collection reclaims

package graph

import "slices"

// Reachable returns the set of objects reachable from the roots.
func Reachable(g Graph) map[ObjID]bool {
	seen := make(map[ObjID]bool)
	queue := make([]ObjID, 0, len(g.GetRoots().IDs))
	for _, id := range g.GetRoots().IDs {
		if !seen[id] && g.GetObject(id) != nil {
			seen[id] = true
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, ptr := range g.GetObject(id).Ptrs {
			if seen[ptr] || g.GetObject(ptr) == nil {
				continue
			}
			seen[ptr] = true
			queue = append(queue, ptr)
		}
	}
	return seen
}

// Unreachable returns, in ascending order, the objects no root reaches: the
// objects a full collection of this heap would reclaim.
func Unreachable(g Graph) []ObjID {
	reachable := Reachable(g)
	var out []ObjID
	g.ForEachObject(func(obj *Object) {
		if !reachable[obj.ID] {
			out = append(out, obj.ID)
		}
	})
	slices.Sort(out)
	return out
}
