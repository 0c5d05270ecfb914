// ABOUTME: Breadth-first search for retention paths from an object to anchors
// ABOUTME: Answers why an object is still alive after a collection

package graph

// Path is a chain of objects from a target back to an anchored object. Each
// object in the chain holds a handle to its predecessor.
type Path struct {
	IDs []ObjID // From the target to the root
}

// step is one link of a search path; paths share their common suffix.
type step struct {
	id   ObjID
	prev *step
	len  int
}

func (s *step) contains(id ObjID) bool {
	for ; s != nil; s = s.prev {
		if s.id == id {
			return true
		}
	}
	return false
}

func (s *step) path() Path {
	ids := make([]ObjID, s.len)
	for i := s.len - 1; s != nil; i, s = i-1, s.prev {
		ids[i] = s.id
	}
	return Path{IDs: ids}
}

// PathsToRoots returns up to maxPaths shortest simple paths from an object
// to the roots, shortest first. A root yields the single path holding only
// itself. Objects no anchor reaches yield no paths.
func PathsToRoots(g Graph, from ObjID, maxPaths int) []Path {
	if maxPaths <= 0 || g.GetObject(from) == nil {
		return nil
	}

	rootSet := make(map[ObjID]bool)
	for _, id := range g.GetRoots().IDs {
		rootSet[id] = true
	}
	if rootSet[from] {
		return []Path{{IDs: []ObjID{from}}}
	}

	reachable := Reachable(g)
	if !reachable[from] {
		return nil
	}

	reverse := BuildReverseEdges(g)
	// Each object extends at most maxPaths partial paths, which bounds the
	// search on densely cyclic heaps.
	expanded := make(map[ObjID]int)
	var result []Path
	queue := []*step{{id: from, len: 1}}
	for len(queue) > 0 && len(result) < maxPaths {
		cur := queue[0]
		queue = queue[1:]
		if expanded[cur.id] >= maxPaths {
			continue
		}
		expanded[cur.id]++

		for _, referrer := range reverse[cur.id] {
			if !reachable[referrer] || cur.contains(referrer) {
				continue
			}
			next := &step{id: referrer, prev: cur, len: cur.len + 1}
			if !rootSet[referrer] {
				queue = append(queue, next)
				continue
			}
			result = append(result, next.path())
			if len(result) == maxPaths {
				break
			}
		}
	}
	return result
}
