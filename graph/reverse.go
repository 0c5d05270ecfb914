// ABOUTME: Builds reverse edges for snapshot traversal
// ABOUTME: Maps each object to the objects holding handles to it

package graph

// ReverseEdges maps each object to its referrers, once per referrer even
// when the referrer holds several handles to it.
type ReverseEdges map[ObjID][]ObjID

// BuildReverseEdges creates the referrer map of g. Referrers are listed in
// ascending ID order.
func BuildReverseEdges(g Graph) ReverseEdges {
	reverse := make(ReverseEdges)
	g.ForEachObject(func(obj *Object) {
		for i, target := range obj.Ptrs {
			if containsBefore(obj.Ptrs, i, target) {
				continue
			}
			reverse[target] = append(reverse[target], obj.ID)
		}
	})
	return reverse
}

// containsBefore reports whether id occurs in ids[:i].
func containsBefore(ids []ObjID, i int, id ObjID) bool {
	for _, x := range ids[:i] {
		if x == id {
			return true
		}
	}
	return false
}
