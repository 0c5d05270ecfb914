// ABOUTME: Exports the live heap as a diagnostics graph
// ABOUTME: Objects become graph objects, anchor targets become roots

package gc

import (
	"github.com/cockroachdb/errors"

	"github.com/prateek/cyclegc/graph"
)

// edgeRecorder collects the IDs an object's handles point at.
type edgeRecorder struct {
	ptrs []graph.ObjID
}

func (r *edgeRecorder) visit(n *node) {
	r.ptrs = append(r.ptrs, graph.ObjID(n.id))
}

// Snapshot returns the live heap as a graph: one object per managed object,
// with its type, size, ref count and outgoing handles, rooted at the targets
// of the anchors. IDs match Ptr.ID.
func (c *Collector) Snapshot() (*graph.MemGraph, error) {
	if c.state != Idle {
		return nil, errors.Wrapf(ErrNotIdle, "snapshot while %s", c.state)
	}
	g := graph.NewMemGraph()
	for cur := c.active.next; cur != &c.active; cur = cur.next {
		rec := &edgeRecorder{ptrs: []graph.ObjID{}}
		cur.obj.traverse(rec)
		g.AddObject(&graph.Object{
			ID:       graph.ObjID(cur.id),
			Type:     cur.obj.typeName(),
			Size:     cur.size,
			RefCount: int(cur.refCount),
			Ptrs:     rec.ptrs,
		})
	}
	roots := graph.Roots{IDs: []graph.ObjID{}}
	for a := c.anchors.next; a != &c.anchors; a = a.next {
		if n := a.owner.gcRoot(); n != nil {
			roots.IDs = append(roots.IDs, graph.ObjID(n.id))
		}
	}
	g.SetRoots(roots)
	return g, nil
}
