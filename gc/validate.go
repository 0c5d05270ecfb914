// ABOUTME: Explicit consistency check over every collector list
// ABOUTME: Reports invariant violations as combined assertion failures

package gc

import "github.com/cockroachdb/errors"

// maxViolations bounds the number of violations reported by one Validate.
const maxViolations = 32

// Validate checks the collector's invariants: list linkage is symmetric,
// every live object is on the active list with a positive count and a clear
// reachable flag, the temp list is empty, object, anchor and memory totals
// agree with the lists, and anchors only root live objects. It returns nil or
// an assertion failure describing the violations found.
func (c *Collector) Validate() error {
	if c.state != Idle {
		return errors.Wrapf(ErrNotIdle, "validate while %s", c.state)
	}
	v := validation{}

	if !isEmpty(&c.temp) {
		v.failf("temp list holds %d objects outside a pass", listLen(&c.temp))
	}
	if len(c.deferred) != 0 {
		v.failf("%d deferred objects outside a pass", len(c.deferred))
	}

	objects := 0
	var bytes uint64
	prev := &c.active
	for cur := c.active.next; cur != &c.active; cur = cur.next {
		if cur.prev != prev {
			v.failf("active list broken at node %d", cur.id)
			break
		}
		prev = cur
		objects++
		bytes += cur.size
		switch {
		case cur.gc != c:
			v.failf("node %d belongs to another collector", cur.id)
		case cur.dead:
			v.failf("node %d on the active list after reclamation", cur.id)
		case cur.where != inActive:
			v.failf("node %d on the active list records %s", cur.id, cur.where)
		case cur.refCount <= 0:
			v.failf("node %d (%s) live with ref count %d", cur.id, cur.obj.typeName(), cur.refCount)
		case cur.reachable || cur.marks != 0:
			v.failf("node %d keeps mark state outside a pass", cur.id)
		}
	}
	if objects != c.objects {
		v.failf("object count %d, active list holds %d", c.objects, objects)
	}
	if bytes != c.nodeBytes {
		v.failf("memory accounting %d bytes, active list holds %d", c.nodeBytes, bytes)
	}

	anchors := 0
	prevA := &c.anchors
	for a := c.anchors.next; a != &c.anchors; a = a.next {
		if a.prev != prevA {
			v.failf("anchor list broken after %d anchors", anchors)
			break
		}
		prevA = a
		anchors++
		if n := a.owner.gcRoot(); n != nil && (n.dead || n.gc != c) {
			v.failf("anchor roots node %d which is not live in this collector", n.id)
		}
	}
	if anchors != c.anchorCount {
		v.failf("anchor count %d, anchor list holds %d", c.anchorCount, anchors)
	}
	return v.err
}

type validation struct {
	err error
	n   int
}

func (v *validation) failf(format string, args ...interface{}) {
	v.n++
	if v.n > maxViolations {
		return
	}
	v.err = errors.CombineErrors(v.err, errors.AssertionFailedf(format, args...))
}
