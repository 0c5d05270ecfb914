// ABOUTME: Root holders that keep one handle's subgraph alive across collections
// ABOUTME: Anchors live on their own list, the root set of Collect

package gc

import "github.com/cockroachdb/errors"

type anchorLink struct {
	links[anchorLink]
	owner rooted
}

func (a *anchorLink) linkage() *links[anchorLink] { return &a.links }

func (a *anchorLink) linked() bool {
	return a.next != nil && a.next != a
}

// Anchor roots the subgraph reachable from the handle it holds. Everything an
// anchor reaches survives Collect. Handles held by local or global variables
// should be anchored whenever a collection may run while they are in use.
type Anchor[T any] struct {
	link anchorLink
	ptr  Ptr[T]
	c    *Collector
}

// NewAnchor roots p, taking ownership of it. p may be nil.
func NewAnchor[T any](c *Collector, p Ptr[T]) *Anchor[T] {
	checkOwner(c, p)
	a := &Anchor[T]{ptr: p, c: c}
	a.link.owner = a
	insertAfter(&c.anchors, &a.link)
	c.anchorCount++
	return a
}

func (a *Anchor[T]) gcRoot() *node {
	return a.ptr.gcNode()
}

// Get returns a borrowed view of the rooted handle. Clone it to keep it
// beyond the anchor's lifetime.
func (a *Anchor[T]) Get() Ptr[T] {
	return a.ptr
}

// Value returns the rooted payload, nil when the anchor is empty.
func (a *Anchor[T]) Value() *T {
	return a.ptr.Get()
}

// Set roots p instead of the current handle, taking ownership of p.
func (a *Anchor[T]) Set(p Ptr[T]) {
	checkOwner(a.c, p)
	a.ptr.Reset(p)
}

func checkOwner[T any](c *Collector, p Ptr[T]) {
	if p.b != nil && p.b.gc != c {
		panic(errors.AssertionFailedf("anchor for node %d on a foreign collector", p.b.id))
	}
}

// Release unroots the subgraph and drops the handle. Calling it again is a
// no-op.
func (a *Anchor[T]) Release() {
	if !a.link.linked() {
		return
	}
	unlink(&a.link)
	a.c.anchorCount--
	a.ptr.Release()
}
