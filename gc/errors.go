// ABOUTME: Error values returned or raised by the collector
// ABOUTME: Invariant violations are cockroachdb assertion failures

package gc

import "github.com/cockroachdb/errors"

var (
	// ErrReentrant is returned when an allocation or a collection is requested
	// while the collector is already running a pass.
	ErrReentrant = errors.New("collector is already running a pass")

	// ErrNotIdle is returned by diagnostics that need a quiescent heap.
	ErrNotIdle = errors.New("collector is not idle")

	// ErrUntraversable is returned when a payload type can hide owning handles
	// from the collector: it holds a channel, a function or an unsafe.Pointer
	// and does not implement Traverser.
	ErrUntraversable = errors.New("type cannot be traversed")

	// ErrNestedAnchor is returned when a payload type contains an Anchor.
	ErrNestedAnchor = errors.New("anchors cannot be nested inside managed objects")

	// ErrUseAfterFree is raised when a handle outlives the object it points to.
	// This happens when Collect reclaims an object that was only referenced by
	// handles held outside the object graph and outside any anchor.
	ErrUseAfterFree = errors.New("use of reclaimed object")
)

func useAfterFree(n *node, op string) error {
	return errors.WithAssertionFailure(
		errors.Wrapf(ErrUseAfterFree, "%s node %d (%s)", op, n.id, n.obj.typeName()))
}
