// ABOUTME: Per-object control block and the typed box that embeds the payload
// ABOUTME: The box binds traversal and destruction hooks to the payload type

package gc

import (
	"reflect"
)

// listID records which collector list a node is linked into.
type listID uint8

const (
	inNone listID = iota
	inActive
	inTemp
)

func (l listID) String() string {
	switch l {
	case inActive:
		return "active"
	case inTemp:
		return "temp"
	default:
		return "none"
	}
}

// node is the control block of a managed object. It is the first field of
// box[T], so the payload lives in the same allocation.
type node struct {
	links[node]

	gc  *Collector
	obj payload

	id   uint64
	size uint64

	refCount int32
	// marks counts the rooted edges found by the current mark phase.
	marks int32

	where     listID
	reachable bool
	dead      bool
}

func (n *node) linkage() *links[node] { return &n.links }

// payload is implemented by box[T].
type payload interface {
	traverse(v Visitor)
	beforeDestroy()
	destroy()
	clear()
	typeName() string
}

type box[T any] struct {
	node
	value T
	plan  *plan
}

func (b *box[T]) traverse(v Visitor) {
	if t, ok := any(&b.value).(Traverser); ok {
		t.Traverse(v)
		return
	}
	if !b.plan.walks {
		return
	}
	w := walker{v: v}
	w.walk(b.plan, reflect.ValueOf(&b.value).Elem())
}

// releaseHandles drops every visible handle of a value that never became
// managed.
func (b *box[T]) releaseHandles() {
	releaseValue(&b.value)
}

func (b *box[T]) beforeDestroy() {
	if h, ok := any(&b.value).(BeforeDestroyer); ok {
		h.BeforeDestroy()
		return
	}
	if !b.plan.hooks {
		return
	}
	var w walker
	w.hook(b.plan, reflect.ValueOf(&b.value).Elem())
}

func (b *box[T]) destroy() {
	if d, ok := any(&b.value).(Destroyer); ok {
		d.Destroy()
	}
}

func (b *box[T]) clear() {
	var zero T
	b.value = zero
}

func (b *box[T]) typeName() string {
	return b.plan.typ.String()
}
