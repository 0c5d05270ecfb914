// ABOUTME: Owning reference-counted handle to a managed object
// ABOUTME: Clone, Move, Release and Reset drive the count and local reclamation

package gc

// Ptr is an owning handle to a managed T. The zero value is a nil handle.
//
// Go copies struct values silently, so ownership is explicit: a Ptr obtained
// from New, Make, Clone or Move owns one reference and must eventually be
// released with Release or handed to something that releases it (Reset,
// NewAnchor, Anchor.Set, or a field of another managed object). Plain copies
// of a Ptr are borrowed views.
//
// Do not embed a Ptr in a payload struct: its Traverse method would be
// promoted and hide the struct's other handles from the collector.
type Ptr[T any] struct {
	b *box[T]
}

func (p Ptr[T]) gcNode() *node {
	if p.b == nil {
		return nil
	}
	return &p.b.node
}

// IsNil reports whether p points at nothing.
func (p Ptr[T]) IsNil() bool {
	return p.b == nil
}

// Get returns the payload. It panics if the object has been reclaimed.
func (p Ptr[T]) Get() *T {
	if p.b == nil {
		return nil
	}
	if p.b.dead {
		panic(useAfterFree(&p.b.node, "dereference"))
	}
	return &p.b.value
}

// Clone returns a new owning handle to the same object.
func (p Ptr[T]) Clone() Ptr[T] {
	if p.b != nil {
		p.b.gc.retain(&p.b.node)
	}
	return p
}

// Move transfers ownership to the returned handle and leaves p nil.
func (p *Ptr[T]) Move() Ptr[T] {
	q := *p
	p.b = nil
	return q
}

// Release drops the reference p owns and leaves p nil. When the count reaches
// zero the object, and everything only it kept alive, is reclaimed at once.
func (p *Ptr[T]) Release() {
	if p.b == nil {
		return
	}
	n := &p.b.node
	p.b = nil
	n.gc.release(n)
}

// Reset takes ownership of q and releases the reference p held before.
func (p *Ptr[T]) Reset(q Ptr[T]) {
	old := *p
	*p = q
	old.Release()
}

// Traverse visits the object p points at.
func (p Ptr[T]) Traverse(v Visitor) {
	if p.b != nil {
		v.visit(&p.b.node)
	}
}

// RefCount returns the number of owning handles to the object.
func (p Ptr[T]) RefCount() int {
	if p.b == nil {
		return 0
	}
	return int(p.b.refCount)
}

// ID returns the allocation sequence number of the object, 0 for nil.
// Snapshots use the same numbers.
func (p Ptr[T]) ID() uint64 {
	if p.b == nil {
		return 0
	}
	return p.b.id
}

// Same reports whether p and q point at the same object.
func (p Ptr[T]) Same(q Ptr[T]) bool {
	return p.b == q.b
}
