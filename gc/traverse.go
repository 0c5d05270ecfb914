// ABOUTME: Generic traversal dispatch over payload values
// ABOUTME: Finds owning handles directly, through containers and through interfaces

package gc

import (
	"reflect"
	"strings"
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
)

// Visitor receives the objects behind the owning handles a value holds.
// Implementations are supplied by the collector; user code only passes a
// Visitor along, from a Traverse method to the handles it owns.
type Visitor interface {
	visit(n *node)
}

// Traverser is implemented by payloads that enumerate their own handles.
// Traverse must call Traverse on every Ptr the value owns, or pass the value
// parts holding them to Visit. A type implementing Traverser is never
// inspected by reflection.
type Traverser interface {
	Traverse(v Visitor)
}

// BeforeDestroyer is implemented by payloads that want to observe their own
// reclamation. BeforeDestroy runs once, before any object of the batch is
// destroyed. It must not keep the object alive. It may release handles the
// object holds; handles still held afterwards are dropped by the collector.
type BeforeDestroyer interface {
	BeforeDestroy()
}

// Destroyer is the payload destructor. Destroy runs after every BeforeDestroy
// of the batch and before any object of the batch is deallocated. Like
// BeforeDestroy it may release the handles the object holds.
type Destroyer interface {
	Destroy()
}

// Sizer lets a payload report memory it owns beyond its own struct, so the
// memory budget accounts for it.
type Sizer interface {
	GCSize() uintptr
}

// handle is implemented by Ptr[T].
type handle interface {
	gcNode() *node
}

// rooted is implemented by *Anchor[T].
type rooted interface {
	gcRoot() *node
	Release()
}

var (
	traverserType = reflect.TypeFor[Traverser]()
	hookType      = reflect.TypeFor[BeforeDestroyer]()
	handleType    = reflect.TypeFor[handle]()
	rootedType    = reflect.TypeFor[rooted]()
	collectorType = reflect.TypeFor[Collector]()
)

var handlePkg = reflect.TypeFor[Ptr[struct{}]]().PkgPath()

// isHandle reports whether t is an instantiation of Ptr. Structs embedding a
// Ptr also implement handle through promotion, but they are not handles.
func isHandle(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && t.PkgPath() == handlePkg &&
		strings.HasPrefix(t.Name(), "Ptr[") && t.Implements(handleType)
}

type planKind uint8

const (
	kindLeaf planKind = iota
	kindHandle
	kindStruct
	kindSeq
	kindMap
	kindPointer
	kindIface
	kindOpaque
	kindAnchor
)

// plan is the compiled traversal of one type. walks and hooks are settled by
// a fixpoint over every plan compiled together, so recursive types resolve.
type plan struct {
	typ  reflect.Type
	kind planKind

	custom    bool // Traverser in the value method set
	customPtr bool // Traverser only through *T
	hook      bool
	hookPtr   bool

	fields []fieldPlan
	key    *plan
	elem   *plan

	walks bool
	hooks bool
	// dynamic is set when the value can hold an interface the walk must
	// resolve at run time.
	dynamic bool

	// bad is the type that breaks totality, if any.
	bad    reflect.Type
	badErr error
	err    error
}

type fieldPlan struct {
	index int
	p     *plan
}

var plans sync.Map // reflect.Type -> *plan

// planFor returns the settled plan for t, compiling it on first use.
func planFor(t reflect.Type) (*plan, error) {
	if v, ok := plans.Load(t); ok {
		p := v.(*plan)
		return p, p.err
	}
	b := planBuilder{pending: make(map[reflect.Type]*plan)}
	p := b.build(t)
	b.settle()
	for _, q := range b.order {
		plans.LoadOrStore(q.typ, q)
	}
	return p, p.err
}

type planBuilder struct {
	pending map[reflect.Type]*plan
	order   []*plan
}

func (b *planBuilder) build(t reflect.Type) *plan {
	if v, ok := plans.Load(t); ok {
		return v.(*plan)
	}
	if p, ok := b.pending[t]; ok {
		return p
	}
	p := &plan{typ: t}
	b.pending[t] = p
	b.order = append(b.order, p)

	pt := reflect.PointerTo(t)
	switch {
	case t == collectorType:
		// A payload may keep its collector; the heap is not its child.
		p.kind = kindLeaf
		return p
	case t.Kind() == reflect.Interface:
		p.kind = kindIface
		return p
	case isHandle(t):
		p.kind = kindHandle
		return p
	case t.Implements(rootedType) || pt.Implements(rootedType):
		p.kind = kindAnchor
		return p
	}

	p.custom = t.Implements(traverserType)
	p.customPtr = !p.custom && pt.Implements(traverserType)
	p.hook = t.Implements(hookType)
	p.hookPtr = !p.hook && pt.Implements(hookType)

	switch t.Kind() {
	case reflect.Struct:
		p.kind = kindStruct
		for i := 0; i < t.NumField(); i++ {
			p.fields = append(p.fields, fieldPlan{index: i, p: b.build(t.Field(i).Type)})
		}
	case reflect.Slice, reflect.Array:
		p.kind = kindSeq
		p.elem = b.build(t.Elem())
	case reflect.Map:
		p.kind = kindMap
		p.key = b.build(t.Key())
		p.elem = b.build(t.Elem())
	case reflect.Pointer:
		p.kind = kindPointer
		p.elem = b.build(t.Elem())
	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		p.kind = kindOpaque
	default:
		p.kind = kindLeaf
	}
	return p
}

func (p *plan) children() []*plan {
	var out []*plan
	for _, f := range p.fields {
		out = append(out, f.p)
	}
	if p.key != nil {
		out = append(out, p.key)
	}
	if p.elem != nil {
		out = append(out, p.elem)
	}
	return out
}

// settle propagates walks, hooks and totality violations until nothing
// changes. Every flag only ever flips one way, so this terminates.
func (b *planBuilder) settle() {
	for _, p := range b.order {
		switch p.kind {
		case kindHandle, kindIface:
			p.walks = true
		case kindOpaque:
			p.bad, p.badErr = p.typ, ErrUntraversable
		case kindAnchor:
			p.bad, p.badErr = p.typ, ErrNestedAnchor
		}
		if p.kind == kindIface {
			p.hooks, p.dynamic = true, true
		}
		if p.custom || p.customPtr {
			p.walks = true
		}
		if p.hook || p.hookPtr {
			p.hooks = true
		}
	}
	for changed := true; changed; {
		changed = false
		for _, p := range b.order {
			for _, c := range p.children() {
				if c.walks && !p.walks {
					p.walks, changed = true, true
				}
				if c.hooks && !p.hooks {
					p.hooks, changed = true, true
				}
				if c.dynamic && !p.dynamic && !p.custom && !p.customPtr {
					p.dynamic, changed = true, true
				}
				if c.bad != nil && p.bad == nil && !p.custom && !p.customPtr {
					p.bad, p.badErr, changed = c.bad, c.badErr, true
				}
			}
		}
	}
	for _, p := range b.order {
		if p.bad != nil {
			p.err = errors.Wrapf(p.badErr, "%s holds %s", p.typ, p.bad)
		}
	}
}

// walker carries one traversal. seen guards Go pointers so that plain
// pointer cycles inside a payload do not loop.
//
// An interface whose dynamic type may hide handles is reported to hidden,
// after which the visible handles are still walked. Without hidden the walk
// panics with an assertion failure.
type walker struct {
	v      Visitor
	seen   map[pointerKey]struct{}
	hidden func(err error)
}

type pointerKey struct {
	addr uintptr
	typ  reflect.Type
}

func (w *walker) enter(v reflect.Value) bool {
	k := pointerKey{addr: v.Pointer(), typ: v.Type()}
	if w.seen == nil {
		w.seen = make(map[pointerKey]struct{})
	}
	if _, ok := w.seen[k]; ok {
		return false
	}
	w.seen[k] = struct{}{}
	return true
}

func (w *walker) walk(p *plan, v reflect.Value) {
	if !p.walks {
		return
	}
	switch {
	case p.kind == kindHandle:
		if n := v.Interface().(handle).gcNode(); n != nil {
			w.v.visit(n)
		}
		return
	case p.custom:
		if !isNil(v) {
			v.Interface().(Traverser).Traverse(w.v)
		}
		return
	case p.customPtr:
		addressable(v).Addr().Interface().(Traverser).Traverse(w.v)
		return
	}

	switch p.kind {
	case kindStruct:
		for _, f := range p.fields {
			if f.p.walks {
				w.walk(f.p, field(v, f.index))
			}
		}
	case kindSeq:
		for i := 0; i < v.Len(); i++ {
			w.walk(p.elem, v.Index(i))
		}
	case kindMap:
		it := v.MapRange()
		for it.Next() {
			w.walk(p.key, addressable(it.Key()))
			w.walk(p.elem, addressable(it.Value()))
		}
	case kindPointer:
		if v.IsNil() || !w.enter(v) {
			return
		}
		w.walk(p.elem, v.Elem())
	case kindIface:
		if v.IsNil() {
			return
		}
		dyn := v.Elem()
		dp, err := planFor(dyn.Type())
		if err != nil {
			if !dp.walks {
				// Nothing in the active alternative is a handle.
				return
			}
			err = errors.Wrap(err, "interface value")
			if w.hidden == nil {
				panic(errors.WithAssertionFailure(err))
			}
			w.hidden(err)
		}
		w.walk(dp, addressable(dyn))
	}
}

func (w *walker) hook(p *plan, v reflect.Value) {
	if !p.hooks {
		return
	}
	switch {
	case p.hook:
		if !isNil(v) {
			v.Interface().(BeforeDestroyer).BeforeDestroy()
		}
		return
	case p.hookPtr:
		addressable(v).Addr().Interface().(BeforeDestroyer).BeforeDestroy()
		return
	}

	switch p.kind {
	case kindStruct:
		for _, f := range p.fields {
			if f.p.hooks {
				w.hook(f.p, field(v, f.index))
			}
		}
	case kindSeq:
		for i := 0; i < v.Len(); i++ {
			w.hook(p.elem, v.Index(i))
		}
	case kindMap:
		it := v.MapRange()
		for it.Next() {
			w.hook(p.key, addressable(it.Key()))
			w.hook(p.elem, addressable(it.Value()))
		}
	case kindPointer:
		if v.IsNil() || !w.enter(v) {
			return
		}
		w.hook(p.elem, v.Elem())
	case kindIface:
		if v.IsNil() {
			return
		}
		dyn := v.Elem()
		dp, _ := planFor(dyn.Type())
		w.hook(dp, addressable(dyn))
	}
}

// checkDynamic returns an error wrapping ErrUntraversable when an interface
// inside v holds a value that may hide handles.
func checkDynamic(p *plan, v reflect.Value) error {
	if !p.dynamic {
		return nil
	}
	var first error
	w := walker{v: discard{}, hidden: func(err error) {
		if first == nil {
			first = err
		}
	}}
	w.walk(p, v)
	return first
}

// releaseValue releases every visible handle in *v.
func releaseValue[T any](v *T) {
	if t, ok := any(v).(Traverser); ok {
		t.Traverse(releaser{})
		return
	}
	p, _ := planFor(reflect.TypeFor[T]())
	if !p.walks {
		return
	}
	w := walker{v: releaser{}, hidden: func(error) {}}
	w.walk(p, reflect.ValueOf(v).Elem())
}

type discard struct{}

func (discard) visit(*node) {}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// field returns struct field i of v with the read-only flag of unexported
// fields cleared. v must be addressable.
func field(v reflect.Value, i int) reflect.Value {
	f := v.Field(i)
	if f.CanInterface() {
		return f
	}
	return reflect.NewAt(f.Type(), unsafe.Pointer(f.UnsafeAddr())).Elem()
}

// addressable returns v itself when it is addressable, otherwise a copy.
// Copies of handles point at the same node, which is all a visit needs.
func addressable(v reflect.Value) reflect.Value {
	if v.CanAddr() {
		return v
	}
	c := reflect.New(v.Type()).Elem()
	c.Set(v)
	return c
}

// Visit dispatches v over arbitrary values: handles are visited, containers,
// structs and interfaces are searched for handles. It is meant for Traverse
// methods that hold handles inside containers. Visit panics when a value
// cannot be traversed.
func Visit(v Visitor, values ...any) {
	for _, x := range values {
		if x == nil {
			continue
		}
		rv := reflect.ValueOf(x)
		p, err := planFor(rv.Type())
		if err != nil {
			panic(err)
		}
		w := walker{v: v}
		w.walk(p, addressable(rv))
	}
}
