// ABOUTME: Tests for traversal dispatch over payload values
// ABOUTME: Containers, maps, interfaces, pointer cycles, custom traversal and totality errors

package gc

import (
	"reflect"
	"slices"
	"testing"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// idVisitor records the IDs of visited objects.
type idVisitor struct {
	ids []uint64
}

func (v *idVisitor) visit(n *node) { v.ids = append(v.ids, n.id) }

func edgesOf[T any](p Ptr[T]) []uint64 {
	v := &idVisitor{}
	p.b.traverse(v)
	slices.Sort(v.ids)
	return v.ids
}

type container struct {
	Array   [2]Ptr[item]
	Slice   []Ptr[item]
	Map     map[string]Ptr[item]
	Keys    map[Ptr[item]]int
	Pointer *Ptr[item]
	Nested  struct{ Inner []map[int]Ptr[item] }
	Any     any
	Skip    int
	private Ptr[item]
}

type wrapped struct {
	Held Ptr[item]
}

type holder interface{ held() }

func (wrapped) held() {}

type linked struct {
	Value Ptr[item]
	Next  *linked
}

type withChan struct {
	Ch chan int
}

type withChanAndHandle struct {
	Ch chan int
	P  Ptr[item]
}

type withFunc struct {
	F func()
}

// hidden holds a handle next to a field the collector cannot inspect.
type hidden struct {
	F func()
	P Ptr[item]
}

type boxed struct {
	V any
}

type withUnsafe struct {
	P unsafe.Pointer
}

// customChan hides a channel behind its own traversal.
type customChan struct {
	Ch   chan int
	Held Ptr[item]
}

func (c customChan) Traverse(v Visitor) { c.Held.Traverse(v) }

type deepOpaque struct {
	Items []struct {
		M map[string]func()
	}
}

type nestedAnchor struct {
	A *Anchor[item]
}

type nestedAnchorValue struct {
	A []Anchor[item]
}

type recursive struct {
	Next  *recursive
	Kids  []recursive
	Value Ptr[item]
}

type leafOnly struct {
	N    int
	S    []string
	M    map[string][]byte
	Ptrs *int
}

type withCollector struct {
	C    *Collector
	Next Ptr[withCollector]
}

func TestTraverseContainers(t *testing.T) {
	c := NewCollector()
	mk := func(name string) Ptr[item] { return newItem(t, c, name, Ptr[item]{}) }

	a, b, d, e, f, g, h, i, j := mk("a"), mk("b"), mk("d"), mk("e"), mk("f"), mk("g"), mk("h"), mk("i"), mk("j")
	ptr := f.Clone()
	p, err := New(c, container{
		Array:   [2]Ptr[item]{a.Clone(), {}},
		Slice:   []Ptr[item]{b.Clone(), {}},
		Map:     map[string]Ptr[item]{"d": d.Clone()},
		Keys:    map[Ptr[item]]int{e.Clone(): 1},
		Pointer: &ptr,
		Nested:  struct{ Inner []map[int]Ptr[item] }{Inner: []map[int]Ptr[item]{{1: g.Clone()}}},
		Any:     wrapped{Held: h.Clone()},
		Skip:    7,
		private: i.Clone(),
	})
	require.NoError(t, err)

	want := []uint64{a.ID(), b.ID(), d.ID(), e.ID(), f.ID(), g.ID(), h.ID(), i.ID()}
	slices.Sort(want)
	assert.Equal(t, want, edgesOf(p))
	assert.Equal(t, 1, j.RefCount())

	// Releasing the container drops every handle it owns.
	p.Release()
	for _, q := range []Ptr[item]{a, b, d, e, f, g, h, i} {
		assert.Equal(t, 1, q.RefCount())
	}
	requireValid(t, c)
}

func TestTraverseInterfaces(t *testing.T) {
	c := NewCollector()
	x := newItem(t, c, "x", Ptr[item]{})
	defer x.Release()

	tests := []struct {
		name  string
		value func() any
		edges int
	}{
		{"handle", func() any { return x.Clone() }, 1},
		{"struct holding handle", func() any { return wrapped{Held: x.Clone()} }, 1},
		{"pointer to struct", func() any { return &wrapped{Held: x.Clone()} }, 1},
		{"leaf", func() any { return 42 }, 0},
		{"nil", func() any { return nil }, 0},
		{"channel alternative", func() any { return make(chan int) }, 0},
		{"func alternative without handles", func() any { return withFunc{} }, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(c, boxed{V: tt.value()})
			require.NoError(t, err)
			assert.Len(t, edgesOf(p), tt.edges)
			p.Release()
			assert.Equal(t, 1, x.RefCount())
		})
	}

	var h holder = wrapped{Held: x.Clone()}
	p, err := New(c, struct{ H holder }{H: h})
	require.NoError(t, err)
	assert.Equal(t, []uint64{x.ID()}, edgesOf(p))
	p.Release()
	requireValid(t, c)
}

func TestTraversePointerCycle(t *testing.T) {
	c := NewCollector()
	x := newItem(t, c, "x", Ptr[item]{})
	defer x.Release()

	// Plain Go pointers forming a loop are walked once.
	first := &linked{Value: x.Clone()}
	second := &linked{Value: x.Clone(), Next: first}
	first.Next = second
	p, err := New(c, linked{Next: first})
	require.NoError(t, err)

	assert.Equal(t, []uint64{x.ID(), x.ID()}, edgesOf(p))
	p.Release()
	assert.Equal(t, 1, x.RefCount())
}

func TestTraverseCustom(t *testing.T) {
	c := NewCollector()
	x := newItem(t, c, "x", Ptr[item]{})
	defer x.Release()

	p, err := New(c, customChan{Ch: make(chan int), Held: x.Clone()})
	require.NoError(t, err)
	assert.Equal(t, []uint64{x.ID()}, edgesOf(p))
	p.Release()
	assert.Equal(t, 1, x.RefCount())
}

func TestTraverseCollectorField(t *testing.T) {
	c := NewCollector()
	a, err := New(c, withCollector{C: c})
	require.NoError(t, err)
	b, err := New(c, withCollector{C: c, Next: a.Clone()})
	require.NoError(t, err)

	assert.Equal(t, []uint64{a.ID()}, edgesOf(b))
	assert.Empty(t, edgesOf(a))
	b.Release()
	a.Release()
	assert.Zero(t, c.ObjectCount())
}

func TestTraverseTotality(t *testing.T) {
	tests := []struct {
		name string
		plan func() error
		want error
	}{
		{"chan", func() error { _, err := planFor(reflect.TypeFor[withChan]()); return err }, ErrUntraversable},
		{"func", func() error { _, err := planFor(reflect.TypeFor[withFunc]()); return err }, ErrUntraversable},
		{"unsafe pointer", func() error { _, err := planFor(reflect.TypeFor[withUnsafe]()); return err }, ErrUntraversable},
		{"deeply nested func", func() error { _, err := planFor(reflect.TypeFor[deepOpaque]()); return err }, ErrUntraversable},
		{"anchor pointer", func() error { _, err := planFor(reflect.TypeFor[nestedAnchor]()); return err }, ErrNestedAnchor},
		{"anchor values", func() error { _, err := planFor(reflect.TypeFor[nestedAnchorValue]()); return err }, ErrNestedAnchor},
		{"custom traversal", func() error { _, err := planFor(reflect.TypeFor[customChan]()); return err }, nil},
		{"recursive", func() error { _, err := planFor(reflect.TypeFor[recursive]()); return err }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plan()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	c := NewCollector()
	_, err := New(c, withChan{Ch: make(chan int)})
	assert.True(t, errors.Is(err, ErrUntraversable))
	assert.Contains(t, err.Error(), "chan int")
	assert.Zero(t, c.ObjectCount())
}

func TestPlanFlags(t *testing.T) {
	leaf, err := planFor(reflect.TypeFor[leafOnly]())
	require.NoError(t, err)
	assert.False(t, leaf.walks, "leaf-only types are never walked")
	assert.False(t, leaf.hooks)

	rec, err := planFor(reflect.TypeFor[recursive]())
	require.NoError(t, err)
	assert.True(t, rec.walks)

	pr, err := planFor(reflect.TypeFor[probe]())
	require.NoError(t, err)
	assert.True(t, pr.hookPtr)

	// Plans are cached per type.
	again, err := planFor(reflect.TypeFor[recursive]())
	require.NoError(t, err)
	assert.Same(t, rec, again)
}

func TestTraverseRecursiveValues(t *testing.T) {
	c := NewCollector()
	x := newItem(t, c, "x", Ptr[item]{})
	defer x.Release()

	r := recursive{Value: x.Clone(), Kids: []recursive{{Value: x.Clone()}, {Kids: []recursive{{Value: x.Clone()}}}}}
	p, err := New(c, r)
	require.NoError(t, err)
	assert.Len(t, edgesOf(p), 3)
	p.Release()
	assert.Equal(t, 1, x.RefCount())
}

func TestTraverseHiddenAlternative(t *testing.T) {
	c := NewCollector()
	x := newItem(t, c, "x", Ptr[item]{})
	defer x.Release()

	plan, err := planFor(reflect.TypeFor[boxed]())
	require.NoError(t, err)
	assert.True(t, plan.dynamic)

	// A walk that meets handles it cannot fully see is an invariant failure.
	v := &idVisitor{}
	err = recovered(func() { Visit(v, boxed{V: hidden{P: x}}) })
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUntraversable))
	assert.True(t, errors.HasAssertionFailure(err))

	assert.NoError(t, checkDynamic(plan, reflect.ValueOf(boxed{V: wrapped{Held: x}})))
	err = checkDynamic(plan, reflect.ValueOf(boxed{V: []any{1, &hidden{P: x}}}))
	assert.True(t, errors.Is(err, ErrUntraversable), "got %v", err)
	assert.Contains(t, err.Error(), "gc.hidden")
}

func TestVisit(t *testing.T) {
	c := NewCollector()
	x := newItem(t, c, "x", Ptr[item]{})
	y := newItem(t, c, "y", Ptr[item]{})
	defer x.Release()
	defer y.Release()

	v := &idVisitor{}
	Visit(v, x, []Ptr[item]{y}, map[int]any{1: x}, nil, 5)
	assert.Equal(t, []uint64{x.ID(), y.ID(), x.ID()}, v.ids)

	err := recovered(func() { Visit(v, make(chan int)) })
	assert.True(t, errors.Is(err, ErrUntraversable))
}
