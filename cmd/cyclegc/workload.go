// ABOUTME: Synthetic heap shapes for the sim command
// ABOUTME: Chains die locally, rings and parent-linked trees need a collection

package main

import (
	"math/rand"

	"github.com/prateek/cyclegc/gc"
)

type chainNode struct {
	Next    gc.Ptr[chainNode]
	Payload []byte
}

func (n *chainNode) GCSize() uintptr { return uintptr(cap(n.Payload)) }

type ringNode struct {
	Next    gc.Ptr[ringNode]
	Payload []byte
}

func (n *ringNode) GCSize() uintptr { return uintptr(cap(n.Payload)) }

type treeNode struct {
	Parent   gc.Ptr[treeNode]
	Children []gc.Ptr[treeNode]
	Payload  []byte
}

func (n *treeNode) GCSize() uintptr { return uintptr(cap(n.Payload)) }

// shape is one workload structure; exactly one field is set.
type shape struct {
	Chain gc.Ptr[chainNode]
	Ring  gc.Ptr[ringNode]
	Tree  gc.Ptr[treeNode]
}

type shapeKind int

const (
	kindChain shapeKind = iota
	kindRing
	kindTree
	numKinds
)

func (k shapeKind) String() string {
	return [...]string{"chain", "ring", "tree"}[k]
}

type builder struct {
	heap    *gc.Collector
	rng     *rand.Rand
	payload int
}

func (b *builder) bytes() []byte {
	if b.payload == 0 {
		return nil
	}
	return make([]byte, b.payload)
}

// build allocates a random structure and returns the only handle to it.
// The structure grows under a scratch anchor, and handles passed to New are
// clones of anchored objects, so a budget collection during any allocation
// finds every object built so far reachable.
func (b *builder) build(chainLen, ringSize, treeDepth int) (gc.Ptr[shape], shapeKind, error) {
	kind := shapeKind(b.rng.Intn(int(numKinds)))
	root, err := gc.New(b.heap, shape{})
	if err != nil {
		return gc.Ptr[shape]{}, kind, err
	}
	scratch := gc.NewAnchor(b.heap, root)
	defer scratch.Release()

	s := scratch.Value()
	switch kind {
	case kindChain:
		err = b.chain(s, chainLen)
	case kindRing:
		err = b.ring(s, ringSize)
	case kindTree:
		err = b.tree(s, treeDepth)
	}
	if err != nil {
		return gc.Ptr[shape]{}, kind, err
	}
	return scratch.Get().Clone(), kind, nil
}

func (b *builder) chain(s *shape, n int) error {
	for i := 0; i < n; i++ {
		next := s.Chain.Clone()
		p, err := gc.New(b.heap, chainNode{Next: next, Payload: b.bytes()})
		if err != nil {
			return err
		}
		s.Chain.Reset(p)
	}
	return nil
}

func (b *builder) ring(s *shape, n int) error {
	head, err := gc.New(b.heap, ringNode{Payload: b.bytes()})
	if err != nil {
		return err
	}
	s.Ring = head
	cur := s.Ring
	for i := 1; i < n; i++ {
		next, err := gc.New(b.heap, ringNode{Payload: b.bytes()})
		if err != nil {
			return err
		}
		cur.Get().Next = next
		cur = next
	}
	cur.Get().Next = s.Ring.Clone()
	return nil
}

// tree builds a complete binary tree whose nodes also point at their parent.
// Each node is linked under its parent before its own children are built.
func (b *builder) tree(s *shape, depth int) error {
	root, err := gc.New(b.heap, treeNode{Payload: b.bytes()})
	if err != nil {
		return err
	}
	s.Tree = root
	return b.grow(s.Tree, depth)
}

func (b *builder) grow(n gc.Ptr[treeNode], depth int) error {
	if depth == 0 {
		return nil
	}
	for i := 0; i < 2; i++ {
		parent := n.Clone()
		child, err := gc.New(b.heap, treeNode{Parent: parent, Payload: b.bytes()})
		if err != nil {
			return err
		}
		n.Get().Children = append(n.Get().Children, child)
		if err := b.grow(child, depth-1); err != nil {
			return err
		}
	}
	return nil
}
