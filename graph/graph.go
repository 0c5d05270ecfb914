// ABOUTME: Graph interface and in-memory implementation
// ABOUTME: Stores snapshot objects and roots and iterates them in ID order

package graph

import (
	"slices"
	"sync"
)

// Graph is a snapshot of a collector heap.
type Graph interface {
	// AddObject adds an object, replacing any object with the same ID
	AddObject(obj *Object)

	// GetObject returns the object with the given ID, or nil
	GetObject(id ObjID) *Object

	// NumObjects returns the number of objects
	NumObjects() int

	// ForEachObject calls fn for every object in ascending ID order
	ForEachObject(fn func(*Object))

	// SetRoots replaces the anchored objects
	SetRoots(roots Roots)

	// GetRoots returns the anchored objects
	GetRoots() Roots
}

// MemGraph is an in-memory Graph. It is safe for concurrent use.
type MemGraph struct {
	mu      sync.RWMutex
	objects map[ObjID]*Object
	ids     []ObjID // sorted lazily, nil when stale
	roots   Roots
}

// NewMemGraph creates an empty graph
func NewMemGraph() *MemGraph {
	return &MemGraph{
		objects: make(map[ObjID]*Object),
	}
}

// AddObject adds an object, replacing any object with the same ID
func (g *MemGraph) AddObject(obj *Object) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.objects[obj.ID]; !ok {
		g.ids = nil
	}
	g.objects[obj.ID] = obj
}

// GetObject returns the object with the given ID, or nil
func (g *MemGraph) GetObject(id ObjID) *Object {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.objects[id]
}

// NumObjects returns the number of objects
func (g *MemGraph) NumObjects() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.objects)
}

// ForEachObject calls fn for every object in ascending ID order. fn must not
// add objects to g.
func (g *MemGraph) ForEachObject(fn func(*Object)) {
	g.mu.Lock()
	if g.ids == nil {
		g.ids = make([]ObjID, 0, len(g.objects))
		for id := range g.objects {
			g.ids = append(g.ids, id)
		}
		slices.Sort(g.ids)
	}
	ids, objects := g.ids, g.objects
	g.mu.Unlock()

	for _, id := range ids {
		fn(objects[id])
	}
}

// SetRoots replaces the anchored objects
func (g *MemGraph) SetRoots(roots Roots) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.roots = roots
}

// GetRoots returns the anchored objects
func (g *MemGraph) GetRoots() Roots {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.roots
}

// TotalSize returns the summed size of every object in g.
func TotalSize(g Graph) uint64 {
	var total uint64
	g.ForEachObject(func(obj *Object) {
		total += obj.Size
	})
	return total
}
