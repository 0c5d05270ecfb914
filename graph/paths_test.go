// ABOUTME: Tests for the paths-to-anchors search
// ABOUTME: Validates shortest-first ordering, cycles, shared objects and limits

package graph

import (
	"reflect"
	"testing"
)

func TestPathsToRoots(t *testing.T) {
	// 1 (anchored) -> 2 -> 3
	//              -> 4, 2 -> 4
	g := NewMemGraph()
	g.AddObject(&Object{ID: 1, Type: "root", Ptrs: []ObjID{2, 4}})
	g.AddObject(&Object{ID: 2, Type: "middle", Ptrs: []ObjID{3, 4}})
	g.AddObject(&Object{ID: 3, Type: "leaf"})
	g.AddObject(&Object{ID: 4, Type: "shared"})
	g.SetRoots(Roots{IDs: []ObjID{1}})

	tests := []struct {
		name     string
		from     ObjID
		maxPaths int
		want     []Path
	}{
		{
			name:     "anchored object",
			from:     1,
			maxPaths: 5,
			want:     []Path{{IDs: []ObjID{1}}},
		},
		{
			name:     "two hops",
			from:     3,
			maxPaths: 5,
			want:     []Path{{IDs: []ObjID{3, 2, 1}}},
		},
		{
			name:     "shortest first",
			from:     4,
			maxPaths: 5,
			want: []Path{
				{IDs: []ObjID{4, 1}},
				{IDs: []ObjID{4, 2, 1}},
			},
		},
		{
			name:     "limited",
			from:     4,
			maxPaths: 1,
			want:     []Path{{IDs: []ObjID{4, 1}}},
		},
		{
			name:     "zero limit",
			from:     4,
			maxPaths: 0,
			want:     nil,
		},
		{
			name:     "missing object",
			from:     42,
			maxPaths: 5,
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			paths := PathsToRoots(g, tt.from, tt.maxPaths)
			if !reflect.DeepEqual(paths, tt.want) {
				t.Errorf("PathsToRoots() = %v, want %v", paths, tt.want)
			}
		})
	}
}

func TestPathsThroughCycle(t *testing.T) {
	// 1 (anchored) -> 2 <-> 3
	g := NewMemGraph()
	g.AddObject(&Object{ID: 1, Type: "root", Ptrs: []ObjID{2}})
	g.AddObject(&Object{ID: 2, Type: "parent", Ptrs: []ObjID{3}})
	g.AddObject(&Object{ID: 3, Type: "child", Ptrs: []ObjID{2}})
	g.SetRoots(Roots{IDs: []ObjID{1}})

	paths := PathsToRoots(g, 3, 5)
	want := []Path{{IDs: []ObjID{3, 2, 1}}}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("PathsToRoots() through cycle = %v, want %v", paths, want)
	}
}

func TestPathsFromGarbage(t *testing.T) {
	// 3 <-> 4 is a cycle no anchor reaches, even though 4 points at live 2.
	g := NewMemGraph()
	g.AddObject(&Object{ID: 1, Type: "root", Ptrs: []ObjID{2}})
	g.AddObject(&Object{ID: 2, Type: "live"})
	g.AddObject(&Object{ID: 3, Type: "garbage", Ptrs: []ObjID{4}})
	g.AddObject(&Object{ID: 4, Type: "garbage", Ptrs: []ObjID{3, 2}})
	g.SetRoots(Roots{IDs: []ObjID{1}})

	if paths := PathsToRoots(g, 3, 5); len(paths) != 0 {
		t.Errorf("Expected no paths for cyclic garbage, got %v", paths)
	}
	// Garbage referrers never appear on the paths of live objects.
	want := []Path{{IDs: []ObjID{2, 1}}}
	if paths := PathsToRoots(g, 2, 5); !reflect.DeepEqual(paths, want) {
		t.Errorf("PathsToRoots() = %v, want %v", paths, want)
	}
}

func TestPathsMultipleAnchors(t *testing.T) {
	g := NewMemGraph()
	g.AddObject(&Object{ID: 1, Type: "root1", Ptrs: []ObjID{3}})
	g.AddObject(&Object{ID: 2, Type: "root2", Ptrs: []ObjID{3}})
	g.AddObject(&Object{ID: 3, Type: "shared"})
	g.SetRoots(Roots{IDs: []ObjID{2, 1}})

	want := []Path{
		{IDs: []ObjID{3, 1}},
		{IDs: []ObjID{3, 2}},
	}
	if paths := PathsToRoots(g, 3, 5); !reflect.DeepEqual(paths, want) {
		t.Errorf("PathsToRoots() = %v, want %v", paths, want)
	}
}

func TestPathsDuplicateHandles(t *testing.T) {
	// Two handles from the same holder give one path.
	g := NewMemGraph()
	g.AddObject(&Object{ID: 1, Type: "root", Ptrs: []ObjID{2, 2}})
	g.AddObject(&Object{ID: 2, Type: "self", Ptrs: []ObjID{2}})
	g.SetRoots(Roots{IDs: []ObjID{1}})

	want := []Path{{IDs: []ObjID{2, 1}}}
	if paths := PathsToRoots(g, 2, 5); !reflect.DeepEqual(paths, want) {
		t.Errorf("PathsToRoots() = %v, want %v", paths, want)
	}
}
