// ABOUTME: Tests for the snapshot graph data structures
// ABOUTME: Validates ordering, replacement, totals and reverse edges

package graph

import (
	"reflect"
	"testing"
)

func collectIDs(g Graph) []ObjID {
	var ids []ObjID
	g.ForEachObject(func(obj *Object) {
		ids = append(ids, obj.ID)
	})
	return ids
}

func TestForEachObjectOrder(t *testing.T) {
	g := NewMemGraph()
	g.AddObject(&Object{ID: 5, Type: "c"})
	g.AddObject(&Object{ID: 1, Type: "a"})
	g.AddObject(&Object{ID: 3, Type: "b"})

	if got, want := collectIDs(g), []ObjID{1, 3, 5}; !reflect.DeepEqual(got, want) {
		t.Errorf("Expected order %v, got %v", want, got)
	}

	g.AddObject(&Object{ID: 2, Type: "late"})
	if got, want := collectIDs(g), []ObjID{1, 2, 3, 5}; !reflect.DeepEqual(got, want) {
		t.Errorf("Expected order %v after insert, got %v", want, got)
	}
}

func TestAddObjectReplaces(t *testing.T) {
	g := NewMemGraph()
	g.AddObject(&Object{ID: 7, Type: "old", Size: 8})
	g.AddObject(&Object{ID: 7, Type: "new", Size: 16})

	if g.NumObjects() != 1 {
		t.Errorf("Expected 1 object, got %d", g.NumObjects())
	}
	if obj := g.GetObject(7); obj == nil || obj.Type != "new" {
		t.Errorf("Expected replaced object of type new, got %+v", obj)
	}
}

func TestGetMissingObject(t *testing.T) {
	g := NewMemGraph()
	if obj := g.GetObject(42); obj != nil {
		t.Errorf("Expected nil for missing object, got %+v", obj)
	}
}

func TestRoots(t *testing.T) {
	g := NewMemGraph()
	if len(g.GetRoots().IDs) != 0 {
		t.Errorf("Expected no roots in a new graph, got %v", g.GetRoots().IDs)
	}
	g.SetRoots(Roots{IDs: []ObjID{3, 3, 1}})
	if got := g.GetRoots().IDs; !reflect.DeepEqual(got, []ObjID{3, 3, 1}) {
		t.Errorf("Expected roots kept as set, got %v", got)
	}
}

func TestTotalSize(t *testing.T) {
	g := NewMemGraph()
	g.AddObject(&Object{ID: 1, Size: 48})
	g.AddObject(&Object{ID: 2, Size: 16})
	g.AddObject(&Object{ID: 3, Size: 0})

	if got := TotalSize(g); got != 64 {
		t.Errorf("Expected total size 64, got %d", got)
	}
}

func TestBuildReverseEdges(t *testing.T) {
	// 1 holds two handles to 2, so it is listed once as a referrer.
	g := NewMemGraph()
	g.AddObject(&Object{ID: 1, Ptrs: []ObjID{2, 2, 3}})
	g.AddObject(&Object{ID: 2})
	g.AddObject(&Object{ID: 3, Ptrs: []ObjID{3}})
	g.AddObject(&Object{ID: 4, Ptrs: []ObjID{2}})

	want := ReverseEdges{
		2: {1, 4},
		3: {1, 3},
	}
	if got := BuildReverseEdges(g); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected reverse edges %v, got %v", want, got)
	}
}
