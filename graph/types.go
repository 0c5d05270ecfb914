// ABOUTME: Core data types for collector heap snapshots
// ABOUTME: Defines Object, ObjID and Roots (the anchored objects)

package graph

// ObjID identifies a managed object. It is the collector's allocation
// sequence number; 0 is reserved for the super-root that points at every root.
type ObjID uint64

// Object is one managed object in a snapshot.
type Object struct {
	ID       ObjID   // Allocation sequence number
	Type     string  // Payload type name (e.g. "main.listNode")
	Size     uint64  // Bytes charged to the memory budget
	RefCount int     // Owning handles pointing at the object
	Ptrs     []ObjID // Objects this object holds handles to, one per handle
}

// Roots is the set of objects held by anchors. An object anchored twice
// appears twice.
type Roots struct {
	IDs []ObjID
}
