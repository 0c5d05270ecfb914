// ABOUTME: Content digest of a snapshot
// ABOUTME: Equal heaps hash equal, so repeated collections can be compared cheaply

package graph

import (
	"encoding/binary"
	"slices"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint hashes every object (ID, type, size, ref count, handles) in ID
// order, followed by the sorted roots.
func Fingerprint(g Graph) uint64 {
	d := xxhash.New()
	var buf [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = d.Write(buf[:])
	}

	g.ForEachObject(func(obj *Object) {
		put(uint64(obj.ID))
		_, _ = d.WriteString(obj.Type)
		put(obj.Size)
		put(uint64(obj.RefCount))
		put(uint64(len(obj.Ptrs)))
		for _, p := range obj.Ptrs {
			put(uint64(p))
		}
	})

	roots := slices.Clone(g.GetRoots().IDs)
	slices.Sort(roots)
	put(uint64(len(roots)))
	for _, r := range roots {
		put(uint64(r))
	}
	return d.Sum64()
}
