// ABOUTME: JSON snapshot format, read and written
// ABOUTME: A versioned document of objects with their handles plus the anchored roots

package heapdump

import (
	"encoding/json"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/prateek/cyclegc/graph"
)

// FormatJSON is the format tag of JSON snapshots.
const FormatJSON = "cyclegc/v1"

// JSON reads and writes FormatJSON snapshots.
type JSON struct{}

type jsonDump struct {
	Format  string        `json:"format"`
	Objects []jsonObject  `json:"objects"`
	Roots   []graph.ObjID `json:"roots"`
}

type jsonObject struct {
	ID   graph.ObjID   `json:"id"`
	Type string        `json:"type"`
	Size uint64        `json:"size"`
	Refs int           `json:"refs"`
	Ptrs []graph.ObjID `json:"ptrs"`
}

// Name returns "json".
func (JSON) Name() string { return "json" }

// CanParse looks for the format tag among the top-level keys of the prefix.
func (JSON) CanParse(r io.Reader) bool {
	dec := json.NewDecoder(r)
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return false
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return false
		}
		if key, _ := tok.(string); key == "format" {
			var format string
			return dec.Decode(&format) == nil && format == FormatJSON
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return false
		}
	}
	return false
}

// Parse reads a snapshot. IDs must be non-zero and unique, and every handle
// and root must name an object in the dump.
func (JSON) Parse(r io.Reader) (graph.Graph, error) {
	var dump jsonDump
	if err := json.NewDecoder(r).Decode(&dump); err != nil {
		return nil, errors.Wrap(err, "decoding JSON")
	}
	if dump.Format != FormatJSON {
		return nil, errors.Newf("unsupported format %q", dump.Format)
	}

	g := graph.NewMemGraph()
	for i, obj := range dump.Objects {
		if obj.ID == 0 {
			return nil, errors.Newf("object at index %d missing ID", i)
		}
		if g.GetObject(obj.ID) != nil {
			return nil, errors.Newf("duplicate object %d", obj.ID)
		}
		ptrs := obj.Ptrs
		if ptrs == nil {
			ptrs = []graph.ObjID{}
		}
		g.AddObject(&graph.Object{
			ID:       obj.ID,
			Type:     obj.Type,
			Size:     obj.Size,
			RefCount: obj.Refs,
			Ptrs:     ptrs,
		})
	}
	for _, obj := range dump.Objects {
		for _, p := range obj.Ptrs {
			if g.GetObject(p) == nil {
				return nil, errors.Newf("object %d holds a handle to unknown object %d", obj.ID, p)
			}
		}
	}

	roots := graph.Roots{IDs: dump.Roots}
	if roots.IDs == nil {
		roots.IDs = []graph.ObjID{}
	}
	for _, id := range roots.IDs {
		if g.GetObject(id) == nil {
			return nil, errors.Newf("root %d is not in the dump", id)
		}
	}
	g.SetRoots(roots)
	return g, nil
}

// WriteJSON writes g as a FormatJSON snapshot, objects in ID order.
func WriteJSON(w io.Writer, g graph.Graph) error {
	dump := jsonDump{
		Format:  FormatJSON,
		Objects: make([]jsonObject, 0, g.NumObjects()),
		Roots:   g.GetRoots().IDs,
	}
	if dump.Roots == nil {
		dump.Roots = []graph.ObjID{}
	}
	g.ForEachObject(func(obj *graph.Object) {
		ptrs := obj.Ptrs
		if ptrs == nil {
			ptrs = []graph.ObjID{}
		}
		dump.Objects = append(dump.Objects, jsonObject{
			ID:   obj.ID,
			Type: obj.Type,
			Size: obj.Size,
			Refs: obj.RefCount,
			Ptrs: ptrs,
		})
	})
	return errors.Wrap(json.NewEncoder(w).Encode(&dump), "encoding JSON")
}

func init() {
	Register(JSON{})
}
