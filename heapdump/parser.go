// ABOUTME: Parser interface for collector snapshot formats
// ABOUTME: Defines the contract for pluggable snapshot readers

package heapdump

import (
	"io"

	"github.com/prateek/cyclegc/graph"
)

// Parser reads one snapshot format.
type Parser interface {
	// Name identifies the format in logs and errors
	Name() string

	// CanParse reports whether the dump looks like this format. The reader
	// holds only a prefix of the dump; implementations must not assume the
	// whole dump is available.
	CanParse(r io.Reader) bool

	// Parse reads the whole dump from the start and builds a graph
	Parse(r io.Reader) (graph.Graph, error)
}
