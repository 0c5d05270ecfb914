// ABOUTME: Registry of snapshot parsers
// ABOUTME: Detects the format of a dump and hands it to the matching parser

package heapdump

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/prateek/cyclegc/graph"
)

// ErrNoParser is returned when no registered parser recognises a dump.
var ErrNoParser = errors.New("no parser found for dump format")

// detectSize is the prefix length handed to CanParse.
const detectSize = 4096

type parserRegistry struct {
	mu      sync.RWMutex
	parsers []Parser
}

var registry = &parserRegistry{}

// Register adds a parser. Parsers are tried in registration order.
func Register(p Parser) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.parsers = append(registry.parsers, p)
}

// Formats returns the names of the registered parsers.
func Formats() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	names := make([]string, 0, len(registry.parsers))
	for _, p := range registry.parsers {
		names = append(names, p.Name())
	}
	return names
}

// Open reads a snapshot in any registered format.
func Open(r io.Reader) (graph.Graph, error) {
	br := bufio.NewReaderSize(r, detectSize)
	prefix, err := br.Peek(detectSize)
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "reading dump header")
	}
	if len(prefix) == 0 {
		return nil, errors.Wrap(ErrNoParser, "empty dump")
	}

	registry.mu.RLock()
	parsers := append([]Parser(nil), registry.parsers...)
	registry.mu.RUnlock()

	for _, p := range parsers {
		if !p.CanParse(bytes.NewReader(prefix)) {
			continue
		}
		g, err := p.Parse(br)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %s dump", p.Name())
		}
		return g, nil
	}
	return nil, ErrNoParser
}

// OpenFile reads the snapshot stored at path.
func OpenFile(path string) (graph.Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening dump")
	}
	defer f.Close()
	g, err := Open(f)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return g, nil
}
