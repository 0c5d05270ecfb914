// ABOUTME: Atomic snapshot files
// ABOUTME: Readers never observe a partially written dump

package heapdump

import (
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/google/renameio/v2"

	"github.com/prateek/cyclegc/graph"
)

// WriteFile atomically replaces path with a snapshot of g. Paths ending in
// ".zst" are written compressed, anything else as plain JSON.
func WriteFile(path string, g graph.Graph) error {
	f, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return errors.Wrap(err, "creating snapshot file")
	}
	defer func() { _ = f.Cleanup() }()

	write := WriteJSON
	if filepath.Ext(path) == ".zst" {
		write = WriteZstd
	}
	if err := write(f, g); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return errors.Wrapf(f.CloseAtomicallyReplace(), "replacing %s", path)
}
