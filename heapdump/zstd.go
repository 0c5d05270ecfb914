// ABOUTME: zstd-compressed snapshots
// ABOUTME: Detected by the zstd frame magic, the payload is any registered format

package heapdump

import (
	"bytes"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zstd"

	"github.com/prateek/cyclegc/graph"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Zstd reads zstd-compressed snapshots.
type Zstd struct{}

// Name returns "zstd".
func (Zstd) Name() string { return "zstd" }

// CanParse checks the zstd frame magic.
func (Zstd) CanParse(r io.Reader) bool {
	magic := make([]byte, len(zstdMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return false
	}
	return bytes.Equal(magic, zstdMagic)
}

// Parse decompresses the dump and opens the payload through the registry.
func (Zstd) Parse(r io.Reader) (graph.Graph, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "creating zstd reader")
	}
	defer dec.Close()
	return Open(dec)
}

// WriteZstd writes g as a zstd-compressed JSON snapshot.
func WriteZstd(w io.Writer, g graph.Graph) error {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return errors.Wrap(err, "creating zstd writer")
	}
	if err := WriteJSON(enc, g); err != nil {
		_ = enc.Close()
		return err
	}
	return errors.Wrap(enc.Close(), "flushing zstd stream")
}

func init() {
	Register(Zstd{})
}
