// ABOUTME: Durable archive of collector snapshots in a pebble database
// ABOUTME: Snapshots are stored compressed under monotonically increasing sequence numbers

package archive

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/rs/zerolog"

	"github.com/prateek/cyclegc/graph"
	"github.com/prateek/cyclegc/heapdump"
)

// ErrNotFound is returned when a sequence number holds no snapshot.
var ErrNotFound = errors.New("snapshot not found")

const keyPrefix = "snapshot/"

var (
	lowerBound = []byte(keyPrefix)
	upperBound = []byte(keyPrefix + "~")
)

// Store is a snapshot archive. It is not safe for concurrent Put calls.
type Store struct {
	db   *pebble.DB
	next uint64
}

type options struct {
	fs  vfs.FS
	log zerolog.Logger
}

// Option configures Open.
type Option func(*options)

// WithFS stores the archive on fs instead of the local disk.
func WithFS(fs vfs.FS) Option {
	return func(o *options) { o.fs = fs }
}

// WithLogger routes pebble's log output to log.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

// Open opens or creates the archive in dir.
func Open(dir string, opts ...Option) (*Store, error) {
	o := options{fs: vfs.Default, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	db, err := pebble.Open(dir, &pebble.Options{
		FS:     o.fs,
		Logger: pebbleLogger{o.log},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "opening archive %s", dir)
	}
	s := &Store{db: db, next: 1}

	last, ok, err := s.lastSeq()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if ok {
		s.next = last + 1
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put appends a snapshot and returns its sequence number.
func (s *Store) Put(g graph.Graph) (uint64, error) {
	var buf bytes.Buffer
	if err := heapdump.WriteZstd(&buf, g); err != nil {
		return 0, err
	}
	seq := s.next
	if err := s.db.Set(keyFor(seq), buf.Bytes(), pebble.Sync); err != nil {
		return 0, errors.Wrapf(err, "storing snapshot %d", seq)
	}
	s.next++
	return seq, nil
}

// Get returns the snapshot stored under seq.
func (s *Store) Get(seq uint64) (graph.Graph, error) {
	val, closer, err := s.db.Get(keyFor(seq))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "snapshot %d", seq)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading snapshot %d", seq)
	}
	defer closer.Close()
	return decode(seq, val)
}

// Latest returns the most recent snapshot and its sequence number.
func (s *Store) Latest() (uint64, graph.Graph, error) {
	seq, ok, err := s.lastSeq()
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		return 0, nil, errors.Wrap(ErrNotFound, "archive is empty")
	}
	g, err := s.Get(seq)
	return seq, g, err
}

// Scan calls fn for every snapshot in sequence order. It stops at the first
// error fn returns.
func (s *Store) Scan(fn func(seq uint64, g graph.Graph) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: lowerBound,
		UpperBound: upperBound,
	})
	if err != nil {
		return errors.Wrap(err, "scanning archive")
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		g, err := decode(seq, iter.Value())
		if err != nil {
			return err
		}
		if err := fn(seq, g); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Prune deletes every snapshot except the newest keep.
func (s *Store) Prune(keep int) error {
	last, ok, err := s.lastSeq()
	if err != nil || !ok || last <= uint64(keep) {
		return err
	}
	end := last - uint64(keep) + 1
	return errors.Wrap(s.db.DeleteRange(lowerBound, keyFor(end), pebble.Sync), "pruning archive")
}

func (s *Store) lastSeq() (uint64, bool, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: lowerBound,
		UpperBound: upperBound,
	})
	if err != nil {
		return 0, false, errors.Wrap(err, "scanning archive")
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, false, iter.Error()
	}
	seq, err := parseKey(iter.Key())
	return seq, err == nil, err
}

func decode(seq uint64, val []byte) (graph.Graph, error) {
	g, err := heapdump.Open(bytes.NewReader(val))
	if err != nil {
		return nil, errors.Wrapf(err, "decoding snapshot %d", seq)
	}
	return g, nil
}

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", keyPrefix, seq))
}

func parseKey(key []byte) (uint64, error) {
	seq, err := strconv.ParseUint(string(bytes.TrimPrefix(key, lowerBound)), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "malformed archive key %q", key)
	}
	return seq, nil
}

// pebbleLogger adapts zerolog to pebble's logger.
type pebbleLogger struct {
	log zerolog.Logger
}

func (l pebbleLogger) Infof(format string, args ...interface{}) {
	l.log.Debug().Str("component", "pebble").Msgf(format, args...)
}

func (l pebbleLogger) Errorf(format string, args ...interface{}) {
	l.log.Error().Str("component", "pebble").Msgf(format, args...)
}

func (l pebbleLogger) Fatalf(format string, args ...interface{}) {
	l.log.Fatal().Str("component", "pebble").Msgf(format, args...)
}
