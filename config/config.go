// ABOUTME: TOML configuration for the cyclegc command
// ABOUTME: Logger, collector budget, synthetic workload and output settings

package config

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// Config is the whole configuration file.
type Config struct {
	Log       Log       `toml:"log"`
	Collector Collector `toml:"collector"`
	Workload  Workload  `toml:"workload"`
	Output    Output    `toml:"output"`
}

// Log configures the logger.
type Log struct {
	Level  string `toml:"level"`  // zerolog level name
	Format string `toml:"format"` // "console" or "json"
}

// Collector configures the collector.
type Collector struct {
	// MemoryLimit is an explicit budget such as "64MiB" or "1000000".
	MemoryLimit string `toml:"memory_limit"`
	// MemoryRatio sets the budget to a fraction of the available memory when
	// MemoryLimit is empty. 0 leaves the budget unlimited.
	MemoryRatio float64 `toml:"memory_ratio"`
	// Validate checks heap invariants after every pass.
	Validate bool `toml:"validate"`
}

// Workload shapes the synthetic heap built by "cyclegc sim".
type Workload struct {
	Seed         int64 `toml:"seed"`
	Rounds       int   `toml:"rounds"`
	ChainLength  int   `toml:"chain_length"`
	RingSize     int   `toml:"ring_size"`
	TreeDepth    int   `toml:"tree_depth"`
	PayloadBytes int   `toml:"payload_bytes"`
	// AnchorEvery anchors one structure in this many; the rest are dropped.
	AnchorEvery int `toml:"anchor_every"`
	// RetireEvery releases the oldest anchor every this many rounds, 0 never.
	RetireEvery int `toml:"retire_every"`
	// CollectEvery runs a full collection every this many rounds, 0 leaves
	// collection to the budget.
	CollectEvery int `toml:"collect_every"`
}

// Output says where results go. Empty paths disable the output.
type Output struct {
	Snapshot    string `toml:"snapshot"`     // ".zst" suffix compresses
	Archive     string `toml:"archive"`      // pebble directory
	ArchiveKeep int    `toml:"archive_keep"` // 0 keeps every snapshot
	Metrics     string `toml:"metrics"`      // Prometheus textfile
}

// Default returns the configuration used for missing keys.
func Default() Config {
	return Config{
		Log: Log{Level: "info", Format: "console"},
		Workload: Workload{
			Seed:         1,
			Rounds:       100,
			ChainLength:  8,
			RingSize:     4,
			TreeDepth:    3,
			PayloadBytes: 64,
			AnchorEvery:  4,
			RetireEvery:  10,
			CollectEvery: 10,
		},
	}
}

// Load reads path over the defaults. Unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, errors.Newf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return errors.Newf("log.format %q: want console or json", c.Log.Format)
	}
	if c.Collector.MemoryLimit != "" {
		if _, err := ParseSize(c.Collector.MemoryLimit); err != nil {
			return errors.Wrap(err, "collector.memory_limit")
		}
	}
	if r := c.Collector.MemoryRatio; r < 0 || r > 1 {
		return errors.Newf("collector.memory_ratio %v: want a value in [0, 1]", r)
	}
	w := c.Workload
	for _, f := range []struct {
		name string
		v    int
		min  int
	}{
		{"workload.rounds", w.Rounds, 1},
		{"workload.chain_length", w.ChainLength, 1},
		{"workload.ring_size", w.RingSize, 1},
		{"workload.tree_depth", w.TreeDepth, 0},
		{"workload.payload_bytes", w.PayloadBytes, 0},
		{"workload.anchor_every", w.AnchorEvery, 1},
		{"workload.retire_every", w.RetireEvery, 0},
		{"workload.collect_every", w.CollectEvery, 0},
		{"output.archive_keep", c.Output.ArchiveKeep, 0},
	} {
		if f.v < f.min {
			return errors.Newf("%s %d: must be at least %d", f.name, f.v, f.min)
		}
	}
	return nil
}

// NewLogger builds the configured logger writing to w, or to stderr when w
// is nil.
func (l Log) NewLogger(w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(l.Level)
	if err != nil {
		return zerolog.Nop(), errors.Wrap(err, "log.level")
	}
	if w == nil {
		w = os.Stderr
	}
	if l.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}
