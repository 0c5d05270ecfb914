// ABOUTME: The sim subcommand: drives a synthetic workload against a collector
// ABOUTME: Reports statistics and writes snapshots, archive entries and metrics

package main

import (
	"flag"
	"fmt"
	"io"
	"math/rand"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/prateek/cyclegc/config"
	"github.com/prateek/cyclegc/gc"
	"github.com/prateek/cyclegc/gcmetrics"
	"github.com/prateek/cyclegc/graph"
	"github.com/prateek/cyclegc/heapdump"
	"github.com/prateek/cyclegc/heapdump/archive"
)

func runSim(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("sim", flag.ContinueOnError)
	configPath := fs.String("config", "", "TOML configuration file (defaults when empty)")
	if err := parseFlags(fs, args, stderr); err != nil {
		return err
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return err
		}
	}
	log, err := cfg.Log.NewLogger(stderr)
	if err != nil {
		return err
	}
	limit, source, err := cfg.Collector.ResolveMemoryLimit()
	if err != nil {
		return err
	}
	log.Info().Uint64("limit", limit).Str("source", string(source)).Msg("memory budget")

	heap := gc.NewCollector(
		gc.WithLogger(log.With().Str("component", "gc").Logger()),
		gc.WithMemoryLimit(limit),
		gc.WithValidation(cfg.Collector.Validate),
	)
	s := &simulation{
		cfg:  cfg.Workload,
		heap: heap,
		log:  log,
		b: builder{
			heap:    heap,
			rng:     rand.New(rand.NewSource(cfg.Workload.Seed)),
			payload: cfg.Workload.PayloadBytes,
		},
		built: make(map[shapeKind]int),
	}
	err = s.finish(stdout, cfg.Output)
	cerr := heap.Close()
	if err != nil {
		log.Error().Err(err).Int("objects", heap.ObjectCount()).Msg("heap closed after failure")
	}
	return errors.CombineErrors(err, cerr)
}

// finish runs the workload, reports and writes the configured outputs. The
// caller closes the heap whatever the outcome.
func (s *simulation) finish(stdout io.Writer, out config.Output) error {
	if err := s.run(); err != nil {
		return err
	}
	snap, err := s.heap.Snapshot()
	if err != nil {
		return err
	}
	report(stdout, s.heap.Stats(), snap, s.built)
	return writeOutputs(out, s.heap, snap, s.log)
}

type simulation struct {
	cfg     config.Workload
	heap    *gc.Collector
	log     zerolog.Logger
	b       builder
	anchors []*gc.Anchor[shape]
	built   map[shapeKind]int
}

func (s *simulation) run() error {
	for round := 1; round <= s.cfg.Rounds; round++ {
		p, kind, err := s.b.build(s.cfg.ChainLength, s.cfg.RingSize, s.cfg.TreeDepth)
		if err != nil {
			return errors.Wrapf(err, "round %d: building %s", round, kind)
		}
		s.built[kind]++
		if round%s.cfg.AnchorEvery == 0 {
			s.anchors = append(s.anchors, gc.NewAnchor(s.heap, p))
		} else {
			p.Release()
		}

		if s.cfg.RetireEvery > 0 && round%s.cfg.RetireEvery == 0 && len(s.anchors) > 0 {
			s.anchors[0].Release()
			s.anchors = s.anchors[1:]
		}
		if s.cfg.CollectEvery > 0 && round%s.cfg.CollectEvery == 0 {
			freed, err := s.heap.Collect()
			if err != nil {
				return errors.Wrapf(err, "round %d: collect", round)
			}
			s.log.Debug().Int("round", round).Int("freed", freed).Int("objects", s.heap.ObjectCount()).Msg("collected")
		}
	}
	return nil
}

func report(w io.Writer, st gc.Stats, snap graph.Graph, built map[shapeKind]int) {
	fmt.Fprintf(w, "built: %d chains, %d rings, %d trees\n", built[kindChain], built[kindRing], built[kindTree])
	fmt.Fprintf(w, "live: %d objects, %d anchors, %d bytes (limit %d)\n", st.Objects, st.Anchors, st.MemoryUsed, st.MemoryLimit)
	fmt.Fprintf(w, "allocated: %d, freed locally: %d, freed by collection: %d\n", st.Allocations, st.FreedLocal, st.FreedCollected)
	fmt.Fprintf(w, "collections: %d (%d by budget), total pause %s\n", st.Collections, st.BudgetCollections, st.TotalPause)

	garbage := graph.Unreachable(snap)
	fmt.Fprintf(w, "awaiting collection: %d objects in %d cycles\n", len(garbage), len(graph.CyclicGarbage(snap)))
	fmt.Fprintf(w, "fingerprint: %016x\n", graph.Fingerprint(snap))
}

func writeOutputs(out config.Output, heap *gc.Collector, snap graph.Graph, log zerolog.Logger) error {
	if out.Snapshot != "" {
		if err := heapdump.WriteFile(out.Snapshot, snap); err != nil {
			return err
		}
		log.Info().Str("path", out.Snapshot).Int("objects", snap.NumObjects()).Msg("snapshot written")
	}

	if out.Archive != "" {
		store, err := archive.Open(out.Archive, archive.WithLogger(log))
		if err != nil {
			return err
		}
		seq, err := store.Put(snap)
		if err == nil && out.ArchiveKeep > 0 {
			err = store.Prune(out.ArchiveKeep)
		}
		if cerr := store.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		log.Info().Str("path", out.Archive).Uint64("seq", seq).Msg("snapshot archived")
	}

	if out.Metrics != "" {
		reg := prometheus.NewRegistry()
		if err := reg.Register(gcmetrics.New(heap, nil)); err != nil {
			return errors.Wrap(err, "registering metrics")
		}
		if err := prometheus.WriteToTextfile(out.Metrics, reg); err != nil {
			return errors.Wrap(err, "writing metrics")
		}
		log.Info().Str("path", out.Metrics).Msg("metrics written")
	}
	return nil
}
