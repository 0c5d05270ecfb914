// ABOUTME: The inspect subcommand: analyses a heap snapshot file
// ABOUTME: Prints totals, retention paths, retained sizes and reference cycles

package main

import (
	"cmp"
	"flag"
	"fmt"
	"io"
	"slices"
	"strconv"
	"text/tabwriter"

	"github.com/cockroachdb/errors"

	"github.com/prateek/cyclegc/graph"
	"github.com/prateek/cyclegc/heapdump"
)

func runInspect(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	paths := fs.String("paths", "", "print retention paths of this object ID")
	maxPaths := fs.Int("max-paths", 5, "maximum number of paths printed by -paths")
	retained := fs.Bool("retained", false, "print the objects retaining the most memory")
	top := fs.Int("top", 10, "number of objects printed by -retained")
	cycles := fs.Bool("cycles", false, "print reference cycles")
	if err := parseFlags(fs, args, stderr); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: cyclegc inspect [-paths id] [-retained] [-cycles] file")
		return usageError{errors.New("expected one snapshot file")}
	}

	g, err := heapdump.OpenFile(fs.Arg(0))
	if err != nil {
		return err
	}
	summarize(stdout, g)

	if *paths != "" {
		id, err := strconv.ParseUint(*paths, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "-paths %q", *paths)
		}
		if err := printPaths(stdout, g, graph.ObjID(id), *maxPaths); err != nil {
			return err
		}
	}
	if *retained {
		printRetained(stdout, g, *top)
	}
	if *cycles {
		printCycles(stdout, g)
	}
	return nil
}

func summarize(w io.Writer, g graph.Graph) {
	garbage := graph.Unreachable(g)
	var garbageBytes uint64
	for _, id := range garbage {
		garbageBytes += g.GetObject(id).Size
	}
	fmt.Fprintf(w, "objects: %d (%d bytes)\n", g.NumObjects(), graph.TotalSize(g))
	fmt.Fprintf(w, "anchors: %d\n", len(g.GetRoots().IDs))
	fmt.Fprintf(w, "unreachable: %d (%d bytes)\n", len(garbage), garbageBytes)
	fmt.Fprintf(w, "fingerprint: %016x\n", graph.Fingerprint(g))
}

func describe(g graph.Graph, id graph.ObjID) string {
	obj := g.GetObject(id)
	return fmt.Sprintf("#%d %s", id, obj.Type)
}

func printPaths(w io.Writer, g graph.Graph, id graph.ObjID, maxPaths int) error {
	if g.GetObject(id) == nil {
		return errors.Newf("object %d is not in the snapshot", id)
	}
	found := graph.PathsToRoots(g, id, maxPaths)
	fmt.Fprintf(w, "\npaths from %s to anchors: %d\n", describe(g, id), len(found))
	if len(found) == 0 {
		fmt.Fprintln(w, "  unreachable, the next collection reclaims it")
	}
	for i, p := range found {
		fmt.Fprintf(w, "  %d:", i+1)
		for j, step := range p.IDs {
			if j > 0 {
				fmt.Fprint(w, " <-")
			}
			fmt.Fprintf(w, " %s", describe(g, step))
		}
		fmt.Fprintln(w)
	}
	return nil
}

func printRetained(w io.Writer, g graph.Graph, top int) {
	sizes := graph.RetainedSize(g)
	ids := make([]graph.ObjID, 0, len(sizes))
	for id := range sizes {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b graph.ObjID) int {
		if c := cmp.Compare(sizes[b], sizes[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	if len(ids) > top {
		ids = ids[:top]
	}

	fmt.Fprintf(w, "\nlargest retained sizes:\n")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  ID\tTYPE\tSIZE\tRETAINED")
	for _, id := range ids {
		obj := g.GetObject(id)
		fmt.Fprintf(tw, "  %d\t%s\t%d\t%d\n", id, obj.Type, obj.Size, sizes[id])
	}
	tw.Flush()
}

func printCycles(w io.Writer, g graph.Graph) {
	all := graph.Cycles(g)
	garbage := graph.CyclicGarbage(g)
	fmt.Fprintf(w, "\ncycles: %d (%d unreachable)\n", len(all), len(garbage))
	reachable := graph.Reachable(g)
	for _, c := range all {
		state := "anchored"
		if !reachable[c[0]] {
			state = "garbage"
		}
		fmt.Fprintf(w, "  %s, %d objects:", state, len(c))
		for _, id := range c {
			fmt.Fprintf(w, " %s", describe(g, id))
		}
		fmt.Fprintln(w)
	}
}
