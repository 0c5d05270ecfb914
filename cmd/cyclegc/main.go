// ABOUTME: Entry point of the cyclegc command
// ABOUTME: Dispatches to the sim and inspect subcommands

package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/prateek/cyclegc"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "cyclegc %s - hybrid reference counting and cycle collection\n\n", cyclegc.Version)
	fmt.Fprintf(w, "Usage:\n")
	fmt.Fprintf(w, "  cyclegc sim -config file.toml                     run a synthetic workload\n")
	fmt.Fprintf(w, "  cyclegc inspect [-paths id] [-retained] [-cycles] file\n")
	fmt.Fprintf(w, "                                                    analyse a heap snapshot\n")
	fmt.Fprintf(w, "  cyclegc version                                   print the version\n")
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}

	var err error
	switch args[0] {
	case "sim":
		err = runSim(args[1:], stdout, stderr)
	case "inspect":
		err = runInspect(args[1:], stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, cyclegc.Version)
	case "help", "-h", "-help", "--help":
		usage(stdout)
	default:
		fmt.Fprintf(stderr, "cyclegc: unknown command %q\n\n", args[0])
		usage(stderr)
		return 2
	}

	switch {
	case err == nil, err == flag.ErrHelp:
		return 0
	case isUsageError(err):
		return 2
	default:
		fmt.Fprintf(stderr, "cyclegc %s: %v\n", args[0], err)
		return 1
	}
}

// usageError marks errors already reported by a flag set.
type usageError struct{ error }

func isUsageError(err error) bool {
	_, ok := err.(usageError)
	return ok
}

// parseFlags parses args, reporting problems to stderr.
func parseFlags(fs *flag.FlagSet, args []string, stderr io.Writer) error {
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return err
		}
		return usageError{err}
	}
	return nil
}
