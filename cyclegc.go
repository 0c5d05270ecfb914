// ABOUTME: Root cyclegc package providing version information and package documentation
// ABOUTME: The collector lives in gc, snapshot analysis in graph and heapdump

// Package cyclegc is a hybrid memory reclaimer for Go programs that manage
// object lifetimes explicitly. Objects are reference counted and freed as
// soon as their last handle is released; reference cycles, which counting
// alone never frees, are reclaimed by an on-demand mark-sweep from anchored
// roots.
//
// The engine is in package gc. Package graph analyses heap snapshots
// (retention paths, dominators, retained size, cycles), heapdump reads and
// writes them, and gcmetrics exports collector statistics to Prometheus.
package cyclegc

// Version is the semantic version of cyclegc
const Version = "0.1.0-dev"
