// ABOUTME: Prometheus collector exporting collector statistics
// ABOUTME: Gauges for the live heap, counters for allocation, reclamation and passes

package gcmetrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/prateek/cyclegc/gc"
)

const namespace = "cyclegc"

// StatsSource is anything that reports collector statistics.
type StatsSource interface {
	Stats() gc.Stats
}

// Collector is a prometheus.Collector over a StatsSource. A gc.Collector is
// not safe for concurrent use, so gather from the goroutine that owns it
// (for example with prometheus.WriteToTextfile) or wrap it in a source that
// synchronises.
type Collector struct {
	src StatsSource

	objects       *prometheus.Desc
	anchors       *prometheus.Desc
	memoryUsed    *prometheus.Desc
	memoryLimit   *prometheus.Desc
	allocations   *prometheus.Desc
	freed         *prometheus.Desc
	collections   *prometheus.Desc
	budgetPasses  *prometheus.Desc
	deferredDrops *prometheus.Desc
	lastPause     *prometheus.Desc
	pauseTotal    *prometheus.Desc
}

// New returns a Collector over src. constLabels are attached to every metric.
func New(src StatsSource, constLabels prometheus.Labels) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, constLabels)
	}
	return &Collector{
		src:           src,
		objects:       desc("objects", "Live managed objects."),
		anchors:       desc("anchors", "Linked anchors."),
		memoryUsed:    desc("memory_used_bytes", "Bytes charged to the memory budget."),
		memoryLimit:   desc("memory_limit_bytes", "Memory budget in bytes, 0 when unlimited."),
		allocations:   desc("allocations_total", "Objects allocated."),
		freed:         desc("freed_total", "Objects reclaimed, by pass kind.", "pass"),
		collections:   desc("collections_total", "Completed full collections."),
		budgetPasses:  desc("budget_collections_total", "Full collections triggered by the memory budget."),
		deferredDrops: desc("deferred_drops_total", "Ref counts that reached zero while a pass was running."),
		lastPause:     desc("last_pause_seconds", "Duration of the last full collection."),
		pauseTotal:    desc("pause_seconds_total", "Time spent in full collections."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.objects
	ch <- c.anchors
	ch <- c.memoryUsed
	ch <- c.memoryLimit
	ch <- c.allocations
	ch <- c.freed
	ch <- c.collections
	ch <- c.budgetPasses
	ch <- c.deferredDrops
	ch <- c.lastPause
	ch <- c.pauseTotal
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, labels...)
	}
	gauge(c.objects, float64(s.Objects))
	gauge(c.anchors, float64(s.Anchors))
	gauge(c.memoryUsed, float64(s.MemoryUsed))
	gauge(c.memoryLimit, float64(s.MemoryLimit))
	counter(c.allocations, float64(s.Allocations))
	counter(c.freed, float64(s.FreedLocal), "local")
	counter(c.freed, float64(s.FreedCollected), "collect")
	counter(c.collections, float64(s.Collections))
	counter(c.budgetPasses, float64(s.BudgetCollections))
	counter(c.deferredDrops, float64(s.DeferredDrops))
	gauge(c.lastPause, s.LastPause.Seconds())
	counter(c.pauseTotal, s.TotalPause.Seconds())
}
