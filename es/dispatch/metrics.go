package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StatsSource is anything that can report engine stats, such as an Engine
// or a bus wrapping one.
type StatsSource interface {
	Stats() Stats
}

// Collector exports the stats of an engine as Prometheus metrics. Values are
// read from the source on every scrape.
type Collector struct {
	source StatsSource

	activePartitions *prometheus.Desc
	pendingItems     *prometheus.Desc
	handledItems     *prometheus.Desc
	failedItems      *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector for source. Every metric carries an
// "engine" label set to name.
func NewCollector(namespace, name string, source StatsSource) *Collector {
	labels := prometheus.Labels{"engine": name}
	return &Collector{
		source: source,
		activePartitions: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "dispatch", "active_partitions"),
			"Number of partitions with queued or in-flight items.",
			nil, labels,
		),
		pendingItems: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "dispatch", "pending_items"),
			"Number of admitted items not yet handled.",
			nil, labels,
		),
		handledItems: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "dispatch", "handled_items_total"),
			"Total number of items handled successfully.",
			nil, labels,
		),
		failedItems: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "dispatch", "failed_items_total"),
			"Total number of items whose handler failed.",
			nil, labels,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activePartitions
	ch <- c.pendingItems
	ch <- c.handledItems
	ch <- c.failedItems
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.Stats()
	ch <- prometheus.MustNewConstMetric(c.activePartitions, prometheus.GaugeValue, float64(stats.ActivePartitions))
	ch <- prometheus.MustNewConstMetric(c.pendingItems, prometheus.GaugeValue, float64(stats.PendingItems))
	ch <- prometheus.MustNewConstMetric(c.handledItems, prometheus.CounterValue, float64(stats.HandledItems))
	ch <- prometheus.MustNewConstMetric(c.failedItems, prometheus.CounterValue, float64(stats.FailedItems))
}
