package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PoolStats provides the metrics collector access to worker pool state.
type PoolStats interface {
	Pending() int
	Busy() int64
	Workers() int
	Capacity() int
}

// Collector implements prometheus.Collector to read live gauges at scrape time.
type Collector struct {
	stats PoolStats

	queuePending  *prometheus.Desc
	queueCapacity *prometheus.Desc
	workersBusy   *prometheus.Desc
	workersTotal  *prometheus.Desc
}

// NewCollector creates a collector that reads pool state at scrape time.
// stats may be nil (metrics will report 0).
func NewCollector(stats PoolStats) *Collector {
	return &Collector{
		stats: stats,
		queuePending: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "pending"),
			"Jobs waiting for a worker.",
			nil, nil,
		),
		queueCapacity: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "capacity"),
			"Maximum number of queued jobs.",
			nil, nil,
		),
		workersBusy: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "workers", "busy"),
			"Workers currently running a model call.",
			nil, nil,
		),
		workersTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "workers", "total"),
			"Workers (loaded model instances) in the pool.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queuePending
	ch <- c.queueCapacity
	ch <- c.workersBusy
	ch <- c.workersTotal
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	var pending, capacity, busy, workers float64
	if c.stats != nil {
		pending = float64(c.stats.Pending())
		capacity = float64(c.stats.Capacity())
		busy = float64(c.stats.Busy())
		workers = float64(c.stats.Workers())
	}
	ch <- prometheus.MustNewConstMetric(c.queuePending, prometheus.GaugeValue, pending)
	ch <- prometheus.MustNewConstMetric(c.queueCapacity, prometheus.GaugeValue, capacity)
	ch <- prometheus.MustNewConstMetric(c.workersBusy, prometheus.GaugeValue, busy)
	ch <- prometheus.MustNewConstMetric(c.workersTotal, prometheus.GaugeValue, workers)
}
