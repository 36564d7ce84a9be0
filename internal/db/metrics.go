package db

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "yolo_timeline"

// PoolCollector exports pool statistics as Prometheus metrics. Values are read
// from the pool at scrape time.
type PoolCollector struct {
	pool *Pool

	total             *prometheus.Desc
	available         *prometheus.Desc
	inUse             *prometheus.Desc
	size              *prometheus.Desc
	acquires          *prometheus.Desc
	acquireTimeouts   *prometheus.Desc
	staleReplacements *prometheus.Desc
	connectFailures   *prometheus.Desc
}

// NewPoolCollector creates a collector for p.
func NewPoolCollector(p *Pool) *PoolCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "db_pool", name), help, nil, nil)
	}
	return &PoolCollector{
		pool:              p,
		total:             desc("connections_total", "Connections currently owned by the pool."),
		available:         desc("connections_available", "Idle connections ready to be acquired."),
		inUse:             desc("connections_in_use", "Connections held by in-flight handles."),
		size:              desc("size", "Configured pool size."),
		acquires:          desc("acquires_total", "Connections handed out of the idle set."),
		acquireTimeouts:   desc("acquire_timeouts_total", "Acquires that gave up waiting for an idle connection."),
		staleReplacements: desc("stale_replacements_total", "Dead connections replaced during acquire."),
		connectFailures:   desc("connect_failures_total", "Failed attempts to open a connection."),
	}
}

// Describe implements prometheus.Collector.
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.available
	ch <- c.inUse
	ch <- c.size
	ch <- c.acquires
	ch <- c.acquireTimeouts
	ch <- c.staleReplacements
	ch <- c.connectFailures
}

// Collect implements prometheus.Collector.
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.pool.Stats()
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(stats.TotalConnections))
	ch <- prometheus.MustNewConstMetric(c.available, prometheus.GaugeValue, float64(stats.AvailableConnections))
	ch <- prometheus.MustNewConstMetric(c.inUse, prometheus.GaugeValue, float64(stats.InUseConnections))
	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(c.pool.Size()))
	ch <- prometheus.MustNewConstMetric(c.acquires, prometheus.CounterValue, float64(c.pool.acquires.Load()))
	ch <- prometheus.MustNewConstMetric(c.acquireTimeouts, prometheus.CounterValue, float64(c.pool.acquireTimeouts.Load()))
	ch <- prometheus.MustNewConstMetric(c.staleReplacements, prometheus.CounterValue, float64(c.pool.staleReplacements.Load()))
	ch <- prometheus.MustNewConstMetric(c.connectFailures, prometheus.CounterValue, float64(c.pool.connectFailures.Load()))
}
