// Package prometheus exports zlog metrics to Prometheus.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/zlog"
)

const namespace = "zlog"

// Collector implements zlog.MetricsCollector on Prometheus metrics.
type Collector struct {
	opLatency     *prometheus.HistogramVec
	appendRetries prometheus.Counter
	syncScanned   prometheus.Counter
	syncFound     prometheus.Counter
	refreshes     *prometheus.CounterVec
	epoch         prometheus.Gauge
	benchOps      *prometheus.CounterVec
	benchBytes    *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_latency_seconds",
			Help:      "Latency of log operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"}),
		appendRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "append_retries_total",
			Help:      "Positions abandoned by appends because of a stale epoch",
		}),
		syncScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_scanned_positions_total",
			Help:      "Positions examined by stream syncs",
		}),
		syncFound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_discovered_positions_total",
			Help:      "Stream positions discovered by syncs",
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "projection_refreshes_total",
			Help:      "Projection refreshes",
		}, []string{"status"}),
		epoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "epoch",
			Help:      "Epoch of the last refreshed projection",
		}),
		benchOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bench_operations_total",
			Help:      "Benchmark operations completed",
		}, []string{"workload", "status"}),
		benchBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bench_bytes_total",
			Help:      "Payload bytes written by benchmark operations",
		}, []string{"workload"}),
	}

	for _, m := range []prometheus.Collector{
		c.opLatency, c.appendRetries, c.syncScanned, c.syncFound,
		c.refreshes, c.epoch, c.benchOps, c.benchBytes,
	} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordAppend implements zlog.MetricsCollector.
func (c *Collector) RecordAppend(d time.Duration, retries int, err error) {
	c.opLatency.WithLabelValues("append", status(err)).Observe(d.Seconds())
	c.appendRetries.Add(float64(retries))
}

// RecordRead implements zlog.MetricsCollector.
func (c *Collector) RecordRead(d time.Duration, err error) {
	c.opLatency.WithLabelValues("read", status(err)).Observe(d.Seconds())
}

// RecordFill implements zlog.MetricsCollector.
func (c *Collector) RecordFill(d time.Duration, err error) {
	c.opLatency.WithLabelValues("fill", status(err)).Observe(d.Seconds())
}

// RecordSync implements zlog.MetricsCollector.
func (c *Collector) RecordSync(d time.Duration, scanned, discovered int, err error) {
	c.opLatency.WithLabelValues("sync", status(err)).Observe(d.Seconds())
	c.syncScanned.Add(float64(scanned))
	c.syncFound.Add(float64(discovered))
}

// RecordRefresh implements zlog.MetricsCollector.
func (c *Collector) RecordRefresh(epoch uint64, err error) {
	c.refreshes.WithLabelValues(status(err)).Inc()
	if err == nil {
		c.epoch.Set(float64(epoch))
	}
}

// RecordBenchOp records one completed benchmark operation.
func (c *Collector) RecordBenchOp(workload string, bytes int, err error) {
	c.benchOps.WithLabelValues(workload, status(err)).Inc()
	if err == nil {
		c.benchBytes.WithLabelValues(workload).Add(float64(bytes))
	}
}

var _ zlog.MetricsCollector = (*Collector)(nil)
