package netsync

import "github.com/prometheus/client_golang/prometheus"

// Collector exposes per-peer read-buffer occupancy and write-batch-size
// averages as prometheus metrics, reading straight off Net.GetStats() on
// every scrape the same way storage.Collector reads straight off pebble.
type Collector struct {
	net *Net

	readBuffer *prometheus.Desc
	writeBatch *prometheus.Desc
}

func NewCollector(net *Net) *Collector {
	ns := "recordcrdt"
	return &Collector{
		net: net,
		readBuffer: prometheus.NewDesc(
			ns+"_net_read_buffer_bytes", "Bytes currently buffered waiting to be drained for a peer.",
			[]string{"peer"}, nil),
		writeBatch: prometheus.NewDesc(
			ns+"_net_write_batch_bytes_avg", "Running average write batch size in bytes for a peer.",
			[]string{"peer"}, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.readBuffer
	ch <- c.writeBatch
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.net.GetStats()
	for peer, size := range stats.ReadBuffers {
		ch <- prometheus.MustNewConstMetric(c.readBuffer, prometheus.GaugeValue, float64(size), peer)
	}
	for peer, size := range stats.WriteBatches {
		ch <- prometheus.MustNewConstMetric(c.writeBatch, prometheus.GaugeValue, float64(size), peer)
	}
}
