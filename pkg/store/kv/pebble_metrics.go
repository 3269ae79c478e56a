package kv

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PebbleMetrics is a compact view of the pebble metrics the inspect
// command prints.
type PebbleMetrics struct {
	WALBytes       uint64
	WALFiles       int64
	L0Files        int64
	MemtableBytes  uint64
	CompactionDebt uint64
	Compactions    int64
}

// Metrics returns a snapshot of pebble's internal metrics.
func (p *Pebble) Metrics() PebbleMetrics {
	var m PebbleMetrics
	if !p.Ready() {
		return m
	}
	pm := p.db.Metrics()
	m.WALBytes = pm.WAL.Size
	m.WALFiles = pm.WAL.Files
	m.L0Files = pm.Levels[0].NumFiles
	m.MemtableBytes = pm.MemTable.Size
	m.CompactionDebt = pm.Compact.EstimatedDebt
	m.Compactions = pm.Compact.Count
	return m
}

// Collector exposes pebble metrics to prometheus.
func (p *Pebble) Collector() prometheus.Collector {
	return newPebbleCollector(p)
}

type pebbleCollector struct {
	p *Pebble

	compactionCount *prometheus.Desc
	compactionDebt  *prometheus.Desc
	memtableSize    *prometheus.Desc
	memtableCount   *prometheus.Desc
	walFiles        *prometheus.Desc
	walSize         *prometheus.Desc
	walBytesWritten *prometheus.Desc
	l0Files         *prometheus.Desc
}

func newPebbleCollector(p *Pebble) *pebbleCollector {
	return &pebbleCollector{
		p: p,
		compactionCount: prometheus.NewDesc(
			"pebble_compaction_count_total",
			"Total number of compactions performed",
			nil, nil,
		),
		compactionDebt: prometheus.NewDesc(
			"pebble_compaction_estimated_debt_bytes",
			"Estimated number of bytes that need to be compacted to reach a stable state",
			nil, nil,
		),
		memtableSize: prometheus.NewDesc(
			"pebble_memtable_size_bytes",
			"Current size of the memtable in bytes",
			nil, nil,
		),
		memtableCount: prometheus.NewDesc(
			"pebble_memtable_count",
			"Current count of memtables",
			nil, nil,
		),
		walFiles: prometheus.NewDesc(
			"pebble_wal_files",
			"Number of live WAL files",
			nil, nil,
		),
		walSize: prometheus.NewDesc(
			"pebble_wal_size_bytes",
			"Size of the live data in the WAL files",
			nil, nil,
		),
		walBytesWritten: prometheus.NewDesc(
			"pebble_wal_bytes_written_total",
			"Physical bytes written to the WAL",
			nil, nil,
		),
		l0Files: prometheus.NewDesc(
			"pebble_l0_files",
			"Number of sstables in level 0",
			nil, nil,
		),
	}
}

func (c *pebbleCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.compactionCount
	ch <- c.compactionDebt
	ch <- c.memtableSize
	ch <- c.memtableCount
	ch <- c.walFiles
	ch <- c.walSize
	ch <- c.walBytesWritten
	ch <- c.l0Files
}

func (c *pebbleCollector) Collect(ch chan<- prometheus.Metric) {
	if !c.p.Ready() {
		return
	}
	m := c.p.db.Metrics()
	ch <- prometheus.MustNewConstMetric(c.compactionCount, prometheus.CounterValue, float64(m.Compact.Count))
	ch <- prometheus.MustNewConstMetric(c.compactionDebt, prometheus.GaugeValue, float64(m.Compact.EstimatedDebt))
	ch <- prometheus.MustNewConstMetric(c.memtableSize, prometheus.GaugeValue, float64(m.MemTable.Size))
	ch <- prometheus.MustNewConstMetric(c.memtableCount, prometheus.GaugeValue, float64(m.MemTable.Count))
	ch <- prometheus.MustNewConstMetric(c.walFiles, prometheus.GaugeValue, float64(m.WAL.Files))
	ch <- prometheus.MustNewConstMetric(c.walSize, prometheus.GaugeValue, float64(m.WAL.Size))
	ch <- prometheus.MustNewConstMetric(c.walBytesWritten, prometheus.CounterValue, float64(m.WAL.BytesWritten))
	ch <- prometheus.MustNewConstMetric(c.l0Files, prometheus.GaugeValue, float64(m.Levels[0].NumFiles))
}
