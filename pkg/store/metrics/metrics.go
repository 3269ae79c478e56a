// Package metrics holds the prometheus collectors shared by the storage
// layers. A nil *Store is valid everywhere and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chatstore"

// result label values
const (
	ResultOK       = "ok"
	ResultMiss     = "miss"
	ResultError    = "error"
	ResultExists   = "exists"
	ResultEmpty    = "empty"
	ResultNotFound = "not_found"
)

type Store struct {
	KVOps        *prometheus.CounterVec
	CacheHits    prometheus.Counter
	CacheMisses  prometheus.Counter
	CacheFlushes prometheus.Counter
	CacheEntries prometheus.Gauge
	DocOps       *prometheus.CounterVec
	TreeOps      *prometheus.CounterVec
	TreeReads    *prometheus.HistogramVec
}

// New builds the collectors and registers them on reg. A nil reg leaves
// them unregistered, which is what most tests want.
func New(reg prometheus.Registerer) (*Store, error) {
	s := &Store{
		KVOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "kv",
			Name:      "operations_total",
			Help:      "Backing store operations by op and result.",
		}, []string{"op", "result"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Reads served from the bounded read cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Reads delegated to the backing store.",
		}),
		CacheFlushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "flushes_total",
			Help:      "Full cache clears triggered by the entry limit.",
		}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Distinct keys currently cached.",
		}),
		DocOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "docs",
			Name:      "operations_total",
			Help:      "Document store operations by op and result.",
		}, []string{"op", "result"}),
		TreeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tree",
			Name:      "operations_total",
			Help:      "Ranking tree operations by tree, op and result.",
		}, []string{"tree", "op", "result"}),
		TreeReads: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tree",
			Name:      "node_reads",
			Help:      "Node records read per tree operation.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"tree", "op"}),
	}
	if reg == nil {
		return s, nil
	}
	for _, c := range []prometheus.Collector{
		s.KVOps, s.CacheHits, s.CacheMisses, s.CacheFlushes, s.CacheEntries,
		s.DocOps, s.TreeOps, s.TreeReads,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) KV(op, result string) {
	if s == nil {
		return
	}
	s.KVOps.WithLabelValues(op, result).Inc()
}

func (s *Store) CacheHit() {
	if s == nil {
		return
	}
	s.CacheHits.Inc()
}

func (s *Store) CacheMiss() {
	if s == nil {
		return
	}
	s.CacheMisses.Inc()
}

func (s *Store) CacheFlush() {
	if s == nil {
		return
	}
	s.CacheFlushes.Inc()
}

func (s *Store) CacheSize(n int) {
	if s == nil {
		return
	}
	s.CacheEntries.Set(float64(n))
}

func (s *Store) Doc(op, result string) {
	if s == nil {
		return
	}
	s.DocOps.WithLabelValues(op, result).Inc()
}

func (s *Store) Tree(tree, op, result string, nodeReads int) {
	if s == nil {
		return
	}
	s.TreeOps.WithLabelValues(tree, op, result).Inc()
	s.TreeReads.WithLabelValues(tree, op).Observe(float64(nodeReads))
}

// Result maps an error onto the ok/error label.
func Result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
