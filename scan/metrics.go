package scan

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"
)

var ScanJobCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "janusgraph",
	Subsystem: "scan",
	Name:      "jobs",
}, []string{"job"})

var ScanJobResults = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "janusgraph",
	Subsystem: "scan",
	Name:      "job_results",
}, []string{"job", "result"})

var ScanJobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "janusgraph",
	Subsystem: "scan",
	Name:      "job_duration",
	Buckets:   []float64{0, 1, 5, 10, 20, 50, 100, 200, 500},
}, []string{"job"})

var ScanFlushRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "janusgraph",
	Subsystem: "scan",
	Name:      "flush_retries",
}, []string{"job"})

// FailedRecordsCount counts records whose per-record processing failed
// non-fatally; the scan continues past them.
const FailedRecordsCount = "failed-records"

// Metrics is the set of named counters a scan job accumulates, plus the
// overall outcome. Counter addition is commutative and associative, so
// workers increment concurrently and partial re-execution merges safely.
// Callers must treat a Metrics as immutable once its job's future resolves.
type Metrics struct {
	counters *xsync.MapOf[string, *xsync.Counter]
	failed   atomic.Bool
}

func NewMetrics() *Metrics {
	return &Metrics{counters: xsync.NewMapOf[string, *xsync.Counter]()}
}

func (m *Metrics) counter(name string) *xsync.Counter {
	c, _ := m.counters.LoadOrCompute(name, func() *xsync.Counter {
		return xsync.NewCounter()
	})
	return c
}

func (m *Metrics) Increment(name string) {
	m.counter(name).Inc()
}

func (m *Metrics) Add(name string, delta int64) {
	m.counter(name).Add(delta)
}

// Custom returns the current value of a named counter; absent counters
// read as zero.
func (m *Metrics) Custom(name string) int64 {
	c, ok := m.counters.Load(name)
	if !ok {
		return 0
	}
	return c.Value()
}

func (m *Metrics) Snapshot() map[string]int64 {
	snap := make(map[string]int64)
	m.counters.Range(func(name string, c *xsync.Counter) bool {
		snap[name] = c.Value()
		return true
	})
	return snap
}

func (m *Metrics) Succeeded() bool {
	return !m.failed.Load()
}

func (m *Metrics) markFailed() {
	m.failed.Store(true)
}
