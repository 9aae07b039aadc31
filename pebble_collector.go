package janusgraph

import (
	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/GregoryJC/janusgraph/mgmt"
	"github.com/GregoryJC/janusgraph/scan"
)

// StoreCollector exports the backing pebble store's internals (compaction
// debt, memtables, WAL) to prometheus. Values are read from pebble's own
// metrics struct at collection time.
type StoreCollector struct {
	db    *pebble.DB
	descs map[string]*prometheus.Desc
}

type storeMetric struct {
	name  string
	help  string
	kind  prometheus.ValueType
	value func(m *pebble.Metrics) float64
}

var storeMetrics = []storeMetric{
	{"janusgraph_store_compaction_count_total", "Total number of compactions performed",
		prometheus.CounterValue, func(m *pebble.Metrics) float64 { return float64(m.Compact.Count) }},
	{"janusgraph_store_compaction_estimated_debt_bytes", "Bytes to compact to reach a stable state",
		prometheus.GaugeValue, func(m *pebble.Metrics) float64 { return float64(m.Compact.EstimatedDebt) }},
	{"janusgraph_store_compaction_in_progress_bytes", "Bytes being compacted currently",
		prometheus.GaugeValue, func(m *pebble.Metrics) float64 { return float64(m.Compact.InProgressBytes) }},
	{"janusgraph_store_memtable_size_bytes", "Current size of the memtables",
		prometheus.GaugeValue, func(m *pebble.Metrics) float64 { return float64(m.MemTable.Size) }},
	{"janusgraph_store_memtable_count", "Current count of memtables",
		prometheus.GaugeValue, func(m *pebble.Metrics) float64 { return float64(m.MemTable.Count) }},
	{"janusgraph_store_wal_files", "Number of live WAL files",
		prometheus.GaugeValue, func(m *pebble.Metrics) float64 { return float64(m.WAL.Files) }},
	{"janusgraph_store_wal_size_bytes", "Size of live WAL data",
		prometheus.GaugeValue, func(m *pebble.Metrics) float64 { return float64(m.WAL.Size) }},
	{"janusgraph_store_wal_bytes_written_total", "Physical bytes written to the WAL",
		prometheus.CounterValue, func(m *pebble.Metrics) float64 { return float64(m.WAL.BytesWritten) }},
	{"janusgraph_store_tombstones", "Approximate count of delete tombstones",
		prometheus.GaugeValue, func(m *pebble.Metrics) float64 { return float64(m.Keys.TombstoneCount) }},
}

func NewStoreCollector(db *pebble.DB) *StoreCollector {
	descs := make(map[string]*prometheus.Desc, len(storeMetrics))
	for _, sm := range storeMetrics {
		descs[sm.name] = prometheus.NewDesc(sm.name, sm.help, nil, nil)
	}
	return &StoreCollector{db: db, descs: descs}
}

func (c *StoreCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
}

func (c *StoreCollector) Collect(ch chan<- prometheus.Metric) {
	m := c.db.Metrics()
	for _, sm := range storeMetrics {
		ch <- prometheus.MustNewConstMetric(c.descs[sm.name], sm.kind, sm.value(m))
	}
}

// RegisterMetrics registers every collector of the module on reg: the scan
// engine's job vectors, the dispatcher's action counter and the store
// collector for this graph.
func (g *Graph) RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		scan.ScanJobCount,
		scan.ScanJobResults,
		scan.ScanJobDuration,
		scan.ScanFlushRetries,
		mgmt.UpdateIndexCount,
		NewStoreCollector(g.db),
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
