// Package metrics is the Prometheus registry for the storage engine,
// grounded on the teacher's pkg/metrics (Registry struct + per-domain
// initX files), generalized from graph/HTTP/cluster metrics to
// LSM/tier/columnar/shard/system metrics. Unlike the teacher's DefaultRegistry()
// sync.Once global, NewRegistry always takes an explicit
// prometheus.Registerer so a process can run more than one Engine (one per
// shard) without metric name collisions or shared global state.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every metric the storage engine exports.
type Registry struct {
	// LSM / storage engine
	StorageOperationsTotal   *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec
	StorageKeysTotal         prometheus.Gauge
	StorageDiskUsageBytes    prometheus.Gauge
	CompactionsTotal         *prometheus.CounterVec
	CompactionDuration       prometheus.Histogram
	FlushesTotal             prometheus.Counter
	WALSyncsTotal            *prometheus.CounterVec

	// Hybrid tier manager
	TierRecordsTotal    *prometheus.GaugeVec
	TierMigrationsTotal *prometheus.CounterVec
	TierBytesTotal      *prometheus.GaugeVec

	// Columnar / time-series
	ColumnarScansTotal     *prometheus.CounterVec
	ColumnarRowsScanned    prometheus.Counter
	ColumnarRowsReturned   prometheus.Counter
	ColumnarPartitionsPruned prometheus.Counter

	// Sharding
	ShardTotal       prometheus.Gauge
	ShardActiveTotal prometheus.Gauge
	ShardNodesTotal  prometheus.Gauge
	ShardRebalancesTotal prometheus.Counter
	ShardSplitsTotal prometheus.Counter

	// System
	UptimeSeconds    prometheus.Gauge
	GoRoutines       prometheus.Gauge
	MemoryAllocBytes prometheus.Gauge
	MemorySysBytes   prometheus.Gauge

	reg prometheus.Registerer
}

// NewRegistry creates a Registry with every metric registered against reg.
// Pass a fresh *prometheus.Registry per Engine instance to keep per-shard
// metrics independent; pass prometheus.DefaultRegisterer to export through
// the global /metrics handler in a single-engine process.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{reg: reg}
	r.initStorageMetrics()
	r.initTierMetrics()
	r.initColumnarMetrics()
	r.initShardMetrics()
	r.initSystemMetrics()
	return r
}
