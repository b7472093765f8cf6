package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initStorageMetrics() {
	r.StorageOperationsTotal = promauto.With(r.reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "luma_storage_operations_total",
			Help: "Total number of LSM engine operations (put/get/delete/scan)",
		},
		[]string{"operation", "status"},
	)

	r.StorageOperationDuration = promauto.With(r.reg).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "luma_storage_operation_duration_seconds",
			Help:    "LSM engine operation duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
		[]string{"operation"},
	)

	r.StorageKeysTotal = promauto.With(r.reg).NewGauge(
		prometheus.GaugeOpts{
			Name: "luma_storage_keys_total",
			Help: "Approximate number of live keys across all levels",
		},
	)

	r.StorageDiskUsageBytes = promauto.With(r.reg).NewGauge(
		prometheus.GaugeOpts{
			Name: "luma_storage_disk_usage_bytes",
			Help: "Disk space used by SSTables and the WAL in bytes",
		},
	)

	r.CompactionsTotal = promauto.With(r.reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "luma_compactions_total",
			Help: "Total number of compactions run, by outcome",
		},
		[]string{"status"},
	)

	r.CompactionDuration = promauto.With(r.reg).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "luma_compaction_duration_seconds",
			Help:    "Compaction duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	r.FlushesTotal = promauto.With(r.reg).NewCounter(
		prometheus.CounterOpts{
			Name: "luma_memtable_flushes_total",
			Help: "Total number of memtable flushes to L0",
		},
	)

	r.WALSyncsTotal = promauto.With(r.reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "luma_wal_syncs_total",
			Help: "Total number of WAL fsyncs, by sync policy",
		},
		[]string{"policy"},
	)
}
