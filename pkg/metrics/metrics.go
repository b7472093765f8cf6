package metrics

import (
	"runtime"
	"time"
)

// RecordStorageOperation records one LSM engine operation's outcome and
// latency.
func (r *Registry) RecordStorageOperation(operation, status string, duration time.Duration) {
	r.StorageOperationsTotal.WithLabelValues(operation, status).Inc()
	r.StorageOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCompaction records one compaction's outcome and duration.
func (r *Registry) RecordCompaction(status string, duration time.Duration) {
	r.CompactionsTotal.WithLabelValues(status).Inc()
	r.CompactionDuration.Observe(duration.Seconds())
}

// RecordFlush increments the memtable flush counter.
func (r *Registry) RecordFlush() {
	r.FlushesTotal.Inc()
}

// RecordWALSync records one WAL fsync under the given sync policy label.
func (r *Registry) RecordWALSync(policy string) {
	r.WALSyncsTotal.WithLabelValues(policy).Inc()
}

// SetStorageSize updates the live key count and on-disk byte gauges.
func (r *Registry) SetStorageSize(keys int64, diskBytes int64) {
	r.StorageKeysTotal.Set(float64(keys))
	r.StorageDiskUsageBytes.Set(float64(diskBytes))
}

// RecordTierMigration records one record moving from one tier to another.
func (r *Registry) RecordTierMigration(fromTier, toTier string) {
	r.TierMigrationsTotal.WithLabelValues(fromTier, toTier).Inc()
}

// SetTierOccupancy updates the per-tier record-count and byte gauges.
func (r *Registry) SetTierOccupancy(tier string, records int64, bytes int64) {
	r.TierRecordsTotal.WithLabelValues(tier).Set(float64(records))
	r.TierBytesTotal.WithLabelValues(tier).Set(float64(bytes))
}

// RecordColumnarScan records one Scan() call's row-level and
// partition-pruning stats.
func (r *Registry) RecordColumnarScan(table string, rowsScanned, rowsReturned, partitionsPruned int) {
	r.ColumnarScansTotal.WithLabelValues(table).Inc()
	r.ColumnarRowsScanned.Add(float64(rowsScanned))
	r.ColumnarRowsReturned.Add(float64(rowsReturned))
	r.ColumnarPartitionsPruned.Add(float64(partitionsPruned))
}

// SetShardStats updates the shard-count and node-count gauges from a
// pkg/shard.Stats snapshot.
func (r *Registry) SetShardStats(total, active, nodes uint32) {
	r.ShardTotal.Set(float64(total))
	r.ShardActiveTotal.Set(float64(active))
	r.ShardNodesTotal.Set(float64(nodes))
}

// RecordRebalance increments the ring-rebalance counter.
func (r *Registry) RecordRebalance() {
	r.ShardRebalancesTotal.Inc()
}

// RecordShardSplit increments the shard-split counter.
func (r *Registry) RecordShardSplit() {
	r.ShardSplitsTotal.Inc()
}

// UpdateSystemMetrics refreshes uptime and Go runtime memory gauges. Call
// periodically from a background ticker.
func (r *Registry) UpdateSystemMetrics(startedAt time.Time) {
	r.UptimeSeconds.Set(time.Since(startedAt).Seconds())
	r.GoRoutines.Set(float64(runtime.NumGoroutine()))

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	r.MemoryAllocBytes.Set(float64(ms.Alloc))
	r.MemorySysBytes.Set(float64(ms.Sys))
}
