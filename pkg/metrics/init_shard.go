package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initShardMetrics() {
	r.ShardTotal = promauto.With(r.reg).NewGauge(
		prometheus.GaugeOpts{
			Name: "luma_shards_total",
			Help: "Total number of key-hash shards configured",
		},
	)

	r.ShardActiveTotal = promauto.With(r.reg).NewGauge(
		prometheus.GaugeOpts{
			Name: "luma_shards_active_total",
			Help: "Number of shards currently in StatusActive",
		},
	)

	r.ShardNodesTotal = promauto.With(r.reg).NewGauge(
		prometheus.GaugeOpts{
			Name: "luma_shard_nodes_total",
			Help: "Number of distinct nodes on the consistent-hash ring",
		},
	)

	r.ShardRebalancesTotal = promauto.With(r.reg).NewCounter(
		prometheus.CounterOpts{
			Name: "luma_shard_rebalances_total",
			Help: "Total number of ring rebalances performed",
		},
	)

	r.ShardSplitsTotal = promauto.With(r.reg).NewCounter(
		prometheus.CounterOpts{
			Name: "luma_shard_splits_total",
			Help: "Total number of shard splits triggered by size threshold",
		},
	)
}
