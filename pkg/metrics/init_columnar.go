package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initColumnarMetrics() {
	r.ColumnarScansTotal = promauto.With(r.reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "luma_columnar_scans_total",
			Help: "Total number of columnar table scans",
		},
		[]string{"table"},
	)

	r.ColumnarRowsScanned = promauto.With(r.reg).NewCounter(
		prometheus.CounterOpts{
			Name: "luma_columnar_rows_scanned_total",
			Help: "Total rows evaluated by columnar scans before projection",
		},
	)

	r.ColumnarRowsReturned = promauto.With(r.reg).NewCounter(
		prometheus.CounterOpts{
			Name: "luma_columnar_rows_returned_total",
			Help: "Total rows returned by columnar scans after filtering",
		},
	)

	r.ColumnarPartitionsPruned = promauto.With(r.reg).NewCounter(
		prometheus.CounterOpts{
			Name: "luma_columnar_partitions_pruned_total",
			Help: "Total partitions skipped by zone-map pruning",
		},
	)
}
