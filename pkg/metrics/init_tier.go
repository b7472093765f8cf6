package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initTierMetrics() {
	r.TierRecordsTotal = promauto.With(r.reg).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "luma_tier_records_total",
			Help: "Number of records currently resident in each tier",
		},
		[]string{"tier"},
	)

	r.TierMigrationsTotal = promauto.With(r.reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "luma_tier_migrations_total",
			Help: "Total number of records migrated between tiers",
		},
		[]string{"from_tier", "to_tier"},
	)

	r.TierBytesTotal = promauto.With(r.reg).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "luma_tier_bytes_total",
			Help: "Bytes currently resident in each tier",
		},
		[]string{"tier"},
	)
}
