package admission

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// prometheusMetrics exports per-operation latency and tier admission
// counters, following the teacher's promauto.With(registry) wiring
// (pkg/metrics/init_storage.go) instead of the package-global registry the
// teacher also offers — this package takes an explicit Registerer so
// callers choose their own registry per the no-global-state redesign.
type prometheusMetrics struct {
	latency  *prometheus.HistogramVec
	rejected *prometheus.CounterVec
}

func newPrometheusMetrics(reg prometheus.Registerer) *prometheusMetrics {
	return &prometheusMetrics{
		latency: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "luma_admission_operation_duration_seconds",
				Help:    "Observed operation latency by operation and SLA tier",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "tier"},
		),
		rejected: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "luma_admission_rejected_total",
				Help: "Total number of admissions rejected by tier",
			},
			[]string{"tier"},
		),
	}
}

func (m *prometheusMetrics) observe(operation string, tier Tier, d time.Duration) {
	m.latency.WithLabelValues(operation, tierLabel(tier)).Observe(d.Seconds())
}

func tierLabel(t Tier) string {
	switch t {
	case Critical:
		return "critical"
	case High:
		return "high"
	case Normal:
		return "normal"
	default:
		return "background"
	}
}
