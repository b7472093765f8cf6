package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewRegistryInitializesEveryMetric(t *testing.T) {
	r := NewRegistry(prometheus.NewRegistry())
	if r.StorageOperationsTotal == nil {
		t.Error("StorageOperationsTotal not initialized")
	}
	if r.TierRecordsTotal == nil {
		t.Error("TierRecordsTotal not initialized")
	}
	if r.ColumnarScansTotal == nil {
		t.Error("ColumnarScansTotal not initialized")
	}
	if r.ShardTotal == nil {
		t.Error("ShardTotal not initialized")
	}
	if r.UptimeSeconds == nil {
		t.Error("UptimeSeconds not initialized")
	}
}

func TestRecordStorageOperationIncrementsCounter(t *testing.T) {
	r := NewRegistry(prometheus.NewRegistry())
	r.RecordStorageOperation("put", "ok", 5*time.Millisecond)
	r.RecordStorageOperation("put", "ok", 10*time.Millisecond)

	counter, err := r.StorageOperationsTotal.GetMetricWithLabelValues("put", "ok")
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues: %v", err)
	}
	var m dto.Metric
	if err := counter.Write(&m); err != nil {
		t.Fatal(err)
	}
	if m.Counter.GetValue() != 2 {
		t.Fatalf("counter = %v, want 2", m.Counter.GetValue())
	}
}

func TestSetTierOccupancyUpdatesGauges(t *testing.T) {
	r := NewRegistry(prometheus.NewRegistry())
	r.SetTierOccupancy("ram", 100, 4096)

	g, err := r.TierRecordsTotal.GetMetricWithLabelValues("ram")
	if err != nil {
		t.Fatal(err)
	}
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatal(err)
	}
	if m.Gauge.GetValue() != 100 {
		t.Fatalf("gauge = %v, want 100", m.Gauge.GetValue())
	}
}

func TestRecordTierMigrationIncrementsPerTierPair(t *testing.T) {
	r := NewRegistry(prometheus.NewRegistry())
	r.RecordTierMigration("ram", "ssd")

	counter, err := r.TierMigrationsTotal.GetMetricWithLabelValues("ram", "ssd")
	if err != nil {
		t.Fatal(err)
	}
	var m dto.Metric
	if err := counter.Write(&m); err != nil {
		t.Fatal(err)
	}
	if m.Counter.GetValue() != 1 {
		t.Fatalf("counter = %v, want 1", m.Counter.GetValue())
	}
}

func TestSetShardStatsUpdatesGauges(t *testing.T) {
	r := NewRegistry(prometheus.NewRegistry())
	r.SetShardStats(64, 60, 5)

	var m dto.Metric
	if err := r.ShardTotal.Write(&m); err != nil {
		t.Fatal(err)
	}
	if m.Gauge.GetValue() != 64 {
		t.Fatalf("ShardTotal = %v, want 64", m.Gauge.GetValue())
	}
}

func TestUpdateSystemMetricsSetsUptime(t *testing.T) {
	r := NewRegistry(prometheus.NewRegistry())
	start := time.Now().Add(-time.Minute)
	r.UpdateSystemMetrics(start)

	var m dto.Metric
	if err := r.UptimeSeconds.Write(&m); err != nil {
		t.Fatal(err)
	}
	if m.Gauge.GetValue() < 59 {
		t.Fatalf("UptimeSeconds = %v, want >= 59", m.Gauge.GetValue())
	}
}
