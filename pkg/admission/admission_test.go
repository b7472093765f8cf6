package admission

import (
	"context"
	"testing"
	"time"
)

func TestHistogramPercentiles(t *testing.T) {
	h := NewHistogram()
	for i := 0; i < 100; i++ {
		h.Record(time.Duration(i*10) * time.Microsecond)
	}
	if h.Count() != 100 {
		t.Fatalf("count = %d, want 100", h.Count())
	}
	if h.P50() < 400*time.Microsecond {
		t.Fatalf("p50 = %v, want >= 400us", h.P50())
	}
	if h.P99() < 900*time.Microsecond {
		t.Fatalf("p99 = %v, want >= 900us", h.P99())
	}
}

func TestHistogramResetClearsState(t *testing.T) {
	h := NewHistogram()
	h.Record(5 * time.Millisecond)
	h.Reset()
	if h.Count() != 0 {
		t.Fatalf("count after reset = %d, want 0", h.Count())
	}
	if h.Min() != 0 {
		t.Fatalf("min after reset = %v, want 0", h.Min())
	}
}

func TestSlaTierOrdering(t *testing.T) {
	if !(Critical < High && High < Normal && Normal < Background) {
		t.Fatal("SLA tiers must be ordered Critical < High < Normal < Background")
	}
}

func TestTryAcquireRespectsCapacity(t *testing.T) {
	c := NewController()
	c.sems[Critical] = make(chan struct{}, 1) // shrink for the test

	g1, err := c.TryAcquire(Critical)
	if err != nil {
		t.Fatalf("first TryAcquire: %v", err)
	}
	if _, err := c.TryAcquire(Critical); err == nil {
		t.Fatal("expected second TryAcquire to be rejected at capacity 1")
	}
	if c.Rejected() != 1 {
		t.Fatalf("rejected = %d, want 1", c.Rejected())
	}
	g1.Release()
	if _, err := c.TryAcquire(Critical); err != nil {
		t.Fatalf("expected admission after release: %v", err)
	}
}

func TestAcquireTimesOutWhenSaturated(t *testing.T) {
	c := NewController()
	c.sems[Background] = make(chan struct{}, 1)

	g, err := c.TryAcquire(Background)
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	defer g.Release()

	_, err = c.Acquire(context.Background(), Background, 20*time.Millisecond)
	if err == nil {
		t.Fatal("expected Acquire to time out while the semaphore is saturated")
	}
}

func TestGuardReleaseIsIdempotent(t *testing.T) {
	c := NewController()
	c.sems[Normal] = make(chan struct{}, 1)
	g, err := c.TryAcquire(Normal)
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	g.Release()
	g.Release() // must not panic or double-decrement queue depth
	if c.QueueDepth(Normal) != 0 {
		t.Fatalf("queue depth = %d, want 0", c.QueueDepth(Normal))
	}
}

func TestMonitorFlagsSlaViolation(t *testing.T) {
	m := NewMonitor(3600, nil)
	tracker := OperationTracker{tier: Critical, start: time.Now().Add(-2 * time.Millisecond)}
	m.CompleteOperation(tracker, "get")

	if m.Admission.Violations() != 1 {
		t.Fatalf("violations = %d, want 1 (2ms exceeds Critical's 1ms p99 target)", m.Admission.Violations())
	}
}

func TestMonitorStatsTracksOperations(t *testing.T) {
	m := NewMonitor(3600, nil)
	for i := 0; i < 10; i++ {
		tracker := m.StartOperation(Normal)
		time.Sleep(time.Microsecond)
		m.CompleteOperation(tracker, "put")
	}
	stats := m.Stats()
	if len(stats) != 1 || stats[0].Operation != "put" || stats[0].Count != 10 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
