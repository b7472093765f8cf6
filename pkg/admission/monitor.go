package admission

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OperationTracker measures one in-flight operation's latency.
type OperationTracker struct {
	tier  Tier
	start time.Time
}

// Elapsed returns the time since the tracker started.
func (t OperationTracker) Elapsed() time.Duration { return time.Since(t.start) }

// OperationStats summarizes one operation's recorded latencies.
type OperationStats struct {
	Operation        string
	Count            uint64
	Avg, P50, P99, P999, Min, Max time.Duration
}

// Monitor tracks per-operation latency histograms against their tier's SLA
// target and rolls every histogram over on a fixed window, grounded on
// the original's SlaMonitor.
type Monitor struct {
	Admission *Controller

	mu         sync.RWMutex
	histograms map[string]*Histogram

	windowSecs  int64
	windowStart time.Time
	windowMu    sync.Mutex

	metrics *prometheusMetrics
}

// NewMonitor creates a monitor with a rolling window of windowSecs seconds
// (60 matches the original's Default impl).
func NewMonitor(windowSecs int64, reg prometheus.Registerer) *Monitor {
	if windowSecs <= 0 {
		windowSecs = 60
	}
	m := &Monitor{
		Admission:   NewController(),
		histograms:  make(map[string]*Histogram),
		windowSecs:  windowSecs,
		windowStart: time.Now(),
	}
	if reg != nil {
		m.metrics = newPrometheusMetrics(reg)
	}
	return m
}

// StartOperation begins timing an operation admitted at tier.
func (m *Monitor) StartOperation(tier Tier) OperationTracker {
	return OperationTracker{tier: tier, start: time.Now()}
}

// CompleteOperation records tracker's elapsed latency against operation's
// histogram, flags an SLA violation if it exceeds the tier's p99 target,
// and rolls the window if due.
func (m *Monitor) CompleteOperation(tracker OperationTracker, operation string) {
	latency := tracker.Elapsed()

	m.mu.Lock()
	h, ok := m.histograms[operation]
	if !ok {
		h = NewHistogram()
		m.histograms[operation] = h
	}
	m.mu.Unlock()
	h.Record(latency)

	if latency > tracker.tier.TargetP99() {
		m.Admission.RecordViolation()
	}
	if m.metrics != nil {
		m.metrics.observe(operation, tracker.tier, latency)
	}
	m.maybeRollWindow()
}

// P99 returns operation's current p99 latency, or zero if unrecorded.
func (m *Monitor) P99(operation string) time.Duration {
	m.mu.RLock()
	h, ok := m.histograms[operation]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	return h.P99()
}

// Stats returns a snapshot of every tracked operation's statistics.
func (m *Monitor) Stats() []OperationStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]OperationStats, 0, len(m.histograms))
	for name, h := range m.histograms {
		out = append(out, OperationStats{
			Operation: name,
			Count:     h.Count(),
			Avg:       h.Avg(),
			P50:       h.P50(),
			P99:       h.P99(),
			P999:      h.P999(),
			Min:       h.Min(),
			Max:       h.Max(),
		})
	}
	return out
}

// IsCompliant reports whether every tracked operation's p99 is within
// tier's target.
func (m *Monitor) IsCompliant(tier Tier) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, h := range m.histograms {
		if h.P99() > tier.TargetP99() {
			return false
		}
	}
	return true
}

func (m *Monitor) maybeRollWindow() {
	m.windowMu.Lock()
	defer m.windowMu.Unlock()
	if time.Since(m.windowStart) < time.Duration(m.windowSecs)*time.Second {
		return
	}
	m.mu.RLock()
	for _, h := range m.histograms {
		h.Reset()
	}
	m.mu.RUnlock()
	m.windowStart = time.Now()
}
