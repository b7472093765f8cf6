// Package admission implements per-tier request admission control and a
// latency histogram for SLA monitoring, grounded on
// original_source/rust-core/src/latency/mod.rs's SlaTier/LatencyHistogram/
// AdmissionController/SlaMonitor.
package admission

import (
	"sync/atomic"
	"time"
)

// Tier is an ordered SLA class; Critical is the strictest (lowest latency
// target). Each tier has its own semaphore, so no tier is admitted ahead of
// another under contention.
type Tier int

const (
	Critical Tier = iota
	High
	Normal
	Background
	numTiers = 4
)

// TargetP99 returns the tier's p99 latency target.
func (t Tier) TargetP99() time.Duration {
	switch t {
	case Critical:
		return 1000 * time.Microsecond
	case High:
		return 5 * time.Millisecond
	case Normal:
		return 10 * time.Millisecond
	default: // Background
		return 100 * time.Millisecond
	}
}

// MaxConcurrent returns the tier's admission semaphore capacity.
func (t Tier) MaxConcurrent() int {
	switch t {
	case Critical:
		return 10000
	case High:
		return 5000
	case Normal:
		return 2000
	default: // Background
		return 500
	}
}

const numBuckets = 64

// Histogram is a lock-free, fixed-bucket latency histogram supporting
// approximate percentile queries, with the exact bucket boundaries from
// the original: 100us buckets to 1ms, 1ms buckets to 10ms, 10ms buckets to
// 100ms, one overflow bucket beyond that.
type Histogram struct {
	buckets [numBuckets]atomic.Uint64
	count   atomic.Uint64
	sumUs   atomic.Uint64
	minUs   atomic.Uint64
	maxUs   atomic.Uint64
}

// NewHistogram returns a histogram ready to record samples.
func NewHistogram() *Histogram {
	h := &Histogram{}
	h.minUs.Store(^uint64(0))
	return h
}

// Record adds one latency sample.
func (h *Histogram) Record(d time.Duration) {
	us := uint64(d.Microseconds())
	h.buckets[bucketForLatency(us)].Add(1)
	h.count.Add(1)
	h.sumUs.Add(us)

	for {
		cur := h.minUs.Load()
		if us >= cur || h.minUs.CompareAndSwap(cur, us) {
			break
		}
	}
	for {
		cur := h.maxUs.Load()
		if us <= cur || h.maxUs.CompareAndSwap(cur, us) {
			break
		}
	}
}

func bucketForLatency(us uint64) int {
	switch {
	case us < 1000:
		return int(us / 100)
	case us < 10000:
		return 10 + int((us-1000)/1000)
	case us < 100000:
		return 20 + int((us-10000)/10000)
	default:
		return 63
	}
}

func latencyForBucket(bucket int) uint64 {
	switch {
	case bucket < 10:
		return uint64(bucket)*100 + 50
	case bucket < 20:
		return uint64(bucket-10)*1000 + 1500
	case bucket < 30:
		return uint64(bucket-20)*10000 + 15000
	default:
		return 100000
	}
}

// Percentile returns the approximate latency at percentile p (0-100).
func (h *Histogram) Percentile(p float64) time.Duration {
	count := h.count.Load()
	if count == 0 {
		return 0
	}
	target := uint64((p / 100.0) * float64(count))
	var cumulative uint64
	for i := 0; i < numBuckets; i++ {
		cumulative += h.buckets[i].Load()
		if cumulative >= target {
			return time.Duration(latencyForBucket(i)) * time.Microsecond
		}
	}
	return time.Duration(h.maxUs.Load()) * time.Microsecond
}

func (h *Histogram) P50() time.Duration  { return h.Percentile(50) }
func (h *Histogram) P99() time.Duration  { return h.Percentile(99) }
func (h *Histogram) P999() time.Duration { return h.Percentile(99.9) }

// Avg returns the mean latency recorded.
func (h *Histogram) Avg() time.Duration {
	count := h.count.Load()
	if count == 0 {
		return 0
	}
	return time.Duration(h.sumUs.Load()/count) * time.Microsecond
}

// Min returns the smallest latency recorded, or zero if none.
func (h *Histogram) Min() time.Duration {
	min := h.minUs.Load()
	if min == ^uint64(0) {
		return 0
	}
	return time.Duration(min) * time.Microsecond
}

// Max returns the largest latency recorded.
func (h *Histogram) Max() time.Duration {
	return time.Duration(h.maxUs.Load()) * time.Microsecond
}

// Count returns the number of samples recorded.
func (h *Histogram) Count() uint64 { return h.count.Load() }

// Reset clears every bucket and statistic, used when a monitoring window
// rolls over.
func (h *Histogram) Reset() {
	for i := range h.buckets {
		h.buckets[i].Store(0)
	}
	h.count.Store(0)
	h.sumUs.Store(0)
	h.minUs.Store(^uint64(0))
	h.maxUs.Store(0)
}
