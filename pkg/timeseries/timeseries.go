// Package timeseries implements the time-indexed, Gorilla-compressed column
// type: append-only ingestion, range queries, downsampling, and rolling
// statistics, grounded on
// original_source/rust-core/src/columnar/timeseries.rs's TimeSeriesColumn.
package timeseries

import (
	"math"
	"sort"

	"github.com/lumadb/luma/pkg/gorilla"
	"github.com/lumadb/luma/pkg/lumaerr"
)

// Granularity names a downsampling bucket width.
type Granularity int

const (
	GranularitySecond Granularity = iota
	GranularityMinute
	GranularityHour
	GranularityDay
)

func (g Granularity) millis() int64 {
	switch g {
	case GranularitySecond:
		return 1000
	case GranularityMinute:
		return 60 * 1000
	case GranularityHour:
		return 3600 * 1000
	case GranularityDay:
		return 24 * 3600 * 1000
	default:
		return 1000
	}
}

// AggregateFunc names the reducer a downsample bucket applies.
type AggregateFunc int

const (
	AggAvg AggregateFunc = iota
	AggSum
	AggMin
	AggMax
	AggCount
	AggFirst
	AggLast
)

// blockSize is the sample count of one Gorilla-compressed block: the column
// buffers raw samples until blockSize is reached, then compresses them into
// an immutable block and records its time range in the index.
const blockSize = 1024

type block struct {
	minTS, maxTS int64
	data         []byte
	count        int
}

// indexEntry records which block covers [minTS, maxTS]. The index is a
// single list of these entries, one per sealed block, that Range scans in
// order; there is no per-timestamp lookup.
type indexEntry struct {
	minTS, maxTS int64
	blockIdx     int
}

// Column is an append-only, time-ordered sequence of (timestamp, value)
// samples backed by Gorilla-compressed blocks plus an uncompressed tail
// buffer for the block currently being filled.
type Column struct {
	blocks []block
	index  []indexEntry

	tail    []gorilla.Sample
	lastTS  int64
	hasData bool
}

// New creates an empty time-series column.
func New() *Column {
	return &Column{}
}

// Append adds one sample. Samples must arrive in non-decreasing timestamp
// order; out-of-order appends are rejected rather than silently reordered,
// since the Gorilla codec requires a sorted stream.
func (c *Column) Append(timestampMs int64, value float64) error {
	if c.hasData && timestampMs < c.lastTS {
		return lumaerr.New("timeseries.Append", lumaerr.InvalidRequest)
	}
	c.tail = append(c.tail, gorilla.Sample{TimestampMs: timestampMs, Value: value})
	c.lastTS = timestampMs
	c.hasData = true
	if len(c.tail) >= blockSize {
		c.sealBlock()
	}
	return nil
}

func (c *Column) sealBlock() {
	if len(c.tail) == 0 {
		return
	}
	data := gorilla.Compress(c.tail)
	b := block{
		minTS: c.tail[0].TimestampMs,
		maxTS: c.tail[len(c.tail)-1].TimestampMs,
		data:  data,
		count: len(c.tail),
	}
	idx := len(c.blocks)
	c.blocks = append(c.blocks, b)
	c.index = append(c.index, indexEntry{minTS: b.minTS, maxTS: b.maxTS, blockIdx: idx})
	c.tail = nil
}

// Flush seals any buffered tail samples into a block. Range and All already
// read the tail, so Flush does not change what they return.
func (c *Column) Flush() {
	c.sealBlock()
}

// Len returns the total sample count across sealed blocks and the tail.
func (c *Column) Len() int {
	n := len(c.tail)
	for _, b := range c.blocks {
		n += b.count
	}
	return n
}

// Range returns every sample with start <= timestamp <= end, using the
// index to skip blocks outside the range entirely.
func (c *Column) Range(start, end int64) []gorilla.Sample {
	var out []gorilla.Sample
	for _, e := range c.index {
		if e.maxTS < start || e.minTS > end {
			continue
		}
		for _, s := range gorilla.Decompress(c.blocks[e.blockIdx].data) {
			if s.TimestampMs >= start && s.TimestampMs <= end {
				out = append(out, s)
			}
		}
	}
	for _, s := range c.tail {
		if s.TimestampMs >= start && s.TimestampMs <= end {
			out = append(out, s)
		}
	}
	return out
}

// All decompresses every sealed block plus the tail, in order.
func (c *Column) All() []gorilla.Sample {
	var out []gorilla.Sample
	for _, b := range c.blocks {
		out = append(out, gorilla.Decompress(b.data)...)
	}
	out = append(out, c.tail...)
	return out
}

// bucketStart rounds ts down to the start of its granularity bucket.
func bucketStart(ts int64, g Granularity) int64 {
	w := g.millis()
	return ts - (ts % w)
}

// Downsample buckets Range(start, end) into fixed-width windows of
// granularity g and reduces each with fn.
func Downsample(c *Column, start, end int64, g Granularity, fn AggregateFunc) []gorilla.Sample {
	samples := c.Range(start, end)
	if len(samples) == 0 {
		return nil
	}
	buckets := map[int64][]float64{}
	var order []int64
	for _, s := range samples {
		b := bucketStart(s.TimestampMs, g)
		if _, ok := buckets[b]; !ok {
			order = append(order, b)
		}
		buckets[b] = append(buckets[b], s.Value)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	out := make([]gorilla.Sample, 0, len(order))
	for _, b := range order {
		out = append(out, gorilla.Sample{TimestampMs: b, Value: reduce(buckets[b], fn)})
	}
	return out
}

func reduce(vals []float64, fn AggregateFunc) float64 {
	if len(vals) == 0 {
		return 0
	}
	switch fn {
	case AggSum:
		var s float64
		for _, v := range vals {
			s += v
		}
		return s
	case AggMin:
		m := vals[0]
		for _, v := range vals[1:] {
			if v < m {
				m = v
			}
		}
		return m
	case AggMax:
		m := vals[0]
		for _, v := range vals[1:] {
			if v > m {
				m = v
			}
		}
		return m
	case AggCount:
		return float64(len(vals))
	case AggFirst:
		return vals[0]
	case AggLast:
		return vals[len(vals)-1]
	default: // AggAvg
		var s float64
		for _, v := range vals {
			s += v
		}
		return s / float64(len(vals))
	}
}

// SlidingWindow computes fn over every window of the given width (in
// milliseconds) centered on each sample in Range(start, end), the rolling
// statistic the original exposes as sliding_window/moving_average.
func SlidingWindow(c *Column, start, end int64, widthMs int64, fn AggregateFunc) []gorilla.Sample {
	samples := c.Range(start-widthMs, end+widthMs)
	target := c.Range(start, end)
	out := make([]gorilla.Sample, 0, len(target))
	for _, center := range target {
		lo, hi := center.TimestampMs-widthMs/2, center.TimestampMs+widthMs/2
		var vals []float64
		for _, s := range samples {
			if s.TimestampMs >= lo && s.TimestampMs <= hi {
				vals = append(vals, s.Value)
			}
		}
		out = append(out, gorilla.Sample{TimestampMs: center.TimestampMs, Value: reduce(vals, fn)})
	}
	return out
}

// MovingAverage is SlidingWindow with AggAvg, the common case.
func MovingAverage(c *Column, start, end, widthMs int64) []gorilla.Sample {
	return SlidingWindow(c, start, end, widthMs, AggAvg)
}

// EMA computes the exponential moving average over Range(start, end) with
// smoothing factor alpha in (0, 1].
func EMA(c *Column, start, end int64, alpha float64) []gorilla.Sample {
	samples := c.Range(start, end)
	if len(samples) == 0 {
		return nil
	}
	out := make([]gorilla.Sample, len(samples))
	out[0] = samples[0]
	for i := 1; i < len(samples); i++ {
		prev := out[i-1].Value
		v := alpha*samples[i].Value + (1-alpha)*prev
		out[i] = gorilla.Sample{TimestampMs: samples[i].TimestampMs, Value: v}
	}
	return out
}

// Diff computes the first difference of consecutive values in
// Range(start, end).
func Diff(c *Column, start, end int64) []gorilla.Sample {
	samples := c.Range(start, end)
	if len(samples) < 2 {
		return nil
	}
	out := make([]gorilla.Sample, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		out = append(out, gorilla.Sample{
			TimestampMs: samples[i].TimestampMs,
			Value:       samples[i].Value - samples[i-1].Value,
		})
	}
	return out
}

// PctChange computes the percentage change between consecutive values. A
// zero previous value yields NaN.
func PctChange(c *Column, start, end int64) []gorilla.Sample {
	samples := c.Range(start, end)
	if len(samples) < 2 {
		return nil
	}
	out := make([]gorilla.Sample, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		prev := samples[i-1].Value
		pct := math.NaN()
		if prev != 0 {
			pct = (samples[i].Value - prev) / prev * 100
		}
		out = append(out, gorilla.Sample{TimestampMs: samples[i].TimestampMs, Value: pct})
	}
	return out
}
