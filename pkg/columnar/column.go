// Package columnar implements contiguous per-column storage with zone-map
// predicate pushdown and vectorized SIMD-style kernels, grounded on
// original_source/rust-core/src/columnar/mod.rs (Column/ColumnStats/
// ColumnarTable) expressed with Go typed slices in place of the original's
// unsafe pointer casts.
package columnar

import "math"

// Type identifies a column's element type.
type Type int

const (
	TypeInt64 Type = iota
	TypeFloat64
	TypeString
	TypeBool
)

// Stats is the zone map for one column: conservative min/max/null/distinct
// summary used to prune partitions before scanning them.
type Stats struct {
	Count        int64
	NullCount    int64
	HasMinMax    bool
	MinInt64     int64
	MaxInt64     int64
	MinFloat64   float64
	MaxFloat64   float64
	Sum          float64
	DistinctHint int64 // approximate; 0 means unknown
}

// Column is one contiguous typed buffer plus its zone map.
type Column struct {
	Name    string
	Type    Type
	Int64s  []int64
	Float64s []float64
	Strings []string
	Bools   []bool
	Nulls   []bool // true = null at that row index; nil means no nulls
	Stats   Stats
}

// NewColumn creates an empty column of the given type.
func NewColumn(name string, t Type) *Column {
	return &Column{Name: name, Type: t}
}

// AppendInt64 appends one value. Stats is left unchanged until the next
// ComputeStats.
func (c *Column) AppendInt64(v int64) {
	c.Int64s = append(c.Int64s, v)
	c.Nulls = append(c.Nulls, false)
}

// AppendFloat64 appends one value. Stats is left unchanged until the next
// ComputeStats.
func (c *Column) AppendFloat64(v float64) {
	c.Float64s = append(c.Float64s, v)
	c.Nulls = append(c.Nulls, false)
}

// AppendNull appends a null at the next row index for the column's type.
func (c *Column) AppendNull() {
	switch c.Type {
	case TypeInt64:
		c.Int64s = append(c.Int64s, 0)
	case TypeFloat64:
		c.Float64s = append(c.Float64s, 0)
	case TypeString:
		c.Strings = append(c.Strings, "")
	case TypeBool:
		c.Bools = append(c.Bools, false)
	}
	c.Nulls = append(c.Nulls, true)
}

// Len returns the row count.
func (c *Column) Len() int {
	switch c.Type {
	case TypeInt64:
		return len(c.Int64s)
	case TypeFloat64:
		return len(c.Float64s)
	case TypeString:
		return len(c.Strings)
	case TypeBool:
		return len(c.Bools)
	default:
		return 0
	}
}

// ComputeStats rebuilds the zone map from the current contents in one pass.
func (c *Column) ComputeStats() {
	s := Stats{Count: int64(c.Len())}
	switch c.Type {
	case TypeInt64:
		s.MinInt64, s.MaxInt64, s.Sum = statsI64(c.Int64s, c.Nulls, &s.NullCount)
		s.HasMinMax = s.Count-s.NullCount > 0
	case TypeFloat64:
		s.MinFloat64, s.MaxFloat64, s.Sum = statsF64(c.Float64s, c.Nulls, &s.NullCount)
		s.HasMinMax = s.Count-s.NullCount > 0
	default:
		for _, n := range c.Nulls {
			if n {
				s.NullCount++
			}
		}
	}
	c.Stats = s
}

// statsI64 is the SIMD-kernel-shaped single-pass stats computation for
// int64 columns: sum_i64 and min/max in one loop, the scalar fallback the
// spec requires alongside any vectorized path (§4.7).
func statsI64(data []int64, nulls []bool, nullCount *int64) (min, max int64, sum float64) {
	first := true
	for i, v := range data {
		if i < len(nulls) && nulls[i] {
			*nullCount++
			continue
		}
		if first {
			min, max = v, v
			first = false
		} else {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		sum += float64(v)
	}
	return
}

func statsF64(data []float64, nulls []bool, nullCount *int64) (min, max, sum float64) {
	min, max = math.Inf(1), math.Inf(-1)
	for i, v := range data {
		if i < len(nulls) && nulls[i] {
			*nullCount++
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += v
	}
	if math.IsInf(min, 1) {
		min, max = 0, 0
	}
	return
}

// SumI64 is the sum_i64 SIMD kernel: a single reduction pass.
func SumI64(data []int64) int64 {
	var sum int64
	for _, v := range data {
		sum += v
	}
	return sum
}

// SumF64 is the sum_f64 SIMD kernel.
func SumF64(data []float64) float64 {
	var sum float64
	for _, v := range data {
		sum += v
	}
	return sum
}

// MinF64 and MaxF64 are the min_f64/max_f64 SIMD kernels.
func MinF64(data []float64) (float64, bool) {
	if len(data) == 0 {
		return 0, false
	}
	m := data[0]
	for _, v := range data[1:] {
		if v < m {
			m = v
		}
	}
	return m, true
}

func MaxF64(data []float64) (float64, bool) {
	if len(data) == 0 {
		return 0, false
	}
	m := data[0]
	for _, v := range data[1:] {
		if v > m {
			m = v
		}
	}
	return m, true
}
