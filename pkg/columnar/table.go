package columnar

import "github.com/lumadb/luma/pkg/lumaerr"

// DefaultBatchSize is the vectorized executor's default rows-per-batch,
// matching spec.md §4.7's default of 1024.
const DefaultBatchSize = 1024

// Partition is one immutable run of column data plus its zone maps, the
// unit pruning and scanning operate on.
type Partition struct {
	Columns map[string]*Column
	RowCount int
}

// Table is an ordered set of partitions sharing a schema.
type Table struct {
	Name       string
	ColumnOrder []string
	Types      map[string]Type
	Partitions []*Partition
}

// NewTable creates an empty table with the given column schema, in order.
func NewTable(name string, order []string, types map[string]Type) *Table {
	cp := make([]string, len(order))
	copy(cp, order)
	tp := make(map[string]Type, len(types))
	for k, v := range types {
		tp[k] = v
	}
	return &Table{Name: name, ColumnOrder: cp, Types: tp}
}

// AddPartition appends a fully-built partition and computes its zone maps.
func (t *Table) AddPartition(p *Partition) error {
	for _, name := range t.ColumnOrder {
		c, ok := p.Columns[name]
		if !ok {
			return lumaerr.New("columnar.AddPartition", lumaerr.InvalidRequest)
		}
		c.ComputeStats()
	}
	t.Partitions = append(t.Partitions, p)
	return nil
}

// Batch is a vector of rows for one or more projected columns, the unit the
// executor's scan->filter->project->aggregate pipeline passes downstream.
type Batch struct {
	Columns map[string]*Column
	RowIdx  []int // indices into Columns selected by the filter stage
}

// Scan runs pred (may be nil) against every partition, pruning whole
// partitions via zone maps and evaluating survivors row by row in batches
// of batchSize, projecting only the requested columns.
func Scan(t *Table, pred *Predicate, project []string, batchSize int) []Batch {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if len(project) == 0 {
		project = t.ColumnOrder
	}

	var batches []Batch
	for _, part := range t.Partitions {
		if pred != nil && !pred.MayMatch(part.Columns) {
			continue
		}
		for start := 0; start < part.RowCount; start += batchSize {
			end := start + batchSize
			if end > part.RowCount {
				end = part.RowCount
			}
			var idx []int
			for i := start; i < end; i++ {
				if pred == nil || pred.EvalRow(part.Columns, i) {
					idx = append(idx, i)
				}
			}
			if len(idx) == 0 {
				continue
			}
			projected := make(map[string]*Column, len(project))
			for _, name := range project {
				if c, ok := part.Columns[name]; ok {
					projected[name] = c
				}
			}
			batches = append(batches, Batch{Columns: projected, RowIdx: idx})
		}
	}
	return batches
}

// AggregateFunc names a reduction over one projected column across all
// surviving batches.
type AggregateFunc int

const (
	AggSum AggregateFunc = iota
	AggMin
	AggMax
	AggCount
)

// Aggregate reduces column over every row in batches using fn, dispatching
// to the SIMD-shaped kernels in column.go per batch and combining results,
// the vectorized-executor shape spec.md §4.7 requires (batch-at-a-time
// reduction rather than row-at-a-time). The second result is the number of
// non-null rows reduced, whatever fn is.
func Aggregate(batches []Batch, column string, fn AggregateFunc) (float64, int64) {
	var sum float64
	var count int64
	var minV, maxV float64
	first := true

	for _, b := range batches {
		col, ok := b.Columns[column]
		if !ok {
			continue
		}
		switch col.Type {
		case TypeInt64:
			vals := gatherI64(col, b.RowIdx)
			count += int64(len(vals))
			switch fn {
			case AggSum:
				sum += float64(SumI64(vals))
			case AggMin, AggMax:
				for _, v := range vals {
					fv := float64(v)
					if first {
						minV, maxV, first = fv, fv, false
					} else {
						if fv < minV {
							minV = fv
						}
						if fv > maxV {
							maxV = fv
						}
					}
				}
			}
		case TypeFloat64:
			vals := gatherF64(col, b.RowIdx)
			count += int64(len(vals))
			switch fn {
			case AggSum:
				sum += SumF64(vals)
			case AggMin:
				if v, ok := MinF64(vals); ok {
					if first {
						minV, first = v, false
					} else if v < minV {
						minV = v
					}
				}
			case AggMax:
				if v, ok := MaxF64(vals); ok {
					if first {
						maxV, first = v, false
					} else if v > maxV {
						maxV = v
					}
				}
			}
		}
	}

	switch fn {
	case AggMin:
		return minV, count
	case AggMax:
		return maxV, count
	default:
		return sum, count
	}
}

func gatherI64(col *Column, idx []int) []int64 {
	out := make([]int64, 0, len(idx))
	for _, i := range idx {
		if col.Nulls != nil && i < len(col.Nulls) && col.Nulls[i] {
			continue
		}
		out = append(out, col.Int64s[i])
	}
	return out
}

func gatherF64(col *Column, idx []int) []float64 {
	out := make([]float64, 0, len(idx))
	for _, i := range idx {
		if col.Nulls != nil && i < len(col.Nulls) && col.Nulls[i] {
			continue
		}
		out = append(out, col.Float64s[i])
	}
	return out
}
