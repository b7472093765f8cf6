package columnar

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestZoneMapNeverPrunesAMatchingRow checks the soundness contract
// MayMatch's doc comment promises: it may only return false when no row in
// the partition can satisfy the predicate. For any column of int64 values
// and any row in it, a predicate built to match that exact row's value must
// never be pruned by the column's own zone map.
func TestZoneMapNeverPrunesAMatchingRow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping property-based test in short mode")
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20

	properties := gopter.NewProperties(parameters)

	properties.Property("zone map never prunes a partition containing a matching row", prop.ForAll(
		func(values []int64, pick int) bool {
			if len(values) == 0 {
				return true
			}
			col := NewColumn("v", TypeInt64)
			for _, v := range values {
				col.AppendInt64(v)
			}
			col.ComputeStats()

			row := ((pick % len(values)) + len(values)) % len(values)
			target := values[row]
			cols := map[string]*Column{"v": col}

			eq := Predicate{Op: OpEq, Column: "v", Int64: target}
			ge := Predicate{Op: OpGe, Column: "v", Int64: target}
			le := Predicate{Op: OpLe, Column: "v", Int64: target}
			between := Predicate{Op: OpBetween, Column: "v", Int64: target, Int64Hi: target}

			return eq.MayMatch(cols) && ge.MayMatch(cols) && le.MayMatch(cols) && between.MayMatch(cols)
		},
		gen.SliceOf(gen.Int64Range(-1000, 1000)),
		gen.Int(),
	))

	properties.Property("a predicate outside the column's range is always pruned", prop.ForAll(
		func(values []int64) bool {
			if len(values) == 0 {
				return true
			}
			col := NewColumn("v", TypeInt64)
			min, max := values[0], values[0]
			for _, v := range values {
				col.AppendInt64(v)
				if v < min {
					min = v
				}
				if v > max {
					max = v
				}
			}
			col.ComputeStats()
			cols := map[string]*Column{"v": col}

			above := Predicate{Op: OpEq, Column: "v", Int64: max + 1}
			return !above.MayMatch(cols)
		},
		gen.SliceOfN(10, gen.Int64Range(-1000, 1000)),
	))

	properties.TestingRun(t)
}
