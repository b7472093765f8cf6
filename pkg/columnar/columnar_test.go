package columnar

import "testing"

func buildTestTable() *Table {
	tbl := NewTable("events", []string{"ts", "value"}, map[string]Type{
		"ts":    TypeInt64,
		"value": TypeFloat64,
	})

	mk := func(tsStart int64, n int) *Partition {
		ts := NewColumn("ts", TypeInt64)
		val := NewColumn("value", TypeFloat64)
		for i := 0; i < n; i++ {
			ts.AppendInt64(tsStart + int64(i))
			val.AppendFloat64(float64(i))
		}
		return &Partition{Columns: map[string]*Column{"ts": ts, "value": val}, RowCount: n}
	}

	tbl.AddPartition(mk(0, 100))
	tbl.AddPartition(mk(1000, 100))
	return tbl
}

func TestZoneMapPruning(t *testing.T) {
	tbl := buildTestTable()
	pred := Predicate{Op: OpGe, Column: "ts", Int64: 5000}
	batches := Scan(tbl, &pred, nil, DefaultBatchSize)
	if len(batches) != 0 {
		t.Fatalf("expected zone map to prune both partitions, got %d batches", len(batches))
	}
}

func TestScanFiltersAndProjects(t *testing.T) {
	tbl := buildTestTable()
	pred := Predicate{Op: OpLt, Column: "ts", Int64: 50}
	batches := Scan(tbl, &pred, []string{"ts"}, DefaultBatchSize)

	var total int
	for _, b := range batches {
		if _, ok := b.Columns["value"]; ok {
			t.Fatalf("expected only projected column 'ts', got 'value' too")
		}
		total += len(b.RowIdx)
	}
	if total != 50 {
		t.Fatalf("expected 50 matching rows, got %d", total)
	}
}

func TestAggregateSumMatchesScalarSum(t *testing.T) {
	tbl := buildTestTable()
	batches := Scan(tbl, nil, []string{"value"}, DefaultBatchSize)
	sum, count := Aggregate(batches, "value", AggSum)

	var want float64
	for i := 0; i < 100; i++ {
		want += float64(i)
	}
	want *= 2 // two partitions with identical value columns
	if sum != want {
		t.Fatalf("sum mismatch: got %v want %v", sum, want)
	}
	if count != 200 {
		t.Fatalf("count mismatch: got %d want 200", count)
	}
}

func TestBetweenPredicateRowEval(t *testing.T) {
	tbl := buildTestTable()
	pred := Predicate{Op: OpBetween, Column: "ts", Int64: 10, Int64Hi: 20}
	batches := Scan(tbl, &pred, nil, DefaultBatchSize)
	var total int
	for _, b := range batches {
		total += len(b.RowIdx)
	}
	if total != 11 {
		t.Fatalf("expected 11 rows in [10,20], got %d", total)
	}
}

func TestAndOrNotComposition(t *testing.T) {
	tbl := buildTestTable()
	pred := Predicate{Op: OpAnd, Children: []Predicate{
		{Op: OpGe, Column: "ts", Int64: 0},
		{Op: OpNot, Children: []Predicate{{Op: OpGe, Column: "ts", Int64: 50}}},
	}}
	batches := Scan(tbl, &pred, nil, DefaultBatchSize)
	var total int
	for _, b := range batches {
		total += len(b.RowIdx)
	}
	if total != 50 {
		t.Fatalf("expected 50 rows with ts<50 in first partition, got %d", total)
	}
}

func TestMissingStatsNeverPrunes(t *testing.T) {
	col := NewColumn("x", TypeInt64)
	// Stats left zero-value: HasMinMax false.
	pred := Predicate{Op: OpEq, Column: "x", Int64: 42}
	if !pred.MayMatch(map[string]*Column{"x": col}) {
		t.Fatal("predicate must not prune when zone map stats are absent")
	}
}

func TestSimdKernelsMatchScalarFallback(t *testing.T) {
	data := []float64{3, 1, 4, 1, 5, 9, 2, 6}
	var wantSum float64
	wantMin, wantMax := data[0], data[0]
	for _, v := range data {
		wantSum += v
		if v < wantMin {
			wantMin = v
		}
		if v > wantMax {
			wantMax = v
		}
	}
	if got := SumF64(data); got != wantSum {
		t.Fatalf("SumF64 = %v want %v", got, wantSum)
	}
	if got, _ := MinF64(data); got != wantMin {
		t.Fatalf("MinF64 = %v want %v", got, wantMin)
	}
	if got, _ := MaxF64(data); got != wantMax {
		t.Fatalf("MaxF64 = %v want %v", got, wantMax)
	}
}

func TestBatchSizeSplitsPartitionIntoMultipleBatches(t *testing.T) {
	tbl := buildTestTable()
	batches := Scan(tbl, nil, nil, 10)
	// 2 partitions x 100 rows / batch size 10 = 20 batches.
	if len(batches) != 20 {
		t.Fatalf("expected 20 batches, got %d", len(batches))
	}
}
