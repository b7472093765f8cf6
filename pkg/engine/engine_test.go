package engine

import (
	"context"
	"testing"

	"github.com/lumadb/luma/pkg/columnar"
	"github.com/lumadb/luma/pkg/lsm"
	"github.com/lumadb/luma/pkg/lumaerr"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	e, err := Open(Options{LSM: lsm.Options{DataDir: dir}, NumShards: 16})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestCollectionLifecycle(t *testing.T) {
	e := openTestEngine(t)
	if err := e.CreateCollection("users"); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if err := e.CreateCollection("users"); err == nil {
		t.Fatal("expected AlreadyExists on duplicate create")
	}
	names := e.ListCollections()
	if len(names) != 1 || names[0] != "users" {
		t.Fatalf("ListCollections = %v", names)
	}
	if err := e.DropCollection("users"); err != nil {
		t.Fatalf("DropCollection: %v", err)
	}
	if _, err := e.DescribeCollection("users"); lumaerr.KindOf(err) != lumaerr.NotFound {
		t.Fatalf("expected NotFound after drop, got %v", err)
	}
}

func TestInsertGetUpdateDelete(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	if err := e.CreateCollection("docs"); err != nil {
		t.Fatal(err)
	}

	id, err := e.Insert(ctx, "docs", []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	doc, ok, err := e.Get("docs", id)
	if err != nil || !ok || string(doc) != `{"a":1}` {
		t.Fatalf("Get = %q, %v, %v", doc, ok, err)
	}

	count, err := e.Count("docs")
	if err != nil || count != 1 {
		t.Fatalf("Count = %d, %v", count, err)
	}

	ok, err = e.Update(ctx, "docs", id, []byte(`{"a":2}`))
	if err != nil || !ok {
		t.Fatalf("Update: %v %v", ok, err)
	}
	doc, _, _ = e.Get("docs", id)
	if string(doc) != `{"a":2}` {
		t.Fatalf("Get after update = %q", doc)
	}

	ok, err = e.Delete(ctx, "docs", id)
	if err != nil || !ok {
		t.Fatalf("Delete: %v %v", ok, err)
	}
	count, _ = e.Count("docs")
	if count != 0 {
		t.Fatalf("count after delete = %d, want 0", count)
	}
}

func TestTriggersFireInOrder(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	if err := e.CreateCollection("docs"); err != nil {
		t.Fatal(err)
	}

	var order []string
	e.RegisterTrigger("before", "insert", func(ctx context.Context, coll, id string, doc []byte) error {
		order = append(order, "before")
		return nil
	})
	e.RegisterTrigger("after", "insert", func(ctx context.Context, coll, id string, doc []byte) error {
		order = append(order, "after")
		return nil
	})

	if _, err := e.Insert(ctx, "docs", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if len(order) != 2 || order[0] != "before" || order[1] != "after" {
		t.Fatalf("trigger order = %v", order)
	}
}

func TestKVRoundTripAndQuery(t *testing.T) {
	e := openTestEngine(t)
	if err := e.KVPut("sessions", "u1", []byte("active")); err != nil {
		t.Fatal(err)
	}
	if err := e.KVPut("sessions", "u2", []byte("idle")); err != nil {
		t.Fatal(err)
	}
	v, ok, err := e.KVGet("sessions", "u1")
	if err != nil || !ok || string(v) != "active" {
		t.Fatalf("KVGet = %q %v %v", v, ok, err)
	}

	results, err := e.KVQuery("sessions", func(key string, value []byte) bool {
		return string(value) == "active"
	})
	if err != nil || len(results) != 1 || results[0].ID != "u1" {
		t.Fatalf("KVQuery = %+v, %v", results, err)
	}

	if err := e.KVDelete("sessions", "u1"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := e.KVGet("sessions", "u1"); ok {
		t.Fatal("expected key gone after KVDelete")
	}
}

func TestTransactWriteConditionConflictRollsBackNothing(t *testing.T) {
	e := openTestEngine(t)
	if err := e.KVPut("accts", "bal", []byte("100")); err != nil {
		t.Fatal(err)
	}

	err := e.TransactWrite([]Op{
		{Kind: OpPut, Table: "accts", Key: "bal", Value: []byte("200"), Condition: CondEq, CondValue: []byte("999")},
	})
	if lumaerr.KindOf(err) != lumaerr.Conflict {
		t.Fatalf("expected Conflict, got %v", err)
	}
	v, _, _ := e.KVGet("accts", "bal")
	if string(v) != "100" {
		t.Fatalf("value mutated despite failed condition: %q", v)
	}
}

func TestTransactWriteAppliesAllOnSuccess(t *testing.T) {
	e := openTestEngine(t)
	if err := e.KVPut("accts", "bal", []byte("100")); err != nil {
		t.Fatal(err)
	}
	err := e.TransactWrite([]Op{
		{Kind: OpPut, Table: "accts", Key: "bal", Value: []byte("200"), Condition: CondEq, CondValue: []byte("100")},
		{Kind: OpPut, Table: "accts", Key: "log", Value: []byte("updated")},
	})
	if err != nil {
		t.Fatalf("TransactWrite: %v", err)
	}
	v, _, _ := e.KVGet("accts", "bal")
	if string(v) != "200" {
		t.Fatalf("bal = %q, want 200", v)
	}
}

func TestVectorSearchReturnsNearestFirst(t *testing.T) {
	e := openTestEngine(t)
	if err := e.CreateVectorCollection("items", 2); err != nil {
		t.Fatal(err)
	}
	if err := e.VectorUpsert("items", "a", []float64{1, 0}, []byte("A")); err != nil {
		t.Fatal(err)
	}
	if err := e.VectorUpsert("items", "b", []float64{0, 1}, []byte("B")); err != nil {
		t.Fatal(err)
	}
	results, err := e.VectorSearch("items", []float64{1, 0.01}, 1)
	if err != nil || len(results) != 1 || results[0].ID != "a" {
		t.Fatalf("VectorSearch = %+v, %v", results, err)
	}
}

func TestColumnarCreateAppendExecute(t *testing.T) {
	e := openTestEngine(t)
	err := e.CreateTable("metrics", []ColumnSchema{
		{Name: "value", Type: columnar.TypeFloat64},
	})
	if err != nil {
		t.Fatal(err)
	}
	err = e.Append("metrics", ColumnBatch{
		Float64s: map[string][]float64{"value": {1, 2, 3, 4, 5}},
		RowCount: 5,
	})
	if err != nil {
		t.Fatal(err)
	}
	pred := columnar.Predicate{Op: columnar.OpGe, Column: "value", Float64: 3}
	batches, err := e.Execute(Plan{Table: "metrics", Predicate: &pred})
	if err != nil {
		t.Fatal(err)
	}
	var total int
	for _, b := range batches {
		total += len(b.RowIdx)
	}
	if total != 3 {
		t.Fatalf("expected 3 rows >= 3, got %d", total)
	}
}
