package engine

import (
	"github.com/lumadb/luma/pkg/columnar"
	"github.com/lumadb/luma/pkg/lumaerr"
)

// ColumnSchema describes one column of a CreateTable call.
type ColumnSchema struct {
	Name string
	Type columnar.Type
}

// CreateTable registers an empty columnar table with the given schema.
func (e *Engine) CreateTable(name string, schema []ColumnSchema) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.tables[name]; ok {
		return lumaerr.New("engine.CreateTable", lumaerr.AlreadyExists)
	}
	order := make([]string, len(schema))
	types := make(map[string]columnar.Type, len(schema))
	for i, c := range schema {
		order[i] = c.Name
		types[c.Name] = c.Type
	}
	e.tables[name] = columnar.NewTable(name, order, types)
	return nil
}

// ColumnBatch is one partition's worth of column data for Append, keyed
// by column name.
type ColumnBatch struct {
	Int64s   map[string][]int64
	Float64s map[string][]float64
	RowCount int
}

// Append adds one partition built from batch to table.
func (e *Engine) Append(table string, batch ColumnBatch) error {
	e.mu.Lock()
	t, ok := e.tables[table]
	e.mu.Unlock()
	if !ok {
		return lumaerr.New("engine.Append", lumaerr.NotFound)
	}

	cols := make(map[string]*columnar.Column, len(t.ColumnOrder))
	for _, name := range t.ColumnOrder {
		col := columnar.NewColumn(name, t.Types[name])
		switch t.Types[name] {
		case columnar.TypeInt64:
			for _, v := range batch.Int64s[name] {
				col.AppendInt64(v)
			}
		case columnar.TypeFloat64:
			for _, v := range batch.Float64s[name] {
				col.AppendFloat64(v)
			}
		}
		cols[name] = col
	}
	return t.AddPartition(&columnar.Partition{Columns: cols, RowCount: batch.RowCount})
}

// Plan names a scan/filter/project/aggregate request for Execute.
type Plan struct {
	Table     string
	Predicate *columnar.Predicate
	Project   []string
	BatchSize int
}

// Execute runs plan's scan/filter/project pipeline and returns the
// surviving batches.
func (e *Engine) Execute(plan Plan) ([]columnar.Batch, error) {
	e.mu.RLock()
	t, ok := e.tables[plan.Table]
	e.mu.RUnlock()
	if !ok {
		return nil, lumaerr.New("engine.Execute", lumaerr.NotFound)
	}
	return columnar.Scan(t, plan.Predicate, plan.Project, plan.BatchSize), nil
}
