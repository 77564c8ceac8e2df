// Package table is the small typed, column-ordered table used by the
// extraction and feature pipelines. Column and row order are always the
// order in which they were added, so output is reproducible.
package table

import (
	"sort"

	"github.com/cockroachdb/errors"
)

// Record is a single row keyed by column name.
type Record map[string]Value

// Table holds rows of Values under an ordered set of column names.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]Value
}

// New creates an empty table with the given columns.
func New(columns ...string) *Table {
	t := &Table{index: make(map[string]int, len(columns))}
	for _, c := range columns {
		t.AddColumn(c)
	}
	return t
}

// Columns returns a copy of the column names in order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Width returns the number of columns.
func (t *Table) Width() int { return len(t.columns) }

// HasColumn reports whether name is a column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// AddColumn appends a null-filled column. Adding an existing column is a no-op.
func (t *Table) AddColumn(name string) {
	if _, ok := t.index[name]; ok {
		return
	}
	t.index[name] = len(t.columns)
	t.columns = append(t.columns, name)
	for i := range t.rows {
		t.rows[i] = append(t.rows[i], Null())
	}
}

// RenameColumn renames old to name.
func (t *Table) RenameColumn(old, name string) error {
	idx, ok := t.index[old]
	if !ok {
		return errors.Newf("table: no column %q", old)
	}
	if old == name {
		return nil
	}
	if _, clash := t.index[name]; clash {
		return errors.Newf("table: column %q already exists", name)
	}
	delete(t.index, old)
	t.index[name] = idx
	t.columns[idx] = name
	return nil
}

// DropColumn removes a column if present.
func (t *Table) DropColumn(name string) {
	idx, ok := t.index[name]
	if !ok {
		return
	}
	t.columns = append(t.columns[:idx], t.columns[idx+1:]...)
	for i, row := range t.rows {
		t.rows[i] = append(row[:idx], row[idx+1:]...)
	}
	t.reindex()
}

// InsertColumnAfter adds a null-filled column right after an existing one.
func (t *Table) InsertColumnAfter(after, name string) error {
	idx, ok := t.index[after]
	if !ok {
		return errors.Newf("table: no column %q", after)
	}
	if t.HasColumn(name) {
		return errors.Newf("table: column %q already exists", name)
	}
	pos := idx + 1
	t.columns = append(t.columns[:pos], append([]string{name}, t.columns[pos:]...)...)
	for i, row := range t.rows {
		t.rows[i] = append(row[:pos], append([]Value{Null()}, row[pos:]...)...)
	}
	t.reindex()
	return nil
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.columns))
	for i, c := range t.columns {
		t.index[c] = i
	}
}

// Append adds a row whose values line up with Columns().
func (t *Table) Append(values ...Value) error {
	if len(values) != len(t.columns) {
		return errors.Newf("table: row has %d values, want %d", len(values), len(t.columns))
	}
	row := make([]Value, len(values))
	copy(row, values)
	t.rows = append(t.rows, row)
	return nil
}

// AppendRecord adds a row from a record. Columns missing from the record are
// null; columns the table has not seen yet are added in the given order and
// null-filled for earlier rows.
func (t *Table) AppendRecord(order []string, rec Record) {
	for _, c := range order {
		t.AddColumn(c)
	}
	row := make([]Value, len(t.columns))
	for name, v := range rec {
		idx, ok := t.index[name]
		if !ok {
			t.AddColumn(name)
			idx = t.index[name]
			row = append(row, Null())
		}
		row[idx] = v
	}
	t.rows = append(t.rows, row)
}

// Get returns the cell at row i for column name; unknown columns read as null.
func (t *Table) Get(i int, name string) Value {
	idx, ok := t.index[name]
	if !ok || i < 0 || i >= len(t.rows) {
		return Null()
	}
	return t.rows[i][idx]
}

// Set writes a cell, adding the column if needed.
func (t *Table) Set(i int, name string, v Value) {
	if !t.HasColumn(name) {
		t.AddColumn(name)
	}
	t.rows[i][t.index[name]] = v
}

// Row returns a copy of row i as a Record.
func (t *Table) Row(i int) Record {
	rec := make(Record, len(t.columns))
	for j, c := range t.columns {
		rec[c] = t.rows[i][j]
	}
	return rec
}

// Values returns a copy of row i in column order.
func (t *Table) Values(i int) []Value {
	out := make([]Value, len(t.rows[i]))
	copy(out, t.rows[i])
	return out
}

// Column returns a copy of every cell in a column.
func (t *Table) Column(name string) []Value {
	idx, ok := t.index[name]
	if !ok {
		return nil
	}
	out := make([]Value, len(t.rows))
	for i, row := range t.rows {
		out[i] = row[idx]
	}
	return out
}

// Clone deep-copies the table.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	c := New(t.columns...)
	c.rows = make([][]Value, len(t.rows))
	for i, row := range t.rows {
		c.rows[i] = make([]Value, len(row))
		copy(c.rows[i], row)
	}
	return c
}

// Slice returns a copy holding rows [from, to).
func (t *Table) Slice(from, to int) *Table {
	c := New(t.columns...)
	for _, row := range t.rows[from:to] {
		_ = c.Append(row...)
	}
	return c
}

// Select returns a copy restricted to the named columns, in that order.
func (t *Table) Select(columns ...string) (*Table, error) {
	idx := make([]int, len(columns))
	for j, c := range columns {
		i, ok := t.index[c]
		if !ok {
			return nil, errors.Newf("table: no column %q", c)
		}
		idx[j] = i
	}
	out := New(columns...)
	for _, row := range t.rows {
		vals := make([]Value, len(idx))
		for j, i := range idx {
			vals[j] = row[i]
		}
		_ = out.Append(vals...)
	}
	return out, nil
}

// SortStable orders rows by less, keeping input order for ties.
func (t *Table) SortStable(less func(a, b Record) bool) {
	recs := make([]Record, len(t.rows))
	for i := range t.rows {
		recs[i] = t.Row(i)
	}
	perm := make([]int, len(t.rows))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool { return less(recs[perm[a]], recs[perm[b]]) })
	rows := make([][]Value, len(t.rows))
	for i, p := range perm {
		rows[i] = t.rows[p]
	}
	t.rows = rows
}

// Equal reports whether both tables have identical columns and cells.
func (t *Table) Equal(o *Table) bool {
	if t == nil || o == nil {
		return t == o
	}
	if len(t.columns) != len(o.columns) || len(t.rows) != len(o.rows) {
		return false
	}
	for i, c := range t.columns {
		if o.columns[i] != c {
			return false
		}
	}
	for i, row := range t.rows {
		for j, v := range row {
			if !v.Equal(o.rows[i][j]) {
				return false
			}
		}
	}
	return true
}
