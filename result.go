package ormion

import (
	"database/sql"
	"fmt"
	"slices"
)

// Row is one result row keyed by column name.
type Row map[string]any

// Result is a fully buffered query result. Type hints set with SetType or
// DetectTypes are applied when values are read; values that cannot be
// converted are returned as read.
type Result struct {
	columns []string
	native  []string
	rows    [][]any
	types   map[string]TypeHint
}

func readResult(rows *sql.Rows) (*Result, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	res := &Result{
		columns: columns,
		native:  make([]string, len(columns)),
		types:   make(map[string]TypeHint),
	}

	if types, err := rows.ColumnTypes(); err == nil {
		for i, ct := range types {
			res.native[i] = ct.DatabaseTypeName()
		}
	}

	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = slices.Clone(b)
			}
		}
		res.rows = append(res.rows, values)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Columns returns the result column names.
func (r *Result) Columns() []string {
	return slices.Clone(r.columns)
}

// Len returns the number of rows.
func (r *Result) Len() int {
	return len(r.rows)
}

// SetType sets the type hint of a column.
func (r *Result) SetType(column string, hint TypeHint) *Result {
	r.types[column] = hint
	return r
}

// DetectTypes sets a type hint for every column that has none, from the
// native column type or, failing that, from the first non-NULL value.
func (r *Result) DetectTypes() *Result {
	for i, col := range r.columns {
		if _, ok := r.types[col]; ok {
			continue
		}

		hint := HintFromNative(r.native[i])
		if hint == TypeUnknown {
			for _, row := range r.rows {
				if row[i] != nil {
					hint = hintFromValue(row[i])
					break
				}
			}
		}
		r.types[col] = hint
	}
	return r
}

func (r *Result) cell(row, col int) any {
	v := r.rows[row][col]
	hint, ok := r.types[r.columns[col]]
	if !ok {
		return normalize(v)
	}

	out, err := Coerce(v, hint)
	if err != nil {
		return normalize(v)
	}
	return out
}

func (r *Result) row(i int) Row {
	out := make(Row, len(r.columns))
	for j, col := range r.columns {
		out[col] = r.cell(i, j)
	}
	return out
}

func (r *Result) index(column string) (int, error) {
	for i, c := range r.columns {
		if c == column {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: column %q is not in the result", ErrNotFound, column)
}

// FetchAll returns every row.
func (r *Result) FetchAll() []Row {
	out := make([]Row, len(r.rows))
	for i := range r.rows {
		out[i] = r.row(i)
	}
	return out
}

// FetchAssoc arranges the rows in a tree along a comma separated path of
// columns. A "[]" segment collects rows in a list at that level.
func (r *Result) FetchAssoc(path string) (*AssocTree[Row], error) {
	return buildAssoc(path, r.FetchAll(), func(row Row, column string) (any, bool) {
		v, ok := row[column]
		return v, ok
	})
}

// FetchPairs maps the key column to the value column. Empty names select the
// first and second result columns.
func (r *Result) FetchPairs(key, value string) (*Pairs, error) {
	ki, vi := 0, 1
	var err error

	if key != "" {
		if ki, err = r.index(key); err != nil {
			return nil, err
		}
	}
	if value != "" {
		if vi, err = r.index(value); err != nil {
			return nil, err
		}
	}
	if len(r.columns) < 2 && (key == "" || value == "") {
		return nil, fmt.Errorf("%w: pairs need two columns, result has %d", ErrNotFound, len(r.columns))
	}

	p := newPairs(len(r.rows))
	for i := range r.rows {
		p.put(r.cell(i, ki), r.cell(i, vi))
	}
	return p, nil
}

// FetchColumn returns the values of the first column.
func (r *Result) FetchColumn() []any {
	if len(r.columns) == 0 {
		return nil
	}
	out := make([]any, len(r.rows))
	for i := range r.rows {
		out[i] = r.cell(i, 0)
	}
	return out
}

// FetchSingle returns the first column of the first row.
func (r *Result) FetchSingle() (any, bool) {
	if len(r.rows) == 0 || len(r.columns) == 0 {
		return nil, false
	}
	return r.cell(0, 0), true
}

// Pairs is an ordered key to value map. A repeated key keeps its first
// position and takes the last value.
type Pairs struct {
	keys   []any
	values map[string]any
}

func newPairs(n int) *Pairs {
	return &Pairs{keys: make([]any, 0, n), values: make(map[string]any, n)}
}

func (p *Pairs) put(key, value any) {
	k := identityKey(key)
	if _, ok := p.values[k]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[k] = value
}

// Keys returns the keys in first-seen order.
func (p *Pairs) Keys() []any {
	return slices.Clone(p.keys)
}

// Get returns the value for key.
func (p *Pairs) Get(key any) (any, bool) {
	v, ok := p.values[identityKey(key)]
	return v, ok
}

// Values returns the values in key order.
func (p *Pairs) Values() []any {
	out := make([]any, len(p.keys))
	for i, k := range p.keys {
		out[i] = p.values[identityKey(k)]
	}
	return out
}

// Len returns the number of distinct keys.
func (p *Pairs) Len() int {
	return len(p.keys)
}
