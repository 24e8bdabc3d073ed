package ormion

import (
	"context"
	"fmt"
	"slices"
)

// Collection is a lazily executed query over a table. Query methods change
// the stored query and drop any loaded items; the query runs again on the
// next read. The first error is kept and returned by every later operation.
type Collection[T Entity] struct {
	table  *Table[T]
	query  QueryBuilder
	items  []T
	loaded bool
	frozen bool
	err    error
}

// NewCollection wraps a copy of query. The caller's builder is never
// modified.
func NewCollection[T Entity](table *Table[T], query QueryBuilder) *Collection[T] {
	c := &Collection[T]{table: table, query: query.Clone()}
	c.err = c.query.Err()
	return c
}

// Err returns the first recorded error.
func (c *Collection[T]) Err() error {
	return c.err
}

func (c *Collection[T]) mutate(op string, fn func(q QueryBuilder)) *Collection[T] {
	if c.err != nil {
		return c
	}
	if c.frozen {
		c.err = fmt.Errorf("%w: cannot call %s on a frozen collection", ErrFrozen, op)
		return c
	}

	fn(c.query)
	c.loaded = false
	c.items = nil
	c.err = c.query.Err()
	return c
}

// Where adds a condition joined with AND.
func (c *Collection[T]) Where(parts ...any) *Collection[T] {
	return c.mutate("Where", func(q QueryBuilder) { q.Where(parts...) })
}

// OrWhere adds a condition joined with OR.
func (c *Collection[T]) OrWhere(parts ...any) *Collection[T] {
	return c.mutate("OrWhere", func(q QueryBuilder) { q.OrWhere(parts...) })
}

// WhereIn restricts column to values. No values matches nothing.
func (c *Collection[T]) WhereIn(column string, values ...any) *Collection[T] {
	return c.mutate("WhereIn", func(q QueryBuilder) { q.WhereIn(column, values...) })
}

// OrderBy appends a sort term. direction is ASC or DESC.
func (c *Collection[T]) OrderBy(column, direction string) *Collection[T] {
	return c.mutate("OrderBy", func(q QueryBuilder) { q.OrderBy(column, direction) })
}

// Limit caps the number of rows.
func (c *Collection[T]) Limit(n int) *Collection[T] {
	return c.mutate("Limit", func(q QueryBuilder) { q.Limit(n) })
}

// Offset skips n rows.
func (c *Collection[T]) Offset(n int) *Collection[T] {
	return c.mutate("Offset", func(q QueryBuilder) { q.Offset(n) })
}

// Select adds columns or expressions to the select list.
func (c *Collection[T]) Select(exprs ...string) *Collection[T] {
	return c.mutate("Select", func(q QueryBuilder) { q.Select(exprs...) })
}

// GroupBy needs a builder implementing Grouper.
func (c *Collection[T]) GroupBy(columns ...string) *Collection[T] {
	g, ok := c.query.(Grouper)
	if !ok {
		return c.unsupported("GroupBy")
	}
	return c.mutate("GroupBy", func(QueryBuilder) { g.GroupBy(columns...) })
}

// Join needs a builder implementing Joiner.
func (c *Collection[T]) Join(kind JoinType, table, lhs, rhs string) *Collection[T] {
	j, ok := c.query.(Joiner)
	if !ok {
		return c.unsupported("Join")
	}
	return c.mutate("Join", func(QueryBuilder) { j.Join(kind, table, lhs, rhs) })
}

func (c *Collection[T]) unsupported(op string) *Collection[T] {
	if c.err == nil {
		c.err = fmt.Errorf("%w: query builder %T has no %s", ErrUnsupportedOperation, c.query, op)
	}
	return c
}

// Query returns a copy of the stored query.
func (c *Collection[T]) Query() QueryBuilder {
	return c.query.Clone()
}

// IsLoaded reports whether the items reflect the current query.
func (c *Collection[T]) IsLoaded() bool {
	return c.loaded
}

// Load executes the query unless the items are already loaded.
func (c *Collection[T]) Load(ctx context.Context) error {
	if c.err != nil {
		return c.err
	}
	if c.loaded {
		return nil
	}

	res, err := c.query.Execute(ctx)
	if err != nil {
		return err
	}
	c.items = c.table.hydrate(res)
	c.loaded = true
	return nil
}

// Items loads the collection and returns its items.
func (c *Collection[T]) Items(ctx context.Context) ([]T, error) {
	if err := c.Load(ctx); err != nil {
		return nil, err
	}
	return slices.Clone(c.items), nil
}

// Count returns the number of items. A loaded collection is counted in
// memory; otherwise a COUNT query runs without fetching rows.
func (c *Collection[T]) Count(ctx context.Context) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	if c.loaded {
		return int64(len(c.items)), nil
	}
	return c.query.Clone().Count(ctx)
}

// FetchAll runs the query and returns every row. The collection itself is
// not loaded.
func (c *Collection[T]) FetchAll(ctx context.Context) ([]T, error) {
	return c.FetchRange(ctx, 0, 0)
}

// FetchRange runs the query with a limit and offset. A zero limit leaves
// the query's own limit in place; offset is only applied with a limit.
func (c *Collection[T]) FetchRange(ctx context.Context, limit, offset int) ([]T, error) {
	if c.err != nil {
		return nil, c.err
	}

	q := c.query.Clone()
	if limit > 0 {
		q.Limit(limit)
		if offset > 0 {
			q.Offset(offset)
		}
	}
	return c.run(ctx, q)
}

// Fetch returns the first row.
func (c *Collection[T]) Fetch(ctx context.Context) (T, bool, error) {
	if c.err != nil {
		return *new(T), false, c.err
	}

	items, err := c.run(ctx, c.query.Clone().Limit(1))
	if err != nil || len(items) == 0 {
		return *new(T), false, err
	}
	return items[0], true, nil
}

func (c *Collection[T]) run(ctx context.Context, q QueryBuilder) ([]T, error) {
	if err := q.Err(); err != nil {
		return nil, err
	}
	res, err := q.Execute(ctx)
	if err != nil {
		return nil, err
	}
	return c.table.hydrate(res), nil
}

// FetchAssoc runs the query and arranges the records along path, for
// example "category,id" or "category,[]".
func (c *Collection[T]) FetchAssoc(ctx context.Context, path string) (*AssocTree[T], error) {
	if c.err != nil {
		return nil, c.err
	}

	res, err := c.query.Clone().Execute(ctx)
	if err != nil {
		return nil, err
	}
	c.table.applyTypes(res)

	rows := res.FetchAll()
	records := make([]T, len(rows))
	for i, row := range rows {
		records[i] = c.table.load(row)
	}

	tree, err := buildAssoc(path, records, func(e T, column string) (any, bool) {
		r := e.Base()
		return r.Get(column), r.Has(column)
	})
	if err != nil {
		return nil, err
	}

	tree.Walk(func(_ []any, e T) {
		e.Base().SetState(StateExisting).ClearModified()
	})
	return tree, nil
}

// FetchPairs returns key to value pairs of two columns in query order.
func (c *Collection[T]) FetchPairs(ctx context.Context, key, value string) (*Pairs, error) {
	res, err := c.project(ctx, false, key, value)
	if err != nil {
		return nil, err
	}
	return res.FetchPairs("", "")
}

// FetchColumn returns the values of one column.
func (c *Collection[T]) FetchColumn(ctx context.Context, column string) ([]any, error) {
	res, err := c.project(ctx, false, column)
	if err != nil {
		return nil, err
	}
	return res.FetchColumn(), nil
}

// FetchSingle returns one column of the first row.
func (c *Collection[T]) FetchSingle(ctx context.Context, column string) (any, bool, error) {
	res, err := c.project(ctx, true, column)
	if err != nil {
		return nil, false, err
	}
	v, ok := res.FetchSingle()
	return v, ok, nil
}

// project runs a copy of the query selecting only columns, typed by the
// table config.
func (c *Collection[T]) project(ctx context.Context, first bool, columns ...string) (*Result, error) {
	if c.err != nil {
		return nil, c.err
	}

	d := c.table.db.dialect
	q := c.query.Clone().RemoveClause(ClauseSelect)
	for _, col := range columns {
		q.Select(d.Quote(col))
	}
	if first {
		q.Limit(1)
	}
	if err := q.Err(); err != nil {
		return nil, err
	}

	res, err := q.Execute(ctx)
	if err != nil {
		return nil, err
	}

	names := res.Columns()
	for i, col := range columns {
		if i < len(names) {
			if hint := c.table.cfg.Type(unqualified(col)); hint != TypeUnknown {
				res.SetType(names[i], hint)
			}
		}
	}
	return res, nil
}

// GetMax returns the largest value of column.
func (c *Collection[T]) GetMax(ctx context.Context, column string) (any, error) {
	return c.aggregate(ctx, "MAX", column)
}

// GetMin returns the smallest value of column.
func (c *Collection[T]) GetMin(ctx context.Context, column string) (any, error) {
	return c.aggregate(ctx, "MIN", column)
}

// GetAvg returns the average of column.
func (c *Collection[T]) GetAvg(ctx context.Context, column string) (any, error) {
	return c.aggregate(ctx, "AVG", column)
}

// GetSum returns the sum of column.
func (c *Collection[T]) GetSum(ctx context.Context, column string) (any, error) {
	return c.aggregate(ctx, "SUM", column)
}

// aggregate selects fn(column) over the query. The type of the result is
// detected from what the database returns. Empty sets yield nil.
func (c *Collection[T]) aggregate(ctx context.Context, fn, column string) (any, error) {
	if c.err != nil {
		return nil, c.err
	}

	q := c.query.Clone().RemoveClause(ClauseSelect).RemoveClause(ClauseOrderBy)
	q.Select(fmt.Sprintf("%s(%s)", fn, c.table.db.dialect.Quote(column)))
	if err := q.Err(); err != nil {
		return nil, err
	}

	res, err := q.Execute(ctx)
	if err != nil {
		return nil, err
	}
	v, _ := res.DetectTypes().FetchSingle()
	return v, nil
}

// Freeze loads the collection and makes it and every item read-only. It
// cannot be undone.
func (c *Collection[T]) Freeze(ctx context.Context) error {
	if c.frozen {
		return nil
	}
	if err := c.Load(ctx); err != nil {
		return err
	}
	for _, item := range c.items {
		item.Base().Freeze()
	}
	c.frozen = true
	return nil
}

// IsFrozen reports whether the collection is read-only.
func (c *Collection[T]) IsFrozen() bool {
	return c.frozen
}

func unqualified(column string) string {
	for i := len(column) - 1; i >= 0; i-- {
		if column[i] == '.' {
			return column[i+1:]
		}
	}
	return column
}
