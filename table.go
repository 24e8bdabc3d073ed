package ormion

import (
	"context"
	"fmt"
	"reflect"

	"github.com/gertd/go-pluralize"
	"github.com/google/uuid"
	"github.com/iancoleman/strcase"
)

var inflect = pluralize.NewClient()

// tableMeta is the non-generic part of a table: everything needed to write a
// single record.
type tableMeta struct {
	db   *DB
	name string
	cfg  *Config
}

// Table maps entities of type T to rows of one table.
type Table[T Entity] struct {
	tableMeta
	factory func() T
}

// Define binds the entity type T to a table. T must be *Record or a pointer
// to a struct embedding Record. An empty name is taken from cfg.Table, then
// from a TableName() method on T, then from the pluralized snake-case type
// name.
func Define[T Entity](db *DB, name string, cfg *Config) (*Table[T], error) {
	if db == nil {
		return nil, fmt.Errorf("%w: database", ErrNilPointer)
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: config", ErrNilPointer)
	}
	if len(cfg.Columns) == 0 {
		return nil, fmt.Errorf("%w: config has no columns", ErrInvalidConfig)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	factory, typeName, err := entityFactory[T]()
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = cfg.Table
	}
	if name == "" {
		if n, ok := any(factory()).(interface{ TableName() string }); ok {
			name = n.TableName()
		}
	}
	if name == "" && typeName != "" {
		name = inflect.Plural(strcase.ToSnake(typeName))
	}
	if name == "" {
		return nil, fmt.Errorf("%w: table name required for %T", ErrInvalidConfig, *new(T))
	}

	return &Table[T]{
		tableMeta: tableMeta{db: db, name: name, cfg: cfg},
		factory:   factory,
	}, nil
}

func entityFactory[T Entity]() (func() T, string, error) {
	typ := reflect.TypeFor[T]()
	if typ == reflect.TypeFor[*Record]() {
		return func() T { return any(&Record{}).(T) }, "", nil
	}
	if typ.Kind() != reflect.Pointer || typ.Elem().Kind() != reflect.Struct {
		return nil, "", fmt.Errorf("%w: %s is not a pointer to a struct", ErrInvalidModel, typ)
	}

	elem := typ.Elem()
	return func() T { return reflect.New(elem).Interface().(T) }, elem.Name(), nil
}

// Name returns the table name.
func (t *Table[T]) Name() string { return t.name }

// Config returns the table config.
func (t *Table[T]) Config() *Config { return t.cfg }

// DB returns the database handle.
func (t *Table[T]) DB() *DB { return t.db }

// New returns an empty NEW entity bound to the table.
func (t *Table[T]) New() T {
	e := t.factory()
	e.Base().bind(t.cfg)
	return e
}

// Create returns a NEW entity with values set. It is not saved.
func (t *Table[T]) Create(values map[string]any) (T, error) {
	e := t.New()
	if err := e.Base().SetValues(values); err != nil {
		return *new(T), err
	}
	return e, nil
}

// Query returns a collection over every row of the table.
func (t *Table[T]) Query() *Collection[T] {
	return NewCollection(t, NewQuery(t.db, t.name))
}

// FindAll is an alias of Query.
func (t *Table[T]) FindAll() *Collection[T] {
	return t.Query()
}

// FindBy returns the first row whose column equals value.
func (t *Table[T]) FindBy(ctx context.Context, column string, value any) (T, bool, error) {
	return t.Query().Where(column, value).Fetch(ctx)
}

// Find returns the row with the given primary key.
func (t *Table[T]) Find(ctx context.Context, pk ...any) (T, bool, error) {
	cols := t.cfg.PrimaryColumns()
	if len(cols) == 0 || len(cols) != len(pk) {
		return *new(T), false, fmt.Errorf("%w: table %s has %d key columns, got %d values",
			ErrUnsupportedOperation, t.name, len(cols), len(pk))
	}

	c := t.Query()
	for i, col := range cols {
		c.Where(col, pk[i])
	}
	return c.Fetch(ctx)
}

// Save inserts a NEW entity or updates a modified one, then applies its
// staged associations. When associations are staged everything runs in one
// transaction and, on failure, the in-memory records are restored.
func (t *Table[T]) Save(ctx context.Context, e T) error {
	r, err := t.record(e)
	if err != nil {
		return err
	}

	if len(r.staged) == 0 {
		return t.saveRecord(ctx, t.db.writer(), r)
	}

	snap := r.snapshot()
	err = t.db.Transaction(ctx, func(tx *Tx) error {
		return t.saveRecord(ctx, tx.session(), r)
	})
	if err != nil {
		r.restore(snap)
		for _, s := range r.staged {
			s.rollback()
		}
		return err
	}

	for _, s := range r.staged {
		s.commit()
	}
	r.staged = nil
	return nil
}

// SaveTx saves inside a caller-managed transaction. In-memory state is
// restored when a statement fails but not when the caller rolls back later.
func (t *Table[T]) SaveTx(ctx context.Context, tx *Tx, e T) error {
	r, err := t.record(e)
	if err != nil {
		return err
	}

	snap := r.snapshot()
	if err := t.saveRecord(ctx, tx.session(), r); err != nil {
		r.restore(snap)
		for _, s := range r.staged {
			s.rollback()
		}
		return err
	}
	for _, s := range r.staged {
		s.commit()
	}
	r.staged = nil
	return nil
}

// Delete deletes the row of an EXISTING entity and marks it DELETED.
func (t *Table[T]) Delete(ctx context.Context, e T) error {
	r, err := t.record(e)
	if err != nil {
		return err
	}
	if r.state != StateExisting {
		return fmt.Errorf("%w: cannot delete a %s record", ErrUnsupportedOperation, r.state)
	}
	if r.frozen {
		return fmt.Errorf("%w: cannot delete", ErrFrozen)
	}

	where, args, err := t.keyCondition(r)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s", t.db.dialect.Quote(t.name), where)
	if _, err := t.db.writer().exec(ctx, "DELETE", query, args...); err != nil {
		return err
	}

	r.SetState(StateDeleted)
	return nil
}

func (t *Table[T]) record(e T) (*Record, error) {
	if any(e) == nil || reflect.ValueOf(e).IsNil() {
		return nil, ErrNilPointer
	}
	r := e.Base()
	if r.cfg == nil {
		r.bind(t.cfg)
	}
	return r, nil
}

// hydrate turns result rows into EXISTING, clean entities.
func (t *Table[T]) hydrate(res *Result) []T {
	t.applyTypes(res)

	rows := res.FetchAll()
	out := make([]T, len(rows))
	for i, row := range rows {
		e := t.load(row)
		e.Base().SetState(StateExisting).ClearModified()
		out[i] = e
	}
	return out
}

// load copies a row into a new entity. Every column ends up modified.
func (t *Table[T]) load(row Row) T {
	e := t.New()
	r := e.Base()
	for col, v := range row {
		r.put(col, v)
	}
	return e
}

func (t *tableMeta) applyTypes(res *Result) {
	for _, col := range t.cfg.Columns {
		if col.Type != TypeUnknown {
			res.SetType(col.Name, col.Type)
		}
	}
}

func (t *tableMeta) keyCondition(r *Record) (string, []any, error) {
	cols := t.cfg.PrimaryColumns()
	values, ok := r.keyValues(cols)
	if !ok {
		return "", nil, fmt.Errorf("%w: record of %s has no primary key value", ErrUnsupportedOperation, t.name)
	}

	where := ""
	for i, c := range cols {
		if i > 0 {
			where += " AND "
		}
		where += t.db.dialect.Quote(c) + " = ?"
	}
	return where, values, nil
}

// saveRecord writes r and applies its staged associations on s.
func (t *tableMeta) saveRecord(ctx context.Context, s session, r *Record) error {
	switch r.state {
	case StateDeleted:
		return fmt.Errorf("%w: cannot save a deleted record", ErrUnsupportedOperation)
	case StateNew:
		if err := t.insert(ctx, s, r); err != nil {
			return err
		}
	case StateExisting:
		if err := t.update(ctx, s, r); err != nil {
			return err
		}
	}

	if len(r.staged) > 0 && r.frozen {
		return fmt.Errorf("%w: cannot change the associations of a frozen record", ErrFrozen)
	}
	for _, set := range r.staged {
		if err := set.apply(ctx, s, r); err != nil {
			return err
		}
	}
	return nil
}

func (t *tableMeta) insert(ctx context.Context, s session, r *Record) error {
	if r.frozen {
		return fmt.Errorf("%w: cannot insert", ErrFrozen)
	}

	pk := t.cfg.PrimaryColumn()
	single := len(t.cfg.PrimaryColumns()) == 1
	auto := single && t.cfg.IsPrimaryAutoIncrement()

	if single && !auto && t.cfg.Type(pk) == TypeUUID && r.Get(pk) == nil {
		r.put(pk, uuid.NewString())
	}

	cols := r.ordered(func(c string) bool {
		if !t.cfg.IsColumn(c) {
			return false
		}
		return !(auto && c == pk && r.values[c] == nil)
	})
	values := make([]any, len(cols))
	for i, c := range cols {
		values[i] = r.values[c]
	}

	stmt := insertStmt{Table: t.name, Columns: cols, Values: [][]any{values}}
	generated := auto && r.values[pk] == nil

	if generated && s.db.dialect.UseReturning {
		stmt.Returning = []string{pk}
		query, args := stmt.toSQL(s.db.dialect)
		res, err := s.query(ctx, "INSERT", query, args...)
		if err != nil {
			return err
		}
		if id, ok := res.SetType(pk, TypeInteger).FetchSingle(); ok {
			r.put(pk, id)
		}
	} else {
		query, args := stmt.toSQL(s.db.dialect)
		res, err := s.exec(ctx, "INSERT", query, args...)
		if err != nil {
			return err
		}
		if generated {
			id, err := res.LastInsertId()
			if err != nil {
				return wrapQueryError("INSERT", query, args, err)
			}
			r.put(pk, id)
		}
	}

	r.SetState(StateExisting).ClearModified()
	return nil
}

func (t *tableMeta) update(ctx context.Context, s session, r *Record) error {
	cols := r.ordered(func(c string) bool {
		return r.IsDirty(c) && t.cfg.IsColumn(c)
	})
	if len(cols) == 0 {
		r.ClearModified()
		return nil
	}
	if r.frozen {
		return fmt.Errorf("%w: cannot update", ErrFrozen)
	}

	where, keyArgs, err := t.keyCondition(r)
	if err != nil {
		return err
	}

	sets := ""
	args := make([]any, 0, len(cols)+len(keyArgs))
	for i, c := range cols {
		if i > 0 {
			sets += ", "
		}
		sets += s.db.dialect.Quote(c) + " = ?"
		args = append(args, r.values[c])
	}
	args = append(args, keyArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", s.db.dialect.Quote(t.name), sets, where)
	if _, err := s.exec(ctx, "UPDATE", query, args...); err != nil {
		return err
	}

	r.ClearModified()
	return nil
}

// singleKey returns the only primary key column.
func (t *tableMeta) singleKey() (string, error) {
	cols := t.cfg.PrimaryColumns()
	if len(cols) != 1 {
		return "", fmt.Errorf("%w: table %s needs exactly one primary key column, has %d",
			ErrUnsupportedOperation, t.name, len(cols))
	}
	return cols[0], nil
}
