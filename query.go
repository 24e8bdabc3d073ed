package ormion

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// QueryBuilder is a mutable SELECT query. Collection drives it through this
// interface only.
type QueryBuilder interface {
	// Clone returns an independent deep copy.
	Clone() QueryBuilder
	RemoveClause(c Clause) QueryBuilder
	Select(exprs ...string) QueryBuilder
	Where(parts ...any) QueryBuilder
	OrWhere(parts ...any) QueryBuilder
	WhereIn(column string, values ...any) QueryBuilder
	OrderBy(column, direction string) QueryBuilder
	Limit(n int) QueryBuilder
	Offset(n int) QueryBuilder
	Execute(ctx context.Context) (*Result, error)
	// Count returns the number of rows the query would return.
	Count(ctx context.Context) (int64, error)
	ToSql() (string, []any, error)
	// Err returns the first error recorded while building.
	Err() error
}

// Grouper is implemented by builders that support GROUP BY.
type Grouper interface {
	GroupBy(columns ...string) QueryBuilder
}

// Joiner is implemented by builders that support joins.
type Joiner interface {
	Join(kind JoinType, table, lhs, rhs string) QueryBuilder
}

// Clause names a removable part of a query.
type Clause int

const (
	ClauseSelect Clause = iota + 1
	ClauseWhere
	ClauseJoin
	ClauseGroupBy
	ClauseOrderBy
	ClauseLimit
	ClauseOffset
)

const (
	ASC  string = "ASC"
	DESC string = "DESC"
)

type JoinType string

const (
	JoinInner JoinType = "INNER"
	JoinLeft  JoinType = "LEFT"
	JoinRight JoinType = "RIGHT"
	JoinFull  JoinType = "FULL OUTER"
)

type binaryOp string

const (
	Eq      binaryOp = "="
	NE      binaryOp = "!="
	GT      binaryOp = ">"
	LT      binaryOp = "<"
	GE      binaryOp = ">="
	LE      binaryOp = "<="
	Like    binaryOp = "LIKE"
	NotLike binaryOp = "NOT LIKE"
	In      binaryOp = "IN"
	NotIn   binaryOp = "NOT IN"
	Is      binaryOp = "IS"
	IsNot   binaryOp = "IS NOT"
)

var validOps = map[binaryOp]bool{
	Eq: true, NE: true, "<>": true, GT: true, LT: true, GE: true, LE: true,
	Like: true, NotLike: true, In: true, NotIn: true, Is: true, IsNot: true,
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_*][A-Za-z0-9_]*)?$`)

type raw struct {
	sql  string
	args []any
}

// Raw creates a raw SQL chunk with ? placeholders for use in Where, OrWhere
// and as the right side of IN.
func Raw(sql string, args ...any) *raw {
	return &raw{sql: sql, args: args}
}

type cond struct {
	Lhs string
	Op  binaryOp
	Rhs any
}

type whereClause struct {
	nextTyp string
	next    *whereClause
	cond
	raw  string
	args []any
}

func (w *whereClause) clone() *whereClause {
	if w == nil {
		return nil
	}
	c := *w
	c.args = slices.Clone(w.args)
	if rhs, ok := w.Rhs.([]any); ok {
		c.Rhs = slices.Clone(rhs)
	}
	c.next = w.next.clone()
	return &c
}

type join struct {
	kind     JoinType
	table    string
	lhs, rhs string
}

// Fluent is the bundled QueryBuilder. It builds SELECT statements against one
// table and executes them on the reader of its DB.
type Fluent struct {
	db      *DB
	table   string
	selects []string
	where   *whereClause
	joins   []join
	groupBy []string
	orderBy [][2]string
	limit   *int
	offset  *int
	err     error
}

// NewQuery returns a query selecting every row of table.
func NewQuery(db *DB, table string) *Fluent {
	return &Fluent{db: db, table: table}
}

func (qb *Fluent) Clone() QueryBuilder {
	return qb.clone()
}

func (qb *Fluent) clone() *Fluent {
	c := *qb
	c.selects = slices.Clone(qb.selects)
	c.where = qb.where.clone()
	c.joins = slices.Clone(qb.joins)
	c.groupBy = slices.Clone(qb.groupBy)
	c.orderBy = slices.Clone(qb.orderBy)
	if qb.limit != nil {
		n := *qb.limit
		c.limit = &n
	}
	if qb.offset != nil {
		n := *qb.offset
		c.offset = &n
	}
	return &c
}

func (qb *Fluent) Err() error {
	return qb.err
}

func (qb *Fluent) RemoveClause(c Clause) QueryBuilder {
	switch c {
	case ClauseSelect:
		qb.selects = nil
	case ClauseWhere:
		qb.where = nil
	case ClauseJoin:
		qb.joins = nil
	case ClauseGroupBy:
		qb.groupBy = nil
	case ClauseOrderBy:
		qb.orderBy = nil
	case ClauseLimit:
		qb.limit = nil
	case ClauseOffset:
		qb.offset = nil
	default:
		qb.fail(fmt.Errorf("%w: unknown clause %d", ErrUnsupportedOperation, c))
	}
	return qb
}

// Select adds expressions to the projection. Plain identifiers are quoted.
func (qb *Fluent) Select(exprs ...string) QueryBuilder {
	qb.selects = append(qb.selects, exprs...)
	return qb
}

// Where adds a condition joined with AND. Accepted forms are (column, value),
// (column, op, value), (column, "IN", values...) and (Raw(...)).
func (qb *Fluent) Where(parts ...any) QueryBuilder {
	return qb.addWhere("AND", parts...)
}

// OrWhere adds a condition joined with OR.
func (qb *Fluent) OrWhere(parts ...any) QueryBuilder {
	return qb.addWhere("OR", parts...)
}

func (qb *Fluent) WhereIn(column string, values ...any) QueryBuilder {
	return qb.addWhere("AND", column, In, values)
}

func (qb *Fluent) OrderBy(column, direction string) QueryBuilder {
	direction = strings.ToUpper(strings.TrimSpace(direction))
	if direction == "" {
		direction = ASC
	}
	if direction != ASC && direction != DESC {
		return qb.fail(fmt.Errorf("%w: order direction %q", ErrUnsupportedOperation, direction))
	}
	qb.orderBy = append(qb.orderBy, [2]string{column, direction})
	return qb
}

func (qb *Fluent) Limit(n int) QueryBuilder {
	qb.limit = &n
	return qb
}

func (qb *Fluent) Offset(n int) QueryBuilder {
	qb.offset = &n
	return qb
}

func (qb *Fluent) GroupBy(columns ...string) QueryBuilder {
	qb.groupBy = append(qb.groupBy, columns...)
	return qb
}

func (qb *Fluent) Join(kind JoinType, table, lhs, rhs string) QueryBuilder {
	switch kind {
	case JoinInner, JoinLeft, JoinRight, JoinFull:
	default:
		return qb.fail(fmt.Errorf("%w: join type %q", ErrUnsupportedOperation, kind))
	}
	qb.joins = append(qb.joins, join{kind: kind, table: table, lhs: lhs, rhs: rhs})
	return qb
}

func (qb *Fluent) fail(err error) QueryBuilder {
	if qb.err == nil {
		qb.err = err
	}
	return qb
}

func (qb *Fluent) addWhere(typ string, parts ...any) QueryBuilder {
	w, err := newWhere(parts)
	if err != nil {
		return qb.fail(err)
	}

	if qb.where == nil {
		qb.where = w
		return qb
	}

	last := qb.where
	for last.next != nil {
		last = last.next
	}
	last.nextTyp = typ
	last.next = w
	return qb
}

func newWhere(parts []any) (*whereClause, error) {
	if len(parts) == 1 {
		r, ok := parts[0].(*raw)
		if !ok {
			return nil, fmt.Errorf("%w: a single where argument must be Raw", ErrUnsupportedOperation)
		}
		return &whereClause{raw: r.sql, args: slices.Clone(r.args)}, nil
	}

	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: wrong number of arguments passed to where", ErrUnsupportedOperation)
	}
	column, ok := parts[0].(string)
	if !ok || column == "" {
		return nil, fmt.Errorf("%w: where column must be a non-empty string", ErrUnsupportedOperation)
	}

	if len(parts) == 2 {
		return &whereClause{cond: cond{Lhs: column, Op: Eq, Rhs: parts[1]}}, nil
	}

	var op binaryOp
	switch o := parts[1].(type) {
	case string:
		op = binaryOp(strings.ToUpper(strings.TrimSpace(o)))
	case binaryOp:
		op = o
	default:
		return nil, fmt.Errorf("%w: where operator must be a string", ErrUnsupportedOperation)
	}
	if !validOps[op] {
		return nil, fmt.Errorf("%w: where operator %q", ErrUnsupportedOperation, op)
	}

	if op == In || op == NotIn {
		if len(parts) == 3 {
			switch rhs := parts[2].(type) {
			case *raw:
				return &whereClause{cond: cond{Lhs: column, Op: op, Rhs: rhs}}, nil
			case []any:
				return &whereClause{cond: cond{Lhs: column, Op: op, Rhs: slices.Clone(rhs)}}, nil
			}
		}
		return &whereClause{cond: cond{Lhs: column, Op: op, Rhs: slices.Clone(parts[2:])}}, nil
	}

	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: wrong number of arguments passed to where", ErrUnsupportedOperation)
	}
	return &whereClause{cond: cond{Lhs: column, Op: op, Rhs: parts[2]}}, nil
}

func (b cond) toSQL(d *Dialect) (string, []any) {
	lhs := quoteExpr(d, b.Lhs)

	switch rhs := b.Rhs.(type) {
	case *raw:
		return fmt.Sprintf("%s %s (%s)", lhs, b.Op, rhs.sql), slices.Clone(rhs.args)
	case []any:
		if len(rhs) == 0 {
			// empty IN matches nothing, empty NOT IN matches everything
			if b.Op == NotIn {
				return "1 = 1", nil
			}
			return "1 = 0", nil
		}
		return fmt.Sprintf("%s %s (%s)", lhs, b.Op, placeholders(len(rhs))), slices.Clone(rhs)
	}

	if b.Rhs == nil && (b.Op == Eq || b.Op == Is) {
		return lhs + " IS NULL", nil
	}
	if b.Rhs == nil && (b.Op == NE || b.Op == "<>" || b.Op == IsNot) {
		return lhs + " IS NOT NULL", nil
	}
	return fmt.Sprintf("%s %s ?", lhs, b.Op), []any{b.Rhs}
}

func (w *whereClause) toSQL(d *Dialect) (string, []any) {
	var sb strings.Builder
	var args []any

	for c := w; c != nil; c = c.next {
		if c.raw != "" {
			sb.WriteString("(" + c.raw + ")")
			args = append(args, c.args...)
		} else {
			s, a := c.cond.toSQL(d)
			sb.WriteString(s)
			args = append(args, a...)
		}
		if c.next != nil {
			sb.WriteString(" " + c.nextTyp + " ")
		}
	}
	return sb.String(), args
}

// quoteExpr quotes plain and dotted identifiers; anything else is an
// expression and is used as written.
func quoteExpr(d *Dialect, expr string) string {
	if identRe.MatchString(expr) {
		return d.Quote(expr)
	}
	return expr
}

// build renders the statement with ? placeholders.
func (qb *Fluent) build() (string, []any, error) {
	if qb.err != nil {
		return "", nil, qb.err
	}
	if qb.table == "" {
		return "", nil, fmt.Errorf("%w: table cannot be empty", ErrInvalidConfig)
	}

	d := qb.db.dialect
	var sb strings.Builder
	var args []any

	sb.WriteString("SELECT ")
	if len(qb.selects) == 0 {
		sb.WriteString("*")
	} else {
		for i, s := range qb.selects {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(quoteExpr(d, s))
		}
	}

	sb.WriteString(" FROM " + d.Quote(qb.table))

	for _, j := range qb.joins {
		fmt.Fprintf(&sb, " %s JOIN %s ON %s = %s", j.kind, d.Quote(j.table), quoteExpr(d, j.lhs), quoteExpr(d, j.rhs))
	}

	if qb.where != nil {
		where, whereArgs := qb.where.toSQL(d)
		sb.WriteString(" WHERE " + where)
		args = append(args, whereArgs...)
	}

	if len(qb.groupBy) > 0 {
		cols := make([]string, len(qb.groupBy))
		for i, c := range qb.groupBy {
			cols[i] = quoteExpr(d, c)
		}
		sb.WriteString(" GROUP BY " + strings.Join(cols, ", "))
	}

	if len(qb.orderBy) > 0 {
		cols := make([]string, len(qb.orderBy))
		for i, o := range qb.orderBy {
			cols[i] = quoteExpr(d, o[0]) + " " + o[1]
		}
		sb.WriteString(" ORDER BY " + strings.Join(cols, ", "))
	}

	switch {
	case qb.limit != nil:
		sb.WriteString(" LIMIT " + strconv.Itoa(*qb.limit))
	case qb.offset != nil && d.NoLimit != "":
		sb.WriteString(" LIMIT " + d.NoLimit)
	}
	if qb.offset != nil {
		sb.WriteString(" OFFSET " + strconv.Itoa(*qb.offset))
	}

	return sb.String(), args, nil
}

// ToSql returns the statement in the dialect's placeholder style.
func (qb *Fluent) ToSql() (string, []any, error) {
	query, args, err := qb.build()
	if err != nil {
		return "", nil, err
	}
	return qb.db.dialect.Rebind(query), args, nil
}

func (qb *Fluent) Execute(ctx context.Context) (*Result, error) {
	query, args, err := qb.build()
	if err != nil {
		return nil, err
	}
	return qb.db.reader().query(ctx, "SELECT", query, args...)
}

// Count wraps the query as a subquery so that grouping and limits are
// respected.
func (qb *Fluent) Count(ctx context.Context) (int64, error) {
	inner, args, err := qb.build()
	if err != nil {
		return 0, err
	}

	res, err := qb.db.reader().query(ctx, "COUNT", "SELECT COUNT(*) FROM ("+inner+") AS ormion_count", args...)
	if err != nil {
		return 0, err
	}

	v, ok := res.SetType(res.columns[0], TypeInteger).FetchSingle()
	if !ok {
		return 0, nil
	}
	n, _ := v.(int64)
	return n, nil
}

type insertStmt struct {
	Table     string
	Columns   []string
	Values    [][]any
	Returning []string
}

func (i insertStmt) flatValues() []any {
	values := make([]any, 0, len(i.Values)*len(i.Columns))
	for _, row := range i.Values {
		values = append(values, row...)
	}
	return values
}

// toSQL renders a multi-row INSERT with ? placeholders.
func (i insertStmt) toSQL(d *Dialect) (string, []any) {
	cols := make([]string, len(i.Columns))
	for n, c := range i.Columns {
		cols[n] = d.Quote(c)
	}

	rows := make([]string, len(i.Values))
	for n, row := range i.Values {
		rows[n] = "(" + placeholders(len(row)) + ")"
	}

	var base string
	if len(cols) == 0 {
		base = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", d.Quote(i.Table))
		if d == Dialects.MySQL {
			base = fmt.Sprintf("INSERT INTO %s () VALUES ()", d.Quote(i.Table))
		}
	} else {
		base = fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
			d.Quote(i.Table), strings.Join(cols, ", "), strings.Join(rows, ", "))
	}

	if len(i.Returning) > 0 {
		ret := make([]string, len(i.Returning))
		for n, c := range i.Returning {
			ret[n] = d.Quote(c)
		}
		base += " RETURNING " + strings.Join(ret, ", ")
	}

	return base, i.flatValues()
}
