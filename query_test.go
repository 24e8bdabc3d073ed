package ormion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func offline(d *Dialect) *DB {
	return &DB{dialect: d, metrics: NewMetrics()}
}

func TestFluent_ToSql(t *testing.T) {
	db := offline(Dialects.SQLite3)

	tests := []struct {
		name  string
		build func(q *Fluent)
		sql   string
		args  []any
	}{
		{
			name:  "all columns",
			build: func(q *Fluent) {},
			sql:   `SELECT * FROM "pages"`,
		},
		{
			name: "select and where",
			build: func(q *Fluent) {
				q.Select("id", "name").Where("visits", ">", 3).Where("category", "news")
			},
			sql:  `SELECT "id", "name" FROM "pages" WHERE "visits" > ? AND "category" = ?`,
			args: []any{3, "news"},
		},
		{
			name: "or where and raw",
			build: func(q *Fluent) {
				q.Where("allowed", true).OrWhere(Raw("visits BETWEEN ? AND ?", 1, 5))
			},
			sql:  `SELECT * FROM "pages" WHERE "allowed" = ? OR (visits BETWEEN ? AND ?)`,
			args: []any{true, 1, 5},
		},
		{
			name: "null comparisons",
			build: func(q *Fluent) {
				q.Where("category", nil).Where("description", "!=", nil)
			},
			sql: `SELECT * FROM "pages" WHERE "category" IS NULL AND "description" IS NOT NULL`,
		},
		{
			name:  "in list",
			build: func(q *Fluent) { q.WhereIn("id", 1, 2, 3) },
			sql:   `SELECT * FROM "pages" WHERE "id" IN (?, ?, ?)`,
			args:  []any{1, 2, 3},
		},
		{
			name:  "in slice",
			build: func(q *Fluent) { q.Where("id", "in", []any{4, 5}) },
			sql:   `SELECT * FROM "pages" WHERE "id" IN (?, ?)`,
			args:  []any{4, 5},
		},
		{
			name:  "empty in",
			build: func(q *Fluent) { q.WhereIn("id") },
			sql:   `SELECT * FROM "pages" WHERE 1 = 0`,
		},
		{
			name:  "empty not in",
			build: func(q *Fluent) { q.Where("id", NotIn, []any{}) },
			sql:   `SELECT * FROM "pages" WHERE 1 = 1`,
		},
		{
			name:  "in subquery",
			build: func(q *Fluent) { q.Where("id", In, Raw("SELECT page_id FROM connections WHERE tag_id = ?", 2)) },
			sql:   `SELECT * FROM "pages" WHERE "id" IN (SELECT page_id FROM connections WHERE tag_id = ?)`,
			args:  []any{2},
		},
		{
			name:  "expression is not quoted",
			build: func(q *Fluent) { q.GroupBy("category").Select("COUNT(*) AS n").OrderBy("n", "desc") },
			sql:   `SELECT COUNT(*) AS n FROM "pages" GROUP BY "category" ORDER BY "n" DESC`,
		},
		{
			name: "join",
			build: func(q *Fluent) {
				q.Join(JoinLeft, "connections", "connections.page_id", "pages.id").Select("pages.*")
			},
			sql: `SELECT "pages".* FROM "pages" LEFT JOIN "connections" ON "connections"."page_id" = "pages"."id"`,
		},
		{
			name:  "limit and offset",
			build: func(q *Fluent) { q.OrderBy("id", "").Limit(10).Offset(20) },
			sql:   `SELECT * FROM "pages" ORDER BY "id" ASC LIMIT 10 OFFSET 20`,
		},
		{
			name:  "offset without limit",
			build: func(q *Fluent) { q.Offset(2) },
			sql:   `SELECT * FROM "pages" LIMIT -1 OFFSET 2`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQuery(db, "pages")
			tt.build(q)

			sql, args, err := q.ToSql()
			require.NoError(t, err)
			assert.Equal(t, tt.sql, sql)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestFluent_DialectSpecifics(t *testing.T) {
	pg := NewQuery(offline(Dialects.PostgreSQL), "pages").Where("id", 1).OrWhere("name", "a").Offset(5)
	sql, _, err := pg.ToSql()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "pages" WHERE "id" = $1 OR "name" = $2 OFFSET 5`, sql)

	my := NewQuery(offline(Dialects.MySQL), "pages").Where("id", 1).Offset(5)
	sql, _, err = my.ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `pages` WHERE `id` = ? LIMIT 18446744073709551615 OFFSET 5", sql)
}

func TestFluent_CloneIsDeep(t *testing.T) {
	q := NewQuery(offline(Dialects.SQLite3), "pages").
		Select("id").
		WhereIn("id", 1, 2).
		OrderBy("id", ASC).
		Limit(5)

	c := q.Clone()
	c.Where("visits", 1).Select("name").OrderBy("name", DESC).Limit(1)

	sql, args, err := q.ToSql()
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id" FROM "pages" WHERE "id" IN (?, ?) ORDER BY "id" ASC LIMIT 5`, sql)
	assert.Equal(t, []any{1, 2}, args)

	sql, args, err = c.ToSql()
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id", "name" FROM "pages" WHERE "id" IN (?, ?) AND "visits" = ? ORDER BY "id" ASC, "name" DESC LIMIT 1`, sql)
	assert.Equal(t, []any{1, 2, 1}, args)
}

func TestFluent_RemoveClause(t *testing.T) {
	q := NewQuery(offline(Dialects.SQLite3), "pages")
	q.GroupBy("id").Select("id").Where("id", 1).OrderBy("id", ASC).Limit(1).Offset(1)

	for _, c := range []Clause{ClauseSelect, ClauseWhere, ClauseGroupBy, ClauseOrderBy, ClauseLimit, ClauseOffset, ClauseJoin} {
		q.RemoveClause(c)
	}

	sql, args, err := q.ToSql()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "pages"`, sql)
	assert.Empty(t, args)

	q.RemoveClause(Clause(42))
	assert.ErrorIs(t, q.Err(), ErrUnsupportedOperation)
}

func TestFluent_InvalidWhere(t *testing.T) {
	db := offline(Dialects.SQLite3)

	tests := map[string][]any{
		"single non raw":  {"id"},
		"empty column":    {"", 1},
		"column not text": {1, 2},
		"bad operator":    {"id", "~", 1},
		"operator type":   {"id", 3, 1},
		"too many values": {"id", "=", 1, 2},
	}

	for name, parts := range tests {
		t.Run(name, func(t *testing.T) {
			q := NewQuery(db, "pages")
			q.Where(parts...)
			assert.ErrorIs(t, q.Err(), ErrUnsupportedOperation)

			_, _, err := q.ToSql()
			assert.ErrorIs(t, err, ErrUnsupportedOperation)
		})
	}
}

func TestFluent_FirstErrorWins(t *testing.T) {
	q := NewQuery(offline(Dialects.SQLite3), "pages")
	q.OrderBy("id", "sideways")
	q.Join(JoinType("CROSS"), "tags", "a", "b")

	assert.ErrorContains(t, q.Err(), "SIDEWAYS")
}

func TestFluent_EmptyTable(t *testing.T) {
	_, _, err := NewQuery(offline(Dialects.SQLite3), "").ToSql()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestFluent_ExecuteAndCount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	q := NewQuery(db, "pages").Select("name").Where("category", "blog").OrderBy("id", ASC)
	res, err := q.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{"Nepovoleny clanek", "Jinaci clanek"}, res.FetchColumn())

	n, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	grouped := NewQuery(db, "pages").GroupBy("category").Select("category")
	n, err = grouped.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "counts groups, not rows")
}

func TestInsertStmt_ToSQL(t *testing.T) {
	stmt := insertStmt{
		Table:   "connections",
		Columns: []string{"page_id", "tag_id"},
		Values:  [][]any{{1, 2}, {1, 3}},
	}

	sql, args := stmt.toSQL(Dialects.PostgreSQL)
	assert.Equal(t, `INSERT INTO "connections" ("page_id", "tag_id") VALUES (?, ?), (?, ?)`, sql)
	assert.Equal(t, []any{1, 2, 1, 3}, args)

	ret := insertStmt{Table: "pages", Columns: []string{"name"}, Values: [][]any{{"a"}}, Returning: []string{"id"}}
	sql, _ = ret.toSQL(Dialects.PostgreSQL)
	assert.Equal(t, `INSERT INTO "pages" ("name") VALUES (?) RETURNING "id"`, sql)

	empty := insertStmt{Table: "pages", Values: [][]any{{}}}
	sql, args = empty.toSQL(Dialects.SQLite3)
	assert.Equal(t, `INSERT INTO "pages" DEFAULT VALUES`, sql)
	assert.Empty(t, args)

	sql, _ = empty.toSQL(Dialects.MySQL)
	assert.Equal(t, "INSERT INTO `pages` () VALUES ()", sql)
}
