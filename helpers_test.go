package ormion

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type testPage struct {
	Record
}

type testTag struct {
	Record
}

const testSchema = `
CREATE TABLE pages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	description TEXT,
	text TEXT,
	visits INTEGER NOT NULL DEFAULT 0,
	allowed BOOLEAN NOT NULL DEFAULT 0,
	category TEXT
);
CREATE TABLE tags (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	url TEXT NOT NULL
);
CREATE TABLE connections (
	page_id INTEGER NOT NULL REFERENCES pages(id),
	tag_id INTEGER NOT NULL REFERENCES tags(id),
	PRIMARY KEY (page_id, tag_id)
);
INSERT INTO pages (name, description, text, visits, allowed, category) VALUES
	('Clanek', 'Popis', 'Text', 0, 1, 'news'),
	('Article', 'Description', 'Text emericky.', 5, 0, 'news'),
	('Nepovoleny clanek', 'Popis nepovoleneho clanku', 'Dlouhy text.', 3, 0, 'blog'),
	('Jinaci clanek', 'Ryze alternativni popis', 'Duchaplny text.', 8, 1, 'blog');
INSERT INTO tags (name, url) VALUES
	('Osobni', 'osobni'),
	('Technologie', 'technologie'),
	('Spolecnost', 'spolecnost');
`

func pagesConfig() *Config {
	return &Config{
		Table: "pages",
		Columns: []Column{
			{Name: "id", Type: TypeInteger},
			{Name: "name", Type: TypeText},
			{Name: "description", Type: TypeText, Nullable: true},
			{Name: "text", Type: TypeText, Nullable: true},
			{Name: "visits", Type: TypeInteger},
			{Name: "allowed", Type: TypeBool},
			{Name: "category", Type: TypeText, Nullable: true},
		},
		Keys: []Key{{Name: "id", Primary: true, AutoIncrement: true}},
	}
}

func tagsConfig() *Config {
	cfg := NewConfig("tags", "id", "name", "url")
	cfg.Columns[0].Type = TypeInteger
	return cfg
}

// newTestDB opens an in-memory SQLite database holding the pages, tags and
// connections tables. One connection keeps every statement on the same
// in-memory database.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(context.Background(), "sqlite3", ":memory:", WithPool(DBConfig{MaxOpenConns: 1}))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.SQL().Exec(testSchema)
	require.NoError(t, err)
	return db
}

type fixture struct {
	db    *DB
	pages *Table[*testPage]
	tags  *Table[*testTag]
	rel   *ManyToMany[*testPage, *testTag]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := newTestDB(t)
	pages, err := Define[*testPage](db, "", pagesConfig())
	require.NoError(t, err)
	tags, err := Define[*testTag](db, "", tagsConfig())
	require.NoError(t, err)
	rel, err := NewManyToMany("tags", pages, tags, JunctionConfig{Table: "connections"})
	require.NoError(t, err)

	return &fixture{db: db, pages: pages, tags: tags, rel: rel}
}

func (f *fixture) page(t *testing.T, name string) *testPage {
	t.Helper()

	p, found, err := f.pages.FindBy(context.Background(), "name", name)
	require.NoError(t, err)
	require.True(t, found, "page %q", name)
	return p
}

// writes returns the number of INSERT, UPDATE and DELETE statements issued.
func writes(db *DB) float64 {
	return testutil.ToFloat64(db.Metrics().Statements("INSERT")) +
		testutil.ToFloat64(db.Metrics().Statements("UPDATE")) +
		testutil.ToFloat64(db.Metrics().Statements("DELETE"))
}

func selects(db *DB) float64 {
	return testutil.ToFloat64(db.Metrics().Statements("SELECT")) +
		testutil.ToFloat64(db.Metrics().Statements("COUNT"))
}

func statements(db *DB, operation string) float64 {
	return testutil.ToFloat64(db.Metrics().Statements(operation))
}
