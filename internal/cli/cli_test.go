package cli

import (
	"bytes"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezakhademix/ormion"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "ormion", cmd.Use)

	for _, name := range []string{"introspect", "schema"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	driver := cmd.PersistentFlags().Lookup("driver")
	require.NotNil(t, driver)
	assert.Equal(t, "sqlite", driver.DefValue)

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
}

func newDatabase(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "app.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE pages (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		visits INTEGER,
		allowed BOOLEAN NOT NULL DEFAULT 0
	)`)
	require.NoError(t, err)
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestIntrospect_PrintsYAML(t *testing.T) {
	dsn := newDatabase(t)

	out, err := execute(t, "introspect", "--dsn", dsn, "--forms", "pages")
	require.NoError(t, err)

	cfg, err := ormion.ReadConfig(bytes.NewBufferString(out))
	require.NoError(t, err)
	assert.Equal(t, "pages", cfg.Table)
	assert.Equal(t, []string{"id", "name", "visits", "allowed"}, cfg.ColumnNames())
	assert.Equal(t, "id", cfg.PrimaryColumn())
	assert.True(t, cfg.IsPrimaryAutoIncrement())

	form, err := cfg.Form(ormion.DefaultForm)
	require.NoError(t, err)
	assert.Len(t, form, 5)
}

func TestIntrospect_WritesFileThenSchemaChecks(t *testing.T) {
	dsn := newDatabase(t)
	path := filepath.Join(t.TempDir(), "pages.yaml")

	_, err := execute(t, "introspect", "--dsn", dsn, "-o", path, "pages")
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.NoError(t, err)

	out, err := execute(t, "schema", "--check", "--dsn", dsn, path)
	require.NoError(t, err)
	assert.Contains(t, out, "table: pages")
	assert.Contains(t, out, "visits")
}

func TestSchema_CheckFailsOnMissingColumn(t *testing.T) {
	dsn := newDatabase(t)

	cfg := ormion.NewConfig("pages", "id", "name", "summary")
	path := filepath.Join(t.TempDir(), "pages.yaml")
	require.NoError(t, cfg.Save(path))

	_, err := execute(t, "schema", "--check", "--dsn", dsn, path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestIntrospect_RequiresDSN(t *testing.T) {
	_, err := execute(t, "introspect", "pages")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestIntrospect_UnknownTable(t *testing.T) {
	dsn := newDatabase(t)

	_, err := execute(t, "introspect", "--dsn", dsn, "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ormion.ErrNotFound)
}

func TestIntrospect_WithStatementCache(t *testing.T) {
	dsn := newDatabase(t)

	out, err := execute(t, "introspect", "--dsn", dsn, "--statement-cache", "8", "--render", "pages")
	require.NoError(t, err)
	assert.Contains(t, out, "table: pages")
}
