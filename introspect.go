package ormion

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// IntrospectOptions controls what Introspect derives besides columns and keys.
type IntrospectOptions struct {
	// GenerateForms adds a "default" form with one input per column.
	GenerateForms bool
}

type columnSpec struct {
	Name          string
	NativeType    string
	Nullable      bool
	PrimaryKey    bool
	KeyPosition   int
	AutoIncrement bool
}

// Introspect builds a Config from the live definition of table.
func Introspect(ctx context.Context, db *DB, table string, opts IntrospectOptions) (*Config, error) {
	query, args := db.dialect.tableInfo(table)

	res, err := db.writer().query(ctx, "SELECT", query, args...)
	if err != nil {
		return nil, err
	}
	if res.Len() == 0 {
		return nil, fmt.Errorf("%w: table %q", ErrNotFound, table)
	}

	specs := make([]columnSpec, res.Len())
	for i := range res.rows {
		values := make([]any, len(res.columns))
		for j := range res.columns {
			values[j] = res.cell(i, j)
		}
		specs[i] = db.dialect.scanInfo(values)
	}

	cfg := configFromSpecs(table, specs)
	if opts.GenerateForms {
		cfg.Forms = map[string][]FormField{DefaultForm: defaultForm(cfg)}
	}

	db.logger.DebugContext(ctx, "table introspected", "table", table, "columns", len(cfg.Columns))
	return cfg, nil
}

func configFromSpecs(table string, specs []columnSpec) *Config {
	cfg := &Config{Table: table}

	var keys []columnSpec
	for _, s := range specs {
		cfg.Columns = append(cfg.Columns, Column{
			Name:     s.Name,
			Type:     HintFromNative(s.NativeType),
			Nullable: s.Nullable,
		})
		if s.PrimaryKey {
			keys = append(keys, s)
		}
	}

	sort.SliceStable(keys, func(i, j int) bool { return keys[i].KeyPosition < keys[j].KeyPosition })
	for _, k := range keys {
		cfg.Keys = append(cfg.Keys, Key{
			Name:          k.Name,
			Primary:       true,
			AutoIncrement: k.AutoIncrement && len(keys) == 1,
		})
	}
	return cfg
}

// defaultForm has a hidden input per key column, a text input per other
// column and a trailing submit button.
func defaultForm(cfg *Config) []FormField {
	keys := make(map[string]bool, len(cfg.Keys))
	for _, k := range cfg.Keys {
		keys[k.Name] = true
	}

	fields := make([]FormField, 0, len(cfg.Columns)+1)
	for _, col := range cfg.Columns {
		if keys[col.Name] {
			fields = append(fields, FormField{Name: col.Name, Type: "hidden"})
			continue
		}
		fields = append(fields, FormField{
			Name:     col.Name,
			Type:     "text",
			Label:    col.Name,
			Required: !col.Nullable,
		})
	}
	return append(fields, FormField{Name: "s", Type: "submit", Label: "OK"})
}

func sqliteTableInfo(table string) (string, []any) {
	return `SELECT name, type, "notnull", pk FROM pragma_table_info(?) ORDER BY cid`, []any{table}
}

func scanSQLiteColumn(v []any) columnSpec {
	pk := asInt(v[3])
	return columnSpec{
		Name:          asString(v[0]),
		NativeType:    asString(v[1]),
		Nullable:      asInt(v[2]) == 0 && pk == 0,
		PrimaryKey:    pk > 0,
		KeyPosition:   int(pk),
		AutoIncrement: pk > 0 && strings.EqualFold(asString(v[1]), "INTEGER"),
	}
}

func mysqlTableInfo(table string) (string, []any) {
	return `SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE, COLUMN_KEY, EXTRA
FROM information_schema.COLUMNS
WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
ORDER BY ORDINAL_POSITION`, []any{table}
}

func scanMySQLColumn(v []any) columnSpec {
	return columnSpec{
		Name:          asString(v[0]),
		NativeType:    asString(v[1]),
		Nullable:      strings.EqualFold(asString(v[2]), "YES"),
		PrimaryKey:    asString(v[3]) == "PRI",
		AutoIncrement: strings.Contains(strings.ToLower(asString(v[4])), "auto_increment"),
	}
}

func postgresTableInfo(table string) (string, []any) {
	return `SELECT c.column_name, c.data_type, c.is_nullable, COALESCE(c.column_default, ''), c.is_identity,
  EXISTS (
    SELECT 1 FROM information_schema.table_constraints tc
    JOIN information_schema.key_column_usage k
      ON k.constraint_name = tc.constraint_name AND k.table_schema = tc.table_schema AND k.table_name = tc.table_name
    WHERE tc.constraint_type = 'PRIMARY KEY'
      AND tc.table_schema = c.table_schema AND tc.table_name = c.table_name AND k.column_name = c.column_name
  )
FROM information_schema.columns c
WHERE c.table_schema = current_schema() AND c.table_name = ?
ORDER BY c.ordinal_position`, []any{table}
}

func scanPostgresColumn(v []any) columnSpec {
	def := asString(v[3])
	return columnSpec{
		Name:          asString(v[0]),
		NativeType:    asString(v[1]),
		Nullable:      strings.EqualFold(asString(v[2]), "YES"),
		PrimaryKey:    asBool(v[5]),
		AutoIncrement: strings.HasPrefix(def, "nextval(") || strings.EqualFold(asString(v[4]), "YES"),
	}
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	return toText(v)
}

func asInt(v any) int64 {
	n, err := toInt(v)
	if err != nil {
		return 0
	}
	return n.(int64)
}

func asBool(v any) bool {
	b, err := toBool(v)
	if err != nil {
		return false
	}
	return b.(bool)
}
