package ormion

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect captures the SQL differences between the supported databases.
type Dialect struct {
	Name                 string
	DriverNames          []string
	QuoteChar            byte
	NumberedPlaceholders bool   // $1, $2 instead of ?
	UseReturning         bool   // INSERT ... RETURNING for generated keys
	NoLimit              string // LIMIT value used when only OFFSET is set

	tableInfo func(table string) (string, []any)
	scanInfo  func(values []any) columnSpec
}

var Dialects = &struct {
	MySQL      *Dialect
	PostgreSQL *Dialect
	SQLite3    *Dialect
}{
	MySQL: &Dialect{
		Name:        "mysql",
		DriverNames: []string{"mysql"},
		QuoteChar:   '`',
		NoLimit:     "18446744073709551615",
		tableInfo:   mysqlTableInfo,
		scanInfo:    scanMySQLColumn,
	},

	PostgreSQL: &Dialect{
		Name:                 "postgres",
		DriverNames:          []string{"pgx", "postgres"},
		QuoteChar:            '"',
		NumberedPlaceholders: true,
		UseReturning:         true,
		tableInfo:            postgresTableInfo,
		scanInfo:             scanPostgresColumn,
	},

	SQLite3: &Dialect{
		Name:        "sqlite3",
		DriverNames: []string{"sqlite3", "sqlite"},
		QuoteChar:   '"',
		NoLimit:     "-1",
		tableInfo:   sqliteTableInfo,
		scanInfo:    scanSQLiteColumn,
	},
}

// DialectFor returns the dialect registered for a database/sql driver name.
func DialectFor(driverName string) (*Dialect, error) {
	for _, d := range []*Dialect{Dialects.MySQL, Dialects.PostgreSQL, Dialects.SQLite3} {
		for _, name := range d.DriverNames {
			if name == driverName {
				return d, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: no dialect for driver %q", ErrInvalidConfig, driverName)
}

// Quote quotes an identifier. Dotted names are quoted per segment and "*"
// is left as is.
func (d *Dialect) Quote(ident string) string {
	if ident == "*" {
		return ident
	}

	q := string(d.QuoteChar)
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		if p == "*" {
			continue
		}
		parts[i] = q + strings.ReplaceAll(p, q, q+q) + q
	}
	return strings.Join(parts, ".")
}

// Rebind converts ? placeholders to the dialect's form. Question marks inside
// single-quoted literals are kept.
func (d *Dialect) Rebind(query string) string {
	if !d.NumberedPlaceholders || !strings.Contains(query, "?") {
		return query
	}

	var sb strings.Builder
	sb.Grow(len(query) + 8)

	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			sb.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// placeholders returns "?, ?, ?" for n values.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
