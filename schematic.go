package ormion

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/jedib0t/go-pretty/table"
)

// RenderConfig writes a table of the columns of cfg, followed by its forms.
func RenderConfig(w io.Writer, cfg *Config) error {
	keys := make(map[string]Key, len(cfg.Keys))
	for _, k := range cfg.Keys {
		keys[k.Name] = k
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Column", "Type", "Nullable", "Primary Key", "Auto Increment", "Virtual"})
	for _, col := range cfg.Columns {
		k, isKey := keys[col.Name]
		t.AppendRow(table.Row{col.Name, hintLabel(col.Type), col.Nullable, isKey && k.Primary, isKey && k.AutoIncrement, col.Virtual})
	}

	if _, err := fmt.Fprintf(w, "table: %s\n%s\n", cfg.Table, t.Render()); err != nil {
		return err
	}

	names := make([]string, 0, len(cfg.Forms))
	for name := range cfg.Forms {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		f := table.NewWriter()
		f.AppendHeader(table.Row{"Field", "Type", "Label", "Required"})
		for _, field := range cfg.Forms[name] {
			f.AppendRow(table.Row{field.Name, field.Type, field.Label, field.Required})
		}
		if _, err := fmt.Fprintf(w, "form: %s\n%s\n", name, f.Render()); err != nil {
			return err
		}
	}
	return nil
}

// PrintSchematic writes the owner, related and junction tables of the
// relation.
func (m *ManyToMany[O, R]) PrintSchematic(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "%s N-N %s via %s (%s, %s)\n",
		m.owner.name, m.related.name, m.junction.Table, m.junction.OwnerColumn, m.junction.RelatedColumn); err != nil {
		return err
	}
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Junction Column", "References"})
	t.AppendRow(table.Row{m.junction.OwnerColumn, m.owner.name + "." + m.ownerKey})
	t.AppendRow(table.Row{m.junction.RelatedColumn, m.related.name + "." + m.relatedKey})
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func hintLabel(h TypeHint) string {
	if h == TypeUnknown {
		return "-"
	}
	return string(h)
}

// CheckSchema compares cfg with the live table and reports the first stored
// column that the table lacks.
func CheckSchema(ctx context.Context, db *DB, cfg *Config) error {
	live, err := Introspect(ctx, db, cfg.Table, IntrospectOptions{})
	if err != nil {
		return err
	}

	for _, name := range cfg.ColumnNames() {
		if !live.Declares(name) {
			return fmt.Errorf("%w: column %s.%s not found in database", ErrInvalidConfig, cfg.Table, name)
		}
	}
	return nil
}

// CheckSchema verifies that the junction table has both link columns.
func (m *ManyToMany[O, R]) CheckSchema(ctx context.Context) error {
	live, err := Introspect(ctx, m.owner.db, m.junction.Table, IntrospectOptions{})
	if err != nil {
		return err
	}
	for _, col := range []string{m.junction.OwnerColumn, m.junction.RelatedColumn} {
		if !live.Declares(col) {
			return fmt.Errorf("%w: junction %s has no column %s", ErrInvalidConfig, m.junction.Table, col)
		}
	}
	return nil
}
