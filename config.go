package ormion

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// DefaultForm is the name of the form generated by Introspect.
const DefaultForm = "default"

// Config describes a table: its columns, keys and optional form definitions.
// It can be written by hand, loaded from YAML or built by Introspect.
type Config struct {
	Table   string                 `yaml:"table,omitempty"`
	Columns []Column               `yaml:"columns"`
	Keys    []Key                  `yaml:"keys,omitempty"`
	Forms   map[string][]FormField `yaml:"forms,omitempty"`
}

// Column is a table column. Virtual columns live on the record but are never
// written to the table.
type Column struct {
	Name     string   `yaml:"name"`
	Type     TypeHint `yaml:"type,omitempty"`
	Nullable bool     `yaml:"nullable,omitempty"`
	Virtual  bool     `yaml:"virtual,omitempty"`
}

// Key marks a column as part of the primary key.
type Key struct {
	Name          string `yaml:"name"`
	Primary       bool   `yaml:"primary"`
	AutoIncrement bool   `yaml:"autoIncrement,omitempty"`
}

// FormField is one input of a form definition.
type FormField struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Label    string `yaml:"label,omitempty"`
	Required bool   `yaml:"required,omitempty"`
}

// NewConfig builds a config for table from column names. The first column is
// the auto-increment primary key.
func NewConfig(table string, columns ...string) *Config {
	cfg := &Config{Table: table}
	for _, name := range columns {
		cfg.Columns = append(cfg.Columns, Column{Name: name})
	}
	if len(columns) > 0 {
		cfg.Keys = []Key{{Name: columns[0], Primary: true, AutoIncrement: true}}
	}
	return cfg
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, err := ReadConfig(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ReadConfig decodes a YAML config.
func ReadConfig(r io.Reader) (*Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to a YAML file.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	if _, err := c.WriteTo(&buf); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// WriteTo encodes the config as YAML.
func (c *Config) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return 0, err
	}
	if err := enc.Close(); err != nil {
		return 0, err
	}
	return buf.WriteTo(w)
}

func (c *Config) validate() error {
	seen := make(map[string]bool, len(c.Columns))
	for _, col := range c.Columns {
		if col.Name == "" {
			return fmt.Errorf("%w: column without a name", ErrInvalidConfig)
		}
		if seen[col.Name] {
			return fmt.Errorf("%w: duplicate column %q", ErrInvalidConfig, col.Name)
		}
		seen[col.Name] = true
	}
	for _, k := range c.Keys {
		if !seen[k.Name] {
			return fmt.Errorf("%w: key %q is not a column", ErrInvalidConfig, k.Name)
		}
	}
	return nil
}

func (c *Config) column(name string) (Column, bool) {
	for _, col := range c.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the names of the stored (non-virtual) columns in
// declaration order.
func (c *Config) ColumnNames() []string {
	out := make([]string, 0, len(c.Columns))
	for _, col := range c.Columns {
		if !col.Virtual {
			out = append(out, col.Name)
		}
	}
	return out
}

// Declares reports whether name is declared, virtual or not.
func (c *Config) Declares(name string) bool {
	_, ok := c.column(name)
	return ok
}

// IsColumn reports whether name is a stored column. Undeclared names count
// as columns; only virtual columns do not.
func (c *Config) IsColumn(name string) bool {
	col, ok := c.column(name)
	return !ok || !col.Virtual
}

// Type returns the type hint of a column, or TypeUnknown.
func (c *Config) Type(name string) TypeHint {
	col, _ := c.column(name)
	return col.Type
}

// IsNullable reports whether a column accepts NULL.
func (c *Config) IsNullable(name string) bool {
	col, _ := c.column(name)
	return col.Nullable
}

// IsPrimaryAutoIncrement reports whether the first primary key column is
// generated by the database.
func (c *Config) IsPrimaryAutoIncrement() bool {
	for _, k := range c.Keys {
		if k.Primary {
			return k.AutoIncrement
		}
	}
	return false
}

// PrimaryColumns returns the primary key columns in order.
func (c *Config) PrimaryColumns() []string {
	var out []string
	for _, k := range c.Keys {
		if k.Primary {
			out = append(out, k.Name)
		}
	}
	return out
}

// PrimaryColumn returns the first primary key column, or "".
func (c *Config) PrimaryColumn() string {
	for _, k := range c.Keys {
		if k.Primary {
			return k.Name
		}
	}
	return ""
}

// Form returns a form definition by name.
func (c *Config) Form(name string) ([]FormField, error) {
	fields, ok := c.Forms[name]
	if !ok || len(fields) == 0 {
		return nil, fmt.Errorf("%w: form with name %q does not exist", ErrNotFound, name)
	}
	return slices.Clone(fields), nil
}
