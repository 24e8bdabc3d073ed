package ormion

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
)

// State is the persistence state of a record.
type State int

const (
	// StateNew records have no row yet.
	StateNew State = iota
	// StateExisting records mirror a row. With modified columns they are
	// "modified" (see IsModified).
	StateExisting
	// StateDeleted records had their row deleted.
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateExisting:
		return "existing"
	case StateDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Entity is anything backed by a Record. Embedding Record in a struct makes
// a pointer to that struct an Entity.
type Entity interface {
	Base() *Record
}

// Record holds the column values of one row and tracks which of them changed
// since the row was last read or written.
type Record struct {
	cfg      *Config
	values   map[string]any
	modified map[string]struct{}
	original map[string]any
	state    State
	frozen   bool
	staged   []stagedSet
}

// NewRecord returns a NEW record with the given values marked modified.
func NewRecord(values map[string]any) *Record {
	r := &Record{}
	for k, v := range values {
		r.put(k, v)
	}
	return r
}

// Base returns r itself, so that *Record is an Entity.
func (r *Record) Base() *Record {
	return r
}

func (r *Record) init() {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if r.modified == nil {
		r.modified = make(map[string]struct{})
	}
}

// bind attaches the table config used to validate column names.
func (r *Record) bind(cfg *Config) {
	r.cfg = cfg
	r.init()
}

// Config returns the config the record is bound to, or nil.
func (r *Record) Config() *Config {
	return r.cfg
}

// Get returns the value of a column, or nil if it is not set.
func (r *Record) Get(column string) any {
	return r.values[column]
}

// Has reports whether a column has a value, including NULL.
func (r *Record) Has(column string) bool {
	_, ok := r.values[column]
	return ok
}

// Set stores a value and marks the column modified. Setting a column to its
// current value does nothing.
func (r *Record) Set(column string, value any) error {
	if r.frozen {
		return fmt.Errorf("%w: cannot set %q", ErrFrozen, column)
	}
	if r.cfg != nil && !r.cfg.Declares(column) {
		return fmt.Errorf("%w: column %q", ErrNotFound, column)
	}

	if cur, ok := r.values[column]; ok && sameValue(cur, value) {
		return nil
	}
	r.put(column, value)

	// Writing back the loaded value makes the column clean again.
	if orig, ok := r.original[column]; ok && r.state == StateExisting && sameValue(orig, value) {
		delete(r.modified, column)
	}
	return nil
}

// SetValues sets several columns. It stops at the first error.
func (r *Record) SetValues(values map[string]any) error {
	columns := slices.Sorted(maps.Keys(values))
	for _, c := range columns {
		if err := r.Set(c, values[c]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Record) put(column string, value any) {
	r.init()
	r.values[column] = value
	r.modified[column] = struct{}{}
}

// Values returns a copy of all column values.
func (r *Record) Values() map[string]any {
	return maps.Clone(r.values)
}

// State returns the persistence state.
func (r *Record) State() State {
	return r.state
}

// SetState sets the persistence state.
func (r *Record) SetState(s State) *Record {
	r.state = s
	return r
}

// ClearModified forgets every modification. The current values become the
// originals.
func (r *Record) ClearModified() *Record {
	clear(r.modified)
	r.original = maps.Clone(r.values)
	return r
}

// ModifiedColumns returns the modified columns, declared ones first in
// config order.
func (r *Record) ModifiedColumns() []string {
	return r.ordered(func(c string) bool {
		_, ok := r.modified[c]
		return ok
	})
}

// IsModified reports whether an EXISTING record has unsaved changes.
func (r *Record) IsModified() bool {
	return r.state == StateExisting && len(r.modified) > 0
}

// IsNew reports whether the record has no row yet.
func (r *Record) IsNew() bool {
	return r.state == StateNew
}

// Freeze makes the record read-only. It cannot be undone.
func (r *Record) Freeze() {
	r.frozen = true
}

// IsFrozen reports whether the record is read-only.
func (r *Record) IsFrozen() bool {
	return r.frozen
}

// PrimaryKey returns the primary key values in key order. ok is false when
// the record is unbound or a key column has no value.
func (r *Record) PrimaryKey() (values []any, ok bool) {
	if r.cfg == nil {
		return nil, false
	}
	cols := r.cfg.PrimaryColumns()
	if len(cols) == 0 {
		return nil, false
	}
	for _, c := range cols {
		v := r.values[c]
		if v == nil {
			return nil, false
		}
		values = append(values, v)
	}
	return values, true
}

// ordered lists the record's columns matching keep, declared ones first.
func (r *Record) ordered(keep func(string) bool) []string {
	var out []string
	seen := make(map[string]bool)
	if r.cfg != nil {
		for _, c := range r.cfg.Columns {
			seen[c.Name] = true
			if _, set := r.values[c.Name]; set && keep(c.Name) {
				out = append(out, c.Name)
			}
		}
	}

	var rest []string
	for c := range r.values {
		if !seen[c] && keep(c) {
			rest = append(rest, c)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

type recordSnapshot struct {
	values   map[string]any
	modified map[string]struct{}
	original map[string]any
	state    State
	staged   []stagedSet
}

func (r *Record) snapshot() recordSnapshot {
	return recordSnapshot{
		values:   maps.Clone(r.values),
		modified: maps.Clone(r.modified),
		original: maps.Clone(r.original),
		state:    r.state,
		staged:   slices.Clone(r.staged),
	}
}

func (r *Record) restore(s recordSnapshot) {
	r.values = s.values
	r.modified = s.modified
	r.original = s.original
	r.state = s.state
	r.staged = s.staged
	r.init()
}

// stagedSet is a pending association change applied when the owner is saved.
type stagedSet interface {
	relationName() string
	apply(ctx context.Context, s session, owner *Record) error
	commit()
	rollback()
}

// stage replaces the pending change for the same relation.
func (r *Record) stage(set stagedSet) {
	for i, s := range r.staged {
		if s.relationName() == set.relationName() {
			r.staged[i] = set
			return
		}
	}
	r.staged = append(r.staged, set)
}

func (r *Record) stagedFor(relation string) stagedSet {
	for _, s := range r.staged {
		if s.relationName() == relation {
			return s
		}
	}
	return nil
}

func (r *Record) unstage(relation string) {
	r.staged = slices.DeleteFunc(r.staged, func(s stagedSet) bool {
		return s.relationName() == relation
	})
}

// HasPendingChanges reports whether a save would issue any statement.
func (r *Record) HasPendingChanges() bool {
	return r.state == StateNew || len(r.modified) > 0 || len(r.staged) > 0
}
