package ormion

import (
	"context"
	"fmt"

	"github.com/iancoleman/strcase"
)

// JunctionConfig names the table linking owners to related records.
// Empty column names default to the singular table name plus "_id", for
// example "page_id" for a "pages" owner table.
type JunctionConfig struct {
	Table         string
	OwnerColumn   string
	RelatedColumn string
}

// relationMeta is the non-generic part of a many-to-many relation.
type relationMeta struct {
	name       string
	junction   JunctionConfig
	owner      *tableMeta
	related    *tableMeta
	ownerKey   string
	relatedKey string
}

// ManyToMany links owners of type O to related records of type R through a
// junction table.
type ManyToMany[O, R Entity] struct {
	relationMeta
	ownerTable   *Table[O]
	relatedTable *Table[R]
}

// NewManyToMany defines a relation. Both tables need a single-column
// primary key. An empty name defaults to the junction table name.
func NewManyToMany[O, R Entity](name string, owner *Table[O], related *Table[R], cfg JunctionConfig) (*ManyToMany[O, R], error) {
	if owner == nil || related == nil {
		return nil, fmt.Errorf("%w: relation tables", ErrNilPointer)
	}
	if cfg.Table == "" {
		return nil, fmt.Errorf("%w: junction table is required", ErrInvalidConfig)
	}
	if cfg.OwnerColumn == "" {
		cfg.OwnerColumn = foreignKeyName(owner.name)
	}
	if cfg.RelatedColumn == "" {
		cfg.RelatedColumn = foreignKeyName(related.name)
	}
	if cfg.OwnerColumn == cfg.RelatedColumn {
		return nil, fmt.Errorf("%w: junction columns must differ, both are %q", ErrInvalidConfig, cfg.OwnerColumn)
	}
	if name == "" {
		name = cfg.Table
	}

	ownerKey, err := owner.singleKey()
	if err != nil {
		return nil, err
	}
	relatedKey, err := related.singleKey()
	if err != nil {
		return nil, err
	}

	return &ManyToMany[O, R]{
		relationMeta: relationMeta{
			name:       name,
			junction:   cfg,
			owner:      &owner.tableMeta,
			related:    &related.tableMeta,
			ownerKey:   ownerKey,
			relatedKey: relatedKey,
		},
		ownerTable:   owner,
		relatedTable: related,
	}, nil
}

func foreignKeyName(table string) string {
	return strcase.ToSnake(inflect.Singular(table)) + "_id"
}

// Name returns the relation name.
func (m *ManyToMany[O, R]) Name() string { return m.name }

// Junction returns the junction definition with defaults applied.
func (m *ManyToMany[O, R]) Junction() JunctionConfig { return m.junction }

// Get returns the persisted related records of owner. A NEW owner has none.
func (m *ManyToMany[O, R]) Get(owner O) *Collection[R] {
	c := m.relatedTable.Query()

	id, ok := m.ownerID(owner.Base())
	if !ok || owner.Base().IsNew() {
		return c.Where(Raw("1 = 0"))
	}

	d := m.owner.db.dialect
	sub := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		d.Quote(m.junction.RelatedColumn), d.Quote(m.junction.Table), d.Quote(m.junction.OwnerColumn))
	return c.Where(m.relatedKey, In, Raw(sub, id))
}

// Set stages items as the complete set of related records of owner. The
// junction rows change when the owner is saved. A frozen owner is rejected.
func (m *ManyToMany[O, R]) Set(owner O, items ...R) error {
	if owner.Base().IsFrozen() {
		return fmt.Errorf("%w: cannot set %s", ErrFrozen, m.name)
	}
	owner.Base().stage(&AssociationSet[R]{rel: &m.relationMeta, items: items})
	return nil
}

// Add stages the current related records of owner plus items. The current
// set is the staged one or, without one, the persisted one.
func (m *ManyToMany[O, R]) Add(ctx context.Context, owner O, items ...R) error {
	if owner.Base().IsFrozen() {
		return fmt.Errorf("%w: cannot add to %s", ErrFrozen, m.name)
	}

	current, staged := m.Pending(owner)
	if !staged {
		var err error
		current, err = m.Get(owner).FetchAll(ctx)
		if err != nil {
			return err
		}
	}

	seen := make(map[*Record]bool, len(current))
	keys := make(map[string]bool, len(current))
	for _, r := range current {
		seen[r.Base()] = true
		if id, ok := m.relatedID(r.Base()); ok {
			keys[identityKey(id)] = true
		}
	}

	desired := append([]R(nil), current...)
	for _, r := range items {
		if seen[r.Base()] {
			continue
		}
		if id, ok := m.relatedID(r.Base()); ok && !r.Base().IsNew() {
			if keys[identityKey(id)] {
				continue
			}
			keys[identityKey(id)] = true
		}
		seen[r.Base()] = true
		desired = append(desired, r)
	}

	return m.Set(owner, desired...)
}

// Pending returns the staged set of owner, if any.
func (m *ManyToMany[O, R]) Pending(owner O) ([]R, bool) {
	set, ok := owner.Base().stagedFor(m.name).(*AssociationSet[R])
	if !ok {
		return nil, false
	}
	return append([]R(nil), set.items...), true
}

// Sync makes items the related records of owner and saves owner in one
// transaction. A NEW owner is inserted first.
func (m *ManyToMany[O, R]) Sync(ctx context.Context, owner O, items ...R) error {
	if err := m.Set(owner, items...); err != nil {
		return err
	}
	return m.ownerTable.Save(ctx, owner)
}

func (rel *relationMeta) ownerID(r *Record) (any, bool) {
	v := r.Get(rel.ownerKey)
	return v, v != nil
}

func (rel *relationMeta) relatedID(r *Record) (any, bool) {
	v := r.Get(rel.relatedKey)
	return v, v != nil
}

// AssociationSet is the desired set of related records for one owner. It
// may hold NEW records; they are inserted before their junction rows.
type AssociationSet[R Entity] struct {
	rel      *relationMeta
	items    []R
	inserted map[*Record]recordSnapshot
	nested   []stagedSet
}

func (a *AssociationSet[R]) relationName() string {
	return a.rel.name
}

// Items returns the desired related records.
func (a *AssociationSet[R]) Items() []R {
	return append([]R(nil), a.items...)
}

// apply makes the junction rows of owner equal the desired set: NEW records
// are inserted, then missing rows are added and extra rows removed. A set
// equal to the stored one issues no writes.
func (a *AssociationSet[R]) apply(ctx context.Context, s session, owner *Record) error {
	rel := a.rel
	ownerID, ok := rel.ownerID(owner)
	if !ok {
		return fmt.Errorf("%w: owner of %s has no key", ErrUnsupportedOperation, rel.name)
	}

	var desired []any
	want := make(map[string]bool, len(a.items))
	for _, item := range a.items {
		r := item.Base()
		if r.cfg == nil {
			r.bind(rel.related.cfg)
		}

		switch r.state {
		case StateDeleted:
			return fmt.Errorf("%w: %s cannot link a deleted record", ErrUnsupportedOperation, rel.name)
		case StateNew:
			if a.inserted == nil {
				a.inserted = make(map[*Record]recordSnapshot)
			}
			if _, done := a.inserted[r]; !done {
				a.inserted[r] = r.snapshot()
			}
			sets := r.staged
			err := rel.related.saveRecord(ctx, s, r)
			a.nested = append(a.nested, sets...)
			if err != nil {
				return err
			}
			r.staged = nil
		}

		id, ok := rel.relatedID(r)
		if !ok {
			return fmt.Errorf("%w: related record of %s has no key", ErrUnsupportedOperation, rel.name)
		}
		if k := identityKey(id); !want[k] {
			want[k] = true
			desired = append(desired, id)
		}
	}

	d := s.db.dialect
	junction := d.Quote(rel.junction.Table)
	ownerCol := d.Quote(rel.junction.OwnerColumn)
	relatedCol := d.Quote(rel.junction.RelatedColumn)

	res, err := s.query(ctx, "SELECT",
		fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", relatedCol, junction, ownerCol), ownerID)
	if err != nil {
		return err
	}

	have := make(map[string]bool, res.Len())
	var extra []any
	for _, id := range res.FetchColumn() {
		k := identityKey(id)
		have[k] = true
		if !want[k] {
			extra = append(extra, id)
		}
	}

	var missing [][]any
	for _, id := range desired {
		if !have[identityKey(id)] {
			missing = append(missing, []any{ownerID, id})
		}
	}

	if len(extra) > 0 {
		query := fmt.Sprintf("DELETE FROM %s WHERE %s = ? AND %s IN (%s)",
			junction, ownerCol, relatedCol, placeholders(len(extra)))
		if _, err := s.exec(ctx, "DELETE", query, append([]any{ownerID}, extra...)...); err != nil {
			return err
		}
	}

	if len(missing) > 0 {
		stmt := insertStmt{
			Table:   rel.junction.Table,
			Columns: []string{rel.junction.OwnerColumn, rel.junction.RelatedColumn},
			Values:  missing,
		}
		query, args := stmt.toSQL(d)
		if _, err := s.exec(ctx, "INSERT", query, args...); err != nil {
			return err
		}
	}

	s.db.logger.InfoContext(ctx, "association synced",
		"relation", rel.name, "owner", ownerID,
		"added", len(missing), "removed", len(extra), "kept", len(desired)-len(missing))

	return nil
}

// commit forgets the records inserted by apply once their transaction is
// committed.
func (a *AssociationSet[R]) commit() {
	for _, set := range a.nested {
		set.commit()
	}
	a.inserted = nil
	a.nested = nil
}

// rollback restores the records inserted by a failed apply, including the
// ones inserted for their own staged sets.
func (a *AssociationSet[R]) rollback() {
	for _, set := range a.nested {
		set.rollback()
	}
	for r, snap := range a.inserted {
		r.restore(snap)
	}
	a.inserted = nil
	a.nested = nil
}
