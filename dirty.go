package ormion

import "maps"

// Original returns the value a column had when the record was last read or
// saved, or nil for records that were never clean.
func (r *Record) Original(column string) any {
	return r.original[column]
}

// Originals returns a copy of the values at the last clean point.
func (r *Record) Originals() map[string]any {
	return maps.Clone(r.original)
}

// IsDirty reports whether a column differs from its original value. A
// modified column set back to its original value is not dirty.
func (r *Record) IsDirty(column string) bool {
	if _, ok := r.modified[column]; !ok {
		return false
	}
	orig, tracked := r.original[column]
	return !tracked || !sameValue(orig, r.values[column])
}

// Dirty returns the modified columns whose value differs from the original.
func (r *Record) Dirty() map[string]any {
	out := make(map[string]any)
	for c := range r.modified {
		if r.IsDirty(c) {
			out[c] = r.values[c]
		}
	}
	return out
}

// keyValues returns the values identifying the row in the database: the
// originals of the key columns when the record was clean before.
func (r *Record) keyValues(columns []string) ([]any, bool) {
	out := make([]any, len(columns))
	for i, c := range columns {
		v, ok := r.original[c]
		if !ok || v == nil {
			v = r.values[c]
		}
		if v == nil {
			return nil, false
		}
		out[i] = v
	}
	return out, len(columns) > 0
}
