package ormion

import (
	"bytes"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// sameValue reports whether two column values are equal, treating numbers of
// different Go types as equal when they hold the same value.
func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	switch x := a.(type) {
	case []byte:
		if y, ok := b.([]byte); ok {
			return bytes.Equal(x, y)
		}
		if y, ok := b.(string); ok {
			return string(x) == y
		}
		return false
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	}
	if y, ok := b.([]byte); ok {
		if x, ok := a.(string); ok {
			return x == string(y)
		}
		return false
	}

	aVal := reflect.ValueOf(a)
	bVal := reflect.ValueOf(b)

	if aVal.Kind() == reflect.Pointer {
		if aVal.IsNil() {
			return false
		}
		aVal = aVal.Elem()
	}
	if bVal.Kind() == reflect.Pointer {
		if bVal.IsNil() {
			return false
		}
		bVal = bVal.Elem()
	}

	aKind, bKind := aVal.Kind(), bVal.Kind()

	switch {
	case isInteger(aKind) && isInteger(bKind):
		return aVal.Int() == bVal.Int()
	case isUint(aKind) && isUint(bKind):
		return aVal.Uint() == bVal.Uint()
	case isInteger(aKind) && isUint(bKind):
		return aVal.Int() >= 0 && uint64(aVal.Int()) == bVal.Uint()
	case isUint(aKind) && isInteger(bKind):
		return bVal.Int() >= 0 && aVal.Uint() == uint64(bVal.Int())
	case isFloat(aKind) && isFloat(bKind):
		return aVal.Float() == bVal.Float()
	case aKind == reflect.String && bKind == reflect.String:
		return aVal.String() == bVal.String()
	}

	if aVal.Type() == bVal.Type() && aVal.Comparable() {
		return aVal.Equal(bVal)
	}
	return false
}

// identityKey renders a key value so that values equal under sameValue share
// a key. Composite keys are joined with a unit separator.
func identityKey(values ...any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = scalarKey(v)
	}
	return strings.Join(parts, "\x1f")
}

func scalarKey(v any) string {
	switch x := v.(type) {
	case nil:
		return "\x00"
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	}

	rv := reflect.ValueOf(v)
	switch k := rv.Kind(); {
	case isInteger(k):
		return strconv.FormatInt(rv.Int(), 10)
	case isUint(k):
		return strconv.FormatUint(rv.Uint(), 10)
	case isFloat(k):
		f := rv.Float()
		if f == float64(int64(f)) {
			return strconv.FormatInt(int64(f), 10)
		}
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return fmt.Sprintf("%v", v)
}

func isInteger(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUint(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uint64
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}
