package ormion

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TypeHint is the logical type of a column. Values read from the database
// are coerced to the Go type of their hint.
type TypeHint string

const (
	TypeUnknown  TypeHint = ""
	TypeText     TypeHint = "text"     // string
	TypeInteger  TypeHint = "integer"  // int64
	TypeFloat    TypeHint = "float"    // float64
	TypeBool     TypeHint = "bool"     // bool
	TypeDate     TypeHint = "date"     // time.Time
	TypeDatetime TypeHint = "datetime" // time.Time
	TypeBinary   TypeHint = "binary"   // []byte
	TypeUUID     TypeHint = "uuid"     // string, canonical form
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

var integerTypes = map[string]bool{
	"int": true, "integer": true, "bigint": true, "smallint": true,
	"tinyint": true, "mediumint": true, "int2": true, "int4": true, "int8": true,
	"unsigned big int": true, "serial": true, "bigserial": true, "smallserial": true,
}

// HintFromNative maps a native column type name, as reported by a driver or
// an information schema, to a TypeHint.
func HintFromNative(native string) TypeHint {
	t := strings.ToLower(strings.TrimSpace(native))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	t = strings.TrimSpace(strings.TrimSuffix(t, " unsigned"))

	switch {
	case t == "":
		return TypeUnknown
	case t == "uuid":
		return TypeUUID
	case t == "bool" || t == "boolean":
		return TypeBool
	case integerTypes[t]:
		return TypeInteger
	case t == "real" || strings.Contains(t, "float") || strings.Contains(t, "double") ||
		t == "numeric" || t == "decimal":
		return TypeFloat
	case t == "date":
		return TypeDate
	case strings.Contains(t, "time"):
		return TypeDatetime
	case strings.Contains(t, "blob") || t == "bytea" || strings.Contains(t, "binary"):
		return TypeBinary
	default:
		return TypeText
	}
}

// hintFromValue infers a hint from a scanned Go value.
func hintFromValue(v any) TypeHint {
	switch v.(type) {
	case int64, int32, int, int16, int8, uint64, uint32, uint, uint16, uint8:
		return TypeInteger
	case float64, float32:
		return TypeFloat
	case bool:
		return TypeBool
	case time.Time:
		return TypeDatetime
	case string, []byte:
		return TypeText
	default:
		return TypeUnknown
	}
}

// Coerce converts v to the Go type of hint. nil stays nil.
func Coerce(v any, hint TypeHint) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch hint {
	case TypeUnknown:
		return normalize(v), nil
	case TypeText:
		return toText(v), nil
	case TypeInteger:
		return toInt(v)
	case TypeFloat:
		return toFloat(v)
	case TypeBool:
		return toBool(v)
	case TypeDate, TypeDatetime:
		return toTime(v)
	case TypeBinary:
		switch x := v.(type) {
		case []byte:
			return x, nil
		case string:
			return []byte(x), nil
		}
	case TypeUUID:
		return toUUID(v)
	}

	return nil, fmt.Errorf("cannot coerce %T to %s", v, hint)
}

// normalize turns driver byte slices into strings.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func toText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}

func toInt(v any) (any, error) {
	switch x := v.(type) {
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(x)), 10, 64)
	}

	rv := reflect.ValueOf(v)
	switch {
	case isInteger(rv.Kind()):
		return rv.Int(), nil
	case isUint(rv.Kind()):
		if rv.Uint() > math.MaxInt64 {
			return nil, fmt.Errorf("value %d overflows int64", rv.Uint())
		}
		return int64(rv.Uint()), nil
	case isFloat(rv.Kind()):
		return int64(rv.Float()), nil
	}
	return nil, fmt.Errorf("cannot coerce %T to %s", v, TypeInteger)
}

func toFloat(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(x)), 64)
	}

	rv := reflect.ValueOf(v)
	switch {
	case isFloat(rv.Kind()):
		return rv.Float(), nil
	case isInteger(rv.Kind()):
		return float64(rv.Int()), nil
	case isUint(rv.Kind()):
		return float64(rv.Uint()), nil
	}
	return nil, fmt.Errorf("cannot coerce %T to %s", v, TypeFloat)
}

func toBool(v any) (any, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(x))
	case []byte:
		return strconv.ParseBool(strings.TrimSpace(string(x)))
	}

	rv := reflect.ValueOf(v)
	switch {
	case isInteger(rv.Kind()):
		return rv.Int() != 0, nil
	case isUint(rv.Kind()):
		return rv.Uint() != 0, nil
	}
	return nil, fmt.Errorf("cannot coerce %T to %s", v, TypeBool)
}

func toTime(v any) (any, error) {
	var s string
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		s = x
	case []byte:
		s = string(x)
	default:
		return nil, fmt.Errorf("cannot coerce %T to time", v)
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("cannot parse %q as time", s)
}

func toUUID(v any) (any, error) {
	switch x := v.(type) {
	case [16]byte:
		return uuid.UUID(x).String(), nil
	case []byte:
		if len(x) == 16 {
			id, err := uuid.FromBytes(x)
			if err != nil {
				return nil, err
			}
			return id.String(), nil
		}
		return toUUID(string(x))
	case string:
		id, err := uuid.Parse(x)
		if err != nil {
			return nil, err
		}
		return id.String(), nil
	}
	return nil, fmt.Errorf("cannot coerce %T to %s", v, TypeUUID)
}
