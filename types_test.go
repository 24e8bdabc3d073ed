package ormion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHintFromNative(t *testing.T) {
	tests := map[string]TypeHint{
		"":                         TypeUnknown,
		"INTEGER":                  TypeInteger,
		"int(11) unsigned":         TypeInteger,
		"bigserial":                TypeInteger,
		"int8":                     TypeInteger,
		"MEDIUMINT":                TypeInteger,
		"smallint unsigned":        TypeInteger,
		"interval":                 TypeText,
		"point":                    TypeText,
		"BOOLEAN":                  TypeBool,
		"tinyint(1)":               TypeInteger,
		"REAL":                     TypeFloat,
		"double precision":         TypeFloat,
		"numeric(10,2)":            TypeFloat,
		"date":                     TypeDate,
		"DATETIME":                 TypeDatetime,
		"timestamp with time zone": TypeDatetime,
		"bytea":                    TypeBinary,
		"BLOB":                     TypeBinary,
		"uuid":                     TypeUUID,
		"VARCHAR(255)":             TypeText,
		"character varying":        TypeText,
	}

	for native, want := range tests {
		assert.Equal(t, want, HintFromNative(native), native)
	}
}

func TestCoerce(t *testing.T) {
	when := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   any
		hint TypeHint
		want any
	}{
		{"nil stays nil", nil, TypeInteger, nil},
		{"unknown normalizes bytes", []byte("abc"), TypeUnknown, "abc"},
		{"text from int", int64(5), TypeText, "5"},
		{"text from bytes", []byte("x"), TypeText, "x"},
		{"int from string", " 42 ", TypeInteger, int64(42)},
		{"int from bytes", []byte("7"), TypeInteger, int64(7)},
		{"int from int32", int32(3), TypeInteger, int64(3)},
		{"int from bool", true, TypeInteger, int64(1)},
		{"float from int", int64(2), TypeFloat, 2.0},
		{"float from string", "2.5", TypeFloat, 2.5},
		{"bool from int", int64(0), TypeBool, false},
		{"bool from string", "1", TypeBool, true},
		{"datetime from sqlite text", "2024-03-01 10:30:00", TypeDatetime, when},
		{"datetime from rfc3339", "2024-03-01T10:30:00Z", TypeDatetime, when},
		{"date", "2024-03-01", TypeDate, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"binary from string", "ab", TypeBinary, []byte("ab")},
		{"uuid canonical", "6BA7B810-9DAD-11D1-80B4-00C04FD430C8", TypeUUID, "6ba7b810-9dad-11d1-80b4-00c04fd430c8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.in, tt.hint)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerce_Errors(t *testing.T) {
	for _, tc := range []struct {
		in   any
		hint TypeHint
	}{
		{"abc", TypeInteger},
		{"x", TypeFloat},
		{"maybe", TypeBool},
		{"yesterday", TypeDatetime},
		{"not-a-uuid", TypeUUID},
		{uint64(1 << 63), TypeInteger},
		{struct{}{}, TypeBinary},
	} {
		_, err := Coerce(tc.in, tc.hint)
		assert.Error(t, err, "%v as %s", tc.in, tc.hint)
	}
}

func TestSameValue(t *testing.T) {
	assert.True(t, sameValue(nil, nil))
	assert.False(t, sameValue(nil, 0))
	assert.True(t, sameValue(5, int64(5)))
	assert.True(t, sameValue(uint8(5), int64(5)))
	assert.False(t, sameValue(-1, uint(1)))
	assert.True(t, sameValue(1.5, float32(1.5)))
	assert.True(t, sameValue([]byte("a"), "a"))
	assert.True(t, sameValue("a", []byte("a")))
	assert.False(t, sameValue("1", 1))

	a := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.True(t, sameValue(a, a.In(time.FixedZone("x", 3600))))
}

func TestIdentityKey(t *testing.T) {
	assert.Equal(t, identityKey(int64(3)), identityKey(3))
	assert.Equal(t, identityKey(uint16(3)), identityKey(3.0))
	assert.Equal(t, identityKey([]byte("a")), identityKey("a"))
	assert.NotEqual(t, identityKey(nil), identityKey(""))
	assert.NotEqual(t, identityKey(1, 23), identityKey(12, 3))
}
