package autotool

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerce(t *testing.T) {
	tests := []struct {
		name string
		typ  TypeTag
		in   any
		want any
	}{
		{"string", TypeString, "abc", "abc"},
		{"number to string", TypeString, json.Number("42"), "42"},
		{"bool to string", TypeString, true, "true"},
		{"integer", TypeInteger, json.Number("7"), int64(7)},
		{"integral float", TypeInteger, 3.0, int64(3)},
		{"integer text", TypeInteger, " 12 ", int64(12)},
		{"number", TypeNumber, json.Number("1.5"), 1.5},
		{"number text", TypeNumber, "2.25", 2.25},
		{"bool", TypeBoolean, false, false},
		{"bool word", TypeBoolean, "Yes", true},
		{"bool digit", TypeBoolean, json.Number("0"), false},
		{"bytes from text", TypeBytes, "hello", []byte("hello")},
		{"collection", TypeCollection, []any{"a"}, []any{"a"}},
		{"collection text", TypeCollection, `[1, "b"]`, []any{json.Number("1"), "b"}},
		{"mapping", TypeMapping, map[string]any{"k": "v"}, map[string]any{"k": "v"}},
		{"mapping text", TypeMapping, `{"k": true}`, map[string]any{"k": true}},
		{"unknown passes through", TypeUnknown, json.Number("5"), int64(5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.typ, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerce_Errors(t *testing.T) {
	tests := []struct {
		name string
		typ  TypeTag
		in   any
	}{
		{"fractional integer", TypeInteger, 1.5},
		{"integer word", TypeInteger, "twelve"},
		{"number from bool", TypeNumber, true},
		{"bool from 2", TypeBoolean, json.Number("2")},
		{"bool word", TypeBoolean, "maybe"},
		{"bytes from number", TypeBytes, json.Number("1")},
		{"collection from object", TypeCollection, map[string]any{}},
		{"mapping from bad text", TypeMapping, "{"},
		{"mapping from null text", TypeMapping, "null"},
		{"string from array", TypeString, []any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Coerce(tt.typ, tt.in)
			require.Error(t, err)
			assert.Contains(t, err.Error(), string(tt.typ))
		})
	}
}

func TestBindArguments(t *testing.T) {
	params := []ParameterDescriptor{
		{Name: "id", Type: TypeInteger, Required: true},
		{Name: "label", Type: TypeString, HasDefault: true, Default: "none"},
		{Name: "note", Type: TypeString},
		{Name: "tags", Type: TypeString, Variadic: true},
	}

	args, err := bindArguments("t", params, json.RawMessage(`{"id": 3, "tags": ["a", "b"]}`))
	require.NoError(t, err)
	assert.Equal(t, []any{int64(3), "none", nil}, args.Positional)
	assert.Equal(t, map[string]any{"id": int64(3), "label": "none"}, args.Named)
	assert.Equal(t, []any{"a", "b"}, args.Variadic)

	args, err = bindArguments("t", params, json.RawMessage(`{"id": "4", "tags": "solo"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(4), args.Named["id"])
	assert.Equal(t, []any{"solo"}, args.Variadic)
}

func TestBindArguments_Errors(t *testing.T) {
	params := []ParameterDescriptor{
		{Name: "id", Type: TypeInteger, Required: true},
		{Name: "tags", Type: TypeInteger, Variadic: true},
	}
	tests := []struct {
		name  string
		raw   string
		param string
	}{
		{"missing", `{}`, "id"},
		{"null counts as missing", `{"id": null}`, "id"},
		{"wrong type", `{"id": "x"}`, "id"},
		{"unknown argument", `{"id": 1, "extra": true}`, "extra"},
		{"variadic element", `{"id": 1, "tags": [1, "x"]}`, "tags"},
		{"not an object", `[1]`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := bindArguments("root_get", params, json.RawMessage(tt.raw))
			require.Error(t, err)
			var e *Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, CoercionError, e.Kind)
			assert.Equal(t, "root_get", e.Tool)
			assert.Equal(t, tt.param, e.Param)
		})
	}
}

func TestBindArguments_EmptyInput(t *testing.T) {
	for _, raw := range []string{"", "null", "  "} {
		args, err := bindArguments("t", nil, json.RawMessage(raw))
		require.NoError(t, err, raw)
		assert.Empty(t, args.Positional)
	}
}
