package builder

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/marshallshelly/pebble-api/pkg/registry"
	"github.com/marshallshelly/pebble-api/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type user struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Age    int64   `json:"age"`
	Score  float64 `json:"score"`
	Active bool    `json:"active"`
}

func TestRoundTrip(t *testing.T) {
	table := registry.NewTableMapping(testEntity())

	cases := []user{
		{ID: "1", Name: "Ann", Age: 30, Score: 4.5, Active: true},
		{ID: "2", Name: "", Age: 0, Score: 0, Active: false},
		{ID: "3", Name: "Zoë", Age: -12, Score: 3, Active: true},
		{ID: "4", Name: "Big", Age: 1 << 53, Score: -0.125, Active: false},
	}

	for _, want := range cases {
		t.Run(want.ID, func(t *testing.T) {
			record, err := ToRecord(want)
			require.NoError(t, err)

			values, err := InsertValues(table, record)
			require.NoError(t, err)
			require.Len(t, values, len(table.Fields))

			row := make(map[string]any, len(values))
			for i, f := range table.Fields {
				row[f.Column] = values[i]
			}

			got, err := Decode[user]("users", RowToRecord(table, row))
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestRowToRecord(t *testing.T) {
	table := registry.NewTableMapping(testEntity())

	record := RowToRecord(table, map[string]any{
		"id":       []byte("7"),
		"name":     nil,
		"user_age": "41",
		"score":    "not a number",
		"active":   int64(1),
	})

	assert.Equal(t, map[string]any{
		"id":     "7",
		"name":   nil,
		"age":    int64(41),
		"active": true,
	}, record)
}

func TestRowToRecord_JSONField(t *testing.T) {
	table := registry.NewTableMapping(&schema.Entity{
		Name:   "docs",
		Fields: []schema.Field{{Name: "id", DataType: schema.String}, {Name: "body", DataType: schema.JSON}},
	})

	record := RowToRecord(table, map[string]any{"id": "1", "body": []byte(`{"tags":["a"]}`)})
	assert.Equal(t, map[string]any{"tags": []any{"a"}}, record["body"])
}

func TestDecode_RecordKeepsNumbers(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want json.Number
	}{
		{"above 2^53", int64(9007199254740993), "9007199254740993"},
		{"max int64", int64(9223372036854775807), "9223372036854775807"},
		{"json number", json.Number("-9007199254740995"), "-9007199254740995"},
		{"fraction", 0.1, "0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode[map[string]any]("counters", map[string]any{"n": tt.in})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got["n"])

			values, err := InsertValues(
				&registry.TableMapping{Fields: []registry.FieldMapping{{FieldName: "n", Column: "n", Type: schema.Integer}}},
				got,
			)
			require.NoError(t, err)
			if i, ok := tt.in.(int64); ok {
				assert.Equal(t, i, values[0])
			}
		})
	}
}

func TestDecode_ErrorListsFields(t *testing.T) {
	_, err := Decode[user]("users", map[string]any{"id": "1", "age": "old"})
	require.Error(t, err)

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Contains(t, err.Error(), "Error deserializing entity 'users'")
	assert.Contains(t, err.Error(), "Fields available: age, id")
}

func TestUpdateValues(t *testing.T) {
	table := registry.NewTableMapping(testEntity())

	values, err := UpdateValues(table, "9", map[string]any{"id": "9", "name": "Bo", "age": 12.0})
	require.NoError(t, err)
	assert.Equal(t, []any{"Bo", int64(12), nil, nil, "9"}, values)
}

func TestBindValue(t *testing.T) {
	tests := []struct {
		name    string
		dt      schema.DataType
		in      any
		want    any
		wantErr bool
	}{
		{"nil", schema.String, nil, nil, false},
		{"string", schema.String, "x", "x", false},
		{"integral float for integer", schema.Integer, 3.0, int64(3), false},
		{"float stays float", schema.Float, 3.0, 3.0, false},
		{"bool", schema.Boolean, true, true, false},
		{"json object", schema.JSON, map[string]any{"a": 1.0}, `{"a":1}`, false},
		{"json text passthrough", schema.JSON, `[1,2]`, `[1,2]`, false},
		{"object for string field", schema.String, map[string]any{"a": 1.0}, nil, true},
		{"array for integer field", schema.Integer, []any{1.0}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BindValue(tt.dt, tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedValue)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
