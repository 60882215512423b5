package builder

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/marshallshelly/pebble-api/pkg/registry"
	"github.com/marshallshelly/pebble-api/pkg/schema"
)

// ErrUnsupportedValue is returned when a value cannot be bound to a parameter.
var ErrUnsupportedValue = errors.New("unsupported value type for binding")

// DecodeError is returned when a record cannot be decoded into the entity type.
type DecodeError struct {
	Entity    string
	Available []string
	Err       error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("Error deserializing entity '%s': %v. Fields available: %s",
		e.Entity, e.Err, strings.Join(e.Available, ", "))
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// RowToRecord converts a row keyed by column into a record keyed by field name.
// Columns that are missing or cannot be read as the field's type are omitted.
func RowToRecord(table *registry.TableMapping, row map[string]any) map[string]any {
	record := make(map[string]any, len(table.Fields))
	for _, f := range table.Fields {
		raw, ok := row[f.Column]
		if !ok {
			continue
		}
		if raw == nil {
			record[f.FieldName] = nil
			continue
		}
		if v, ok := extract(f.Type, raw); ok {
			record[f.FieldName] = v
		}
	}
	return record
}

// Decode converts a record into T through its JSON representation.
func Decode[T any](entity string, record map[string]any) (T, error) {
	var out T
	data, err := json.Marshal(record)
	if err != nil {
		return out, &DecodeError{Entity: entity, Available: slices.Sorted(maps.Keys(record)), Err: err}
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return out, &DecodeError{Entity: entity, Available: slices.Sorted(maps.Keys(record)), Err: err}
	}
	return out, nil
}

// ToRecord serializes an entity value into a JSON object.
func ToRecord[T any](item T) (map[string]any, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize entity: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var record map[string]any
	if err := dec.Decode(&record); err != nil {
		return nil, fmt.Errorf("entity must serialize to a JSON object: %w", err)
	}
	return record, nil
}

// InsertValues returns one bound value per mapped field, in mapping order.
// Missing keys bind as NULL.
func InsertValues(table *registry.TableMapping, record map[string]any) ([]any, error) {
	values := make([]any, 0, len(table.Fields))
	for _, f := range table.Fields {
		v, err := BindValue(f.Type, record[f.FieldName])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.FieldName, err)
		}
		values = append(values, v)
	}
	return values, nil
}

// UpdateValues returns one bound value per mapped field except the primary
// key, followed by the id for the WHERE clause.
func UpdateValues(table *registry.TableMapping, id string, record map[string]any) ([]any, error) {
	values := make([]any, 0, len(table.Fields))
	for _, f := range table.Fields {
		if f.FieldName == table.PrimaryKey {
			continue
		}
		v, err := BindValue(f.Type, record[f.FieldName])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.FieldName, err)
		}
		values = append(values, v)
	}
	return append(values, id), nil
}

// BindValue converts a decoded JSON value into a driver argument.
func BindValue(dt schema.DataType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if dt == schema.JSON {
		if s, ok := v.(string); ok && json.Valid([]byte(s)) {
			return s, nil
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedValue, err)
		}
		return string(data), nil
	}

	switch val := v.(type) {
	case string:
		return val, nil
	case bool:
		return val, nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedValue, val)
		}
		return f, nil
	case float64:
		if dt == schema.Integer && val == math.Trunc(val) {
			return int64(val), nil
		}
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int64:
		return val, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
}

func extract(dt schema.DataType, raw any) (any, bool) {
	switch dt {
	case schema.Integer:
		return asInt(raw)
	case schema.Float:
		return asFloat(raw)
	case schema.Boolean:
		return asBool(raw)
	case schema.JSON:
		return asJSON(raw)
	case schema.Date:
		if t, ok := raw.(time.Time); ok {
			return t.Format(time.DateOnly), true
		}
	}
	return asString(raw)
}

func asString(raw any) (any, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case time.Time:
		return v.Format(time.RFC3339Nano), true
	case fmt.Stringer:
		return v.String(), true
	}
	return fmt.Sprint(raw), true
}

func asInt(raw any) (any, bool) {
	switch v := raw.(type) {
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case int16:
		return int64(v), true
	case int8:
		return int64(v), true
	case int:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return nil, false
		}
		return int64(v), true
	case uint32:
		return int64(v), true
	case float64:
		if v == math.Trunc(v) {
			return int64(v), true
		}
	case []byte:
		return asInt(string(v))
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return i, err == nil
	}
	return nil, false
}

func asFloat(raw any) (any, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case int:
		return float64(v), true
	case []byte:
		return asFloat(string(v))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return nil, false
}

func asBool(raw any) (any, bool) {
	switch v := raw.(type) {
	case bool:
		return v, true
	case int64:
		return v != 0, true
	case int32:
		return v != 0, true
	case int:
		return v != 0, true
	case []byte:
		return asBool(string(v))
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return b, err == nil
	}
	return nil, false
}

func asJSON(raw any) (any, bool) {
	var data []byte
	switch v := raw.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return raw, true
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return string(data), true
	}
	return out, true
}
