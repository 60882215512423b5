package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// DataType is the declared type of a field.
type DataType string

const (
	String   DataType = "String"
	Integer  DataType = "Integer"
	Float    DataType = "Float"
	Boolean  DataType = "Boolean"
	Date     DataType = "Date"
	DateTime DataType = "DateTime"
	Binary   DataType = "Binary"
	JSON     DataType = "JSON"
)

var dataTypes = map[string]DataType{
	"string":   String,
	"text":     String,
	"integer":  Integer,
	"int":      Integer,
	"float":    Float,
	"double":   Float,
	"boolean":  Boolean,
	"bool":     Boolean,
	"date":     Date,
	"datetime": DateTime,
	"binary":   Binary,
	"json":     JSON,
}

// ParseDataType parses a data type name case-insensitively.
func ParseDataType(s string) (DataType, error) {
	if dt, ok := dataTypes[strings.ToLower(strings.TrimSpace(s))]; ok {
		return dt, nil
	}
	return "", fmt.Errorf("unknown data type %q", s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *DataType) UnmarshalText(text []byte) error {
	dt, err := ParseDataType(string(text))
	if err != nil {
		return err
	}
	*d = dt
	return nil
}

// Accepts reports whether a decoded JSON value is compatible with the type.
// Nil is accepted for every type.
func (d DataType) Accepts(v any) bool {
	if v == nil {
		return true
	}
	switch d {
	case String, Date, DateTime, Binary:
		_, ok := v.(string)
		return ok
	case Integer:
		switch n := v.(type) {
		case float64:
			return n == math.Trunc(n)
		case json.Number:
			_, err := n.Int64()
			return err == nil
		case int, int32, int64:
			return true
		}
		return false
	case Float:
		switch v.(type) {
		case float64, float32, json.Number, int, int32, int64:
			return true
		}
		return false
	case Boolean:
		_, ok := v.(bool)
		return ok
	case JSON:
		return true
	}
	return false
}

// RelationshipType is the cardinality of a relationship.
type RelationshipType string

const (
	OneToOne   RelationshipType = "OneToOne"
	OneToMany  RelationshipType = "OneToMany"
	ManyToOne  RelationshipType = "ManyToOne"
	ManyToMany RelationshipType = "ManyToMany"
)

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *RelationshipType) UnmarshalText(text []byte) error {
	for _, rt := range []RelationshipType{OneToOne, OneToMany, ManyToOne, ManyToMany} {
		if strings.EqualFold(string(rt), string(text)) {
			*r = rt
			return nil
		}
	}
	return fmt.Errorf("unknown relationship type %q", text)
}

// HTTPMethod is an uppercase HTTP method name.
type HTTPMethod string

const (
	GET    HTTPMethod = "GET"
	POST   HTTPMethod = "POST"
	PUT    HTTPMethod = "PUT"
	PATCH  HTTPMethod = "PATCH"
	DELETE HTTPMethod = "DELETE"
)

// ParseHTTPMethod parses a method name case-insensitively.
func ParseHTTPMethod(s string) (HTTPMethod, error) {
	m := HTTPMethod(strings.ToUpper(strings.TrimSpace(s)))
	switch m {
	case GET, POST, PUT, PATCH, DELETE:
		return m, nil
	}
	return "", fmt.Errorf("unsupported HTTP method %q", s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *HTTPMethod) UnmarshalText(text []byte) error {
	parsed, err := ParseHTTPMethod(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
