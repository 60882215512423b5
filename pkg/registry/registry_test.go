package registry

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/marshallshelly/pebble-api/pkg/schema"
)

func usersEntity() schema.Entity {
	return schema.Entity{
		Name:      "Users",
		TableName: "app_users",
		Fields: []schema.Field{
			{Name: "id", DataType: schema.String},
			{Name: "name", DataType: schema.String},
			{Name: "age", ColumnName: "user_age", DataType: schema.Integer},
		},
	}
}

func TestDetectPrimaryKey(t *testing.T) {
	tests := []struct {
		name   string
		fields []schema.Field
		want   string
	}{
		{
			name:   "field named id",
			fields: []schema.Field{{Name: "email", Unique: true, Required: true}, {Name: "id"}},
			want:   "id",
		},
		{
			name:   "unique and required",
			fields: []schema.Field{{Name: "name"}, {Name: "sku", Unique: true}, {Name: "code", Unique: true, Required: true}},
			want:   "code",
		},
		{
			name:   "fallback",
			fields: []schema.Field{{Name: "name"}},
			want:   "id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := schema.Entity{Name: "things", Fields: tt.fields}
			if got := DetectPrimaryKey(&e); got != tt.want {
				t.Errorf("DetectPrimaryKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewTableMapping(t *testing.T) {
	e := usersEntity()
	m := NewTableMapping(&e)

	if m.TableName != "app_users" {
		t.Errorf("expected table name 'app_users', got '%s'", m.TableName)
	}
	if m.PrimaryKey != "id" {
		t.Errorf("expected primary key 'id', got '%s'", m.PrimaryKey)
	}

	wantCols := []string{"id", "name", "user_age"}
	if got := m.Columns(); !reflect.DeepEqual(got, wantCols) {
		t.Errorf("Columns() = %v, want %v", got, wantCols)
	}

	f, ok := m.Field("age")
	if !ok || f.Column != "user_age" || f.Type != schema.Integer {
		t.Errorf("unexpected field mapping for age: %+v", f)
	}
}

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry()
	e := usersEntity()
	r.Register(&e)

	for _, name := range []string{"users", "Users", " USERS ", "app_users", "APP_USERS"} {
		t.Run(name, func(t *testing.T) {
			m, err := r.Lookup(name)
			if err != nil {
				t.Fatalf("Lookup(%q) failed: %v", name, err)
			}
			if m.EntityName != "Users" {
				t.Errorf("expected entity 'Users', got '%s'", m.EntityName)
			}
		})
	}

	t.Run("unknown entity", func(t *testing.T) {
		_, err := r.Lookup("orders")

		var nf *NotFoundError
		if !errors.As(err, &nf) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
		if !strings.Contains(err.Error(), "orders") || !strings.Contains(err.Error(), "app_users") {
			t.Errorf("error should name the entity and known keys: %v", err)
		}
	})
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	e := usersEntity()
	r.Register(&e)
	r.Register(&e)

	if r.Len() != 1 {
		t.Errorf("expected 1 mapping after re-registration, got %d", r.Len())
	}

	want := []string{"Users", "app_users", "users"}
	if got := r.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}

	r.Clear()
	if r.Has("users") {
		t.Error("expected registry to be empty after Clear")
	}
}
