// Package schema describes the entities exposed by a generated API.
package schema

import "strings"

// Entity is the static description of one exposed resource.
type Entity struct {
	Name          string         `json:"name" yaml:"name"`
	TableName     string         `json:"table_name,omitempty" yaml:"table_name,omitempty"`
	Datasource    string         `json:"datasource,omitempty" yaml:"datasource,omitempty"`
	Fields        []Field        `json:"fields" yaml:"fields"`
	Relationships []Relationship `json:"relationships,omitempty" yaml:"relationships,omitempty"`
	Endpoints     EndpointConfig `json:"endpoints" yaml:"endpoints"`

	// Authentication and Authorization are carried for clients of the
	// configuration; requests are not checked against them.
	Authentication bool          `json:"authentication" yaml:"authentication"`
	Authorization  Authorization `json:"authorization" yaml:"authorization"`

	Validations []Validation `json:"validations,omitempty" yaml:"validations,omitempty"`
	Pagination  *Pagination  `json:"pagination,omitempty" yaml:"pagination,omitempty"`
}

// Field describes one attribute of an entity.
type Field struct {
	Name         string   `json:"name" yaml:"name"`
	ColumnName   string   `json:"column_name,omitempty" yaml:"column_name,omitempty"`
	DataType     DataType `json:"data_type" yaml:"data_type"`
	Required     bool     `json:"required" yaml:"required"`
	Unique       bool     `json:"unique" yaml:"unique"`
	Searchable   bool     `json:"searchable" yaml:"searchable"`
	DefaultValue *string  `json:"default_value,omitempty" yaml:"default_value,omitempty"`
	Description  *string  `json:"description,omitempty" yaml:"description,omitempty"`
}

// Relationship links an entity to another one. It is modeled but not resolved.
type Relationship struct {
	Name               string           `json:"name" yaml:"name"`
	RelatedEntity      string           `json:"related_entity" yaml:"related_entity"`
	Type               RelationshipType `json:"type" yaml:"type"`
	ForeignKey         string           `json:"foreign_key" yaml:"foreign_key"`
	IncludeInResponses bool             `json:"include_in_responses" yaml:"include_in_responses"`
}

// EndpointConfig toggles the generated CRUD endpoints of an entity.
type EndpointConfig struct {
	GenerateCreate bool          `json:"generate_create" yaml:"generate_create"`
	GenerateRead   bool          `json:"generate_read" yaml:"generate_read"`
	GenerateUpdate bool          `json:"generate_update" yaml:"generate_update"`
	GenerateDelete bool          `json:"generate_delete" yaml:"generate_delete"`
	GenerateList   bool          `json:"generate_list" yaml:"generate_list"`
	CustomRoutes   []CustomRoute `json:"custom_routes,omitempty" yaml:"custom_routes,omitempty"`
}

// AllEndpoints returns an EndpointConfig with every CRUD endpoint enabled.
func AllEndpoints() EndpointConfig {
	return EndpointConfig{
		GenerateCreate: true,
		GenerateRead:   true,
		GenerateUpdate: true,
		GenerateDelete: true,
		GenerateList:   true,
	}
}

// CustomRoute is an extra route bound to a named hook.
type CustomRoute struct {
	Path    string     `json:"path" yaml:"path"`
	Method  HTTPMethod `json:"method" yaml:"method"`
	Handler string     `json:"handler" yaml:"handler"`
}

// Authorization holds role and permission declarations.
type Authorization struct {
	Active      bool         `json:"active" yaml:"active"`
	Roles       []Role       `json:"roles,omitempty" yaml:"roles,omitempty"`
	Permissions []Permission `json:"permissions,omitempty" yaml:"permissions,omitempty"`
}

// Role is a named authorization role.
type Role struct {
	Name        string  `json:"name" yaml:"name"`
	Description *string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Permission grants an action on a subject.
type Permission struct {
	Action  string `json:"action" yaml:"action"`
	Subject string `json:"subject" yaml:"subject"`
}

// Pagination is carried through configuration; list endpoints do not page.
type Pagination struct {
	DefaultPageSize uint32 `json:"default_page_size" yaml:"default_page_size"`
	MaxPageSize     uint32 `json:"max_page_size" yaml:"max_page_size"`
	PageParamName   string `json:"page_param_name" yaml:"page_param_name"`
	SizeParamName   string `json:"size_param_name" yaml:"size_param_name"`
}

// StorageName returns the table (or collection) name backing the entity.
func (e *Entity) StorageName() string {
	if e.TableName != "" {
		return e.TableName
	}
	return e.Name
}

// RouteKey returns the case-normalized name used for routing.
func (e *Entity) RouteKey() string {
	return NormalizeName(e.Name)
}

// Field returns the field with the given name.
func (e *Entity) Field(name string) (*Field, bool) {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return &e.Fields[i], true
		}
	}
	return nil, false
}

// SearchableFields returns the names of fields flagged as searchable.
func (e *Entity) SearchableFields() []string {
	var names []string
	for _, f := range e.Fields {
		if f.Searchable {
			names = append(names, f.Name)
		}
	}
	return names
}

// Column returns the storage column for the field.
func (f *Field) Column() string {
	if f.ColumnName != "" {
		return f.ColumnName
	}
	return f.Name
}

// NormalizeName lowercases and trims an entity or table name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
