// Package api defines the transport-neutral request, response and error
// types exchanged between the transport, the router and entity handlers.
package api

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/marshallshelly/pebble-api/pkg/datasource"
	"github.com/marshallshelly/pebble-api/pkg/schema"
)

// Request is one inbound call, already stripped of scheme and host.
type Request struct {
	Method  schema.HTTPMethod
	Path    string
	Params  map[string]string
	Query   map[string]string
	Headers map[string]string
	Body    *string
}

// NewRequest builds a request with an optional body. An empty body is absent.
func NewRequest(method schema.HTTPMethod, path string, body string) *Request {
	r := &Request{
		Method:  method,
		Path:    path,
		Params:  make(map[string]string),
		Query:   make(map[string]string),
		Headers: make(map[string]string),
	}
	if body != "" {
		r.Body = &body
	}
	return r
}

// Param returns a path parameter.
func (r *Request) Param(name string) (string, bool) {
	v, ok := r.Params[name]
	return v, ok
}

// BodyText returns the trimmed body, or "" when absent.
func (r *Request) BodyText() string {
	if r.Body == nil {
		return ""
	}
	return strings.TrimSpace(*r.Body)
}

// Segments returns the non-empty path segments.
func (r *Request) Segments() []string {
	var out []string
	for _, s := range strings.Split(r.Path, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// BodyKind discriminates the response body variants.
type BodyKind int

const (
	BodySingle BodyKind = iota + 1
	BodyList
	BodyJSON
)

// Body is a response payload: one record, a list of records or arbitrary JSON.
type Body struct {
	Kind   BodyKind
	Single datasource.Record
	List   []datasource.Record
	JSON   any
}

// Single wraps one record.
func Single(r datasource.Record) *Body {
	return &Body{Kind: BodySingle, Single: r}
}

// List wraps a list of records. A nil list serializes as [].
func List(rs []datasource.Record) *Body {
	if rs == nil {
		rs = []datasource.Record{}
	}
	return &Body{Kind: BodyList, List: rs}
}

// JSON wraps an arbitrary JSON value.
func JSON(v any) *Body {
	return &Body{Kind: BodyJSON, JSON: v}
}

// Value returns the payload to serialize.
func (b *Body) Value() any {
	switch b.Kind {
	case BodySingle:
		return b.Single
	case BodyList:
		return b.List
	}
	return b.JSON
}

// MarshalJSON implements json.Marshaler.
func (b *Body) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Value())
}

// Response is the result of one handler invocation. A nil Body means no content.
type Response struct {
	Status  int
	Headers map[string]string
	Body    *Body
}

// DefaultHeaders returns the headers set on every response.
func DefaultHeaders() map[string]string {
	return map[string]string{"Content-Type": "application/json"}
}

// NewResponse builds a response with the default headers.
func NewResponse(status int, body *Body) *Response {
	return &Response{Status: status, Headers: DefaultHeaders(), Body: body}
}

// ErrorResponse converts any error into a response with body {"error": msg}.
func ErrorResponse(err error) *Response {
	return NewResponse(StatusCode(err), JSON(map[string]string{"error": err.Error()}))
}

// Encode serializes the body, or returns nil when there is none.
func (r *Response) Encode() ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	return json.Marshal(r.Body)
}

// EndpointHandler executes the full request pipeline of one endpoint.
// Handlers must be safe for concurrent use.
type EndpointHandler func(ctx context.Context, req *Request) (*Response, error)

// EntityAPI pairs an entity's datasource with its endpoint handlers.
type EntityAPI struct {
	Entity     *schema.Entity
	DataSource datasource.DataSource[datasource.Record]
	Endpoints  map[string]EndpointHandler
}

// Key builds an endpoint key "<METHOD>:<path>" with no leading slash.
func Key(method schema.HTTPMethod, path string) string {
	return strings.ToUpper(string(method)) + ":" + strings.TrimLeft(path, "/")
}
