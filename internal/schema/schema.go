// Package schema builds the JSON Schema parameter definitions of the native
// tools with a small fluent API.
//
//	params := schema.Object().
//		Field("cmd", schema.Array(schema.String()).MinItems(1).Required()).
//		Field("timeout", schema.Int().Min(1)).
//		MustBuild()
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// Builder is implemented by every schema builder.
type Builder interface {
	// Build validates and serializes the schema.
	Build() (json.RawMessage, error)
	node() *node
}

// node is the serialized form of a schema.
type node struct {
	Type        string           `json:"type"`
	Description string           `json:"description,omitempty"`
	Enum        []any            `json:"enum,omitempty"`
	Minimum     *float64         `json:"minimum,omitempty"`
	Items       *node            `json:"items,omitempty"`
	MinItems    *int             `json:"minItems,omitempty"`
	Properties  map[string]*node `json:"properties,omitempty"`
	Required    []string         `json:"required,omitempty"`
}

// ErrNilItems is returned when an array has no items schema.
var ErrNilItems = errors.New("schema: array requires items schema")

// ValidationError reports where a schema is inconsistent.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("field %q: %v", e.Field, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (n *node) validate() error {
	switch n.Type {
	case "array":
		if n.Items == nil {
			return ErrNilItems
		}
		return n.Items.validate()
	case "object":
		for name, prop := range n.Properties {
			if err := prop.validate(); err != nil {
				return &ValidationError{Field: name, Err: err}
			}
		}
	}
	return nil
}

func build(n *node) (json.RawMessage, error) {
	if err := n.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(n)
}

func mustBuild(n *node) json.RawMessage {
	data, err := build(n)
	if err != nil {
		panic(err)
	}
	return data
}

// RequiredField marks a property as required in an object.
type RequiredField struct {
	builder Builder
}

// StringBuilder builds string schemas.
type StringBuilder struct{ n *node }

// String starts a string schema.
func String() *StringBuilder { return &StringBuilder{n: &node{Type: "string"}} }

// Desc sets the description.
func (b *StringBuilder) Desc(s string) *StringBuilder {
	b.n.Description = s
	return b
}

// Enum restricts the value to one of values.
func (b *StringBuilder) Enum(values ...string) *StringBuilder {
	b.n.Enum = make([]any, len(values))
	for i, v := range values {
		b.n.Enum[i] = v
	}
	return b
}

// Required marks the field as required.
func (b *StringBuilder) Required() *RequiredField { return &RequiredField{builder: b} }

// Build validates and serializes the schema.
func (b *StringBuilder) Build() (json.RawMessage, error) { return build(b.n) }

func (b *StringBuilder) node() *node { return b.n }

// IntBuilder builds integer schemas.
type IntBuilder struct{ n *node }

// Int starts an integer schema.
func Int() *IntBuilder { return &IntBuilder{n: &node{Type: "integer"}} }

// Desc sets the description.
func (b *IntBuilder) Desc(s string) *IntBuilder {
	b.n.Description = s
	return b
}

// Min sets the inclusive minimum.
func (b *IntBuilder) Min(v int) *IntBuilder {
	f := float64(v)
	b.n.Minimum = &f
	return b
}

// Required marks the field as required.
func (b *IntBuilder) Required() *RequiredField { return &RequiredField{builder: b} }

// Build validates and serializes the schema.
func (b *IntBuilder) Build() (json.RawMessage, error) { return build(b.n) }

func (b *IntBuilder) node() *node { return b.n }

// ArrayBuilder builds array schemas.
type ArrayBuilder struct{ n *node }

// Array starts an array schema of items. A nil items fails Build.
func Array(items Builder) *ArrayBuilder {
	n := &node{Type: "array"}
	if items != nil {
		n.Items = items.node()
	}
	return &ArrayBuilder{n: n}
}

// Desc sets the description.
func (b *ArrayBuilder) Desc(s string) *ArrayBuilder {
	b.n.Description = s
	return b
}

// MinItems sets the minimum length.
func (b *ArrayBuilder) MinItems(v int) *ArrayBuilder {
	b.n.MinItems = &v
	return b
}

// Required marks the field as required.
func (b *ArrayBuilder) Required() *RequiredField { return &RequiredField{builder: b} }

// Build validates and serializes the schema.
func (b *ArrayBuilder) Build() (json.RawMessage, error) { return build(b.n) }

func (b *ArrayBuilder) node() *node { return b.n }

// ObjectBuilder builds object schemas.
type ObjectBuilder struct{ n *node }

// Object starts an object schema.
func Object() *ObjectBuilder {
	return &ObjectBuilder{n: &node{Type: "object", Properties: map[string]*node{}}}
}

// Desc sets the description.
func (b *ObjectBuilder) Desc(s string) *ObjectBuilder {
	b.n.Description = s
	return b
}

// Field adds a property. field is a Builder or a *RequiredField.
func (b *ObjectBuilder) Field(name string, field any) *ObjectBuilder {
	switch f := field.(type) {
	case *RequiredField:
		b.n.Properties[name] = f.builder.node()
		if !slices.Contains(b.n.Required, name) {
			b.n.Required = append(b.n.Required, name)
		}
	case Builder:
		b.n.Properties[name] = f.node()
	default:
		panic(fmt.Sprintf("schema: Field %q requires a Builder or *RequiredField, got %T", name, field))
	}
	return b
}

// Required marks the object as required when nested in another object.
func (b *ObjectBuilder) Required() *RequiredField { return &RequiredField{builder: b} }

// Build validates and serializes the schema.
func (b *ObjectBuilder) Build() (json.RawMessage, error) { return build(b.n) }

// MustBuild is like Build but panics on error. Use it for schemas fixed at
// compile time.
func (b *ObjectBuilder) MustBuild() json.RawMessage { return mustBuild(b.n) }

func (b *ObjectBuilder) node() *node { return b.n }
