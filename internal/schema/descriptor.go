package schema

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Column names every entity table carries or may carry.
const (
	ColumnID        = "id"
	ColumnCreatedAt = "created_at"
	ColumnUpdatedAt = "updated_at"
)

func isReservedColumn(name string) bool {
	return name == ColumnID || name == ColumnCreatedAt || name == ColumnUpdatedAt
}

// Cardinality describes a relation from child to parent.
type Cardinality string

const (
	ManyToOne Cardinality = "many_to_one"
	OneToOne  Cardinality = "one_to_one"
)

// Descriptor is the finalized, serializable form of a Registry.
type Descriptor struct {
	Entities  []EntityDescriptor   `json:"entities" yaml:"entities"`
	Relations []RelationDescriptor `json:"relations" yaml:"relations"`
	Indices   []IndexDescriptor    `json:"indices" yaml:"indices"`
}

// EntityDescriptor lists an entity's declared fields in declaration order.
type EntityDescriptor struct {
	Name       string            `json:"name" yaml:"name"`
	Fields     []FieldDescriptor `json:"fields" yaml:"fields"`
	Timestamps *TimestampsConfig `json:"timestamps,omitempty" yaml:"timestamps,omitempty"`
	Children   []string          `json:"children,omitempty" yaml:"children,omitempty"`
}

// TimestampsConfig marks an entity as carrying created_at/updated_at columns.
type TimestampsConfig struct {
	SetUpdatedOnCreate bool `json:"set_updated_on_create" yaml:"set_updated_on_create"`
}

// FieldDescriptor is a field's type plus its write-time constraints.
type FieldDescriptor struct {
	Name     string    `json:"name" yaml:"name"`
	Type     FieldType `json:"type" yaml:"type"`
	Required bool      `json:"required" yaml:"required"`
	Default  any       `json:"default,omitempty" yaml:"default,omitempty"`
	Values   []string  `json:"values,omitempty" yaml:"values,omitempty"`
}

// HasDefault reports whether the field declares a default value.
func (f FieldDescriptor) HasDefault() bool { return f.Default != nil }

// RelationDescriptor is a foreign key from Child.Column to Parent.id.
type RelationDescriptor struct {
	Child       string      `json:"child" yaml:"child"`
	Parent      string      `json:"parent" yaml:"parent"`
	Cardinality Cardinality `json:"cardinality" yaml:"cardinality"`
	Column      string      `json:"column" yaml:"column"`
}

// IndexDescriptor is a lookup index over one or more columns of an entity.
type IndexDescriptor struct {
	Name   string   `json:"name" yaml:"name"`
	Entity string   `json:"entity" yaml:"entity"`
	Fields []string `json:"fields" yaml:"fields"`
	Unique bool     `json:"unique" yaml:"unique"`
}

// Entity returns the named entity.
func (d *Descriptor) Entity(name string) (*EntityDescriptor, bool) {
	for i := range d.Entities {
		if d.Entities[i].Name == name {
			return &d.Entities[i], true
		}
	}
	return nil, false
}

// RelationsFrom returns the relations declared with child as the child entity.
func (d *Descriptor) RelationsFrom(child string) []RelationDescriptor {
	var out []RelationDescriptor
	for _, r := range d.Relations {
		if r.Child == child {
			out = append(out, r)
		}
	}
	return out
}

// IndicesOn returns the indices declared on the entity.
func (d *Descriptor) IndicesOn(entity string) []IndexDescriptor {
	var out []IndexDescriptor
	for _, idx := range d.Indices {
		if idx.Entity == entity {
			out = append(out, idx)
		}
	}
	return out
}

// Field returns the named field of the entity.
func (e *EntityDescriptor) Field(name string) (*FieldDescriptor, bool) {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return &e.Fields[i], true
		}
	}
	return nil, false
}

// WriteJSON encodes the descriptor as indented JSON.
func (d *Descriptor) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("encoding descriptor as json: %w", err)
	}
	return nil
}

// WriteYAML encodes the descriptor as YAML.
func (d *Descriptor) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("encoding descriptor as yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encoding descriptor as yaml: %w", err)
	}
	return nil
}
