// Package schema declares entities, relations and indices and finalizes them
// into a Descriptor consumed by the storage layer.
//
// A Registry is built once during single-threaded startup. ToDescriptor freezes
// it; every later Define call fails with ErrSchemaFrozen. The frozen registry and
// its descriptor are read-only and safe to share.
package schema

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jinzhu/inflection"
)

// EntityHandle refers to an entity declared on a Registry.
type EntityHandle struct {
	name string
}

// Name returns the entity name.
func (h EntityHandle) Name() string { return h.name }

// TimestampsOptions configures created_at/updated_at bookkeeping.
type TimestampsOptions struct {
	Entities           []string
	SetUpdatedOnCreate bool
}

type entity struct {
	name       string
	fields     []Field
	timestamps *TimestampsConfig
	children   []string
}

// Registry collects schema declarations.
type Registry struct {
	entities  []*entity
	byName    map[string]*entity
	relations []RelationDescriptor
	indices   []IndexDescriptor
	frozen    *Descriptor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*entity)}
}

// DefineEntity declares a named entity with the given fields.
func (r *Registry) DefineEntity(name string, fields ...Field) (EntityHandle, error) {
	if r.frozen != nil {
		return EntityHandle{}, fmt.Errorf("defining entity %q: %w", name, ErrSchemaFrozen)
	}
	if name == "" {
		return EntityHandle{}, fmt.Errorf("%w: entity name is empty", ErrInvalidField)
	}
	if _, ok := r.byName[name]; ok {
		return EntityHandle{}, fmt.Errorf("%w: entity %q already defined", ErrConstraintConflict, name)
	}

	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if err := f.validate(); err != nil {
			return EntityHandle{}, fmt.Errorf("entity %q: %w", name, err)
		}
		if seen[f.name] {
			return EntityHandle{}, fmt.Errorf("%w: entity %q declares field %q twice", ErrConstraintConflict, name, f.name)
		}
		seen[f.name] = true
	}

	e := &entity{name: name, fields: append([]Field(nil), fields...)}
	r.entities = append(r.entities, e)
	r.byName[name] = e
	return EntityHandle{name: name}, nil
}

// DefineRelation declares a reference from child to parent. The foreign key
// column on the child is named after the singular form of the parent, e.g.
// "replies" -> "reply_id". The parent records the child in its children set.
func (r *Registry) DefineRelation(child, parent EntityHandle, c Cardinality) error {
	if r.frozen != nil {
		return fmt.Errorf("defining relation %s -> %s: %w", child.name, parent.name, ErrSchemaFrozen)
	}
	ce, err := r.lookup(child)
	if err != nil {
		return err
	}
	pe, err := r.lookup(parent)
	if err != nil {
		return err
	}
	if c != ManyToOne && c != OneToOne {
		return fmt.Errorf("%w: unsupported cardinality %q", ErrInvalidField, c)
	}

	column := RelationColumn(pe.name)
	for _, f := range ce.fields {
		if f.name == column {
			return fmt.Errorf("%w: relation column %s.%s clashes with a declared field", ErrConstraintConflict, ce.name, column)
		}
	}
	for _, rel := range r.relations {
		if rel.Child == ce.name && rel.Column == column {
			return fmt.Errorf("%w: relation %s -> %s already defined", ErrConstraintConflict, ce.name, pe.name)
		}
	}

	r.relations = append(r.relations, RelationDescriptor{
		Child:       ce.name,
		Parent:      pe.name,
		Cardinality: c,
		Column:      column,
	})
	if !slices.Contains(pe.children, ce.name) {
		pe.children = append(pe.children, ce.name)
	}

	if c == OneToOne {
		return r.addIndex(ce, []string{column}, true)
	}
	return nil
}

// DefineIndex declares an index over fields of the entity. Declaring a second
// index over the same set of fields fails with ErrConstraintConflict.
func (r *Registry) DefineIndex(h EntityHandle, fields []string, unique bool) error {
	if r.frozen != nil {
		return fmt.Errorf("defining index on %s: %w", h.name, ErrSchemaFrozen)
	}
	e, err := r.lookup(h)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return fmt.Errorf("%w: index on %s has no fields", ErrInvalidField, e.name)
	}
	for _, name := range fields {
		if !r.hasColumn(e, name) {
			return fmt.Errorf("%w: %s.%s", ErrUnknownField, e.name, name)
		}
	}
	return r.addIndex(e, fields, unique)
}

func (r *Registry) addIndex(e *entity, fields []string, unique bool) error {
	key := indexKey(fields)
	for _, idx := range r.indices {
		if idx.Entity == e.name && indexKey(idx.Fields) == key {
			return fmt.Errorf("%w: %s already indexed on (%s)", ErrConstraintConflict, e.name, strings.Join(fields, ", "))
		}
	}
	r.indices = append(r.indices, IndexDescriptor{
		Name:   "idx_" + e.name + "_" + strings.Join(fields, "_"),
		Entity: e.name,
		Fields: append([]string(nil), fields...),
		Unique: unique,
	})
	return nil
}

// EnableTimestamps adds created_at/updated_at bookkeeping to the named entities.
func (r *Registry) EnableTimestamps(opts TimestampsOptions) error {
	if r.frozen != nil {
		return fmt.Errorf("enabling timestamps: %w", ErrSchemaFrozen)
	}
	for _, name := range opts.Entities {
		if _, ok := r.byName[name]; !ok {
			return fmt.Errorf("timestamps: %w: %s", ErrUnknownEntity, name)
		}
	}
	for _, name := range opts.Entities {
		r.byName[name].timestamps = &TimestampsConfig{SetUpdatedOnCreate: opts.SetUpdatedOnCreate}
	}
	return nil
}

// Children returns the entities holding a relation to the named parent.
func (r *Registry) Children(name string) []string {
	e, ok := r.byName[name]
	if !ok {
		return nil
	}
	return append([]string(nil), e.children...)
}

// ToDescriptor finalizes the registry. Later calls return the same descriptor.
func (r *Registry) ToDescriptor() *Descriptor {
	if r.frozen != nil {
		return r.frozen
	}

	d := &Descriptor{
		Entities:  make([]EntityDescriptor, 0, len(r.entities)),
		Relations: append([]RelationDescriptor(nil), r.relations...),
		Indices:   make([]IndexDescriptor, 0, len(r.indices)),
	}
	for _, e := range r.entities {
		ed := EntityDescriptor{
			Name:     e.name,
			Fields:   make([]FieldDescriptor, 0, len(e.fields)),
			Children: append([]string(nil), e.children...),
		}
		for _, f := range e.fields {
			ed.Fields = append(ed.Fields, f.descriptor())
		}
		if e.timestamps != nil {
			ts := *e.timestamps
			ed.Timestamps = &ts
		}
		d.Entities = append(d.Entities, ed)
	}
	for _, idx := range r.indices {
		idx.Fields = append([]string(nil), idx.Fields...)
		d.Indices = append(d.Indices, idx)
	}

	r.frozen = d
	return d
}

// RelationColumn returns the foreign key column name used for a parent entity.
func RelationColumn(parent string) string {
	return inflection.Singular(parent) + "_id"
}

func (r *Registry) lookup(h EntityHandle) (*entity, error) {
	e, ok := r.byName[h.name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, h.name)
	}
	return e, nil
}

func (r *Registry) hasColumn(e *entity, name string) bool {
	if name == ColumnID {
		return true
	}
	if e.timestamps != nil && (name == ColumnCreatedAt || name == ColumnUpdatedAt) {
		return true
	}
	for _, f := range e.fields {
		if f.name == name {
			return true
		}
	}
	for _, rel := range r.relations {
		if rel.Child == e.name && rel.Column == name {
			return true
		}
	}
	return false
}

// indexKey normalizes a field list so that (a, b) and (b, a) compare equal.
func indexKey(fields []string) string {
	sorted := slices.Clone(fields)
	slices.Sort(sorted)
	return strings.Join(sorted, "\x00")
}
