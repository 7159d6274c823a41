package model

import (
	"fmt"
	"strings"
)

// Model is a mapped type: a named set of properties and relationships
// stored in one table.
type Model struct {
	name          string
	storage       string
	parent        *Model
	properties    []*Property
	relationships []*Relationship
	defaultOrder  map[string][]OrderSpec
}

// OrderSpec is one entry of a model's default order.
type OrderSpec struct {
	Property   *Property
	Descending bool
}

// DefaultRepository is the repository name used when no per-repository
// default order is declared.
const DefaultRepository = "default"

// Option configures a model at construction.
type Option func(*Model)

// WithStorage sets the table name.
func WithStorage(name string) Option {
	return func(m *Model) {
		m.storage = name
	}
}

// WithParent declares m as a descendant of parent in a single-table
// inheritance hierarchy. Descendants share the parent's table and properties.
func WithParent(parent *Model) Option {
	return func(m *Model) {
		m.parent = parent
	}
}

// New creates a model.
func New(name string, opts ...Option) *Model {
	m := &Model{
		name:         name,
		defaultOrder: make(map[string][]OrderSpec),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns the model name.
func (m *Model) Name() string { return m.name }

func (m *Model) String() string { return m.name }

// Parent returns the inheritance parent, or nil.
func (m *Model) Parent() *Model { return m.parent }

// Root returns the base of m's inheritance hierarchy.
func (m *Model) Root() *Model {
	root := m
	for root.parent != nil {
		root = root.parent
	}
	return root
}

// StorageName returns the table name. Descendants without an explicit
// storage name use their root's; the fallback is the lowercased model name
// with an "s" suffix.
func (m *Model) StorageName() string {
	for cur := m; cur != nil; cur = cur.parent {
		if cur.storage != "" {
			return cur.storage
		}
	}
	return strings.ToLower(m.Root().name) + "s"
}

// Descends reports whether m is other or inherits from it.
func (m *Model) Descends(other *Model) bool {
	for cur := m; cur != nil; cur = cur.parent {
		if cur == other {
			return true
		}
	}
	return false
}

// AddProperty declares a property.
func (m *Model) AddProperty(name string, primitive Primitive, opts ...PropertyOption) (*Property, error) {
	if _, exists := m.Property(name); exists {
		return nil, fmt.Errorf("%w: %s.%s", ErrDuplicateProperty, m.name, name)
	}
	p := &Property{model: m, name: name, field: name, primitive: primitive}
	for _, opt := range opts {
		opt(p)
	}
	m.properties = append(m.properties, p)
	return p, nil
}

// Properties returns all properties, ancestors first, in declaration order.
func (m *Model) Properties() []*Property {
	var props []*Property
	if m.parent != nil {
		props = m.parent.Properties()
	}
	return append(props, m.properties...)
}

// Property looks a property up by name, including inherited ones.
func (m *Model) Property(name string) (*Property, bool) {
	for cur := m; cur != nil; cur = cur.parent {
		for _, p := range cur.properties {
			if p.name == name {
				return p, true
			}
		}
	}
	return nil, false
}

// HasProperty reports whether p belongs to m or one of its ancestors.
func (m *Model) HasProperty(p *Property) bool {
	return p != nil && m.Descends(p.model)
}

// Key returns the key properties in declaration order.
func (m *Model) Key() []*Property {
	var key []*Property
	for _, p := range m.Properties() {
		if p.key {
			key = append(key, p)
		}
	}
	return key
}

// KeyOf returns rec's key tuple.
func (m *Model) KeyOf(rec Record) (Key, bool) {
	return keyOf(rec, m.Key())
}

// BelongsTo declares a many-to-one relationship. sourceKey names the
// foreign key properties on m; they reference target's key.
func (m *Model) BelongsTo(name string, target *Model, sourceKey ...string) (*Relationship, error) {
	return m.AddRelationship(name, ManyToOne, target, sourceKey, propertyNames(target.Key()))
}

// HasMany declares a one-to-many relationship. targetKey names the foreign
// key properties on target; they reference m's key.
func (m *Model) HasMany(name string, target *Model, targetKey ...string) (*Relationship, error) {
	return m.AddRelationship(name, OneToMany, target, propertyNames(m.Key()), targetKey)
}

// AddRelationship declares a relationship with explicit keys.
func (m *Model) AddRelationship(name string, c Cardinality, target *Model, sourceKey, targetKey []string) (*Relationship, error) {
	if _, exists := m.Relationship(name); exists || name == SelfRelationshipName {
		return nil, fmt.Errorf("%w: %s.%s", ErrDuplicateRelationship, m.name, name)
	}
	r, err := newRelationship(name, c, m, target, sourceKey, targetKey)
	if err != nil {
		return nil, err
	}
	m.relationships = append(m.relationships, r)
	return r, nil
}

// Relationships returns all relationships, ancestors first.
func (m *Model) Relationships() []*Relationship {
	var rels []*Relationship
	if m.parent != nil {
		rels = m.parent.Relationships()
	}
	return append(rels, m.relationships...)
}

// Relationship looks a relationship up by name, including inherited ones.
func (m *Model) Relationship(name string) (*Relationship, bool) {
	for cur := m; cur != nil; cur = cur.parent {
		for _, r := range cur.relationships {
			if r.name == name {
				return r, true
			}
		}
	}
	return nil, false
}

// SelfRelationship returns the one-to-many pseudo-relationship from m to
// itself keyed on m's own key. Subquery rewriting compares a model's key
// against the keys selected by a nested query through it.
func (m *Model) SelfRelationship() *Relationship {
	key := m.Key()
	return &Relationship{
		name:        SelfRelationshipName,
		cardinality: OneToMany,
		source:      m,
		target:      m,
		sourceKey:   key,
		targetKey:   key,
	}
}

// SetDefaultOrder declares the default order for a repository.
// Use DefaultRepository for the fallback order.
func (m *Model) SetDefaultOrder(repository string, specs ...OrderSpec) {
	m.defaultOrder[repository] = specs
}

// DefaultOrder returns the order used by queries that do not specify one:
// the repository's declared order, else the DefaultRepository order, else
// the nearest ancestor's, else the key ascending.
func (m *Model) DefaultOrder(repository string) []OrderSpec {
	for cur := m; cur != nil; cur = cur.parent {
		if specs, ok := cur.defaultOrder[repository]; ok {
			return specs
		}
		if specs, ok := cur.defaultOrder[DefaultRepository]; ok {
			return specs
		}
	}
	var specs []OrderSpec
	for _, p := range m.Key() {
		specs = append(specs, OrderSpec{Property: p})
	}
	return specs
}

func propertyNames(props []*Property) []string {
	names := make([]string, len(props))
	for i, p := range props {
		names[i] = p.name
	}
	return names
}
