package model

import "fmt"

// Cardinality describes which side of a relationship holds the foreign key.
type Cardinality string

const (
	// ManyToOne: the source holds the foreign key (belongs to).
	ManyToOne Cardinality = "many_to_one"

	// OneToMany: the target holds the foreign key (has many).
	OneToMany Cardinality = "one_to_many"
)

// SelfRelationshipName is the name of the pseudo-relationship linking a
// model to itself through its own key.
const SelfRelationshipName = "self"

// Relationship is a named association between two models.
//
// For related records, the source record's SourceKey values equal the
// target record's TargetKey values, whichever side holds the foreign key.
type Relationship struct {
	name        string
	cardinality Cardinality
	source      *Model
	target      *Model
	sourceKey   []*Property
	targetKey   []*Property
}

func (r *Relationship) subject() {}

// Name returns the relationship name.
func (r *Relationship) Name() string { return r.name }

// Model returns the source model (the model that declares the relationship).
func (r *Relationship) Model() *Model { return r.source }

// Source returns the model declaring the relationship.
func (r *Relationship) Source() *Model { return r.source }

// Target returns the associated model.
func (r *Relationship) Target() *Model { return r.target }

// Cardinality returns the relationship kind.
func (r *Relationship) Cardinality() Cardinality { return r.cardinality }

// SourceKey returns the key properties on the source side.
func (r *Relationship) SourceKey() []*Property { return r.sourceKey }

// TargetKey returns the key properties on the target side.
func (r *Relationship) TargetKey() []*Property { return r.targetKey }

// IsSelf reports whether r is a model's self relationship.
func (r *Relationship) IsSelf() bool {
	return r.name == SelfRelationshipName && r.source == r.target
}

func (r *Relationship) String() string {
	return r.source.name + "." + r.name
}

// Get reads the related record(s) nested under the relationship name.
func (r *Relationship) Get(rec Record) (any, bool) {
	if rec == nil {
		return nil, false
	}
	return rec.Attribute(r.name)
}

// SourceValues returns the source key tuple of rec.
// ok is false when any component is missing or nil.
func (r *Relationship) SourceValues(rec Record) (Key, bool) {
	return keyOf(rec, r.sourceKey)
}

// TargetValues returns the target key tuple of rec.
func (r *Relationship) TargetValues(rec Record) (Key, bool) {
	return keyOf(rec, r.targetKey)
}

func keyOf(rec Record, props []*Property) (Key, bool) {
	if rec == nil || len(props) == 0 {
		return nil, false
	}
	key := make(Key, len(props))
	for i, p := range props {
		v, ok := p.Get(rec)
		if !ok || v == nil {
			return nil, false
		}
		cast, err := p.Typecast(v)
		if err != nil {
			return nil, false
		}
		key[i] = cast
	}
	return key, true
}

func newRelationship(name string, c Cardinality, source, target *Model, sourceKey, targetKey []string) (*Relationship, error) {
	if len(sourceKey) != len(targetKey) || len(sourceKey) == 0 {
		return nil, fmt.Errorf("%w: %s.%s source key %v, target key %v", ErrKeyMismatch, source.name, name, sourceKey, targetKey)
	}
	r := &Relationship{name: name, cardinality: c, source: source, target: target}
	for _, k := range sourceKey {
		p, ok := source.Property(k)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no property %q for relationship %s", ErrUnknownProperty, source.name, k, name)
		}
		r.sourceKey = append(r.sourceKey, p)
	}
	for _, k := range targetKey {
		p, ok := target.Property(k)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no property %q for relationship %s", ErrUnknownProperty, target.name, k, name)
		}
		r.targetKey = append(r.targetKey, p)
	}
	return r, nil
}
