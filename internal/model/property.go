package model

// Subject is a property or relationship that can be tested by a comparison.
// The interface is sealed to this package.
type Subject interface {
	// Name is the subject's name within its model.
	Name() string

	// Model is the model that declares the subject.
	Model() *Model

	// String is the qualified name, e.g. "User.name".
	String() string

	subject()
}

// Property is a named, typed attribute of a model.
type Property struct {
	model     *Model
	name      string
	field     string
	primitive Primitive
	key       bool
	required  bool
	lazy      bool
}

// PropertyOption configures a property at declaration.
type PropertyOption func(*Property)

// AsKey marks the property as part of the model's key.
// Key properties are implicitly required.
func AsKey() PropertyOption {
	return func(p *Property) {
		p.key = true
		p.required = true
	}
}

// AsRequired disallows nil values.
func AsRequired() PropertyOption {
	return func(p *Property) {
		p.required = true
	}
}

// AsLazy excludes the property from default field lists.
func AsLazy() PropertyOption {
	return func(p *Property) {
		p.lazy = true
	}
}

// WithField overrides the storage column name (defaults to the property name).
func WithField(field string) PropertyOption {
	return func(p *Property) {
		p.field = field
	}
}

func (p *Property) subject() {}

// Name returns the property name.
func (p *Property) Name() string { return p.name }

// Field returns the storage column name.
func (p *Property) Field() string { return p.field }

// Model returns the declaring model.
func (p *Property) Model() *Model { return p.model }

// Primitive returns the property's storage type.
func (p *Property) Primitive() Primitive { return p.primitive }

// IsKey reports whether the property is part of the model key.
func (p *Property) IsKey() bool { return p.key }

// IsRequired reports whether nil is disallowed.
func (p *Property) IsRequired() bool { return p.required }

// IsLazy reports whether the property is excluded from default fields.
func (p *Property) IsLazy() bool { return p.lazy }

func (p *Property) String() string {
	return p.model.name + "." + p.name
}

// Typecast coerces v into the property's primitive.
// The returned error wraps ErrTypecast.
func (p *Property) Typecast(v any) (any, error) {
	out, err := p.primitive.cast(v)
	if err != nil {
		return nil, &TypecastError{Property: p.String(), Primitive: p.primitive, Value: v, Err: err}
	}
	return out, nil
}

// Dump converts a loaded value into its storage representation.
func (p *Property) Dump(v any) any {
	return p.primitive.dump(v)
}

// Valid reports whether v is acceptable for the property.
// nil is acceptable for optional properties, and for required ones when
// the test is negated (NOT name = nil asks for a present value).
func (p *Property) Valid(v any, negated bool) bool {
	if v == nil {
		return negated || !p.required
	}
	_, err := p.primitive.cast(v)
	return err == nil
}

// Get reads the property's value from a record.
func (p *Property) Get(r Record) (any, bool) {
	if r == nil {
		return nil, false
	}
	return r.Attribute(p.name)
}
