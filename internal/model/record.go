package model

// Record is anything a property value can be read from: a loaded row, a
// resource, or a plain attribute map.
type Record interface {
	Attribute(name string) (any, bool)
}

// Attributes is a map-backed Record.
type Attributes map[string]any

// Attribute implements Record.
func (a Attributes) Attribute(name string) (any, bool) {
	v, ok := a[name]
	return v, ok
}

// Key is an ordered tuple of key values.
type Key []any

// AsRecord adapts the loose record shapes accepted by the query engine.
// map[string]any is wrapped as Attributes.
func AsRecord(v any) (Record, bool) {
	switch r := v.(type) {
	case Record:
		return r, true
	case map[string]any:
		return Attributes(r), true
	}
	return nil, false
}
