package model

import "fmt"

// Registry holds models by name in registration order.
type Registry struct {
	byName map[string]*Model
	order  []*Model
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Model)}
}

// Add registers m.
func (r *Registry) Add(m *Model) error {
	if _, exists := r.byName[m.name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateModel, m.name)
	}
	r.byName[m.name] = m
	r.order = append(r.order, m)
	return nil
}

// Get returns the model named name.
func (r *Registry) Get(name string) (*Model, bool) {
	m, ok := r.byName[name]
	return m, ok
}

// Models returns all models in registration order.
func (r *Registry) Models() []*Model {
	out := make([]*Model, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered models.
func (r *Registry) Len() int {
	return len(r.order)
}
