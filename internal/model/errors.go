package model

import (
	"errors"
	"fmt"
)

var (
	// ErrTypecast is returned when a value cannot be coerced into a property's primitive.
	ErrTypecast = errors.New("typecast failed")

	// ErrDuplicateProperty is returned when a property name is already defined on a model or its ancestors.
	ErrDuplicateProperty = errors.New("duplicate property")

	// ErrDuplicateRelationship is returned when a relationship name is already defined.
	ErrDuplicateRelationship = errors.New("duplicate relationship")

	// ErrUnknownProperty is returned when a relationship key names a property that does not exist.
	ErrUnknownProperty = errors.New("unknown property")

	// ErrKeyMismatch is returned when source and target keys differ in length.
	ErrKeyMismatch = errors.New("relationship key mismatch")

	// ErrDuplicateModel is returned when a registry already holds a model with the same name.
	ErrDuplicateModel = errors.New("duplicate model")
)

// TypecastError describes a failed coercion.
type TypecastError struct {
	Property  string
	Primitive Primitive
	Value     any
	Err       error
}

func (e *TypecastError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot typecast %#v to %s for %s: %v", e.Value, e.Primitive, e.Property, e.Err)
	}
	return fmt.Sprintf("cannot typecast %#v to %s for %s", e.Value, e.Primitive, e.Property)
}

// Is reports ErrTypecast so callers can use errors.Is.
func (e *TypecastError) Is(target error) bool {
	return target == ErrTypecast
}

func (e *TypecastError) Unwrap() error {
	return e.Err
}
