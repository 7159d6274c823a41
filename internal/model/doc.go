// Package model describes the object side of the mapping: models, their
// typed properties and the relationships between them.
//
// The query engine consumes models through a narrow surface:
//
//   - Model.Properties: ordered properties, ancestors first (single-table
//     inheritance hierarchies share their ancestors' properties)
//   - Model.Relationships: named associations exposing source and target keys
//   - Model.DefaultOrder: ordering used when a query does not specify one
//   - Property.Typecast: coercion of loosely typed input into the
//     property's primitive
//
// Records are anything implementing Record; Attributes is the map-backed
// implementation used by repositories and tests.
//
// Models are built once at startup (by hand or via internal/schema) and are
// read-only afterwards. Concurrent reads are safe; definition methods are not.
package model
