package schema

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/relq/internal/model"
)

// Relationship kinds accepted in model definitions.
const (
	KindBelongsTo = "belongs_to"
	KindHasMany   = "has_many"
)

// modelDef is one parsed `model: <Name>` entry. Models are built from defs
// in a second pass because parents and relationship targets may be declared
// later in the file.
type modelDef struct {
	name          string
	pos           token.Pos
	storage       string
	parent        string
	parentPos     token.Pos
	properties    []propertyDef
	relationships []relationshipDef
	order         map[string][]orderDef
}

type propertyDef struct {
	name     string
	pos      token.Pos
	typ      model.Primitive
	key      bool
	required bool
	lazy     bool
	field    string
}

type relationshipDef struct {
	name   string
	pos    token.Pos
	kind   string
	target string
	key    []string
}

type orderDef struct {
	property   string
	descending bool
	pos        token.Pos
}

// CompileModels builds a registry from the value holding model definitions.
//
// The value is the `model` struct itself:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`model: User: { ... }`)
//	reg, err := CompileModels(v.LookupPath(cue.ParsePath("model")))
//
// Models are registered in declaration order.
func CompileModels(v cue.Value) (*model.Registry, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var defs []*modelDef
	byName := make(map[string]*modelDef)
	for iter.Next() {
		def, err := parseModel(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
		byName[def.name] = def
	}

	b := &builder{defs: byName, models: make(map[string]*model.Model), visiting: make(map[string]bool)}
	for _, def := range defs {
		if _, err := b.build(def); err != nil {
			return nil, err
		}
	}
	for _, def := range defs {
		if err := b.relate(def); err != nil {
			return nil, err
		}
	}
	for _, def := range defs {
		if err := b.order(def); err != nil {
			return nil, err
		}
	}

	reg := model.NewRegistry()
	for _, def := range defs {
		if err := reg.Add(b.models[def.name]); err != nil {
			return nil, &CompileError{Field: "model", Message: err.Error(), Pos: def.pos}
		}
	}
	return reg, nil
}

func parseModel(name string, v cue.Value) (*modelDef, error) {
	def := &modelDef{name: name, pos: v.Pos(), order: make(map[string][]orderDef)}

	var err error
	if def.storage, err = optionalString(v, "storage"); err != nil {
		return nil, err
	}
	if pv := v.LookupPath(cue.ParsePath("parent")); pv.Exists() {
		if def.parent, err = pv.String(); err != nil {
			return nil, formatCUEError(err)
		}
		def.parentPos = pv.Pos()
	}

	def.properties, err = parseProperties(v)
	if err != nil {
		return nil, err
	}
	if len(def.properties) == 0 && def.parent == "" {
		return nil, &CompileError{
			Field:   "properties",
			Message: fmt.Sprintf("model %s declares no properties", name),
			Pos:     v.Pos(),
		}
	}

	def.relationships, err = parseRelationships(v)
	if err != nil {
		return nil, err
	}

	if ov := v.LookupPath(cue.ParsePath("order")); ov.Exists() {
		if err := parseOrder(ov, def); err != nil {
			return nil, err
		}
	}
	return def, nil
}

func parseProperties(v cue.Value) ([]propertyDef, error) {
	propsVal := v.LookupPath(cue.ParsePath("properties"))
	if !propsVal.Exists() {
		return nil, nil
	}

	iter, err := propsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var props []propertyDef
	for iter.Next() {
		pv := iter.Value()
		prop := propertyDef{name: iter.Label(), pos: pv.Pos()}

		// A bare string is shorthand for {type: "<primitive>"}.
		if pv.Kind() == cue.StringKind {
			s, _ := pv.String()
			if prop.typ, err = parseType(s, pv.Pos()); err != nil {
				return nil, err
			}
			props = append(props, prop)
			continue
		}

		typeVal := pv.LookupPath(cue.ParsePath("type"))
		if !typeVal.Exists() {
			return nil, &CompileError{
				Field:   "type",
				Message: fmt.Sprintf("property %s requires a type", prop.name),
				Pos:     pv.Pos(),
			}
		}
		s, err := typeVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if prop.typ, err = parseType(s, typeVal.Pos()); err != nil {
			return nil, err
		}
		if prop.key, err = optionalBool(pv, "key"); err != nil {
			return nil, err
		}
		if prop.required, err = optionalBool(pv, "required"); err != nil {
			return nil, err
		}
		if prop.lazy, err = optionalBool(pv, "lazy"); err != nil {
			return nil, err
		}
		if prop.field, err = optionalString(pv, "field"); err != nil {
			return nil, err
		}
		props = append(props, prop)
	}
	return props, nil
}

func parseType(s string, pos token.Pos) (model.Primitive, error) {
	p, err := model.ParsePrimitive(s)
	if err != nil {
		return "", &CompileError{Field: "type", Message: err.Error(), Pos: pos}
	}
	return p, nil
}

func parseRelationships(v cue.Value) ([]relationshipDef, error) {
	relsVal := v.LookupPath(cue.ParsePath("relationships"))
	if !relsVal.Exists() {
		return nil, nil
	}

	iter, err := relsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var rels []relationshipDef
	for iter.Next() {
		rv := iter.Value()
		rel := relationshipDef{name: iter.Label(), pos: rv.Pos()}

		kindVal := rv.LookupPath(cue.ParsePath("kind"))
		if !kindVal.Exists() {
			return nil, &CompileError{
				Field:   "kind",
				Message: fmt.Sprintf("relationship %s requires a kind (%s or %s)", rel.name, KindBelongsTo, KindHasMany),
				Pos:     rv.Pos(),
			}
		}
		if rel.kind, err = kindVal.String(); err != nil {
			return nil, formatCUEError(err)
		}
		if rel.kind != KindBelongsTo && rel.kind != KindHasMany {
			return nil, &CompileError{
				Field:   "kind",
				Message: fmt.Sprintf("invalid relationship kind %q: must be %s or %s", rel.kind, KindBelongsTo, KindHasMany),
				Pos:     kindVal.Pos(),
			}
		}

		targetVal := rv.LookupPath(cue.ParsePath("target"))
		if !targetVal.Exists() {
			return nil, &CompileError{
				Field:   "target",
				Message: fmt.Sprintf("relationship %s requires a target model", rel.name),
				Pos:     rv.Pos(),
			}
		}
		if rel.target, err = targetVal.String(); err != nil {
			return nil, formatCUEError(err)
		}

		keyVal := rv.LookupPath(cue.ParsePath("key"))
		if !keyVal.Exists() {
			return nil, &CompileError{
				Field:   "key",
				Message: fmt.Sprintf("relationship %s requires a foreign key", rel.name),
				Pos:     rv.Pos(),
			}
		}
		if rel.key, err = stringList(keyVal); err != nil {
			return nil, err
		}
		rels = append(rels, rel)
	}
	return rels, nil
}

// parseOrder accepts either a list (the default repository's order) or a
// struct of repository name to list.
func parseOrder(v cue.Value, def *modelDef) error {
	if v.Kind() == cue.ListKind {
		entries, err := orderList(v)
		if err != nil {
			return err
		}
		def.order[model.DefaultRepository] = entries
		return nil
	}

	iter, err := v.Fields()
	if err != nil {
		return &CompileError{Field: "order", Message: "order must be a list or a struct of lists", Pos: v.Pos()}
	}
	for iter.Next() {
		entries, err := orderList(iter.Value())
		if err != nil {
			return err
		}
		def.order[iter.Label()] = entries
	}
	return nil
}

func orderList(v cue.Value) ([]orderDef, error) {
	list, err := v.List()
	if err != nil {
		return nil, &CompileError{Field: "order", Message: "order must be a list", Pos: v.Pos()}
	}
	var entries []orderDef
	for list.Next() {
		s, err := list.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		entry := orderDef{property: s, pos: list.Value().Pos()}
		if name, dir, ok := strings.Cut(s, "."); ok {
			switch dir {
			case "asc":
			case "desc":
				entry.descending = true
			default:
				return nil, &CompileError{
					Field:   "order",
					Message: fmt.Sprintf("invalid order direction %q in %q", dir, s),
					Pos:     entry.pos,
				}
			}
			entry.property = name
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return nil, &CompileError{Field: "order", Message: "order must not be empty", Pos: v.Pos()}
	}
	return entries, nil
}

// builder turns defs into models. Parents are built before their
// descendants so inherited properties are visible.
type builder struct {
	defs     map[string]*modelDef
	models   map[string]*model.Model
	visiting map[string]bool
}

func (b *builder) build(def *modelDef) (*model.Model, error) {
	if m, ok := b.models[def.name]; ok {
		return m, nil
	}
	if b.visiting[def.name] {
		return nil, &CompileError{
			Field:   "cycle",
			Message: fmt.Sprintf("model %s inherits from itself", def.name),
			Pos:     def.parentPos,
		}
	}
	b.visiting[def.name] = true
	defer delete(b.visiting, def.name)

	var opts []model.Option
	if def.storage != "" {
		opts = append(opts, model.WithStorage(def.storage))
	}
	if def.parent != "" {
		parentDef, ok := b.defs[def.parent]
		if !ok {
			return nil, &CompileError{
				Field:   "parent",
				Message: fmt.Sprintf("model %s: unknown parent model %q", def.name, def.parent),
				Pos:     def.parentPos,
			}
		}
		parent, err := b.build(parentDef)
		if err != nil {
			return nil, err
		}
		opts = append(opts, model.WithParent(parent))
	}

	m := model.New(def.name, opts...)
	for _, prop := range def.properties {
		var popts []model.PropertyOption
		if prop.key {
			popts = append(popts, model.AsKey())
		}
		if prop.required {
			popts = append(popts, model.AsRequired())
		}
		if prop.lazy {
			popts = append(popts, model.AsLazy())
		}
		if prop.field != "" {
			popts = append(popts, model.WithField(prop.field))
		}
		if _, err := m.AddProperty(prop.name, prop.typ, popts...); err != nil {
			return nil, &CompileError{Field: "property", Message: err.Error(), Pos: prop.pos}
		}
	}
	if len(m.Key()) == 0 {
		return nil, &CompileError{
			Field:   "key",
			Message: fmt.Sprintf("model %s has no key property", def.name),
			Pos:     def.pos,
		}
	}

	b.models[def.name] = m
	return m, nil
}

func (b *builder) relate(def *modelDef) error {
	m := b.models[def.name]
	for _, rel := range def.relationships {
		target, ok := b.models[rel.target]
		if !ok {
			return &CompileError{
				Field:   "target",
				Message: fmt.Sprintf("relationship %s.%s: unknown target model %q", def.name, rel.name, rel.target),
				Pos:     rel.pos,
			}
		}
		var err error
		switch rel.kind {
		case KindBelongsTo:
			_, err = m.BelongsTo(rel.name, target, rel.key...)
		case KindHasMany:
			_, err = m.HasMany(rel.name, target, rel.key...)
		}
		if err != nil {
			return &CompileError{Field: "relationship", Message: err.Error(), Pos: rel.pos}
		}
	}
	return nil
}

func (b *builder) order(def *modelDef) error {
	m := b.models[def.name]
	for repo, entries := range def.order {
		specs := make([]model.OrderSpec, 0, len(entries))
		for _, e := range entries {
			p, ok := m.Property(e.property)
			if !ok {
				return &CompileError{
					Field:   "order",
					Message: fmt.Sprintf("model %s: unknown order property %q", def.name, e.property),
					Pos:     e.pos,
				}
			}
			specs = append(specs, model.OrderSpec{Property: p, Descending: e.descending})
		}
		m.SetDefaultOrder(repo, specs...)
	}
	return nil
}

func optionalString(v cue.Value, path string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalBool(v cue.Value, path string) (bool, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return false, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

// stringList accepts a single string or a list of strings.
func stringList(v cue.Value) ([]string, error) {
	if v.Kind() == cue.StringKind {
		s, _ := v.String()
		return []string{s}, nil
	}
	list, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for list.Next() {
		s, err := list.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// CompileError is a model definition error with its CUE source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
