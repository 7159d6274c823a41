package store

import (
	"fmt"
	"strings"

	"github.com/roach88/relq/internal/model"
	"github.com/roach88/relq/internal/querysql"
)

// table is the storage layout shared by a model and its descendants.
type table struct {
	name    string
	columns []*model.Property
	key     []*model.Property
}

// tables groups the registry's models by storage name. A table holds the
// union of its models' properties, in registry order.
func tables(reg *model.Registry) []*table {
	var out []*table
	byName := make(map[string]*table)
	for _, m := range reg.Models() {
		name := m.StorageName()
		t, ok := byName[name]
		if !ok {
			t = &table{name: name, key: m.Root().Key()}
			byName[name] = t
			out = append(out, t)
		}
		for _, p := range m.Properties() {
			if !t.has(p.Field()) {
				t.columns = append(t.columns, p)
			}
		}
	}
	return out
}

func (t *table) has(field string) bool {
	for _, c := range t.columns {
		if c.Field() == field {
			return true
		}
	}
	return false
}

func (t *table) createStatement(d querysql.Dialect) string {
	defs := make([]string, 0, len(t.columns)+1)
	for _, c := range t.columns {
		def := quote(c.Field()) + " " + columnType(d, c.Primitive())
		if c.IsRequired() {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	if len(t.key) > 0 {
		keys := make([]string, len(t.key))
		for i, k := range t.key {
			keys[i] = quote(k.Field())
		}
		defs = append(defs, "PRIMARY KEY ("+strings.Join(keys, ", ")+")")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(t.name), strings.Join(defs, ", "))
}

func columnType(d querysql.Dialect, p model.Primitive) string {
	switch p {
	case model.Integer:
		if d == querysql.Postgres {
			return "BIGINT"
		}
		return "INTEGER"
	case model.Float:
		if d == querysql.Postgres {
			return "DOUBLE PRECISION"
		}
		return "REAL"
	case model.Boolean:
		return "BOOLEAN"
	}
	// Times are stored as RFC 3339 text and UUIDs as canonical strings.
	return "TEXT"
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
