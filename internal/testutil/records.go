package testutil

import "github.com/roach88/relq/internal/model"

type userRow struct {
	name     string
	age      any
	referrer any
}

var userRows = []userRow{
	{"Dan Kubb", 30, nil},
	{"Sam", 25, nil},
	{"John", nil, nil},
	{"Alice", 41, 1},
	{"Bob", 19, 1},
	{"Carol", 35, 2},
	{"Dave", 28, nil},
	{"Eve", 22, 4},
	{"Frank", 50, nil},
	{"Grace", 33, 2},
}

type articleRow struct {
	title     string
	author    any
	published bool
}

var articleRows = []articleRow{
	{"Hello", 1, true},
	{"Query algebra", 1, false},
	{"Sam's notes", 2, true},
	{"Orphan", nil, true},
	{"Grace notes", 10, true},
}

// Users returns the ten fixture users with ids 1 through 10.
//
// Dan Kubb (1) and Sam (2) refer Alice, Bob, Carol and Grace; John (3) has
// no age.
func Users() []model.Record {
	seq := NewSequence()
	out := make([]model.Record, len(userRows))
	for i, row := range userRows {
		id := seq.Next()
		out[i] = model.Attributes{
			"id":          id,
			"name":        row.name,
			"age":         row.age,
			"email":       nil,
			"bio":         nil,
			"referrer_id": row.referrer,
		}
	}
	return out
}

// Articles returns the five fixture articles with ids 1 through 5.
// Article 4 has no author.
func Articles() []model.Record {
	seq := NewSequence()
	out := make([]model.Record, len(articleRows))
	for i, row := range articleRows {
		out[i] = model.Attributes{
			"id":        seq.Next(),
			"title":     row.title,
			"author_id": row.author,
			"published": row.published,
		}
	}
	return out
}

// Names extracts the name attribute of each record, in order.
func Names(records []model.Record) []string {
	names := make([]string, len(records))
	for i, r := range records {
		v, _ := r.Attribute("name")
		s, _ := v.(string)
		names[i] = s
	}
	return names
}

// Attr extracts one attribute from each record, in order.
func Attr(records []model.Record, name string) []any {
	out := make([]any, len(records))
	for i, r := range records {
		out[i], _ = r.Attribute(name)
	}
	return out
}
