// Package querysql compiles queries into parameterized SQL.
package querysql

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/relq/internal/conditions"
	"github.com/roach88/relq/internal/model"
	"github.com/roach88/relq/internal/query"
)

// ErrUnsupported is returned for conditions that have no SQL rendition,
// such as subqueries that are not *query.Query values.
var ErrUnsupported = errors.New("unsupported by the SQL compiler")

// Dialect selects placeholder style and operator spelling.
type Dialect string

const (
	SQLite   Dialect = "sqlite3"
	Postgres Dialect = "postgres"
)

// ParseDialect resolves a driver name.
func ParseDialect(name string) (Dialect, error) {
	switch Dialect(name) {
	case SQLite, "sqlite":
		return SQLite, nil
	case Postgres, "postgresql", "pq":
		return Postgres, nil
	}
	return "", fmt.Errorf("unknown SQL dialect %q", name)
}

// Compiler compiles queries to SQL for one dialect.
//
// Values are never interpolated: every value is a ? placeholder, rebound
// to $n for PostgreSQL. Every query has an ORDER BY ending in the model key
// so results are deterministic.
type Compiler struct {
	dialect Dialect
}

// NewCompiler creates a Compiler for d.
func NewCompiler(d Dialect) *Compiler {
	return &Compiler{dialect: d}
}

// Dialect returns the compiler's dialect.
func (c *Compiler) Dialect() Dialect { return c.dialect }

// Compile converts q to SQL and its bind parameters.
func (c *Compiler) Compile(q *query.Query) (string, []any, error) {
	if q == nil {
		return "", nil, fmt.Errorf("cannot compile nil query")
	}
	st := &state{dialect: c.dialect}
	sql, params, err := st.compileSelect(q, false)
	if err != nil {
		return "", nil, err
	}
	if c.dialect == Postgres {
		sql = sqlx.Rebind(sqlx.DOLLAR, sql)
	}
	return sql, params, nil
}

// CompileWhere renders only the condition tree of q, as used in a WHERE
// clause. The always-true tree renders as "1 = 1".
func (c *Compiler) CompileWhere(q *query.Query) (string, []any, error) {
	st := &state{dialect: c.dialect}
	sc, err := st.newScope(q)
	if err != nil {
		return "", nil, err
	}
	sql, params, err := sc.compileNode(conditions.Minimize(q.Conditions()))
	if err != nil {
		return "", nil, err
	}
	if c.dialect == Postgres {
		sql = sqlx.Rebind(sqlx.DOLLAR, sql)
	}
	return sql, params, nil
}

// state numbers table aliases across nested selects.
type state struct {
	dialect Dialect
	aliases int
}

func (st *state) alias() string {
	a := fmt.Sprintf("t%d", st.aliases)
	st.aliases++
	return a
}

// scope is one SELECT: its base alias and the aliases of joined links.
type scope struct {
	st    *state
	q     *query.Query
	base  string
	joins []string
	links map[string]string
}

func (st *state) newScope(q *query.Query) (*scope, error) {
	sc := &scope{st: st, q: q, base: st.alias(), links: make(map[string]string)}
	for _, link := range q.Links() {
		src, ok := sc.sourceAlias(link)
		if !ok {
			return nil, fmt.Errorf("link %s is not reachable from %s", link, q.Model())
		}
		tgt := st.alias()
		on := make([]string, len(link.SourceKey()))
		for i, p := range link.SourceKey() {
			on[i] = column(src, p) + " = " + column(tgt, link.TargetKey()[i])
		}
		sc.joins = append(sc.joins, fmt.Sprintf("INNER JOIN %s %s ON %s",
			ident(link.Target().StorageName()), tgt, strings.Join(on, " AND ")))
		sc.links[link.String()] = tgt
	}
	return sc, nil
}

// sourceAlias finds the alias of the model rel starts from: the base
// table or the target of an earlier link.
func (sc *scope) sourceAlias(rel *model.Relationship) (string, bool) {
	if sc.q.Model().Descends(rel.Source()) {
		return sc.base, true
	}
	for _, link := range sc.q.Links() {
		alias, joined := sc.links[link.String()]
		if joined && link.Target().Descends(rel.Source()) {
			return alias, true
		}
	}
	return "", false
}

// compileSelect renders q. A nested select feeds an IN list: it selects
// only the query's fields and orders only when limited.
func (st *state) compileSelect(q *query.Query, nested bool) (string, []any, error) {
	sc, err := st.newScope(q)
	if err != nil {
		return "", nil, err
	}

	var params []any
	var b strings.Builder
	b.WriteString("SELECT ")
	if q.Unique() {
		b.WriteString("DISTINCT ")
	}
	b.WriteString(sc.selectList(nested))
	b.WriteString(" FROM ")
	b.WriteString(ident(q.Model().StorageName()))
	b.WriteString(" ")
	b.WriteString(sc.base)
	for _, j := range sc.joins {
		b.WriteString(" ")
		b.WriteString(j)
	}

	tree := conditions.Minimize(q.Conditions())
	if !conditions.IsEverything(tree) {
		where, whereParams, err := sc.compileNode(tree)
		if err != nil {
			return "", nil, fmt.Errorf("compile conditions: %w", err)
		}
		b.WriteString(" WHERE ")
		b.WriteString(where)
		params = append(params, whereParams...)
	}

	limit, bounded := q.Limit()
	if !nested || bounded {
		b.WriteString(" ORDER BY ")
		b.WriteString(sc.orderBy())
	}
	if bounded {
		b.WriteString(" LIMIT ?")
		params = append(params, limit)
		if q.Offset() > 0 {
			b.WriteString(" OFFSET ?")
			params = append(params, q.Offset())
		}
	}
	return b.String(), params, nil
}

// selectList renders the fields with the property name as alias when the
// storage field differs. Top-level DISTINCT selects also carry the order
// columns.
func (sc *scope) selectList(nested bool) string {
	var parts []string
	seen := make(map[*model.Property]bool)
	add := func(p *model.Property) {
		if seen[p] {
			return
		}
		seen[p] = true
		col := column(sc.base, p)
		if p.Field() != p.Name() {
			col += " AS " + ident(p.Name())
		}
		parts = append(parts, col)
	}
	for _, p := range sc.q.Fields() {
		add(p)
	}
	if sc.q.Unique() && !nested {
		for _, d := range sc.q.Order() {
			add(d.Property)
		}
	}
	return strings.Join(parts, ", ")
}

// orderBy renders the query order followed by any key columns not already
// ordered on. NULLs sort first ascending, as they do in memory.
func (sc *scope) orderBy() string {
	var parts []string
	seen := make(map[*model.Property]bool)
	for _, d := range sc.q.Order() {
		if sc.q.AddReversed() {
			d = d.Reverse()
		}
		seen[d.Property] = true
		parts = append(parts, sc.direction(d))
	}
	for _, p := range sc.q.Model().Key() {
		if !seen[p] {
			parts = append(parts, sc.direction(query.Direction{Property: p}))
		}
	}
	return strings.Join(parts, ", ")
}

func (sc *scope) direction(d query.Direction) string {
	col := column(sc.base, d.Property)
	switch {
	case d.Descending && sc.st.dialect == Postgres:
		return col + " DESC NULLS LAST"
	case d.Descending:
		return col + " DESC"
	case sc.st.dialect == Postgres:
		return col + " ASC NULLS FIRST"
	}
	return col + " ASC"
}

// compileNode renders a minimized condition tree.
func (sc *scope) compileNode(n conditions.Node) (string, []any, error) {
	switch node := n.(type) {
	case *conditions.Operation:
		return sc.compileOperation(node)
	case *conditions.Comparison:
		return sc.compileComparison(node)
	case *conditions.RawCondition:
		return "(" + node.SQL() + ")", node.Bindings(), nil
	}
	return "", nil, fmt.Errorf("%w: condition %T", ErrUnsupported, n)
}

func (sc *scope) compileOperation(op *conditions.Operation) (string, []any, error) {
	switch op.Slug() {
	case conditions.Null:
		return "1 = 1", nil, nil
	case conditions.Not:
		inner, params, err := sc.compileNode(op.Operand())
		if err != nil {
			return "", nil, err
		}
		return "NOT (" + inner + ")", params, nil
	}

	if op.Empty() {
		if op.Slug() == conditions.Or {
			return "1 = 0", nil, nil
		}
		return "1 = 1", nil, nil
	}

	var parts []string
	var params []any
	for _, child := range op.Operands() {
		sql, childParams, err := sc.compileNode(child)
		if err != nil {
			return "", nil, err
		}
		if inner, ok := child.(*conditions.Operation); ok && inner.Len() > 1 && inner.Slug() != conditions.Not {
			sql = "(" + sql + ")"
		}
		parts = append(parts, sql)
		params = append(params, childParams...)
	}
	return strings.Join(parts, " "+strings.ToUpper(string(op.Slug()))+" "), params, nil
}

// subjectAlias returns the alias the comparison's subject is read from.
func (sc *scope) subjectAlias(c *conditions.Comparison) (string, error) {
	path := c.Path()
	if len(path) == 0 {
		return sc.base, nil
	}
	last := path[len(path)-1]
	alias, ok := sc.links[last.String()]
	if !ok {
		return "", fmt.Errorf("path %s is not joined", last)
	}
	return alias, nil
}

func (sc *scope) compileComparison(c *conditions.Comparison) (string, []any, error) {
	if toMany(c.Path()) {
		return sc.compileExists(c)
	}
	alias, err := sc.subjectAlias(c)
	if err != nil {
		return "", nil, err
	}
	return sc.compileSubject(alias, c)
}

// compileExists renders a comparison through a to-many path as a
// correlated EXISTS over the related rows. Each such comparison ranges over
// the related rows on its own, and under NOT it means no related row
// matches.
func (sc *scope) compileExists(c *conditions.Comparison) (string, []any, error) {
	path := c.Path()
	src, ok := sc.sourceAlias(path[0])
	if !ok {
		return "", nil, fmt.Errorf("path %s is not reachable from %s", path[0], sc.q.Model())
	}
	var from, where []string
	for i, rel := range path {
		tgt := sc.st.alias()
		on := make([]string, len(rel.SourceKey()))
		for j, p := range rel.SourceKey() {
			on[j] = column(tgt, rel.TargetKey()[j]) + " = " + column(src, p)
		}
		table := ident(rel.Target().StorageName()) + " " + tgt
		if i == 0 {
			from = append(from, table)
			where = append(where, on...)
		} else {
			from = append(from, "INNER JOIN "+table+" ON "+strings.Join(on, " AND "))
		}
		src = tgt
	}
	cond, params, err := sc.compileSubject(src, c)
	if err != nil {
		return "", nil, err
	}
	where = append(where, cond)
	return "EXISTS (SELECT 1 FROM " + strings.Join(from, " ") + " WHERE " + strings.Join(where, " AND ") + ")", params, nil
}

func toMany(path []*model.Relationship) bool {
	for _, rel := range path {
		if rel.Cardinality() != model.ManyToOne {
			return true
		}
	}
	return false
}

// compileSubject renders c against the table aliased alias.
func (sc *scope) compileSubject(alias string, c *conditions.Comparison) (string, []any, error) {
	if rel, ok := c.Relationship(); ok {
		return sc.compileRelationship(alias, rel, c)
	}
	p, _ := c.Property()
	col := column(alias, p)

	switch c.Slug() {
	case conditions.Eql:
		if c.Value() == nil {
			return col + " IS NULL", nil, nil
		}
		if sc.st.dialect == Postgres {
			return col + " IS NOT DISTINCT FROM ?", []any{p.Dump(c.Value())}, nil
		}
		return col + " IS ?", []any{p.Dump(c.Value())}, nil
	case conditions.In:
		return sc.compileIn(col, p, c.Value())
	case conditions.Like:
		return col + " LIKE ?", []any{c.Value()}, nil
	case conditions.Regexp:
		re := c.Value().(*regexp.Regexp)
		if sc.st.dialect == Postgres {
			return col + " ~ ?", []any{re.String()}, nil
		}
		return col + " REGEXP ?", []any{re.String()}, nil
	case conditions.Gt, conditions.Lt, conditions.Gte, conditions.Lte:
		return col + " " + c.Slug().Symbol() + " ?", []any{p.Dump(c.Value())}, nil
	}
	return "", nil, fmt.Errorf("%w: comparison %s", ErrUnsupported, c.Slug())
}

func (sc *scope) compileIn(col string, p *model.Property, value any) (string, []any, error) {
	switch v := value.(type) {
	case conditions.Range:
		if v.Min == nil || v.Max == nil {
			return "1 = 0", nil, nil
		}
		params := []any{p.Dump(v.Min), p.Dump(v.Max)}
		if v.ExcludeEnd {
			return "(" + col + " >= ? AND " + col + " < ?)", params, nil
		}
		return col + " BETWEEN ? AND ?", params, nil
	case []any:
		var params []any
		hasNil := false
		for _, item := range v {
			if item == nil {
				hasNil = true
				continue
			}
			params = append(params, p.Dump(item))
		}
		switch {
		case len(params) == 0 && hasNil:
			return col + " IS NULL", nil, nil
		case len(params) == 0:
			return "1 = 0", nil, nil
		}
		in := col + " IN (" + placeholders(len(params)) + ")"
		if hasNil {
			in = "(" + in + " OR " + col + " IS NULL)"
		}
		return in, params, nil
	}
	return "", nil, fmt.Errorf("%w: in value %T", ErrUnsupported, value)
}

// compileRelationship compares the source key columns against target
// keys or a sub-select of them. Composite keys use row values.
func (sc *scope) compileRelationship(alias string, rel *model.Relationship, c *conditions.Comparison) (string, []any, error) {
	cols := make([]string, len(rel.SourceKey()))
	for i, p := range rel.SourceKey() {
		cols[i] = column(alias, p)
	}
	lhs := cols[0]
	if len(cols) > 1 {
		lhs = "(" + strings.Join(cols, ", ") + ")"
	}

	if sub := c.Subquery(); sub != nil {
		q, ok := sub.(*query.Query)
		if !ok {
			return "", nil, fmt.Errorf("%w: subquery %T", ErrUnsupported, sub)
		}
		sql, params, err := sc.st.compileSelect(q, true)
		if err != nil {
			return "", nil, fmt.Errorf("compile subquery: %w", err)
		}
		return lhs + " IN (" + sql + ")", params, nil
	}

	if c.Slug() == conditions.Eql && c.Value() == nil {
		nulls := make([]string, len(cols))
		for i, col := range cols {
			nulls[i] = col + " IS NULL"
		}
		if len(nulls) == 1 {
			return nulls[0], nil, nil
		}
		return "(" + strings.Join(nulls, " OR ") + ")", nil, nil
	}

	keys := c.Keys()
	if len(keys) == 0 {
		return "1 = 0", nil, nil
	}
	var params []any
	tuples := make([]string, len(keys))
	for i, key := range keys {
		for j, v := range key {
			params = append(params, rel.TargetKey()[j].Dump(v))
		}
		tuples[i] = placeholders(len(key))
		if len(key) > 1 {
			tuples[i] = "(" + tuples[i] + ")"
		}
	}
	return lhs + " IN (" + strings.Join(tuples, ", ") + ")", params, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func column(alias string, p *model.Property) string {
	return alias + "." + ident(p.Field())
}

var plainIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ident quotes an identifier unless it is a plain word.
func ident(name string) string {
	if plainIdent.MatchString(name) && !reserved[strings.ToLower(name)] {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

var reserved = map[string]bool{
	"group": true, "order": true, "select": true, "table": true, "user": true, "where": true,
}
