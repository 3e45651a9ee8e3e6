package sqlgen

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Kind identifies the statement a Query carries.
type Kind string

const (
	KindSelect Kind = "select"
	KindCount  Kind = "count"
	KindExists Kind = "exists"
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
	KindRaw    Kind = "raw"
)

// Query is a compiled statement ready for dispatch. Queries are single
// use and must not be modified after they are built.
type Query struct {
	Kind  Kind
	Table string
	// SQL is rendered for the generator's dialect.
	SQL string
	// Text is the same statement with ? markers.
	Text         string
	Args         []any
	Placeholders int
	// Returning is set when the statement yields rows.
	Returning bool
}

// Raw wraps a fixed statement. placeholders must match len(args).
func Raw(sql string, placeholders int, args ...any) *Query {
	return &Query{Kind: KindRaw, SQL: sql, Text: sql, Args: args, Placeholders: placeholders, Returning: true}
}

// Validate checks that the argument list matches the placeholder count.
func (q *Query) Validate() error {
	if q.Placeholders != len(q.Args) {
		return &ParameterCountMismatchError{SQL: q.SQL, Placeholders: q.Placeholders, Args: len(q.Args)}
	}
	return nil
}

// Fields maps column names to values for writes. Values equal to Unset
// are left out of the statement.
type Fields map[string]any

// Columns returns the written column names in sorted order.
func (f Fields) Columns() []string {
	cols := make([]string, 0, len(f))
	for k, v := range f {
		if v == Unset {
			continue
		}
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// Direction is an ORDER BY direction.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// OrderBy is one ORDER BY term.
type OrderBy struct {
	Field     string
	Direction Direction
}

// QuerySpec describes a read.
type QuerySpec struct {
	Table   string
	Where   []Condition
	Select  []string
	OrderBy []OrderBy
	Limit   *int
	Offset  *int
}

// Ptr returns a pointer to v, for QuerySpec.Limit and QuerySpec.Offset.
func Ptr[T any](v T) *T { return &v }

// Generator builds statements for one dialect.
type Generator struct {
	dialect   Dialect
	returning bool
}

// Option configures a Generator.
type Option func(*Generator)

// WithReturning overrides whether INSERT and UPDATE carry RETURNING *.
func WithReturning(enabled bool) Option {
	return func(g *Generator) { g.returning = enabled }
}

// NewGenerator creates a generator for d.
func NewGenerator(d Dialect, opts ...Option) *Generator {
	g := &Generator{dialect: d, returning: d.SupportsReturning()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Dialect returns the target dialect.
func (g *Generator) Dialect() Dialect { return g.dialect }

// Returning reports whether writes return the affected rows.
func (g *Generator) Returning() bool { return g.returning }

func (g *Generator) finish(kind Kind, table string, b *fragmentBuilder, returning bool) *Query {
	f := b.build()
	return &Query{
		Kind:         kind,
		Table:        table,
		SQL:          f.Render(g.dialect),
		Text:         f.String(),
		Args:         f.Args(),
		Placeholders: f.Placeholders(),
		Returning:    returning,
	}
}

func (g *Generator) where(b *fragmentBuilder, conds []Condition) error {
	clause, err := CompileWhere(conds)
	if err != nil {
		return err
	}
	if !clause.IsEmpty() {
		b.text(" WHERE ")
		b.append(clause)
	}
	return nil
}

// Select builds SELECT <cols|*> FROM t [WHERE] [ORDER BY] [LIMIT ?] [OFFSET ?].
func (g *Generator) Select(spec QuerySpec) (*Query, error) {
	if err := checkIdentifier(spec.Table); err != nil {
		return nil, err
	}
	var b fragmentBuilder
	b.text("SELECT ")
	if len(spec.Select) == 0 {
		b.text("*")
	} else {
		for _, c := range spec.Select {
			if err := checkIdentifier(c); err != nil {
				return nil, err
			}
		}
		b.text(strings.Join(spec.Select, ", "))
	}
	b.text(" FROM ", spec.Table)
	if err := g.where(&b, spec.Where); err != nil {
		return nil, err
	}

	if len(spec.OrderBy) > 0 {
		terms := make([]string, len(spec.OrderBy))
		for i, ob := range spec.OrderBy {
			if err := checkIdentifier(ob.Field); err != nil {
				return nil, err
			}
			dir := Asc
			if strings.EqualFold(string(ob.Direction), string(Desc)) {
				dir = Desc
			}
			terms[i] = fmt.Sprintf("%s %s", ob.Field, dir)
		}
		b.text(" ORDER BY ", strings.Join(terms, ", "))
	}

	if spec.Limit != nil {
		if *spec.Limit < 0 {
			return nil, ErrInvalidPagination
		}
		b.text(" LIMIT ")
		b.bind(*spec.Limit)
	}
	if spec.Offset != nil {
		if *spec.Offset < 0 {
			return nil, ErrInvalidPagination
		}
		// MySQL and SQLite only accept OFFSET after LIMIT.
		if spec.Limit == nil {
			switch g.dialect {
			case MySQL:
				return nil, fmt.Errorf("%w: mysql requires a limit with offset", ErrInvalidPagination)
			case SQLite:
				b.text(" LIMIT -1")
			}
		}
		b.text(" OFFSET ")
		b.bind(*spec.Offset)
	}
	return g.finish(KindSelect, spec.Table, &b, true), nil
}

// Count builds SELECT COUNT(*) AS count FROM t [WHERE].
func (g *Generator) Count(table string, where []Condition) (*Query, error) {
	if err := checkIdentifier(table); err != nil {
		return nil, err
	}
	var b fragmentBuilder
	b.text("SELECT COUNT(*) AS count FROM ", table)
	if err := g.where(&b, where); err != nil {
		return nil, err
	}
	return g.finish(KindCount, table, &b, true), nil
}

// Exists builds SELECT 1 FROM t [WHERE] LIMIT 1.
func (g *Generator) Exists(table string, where []Condition) (*Query, error) {
	if err := checkIdentifier(table); err != nil {
		return nil, err
	}
	var b fragmentBuilder
	b.text("SELECT 1 FROM ", table)
	if err := g.where(&b, where); err != nil {
		return nil, err
	}
	b.text(" LIMIT 1")
	return g.finish(KindExists, table, &b, true), nil
}

// Insert builds INSERT INTO t (cols) VALUES (?, ...) [RETURNING *].
func (g *Generator) Insert(table string, fields Fields) (*Query, error) {
	return g.InsertMany(table, []Fields{fields})
}

// InsertMany builds one INSERT with a row tuple per element of rows. All
// rows must write the same columns.
func (g *Generator) InsertMany(table string, rows []Fields) (*Query, error) {
	if err := checkIdentifier(table); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrEmptyFields
	}
	cols := rows[0].Columns()
	if len(cols) == 0 {
		return nil, ErrEmptyFields
	}
	for _, c := range cols {
		if err := checkIdentifier(c); err != nil {
			return nil, err
		}
	}

	var b fragmentBuilder
	b.text("INSERT INTO ", table, " (", strings.Join(cols, ", "), ") VALUES ")
	for i, row := range rows {
		if !slices.Equal(cols, row.Columns()) {
			return nil, fmt.Errorf("%w: row %d", ErrMismatchedRows, i)
		}
		if i > 0 {
			b.text(", ")
		}
		values := make([]any, len(cols))
		for j, c := range cols {
			values[j] = row[c]
		}
		b.bindList(values)
	}
	if g.returning {
		b.text(" RETURNING *")
	}
	return g.finish(KindInsert, table, &b, g.returning), nil
}

// Update builds UPDATE t SET c = ?, ... WHERE ... [RETURNING *]. With no
// fields to set it returns the equivalent Select instead. A where clause
// that constrains nothing is rejected with ErrUnsafeMutation.
func (g *Generator) Update(table string, fields Fields, where []Condition) (*Query, error) {
	if err := checkIdentifier(table); err != nil {
		return nil, err
	}
	clause, err := mutationWhere(where)
	if err != nil {
		return nil, err
	}
	cols := fields.Columns()
	if len(cols) == 0 {
		return g.Select(QuerySpec{Table: table, Where: where})
	}

	var b fragmentBuilder
	b.text("UPDATE ", table, " SET ")
	for i, c := range cols {
		if err := checkIdentifier(c); err != nil {
			return nil, err
		}
		if i > 0 {
			b.text(", ")
		}
		b.text(c, " = ")
		b.bind(fields[c])
	}
	b.text(" WHERE ")
	b.append(clause)
	if g.returning {
		b.text(" RETURNING *")
	}
	return g.finish(KindUpdate, table, &b, g.returning), nil
}

// Delete builds DELETE FROM t WHERE .... A where clause that constrains
// nothing is rejected with ErrUnsafeMutation.
func (g *Generator) Delete(table string, where []Condition) (*Query, error) {
	if err := checkIdentifier(table); err != nil {
		return nil, err
	}
	clause, err := mutationWhere(where)
	if err != nil {
		return nil, err
	}
	var b fragmentBuilder
	b.text("DELETE FROM ", table, " WHERE ")
	b.append(clause)
	return g.finish(KindDelete, table, &b, false), nil
}

// mutationWhere compiles the where clause of an UPDATE or DELETE. A clause
// that is empty or matches every row, such as a lone empty NOT IN list,
// fails with ErrUnsafeMutation.
func mutationWhere(where []Condition) (Fragment, error) {
	clause, restrictive, err := compileWhere(where)
	if err != nil {
		return Fragment{}, err
	}
	if clause.IsEmpty() || !restrictive {
		return Fragment{}, ErrUnsafeMutation
	}
	return clause, nil
}
