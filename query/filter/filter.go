// Package filter parses textual filter expressions such as
//
//	status = 'active' AND age >= 18 AND role IN ('admin', 'owner')
//
// into condition lists for the statement generator.
package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"

	"github.com/syurodev/system/query/sqlgen"
)

// Expression is the parse tree of a filter: terms joined by AND or a comma.
type Expression struct {
	Terms []*Term `@@ ( ( "AND" | "," ) @@ )*`
}

// Term is one condition on a field.
type Term struct {
	Field string      `@Ident`
	Null  *NullCheck  `( @@`
	In    *InList     `| @@`
	Like  *LikeMatch  `| @@`
	Cmp   *Comparison `| @@ )`
}

// NullCheck is IS [NOT] NULL.
type NullCheck struct {
	Not bool `"IS" @"NOT"? "NULL"`
}

// InList is [NOT] IN (v, ...).
type InList struct {
	Not    bool     `@"NOT"? "IN" "("`
	Values []*Value `( @@ ( "," @@ )* )? ")"`
}

// LikeMatch is [NOT] LIKE v or ILIKE v.
type LikeMatch struct {
	Not   bool   `@"NOT"?`
	Op    string `@( "LIKE" | "ILIKE" )`
	Value *Value `@@`
}

// Comparison is <op> v.
type Comparison struct {
	Op    string `@Op`
	Value *Value `@@`
}

// Value is a literal.
type Value struct {
	String *string `  @String`
	Number *string `| @Number`
	Bool   *string `| @( "TRUE" | "FALSE" )`
	Null   bool    `| @"NULL"`
}

var parser = participle.MustBuild[Expression](
	participle.Lexer(Lexer),
	participle.Elide("Whitespace"),
	participle.Unquote("String"),
	participle.CaseInsensitive("Keyword"),
	participle.UseLookahead(3),
)

// Grammar returns the EBNF of the filter language.
func Grammar() string {
	return parser.String()
}

// Parse converts input into conditions. Blank input yields none.
func Parse(input string) ([]sqlgen.Condition, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}
	expr, err := parser.ParseString("filter", input)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	return expr.Conditions()
}

// ParseAll parses every input and joins the results with AND.
func ParseAll(inputs []string) ([]sqlgen.Condition, error) {
	var out []sqlgen.Condition
	for _, in := range inputs {
		conds, err := Parse(in)
		if err != nil {
			return nil, err
		}
		out = append(out, conds...)
	}
	return out, nil
}

// Conditions lowers the parse tree.
func (e *Expression) Conditions() ([]sqlgen.Condition, error) {
	out := make([]sqlgen.Condition, 0, len(e.Terms))
	for _, t := range e.Terms {
		c, err := t.condition()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (t *Term) condition() (sqlgen.Condition, error) {
	switch {
	case t.Null != nil:
		if t.Null.Not {
			return sqlgen.WhereOp(t.Field, sqlgen.NotEq, nil), nil
		}
		return sqlgen.Where(t.Field, nil), nil

	case t.In != nil:
		values := make([]any, len(t.In.Values))
		for i, v := range t.In.Values {
			lit, err := v.literal()
			if err != nil {
				return sqlgen.Condition{}, err
			}
			values[i] = lit
		}
		op := sqlgen.In
		if t.In.Not {
			op = sqlgen.NotIn
		}
		return sqlgen.WhereOp(t.Field, op, values), nil

	case t.Like != nil:
		lit, err := t.Like.Value.literal()
		if err != nil {
			return sqlgen.Condition{}, err
		}
		op := sqlgen.Operator(t.Like.Op).Normalize()
		switch {
		case t.Like.Not && op == sqlgen.Like:
			op = sqlgen.NotLike
		case t.Like.Not:
			return sqlgen.Condition{}, fmt.Errorf("filter: NOT %s is not supported", op)
		}
		return sqlgen.WhereOp(t.Field, op, lit), nil

	case t.Cmp != nil:
		lit, err := t.Cmp.Value.literal()
		if err != nil {
			return sqlgen.Condition{}, err
		}
		return sqlgen.WhereOp(t.Field, sqlgen.Operator(t.Cmp.Op).Normalize(), lit), nil
	}
	return sqlgen.Condition{}, fmt.Errorf("filter: empty term on %q", t.Field)
}

func (v *Value) literal() (any, error) {
	switch {
	case v.String != nil:
		return *v.String, nil
	case v.Number != nil:
		if !strings.Contains(*v.Number, ".") {
			return strconv.ParseInt(*v.Number, 10, 64)
		}
		return strconv.ParseFloat(*v.Number, 64)
	case v.Bool != nil:
		return strings.EqualFold(*v.Bool, "true"), nil
	}
	return nil, nil
}
