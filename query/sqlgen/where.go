// Package sqlgen compiles condition lists and query descriptions into
// parameterized SQL for PostgreSQL, MySQL and SQLite.
package sqlgen

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
)

// Operator is a comparison operator. The zero value means equality.
type Operator string

const (
	Eq      Operator = "="
	NotEq   Operator = "!="
	Lt      Operator = "<"
	Lte     Operator = "<="
	Gt      Operator = ">"
	Gte     Operator = ">="
	Like    Operator = "LIKE"
	NotLike Operator = "NOT LIKE"
	ILike   Operator = "ILIKE"
	In      Operator = "IN"
	NotIn   Operator = "NOT IN"
)

const (
	noOperator Operator = ""
	ltgt       Operator = "<>"
)

var operators = map[Operator]bool{
	Eq: true, NotEq: true, ltgt: true, Lt: true, Lte: true, Gt: true, Gte: true,
	Like: true, NotLike: true, ILike: true, In: true, NotIn: true,
}

// Normalize returns the canonical spelling of op.
func (op Operator) Normalize() Operator {
	n := Operator(strings.ToUpper(strings.Join(strings.Fields(string(op)), " ")))
	if n == ltgt {
		return NotEq
	}
	return n
}

// Valid reports whether op is a supported operator.
func (op Operator) Valid() bool {
	n := op.Normalize()
	return n == noOperator || operators[n]
}

type unset struct{}

func (unset) String() string { return "<unset>" }

// Unset marks a condition value as absent. Conditions holding it are
// skipped, which is different from nil (IS NULL).
var Unset any = unset{}

// Condition is one predicate of a WHERE clause.
type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// Where builds an equality condition.
func Where(field string, value any) Condition {
	return Condition{Field: field, Value: value}
}

// WhereOp builds a condition with an explicit operator.
func WhereOp(field string, op Operator, value any) Condition {
	return Condition{Field: field, Operator: op, Value: value}
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidIdentifier reports whether name can be interpolated as a table or
// column name.
func ValidIdentifier(name string) bool {
	return identPattern.MatchString(name)
}

func checkIdentifier(name string) error {
	if !ValidIdentifier(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return nil
}

// CompileWhere compiles conditions into a clause joined with AND. The
// clause never starts with WHERE; an empty result means no constraint.
func CompileWhere(conds []Condition) (Fragment, error) {
	f, _, err := compileWhere(conds)
	return f, err
}

// compileWhere also reports whether any compiled condition can exclude a
// row. An empty NOT IN list compiles to a tautology and does not count.
func compileWhere(conds []Condition) (Fragment, bool, error) {
	var b fragmentBuilder
	restrictive, err := compileInto(&b, conds)
	if err != nil {
		return Fragment{}, false, err
	}
	return b.build(), restrictive, nil
}

func compileInto(b *fragmentBuilder, conds []Condition) (bool, error) {
	n := 0
	restrictive := false
	for i, c := range conds {
		if c.Field == "" {
			return false, &InvalidConditionError{Index: i, Reason: "missing field"}
		}
		if c.Value == Unset {
			continue
		}
		if !ValidIdentifier(c.Field) {
			return false, &InvalidConditionError{Index: i, Field: c.Field, Reason: "field is not a plain identifier"}
		}
		op := c.Operator.Normalize()
		if !op.Valid() {
			return false, &InvalidConditionError{Index: i, Field: c.Field, Reason: fmt.Sprintf("unsupported operator %q", c.Operator)}
		}
		if n > 0 {
			b.text(" AND ")
		}
		always, err := compileCondition(b, i, c.Field, op, indirect(c.Value))
		if err != nil {
			return false, err
		}
		if !always {
			restrictive = true
		}
		n++
	}
	return restrictive, nil
}

// indirect turns typed nil pointers, maps and byte slices into nil and
// dereferences other pointers. Values implementing driver.Valuer are kept
// as they are unless nil.
func indirect(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	for {
		switch rv.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map:
			if rv.IsNil() {
				return nil
			}
		case reflect.Slice:
			if rv.IsNil() && rv.Type().Elem().Kind() == reflect.Uint8 {
				return nil
			}
		}
		if rv.Kind() != reflect.Pointer {
			return rv.Interface()
		}
		if _, ok := rv.Interface().(driver.Valuer); ok {
			return rv.Interface()
		}
		rv = rv.Elem()
	}
}

// compileCondition writes one predicate and reports whether it holds for
// every row.
func compileCondition(b *fragmentBuilder, i int, field string, op Operator, value any) (bool, error) {
	if value == nil {
		switch op {
		case noOperator, Eq:
			b.text(field, " IS NULL")
		case NotEq:
			b.text(field, " IS NOT NULL")
		default:
			return false, &InvalidConditionError{Index: i, Field: field, Reason: fmt.Sprintf("operator %s cannot compare with NULL", op)}
		}
		return false, nil
	}

	if values, ok := listValues(value); ok {
		var keyword string
		switch op {
		case noOperator, Eq, In:
			keyword = "IN"
		case NotEq, NotIn:
			keyword = "NOT IN"
		default:
			return false, &InvalidConditionError{Index: i, Field: field, Reason: fmt.Sprintf("operator %s does not accept a list", op)}
		}
		if len(values) == 0 {
			// Membership in an empty set is never true.
			if keyword == "IN" {
				b.text("1 = 0")
			} else {
				b.text("1 = 1")
			}
			return keyword == "NOT IN", nil
		}
		b.text(field, " ", keyword, " ")
		b.bindList(values)
		return false, nil
	}

	switch op {
	case noOperator:
		op = Eq
	case In, NotIn:
		return false, &InvalidConditionError{Index: i, Field: field, Reason: fmt.Sprintf("operator %s requires a list", op)}
	}
	b.text(field, " ", string(op), " ")
	b.bind(value)
	return false, nil
}

// listValues expands slices and arrays. []byte and driver.Valuer
// implementations are scalars.
func listValues(v any) ([]any, bool) {
	switch v.(type) {
	case []byte, driver.Valuer:
		return nil, false
	case []any:
		return v.([]any), true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// Match turns a column -> value map into equality conditions ordered by
// column name.
func Match(values map[string]any) []Condition {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	conds := make([]Condition, len(keys))
	for i, k := range keys {
		conds[i] = Where(k, values[k])
	}
	return conds
}
