// Package mapper renames row keys between persisted column names and
// domain field names, and maps rows onto typed structs.
package mapper

import (
	"errors"
	"fmt"
	"sort"

	"github.com/syurodev/system/query/executor"
	"github.com/syurodev/system/query/sqlgen"
)

// ErrConflictingName is returned when a field name map is ambiguous.
var ErrConflictingName = errors.New("mapper: conflicting field name mapping")

// Record is a row keyed by domain field names.
type Record map[string]any

// Pair links one persisted column to one domain field.
type Pair struct {
	Column string `yaml:"column"`
	Field  string `yaml:"field"`
}

// FieldNameMap is an immutable lookup between column and field names.
// Aliases are extra column spellings that normalize to an existing field
// but are never produced by Denormalize. A nil map renames nothing.
type FieldNameMap struct {
	toField  map[string]string
	toColumn map[string]string
	pairs    []Pair
}

// NewFieldNameMap validates pairs and aliases (column -> field) and builds
// the map. No method mutates it afterwards.
func NewFieldNameMap(pairs []Pair, aliases map[string]string) (*FieldNameMap, error) {
	m := &FieldNameMap{
		toField:  make(map[string]string, len(pairs)+len(aliases)),
		toColumn: make(map[string]string, len(pairs)),
	}
	for _, p := range pairs {
		if p.Column == "" || p.Field == "" {
			return nil, fmt.Errorf("%w: empty name in %q -> %q", ErrConflictingName, p.Column, p.Field)
		}
		if f, ok := m.toField[p.Column]; ok && f != p.Field {
			return nil, fmt.Errorf("%w: column %q maps to %q and %q", ErrConflictingName, p.Column, f, p.Field)
		}
		if c, ok := m.toColumn[p.Field]; ok && c != p.Column {
			return nil, fmt.Errorf("%w: field %q maps to %q and %q", ErrConflictingName, p.Field, c, p.Column)
		}
		m.toField[p.Column] = p.Field
		m.toColumn[p.Field] = p.Column
	}
	for column, field := range aliases {
		if f, ok := m.toField[column]; ok && f != field {
			return nil, fmt.Errorf("%w: alias %q shadows column mapped to %q", ErrConflictingName, column, f)
		}
		m.toField[column] = field
	}

	m.pairs = make([]Pair, 0, len(m.toColumn))
	for field, column := range m.toColumn {
		m.pairs = append(m.pairs, Pair{Column: column, Field: field})
	}
	sort.Slice(m.pairs, func(i, j int) bool { return m.pairs[i].Column < m.pairs[j].Column })
	return m, nil
}

// MustFieldNameMap is NewFieldNameMap that panics on error.
func MustFieldNameMap(pairs []Pair, aliases map[string]string) *FieldNameMap {
	m, err := NewFieldNameMap(pairs, aliases)
	if err != nil {
		panic(err)
	}
	return m
}

// Field returns the domain name for column, or column itself.
func (m *FieldNameMap) Field(column string) string {
	if m == nil {
		return column
	}
	if f, ok := m.toField[column]; ok {
		return f
	}
	return column
}

// Column returns the persisted name for field, or field itself.
func (m *FieldNameMap) Column(field string) string {
	if m == nil {
		return field
	}
	if c, ok := m.toColumn[field]; ok {
		return c
	}
	return field
}

// Pairs returns the canonical pairs sorted by column.
func (m *FieldNameMap) Pairs() []Pair {
	if m == nil {
		return nil
	}
	out := make([]Pair, len(m.pairs))
	copy(out, m.pairs)
	return out
}

// Len returns the number of column spellings the map recognizes.
func (m *FieldNameMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.toField)
}

// Normalize renames the top-level keys of row to domain names. Values,
// including nested maps, are not touched. A nil row yields nil.
func (m *FieldNameMap) Normalize(row executor.RawRow) Record {
	if row == nil {
		return nil
	}
	out := make(Record, len(row))
	for k, v := range row {
		out[m.Field(k)] = v
	}
	return out
}

// NormalizeAll normalizes every row.
func (m *FieldNameMap) NormalizeAll(rows []executor.RawRow) []Record {
	out := make([]Record, len(rows))
	for i, row := range rows {
		out[i] = m.Normalize(row)
	}
	return out
}

// NormalizeValue normalizes maps and returns any other value unchanged.
func (m *FieldNameMap) NormalizeValue(v any) any {
	switch row := v.(type) {
	case executor.RawRow:
		return m.Normalize(row)
	case map[string]any:
		if row == nil {
			return nil
		}
		return m.Normalize(executor.RawRow(row))
	default:
		return v
	}
}

// Denormalize renames domain keys back to persisted column names.
func (m *FieldNameMap) Denormalize(rec Record) sqlgen.Fields {
	if rec == nil {
		return nil
	}
	out := make(sqlgen.Fields, len(rec))
	for k, v := range rec {
		out[m.Column(k)] = v
	}
	return out
}

// Conditions returns conds with domain field names replaced by columns.
func (m *FieldNameMap) Conditions(conds []sqlgen.Condition) []sqlgen.Condition {
	out := make([]sqlgen.Condition, len(conds))
	for i, c := range conds {
		c.Field = m.Column(c.Field)
		out[i] = c
	}
	return out
}
