package mapper

import (
	"fmt"
	"maps"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// File is the on-disk form of a field name map:
//
//	fields:
//	  - column: created_at
//	    field: createdAt
//	aliases:
//	  createdat: createdAt
type File struct {
	Fields  []Pair            `yaml:"fields"`
	Aliases map[string]string `yaml:"aliases"`
	// Defaults merges the built-in identity map before Fields.
	Defaults bool `yaml:"defaults"`
}

// LoadFieldNameMap reads a YAML map from path on fs.
func LoadFieldNameMap(fs afero.Fs, path string) (*FieldNameMap, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read field map: %w", err)
	}
	return ParseFieldNameMap(data)
}

// ParseFieldNameMap builds a map from YAML bytes.
func ParseFieldNameMap(data []byte) (*FieldNameMap, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse field map: %w", err)
	}

	pairs := f.Fields
	aliases := f.Aliases
	if f.Defaults {
		pairs = append(append([]Pair{}, authPairs...), f.Fields...)
		aliases = maps.Clone(authAliases)
		maps.Copy(aliases, f.Aliases)
	}
	return NewFieldNameMap(pairs, aliases)
}
