package filter

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// Lexer defines the token types of filter expressions.
var Lexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Keyword", Pattern: `(?i:\b(?:and|is|not|null|in|like|ilike|true|false)\b)`},

	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)?`},

	{Name: "String", Pattern: `'(?:\\.|[^'\\])*'|"(?:\\.|[^"\\])*"`},
	{Name: "Number", Pattern: `-?\d+(?:\.\d+)?`},

	{Name: "Op", Pattern: `<=|>=|!=|<>|=|<|>`},
	{Name: "Punct", Pattern: `[(),]`},

	{Name: "Whitespace", Pattern: `\s+`},
})
