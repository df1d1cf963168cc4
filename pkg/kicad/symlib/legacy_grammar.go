package symlib

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// LegacyMagic opens every legacy symbol library.
const LegacyMagic = "EESchema-LIBRARY"

// legacyLexer splits legacy library lines into whitespace separated words.
var legacyLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Word", Pattern: `[^\s]+`},
	{Name: "Whitespace", Pattern: `\s+`},
})

// LegacyHeaderLine is the first line of a .lib file:
//
//	EESchema-LIBRARY Version 2.4
type LegacyHeaderLine struct {
	Magic   string   `parser:"@Word"`
	Version string   `parser:"\"Version\" @Word"`
	Rest    []string `parser:"@Word*"`
}

// DefLine opens a symbol definition:
//
//	DEF LM358 U 0 40 Y Y 2 L N
type DefLine struct {
	Name      string   `parser:"\"DEF\" @Word"`
	Reference string   `parser:"@Word"`
	Fields    []string `parser:"@Word*"`
}

// Units returns the unit count field, or 1 if it is missing.
func (d *DefLine) Units() int {
	const unitField = 4
	if len(d.Fields) <= unitField {
		return 1
	}
	n := 0
	for _, c := range d.Fields[unitField] {
		if c < '0' || c > '9' {
			return 1
		}
		n = n*10 + int(c-'0')
	}
	if n == 0 {
		return 1
	}
	return n
}

var (
	headerParser = participle.MustBuild[LegacyHeaderLine](
		participle.Lexer(legacyLexer),
		participle.Elide("Whitespace"),
	)
	defParser = participle.MustBuild[DefLine](
		participle.Lexer(legacyLexer),
		participle.Elide("Whitespace"),
	)
)

// ParseLegacyHeader parses the first line of a legacy library.
func ParseLegacyHeader(line string) (*LegacyHeaderLine, error) {
	return headerParser.ParseString("", line)
}

// ParseDefLine parses a DEF line.
func ParseDefLine(line string) (*DefLine, error) {
	return defParser.ParseString("", line)
}
