package symlib

import (
	"regexp"
	"strconv"

	"github.com/OpenTraceLab/kilibmerge/pkg/kicad/sexp"
	"github.com/OpenTraceLab/kilibmerge/pkg/kicad/sexp/kicadsexp"
)

// Defaults used when an input library carries no header fields.
const (
	DefaultVersion   = 20211014
	DefaultGenerator = "kicad_symbol_editor"
	LibraryRoot      = "kicad_symbol_lib"
)

// Header is the metadata shared by the merged library.
type Header struct {
	Version   int
	Generator string
}

// DefaultHeader returns the header used when no input provides one.
func DefaultHeader() Header {
	return Header{Version: DefaultVersion, Generator: DefaultGenerator}
}

var (
	versionPattern   = regexp.MustCompile(`\(version\s+(\d+)\s*\)`)
	generatorPattern = regexp.MustCompile(`\(generator\s+"([^"]*)"\s*\)`)
)

// ReadHeader extracts the version and generator fields of a .kicad_sym
// text. The wrapper is parsed as an S-expression so field order does not
// matter; text that does not parse falls back to a pattern search. Missing
// fields take the values from fallback.
func ReadHeader(text string, fallback Header) Header {
	if h, ok := headerFromTree(text, fallback); ok {
		return h
	}
	return headerFromPatterns(text, fallback)
}

func headerFromTree(text string, fallback Header) (Header, bool) {
	sexps, err := kicadsexp.ParseString(text)
	if err != nil || len(sexps) == 0 {
		return Header{}, false
	}

	root := sexps[0]
	if name, err := sexp.GetNodeName(root); err != nil || name != LibraryRoot {
		return Header{}, false
	}

	h := fallback
	if node, ok := sexp.FindNode(root, "version"); ok {
		if v, err := sexp.GetInt(node, 1); err == nil {
			h.Version = v
		}
	}
	if node, ok := sexp.FindNode(root, "generator"); ok {
		if g, err := sexp.GetQuotedString(node, 1); err == nil {
			h.Generator = g
		}
	}
	return h, true
}

func headerFromPatterns(text string, fallback Header) Header {
	h := fallback
	if m := versionPattern.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			h.Version = v
		}
	}
	if m := generatorPattern.FindStringSubmatch(text); m != nil {
		h.Generator = m[1]
	}
	return h
}
