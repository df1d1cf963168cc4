// Package library locates the footprint, symbol and 3D model files inside
// downloaded per-part KiCad library directories.
//
// Part vendors ship each part as its own directory, sometimes with a
// per-generation subdirectory (KiCad/, KiCADv6/ ...) and sometimes flat.
// Resolver hides those differences behind a named-candidate search.
package library

import (
	"strings"

	"gitlab.com/tozd/go/errors"
)

// FormatVersion selects the KiCad file generation being merged.
type FormatVersion string

const (
	FormatV5 FormatVersion = "v5" // legacy .lib symbol libraries
	FormatV6 FormatVersion = "v6"
	FormatV7 FormatVersion = "v7"
	FormatV8 FormatVersion = "v8"

	// DefaultFormat is the newest supported generation.
	DefaultFormat = FormatV8
)

// File extensions used by KiCad libraries.
const (
	FootprintExt     = ".kicad_mod"
	LegacySymbolExt  = ".lib"
	StructuredSymExt = ".kicad_sym"
	FootprintDirName = "footprints.pretty"
	PrettySuffix     = ".pretty"
)

// ErrUnknownFormat is returned by ParseFormat for unsupported spellings.
var ErrUnknownFormat = errors.Base("unknown format version")

// Formats lists the supported versions, oldest first.
func Formats() []FormatVersion {
	return []FormatVersion{FormatV5, FormatV6, FormatV7, FormatV8}
}

// ParseFormat accepts "v6", "V6" and "6" style spellings.
func ParseFormat(s string) (FormatVersion, error) {
	tag := strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(tag, "v") {
		tag = "v" + tag
	}
	for _, f := range Formats() {
		if string(f) == tag {
			return f, nil
		}
	}
	return "", errors.Errorf("%w: %q (want one of v5, v6, v7, v8)", ErrUnknownFormat, s)
}

// IsLegacy reports whether f uses the line-oriented .lib symbol format.
func (f FormatVersion) IsLegacy() bool {
	return f == FormatV5
}

// SymbolExt returns the symbol library extension for f.
func (f FormatVersion) SymbolExt() string {
	if f.IsLegacy() {
		return LegacySymbolExt
	}
	return StructuredSymExt
}

// SymbolFileVersion is the (version N) stamp KiCad writes into symbol
// libraries of this generation. Zero for the legacy format.
func (f FormatVersion) SymbolFileVersion() int {
	switch f {
	case FormatV6:
		return 20211014
	case FormatV7:
		return 20220914
	case FormatV8:
		return 20231120
	default:
		return 0
	}
}

// DirCandidates returns the nested directory names tried, in order, before
// falling back to a flat layout. Matching is case-insensitive.
func (f FormatVersion) DirCandidates() []string {
	generic := []string{"KiCAD", "KiCad", "kicad"}
	if f.IsLegacy() {
		return generic
	}
	return append([]string{"KiCAD" + string(f), "KiCAD" + strings.TrimPrefix(string(f), "v")}, generic...)
}

func (f FormatVersion) String() string {
	return string(f)
}
