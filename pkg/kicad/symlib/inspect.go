package symlib

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gitlab.com/tozd/go/errors"

	"github.com/OpenTraceLab/kilibmerge/pkg/kicad/sexp"
	"github.com/OpenTraceLab/kilibmerge/pkg/kicad/sexp/kicadsexp"
)

// Library flavours reported by Inspect.
const (
	KindStructured = "kicad_sym"
	KindLegacy     = "legacy"
)

// SymbolInfo describes one symbol of a library.
type SymbolInfo struct {
	Name      string
	Reference string
	Value     string
	Footprint string
	Units     int
	Pins      int
}

// Summary describes a symbol library file.
type Summary struct {
	Path      string
	Kind      string
	Version   string
	Generator string
	Symbols   []SymbolInfo
}

// Inspect reads a .kicad_sym or .lib file and summarises its symbols.
func Inspect(path string) (*Summary, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var summary *Summary
	switch strings.ToLower(filepath.Ext(path)) {
	case ".kicad_sym":
		summary, err = InspectStructured(file)
	case ".lib":
		summary, err = InspectLegacy(file)
	default:
		return nil, errors.Errorf("unsupported library file %s", path)
	}
	if err != nil {
		return nil, errors.Errorf("%s: %w", path, err)
	}
	summary.Path = path
	return summary, nil
}

// InspectStructured summarises a .kicad_sym library.
func InspectStructured(r io.Reader) (*Summary, error) {
	sexps, err := kicadsexp.Parse(r)
	if err != nil {
		return nil, errors.Errorf("failed to parse s-expression: %w", err)
	}
	if len(sexps) == 0 {
		return nil, errors.New("empty file or no valid s-expressions found")
	}

	root := sexps[0]
	rootName, err := sexp.GetNodeName(root)
	if err != nil {
		return nil, errors.Errorf("failed to get root node name: %w", err)
	}
	if rootName != LibraryRoot {
		return nil, errors.Errorf("not a KiCad symbol library: expected '%s', got '%s'", LibraryRoot, rootName)
	}

	summary := &Summary{Kind: KindStructured}
	if node, ok := sexp.FindNode(root, "version"); ok {
		summary.Version, _ = sexp.GetString(node, 1)
	}
	if node, ok := sexp.FindNode(root, "generator"); ok {
		summary.Generator, _ = sexp.GetQuotedString(node, 1)
	}

	for _, node := range sexp.FindAllNodes(root, "symbol") {
		summary.Symbols = append(summary.Symbols, parseSymbolInfo(node))
	}
	return summary, nil
}

func parseSymbolInfo(node kicadsexp.Sexp) SymbolInfo {
	info := SymbolInfo{}
	info.Name, _ = sexp.GetQuotedString(node, 1)

	var props []sexp.Property
	for _, pn := range sexp.FindAllNodes(node, "property") {
		if prop, err := sexp.GetProperty(pn); err == nil {
			props = append(props, prop)
		}
	}
	info.Reference = sexp.PropertyValue(props, "Reference")
	info.Value = sexp.PropertyValue(props, "Value")
	info.Footprint = sexp.PropertyValue(props, "Footprint")

	// Graphics and pins live in nested "<name>_<unit>_<style>" symbols;
	// unit 0 is shared by all units.
	units := make(map[string]bool)
	for _, unit := range sexp.FindAllNodes(node, "symbol") {
		name, _ := sexp.GetQuotedString(unit, 1)
		if parts := strings.Split(name, "_"); len(parts) >= 3 {
			if u := parts[len(parts)-2]; u != "0" {
				units[u] = true
			}
		}
	}
	info.Units = max(1, len(units))
	info.Pins = sexp.CountNodes(node, "pin")
	return info
}

// InspectLegacy summarises a legacy .lib library.
func InspectLegacy(r io.Reader) (*Summary, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, errors.New("empty file")
	}
	header, err := ParseLegacyHeader(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return nil, errors.Errorf("%w: %s", ErrNotLegacyLibrary, err.Error())
	}
	if header.Magic != LegacyMagic {
		return nil, errors.Errorf("%w: unexpected magic %q", ErrNotLegacyLibrary, header.Magic)
	}

	summary := &Summary{Kind: KindLegacy, Version: header.Version}
	var current *SymbolInfo
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "DEF "):
			def, err := ParseDefLine(line)
			if err != nil {
				return nil, errors.Errorf("bad DEF line %q: %w", line, err)
			}
			current = &SymbolInfo{Name: def.Name, Reference: def.Reference, Units: def.Units()}
		case current == nil:
			continue
		case strings.HasPrefix(line, "F0 "):
			current.Reference = quotedField(line)
		case strings.HasPrefix(line, "F1 "):
			current.Value = quotedField(line)
		case strings.HasPrefix(line, "F2 "):
			current.Footprint = quotedField(line)
		case strings.HasPrefix(line, "X "):
			current.Pins++
		case line == "ENDDEF":
			summary.Symbols = append(summary.Symbols, *current)
			current = nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return summary, nil
}

// quotedField returns the first double-quoted field of a legacy F line.
func quotedField(line string) string {
	_, rest, ok := strings.Cut(line, `"`)
	if !ok {
		return ""
	}
	value, _, _ := strings.Cut(rest, `"`)
	return value
}
