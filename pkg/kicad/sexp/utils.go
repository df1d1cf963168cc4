package sexp

import (
	"strconv"

	"gitlab.com/tozd/go/errors"

	"github.com/OpenTraceLab/kilibmerge/pkg/kicad/sexp/kicadsexp"
)

// S-expression navigation helpers

// FindNode searches for a direct child list whose first symbol is key.
// Example: FindNode(lib, "version") finds (version 20231120).
func FindNode(s kicadsexp.Sexp, key string) (kicadsexp.Sexp, bool) {
	for _, item := range SexpToSlice(s) {
		if item == nil || item.IsLeaf() {
			continue
		}
		if name, err := GetNodeName(item); err == nil && name == key {
			return item, true
		}
	}
	return nil, false
}

// FindAllNodes finds all direct child lists with the given key
func FindAllNodes(s kicadsexp.Sexp, key string) []kicadsexp.Sexp {
	var results []kicadsexp.Sexp
	for _, item := range SexpToSlice(s) {
		if item == nil || item.IsLeaf() {
			continue
		}
		if name, err := GetNodeName(item); err == nil && name == key {
			results = append(results, item)
		}
	}
	return results
}

// CountNodes counts lists with the given key anywhere below s.
func CountNodes(s kicadsexp.Sexp, key string) int {
	count := 0
	for _, item := range SexpToSlice(s) {
		if item == nil || item.IsLeaf() {
			continue
		}
		if name, err := GetNodeName(item); err == nil && name == key {
			count++
		}
		count += CountNodes(item, key)
	}
	return count
}

// SexpToSlice converts an s-expression list to a Go slice
func SexpToSlice(s kicadsexp.Sexp) []kicadsexp.Sexp {
	if s == nil || s.IsLeaf() {
		return nil
	}
	if l, ok := s.(*kicadsexp.List); ok {
		return l.Items()
	}

	var items []kicadsexp.Sexp
	for s != nil && !s.IsLeaf() && s.LeafCount() > 0 {
		items = append(items, s.Head())
		s = s.Tail()
	}
	return items
}

// Typed value extraction helpers

// GetString extracts the atom at the given index in a list.
// Index 0 is the key, 1 is first value, etc.
func GetString(s kicadsexp.Sexp, index int) (string, error) {
	if s == nil || s.IsLeaf() {
		return "", errors.New("expected list, got leaf")
	}

	l, ok := s.(*kicadsexp.List)
	if !ok {
		l = kicadsexp.NewList(SexpToSlice(s)...)
	}
	item := l.Get(index)
	if item == nil {
		return "", errors.Errorf("index %d out of bounds (length %d)", index, l.Len())
	}

	if sym, ok := item.(kicadsexp.Symbol); ok {
		return string(sym), nil
	}

	return "", errors.Errorf("expected symbol at index %d, got %T", index, item)
}

// GetQuotedString is GetString for values KiCad writes as quoted strings.
// The lexer already strips the quotes, so both spellings of
// (generator kicad_symbol_editor) and (generator "kicad_symbol_editor") agree.
func GetQuotedString(s kicadsexp.Sexp, index int) (string, error) {
	return GetString(s, index)
}

// GetInt extracts an int value at the given index
func GetInt(s kicadsexp.Sexp, index int) (int, error) {
	str, err := GetString(s, index)
	if err != nil {
		return 0, err
	}

	val, err := strconv.Atoi(str)
	if err != nil {
		return 0, errors.Errorf("failed to parse int %q: %w", str, err)
	}

	return val, nil
}

// GetNodeName returns the first symbol of a list (the node type/name)
func GetNodeName(s kicadsexp.Sexp) (string, error) {
	if s == nil {
		return "", errors.New("nil expression")
	}
	if s.IsLeaf() {
		if sym, ok := s.(kicadsexp.Symbol); ok {
			return string(sym), nil
		}
		return "", errors.New("expected symbol leaf")
	}

	if sym, ok := s.Head().(kicadsexp.Symbol); ok {
		return string(sym), nil
	}

	return "", errors.New("expected symbol at head of list")
}

// GetProperty extracts key and value from a (property "key" "value" ...) node
func GetProperty(s kicadsexp.Sexp) (Property, error) {
	prop := Property{}

	if name, err := GetNodeName(s); err != nil || name != "property" {
		return prop, errors.New("expected (property ...) list")
	}

	key, err := GetQuotedString(s, 1)
	if err != nil {
		return prop, errors.Errorf("failed to parse property key: %w", err)
	}
	prop.Key = key

	// Value can be missing in hand-written files.
	prop.Value, _ = GetQuotedString(s, 2)

	if idNode, ok := FindNode(s, "id"); ok {
		prop.ID, _ = GetInt(idNode, 1)
	}

	return prop, nil
}
