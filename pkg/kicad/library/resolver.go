package library

import (
	"os"
	"path/filepath"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// ErrNotFound is returned when neither a nested nor a flat layout yields
// the requested files. Callers skip the component and carry on.
var ErrNotFound = errors.Base("layout not found")

// Resolver finds footprint and symbol locations for one format version.
type Resolver struct {
	format FormatVersion
}

// NewResolver creates a resolver bound to format.
func NewResolver(format FormatVersion) *Resolver {
	return &Resolver{format: format}
}

// Format returns the resolver's format version.
func (r *Resolver) Format() FormatVersion {
	return r.format
}

// FootprintDir returns the directory holding the component's footprints.
func (r *Resolver) FootprintDir(componentPath string) (string, error) {
	for _, nested := range r.nestedDirs(componentPath) {
		if dir, ok := footprintDirIn(nested); ok {
			return dir, nil
		}
	}
	if dir, ok := footprintDirIn(componentPath); ok {
		return dir, nil
	}
	return "", errors.Errorf("%w: no footprint directory in %s", ErrNotFound, componentPath)
}

// SymbolFile returns the component's symbol library file.
func (r *Resolver) SymbolFile(componentPath string) (string, error) {
	ext := r.format.SymbolExt()
	for _, nested := range r.nestedDirs(componentPath) {
		if file, ok := firstFileWithExt(nested, ext); ok {
			return file, nil
		}
	}
	if file, ok := firstFileWithExt(componentPath, ext); ok {
		return file, nil
	}
	return "", errors.Errorf("%w: no %s file in %s", ErrNotFound, ext, componentPath)
}

// nestedDirs returns existing per-generation directories in candidate order.
func (r *Resolver) nestedDirs(componentPath string) []string {
	entries, err := os.ReadDir(componentPath)
	if err != nil {
		return nil
	}

	var (
		dirs []string
		seen = make(map[string]bool)
	)
	for _, candidate := range r.format.DirCandidates() {
		for _, entry := range entries {
			if !entry.IsDir() || !strings.EqualFold(entry.Name(), candidate) || seen[entry.Name()] {
				continue
			}
			seen[entry.Name()] = true
			dirs = append(dirs, filepath.Join(componentPath, entry.Name()))
		}
	}
	return dirs
}

// footprintDirIn looks for footprints.pretty, any *.pretty directory, or
// loose footprint files directly inside dir, in that order.
func footprintDirIn(dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}

	for _, entry := range entries {
		if entry.IsDir() && strings.EqualFold(entry.Name(), FootprintDirName) {
			return filepath.Join(dir, entry.Name()), true
		}
	}
	for _, entry := range entries {
		if entry.IsDir() && hasExt(entry.Name(), PrettySuffix) {
			return filepath.Join(dir, entry.Name()), true
		}
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() && hasExt(entry.Name(), FootprintExt) {
			return dir, true
		}
	}
	return "", false
}

func firstFileWithExt(dir, ext string) (string, bool) {
	files, err := FilesWithExt(dir, ext)
	if err != nil || len(files) == 0 {
		return "", false
	}
	return files[0], true
}

// FilesWithExt lists regular files directly inside dir whose extension is
// one of exts (case-insensitive), sorted by name. Subdirectories are not
// descended into.
func FilesWithExt(dir string, exts ...string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Errorf("failed to list %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		for _, ext := range exts {
			if hasExt(entry.Name(), ext) {
				files = append(files, filepath.Join(dir, entry.Name()))
				break
			}
		}
	}
	return files, nil
}

func hasExt(name, ext string) bool {
	return strings.EqualFold(filepath.Ext(name), ext)
}
