package library

import (
	"os"
	"path/filepath"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// ErrSkipped marks input root entries that are not component directories.
var ErrSkipped = errors.Base("not a component")

// Component is one part's library directory under the input root.
type Component struct {
	Name string // directory name, used as footprint file name and log key
	Path string
}

// Skip records an input root entry rejected before path resolution.
type Skip struct {
	Name   string
	Path   string
	Reason string
}

// ReasonArchive is the Skip reason given to downloaded archives.
const ReasonArchive = "archive"

var archiveExts = map[string]bool{
	".zip": true,
	".rar": true,
	".7z":  true,
	".tar": true,
	".gz":  true,
	".tgz": true,
	".bz2": true,
	".xz":  true,
}

// IsArchive reports whether name looks like a downloaded archive.
func IsArchive(name string) bool {
	return archiveExts[strings.ToLower(filepath.Ext(name))]
}

// Classify returns nil if path can be treated as a component directory.
// Otherwise the returned error wraps ErrSkipped and carries the reason as
// the "reason" detail. outputDir may be empty.
func Classify(path, outputDir string) error {
	if reason := skipReason(path, outputDir); reason != "" {
		return errors.WithDetails(errors.Errorf("%w: %s", ErrSkipped, reason), "reason", reason)
	}
	return nil
}

// SkipReason returns the reason attached by Classify, or the error text.
func SkipReason(err error) string {
	if reason, ok := errors.AllDetails(err)["reason"].(string); ok {
		return reason
	}
	return err.Error()
}

func skipReason(path, outputDir string) string {
	name := filepath.Base(path)

	if strings.HasPrefix(name, ".") {
		return "hidden entry"
	}
	if IsArchive(name) {
		return ReasonArchive
	}
	if outputDir != "" && (samePath(path, outputDir) || name == filepath.Base(filepath.Clean(outputDir))) {
		return "output directory"
	}

	info, err := os.Stat(path)
	if err != nil {
		return "unreadable: " + err.Error()
	}
	if !info.IsDir() {
		return "not a directory"
	}
	return ""
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

// Discover lists root in name order and splits its entries into accepted
// components and skipped entries.
func Discover(root, outputDir string) ([]Component, []Skip, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, nil, errors.Errorf("failed to list %s: %w", root, err)
	}

	var (
		components []Component
		skipped    []Skip
	)
	for _, entry := range entries {
		path := filepath.Join(root, entry.Name())
		if err := Classify(path, outputDir); err != nil {
			skipped = append(skipped, Skip{Name: entry.Name(), Path: path, Reason: SkipReason(err)})
			continue
		}
		components = append(components, Component{Name: entry.Name(), Path: path})
	}

	return components, skipped, nil
}
