package merge

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/mholt/archives"
	"gitlab.com/tozd/go/errors"

	"github.com/OpenTraceLab/kilibmerge/pkg/kicad/library"
)

// errUnsafePath is returned for archive entries that would land outside
// the staging directory.
var errUnsafePath = errors.Base("archive entry escapes target directory")

// unpackArchives extracts the .zip entries among skipped into stagingDir
// and returns them as components, named after the archive stem. Entries
// that are not zips, or fail to extract, stay in the returned skip list.
func unpackArchives(ctx context.Context, skipped []library.Skip, stagingDir string, logger *log.Logger) ([]library.Component, []library.Skip) {
	var (
		staged []library.Component
		rest   []library.Skip
	)
	for _, s := range skipped {
		if s.Reason != library.ReasonArchive || !strings.EqualFold(filepath.Ext(s.Name), ".zip") {
			rest = append(rest, s)
			continue
		}

		stem := strings.TrimSuffix(s.Name, filepath.Ext(s.Name))
		target := filepath.Join(stagingDir, stem)
		root, err := extractZip(ctx, s.Path, target)
		if err != nil {
			logger.Warn("archive not unpacked", "name", s.Name, "err", err)
			s.Reason = "archive: " + err.Error()
			rest = append(rest, s)
			continue
		}

		logger.Debug("archive unpacked", "name", s.Name, "dir", root)
		staged = append(staged, library.Component{Name: stem, Path: root})
	}
	return staged, rest
}

// extractZip unpacks the zip at src into target, replacing whatever a
// previous run left there. The returned path is the component root: target
// itself, or its only entry when the archive wraps everything in one
// directory.
func extractZip(ctx context.Context, src, target string) (string, error) {
	if err := os.RemoveAll(target); err != nil {
		return "", errors.Errorf("failed to clear staging directory: %w", err)
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", errors.Errorf("failed to create staging directory: %w", err)
	}

	f, err := os.Open(src)
	if err != nil {
		return "", errors.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	err = archives.Zip{}.Extract(ctx, f, func(ctx context.Context, info archives.FileInfo) error {
		dest, err := safeJoin(target, info.NameInArchive)
		if err != nil {
			return err
		}
		if info.IsDir() {
			return os.MkdirAll(dest, 0o755)
		}
		return writeEntry(info, dest)
	})
	if err != nil {
		return "", errors.Errorf("failed to extract %s: %w", filepath.Base(src), err)
	}

	entries, err := os.ReadDir(target)
	if err != nil {
		return "", errors.Errorf("failed to list staging directory: %w", err)
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(target, entries[0].Name()), nil
	}
	return target, nil
}

func writeEntry(info archives.FileInfo, dest string) error {
	if !info.Mode().IsRegular() {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	in, err := info.Open()
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dest, info.ModTime(), info.ModTime())
}

// safeJoin joins name to dir and rejects results outside dir.
func safeJoin(dir, name string) (string, error) {
	dest := filepath.Join(dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(dir, dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(name) {
		return "", errors.WithDetails(errUnsafePath, "entry", name)
	}
	return dest, nil
}
