package merge

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gitlab.com/tozd/go/errors"
)

type copyMode int

const (
	// copyReplace truncates an existing destination.
	copyReplace copyMode = iota
	// copyPreserve refuses to overwrite and keeps mode bits and mtime.
	copyPreserve
)

// copyFile copies src to dst and returns the number of bytes written.
func copyFile(src, dst string, mode copyMode) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, errors.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, errors.Errorf("failed to stat source: %w", err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	perm := os.FileMode(0o644)
	if mode == copyPreserve {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
		perm = info.Mode().Perm()
	}

	out, err := os.OpenFile(dst, flags, perm)
	if err != nil {
		return 0, errors.Errorf("failed to create destination: %w", err)
	}

	n, err := io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, errors.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}

	if mode == copyPreserve {
		if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
			return n, errors.Errorf("failed to set mode: %w", err)
		}
		if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
			return n, errors.Errorf("failed to set modification time: %w", err)
		}
	}
	return n, nil
}

// uniqueName returns a file name in dir that neither exists on disk nor is
// in reserved, appending _1, _2 ... before the extension. The result is
// added to reserved.
func uniqueName(dir, name string, reserved map[string]bool) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	candidate := name
	for i := 1; ; i++ {
		if !reserved[candidate] {
			if _, err := os.Lstat(filepath.Join(dir, candidate)); err != nil {
				break
			}
		}
		candidate = stem + "_" + strconv.Itoa(i) + ext
	}
	reserved[candidate] = true
	return candidate
}
