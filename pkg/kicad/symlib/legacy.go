package symlib

import (
	"strings"

	"gitlab.com/tozd/go/errors"
)

// The legacy format wraps every file in a two line header
// (EESchema-LIBRARY Version 2.4, #encoding utf-8) and a three line footer
// (#, #End Library, and the empty string after the final newline).
const (
	legacyHeaderLines = 2
	legacyFooterLines = 3
)

var (
	defaultLegacyHeader = []string{LegacyMagic + " Version 2.4", "#encoding utf-8"}
	defaultLegacyFooter = []string{"#", "#End Library", ""}
)

// ErrLegacyMismatch marks a legacy input whose header or footer differs
// from the first accepted input.
var ErrLegacyMismatch = errors.Base("legacy header or footer mismatch")

// ErrNotLegacyLibrary marks an input that does not start with the legacy magic.
var ErrNotLegacyLibrary = errors.Base("not a legacy symbol library")

// LegacySource is one component's .lib file contents.
type LegacySource struct {
	Name string
	Text string
}

// LegacyOptions controls MergeLegacy.
type LegacyOptions struct {
	// Strict checks every header against the legacy grammar and compares
	// magic, version, encoding line and footer with the first accepted
	// source. Anything after the version (a Date: stamp) is ignored.
	// Rejected sources are reported and left out of the merge.
	Strict bool
}

// MergeLegacy merges legacy libraries by keeping the header of the first
// source, the footer of the last one and every body in between, then
// dropping empty lines. The second return value lists per-source failures;
// the merged text is always usable.
//
// Without Strict, sources that do not follow the header/footer convention
// silently corrupt the result.
func MergeLegacy(sources []LegacySource, opts LegacyOptions) (string, []error) {
	var (
		header, body, footer []string
		ref                  *legacyShape
		refName              string
		errs                 []error
	)

	for _, src := range sources {
		h, b, f := sliceLegacy(splitLines(src.Text))

		if opts.Strict {
			shape, err := checkLegacy(h, f)
			if err != nil {
				errs = append(errs, errors.WithDetails(err, "component", src.Name))
				continue
			}
			if ref == nil {
				ref, refName = &shape, src.Name
			} else if shape != *ref {
				errs = append(errs, errors.WithDetails(
					errors.Errorf("%w: %s differs from %s", ErrLegacyMismatch, src.Name, refName),
					"component", src.Name,
				))
				continue
			}
		}

		if header == nil {
			header = h
		}
		footer = f
		body = append(body, b...)
	}

	if header == nil {
		header, footer = defaultLegacyHeader, defaultLegacyFooter
	}

	all := make([]string, 0, len(header)+len(body)+len(footer))
	for _, part := range [][]string{header, body, footer} {
		for _, line := range part {
			if line != "" {
				all = append(all, line)
			}
		}
	}
	return strings.Join(all, "\n"), errs
}

func sliceLegacy(lines []string) (header, body, footer []string) {
	if len(lines) < legacyHeaderLines+legacyFooterLines {
		n := min(legacyHeaderLines, len(lines))
		return lines[:n], nil, lines[n:]
	}
	end := len(lines) - legacyFooterLines
	return lines[:legacyHeaderLines], lines[legacyHeaderLines:end], lines[end:]
}

// legacyShape is the part of a legacy header and footer that has to agree
// across merged sources.
type legacyShape struct {
	version  string
	encoding string
	footer   string
}

func checkLegacy(header, footer []string) (legacyShape, error) {
	if len(header) < legacyHeaderLines || len(footer) < legacyFooterLines {
		return legacyShape{}, errors.Errorf("%w: file too short", ErrNotLegacyLibrary)
	}
	h, err := ParseLegacyHeader(header[0])
	if err != nil {
		return legacyShape{}, errors.Errorf("%w: %s", ErrNotLegacyLibrary, err.Error())
	}
	if h.Magic != LegacyMagic {
		return legacyShape{}, errors.Errorf("%w: unexpected magic %q", ErrNotLegacyLibrary, h.Magic)
	}
	return legacyShape{
		version:  h.Version,
		encoding: strings.TrimSpace(header[1]),
		footer:   strings.Join(footer, "\n"),
	}, nil
}
