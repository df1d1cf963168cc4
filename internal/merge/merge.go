// Package merge builds one KiCad library out of a directory of per-part
// library downloads. Run executes the footprint, symbol and 3D model
// stages in that order and reports per-stage counts; a component that
// cannot be handled is logged and skipped, it never aborts the run.
package merge

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"gitlab.com/tozd/go/errors"

	"github.com/OpenTraceLab/kilibmerge/pkg/kicad/library"
)

// Output directory names.
const (
	ModelDirName   = "models3d"
	StagingDirName = ".staging"
)

// ErrInputRootMissing is the only fatal error of a run.
var ErrInputRootMissing = errors.Base("input library directory not found")

// Options configures a Run.
type Options struct {
	Name           string
	InputRoot      string
	OutputRoot     string
	Format         library.FormatVersion
	Jobs           int
	UnpackArchives bool
	StrictLegacy   bool
}

// Layout is the set of paths a run writes to.
type Layout struct {
	Root         string
	FootprintDir string
	SymbolFile   string
	ModelDir     string
	StagingDir   string
}

// NewLayout derives the output paths for a library called name.
func NewLayout(root, name string, format library.FormatVersion) Layout {
	return Layout{
		Root:         root,
		FootprintDir: filepath.Join(root, name+library.PrettySuffix),
		SymbolFile:   filepath.Join(root, name+format.SymbolExt()),
		ModelDir:     filepath.Join(root, ModelDirName),
		StagingDir:   filepath.Join(root, StagingDirName),
	}
}

// Run merges every component under opts.InputRoot into opts.OutputRoot.
// The returned error is non-nil only when the input root is missing, the
// output scaffolding cannot be created, or ctx is cancelled.
func Run(ctx context.Context, opts Options, logger *log.Logger) (*Report, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if opts.Format == "" {
		opts.Format = library.DefaultFormat
	}

	info, err := os.Stat(opts.InputRoot)
	if err != nil || !info.IsDir() {
		return nil, errors.Errorf("%w: %s", ErrInputRootMissing, opts.InputRoot)
	}

	layout := NewLayout(opts.OutputRoot, opts.Name, opts.Format)
	report := newReport(layout)

	components, skipped, err := library.Discover(opts.InputRoot, opts.OutputRoot)
	if err != nil {
		return nil, err
	}

	if opts.UnpackArchives {
		var staged []library.Component
		staged, skipped = unpackArchives(ctx, skipped, layout.StagingDir, logger)
		for _, c := range staged {
			report.Unpacked = append(report.Unpacked, c.Name)
		}
		components = append(components, staged...)
	}

	for _, s := range skipped {
		logger.Info("skipping entry", "name", s.Name, "reason", s.Reason)
	}
	report.Components = components
	report.Skipped = skipped

	for _, dir := range []string{layout.Root, layout.FootprintDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Errorf("failed to create output directory: %w", err)
		}
	}

	logger.Info("merging library",
		"name", opts.Name,
		"format", opts.Format,
		"components", len(components),
		"out", opts.OutputRoot,
	)

	resolver := library.NewResolver(opts.Format)
	st := &stage{
		components: components,
		resolver:   resolver,
		layout:     layout,
		jobs:       opts.Jobs,
		logger:     logger,
		report:     report,
	}

	if err := st.footprints(ctx); err != nil {
		return report, err
	}
	if err := st.symbols(ctx, opts.StrictLegacy); err != nil {
		return report, err
	}
	if err := st.models(ctx); err != nil {
		return report, err
	}

	return report, nil
}

// stage carries what every merge step needs.
type stage struct {
	components []library.Component
	resolver   *library.Resolver
	layout     Layout
	jobs       int
	logger     *log.Logger
	report     *Report
}
