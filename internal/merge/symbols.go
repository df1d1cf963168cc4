package merge

import (
	"bufio"
	"context"
	"os"
	"unicode/utf8"

	"gitlab.com/tozd/go/errors"

	"github.com/OpenTraceLab/kilibmerge/pkg/kicad/symlib"
)

// symbolSource is the symbol file of one component read into memory.
// Slots are filled by index so the merge order is the enumeration order
// whatever the worker count.
type symbolSource struct {
	name   string
	text   string
	blocks []string
	err    error
}

func (s *stage) symbols(ctx context.Context, strict bool) error {
	format := s.resolver.Format()
	sources := make([]symbolSource, len(s.components))

	err := forEach(ctx, s.jobs, len(s.components), func(_ context.Context, i int) {
		c := s.components[i]
		src := &sources[i]
		src.name = c.Name
		src.text, src.err = s.readSymbolFile(c.Path)
		if src.err != nil || format.IsLegacy() {
			return
		}
		src.blocks, src.err = symlib.ExtractBlocks(src.text)
		if errors.Is(src.err, symlib.ErrUnterminatedBlock) {
			s.logger.Warn("symbol file truncated, keeping complete blocks",
				"component", c.Name, "blocks", len(src.blocks))
			src.err = nil
		}
	})
	if err != nil {
		return err
	}

	for _, src := range sources {
		if src.err != nil {
			s.logger.Warn("symbol skipped", "component", src.name, "err", src.err)
			s.report.fail(StageSymbols, src.name, src.err)
		}
	}

	if format.IsLegacy() {
		return s.writeLegacy(sources, strict)
	}
	return s.writeStructured(sources)
}

func (s *stage) readSymbolFile(componentPath string) (string, error) {
	path, err := s.resolver.SymbolFile(componentPath)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Errorf("failed to read symbol file: %w", err)
	}
	if !utf8.Valid(data) {
		return "", errors.Errorf("symbol file %s is not valid UTF-8", path)
	}
	return string(data), nil
}

func (s *stage) writeStructured(sources []symbolSource) error {
	fallback := symlib.DefaultHeader()
	fallback.Version = s.resolver.Format().SymbolFileVersion()

	var lib *symlib.Library
	for _, src := range sources {
		if src.err != nil {
			continue
		}
		if lib == nil {
			lib = symlib.NewLibrary(symlib.ReadHeader(src.text, fallback))
		}
		lib.Add(src.blocks...)
		s.report.done(StageSymbols)
		s.logger.Debug("symbols merged", "component", src.name, "blocks", len(src.blocks))
	}
	if lib == nil {
		lib = symlib.NewLibrary(fallback)
	}

	if err := writeFile(s.layout.SymbolFile, func(w *bufio.Writer) error {
		_, err := lib.WriteTo(w)
		return err
	}); err != nil {
		return err
	}

	s.report.Symbols = len(lib.Blocks)
	s.logger.Info("symbol library written", "file", s.layout.SymbolFile, "symbols", len(lib.Blocks))
	return nil
}

func (s *stage) writeLegacy(sources []symbolSource, strict bool) error {
	var (
		inputs []symlib.LegacySource
		index  = make(map[string]int)
	)
	for _, src := range sources {
		if src.err != nil {
			continue
		}
		index[src.name] = len(inputs)
		inputs = append(inputs, symlib.LegacySource{Name: src.name, Text: src.text})
	}

	merged, errs := symlib.MergeLegacy(inputs, symlib.LegacyOptions{Strict: strict})

	rejected := make(map[string]bool, len(errs))
	for _, err := range errs {
		name, _ := errors.AllDetails(err)["component"].(string)
		rejected[name] = true
		s.logger.Warn("legacy symbol rejected", "component", name, "err", err)
		s.report.fail(StageSymbols, name, err)
	}
	accepted := 0
	for name := range index {
		if !rejected[name] {
			accepted++
			s.report.done(StageSymbols)
		}
	}

	if err := writeFile(s.layout.SymbolFile, func(w *bufio.Writer) error {
		_, err := w.WriteString(merged)
		return err
	}); err != nil {
		return err
	}

	s.report.Symbols = accepted
	s.logger.Info("legacy library written", "file", s.layout.SymbolFile, "sources", accepted)
	return nil
}

// writeFile creates path and hands a buffered writer to fill.
func writeFile(path string, fill func(w *bufio.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Errorf("failed to create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	if err := fill(w); err != nil {
		f.Close()
		return errors.Errorf("failed to write %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errors.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
