package merge

import (
	"context"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"gitlab.com/tozd/go/errors"

	"github.com/OpenTraceLab/kilibmerge/pkg/kicad/library"
)

// modelCopy is one planned 3D model copy.
type modelCopy struct {
	component string
	src       string
	dst       string
}

func (s *stage) models(ctx context.Context) error {
	if err := os.MkdirAll(s.layout.ModelDir, 0o755); err != nil {
		return errors.Errorf("failed to create model directory: %w", err)
	}

	plan := s.planModels()
	err := forEach(ctx, s.jobs, len(plan), func(_ context.Context, i int) {
		m := plan[i]
		n, err := copyFile(m.src, m.dst, copyPreserve)
		if err != nil {
			s.logger.Warn("model not copied", "component", m.component, "file", filepath.Base(m.src), "err", err)
			s.report.fail(StageModels, m.component, err)
			return
		}
		s.report.done(StageModels)
		s.report.addModelBytes(n)
		s.logger.Debug("model copied", "component", m.component, "file", filepath.Base(m.dst), "size", humanize.Bytes(uint64(n)))
	})
	if err != nil {
		return err
	}

	s.logger.Info("models collected",
		"files", s.report.Stats(StageModels).Processed,
		"size", humanize.Bytes(uint64(s.report.ModelBytes)),
	)
	return nil
}

// planModels assigns every model file its destination name. Planning runs
// in enumeration order so collision suffixes do not depend on scheduling.
func (s *stage) planModels() []modelCopy {
	var plan []modelCopy
	reserved := make(map[string]bool)

	for _, c := range s.components {
		files, err := library.ModelFiles(c.Path)
		if err != nil {
			s.logger.Warn("cannot list models", "component", c.Name, "err", err)
			s.report.fail(StageModels, c.Name, err)
			continue
		}
		for _, f := range files {
			name := uniqueName(s.layout.ModelDir, filepath.Base(f), reserved)
			plan = append(plan, modelCopy{
				component: c.Name,
				src:       f,
				dst:       filepath.Join(s.layout.ModelDir, name),
			})
		}
	}
	return plan
}
