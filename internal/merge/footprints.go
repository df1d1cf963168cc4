package merge

import (
	"context"
	"path/filepath"
	"strings"

	"gitlab.com/tozd/go/errors"

	"github.com/OpenTraceLab/kilibmerge/pkg/kicad/library"
)

// ErrFootprintCollision is reported when a footprint's target name is
// already claimed by another component in the same run.
var ErrFootprintCollision = errors.Base("footprint name already taken")

// footprintTargets maps the footprint files of one component to their
// names in the merged .pretty directory. The first file takes the
// component name, the rest keep their stem as a suffix.
func footprintTargets(component string, files []string) []string {
	names := make([]string, len(files))
	for i, f := range files {
		if i == 0 {
			names[i] = component + library.FootprintExt
			continue
		}
		stem := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
		names[i] = component + "_" + stem + library.FootprintExt
	}
	return names
}

// footprintJob holds one component's planned copies. Slots are filled by
// index like symbolSource.
type footprintJob struct {
	component string
	sources   []string
	targets   []string
	err       error // resolution failure, nothing is copied
	conflict  error // some targets were dropped, the rest are copied
}

func (s *stage) footprints(ctx context.Context) error {
	s.logger.Debug("copying footprints", "dir", s.layout.FootprintDir)

	jobs := make([]footprintJob, len(s.components))
	err := forEach(ctx, s.jobs, len(s.components), func(_ context.Context, i int) {
		c := s.components[i]
		jobs[i].component = c.Name
		jobs[i].sources, jobs[i].err = s.footprintFiles(c)
		if jobs[i].err == nil {
			jobs[i].targets = footprintTargets(c.Name, jobs[i].sources)
		}
	})
	if err != nil {
		return err
	}

	reserveFootprints(jobs)

	return forEach(ctx, s.jobs, len(jobs), func(_ context.Context, i int) {
		job := &jobs[i]
		err := job.err
		if err == nil {
			err = s.copyFootprints(job)
		}
		if err == nil {
			err = job.conflict
		}
		if err != nil {
			s.logger.Warn("footprint skipped", "component", job.component, "err", err)
			s.report.fail(StageFootprints, job.component, err)
			return
		}
		s.report.done(StageFootprints)
	})
}

// reserveFootprints settles target names in enumeration order. Primary
// names (<component>.kicad_mod) are claimed first, so an extra footprint
// never displaces another component's main footprint.
func reserveFootprints(jobs []footprintJob) {
	owner := make(map[string]string)
	for _, job := range jobs {
		if job.err == nil && len(job.targets) > 0 {
			owner[job.targets[0]] = job.component
		}
	}

	for i := range jobs {
		job := &jobs[i]
		if job.err != nil || len(job.targets) < 2 {
			continue
		}
		sources, targets := []string{job.sources[0]}, []string{job.targets[0]}
		for k := 1; k < len(job.targets); k++ {
			name := job.targets[k]
			if other, taken := owner[name]; taken {
				job.conflict = errors.WithDetails(
					errors.Errorf("%w: %s (claimed by %s)", ErrFootprintCollision, name, other),
					"file", filepath.Base(job.sources[k]),
				)
				continue
			}
			owner[name] = job.component
			sources = append(sources, job.sources[k])
			targets = append(targets, name)
		}
		job.sources, job.targets = sources, targets
	}
}

func (s *stage) footprintFiles(c library.Component) ([]string, error) {
	dir, err := s.resolver.FootprintDir(c.Path)
	if err != nil {
		return nil, err
	}
	files, err := library.FilesWithExt(dir, library.FootprintExt)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Errorf("%w: no footprint files in %s", library.ErrNotFound, dir)
	}
	return files, nil
}

func (s *stage) copyFootprints(job *footprintJob) error {
	for i, name := range job.targets {
		dst := filepath.Join(s.layout.FootprintDir, name)
		if _, err := copyFile(job.sources[i], dst, copyReplace); err != nil {
			return err
		}
		s.logger.Debug("footprint copied", "component", job.component, "file", name)
	}
	return nil
}
